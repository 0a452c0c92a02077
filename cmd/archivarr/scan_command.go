// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/autobrr/archivarr/internal/domain"
	"github.com/autobrr/archivarr/internal/services/indexer"
)

func RunScanCommand(configPath func() string) *cobra.Command {
	var (
		paths    []string
		prune    bool
		noEnrich bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Index the configured drives once and enrich new titles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			roots := a.cfg.Config.ScanRoots
			if len(paths) > 0 {
				roots = make([]domain.ScanRoot, 0, len(paths))
				for _, p := range paths {
					roots = append(roots, domain.ScanRoot{Path: p})
				}
			}
			if len(roots) == 0 {
				return errors.New("no scan roots configured; add [[scanRoots]] to the config or pass --path")
			}

			opts := indexer.Options{PruneMissing: prune}
			if !noEnrich {
				opts.Sweeper = a.resolver(nil)
			}

			summary, err := a.indexer(opts).Scan(cmd.Context(), roots)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			printScanSummary(cmd, summary)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&paths, "path", nil, "Scan these paths instead of the configured roots")
	cmd.Flags().BoolVar(&prune, "prune", false, "Remove files that were not found on a scanned drive")
	cmd.Flags().BoolVar(&noEnrich, "no-enrich", false, "Skip the metadata pass after the walk")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run summary as JSON")
	return cmd
}

func printScanSummary(cmd *cobra.Command, s *indexer.Summary) {
	cmd.Printf("Scan %s finished in %s\n", s.RunID, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	for _, r := range s.Roots {
		if r.Error != "" {
			cmd.Printf("  - %s (%s): %s\n", r.Name, r.Path, r.Error)
			continue
		}
		cmd.Printf("  - %s (%s): files=%d indexed=%d skipped=%d errors=%d pruned=%d\n",
			r.Name, r.Path, r.Files, r.Indexed, r.Skipped, r.Errors, r.Pruned)
	}
	cmd.Printf("Files: %s, indexed: %s, skipped: %s, errors: %d\n",
		humanize.Comma(int64(s.Files)), humanize.Comma(int64(s.Indexed)), humanize.Comma(int64(s.Skipped)), s.Errors)
	if s.Pruned > 0 || s.Orphans > 0 {
		cmd.Printf("Pruned files: %d, orphaned titles removed: %d\n", s.Pruned, s.Orphans)
	}
	if e := s.Enrichment; e != nil {
		cmd.Printf("Enrichment: total=%d resolved=%d sentinels=%d skipped=%d failed=%d\n",
			e.Total, e.Resolved, e.Sentinels, e.Skipped, e.Failed)
	}
}

func RunEnrichCommand(configPath func() string) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Look up metadata for titles that have none",
		Long:  "Look up metadata for titles that have none. With --all every title is looked up again and titles without a poster are retried.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			resolver := a.resolver(nil)
			sweep := resolver.EnrichMissing
			if all {
				sweep = resolver.ReEnrichAll
			}

			summary, err := sweep(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Enrichment: total=%d resolved=%d sentinels=%d skipped=%d failed=%d\n",
				summary.Total, summary.Resolved, summary.Sentinels, summary.Skipped, summary.Failed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Re-enrich every title")
	return cmd
}

func RunPostersCommand(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "posters",
		Short: "Download every remote poster and backdrop into the poster directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			cache, err := a.posters(nil)
			if err != nil {
				return err
			}

			summary, err := cache.RefreshAll(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Posters (%s): metadata=%d connector=%d downloaded=%d cached=%d fallbacks=%d backdropsCleared=%d failed=%d\n",
				cache.Dir(), summary.Metadata, summary.ConnectorMedia, summary.Downloaded, summary.AlreadyCached,
				summary.Fallbacks, summary.BackdropsCleared, summary.Failed)
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

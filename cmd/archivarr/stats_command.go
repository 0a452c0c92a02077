// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/archivarr/internal/models"
)

func RunStatsCommand(configPath func() string) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print archive statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format = strings.ToLower(strings.TrimSpace(format))
			switch format {
			case "text", "json", "yaml":
			default:
				return fmt.Errorf("unknown format %q, expected text, json or yaml", format)
			}

			a, err := openApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := models.NewStatsStore(a.db).Archive(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				return writeJSON(out, stats)
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(stats); err != nil {
					return err
				}
				return enc.Close()
			default:
				printStats(out, stats)
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json or yaml")
	return cmd
}

func printStats(w io.Writer, s *models.ArchiveStats) {
	fmt.Fprintf(w, "Movies:   %d (%s)\n", s.Counts.Movies, humanize.IBytes(uint64(s.Sizes.Movies)))
	fmt.Fprintf(w, "Series:   %d (%s)\n", s.Counts.Series, humanize.IBytes(uint64(s.Sizes.Series)))
	fmt.Fprintf(w, "Episodes: %d\n", s.Counts.Episodes)
	fmt.Fprintf(w, "Total:    %s on %d drives", humanize.IBytes(uint64(s.Sizes.Total)), s.Drives.Count)
	if s.Drives.Capacity > 0 {
		fmt.Fprintf(w, " (capacity %s)", humanize.IBytes(uint64(s.Drives.Capacity)))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Redundancy: %d backed up, %d single copy (%.1f%% protected)\n",
		s.Redundancy.BackedUp, s.Redundancy.SingleCopy, s.Redundancy.PercentProtected)

	if len(s.Utilization.PerDrive) > 0 {
		fmt.Fprintln(w, "Drives:")
		for _, d := range s.Utilization.PerDrive {
			fmt.Fprintf(w, "  - %s: %s / %s (%.1f%%)\n", d.Drive, humanize.IBytes(uint64(d.Used)), humanize.IBytes(uint64(d.Total)), d.Percent)
		}
	}

	if len(s.Distribution.Largest) > 0 {
		fmt.Fprintln(w, "Largest titles:")
		for _, t := range s.Distribution.Largest {
			fmt.Fprintf(w, "  - %s: %s\n", t.Title, humanize.IBytes(uint64(t.TotalSize)))
		}
	}

	if s.Health.Empty > 0 || len(s.Health.Duplicates) > 0 {
		fmt.Fprintf(w, "Health: %d titles without files, %d duplicated TMDB ids\n", s.Health.Empty, len(s.Health.Duplicates))
	}
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/autobrr/archivarr/internal/domain"
	"github.com/autobrr/archivarr/internal/services/connectors"
)

func RunConnectorsCommand(configPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connectors",
		Short: "Manage Sonarr and Radarr connectors",
	}

	cmd.AddCommand(
		runConnectorsListCommand(configPath),
		runConnectorsImportCommand(configPath),
		runConnectorsSyncCommand(configPath),
		runConnectorsStatsCommand(configPath),
	)
	return cmd
}

func runConnectorsListCommand(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known connectors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.connectors().List(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				cmd.Println("No connectors configured.")
				return nil
			}
			for _, c := range list {
				cmd.Printf("%s  %-6s  %s  key=%s\n", c.ID, c.AppType, c.BaseURL, domain.RedactString(c.APIKey))
			}
			return nil
		},
	}
}

func runConnectorsImportCommand(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Register connectors from a YAML file keyed by app type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			configs, err := connectors.ParseYAML(f)
			if err != nil {
				return err
			}
			if len(configs) == 0 {
				return fmt.Errorf("%s lists no connectors", args[0])
			}

			a, err := openApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			registered, err := a.connectors().Register(cmd.Context(), configs)
			if err != nil {
				return err
			}
			for _, c := range registered {
				cmd.Printf("Registered %s connector %s (%s)\n", c.AppType, c.ID, c.BaseURL)
			}
			return nil
		},
	}
}

func runConnectorsSyncCommand(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Mirror every connector's library into the local cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.connectors().SyncMedia(cmd.Context())
			if err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if r.Error != "" {
					failed++
					cmd.Printf("%s (%s): %s\n", r.ConnectorID, r.AppType, r.Error)
					continue
				}
				cmd.Printf("%s (%s): upserted=%d deleted=%d\n", r.ConnectorID, r.AppType, r.Upserted, r.Deleted)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d connectors failed to sync", failed, len(results))
			}
			return nil
		},
	}
}

func runConnectorsStatsCommand(configPath func() string) *cobra.Command {
	var cached bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Collect queue and disk space snapshots from every connector",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			svc := a.connectors()
			collect := svc.CollectStats
			if cached {
				collect = svc.LatestStats
			}
			stats, err := collect(cmd.Context())
			if err != nil {
				return err
			}

			for _, st := range stats {
				line := fmt.Sprintf("%s  %s  %s", st.ConnectorID, st.Status, humanize.Time(st.CheckedAt))
				if st.Version != "" {
					line += "  v" + st.Version
				}
				if st.Error != "" {
					line += "  " + st.Error
				}
				cmd.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "Show the last stored snapshots without contacting the connectors")
	return cmd
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/autobrr/archivarr/internal/buildinfo"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "archivarr",
		Short:         "Index media archive drives and enrich them with metadata",
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Config directory or config.toml path (default $XDG_CONFIG_HOME/archivarr)")

	opener := func() string { return configPath }

	root.AddCommand(
		RunServeCommand(opener),
		RunScanCommand(opener),
		RunEnrichCommand(opener),
		RunPostersCommand(opener),
		RunConnectorsCommand(opener),
		RunDrivesCommand(opener),
		RunStatsCommand(opener),
		RunDBCommand(opener),
		RunConfigCommand(opener),
		RunVersionCommand(),
	)
	return root
}

func RunVersionCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON {
				out, err := buildinfo.JSON()
				if err != nil {
					return err
				}
				cmd.Println(string(out))
				return nil
			}
			cmd.Print(buildinfo.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

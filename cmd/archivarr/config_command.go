// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/autobrr/archivarr/internal/buildinfo"
	"github.com/autobrr/archivarr/internal/config"
)

func RunConfigCommand(configPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and update the config file",
	}

	cmd.AddCommand(runConfigPathCommand(configPath), runConfigLogCommand(configPath))
	return cmd
}

func runConfigPathCommand(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config, database and poster locations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.New(configPath(), buildinfo.Version)
			if err != nil {
				return err
			}
			cmd.Printf("Config:   %s\n", cfg.ConfigPath())
			cmd.Printf("Database: %s\n", cfg.GetDatabasePath())
			cmd.Printf("Posters:  %s\n", cfg.GetPosterDir())
			return nil
		},
	}
}

func runConfigLogCommand(configPath func() string) *cobra.Command {
	var (
		level      string
		path       string
		maxSize    int
		maxBackups int
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Persist log settings to the config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.New(configPath(), buildinfo.Version)
			if err != nil {
				return err
			}
			current := cfg.Config

			flags := cmd.Flags()
			if !flags.Changed("level") {
				level = current.LogLevel
			}
			if _, err := zerolog.ParseLevel(strings.ToLower(level)); err != nil {
				return fmt.Errorf("invalid log level %q: %w", level, err)
			}
			if !flags.Changed("path") {
				path = current.LogPath
			}
			if !flags.Changed("max-size") {
				maxSize = current.LogMaxSize
			}
			if !flags.Changed("max-backups") {
				maxBackups = current.LogMaxBackups
			}

			if err := cfg.UpdateLogSettings(strings.ToUpper(level), path, maxSize, maxBackups); err != nil {
				return err
			}
			cmd.Printf("Log settings saved to %s\n", cfg.ConfigPath())
			return nil
		},
	}

	cmd.Flags().StringVar(&level, "level", "", "Log level: trace, debug, info, warn or error")
	cmd.Flags().StringVar(&path, "path", "", "Log file path, empty to log to stderr only")
	cmd.Flags().IntVar(&maxSize, "max-size", 0, "Log file size in MB before rotation")
	cmd.Flags().IntVar(&maxBackups, "max-backups", 0, "Rotated log files to keep")
	return cmd
}

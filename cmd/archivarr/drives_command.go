// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/autobrr/archivarr/internal/models"
	"github.com/autobrr/archivarr/internal/services/maintenance"
)

func RunDrivesCommand(configPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drives",
		Short: "Inspect and repair indexed drives",
	}

	cmd.AddCommand(runDrivesListCommand(configPath), runDrivesDedupCommand(configPath))
	return cmd
}

func runDrivesListCommand(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexed drives",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			drives, err := models.NewDriveStore(a.db).List(cmd.Context())
			if err != nil {
				return err
			}
			if len(drives) == 0 {
				cmd.Println("No drives indexed yet.")
				return nil
			}
			for _, d := range drives {
				capacity := "unknown"
				if d.TotalSize > 0 {
					capacity = humanize.IBytes(uint64(d.TotalSize))
				}
				cmd.Printf("%d  %s  %s  capacity=%s\n", d.ID, d.Name, d.Path, capacity)
			}
			return nil
		},
	}
}

func runDrivesDedupCommand(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "dedup",
		Short: "Merge drives whose paths differ only in case or a trailing slash",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := maintenance.DedupDrives(cmd.Context(), models.NewDriveStore(a.db))
			if err != nil {
				return err
			}
			if len(results) == 0 {
				cmd.Println("No duplicate drives found.")
				return nil
			}
			for _, r := range results {
				cmd.Printf("Merged %v into drive %d (%s)\n", r.Removed, r.KeptID, r.Path)
			}
			return nil
		},
	}
}

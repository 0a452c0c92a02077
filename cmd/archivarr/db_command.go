// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/spf13/cobra"
)

func RunDBCommand(configPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database operations",
	}

	cmd.AddCommand(runDBMigrateCommand(configPath), runDBStatusCommand(configPath))
	return cmd
}

func runDBMigrateCommand(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// database.New applies pending migrations before returning.
			a, err := openApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			applied, err := a.db.AppliedMigrations(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Database %s is at migration %d.\n", a.cfg.GetDatabasePath(), len(applied))
			return nil
		},
	}
}

func runDBStatusCommand(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List applied schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(configPath())
			if err != nil {
				return err
			}
			defer a.Close()

			applied, err := a.db.AppliedMigrations(cmd.Context())
			if err != nil {
				return err
			}

			cmd.Printf("Database: %s\n", a.cfg.GetDatabasePath())
			cmd.Printf("Migrations: %d\n", len(applied))
			for _, name := range applied {
				cmd.Printf("  - %s\n", name)
			}
			return nil
		},
	}
}

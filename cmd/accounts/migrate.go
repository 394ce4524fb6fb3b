// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/store"
)

// migrator is the part of store.Migrator the migrate commands use.
type migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Status() (*store.Status, error)
	Force(version int) error
	Close() error
}

// newMigrator is swapped in tests.
var newMigrator = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long: `Apply, roll back, inspect or force the embedded PostgreSQL migrations.
The SQLite driver creates its schema on open and needs none of these.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			if err := m.Up(); err != nil {
				return err
			}
			v, _, err := m.Version()
			if err != nil {
				return err
			}
			cmd.Printf("Migrations applied. Schema version: %d\n", v)
			return nil
		}),
	})

	var yes bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration, dropping all account data",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			if !yes {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops every account; rerun with --yes")
			}
			if err := m.Down(); err != nil {
				return err
			}
			cmd.Println("All migrations rolled back.")
			return nil
		}),
	}
	down.Flags().BoolVar(&yes, "yes", false, "confirm dropping all account tables")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			st, err := m.Status()
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Record VERSION as applied and clear the dirty flag. Use it only after
repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			if err := m.Force(v); err != nil {
				return err
			}
			cmd.Printf("Schema version forced to %d\n", v)
			return nil
		}),
	})

	return cmd
}

// withMigrator loads configuration, opens a migrator for the PostgreSQL URL,
// runs fn and closes the migrator.
func withMigrator(fn func(cmd *cobra.Command, m migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		cfg, _, err := loadConfig(cmd, os.Stderr)
		if err != nil {
			return err
		}
		if cfg.Database.Driver != config.DriverPostgres {
			return oops.Code("MIGRATE_UNSUPPORTED").
				With("driver", cfg.Database.Driver).
				Errorf("migrations apply to the postgres driver only")
		}

		m, err := newMigrator(cfg.Database.URL)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := m.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}()
		return fn(cmd, m, args)
	}
}

// parseForceVersion parses the force argument. Negative versions are left
// for the migrator to reject.
func parseForceVersion(arg string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(strings.TrimSpace(arg), "%d", &v); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", arg).Wrap(err)
	}
	return v, nil
}

func printStatus(w io.Writer, st *store.Status) {
	dirty := ""
	if st.Dirty {
		dirty = " (dirty)"
	}
	fmt.Fprintf(w, "Schema version: %d%s\n", st.Version, dirty)

	fmt.Fprintln(w, "Applied:")
	if len(st.Applied) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, m := range st.Applied {
		fmt.Fprintf(w, "  %s\n", m.Name)
	}

	fmt.Fprintln(w, "Pending:")
	if len(st.Pending) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, m := range st.Pending {
		fmt.Fprintf(w, "  %s\n", m.Name)
	}
}

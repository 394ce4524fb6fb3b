// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/logging"
)

const serviceName = "accounts"

// NewRootCmd creates the root command for the accounts CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Account registration, login and password reset service",
		Long: `accounts serves signup, login, logout, change-password and the
forgot/reset-password flow over HTML forms, backed by PostgreSQL or SQLite.`,
		SilenceUsage: true,
	}

	// Every subcommand shares the configuration flags.
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewCreateSuperuserCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// loadConfig reads configuration for cmd and builds the service logger.
func loadConfig(cmd *cobra.Command, logOut io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger := logging.Setup(serviceName, version, cfg.Log.Format, cfg.Log.Level, logOut)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("accounts %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
		},
	}
}

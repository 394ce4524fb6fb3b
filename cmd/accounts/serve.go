// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/internal/store"
	"github.com/holomush/accounts/internal/web"
)

// Serve timings.
const (
	shutdownTimeout  = 5 * time.Second
	sweepInterval    = time.Hour
	readinessTimeout = 2 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the account web server",
		Long: `Run the account web server, the metrics and health endpoints, and the
expired-session sweeper until SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, os.Stderr)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, logger, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending PostgreSQL migrations before serving")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, migrate bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Info("starting accounts service",
		"http_addr", cfg.HTTP.Addr,
		"driver", cfg.Database.Driver,
		"version", version,
	)

	if migrate && cfg.Database.Driver == config.DriverPostgres {
		if err := migrateUp(cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	a, err := newApp(cfg, st, logger)
	if err != nil {
		return err
	}

	srv, err := web.New(web.Options{
		Auth:          a.auth,
		Resets:        a.resets,
		Logger:        logger,
		CSRF:          cfg.HTTP.CSRF,
		SecureCookies: cfg.HTTP.SecureCookies,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	webErrCh, err := srv.Start(cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	go monitorServerErrors(ctx, cancel, webErrCh, "web", logger)

	var obsServer *observability.Server
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, readiness(ctx, srv, st), logger)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			if stopErr := srv.Stop(stopCtx); stopErr != nil {
				logger.Warn("failed to stop web server during cleanup", "error", stopErr)
			}
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
	}

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		runSweeper(ctx, sweepInterval, a.auth.SweepExpiredSessions, logger)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("accounts service ready", "http_addr", srv.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping web server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
	<-sweepDone
	a.close(shutdownCtx, logger)

	logger.Info("shutdown complete")
	return nil
}

// readiness is ready once the web server listens and the database answers.
func readiness(ctx context.Context, srv *web.Server, st *storage) observability.ReadinessChecker {
	return func() bool {
		if !srv.Listening() {
			return false
		}
		pingCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
		defer cancel()
		return st.ping(pingCtx) == nil
	}
}

// monitorServerErrors cancels ctx when a server reports a serve error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}

// runSweeper deletes expired sessions every interval until ctx is done.
func runSweeper(ctx context.Context, interval time.Duration, sweep func(context.Context) (int64, error), logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweep(ctx)
			if err != nil {
				logger.Warn("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("swept expired sessions", "count", n)
			}
		}
	}
}

// migrateUp applies pending migrations and closes the migrator.
func migrateUp(databaseURL string, logger *slog.Logger) (err error) {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := m.Up(); err != nil {
		return err
	}
	version, _, err := m.Version()
	if err != nil {
		return err
	}
	logger.Info("database schema up to date", "version", version)
	return nil
}

// ensure *store.Migrator satisfies the command's view of it.
var _ migrator = (*store.Migrator)(nil)

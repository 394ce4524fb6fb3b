// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/auth/postgres"
	"github.com/holomush/accounts/internal/auth/sqlite"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/events"
	"github.com/holomush/accounts/internal/notify"
	"github.com/holomush/accounts/internal/store"
	"github.com/holomush/accounts/internal/xdg"
)

// storage is the opened credential store, whichever driver backs it.
type storage struct {
	users    auth.UserRepository
	sessions auth.WebSessionRepository
	ping     func(ctx context.Context) error
	close    func()
}

// openStorage connects the configured driver. PostgreSQL is retried until it
// answers; SQLite creates its schema on open.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		dsn, err := cfg.SQLiteDSN()
		if err != nil {
			return nil, err
		}
		if cfg.Database.URL == "" {
			if err := xdg.EnsureDir(filepath.Dir(dsn)); err != nil {
				return nil, err
			}
		}
		db, err := sqlite.Open(dsn)
		if err != nil {
			return nil, err
		}
		logger.Info("opened sqlite store", "dsn", dsn)
		return &storage{
			users:    sqlite.NewUserRepository(db),
			sessions: sqlite.NewWebSessionRepository(db),
			ping:     func(ctx context.Context) error { return sqlite.Ping(ctx, db) },
			close: func() {
				if err := sqlite.Close(db); err != nil {
					logger.Warn("failed to close sqlite store", "error", err)
				}
			},
		}, nil

	case config.DriverPostgres:
		pool, err := store.Connect(ctx, cfg.Database.URL, cfg.Database.ConnectRetries, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to database")
		return &storage{
			users:    postgres.NewUserRepository(pool),
			sessions: postgres.NewWebSessionRepository(pool),
			ping:     pool.Ping,
			close:    pool.Close,
		}, nil
	}
	return nil, oops.Code("CONFIG_INVALID").With("driver", cfg.Database.Driver).Errorf("unknown database driver")
}

// newCredentialStore builds the store with the configured password policy.
func newCredentialStore(cfg *config.Config, st *storage) (*auth.CredentialStore, error) {
	policy, err := auth.NewPasswordPolicy(auth.NewArgon2idHasher(), cfg.Auth.MinPasswordLength)
	if err != nil {
		return nil, err
	}
	return auth.NewCredentialStore(st.users, policy)
}

// app holds the services serve runs.
type app struct {
	auth      *auth.Service
	resets    *auth.PasswordResetService
	queue     *notify.Queue
	publisher events.Publisher
}

func newApp(cfg *config.Config, st *storage, logger *slog.Logger) (*app, error) {
	creds, err := newCredentialStore(cfg, st)
	if err != nil {
		return nil, err
	}

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts := []auth.Option{auth.WithLogger(logger), auth.WithEvents(publisher)}

	svc, err := auth.NewAuthService(creds, st.sessions, []byte(cfg.Auth.SecretKey),
		append(opts, auth.WithSessionTTL(cfg.HTTP.SessionTTL))...)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenService([]byte(cfg.Auth.SecretKey), cfg.Auth.ResetTokenTTL)
	if err != nil {
		return nil, err
	}

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return nil, err
	}
	queue, err := notify.NewQueue(notifier, cfg.Mail.QueueSize, logger)
	if err != nil {
		return nil, err
	}

	resets, err := auth.NewPasswordResetService(creds, st.sessions, tokens, queue, cfg.HTTP.BaseURL, opts...)
	if err != nil {
		return nil, err
	}

	return &app{auth: svc, resets: resets, queue: queue, publisher: publisher}, nil
}

func newNotifier(cfg *config.Config, logger *slog.Logger) (auth.Notifier, error) {
	if cfg.Mail.Host == "" {
		logger.Warn("mail.host is not set, reset emails will be logged instead of sent")
		return notify.NewLog(logger), nil
	}
	return notify.NewSMTP(notify.SMTPConfig{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	})
}

func newPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, error) {
	if len(cfg.Events.Brokers) == 0 {
		return events.NewLogPublisher(logger), nil
	}
	return events.NewKafkaPublisher(cfg.Events.Brokers, cfg.Events.Topic)
}

// close drains the email queue and flushes the event publisher.
func (a *app) close(ctx context.Context, logger *slog.Logger) {
	if err := a.queue.Stop(ctx); err != nil {
		logger.Warn("error stopping email queue", "error", err)
	}
	if c, ok := a.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			logger.Warn("error closing event publisher", "error", err)
		}
	}
}

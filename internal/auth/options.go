// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/events"
)

// serviceOptions holds collaborators shared by AuthService and PasswordResetService.
type serviceOptions struct {
	logger     *slog.Logger
	publisher  events.Publisher
	now        func() time.Time
	sessionTTL time.Duration
}

// Option configures a service.
type Option func(*serviceOptions) error

// WithLogger sets the logger used for best-effort failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) error {
		if logger == nil {
			return oops.Errorf("logger cannot be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithEvents sets the account event publisher.
func WithEvents(p events.Publisher) Option {
	return func(o *serviceOptions) error {
		if p == nil {
			return oops.Errorf("event publisher cannot be nil")
		}
		o.publisher = p
		return nil
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) error {
		if now == nil {
			return oops.Errorf("clock cannot be nil")
		}
		o.now = now
		return nil
	}
}

// WithSessionTTL sets how long new sessions last.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *serviceOptions) error {
		if ttl <= 0 {
			return oops.With("ttl", ttl.String()).Errorf("session ttl must be positive")
		}
		o.sessionTTL = ttl
		return nil
	}
}

func applyOptions(opts []Option) (*serviceOptions, error) {
	o := &serviceOptions{
		logger:     slog.Default(),
		publisher:  events.Nop{},
		now:        time.Now,
		sessionTTL: SessionTokenExpiry,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

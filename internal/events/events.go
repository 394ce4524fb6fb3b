// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package events publishes account lifecycle events to downstream consumers.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// Type names an account event.
type Type string

// Account event types.
const (
	UserRegistered             Type = "user.registered"
	UserLoggedIn               Type = "user.logged_in"
	UserLoggedOut              Type = "user.logged_out"
	UserPasswordChanged        Type = "user.password_changed"
	UserPasswordResetRequested Type = "user.password_reset_requested"
	UserPasswordReset          Type = "user.password_reset"
)

// Event is a single account lifecycle fact.
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	UserID     string            `json:"user_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attrs      map[string]string `json:"attrs,omitempty"`
}

// New builds an event stamped with a fresh id and the current time.
func New(t Type, userID ulid.ULID, attrs map[string]string) Event {
	return Event{
		ID:         ulid.Make().String(),
		Type:       t,
		UserID:     userID.String(),
		OccurredAt: time.Now().UTC(),
		Attrs:      attrs,
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher writes events to a structured logger. It is the default when
// no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher. A nil logger uses slog.Default().
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the event at info level.
func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	attrs := []any{
		"event_id", event.ID,
		"event_type", string(event.Type),
		"user_id", event.UserID,
	}
	for k, v := range event.Attrs {
		attrs = append(attrs, k, v)
	}
	p.logger.InfoContext(ctx, "account event", attrs...)
	return nil
}

// Nop discards every event.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, Event) error { return nil }

var (
	_ Publisher = (*LogPublisher)(nil)
	_ Publisher = Nop{}
)

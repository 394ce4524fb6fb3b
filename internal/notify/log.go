// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/holomush/accounts/internal/auth"
)

// Log writes messages to a logger instead of sending them. Used when no
// mail host is configured.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a Log notifier. A nil logger uses slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Name identifies the notifier in metrics.
func (l *Log) Name() string { return "log" }

// Send logs the message at info level.
func (l *Log) Send(ctx context.Context, to, subject, htmlBody string) error {
	l.logger.InfoContext(ctx, "email not sent, no mail host configured",
		"to", to,
		"subject", subject,
		"body", htmlBody)
	return nil
}

var _ auth.Notifier = (*Log)(nil)

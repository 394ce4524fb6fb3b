// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"strings"

	"github.com/samber/oops"
	"gopkg.in/gomail.v2"

	"github.com/holomush/accounts/internal/auth"
)

// SMTPConfig holds the relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTP sends HTML email through an SMTP relay.
type SMTP struct {
	dialer sender
	from   string
}

// NewSMTP creates an SMTP notifier. Host and From are required.
func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, oops.Code("SMTP_CONFIG_INVALID").Errorf("mail host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, oops.Code("SMTP_CONFIG_INVALID").Errorf("mail from address is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	return &SMTP{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}, nil
}

// Name identifies the notifier in metrics.
func (s *SMTP) Name() string { return "smtp" }

// Send dials the relay and delivers one message.
func (s *SMTP) Send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return oops.Code(auth.CodeDeliveryFailed).With("notifier", "smtp").Wrap(err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return oops.Code(auth.CodeDeliveryFailed).
			With("notifier", "smtp").
			With("to", to).
			Wrap(err)
	}
	return nil
}

var _ auth.Notifier = (*SMTP)(nil)

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/events"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/pkg/errutil"
)

// ResetEmailSubject is the subject line of the reset email.
const ResetEmailSubject = "Reset Password"

//go:embed templates/reset_password_email.html
var templatesFS embed.FS

var resetEmailTemplate = template.Must(template.ParseFS(templatesFS, "templates/reset_password_email.html"))

// Notifier delivers an HTML message to an email address.
type Notifier interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// PasswordResetService runs the forgot-password and reset-password flow.
// It keeps no state of its own: every link check re-derives the expected
// token from the user as currently stored.
type PasswordResetService struct {
	store    *CredentialStore
	sessions WebSessionRepository
	tokens   *TokenService
	notifier Notifier
	baseURL  string
	opts     *serviceOptions
}

// NewPasswordResetService creates a new PasswordResetService.
// baseURL is the absolute site root, ending in a slash.
func NewPasswordResetService(
	store *CredentialStore,
	sessions WebSessionRepository,
	tokens *TokenService,
	notifier Notifier,
	baseURL string,
	opts ...Option,
) (*PasswordResetService, error) {
	if store == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("sessions repository is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token service is required")
	}
	if notifier == nil {
		return nil, oops.Errorf("notifier is required")
	}
	if !strings.HasSuffix(baseURL, "/") {
		return nil, oops.With("base_url", baseURL).Errorf("base URL must end with a slash")
	}
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &PasswordResetService{
		store:    store,
		sessions: sessions,
		tokens:   tokens,
		notifier: notifier,
		baseURL:  baseURL,
		opts:     o,
	}, nil
}

// RequestReset emails a reset link to the account registered under email.
//
// An unknown address fails with UNKNOWN_ACCOUNT so the form can say so.
// An inactive account gets the same success as an active one, without mail.
// Delivery problems never reach the caller: they are logged and the request
// still succeeds.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return newFieldError(CodeValidation, "email", MsgRequired)
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newFieldError(CodeUnknownAccount, "email", MsgUnknownAccount)
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}

	// Inactive accounts could never use the link.
	if !user.IsActive {
		s.opts.logger.InfoContext(ctx, "reset skipped for inactive user", "user_id", user.ID.String())
		return nil
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "issue token").
			Wrap(err)
	}

	link := ResetLink(s.baseURL, EncodeUserID(user.ID), token)
	body, err := renderResetEmail(user.Username, link, s.tokens.TTL())
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "render email").
			Wrap(err)
	}

	s.deliver(ctx, user, body)
	publishEvent(ctx, s.opts, events.New(events.UserPasswordResetRequested, user.ID, nil))
	return nil
}

// notifierLabel tags delivery failures caught by the reset flow in metrics.
const notifierLabel = "reset_flow"

// deliver hands the message to the notifier inside a failure boundary.
func (s *PasswordResetService) deliver(ctx context.Context, user *User, body string) {
	defer func() {
		if r := recover(); r != nil {
			observability.RecordNotifierFailure(notifierLabel)
			errutil.LogError(s.opts.logger, "reset email delivery panicked",
				oops.Code(CodeDeliveryFailed).
					With("user_id", user.ID.String()).
					Errorf("notifier panic: %v", r))
		}
	}()

	if err := s.notifier.Send(ctx, user.Email, ResetEmailSubject, body); err != nil {
		observability.RecordNotifierFailure(notifierLabel)
		errutil.LogError(s.opts.logger, "reset email delivery failed",
			oops.Code(CodeDeliveryFailed).
				With("user_id", user.ID.String()).
				Wrap(err))
	}
}

// VerifyLink resolves the encoded id and token from a reset link.
// Decode failures, unknown users, inactive users, bad signatures, expired
// tokens and stale state all return the same INVALID_OR_EXPIRED_LINK error.
func (s *PasswordResetService) VerifyLink(ctx context.Context, encodedID, token string) (*User, error) {
	id, err := DecodeUserID(encodedID)
	if err != nil {
		s.opts.logger.DebugContext(ctx, "reset link rejected", "reason", "decode", "error", err)
		return nil, InvalidLinkError()
	}

	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.opts.logger.DebugContext(ctx, "reset link rejected", "reason", "unknown user")
			return nil, InvalidLinkError()
		}
		return nil, oops.Code("RESET_VALIDATE_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}

	if !user.IsActive || !s.tokens.Verify(user, token) {
		s.opts.logger.DebugContext(ctx, "reset link rejected", "reason", "token", "user_id", user.ID.String())
		return nil, InvalidLinkError()
	}
	return user, nil
}

// NewPassword is the set-password form input.
type NewPassword struct {
	Password1 string
	Password2 string
}

// ResetPassword re-verifies the link, validates the new password and stores it.
// Changing the hash is what consumes the link. All of the user's sessions
// are removed afterwards.
func (s *PasswordResetService) ResetPassword(ctx context.Context, encodedID, token string, in NewPassword) error {
	user, err := s.VerifyLink(ctx, encodedID, token)
	if err != nil {
		return err
	}

	fields := checkNewPassword(s.store.Policy(), in.Password1, in.Password2, "new_password1", "new_password2", user)
	if err := newValidationError(fields); err != nil {
		return err
	}

	if err := s.store.SetPassword(ctx, user, in.Password1); err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "set password").
			Wrap(err)
	}

	// Stale sessions already fail validation; this only tidies them up.
	if err := s.sessions.DeleteByUser(ctx, user.ID); err != nil {
		errutil.LogError(s.opts.logger, "failed to delete sessions after password reset", err)
	}

	publishEvent(ctx, s.opts, events.New(events.UserPasswordReset, user.ID, nil))
	return nil
}

func renderResetEmail(username, link string, validFor time.Duration) (string, error) {
	var buf bytes.Buffer
	err := resetEmailTemplate.Execute(&buf, struct {
		Username string
		Link     string
		ValidFor string
	}{
		Username: username,
		Link:     link,
		ValidFor: humanDuration(validFor),
	})
	if err != nil {
		return "", err //nolint:wrapcheck // Callers wrap with context-specific info
	}
	return buf.String(), nil
}

func humanDuration(d time.Duration) string {
	if d >= 24*time.Hour && d%(24*time.Hour) == 0 {
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	if d >= time.Hour && d%time.Hour == 0 {
		hours := int(d / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return d.String()
}

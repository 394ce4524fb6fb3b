// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/events"
	"github.com/holomush/accounts/pkg/errutil"
)

// Service provides registration, login, session and password change operations.
type Service struct {
	store    *CredentialStore
	sessions WebSessionRepository
	secret   []byte
	opts     *serviceOptions
}

// NewAuthService creates a new Service. secret keys the session auth hash.
func NewAuthService(store *CredentialStore, sessions WebSessionRepository, secret []byte, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, oops.Errorf("credential store is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("sessions repository is required")
	}
	if len(secret) < MinSecretKeyLength {
		return nil, oops.Errorf("secret key must be at least %d bytes", MinSecretKeyLength)
	}
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Service{store: store, sessions: sessions, secret: secret, opts: o}, nil
}

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Registration is the signup form input.
type Registration struct {
	Email     string
	Username  string
	Password1 string
	Password2 string
}

// Register validates the signup input and creates an active, unprivileged user.
// The caller is not logged in.
func (s *Service) Register(ctx context.Context, in Registration) (*User, error) {
	fields := FieldErrors{}
	email := NormalizeEmail(in.Email)

	if err := ValidateEmail(email); err != nil {
		fields.Merge(mustFields(err))
	}
	if err := ValidateUsername(in.Username); err != nil {
		fields.Merge(mustFields(err))
	}
	fields.Merge(checkNewPassword(s.store.Policy(), in.Password1, in.Password2, "password1", "password2",
		&User{Email: email, Username: in.Username}))
	if err := newValidationError(fields); err != nil {
		return nil, err
	}

	user, err := s.store.Create(ctx, email, in.Username, in.Password1)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.New(events.UserRegistered, user.ID, map[string]string{"username": user.Username}))
	s.opts.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return user, nil
}

// Credentials is the login form input plus client metadata for the session.
type Credentials struct {
	Identifier string
	Password   string
	UserAgent  string
	IPAddress  string
}

// Login authenticates by email or username and creates a web session.
// Returns the session, the plaintext token for the cookie, and the user.
// Every failure is the same INVALID_CREDENTIALS error.
func (s *Service) Login(ctx context.Context, in Credentials) (*WebSession, string, *User, error) {
	kind := ClassifyIdentifier(in.Identifier)
	if kind == IdentifierInvalid {
		return nil, "", nil, InvalidCredentialsError()
	}

	var (
		user      *User
		lookupErr error
	)
	if kind == IdentifierEmail {
		user, lookupErr = s.store.FindByEmail(ctx, in.Identifier)
	} else {
		user, lookupErr = s.store.FindByUsername(ctx, in.Identifier)
	}
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return nil, "", nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "get user by "+kind.String()).
			Wrap(lookupErr)
	}

	// Always verify a hash so unknown identities take as long as known ones.
	if user == nil {
		_, _ = s.store.Policy().Verify(in.Password, dummyPasswordHash) //nolint:errcheck // Timing only
		return nil, "", nil, InvalidCredentialsError()
	}

	valid := s.store.VerifyPassword(user, in.Password)

	// Check lockout and active AFTER password verification to maintain constant time
	if !valid || user.IsLocked() || !user.IsActive {
		if !valid {
			user.RecordFailure()
			if err := s.store.Save(ctx, user); err != nil {
				errutil.LogError(s.opts.logger, "failed to record login failure", err)
			}
		}
		s.opts.logger.InfoContext(ctx, "login rejected",
			"user_id", user.ID.String(),
			"locked", user.IsLocked(),
			"active", user.IsActive)
		return nil, "", nil, InvalidCredentialsError()
	}

	user.RecordSuccess(s.opts.now())
	if s.store.Policy().NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, in.Password)
	}
	// Login succeeds even if the bookkeeping write fails.
	if err := s.store.Save(ctx, user); err != nil {
		errutil.LogError(s.opts.logger, "failed to record login", err)
	}

	session, token, err := s.startSession(ctx, user, in.UserAgent, in.IPAddress)
	if err != nil {
		return nil, "", nil, err
	}

	s.publish(ctx, events.New(events.UserLoggedIn, user.ID, map[string]string{"ip": in.IPAddress}))
	return session, token, user, nil
}

// upgradeHash rehashes the password with the current parameters. The
// password itself is unchanged, so the user's live sessions follow the new
// hash instead of being logged out.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	oldAuthHash := SessionAuthHash(s.secret, user.PasswordHash)
	if err := s.store.SetPassword(ctx, user, password); err != nil {
		errutil.LogError(s.opts.logger, "failed to upgrade password hash", err)
		return
	}
	if _, err := s.sessions.RekeyUser(ctx, user.ID, oldAuthHash, SessionAuthHash(s.secret, user.PasswordHash)); err != nil {
		errutil.LogError(s.opts.logger, "failed to rekey sessions after hash upgrade", err)
	}
}

func (s *Service) startSession(ctx context.Context, user *User, userAgent, ipAddress string) (*WebSession, string, error) {
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	expiresAt := s.opts.now().Add(s.opts.sessionTTL)
	session, err := NewWebSession(user.ID, tokenHash, SessionAuthHash(s.secret, user.PasswordHash), userAgent, ipAddress, expiresAt)
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "create web session").
			Wrap(err)
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}
	return session, token, nil
}

// Logout destroys a web session. A session that is already gone is not an error.
func (s *Service) Logout(ctx context.Context, session *WebSession) error {
	if session == nil {
		return nil
	}
	if err := s.sessions.Delete(ctx, session.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session").
			With("session_id", session.ID.String()).
			Wrap(err)
	}
	s.publish(ctx, events.New(events.UserLoggedOut, session.UserID, nil))
	return nil
}

// ValidateSession resolves a session token to its session and user.
// Also updates the LastSeenAt timestamp.
func (s *Service) ValidateSession(ctx context.Context, token string) (*WebSession, *User, error) {
	if token == "" {
		return nil, nil, oops.Code("SESSION_TOKEN_EMPTY").Errorf("session token cannot be empty")
	}

	session, err := s.sessions.GetByTokenHash(ctx, HashSessionToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, oops.Code("SESSION_INVALID").Errorf("invalid session token")
		}
		return nil, nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	now := s.opts.now()
	if session.IsExpiredAt(now) {
		_ = s.sessions.Delete(ctx, session.ID) //nolint:errcheck // Best effort, the sweeper catches leftovers
		return nil, nil, oops.Code("SESSION_EXPIRED").Errorf("session has expired")
	}

	user, err := s.store.FindByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, oops.Code("SESSION_INVALID").Errorf("session user no longer exists")
		}
		return nil, nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session user").
			Wrap(err)
	}
	if !user.IsActive {
		return nil, nil, oops.Code("SESSION_INVALID").Errorf("session user is inactive")
	}
	if !authHashMatches(session.AuthHash, SessionAuthHash(s.secret, user.PasswordHash)) {
		return nil, nil, oops.Code("SESSION_INVALID").Errorf("password changed since session start")
	}

	_ = s.sessions.UpdateLastSeen(ctx, session.ID, now) //nolint:errcheck // Best effort, validation succeeds regardless

	return session, user, nil
}

// PasswordChange is the change-password form input.
type PasswordChange struct {
	OldPassword  string
	NewPassword1 string
	NewPassword2 string
}

// ChangePassword verifies the old password, stores the new one, and re-keys
// the current session so it stays valid. Other sessions of the user stop
// validating because their auth hash no longer matches.
func (s *Service) ChangePassword(ctx context.Context, session *WebSession, user *User, in PasswordChange) error {
	if !s.store.VerifyPassword(user, in.OldPassword) {
		return newFieldError(CodeValidation, "old_password", MsgWrongOldPassword)
	}
	if err := newValidationError(checkNewPassword(s.store.Policy(), in.NewPassword1, in.NewPassword2, "new_password1", "new_password2", user)); err != nil {
		return err
	}

	hash, err := s.store.HashPassword(user, in.NewPassword1)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	oldAuthHash := SessionAuthHash(s.secret, user.PasswordHash)
	newAuthHash := SessionAuthHash(s.secret, hash)

	// The session is re-keyed before the password is written, so a failure
	// at either step leaves the old password and a working session.
	if session != nil {
		if err := s.sessions.UpdateAuthHash(ctx, session.ID, newAuthHash); err != nil {
			return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
				With("operation", "rekey session").
				With("session_id", session.ID.String()).
				Wrap(err)
		}
	}

	if err := s.store.StoreHash(ctx, user, hash); err != nil {
		if session != nil {
			if rbErr := s.sessions.UpdateAuthHash(ctx, session.ID, oldAuthHash); rbErr != nil {
				errutil.LogError(s.opts.logger, "failed to restore session after password change failure", rbErr)
			}
		}
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}

	if session != nil {
		session.AuthHash = newAuthHash
	}

	s.publish(ctx, events.New(events.UserPasswordChanged, user.ID, nil))
	return nil
}

// SweepExpiredSessions deletes expired sessions and returns how many were removed.
func (s *Service) SweepExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, oops.Code("SESSION_SWEEP_FAILED").Wrap(err)
	}
	return n, nil
}

// publish sends an account event; failures are logged and otherwise ignored.
func (s *Service) publish(ctx context.Context, e events.Event) {
	publishEvent(ctx, s.opts, e)
}

func publishEvent(ctx context.Context, o *serviceOptions, e events.Event) {
	if err := o.publisher.Publish(ctx, e); err != nil {
		errutil.LogError(o.logger, "failed to publish account event", err)
	}
}

// mustFields extracts field errors from a validation error produced in this package.
func mustFields(err error) FieldErrors {
	fields, ok := FieldErrorsOf(err)
	if !ok {
		return FieldErrors{NonFieldKey: {err.Error()}}
	}
	return fields
}

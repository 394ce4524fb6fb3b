// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Identity field limits, matching the storage column sizes.
const (
	MaxUsernameLength = 150
	MaxEmailLength    = 254
)

// usernameRegex matches letters, digits, underscore and . @ + -.
var usernameRegex = regexp.MustCompile(`^[\w.@+-]+$`)

var validate = validator.New(validator.WithRequiredStructEnabled())

// User is a registered account.
type User struct {
	ID             ulid.ULID
	Email          string
	Username       string
	PasswordHash   string
	IsActive       bool
	IsStaff        bool
	IsSuperuser    bool
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastLoginAt    *time.Time
}

// NewUser builds an active, unprivileged user. The password hash is set
// separately by the credential store.
func NewUser(email, username string) (*User, error) {
	email = NormalizeEmail(email)
	username = strings.TrimSpace(username)

	fields := FieldErrors{}
	if email == "" {
		fields.Add("email", MsgRequired)
	}
	if username == "" {
		fields.Add("username", MsgRequired)
	}
	if err := newValidationError(fields); err != nil {
		return nil, oops.With("operation", "new user").Wrap(err)
	}

	now := time.Now().UTC()
	return &User{
		ID:        ulid.Make(),
		Email:     email,
		Username:  username,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NewSuperuser builds a user with the active, staff and superuser flags set.
func NewSuperuser(email, username string) (*User, error) {
	u, err := NewUser(email, username)
	if err != nil {
		return nil, err
	}
	u.IsStaff = true
	u.IsSuperuser = true
	return u, nil
}

// NormalizeEmail trims whitespace and lowercases the domain part.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

// IsLocked returns true if the user is currently locked out.
func (u *User) IsLocked() bool {
	return IsLockedOut(u.LockedUntil)
}

// RecordFailure increments the failure counter and sets lockout if threshold reached.
func (u *User) RecordFailure() {
	u.FailedAttempts++
	u.LockedUntil = ComputeLockoutTime(u.FailedAttempts)
	u.UpdatedAt = time.Now().UTC()
}

// RecordSuccess resets the failure counter and stamps the login time.
func (u *User) RecordSuccess(at time.Time) {
	u.FailedAttempts, u.LockedUntil = ResetOnSuccess()
	at = at.UTC()
	u.LastLoginAt = &at
	u.UpdatedAt = at
}

// ValidateUsername checks the username character set and length.
func ValidateUsername(username string) error {
	switch {
	case username == "":
		return newFieldError(CodeValidation, "username", MsgRequired)
	case len(username) > MaxUsernameLength:
		return newFieldError(CodeValidation, "username", fmt.Sprintf("Ensure this value has at most %d characters.", MaxUsernameLength))
	case !usernameRegex.MatchString(username):
		return newFieldError(CodeValidation, "username",
			"Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters.")
	}
	return nil
}

// ValidateEmail checks that email is a syntactically valid address.
func ValidateEmail(email string) error {
	if email == "" {
		return newFieldError(CodeValidation, "email", MsgRequired)
	}
	if err := validate.Var(email, fmt.Sprintf("email,max=%d", MaxEmailLength)); err != nil {
		return newFieldError(CodeValidation, "email", "Enter a valid email address.")
	}
	return nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns a DUPLICATE_IDENTITY error when the
	// email or username is already taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByUsername retrieves a user by username (case-insensitive).
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update updates flags, lockout state and last login for an existing user.
	Update(ctx context.Context, user *User) error

	// UpdatePassword updates only the password hash for a user.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// Delete removes a user.
	Delete(ctx context.Context, id ulid.ULID) error
}

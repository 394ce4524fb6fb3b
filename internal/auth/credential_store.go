// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// CredentialStore persists users and owns every password hash transition.
type CredentialStore struct {
	users  UserRepository
	policy PasswordPolicy
}

// NewCredentialStore creates a CredentialStore.
func NewCredentialStore(users UserRepository, policy PasswordPolicy) (*CredentialStore, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if policy == nil {
		return nil, oops.Errorf("password policy is required")
	}
	return &CredentialStore{users: users, policy: policy}, nil
}

// Policy returns the password policy used by the store.
func (s *CredentialStore) Policy() PasswordPolicy {
	return s.policy
}

// Create registers an active, unprivileged user.
// Fails with VALIDATION_FAILED on an empty email or username and with
// DUPLICATE_IDENTITY when either is taken.
func (s *CredentialStore) Create(ctx context.Context, email, username, password string) (*User, error) {
	user, err := NewUser(email, username)
	if err != nil {
		return nil, err
	}
	return s.insert(ctx, user, password)
}

// CreateSuperuser registers a user with every privilege flag set.
func (s *CredentialStore) CreateSuperuser(ctx context.Context, email, username, password string) (*User, error) {
	user, err := NewSuperuser(email, username)
	if err != nil {
		return nil, err
	}
	return s.insert(ctx, user, password)
}

func (s *CredentialStore) insert(ctx context.Context, user *User, password string) (*User, error) {
	if err := s.checkAvailable(ctx, user); err != nil {
		return nil, err
	}

	hash, err := s.policy.Hash(password)
	if err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}
	user.PasswordHash = hash

	if err := s.users.Create(ctx, user); err != nil {
		// DUPLICATE_IDENTITY from the unique constraint passes through untouched.
		return nil, err
	}
	return user, nil
}

// checkAvailable reports every taken identity at once. The storage unique
// constraint still guards against concurrent registrations.
func (s *CredentialStore) checkAvailable(ctx context.Context, user *User) error {
	fields := FieldErrors{}

	if _, err := s.users.GetByEmail(ctx, user.Email); err == nil {
		fields.Add("email", MsgDuplicateEmail)
	} else if !errors.Is(err, ErrNotFound) {
		return oops.Code("USER_CREATE_FAILED").With("operation", "check email").Wrap(err)
	}

	if _, err := s.users.GetByUsername(ctx, user.Username); err == nil {
		fields.Add("username", MsgDuplicateUsername)
	} else if !errors.Is(err, ErrNotFound) {
		return oops.Code("USER_CREATE_FAILED").With("operation", "check username").Wrap(err)
	}

	if len(fields) > 0 {
		return oops.Code(CodeDuplicateIdentity).Wrap(&ValidationError{Fields: fields})
	}
	return nil
}

// FindByEmail looks a user up by email (case-insensitive).
func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.users.GetByEmail(ctx, NormalizeEmail(email))
}

// FindByUsername looks a user up by username (case-insensitive).
func (s *CredentialStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.users.GetByUsername(ctx, username)
}

// FindByID looks a user up by id.
func (s *CredentialStore) FindByID(ctx context.Context, id ulid.ULID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// VerifyPassword reports whether plaintext matches the user's stored hash.
// A malformed stored hash counts as a mismatch.
func (s *CredentialStore) VerifyPassword(user *User, plaintext string) bool {
	if user == nil || user.PasswordHash == "" {
		return false
	}
	ok, err := s.policy.Verify(plaintext, user.PasswordHash)
	return err == nil && ok
}

// SetPassword hashes plaintext and stores it as the user's new password.
// On success user.PasswordHash holds the new hash.
func (s *CredentialStore) SetPassword(ctx context.Context, user *User, plaintext string) error {
	hash, err := s.HashPassword(user, plaintext)
	if err != nil {
		return err
	}
	return s.StoreHash(ctx, user, hash)
}

// HashPassword hashes plaintext for user without storing it.
func (s *CredentialStore) HashPassword(user *User, plaintext string) (string, error) {
	hash, err := s.policy.Hash(plaintext)
	if err != nil {
		return "", oops.Code("USER_SET_PASSWORD_FAILED").
			With("operation", "hash password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return hash, nil
}

// StoreHash persists a hash from HashPassword and sets user.PasswordHash.
func (s *CredentialStore) StoreHash(ctx context.Context, user *User, hash string) error {
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return oops.Code("USER_SET_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now().UTC()
	return nil
}

// Save persists lockout counters, flags and last login.
func (s *CredentialStore) Save(ctx context.Context, user *User) error {
	if err := s.users.Update(ctx, user); err != nil {
		return oops.Code("USER_SAVE_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sqlite

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"gorm.io/gorm"

	"github.com/holomush/accounts/internal/auth"
)

// UserRepository implements auth.UserRepository on gorm.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create stores a new user. Email and username are unique regardless of case.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	rec := toUserRecord(user)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if dup := duplicateIdentity(err); dup != nil {
			return oops.With("operation", "insert user").Wrap(dup)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return nil
}

// duplicateIdentity recognises SQLite unique failures on the lowered identity columns.
func duplicateIdentity(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "users.email_lower"):
		return auth.DuplicateEmailError()
	case strings.Contains(msg, "users.username_lower"):
		return auth.DuplicateUsernameError()
	default:
		return nil
	}
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	return r.get(ctx, "id", "id", id.String())
}

// GetByUsername retrieves a user by username (case-insensitive).
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	return r.get(ctx, "username", "username_lower", strings.ToLower(username))
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.get(ctx, "email", "email_lower", strings.ToLower(email))
}

func (r *UserRepository) get(ctx context.Context, key, column, value string) (*auth.User, error) {
	var rec userRecord
	err := r.db.WithContext(ctx).Where(column+" = ?", value).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, oops.Code("USER_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by "+key).
			With(key, value).
			Wrap(err)
	}
	return rec.toUser()
}

// Update writes flags, lockout state and last login.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	res := r.db.WithContext(ctx).Model(&userRecord{}).
		Where("id = ?", user.ID.String()).
		Updates(map[string]any{
			"is_active":       user.IsActive,
			"is_staff":        user.IsStaff,
			"is_superuser":    user.IsSuperuser,
			"failed_attempts": user.FailedAttempts,
			"locked_until":    user.LockedUntil,
			"last_login_at":   user.LastLoginAt,
			"updated_at":      user.UpdatedAt,
		})
	return userWriteResult(res, "USER_UPDATE_FAILED", "update user", user.ID)
}

// UpdatePassword updates only the password hash for a user.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	res := r.db.WithContext(ctx).Model(&userRecord{}).
		Where("id = ?", id.String()).
		Updates(map[string]any{
			"password_hash": passwordHash,
			"updated_at":    time.Now().UTC(),
		})
	return userWriteResult(res, "USER_UPDATE_PASSWORD_FAILED", "update password", id)
}

// Delete removes a user together with their sessions.
func (r *UserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id.String()).Delete(&sessionRecord{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id.String()).Delete(&userRecord{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return oops.Code("USER_DELETE_FAILED").
			With("operation", "delete user").
			With("id", id.String()).
			Wrap(err)
	}
	if affected == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func userWriteResult(res *gorm.DB, code, operation string, id ulid.ULID) error {
	if res.Error != nil {
		return oops.Code(code).
			With("operation", operation).
			With("id", id.String()).
			Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func toUserRecord(u *auth.User) userRecord {
	return userRecord{
		ID:             u.ID.String(),
		Email:          u.Email,
		EmailLower:     strings.ToLower(u.Email),
		Username:       u.Username,
		UsernameLower:  strings.ToLower(u.Username),
		PasswordHash:   u.PasswordHash,
		IsActive:       u.IsActive,
		IsStaff:        u.IsStaff,
		IsSuperuser:    u.IsSuperuser,
		FailedAttempts: u.FailedAttempts,
		LockedUntil:    u.LockedUntil,
		LastLoginAt:    u.LastLoginAt,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func (rec *userRecord) toUser() (*auth.User, error) {
	id, err := ulid.Parse(rec.ID)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", rec.ID).
			Wrap(err)
	}
	return &auth.User{
		ID:             id,
		Email:          rec.Email,
		Username:       rec.Username,
		PasswordHash:   rec.PasswordHash,
		IsActive:       rec.IsActive,
		IsStaff:        rec.IsStaff,
		IsSuperuser:    rec.IsSuperuser,
		FailedAttempts: rec.FailedAttempts,
		LockedUntil:    rec.LockedUntil,
		LastLoginAt:    rec.LastLoginAt,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)

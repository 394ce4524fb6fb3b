// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"gorm.io/gorm"

	"github.com/holomush/accounts/internal/auth"
)

// WebSessionRepository implements auth.WebSessionRepository on gorm.
type WebSessionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewWebSessionRepository creates a new WebSessionRepository.
func NewWebSessionRepository(db *gorm.DB) *WebSessionRepository {
	return &WebSessionRepository{db: db, now: time.Now}
}

// Create stores a new web session.
func (r *WebSessionRepository) Create(ctx context.Context, s *auth.WebSession) error {
	rec := sessionRecord{
		ID:         s.ID.String(),
		UserID:     s.UserID.String(),
		TokenHash:  s.TokenHash,
		AuthHash:   s.AuthHash,
		UserAgent:  s.UserAgent,
		IPAddress:  s.IPAddress,
		ExpiresAt:  s.ExpiresAt,
		CreatedAt:  s.CreatedAt,
		LastSeenAt: s.LastSeenAt,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert web_session").
			With("user_id", s.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *WebSessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.WebSession, error) {
	var rec sessionRecord
	err := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	s := &auth.WebSession{
		TokenHash:  rec.TokenHash,
		AuthHash:   rec.AuthHash,
		UserAgent:  rec.UserAgent,
		IPAddress:  rec.IPAddress,
		ExpiresAt:  rec.ExpiresAt,
		CreatedAt:  rec.CreatedAt,
		LastSeenAt: rec.LastSeenAt,
	}
	if s.ID, err = ulid.Parse(rec.ID); err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").With("id", rec.ID).Wrap(err)
	}
	if s.UserID, err = ulid.Parse(rec.UserID); err != nil {
		return nil, oops.Code("SESSION_INVALID_USER_ID").With("user_id", rec.UserID).Wrap(err)
	}
	return s, nil
}

// UpdateLastSeen updates the LastSeenAt timestamp for a session.
func (r *WebSessionRepository) UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error {
	return r.updateOne(ctx, id, "last_seen_at", lastSeen, "SESSION_UPDATE_LAST_SEEN_FAILED")
}

// UpdateAuthHash re-keys a session after its owner changed password.
func (r *WebSessionRepository) UpdateAuthHash(ctx context.Context, id ulid.ULID, authHash string) error {
	return r.updateOne(ctx, id, "auth_hash", authHash, "SESSION_UPDATE_AUTH_HASH_FAILED")
}

// RekeyUser moves the user's sessions from oldAuthHash to newAuthHash.
func (r *WebSessionRepository) RekeyUser(ctx context.Context, userID ulid.ULID, oldAuthHash, newAuthHash string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("user_id = ? AND auth_hash = ?", userID.String(), oldAuthHash).
		Update("auth_hash", newAuthHash)
	if res.Error != nil {
		return 0, oops.Code("SESSION_REKEY_FAILED").
			With("operation", "rekey user sessions").
			With("user_id", userID.String()).
			Wrap(res.Error)
	}
	return res.RowsAffected, nil
}

func (r *WebSessionRepository) updateOne(ctx context.Context, id ulid.ULID, column string, value any, code string) error {
	res := r.db.WithContext(ctx).Model(&sessionRecord{}).Where("id = ?", id.String()).Update(column, value)
	if res.Error != nil {
		return oops.Code(code).
			With("operation", "update "+column).
			With("id", id.String()).
			Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes a session by ID.
func (r *WebSessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id.String()).Delete(&sessionRecord{})
	if res.Error != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete web_session").
			With("id", id.String()).
			Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByUser removes all sessions for a user.
func (r *WebSessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID.String()).Delete(&sessionRecord{}).Error; err != nil {
		return oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "delete web_sessions by user").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes all expired sessions and returns the count.
func (r *WebSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", r.now().UTC()).Delete(&sessionRecord{})
	if res.Error != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired web_sessions").
			Wrap(res.Error)
	}
	return res.RowsAffected, nil
}

// Compile-time interface check.
var _ auth.WebSessionRepository = (*WebSessionRepository)(nil)

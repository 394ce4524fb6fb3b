// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/pkg/errutil"
)

var sessionCols = []string{
	"id", "user_id", "token_hash", "auth_hash", "user_agent", "ip_address", "expires_at", "created_at", "last_seen_at",
}

func sampleSession(t *testing.T) *auth.WebSession {
	t.Helper()
	s, err := auth.NewWebSession(ulid.Make(), "token-hash", "auth-hash", "curl/8", "10.0.0.1",
		time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return s
}

func TestWebSessionRepository_Create(t *testing.T) {
	ctx := context.Background()
	s := sampleSession(t)

	mock := newMockPool(t)
	mock.ExpectExec(`INSERT INTO web_sessions`).
		WithArgs(s.ID.String(), s.UserID.String(), "token-hash", "auth-hash", "curl/8", "10.0.0.1",
			s.ExpiresAt, s.CreatedAt, s.LastSeenAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO web_sessions`).WillReturnError(errors.New("foreign key violation"))

	repo := NewWebSessionRepository(mock)
	require.NoError(t, repo.Create(ctx, s))

	err := repo.Create(ctx, s)
	errutil.AssertErrorCode(t, err, "SESSION_CREATE_FAILED")
	errutil.AssertErrorContext(t, err, "user_id", s.UserID.String())
}

func TestWebSessionRepository_GetByTokenHash(t *testing.T) {
	ctx := context.Background()
	s := sampleSession(t)

	t.Run("found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM web_sessions WHERE token_hash`).WithArgs("token-hash").
			WillReturnRows(pgxmock.NewRows(sessionCols).AddRow(
				s.ID.String(), s.UserID.String(), s.TokenHash, s.AuthHash, s.UserAgent, s.IPAddress,
				s.ExpiresAt, s.CreatedAt, s.LastSeenAt))

		got, err := NewWebSessionRepository(mock).GetByTokenHash(ctx, "token-hash")
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, s.UserID, got.UserID)
		assert.Equal(t, "auth-hash", got.AuthHash)
		assert.Equal(t, s.ExpiresAt, got.ExpiresAt)
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM web_sessions WHERE token_hash`).WithArgs("missing").
			WillReturnRows(pgxmock.NewRows(sessionCols))

		_, err := NewWebSessionRepository(mock).GetByTokenHash(ctx, "missing")
		assert.True(t, errors.Is(err, auth.ErrNotFound))
	})

	t.Run("corrupt user id", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`FROM web_sessions WHERE token_hash`).WithArgs("token-hash").
			WillReturnRows(pgxmock.NewRows(sessionCols).AddRow(
				s.ID.String(), "bogus", s.TokenHash, s.AuthHash, s.UserAgent, s.IPAddress,
				s.ExpiresAt, s.CreatedAt, s.LastSeenAt))

		_, err := NewWebSessionRepository(mock).GetByTokenHash(ctx, "token-hash")
		errutil.AssertErrorCode(t, err, "SESSION_INVALID_USER_ID")
	})
}

func TestWebSessionRepository_Updates(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	seen := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)

	mock := newMockPool(t)
	mock.ExpectExec(`UPDATE web_sessions SET last_seen_at`).WithArgs(id.String(), seen).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE web_sessions SET auth_hash`).WithArgs(id.String(), "rekeyed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE web_sessions SET auth_hash`).WithArgs(id.String(), "rekeyed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`UPDATE web_sessions SET last_seen_at`).WithArgs(id.String(), seen).
		WillReturnError(errors.New("deadlock detected"))

	repo := NewWebSessionRepository(mock)
	require.NoError(t, repo.UpdateLastSeen(ctx, id, seen))
	require.NoError(t, repo.UpdateAuthHash(ctx, id, "rekeyed"))
	assert.True(t, errors.Is(repo.UpdateAuthHash(ctx, id, "rekeyed"), auth.ErrNotFound))
	errutil.AssertErrorCode(t, repo.UpdateLastSeen(ctx, id, seen), "SESSION_UPDATE_LAST_SEEN_FAILED")
}

func TestWebSessionRepository_RekeyUser(t *testing.T) {
	ctx := context.Background()
	userID := ulid.Make()

	mock := newMockPool(t)
	mock.ExpectExec(`UPDATE web_sessions SET auth_hash = \$3 WHERE user_id = \$1 AND auth_hash = \$2`).
		WithArgs(userID.String(), "old", "new").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectExec(`UPDATE web_sessions SET auth_hash`).
		WithArgs(userID.String(), "old", "new").
		WillReturnError(errors.New("connection reset"))

	repo := NewWebSessionRepository(mock)
	n, err := repo.RekeyUser(ctx, userID, "old", "new")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repo.RekeyUser(ctx, userID, "old", "new")
	errutil.AssertErrorCode(t, err, "SESSION_REKEY_FAILED")
}

func TestWebSessionRepository_Deletes(t *testing.T) {
	ctx := context.Background()
	id := ulid.Make()
	userID := ulid.Make()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock := newMockPool(t)
	mock.ExpectExec(`DELETE FROM web_sessions WHERE id`).WithArgs(id.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM web_sessions WHERE user_id`).WithArgs(userID.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`DELETE FROM web_sessions WHERE expires_at`).WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	repo := NewWebSessionRepository(mock)
	repo.now = func() time.Time { return now }

	assert.True(t, errors.Is(repo.Delete(ctx, id), auth.ErrNotFound))
	require.NoError(t, repo.DeleteByUser(ctx, userID), "no sessions is not an error")

	n, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

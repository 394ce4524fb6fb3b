// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/pkg/errutil"
)

func TestGenerateSessionToken(t *testing.T) {
	t.Run("generates secure token", func(t *testing.T) {
		token, hash, err := auth.GenerateSessionToken()
		require.NoError(t, err)
		assert.Len(t, token, 64) // 32 bytes hex-encoded
		assert.Len(t, hash, 64)
		assert.Equal(t, auth.HashSessionToken(token), hash)
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		token1, hash1, err := auth.GenerateSessionToken()
		require.NoError(t, err)
		token2, hash2, err := auth.GenerateSessionToken()
		require.NoError(t, err)

		assert.NotEqual(t, token1, token2)
		assert.NotEqual(t, hash1, hash2)
	})
}

func TestSessionAuthHash(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")

	a := auth.SessionAuthHash(secret, "$argon2id$first")
	assert.Equal(t, a, auth.SessionAuthHash(secret, "$argon2id$first"))
	assert.NotEqual(t, a, auth.SessionAuthHash(secret, "$argon2id$second"))
	assert.NotEqual(t, a, auth.SessionAuthHash([]byte("another-secret-another-secret-xx"), "$argon2id$first"))
}

func TestWebSession_IsExpiredAt(t *testing.T) {
	expires := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &auth.WebSession{ExpiresAt: expires}

	assert.False(t, s.IsExpiredAt(expires.Add(-time.Second)))
	assert.False(t, s.IsExpiredAt(expires))
	assert.True(t, s.IsExpiredAt(expires.Add(time.Second)))
}

func TestWebSession_IsExpired(t *testing.T) {
	assert.True(t, (&auth.WebSession{ExpiresAt: time.Now().Add(-time.Minute)}).IsExpired())
	assert.False(t, (&auth.WebSession{ExpiresAt: time.Now().Add(time.Minute)}).IsExpired())
}

func TestNewWebSession(t *testing.T) {
	userID := ulid.Make()
	expires := time.Now().Add(time.Hour)

	t.Run("valid session", func(t *testing.T) {
		s, err := auth.NewWebSession(userID, "tokenhash", "authhash", "Mozilla/5.0", "10.0.0.1", expires)
		require.NoError(t, err)
		assert.NotEqual(t, ulid.ULID{}, s.ID)
		assert.Equal(t, userID, s.UserID)
		assert.Equal(t, "tokenhash", s.TokenHash)
		assert.Equal(t, "authhash", s.AuthHash)
		assert.Equal(t, "Mozilla/5.0", s.UserAgent)
		assert.Equal(t, "10.0.0.1", s.IPAddress)
		assert.True(t, expires.Equal(s.ExpiresAt))
		assert.Equal(t, s.CreatedAt, s.LastSeenAt)
	})

	tests := []struct {
		name     string
		userID   ulid.ULID
		token    string
		authHash string
		expires  time.Time
		code     string
	}{
		{name: "zero user", userID: ulid.ULID{}, token: "t", authHash: "a", expires: expires, code: "SESSION_INVALID_USER"},
		{name: "empty token hash", userID: userID, token: "", authHash: "a", expires: expires, code: "SESSION_INVALID_HASH"},
		{name: "empty auth hash", userID: userID, token: "t", authHash: "", expires: expires, code: "SESSION_INVALID_AUTH_HASH"},
		{name: "zero expiry", userID: userID, token: "t", authHash: "a", expires: time.Time{}, code: "SESSION_INVALID_EXPIRY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := auth.NewWebSession(tt.userID, tt.token, tt.authHash, "", "", tt.expires)
			assert.Nil(t, s)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

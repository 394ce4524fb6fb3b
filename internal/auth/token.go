// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// Reset token configuration.
const (
	DefaultResetTokenTTL = 72 * time.Hour
	MinSecretKeyLength   = 32
)

// resetClaims is the JWT payload of a password reset token. State is a
// fingerprint of the user fields a reset mutates, so the token stops
// verifying as soon as any of them changes.
type resetClaims struct {
	State string `json:"st"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies stateless password reset tokens.
// Nothing is stored: verification recomputes the state fingerprint from the
// user as it is now.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService. ttl <= 0 selects DefaultResetTokenTTL.
func NewTokenService(secret []byte, ttl time.Duration) (*TokenService, error) {
	if len(secret) < MinSecretKeyLength {
		return nil, oops.Code("TOKEN_SECRET_INVALID").
			With("min_length", MinSecretKeyLength).
			Errorf("secret key must be at least %d bytes", MinSecretKeyLength)
	}
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}
	return &TokenService{secret: secret, ttl: ttl, now: time.Now}, nil
}

// WithClock replaces the time source. Intended for tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	cp := *s
	cp.now = now
	return &cp
}

// TTL returns how long issued tokens stay valid.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue returns a signed token bound to the user's current state.
func (s *TokenService) Issue(user *User) (string, error) {
	now := s.now()
	claims := resetClaims{
		State: s.fingerprint(user),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", oops.Code("TOKEN_ISSUE_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return token, nil
}

// Verify reports whether token was issued for user, has not expired, and
// was issued while the user's password, last login and email were what
// they are now.
func (s *TokenService) Verify(user *User, token string) bool {
	if user == nil || token == "" {
		return false
	}

	claims := &resetClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithSubject(user.ID.String()),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return false
	}

	return hmac.Equal([]byte(claims.State), []byte(s.fingerprint(user)))
}

// fingerprint hashes the mutable user state the token is bound to.
func (s *TokenService) fingerprint(user *User) string {
	lastLogin := ""
	if user.LastLoginAt != nil {
		lastLogin = strconv.FormatInt(user.LastLoginAt.Unix(), 10)
	}

	mac := hmac.New(sha256.New, s.secret)
	for _, part := range []string{"password-reset", user.ID.String(), user.PasswordHash, lastLogin, user.Email} {
		mac.Write([]byte(part))
		mac.Write([]byte{0})
	}
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

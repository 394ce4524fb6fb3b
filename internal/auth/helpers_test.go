// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/events"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

// memUsers is an in-memory UserRepository with the same case rules as the
// SQL implementations.
type memUsers struct {
	mu    sync.Mutex
	users map[ulid.ULID]auth.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[ulid.ULID]auth.User)}
}

func (m *memUsers) Create(_ context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return auth.DuplicateEmailError()
		}
		if strings.EqualFold(existing.Username, u.Username) {
			return auth.DuplicateUsernameError()
		}
	}
	m.users[u.ID] = *u
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &u, nil
}

func (m *memUsers) find(match func(auth.User) bool) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	return m.find(func(u auth.User) bool { return strings.EqualFold(u.Username, username) })
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	return m.find(func(u auth.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *memUsers) Update(_ context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.ID]
	if !ok {
		return auth.ErrNotFound
	}
	existing.IsActive = u.IsActive
	existing.IsStaff = u.IsStaff
	existing.IsSuperuser = u.IsSuperuser
	existing.FailedAttempts = u.FailedAttempts
	existing.LockedUntil = u.LockedUntil
	existing.LastLoginAt = u.LastLoginAt
	existing.UpdatedAt = u.UpdatedAt
	m.users[u.ID] = existing
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id ulid.ULID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

func (m *memUsers) Delete(_ context.Context, id ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

// memSessions is an in-memory WebSessionRepository.
type memSessions struct {
	mu       sync.Mutex
	sessions map[ulid.ULID]auth.WebSession
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[ulid.ULID]auth.WebSession)}
}

func (m *memSessions) Create(_ context.Context, s *auth.WebSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *memSessions) GetByTokenHash(_ context.Context, tokenHash string) (*auth.WebSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TokenHash == tokenHash {
			return &s, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memSessions) UpdateLastSeen(_ context.Context, id ulid.ULID, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return auth.ErrNotFound
	}
	s.LastSeenAt = lastSeen
	m.sessions[id] = s
	return nil
}

func (m *memSessions) UpdateAuthHash(_ context.Context, id ulid.ULID, authHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return auth.ErrNotFound
	}
	s.AuthHash = authHash
	m.sessions[id] = s
	return nil
}

func (m *memSessions) RekeyUser(_ context.Context, userID ulid.ULID, oldAuthHash, newAuthHash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.UserID == userID && s.AuthHash == oldAuthHash {
			s.AuthHash = newAuthHash
			m.sessions[id] = s
			n++
		}
	}
	return n, nil
}

func (m *memSessions) Delete(_ context.Context, id ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *memSessions) DeleteByUser(_ context.Context, userID ulid.ULID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memSessions) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.IsExpired() {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func (m *memSessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// sentMessage is one message captured by recordingNotifier.
type sentMessage struct {
	To      string
	Subject string
	Body    string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMessage{To: to, Subject: subject, Body: body})
	return nil
}

func (n *recordingNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestPolicy(t *testing.T) *auth.StrengthPolicy {
	t.Helper()
	policy, err := auth.NewPasswordPolicy(fastHasher(), auth.DefaultMinPasswordLength)
	require.NoError(t, err)
	return policy
}

func newTestStore(t *testing.T, users auth.UserRepository) *auth.CredentialStore {
	t.Helper()
	store, err := auth.NewCredentialStore(users, newTestPolicy(t))
	require.NoError(t, err)
	return store
}

// mustCreateUser registers a user directly through the store.
func mustCreateUser(t *testing.T, store *auth.CredentialStore, email, username, password string) *auth.User {
	t.Helper()
	user, err := store.Create(context.Background(), email, username, password)
	require.NoError(t, err)
	return user
}

func fieldErrors(t *testing.T, err error) auth.FieldErrors {
	t.Helper()
	fields, ok := auth.FieldErrorsOf(err)
	require.True(t, ok, "expected field errors, got %v", err)
	return fields
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

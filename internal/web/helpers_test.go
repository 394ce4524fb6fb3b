// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web_test

import (
	"context"
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/auth/sqlite"
	"github.com/holomush/accounts/internal/events"
	"github.com/holomush/accounts/internal/web"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

const linkBase = "http://accounts.test/"

type sentMail struct {
	to, subject, body string
}

// captureNotifier records reset emails instead of sending them.
type captureNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *captureNotifier) Send(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (n *captureNotifier) last(t *testing.T) sentMail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent, "no email was sent")
	return n.sent[len(n.sent)-1]
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type harness struct {
	ts       *httptest.Server
	client   *http.Client
	store    *auth.CredentialStore
	notifier *captureNotifier
}

// newHarness wires the real services over an in-memory sqlite store.
func newHarness(t *testing.T, csrf bool) *harness {
	t.Helper()

	db, err := sqlite.Open(sqlite.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close(db) })

	policy, err := auth.NewPasswordPolicy(auth.NewArgon2idHasherWithParams(1, 1024, 1), auth.DefaultMinPasswordLength)
	require.NoError(t, err)
	store, err := auth.NewCredentialStore(sqlite.NewUserRepository(db), policy)
	require.NoError(t, err)
	sessions := sqlite.NewWebSessionRepository(db)

	svc, err := auth.NewAuthService(store, sessions, testSecret, auth.WithEvents(events.Nop{}))
	require.NoError(t, err)
	tokens, err := auth.NewTokenService(testSecret, auth.DefaultResetTokenTTL)
	require.NoError(t, err)
	notifier := &captureNotifier{}
	resets, err := auth.NewPasswordResetService(store, sessions, tokens, notifier, linkBase, auth.WithEvents(events.Nop{}))
	require.NoError(t, err)

	srv, err := web.New(web.Options{Auth: svc, Resets: resets, CSRF: csrf})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &harness{ts: ts, client: newClient(t), store: store, notifier: notifier}
}

// newClient keeps cookies and stops at the first redirect so tests can see it.
func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

type response struct {
	status   int
	location string
	body     string
}

func (h *harness) do(t *testing.T, client *http.Client, req *http.Request) response {
	t.Helper()
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{status: resp.StatusCode, location: resp.Header.Get("Location"), body: string(body)}
}

func (h *harness) get(t *testing.T, path string) response {
	t.Helper()
	return h.getWith(t, h.client, path)
}

func (h *harness) getWith(t *testing.T, client *http.Client, path string) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.ts.URL+path, nil)
	require.NoError(t, err)
	return h.do(t, client, req)
}

func (h *harness) post(t *testing.T, path string, form url.Values) response {
	t.Helper()
	return h.postWith(t, h.client, path, form)
}

func (h *harness) postWith(t *testing.T, client *http.Client, path string, form url.Values) response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.ts.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(t, client, req)
}

func (h *harness) signup(t *testing.T, email, username, password string) response {
	t.Helper()
	return h.post(t, "/signup", url.Values{
		"email":     {email},
		"username":  {username},
		"password1": {password},
		"password2": {password},
	})
}

func (h *harness) login(t *testing.T, identifier, password string) response {
	t.Helper()
	return h.post(t, "/", url.Values{"email_or_username": {identifier}, "password": {password}})
}

var hrefPattern = regexp.MustCompile(`href="([^"]+)"`)

// resetPath pulls the reset link out of an email body and returns its
// path and query, relative to the test server.
func resetPath(t *testing.T, body string) string {
	t.Helper()
	m := hrefPattern.FindStringSubmatch(body)
	require.Len(t, m, 2, "no link in email body")
	link, err := url.Parse(html.UnescapeString(m[1]))
	require.NoError(t, err)
	return link.RequestURI()
}

// escaped matches text as html/template writes it into a page.
func escaped(s string) string {
	return strings.ReplaceAll(html.EscapeString(s), "+", "&#43;")
}

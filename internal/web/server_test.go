// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web_test

import (
	"net/http"
	"net/url"
	"regexp"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/web"
)

const (
	aliceEmail    = "a@b.com"
	aliceName     = "alice"
	alicePassword = "Str0ngPass!"
)

func TestNew_RequiresServices(t *testing.T) {
	_, err := web.New(web.Options{})
	assert.Error(t, err)
}

func TestRegisterLoginLogout(t *testing.T) {
	h := newHarness(t, false)

	resp := h.signup(t, aliceEmail, aliceName, alicePassword)
	require.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/", resp.location)

	resp = h.get(t, "/")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, web.FlashAccountCreated)

	resp = h.get(t, "/")
	assert.NotContains(t, resp.body, web.FlashAccountCreated, "flash is shown once")

	resp = h.login(t, aliceName, alicePassword)
	require.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/dashboard", resp.location)

	resp = h.get(t, "/dashboard")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, "Welcome, alice.")

	resp = h.get(t, "/profile")
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, aliceEmail)

	for _, path := range []string{"/", "/signup"} {
		resp = h.get(t, path)
		assert.Equal(t, http.StatusFound, resp.status, path)
		assert.Equal(t, "/dashboard", resp.location, path)
	}

	resp = h.post(t, "/logout", url.Values{})
	require.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/", resp.location)

	resp = h.get(t, "/dashboard")
	assert.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/", resp.location)
}

func TestLogin_ByEmail(t *testing.T) {
	h := newHarness(t, false)
	h.signup(t, aliceEmail, aliceName, alicePassword)

	resp := h.login(t, aliceEmail, alicePassword)
	assert.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/dashboard", resp.location)
}

func TestLogin_Rejected(t *testing.T) {
	h := newHarness(t, false)
	h.signup(t, aliceEmail, aliceName, alicePassword)

	tests := []struct {
		name       string
		identifier string
		password   string
		want       string
	}{
		{name: "wrong password", identifier: aliceName, password: "wrong-password", want: auth.MsgInvalidCredentials},
		{name: "unknown username", identifier: "bob", password: alicePassword, want: auth.MsgInvalidCredentials},
		{name: "unknown email", identifier: "bob@b.com", password: alicePassword, want: auth.MsgInvalidCredentials},
		{name: "unrecognized identifier", identifier: "not a name!", password: alicePassword, want: auth.MsgInvalidCredentials},
		{name: "empty identifier", identifier: "", password: alicePassword, want: auth.MsgRequired},
		{name: "empty password", identifier: aliceName, password: "", want: auth.MsgRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.login(t, tt.identifier, tt.password)
			assert.Equal(t, http.StatusOK, resp.status)
			assert.Contains(t, resp.body, escaped(tt.want))
		})
	}

	resp := h.get(t, "/dashboard")
	assert.Equal(t, http.StatusFound, resp.status, "no session after failures")
}

func TestSignup_Rejected(t *testing.T) {
	h := newHarness(t, false)
	h.signup(t, aliceEmail, aliceName, alicePassword)

	tests := []struct {
		name     string
		form     url.Values
		want     string
		keepsVal string
	}{
		{
			name: "password mismatch",
			form: url.Values{"email": {"c@d.com"}, "username": {"carol"}, "password1": {alicePassword}, "password2": {"Other0ne!"}},
			want: auth.MsgPasswordMismatch, keepsVal: "carol",
		},
		{
			name: "duplicate email in other case",
			form: url.Values{"email": {"A@B.com"}, "username": {"carol"}, "password1": {alicePassword}, "password2": {alicePassword}},
			want: auth.MsgDuplicateEmail,
		},
		{
			name: "duplicate username in other case",
			form: url.Values{"email": {"c@d.com"}, "username": {"ALICE"}, "password1": {alicePassword}, "password2": {alicePassword}},
			want: auth.MsgDuplicateUsername,
		},
		{
			name: "invalid email",
			form: url.Values{"email": {"not-an-email"}, "username": {"carol"}, "password1": {alicePassword}, "password2": {alicePassword}},
			want: "Enter a valid email address.",
		},
		{
			name: "missing fields",
			form: url.Values{"email": {"c@d.com"}},
			want: auth.MsgRequired, keepsVal: "c@d.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.post(t, "/signup", tt.form)
			assert.Equal(t, http.StatusOK, resp.status)
			assert.Contains(t, resp.body, escaped(tt.want))
			if tt.keepsVal != "" {
				assert.Contains(t, resp.body, `value="`+tt.keepsVal+`"`)
			}
		})
	}
}

func TestLogout_RequiresPost(t *testing.T) {
	h := newHarness(t, false)

	resp := h.get(t, "/logout")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.status)

	resp = h.post(t, "/logout", url.Values{})
	assert.Equal(t, http.StatusFound, resp.status, "anonymous logout still redirects")
}

func TestGatedPagesRedirectAnonymous(t *testing.T) {
	h := newHarness(t, false)

	for _, path := range []string{"/dashboard", "/profile", "/change-password"} {
		resp := h.get(t, path)
		assert.Equal(t, http.StatusFound, resp.status, path)
		assert.Equal(t, "/", resp.location, path)
	}
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t, false)
	h.signup(t, aliceEmail, aliceName, alicePassword)
	h.login(t, aliceName, alicePassword)

	other := newClient(t)
	resp := h.postWith(t, other, "/", url.Values{"email_or_username": {aliceName}, "password": {alicePassword}})
	require.Equal(t, http.StatusFound, resp.status)

	resp = h.post(t, "/change-password", url.Values{
		"old_password": {"wrong-password"}, "new_password1": {"NewPass1!"}, "new_password2": {"NewPass1!"},
	})
	assert.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, escaped(auth.MsgWrongOldPassword))

	resp = h.post(t, "/change-password", url.Values{
		"old_password": {alicePassword}, "new_password1": {"NewPass1!"}, "new_password2": {"Mismatch1!"},
	})
	assert.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, escaped(auth.MsgPasswordMismatch))

	resp = h.post(t, "/change-password", url.Values{
		"old_password": {alicePassword}, "new_password1": {"NewPass1!"}, "new_password2": {"NewPass1!"},
	})
	require.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/dashboard", resp.location)

	resp = h.get(t, "/dashboard")
	require.Equal(t, http.StatusOK, resp.status, "current session survives the change")
	assert.Contains(t, resp.body, web.FlashPasswordChanged)

	resp = h.getWith(t, other, "/dashboard")
	assert.Equal(t, http.StatusFound, resp.status, "other sessions are invalidated")

	third := newClient(t)
	resp = h.postWith(t, third, "/", url.Values{"email_or_username": {aliceName}, "password": {alicePassword}})
	assert.Equal(t, http.StatusOK, resp.status, "old password no longer works")
	resp = h.postWith(t, third, "/", url.Values{"email_or_username": {aliceName}, "password": {"NewPass1!"}})
	assert.Equal(t, http.StatusFound, resp.status)
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t, false)
	h.signup(t, aliceEmail, aliceName, alicePassword)

	loggedIn := newClient(t)
	resp := h.postWith(t, loggedIn, "/", url.Values{"email_or_username": {aliceName}, "password": {alicePassword}})
	require.Equal(t, http.StatusFound, resp.status)

	resp = h.post(t, "/forgot-password", url.Values{"email": {aliceEmail}})
	require.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/", resp.location)
	assert.Contains(t, h.get(t, "/").body, web.FlashResetRequested)

	mail := h.notifier.last(t)
	assert.Equal(t, aliceEmail, mail.to)
	assert.Equal(t, auth.ResetEmailSubject, mail.subject)
	assert.Contains(t, mail.body, aliceName)
	link := resetPath(t, mail.body)

	resp = h.get(t, link)
	require.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, `name="new_password1"`)

	resp = h.post(t, link, url.Values{"new_password1": {"NewPass1!"}, "new_password2": {"Other1!!x"}})
	assert.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, escaped(auth.MsgPasswordMismatch))

	resp = h.post(t, link, url.Values{"new_password1": {"NewPass1!"}, "new_password2": {"NewPass1!"}})
	require.Equal(t, http.StatusFound, resp.status)
	assert.Equal(t, "/", resp.location)
	assert.Contains(t, h.get(t, "/").body, web.FlashPasswordWasReset)

	resp = h.get(t, link)
	assert.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, escaped(auth.MsgInvalidLink), "the link is consumed")
	assert.NotContains(t, resp.body, `name="new_password1"`)

	resp = h.post(t, link, url.Values{"new_password1": {"Again1!x"}, "new_password2": {"Again1!x"}})
	assert.Contains(t, resp.body, escaped(auth.MsgInvalidLink), "replayed submission is rejected")

	resp = h.getWith(t, loggedIn, "/dashboard")
	assert.Equal(t, http.StatusFound, resp.status, "sessions are cleared by the reset")

	assert.Equal(t, http.StatusOK, h.login(t, aliceName, alicePassword).status, "old password rejected")
	assert.Equal(t, http.StatusFound, h.login(t, aliceName, "NewPass1!").status)
}

func TestForgotPassword_Rejected(t *testing.T) {
	h := newHarness(t, false)
	h.signup(t, aliceEmail, aliceName, alicePassword)

	resp := h.post(t, "/forgot-password", url.Values{"email": {"nobody@b.com"}})
	assert.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, escaped(auth.MsgUnknownAccount))

	resp = h.post(t, "/forgot-password", url.Values{"email": {"nope"}})
	assert.Equal(t, http.StatusOK, resp.status)
	assert.Contains(t, resp.body, "Enter a valid email address.")

	resp = h.post(t, "/forgot-password", url.Values{})
	assert.Contains(t, resp.body, escaped(auth.MsgRequired))

	assert.Zero(t, h.notifier.count())
}

func TestResetPassword_InvalidLinks(t *testing.T) {
	h := newHarness(t, false)
	h.signup(t, aliceEmail, aliceName, alicePassword)
	h.post(t, "/forgot-password", url.Values{"email": {aliceEmail}})
	link, err := url.Parse(resetPath(t, h.notifier.last(t).body))
	require.NoError(t, err)
	base := link.Query().Get(auth.ResetParamID)

	paths := map[string]string{
		"missing params": "/reset-password",
		"bad base64":     "/reset-password?base=%25%25%25&token=x",
		"unknown user":   "/reset-password?base=" + auth.EncodeUserID(ulid.Make()) + "&token=x",
		"wrong token":    "/reset-password?base=" + base + "&token=not.a.token",
	}
	for name, path := range paths {
		t.Run(name, func(t *testing.T) {
			resp := h.get(t, path)
			assert.Equal(t, http.StatusOK, resp.status)
			assert.Contains(t, resp.body, escaped(auth.MsgInvalidLink))
			assert.NotContains(t, resp.body, `name="new_password1"`)

			resp = h.post(t, path, url.Values{"new_password1": {"NewPass1!"}, "new_password2": {"NewPass1!"}})
			assert.Equal(t, http.StatusOK, resp.status)
			assert.Contains(t, resp.body, escaped(auth.MsgInvalidLink))
		})
	}

	assert.Equal(t, http.StatusFound, h.login(t, aliceName, alicePassword).status, "password unchanged")
}

func TestTrailingSlashAndNotFound(t *testing.T) {
	h := newHarness(t, false)

	assert.Equal(t, http.StatusOK, h.get(t, "/signup/").status)
	assert.Equal(t, http.StatusOK, h.get(t, "/forgot-password/").status)
	assert.Equal(t, http.StatusNotFound, h.get(t, "/nope").status)
}

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

func TestCSRF(t *testing.T) {
	h := newHarness(t, true)
	form := url.Values{
		"email": {aliceEmail}, "username": {aliceName}, "password1": {alicePassword}, "password2": {alicePassword},
	}

	resp := h.post(t, "/signup", form)
	assert.Contains(t, []int{http.StatusBadRequest, http.StatusForbidden}, resp.status, "post without token")

	page := h.get(t, "/signup")
	require.Equal(t, http.StatusOK, page.status)
	m := csrfPattern.FindStringSubmatch(page.body)
	require.Len(t, m, 2, "signup form carries a csrf token")

	form.Set(web.CSRFField, "forged")
	resp = h.post(t, "/signup", form)
	assert.Equal(t, http.StatusForbidden, resp.status)

	form.Set(web.CSRFField, m[1])
	resp = h.post(t, "/signup", form)
	assert.Equal(t, http.StatusFound, resp.status)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"encoding/base64"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Success messages shown once on the page after a redirect.
const (
	FlashAccountCreated   = "Account created successfully. Please log in."
	FlashPasswordChanged  = "Password changed successfully."
	FlashResetRequested   = "If an account exists for that address, a reset link has been sent."
	FlashPasswordWasReset = "Your password has been reset. Please log in."
)

func (s *Server) setFlash(c echo.Context, msg string) {
	c.SetCookie(&http.Cookie{
		Name:     FlashCookie,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(msg)),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash returns the pending message, if any, and expires the cookie.
func (s *Server) popFlash(c echo.Context) string {
	cookie, err := c.Cookie(FlashCookie)
	if err != nil || cookie.Value == "" {
		return ""
	}
	s.clearCookie(c, FlashCookie)

	msg, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return ""
	}
	return string(msg)
}

// redirectWithFlash stores msg for the next page and redirects to path.
func (s *Server) redirectWithFlash(c echo.Context, path, msg string) error {
	s.setFlash(c, msg)
	return c.Redirect(http.StatusFound, path)
}

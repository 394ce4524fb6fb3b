// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/observability"
	"github.com/holomush/accounts/pkg/errutil"
)

// reRender shows the form again with field errors. Re-rendered forms answer 200.
func (s *Server) reRender(c echo.Context, tmpl string, p *page, fields auth.FieldErrors, values map[string]string) error {
	p.Errors = fields
	p.Values = values
	return c.Render(http.StatusOK, tmpl, p)
}

func (s *Server) loginPage(c echo.Context) error {
	return c.Render(http.StatusOK, "login.html", s.newPage(c, "Log in"))
}

func (s *Server) login(c echo.Context) error {
	var form loginForm
	fields, err := s.bindForm(c, &form)
	if err != nil {
		return err
	}
	values := map[string]string{"email_or_username": form.EmailOrUsername}
	if fields != nil {
		observability.RecordLogin(observability.ResultRejected)
		return s.reRender(c, "login.html", s.newPage(c, "Log in"), fields, values)
	}

	req := c.Request()
	session, token, _, err := s.auth.Login(req.Context(), auth.Credentials{
		Identifier: form.EmailOrUsername,
		Password:   form.Password,
		UserAgent:  req.UserAgent(),
		IPAddress:  c.RealIP(),
	})
	if err != nil {
		if fields, ok := auth.FieldErrorsOf(err); ok {
			observability.RecordLogin(observability.ResultRejected)
			return s.reRender(c, "login.html", s.newPage(c, "Log in"), fields, values)
		}
		observability.RecordLogin(observability.ResultError)
		return err
	}

	observability.RecordLogin(observability.ResultSuccess)
	s.setSessionCookie(c, token, session)
	return c.Redirect(http.StatusFound, "/dashboard")
}

func (s *Server) signupPage(c echo.Context) error {
	return c.Render(http.StatusOK, "signup.html", s.newPage(c, "Sign up"))
}

func (s *Server) signup(c echo.Context) error {
	var form signupForm
	fields, err := s.bindForm(c, &form)
	if err != nil {
		return err
	}
	values := map[string]string{"email": form.Email, "username": form.Username}
	if fields != nil {
		observability.RecordRegistration(observability.ResultRejected)
		return s.reRender(c, "signup.html", s.newPage(c, "Sign up"), fields, values)
	}

	_, err = s.auth.Register(c.Request().Context(), auth.Registration{
		Email:     form.Email,
		Username:  form.Username,
		Password1: form.Password1,
		Password2: form.Password2,
	})
	if err != nil {
		if fields, ok := auth.FieldErrorsOf(err); ok {
			observability.RecordRegistration(observability.ResultRejected)
			return s.reRender(c, "signup.html", s.newPage(c, "Sign up"), fields, values)
		}
		observability.RecordRegistration(observability.ResultError)
		return err
	}

	observability.RecordRegistration(observability.ResultSuccess)
	return s.redirectWithFlash(c, "/", FlashAccountCreated)
}

func (s *Server) dashboard(c echo.Context) error {
	return c.Render(http.StatusOK, "dashboard.html", s.newPage(c, "Dashboard"))
}

func (s *Server) profile(c echo.Context) error {
	return c.Render(http.StatusOK, "profile.html", s.newPage(c, "Profile"))
}

// logout ends the current session, if any, and always lands on the login page.
func (s *Server) logout(c echo.Context) error {
	if session := currentSession(c); session != nil {
		if err := s.auth.Logout(c.Request().Context(), session); err != nil {
			errutil.LogError(s.logger, "logout failed", err)
		}
	}
	s.clearCookie(c, SessionCookie)
	return c.Redirect(http.StatusFound, "/")
}

func (s *Server) changePasswordPage(c echo.Context) error {
	return c.Render(http.StatusOK, "change_password.html", s.newPage(c, "Change password"))
}

func (s *Server) changePassword(c echo.Context) error {
	var form changePasswordForm
	fields, err := s.bindForm(c, &form)
	if err != nil {
		return err
	}
	if fields != nil {
		return s.reRender(c, "change_password.html", s.newPage(c, "Change password"), fields, nil)
	}

	err = s.auth.ChangePassword(c.Request().Context(), currentSession(c), currentUser(c), auth.PasswordChange{
		OldPassword:  form.OldPassword,
		NewPassword1: form.NewPassword1,
		NewPassword2: form.NewPassword2,
	})
	if err != nil {
		if fields, ok := auth.FieldErrorsOf(err); ok {
			return s.reRender(c, "change_password.html", s.newPage(c, "Change password"), fields, nil)
		}
		return err
	}
	return s.redirectWithFlash(c, "/dashboard", FlashPasswordChanged)
}

func (s *Server) forgotPasswordPage(c echo.Context) error {
	return c.Render(http.StatusOK, "forgot_password.html", s.newPage(c, "Forgot password"))
}

func (s *Server) forgotPassword(c echo.Context) error {
	var form forgotPasswordForm
	fields, err := s.bindForm(c, &form)
	if err != nil {
		return err
	}
	values := map[string]string{"email": form.Email}
	if fields != nil {
		return s.reRender(c, "forgot_password.html", s.newPage(c, "Forgot password"), fields, values)
	}

	if err := s.resets.RequestReset(c.Request().Context(), form.Email); err != nil {
		if fields, ok := auth.FieldErrorsOf(err); ok {
			if errutil.HasCode(err, auth.CodeUnknownAccount) {
				observability.RecordPasswordReset(observability.StageUnknown)
			}
			return s.reRender(c, "forgot_password.html", s.newPage(c, "Forgot password"), fields, values)
		}
		return err
	}

	observability.RecordPasswordReset(observability.StageRequested)
	return s.redirectWithFlash(c, "/", FlashResetRequested)
}

// resetParams reads the link parameters. The set-password form posts back to
// the same URL, so both GET and POST find them in the query string.
func resetParams(c echo.Context) (encodedID, token string) {
	return c.QueryParam(auth.ResetParamID), c.QueryParam(auth.ResetParamToken)
}

func (s *Server) invalidLink(c echo.Context) error {
	observability.RecordPasswordReset(observability.StageInvalid)
	return c.Render(http.StatusOK, "reset_invalid.html", s.newPage(c, "Password reset unsuccessful"))
}

func (s *Server) resetPage(c echo.Context, encodedID, token string) *page {
	p := s.newPage(c, "Enter new password")
	p.ResetBase = encodedID
	p.ResetToken = token
	return p
}

func (s *Server) resetPasswordPage(c echo.Context) error {
	encodedID, token := resetParams(c)
	if _, err := s.resets.VerifyLink(c.Request().Context(), encodedID, token); err != nil {
		if errutil.HasCode(err, auth.CodeInvalidLink) {
			return s.invalidLink(c)
		}
		return err
	}
	return c.Render(http.StatusOK, "reset_password.html", s.resetPage(c, encodedID, token))
}

func (s *Server) resetPassword(c echo.Context) error {
	encodedID, token := resetParams(c)

	var form resetPasswordForm
	fields, err := s.bindForm(c, &form)
	if err != nil {
		return err
	}
	if fields != nil {
		// The link is checked before any form errors are shown.
		if _, err := s.resets.VerifyLink(c.Request().Context(), encodedID, token); err != nil {
			if errutil.HasCode(err, auth.CodeInvalidLink) {
				return s.invalidLink(c)
			}
			return err
		}
		return s.reRender(c, "reset_password.html", s.resetPage(c, encodedID, token), fields, nil)
	}

	err = s.resets.ResetPassword(c.Request().Context(), encodedID, token, auth.NewPassword{
		Password1: form.NewPassword1,
		Password2: form.NewPassword2,
	})
	if err != nil {
		if errutil.HasCode(err, auth.CodeInvalidLink) {
			return s.invalidLink(c)
		}
		if fields, ok := auth.FieldErrorsOf(err); ok {
			return s.reRender(c, "reset_password.html", s.resetPage(c, encodedID, token), fields, nil)
		}
		return err
	}

	observability.RecordPasswordReset(observability.StageCompleted)
	return s.redirectWithFlash(c, "/", FlashPasswordWasReset)
}

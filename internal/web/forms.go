// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
)

type signupForm struct {
	Email     string `form:"email" validate:"required"`
	Username  string `form:"username" validate:"required"`
	Password1 string `form:"password1" validate:"required"`
	Password2 string `form:"password2" validate:"required"`
}

type loginForm struct {
	EmailOrUsername string `form:"email_or_username" validate:"required"`
	Password        string `form:"password" validate:"required"`
}

type changePasswordForm struct {
	OldPassword  string `form:"old_password" validate:"required"`
	NewPassword1 string `form:"new_password1" validate:"required"`
	NewPassword2 string `form:"new_password2" validate:"required"`
}

type forgotPasswordForm struct {
	Email string `form:"email" validate:"required,email"`
}

type resetPasswordForm struct {
	NewPassword1 string `form:"new_password1" validate:"required"`
	NewPassword2 string `form:"new_password2" validate:"required"`
}

// newFormValidator reports field errors under their HTML form names.
func newFormValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bindForm decodes the posted form into dst and runs its tag checks.
// A nil FieldErrors means the form passed.
func (s *Server) bindForm(c echo.Context, dst any) (auth.FieldErrors, error) {
	if err := (&echo.DefaultBinder{}).BindBody(c, dst); err != nil {
		return nil, oops.Code("FORM_BIND_FAILED").With("path", c.Path()).Wrap(err)
	}

	err := s.forms.Struct(dst)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, oops.Code("FORM_VALIDATE_FAILED").With("path", c.Path()).Wrap(err)
	}

	fields := auth.FieldErrors{}
	for _, fe := range verrs {
		fields.Add(fe.Field(), fieldMessage(fe))
	}
	return fields, nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return auth.MsgRequired
	case "email":
		return "Enter a valid email address."
	default:
		return "Enter a valid value."
	}
}

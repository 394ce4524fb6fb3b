// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"sort"
	"strings"

	"github.com/samber/oops"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Error codes shared by the account flows. Handlers map these to responses.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeDuplicateIdentity  = "DUPLICATE_IDENTITY"
	CodeUnknownAccount     = "UNKNOWN_ACCOUNT"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidLink        = "INVALID_OR_EXPIRED_LINK"
	CodeDeliveryFailed     = "DELIVERY_FAILED"
)

// NonFieldKey holds errors that are not tied to a single form field.
const NonFieldKey = ""

// User-facing messages. These are deliberately generic where the flow must
// not reveal which check failed.
const (
	MsgInvalidCredentials = "Please enter a correct username or email and password. Note that both fields may be case-sensitive."
	MsgInvalidLink        = "The password reset link was invalid, possibly because it has already been used or has expired."
	MsgUnknownAccount     = "There is no account registered with that email address."
	MsgDuplicateEmail     = "A user with that email already exists."
	MsgDuplicateUsername  = "A user with that username already exists."
	MsgPasswordMismatch   = "The two password fields didn't match."
	MsgWrongOldPassword   = "Your old password was entered incorrectly. Please enter it again."
	MsgRequired           = "This field is required."
)

// FieldErrors maps form field names to user-facing messages.
type FieldErrors map[string][]string

// Add appends a message for field.
func (f FieldErrors) Add(field, msg string) {
	f[field] = append(f[field], msg)
}

// Merge copies all messages from other into f.
func (f FieldErrors) Merge(other FieldErrors) {
	for field, msgs := range other {
		f[field] = append(f[field], msgs...)
	}
}

// ValidationError carries field-level messages that are shown inline on a form.
type ValidationError struct {
	Fields FieldErrors
}

// Error implements error.
func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		name := k
		if name == NonFieldKey {
			name = "form"
		}
		parts = append(parts, name+": "+strings.Join(e.Fields[k], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// newFieldError builds a coded error carrying a single field message.
func newFieldError(code, field, msg string) error {
	return oops.Code(code).
		With("field", field).
		Wrap(&ValidationError{Fields: FieldErrors{field: {msg}}})
}

// newValidationError wraps accumulated field errors, or returns nil when empty.
func newValidationError(fields FieldErrors) error {
	if len(fields) == 0 {
		return nil
	}
	return oops.Code(CodeValidation).Wrap(&ValidationError{Fields: fields})
}

// DuplicateEmailError reports an email that is already registered.
func DuplicateEmailError() error {
	return newFieldError(CodeDuplicateIdentity, "email", MsgDuplicateEmail)
}

// DuplicateUsernameError reports a username that is already registered.
func DuplicateUsernameError() error {
	return newFieldError(CodeDuplicateIdentity, "username", MsgDuplicateUsername)
}

// InvalidCredentialsError is the single login failure returned for every
// failure branch.
func InvalidCredentialsError() error {
	return newFieldError(CodeInvalidCredentials, NonFieldKey, MsgInvalidCredentials)
}

// InvalidLinkError is returned for every reset link failure.
func InvalidLinkError() error {
	return oops.Code(CodeInvalidLink).Errorf("%s", MsgInvalidLink)
}

// FieldErrorsOf extracts field messages from err, if it carries any.
func FieldErrorsOf(err error) (FieldErrors, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Fields, true
	}
	return nil, false
}

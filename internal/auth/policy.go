// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/samber/oops"
)

// Password strength defaults.
const (
	DefaultMinPasswordLength = 8
	MaxPasswordLength        = 4096

	// similarityThreshold is the longest-common-substring ratio above which a
	// password counts as too close to a user attribute.
	similarityThreshold = 0.7
)

// commonPasswords is a short deny-list of the most frequently leaked passwords.
var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "passw0rd": {},
	"12345678": {}, "123456789": {}, "1234567890": {}, "qwerty123": {},
	"qwertyuiop": {}, "iloveyou": {}, "sunshine": {}, "princess": {},
	"football": {}, "baseball": {}, "welcome1": {}, "admin123": {},
	"letmein1": {}, "trustno1": {}, "superman": {}, "11111111": {},
	"abc12345": {}, "monkey123": {}, "dragon123": {}, "changeme": {},
}

// PasswordPolicy hashes, verifies and judges the strength of passwords.
// Account flows depend on this interface rather than a concrete algorithm.
type PasswordPolicy interface {
	PasswordHasher

	// CheckStrength returns a VALIDATION_FAILED error listing every rule the
	// password breaks. user may be nil; when set, similarity to its
	// username and email is checked.
	CheckStrength(password string, user *User) error
}

// StrengthPolicy is the default PasswordPolicy.
type StrengthPolicy struct {
	PasswordHasher
	minLength int
}

// NewPasswordPolicy combines a hasher with the default strength rules.
// minLength below 1 falls back to DefaultMinPasswordLength.
func NewPasswordPolicy(hasher PasswordHasher, minLength int) (*StrengthPolicy, error) {
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if minLength < 1 {
		minLength = DefaultMinPasswordLength
	}
	return &StrengthPolicy{PasswordHasher: hasher, minLength: minLength}, nil
}

// CheckStrength applies the length, numeric, common-password and similarity rules.
func (p *StrengthPolicy) CheckStrength(password string, user *User) error {
	var msgs []string

	if len(password) < p.minLength {
		msgs = append(msgs, fmt.Sprintf(
			"This password is too short. It must contain at least %d characters.", p.minLength))
	}
	if len(password) > MaxPasswordLength {
		msgs = append(msgs, fmt.Sprintf(
			"This password is too long. It must contain at most %d characters.", MaxPasswordLength))
	}
	if password != "" && isAllDigits(password) {
		msgs = append(msgs, "This password is entirely numeric.")
	}
	if _, common := commonPasswords[strings.ToLower(password)]; common {
		msgs = append(msgs, "This password is too common.")
	}
	if user != nil {
		if attr, similar := similarAttribute(password, user); similar {
			msgs = append(msgs, fmt.Sprintf("The password is too similar to the %s.", attr))
		}
	}

	if len(msgs) == 0 {
		return nil
	}
	return oops.Code(CodeValidation).
		With("rules_failed", len(msgs)).
		Wrap(&ValidationError{Fields: FieldErrors{passwordField: msgs}})
}

// passwordField is a placeholder key; callers re-home messages to their form field.
const passwordField = "password"

func isAllDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func similarAttribute(password string, user *User) (string, bool) {
	pw := strings.ToLower(password)
	attrs := []struct {
		name  string
		value string
	}{
		{"username", user.Username},
		{"email address", emailLocalPart(user.Email)},
	}
	for _, a := range attrs {
		v := strings.ToLower(a.value)
		if len(v) < 3 {
			continue
		}
		if strings.Contains(pw, v) || similarity(pw, v) >= similarityThreshold {
			return a.name, true
		}
	}
	return "", false
}

func emailLocalPart(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 {
		return email[:at]
	}
	return email
}

// similarity returns the longest common substring length relative to the
// longer of the two strings.
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	longest := 0
	prev := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		cur := make([]int, len(b)+1)
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > longest {
					longest = cur[j]
				}
			}
		}
		prev = cur
	}
	return float64(longest) / float64(max(len(a), len(b)))
}

// strengthErrorsFor moves password rule messages onto the given form field.
func strengthErrorsFor(err error, field string) FieldErrors {
	fields, ok := FieldErrorsOf(err)
	if !ok {
		return nil
	}
	out := FieldErrors{}
	for _, msgs := range fields {
		out[field] = append(out[field], msgs...)
	}
	return out
}

// checkNewPassword applies the required, confirmation and strength rules.
// Missing fields are reported on their own field; mismatch and strength
// failures are reported on the confirmation field.
func checkNewPassword(policy PasswordPolicy, pw1, pw2, field1, field2 string, user *User) FieldErrors {
	fields := FieldErrors{}
	if pw1 == "" {
		fields.Add(field1, MsgRequired)
	}
	if pw2 == "" {
		fields.Add(field2, MsgRequired)
	}
	if len(fields) > 0 {
		return fields
	}
	if pw1 != pw2 {
		fields.Add(field2, MsgPasswordMismatch)
		return fields
	}
	if err := policy.CheckStrength(pw2, user); err != nil {
		fields.Merge(strengthErrorsFor(err, field2))
	}
	return fields
}

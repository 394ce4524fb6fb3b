// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "regexp"

// IdentifierKind says how a login identifier should be looked up.
type IdentifierKind int

// Identifier kinds.
const (
	IdentifierInvalid IdentifierKind = iota
	IdentifierEmail
	IdentifierUsername
)

func (k IdentifierKind) String() string {
	switch k {
	case IdentifierEmail:
		return "email"
	case IdentifierUsername:
		return "username"
	default:
		return "invalid"
	}
}

// loginEmailRegex requires local@domain with at least one dot in the domain.
var loginEmailRegex = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w+$`)

// ClassifyIdentifier decides whether the combined login field is an email or
// a username. Email shape wins; anything matching neither pattern is invalid
// and must not reach the store.
func ClassifyIdentifier(identifier string) IdentifierKind {
	switch {
	case loginEmailRegex.MatchString(identifier):
		return IdentifierEmail
	case usernameRegex.MatchString(identifier):
		return IdentifierUsername
	default:
		return IdentifierInvalid
	}
}

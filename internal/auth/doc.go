// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth implements user accounts: registration, login and logout,
// password change, and the forgot/reset password flow.
//
// # Domain Types
//
// Domain types should be created using their constructors:
//   - NewUser / NewSuperuser - create a User with normalized identity fields
//   - NewWebSession - creates a WebSession bound to a password hash
//
// Repository implementations receive pre-validated types from these constructors.
//
// # Credentials
//
// CredentialStore owns every password hash transition. Nothing else writes
// User.PasswordHash. PasswordPolicy decides strength and hashing.
//
// # Reset Links
//
// Reset tokens are stateless. TokenService signs a JWT whose claims carry a
// fingerprint of the user's password hash, last login time and email, so a
// token stops verifying as soon as any of those change. The user id travels
// in the link as base64url (EncodeUserID).
//
// # Services
//
//   - Service - register, login, logout, session validation, change password
//   - PasswordResetService - request, verify and complete a password reset
//
// Both report user-facing problems as oops errors carrying one of the Code*
// constants and, where a form field is at fault, a *ValidationError.
package auth

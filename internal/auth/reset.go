// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"encoding/base64"
	"net/url"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Reset link query parameters and path.
const (
	ResetPath       = "reset-password"
	ResetParamID    = "base"
	ResetParamToken = "token"
)

// EncodeUserID turns a user id into a URL-safe opaque string.
func EncodeUserID(id ulid.ULID) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id.String()))
}

// DecodeUserID reverses EncodeUserID. Every failure (bad base64, wrong
// length, invalid characters, out-of-range value) yields the same
// INVALID_OR_EXPIRED_LINK error; the cause is kept only for logging.
func DecodeUserID(encoded string) (ulid.ULID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeInvalidLink).
			With("stage", "base64").
			Wrap(err)
	}
	id, err := ulid.ParseStrict(string(raw))
	if err != nil {
		return ulid.ULID{}, oops.Code(CodeInvalidLink).
			With("stage", "ulid").
			Wrap(err)
	}
	return id, nil
}

// ResetLink composes <base>reset-password?base=<encoded_id>&token=<token>.
// baseURL must end in a slash.
func ResetLink(baseURL, encodedID, token string) string {
	q := url.Values{}
	q.Set(ResetParamID, encodedID)
	q.Set(ResetParamToken, token)
	return baseURL + ResetPath + "?" + q.Encode()
}

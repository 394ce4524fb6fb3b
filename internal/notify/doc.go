// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify delivers account emails. SMTP sends through a mail relay,
// Log writes messages to the logger for local development, and Queue moves
// delivery off the request path.
package notify

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Account counters are package-level so the auth, notify and web packages
// can record without holding a Server.
var (
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_logins_total",
			Help: "Login attempts by result",
		},
		[]string{"result"},
	)
	registrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_registrations_total",
			Help: "Signup attempts by result",
		},
		[]string{"result"},
	)
	passwordResetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_password_resets_total",
			Help: "Password reset flow events by stage",
		},
		[]string{"stage"},
	)
	notifierFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_notifier_failures_total",
			Help: "Email deliveries that failed, by notifier",
		},
		[]string{"notifier"},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accounts_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		},
		[]string{"route", "status"},
	)
)

// Result labels.
const (
	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Password reset stages.
const (
	StageRequested = "requested"
	StageUnknown   = "unknown_account"
	StageInvalid   = "invalid_link"
	StageCompleted = "completed"
)

// Collectors returns the account counters for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		loginsTotal,
		registrationsTotal,
		passwordResetsTotal,
		notifierFailuresTotal,
		httpRequestsTotal,
	}
}

// RecordLogin counts a login attempt.
func RecordLogin(result string) { loginsTotal.WithLabelValues(result).Inc() }

// RecordRegistration counts a signup attempt.
func RecordRegistration(result string) { registrationsTotal.WithLabelValues(result).Inc() }

// RecordPasswordReset counts a step of the reset flow.
func RecordPasswordReset(stage string) { passwordResetsTotal.WithLabelValues(stage).Inc() }

// RecordNotifierFailure counts an email that could not be delivered.
func RecordNotifierFailure(notifier string) { notifierFailuresTotal.WithLabelValues(notifier).Inc() }

// RecordHTTPRequest counts a served request. route is the matched pattern,
// not the raw path, to keep label cardinality bounded.
func RecordHTTPRequest(route string, status int) {
	httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

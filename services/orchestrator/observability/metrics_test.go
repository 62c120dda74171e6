// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestMetrics creates a ChatMetrics instance with a custom registry.
// This avoids conflicts with the global Prometheus registry and allows
// parallel testing.
func newTestMetrics(t *testing.T) *ChatMetrics {
	t.Helper()

	reg := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "requests_total",
			Help:      "Total number of chat requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	turnDurationSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "turn_duration_seconds",
			Help:      "End-to-end chat turn duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"endpoint", "status"},
	)

	activeTurns := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "active_turns",
			Help:      "Number of chat turns currently in flight",
		},
	)

	liveSessions := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "live_sessions",
			Help:      "Number of sessions currently held in the store",
		},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "errors_total",
			Help:      "Total failed chat turns by endpoint and error kind",
		},
		[]string{"endpoint", "error_kind"},
	)

	cancellationsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "cancellations_total",
			Help:      "Total user-initiated turn cancellations",
		},
	)

	sessionsSweptTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: chatSubsystem,
			Name:      "sessions_swept_total",
			Help:      "Total sessions removed by the expiry sweeper",
		},
	)

	reg.MustRegister(
		requestsTotal,
		turnDurationSeconds,
		activeTurns,
		liveSessions,
		errorsTotal,
		cancellationsTotal,
		sessionsSweptTotal,
	)

	return &ChatMetrics{
		RequestsTotal:       requestsTotal,
		TurnDurationSeconds: turnDurationSeconds,
		ActiveTurns:         activeTurns,
		LiveSessions:        liveSessions,
		ErrorsTotal:         errorsTotal,
		CancellationsTotal:  cancellationsTotal,
		SessionsSweptTotal:  sessionsSweptTotal,
	}
}

func TestChatMetrics_RecordRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRequest(EndpointQuery, true, 1.2)
	m.RecordRequest(EndpointQuery, true, 0.4)
	m.RecordRequest(EndpointQuery, false, 3.0)
	m.RecordRequest(EndpointExport, true, 0.1)

	successVal := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("query", "success"))
	if successVal != 2 {
		t.Errorf("RequestsTotal[query,success] = %f, want 2", successVal)
	}

	errorVal := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("query", "error"))
	if errorVal != 1 {
		t.Errorf("RequestsTotal[query,error] = %f, want 1", errorVal)
	}

	exportVal := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("export", "success"))
	if exportVal != 1 {
		t.Errorf("RequestsTotal[export,success] = %f, want 1", exportVal)
	}
}

func TestChatMetrics_RecordError(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordError(EndpointQuery, "TIMEOUT")
	m.RecordError(EndpointQuery, "TIMEOUT")
	m.RecordError(EndpointQuery, "QUOTA_ERROR")

	timeoutVal := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("query", "TIMEOUT"))
	if timeoutVal != 2 {
		t.Errorf("ErrorsTotal[query,TIMEOUT] = %f, want 2", timeoutVal)
	}

	quotaVal := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("query", "QUOTA_ERROR"))
	if quotaVal != 1 {
		t.Errorf("ErrorsTotal[query,QUOTA_ERROR] = %f, want 1", quotaVal)
	}
}

func TestChatMetrics_TurnLifecycle(t *testing.T) {
	m := newTestMetrics(t)

	m.TurnStarted()
	m.TurnStarted()

	val := testutil.ToFloat64(m.ActiveTurns)
	if val != 2 {
		t.Errorf("ActiveTurns = %f, want 2", val)
	}

	m.TurnFinished()
	m.TurnFinished()

	val = testutil.ToFloat64(m.ActiveTurns)
	if val != 0 {
		t.Errorf("ActiveTurns after finish = %f, want 0", val)
	}
}

func TestChatMetrics_RecordSweep(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordSweep(3, 7)
	m.RecordSweep(2, 5)

	sweptVal := testutil.ToFloat64(m.SessionsSweptTotal)
	if sweptVal != 5 {
		t.Errorf("SessionsSweptTotal = %f, want 5", sweptVal)
	}

	liveVal := testutil.ToFloat64(m.LiveSessions)
	if liveVal != 5 {
		t.Errorf("LiveSessions = %f, want 5", liveVal)
	}
}

func TestChatMetrics_RecordCancellation(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordCancellation()
	m.RecordCancellation()

	val := testutil.ToFloat64(m.CancellationsTotal)
	if val != 2 {
		t.Errorf("CancellationsTotal = %f, want 2", val)
	}
}

// Copyright (C) 2025 Datalia (eng@datalia.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides metrics and instrumentation for the orchestrator.
//
// # Description
//
// This package implements Prometheus metrics for monitoring chat turn
// processing. Metrics include:
//   - Request counters (by endpoint, status, error code)
//   - Turn latency histograms
//   - Active turn and live session gauges
//   - Cancellation counters
//
// # Integration
//
// Metrics are exposed via /metrics endpoint. Use with Prometheus + Grafana
// for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "datalia"

// Subsystem for chat turn metrics
const chatSubsystem = "chat"

// ChatMetrics holds all Prometheus metrics for chat turn operations.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring turn throughput,
// latency, and failure modes. Initialize once at startup via InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type ChatMetrics struct {
	// RequestsTotal counts chat turns by endpoint and status.
	// Labels: endpoint (query, export, title), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures end-to-end turn latency.
	// Labels: endpoint, status (success, error)
	TurnDurationSeconds *prometheus.HistogramVec

	// ActiveTurns tracks turns currently in flight.
	ActiveTurns prometheus.Gauge

	// LiveSessions tracks sessions currently held in the store.
	LiveSessions prometheus.Gauge

	// ErrorsTotal counts failed turns by error kind.
	// Labels: endpoint, error_kind (TIMEOUT, CANCELLED, QUOTA_ERROR, ...)
	ErrorsTotal *prometheus.CounterVec

	// CancellationsTotal counts user-initiated cancellations.
	CancellationsTotal prometheus.Counter

	// SessionsSweptTotal counts sessions removed by the expiry sweeper.
	SessionsSweptTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance of ChatMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *ChatMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once
// at application startup.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *ChatMetrics {
	DefaultMetrics = &ChatMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "requests_total",
				Help:      "Total number of chat requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "End-to-end chat turn duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"endpoint", "status"},
		),

		ActiveTurns: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_turns",
				Help:      "Number of chat turns currently in flight",
			},
		),

		LiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "live_sessions",
				Help:      "Number of sessions currently held in the store",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "errors_total",
				Help:      "Total failed chat turns by endpoint and error kind",
			},
			[]string{"endpoint", "error_kind"},
		),

		CancellationsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "cancellations_total",
				Help:      "Total user-initiated turn cancellations",
			},
		),

		SessionsSweptTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "sessions_swept_total",
				Help:      "Total sessions removed by the expiry sweeper",
			},
		),
	}

	return DefaultMetrics
}

// Endpoint represents a chat endpoint for metrics labeling.
type Endpoint string

const (
	// EndpointQuery is the main chat turn endpoint.
	EndpointQuery Endpoint = "query"

	// EndpointExport is the transcript export endpoint.
	EndpointExport Endpoint = "export"

	// EndpointTitle is the conversation title generation endpoint.
	EndpointTitle Endpoint = "title"
)

// RecordRequest records a completed request.
//
// # Inputs
//
//   - endpoint: The endpoint that handled the request.
//   - success: Whether the request completed successfully.
//   - seconds: End-to-end duration.
func (m *ChatMetrics) RecordRequest(endpoint Endpoint, success bool, seconds float64) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
	m.TurnDurationSeconds.WithLabelValues(string(endpoint), status).Observe(seconds)
}

// RecordError records a failed turn by kind.
//
// # Inputs
//
//   - endpoint: The endpoint where the error occurred.
//   - kind: The error taxonomy bucket.
func (m *ChatMetrics) RecordError(endpoint Endpoint, kind string) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), kind).Inc()
}

// TurnStarted increments the in-flight gauge; call TurnFinished when done.
func (m *ChatMetrics) TurnStarted() { m.ActiveTurns.Inc() }

// TurnFinished decrements the in-flight gauge.
func (m *ChatMetrics) TurnFinished() { m.ActiveTurns.Dec() }

// RecordCancellation counts one user-initiated cancellation.
func (m *ChatMetrics) RecordCancellation() { m.CancellationsTotal.Inc() }

// RecordSweep counts sessions removed by one sweeper pass and updates the
// live session gauge.
func (m *ChatMetrics) RecordSweep(removed, remaining int) {
	m.SessionsSweptTotal.Add(float64(removed))
	m.LiveSessions.Set(float64(remaining))
}

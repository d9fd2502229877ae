// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for program execution.
//
// # Description
//
// Metrics cover program runs, per-statement outcomes by fold operator, fold
// latency and working-graph size. Exposed via the /metrics endpoint; use
// with Prometheus + Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "conceptweave"

const queryprogSubsystem = "queryprog"

// ExecutionMetrics holds all Prometheus metrics for program execution.
//
// Initialize once at startup via InitMetrics().
type ExecutionMetrics struct {
	// RunsTotal counts program runs.
	// Labels: mode (execute, replay), status (success, error, invalid)
	RunsTotal *prometheus.CounterVec

	// StatementsTotal counts executed statements.
	// Labels: op (+, -, &, ?, !), status (success, error)
	StatementsTotal *prometheus.CounterVec

	// StatementDurationSeconds measures wall time per statement,
	// including the awaited query-service call and the fold.
	// Labels: op
	StatementDurationSeconds *prometheus.HistogramVec

	// WorkingGraphNodes samples the working-graph node count after each
	// fold.
	WorkingGraphNodes prometheus.Histogram

	// ActiveRuns tracks currently executing programs.
	ActiveRuns prometheus.Gauge
}

// InitMetrics creates and registers all metrics on the default registry.
// Call once at application startup; a second call panics on duplicate
// registration.
func InitMetrics() *ExecutionMetrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// NewMetrics creates the metrics on an explicit registerer. Tests pass a
// fresh prometheus.NewRegistry().
func NewMetrics(reg prometheus.Registerer) *ExecutionMetrics {
	factory := promauto.With(reg)
	return &ExecutionMetrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: queryprogSubsystem,
				Name:      "runs_total",
				Help:      "Total program runs by mode and status",
			},
			[]string{"mode", "status"},
		),

		StatementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: queryprogSubsystem,
				Name:      "statements_total",
				Help:      "Total executed statements by fold operator and status",
			},
			[]string{"op", "status"},
		),

		StatementDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: queryprogSubsystem,
				Name:      "statement_duration_seconds",
				Help:      "Statement wall time including the awaited query call",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0},
			},
			[]string{"op"},
		),

		WorkingGraphNodes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: queryprogSubsystem,
				Name:      "working_graph_nodes",
				Help:      "Working-graph node count sampled after each fold",
				Buckets:   []float64{0, 10, 50, 100, 500, 1000, 5000, 10000},
			},
		),

		ActiveRuns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: queryprogSubsystem,
				Name:      "active_runs",
				Help:      "Number of currently executing programs",
			},
		),
	}
}

// RecordRun records one completed run.
func (m *ExecutionMetrics) RecordRun(mode, status string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(mode, status).Inc()
}

// ActiveRunsInc increments the active-runs gauge.
func (m *ExecutionMetrics) ActiveRunsInc() {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
}

// ActiveRunsDec decrements the active-runs gauge.
func (m *ExecutionMetrics) ActiveRunsDec() {
	if m == nil {
		return
	}
	m.ActiveRuns.Dec()
}

// RecordStatement records one folded statement and its graph effect.
func (m *ExecutionMetrics) RecordStatement(op string, seconds float64, graphNodes int) {
	if m == nil {
		return
	}
	m.StatementsTotal.WithLabelValues(op, "success").Inc()
	m.StatementDurationSeconds.WithLabelValues(op).Observe(seconds)
	m.WorkingGraphNodes.Observe(float64(graphNodes))
}

// RecordStatementFailure counts a failed statement. No latency sample is
// taken; the failure may have happened anywhere in the awaited call.
func (m *ExecutionMetrics) RecordStatementFailure(op string) {
	if m == nil {
		return
	}
	m.StatementsTotal.WithLabelValues(op, "error").Inc()
}

// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides observability for the Telos agent loop:
// OpenTelemetry providers, trace-aware slog configuration, and the metric
// instruments the scheduler and stores record into.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/telos/pkg/errors"
)

// ErrorMetrics tracks error rates and recovery patterns for production monitoring.
type ErrorMetrics struct {
	// errorCounter tracks total errors by code and component
	errorCounter metric.Int64Counter

	// recoveryCounter tracks successful recoveries
	recoveryCounter metric.Int64Counter

	mu sync.RWMutex
}

// NewErrorMetrics creates a new error metrics tracker with OTEL meters.
func NewErrorMetrics(ctx context.Context) (*ErrorMetrics, error) {
	meter := otel.Meter("telos/errors")

	errorCounter, err := meter.Int64Counter(
		"telos.errors.total",
		metric.WithDescription("Total errors by code and component"),
	)
	if err != nil {
		return nil, err
	}

	recoveryCounter, err := meter.Int64Counter(
		"telos.errors.recovered",
		metric.WithDescription("Successful error recoveries by code"),
	)
	if err != nil {
		return nil, err
	}

	return &ErrorMetrics{
		errorCounter:    errorCounter,
		recoveryCounter: recoveryCounter,
	}, nil
}

// RecordErrorMetric increments the error counter for the given error code and component.
func (em *ErrorMetrics) RecordErrorMetric(ctx context.Context, err error, component string) {
	if em == nil || err == nil {
		return
	}

	em.mu.RLock()
	defer em.mu.RUnlock()

	te := errors.AsTelosError(err)
	em.errorCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error.code", string(te.Code)),
			attribute.String("component", component),
			attribute.String("recoverable", te.RecoverableString()),
		),
	)
}

// RecordRecovery increments the recovery counter for the given error code.
// Called when an error is successfully handled (retry succeeded, fallback used).
func (em *ErrorMetrics) RecordRecovery(ctx context.Context, errorCode errors.ErrorCode) {
	if em == nil {
		return
	}

	em.mu.RLock()
	defer em.mu.RUnlock()

	em.recoveryCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("error.code", string(errorCode)),
		),
	)
}

// LoopMetrics holds the scheduler's metric instruments.
type LoopMetrics struct {
	// StepCounter counts executed steps per run status.
	StepCounter metric.Int64Counter

	// StepLatencyMs records capability execution latency.
	StepLatencyMs metric.Float64Histogram

	// RunCounter counts terminated runs by status.
	RunCounter metric.Int64Counter

	// ApprovalsPending records the count of unresolved approvals.
	ApprovalsPending metric.Int64Gauge
}

var (
	loopMetricsOnce sync.Once
	loopMetrics     *LoopMetrics
	loopMetricsErr  error
)

// Loop returns the process-wide loop metric instruments, creating them on
// first use against the globally installed meter provider.
func Loop() (*LoopMetrics, error) {
	loopMetricsOnce.Do(func() {
		meter := otel.Meter("telos/agent")
		m := &LoopMetrics{}

		m.StepCounter, loopMetricsErr = meter.Int64Counter(
			"telos.run.steps",
			metric.WithDescription("Executed steps"),
		)
		if loopMetricsErr != nil {
			return
		}
		m.StepLatencyMs, loopMetricsErr = meter.Float64Histogram(
			"telos.step.latency_ms",
			metric.WithDescription("Capability execution latency in milliseconds"),
		)
		if loopMetricsErr != nil {
			return
		}
		m.RunCounter, loopMetricsErr = meter.Int64Counter(
			"telos.runs.total",
			metric.WithDescription("Terminated runs by status"),
		)
		if loopMetricsErr != nil {
			return
		}
		m.ApprovalsPending, loopMetricsErr = meter.Int64Gauge(
			"telos.approvals.pending",
			metric.WithDescription("Unresolved approval items"),
		)
		if loopMetricsErr != nil {
			return
		}
		loopMetrics = m
	})
	return loopMetrics, loopMetricsErr
}

// RecordStep records one executed step and its latency.
func (m *LoopMetrics) RecordStep(ctx context.Context, capability string, ok bool, latencyMs float64) {
	if m == nil {
		return
	}
	status := "failed"
	if ok {
		status = "done"
	}
	attrs := metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.String("status", status),
	)
	m.StepCounter.Add(ctx, 1, attrs)
	m.StepLatencyMs.Record(ctx, latencyMs, attrs)
}

// RecordRun records one terminated run.
func (m *LoopMetrics) RecordRun(ctx context.Context, status string, steps int) {
	if m == nil {
		return
	}
	m.RunCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.Int("steps", steps),
	))
}

// RecordPendingApprovals records the current pending approval count.
func (m *LoopMetrics) RecordPendingApprovals(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.ApprovalsPending.Record(ctx, n)
}

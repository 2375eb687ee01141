// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"sync"

	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/telemetry"
)

// ErrorMetricsIntegration wraps telemetry.ErrorMetrics with agent-side
// helpers. All methods are nil-safe so callers never guard.
type ErrorMetricsIntegration struct {
	metrics *telemetry.ErrorMetrics
	enabled bool
}

var (
	globalErrorMetrics     *ErrorMetricsIntegration
	globalErrorMetricsOnce sync.Once
)

// InitErrorMetrics initializes the global error metrics once, at startup.
// Initialization failure degrades to a disabled integration rather than
// an error.
func InitErrorMetrics(ctx context.Context) *ErrorMetricsIntegration {
	globalErrorMetricsOnce.Do(func() {
		metrics, err := telemetry.NewErrorMetrics(ctx)
		if err != nil {
			globalErrorMetrics = &ErrorMetricsIntegration{enabled: false}
			return
		}
		globalErrorMetrics = &ErrorMetricsIntegration{metrics: metrics, enabled: true}
	})
	return globalErrorMetrics
}

// GetErrorMetrics returns the global integration, nil until initialized.
func GetErrorMetrics() *ErrorMetricsIntegration {
	return globalErrorMetrics
}

// RecordError counts an error under its taxonomy code and component.
func (e *ErrorMetricsIntegration) RecordError(ctx context.Context, err error, component string) {
	if e == nil || !e.enabled || e.metrics == nil {
		return
	}
	e.metrics.RecordErrorMetric(ctx, err, component)
}

// RecordRecovery counts a successful recovery for the given error code.
func (e *ErrorMetricsIntegration) RecordRecovery(ctx context.Context, code errors.ErrorCode) {
	if e == nil || !e.enabled || e.metrics == nil {
		return
	}
	e.metrics.RecordRecovery(ctx, code)
}

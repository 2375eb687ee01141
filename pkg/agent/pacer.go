// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces loop iterations. Wait blocks until the next iteration may
// start or the context is done.
type Pacer interface {
	Wait(ctx context.Context) error
}

// RatePacer enforces a minimum interval between iterations.
type RatePacer struct {
	limiter *rate.Limiter
}

// NewRatePacer builds a pacer allowing one iteration per interval. A
// non-positive interval disables pacing.
func NewRatePacer(interval time.Duration) *RatePacer {
	if interval <= 0 {
		return &RatePacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &RatePacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// NewBurstPacer builds a pacer that admits up to burst iterations before
// the interval applies. Burst below one is clamped to one.
func NewBurstPacer(interval time.Duration, burst int) *RatePacer {
	if burst < 1 {
		burst = 1
	}
	if interval <= 0 {
		return &RatePacer{limiter: rate.NewLimiter(rate.Inf, burst)}
	}
	return &RatePacer{limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

// Wait implements Pacer.
func (p *RatePacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// NopPacer never delays. Used in tests and batch replays.
type NopPacer struct{}

// Wait implements Pacer.
func (NopPacer) Wait(ctx context.Context) error { return ctx.Err() }

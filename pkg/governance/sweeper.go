// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"log/slog"
	"time"

	"github.com/jllopis/telos/pkg/telemetry"
)

// SweepStore is the store surface the sweeper needs. Both approval store
// implementations satisfy it.
type SweepStore interface {
	ExpireApprovals(ctx context.Context) (int, error)
	PendingCount(ctx context.Context) (int64, error)
}

// Sweeper expires pending approvals whose deadline has passed. Expired items
// are rejected with reason "expired" so Wait callers unblock and the audit
// trail records the outcome.
type Sweeper struct {
	store    SweepStore
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper over the store. Interval <= 0 disables it.
func NewSweeper(store SweepStore, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		timeout:  10 * time.Second,
		logger:   slog.Default(),
	}
}

// SetLogger overrides the default logger.
func (s *Sweeper) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start launches the sweep loop. Safe to call once; Stop waits for the loop
// to exit.
func (s *Sweeper) Start(ctx context.Context) {
	if s.store == nil || s.interval <= 0 {
		s.logger.Info("telos.approval.sweeper.disabled",
			slog.Duration("interval", s.interval),
		)
		return
	}
	if s.cancel != nil {
		s.Stop()
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.logger.Info("telos.approval.sweeper.start",
			slog.Duration("interval", s.interval),
		)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("telos.approval.sweeper.stop")
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	if s.done != nil {
		<-s.done
	}
	s.cancel = nil
	s.done = nil
}

// Sweep runs one expiry pass immediately. The loop calls this on every tick;
// it is exported so callers can force a pass in tests and at shutdown.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	expired, err := s.store.ExpireApprovals(ctx)
	if err != nil {
		return 0, err
	}
	if pending, perr := s.store.PendingCount(ctx); perr == nil {
		if m, merr := telemetry.Loop(); merr == nil {
			m.RecordPendingApprovals(ctx, pending)
		}
	}
	return expired, nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	sweepCtx := ctx
	var cancel context.CancelFunc
	if s.timeout > 0 {
		sweepCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	expired, err := s.Sweep(sweepCtx)
	durationMs := float64(time.Since(start).Seconds() * 1000)
	if err != nil {
		s.logger.Warn("telos.approval.sweep.error",
			slog.Float64("duration_ms", durationMs),
			slog.String("error", err.Error()),
		)
		return
	}
	if expired > 0 {
		s.logger.Info("telos.approval.sweep.expired",
			slog.Int("expired", expired),
			slog.Float64("duration_ms", durationMs),
		)
	}
}

// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"

	"github.com/jllopis/telos/pkg/resilience"
)

// ResilientProvider decorates a Provider with retry and a circuit breaker.
// Remote backends fail in bursts; retry absorbs transient faults while the
// breaker stops a broken endpoint from eating the whole step budget.
type ResilientProvider struct {
	inner   Provider
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// ResilientOption configures a ResilientProvider.
type ResilientOption func(*ResilientProvider)

// WithRetryConfig replaces the default retry policy.
func WithRetryConfig(rc resilience.RetryConfig) ResilientOption {
	return func(p *ResilientProvider) {
		p.retry = rc
	}
}

// WithCircuitBreaker replaces the default breaker.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) ResilientOption {
	return func(p *ResilientProvider) {
		if cb != nil {
			p.breaker = cb
		}
	}
}

// NewResilientProvider wraps inner with the default retry policy and a
// breaker named after the provider.
func NewResilientProvider(inner Provider, opts ...ResilientOption) *ResilientProvider {
	p := &ResilientProvider{
		inner: inner,
		retry: resilience.DefaultRetryConfig(),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: inner.Name(),
		}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *ResilientProvider) Name() string { return p.inner.Name() }

// Chat implements Provider. Each attempt passes through the breaker so
// rejected calls count as fast failures, not fresh load on the backend.
func (p *ResilientProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp *ChatResponse
	err := p.retry.Do(ctx, func() error {
		return p.breaker.Call(ctx, func() error {
			var chatErr error
			resp, chatErr = p.inner.Chat(ctx, req)
			return chatErr
		})
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// BreakerState exposes the breaker for health reporting.
func (p *ResilientProvider) BreakerState() resilience.CircuitBreakerState {
	return p.breaker.State()
}

var _ Provider = (*ResilientProvider)(nil)

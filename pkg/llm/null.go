// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"

	"github.com/jllopis/telos/pkg/errors"
)

// NullProvider is the provider used when no LLM backend is configured.
// Every call fails with COLLABORATOR_UNAVAILABLE so callers that can work
// without a model (chain planning, replaying traces) degrade cleanly and
// callers that cannot surface a clear error.
type NullProvider struct{}

// NewNull creates a NullProvider.
func NewNull() *NullProvider { return &NullProvider{} }

// Name implements Provider.
func (n *NullProvider) Name() string { return "null" }

// Chat always fails.
func (n *NullProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return nil, errors.New(errors.CodeCollaboratorUnavailable, "no llm provider configured", nil)
}

var _ Provider = (*NullProvider)(nil)

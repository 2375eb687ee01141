// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jllopis/telos/pkg/errors"
)

// DefaultOllamaURL is the local Ollama endpoint used when none is configured.
const DefaultOllamaURL = "http://localhost:11434"

// OllamaProvider implements Provider and StreamingProvider against a local
// or remote Ollama server using its native /api/chat endpoint.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
}

// OllamaOption configures an OllamaProvider.
type OllamaOption func(*OllamaProvider)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) OllamaOption {
	return func(p *OllamaProvider) {
		p.client = client
	}
}

// WithRequestTimeout sets the per-request timeout of the default client.
func WithRequestTimeout(d time.Duration) OllamaOption {
	return func(p *OllamaProvider) {
		p.client.Timeout = d
	}
}

// NewOllama creates a provider talking to baseURL, or the local default
// when baseURL is empty.
func NewOllama(baseURL string, opts ...OllamaOption) *OllamaProvider {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	p := &OllamaProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements Provider.
func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaRequest struct {
	Model    string                 `json:"model"`
	Messages []Message              `json:"messages"`
	Stream   bool                   `json:"stream"`
	Tools    []Tool                 `json:"tools,omitempty"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	TotalDuration   int64   `json:"total_duration"` // nanos
	EvalCount       int     `json:"eval_count"`
	PromptEvalCount int     `json:"prompt_eval_count"`
}

func (p *OllamaProvider) buildRequest(req ChatRequest, stream bool) ollamaRequest {
	oReq := ollamaRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   stream,
		Tools:    req.Tools,
	}
	opts := map[string]interface{}{}
	if req.Temperature != 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if len(opts) > 0 {
		oReq.Options = opts
	}
	return oReq
}

func (p *OllamaProvider) post(ctx context.Context, oReq ollamaRequest) (*http.Response, error) {
	body, err := json.Marshal(oReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errors.WrapCollaborator("ollama", err)
	}
	return resp, nil
}

// Chat sends a chat request to Ollama and maps the response to ChatResponse.
func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := p.post(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.WrapCollaborator("ollama",
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody)))
	}

	var oResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return nil, errors.WrapCollaborator("ollama", fmt.Errorf("failed to decode response: %w", err))
	}

	return &ChatResponse{
		Content:   oResp.Message.Content,
		ToolCalls: oResp.Message.ToolCalls,
		Usage: Usage{
			PromptTokens:     oResp.PromptEvalCount,
			CompletionTokens: oResp.EvalCount,
			TotalTokens:      oResp.PromptEvalCount + oResp.EvalCount,
		},
	}, nil
}

// ChatStream implements StreamingProvider over Ollama's NDJSON stream.
func (p *OllamaProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	resp, err := p.post(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.WrapCollaborator("ollama",
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody)))
	}

	chunks := make(chan StreamChunk, 100)

	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		var accumulatedToolCalls []ToolCall

		for {
			select {
			case <-ctx.Done():
				chunks <- StreamChunk{Error: ctx.Err()}
				return
			default:
			}

			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err != io.EOF {
					chunks <- StreamChunk{Error: err}
				}
				return
			}

			var event ollamaStreamEvent
			if err := json.Unmarshal(line, &event); err != nil {
				continue // skip malformed lines
			}

			// Ollama sends complete tool calls, not deltas.
			if len(event.Message.ToolCalls) > 0 {
				accumulatedToolCalls = event.Message.ToolCalls
			}

			if event.Done {
				usage := Usage{
					PromptTokens:     event.PromptEvalCount,
					CompletionTokens: event.EvalCount,
					TotalTokens:      event.PromptEvalCount + event.EvalCount,
				}
				chunks <- StreamChunk{
					Done:      true,
					ToolCalls: accumulatedToolCalls,
					Usage:     &usage,
				}
				return
			}

			if event.Message.Content != "" {
				chunks <- StreamChunk{Content: event.Message.Content}
			}
		}
	}()

	return chunks, nil
}

// ollamaStreamEvent represents a streaming response from Ollama (NDJSON format).
type ollamaStreamEvent struct {
	Model           string  `json:"model"`
	CreatedAt       string  `json:"created_at"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	TotalDuration   int64   `json:"total_duration,omitempty"`
	LoadDuration    int64   `json:"load_duration,omitempty"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
	EvalDuration    int64   `json:"eval_duration,omitempty"`
}

// Ensure OllamaProvider implements StreamingProvider.
var _ StreamingProvider = (*OllamaProvider)(nil)

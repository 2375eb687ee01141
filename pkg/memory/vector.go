// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory provides the run's knowledge collaborators: a vector
// search service used by the rag.search capability and a session store
// that keeps the audited conversation history. Both are external
// collaborators from the scheduler's point of view — their failures
// degrade a step, never the loop.
package memory

import "context"

// Document is one unit of ingestable text.
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Hit is one ranked search result.
type Hit struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float32        `json:"score"`
}

// Point is one stored vector with its payload.
type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

// SearchResult is one raw match from a vector store.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Point Point   `json:"point"`
}

// VectorStore is a pluggable vector database.
type VectorStore interface {
	// CreateCollection creates a collection for vectors of the given size.
	// Creating an existing collection is an error; callers probe with Search
	// when they need create-if-missing behavior.
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error

	// Upsert adds or replaces points by id.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to limit points nearest to vector, best first,
	// dropping matches scoring below scoreThreshold.
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error)
}

// Embedder converts text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/jllopis/telos/pkg/errors"
)

// DefaultTopK bounds a search when the caller does not ask for a count.
const DefaultTopK = 5

// Library is the vector search service behind the rag.search capability:
// it embeds text through an Embedder and stores/queries vectors through a
// VectorStore.
type Library struct {
	store      VectorStore
	embedder   Embedder
	collection string
	topK       int
	threshold  float32
}

// LibraryOption configures a Library.
type LibraryOption func(*Library)

// WithTopK sets the default result count for Search.
func WithTopK(k int) LibraryOption {
	return func(l *Library) {
		if k > 0 {
			l.topK = k
		}
	}
}

// WithScoreThreshold drops matches scoring below t.
func WithScoreThreshold(t float32) LibraryOption {
	return func(l *Library) { l.threshold = t }
}

// NewLibrary builds a Library over the given store and embedder.
func NewLibrary(store VectorStore, embedder Embedder, collection string, opts ...LibraryOption) *Library {
	l := &Library{
		store:      store,
		embedder:   embedder,
		collection: collection,
		topK:       DefaultTopK,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Initialize ensures the collection exists. The embedding dimension comes
// from a probe embedding; a creation failure is tolerated when the
// collection is already searchable.
func (l *Library) Initialize(ctx context.Context) error {
	probe, err := l.embedder.Embed(ctx, "telos")
	if err != nil {
		return errors.WrapCollaborator("embedder", err)
	}
	if err := l.store.CreateCollection(ctx, l.collection, uint64(len(probe))); err != nil {
		if _, searchErr := l.store.Search(ctx, l.collection, probe, 1, 0); searchErr == nil {
			return nil
		}
		return errors.WrapCollaborator("vector store", err)
	}
	return nil
}

// AddDocuments embeds and stores the documents, returning the stored ids.
// Documents without an id get a fresh one; documents with empty text are
// skipped.
func (l *Library) AddDocuments(ctx context.Context, docs []Document) ([]string, error) {
	points := make([]Point, 0, len(docs))
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		text := strings.TrimSpace(doc.Text)
		if text == "" {
			continue
		}
		id := doc.ID
		if id == "" {
			id = uuid.New().String()
		}

		vector, err := l.embedder.Embed(ctx, text)
		if err != nil {
			return nil, errors.WrapCollaborator("embedder", err)
		}

		payload := map[string]any{"text": text}
		if doc.Metadata != nil {
			payload["metadata"] = doc.Metadata
		}
		points = append(points, Point{ID: id, Vector: vector, Payload: payload})
		ids = append(ids, id)
	}
	if len(points) == 0 {
		return nil, nil
	}
	if err := l.store.Upsert(ctx, l.collection, points); err != nil {
		return nil, errors.WrapCollaborator("vector store", err)
	}
	return ids, nil
}

// Search embeds the query and returns the k best matches (DefaultTopK when
// k <= 0), best first.
func (l *Library) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		k = l.topK
	}
	vector, err := l.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.WrapCollaborator("embedder", err)
	}
	results, err := l.store.Search(ctx, l.collection, vector, k, l.threshold)
	if err != nil {
		return nil, errors.WrapCollaborator("vector store", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hit := Hit{ID: r.ID, Score: r.Score}
		if text, ok := r.Point.Payload["text"].(string); ok {
			hit.Text = text
		}
		if meta, ok := r.Point.Payload["metadata"].(map[string]any); ok {
			hit.Metadata = meta
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

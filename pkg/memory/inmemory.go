// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/jllopis/telos/pkg/errors"
)

// MemoryVectorStore is an in-process VectorStore with exact cosine scoring.
// It backs tests and offline runs where no vector database is reachable.
type MemoryVectorStore struct {
	mu          sync.RWMutex
	collections map[string][]Point
}

// NewMemoryVectorStore builds an empty in-process vector store.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{collections: make(map[string][]Point)}
}

// CreateCollection registers an empty collection.
func (s *MemoryVectorStore) CreateCollection(_ context.Context, name string, _ uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.collections[name]; exists {
		return errors.New(errors.CodeInternal, "collection already exists", nil).
			WithContext("collection", name)
	}
	s.collections[name] = nil
	return nil
}

// Upsert adds or replaces points by id.
func (s *MemoryVectorStore) Upsert(_ context.Context, collection string, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.collections[collection]
	for _, p := range points {
		replaced := false
		for i := range existing {
			if existing[i].ID == p.ID {
				existing[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, p)
		}
	}
	s.collections[collection] = existing
	return nil
}

// Search scores every stored point by cosine similarity and returns the top
// limit matches at or above scoreThreshold, best first.
func (s *MemoryVectorStore) Search(_ context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error) {
	s.mu.RLock()
	points := s.collections[collection]
	scored := make([]SearchResult, 0, len(points))
	for _, p := range points {
		score := cosine(vector, p.Vector)
		if score < scoreThreshold {
			continue
		}
		scored = append(scored, SearchResult{ID: p.ID, Score: score, Point: p})
	}
	s.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

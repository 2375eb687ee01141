// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// FileVectorStore is a MemoryVectorStore that journals every upsert to a
// JSON-lines file and replays it on open, so a local setup keeps its index
// across restarts without running a vector database server.
type FileVectorStore struct {
	mem  *MemoryVectorStore
	path string
	mu   sync.Mutex
}

type journalEntry struct {
	Collection string `json:"collection"`
	Point      Point  `json:"point"`
}

// NewFileVectorStore opens (or creates) the journal at path and loads any
// previously stored points.
func NewFileVectorStore(path string) (*FileVectorStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &FileVectorStore{mem: NewMemoryVectorStore(), path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileVectorStore) load() error {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry journalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			// A torn final line from an interrupted write is not fatal.
			continue
		}
		if err := s.mem.Upsert(context.Background(), entry.Collection, []Point{entry.Point}); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// CreateCollection registers a collection in the in-process index. The
// journal records points only, so collections rematerialize from their
// points on reload.
func (s *FileVectorStore) CreateCollection(ctx context.Context, name string, vectorSize uint64) error {
	return s.mem.CreateCollection(ctx, name, vectorSize)
}

// Upsert stores the points and appends them to the journal.
func (s *FileVectorStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if err := s.mem.Upsert(ctx, collection, points); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, p := range points {
		if err := enc.Encode(journalEntry{Collection: collection, Point: p}); err != nil {
			return err
		}
	}
	return nil
}

// Search delegates to the in-process index.
func (s *FileVectorStore) Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error) {
	return s.mem.Search(ctx, collection, vector, limit, scoreThreshold)
}

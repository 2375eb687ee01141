// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"

	"github.com/jllopis/telos/pkg/memory"
)

// Searcher is the slice of the knowledge library rag.search needs.
// *memory.Library satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]memory.Hit, error)
}

// SearchSkill answers queries from the ingested document collection.
// A down embedder or vector store surfaces as a failed step outcome, never
// as a loop fault.
type SearchSkill struct {
	searcher Searcher
	topK     int
}

// NewSearchSkill builds the rag.search capability. topK <= 0 selects
// memory.DefaultTopK.
func NewSearchSkill(searcher Searcher, topK int) *SearchSkill {
	if topK <= 0 {
		topK = memory.DefaultTopK
	}
	return &SearchSkill{searcher: searcher, topK: topK}
}

func (s *SearchSkill) Name() string { return "rag.search" }

func (s *SearchSkill) Description() string {
	return "Search the ingested knowledge base and return the most relevant snippets."
}

func (s *SearchSkill) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Natural-language search query",
			},
			"k": map[string]any{
				"type":        "integer",
				"minimum":     1,
				"description": "Number of snippets to return",
			},
		},
		"required":             []string{"query"},
		"additionalProperties": false,
	}
}

func (s *SearchSkill) Execute(ctx context.Context, args map[string]any) (any, error) {
	query := stringArg(args, "query")
	k := intArg(args, "k", s.topK)

	hits, err := s.searcher.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	results := make([]map[string]any, 0, len(hits))
	for _, hit := range hits {
		entry := map[string]any{
			"id":    hit.ID,
			"text":  hit.Text,
			"score": hit.Score,
		}
		if hit.Metadata != nil {
			entry["metadata"] = hit.Metadata
		}
		results = append(results, entry)
	}

	return map[string]any{
		"query":   query,
		"results": results,
		"count":   len(results),
	}, nil
}

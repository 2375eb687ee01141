// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"github.com/jllopis/telos/pkg/errors"
)

// DefaultMaxFetchChars caps fetched page content when no override is given.
const DefaultMaxFetchChars = 10000

// Raw response bodies are bounded regardless of max_chars; extraction never
// needs more than this.
const maxFetchBodyBytes = 8 << 20

// FetchSkill fetches a URL and extracts its main content as plain text.
// Readability extraction is attempted first; pages it cannot parse fall back
// to a tag-stripped rendering of the raw body.
type FetchSkill struct {
	client    *http.Client
	policy    *bluemonday.Policy
	userAgent string
	maxChars  int
}

// NewFetchSkill builds the web.fetch capability. maxChars <= 0 selects
// DefaultMaxFetchChars.
func NewFetchSkill(client *http.Client, maxChars int) *FetchSkill {
	if maxChars <= 0 {
		maxChars = DefaultMaxFetchChars
	}
	return &FetchSkill{
		client:    client,
		policy:    bluemonday.StrictPolicy(),
		userAgent: "Mozilla/5.0 (compatible; telos-agent)",
		maxChars:  maxChars,
	}
}

func (s *FetchSkill) Name() string { return "web.fetch" }

func (s *FetchSkill) Description() string {
	return "Fetch a web page and return its main content as clean text."
}

func (s *FetchSkill) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Absolute http(s) URL to fetch",
			},
			"max_chars": map[string]any{
				"type":        "integer",
				"minimum":     1,
				"description": "Cap on the returned content length in characters",
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}

func (s *FetchSkill) Execute(ctx context.Context, args map[string]any) (any, error) {
	rawURL := stringArg(args, "url")
	maxChars := intArg(args, "max_chars", s.maxChars)

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, errors.New(errors.CodeInvalidArguments, "url must be absolute http or https", err).
			WithContext("url", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.WrapCollaborator("web", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBodyBytes))
	if err != nil {
		return nil, errors.WrapCollaborator("web", err)
	}

	title, content, method := s.extract(body, parsed)
	return map[string]any{
		"content": truncateRunes(content, maxChars),
		"title":   title,
		"source":  rawURL,
		"method":  method,
	}, nil
}

// extract runs readability over the body, falling back to stripping tags
// from the whole document when it fails or yields nothing.
func (s *FetchSkill) extract(body []byte, pageURL *url.URL) (title, content, method string) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil {
		content = strings.TrimSpace(s.policy.Sanitize(article.TextContent))
		if content != "" {
			return article.Title, content, "readability"
		}
		title = article.Title
	}
	content = strings.TrimSpace(s.policy.Sanitize(string(body)))
	return title, content, "text_only"
}

// truncateRunes cuts s at max runes. Unlike safety.Truncate it appends no
// marker: fetched page content is advisory input, not command output.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

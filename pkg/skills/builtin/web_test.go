// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jllopis/telos/pkg/errors"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>Tides Explained</title></head>
<body>
<article>
<h1>Tides Explained</h1>
<p>Tides are the rise and fall of sea levels caused by the combined effects of
the gravitational forces exerted by the moon and the sun, and the rotation of
the Earth. The timing and amplitude of tides at any given locale are shaped by
the coastline, the depth of the water, and the shape of the nearby seabed.</p>
<p>Most coastal locations experience two high tides and two low tides each
lunar day. Because the moon orbits the Earth in the same direction the Earth
rotates, a lunar day lasts slightly longer than a solar day, which is why the
times of the tides drift later from one day to the next.</p>
<p>Spring tides occur when the sun and the moon align, adding their
gravitational pulls together, while neap tides occur when they sit at right
angles and partially cancel each other. The difference between high and low
water is largest at spring tide and smallest at neap tide.</p>
<p>Tidal ranges vary enormously around the world. Some basins resonate with
the tidal period and amplify the range to well over ten meters, while enclosed
seas with narrow connections to the ocean barely register a change at all.</p>
</article>
</body>
</html>`

func fetchResult(t *testing.T, out any) map[string]any {
	t.Helper()
	result, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", out)
	}
	return result
}

func TestFetchSkillExtractsArticle(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	defer server.Close()

	skill := NewFetchSkill(server.Client(), 0)
	out, err := skill.Execute(context.Background(), map[string]any{"url": server.URL})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	result := fetchResult(t, out)

	content, _ := result["content"].(string)
	if !strings.Contains(content, "gravitational") {
		t.Fatalf("content missing article text: %.80q", content)
	}
	if strings.Contains(content, "<p>") {
		t.Fatalf("content still contains markup: %.120q", content)
	}
	if result["source"] != server.URL {
		t.Fatalf("unexpected source: %v", result["source"])
	}
	if result["method"] != "readability" {
		t.Fatalf("expected readability extraction, got %v", result["method"])
	}
	if title, _ := result["title"].(string); !strings.Contains(title, "Tides") {
		t.Fatalf("unexpected title: %q", title)
	}
	if gotUA == "" {
		t.Fatalf("expected a user agent header")
	}
}

func TestFetchSkillFallsBackOnEmptyExtraction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(""))
	}))
	defer server.Close()

	skill := NewFetchSkill(server.Client(), 0)
	out, err := skill.Execute(context.Background(), map[string]any{"url": server.URL})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	result := fetchResult(t, out)
	if result["method"] != "text_only" {
		t.Fatalf("expected text_only fallback, got %v", result["method"])
	}
}

func TestFetchSkillTruncatesToMaxChars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(articleHTML))
	}))
	defer server.Close()

	skill := NewFetchSkill(server.Client(), 0)
	out, err := skill.Execute(context.Background(), map[string]any{
		"url":       server.URL,
		"max_chars": 10,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	result := fetchResult(t, out)
	content, _ := result["content"].(string)
	if got := len([]rune(content)); got != 10 {
		t.Fatalf("expected content cut to 10 runes, got %d", got)
	}
	if strings.Contains(content, "TRUNCATED") {
		t.Fatalf("page content must truncate silently, got %q", content)
	}
}

func TestFetchSkillStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	skill := NewFetchSkill(server.Client(), 0)
	_, err := skill.Execute(context.Background(), map[string]any{"url": server.URL})
	if err == nil {
		t.Fatalf("expected error for 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestFetchSkillRejectsNonHTTPSchemes(t *testing.T) {
	skill := NewFetchSkill(http.DefaultClient, 0)
	for _, bad := range []string{"ftp://example.com/file", "file:///etc/passwd", "not a url", ""} {
		_, err := skill.Execute(context.Background(), map[string]any{"url": bad})
		if err == nil {
			t.Fatalf("expected error for %q", bad)
		}
		if !errors.IsCode(err, errors.CodeInvalidArguments) {
			t.Fatalf("expected INVALID_ARGUMENTS for %q, got %v", bad, err)
		}
	}
}

func TestFetchSkillTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	badURL := server.URL
	server.Close()

	skill := NewFetchSkill(http.DefaultClient, 0)
	_, err := skill.Execute(context.Background(), map[string]any{"url": badURL})
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if !errors.IsCode(err, errors.CodeCollaboratorUnavailable) {
		t.Fatalf("expected COLLABORATOR_UNAVAILABLE, got %v", err)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo", 3); got != "hél" {
		t.Fatalf("expected rune-safe cut, got %q", got)
	}
	if got := truncateRunes("short", 10); got != "short" {
		t.Fatalf("expected untouched string, got %q", got)
	}
	if got := truncateRunes("anything", 0); got != "anything" {
		t.Fatalf("expected no cap for zero, got %q", got)
	}
}

// Guards the URL validation against scheme-relative inputs that url.Parse
// accepts but http.NewRequest cannot fetch.
func TestFetchSkillRejectsRelativeURL(t *testing.T) {
	skill := NewFetchSkill(http.DefaultClient, 0)
	u := &url.URL{Path: "/relative/only"}
	_, err := skill.Execute(context.Background(), map[string]any{"url": u.String()})
	if err == nil {
		t.Fatalf("expected error for relative url")
	}
	if !errors.IsCode(err, errors.CodeInvalidArguments) {
		t.Fatalf("expected INVALID_ARGUMENTS, got %v", err)
	}
}

// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/safety"
)

func newTestWorkspace(t *testing.T) *safety.Workspace {
	t.Helper()
	ws, err := safety.NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	return ws
}

func TestReadSkill(t *testing.T) {
	ws := newTestWorkspace(t)
	if err := os.WriteFile(filepath.Join(ws.Root(), "notes.txt"), []byte("lunar gravity"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	skill := NewReadSkill(ws)
	out, err := skill.Execute(context.Background(), map[string]any{"path": "notes.txt"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	result, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", out)
	}
	if result["content"] != "lunar gravity" {
		t.Fatalf("unexpected content: %v", result["content"])
	}
	if result["path"] != "notes.txt" {
		t.Fatalf("unexpected path: %v", result["path"])
	}
	if result["size"] != len("lunar gravity") {
		t.Fatalf("unexpected size: %v", result["size"])
	}
	if result["encoding"] != "utf-8" {
		t.Fatalf("unexpected encoding: %v", result["encoding"])
	}
}

func TestReadSkillMissingFile(t *testing.T) {
	skill := NewReadSkill(newTestWorkspace(t))
	_, err := skill.Execute(context.Background(), map[string]any{"path": "nope.txt"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestReadSkillRejectsEscape(t *testing.T) {
	skill := NewReadSkill(newTestWorkspace(t))
	for _, path := range []string{"../outside.txt", "../../etc/passwd", "a/../../b"} {
		_, err := skill.Execute(context.Background(), map[string]any{"path": path})
		if err == nil {
			t.Fatalf("expected error for %q", path)
		}
		if !errors.IsCode(err, errors.CodeInvalidArguments) {
			t.Fatalf("expected INVALID_ARGUMENTS for %q, got %v", path, err)
		}
	}
}

func TestReadSkillRejectsBinary(t *testing.T) {
	ws := newTestWorkspace(t)
	if err := os.WriteFile(filepath.Join(ws.Root(), "blob.bin"), []byte{0xff, 0xfe, 0x00, 0x80}, 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	skill := NewReadSkill(ws)
	_, err := skill.Execute(context.Background(), map[string]any{"path": "blob.bin"})
	if err == nil {
		t.Fatalf("expected error for non-utf8 file")
	}
	if !errors.IsCode(err, errors.CodeInvalidArguments) {
		t.Fatalf("expected INVALID_ARGUMENTS, got %v", err)
	}
}

func TestWriteSkillCreatesParents(t *testing.T) {
	ws := newTestWorkspace(t)
	skill := NewWriteSkill(ws)

	out, err := skill.Execute(context.Background(), map[string]any{
		"path":    "reports/2026/summary.md",
		"content": "# Findings\n",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	result, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", out)
	}
	if result["size"] != len("# Findings\n") {
		t.Fatalf("unexpected size: %v", result["size"])
	}

	data, err := os.ReadFile(filepath.Join(ws.Root(), "reports", "2026", "summary.md"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "# Findings\n" {
		t.Fatalf("unexpected file content: %q", data)
	}
}

func TestWriteSkillRejectsOtherEncodings(t *testing.T) {
	skill := NewWriteSkill(newTestWorkspace(t))
	_, err := skill.Execute(context.Background(), map[string]any{
		"path":     "out.txt",
		"content":  "data",
		"encoding": "latin-1",
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.IsCode(err, errors.CodeInvalidArguments) {
		t.Fatalf("expected INVALID_ARGUMENTS, got %v", err)
	}
}

func TestWriteSkillAcceptsExplicitUTF8(t *testing.T) {
	skill := NewWriteSkill(newTestWorkspace(t))
	if _, err := skill.Execute(context.Background(), map[string]any{
		"path":     "out.txt",
		"content":  "data",
		"encoding": "UTF-8",
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}
}

func TestWriteSkillRejectsEscape(t *testing.T) {
	skill := NewWriteSkill(newTestWorkspace(t))
	_, err := skill.Execute(context.Background(), map[string]any{
		"path":    "../outside.txt",
		"content": "nope",
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errors.IsCode(err, errors.CodeInvalidArguments) {
		t.Fatalf("expected INVALID_ARGUMENTS, got %v", err)
	}
}

// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package safety confines filesystem-touching capabilities to a workspace
// directory and caps the output any capability may hand back to the loop.
package safety

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/jllopis/telos/pkg/errors"
)

// Workspace confines relative paths to a root directory. Every skill that
// touches the filesystem resolves its paths through here; anything that
// escapes the root after cleaning is rejected.
type Workspace struct {
	root string
}

// NewWorkspace creates (if needed) and anchors a workspace at root.
func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	// Pin the real directory so a symlinked root cannot be re-pointed later.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve maps a workspace-relative path to an absolute one, rejecting any
// path that escapes the root (".." segments, absolute paths outside root).
func (w *Workspace) Resolve(path string) (string, error) {
	joined := filepath.Join(w.root, path)
	cleaned := filepath.Clean(joined)

	rel, err := filepath.Rel(w.root, cleaned)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New(errors.CodeInvalidArguments, "path escapes workspace", nil).
			WithContext("path", path)
	}
	return cleaned, nil
}

// Rel converts an absolute path inside the workspace back to its relative
// form for display. Paths outside the root are returned unchanged.
func (w *Workspace) Rel(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	return rel
}

// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/jllopis/telos/pkg/errors"
	"github.com/jllopis/telos/pkg/safety"
)

// DefaultCommandTimeout bounds exec.run when neither config nor the call
// provide one.
const DefaultCommandTimeout = 20 * time.Second

// DefaultMaxOutputChars caps captured stdout/stderr per stream.
const DefaultMaxOutputChars = 10000

// bannedFragments rejects code before it ever reaches the interpreter.
// Matching is plain substring on the lowercased source: blunt on purpose —
// anything touching process control, the filesystem outside fs.*, or the
// network does not belong in scratch code.
var bannedFragments = []string{
	"import os", "import sys", "import subprocess", "import socket",
	"import requests", "import urllib", "import pickle",
	"eval(", "exec(", "__import__", "importlib",
	"open(", "file(", "os.remove", "os.unlink", "os.rmdir",
	"socket", "http", "ftp", "smtp",
}

// RunSkill executes scratch code with the configured interpreter in a
// scrubbed environment. The interpreter sees only a temp file path; the
// code never passes through a shell.
type RunSkill struct {
	interpreter string
	timeout     time.Duration
	maxOutput   int
}

// NewRunSkill builds the exec.run capability. Zero values select python3,
// DefaultCommandTimeout and DefaultMaxOutputChars.
func NewRunSkill(interpreter string, timeout time.Duration, maxOutput int) *RunSkill {
	if interpreter == "" {
		interpreter = "python3"
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutputChars
	}
	return &RunSkill{interpreter: interpreter, timeout: timeout, maxOutput: maxOutput}
}

func (s *RunSkill) Name() string { return "exec.run" }

func (s *RunSkill) Description() string {
	return "Run a short snippet of code with the sandboxed interpreter and capture its output."
}

func (s *RunSkill) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"description": "Source code to execute",
			},
			"timeout_seconds": map[string]any{
				"type":        "integer",
				"minimum":     1,
				"description": "Wall-clock limit for this execution",
			},
		},
		"required":             []string{"code"},
		"additionalProperties": false,
	}
}

func (s *RunSkill) Execute(ctx context.Context, args map[string]any) (any, error) {
	code := stringArg(args, "code")
	if fragment := disallowedFragment(code); fragment != "" {
		return nil, errors.NewInvalidArguments(s.Name(),
			[]string{fmt.Sprintf("code contains disallowed fragment %q", fragment)})
	}

	timeout := s.timeout
	if secs := intArg(args, "timeout_seconds", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	script, err := os.CreateTemp("", "telos-exec-*.py")
	if err != nil {
		return nil, fmt.Errorf("stage code: %w", err)
	}
	defer os.Remove(script.Name())
	if _, err := script.WriteString(code); err != nil {
		script.Close()
		return nil, fmt.Errorf("stage code: %w", err)
	}
	if err := script.Close(); err != nil {
		return nil, fmt.Errorf("stage code: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(cctx, s.interpreter, script.Name())
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = []string{
		"PATH=/usr/bin:/bin",
		"HOME=/tmp",
		"PYTHONPATH=",
		"PYTHONDONTWRITEBYTECODE=1",
		"PYTHONUNBUFFERED=1",
	}

	runErr := cmd.Run()
	switch {
	case cctx.Err() == context.DeadlineExceeded:
		return nil, errors.New(errors.CodeTimeout, "code execution timed out", nil).
			WithContext("timeout", timeout.String())
	case cctx.Err() == context.Canceled:
		return nil, errors.New(errors.CodeCancelled, "code execution cancelled", ctx.Err())
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if stderrors.As(runErr, &exitErr) {
			tail := safety.Truncate(strings.TrimSpace(stderr.String()), 500)
			return nil, fmt.Errorf("code exited with status %d: %s", exitErr.ExitCode(), tail)
		}
		return nil, fmt.Errorf("interpreter failed: %w", runErr)
	}

	return map[string]any{
		"return_code": cmd.ProcessState.ExitCode(),
		"stdout":      safety.Truncate(stdout.String(), s.maxOutput),
		"stderr":      safety.Truncate(stderr.String(), s.maxOutput),
	}, nil
}

func disallowedFragment(code string) string {
	lowered := strings.ToLower(code)
	for _, fragment := range bannedFragments {
		if strings.Contains(lowered, fragment) {
			return fragment
		}
	}
	return ""
}

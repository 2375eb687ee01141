// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// AutoResolver approves every item. Pair with ModeConsole in tests that
// need asynchronous settlement without a terminal.
type AutoResolver struct{}

// Resolve approves the item.
func (AutoResolver) Resolve(_ context.Context, _ ApprovalItem) (ApprovalStatus, string) {
	return StatusApproved, "auto-approved"
}

// StaticResolver returns a fixed status for every item.
type StaticResolver struct {
	Status ApprovalStatus
	Reason string
}

// Resolve returns the configured status.
func (r StaticResolver) Resolve(_ context.Context, _ ApprovalItem) (ApprovalStatus, string) {
	return r.Status, r.Reason
}

// ConsoleResolver prompts for a decision on stdin/stdout.
type ConsoleResolver struct {
	in      *bufio.Reader
	out     io.Writer
	prompt  string
	timeout time.Duration
}

// ConsoleOption configures the console resolver.
type ConsoleOption func(*ConsoleResolver)

// NewConsoleResolver creates a console-based resolver.
func NewConsoleResolver(opts ...ConsoleOption) *ConsoleResolver {
	r := &ConsoleResolver{
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		prompt: "Approve? [y/N]: ",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithConsoleInput sets the input reader.
func WithConsoleInput(in io.Reader) ConsoleOption {
	return func(r *ConsoleResolver) {
		if in != nil {
			r.in = bufio.NewReader(in)
		}
	}
}

// WithConsoleOutput sets the output writer.
func WithConsoleOutput(out io.Writer) ConsoleOption {
	return func(r *ConsoleResolver) {
		if out != nil {
			r.out = out
		}
	}
}

// WithConsolePrompt sets the prompt string.
func WithConsolePrompt(prompt string) ConsoleOption {
	return func(r *ConsoleResolver) {
		if strings.TrimSpace(prompt) != "" {
			r.prompt = prompt
		}
	}
}

// WithConsoleTimeout bounds how long the prompt waits for input. Zero means
// wait until the context is done.
func WithConsoleTimeout(timeout time.Duration) ConsoleOption {
	return func(r *ConsoleResolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// Resolve prompts for the item and reads one line. Anything starting with
// "y" approves; everything else rejects. Cancellation or timeout leaves the
// item pending for the sweeper.
func (r *ConsoleResolver) Resolve(ctx context.Context, item ApprovalItem) (ApprovalStatus, string) {
	if r == nil || r.in == nil {
		return StatusPending, ""
	}

	_, _ = fmt.Fprintf(r.out, "\nApproval required for capability %q\n", item.Action)
	if item.RunID != "" {
		_, _ = fmt.Fprintf(r.out, "Run: %s\n", item.RunID)
	}
	_, _ = fmt.Fprintf(r.out, "Reason: %s\n", item.Reason)
	_, _ = fmt.Fprint(r.out, r.prompt)

	responseCh := make(chan string, 1)
	go func() {
		line, _ := r.in.ReadString('\n')
		responseCh <- line
	}()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	select {
	case <-ctx.Done():
		return StatusPending, ""
	case line := <-responseCh:
		answer := strings.ToLower(strings.TrimSpace(line))
		if strings.HasPrefix(answer, "y") {
			return StatusApproved, "approved by operator"
		}
		return StatusRejected, "rejected by operator"
	}
}

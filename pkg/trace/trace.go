// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package trace persists run events as append-only JSON lines, one file per
// run. Files are written incrementally while a run executes and can be read
// or followed concurrently; a partially written final line is tolerated on
// read and picked up on the next poll when following.
package trace

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jllopis/telos/pkg/core"
	"github.com/jllopis/telos/pkg/errors"
)

// Writer appends run events to <dir>/<run_id>.jsonl.
type Writer struct {
	dir string
}

// NewWriter creates a writer rooted at dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{dir: dir}, nil
}

// PathFor returns the trace file path for a run.
func (w *Writer) PathFor(runID string) string {
	return filepath.Join(w.dir, runID+".jsonl")
}

// Append writes one event to the run's trace file. The timestamp is always
// assigned here, so ordering within a file reflects write order.
func (w *Writer) Append(runID string, event core.Event) error {
	event.RunID = runID
	event.Timestamp = time.Now().UTC()

	file, err := os.OpenFile(w.PathFor(runID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	return enc.Encode(event)
}

// Emit implements core.EventEmitter, discarding events without a run id.
func (w *Writer) Emit(_ context.Context, event core.Event) {
	if event.RunID == "" {
		return
	}
	_ = w.Append(event.RunID, event)
}

var _ core.EventEmitter = (*Writer)(nil)

// Reader reads trace files written by Writer.
type Reader struct {
	dir string
}

// NewReader creates a reader over dir.
func NewReader(dir string) *Reader {
	return &Reader{dir: dir}
}

// PathFor returns the trace file path for a run.
func (r *Reader) PathFor(runID string) string {
	return filepath.Join(r.dir, runID+".jsonl")
}

// ReadAll returns every complete event in a run's trace. A trailing line
// still being written is skipped; an undecodable line elsewhere is reported
// as a parse error.
func (r *Reader) ReadAll(runID string) ([]core.Event, error) {
	file, err := os.Open(r.PathFor(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeNotFound, "no trace for run "+runID, err)
		}
		return nil, err
	}
	defer file.Close()

	var events []core.Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event core.Event
		if err := json.Unmarshal(line, &event); err != nil {
			if scanner.Scan() {
				return nil, errors.NewParseError("trace line", lineNo, err)
			}
			break // partial tail, writer still at work
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// List returns the run ids with a trace file, oldest id first.
func (r *Reader) List() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".jsonl"))
	}
	sort.Strings(ids)
	return ids, nil
}

// followInterval is how often Stream polls for appended data.
const followInterval = 200 * time.Millisecond

// Stream follows a run's trace, sending events as they are appended. It
// starts from the beginning of the file, waits for the file to appear if the
// run has not started writing yet, and stops when ctx is done. Partial lines
// at the tail are held back until the newline arrives.
func (r *Reader) Stream(ctx context.Context, runID string) (<-chan core.Event, error) {
	path := r.PathFor(runID)
	out := make(chan core.Event, 16)

	go func() {
		defer close(out)

		var offset int64
		pending := make([]byte, 0, 4096)

		ticker := time.NewTicker(followInterval)
		defer ticker.Stop()

		for {
			offset = r.drain(ctx, path, offset, &pending, out)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out, nil
}

// drain reads any bytes appended past offset, emits complete lines and
// returns the new offset. Bytes after the last newline stay in pending.
func (r *Reader) drain(ctx context.Context, path string, offset int64, pending *[]byte, out chan<- core.Event) int64 {
	info, err := os.Stat(path)
	if err != nil || info.Size() <= offset {
		return offset
	}

	file, err := os.Open(path)
	if err != nil {
		return offset
	}
	defer file.Close()

	if _, err := file.Seek(offset, 0); err != nil {
		return offset
	}

	buf := make([]byte, info.Size()-offset)
	n, err := file.Read(buf)
	if n == 0 && err != nil {
		return offset
	}
	offset += int64(n)
	*pending = append(*pending, buf[:n]...)

	for {
		idx := -1
		for i, b := range *pending {
			if b == '\n' {
				idx = i
				break
			}
		}
		if idx < 0 {
			return offset
		}
		line := (*pending)[:idx]
		*pending = (*pending)[idx+1:]
		if len(line) == 0 {
			continue
		}
		var event core.Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue // skip malformed line, keep following
		}
		select {
		case out <- event:
		case <-ctx.Done():
			return offset
		}
	}
}

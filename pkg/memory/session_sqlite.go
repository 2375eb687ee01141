// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (creating directories as needed) the SQLite database at
// path. The caller owns the returned handle.
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return sql.Open("sqlite", path)
}

// SQLiteSessionStore persists session history in SQLite.
type SQLiteSessionStore struct {
	db *sql.DB
}

// NewSQLiteSessionStore wraps db and ensures the schema exists.
func NewSQLiteSessionStore(db *sql.DB) (*SQLiteSessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	s := &SQLiteSessionStore{db: db}
	if err := s.ensureSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSessionStore) ensureSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT,
			tag TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tool_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			capability TEXT NOT NULL,
			input TEXT NOT NULL,
			output TEXT,
			error TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reflections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			text TEXT NOT NULL,
			usefulness REAL NOT NULL,
			memory_updates TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id, created_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_events_session ON tool_events (session_id, created_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_reflections_session ON reflections (session_id, step)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateSession registers the session, refreshing updated_at when it exists.
func (s *SQLiteSessionStore) CreateSession(ctx context.Context, id string) error {
	now := time.Now().UTC().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		id, now, now)
	return err
}

// AppendMessage stores one message.
func (s *SQLiteSessionStore) AppendMessage(ctx context.Context, msg Message) error {
	var metadata []byte
	if msg.Metadata != nil {
		var err error
		if metadata, err = json.Marshal(msg.Metadata); err != nil {
			return err
		}
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, metadata, tag, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.SessionID, msg.Role, msg.Content, nullableText(metadata), msg.Tag, createdAt.UnixMilli())
	return err
}

// AppendToolEvent stores one capability invocation.
func (s *SQLiteSessionStore) AppendToolEvent(ctx context.Context, event ToolEvent) error {
	input, err := json.Marshal(event.Input)
	if err != nil {
		return err
	}
	var output []byte
	if event.Output != nil {
		if output, err = json.Marshal(event.Output); err != nil {
			return err
		}
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tool_events (session_id, capability, input, output, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.SessionID, event.Capability, string(input), nullableText(output), event.Error, createdAt.UnixMilli())
	return err
}

// AppendReflection stores one per-step evaluation.
func (s *SQLiteSessionStore) AppendReflection(ctx context.Context, r Reflection) error {
	var updates []byte
	if r.MemoryUpdates != nil {
		var err error
		if updates, err = json.Marshal(r.MemoryUpdates); err != nil {
			return err
		}
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reflections (session_id, step, text, usefulness, memory_updates, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Step, r.Text, r.Usefulness, nullableText(updates), createdAt.UnixMilli())
	return err
}

// History returns the last limit messages in chronological order.
func (s *SQLiteSessionStore) History(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	query := `SELECT id, session_id, role, content, metadata, tag, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			msg         Message
			metadata    sql.NullString
			tag         sql.NullString
			createdAtMs int64
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &metadata, &tag, &createdAtMs); err != nil {
			return nil, err
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
				msg.Metadata = nil
			}
		}
		msg.Tag = tag.String
		msg.CreatedAt = time.UnixMilli(createdAtMs).UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverseMessages(messages)
	return messages, nil
}

// ToolEvents returns the last limit tool events in chronological order.
func (s *SQLiteSessionStore) ToolEvents(ctx context.Context, sessionID string, limit int) ([]ToolEvent, error) {
	query := `SELECT id, session_id, capability, input, output, error, created_at
		FROM tool_events WHERE session_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ToolEvent
	for rows.Next() {
		var (
			event       ToolEvent
			input       string
			output      sql.NullString
			errText     sql.NullString
			createdAtMs int64
		)
		if err := rows.Scan(&event.ID, &event.SessionID, &event.Capability, &input, &output, &errText, &createdAtMs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(input), &event.Input); err != nil {
			event.Input = nil
		}
		if output.Valid && output.String != "" {
			var decoded any
			if err := json.Unmarshal([]byte(output.String), &decoded); err == nil {
				event.Output = decoded
			}
		}
		event.Error = errText.String
		event.CreatedAt = time.UnixMilli(createdAtMs).UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// Reflections returns all reflections ordered by step.
func (s *SQLiteSessionStore) Reflections(ctx context.Context, sessionID string) ([]Reflection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, step, text, usefulness, memory_updates, created_at
		 FROM reflections WHERE session_id = ? ORDER BY step`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reflections []Reflection
	for rows.Next() {
		var (
			r           Reflection
			updates     sql.NullString
			createdAtMs int64
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Step, &r.Text, &r.Usefulness, &updates, &createdAtMs); err != nil {
			return nil, err
		}
		if updates.Valid && updates.String != "" {
			if err := json.Unmarshal([]byte(updates.String), &r.MemoryUpdates); err != nil {
				r.MemoryUpdates = nil
			}
		}
		r.CreatedAt = time.UnixMilli(createdAtMs).UTC()
		reflections = append(reflections, r)
	}
	return reflections, rows.Err()
}

// Summarize returns a one-line digest of a session for the CLI.
func (s *SQLiteSessionStore) Summarize(ctx context.Context, sessionID string) (string, error) {
	messages, err := s.History(ctx, sessionID, 0)
	if err != nil {
		return "", err
	}
	reflections, err := s.Reflections(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return sessionDigest(messages, reflections), nil
}

// Close closes the underlying database handle.
func (s *SQLiteSessionStore) Close() error {
	return s.db.Close()
}

func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func reverseMessages(messages []Message) {
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
}

// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const approvalTable = "approvals"

// SQLiteApprovalStore persists approvals in a SQLite database so they
// survive restarts and are visible to the admin API in headless mode.
type SQLiteApprovalStore struct {
	db *sql.DB
}

// NewSQLiteApprovalStore creates a SQLite-backed approval store and ensures
// its schema.
func NewSQLiteApprovalStore(db *sql.DB) (*SQLiteApprovalStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	_, err := db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		reason TEXT,
		status TEXT NOT NULL,
		run_id TEXT,
		step_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0
	)`, approvalTable))
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_approvals_status ON %s (status, updated_at)", approvalTable)); err != nil {
		return nil, err
	}
	return &SQLiteApprovalStore{db: db}, nil
}

// Create inserts an approval item.
func (s *SQLiteApprovalStore) Create(ctx context.Context, item ApprovalItem) (*ApprovalItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = StatusPending
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	expiresAt := int64(0)
	if !item.ExpiresAt.IsZero() {
		expiresAt = item.ExpiresAt.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, action, reason, status, run_id, step_id, created_at, updated_at, expires_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", approvalTable),
		item.ID, item.Action, item.Reason, string(item.Status), item.RunID, item.StepID,
		item.CreatedAt.UnixMilli(), item.UpdatedAt.UnixMilli(), expiresAt)
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, item.ID)
}

// Get returns an approval item by id.
func (s *SQLiteApprovalStore) Get(ctx context.Context, id string) (*ApprovalItem, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id, action, reason, status, run_id, step_id, created_at, updated_at, expires_at FROM %s WHERE id = ?", approvalTable),
		id,
	)
	item, err := scanApproval(row.Scan)
	if err == sql.ErrNoRows {
		return nil, notFound(id)
	}
	return item, err
}

// List returns items matching the filter, most recently updated first.
func (s *SQLiteApprovalStore) List(ctx context.Context, filter Filter) ([]*ApprovalItem, error) {
	where := "1=1"
	args := make([]any, 0)
	if filter.Status != "" {
		where += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.RunID != "" {
		where += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if !filter.ExpiringBefore.IsZero() {
		where += " AND expires_at > 0 AND expires_at <= ?"
		args = append(args, filter.ExpiringBefore.UnixMilli())
	}
	limit := ""
	if filter.Limit > 0 {
		limit = fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	query := fmt.Sprintf("SELECT id, action, reason, status, run_id, step_id, created_at, updated_at, expires_at FROM %s WHERE %s ORDER BY updated_at DESC%s", approvalTable, where, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*ApprovalItem, 0)
	for rows.Next() {
		item, err := scanApproval(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// Resolve transitions a pending item. The status guard in the WHERE clause
// makes the pending-only rule atomic under concurrent resolvers.
func (s *SQLiteApprovalStore) Resolve(ctx context.Context, id string, status ApprovalStatus, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET status = ?, reason = ?, updated_at = ? WHERE id = ? AND status = ?", approvalTable),
		string(status), reason, time.Now().UTC().UnixMilli(), id, string(StatusPending))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ExpireApprovals rejects every pending item whose deadline has passed.
func (s *SQLiteApprovalStore) ExpireApprovals(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET status = ?, reason = 'expired', updated_at = ? WHERE status = ? AND expires_at > 0 AND expires_at <= ?", approvalTable),
		string(StatusRejected), now.UnixMilli(), string(StatusPending), now.UnixMilli())
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// PendingCount returns the number of unresolved items.
func (s *SQLiteApprovalStore) PendingCount(ctx context.Context) (int64, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE status = ?", approvalTable), string(StatusPending))
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanApproval(scan func(dest ...any) error) (*ApprovalItem, error) {
	var (
		item        ApprovalItem
		status      string
		reason      sql.NullString
		runID       sql.NullString
		stepID      sql.NullString
		createdAtMs int64
		updatedAtMs int64
		expiresAtMs int64
	)
	if err := scan(&item.ID, &item.Action, &reason, &status, &runID, &stepID, &createdAtMs, &updatedAtMs, &expiresAtMs); err != nil {
		return nil, err
	}
	item.Status = ApprovalStatus(status)
	item.Reason = reason.String
	item.RunID = runID.String
	item.StepID = stepID.String
	item.CreatedAt = time.UnixMilli(createdAtMs).UTC()
	item.UpdatedAt = time.UnixMilli(updatedAtMs).UTC()
	if expiresAtMs > 0 {
		item.ExpiresAt = time.UnixMilli(expiresAtMs).UTC()
	}
	return &item, nil
}

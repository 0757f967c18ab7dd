package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/taskerco/complaintdesk/internal/app"
	"github.com/taskerco/complaintdesk/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository stores pending offline changes in a local sqlite database.
type Repository struct {
	db *sql.DB
}

// Open opens the database at path, creating parent directories and schema as needed.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens in memory.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// A shared in-memory database lives only while a connection is open.
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS pending_changes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			queue_key TEXT NOT NULL,
			draft_id TEXT NOT NULL DEFAULT '',
			record_json TEXT NOT NULL,
			queued_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pending_changes_queue ON pending_changes(queue_key, id);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// AppendPendingChange inserts change and returns it with its sequence id.
func (r *Repository) AppendPendingChange(ctx context.Context, change domain.PendingChange) (domain.PendingChange, error) {
	recordJSON, err := json.Marshal(change.Record)
	if err != nil {
		return domain.PendingChange{}, fmt.Errorf("encode pending record: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_changes(queue_key, draft_id, record_json, queued_at)
		VALUES(?, ?, ?, ?)
	`, change.QueueKey, change.DraftID, string(recordJSON), ts(change.QueuedAt))
	if err != nil {
		return domain.PendingChange{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.PendingChange{}, err
	}
	change.ID = id
	return change, nil
}

// ListPendingChanges returns the entries for queueKey in insertion order.
func (r *Repository) ListPendingChanges(ctx context.Context, queueKey string) ([]domain.PendingChange, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, queue_key, draft_id, record_json, queued_at
		FROM pending_changes
		WHERE queue_key = ?
		ORDER BY id ASC
	`, queueKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.PendingChange, 0)
	for rows.Next() {
		change, err := scanPendingChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, change)
	}
	return out, rows.Err()
}

// UpdatePendingChange rewrites the stored record of an existing entry.
func (r *Repository) UpdatePendingChange(ctx context.Context, change domain.PendingChange) error {
	recordJSON, err := json.Marshal(change.Record)
	if err != nil {
		return fmt.Errorf("encode pending record: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE pending_changes
		SET draft_id = ?, record_json = ?
		WHERE id = ?
	`, change.DraftID, string(recordJSON), change.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// DeletePendingChange removes one entry after a confirmed replay.
func (r *Repository) DeletePendingChange(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_changes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// CountPendingChanges counts the entries for queueKey.
func (r *Repository) CountPendingChanges(ctx context.Context, queueKey string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM pending_changes WHERE queue_key = ?`, queueKey).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListQueueKeys returns every queue key that still holds entries.
func (r *Repository) ListQueueKeys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT queue_key FROM pending_changes ORDER BY queue_key ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanPendingChange handles scan pending change.
func scanPendingChange(s scanner) (domain.PendingChange, error) {
	var (
		change     domain.PendingChange
		recordJSON string
		queuedRaw  string
	)
	if err := s.Scan(&change.ID, &change.QueueKey, &change.DraftID, &recordJSON, &queuedRaw); err != nil {
		return domain.PendingChange{}, err
	}
	if err := json.Unmarshal([]byte(recordJSON), &change.Record); err != nil {
		return domain.PendingChange{}, fmt.Errorf("decode pending record %d: %w", change.ID, err)
	}
	change.QueuedAt = parseTS(queuedRaw)
	return change, nil
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// Package db provides CRUD repository operations for the sync tables.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/leobar37/leobit2-sub001/internal/models"
)

// Repository provides CRUD operations for the sync_queue and sync_state
// tables. Every method is a single statement, so each call is atomic.
type Repository struct {
	db *sql.DB

	// Prepared statements are cached by query text and reused.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	// Another goroutine may have prepared the same query meanwhile.
	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		if err := value.(*sql.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.stmtCache.Delete(key)
		return true
	})
	return firstErr
}

// =====================================================
// SyncQueue Operations
// =====================================================

const syncQueueColumns = `id, entity, action, entity_id, payload, timestamp, attempts,
	status, retry_count, last_error, created_at, updated_at`

// UpsertSyncQueue inserts a pending row or overwrites the row with the same
// id. Rows that already left pending are not touched. Reports whether a row
// was written.
func (r *Repository) UpsertSyncQueue(ctx context.Context, row *models.SyncQueue) (bool, error) {
	query := `
	INSERT INTO sync_queue (` + syncQueueColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', 0, NULL, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		entity = excluded.entity,
		action = excluded.action,
		entity_id = excluded.entity_id,
		payload = excluded.payload,
		timestamp = excluded.timestamp,
		attempts = excluded.attempts,
		status = 'pending',
		retry_count = 0,
		last_error = NULL,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at
	WHERE sync_queue.status = 'pending'
	`
	stmt, err := r.PrepareStmt(ctx, query)
	if err != nil {
		return false, err
	}

	res, err := stmt.ExecContext(ctx, row.ID, row.Entity, row.Action, row.EntityID,
		[]byte(row.Payload), row.Timestamp, row.Attempts, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetSyncQueue retrieves a queue row by id. Returns sql.ErrNoRows if absent.
func (r *Repository) GetSyncQueue(ctx context.Context, id string) (*models.SyncQueue, error) {
	stmt, err := r.PrepareStmt(ctx, `SELECT `+syncQueueColumns+` FROM sync_queue WHERE id = ?`)
	if err != nil {
		return nil, err
	}
	return scanSyncQueue(stmt.QueryRowContext(ctx, id))
}

// ListSyncQueueByStatus returns up to limit rows with the given status,
// oldest first. Ties on created_at fall back to insertion order.
func (r *Repository) ListSyncQueueByStatus(ctx context.Context, status string, limit int) ([]*models.SyncQueue, error) {
	query := `SELECT ` + syncQueueColumns + ` FROM sync_queue
	WHERE status = ?
	ORDER BY created_at ASC, seq ASC
	LIMIT ?`
	stmt, err := r.PrepareStmt(ctx, query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.SyncQueue
	for rows.Next() {
		row, err := scanSyncQueue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountSyncQueue counts rows with the given status.
func (r *Repository) CountSyncQueue(ctx context.Context, status string) (int, error) {
	stmt, err := r.PrepareStmt(ctx, `SELECT COUNT(*) FROM sync_queue WHERE status = ?`)
	if err != nil {
		return 0, err
	}
	var n int
	err = stmt.QueryRowContext(ctx, status).Scan(&n)
	return n, err
}

// CountSyncQueueByStatus returns row counts keyed by status.
func (r *Repository) CountSyncQueueByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM sync_queue GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// MarkSyncQueueProcessed moves a pending row to processed and clears its
// last error. Reports whether a row changed.
func (r *Repository) MarkSyncQueueProcessed(ctx context.Context, id string, now int64) (bool, error) {
	query := `UPDATE sync_queue SET status = 'processed', last_error = NULL, updated_at = ?
	WHERE id = ? AND status = 'pending'`
	return r.execChanged(ctx, query, now, id)
}

// MarkSyncQueueFailed records a failure on a pending row: retry_count is
// incremented and the row moves to status (pending or failed). Reports
// whether a row changed.
func (r *Repository) MarkSyncQueueFailed(ctx context.Context, id, errMsg, status string, now int64) (bool, error) {
	query := `UPDATE sync_queue SET retry_count = retry_count + 1, status = ?, last_error = ?, updated_at = ?
	WHERE id = ? AND status = 'pending'`
	return r.execChanged(ctx, query, status, errMsg, now, id)
}

func (r *Repository) execChanged(ctx context.Context, query string, args ...interface{}) (bool, error) {
	stmt, err := r.PrepareStmt(ctx, query)
	if err != nil {
		return false, err
	}
	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSyncQueue(s rowScanner) (*models.SyncQueue, error) {
	var row models.SyncQueue
	var payload []byte
	var lastError sql.NullString
	err := s.Scan(
		&row.ID, &row.Entity, &row.Action, &row.EntityID, &payload, &row.Timestamp,
		&row.Attempts, &row.Status, &row.RetryCount, &lastError, &row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		row.Payload = append([]byte(nil), payload...)
	}
	if lastError.Valid {
		row.LastError = lastError.String
	}
	return &row, nil
}

// =====================================================
// SyncState Operations
// =====================================================

// GetSyncState retrieves a persisted value. Returns sql.ErrNoRows if absent.
func (r *Repository) GetSyncState(ctx context.Context, key string) (*models.SyncState, error) {
	stmt, err := r.PrepareStmt(ctx, `SELECT key, value, updated_at FROM sync_state WHERE key = ?`)
	if err != nil {
		return nil, err
	}
	var st models.SyncState
	if err := stmt.QueryRowContext(ctx, key).Scan(&st.Key, &st.Value, &st.UpdatedAt); err != nil {
		return nil, err
	}
	return &st, nil
}

// SetSyncState inserts or replaces a persisted value.
func (r *Repository) SetSyncState(ctx context.Context, key, value string, now int64) error {
	query := `INSERT INTO sync_state (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	stmt, err := r.PrepareStmt(ctx, query)
	if err != nil {
		return err
	}
	_, err = stmt.ExecContext(ctx, key, value, now)
	return err
}

// Package db provides repository interfaces for the sync tables.
package db

import (
	"context"

	"github.com/leobar37/leobit2-sub001/internal/models"
)

// SyncQueueRepository defines operations for queue row persistence.
type SyncQueueRepository interface {
	// UpsertSyncQueue inserts or overwrites a pending row.
	UpsertSyncQueue(ctx context.Context, row *models.SyncQueue) (bool, error)

	// GetSyncQueue retrieves a row by id.
	GetSyncQueue(ctx context.Context, id string) (*models.SyncQueue, error)

	// ListSyncQueueByStatus lists rows with a status, oldest first.
	ListSyncQueueByStatus(ctx context.Context, status string, limit int) ([]*models.SyncQueue, error)

	// CountSyncQueue counts rows with a status.
	CountSyncQueue(ctx context.Context, status string) (int, error)

	// CountSyncQueueByStatus counts rows grouped by status.
	CountSyncQueueByStatus(ctx context.Context) (map[string]int, error)

	// MarkSyncQueueProcessed moves a pending row to processed.
	MarkSyncQueueProcessed(ctx context.Context, id string, now int64) (bool, error)

	// MarkSyncQueueFailed records a failure on a pending row.
	MarkSyncQueueFailed(ctx context.Context, id, errMsg, status string, now int64) (bool, error)
}

// SyncStateRepository defines operations for persisted sync state.
type SyncStateRepository interface {
	GetSyncState(ctx context.Context, key string) (*models.SyncState, error)
	SetSyncState(ctx context.Context, key, value string, now int64) error
}

// SyncRepository combines the repositories the sync engine needs.
type SyncRepository interface {
	SyncQueueRepository
	SyncStateRepository
}

var _ SyncRepository = (*Repository)(nil)

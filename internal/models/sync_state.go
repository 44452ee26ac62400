// Package models provides row definitions for the local sync database.
package models

import "time"

// Well-known sync_state keys.
const (
	SyncStateCursor     = "cursor"
	SyncStateLastSyncAt = "last_sync_at"
)

// SyncState is a persisted key/value pair that survives restarts:
// the pull cursor and the last successful sync time.
type SyncState struct {
	Key       string `db:"key" json:"key"`
	Value     string `db:"value" json:"value"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for SyncState.
func (SyncState) TableName() string {
	return "sync_state"
}

// UpdatedAtTime returns UpdatedAt as time.Time.
func (s *SyncState) UpdatedAtTime() time.Time {
	return time.Unix(0, s.UpdatedAt)
}

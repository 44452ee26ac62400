// Package models provides row definitions for the local sync database.
package models

import (
	"encoding/json"
	"time"
)

// SyncQueue is one row of the durable operation queue.
// Timestamps are Unix nanoseconds so that drain order survives bursts of
// enqueues within the same millisecond.
type SyncQueue struct {
	ID         string          `db:"id" json:"id"`
	Entity     string          `db:"entity" json:"entity"`
	Action     string          `db:"action" json:"action"` // insert, update, delete
	EntityID   string          `db:"entity_id" json:"entity_id"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	Timestamp  int64           `db:"timestamp" json:"timestamp"`
	Attempts   int             `db:"attempts" json:"attempts"`
	Status     string          `db:"status" json:"status"` // pending, processed, failed
	RetryCount int             `db:"retry_count" json:"retry_count"`
	LastError  string          `db:"last_error" json:"last_error,omitempty"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
	UpdatedAt  int64           `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for SyncQueue.
func (SyncQueue) TableName() string {
	return "sync_queue"
}

// TimestampTime returns Timestamp as time.Time.
func (s *SyncQueue) TimestampTime() time.Time {
	return time.Unix(0, s.Timestamp)
}

// CreatedAtTime returns CreatedAt as time.Time.
func (s *SyncQueue) CreatedAtTime() time.Time {
	return time.Unix(0, s.CreatedAt)
}

// UpdatedAtTime returns UpdatedAt as time.Time.
func (s *SyncQueue) UpdatedAtTime() time.Time {
	return time.Unix(0, s.UpdatedAt)
}

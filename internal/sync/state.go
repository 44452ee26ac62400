package sync

import "time"

// SyncStatus represents the current engine status.
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusOffline SyncStatus = "offline"
	SyncStatusError   SyncStatus = "error"
)

// State is the observable engine state. It lives in memory; only LastSyncAt
// is restored from storage when an engine is created.
type State struct {
	Status       SyncStatus `json:"status"`
	PendingCount int        `json:"pendingCount"`
	LastSyncAt   *time.Time `json:"lastSyncAt,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
	IsOnline     bool       `json:"isOnline"`
	IsSyncing    bool       `json:"isSyncing"`
}

// clone returns a copy that shares no pointers with s.
func (s State) clone() State {
	if s.LastSyncAt != nil {
		t := *s.LastSyncAt
		s.LastSyncAt = &t
	}
	return s
}

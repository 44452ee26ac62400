// Package sync provides synchronization interfaces and implementations.
package sync

import (
	"context"

	"github.com/leobar37/leobit2-sub001/internal/sync/scheduler"
)

// SyncEngineInterface defines the interface for sync engine operations.
// This interface allows for mocking in tests and alternative implementations.
type SyncEngineInterface interface {
	// EnqueueOperation records a mutation and returns its operation id.
	EnqueueOperation(ctx context.Context, in OperationInput) (string, error)

	// Sync performs one synchronization cycle.
	// Returns the sync result with statistics or an error if the cycle fails.
	Sync(ctx context.Context) (*SyncResult, error)

	// ForceSync starts a cycle in the background.
	// Returns an AppError when offline, already syncing or closed.
	ForceSync() error

	// State returns the current engine state.
	State() State

	// Subscribe registers a state listener and returns its unsubscribe func.
	Subscribe(l func(State)) (unsubscribe func())

	// SchedulerStatus reports the periodic timer.
	SchedulerStatus() scheduler.SchedulerStatus

	// Start and Stop are reference counted.
	Start()
	Stop()
}

var _ SyncEngineInterface = (*Engine)(nil)

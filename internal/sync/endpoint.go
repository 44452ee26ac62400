package sync

import (
	"context"
	"encoding/json"
)

// PushEntry is one operation in a push batch.
type PushEntry struct {
	OperationID     string          `json:"operationId"`
	Entity          string          `json:"entity"`
	Action          string          `json:"action"`
	EntityID        string          `json:"entityId"`
	Payload         json.RawMessage `json:"payload"`
	ClientTimestamp string          `json:"clientTimestamp"`
}

// PushRequest is an ordered batch of operations.
type PushRequest struct {
	Operations []PushEntry `json:"operations"`
}

// PushResult is the remote outcome for one operation.
// Retryable is nil when the server did not classify the failure.
type PushResult struct {
	OperationID string `json:"operationId"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
	Retryable   *bool  `json:"retryable,omitempty"`
}

// PushResponse carries per-operation results. Ids may be omitted.
type PushResponse struct {
	Results []PushResult `json:"results"`
}

// PullRequest asks for changes after Since. An empty Since means from the
// beginning of the feed.
type PullRequest struct {
	Since string `json:"since,omitempty"`
	Limit int    `json:"limit"`
}

// Change is one remote mutation from the change feed.
type Change struct {
	Entity          string          `json:"entity"`
	Action          string          `json:"action"`
	EntityID        string          `json:"entityId"`
	Payload         json.RawMessage `json:"payload"`
	ServerTimestamp string          `json:"serverTimestamp"`
}

// PullResponse is a page of changes plus the cursor for the next pull.
type PullResponse struct {
	Changes   []Change `json:"changes"`
	NextSince string   `json:"nextSince,omitempty"`
}

// Endpoint is the remote reconciliation service. The remote side must treat
// OperationID as a deduplication key.
type Endpoint interface {
	// Push submits a batch. An error means the whole batch was not delivered.
	Push(ctx context.Context, req PushRequest) (*PushResponse, error)

	// Pull fetches one page of remote changes.
	Pull(ctx context.Context, req PullRequest) (*PullResponse, error)
}

// ChangeApplier receives pulled changes. Changes may be redelivered after a
// crash, so implementations must be idempotent per entity id.
type ChangeApplier interface {
	ApplyChanges(ctx context.Context, changes []Change) error
}

// ChangeApplierFunc adapts a function to ChangeApplier.
type ChangeApplierFunc func(ctx context.Context, changes []Change) error

// ApplyChanges calls f.
func (f ChangeApplierFunc) ApplyChanges(ctx context.Context, changes []Change) error {
	return f(ctx, changes)
}

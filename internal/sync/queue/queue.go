// Package queue provides the durable operation queue for offline sync.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/leobar37/leobit2-sub001/internal/db"
	apperrors "github.com/leobar37/leobit2-sub001/internal/errors"
	"github.com/leobar37/leobit2-sub001/internal/logging"
	"github.com/leobar37/leobit2-sub001/internal/models"
)

// Action represents the kind of mutation an operation carries.
type Action string

const (
	ActionInsert Action = "insert"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionInsert, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Status represents the lifecycle state of a queued operation.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s can no longer change.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// OperationRecord is a durable mutation intent created on the client.
type OperationRecord struct {
	ID        string          `json:"id"`
	Entity    string          `json:"entity"`
	Action    Action          `json:"action"`
	EntityID  string          `json:"entityId"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"lastError,omitempty"`
}

// QueueItem is an operation record plus its queue bookkeeping.
type QueueItem struct {
	OperationRecord
	Status     Status    `json:"status"`
	RetryCount int       `json:"retryCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// RetryStats aggregates retry activity for the current store session.
type RetryStats struct {
	TotalRetries int64 `json:"totalRetries"`
}

// Store persists queue items. Items that cannot reach the repository,
// because it is nil or a write fails, are kept in an in-memory queue with
// the same transition rules and served alongside durable items.
type Store struct {
	repo         db.SyncQueueRepository
	mem          *memoryRepository
	now          func() time.Time
	totalRetries atomic.Int64
	log          *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for bookkeeping timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a Store over repo.
func NewStore(repo db.SyncQueueRepository, opts ...Option) *Store {
	s := &Store{
		repo: repo,
		mem:  newMemoryRepository(),
		now:  time.Now,
		log:  logging.Named("queue"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Available reports whether the store has durable storage behind it.
func (s *Store) Available() bool {
	return s.repo != nil
}

// Enqueue inserts or overwrites the item for rec.ID as pending.
// An item that already reached a terminal state is returned unchanged.
func (s *Store) Enqueue(ctx context.Context, rec OperationRecord) (*QueueItem, error) {
	if rec.ID == "" {
		return nil, apperrors.New(apperrors.ErrInvalid, "operation id is required")
	}
	if !rec.Action.Valid() {
		return nil, apperrors.New(apperrors.ErrInvalid, "unknown action: "+string(rec.Action))
	}

	now := s.now()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}
	if len(rec.Payload) == 0 {
		rec.Payload = json.RawMessage("null")
	}
	item := &QueueItem{
		OperationRecord: rec,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	item.LastError = ""

	repo := s.durableFor(rec.ID)
	if repo == nil {
		if s.repo == nil {
			s.log.Warn("Queue storage unavailable, operation kept in memory only", map[string]interface{}{
				"operation_id": rec.ID,
			})
		}
		repo = s.mem
	}

	written, err := repo.UpsertSyncQueue(ctx, item.ToModel())
	if err != nil {
		s.log.Warn("Failed to persist operation, kept in memory only", map[string]interface{}{
			"operation_id": rec.ID,
			"error":        err.Error(),
		})
		// The memory upsert never fails.
		written, _ = s.mem.UpsertSyncQueue(ctx, item.ToModel())
	}

	if !written {
		existing, ok := s.GetOperation(ctx, rec.ID)
		if ok {
			s.log.Debug("Operation already terminal, enqueue ignored", map[string]interface{}{
				"operation_id": rec.ID,
				"status":       string(existing.Status),
			})
			return existing, nil
		}
	}

	s.log.Debug("Enqueued operation", map[string]interface{}{
		"operation_id": rec.ID,
		"entity":       rec.Entity,
		"action":       string(rec.Action),
	})
	return item, nil
}

// ListPending returns up to limit pending items, oldest first.
func (s *Store) ListPending(ctx context.Context, limit int) []*QueueItem {
	return s.ListByStatus(ctx, StatusPending, limit)
}

// ListByStatus returns up to limit items with status, oldest first.
func (s *Store) ListByStatus(ctx context.Context, status Status, limit int) []*QueueItem {
	if limit <= 0 {
		return []*QueueItem{}
	}

	var rows []*models.SyncQueue
	if s.repo != nil {
		durable, err := s.repo.ListSyncQueueByStatus(ctx, string(status), limit)
		if err != nil {
			s.log.Warn("Failed to list queue items", map[string]interface{}{
				"status": string(status),
				"error":  err.Error(),
			})
		}
		for _, row := range durable {
			// A memory row shadows a durable row whose last write failed.
			if !s.mem.has(row.ID) {
				rows = append(rows, row)
			}
		}
	}
	memRows, _ := s.mem.ListSyncQueueByStatus(ctx, string(status), limit)
	if len(memRows) > 0 {
		rows = append(rows, memRows...)
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].CreatedAt < rows[j].CreatedAt
		})
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}

	items := make([]*QueueItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, FromModel(row))
	}
	return items
}

// GetPendingCount returns the number of pending items.
func (s *Store) GetPendingCount(ctx context.Context) int {
	n, _ := s.mem.CountSyncQueue(ctx, string(StatusPending))
	if s.repo == nil {
		return n
	}
	durable, err := s.repo.CountSyncQueue(ctx, string(StatusPending))
	if err != nil {
		s.log.Warn("Failed to count pending operations", map[string]interface{}{
			"error": err.Error(),
		})
		return n
	}
	return n + durable
}

// GetOperation returns the item for id, if present.
func (s *Store) GetOperation(ctx context.Context, id string) (*QueueItem, bool) {
	if row, err := s.mem.GetSyncQueue(ctx, id); err == nil {
		return FromModel(row), true
	}
	if s.repo == nil {
		return nil, false
	}
	row, err := s.repo.GetSyncQueue(ctx, id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn("Failed to load operation", map[string]interface{}{
				"operation_id": id,
				"error":        err.Error(),
			})
		}
		return nil, false
	}
	return FromModel(row), true
}

// MarkProcessed moves a pending item to processed. Unknown or terminal ids
// are ignored.
func (s *Store) MarkProcessed(ctx context.Context, id string) {
	repo := s.ownerOf(id)
	if repo == nil {
		return
	}
	changed, err := repo.MarkSyncQueueProcessed(ctx, id, s.now().UnixNano())
	if err != nil {
		s.log.Warn("Failed to mark operation processed", map[string]interface{}{
			"operation_id": id,
			"error":        err.Error(),
		})
		return
	}
	if !changed {
		s.log.Debug("Mark processed ignored", map[string]interface{}{"operation_id": id})
	}
}

// MarkFailed records a failed delivery attempt for a pending item.
// The item stays pending when retryable, otherwise it becomes failed.
func (s *Store) MarkFailed(ctx context.Context, id, errMsg string, retryable bool) {
	repo := s.ownerOf(id)
	if repo == nil {
		return
	}
	status := StatusFailed
	if retryable {
		status = StatusPending
	}
	changed, err := repo.MarkSyncQueueFailed(ctx, id, errMsg, string(status), s.now().UnixNano())
	if err != nil {
		s.log.Warn("Failed to mark operation failed", map[string]interface{}{
			"operation_id": id,
			"error":        err.Error(),
		})
		return
	}
	if !changed {
		s.log.Debug("Mark failed ignored", map[string]interface{}{"operation_id": id})
		return
	}
	s.totalRetries.Add(1)

	if !retryable {
		s.log.Warn("Operation failed permanently", map[string]interface{}{
			"operation_id": id,
			"error":        errMsg,
		})
	}
}

// durableFor returns the repository new writes for id should go to, or nil
// when only the memory queue can take them. An id already held in memory
// stays there so its transitions are applied in one place.
func (s *Store) durableFor(id string) db.SyncQueueRepository {
	if s.repo == nil || s.mem.has(id) {
		return nil
	}
	return s.repo
}

// ownerOf returns the repository holding id.
func (s *Store) ownerOf(id string) db.SyncQueueRepository {
	if s.mem.has(id) {
		return s.mem
	}
	if s.repo == nil {
		return nil
	}
	return s.repo
}

// GetRetryStats returns retry counters for this store session.
func (s *Store) GetRetryStats() RetryStats {
	return RetryStats{TotalRetries: s.totalRetries.Load()}
}

// GetStats returns item counts keyed by status plus a "total" entry.
func (s *Store) GetStats(ctx context.Context) map[string]int {
	stats := map[string]int{
		"total":                 0,
		string(StatusPending):   0,
		string(StatusProcessed): 0,
		string(StatusFailed):    0,
	}
	add := func(counts map[string]int) {
		for status, n := range counts {
			stats[status] += n
			stats["total"] += n
		}
	}

	memCounts, _ := s.mem.CountSyncQueueByStatus(ctx)
	add(memCounts)
	if s.repo == nil {
		return stats
	}
	counts, err := s.repo.CountSyncQueueByStatus(ctx)
	if err != nil {
		s.log.Warn("Failed to count queue items", map[string]interface{}{
			"error": err.Error(),
		})
		return stats
	}
	add(counts)
	return stats
}

// ToModel converts a QueueItem to a SyncQueue row.
func (item *QueueItem) ToModel() *models.SyncQueue {
	return &models.SyncQueue{
		ID:         item.ID,
		Entity:     item.Entity,
		Action:     string(item.Action),
		EntityID:   item.EntityID,
		Payload:    item.Payload,
		Timestamp:  item.Timestamp.UnixNano(),
		Attempts:   item.Attempts,
		Status:     string(item.Status),
		RetryCount: item.RetryCount,
		LastError:  item.LastError,
		CreatedAt:  item.CreatedAt.UnixNano(),
		UpdatedAt:  item.UpdatedAt.UnixNano(),
	}
}

// FromModel converts a SyncQueue row to a QueueItem.
func FromModel(row *models.SyncQueue) *QueueItem {
	return &QueueItem{
		OperationRecord: OperationRecord{
			ID:        row.ID,
			Entity:    row.Entity,
			Action:    Action(row.Action),
			EntityID:  row.EntityID,
			Payload:   row.Payload,
			Timestamp: row.TimestampTime(),
			Attempts:  row.Attempts,
			LastError: row.LastError,
		},
		Status:     Status(row.Status),
		RetryCount: row.RetryCount,
		CreatedAt:  row.CreatedAtTime(),
		UpdatedAt:  row.UpdatedAtTime(),
	}
}

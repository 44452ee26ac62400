package queue

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/leobar37/leobit2-sub001/internal/db"
	"github.com/leobar37/leobit2-sub001/internal/models"
)

// memoryRepository keeps queue rows in process memory with the same
// transition rules as the SQLite repository: upserts only overwrite
// pending rows and marks only apply to pending rows. Rows are ordered by
// created_at, then by insertion sequence.
type memoryRepository struct {
	mu   sync.Mutex
	rows map[string]*memoryRow
	seq  int64
}

type memoryRow struct {
	row models.SyncQueue
	seq int64
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{rows: make(map[string]*memoryRow)}
}

func (m *memoryRepository) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[id]
	return ok
}

func (m *memoryRepository) UpsertSyncQueue(_ context.Context, row *models.SyncQueue) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.rows[row.ID]; ok {
		if existing.row.Status != string(StatusPending) {
			return false, nil
		}
		existing.row = pendingCopy(row)
		return true, nil
	}

	m.seq++
	m.rows[row.ID] = &memoryRow{row: pendingCopy(row), seq: m.seq}
	return true, nil
}

func pendingCopy(row *models.SyncQueue) models.SyncQueue {
	c := *row
	c.Payload = append([]byte(nil), row.Payload...)
	c.Status = string(StatusPending)
	c.RetryCount = 0
	c.LastError = ""
	return c
}

func (m *memoryRepository) GetSyncQueue(_ context.Context, id string) (*models.SyncQueue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	c := r.row
	return &c, nil
}

func (m *memoryRepository) ListSyncQueueByStatus(_ context.Context, status string, limit int) ([]*models.SyncQueue, error) {
	m.mu.Lock()
	matched := make([]*memoryRow, 0, len(m.rows))
	for _, r := range m.rows {
		if r.row.Status == status {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].row.CreatedAt != matched[j].row.CreatedAt {
			return matched[i].row.CreatedAt < matched[j].row.CreatedAt
		}
		return matched[i].seq < matched[j].seq
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]*models.SyncQueue, 0, len(matched))
	for _, r := range matched {
		c := r.row
		out = append(out, &c)
	}
	m.mu.Unlock()
	return out, nil
}

func (m *memoryRepository) CountSyncQueue(_ context.Context, status string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.row.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *memoryRepository) CountSyncQueueByStatus(context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, r := range m.rows {
		counts[r.row.Status]++
	}
	return counts, nil
}

func (m *memoryRepository) MarkSyncQueueProcessed(_ context.Context, id string, now int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.row.Status != string(StatusPending) {
		return false, nil
	}
	r.row.Status = string(StatusProcessed)
	r.row.LastError = ""
	r.row.UpdatedAt = now
	return true, nil
}

func (m *memoryRepository) MarkSyncQueueFailed(_ context.Context, id, errMsg, status string, now int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.row.Status != string(StatusPending) {
		return false, nil
	}
	r.row.RetryCount++
	r.row.Status = status
	r.row.LastError = errMsg
	r.row.UpdatedAt = now
	return true, nil
}

var _ db.SyncQueueRepository = (*memoryRepository)(nil)

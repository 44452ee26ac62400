package sync

import (
	"context"
	"database/sql"
	"errors"
	stdsync "sync"
	"time"

	"github.com/leobar37/leobit2-sub001/internal/db"
	apperrors "github.com/leobar37/leobit2-sub001/internal/errors"
	"github.com/leobar37/leobit2-sub001/internal/models"
)

// StateStore persists the pull cursor and the last successful sync time.
type StateStore interface {
	LoadCursor(ctx context.Context) (string, error)
	SaveCursor(ctx context.Context, cursor string) error
	LoadLastSync(ctx context.Context) (*time.Time, error)
	SaveLastSync(ctx context.Context, at time.Time) error
}

// SQLStateStore keeps sync state in the sync_state table.
type SQLStateStore struct {
	repo db.SyncStateRepository
}

// NewSQLStateStore creates a SQLStateStore over repo.
func NewSQLStateStore(repo db.SyncStateRepository) *SQLStateStore {
	return &SQLStateStore{repo: repo}
}

func (s *SQLStateStore) load(ctx context.Context, key string) (string, error) {
	st, err := s.repo.GetSyncState(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrDatabase, "failed to load "+key, err)
	}
	return st.Value, nil
}

func (s *SQLStateStore) save(ctx context.Context, key, value string) error {
	if err := s.repo.SetSyncState(ctx, key, value, time.Now().UnixNano()); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to save "+key, err)
	}
	return nil
}

// LoadCursor returns the persisted cursor, or "" when none is stored.
func (s *SQLStateStore) LoadCursor(ctx context.Context) (string, error) {
	return s.load(ctx, models.SyncStateCursor)
}

// SaveCursor replaces the persisted cursor.
func (s *SQLStateStore) SaveCursor(ctx context.Context, cursor string) error {
	return s.save(ctx, models.SyncStateCursor, cursor)
}

// LoadLastSync returns the last successful sync time, or nil.
func (s *SQLStateStore) LoadLastSync(ctx context.Context) (*time.Time, error) {
	v, err := s.load(ctx, models.SyncStateLastSyncAt)
	if err != nil || v == "" {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "invalid last sync time", err)
	}
	return &t, nil
}

// SaveLastSync persists the last successful sync time.
func (s *SQLStateStore) SaveLastSync(ctx context.Context, at time.Time) error {
	return s.save(ctx, models.SyncStateLastSyncAt, at.UTC().Format(time.RFC3339Nano))
}

// MemoryStateStore keeps sync state in memory. It backs engines running
// without durable storage.
type MemoryStateStore struct {
	mu       stdsync.Mutex
	cursor   string
	lastSync *time.Time
}

// NewMemoryStateStore creates an empty MemoryStateStore.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

func (m *MemoryStateStore) LoadCursor(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor, nil
}

func (m *MemoryStateStore) SaveCursor(_ context.Context, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = cursor
	return nil
}

func (m *MemoryStateStore) LoadLastSync(context.Context) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastSync == nil {
		return nil, nil
	}
	t := *m.lastSync
	return &t, nil
}

func (m *MemoryStateStore) SaveLastSync(_ context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSync = &at
	return nil
}

var (
	_ StateStore = (*SQLStateStore)(nil)
	_ StateStore = (*MemoryStateStore)(nil)
)

// Package handlers tests for sync REST API endpoints.
// These tests verify HTTP request handling, status codes, and responses.
package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leobar37/leobit2-sub001/internal/db"
	syncpkg "github.com/leobar37/leobit2-sub001/internal/sync"
	"github.com/leobar37/leobit2-sub001/internal/sync/connectivity"
	"github.com/leobar37/leobit2-sub001/internal/sync/queue"
	"github.com/leobar37/leobit2-sub001/internal/uuid"
)

// stubEndpoint accepts every push and returns an empty pull.
type stubEndpoint struct {
	pushErr error
	block   chan struct{}
}

func (s *stubEndpoint) Push(ctx context.Context, req syncpkg.PushRequest) (*syncpkg.PushResponse, error) {
	if s.block != nil {
		<-s.block
	}
	if s.pushErr != nil {
		return nil, s.pushErr
	}
	resp := &syncpkg.PushResponse{}
	for _, op := range req.Operations {
		resp.Results = append(resp.Results, syncpkg.PushResult{OperationID: op.OperationID, Success: true})
	}
	return resp, nil
}

func (s *stubEndpoint) Pull(context.Context, syncpkg.PullRequest) (*syncpkg.PullResponse, error) {
	return &syncpkg.PullResponse{}, nil
}

type testServer struct {
	router   http.Handler
	engine   *syncpkg.Engine
	store    *queue.Store
	endpoint *stubEndpoint
	monitor  *connectivity.Manual
}

// setupTestServer wires handlers over a temp SQLite database.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	database, err := db.OpenAndMigrate(t.TempDir())
	require.NoError(t, err)
	repo := db.NewRepository(database.DB)

	ts := &testServer{
		store:    queue.NewStore(repo),
		endpoint: &stubEndpoint{},
		monitor:  connectivity.NewManual(),
	}
	ts.engine = syncpkg.NewEngine(ts.store, ts.endpoint, ts.monitor, syncpkg.NewSQLStateStore(repo), syncpkg.EngineConfig{})

	r := chi.NewRouter()
	NewHealthHandler("leobit-sync").Register(r)
	NewSyncHandler(ts.engine, ts.store).Register(r)
	ts.router = r

	t.Cleanup(func() {
		ts.engine.Close()
		repo.Close()
		database.Close()
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rr)
	e, ok := body["error"].(map[string]interface{})
	require.True(t, ok, rr.Body.String())
	return e["code"].(string)
}

func (ts *testServer) enqueue(t *testing.T) string {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/sync/operations", map[string]interface{}{
		"entity":   "sales",
		"action":   "insert",
		"entityId": "sale-1",
		"payload":  map[string]interface{}{"total": 42},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode(t, rr)["id"].(string)
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t)
	rr := ts.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decode(t, rr)["status"])
}

func TestSyncHandler_EnqueueAndGet(t *testing.T) {
	ts := setupTestServer(t)
	id := ts.enqueue(t)

	rr := ts.do(t, http.MethodGet, "/api/sync/operations/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, "sales", body["entity"])
	assert.Equal(t, "pending", body["status"])
	assert.EqualValues(t, 0, body["retryCount"])
	assert.Equal(t, map[string]interface{}{"total": float64(42)}, body["payload"])
}

func TestSyncHandler_EnqueueInvalid(t *testing.T) {
	ts := setupTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/sync/operations", "{not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_INPUT", errorCode(t, rr))

	rr = ts.do(t, http.MethodPost, "/api/sync/operations", map[string]interface{}{
		"entity": "sales", "action": "archive", "entityId": "s-1",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rr))
}

func TestSyncHandler_GetOperationNotFound(t *testing.T) {
	ts := setupTestServer(t)
	rr := ts.do(t, http.MethodGet, "/api/sync/operations/"+uuid.New(), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rr))

	rr = ts.do(t, http.MethodGet, "/api/sync/operations/missing", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_INPUT", errorCode(t, rr))
}

func TestSyncHandler_ListQueue(t *testing.T) {
	ts := setupTestServer(t)
	first := ts.enqueue(t)
	ts.enqueue(t)

	rr := ts.do(t, http.MethodGet, "/api/sync/queue?limit=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "pending", body["status"])
	items := body["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, first, items[0].(map[string]interface{})["id"])

	rr = ts.do(t, http.MethodGet, "/api/sync/queue?status=failed", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode(t, rr)["items"])

	rr = ts.do(t, http.MethodGet, "/api/sync/queue?status=done", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/sync/queue?limit=-3", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSyncHandler_GetStatus(t *testing.T) {
	ts := setupTestServer(t)
	ts.enqueue(t)

	rr := ts.do(t, http.MethodGet, "/api/sync/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)

	state := body["state"].(map[string]interface{})
	assert.Equal(t, "idle", state["status"])
	assert.EqualValues(t, 1, state["pendingCount"])
	assert.Equal(t, true, state["isOnline"])

	stats := body["queue_stats"].(map[string]interface{})
	assert.EqualValues(t, 1, stats["pending"])
	assert.Equal(t, true, body["storage"])

	sched := body["scheduler"].(map[string]interface{})
	assert.Equal(t, false, sched["isRunning"])

	ts.engine.Start()
	defer ts.engine.Stop()
	body = decode(t, ts.do(t, http.MethodGet, "/api/sync/status", nil))
	sched = body["scheduler"].(map[string]interface{})
	assert.Equal(t, true, sched["isRunning"])
	assert.EqualValues(t, float64(syncpkg.DefaultEngineConfig().Interval), sched["interval"])
}

func TestSyncHandler_TriggerSyncWait(t *testing.T) {
	ts := setupTestServer(t)
	id := ts.enqueue(t)

	rr := ts.do(t, http.MethodPost, "/api/sync/now?wait=true", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode(t, rr)
	assert.EqualValues(t, 1, body["processed"])

	item, ok := ts.store.GetOperation(context.Background(), id)
	require.True(t, ok)
	assert.Equal(t, queue.StatusProcessed, item.Status)
}

func TestSyncHandler_TriggerSyncErrors(t *testing.T) {
	ts := setupTestServer(t)
	ts.enqueue(t)

	ts.endpoint.pushErr = errors.New("connection refused")
	rr := ts.do(t, http.MethodPost, "/api/sync/now?wait=true", nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "TRANSPORT_ERROR", errorCode(t, rr))

	ts.monitor.SetOnline(false)
	rr = ts.do(t, http.MethodPost, "/api/sync/now?wait=true", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "SYNC_OFFLINE", errorCode(t, rr))
}

func TestSyncHandler_TriggerSyncBackground(t *testing.T) {
	ts := setupTestServer(t)
	ts.enqueue(t)
	ts.endpoint.block = make(chan struct{})

	rr := ts.do(t, http.MethodPost, "/api/sync/now", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	require.Eventually(t, func() bool { return ts.engine.State().IsSyncing }, time.Second, time.Millisecond)

	rr = ts.do(t, http.MethodPost, "/api/sync/now", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "SYNC_IN_PROGRESS", errorCode(t, rr))

	close(ts.endpoint.block)
	require.Eventually(t, func() bool {
		s := ts.engine.State()
		return !s.IsSyncing && s.PendingCount == 0
	}, time.Second, time.Millisecond)
}

func TestSyncHandler_TriggerSyncBackgroundOffline(t *testing.T) {
	ts := setupTestServer(t)
	ts.enqueue(t)
	ts.monitor.SetOnline(false)

	rr := ts.do(t, http.MethodPost, "/api/sync/now", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "SYNC_OFFLINE", errorCode(t, rr))

	s := ts.engine.State()
	assert.Equal(t, syncpkg.SyncStatusOffline, s.Status)
	assert.Equal(t, 1, s.PendingCount)
}

// Package main tests for process wiring, commands, routing and the
// WebSocket hub.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leobar37/leobit2-sub001/internal/app"
	"github.com/leobar37/leobit2-sub001/internal/config"
	apperrors "github.com/leobar37/leobit2-sub001/internal/errors"
	syncpkg "github.com/leobar37/leobit2-sub001/internal/sync"
	"github.com/leobar37/leobit2-sub001/internal/sync/queue"
	"github.com/leobar37/leobit2-sub001/internal/uuid"
)

// newTestApp wires an app over a temp data dir with no remote.
func newTestApp(t *testing.T) *app.App {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.DataDir = t.TempDir()

	a, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func enqueue(t *testing.T, a *app.App, entityID string) string {
	t.Helper()
	id, err := a.Engine.EnqueueOperation(context.Background(), syncpkg.OperationInput{
		Entity:   "sales",
		Action:   queue.ActionInsert,
		EntityID: entityID,
		Payload:  json.RawMessage(`{"total":42}`),
	})
	require.NoError(t, err)
	return id
}

// runCommand executes the root command with args and returns stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	a := newTestApp(t)
	hub := NewWSHub()
	defer hub.Close()
	router := newRouter(a, hub)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
	assert.Contains(t, rr.Body.String(), "leobit-sync")

	req = httptest.NewRequest(http.MethodGet, "/api/sync/status", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	enqueue(t, a, "s-1")
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "sync_operations_enqueued_total")
}

func TestRunServer_ShutsDownOnCancel(t *testing.T) {
	a := newTestApp(t)
	a.Config.Server.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, a) }()

	time.Sleep(50 * time.Millisecond)
	assert.True(t, a.Engine.Running())
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.False(t, a.Engine.Running())
}

func TestCommand_QueueStats(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)

	out, err := runCommand(t, "queue", "stats")
	require.NoError(t, err)

	var stats map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 0, stats["total"])
	assert.Equal(t, 0, stats["pending"])
}

func TestCommand_QueueListAndShow(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)

	cfg := config.Default()
	cfg.Storage.DataDir = dir
	a, err := app.New(cfg)
	require.NoError(t, err)
	id := enqueue(t, a, "s-1")
	require.NoError(t, a.Close())

	out, err := runCommand(t, "queue", "list")
	require.NoError(t, err)
	var items []queue.QueueItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, queue.StatusPending, items[0].Status)

	out, err = runCommand(t, "queue", "show", id)
	require.NoError(t, err)
	var item queue.QueueItem
	require.NoError(t, json.Unmarshal([]byte(out), &item))
	assert.Equal(t, "s-1", item.EntityID)
	assert.JSONEq(t, `{"total":42}`, string(item.Payload))

	out, err = runCommand(t, "queue", "list", "--status", "processed")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestCommand_QueueErrors(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())

	_, err := runCommand(t, "queue", "show", uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = runCommand(t, "queue", "show", "missing")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalid))

	_, err = runCommand(t, "queue", "list", "--status", "bogus")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalid))
}

func TestCommand_SyncOffline(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("SYNC_REMOTE_URL", "")

	out, err := runCommand(t, "sync")
	require.NoError(t, err)

	var result syncpkg.SyncResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Offline)
}

func TestCommand_SyncPushesQueue(t *testing.T) {
	var pushed atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/sync/push":
			var req syncpkg.PushRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			resp := syncpkg.PushResponse{}
			for _, op := range req.Operations {
				pushed.Add(1)
				resp.Results = append(resp.Results, syncpkg.PushResult{OperationID: op.OperationID, Success: true})
			}
			_ = json.NewEncoder(w).Encode(resp)
		case "/sync/pull":
			_ = json.NewEncoder(w).Encode(syncpkg.PullResponse{NextSince: "c1"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("SYNC_REMOTE_URL", srv.URL)

	cfg := config.Default()
	cfg.Storage.DataDir = dir
	a, err := app.New(cfg)
	require.NoError(t, err)
	enqueue(t, a, "s-1")
	enqueue(t, a, "s-2")
	require.NoError(t, a.Close())

	out, err := runCommand(t, "sync")
	require.NoError(t, err)

	var result syncpkg.SyncResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 2, result.Pushed)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, int32(2), pushed.Load())

	out, err = runCommand(t, "queue", "stats")
	require.NoError(t, err)
	var stats map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 0, stats["pending"])
	assert.Equal(t, 2, stats["processed"])
}

func TestCommand_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("DATA_DIR="+dir+"\n"), 0o644))

	// Registers restore of the original value, then clears it so the
	// env file can set it.
	t.Setenv("DATA_DIR", "")
	require.NoError(t, os.Unsetenv("DATA_DIR"))

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--env-file", envFile, "queue", "stats"})
	require.NoError(t, cmd.Execute())

	_, err := os.Stat(filepath.Join(dir, "leobit.db"))
	assert.NoError(t, err)
}

// =====================================================
// WebSocket
// =====================================================

type wsTestEnv struct {
	a    *app.App
	hub  *WSHub
	srv  *httptest.Server
	conn *websocket.Conn
}

func setupWS(t *testing.T) *wsTestEnv {
	t.Helper()
	a := newTestApp(t)
	hub := NewWSHub()
	unwatch := hub.WatchEngine(a.Engine)
	srv := httptest.NewServer(newRouter(a, hub))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		srv.Close()
		unwatch()
		hub.Close()
	})
	return &wsTestEnv{a: a, hub: hub, srv: srv, conn: conn}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocket_InitialState(t *testing.T) {
	env := setupWS(t)

	msg := readEnvelope(t, env.conn)
	assert.Equal(t, EventSyncState, msg["type"])
	data, ok := msg["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "offline", data["status"])
	assert.Equal(t, float64(0), data["pendingCount"])
}

func TestWebSocket_StateStream(t *testing.T) {
	env := setupWS(t)
	readEnvelope(t, env.conn)

	require.NoError(t, env.conn.WriteJSON(map[string]interface{}{
		"action": "subscribe",
		"events": []string{EventSyncState},
	}))
	ack := readEnvelope(t, env.conn)
	assert.Equal(t, "subscribe_ack", ack["action"])

	enqueue(t, env.a, "s-1")

	msg := readEnvelope(t, env.conn)
	assert.Equal(t, EventSyncState, msg["type"])
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["pendingCount"])
}

func TestWebSocket_Ping(t *testing.T) {
	env := setupWS(t)
	readEnvelope(t, env.conn)

	require.NoError(t, env.conn.WriteJSON(map[string]string{"action": "ping"}))
	msg := readEnvelope(t, env.conn)
	assert.Equal(t, "pong", msg["action"])
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, upgrader.CheckOrigin(req), "non-browser clients send no Origin")

	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, upgrader.CheckOrigin(req))

	req.Header.Set("Origin", "https://example.com")
	assert.False(t, upgrader.CheckOrigin(req))
}

func TestWSHub_LifecycleEvents(t *testing.T) {
	hub := NewWSHub()
	defer hub.Close()
	assert.Equal(t, 0, hub.ClientCount())

	// Broadcasting with no clients and after Close must not block
	hub.Broadcast(EventSyncStarted, map[string]interface{}{"pending": 1})
	hub.Close()
	hub.Broadcast(EventSyncCompleted, nil)
}

func TestCommand_Version(t *testing.T) {
	out, err := runCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}

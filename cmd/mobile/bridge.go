// Package main provides the FFI bridge for mobile platforms.
// Build as shared library: libleobitsync.so (Android) / leobitsync.framework (iOS)
//
//	go build -buildmode=c-shared -o libleobitsync.so ./cmd/mobile
//
// The host app owns connectivity: it reports network changes through
// SyncSetOnline and the engine reacts to the edges.
package main

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/leobar37/leobit2-sub001/internal/app"
	"github.com/leobar37/leobit2-sub001/internal/config"
	apperrors "github.com/leobar37/leobit2-sub001/internal/errors"
	"github.com/leobar37/leobit2-sub001/internal/logging"
	syncpkg "github.com/leobar37/leobit2-sub001/internal/sync"
)

// InitOptions is the JSON document passed to SyncInit.
type InitOptions struct {
	DataDir   string `json:"dataDir"`
	RemoteURL string `json:"remoteUrl"`
	Token     string `json:"token"`
	LogLevel  string `json:"logLevel"`
}

var (
	mu   sync.Mutex
	core *app.App

	lastErr string
	lastMu  sync.RWMutex
)

func setLastError(err error) {
	lastMu.Lock()
	defer lastMu.Unlock()
	if err == nil {
		lastErr = ""
		return
	}
	lastErr = err.Error()
}

func getLastError() string {
	lastMu.RLock()
	defer lastMu.RUnlock()
	return lastErr
}

func current() (*app.App, error) {
	mu.Lock()
	defer mu.Unlock()
	if core == nil {
		return nil, apperrors.New(apperrors.ErrQueueUnavailable, "sync core not initialized")
	}
	return core, nil
}

// initCore wires the engine. A second call while initialized is a no-op.
func initCore(optsJSON string) error {
	var opts InitOptions
	if optsJSON != "" {
		if err := json.Unmarshal([]byte(optsJSON), &opts); err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "invalid init options", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if core != nil {
		return nil
	}

	cfg := config.Default()
	cfg.App.Env = "prod"
	if opts.DataDir != "" {
		cfg.Storage.DataDir = opts.DataDir
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	cfg.Remote.BaseURL = opts.RemoteURL
	cfg.Remote.Token = opts.Token

	logging.Init(logging.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "leobit-sync-mobile"})

	a, err := app.New(cfg, app.WithPlatformConnectivity())
	if err != nil {
		return err
	}
	core = a
	return nil
}

func shutdown() error {
	mu.Lock()
	a := core
	core = nil
	mu.Unlock()

	if a == nil {
		return nil
	}
	return a.Close()
}

func enqueue(inputJSON string) (string, error) {
	a, err := current()
	if err != nil {
		return "", err
	}

	var in syncpkg.OperationInput
	if err := json.Unmarshal([]byte(inputJSON), &in); err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalid, "invalid operation", err)
	}
	return a.Engine.EnqueueOperation(context.Background(), in)
}

func stateJSON() (string, error) {
	a, err := current()
	if err != nil {
		return "", err
	}
	return marshal(a.Engine.State())
}

// syncNow runs one cycle and returns the result document.
func syncNow() (string, error) {
	a, err := current()
	if err != nil {
		return "", err
	}

	result, err := a.Engine.Sync(context.Background())
	if err != nil {
		return "", err
	}
	return marshal(result)
}

func setOnline(online bool) error {
	a, err := current()
	if err != nil {
		return err
	}
	a.SetOnline(online)
	return nil
}

func start() error {
	a, err := current()
	if err != nil {
		return err
	}
	a.Engine.Start()
	return nil
}

func stop() error {
	a, err := current()
	if err != nil {
		return err
	}
	a.Engine.Stop()
	return nil
}

func queueStatsJSON() (string, error) {
	a, err := current()
	if err != nil {
		return "", err
	}
	ctx := context.Background()
	return marshal(map[string]interface{}{
		"queue":   a.Queue.GetStats(ctx),
		"retries": a.Queue.GetRetryStats(),
	})
}

func marshal(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternal, "failed to serialize", err)
	}
	return string(data), nil
}

func main() {
	// Main entry point for shared library
	// Not used when loaded as library
}

// Package app wires configuration, storage, the remote endpoint and the
// sync engine into one process-level object shared by the desktop server
// and the mobile bridge.
package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leobar37/leobit2-sub001/internal/config"
	"github.com/leobar37/leobit2-sub001/internal/db"
	"github.com/leobar37/leobit2-sub001/internal/logging"
	"github.com/leobar37/leobit2-sub001/internal/metrics"
	syncpkg "github.com/leobar37/leobit2-sub001/internal/sync"
	"github.com/leobar37/leobit2-sub001/internal/sync/connectivity"
	"github.com/leobar37/leobit2-sub001/internal/sync/queue"
	"github.com/leobar37/leobit2-sub001/internal/sync/remote"
)

// App holds the wired sync backend.
type App struct {
	Config *config.Config
	DB     *db.DB // nil when storage is unavailable
	Repo   *db.Repository
	Queue  *queue.Store
	Engine *syncpkg.Engine

	// Exactly one of Prober and Manual is set. Without a remote base URL
	// the engine is pinned offline.
	Prober *connectivity.Prober
	Manual *connectivity.Manual

	platform bool
	log      *logging.Logger
}

type options struct {
	platformConnectivity bool
	applier              syncpkg.ChangeApplier
}

// Option configures New.
type Option func(*options)

// WithPlatformConnectivity makes connectivity a Manual monitor driven by
// the host platform through SetOnline instead of probing the remote.
func WithPlatformConnectivity() Option {
	return func(o *options) { o.platformConnectivity = true }
}

// WithApplier hands pulled changes to a. The default only logs them.
func WithApplier(a syncpkg.ChangeApplier) Option {
	return func(o *options) { o.applier = a }
}

// New wires storage, the remote endpoint and the engine from cfg.
// A database that cannot be opened degrades the queue to in-memory
// operation instead of failing startup.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{applier: logApplier()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, log: logging.Named("app")}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		a.log.Warn("Metrics registration failed", map[string]interface{}{"error": err.Error()})
	}

	var states syncpkg.StateStore
	database, err := db.OpenAndMigrate(cfg.Storage.DataDir)
	if err != nil {
		a.log.Error("Local storage unavailable, running without persistence", err, map[string]interface{}{
			"data_dir": cfg.Storage.DataDir,
		})
		a.Queue = queue.NewStore(nil)
		states = syncpkg.NewMemoryStateStore()
	} else {
		a.DB = database
		a.Repo = db.NewRepository(database.DB)
		a.Queue = queue.NewStore(a.Repo)
		states = syncpkg.NewSQLStateStore(a.Repo)
	}

	var monitor connectivity.Monitor
	endpoint := remote.NewHTTPEndpoint(cfg.Remote.BaseURL, cfg.Remote.Timeout, staticToken(cfg.Remote.Token))
	switch {
	case o.platformConnectivity && cfg.Remote.BaseURL != "":
		// Assume online until the platform reports otherwise
		a.Manual = connectivity.NewManual()
		a.platform = true
		monitor = a.Manual
	case cfg.Remote.BaseURL != "":
		a.Prober = connectivity.NewProber(endpoint.Health, cfg.Connectivity.ProbeInterval, cfg.Connectivity.ProbeTimeout)
		monitor = a.Prober
	default:
		a.log.Warn("No remote configured, sync stays offline")
		a.Manual = connectivity.NewManual()
		a.Manual.SetOnline(false)
		monitor = a.Manual
	}

	a.Engine = syncpkg.NewEngine(a.Queue, endpoint, monitor, states, syncpkg.EngineConfig{
		Interval:            cfg.Sync.Interval,
		BatchSize:           cfg.Sync.BatchSize,
		PullLimit:           cfg.Sync.PullLimit,
		MaxRetries:          cfg.Sync.MaxRetries,
		CycleTimeout:        cfg.Sync.CycleTimeout,
		MissingResultPolicy: syncpkg.MissingResultPolicy(cfg.Sync.MissingResultPolicy),
		Applier:             o.applier,
	})

	return a, nil
}

// CheckConnectivity probes the remote once so one-shot commands start
// from a real reachability reading.
func (a *App) CheckConnectivity(ctx context.Context) bool {
	if a.Prober != nil {
		return a.Prober.Check(ctx)
	}
	return a.Manual.IsOnline()
}

// Log returns the app logger.
func (a *App) Log() *logging.Logger {
	return a.log
}

// SetOnline forwards a platform connectivity reading. It is a no-op
// unless the app was built WithPlatformConnectivity and a remote is set.
func (a *App) SetOnline(online bool) {
	if a.platform {
		a.Manual.SetOnline(online)
	}
}

// Close stops the engine and releases storage.
func (a *App) Close() error {
	a.Engine.Close()
	if a.Prober != nil {
		a.Prober.Stop()
	}
	if a.DB == nil {
		return nil
	}
	if err := a.Repo.Close(); err != nil {
		a.log.Warn("Failed to close statements", map[string]interface{}{"error": err.Error()})
	}
	return a.DB.Close()
}

func staticToken(token string) remote.TokenFunc {
	if token == "" {
		return nil
	}
	return func(context.Context) (string, error) { return token, nil }
}

// logApplier records pulled changes. Entity stores register their own
// applier when they embed the engine.
func logApplier() syncpkg.ChangeApplier {
	log := logging.Named("pull")
	return syncpkg.ChangeApplierFunc(func(_ context.Context, changes []syncpkg.Change) error {
		for _, c := range changes {
			log.Debug("Remote change", map[string]interface{}{
				"entity":    c.Entity,
				"entity_id": c.EntityID,
				"action":    c.Action,
			})
		}
		return nil
	})
}

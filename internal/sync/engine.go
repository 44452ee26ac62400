// Package sync provides the offline synchronization engine: it drains the
// durable operation queue to a remote endpoint in batches, pulls remote
// changes behind a persisted cursor and publishes its state to observers.
package sync

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"
	stdsync "sync"
	"sync/atomic"
	"time"

	apperrors "github.com/leobar37/leobit2-sub001/internal/errors"
	"github.com/leobar37/leobit2-sub001/internal/logging"
	"github.com/leobar37/leobit2-sub001/internal/metrics"
	"github.com/leobar37/leobit2-sub001/internal/sync/connectivity"
	"github.com/leobar37/leobit2-sub001/internal/sync/queue"
	"github.com/leobar37/leobit2-sub001/internal/sync/scheduler"
	"github.com/leobar37/leobit2-sub001/internal/uuid"
)

// MissingResultPolicy decides what happens to a pushed operation the
// server did not report on.
type MissingResultPolicy string

const (
	// MissingResultSuccess treats an unreported id as accepted.
	MissingResultSuccess MissingResultPolicy = "success"
	// MissingResultRetry records an unreported id as a retryable failure.
	MissingResultRetry MissingResultPolicy = "retry"
)

const missingResultError = "no result reported for operation"

// EngineConfig holds engine configuration.
type EngineConfig struct {
	Interval            time.Duration // Periodic sync interval (default: 30 seconds)
	BatchSize           int           // Operations per push (default: 50)
	PullLimit           int           // Changes per pull (default: 100)
	MaxRetries          int           // Failures before an operation is terminal (default: 5)
	CycleTimeout        time.Duration // Upper bound for one cycle's network calls (default: 2 minutes)
	MissingResultPolicy MissingResultPolicy

	// Applier receives pulled changes. Optional.
	Applier ChangeApplier

	// Now overrides the clock. Optional.
	Now func() time.Time
}

// DefaultEngineConfig returns default engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Interval:            30 * time.Second,
		BatchSize:           50,
		PullLimit:           100,
		MaxRetries:          5,
		CycleTimeout:        2 * time.Minute,
		MissingResultPolicy: MissingResultSuccess,
	}
}

func (c EngineConfig) withDefaults() EngineConfig {
	d := DefaultEngineConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.PullLimit <= 0 {
		c.PullLimit = d.PullLimit
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = d.CycleTimeout
	}
	if c.MissingResultPolicy == "" {
		c.MissingResultPolicy = d.MissingResultPolicy
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// OperationInput is what a business-layer caller supplies to enqueue a mutation.
type OperationInput struct {
	Entity   string          `json:"entity"`
	Action   queue.Action    `json:"action"`
	EntityID string          `json:"entityId"`
	Payload  json.RawMessage `json:"payload"`
}

// Validate checks the fields the queue relies on.
func (in OperationInput) Validate() error {
	if strings.TrimSpace(in.Entity) == "" {
		return apperrors.New(apperrors.ErrValidation, "entity is required")
	}
	if strings.TrimSpace(in.EntityID) == "" {
		return apperrors.New(apperrors.ErrValidation, "entityId is required")
	}
	if !in.Action.Valid() {
		return apperrors.New(apperrors.ErrValidation, "action must be one of insert, update, delete")
	}
	if len(in.Payload) > 0 && !json.Valid(in.Payload) {
		return apperrors.New(apperrors.ErrValidation, "payload must be valid JSON")
	}
	return nil
}

// SyncResult represents the result of one sync cycle.
type SyncResult struct {
	StartTime  time.Time     `json:"startTime"`
	EndTime    time.Time     `json:"endTime"`
	Duration   time.Duration `json:"duration"`
	Pushed     int           `json:"pushed"`
	Processed  int           `json:"processed"`
	Retried    int           `json:"retried"`
	Terminated int           `json:"terminated"`
	Pulled     int           `json:"pulled"`
	Skipped    bool          `json:"skipped,omitempty"`
	Offline    bool          `json:"offline,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Engine is the sync client. It is the only writer of its State.
type Engine struct {
	store    *queue.Store
	endpoint Endpoint
	monitor  connectivity.Monitor
	states   StateStore
	cfg      EngineConfig

	// syncing is the cycle lock. A cycle that cannot take it is skipped.
	syncing atomic.Bool

	mu           stdsync.Mutex
	state        State
	listeners    map[int]func(State)
	nextListener int

	// notifyMu serialises state publication so listeners observe states in order.
	notifyMu stdsync.Mutex

	lifeMu    stdsync.Mutex
	refs      int
	sched     *scheduler.Scheduler
	unsubConn func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup

	// closeMu orders background goroutine registration against Close.
	closeMu stdsync.Mutex
	closed  bool

	log *logging.Logger
}

// NewEngine creates an engine. A nil monitor means always online and a nil
// state store keeps the cursor in memory.
func NewEngine(store *queue.Store, endpoint Endpoint, monitor connectivity.Monitor, states StateStore, cfg EngineConfig) *Engine {
	if monitor == nil {
		monitor = connectivity.NewManual()
	}
	if states == nil {
		states = NewMemoryStateStore()
	}
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		store:     store,
		endpoint:  endpoint,
		monitor:   monitor,
		states:    states,
		cfg:       cfg.withDefaults(),
		listeners: make(map[int]func(State)),
		ctx:       ctx,
		cancel:    cancel,
		log:       logging.Named("sync"),
	}

	lastSync, err := states.LoadLastSync(ctx)
	if err != nil {
		e.log.Warn("Failed to load last sync time", map[string]interface{}{"error": err.Error()})
	}
	online := monitor.IsOnline()
	status := SyncStatusIdle
	if !online {
		status = SyncStatusOffline
	}
	pending := store.GetPendingCount(ctx)
	metrics.PendingOperations.Set(float64(pending))

	e.state = State{
		Status:       status,
		PendingCount: pending,
		LastSyncAt:   lastSync,
		IsOnline:     online,
	}
	return e
}

// State returns a snapshot of the current engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// Subscribe registers l. It is called once right away with the current
// state and again after every change. Listeners run synchronously and must
// not call methods that change engine state.
func (e *Engine) Subscribe(l func(State)) (unsubscribe func()) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = l
	snapshot := e.state.clone()
	e.mu.Unlock()

	l(snapshot)

	var once stdsync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.listeners, id)
			e.mu.Unlock()
		})
	}
}

// update applies fn to the state and notifies listeners.
func (e *Engine) update(fn func(s *State)) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	fn(&e.state)
	snapshot := e.state.clone()
	listeners := make([]func(State), 0, len(e.listeners))
	for _, l := range e.listeners {
		listeners = append(listeners, l)
	}
	e.mu.Unlock()

	metrics.PendingOperations.Set(float64(snapshot.PendingCount))
	for _, l := range listeners {
		l(snapshot.clone())
	}
}

// EnqueueOperation records a mutation for delivery and returns its id.
// It never triggers a sync. Only invalid input is reported as an error;
// storage failures degrade to an in-memory record.
func (e *Engine) EnqueueOperation(ctx context.Context, in OperationInput) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}

	rec := queue.OperationRecord{
		ID:        uuid.New(),
		Entity:    in.Entity,
		Action:    in.Action,
		EntityID:  in.EntityID,
		Payload:   in.Payload,
		Timestamp: e.cfg.Now(),
	}
	if _, err := e.store.Enqueue(ctx, rec); err != nil {
		return "", err
	}
	metrics.OperationsEnqueued.Inc()

	pending := e.store.GetPendingCount(ctx)
	e.update(func(s *State) {
		s.PendingCount = pending
		if s.Status != SyncStatusSyncing && s.Status != SyncStatusOffline {
			s.Status = SyncStatusIdle
		}
	})
	return rec.ID, nil
}

// Start activates periodic sync and connectivity handling. Calls are
// reference counted: only the first Start installs the timer and the
// connectivity listener.
func (e *Engine) Start() {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	e.refs++
	if e.refs > 1 {
		return
	}

	e.sched = scheduler.NewScheduler(func(ctx context.Context) {
		_, _ = e.Sync(ctx)
	}, &scheduler.SchedulerConfig{Interval: e.cfg.Interval})
	e.sched.Start(e.ctx)
	e.unsubConn = e.monitor.Subscribe(e.onConnectivity)

	e.log.Info("Sync engine started", map[string]interface{}{
		"interval_seconds": e.cfg.Interval.Seconds(),
		"batch_size":       e.cfg.BatchSize,
	})
}

// Stop releases one Start. The last Stop removes the timer and the
// connectivity listener.
func (e *Engine) Stop() {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()

	if e.refs == 0 {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	e.teardown()
}

func (e *Engine) teardown() {
	if e.unsubConn != nil {
		e.unsubConn()
		e.unsubConn = nil
	}
	if e.sched != nil {
		e.sched.Stop()
		e.sched = nil
	}
	e.log.Info("Sync engine stopped", nil)
}

// SchedulerStatus reports the periodic timer. It is not running before the
// first Start or after the last Stop.
func (e *Engine) SchedulerStatus() scheduler.SchedulerStatus {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.sched == nil {
		return scheduler.SchedulerStatus{Interval: e.cfg.Interval}
	}
	return e.sched.GetStatus()
}

// Running reports whether at least one Start is active.
func (e *Engine) Running() bool {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	return e.refs > 0
}

// Close stops the engine regardless of outstanding Starts and waits for
// background cycles to return.
func (e *Engine) Close() {
	e.lifeMu.Lock()
	if e.refs > 0 {
		e.refs = 0
		e.teardown()
	}
	e.lifeMu.Unlock()

	e.closeMu.Lock()
	e.closed = true
	e.closeMu.Unlock()

	e.cancel()
	e.wg.Wait()
}

func (e *Engine) onConnectivity(online bool) {
	if !online {
		e.log.Info("Connectivity lost", nil)
		e.update(func(s *State) {
			s.IsOnline = false
			s.IsSyncing = false
			s.Status = SyncStatusOffline
		})
		return
	}

	e.log.Info("Connectivity restored, syncing", nil)
	e.update(func(s *State) {
		s.IsOnline = true
		if e.syncing.Load() {
			s.Status = SyncStatusSyncing
		} else {
			s.Status = SyncStatusIdle
		}
	})
	if err := e.ForceSync(); err != nil {
		e.log.Debug("Reconnect sync not started", map[string]interface{}{
			"reason": string(apperrors.CodeOf(err)),
		})
	}
}

// ForceSync starts a cycle in the background without touching the timer.
// It reports ErrSyncOffline when the remote is unreachable, ErrSyncInProgress
// when a cycle is already in flight and ErrSyncFailed after Close.
func (e *Engine) ForceSync() error {
	if !e.monitor.IsOnline() {
		if e.ctx.Err() == nil {
			e.goOffline(e.ctx)
		}
		return apperrors.New(apperrors.ErrSyncOffline, "remote is unreachable")
	}

	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	if e.closed {
		return apperrors.New(apperrors.ErrSyncFailed, "sync engine is closed")
	}
	if !e.syncing.CompareAndSwap(false, true) {
		return apperrors.New(apperrors.ErrSyncInProgress, "sync already in progress")
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		_, _ = e.cycle(e.ctx)
	}()
	return nil
}

// Sync runs one cycle in the caller's goroutine. A call made while another
// cycle is in flight returns a skipped result without doing anything.
func (e *Engine) Sync(ctx context.Context) (*SyncResult, error) {
	if !e.monitor.IsOnline() {
		return e.goOffline(ctx), nil
	}
	if !e.syncing.CompareAndSwap(false, true) {
		e.log.Debug("Sync already in progress, skipping", nil)
		metrics.Cycles.WithLabelValues("skipped").Inc()
		return &SyncResult{Skipped: true}, nil
	}
	return e.cycle(ctx)
}

func (e *Engine) goOffline(ctx context.Context) *SyncResult {
	pending := e.store.GetPendingCount(ctx)
	e.update(func(s *State) {
		s.PendingCount = pending
		s.Status = SyncStatusOffline
		s.IsSyncing = false
		s.IsOnline = false
	})
	metrics.Cycles.WithLabelValues("offline").Inc()
	return &SyncResult{Offline: true}
}

// cycle runs push and pull. The caller must hold the cycle lock; cycle
// releases it.
func (e *Engine) cycle(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{StartTime: e.cfg.Now()}

	e.update(func(s *State) {
		s.Status = SyncStatusSyncing
		s.IsSyncing = true
		s.LastError = ""
	})

	err := e.run(ctx, result)
	e.syncing.Store(false)

	result.EndTime = e.cfg.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	metrics.CycleDuration.Observe(result.Duration.Seconds())

	pending := e.store.GetPendingCount(context.WithoutCancel(ctx))

	if err != nil {
		result.Error = err.Error()
		e.update(func(s *State) {
			s.PendingCount = pending
			s.Status = SyncStatusError
			s.LastError = err.Error()
			s.IsSyncing = false
		})
		metrics.Cycles.WithLabelValues("error").Inc()
		e.log.ErrorWithCode("Sync cycle failed", string(apperrors.CodeOf(err)), err, map[string]interface{}{
			"pushed":  result.Pushed,
			"pending": pending,
		})
		return result, err
	}

	online := e.monitor.IsOnline()
	e.update(func(s *State) {
		s.PendingCount = pending
		s.IsSyncing = false
		end := result.EndTime
		s.LastSyncAt = &end
		s.IsOnline = online
		if online {
			s.Status = SyncStatusIdle
		} else {
			s.Status = SyncStatusOffline
		}
	})
	metrics.Cycles.WithLabelValues("success").Inc()

	e.log.Info("Sync cycle completed", map[string]interface{}{
		"pushed":     result.Pushed,
		"processed":  result.Processed,
		"retried":    result.Retried,
		"terminated": result.Terminated,
		"pulled":     result.Pulled,
		"pending":    pending,
		"duration":   result.Duration.String(),
	})
	return result, nil
}

func (e *Engine) run(ctx context.Context, result *SyncResult) error {
	netCtx, cancel := context.WithTimeout(ctx, e.cfg.CycleTimeout)
	defer cancel()

	// Local bookkeeping outlives the network deadline so that results
	// already received are recorded.
	localCtx := context.WithoutCancel(ctx)

	if err := e.push(netCtx, localCtx, result); err != nil {
		return e.classify(netCtx, err, "push failed")
	}
	if err := e.pull(netCtx, localCtx, result); err != nil {
		return e.classify(netCtx, err, "pull failed")
	}
	return nil
}

// classify turns deadline expiry into SYNC_TIMEOUT and bare errors into
// transport errors.
func (e *Engine) classify(netCtx context.Context, err error, msg string) error {
	if netCtx.Err() == context.DeadlineExceeded {
		return apperrors.Wrap(apperrors.ErrSyncTimeout, "sync cycle timed out", err)
	}
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrap(apperrors.ErrTransport, msg, err)
}

func (e *Engine) push(netCtx, localCtx context.Context, result *SyncResult) error {
	items := e.store.ListPending(localCtx, e.cfg.BatchSize)
	if len(items) == 0 {
		return nil
	}

	batch := make([]*queue.QueueItem, 0, len(items))
	for _, item := range items {
		if item.RetryCount >= e.cfg.MaxRetries {
			msg := item.LastError
			if msg == "" {
				msg = "retry budget exhausted"
			}
			e.store.MarkFailed(localCtx, item.ID, msg, false)
			metrics.ObserveFailure(true)
			result.Terminated++
			continue
		}
		batch = append(batch, item)
	}
	if len(batch) == 0 {
		return nil
	}

	req := PushRequest{Operations: make([]PushEntry, 0, len(batch))}
	for _, item := range batch {
		req.Operations = append(req.Operations, PushEntry{
			OperationID:     item.ID,
			Entity:          item.Entity,
			Action:          string(item.Action),
			EntityID:        item.EntityID,
			Payload:         item.Payload,
			ClientTimestamp: item.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}

	resp, err := e.endpoint.Push(netCtx, req)
	if err != nil {
		return err
	}
	result.Pushed = len(batch)
	metrics.PushBatchSize.Observe(float64(len(batch)))

	results := make(map[string]PushResult, len(resp.Results))
	for _, r := range resp.Results {
		results[r.OperationID] = r
	}

	for _, item := range batch {
		r, ok := results[item.ID]
		switch {
		case !ok && e.cfg.MissingResultPolicy == MissingResultSuccess:
			e.markProcessed(localCtx, item, result)
		case !ok:
			e.markFailed(localCtx, item, missingResultError, true, result)
		case r.Success:
			e.markProcessed(localCtx, item, result)
		default:
			retryable := r.Retryable == nil || *r.Retryable
			msg := r.Error
			if msg == "" {
				msg = "rejected by remote"
			}
			e.markFailed(localCtx, item, msg, retryable, result)
		}
	}
	return nil
}

func (e *Engine) markProcessed(ctx context.Context, item *queue.QueueItem, result *SyncResult) {
	e.store.MarkProcessed(ctx, item.ID)
	metrics.OperationsProcessed.Inc()
	result.Processed++
}

// markFailed applies the retry budget on top of the server classification.
func (e *Engine) markFailed(ctx context.Context, item *queue.QueueItem, msg string, retryable bool, result *SyncResult) {
	retryable = retryable && item.RetryCount+1 < e.cfg.MaxRetries
	e.store.MarkFailed(ctx, item.ID, msg, retryable)
	metrics.ObserveFailure(!retryable)
	if retryable {
		result.Retried++
	} else {
		result.Terminated++
	}
}

func (e *Engine) pull(netCtx, localCtx context.Context, result *SyncResult) error {
	cursor, err := e.states.LoadCursor(localCtx)
	if err != nil {
		return err
	}

	resp, err := e.endpoint.Pull(netCtx, PullRequest{Since: cursor, Limit: e.cfg.PullLimit})
	if err != nil {
		return err
	}
	result.Pulled = len(resp.Changes)
	metrics.PulledChanges.Add(float64(len(resp.Changes)))

	if e.cfg.Applier != nil && len(resp.Changes) > 0 {
		if err := e.cfg.Applier.ApplyChanges(netCtx, resp.Changes); err != nil {
			return apperrors.Wrap(apperrors.ErrSyncFailed, "failed to apply pulled changes", err)
		}
	}

	if resp.NextSince != "" && resp.NextSince != cursor {
		if err := e.states.SaveCursor(localCtx, resp.NextSince); err != nil {
			return err
		}
	}
	return e.states.SaveLastSync(localCtx, e.cfg.Now())
}

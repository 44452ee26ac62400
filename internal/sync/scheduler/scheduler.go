// Package scheduler provides the periodic timer that drives sync cycles.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/leobar37/leobit2-sub001/internal/logging"
)

// Runner is invoked on every tick. It receives a context that is canceled
// when the scheduler stops.
type Runner func(ctx context.Context)

// Scheduler calls a Runner on a fixed interval.
type Scheduler struct {
	run      Runner
	interval time.Duration

	mu          sync.RWMutex
	isRunning   bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastRunTime time.Time
	runs        int64

	log *logging.Logger
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	Interval time.Duration // How often to run (default: 30 seconds)
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Interval: 30 * time.Second,
	}
}

// NewScheduler creates a new Scheduler.
func NewScheduler(run Runner, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	interval := config.Interval
	if interval <= 0 {
		interval = DefaultSchedulerConfig().Interval
	}

	return &Scheduler{
		run:      run,
		interval: interval,
		log:      logging.Named("scheduler"),
	}
}

// Start starts the ticker loop. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.isRunning = true

	s.wg.Add(1)
	go s.loop(ctx)

	s.log.Info("Sync scheduler started", map[string]interface{}{
		"interval_seconds": s.interval.Seconds(),
	})
}

// Stop stops the ticker loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.log.Info("Sync scheduler stopped", nil)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	s.run(ctx)

	s.mu.Lock()
	s.lastRunTime = time.Now()
	s.runs++
	s.mu.Unlock()
}

// SchedulerStatus is a snapshot of the scheduler.
type SchedulerStatus struct {
	IsRunning   bool          `json:"isRunning"`
	Interval    time.Duration `json:"interval"`
	LastRunTime *time.Time    `json:"lastRunTime,omitempty"`
	Runs        int64         `json:"runs"`
}

// GetStatus returns the current status of the scheduler.
func (s *Scheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SchedulerStatus{
		IsRunning: s.isRunning,
		Interval:  s.interval,
		Runs:      s.runs,
	}
	if !s.lastRunTime.IsZero() {
		t := s.lastRunTime
		status.LastRunTime = &t
	}
	return status
}


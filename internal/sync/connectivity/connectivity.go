// Package connectivity reports network reachability to the sync engine and
// raises edge-triggered online/offline events.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/leobar37/leobit2-sub001/internal/logging"
)

// Listener receives the new connectivity state on every transition.
type Listener func(online bool)

// Monitor exposes current reachability and transition events.
type Monitor interface {
	IsOnline() bool
	Subscribe(l Listener) (unsubscribe func())
}

// broadcaster holds the online flag and its listeners.
type broadcaster struct {
	mu        sync.Mutex
	online    bool
	nextID    int
	listeners map[int]Listener
}

func newBroadcaster(online bool) *broadcaster {
	return &broadcaster{online: online, listeners: make(map[int]Listener)}
}

func (b *broadcaster) IsOnline() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.online
}

func (b *broadcaster) Subscribe(l Listener) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// set updates the flag and notifies listeners outside the lock when it
// changed. Reports whether a transition happened.
func (b *broadcaster) set(online bool) bool {
	b.mu.Lock()
	if b.online == online {
		b.mu.Unlock()
		return false
	}
	b.online = online
	listeners := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	for _, l := range listeners {
		l(online)
	}
	return true
}

// Manual is a Monitor driven by explicit SetOnline calls. It starts online.
type Manual struct {
	*broadcaster
}

// NewManual creates a Manual monitor in the online state.
func NewManual() *Manual {
	return &Manual{broadcaster: newBroadcaster(true)}
}

// SetOnline records reachability and notifies listeners on change.
func (m *Manual) SetOnline(online bool) {
	m.set(online)
}

// ProbeFunc checks reachability. A nil error means online.
type ProbeFunc func(ctx context.Context) error

// Prober is a Monitor that polls a ProbeFunc on an interval.
// Without a probe it reports online permanently.
type Prober struct {
	*broadcaster
	probe    ProbeFunc
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	log *logging.Logger
}

// NewProber creates a Prober. Zero interval or timeout fall back to 15s and 5s.
func NewProber(probe ProbeFunc, interval, timeout time.Duration) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		broadcaster: newBroadcaster(true),
		probe:       probe,
		interval:    interval,
		timeout:     timeout,
		log:         logging.Named("connectivity"),
	}
}

// Start probes once and then keeps probing until Stop or ctx is done.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.probe == nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.run(ctx, p.done)
}

// Stop halts probing and waits for the loop to exit.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	done := p.done
	p.mu.Unlock()

	<-done
}

// Check runs the probe once and applies the result.
func (p *Prober) Check(ctx context.Context) bool {
	if p.probe == nil {
		return true
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.probe(probeCtx)
	if err != nil && ctx.Err() != nil {
		// Stopped mid-probe; keep the last known state.
		return p.IsOnline()
	}
	online := err == nil
	if p.set(online) {
		fields := map[string]interface{}{"online": online}
		if err != nil {
			fields["error"] = err.Error()
		}
		p.log.Info("Connectivity changed", fields)
	}
	return online
}

func (p *Prober) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}

var (
	_ Monitor = (*Manual)(nil)
	_ Monitor = (*Prober)(nil)
)

package apiclient

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Lister is the subset of the Client used by the Poller.
type Lister interface {
	List(ctx context.Context) ([]Generation, error)
}

// PollerState reports whether the poll loop is armed.
type PollerState int

const (
	// StateIdle means no poll loop is running.
	StateIdle PollerState = iota
	// StateRunning means a poll loop is active.
	StateRunning
)

func (s PollerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

const defaultPollInterval = 5 * time.Second

// Poller polls the generation list at a fixed interval and stops itself once
// no generation remains in the processing state. Submitting new work should be
// followed by Register to arm the loop again.
type Poller struct {
	lister   Lister
	interval time.Duration
	logger   *slog.Logger
	onUpdate func([]Generation)

	mu     sync.Mutex
	state  PollerState
	cancel context.CancelFunc
	done   chan struct{}
}

// PollerOption is a function that configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithLogger sets the logger used by the poll loop.
func WithLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = logger
	}
}

// WithOnUpdate registers a callback invoked with every successful poll result.
func WithOnUpdate(fn func([]Generation)) PollerOption {
	return func(p *Poller) {
		p.onUpdate = fn
	}
}

// NewPoller creates a poller over the given lister.
func NewPoller(lister Lister, opts ...PollerOption) *Poller {
	p := &Poller{
		lister:   lister,
		interval: defaultPollInterval,
		logger:   slog.Default(),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current poller state.
func (p *Poller) State() PollerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start arms the poll loop. It is a no-op while a loop is already running.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startLocked()
}

// Register signals that new work was submitted and re-arms the poll loop.
func (p *Poller) Register() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startLocked()
}

// Refresh performs one immediate poll and re-arms the loop when any
// generation is still processing.
func (p *Poller) Refresh(ctx context.Context) ([]Generation, error) {
	generations, err := p.lister.List(ctx)
	if err != nil {
		return nil, err
	}
	if p.onUpdate != nil {
		p.onUpdate(generations)
	}
	if anyProcessing(generations) {
		p.Start()
	}
	return generations, nil
}

// Stop disarms the poll loop and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state == StateIdle {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done
}

func (p *Poller) startLocked() {
	if p.state == StateRunning {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.state = StateRunning
	p.cancel = cancel
	p.done = done
	go p.loop(ctx, done)
}

// loop polls until the context is cancelled or a poll observes zero
// processing generations. Only one poll is ever in flight.
func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer p.disarm(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		keepPolling, err := p.pollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("poll failed", "error", err)
		} else if !keepPolling {
			p.logger.Debug("no generations processing, poller going idle")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) (bool, error) {
	generations, err := p.lister.List(ctx)
	if err != nil {
		return true, err
	}
	if p.onUpdate != nil {
		p.onUpdate(generations)
	}
	return anyProcessing(generations), nil
}

// disarm flips the poller back to idle unless a newer loop replaced this one.
func (p *Poller) disarm(done chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == done {
		p.state = StateIdle
		p.cancel = nil
		p.done = nil
	}
}

func anyProcessing(generations []Generation) bool {
	for _, g := range generations {
		if g.IsProcessing() {
			return true
		}
	}
	return false
}

package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/appetiteclub/apt"

	"github.com/appetiteclub/cafesync/internal/orderapi"
)

const (
	DefaultFastInterval = 3 * time.Second
	DefaultSlowInterval = 30 * time.Second
)

// Source produces poll snapshots.
type Source interface {
	Snapshot(ctx context.Context) (*orderapi.Snapshot, error)
}

type PollerConfig struct {
	FastInterval time.Duration
	SlowInterval time.Duration
}

// Poller drives the core from the fast and slow tickers and from the core's
// refresh signal. Cycles run one at a time.
type Poller struct {
	core   *Core
	source Source
	cfg    PollerConfig
	logger apt.Logger

	runMu sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
	wg      sync.WaitGroup
}

func NewPoller(core *Core, source Source, cfg PollerConfig, logger apt.Logger) *Poller {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if cfg.SlowInterval <= 0 {
		cfg.SlowInterval = DefaultSlowInterval
	}
	return &Poller{
		core:   core,
		source: source,
		cfg:    cfg,
		logger: logger,
	}
}

// Start runs one cycle right away and then keeps polling until Stop.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.stopped = false
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(loopCtx)

	p.logger.Info("order poller started", "fast", p.cfg.FastInterval.String(), "slow", p.cfg.SlowInterval.String())
	return nil
}

// Stop suppresses further cycles and waits for the one in flight. No result
// is applied after Stop returns.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.stopped = true
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		p.runMu.Lock()
		p.runMu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RefreshNow runs one cycle synchronously, serialized with the loop.
func (p *Poller) RefreshNow(ctx context.Context) error {
	return p.cycle(ctx)
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	var fastC <-chan time.Time
	var fast *time.Ticker
	if p.cfg.FastInterval > 0 {
		fast = time.NewTicker(p.cfg.FastInterval)
		defer fast.Stop()
		fastC = fast.C
	}
	slow := time.NewTicker(p.cfg.SlowInterval)
	defer slow.Stop()

	run := func() {
		if err := p.cycle(ctx); err != nil && ctx.Err() == nil {
			p.logger.Info("poll cycle failed", "error", err)
		}
		if fast != nil {
			fast.Reset(p.cfg.FastInterval)
		}
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return
		case <-fastC:
			run()
		case <-slow.C:
			run()
		case <-p.core.Signal():
			run()
		}
	}
}

func (p *Poller) cycle(ctx context.Context) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.isStopped() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.core.BeginPoll()
	defer p.core.EndPoll()

	snap, err := p.source.Snapshot(ctx)

	if p.isStopped() || ctx.Err() != nil {
		return ctx.Err()
	}

	switch {
	case err == nil:
		n := p.core.ApplySnapshot(snap.Records, snap.Stats)
		p.logger.Debug("poll applied", "source", snap.Source, "orders", n)
		return nil
	case errors.Is(err, orderapi.ErrAllSourcesFailed):
		p.core.ClearAll()
		return err
	default:
		return err
	}
}

func (p *Poller) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

package viewstate

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/hako/durafmt"
)

// DefaultPollInterval matches the balance refetch interval of the
// wallet UI.
const DefaultPollInterval = 10 * time.Second

// Poller refreshes a Store on a fixed interval.
//
// Each tick runs the refresh on the poller's own goroutine, so a tick
// cannot start while the previous refresh for the account is still
// outstanding; ticks that fall due meanwhile are dropped.
type Poller struct {
	store    *Store
	interval time.Duration
	logger   *log.Logger
	stats    statsd.ClientInterface

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// PollerOptions configures a Poller.
type PollerOptions struct {
	Interval time.Duration
	Logger   *log.Logger
	Stats    statsd.ClientInterface
}

// NewPoller creates a stopped poller for store.
func NewPoller(store *Store, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Stats == nil {
		opts.Stats = &statsd.NoOpClient{}
	}
	return &Poller{
		store:    store,
		interval: opts.Interval,
		logger:   opts.Logger,
		stats:    opts.Stats,
	}
}

// Start begins polling. The first refresh runs immediately. Start on a
// running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

// Stop cancels polling and waits for an in-flight refresh to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	p.logger.Printf("github.com/blockberries/nftflow/viewstate: polling %s every %s",
		p.store.Address(), durafmt.Parse(p.interval).String())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	start := time.Now()
	err := p.store.Refresh(ctx)
	_ = p.stats.Timing("nftflow.poll.refresh", time.Since(start), nil, 1)
	if err != nil && ctx.Err() == nil {
		_ = p.stats.Incr("nftflow.poll.failed", nil, 1)
		p.logger.Printf("github.com/blockberries/nftflow/viewstate: WARNING: %v; retrying in %s",
			err, durafmt.Parse(p.interval).String())
	}
}

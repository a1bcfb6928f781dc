package viewstate

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/blockberries/nftflow"
)

// Session tracks the connected wallet account and owns its Store and
// Poller. A Store exists only while an account is connected.
type Session struct {
	signer nftflow.Signer
	client nftflow.ChainClient
	opts   SessionOptions

	// swapMu serializes connection changes so only one store and
	// poller are ever installed.
	swapMu sync.Mutex

	mu     sync.Mutex
	ctx    context.Context
	store  *Store
	poller *Poller
	unsub  func()
	closed bool
}

// SessionOptions configures a Session.
type SessionOptions struct {
	PollInterval time.Duration
	Cache        *SnapshotCache
	Logger       *log.Logger
	Stats        statsd.ClientInterface
	Now          func() time.Time
}

// NewSession creates a session for the given wallet and chain client.
// Call Start to begin tracking connection changes.
func NewSession(signer nftflow.Signer, client nftflow.ChainClient, opts SessionOptions) *Session {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Stats == nil {
		opts.Stats = &statsd.NoOpClient{}
	}
	return &Session{signer: signer, client: client, opts: opts}
}

// Start subscribes to wallet connection changes and attaches to the
// currently connected account, if any. Polling stops when ctx is
// cancelled or Close is called.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	unsub := s.signer.Subscribe(s.handle)

	s.mu.Lock()
	s.unsub = unsub
	s.mu.Unlock()

	if addr, ok := s.signer.Account(); ok {
		s.swapMu.Lock()
		s.connect(addr)
		s.swapMu.Unlock()
	}
}

// Current returns the connected account's store.
func (s *Session) Current() (*Store, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store, s.store != nil
}

// Close unsubscribes from the wallet and detaches the account.
func (s *Session) Close() {
	s.mu.Lock()
	unsub := s.unsub
	s.unsub = nil
	s.closed = true
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}

	s.swapMu.Lock()
	defer s.swapMu.Unlock()
	s.disconnect()
}

func (s *Session) handle(ev nftflow.ConnectionEvent) {
	s.swapMu.Lock()
	defer s.swapMu.Unlock()
	if ev.Connected && ev.Address != "" {
		s.connect(ev.Address)
		return
	}
	s.disconnect()
}

// connect replaces the current store and poller with ones for addr.
// Callers hold swapMu, as for disconnect.
func (s *Session) connect(addr string) {
	s.mu.Lock()
	if s.closed || (s.store != nil && s.store.Address() == addr) {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Unlock()

	s.disconnect()

	store := NewStore(addr, s.client, StoreOptions{
		Cache:  s.opts.Cache,
		Logger: s.opts.Logger,
		Now:    s.opts.Now,
	})
	store.Warm(ctx)
	poller := NewPoller(store, PollerOptions{
		Interval: s.opts.PollInterval,
		Logger:   s.opts.Logger,
		Stats:    s.opts.Stats,
	})

	s.mu.Lock()
	s.store = store
	s.poller = poller
	s.mu.Unlock()

	s.opts.Logger.Printf("github.com/blockberries/nftflow/viewstate: account %s connected", addr)
	poller.Start(ctx)
}

func (s *Session) disconnect() {
	s.mu.Lock()
	store, poller := s.store, s.poller
	s.store, s.poller = nil, nil
	s.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
	if store != nil {
		store.Close()
		s.opts.Logger.Printf("github.com/blockberries/nftflow/viewstate: account %s disconnected", store.Address())
	}
}

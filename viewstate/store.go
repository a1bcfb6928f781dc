// Package viewstate holds the per-account cached balance and
// transaction history, and keeps it reconciled with the chain.
//
// A Store is the only shared mutable resource of the core. Writes are
// serialized on a mutex; chain reads happen outside it so a slow
// refresh never blocks an optimistic prepend.
package viewstate

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/blockberries/nftflow"
	"github.com/blockberries/nftflow/types"
)

// prepended is an optimistically inserted record and the sequence
// number it was inserted at.
type prepended struct {
	seq uint64
	rec types.TxRecord
}

// Store is the view state of one account.
type Store struct {
	address string
	client  nftflow.ChainClient
	cache   *SnapshotCache
	logger  *log.Logger
	now     func() time.Time

	// refreshSem serializes refreshes so each one fetches state that
	// is at least as new as every prepend made before it started.
	refreshSem chan struct{}

	mu     sync.Mutex
	snap   types.AccountSnapshot
	seq    uint64
	recent []prepended
	closed bool
}

// StoreOptions configures a Store.
type StoreOptions struct {
	// Cache persists snapshots across sessions. Optional.
	Cache  *SnapshotCache
	Logger *log.Logger
	// Now is the clock used for RefreshedAt. Defaults to time.Now.
	Now func() time.Time
}

// NewStore creates an empty store for address.
func NewStore(address string, client nftflow.ChainClient, opts StoreOptions) *Store {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		address:    address,
		client:     client,
		cache:      opts.Cache,
		logger:     opts.Logger,
		now:        opts.Now,
		refreshSem: make(chan struct{}, 1),
		snap:       types.AccountSnapshot{Address: address},
	}
}

// Address returns the account address.
func (s *Store) Address() string { return s.address }

// Snapshot returns a copy of the current view.
func (s *Store) Snapshot() types.AccountSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Prepend optimistically inserts a confirmed record at the head of the
// history. It is visible to Snapshot immediately. A record whose hash
// is already present is not duplicated.
func (s *Store) Prepend(rec types.TxRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.seq++
	s.recent = append(s.recent, prepended{seq: s.seq, rec: rec.Clone()})
	if _, ok := s.snap.Find(rec.Hash); ok {
		return
	}
	s.snap.History = append([]types.TxRecord{rec.Clone()}, s.snap.History...)
}

// Refresh replaces the snapshot with the authoritative balance and
// history read from the chain.
//
// Refreshes are serialized and idempotent. A record prepended after
// this refresh started its reads, and missing from what it read, is
// kept at the head of the history; the next refresh decides whether it
// stays. Records prepended earlier are dropped if the chain does not
// report them.
//
// On failure the snapshot is left unchanged and a
// *nftflow.ReconciliationWarning is returned.
func (s *Store) Refresh(ctx context.Context) error {
	select {
	case s.refreshSem <- struct{}{}:
	case <-ctx.Done():
		return &nftflow.ReconciliationWarning{Address: s.address, Err: ctx.Err()}
	}
	defer func() { <-s.refreshSem }()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	startSeq := s.seq
	s.mu.Unlock()

	balance, err := s.client.ReadBalance(ctx, s.address)
	if err != nil {
		return &nftflow.ReconciliationWarning{Address: s.address, Err: err}
	}
	history, err := s.client.ReadHistory(ctx, s.address)
	if err != nil {
		return &nftflow.ReconciliationWarning{Address: s.address, Err: err}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.apply(startSeq, balance, history)
	snap := s.snap.Clone()
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Put(ctx, snap); err != nil {
			s.logger.Printf("github.com/blockberries/nftflow/viewstate: cache snapshot %s: %v", s.address, err)
		}
	}
	return nil
}

// apply installs a fetched state. Caller holds s.mu.
func (s *Store) apply(startSeq, balance uint64, history []types.TxRecord) {
	fetched := make(map[string]struct{}, len(history))
	for _, r := range history {
		fetched[r.Hash] = struct{}{}
	}

	var keep []prepended
	for _, p := range s.recent {
		if p.seq <= startSeq {
			continue
		}
		if _, ok := fetched[p.rec.Hash]; ok {
			continue
		}
		keep = append(keep, p)
	}
	s.recent = keep

	next := make([]types.TxRecord, 0, len(keep)+len(history))
	// Newest prepend first.
	for i := len(keep) - 1; i >= 0; i-- {
		next = append(next, keep[i].rec.Clone())
	}
	for _, r := range history {
		next = append(next, r.Clone())
	}

	s.snap.Balance = balance
	s.snap.History = next
	s.snap.RefreshedAt = s.now()
}

// Warm seeds an empty store from the snapshot cache. It reports whether
// a cached snapshot was found.
func (s *Store) Warm(ctx context.Context) bool {
	if s.cache == nil {
		return false
	}
	snap, ok := s.cache.Get(ctx, s.address)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.snap.RefreshedAt.IsZero() || len(s.snap.History) > 0 {
		return false
	}
	s.snap = snap
	return true
}

// Close clears the view and turns later writes into no-ops.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.recent = nil
	s.snap = types.AccountSnapshot{Address: s.address}
}

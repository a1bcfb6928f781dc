package viewstate_test

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/blockberries/nftflow"
	nftflowtest "github.com/blockberries/nftflow/testing"
	"github.com/blockberries/nftflow/types"
	"github.com/blockberries/nftflow/viewstate"
)

const alice = "0xa11ce"

var quiet = log.New(io.Discard, "", 0)

func record(hash string) types.TxRecord {
	return types.TxRecord{Hash: hash, Success: true, Timestamp: 1}
}

func hashes(snap types.AccountSnapshot) []string {
	out := make([]string, len(snap.History))
	for i, r := range snap.History {
		out[i] = r.Hash
	}
	return out
}

func TestStore_RefreshReplacesSnapshot(t *testing.T) {
	gw := nftflowtest.NewMockGateway(alice, 500)
	gw.History = []types.TxRecord{record("0x2"), record("0x1")}
	store := viewstate.NewStore(alice, gw, viewstate.StoreOptions{Logger: quiet})

	if err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	snap := store.Snapshot()
	if snap.Balance != 500 || len(snap.History) != 2 || snap.History[0].Hash != "0x2" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.RefreshedAt.IsZero() {
		t.Error("RefreshedAt not set")
	}

	// Snapshots are copies.
	snap.History[0].Hash = "mutated"
	if store.Snapshot().History[0].Hash != "0x2" {
		t.Error("Snapshot exposed internal state")
	}
}

func TestStore_PrependIsImmediateAndDeduplicated(t *testing.T) {
	gw := nftflowtest.NewMockGateway(alice, 500)
	gw.History = []types.TxRecord{record("0x1")}
	store := viewstate.NewStore(alice, gw, viewstate.StoreOptions{Logger: quiet})
	store.Refresh(context.Background())

	store.Prepend(record("0x2"))
	store.Prepend(record("0x1"))
	got := hashes(store.Snapshot())
	if len(got) != 2 || got[0] != "0x2" || got[1] != "0x1" {
		t.Fatalf("history = %v, want [0x2 0x1]", got)
	}
}

// A record prepended while a refresh is fetching survives that refresh
// even though the fetched history predates it.
func TestStore_PrependDuringRefreshSurvives(t *testing.T) {
	gw := nftflowtest.NewMockGateway(alice, 500)
	fetching := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	gw.ReadHistoryFn = func(context.Context, string) ([]types.TxRecord, error) {
		once.Do(func() {
			close(fetching)
			<-release
		})
		return []types.TxRecord{record("0x1")}, nil
	}
	store := viewstate.NewStore(alice, gw, viewstate.StoreOptions{Logger: quiet})

	done := make(chan error, 1)
	go func() { done <- store.Refresh(context.Background()) }()
	<-fetching
	store.Prepend(record("0x2"))
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	got := hashes(store.Snapshot())
	if len(got) != 2 || got[0] != "0x2" || got[1] != "0x1" {
		t.Fatalf("history = %v, want [0x2 0x1]", got)
	}
}

// Once the chain reports the record, later refreshes keep exactly one
// copy; a record the chain never reports is dropped by the first
// refresh that started after it was prepended.
func TestStore_AuthoritativeStateWins(t *testing.T) {
	gw := nftflowtest.NewMockGateway(alice, 500)
	store := viewstate.NewStore(alice, gw, viewstate.StoreOptions{Logger: quiet})

	store.Prepend(record("0x9"))
	gw.History = []types.TxRecord{record("0x9")}
	store.Refresh(context.Background())
	if got := hashes(store.Snapshot()); len(got) != 1 || got[0] != "0x9" {
		t.Fatalf("history = %v, want [0x9]", got)
	}

	store.Prepend(record("0xphantom"))
	store.Refresh(context.Background())
	if _, ok := store.Snapshot().Find("0xphantom"); ok {
		t.Error("record unknown to the chain survived a later refresh")
	}
}

func TestStore_ConcurrentPrependAndRefresh(t *testing.T) {
	gw := nftflowtest.NewMockGateway(alice, 500)
	store := viewstate.NewStore(alice, gw, viewstate.StoreOptions{Logger: quiet})

	var mu sync.Mutex
	var chain []types.TxRecord
	gw.ReadHistoryFn = func(context.Context, string) ([]types.TxRecord, error) {
		mu.Lock()
		defer mu.Unlock()
		return append([]types.TxRecord(nil), chain...), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				store.Refresh(context.Background())
			}
		}()
	}
	for i := 0; i < 50; i++ {
		rec := types.TxRecord{Hash: "0x" + string(rune('a'+i%26)) + string(rune('a'+i/26)), Success: true}
		mu.Lock()
		chain = append([]types.TxRecord{rec}, chain...)
		mu.Unlock()
		store.Prepend(rec)
	}
	wg.Wait()

	// A final refresh sees every record exactly once.
	if err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	got := hashes(store.Snapshot())
	if len(got) != 50 {
		t.Fatalf("history has %d records, want 50", len(got))
	}
	seen := make(map[string]bool)
	for _, h := range got {
		if seen[h] {
			t.Fatalf("duplicate record %s", h)
		}
		seen[h] = true
	}
}

func TestStore_RefreshFailureIsWarning(t *testing.T) {
	gw := nftflowtest.NewMockGateway(alice, 500)
	store := viewstate.NewStore(alice, gw, viewstate.StoreOptions{Logger: quiet})
	store.Refresh(context.Background())

	boom := errors.New("node unavailable")
	gw.ReadBalanceFn = func(context.Context, string) (uint64, error) { return 0, boom }
	err := store.Refresh(context.Background())
	w, ok := nftflow.IsReconciliation(err)
	if !ok || !errors.Is(err, boom) || w.Address != alice {
		t.Fatalf("expected ReconciliationWarning wrapping boom, got %v", err)
	}
	if store.Snapshot().Balance != 500 {
		t.Error("failed refresh changed the snapshot")
	}
}

func TestStore_CloseClearsView(t *testing.T) {
	gw := nftflowtest.NewMockGateway(alice, 500)
	store := viewstate.NewStore(alice, gw, viewstate.StoreOptions{Logger: quiet})
	store.Refresh(context.Background())
	store.Close()

	store.Prepend(record("0x1"))
	store.Refresh(context.Background())
	snap := store.Snapshot()
	if snap.Balance != 0 || len(snap.History) != 0 {
		t.Errorf("closed store still has state: %+v", snap)
	}
}

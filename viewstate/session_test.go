package viewstate_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	nftflowtest "github.com/blockberries/nftflow/testing"
	"github.com/blockberries/nftflow/viewstate"
)

func TestSession_ConnectAndDisconnect(t *testing.T) {
	gw := nftflowtest.NewMockGateway("", 300)
	s := viewstate.NewSession(gw, gw, viewstate.SessionOptions{PollInterval: time.Hour, Logger: quiet})
	s.Start(context.Background())
	defer s.Close()

	if _, ok := s.Current(); ok {
		t.Fatal("store exists with no account connected")
	}

	gw.Connect(alice)
	store, ok := s.Current()
	if !ok || store.Address() != alice {
		t.Fatal("no store after connect")
	}

	gw.Disconnect()
	if _, ok := s.Current(); ok {
		t.Fatal("store survived disconnect")
	}
	if snap := store.Snapshot(); snap.Balance != 0 || len(snap.History) != 0 {
		t.Errorf("disconnected store not cleared: %+v", snap)
	}
}

func TestSession_AccountSwitch(t *testing.T) {
	gw := nftflowtest.NewMockGateway(alice, 300)
	s := viewstate.NewSession(gw, gw, viewstate.SessionOptions{PollInterval: time.Hour, Logger: quiet})
	s.Start(context.Background())
	defer s.Close()

	first, ok := s.Current()
	if !ok {
		t.Fatal("session did not attach to the already connected account")
	}
	gw.Connect("0xb0b")
	second, _ := s.Current()
	if second == first || second.Address() != "0xb0b" {
		t.Fatal("session did not switch stores")
	}

	// Reconnecting the same account keeps the store.
	gw.Connect("0xb0b")
	if third, _ := s.Current(); third != second {
		t.Error("same-account connect replaced the store")
	}
}

func TestSession_CloseUnsubscribes(t *testing.T) {
	gw := nftflowtest.NewMockGateway("", 300)
	s := viewstate.NewSession(gw, gw, viewstate.SessionOptions{PollInterval: time.Hour, Logger: quiet})
	s.Start(context.Background())
	s.Close()

	gw.Connect(alice)
	if _, ok := s.Current(); ok {
		t.Error("closed session reacted to a connection event")
	}
}

func TestSession_ConcurrentConnectsInstallOneStore(t *testing.T) {
	gw := nftflowtest.NewMockGateway("", 300)

	var (
		mu        sync.Mutex
		recording bool
		readers   = map[string]bool{}
	)
	gw.ReadBalanceFn = func(_ context.Context, address string) (uint64, error) {
		mu.Lock()
		if recording {
			readers[address] = true
		}
		mu.Unlock()
		return 300, nil
	}

	s := viewstate.NewSession(gw, gw, viewstate.SessionOptions{PollInterval: 2 * time.Millisecond, Logger: quiet})
	s.Start(context.Background())

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gw.Connect(fmt.Sprintf("0x%x", i+1))
		}()
	}
	wg.Wait()

	current, ok := s.Current()
	if !ok {
		t.Fatal("no store after concurrent connects")
	}
	mu.Lock()
	recording = true
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	recording = false
	got := len(readers)
	stray := !readers[current.Address()] && got > 0
	mu.Unlock()
	if got > 1 || stray {
		t.Fatalf("pollers still running for %d accounts, current %s: %v", got, current.Address(), readers)
	}

	s.Close()
	before := gw.BalanceCalls.Load()
	time.Sleep(30 * time.Millisecond)
	if after := gw.BalanceCalls.Load(); after != before {
		t.Errorf("%d balance reads after Close", after-before)
	}
}

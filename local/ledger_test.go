package local

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/blockberries/nftflow"
	"github.com/blockberries/nftflow/payload"
	nftflowtest "github.com/blockberries/nftflow/testing"
	"github.com/blockberries/nftflow/types"
)

const alice = "0xa11ce"

func newLedger(t *testing.T, opts Options) *Ledger {
	t.Helper()
	opts.Logger = log.New(io.Discard, "", 0)
	l := New(opts)
	l.Fund(alice, 1_000_000)
	l.Connect(alice)
	return l
}

func TestLedger_Compliance(t *testing.T) {
	nftflowtest.RunGatewaySuite(t, func(t *testing.T) nftflowtest.GatewayFixture {
		l := newLedger(t, Options{})
		return nftflowtest.GatewayFixture{Gateway: l, Targets: payload.NewTargets(DefaultModuleAddress), Balance: 1_000_000}
	})
}

func TestLedger_NotConnected(t *testing.T) {
	l := New(Options{Logger: log.New(io.Discard, "", 0)})
	_, err := l.SubmitAndSign(context.Background(), payload.MintNFT(payload.NewTargets(DefaultModuleAddress), "0x1", 1))
	if !errors.Is(err, nftflow.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestLedger_Rejection(t *testing.T) {
	l := newLedger(t, Options{Approve: func(types.CallDescriptor) bool { return false }})
	_, err := l.SubmitAndSign(context.Background(), payload.MintNFT(payload.NewTargets(DefaultModuleAddress), "0x1", 1))
	if !errors.Is(err, nftflow.ErrUserRejected) {
		t.Fatalf("expected ErrUserRejected, got %v", err)
	}
	if l.Pending() != 0 {
		t.Error("rejected call should not be queued")
	}
}

func TestLedger_MistypedArguments(t *testing.T) {
	l := newLedger(t, Options{})
	call := types.CallDescriptor{
		Function:  payload.DefaultCoinTransfer,
		Arguments: []types.Argument{types.String("0xb0b"), types.U64(1)},
	}
	if _, err := l.SubmitAndSign(context.Background(), call); err == nil {
		t.Fatal("expected a string recipient to be rejected")
	}
}

func TestLedger_HoldFinality(t *testing.T) {
	l := newLedger(t, Options{HoldFinality: true})
	ctx := context.Background()
	pending, err := l.SubmitAndSign(ctx, payload.Transfer(payload.NewTargets(DefaultModuleAddress), "0xb0b", payload.FromSmallestUnit(400, types.CoinDecimals)))
	if err != nil {
		t.Fatalf("SubmitAndSign: %v", err)
	}

	if bal, _ := l.ReadBalance(ctx, alice); bal != 1_000_000 {
		t.Fatalf("balance moved before finality: %d", bal)
	}
	if h, _ := l.ReadHistory(ctx, alice); len(h) != 0 {
		t.Fatalf("history has %d records before finality", len(h))
	}

	done := make(chan types.TxRecord, 1)
	go func() {
		rec, err := l.WaitForFinality(ctx, pending.Hash)
		if err != nil {
			t.Errorf("WaitForFinality: %v", err)
		}
		done <- rec
	}()

	select {
	case <-done:
		t.Fatal("WaitForFinality returned while held")
	case <-time.After(50 * time.Millisecond):
	}

	l.Release()
	rec := <-done
	if !rec.Success {
		t.Fatalf("transfer aborted: %s", rec.VMStatus)
	}
	if bal, _ := l.ReadBalance(ctx, alice); bal != 1_000_000-400 {
		t.Errorf("balance = %d, want %d", bal, 1_000_000-400)
	}
}

func TestLedger_FinalityDelay(t *testing.T) {
	l := newLedger(t, Options{FinalityDelay: 30 * time.Millisecond})
	ctx := context.Background()
	start := time.Now()
	pending, err := l.SubmitAndSign(ctx, payload.MintNFT(payload.NewTargets(DefaultModuleAddress), "0x1", 1))
	if err != nil {
		t.Fatalf("SubmitAndSign: %v", err)
	}
	rec, err := l.WaitForFinality(ctx, pending.Hash)
	if err != nil {
		t.Fatalf("WaitForFinality: %v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Error("finality observed before the configured delay")
	}
	if rec.Success || rec.VMStatus != AbortCollectionNotFound {
		t.Errorf("mint from unknown collection: success=%v status=%q", rec.Success, rec.VMStatus)
	}
}

func TestLedger_CreateCollectionRequiresCreator(t *testing.T) {
	l := newLedger(t, Options{})
	ctx := context.Background()
	call := payload.CreateCollection(payload.NewTargets(DefaultModuleAddress), "0xb0b", "n", "d", "https://x.io", 5)
	pending, err := l.SubmitAndSign(ctx, call)
	if err != nil {
		t.Fatalf("SubmitAndSign: %v", err)
	}
	rec, _ := l.WaitForFinality(ctx, pending.Hash)
	if rec.Success || rec.VMStatus != AbortNotCreator {
		t.Errorf("success=%v status=%q, want abort %q", rec.Success, rec.VMStatus, AbortNotCreator)
	}
}

func TestLedger_MintHoldings(t *testing.T) {
	l := newLedger(t, Options{})
	ctx := context.Background()
	targets := payload.NewTargets(DefaultModuleAddress)

	for _, call := range []types.CallDescriptor{
		payload.CreateCollection(targets, alice, "Art", "d", "https://x.io", 5),
		payload.BatchMintNFTs(targets, CollectionAddress(alice, "Art"), 3),
	} {
		pending, err := l.SubmitAndSign(ctx, call)
		if err != nil {
			t.Fatalf("SubmitAndSign: %v", err)
		}
		if rec, _ := l.WaitForFinality(ctx, pending.Hash); !rec.Success {
			t.Fatalf("%s aborted: %s", call.Function, rec.VMStatus)
		}
	}

	c, ok := l.Collection(CollectionAddress(alice, "Art"))
	if !ok {
		t.Fatal("collection not found")
	}
	if c.Minted != 3 || c.MaxSupply != 5 {
		t.Errorf("minted=%d max=%d", c.Minted, c.MaxSupply)
	}
	if got := l.Holdings(c.Address, alice); got != 3 {
		t.Errorf("holdings = %d, want 3", got)
	}
}

func TestLedger_ConnectionEvents(t *testing.T) {
	l := New(Options{Logger: log.New(io.Discard, "", 0)})
	var events []nftflow.ConnectionEvent
	unsub := l.Subscribe(func(ev nftflow.ConnectionEvent) {
		// Calling back into the ledger must not deadlock.
		l.Account()
		events = append(events, ev)
	})
	l.Connect(alice)
	l.Disconnect()
	unsub()
	l.Connect(alice)

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if !events[0].Connected || events[0].Address != alice {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Connected {
		t.Errorf("second event = %+v", events[1])
	}
}

package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/shopspring/decimal"

	"github.com/blockberries/nftflow"
	"github.com/blockberries/nftflow/local"
	"github.com/blockberries/nftflow/orchestrator"
	"github.com/blockberries/nftflow/payload"
	nftflowtest "github.com/blockberries/nftflow/testing"
	"github.com/blockberries/nftflow/types"
	"github.com/blockberries/nftflow/viewstate"
)

const alice = "0xa11ce"

var quiet = log.New(io.Discard, "", 0)

// fixedAccounts always reports the same store as connected.
type fixedAccounts struct{ store *viewstate.Store }

func (a fixedAccounts) Current() (*viewstate.Store, bool) { return a.store, a.store != nil }

// recordingStats captures counter names.
type recordingStats struct {
	statsd.NoOpClient
	mu     sync.Mutex
	counts map[string]int
}

func (r *recordingStats) Incr(name string, tags []string, _ float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[name+"|"+strings.Join(tags, ",")]++
	return nil
}

func (r *recordingStats) count(name string, tags ...string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[name+"|"+strings.Join(tags, ",")]
}

// newTransfer builds a transfer orchestrator over gw with a refreshed
// store for alice.
func newTransfer(t *testing.T, gw *nftflowtest.MockGateway, opts orchestrator.Options) (*orchestrator.Orchestrator[types.TransferInput], *viewstate.Store) {
	t.Helper()
	store := viewstate.NewStore(alice, gw, viewstate.StoreOptions{Logger: quiet})
	if err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	opts.Logger = quiet
	o := orchestrator.New(orchestrator.TransferAction(nftflowtest.DefaultTargets()), gw, fixedAccounts{store}, opts)
	t.Cleanup(o.Wait)
	return o, store
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSubmit_SuccessSequence(t *testing.T) {
	gw := nftflowtest.NewMockGateway(alice, 10_000)
	var seen []string
	o, store := newTransfer(t, gw, orchestrator.Options{
		Observer: func(_ types.ActionKind, from, to orchestrator.State) {
			seen = append(seen, from.String()+"->"+to.String())
		},
	})

	out, err := o.Submit(context.Background(), types.TransferInput{To: "0xb0b", Amount: amount("0.00001")})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// The record is at the head of the history as soon as Submit returns,
	// before the reconciliation refresh is awaited.
	snap := store.Snapshot()
	if len(snap.History) == 0 || snap.History[0].Hash != out.Record.Hash {
		t.Fatalf("confirmed record not at history head: %+v", snap.History)
	}

	want := []string{
		"Idle->Validating",
		"Validating->Submitting",
		"Submitting->AwaitingFinality",
		"AwaitingFinality->Reconciling",
		"Reconciling->Settled(success)",
	}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("transitions = %v, want %v", seen, want)
	}
	if out.State != orchestrator.StateSettledSuccess || !out.Succeeded() {
		t.Errorf("outcome state = %s", out.State)
	}
	if out.Pending.ID == "" || out.Pending.Status != types.TxConfirmed || out.Pending.Hash != out.Record.Hash {
		t.Errorf("unexpected provisional record %+v", out.Pending)
	}
	if out.Record.Kind != types.ActionTransfer || out.Record.Recipient != "0xb0b" || *out.Record.Amount != 1000 {
		t.Errorf("record metadata not filled: %+v", out.Record.TxMeta)
	}
	if !strings.HasPrefix(out.Message, "Transaction succeeded, hash: ") {
		t.Errorf("message = %q", out.Message)
	}
}

func TestSubmit_MissingFieldMakesNoGatewayCalls(t *testing.T) {
	gw := nftflowtest.NewMockGateway(alice, 10_000)
	h := nftflowtest.NewHarness(t, gw, nftflowtest.HarnessOptions{})
	submitsBefore, waitsBefore := gw.SubmitCalls.Load(), gw.WaitCalls.Load()

	outcomes := map[string]orchestrator.Outcome{
		"recipient":     h.Transfer(types.TransferInput{Amount: amount("1")}),
		"amount":        h.Transfer(types.TransferInput{To: "0xb0b"}),
		"name":          h.CreateCollection(types.CreateCollectionInput{Description: "d", URI: "https://x.io", MaxSupply: 1}),
		"description":   h.CreateCollection(types.CreateCollectionInput{Name: "n", URI: "https://x.io", MaxSupply: 1}),
		"uri":           h.CreateCollection(types.CreateCollectionInput{Name: "n", Description: "d", MaxSupply: 1}),
		"max supply":    h.CreateCollection(types.CreateCollectionInput{Name: "n", Description: "d", URI: "https://x.io"}),
		"collection id": h.Mint(types.MintInput{}),
		"count":         h.BatchMint(types.BatchMintInput{CollectionID: "0xc0"}),
	}
	for field, out := range outcomes {
		err := h.MustFail(out)
		v, ok := nftflow.IsValidation(err)
		if !ok {
			t.Errorf("%s: expected ValidationError, got %v", field, err)
			continue
		}
		if v.Field != field || v.Reason != nftflow.ReasonMissing {
			t.Errorf("%s: got field=%q reason=%q", field, v.Field, v.Reason)
		}
		if want := fmt.Sprintf("Please fill in all fields (%s is missing).", field); out.Message != want {
			t.Errorf("%s: message = %q, want %q", field, out.Message, want)
		}
		if out.Call != nil {
			t.Errorf("%s: descriptor built for invalid input", field)
		}
	}

	if gw.SubmitCalls.Load() != submitsBefore || gw.WaitCalls.Load() != waitsBefore {
		t.Errorf("gateway called on validation failure: submit=%d wait=%d",
			gw.SubmitCalls.Load()-submitsBefore, gw.WaitCalls.Load()-waitsBefore)
	}
}

func TestSubmit_NotConnected(t *testing.T) {
	gw := nftflowtest.NewMockGateway("", 0)
	h := nftflowtest.NewHarness(t, gw, nftflowtest.HarnessOptions{})

	err := h.MustFail(h.Mint(types.MintInput{CollectionID: "0xc0"}))
	v, ok := nftflow.IsValidation(err)
	if !ok || v.Field != "account" {
		t.Fatalf("expected account ValidationError, got %v", err)
	}
	if gw.SubmitCalls.Load() != 0 {
		t.Error("gateway called without a connected account")
	}
}

func TestSubmit_SignerRejected(t *testing.T) {
	gw := nftflowtest.NewMockGateway(alice, 10_000)
	gw.SubmitAndSignFn = func(context.Context, types.CallDescriptor) (types.PendingTx, error) {
		return types.PendingTx{}, fmt.Errorf("wallet: %w", nftflow.ErrUserRejected)
	}
	stats := &recordingStats{}
	o, _ := newTransfer(t, gw, orchestrator.Options{Stats: stats})

	out, err := o.Submit(context.Background(), types.TransferInput{To: "0xb0b", Amount: amount("0.0001")})
	s, ok := nftflow.IsSubmission(err)
	if !ok || !s.Rejected {
		t.Fatalf("expected rejected SubmissionError, got %v", err)
	}
	if out.Message != "Transaction was rejected in the wallet." {
		t.Errorf("message = %q", out.Message)
	}
	if out.Pending.Status != types.TxFailed || out.Pending.Hash != "" {
		t.Errorf("provisional record = %+v", out.Pending)
	}
	if gw.WaitCalls.Load() != 0 {
		t.Error("waited for finality after a rejected submission")
	}
	if stats.count("nftflow.action.failed", "stage:submit", "kind:transfer") != 1 {
		t.Errorf("failure not counted: %v", stats.counts)
	}
}

func TestSubmit_AbortIsFinalityError(t *testing.T) {
	gw := nftflowtest.NewMockGateway(alice, 10_000)
	gw.WaitForFinalityFn = func(_ context.Context, hash string) (types.TxRecord, error) {
		return types.TxRecord{Hash: hash, Success: false, VMStatus: "Move abort: EINSUFFICIENT_BALANCE"}, nil
	}
	o, store := newTransfer(t, gw, orchestrator.Options{})

	out, err := o.Submit(context.Background(), types.TransferInput{To: "0xb0b", Amount: amount("0.0001")})
	f, ok := nftflow.IsFinality(err)
	if !ok {
		t.Fatalf("expected FinalityError, got %v", err)
	}
	if _, ok := nftflow.IsSubmission(err); ok {
		t.Error("an on-chain abort must not be reported as a submission failure")
	}
	if f.VMStatus != "Move abort: EINSUFFICIENT_BALANCE" || f.Hash != out.Pending.Hash {
		t.Errorf("unexpected finality error %+v", f)
	}
	if !strings.Contains(out.Message, "mined but failed") {
		t.Errorf("message = %q", out.Message)
	}
	if out.State != orchestrator.StateSettledFailure || out.Record == nil {
		t.Errorf("outcome = %+v", out)
	}

	o.Wait()
	if len(store.Snapshot().History) != 0 {
		t.Error("aborted record was prepended to the history")
	}
	if gw.BalanceCalls.Load() < 2 {
		t.Error("expected a reconciliation refresh after an abort")
	}
}

func TestSubmit_FinalityTimeout(t *testing.T) {
	gw := nftflowtest.NewMockGateway(alice, 10_000)
	gw.WaitForFinalityFn = func(ctx context.Context, _ string) (types.TxRecord, error) {
		<-ctx.Done()
		return types.TxRecord{}, ctx.Err()
	}
	o, _ := newTransfer(t, gw, orchestrator.Options{FinalityTimeout: 20 * time.Millisecond})

	_, err := o.Submit(context.Background(), types.TransferInput{To: "0xb0b", Amount: amount("0.0001")})
	if _, ok := nftflow.IsFinality(err); !ok {
		t.Fatalf("expected FinalityError, got %v", err)
	}
	if !errors.Is(err, nftflow.ErrFinalityTimeout) {
		t.Errorf("expected ErrFinalityTimeout, got %v", err)
	}
}

func TestSubmit_DetachedFromCallerCancellation(t *testing.T) {
	gw := nftflowtest.NewMockGateway(alice, 10_000)
	gw.SubmitAndSignFn = func(ctx context.Context, _ types.CallDescriptor) (types.PendingTx, error) {
		if err := ctx.Err(); err != nil {
			return types.PendingTx{}, err
		}
		return types.PendingTx{Hash: "0x77"}, nil
	}
	o, _ := newTransfer(t, gw, orchestrator.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := o.Submit(ctx, types.TransferInput{To: "0xb0b", Amount: amount("0.0001")})
	if err != nil {
		t.Fatalf("cancelled caller context aborted the submission: %v", err)
	}
	if out.Record.Hash != "0x77" {
		t.Errorf("record hash = %s", out.Record.Hash)
	}
}

func TestSubmit_BusyWhileInFlight(t *testing.T) {
	gw := nftflowtest.NewMockGateway(alice, 10_000)
	entered := make(chan struct{})
	release := make(chan struct{})
	gw.SubmitAndSignFn = func(context.Context, types.CallDescriptor) (types.PendingTx, error) {
		close(entered)
		<-release
		return types.PendingTx{Hash: "0x99"}, nil
	}
	o, _ := newTransfer(t, gw, orchestrator.Options{})
	in := types.TransferInput{To: "0xb0b", Amount: amount("0.0001")}

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), in)
		done <- err
	}()
	<-entered

	if !o.Disabled() || o.State() != orchestrator.StateSubmitting {
		t.Errorf("state = %s, disabled = %v", o.State(), o.Disabled())
	}
	out, err := o.Submit(context.Background(), in)
	if !errors.Is(err, nftflow.ErrControlBusy) {
		t.Fatalf("expected ErrControlBusy, got %v", err)
	}
	if out.Message != "A submission is already in progress." {
		t.Errorf("message = %q", out.Message)
	}
	if gw.SubmitCalls.Load() != 1 {
		t.Errorf("busy submit reached the gateway: %d calls", gw.SubmitCalls.Load())
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if o.Disabled() {
		t.Error("control still disabled after settle")
	}
}

func TestSubmit_SuccessCountsMetrics(t *testing.T) {
	gw := nftflowtest.NewMockGateway(alice, 10_000)
	stats := &recordingStats{}
	o, _ := newTransfer(t, gw, orchestrator.Options{Stats: stats})

	if _, err := o.Submit(context.Background(), types.TransferInput{To: "0xb0b", Amount: amount("0.0001")}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if stats.count("nftflow.action.submitted", "kind:transfer") != 1 ||
		stats.count("nftflow.action.succeeded", "kind:transfer") != 1 {
		t.Errorf("counters = %v", stats.counts)
	}
}

// A transfer of 0.000002 from a balance of 500 smallest units sends
// 200 units, and the view only reflects it after finality.
func TestTransfer_EndToEnd(t *testing.T) {
	ledger := local.New(local.Options{HoldFinality: true, Logger: quiet})
	ledger.Fund(alice, 500)
	ledger.Connect(alice)

	awaiting := make(chan struct{}, 1)
	h := nftflowtest.NewHarness(t, ledger, nftflowtest.HarnessOptions{
		Targets: payload.NewTargets(local.DefaultModuleAddress),
		Observer: func(_ types.ActionKind, _, to orchestrator.State) {
			if to == orchestrator.StateAwaitingFinality {
				awaiting <- struct{}{}
			}
		},
	})
	if h.Snapshot().Balance != 500 {
		t.Fatalf("starting balance = %d", h.Snapshot().Balance)
	}

	done := make(chan orchestrator.Outcome, 1)
	go func() {
		done <- h.Transfer(types.TransferInput{To: "0xABC", Amount: amount("0.000002")})
	}()

	<-awaiting
	h.Refresh()
	if got := h.Snapshot().Balance; got != 500 {
		t.Fatalf("balance changed before finality: %d", got)
	}

	ledger.Release()
	out := <-done
	h.MustSucceed(out)

	if got, want := out.Call.Values(), []any{"0xABC", uint64(200)}; !reflect.DeepEqual(got, want) {
		t.Errorf("arguments = %v, want %v", got, want)
	}
	if out.Call.Function != payload.DefaultCoinTransfer {
		t.Errorf("function = %s", out.Call.Function)
	}

	h.Settle()
	if got := h.Snapshot().Balance; got != 300 {
		t.Errorf("balance after finality = %d, want 300", got)
	}
	if bal, _ := ledger.ReadBalance(context.Background(), "0xabc"); bal != 200 {
		t.Errorf("recipient balance = %d, want 200", bal)
	}
}

func TestCollectionFlow_EndToEnd(t *testing.T) {
	ledger := local.New(local.Options{Logger: quiet})
	ledger.Fund(alice, 1_000)
	ledger.Connect(alice)
	h := nftflowtest.NewHarness(t, ledger, nftflowtest.HarnessOptions{
		Targets: payload.NewTargets(local.DefaultModuleAddress),
	})

	created := h.MustSucceed(h.CreateCollection(types.CreateCollectionInput{
		Name: "Art", Description: "first drop", URI: "https://example.com/art.json", MaxSupply: 3,
	}))
	if created.Collection != local.CollectionAddress(alice, "Art") {
		t.Fatalf("collection address = %s", created.Collection)
	}

	h.MustSucceed(h.Mint(types.MintInput{CollectionID: created.Collection}))
	h.MustSucceed(h.BatchMint(types.BatchMintInput{CollectionID: created.Collection, Count: 2}))

	err := h.MustFail(h.Mint(types.MintInput{CollectionID: created.Collection}))
	if f, ok := nftflow.IsFinality(err); !ok || f.VMStatus != local.AbortMaxSupply {
		t.Errorf("expected max supply abort, got %v", err)
	}

	h.Settle()
	if got := ledger.Holdings(created.Collection, alice); got != 3 {
		t.Errorf("holdings = %d, want 3", got)
	}
	if n := len(h.Snapshot().History); n != 4 {
		t.Errorf("history has %d records, want 4", n)
	}
}

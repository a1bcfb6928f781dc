package nftflowtest

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/blockberries/nftflow"
	"github.com/blockberries/nftflow/orchestrator"
	"github.com/blockberries/nftflow/payload"
	"github.com/blockberries/nftflow/types"
	"github.com/blockberries/nftflow/viewstate"
)

// TestModuleAddress is the collection module address used by
// DefaultTargets.
const TestModuleAddress = "0xcafe"

// DefaultTargets returns targets for the test module address.
func DefaultTargets() payload.Targets {
	return payload.NewTargets(TestModuleAddress)
}

// Harness wires a gateway to a session and the action orchestrators
// the way the CLI and HTTP server do. Polling is effectively disabled;
// tests refresh explicitly.
type Harness struct {
	t        *testing.T
	gw       nftflow.Gateway
	session  *viewstate.Session
	registry *orchestrator.Registry
}

// HarnessOptions configures a Harness. Zero values are fine.
type HarnessOptions struct {
	Targets  payload.Targets
	Observer orchestrator.Observer
	// FinalityTimeout overrides the orchestrator default.
	FinalityTimeout time.Duration
}

// NewHarness starts a session on gw and refreshes the connected
// account once. The session is closed when the test ends.
func NewHarness(t *testing.T, gw nftflow.Gateway, opts HarnessOptions) *Harness {
	t.Helper()
	if opts.Targets.ModuleAddress == "" {
		opts.Targets = DefaultTargets()
	}
	logger := log.New(io.Discard, "", 0)
	session := viewstate.NewSession(gw, gw, viewstate.SessionOptions{
		PollInterval: time.Hour,
		Logger:       logger,
	})
	session.Start(context.Background())
	h := &Harness{
		t:       t,
		gw:      gw,
		session: session,
		registry: orchestrator.NewRegistry(opts.Targets, gw, session, orchestrator.Options{
			Logger:          logger,
			Observer:        opts.Observer,
			FinalityTimeout: opts.FinalityTimeout,
		}),
	}
	t.Cleanup(func() {
		h.registry.Wait()
		session.Close()
	})
	if _, ok := session.Current(); ok {
		h.Refresh()
	}
	return h
}

// Session returns the underlying session.
func (h *Harness) Session() *viewstate.Session { return h.session }

// Registry returns the action orchestrators.
func (h *Harness) Registry() *orchestrator.Registry { return h.registry }

// Store returns the connected account's store, failing the test if no
// account is connected.
func (h *Harness) Store() *viewstate.Store {
	h.t.Helper()
	store, ok := h.session.Current()
	if !ok {
		h.t.Fatal("no account connected")
	}
	return store
}

// Snapshot returns the connected account's current view.
func (h *Harness) Snapshot() types.AccountSnapshot {
	h.t.Helper()
	return h.Store().Snapshot()
}

// Refresh reconciles the connected account with the gateway.
func (h *Harness) Refresh() {
	h.t.Helper()
	if err := h.Store().Refresh(context.Background()); err != nil {
		h.t.Fatalf("Refresh failed: %v", err)
	}
}

// Settle waits for detached reconciliation refreshes to return.
func (h *Harness) Settle() {
	h.registry.Wait()
}

// Transfer submits a transfer and returns its outcome.
func (h *Harness) Transfer(in types.TransferInput) orchestrator.Outcome {
	h.t.Helper()
	out, _ := h.registry.Transfer.Submit(context.Background(), in)
	return out
}

// CreateCollection submits a create-collection action.
func (h *Harness) CreateCollection(in types.CreateCollectionInput) orchestrator.Outcome {
	h.t.Helper()
	out, _ := h.registry.CreateCollection.Submit(context.Background(), in)
	return out
}

// Mint submits a mint action.
func (h *Harness) Mint(in types.MintInput) orchestrator.Outcome {
	h.t.Helper()
	out, _ := h.registry.Mint.Submit(context.Background(), in)
	return out
}

// BatchMint submits a batch-mint action.
func (h *Harness) BatchMint(in types.BatchMintInput) orchestrator.Outcome {
	h.t.Helper()
	out, _ := h.registry.BatchMint.Submit(context.Background(), in)
	return out
}

// MustSucceed asserts that an outcome settled successfully.
func (h *Harness) MustSucceed(out orchestrator.Outcome) types.TxRecord {
	h.t.Helper()
	if !out.Succeeded() {
		h.t.Fatalf("expected %s to succeed, got %s: %v", out.Kind, out.State, out.Err)
	}
	if out.Record == nil {
		h.t.Fatalf("%s succeeded without a record", out.Kind)
	}
	return *out.Record
}

// MustFail asserts that an outcome settled in failure.
func (h *Harness) MustFail(out orchestrator.Outcome) error {
	h.t.Helper()
	if out.State != orchestrator.StateSettledFailure {
		h.t.Fatalf("expected %s to fail, got %s", out.Kind, out.State)
	}
	if out.Err == nil {
		h.t.Fatalf("%s failed without an error", out.Kind)
	}
	return out.Err
}

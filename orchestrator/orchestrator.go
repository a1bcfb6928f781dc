// Package orchestrator drives user actions through the transaction
// lifecycle: validate the input, build the call, submit it through the
// wallet, wait for finality, and reconcile the account's view state.
//
// One generic Orchestrator serves every action kind; an Action supplies
// the kind-specific validator and payload builder.
package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/google/uuid"
	"github.com/hako/durafmt"

	"github.com/blockberries/nftflow"
	"github.com/blockberries/nftflow/types"
	"github.com/blockberries/nftflow/viewstate"
)

// Default timeouts.
const (
	DefaultFinalityTimeout = 60 * time.Second
	DefaultRefreshTimeout  = 15 * time.Second
)

// Accounts gives the orchestrator the connected account's store.
// *viewstate.Session implements it.
type Accounts interface {
	Current() (*viewstate.Store, bool)
}

// Action describes one action kind.
type Action[I any] struct {
	Kind types.ActionKind
	// Validate checks every required field against the connected
	// account. It must not perform I/O.
	Validate func(in I, acct types.AccountSnapshot) error
	// Build maps validated input to a call descriptor.
	Build func(in I, acct types.AccountSnapshot) types.CallDescriptor
	// Meta returns the metadata echoed onto the action's records.
	Meta func(in I) types.TxMeta
}

// Observer is notified of every state transition of an action control.
type Observer func(kind types.ActionKind, from, to State)

// Options configures an Orchestrator.
type Options struct {
	Logger   *log.Logger
	Stats    statsd.ClientInterface
	Observer Observer
	// FinalityTimeout bounds WaitForFinality.
	FinalityTimeout time.Duration
	// RefreshTimeout bounds the post-settle reconciliation refresh.
	RefreshTimeout time.Duration
	Now            func() time.Time
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	if o.Stats == nil {
		o.Stats = &statsd.NoOpClient{}
	}
	if o.FinalityTimeout <= 0 {
		o.FinalityTimeout = DefaultFinalityTimeout
	}
	if o.RefreshTimeout <= 0 {
		o.RefreshTimeout = DefaultRefreshTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Outcome is the result of one submission.
type Outcome struct {
	Kind  types.ActionKind
	State State
	// Call is the descriptor that was submitted. Nil if validation
	// failed.
	Call *types.CallDescriptor
	// Pending is the provisional record created at submission.
	Pending types.PendingTx
	// Record is the confirmed record. Set when the transaction reached
	// finality, successful or not.
	Record *types.TxRecord
	Err    error
	// Message is the user-visible result text.
	Message string
}

// Succeeded reports whether the action settled successfully.
func (o Outcome) Succeeded() bool { return o.State == StateSettledSuccess }

// Orchestrator drives one action control.
type Orchestrator[I any] struct {
	action   Action[I]
	gw       nftflow.Gateway
	accounts Accounts
	guard    *ControlGuard
	opts     Options
	tags     []string

	// reconciling tracks detached refreshes.
	reconciling sync.WaitGroup
}

// New creates an orchestrator for action.
func New[I any](action Action[I], gw nftflow.Gateway, accounts Accounts, opts Options) *Orchestrator[I] {
	opts.setDefaults()
	o := &Orchestrator[I]{
		action:   action,
		gw:       gw,
		accounts: accounts,
		opts:     opts,
		tags:     []string{"kind:" + string(action.Kind)},
	}
	o.guard = NewControlGuard(func(from, to State) {
		if o.opts.Observer != nil {
			o.opts.Observer(action.Kind, from, to)
		}
	})
	return o
}

// Kind returns the action kind.
func (o *Orchestrator[I]) Kind() types.ActionKind { return o.action.Kind }

// State returns the control's current state.
func (o *Orchestrator[I]) State() State { return o.guard.State() }

// Disabled reports whether the control is disabled because a
// submission is in flight.
func (o *Orchestrator[I]) Disabled() bool { return o.guard.Disabled() }

// Wait blocks until detached reconciliation refreshes have returned.
func (o *Orchestrator[I]) Wait() { o.reconciling.Wait() }

// Submit runs one submission to a settled state. The returned error is
// the failure reported in Outcome.Err, or ErrControlBusy if another
// submission holds the control, in which case nothing happened.
//
// Once the call reaches the signer the submission is detached from
// ctx cancellation: a transaction that may land on-chain is always
// followed through to finality or the finality timeout.
func (o *Orchestrator[I]) Submit(ctx context.Context, in I) (Outcome, error) {
	if !o.guard.Acquire() {
		return Outcome{Kind: o.action.Kind, State: o.guard.State(), Err: nftflow.ErrControlBusy,
			Message: nftflow.UserMessage(nftflow.ErrControlBusy)}, nftflow.ErrControlBusy
	}
	out := Outcome{Kind: o.action.Kind}

	// Validating
	store, ok := o.accounts.Current()
	if !ok {
		err := &nftflow.ValidationError{Field: "account", Reason: "no wallet connected", Err: nftflow.ErrNotConnected}
		return o.fail(out, "validate", err)
	}
	acct := store.Snapshot()
	if err := o.action.Validate(in, acct); err != nil {
		return o.fail(out, "validate", err)
	}

	call := o.action.Build(in, acct)
	out.Call = &call
	meta := o.action.Meta(in)
	out.Pending = types.PendingTx{
		ID:        uuid.NewString(),
		Status:    types.TxPending,
		CreatedAt: o.opts.Now(),
		TxMeta:    meta,
	}

	// Submitting
	o.guard.Advance(StateSubmitting)
	_ = o.opts.Stats.Incr("nftflow.action.submitted", o.tags, 1)
	detached := context.WithoutCancel(ctx)

	pending, err := o.gw.SubmitAndSign(detached, call)
	if err != nil {
		out.Pending.Status = types.TxFailed
		return o.fail(out, "submit", nftflow.NewSubmissionError(err))
	}
	out.Pending.Hash = pending.Hash
	out.Pending.Status = types.TxSubmitted

	// AwaitingFinality
	o.guard.Advance(StateAwaitingFinality)
	o.opts.Logger.Printf("github.com/blockberries/nftflow/orchestrator: %s %s submitted as %s",
		o.action.Kind, out.Pending.ID, pending.Hash)

	waitCtx, cancel := context.WithTimeout(detached, o.opts.FinalityTimeout)
	start := time.Now()
	rec, err := o.gw.WaitForFinality(waitCtx, pending.Hash)
	cancel()
	waited := time.Since(start)
	_ = o.opts.Stats.Timing("nftflow.action.finality_wait", waited, o.tags, 1)

	if err != nil {
		if waitCtx.Err() == context.DeadlineExceeded {
			err = nftflow.ErrFinalityTimeout
		}
		out.Pending.Status = types.TxFailed
		o.reconcile(store)
		return o.fail(out, "finality", &nftflow.FinalityError{Hash: pending.Hash, Err: err})
	}
	rec = withMeta(rec, meta)
	out.Record = &rec
	if !rec.Success {
		out.Pending.Status = types.TxFailed
		o.reconcile(store)
		return o.fail(out, "finality", nftflow.NewFinalityError(rec.Hash, rec.VMStatus))
	}

	// Reconciling
	o.guard.Advance(StateReconciling)
	out.Pending.Status = types.TxConfirmed
	store.Prepend(rec)
	o.reconcile(store)

	o.guard.Advance(StateSettledSuccess)
	_ = o.opts.Stats.Incr("nftflow.action.succeeded", o.tags, 1)
	o.opts.Logger.Printf("github.com/blockberries/nftflow/orchestrator: %s %s finalized after %s",
		o.action.Kind, rec.Hash, durafmt.Parse(waited).LimitFirstN(2).String())

	out.State = StateSettledSuccess
	out.Message = successMessage(o.action.Kind, rec.Hash)
	return out, nil
}

// fail settles the control in the failure state.
func (o *Orchestrator[I]) fail(out Outcome, stage string, err error) (Outcome, error) {
	o.guard.Advance(StateSettledFailure)
	_ = o.opts.Stats.Incr("nftflow.action.failed", append([]string{"stage:" + stage}, o.tags...), 1)
	o.opts.Logger.Printf("github.com/blockberries/nftflow/orchestrator: %s failed at %s: %v", o.action.Kind, stage, err)
	out.State = StateSettledFailure
	out.Err = err
	out.Message = nftflow.UserMessage(err)
	return out, err
}

// reconcile refreshes the account in the background. Failures are
// logged as reconciliation warnings; the next poll heals them.
func (o *Orchestrator[I]) reconcile(store *viewstate.Store) {
	o.reconciling.Add(1)
	go func() {
		defer o.reconciling.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.opts.RefreshTimeout)
		defer cancel()
		if err := store.Refresh(ctx); err != nil {
			_ = o.opts.Stats.Incr("nftflow.reconcile.failed", o.tags, 1)
			o.opts.Logger.Printf("github.com/blockberries/nftflow/orchestrator: WARNING: %v", err)
		}
	}()
}

// withMeta fills metadata the chain summary does not carry.
func withMeta(rec types.TxRecord, meta types.TxMeta) types.TxRecord {
	if rec.Kind == "" {
		rec.Kind = meta.Kind
	}
	if rec.Amount == nil && meta.Amount != nil {
		v := *meta.Amount
		rec.Amount = &v
	}
	if rec.Recipient == "" {
		rec.Recipient = meta.Recipient
	}
	if rec.Collection == "" {
		rec.Collection = meta.Collection
	}
	return rec
}

func successMessage(kind types.ActionKind, hash string) string {
	switch kind {
	case types.ActionTransfer:
		return "Transaction succeeded, hash: " + hash
	case types.ActionCreateCollection:
		return "Collection created, hash: " + hash
	case types.ActionMint:
		return "NFT minted, hash: " + hash
	case types.ActionBatchMint:
		return "Batch minting succeeded, hash: " + hash
	default:
		return "Succeeded, hash: " + hash
	}
}

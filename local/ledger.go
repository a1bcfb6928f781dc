// Package local provides an in-process chain and wallet.
//
// Ledger executes the native transfer and the collection module's
// entry functions against in-memory state, the way a devnet node
// would, and implements nftflow.Gateway with no transport in between.
// The CLI uses it as a sandbox and the gRPC server serves it to remote
// clients.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/blockberries/nftflow"
	"github.com/blockberries/nftflow/payload"
	"github.com/blockberries/nftflow/types"
)

// Compile-time interface check.
var _ nftflow.Gateway = (*Ledger)(nil)

// ErrUnknownTx is returned when waiting on a hash the ledger never
// accepted.
var ErrUnknownTx = errors.New("transaction not found")

// VM status strings reported on finalized records.
const (
	StatusExecuted          = "Executed successfully"
	AbortInsufficientFunds  = "Move abort in 0x1::coin: EINSUFFICIENT_BALANCE(0x10006)"
	AbortNotCreator         = "Move abort in nftcollection: ENOT_CREATOR(0x50001)"
	AbortCollectionExists   = "Move abort in nftcollection: ECOLLECTION_EXISTS(0x80002)"
	AbortCollectionNotFound = "Move abort in nftcollection: ECOLLECTION_NOT_FOUND(0x60003)"
	AbortMaxSupply          = "Move abort in nftcollection: EMAX_SUPPLY_EXCEEDED(0x20004)"
	AbortZeroAmount         = "Move abort in nftcollection: EZERO_AMOUNT(0x10005)"
)

// Options configures a Ledger.
type Options struct {
	// Targets selects the function identifiers the ledger executes.
	// Defaults to payload.NewTargets(DefaultModuleAddress).
	Targets payload.Targets
	// FinalityDelay is the time between acceptance and finality.
	FinalityDelay time.Duration
	// HoldFinality keeps accepted transactions pending until Release.
	HoldFinality bool
	// Approve is consulted before signing. Returning false is a user
	// rejection. Nil approves everything.
	Approve func(call types.CallDescriptor) bool
	Logger  *log.Logger
	Now     func() time.Time
}

// DefaultModuleAddress is the collection module address used when
// Options.Targets is unset.
const DefaultModuleAddress = "0xcafe"

// Collection is a collection created on the ledger.
type Collection struct {
	Address     string
	Creator     string
	Name        string
	Description string
	URI         string
	MaxSupply   uint64
	Minted      uint64
}

type tx struct {
	hash    string
	sender  string
	call    types.CallDescriptor
	readyAt time.Time
	held    bool
	done    bool
	rec     types.TxRecord
}

// Ledger is an in-memory chain with a single-account wallet attached.
type Ledger struct {
	opts Options

	mu          sync.Mutex
	account     string
	subs        map[int]func(nftflow.ConnectionEvent)
	nextSub     int
	balances    map[string]uint64
	collections map[string]*Collection
	holdings    map[string]map[string]uint64 // collection -> owner -> count
	txs         map[string]*tx
	queue       []*tx
	history     map[string][]types.TxRecord // sender -> oldest first
	nonce       uint64
	version     uint64
	finalized   chan struct{}
}

// New creates an empty ledger with no account connected.
func New(opts Options) *Ledger {
	if opts.Targets.ModuleAddress == "" {
		opts.Targets = payload.NewTargets(DefaultModuleAddress)
	}
	if opts.Targets.ModuleName == "" {
		opts.Targets.ModuleName = payload.DefaultModuleName
	}
	if opts.Targets.CoinTransfer == "" {
		opts.Targets.CoinTransfer = payload.DefaultCoinTransfer
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{
		opts:        opts,
		subs:        make(map[int]func(nftflow.ConnectionEvent)),
		balances:    make(map[string]uint64),
		collections: make(map[string]*Collection),
		holdings:    make(map[string]map[string]uint64),
		txs:         make(map[string]*tx),
		history:     make(map[string][]types.TxRecord),
		finalized:   make(chan struct{}),
	}
}

// ---------------------------------------------------------------------------
// Wallet
// ---------------------------------------------------------------------------

// Fund credits amount smallest units to address.
func (l *Ledger) Fund(address string, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[normalize(address)] += amount
}

// Connect attaches the wallet to address and notifies subscribers.
func (l *Ledger) Connect(address string) {
	l.mu.Lock()
	l.account = address
	l.mu.Unlock()
	l.notify(nftflow.ConnectionEvent{Connected: true, Address: address})
}

// Disconnect detaches the wallet and notifies subscribers.
func (l *Ledger) Disconnect() {
	l.mu.Lock()
	l.account = ""
	l.mu.Unlock()
	l.notify(nftflow.ConnectionEvent{})
}

func (l *Ledger) Account() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.account, l.account != ""
}

func (l *Ledger) Subscribe(fn func(nftflow.ConnectionEvent)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

// notify must be called without l.mu held.
func (l *Ledger) notify(ev nftflow.ConnectionEvent) {
	l.mu.Lock()
	subs := make([]func(nftflow.ConnectionEvent), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	l.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// SubmitAndSign signs call as the connected account and queues it for
// execution. Calls to unknown functions or with mistyped arguments are
// rejected here and never reach the chain.
func (l *Ledger) SubmitAndSign(ctx context.Context, call types.CallDescriptor) (types.PendingTx, error) {
	if err := ctx.Err(); err != nil {
		return types.PendingTx{}, err
	}
	sender, ok := l.Account()
	if !ok {
		return types.PendingTx{}, nftflow.ErrNotConnected
	}
	if l.opts.Approve != nil && !l.opts.Approve(call) {
		return types.PendingTx{}, fmt.Errorf("sign %s: %w", call.Function, nftflow.ErrUserRejected)
	}
	if err := l.check(call); err != nil {
		return types.PendingTx{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.nonce++
	t := &tx{
		hash:    txHash(sender, l.nonce, call),
		sender:  normalize(sender),
		call:    call,
		readyAt: l.opts.Now().Add(l.opts.FinalityDelay),
		held:    l.opts.HoldFinality,
	}
	l.txs[t.hash] = t
	l.queue = append(l.queue, t)
	return types.PendingTx{Hash: t.hash, Status: types.TxSubmitted, CreatedAt: l.opts.Now()}, nil
}

// Release finalizes every held transaction in submission order.
func (l *Ledger) Release() {
	l.mu.Lock()
	for _, t := range l.queue {
		t.held = false
		t.readyAt = time.Time{}
	}
	l.settleLocked()
	l.mu.Unlock()
}

// Pending returns the number of accepted transactions not yet final.
func (l *Ledger) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// ---------------------------------------------------------------------------
// Chain reads
// ---------------------------------------------------------------------------

func (l *Ledger) WaitForFinality(ctx context.Context, hash string) (types.TxRecord, error) {
	for {
		l.mu.Lock()
		l.settleLocked()
		t, ok := l.txs[hash]
		if !ok {
			l.mu.Unlock()
			return types.TxRecord{}, fmt.Errorf("%s: %w", hash, ErrUnknownTx)
		}
		if t.done {
			rec := t.rec.Clone()
			l.mu.Unlock()
			return rec, nil
		}
		wake := l.finalized
		var timer <-chan time.Time
		if !t.held && !l.queue[0].held {
			d := t.readyAt.Sub(l.opts.Now())
			if d < time.Millisecond {
				d = time.Millisecond
			}
			timer = time.After(d)
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return types.TxRecord{}, ctx.Err()
		case <-wake:
		case <-timer:
		}
	}
}

func (l *Ledger) ReadBalance(ctx context.Context, address string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settleLocked()
	return l.balances[normalize(address)], nil
}

func (l *Ledger) ReadHistory(ctx context.Context, address string) ([]types.TxRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settleLocked()
	h := l.history[normalize(address)]
	out := make([]types.TxRecord, 0, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out = append(out, h[i].Clone())
	}
	return out, nil
}

// Collection returns a collection by address.
func (l *Ledger) Collection(address string) (Collection, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.collections[normalize(address)]
	if !ok {
		return Collection{}, false
	}
	return *c, true
}

// Holdings returns how many tokens of collection owner holds.
func (l *Ledger) Holdings(collection, owner string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holdings[normalize(collection)][normalize(owner)]
}

func (l *Ledger) Close() error { return nil }

// CollectionAddress derives the object address of a collection from
// its creator and name.
func CollectionAddress(creator, name string) string {
	sum := sha256.Sum256([]byte(normalize(creator) + "::collection::" + name))
	return "0x" + hex.EncodeToString(sum[:])
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

// check rejects calls the chain would refuse before execution.
func (l *Ledger) check(call types.CallDescriptor) error {
	var want []types.ArgKind
	switch call.Function {
	case l.opts.Targets.CoinTransfer:
		want = []types.ArgKind{types.ArgAddress, types.ArgU64}
	case l.opts.Targets.Function(payload.FnCreateCollection):
		want = []types.ArgKind{types.ArgAddress, types.ArgString, types.ArgString, types.ArgString, types.ArgU64}
	case l.opts.Targets.Function(payload.FnMintNFT), l.opts.Targets.Function(payload.FnBatchMintNFTs):
		want = []types.ArgKind{types.ArgAddress, types.ArgU64}
	default:
		return fmt.Errorf("function %q not found", call.Function)
	}
	if len(call.Arguments) != len(want) {
		return fmt.Errorf("%s: expected %d arguments, got %d", call.Function, len(want), len(call.Arguments))
	}
	for i, a := range call.Arguments {
		if a.Kind != want[i] {
			return fmt.Errorf("%s: argument %d: expected %s, got %s", call.Function, i, want[i], a.Kind)
		}
		if a.Kind == types.ArgAddress && !types.ValidAddress(a.Str) {
			return fmt.Errorf("%s: argument %d: invalid address %q", call.Function, i, a.Str)
		}
	}
	return nil
}

// settleLocked executes due transactions in submission order. Caller
// holds l.mu.
func (l *Ledger) settleLocked() {
	now := l.opts.Now()
	n := 0
	for _, t := range l.queue {
		if t.held || t.readyAt.After(now) {
			break
		}
		l.execute(t, now)
		n++
	}
	if n == 0 {
		return
	}
	l.queue = l.queue[n:]
	close(l.finalized)
	l.finalized = make(chan struct{})
}

func (l *Ledger) execute(t *tx, now time.Time) {
	l.version++
	rec := types.TxRecord{
		Hash:      t.hash,
		Timestamp: types.TimeToMicros(now),
		Version:   l.version,
		Sender:    t.sender,
		Function:  t.call.Function,
	}

	var status string
	switch t.call.Function {
	case l.opts.Targets.CoinTransfer:
		status = l.executeTransfer(t, &rec)
	case l.opts.Targets.Function(payload.FnCreateCollection):
		status = l.executeCreateCollection(t, &rec)
	case l.opts.Targets.Function(payload.FnMintNFT):
		rec.Kind = types.ActionMint
		status = l.executeMint(t, &rec)
	case l.opts.Targets.Function(payload.FnBatchMintNFTs):
		rec.Kind = types.ActionBatchMint
		status = l.executeMint(t, &rec)
	}
	rec.Success = status == StatusExecuted
	rec.VMStatus = status

	t.done = true
	t.rec = rec
	l.history[t.sender] = append(l.history[t.sender], rec)
	if !rec.Success {
		l.opts.Logger.Printf("github.com/blockberries/nftflow/local: tx %s aborted: %s", t.hash, status)
	}
}

func (l *Ledger) executeTransfer(t *tx, rec *types.TxRecord) string {
	to, amount := t.call.Arguments[0].Str, t.call.Arguments[1].U64
	rec.Kind = types.ActionTransfer
	rec.Recipient = to
	rec.Amount = &amount

	if l.balances[t.sender] < amount {
		return AbortInsufficientFunds
	}
	l.balances[t.sender] -= amount
	l.balances[normalize(to)] += amount
	return StatusExecuted
}

func (l *Ledger) executeCreateCollection(t *tx, rec *types.TxRecord) string {
	args := t.call.Arguments
	creator := normalize(args[0].Str)
	name := args[1].Str
	rec.Kind = types.ActionCreateCollection

	if creator != t.sender {
		return AbortNotCreator
	}
	if args[4].U64 == 0 {
		return AbortZeroAmount
	}
	addr := CollectionAddress(creator, name)
	rec.Collection = addr
	if _, ok := l.collections[addr]; ok {
		return AbortCollectionExists
	}
	l.collections[addr] = &Collection{
		Address:     addr,
		Creator:     creator,
		Name:        name,
		Description: args[2].Str,
		URI:         args[3].Str,
		MaxSupply:   args[4].U64,
	}
	return StatusExecuted
}

func (l *Ledger) executeMint(t *tx, rec *types.TxRecord) string {
	addr, amount := normalize(t.call.Arguments[0].Str), t.call.Arguments[1].U64
	rec.Collection = addr
	rec.Amount = &amount

	if amount == 0 {
		return AbortZeroAmount
	}
	c, ok := l.collections[addr]
	if !ok {
		return AbortCollectionNotFound
	}
	if amount > c.MaxSupply-c.Minted {
		return AbortMaxSupply
	}
	c.Minted += amount
	if l.holdings[addr] == nil {
		l.holdings[addr] = make(map[string]uint64)
	}
	l.holdings[addr][t.sender] += amount
	return StatusExecuted
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func txHash(sender string, nonce uint64, call types.CallDescriptor) string {
	h := sha256.New()
	h.Write([]byte(normalize(sender)))
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	h.Write(n[:])
	h.Write([]byte(call.String()))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// Package nftflowtest provides test utilities for nftflow: a
// configurable mock gateway, a harness that wires a session to the
// action orchestrators, and a gateway compliance suite.
package nftflowtest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/blockberries/nftflow"
	"github.com/blockberries/nftflow/types"
)

// Compile-time check that MockGateway satisfies the gateway interface.
var _ nftflow.Gateway = (*MockGateway)(nil)

// MockGateway is a configurable mock wallet and chain client.
// All methods are configurable via function fields. Unconfigured
// methods fall back to a small in-memory chain: submissions succeed
// with sequential hashes, finality reports success and prepends the
// record to the configured history.
type MockGateway struct {
	mu      sync.Mutex
	address string
	subs    map[int]func(nftflow.ConnectionEvent)
	nextSub int
	calls   []types.CallDescriptor

	// Balance and History are returned by the default read handlers.
	Balance uint64
	History []types.TxRecord

	// Configurable handlers. If nil, defaults are used.
	SubmitAndSignFn   func(context.Context, types.CallDescriptor) (types.PendingTx, error)
	WaitForFinalityFn func(context.Context, string) (types.TxRecord, error)
	ReadBalanceFn     func(context.Context, string) (uint64, error)
	ReadHistoryFn     func(context.Context, string) ([]types.TxRecord, error)

	// Call counters (atomic for concurrent access).
	SubmitCalls  atomic.Int64
	WaitCalls    atomic.Int64
	BalanceCalls atomic.Int64
	HistoryCalls atomic.Int64
}

// NewMockGateway returns a mock with address connected and the given
// starting balance.
func NewMockGateway(address string, balance uint64) *MockGateway {
	return &MockGateway{address: address, Balance: balance}
}

func (m *MockGateway) SubmitAndSign(ctx context.Context, call types.CallDescriptor) (types.PendingTx, error) {
	n := m.SubmitCalls.Add(1)
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
	if m.SubmitAndSignFn != nil {
		return m.SubmitAndSignFn(ctx, call)
	}
	if _, ok := m.Account(); !ok {
		return types.PendingTx{}, nftflow.ErrNotConnected
	}
	return types.PendingTx{Hash: fmt.Sprintf("0x%064x", n), Status: types.TxSubmitted}, nil
}

func (m *MockGateway) WaitForFinality(ctx context.Context, hash string) (types.TxRecord, error) {
	n := m.WaitCalls.Add(1)
	if m.WaitForFinalityFn != nil {
		return m.WaitForFinalityFn(ctx, hash)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := types.TxRecord{
		Hash:      hash,
		Success:   true,
		Timestamp: uint64(1_700_000_000_000_000 + n),
		Version:   uint64(n),
		Sender:    m.address,
		VMStatus:  "Executed successfully",
	}
	m.History = append([]types.TxRecord{rec}, m.History...)
	return rec, nil
}

func (m *MockGateway) ReadBalance(ctx context.Context, address string) (uint64, error) {
	m.BalanceCalls.Add(1)
	if m.ReadBalanceFn != nil {
		return m.ReadBalanceFn(ctx, address)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Balance, nil
}

func (m *MockGateway) ReadHistory(ctx context.Context, address string) ([]types.TxRecord, error) {
	m.HistoryCalls.Add(1)
	if m.ReadHistoryFn != nil {
		return m.ReadHistoryFn(ctx, address)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.TxRecord, len(m.History))
	for i, r := range m.History {
		out[i] = r.Clone()
	}
	return out, nil
}

// SetBalance replaces the balance returned by the default handler.
func (m *MockGateway) SetBalance(v uint64) {
	m.mu.Lock()
	m.Balance = v
	m.mu.Unlock()
}

// Calls returns every descriptor passed to SubmitAndSign.
func (m *MockGateway) Calls() []types.CallDescriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.CallDescriptor(nil), m.calls...)
}

func (m *MockGateway) Account() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.address, m.address != ""
}

func (m *MockGateway) Subscribe(fn func(nftflow.ConnectionEvent)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subs == nil {
		m.subs = make(map[int]func(nftflow.ConnectionEvent))
	}
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Connect switches the connected account and notifies subscribers.
func (m *MockGateway) Connect(address string) {
	m.mu.Lock()
	m.address = address
	m.mu.Unlock()
	m.notify(nftflow.ConnectionEvent{Connected: true, Address: address})
}

// Disconnect clears the connected account and notifies subscribers.
func (m *MockGateway) Disconnect() {
	m.mu.Lock()
	m.address = ""
	m.mu.Unlock()
	m.notify(nftflow.ConnectionEvent{})
}

// notify runs outside m.mu: subscribers call back into the mock.
func (m *MockGateway) notify(ev nftflow.ConnectionEvent) {
	m.mu.Lock()
	subs := make([]func(nftflow.ConnectionEvent), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (m *MockGateway) Close() error { return nil }

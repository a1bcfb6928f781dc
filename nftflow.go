// Package nftflow defines the boundary between the transaction
// lifecycle core and the external capabilities it consumes: a wallet
// that signs and submits calls, and a chain client that reports
// finality, balances and history.
//
// The core never talks to a node or a wallet directly. Everything it
// needs is expressed by [Signer] and [ChainClient]; [Gateway] bundles
// both for transports that serve them over one connection.
package nftflow

import (
	"context"

	"github.com/blockberries/nftflow/types"
)

// ConnectionEvent reports a wallet connection change.
type ConnectionEvent struct {
	// Connected is false when the wallet disconnected.
	Connected bool
	// Address of the connected account. Empty on disconnect.
	Address string
}

// Signer is the wallet capability.
//
// Implementations must be safe for concurrent use.
type Signer interface {
	// SubmitAndSign asks the wallet to sign the call and submits it to
	// the network. On success the returned PendingTx carries the
	// transaction hash accepted by the network.
	//
	// A user refusal is reported as an error wrapping ErrUserRejected.
	SubmitAndSign(ctx context.Context, call types.CallDescriptor) (types.PendingTx, error)

	// Account returns the connected account, if any.
	Account() (address string, connected bool)

	// Subscribe registers fn for connection changes. The returned
	// function removes the subscription.
	Subscribe(fn func(ConnectionEvent)) (unsubscribe func())
}

// ChainClient is the chain read and wait capability.
//
// Implementations must be safe for concurrent use.
type ChainClient interface {
	// WaitForFinality blocks until the transaction's execution outcome
	// is final. A transaction that executed and aborted is returned
	// with Success=false and a nil error; the error is reserved for
	// failures to observe finality at all.
	WaitForFinality(ctx context.Context, hash string) (types.TxRecord, error)

	// ReadBalance returns the account balance in smallest units.
	ReadBalance(ctx context.Context, address string) (uint64, error)

	// ReadHistory returns the account's confirmed transactions,
	// most recent first.
	ReadHistory(ctx context.Context, address string) ([]types.TxRecord, error)
}

// Gateway is a transport-agnostic connection to both capabilities.
// The in-process ledger, the gRPC client and the test mock implement
// it.
type Gateway interface {
	Signer
	ChainClient

	// Close terminates the connection.
	Close() error
}

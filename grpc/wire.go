package nftflowgrpc

import (
	"fmt"

	"github.com/blockberries/nftflow"
	"github.com/blockberries/nftflow/types"
)

// Request and response wrappers for the gateway RPCs.

// SubmitRequest wraps the parameter for Signer.SubmitAndSign.
type SubmitRequest struct {
	Call types.CallDescriptor `cramberry:"1"`
}

// SubmitResponse carries the hash the network accepted.
type SubmitResponse struct {
	Hash string `cramberry:"1"`
}

// WaitRequest wraps the parameter for ChainClient.WaitForFinality.
// The caller's deadline travels with the RPC.
type WaitRequest struct {
	Hash string `cramberry:"1"`
}

// AddressRequest names the account for balance and history reads.
type AddressRequest struct {
	Address string `cramberry:"1"`
}

// BalanceResponse carries a balance in smallest units.
type BalanceResponse struct {
	Balance uint64 `cramberry:"1"`
}

// HistoryResponse carries an account history, most recent first.
type HistoryResponse struct {
	Records []WireTx `cramberry:"1"`
}

// AccountRequest is the (empty) request for Signer.Account.
type AccountRequest struct{}

// AccountResponse reports the wallet's connected account.
type AccountResponse struct {
	Address   string `cramberry:"1"`
	Connected bool   `cramberry:"2"`
}

// Wire execution status of a transaction record. Zero means the
// sender left it unset.
const (
	StatusUnset    uint8 = 0
	StatusExecuted uint8 = 1
	StatusAborted  uint8 = 2
)

// WireTx is the wire form of a transaction record. The codec does not
// distinguish an absent field from its zero value, so presence of the
// fields the chain must always report is carried explicitly: Status is
// never zero on a valid record, chain timestamps are never zero, and
// HasAmount marks an amount of zero as present.
type WireTx struct {
	Hash       string `cramberry:"1"`
	Status     uint8  `cramberry:"2"`
	Timestamp  uint64 `cramberry:"3"`
	Version    uint64 `cramberry:"4"`
	Sender     string `cramberry:"5"`
	Function   string `cramberry:"6"`
	VMStatus   string `cramberry:"7"`
	Kind       string `cramberry:"8"`
	Amount     uint64 `cramberry:"9"`
	Recipient  string `cramberry:"10"`
	Collection string `cramberry:"11"`
	HasAmount  bool   `cramberry:"12"`
}

// FromRecord converts a record to its wire form.
func FromRecord(r types.TxRecord) WireTx {
	w := WireTx{
		Hash:       r.Hash,
		Status:     StatusAborted,
		Timestamp:  r.Timestamp,
		Version:    r.Version,
		Sender:     r.Sender,
		Function:   r.Function,
		VMStatus:   r.VMStatus,
		Kind:       string(r.Kind),
		Recipient:  r.Recipient,
		Collection: r.Collection,
	}
	if r.Success {
		w.Status = StatusExecuted
	}
	if r.Amount != nil {
		w.Amount = *r.Amount
		w.HasAmount = true
	}
	return w
}

// ToRecord validates a wire record and converts it. A missing hash,
// status or timestamp and an unknown action kind are reported as
// errors wrapping nftflow.ErrMalformedRecord.
func (w WireTx) ToRecord() (types.TxRecord, error) {
	switch {
	case w.Hash == "":
		return types.TxRecord{}, fmt.Errorf("%w: missing hash", nftflow.ErrMalformedRecord)
	case w.Status == StatusUnset:
		return types.TxRecord{}, fmt.Errorf("%w: %s: missing status", nftflow.ErrMalformedRecord, w.Hash)
	case w.Status != StatusExecuted && w.Status != StatusAborted:
		return types.TxRecord{}, fmt.Errorf("%w: %s: unknown status %d", nftflow.ErrMalformedRecord, w.Hash, w.Status)
	case w.Timestamp == 0:
		return types.TxRecord{}, fmt.Errorf("%w: %s: missing timestamp", nftflow.ErrMalformedRecord, w.Hash)
	}
	kind := types.ActionKind(w.Kind)
	if kind != "" && !knownKind(kind) {
		return types.TxRecord{}, fmt.Errorf("%w: %s: unknown kind %q", nftflow.ErrMalformedRecord, w.Hash, w.Kind)
	}
	r := types.TxRecord{
		Hash:      w.Hash,
		Success:   w.Status == StatusExecuted,
		Timestamp: w.Timestamp,
		Version:   w.Version,
		Sender:    w.Sender,
		Function:  w.Function,
		VMStatus:  w.VMStatus,
		TxMeta: types.TxMeta{
			Kind:       kind,
			Recipient:  w.Recipient,
			Collection: w.Collection,
		},
	}
	if w.HasAmount {
		v := w.Amount
		r.Amount = &v
	}
	return r, nil
}

func knownKind(k types.ActionKind) bool {
	for _, known := range types.ActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

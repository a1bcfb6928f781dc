package types

import "time"

// TxStatus is the local lifecycle status of a provisional record.
type TxStatus string

const (
	// TxPending: built locally, not yet accepted by the network.
	TxPending TxStatus = "pending"
	// TxSubmitted: accepted by the network, finality not yet observed.
	TxSubmitted TxStatus = "submitted"
	// TxConfirmed: finalized with a successful execution.
	TxConfirmed TxStatus = "confirmed"
	// TxFailed: rejected at submission or aborted on-chain.
	TxFailed TxStatus = "failed"
)

// TxMeta is action metadata echoed onto the records an action creates.
type TxMeta struct {
	Kind       ActionKind
	Amount     *uint64
	Recipient  string
	Collection string
}

// TxRecord is a transaction summary as confirmed by the chain.
type TxRecord struct {
	Hash    string
	Success bool
	// Timestamp is chain time in microseconds since the Unix epoch.
	Timestamp uint64
	Version   uint64
	Sender    string
	Function  string
	VMStatus  string

	TxMeta
}

// Time returns the record's chain time.
func (r TxRecord) Time() time.Time { return MicrosToTime(r.Timestamp) }

// Clone returns a deep copy of the record.
func (r TxRecord) Clone() TxRecord {
	c := r
	if r.Amount != nil {
		v := *r.Amount
		c.Amount = &v
	}
	return c
}

// PendingTx is the provisional record created when an action enters
// submission. Hash is empty until the network accepts the transaction.
type PendingTx struct {
	ID        string
	Hash      string
	Status    TxStatus
	CreatedAt time.Time
	TxMeta
}

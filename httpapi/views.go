package httpapi

import (
	"time"

	"github.com/blockberries/nftflow/orchestrator"
	"github.com/blockberries/nftflow/payload"
	"github.com/blockberries/nftflow/types"
)

// AccountView is the rendered view state of the connected account.
type AccountView struct {
	Address string `json:"address"`
	// Balance is in smallest units; BalanceDisplay in whole units.
	Balance        uint64     `json:"balance"`
	BalanceDisplay string     `json:"balance_display"`
	RefreshedAt    *time.Time `json:"refreshed_at,omitempty"`
	History        []TxView   `json:"history"`
}

// TxView is one history entry.
type TxView struct {
	Hash       string    `json:"hash"`
	Status     string    `json:"status"`
	Time       time.Time `json:"time"`
	Kind       string    `json:"kind,omitempty"`
	Amount     *uint64   `json:"amount,omitempty"`
	Recipient  string    `json:"recipient,omitempty"`
	Collection string    `json:"collection,omitempty"`
	VMStatus   string    `json:"vm_status,omitempty"`
}

// OutcomeView is the response to an action submission.
type OutcomeView struct {
	Kind     string   `json:"kind"`
	State    string   `json:"state"`
	ID       string   `json:"id,omitempty"`
	Hash     string   `json:"hash,omitempty"`
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Function string   `json:"function,omitempty"`
	Args     []string `json:"arguments,omitempty"`
	Record   *TxView  `json:"record,omitempty"`
}

// ControlView reports one action control.
type ControlView struct {
	State    string `json:"state"`
	Disabled bool   `json:"disabled"`
}

func accountView(snap types.AccountSnapshot) AccountView {
	v := AccountView{
		Address:        snap.Address,
		Balance:        snap.Balance,
		BalanceDisplay: payload.FormatAmount(snap.Balance, types.CoinDecimals),
		History:        make([]TxView, len(snap.History)),
	}
	if !snap.RefreshedAt.IsZero() {
		t := snap.RefreshedAt.UTC()
		v.RefreshedAt = &t
	}
	for i, r := range snap.History {
		v.History[i] = txView(r)
	}
	return v
}

func txView(r types.TxRecord) TxView {
	status := "success"
	if !r.Success {
		status = "failed"
	}
	return TxView{
		Hash:       r.Hash,
		Status:     status,
		Time:       r.Time().UTC(),
		Kind:       string(r.Kind),
		Amount:     r.Amount,
		Recipient:  r.Recipient,
		Collection: r.Collection,
		VMStatus:   r.VMStatus,
	}
}

func outcomeView(out orchestrator.Outcome) OutcomeView {
	v := OutcomeView{
		Kind:    string(out.Kind),
		State:   out.State.String(),
		ID:      out.Pending.ID,
		Hash:    out.Pending.Hash,
		Success: out.Succeeded(),
		Message: out.Message,
	}
	if out.Call != nil {
		v.Function = out.Call.Function
		for _, a := range out.Call.Args() {
			v.Args = append(v.Args, a.String())
		}
	}
	if out.Record != nil {
		tv := txView(*out.Record)
		v.Record = &tv
	}
	return v
}

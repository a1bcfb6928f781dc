package orchestrator

import (
	"github.com/blockberries/nftflow"
	"github.com/blockberries/nftflow/payload"
	"github.com/blockberries/nftflow/types"
)

// Registry holds one orchestrator per action kind. Each has its own
// control, so actions of different kinds may run concurrently.
type Registry struct {
	Transfer         *Orchestrator[types.TransferInput]
	CreateCollection *Orchestrator[types.CreateCollectionInput]
	Mint             *Orchestrator[types.MintInput]
	BatchMint        *Orchestrator[types.BatchMintInput]
}

// NewRegistry creates the orchestrators for every action kind.
func NewRegistry(t payload.Targets, gw nftflow.Gateway, accounts Accounts, opts Options) *Registry {
	return &Registry{
		Transfer:         New(TransferAction(t), gw, accounts, opts),
		CreateCollection: New(CreateCollectionAction(t), gw, accounts, opts),
		Mint:             New(MintAction(t), gw, accounts, opts),
		BatchMint:        New(BatchMintAction(t), gw, accounts, opts),
	}
}

// Disabled reports, per action kind, whether its control is disabled.
func (r *Registry) Disabled() map[types.ActionKind]bool {
	return map[types.ActionKind]bool{
		types.ActionTransfer:         r.Transfer.Disabled(),
		types.ActionCreateCollection: r.CreateCollection.Disabled(),
		types.ActionMint:             r.Mint.Disabled(),
		types.ActionBatchMint:        r.BatchMint.Disabled(),
	}
}

// States reports the lifecycle state of every control.
func (r *Registry) States() map[types.ActionKind]State {
	return map[types.ActionKind]State{
		types.ActionTransfer:         r.Transfer.State(),
		types.ActionCreateCollection: r.CreateCollection.State(),
		types.ActionMint:             r.Mint.State(),
		types.ActionBatchMint:        r.BatchMint.State(),
	}
}

// Wait blocks until every detached reconciliation refresh has returned.
func (r *Registry) Wait() {
	r.Transfer.Wait()
	r.CreateCollection.Wait()
	r.Mint.Wait()
	r.BatchMint.Wait()
}

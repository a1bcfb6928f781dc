package orchestrator

import (
	"net/url"
	"strings"

	"github.com/blockberries/nftflow"
	"github.com/blockberries/nftflow/payload"
	"github.com/blockberries/nftflow/types"
)

// DefaultMintAmount is minted when MintInput.Amount is zero.
const DefaultMintAmount = 1

// TransferAction transfers native tokens from the connected account.
func TransferAction(t payload.Targets) Action[types.TransferInput] {
	return Action[types.TransferInput]{
		Kind:     types.ActionTransfer,
		Validate: validateTransfer,
		Build: func(in types.TransferInput, _ types.AccountSnapshot) types.CallDescriptor {
			return payload.Transfer(t, strings.TrimSpace(in.To), in.Amount)
		},
		Meta: func(in types.TransferInput) types.TxMeta {
			meta := types.TxMeta{Kind: types.ActionTransfer, Recipient: strings.TrimSpace(in.To)}
			if units, err := payload.ToSmallestUnit(in.Amount, types.CoinDecimals); err == nil {
				meta.Amount = &units
			}
			return meta
		},
	}
}

func validateTransfer(in types.TransferInput, acct types.AccountSnapshot) error {
	to := strings.TrimSpace(in.To)
	if to == "" {
		return nftflow.Missing("recipient")
	}
	if in.Amount.IsZero() {
		return nftflow.Missing("amount")
	}
	if !types.ValidAddress(to) {
		return nftflow.NewValidationError("recipient", "must be a 0x-prefixed hex address")
	}
	if !in.Amount.IsPositive() {
		return nftflow.NewValidationError("amount", "must be greater than zero")
	}
	units, err := payload.ToSmallestUnit(in.Amount, types.CoinDecimals)
	if err != nil {
		return &nftflow.ValidationError{Field: "amount", Reason: "must have at most 8 decimal places", Err: err}
	}
	if units > acct.Balance {
		return nftflow.NewValidationError("amount", "exceeds balance of "+payload.FormatAmount(acct.Balance, types.CoinDecimals))
	}
	return nil
}

// CreateCollectionAction creates a collection owned by the connected
// account.
func CreateCollectionAction(t payload.Targets) Action[types.CreateCollectionInput] {
	return Action[types.CreateCollectionInput]{
		Kind:     types.ActionCreateCollection,
		Validate: validateCreateCollection,
		Build: func(in types.CreateCollectionInput, acct types.AccountSnapshot) types.CallDescriptor {
			return payload.CreateCollection(t, acct.Address, in.Name, in.Description, strings.TrimSpace(in.URI), in.MaxSupply)
		},
		Meta: func(in types.CreateCollectionInput) types.TxMeta {
			return types.TxMeta{Kind: types.ActionCreateCollection, Collection: in.Name}
		},
	}
}

func validateCreateCollection(in types.CreateCollectionInput, _ types.AccountSnapshot) error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return nftflow.Missing("name")
	case strings.TrimSpace(in.Description) == "":
		return nftflow.Missing("description")
	case strings.TrimSpace(in.URI) == "":
		return nftflow.Missing("uri")
	case in.MaxSupply == 0:
		return nftflow.Missing("max supply")
	}
	u, err := url.Parse(strings.TrimSpace(in.URI))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &nftflow.ValidationError{Field: "uri", Reason: "must be an absolute URL", Err: err}
	}
	return nil
}

// MintAction mints tokens from an existing collection.
func MintAction(t payload.Targets) Action[types.MintInput] {
	return Action[types.MintInput]{
		Kind:     types.ActionMint,
		Validate: validateMint,
		Build: func(in types.MintInput, _ types.AccountSnapshot) types.CallDescriptor {
			return payload.MintNFT(t, strings.TrimSpace(in.CollectionID), mintAmount(in))
		},
		Meta: func(in types.MintInput) types.TxMeta {
			n := mintAmount(in)
			return types.TxMeta{Kind: types.ActionMint, Collection: strings.TrimSpace(in.CollectionID), Amount: &n}
		},
	}
}

func mintAmount(in types.MintInput) uint64 {
	if in.Amount == 0 {
		return DefaultMintAmount
	}
	return in.Amount
}

func validateMint(in types.MintInput, _ types.AccountSnapshot) error {
	return validateCollectionID(in.CollectionID)
}

// BatchMintAction mints Count tokens from a collection in one call.
func BatchMintAction(t payload.Targets) Action[types.BatchMintInput] {
	return Action[types.BatchMintInput]{
		Kind:     types.ActionBatchMint,
		Validate: validateBatchMint,
		Build: func(in types.BatchMintInput, _ types.AccountSnapshot) types.CallDescriptor {
			return payload.BatchMintNFTs(t, strings.TrimSpace(in.CollectionID), in.Count)
		},
		Meta: func(in types.BatchMintInput) types.TxMeta {
			n := in.Count
			return types.TxMeta{Kind: types.ActionBatchMint, Collection: strings.TrimSpace(in.CollectionID), Amount: &n}
		},
	}
}

func validateBatchMint(in types.BatchMintInput, _ types.AccountSnapshot) error {
	if err := validateCollectionID(in.CollectionID); err != nil {
		return err
	}
	if in.Count == 0 {
		return nftflow.Missing("count")
	}
	return nil
}

func validateCollectionID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nftflow.Missing("collection id")
	}
	if !types.ValidAddress(id) {
		return nftflow.NewValidationError("collection id", "must be a 0x-prefixed hex address")
	}
	return nil
}

package types

import "github.com/shopspring/decimal"

// TransferInput transfers Amount whole units of the native token to To.
type TransferInput struct {
	To     string
	Amount decimal.Decimal
}

// CreateCollectionInput creates a collection owned by the connected
// account.
type CreateCollectionInput struct {
	Name        string
	Description string
	URI         string
	MaxSupply   uint64
}

// MintInput mints Amount tokens from a collection. A zero Amount
// mints one.
type MintInput struct {
	CollectionID string
	Amount       uint64
}

// BatchMintInput mints Count tokens from a collection in one call.
type BatchMintInput struct {
	CollectionID string
	Count        uint64
}

// Package payload maps typed user actions to call descriptors.
//
// Builders are pure: no I/O, no state. They assume validated input and
// panic on contract-level programming errors, the same way a lifecycle
// guard panics on an out-of-order call.
package payload

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/blockberries/nftflow/types"
)

// Default entry function targets.
const (
	DefaultModuleName   = "nftcollection"
	DefaultCoinTransfer = "0x1::aptos_account::transfer"
)

// Entry function names in the collection module.
const (
	FnCreateCollection = "create_collection"
	FnMintNFT          = "mint_nft"
	FnBatchMintNFTs    = "batch_mint_nfts"
)

// Targets is the static deployment configuration interpolated into
// function identifiers.
type Targets struct {
	// ModuleAddress is the deployed collection module address.
	ModuleAddress string
	// ModuleName defaults to DefaultModuleName.
	ModuleName string
	// CoinTransfer is the fully qualified native transfer function.
	// Defaults to DefaultCoinTransfer.
	CoinTransfer string
}

// NewTargets returns Targets for the module deployed at addr.
func NewTargets(addr string) Targets {
	return Targets{
		ModuleAddress: addr,
		ModuleName:    DefaultModuleName,
		CoinTransfer:  DefaultCoinTransfer,
	}
}

func (t Targets) module() string {
	if t.ModuleName == "" {
		return DefaultModuleName
	}
	return t.ModuleName
}

func (t Targets) coinTransfer() string {
	if t.CoinTransfer == "" {
		return DefaultCoinTransfer
	}
	return t.CoinTransfer
}

// Function returns the fully qualified identifier of a collection
// module entry function.
func (t Targets) Function(name string) string {
	return t.ModuleAddress + "::" + t.module() + "::" + name
}

// Transfer builds a native token transfer of amount whole units.
// The amount is scaled to smallest units with exact decimal
// arithmetic.
func Transfer(t Targets, to string, amount decimal.Decimal) types.CallDescriptor {
	units, err := ToSmallestUnit(amount, types.CoinDecimals)
	if err != nil {
		panic(fmt.Sprintf("github.com/blockberries/nftflow/payload: Transfer called with unvalidated amount: %v", err))
	}
	return types.CallDescriptor{
		Function:      t.coinTransfer(),
		TypeArguments: []string{},
		Arguments:     []types.Argument{types.Address(to), types.U64(units)},
	}
}

// CreateCollection builds a create_collection call. Arguments are in
// the order the entry function declares them.
func CreateCollection(t Targets, creator, name, description, uri string, maxSupply uint64) types.CallDescriptor {
	return types.NewCallDescriptor(t.ModuleAddress, t.module(), FnCreateCollection, nil,
		types.Address(creator),
		types.String(name),
		types.String(description),
		types.String(uri),
		types.U64(maxSupply),
	)
}

// MintNFT builds a mint_nft call.
func MintNFT(t Targets, collectionID string, amount uint64) types.CallDescriptor {
	return types.NewCallDescriptor(t.ModuleAddress, t.module(), FnMintNFT, nil,
		types.Address(collectionID), types.U64(amount))
}

// BatchMintNFTs builds a batch_mint_nfts call.
func BatchMintNFTs(t Targets, collectionID string, amount uint64) types.CallDescriptor {
	return types.NewCallDescriptor(t.ModuleAddress, t.module(), FnBatchMintNFTs, nil,
		types.Address(collectionID), types.U64(amount))
}

var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// ToSmallestUnit scales a whole-unit amount by 10^decimals. The result
// must be a non-negative integer that fits in a uint64; amounts with
// more fractional digits than decimals are rejected rather than
// rounded.
func ToSmallestUnit(amount decimal.Decimal, decimals int32) (uint64, error) {
	if amount.Sign() < 0 {
		return 0, fmt.Errorf("amount %s is negative", amount)
	}
	scaled := amount.Shift(decimals)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	n := scaled.BigInt()
	if n.Cmp(maxUint64) > 0 {
		return 0, fmt.Errorf("amount %s overflows u64", amount)
	}
	return n.Uint64(), nil
}

// FromSmallestUnit converts smallest units back to whole units.
func FromSmallestUnit(units uint64, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -decimals)
}

// FormatAmount renders smallest units as a whole-unit decimal string,
// e.g. 500 with 8 decimals is "0.000005".
func FormatAmount(units uint64, decimals int32) string {
	return FromSmallestUnit(units, decimals).String()
}

// ParseAmount parses a user-entered whole-unit amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

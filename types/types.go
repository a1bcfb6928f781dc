// Package types defines the data model shared by the payload builder,
// the action orchestrators, the view state store and the gateway
// transports.
//
// Call descriptors are plain Go structs with cramberry struct tags so
// they can cross the gRPC gateway boundary unchanged. Transaction
// records are kept free of wire concerns; transports convert them at
// the boundary.
package types

import "strings"

// CoinDecimals is the decimal exponent of the native token. One whole
// unit is 10^CoinDecimals smallest units.
const CoinDecimals int32 = 8

// maxAddressHexLen is the length of a fully expanded 32-byte address.
const maxAddressHexLen = 64

// ActionKind identifies a user action.
type ActionKind string

const (
	ActionTransfer         ActionKind = "transfer"
	ActionCreateCollection ActionKind = "create-collection"
	ActionMint             ActionKind = "mint"
	ActionBatchMint        ActionKind = "batch-mint"
)

// ActionKinds lists every action in a stable order.
var ActionKinds = []ActionKind{
	ActionTransfer,
	ActionCreateCollection,
	ActionMint,
	ActionBatchMint,
}

// ValidAddress reports whether s is a 0x-prefixed hex account or
// object address. Short forms (e.g. "0x1") are accepted.
func ValidAddress(s string) bool {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	hex := s[2:]
	if len(hex) == 0 || len(hex) > maxAddressHexLen {
		return false
	}
	for _, c := range hex {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

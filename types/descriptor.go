package types

import (
	"fmt"
	"strings"
)

// ArgKind tags the encoding of a call argument.
type ArgKind uint8

const (
	// ArgAddress is an account or object address ("0x...").
	ArgAddress ArgKind = 1
	// ArgString is a UTF-8 string.
	ArgString ArgKind = 2
	// ArgU64 is an unsigned 64-bit integer.
	ArgU64 ArgKind = 3
)

func (k ArgKind) String() string {
	switch k {
	case ArgAddress:
		return "address"
	case ArgString:
		return "string"
	case ArgU64:
		return "u64"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Argument is a single positional function argument, already in the
// encoding the target function expects.
type Argument struct {
	Kind ArgKind `cramberry:"1"`
	Str  string  `cramberry:"2"`
	U64  uint64  `cramberry:"3"`
}

// Address builds an address argument.
func Address(s string) Argument { return Argument{Kind: ArgAddress, Str: s} }

// String builds a string argument.
func String(s string) Argument { return Argument{Kind: ArgString, Str: s} }

// U64 builds a u64 argument.
func U64(v uint64) Argument { return Argument{Kind: ArgU64, U64: v} }

// Value returns the argument as a string (address, string) or a
// uint64 (u64).
func (a Argument) Value() any {
	if a.Kind == ArgU64 {
		return a.U64
	}
	return a.Str
}

func (a Argument) String() string {
	if a.Kind == ArgU64 {
		return fmt.Sprintf("%d", a.U64)
	}
	return fmt.Sprintf("%q", a.Str)
}

// CallDescriptor is the canonical description of an entry function
// call: fully qualified function identifier, type arguments and
// positional arguments.
//
// A descriptor is built fresh per action and never mutated; accessors
// that expose slices return copies.
type CallDescriptor struct {
	Function      string     `cramberry:"1"`
	TypeArguments []string   `cramberry:"2"`
	Arguments     []Argument `cramberry:"3"`
}

// NewCallDescriptor builds a descriptor for addr::module::function.
func NewCallDescriptor(addr, module, function string, typeArgs []string, args ...Argument) CallDescriptor {
	d := CallDescriptor{
		Function:      addr + "::" + module + "::" + function,
		TypeArguments: append([]string{}, typeArgs...),
		Arguments:     append([]Argument{}, args...),
	}
	return d
}

// Values returns the argument values in order.
func (d CallDescriptor) Values() []any {
	out := make([]any, len(d.Arguments))
	for i, a := range d.Arguments {
		out[i] = a.Value()
	}
	return out
}

// Args returns a copy of the positional arguments.
func (d CallDescriptor) Args() []Argument {
	return append([]Argument{}, d.Arguments...)
}

// Target splits the function identifier into its address, module and
// function parts.
func (d CallDescriptor) Target() (addr, module, function string, err error) {
	parts := strings.Split(d.Function, "::")
	if len(parts) != 3 {
		return "", "", "", fmt.Errorf("function identifier %q: want addr::module::function", d.Function)
	}
	for i, p := range parts {
		if p == "" || strings.TrimSpace(p) != p {
			return "", "", "", fmt.Errorf("function identifier %q: malformed part %d", d.Function, i)
		}
	}
	return parts[0], parts[1], parts[2], nil
}

func (d CallDescriptor) String() string {
	args := make([]string, len(d.Arguments))
	for i, a := range d.Arguments {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s<%s>(%s)", d.Function, strings.Join(d.TypeArguments, ", "), strings.Join(args, ", "))
}

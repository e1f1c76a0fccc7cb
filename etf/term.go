// Package etf implements the External Term Format used by the Erlang/
// Elixir distribution protocol: a tagged-union term model, a growable
// wire buffer, and the encode/decode pair that moves terms between the
// two.
package etf

// Term is the central sum type. Every ETF value decodes to one of the
// concrete types declared in this file; there is no closed interface
// because Go has no sum types, so dispatch is by type switch (see
// Equal and Hash in equal.go, Render in debug.go, and the tag dispatch
// in decode.go).
type Term interface{}

// Atom is an interned constant identified by its printable name.
type Atom string

// String is the "charlist shorthand" form: a list of small integers
// encoded compactly as STRING_EXT. It is a distinct type from Binary so
// the codec knows which wire shape to pick.
type String string

// Binary is a byte-aligned binary (BINARY_EXT).
type Binary []byte

// Bitstring is a byte-aligned bit sequence with an optional count of
// significant bits in the final byte (BIT_BINARY_EXT). Bits == 8 (or 0,
// treated as "whole bytes") means every bit of Data is significant.
// Decoding a bitstring whose final byte is not fully significant is
// rejected with DecodingError{Kind: UnsupportedBitOffsetKind}, and
// encoding one fails with an EncodingError.
type Bitstring struct {
	Data []byte
	Bits uint8
}

// Tuple is a fixed-arity ordered sequence.
type Tuple []Term

// List is a proper list. Improper lists are out of scope; the decoder
// rejects a non-nil tail with MissingListEnd.
type List []Term

// Pair is one key/value entry of a Map, preserving wire order.
type Pair struct {
	Key   Term
	Value Term
}

// Map is an ordered association list. ETF map keys may be any term
// (including non-hashable ones like tuples or lists), and the decode
// order must be preserved for byte-exact re-encoding, so this is a
// slice of pairs rather than a native Go map.
type Map []Pair

// Pid identifies a process on a node.
type Pid struct {
	Node     Atom
	Num      uint32
	Serial   uint32
	Creation uint32
}

// Port identifies a port (file descriptor-like resource) on a node.
type Port struct {
	Node     Atom
	ID       uint64
	Creation uint32
}

// Reference is a globally (per-node) unique reference.
type Reference struct {
	Node     Atom
	Creation uint32
	IDs      []uint32
}

// Function is an opaque closure fun (NEW_FUN_EXT, or the older FUN_EXT
// form). It carries enough fields for structural equality and rehash;
// code in this repository never constructs one from scratch, it only
// round-trips funs it decoded.
type Function struct {
	Arity     uint8
	Module    Atom
	OldIndex  uint32
	OldUnique uint32
	Pid       Pid
	Unique    [16]byte
	Index     uint32
	FreeVars  []Term
	OldStyle  bool // decoded from FUN_EXT rather than NEW_FUN_EXT
}

// Export is an exported-fun reference, M:F/A (EXPORT_EXT).
type Export struct {
	Module   Atom
	Function Atom
	Arity    uint8
}

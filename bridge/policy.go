// Package bridge walks arbitrary Go values with reflect and routes them
// to and from etf.Term shapes under an explicit, caller-supplied Policy.
package bridge

// StringPolicy selects how a Go string becomes an ETF term.
type StringPolicy int

const (
	StringBinary StringPolicy = iota
	StringAtom
	StringCharlist
)

// UnkeyedPolicy selects how an ordered Go aggregate (slice or array)
// becomes an ETF term.
type UnkeyedPolicy int

const (
	UnkeyedList UnkeyedPolicy = iota
	UnkeyedTuple
)

// KeyedKind selects how a keyed Go aggregate (struct or map[string]V)
// becomes an ETF term.
type KeyedKind int

const (
	KeyedMap KeyedKind = iota
	KeyedKeywordList
)

// Policy is carried by value through every encode/decode call rather
// than as ambient/mutable state: a field-level override is just a
// locally modified copy passed one level deeper, so the prior policy
// is "restored" for free on every return path, including errors, with
// no push/pop bookkeeping.
type Policy struct {
	String    StringPolicy
	Unkeyed   UnkeyedPolicy
	Keyed     KeyedKind
	KeyString StringPolicy // how a struct/map key becomes the wire key when Keyed == KeyedMap
}

// Default is the policy used when the caller has no opinion: strings
// as binaries, ordered groups as lists, records as maps with atom keys
// (the conventional shape of an Elixir struct-like map).
func Default() Policy {
	return Policy{
		String:    StringBinary,
		Unkeyed:   UnkeyedList,
		Keyed:     KeyedMap,
		KeyString: StringAtom,
	}
}

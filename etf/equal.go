package etf

import (
	"hash/fnv"
	"math/big"
)

// Equal reports whether a and b represent the same term. Integers are
// compared by numeric value regardless of whether they're held as
// int64 or *big.Int (both canonicalise to the "Int" variant on decode).
// Map equality is order-independent (two maps with the same key/value
// pairs are equal regardless of wire order); order only matters for
// byte-exact re-encoding, which Map's pair slice preserves separately.
func Equal(a, b Term) bool {
	// nil and the empty list are the same term; a nil Term encodes as
	// NIL and decodes back as List{}.
	if a == nil {
		a = List{}
	}
	if b == nil {
		b = List{}
	}
	if ai, aok := asInteger(a); aok {
		bi, bok := asInteger(b)
		return bok && ai.Cmp(bi) == 0
	}

	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv

	case Atom:
		bv, ok := b.(Atom)
		return ok && av == bv

	case String:
		bv, ok := b.(String)
		return ok && av == bv

	case Binary:
		bv, ok := b.(Binary)
		return ok && bytesEqual(av, bv)

	case Bitstring:
		bv, ok := b.(Bitstring)
		return ok && bitstringEqual(av, bv)

	case Tuple:
		bv, ok := b.(Tuple)
		return ok && tupleEqual(av, bv)

	case List:
		bv, ok := b.(List)
		return ok && listEqual(av, bv)

	case Map:
		bv, ok := b.(Map)
		return ok && mapEqual(av, bv)

	case Pid:
		bv, ok := b.(Pid)
		return ok && av == bv

	case Port:
		bv, ok := b.(Port)
		return ok && av.Node == bv.Node && av.ID == bv.ID && av.Creation == bv.Creation

	case Reference:
		bv, ok := b.(Reference)
		return ok && referenceEqual(av, bv)

	case Function:
		bv, ok := b.(Function)
		return ok && functionEqual(av, bv)

	case Export:
		bv, ok := b.(Export)
		return ok && av == bv
	}
	return false
}

func asInteger(t Term) (*big.Int, bool) {
	switch v := t.(type) {
	case int64:
		return big.NewInt(v), true
	case int:
		return big.NewInt(int64(v)), true
	case *big.Int:
		return v, true
	default:
		return nil, false
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func bitstringEqual(a, b Bitstring) bool {
	na, nb := normalizeBits(a), normalizeBits(b)
	return na == nb && bytesEqual(a.Data, b.Data)
}

func normalizeBits(b Bitstring) uint8 {
	if len(b.Data) == 0 {
		return 0
	}
	if b.Bits == 0 {
		return 8
	}
	return b.Bits
}

func tupleEqual(a, b Tuple) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func listEqual(a, b List) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func mapEqual(a, b Map) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, pa := range a {
		found := false
		for j, pb := range b {
			if used[j] {
				continue
			}
			if Equal(pa.Key, pb.Key) && Equal(pa.Value, pb.Value) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func referenceEqual(a, b Reference) bool {
	if a.Node != b.Node || a.Creation != b.Creation || len(a.IDs) != len(b.IDs) {
		return false
	}
	for i := range a.IDs {
		if a.IDs[i] != b.IDs[i] {
			return false
		}
	}
	return true
}

func functionEqual(a, b Function) bool {
	if a.Arity != b.Arity || a.Module != b.Module || a.OldIndex != b.OldIndex ||
		a.OldUnique != b.OldUnique || a.Pid != b.Pid || a.Unique != b.Unique ||
		a.Index != b.Index || a.OldStyle != b.OldStyle || len(a.FreeVars) != len(b.FreeVars) {
		return false
	}
	for i := range a.FreeVars {
		if !Equal(a.FreeVars[i], b.FreeVars[i]) {
			return false
		}
	}
	return true
}

// Hash computes a hash consistent with Equal: equal terms always hash
// equal, for callers wanting to deduplicate terms.
func Hash(t Term) uint64 {
	h := fnv.New64a()
	hashInto(h, t)
	return h.Sum64()
}

func hashInto(h interface{ Write([]byte) (int, error) }, t Term) {
	if t == nil {
		t = List{}
	}
	write := func(b []byte) { h.Write(b) }
	writeByte := func(b byte) { h.Write([]byte{b}) }

	if i, ok := asInteger(t); ok {
		writeByte(1)
		write(i.Bytes())
		if i.Sign() < 0 {
			writeByte(0xff)
		}
		return
	}

	switch v := t.(type) {
	case float64:
		writeByte(2)
		var b [8]byte
		putFloat64(b[:], v)
		write(b[:])
	case Atom:
		writeByte(3)
		write([]byte(v))
	case String:
		writeByte(4)
		write([]byte(v))
	case Binary:
		writeByte(5)
		write(v)
	case Bitstring:
		writeByte(6)
		write(v.Data)
		writeByte(normalizeBits(v))
	case Tuple:
		writeByte(7)
		for _, el := range v {
			hashInto(h, el)
		}
	case List:
		writeByte(8)
		for _, el := range v {
			hashInto(h, el)
		}
	case Map:
		writeByte(9)
		// order-independent: fold with addition so pair order doesn't matter
		var acc uint64
		for _, p := range v {
			sub := fnv.New64a()
			hashInto(sub, p.Key)
			hashInto(sub, p.Value)
			acc += sub.Sum64()
		}
		var b [8]byte
		putUint64(b[:], acc)
		write(b[:])
	case Pid:
		writeByte(10)
		write([]byte(v.Node))
		var b [12]byte
		putUint32(b[0:4], v.Num)
		putUint32(b[4:8], v.Serial)
		putUint32(b[8:12], v.Creation)
		write(b[:])
	case Port:
		writeByte(11)
		write([]byte(v.Node))
		var b [8]byte
		putUint32(b[0:4], uint32(v.ID))
		putUint32(b[4:8], v.Creation)
		write(b[:])
	case Reference:
		writeByte(12)
		write([]byte(v.Node))
		for _, id := range v.IDs {
			var b [4]byte
			putUint32(b[:], id)
			write(b[:])
		}
	case Function:
		writeByte(13)
		write([]byte(v.Module))
		write(v.Unique[:])
		var b [4]byte
		putUint32(b[:], v.Index)
		write(b[:])
	case Export:
		writeByte(14)
		write([]byte(v.Module))
		write([]byte(v.Function))
		writeByte(v.Arity)
	default:
		writeByte(0)
	}
}

func putFloat64(b []byte, v float64) { putUint64(b, mathFloat64bits(v)) }

package etf

import (
	"encoding/binary"
	"math"
	"math/big"
)

// decodeStackElement is the linked-list stack used to decode nested
// terms (List/Tuple/Map/Pid/Port/Reference/Fun/Export) without
// recursion, so decode depth is bounded by the heap rather than the
// goroutine stack.
type decodeStackElement struct {
	parent   *decodeStackElement
	kind     byte
	term     Term
	i        int
	children int
	tmp      Term
}

var (
	biggestInt = big.NewInt(0x7fffffffffffffff)
	lowestInt  = big.NewInt(-0x8000000000000000)
)

// Decode reads exactly one term from the buffer's current read cursor,
// advancing it past the term. It does not consume a leading version
// byte; call buf.ConsumeVersion() first if one may be present.
func Decode(buf *Buffer) (Term, error) {
	packet := buf.data[buf.r:]
	start := len(packet)

	term, rest, err := decodeOne(packet)
	if err != nil {
		return nil, err
	}
	buf.r += start - len(rest)
	return term, nil
}

func decodeOne(packet []byte) (Term, []byte, error) {
	var term Term
	var stack *decodeStackElement
	var child *decodeStackElement
	var t byte

	for {
		child = nil
		if len(packet) == 0 {
			return nil, nil, errBadTerm("unexpected end of buffer")
		}

		t = packet[0]
		packet = packet[1:]

		switch t {
		case ettAtomUTF8, ettAtom:
			if len(packet) < 2 {
				return nil, nil, errBadTerm("truncated atom")
			}
			n := binary.BigEndian.Uint16(packet)
			if len(packet) < int(n)+2 {
				return nil, nil, errBadTerm("truncated atom")
			}
			term = Atom(packet[2 : n+2])
			packet = packet[n+2:]

		case ettSmallAtomUTF8, ettSmallAtom:
			if len(packet) == 0 {
				return nil, nil, errBadTerm("truncated small atom")
			}
			n := int(packet[0])
			if len(packet) < n+1 {
				return nil, nil, errBadTerm("truncated small atom")
			}
			term = Atom(packet[1 : n+1])
			packet = packet[n+1:]

		case ettString:
			if len(packet) < 2 {
				return nil, nil, errBadTerm("truncated string")
			}
			n := binary.BigEndian.Uint16(packet)
			if len(packet) < int(n)+2 {
				return nil, nil, errBadTerm("truncated string")
			}
			s := make([]byte, n)
			copy(s, packet[2:n+2])
			term = String(s)
			packet = packet[n+2:]

		case ettNewFloat:
			if len(packet) < 8 {
				return nil, nil, errBadTerm("truncated float")
			}
			bits := binary.BigEndian.Uint64(packet[:8])
			term = math.Float64frombits(bits)
			packet = packet[8:]

		case ettFloat:
			// Deprecated ASCII-decimal float form: 31 bytes of text.
			if len(packet) < 31 {
				return nil, nil, errBadTerm("truncated legacy float")
			}
			var f float64
			if _, err := parseDecimalFloat(packet[:31], &f); err != nil {
				return nil, nil, err
			}
			term = f
			packet = packet[31:]

		case ettSmallInteger:
			if len(packet) == 0 {
				return nil, nil, errBadTerm("truncated small integer")
			}
			term = int64(packet[0])
			packet = packet[1:]

		case ettInteger:
			if len(packet) < 4 {
				return nil, nil, errBadTerm("truncated integer")
			}
			term = int64(int32(binary.BigEndian.Uint32(packet[:4])))
			packet = packet[4:]

		case ettSmallBig:
			if len(packet) < 2 {
				return nil, nil, errBadTerm("truncated small big")
			}
			n := packet[0]
			negative := packet[1] == 1
			if len(packet) < int(n)+2 {
				return nil, nil, errBadTerm("truncated small big")
			}
			bytes := make([]byte, n)
			copy(bytes, packet[2:n+2])
			reverseBytes(bytes)

			bigInt := new(big.Int).SetBytes(bytes)
			if negative {
				bigInt.Neg(bigInt)
			}
			if bigInt.Cmp(biggestInt) <= 0 && bigInt.Cmp(lowestInt) >= 0 {
				term = bigInt.Int64()
			} else {
				term = bigInt
			}
			packet = packet[n+2:]

		case ettLargeBig:
			if len(packet) < 5 {
				return nil, nil, errBadTerm("truncated large big")
			}
			n := binary.BigEndian.Uint32(packet[:4])
			negative := packet[4] == 1
			if uint32(len(packet)) < n+5 {
				return nil, nil, errBadTerm("truncated large big")
			}
			bytes := make([]byte, n)
			copy(bytes, packet[5:n+5])
			reverseBytes(bytes)

			bigInt := new(big.Int).SetBytes(bytes)
			if negative {
				bigInt.Neg(bigInt)
			}
			if bigInt.Cmp(biggestInt) <= 0 && bigInt.Cmp(lowestInt) >= 0 {
				term = bigInt.Int64()
			} else {
				term = bigInt
			}
			packet = packet[n+5:]

		case ettList:
			if len(packet) < 4 {
				return nil, nil, errBadTerm("truncated list")
			}
			n := binary.BigEndian.Uint32(packet[:4])
			if n == 0 {
				return nil, nil, errBadTerm("list arity 0 must be encoded as nil")
			}
			term = make(List, n+1)
			packet = packet[4:]
			child = &decodeStackElement{parent: stack, kind: ettList, term: term, children: int(n) + 1}

		case ettSmallTuple:
			if len(packet) == 0 {
				return nil, nil, errBadTerm("truncated small tuple")
			}
			n := packet[0]
			packet = packet[1:]
			term = make(Tuple, n)
			if n > 0 {
				child = &decodeStackElement{parent: stack, kind: ettSmallTuple, term: term, children: int(n)}
			}

		case ettLargeTuple:
			if len(packet) < 4 {
				return nil, nil, errBadTerm("truncated large tuple")
			}
			n := binary.BigEndian.Uint32(packet[:4])
			packet = packet[4:]
			term = make(Tuple, n)
			if n > 0 {
				child = &decodeStackElement{parent: stack, kind: ettLargeTuple, term: term, children: int(n)}
			}

		case ettMap:
			if len(packet) < 4 {
				return nil, nil, errBadTerm("truncated map")
			}
			n := binary.BigEndian.Uint32(packet[:4])
			packet = packet[4:]
			term = make(Map, n)
			if n > 0 {
				child = &decodeStackElement{parent: stack, kind: ettMap, term: term, children: int(n) * 2}
			}

		case ettBinary:
			if len(packet) < 4 {
				return nil, nil, errBadTerm("truncated binary")
			}
			n := binary.BigEndian.Uint32(packet)
			if uint32(len(packet)) < n+4 {
				return nil, nil, errBadTerm("truncated binary")
			}
			b := make([]byte, n)
			copy(b, packet[4:n+4])
			term = Binary(b)
			packet = packet[n+4:]

		case ettNil:
			term = List{}

		case ettPid, ettNewPid:
			child = &decodeStackElement{parent: stack, kind: t, children: 1}

		case ettReference, ettNewRef, ettNewerRef:
			kind := t
			var idCount uint16 = 1
			if kind != ettReference {
				if len(packet) < 2 {
					return nil, nil, errBadTerm("truncated reference")
				}
				idCount = binary.BigEndian.Uint16(packet[:2])
				packet = packet[2:]
			}
			child = &decodeStackElement{parent: stack, kind: kind, children: 1, tmp: idCount}

		case ettNewFun:
			if len(packet) < 29 {
				return nil, nil, errBadTerm("truncated fun")
			}
			var unique [16]byte
			copy(unique[:], packet[5:21])
			index := binary.BigEndian.Uint32(packet[21:25])
			l := binary.BigEndian.Uint32(packet[25:29])
			fun := Function{
				Arity:    packet[4],
				Unique:   unique,
				Index:    index,
				FreeVars: make([]Term, l),
			}
			packet = packet[29:]
			child = &decodeStackElement{parent: stack, kind: ettNewFun, term: fun, children: 4 + int(l)}

		case ettFun:
			if len(packet) < 4 {
				return nil, nil, errBadTerm("truncated fun")
			}
			l := binary.BigEndian.Uint32(packet[:4])
			packet = packet[4:]
			fun := Function{OldStyle: true, FreeVars: make([]Term, l)}
			child = &decodeStackElement{parent: stack, kind: ettFun, term: fun, children: 4 + int(l)}

		case ettExport:
			child = &decodeStackElement{parent: stack, kind: ettExport, term: Export{}, children: 3}

		case ettPort, ettNewPort:
			child = &decodeStackElement{parent: stack, kind: t, children: 1}

		case ettBitBinary:
			if len(packet) < 5 {
				return nil, nil, errBadTerm("truncated bitstring")
			}
			n := binary.BigEndian.Uint32(packet)
			if uint32(len(packet)) < n+5 {
				return nil, nil, errBadTerm("truncated bitstring")
			}
			bits := packet[4]
			if n > 0 && bits != 8 && bits != 0 {
				return nil, nil, errUnsupportedBitOffset(bits)
			}
			b := make([]byte, n)
			copy(b, packet[5:n+5])
			term = Bitstring{Data: b, Bits: bits}
			packet = packet[n+5:]

		default:
			return nil, nil, errUnknownTag(t)
		}

		if stack == nil && child == nil {
			break
		}

		if child != nil {
			stack = child
			continue
		}

	processStack:
		if stack != nil {
			switch stack.kind {
			case ettList:
				stack.term.(List)[stack.i] = term
				stack.i++
				if stack.i == stack.children {
					if l, ok := term.(List); !ok || len(l) != 0 {
						return nil, nil, errMissingListEnd()
					}
					stack.term = stack.term.(List)[:stack.i-1]
				}

			case ettSmallTuple, ettLargeTuple:
				stack.term.(Tuple)[stack.i] = term
				stack.i++

			case ettMap:
				if stack.i&1 == 1 {
					m := stack.term.(Map)
					m[stack.i/2] = Pair{Key: stack.tmp, Value: term}
					stack.i++
				} else {
					stack.tmp = term
					stack.i++
				}

			case ettPid:
				if len(packet) < 9 {
					return nil, nil, errBadTerm("truncated pid")
				}
				name, ok := term.(Atom)
				if !ok {
					return nil, nil, errBadTerm("pid node must be an atom")
				}
				pid := Pid{
					Node:     name,
					Num:      binary.BigEndian.Uint32(packet[:4]),
					Serial:   binary.BigEndian.Uint32(packet[4:8]),
					Creation: uint32(packet[8] & 3),
				}
				packet = packet[9:]
				stack.term = pid
				stack.i++

			case ettNewPid:
				if len(packet) < 12 {
					return nil, nil, errBadTerm("truncated new pid")
				}
				name, ok := term.(Atom)
				if !ok {
					return nil, nil, errBadTerm("pid node must be an atom")
				}
				pid := Pid{
					Node:     name,
					Num:      binary.BigEndian.Uint32(packet[:4]),
					Serial:   binary.BigEndian.Uint32(packet[4:8]),
					Creation: binary.BigEndian.Uint32(packet[8:12]),
				}
				packet = packet[12:]
				stack.term = pid
				stack.i++

			case ettReference, ettNewRef, ettNewerRef:
				name, ok := term.(Atom)
				if !ok {
					return nil, nil, errBadTerm("reference node must be an atom")
				}
				l := int(stack.tmp.(uint16))
				if stack.kind == ettReference {
					// Legacy layout: one 4-byte ID, then a 1-byte creation.
					if len(packet) < 5 {
						return nil, nil, errBadTerm("truncated reference")
					}
					ref := Reference{
						Node:     name,
						Creation: uint32(packet[4]),
						IDs:      []uint32{binary.BigEndian.Uint32(packet[:4])},
					}
					packet = packet[5:]
					stack.term = ref
					stack.i++
					break
				}
				var creation uint32
				switch stack.kind {
				case ettNewRef:
					if len(packet) < 1+l*4 {
						return nil, nil, errBadTerm("truncated reference")
					}
					creation = uint32(packet[0])
					packet = packet[1:]
				case ettNewerRef:
					if len(packet) < 4+l*4 {
						return nil, nil, errBadTerm("truncated reference")
					}
					creation = binary.BigEndian.Uint32(packet[:4])
					packet = packet[4:]
				}
				ref := Reference{Node: name, Creation: creation, IDs: make([]uint32, l)}
				for i := 0; i < l; i++ {
					ref.IDs[i] = binary.BigEndian.Uint32(packet[:4])
					packet = packet[4:]
				}
				stack.term = ref
				stack.i++

			case ettPort:
				if len(packet) < 5 {
					return nil, nil, errBadTerm("truncated port")
				}
				name, ok := term.(Atom)
				if !ok {
					return nil, nil, errBadTerm("port node must be an atom")
				}
				port := Port{Node: name, ID: uint64(binary.BigEndian.Uint32(packet[:4])), Creation: uint32(packet[4])}
				packet = packet[5:]
				stack.term = port
				stack.i++

			case ettNewPort:
				if len(packet) < 8 {
					return nil, nil, errBadTerm("truncated new port")
				}
				name, ok := term.(Atom)
				if !ok {
					return nil, nil, errBadTerm("port node must be an atom")
				}
				port := Port{Node: name, ID: uint64(binary.BigEndian.Uint32(packet[:4])), Creation: binary.BigEndian.Uint32(packet[4:8])}
				packet = packet[8:]
				stack.term = port
				stack.i++

			case ettNewFun:
				fun := stack.term.(Function)
				switch stack.i {
				case 0:
					module, ok := term.(Atom)
					if !ok {
						return nil, nil, errBadTerm("fun module must be an atom")
					}
					fun.Module = module
				case 1:
					fun.OldIndex = uint32(asInt64(term))
				case 2:
					fun.OldUnique = uint32(asInt64(term))
				case 3:
					pid, ok := term.(Pid)
					if !ok {
						return nil, nil, errBadTerm("fun pid field malformed")
					}
					fun.Pid = pid
				default:
					fun.FreeVars[stack.i-4] = term
				}
				stack.term = fun
				stack.i++

			case ettFun:
				fun := stack.term.(Function)
				switch stack.i {
				case 0:
					pid, ok := term.(Pid)
					if !ok {
						return nil, nil, errBadTerm("fun pid field malformed")
					}
					fun.Pid = pid
				case 1:
					module, ok := term.(Atom)
					if !ok {
						return nil, nil, errBadTerm("fun module must be an atom")
					}
					fun.Module = module
				case 2:
					fun.OldIndex = uint32(asInt64(term))
				case 3:
					fun.OldUnique = uint32(asInt64(term))
				default:
					fun.FreeVars[stack.i-4] = term
				}
				stack.term = fun
				stack.i++

			case ettExport:
				exp := stack.term.(Export)
				switch stack.i {
				case 0:
					module, ok := term.(Atom)
					if !ok {
						return nil, nil, errBadTerm("export module must be an atom")
					}
					exp.Module = module
				case 1:
					function, ok := term.(Atom)
					if !ok {
						return nil, nil, errBadTerm("export function must be an atom")
					}
					exp.Function = function
				case 2:
					exp.Arity = uint8(asInt64(term))
				}
				stack.term = exp
				stack.i++

			default:
				return nil, nil, errBadTerm("internal decode state")
			}
		}

		if stack.i < stack.children {
			continue
		}

		term = stack.term
		if stack.parent == nil {
			break
		}
		stack, stack.parent = stack.parent, nil
		goto processStack
	}

	return term, packet, nil
}

// ContainerKind classifies the tag at a buffer's read cursor for
// DecodeContainerHeader.
type ContainerKind int

const (
	ContainerScalar ContainerKind = iota
	ContainerNil
	ContainerList
	ContainerTuple
	ContainerMap
)

// DecodeContainerHeader peeks the tag at the read cursor; if it names a
// List, Tuple, or Map, it consumes the tag and length header only (none
// of the elements) and reports the element/pair count. This is what
// lets bridge.Decode index a keyed term's value offsets without
// decoding every value up front. Any other tag reports ContainerScalar
// without advancing, leaving the whole term for Decode.
func DecodeContainerHeader(buf *Buffer) (ContainerKind, int, error) {
	tag, err := buf.ReadTag()
	if err != nil {
		return ContainerScalar, 0, err
	}
	d := buf.data
	switch tag {
	case ettNil:
		buf.r++
		return ContainerNil, 0, nil
	case ettList:
		if len(d) < buf.r+5 {
			return ContainerScalar, 0, errBadTerm("truncated list")
		}
		n := int(binary.BigEndian.Uint32(d[buf.r+1 : buf.r+5]))
		buf.r += 5
		return ContainerList, n, nil
	case ettSmallTuple:
		if len(d) < buf.r+2 {
			return ContainerScalar, 0, errBadTerm("truncated tuple")
		}
		n := int(d[buf.r+1])
		buf.r += 2
		return ContainerTuple, n, nil
	case ettLargeTuple:
		if len(d) < buf.r+5 {
			return ContainerScalar, 0, errBadTerm("truncated tuple")
		}
		n := int(binary.BigEndian.Uint32(d[buf.r+1 : buf.r+5]))
		buf.r += 5
		return ContainerTuple, n, nil
	case ettMap:
		if len(d) < buf.r+5 {
			return ContainerScalar, 0, errBadTerm("truncated map")
		}
		n := int(binary.BigEndian.Uint32(d[buf.r+1 : buf.r+5]))
		buf.r += 5
		return ContainerMap, n, nil
	default:
		return ContainerScalar, 0, nil
	}
}

// ConsumeListEnd consumes the NIL tail terminating a proper List after
// the caller has read all n elements reported by DecodeContainerHeader.
func ConsumeListEnd(buf *Buffer) error {
	tag, err := buf.ReadTag()
	if err != nil {
		return err
	}
	if tag != ettNil {
		return errMissingListEnd()
	}
	buf.r++
	return nil
}

func asInt64(t Term) int64 {
	switch v := t.(type) {
	case int64:
		return v
	case *big.Int:
		return v.Int64()
	default:
		return 0
	}
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

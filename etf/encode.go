package etf

import (
	"encoding/binary"
	"math"
	"math/big"
)

// Encode appends the wire representation of t to buf. It never emits
// the version byte; callers that want one should start from
// NewBufferWithVersion.
func Encode(t Term, buf *Buffer) error {
	switch v := t.(type) {
	case nil:
		buf.AppendByte(ettNil)

	case bool:
		return Encode(Atom(boolAtomName(v)), buf)

	case int:
		return encodeInt(int64(v), buf)
	case int8:
		return encodeInt(int64(v), buf)
	case int16:
		return encodeInt(int64(v), buf)
	case int32:
		return encodeInt(int64(v), buf)
	case int64:
		return encodeInt(v, buf)
	case uint:
		return encodeBigUint(uint64(v), buf)
	case uint8:
		return encodeInt(int64(v), buf)
	case uint16:
		return encodeInt(int64(v), buf)
	case uint32:
		return encodeInt(int64(v), buf)
	case uint64:
		return encodeBigUint(v, buf)
	case *big.Int:
		return encodeBigInt(v, buf)

	case float32:
		return encodeFloat(float64(v), buf)
	case float64:
		return encodeFloat(v, buf)

	case Atom:
		return encodeAtom(v, buf)

	case String:
		return encodeString(v, buf)

	case Binary:
		buf.AppendByte(ettBinary)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.AppendBytes(lenBuf[:])
		buf.AppendBytes(v)

	case Bitstring:
		return encodeBitstring(v, buf)

	case Tuple:
		return encodeTuple(v, buf)

	case List:
		return encodeList(v, buf)

	case Map:
		return encodeMap(v, buf)

	case Pid:
		return encodePid(v, buf)

	case Port:
		return encodePort(v, buf)

	case Reference:
		return encodeReference(v, buf)

	case Function:
		return encodeFunction(v, buf)

	case Export:
		buf.AppendByte(ettExport)
		if err := Encode(v.Module, buf); err != nil {
			return err
		}
		if err := Encode(v.Function, buf); err != nil {
			return err
		}
		return encodeInt(int64(v.Arity), buf)

	default:
		return newEncodingError("unsupported term type %T", t)
	}
	return nil
}

// AppendNil writes the empty-list term. It doubles as the terminator a
// caller building a list with AppendListHeader must write after the
// final element.
func (b *Buffer) AppendNil() {
	b.AppendByte(ettNil)
}

// AppendTupleHeader writes a tuple header for n elements; the caller
// must follow it with exactly n encoded terms.
func (b *Buffer) AppendTupleHeader(n int) {
	if n <= 255 {
		b.AppendByte(ettSmallTuple)
		b.AppendByte(byte(n))
		return
	}
	b.AppendByte(ettLargeTuple)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(n))
	b.AppendBytes(lenBuf[:])
}

// AppendListHeader writes a list header for n elements; the caller must
// follow it with n encoded terms and a closing AppendNil. For n == 0,
// write AppendNil alone instead.
func (b *Buffer) AppendListHeader(n int) {
	b.AppendByte(ettList)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(n))
	b.AppendBytes(lenBuf[:])
}

// AppendMapHeader writes a map header for n pairs; the caller must
// follow it with n alternating key/value terms.
func (b *Buffer) AppendMapHeader(n int) {
	b.AppendByte(ettMap)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(n))
	b.AppendBytes(lenBuf[:])
}

func boolAtomName(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// encodeInt picks the narrowest legal integer encoding: SMALL_INTEGER
// for 0-255, INTEGER for the i32 range, SMALL_BIG/LARGE_BIG otherwise.
func encodeInt(v int64, buf *Buffer) error {
	if v >= 0 && v <= 255 {
		buf.AppendByte(ettSmallInteger)
		buf.AppendByte(byte(v))
		return nil
	}
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		buf.AppendByte(ettInteger)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(int32(v)))
		buf.AppendBytes(b[:])
		return nil
	}
	return encodeBigInt(big.NewInt(v), buf)
}

func encodeBigUint(v uint64, buf *Buffer) error {
	if v <= math.MaxInt64 {
		return encodeInt(int64(v), buf)
	}
	return encodeBigInt(new(big.Int).SetUint64(v), buf)
}

func encodeBigInt(v *big.Int, buf *Buffer) error {
	if v.IsInt64() {
		iv := v.Int64()
		if iv >= 0 && iv <= 255 || (iv >= math.MinInt32 && iv <= math.MaxInt32) {
			return encodeInt(iv, buf)
		}
	}
	negative := v.Sign() < 0
	mag := new(big.Int).Abs(v)
	bytes := mag.Bytes() // big-endian
	reverseBytes(bytes)  // ETF wants little-endian magnitude

	sign := byte(0)
	if negative {
		sign = 1
	}

	if len(bytes) < 256 {
		buf.AppendByte(ettSmallBig)
		buf.AppendByte(byte(len(bytes)))
		buf.AppendByte(sign)
		buf.AppendBytes(bytes)
		return nil
	}
	if len(bytes) > math.MaxUint32 {
		return newEncodingError("big integer too large to encode")
	}
	buf.AppendByte(ettLargeBig)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(bytes)))
	buf.AppendBytes(lenBuf[:])
	buf.AppendByte(sign)
	buf.AppendBytes(bytes)
	return nil
}

func encodeFloat(v float64, buf *Buffer) error {
	buf.AppendByte(ettNewFloat)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	buf.AppendBytes(b[:])
	return nil
}

// encodeAtom picks SMALL_ATOM_UTF8 for names up to 255 bytes and
// ATOM_UTF8 otherwise, the narrowest-encoding rule applied to atoms.
func encodeAtom(a Atom, buf *Buffer) error {
	name := []byte(a)
	if len(name) > math.MaxUint16 {
		return newEncodingError("atom name too long: %d bytes", len(name))
	}
	if len(name) <= 255 {
		buf.AppendByte(ettSmallAtomUTF8)
		buf.AppendByte(byte(len(name)))
		buf.AppendBytes(name)
		return nil
	}
	buf.AppendByte(ettAtomUTF8)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(name)))
	buf.AppendBytes(lenBuf[:])
	buf.AppendBytes(name)
	return nil
}

// encodeString emits STRING_EXT when every byte fits (which is always
// true: a Go string's bytes are each 0-255) and the length fits in a
// uint16; otherwise it falls back to a List of small integers, the
// general charlist form.
func encodeString(s String, buf *Buffer) error {
	raw := []byte(s)
	if len(raw) <= math.MaxUint16 {
		buf.AppendByte(ettString)
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(len(raw)))
		buf.AppendBytes(lenBuf[:])
		buf.AppendBytes(raw)
		return nil
	}
	elems := make(List, len(raw))
	for i, b := range raw {
		elems[i] = int64(b)
	}
	return encodeList(elems, buf)
}

func encodeBitstring(b Bitstring, buf *Buffer) error {
	bits := b.Bits
	if len(b.Data) == 0 {
		bits = 0
	} else if bits == 0 {
		bits = 8
	} else if bits != 8 {
		return newEncodingError("unsupported bit offset: %d significant bits in final byte", bits)
	}
	buf.AppendByte(ettBitBinary)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b.Data)))
	buf.AppendBytes(lenBuf[:])
	buf.AppendByte(bits)
	buf.AppendBytes(b.Data)
	return nil
}

func encodeTuple(tup Tuple, buf *Buffer) error {
	if len(tup) <= 255 {
		buf.AppendByte(ettSmallTuple)
		buf.AppendByte(byte(len(tup)))
	} else {
		buf.AppendByte(ettLargeTuple)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(tup)))
		buf.AppendBytes(lenBuf[:])
	}
	for _, el := range tup {
		if err := Encode(el, buf); err != nil {
			return err
		}
	}
	return nil
}

func encodeList(l List, buf *Buffer) error {
	if len(l) == 0 {
		buf.AppendByte(ettNil)
		return nil
	}
	buf.AppendByte(ettList)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(l)))
	buf.AppendBytes(lenBuf[:])
	for _, el := range l {
		if err := Encode(el, buf); err != nil {
			return err
		}
	}
	buf.AppendByte(ettNil)
	return nil
}

func encodeMap(m Map, buf *Buffer) error {
	buf.AppendByte(ettMap)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(m)))
	buf.AppendBytes(lenBuf[:])
	for _, p := range m {
		if err := Encode(p.Key, buf); err != nil {
			return err
		}
		if err := Encode(p.Value, buf); err != nil {
			return err
		}
	}
	return nil
}

func encodePid(p Pid, buf *Buffer) error {
	buf.AppendByte(ettNewPid)
	if err := Encode(p.Node, buf); err != nil {
		return err
	}
	var b [12]byte
	binary.BigEndian.PutUint32(b[0:4], p.Num)
	binary.BigEndian.PutUint32(b[4:8], p.Serial)
	binary.BigEndian.PutUint32(b[8:12], p.Creation)
	buf.AppendBytes(b[:])
	return nil
}

func encodePort(p Port, buf *Buffer) error {
	buf.AppendByte(ettNewPort)
	if err := Encode(p.Node, buf); err != nil {
		return err
	}
	var b [8]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(p.ID))
	binary.BigEndian.PutUint32(b[4:8], p.Creation)
	buf.AppendBytes(b[:])
	return nil
}

func encodeReference(r Reference, buf *Buffer) error {
	buf.AppendByte(ettNewerRef)
	var idLen [2]byte
	binary.BigEndian.PutUint16(idLen[:], uint16(len(r.IDs)))
	buf.AppendBytes(idLen[:])
	if err := Encode(r.Node, buf); err != nil {
		return err
	}
	var creation [4]byte
	binary.BigEndian.PutUint32(creation[:], r.Creation)
	buf.AppendBytes(creation[:])
	for _, id := range r.IDs {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], id)
		buf.AppendBytes(b[:])
	}
	return nil
}

func encodeFunction(f Function, buf *Buffer) error {
	if f.OldStyle {
		buf.AppendByte(ettFun)
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(f.FreeVars)))
		buf.AppendBytes(n[:])
		if err := Encode(f.Pid, buf); err != nil {
			return err
		}
		if err := Encode(f.Module, buf); err != nil {
			return err
		}
		if err := Encode(int64(f.OldIndex), buf); err != nil {
			return err
		}
		if err := Encode(int64(f.OldUnique), buf); err != nil {
			return err
		}
		for _, fv := range f.FreeVars {
			if err := Encode(fv, buf); err != nil {
				return err
			}
		}
		return nil
	}

	buf.AppendByte(ettNewFun)
	sizeOffset := buf.Reserve(4)
	buf.AppendByte(f.Arity)
	buf.AppendBytes(f.Unique[:])
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], f.Index)
	buf.AppendBytes(idx[:])
	var nfree [4]byte
	binary.BigEndian.PutUint32(nfree[:], uint32(len(f.FreeVars)))
	buf.AppendBytes(nfree[:])
	if err := Encode(f.Module, buf); err != nil {
		return err
	}
	if err := Encode(int64(f.OldIndex), buf); err != nil {
		return err
	}
	if err := Encode(int64(f.OldUnique), buf); err != nil {
		return err
	}
	if err := Encode(f.Pid, buf); err != nil {
		return err
	}
	for _, fv := range f.FreeVars {
		if err := Encode(fv, buf); err != nil {
			return err
		}
	}
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(buf.Len()-sizeOffset))
	buf.WriteAt(sizeOffset, size[:])
	return nil
}

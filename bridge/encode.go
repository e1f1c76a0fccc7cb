package bridge

import (
	"reflect"

	"github.com/driftcore/ergolink/etf"
)

// Encode walks v under policy and returns the ETF-encoded bytes
// (including the version byte). The walk emits bytes straight into the
// buffer — container headers first, then each child — so no aggregate
// Term tree is ever materialised.
func Encode(v interface{}, policy Policy) (*etf.Buffer, error) {
	buf := etf.NewBufferWithVersion()
	if err := EncodeTo(buf, v, policy); err != nil {
		return nil, err
	}
	return buf, nil
}

// EncodeTo appends v's encoding to an existing buffer, for callers
// composing a larger frame.
func EncodeTo(buf *etf.Buffer, v interface{}, policy Policy) error {
	return encodeValue(reflect.ValueOf(v), policy, buf)
}

// ToTerm converts v to an etf.Term under policy, useful when the caller
// wants to fold the result into a larger hand-built term (e.g. RPC
// argument lists). It reuses the byte-emitting walk and decodes the
// result, so both entry points share one shape-dispatch path.
func ToTerm(v interface{}, policy Policy) (etf.Term, error) {
	buf := etf.NewBuffer()
	if err := encodeValue(reflect.ValueOf(v), policy, buf); err != nil {
		return nil, err
	}
	return etf.Decode(buf)
}

func encodeValue(rv reflect.Value, p Policy, buf *etf.Buffer) error {
	if !rv.IsValid() {
		buf.AppendNil()
		return nil
	}
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			buf.AppendNil()
			return nil
		}
		return encodeValue(rv.Elem(), p, buf)
	case reflect.Bool:
		return etf.Encode(etf.Atom(boolName(rv.Bool())), buf)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return etf.Encode(rv.Int(), buf)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return etf.Encode(rv.Uint(), buf)
	case reflect.Float32, reflect.Float64:
		return etf.Encode(rv.Float(), buf)
	case reflect.String:
		return etf.Encode(textTerm(rv.String(), p.String), buf)
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return etf.Encode(etf.Binary(rv.Bytes()), buf)
		}
		return encodeOrdered(rv, p, buf)
	case reflect.Array:
		return encodeOrdered(rv, p, buf)
	case reflect.Map:
		return encodeMapValue(rv, p, buf)
	case reflect.Struct:
		return encodeStruct(rv, p, buf)
	default:
		return &InvalidArgument{Value: rv.Interface()}
	}
}

func boolName(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func textTerm(s string, sp StringPolicy) etf.Term {
	switch sp {
	case StringAtom:
		return etf.Atom(s)
	case StringCharlist:
		return etf.String(s)
	default:
		return etf.Binary(s)
	}
}

func encodeOrdered(rv reflect.Value, p Policy, buf *etf.Buffer) error {
	n := rv.Len()
	if p.Unkeyed == UnkeyedTuple {
		buf.AppendTupleHeader(n)
		for i := 0; i < n; i++ {
			if err := encodeValue(rv.Index(i), p, buf); err != nil {
				return err
			}
		}
		return nil
	}
	if n == 0 {
		buf.AppendNil()
		return nil
	}
	buf.AppendListHeader(n)
	for i := 0; i < n; i++ {
		if err := encodeValue(rv.Index(i), p, buf); err != nil {
			return err
		}
	}
	buf.AppendNil()
	return nil
}

func encodeMapValue(rv reflect.Value, p Policy, buf *etf.Buffer) error {
	if rv.Type().Key().Kind() != reflect.String {
		return &InvalidArgument{Value: rv.Interface()}
	}
	keys := rv.MapKeys()
	if p.Keyed == KeyedKeywordList {
		if len(keys) == 0 {
			buf.AppendNil()
			return nil
		}
		buf.AppendListHeader(len(keys))
		for _, k := range keys {
			buf.AppendTupleHeader(2)
			if err := etf.Encode(etf.Atom(k.String()), buf); err != nil {
				return err
			}
			if err := encodeValue(rv.MapIndex(k), p, buf); err != nil {
				return err
			}
		}
		buf.AppendNil()
		return nil
	}
	buf.AppendMapHeader(len(keys))
	for _, k := range keys {
		if err := etf.Encode(textTerm(k.String(), p.KeyString), buf); err != nil {
			return err
		}
		if err := encodeValue(rv.MapIndex(k), p, buf); err != nil {
			return err
		}
	}
	return nil
}

func encodeStruct(rv reflect.Value, p Policy, buf *etf.Buffer) error {
	fields := collectFields(rv.Type())
	if p.Keyed == KeyedKeywordList {
		if len(fields) == 0 {
			buf.AppendNil()
			return nil
		}
		buf.AppendListHeader(len(fields))
		for _, f := range fields {
			buf.AppendTupleHeader(2)
			if err := etf.Encode(etf.Atom(f.name), buf); err != nil {
				return err
			}
			if err := encodeValue(rv.Field(f.index), f.policy(p), buf); err != nil {
				return err
			}
		}
		buf.AppendNil()
		return nil
	}
	buf.AppendMapHeader(len(fields))
	for _, f := range fields {
		if err := etf.Encode(textTerm(f.name, p.KeyString), buf); err != nil {
			return err
		}
		if err := encodeValue(rv.Field(f.index), f.policy(p), buf); err != nil {
			return err
		}
	}
	return nil
}

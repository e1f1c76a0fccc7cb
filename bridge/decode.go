package bridge

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/driftcore/ergolink/etf"
)

// Decode reads one ETF term from buf's current cursor into target, which
// must be a non-nil pointer. It is the ETF->typed façade of 4.E.
func Decode(buf *etf.Buffer, target interface{}, policy Policy) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return &InvalidArgument{Value: target}
	}
	return decodeInto(rv.Elem(), buf, policy)
}

// DecodeTerm decodes an already-materialised Term into target under
// policy, for callers (RPC replies, the inbound-call dispatcher) that
// hold a Term rather than raw bytes. It re-encodes t into a scratch
// buffer and runs it through Decode so both entry points share one
// decode strategy, including the keyed-target index pass.
func DecodeTerm(t etf.Term, target interface{}, policy Policy) error {
	buf := etf.NewBuffer()
	if err := etf.Encode(t, buf); err != nil {
		return &DataCorrupted{Err: err}
	}
	return Decode(buf, target, policy)
}

func decodeInto(rv reflect.Value, buf *etf.Buffer, p Policy) error {
	switch rv.Kind() {
	case reflect.Ptr:
		nilAhead, err := buf.PeekNil()
		if err != nil {
			return err
		}
		if nilAhead {
			if err := buf.SkipTerm(); err != nil {
				return &DataCorrupted{Err: err}
			}
			rv.Set(reflect.Zero(rv.Type()))
			return nil
		}
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		return decodeInto(rv.Elem(), buf, p)

	case reflect.Interface:
		term, err := etf.Decode(buf)
		if err != nil {
			return err
		}
		if term == nil {
			rv.Set(reflect.Zero(rv.Type()))
			return nil
		}
		rv.Set(reflect.ValueOf(term))
		return nil

	case reflect.Bool:
		term, err := etf.Decode(buf)
		if err != nil {
			return err
		}
		a, ok := term.(etf.Atom)
		if !ok || (a != "true" && a != "false") {
			return &TypeMismatch{Expected: "bool", Actual: tagName(term)}
		}
		rv.SetBool(a == "true")
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := decodeInt(buf)
		if err != nil {
			return err
		}
		if rv.OverflowInt(n) {
			return &TypeMismatch{Expected: rv.Type().String(), Actual: "integer out of range"}
		}
		rv.SetInt(n)
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := decodeInt(buf)
		if err != nil {
			return err
		}
		if n < 0 || rv.OverflowUint(uint64(n)) {
			return &TypeMismatch{Expected: rv.Type().String(), Actual: "integer out of range"}
		}
		rv.SetUint(uint64(n))
		return nil

	case reflect.Float32, reflect.Float64:
		term, err := etf.Decode(buf)
		if err != nil {
			return err
		}
		f, ok := term.(float64)
		if !ok {
			return &TypeMismatch{Expected: "float", Actual: tagName(term)}
		}
		rv.SetFloat(f)
		return nil

	case reflect.String:
		term, err := etf.Decode(buf)
		if err != nil {
			return err
		}
		s, ok := textFromTerm(term)
		if !ok {
			return &TypeMismatch{Expected: "text", Actual: tagName(term)}
		}
		rv.SetString(s)
		return nil

	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			term, err := etf.Decode(buf)
			if err != nil {
				return err
			}
			b, ok := term.(etf.Binary)
			if !ok {
				return &TypeMismatch{Expected: "binary", Actual: tagName(term)}
			}
			rv.SetBytes(append([]byte(nil), b...))
			return nil
		}
		return decodeOrderedInto(rv, buf, p)

	case reflect.Array:
		return decodeOrderedInto(rv, buf, p)

	case reflect.Map:
		return decodeMapInto(rv, buf, p)

	case reflect.Struct:
		return decodeStructInto(rv, buf, p)

	default:
		return &InvalidArgument{Value: rv.Interface()}
	}
}

// decodeOrderedInto fills a slice or array target from an ETF List or
// Tuple, per the "ordered target accepts either a Tuple or a List" rule.
func decodeOrderedInto(rv reflect.Value, buf *etf.Buffer, p Policy) error {
	kind, n, err := etf.DecodeContainerHeader(buf)
	if err != nil {
		return err
	}
	switch kind {
	case etf.ContainerNil:
		if rv.Kind() == reflect.Slice {
			rv.Set(reflect.MakeSlice(rv.Type(), 0, 0))
		}
		return nil
	case etf.ContainerList, etf.ContainerTuple:
		if rv.Kind() == reflect.Slice {
			rv.Set(reflect.MakeSlice(rv.Type(), n, n))
		} else if rv.Len() != n {
			return &TypeMismatch{
				Expected: fmt.Sprintf("array of length %d", rv.Len()),
				Actual:   fmt.Sprintf("ordered group of length %d", n),
			}
		}
		for i := 0; i < n; i++ {
			if err := decodeInto(rv.Index(i), buf, p); err != nil {
				return err
			}
		}
		if kind == etf.ContainerList {
			return etf.ConsumeListEnd(buf)
		}
		return nil
	default:
		return &TypeMismatch{Expected: "list or tuple", Actual: "scalar"}
	}
}

func decodeMapInto(rv reflect.Value, buf *etf.Buffer, p Policy) error {
	if rv.Type().Key().Kind() != reflect.String {
		return &InvalidArgument{Value: rv.Interface()}
	}
	idx, end, err := indexKeyed(buf)
	if err != nil {
		return err
	}
	m := reflect.MakeMapWithSize(rv.Type(), len(idx))
	elemType := rv.Type().Elem()
	for key, off := range idx {
		buf.SetReadOffset(off)
		ev := reflect.New(elemType).Elem()
		if err := decodeInto(ev, buf, p); err != nil {
			return err
		}
		m.SetMapIndex(reflect.ValueOf(key), ev)
	}
	buf.SetReadOffset(end)
	rv.Set(m)
	return nil
}

// decodeStructInto decodes a keyed wire term into a struct: one
// indexing pass over the wire Map/keyword-list records each key's
// value offset, then each Go field rewinds to its recorded offset
// in declaration order. Unknown wire keys are ignored; a missing key is
// an absent value for pointer/interface fields and a KeyNotFound error
// for every other field.
func decodeStructInto(rv reflect.Value, buf *etf.Buffer, p Policy) error {
	idx, end, err := indexKeyed(buf)
	if err != nil {
		return err
	}
	for _, f := range collectFields(rv.Type()) {
		field := rv.Field(f.index)
		off, ok := idx[f.name]
		if !ok {
			switch field.Kind() {
			case reflect.Ptr, reflect.Interface:
				field.Set(reflect.Zero(field.Type()))
				continue
			default:
				return &KeyNotFound{Key: f.name}
			}
		}
		buf.SetReadOffset(off)
		if err := decodeInto(field, buf, f.policy(p)); err != nil {
			return err
		}
	}
	buf.SetReadOffset(end)
	return nil
}

// indexKeyed consumes a Map or keyword-style List-of-2-Tuples at the
// cursor and returns a key->value-offset index plus the cursor position
// immediately after the whole container, without materialising any
// value. Map keys and keyword-list tags are converted to plain strings
// via textFromTerm so lookups are agnostic to which text tag family the
// peer used for the key.
func indexKeyed(buf *etf.Buffer) (map[string]int, int, error) {
	kind, n, err := etf.DecodeContainerHeader(buf)
	if err != nil {
		return nil, 0, err
	}
	idx := make(map[string]int, n)
	switch kind {
	case etf.ContainerNil:
		return idx, buf.ReadOffset(), nil

	case etf.ContainerMap:
		for i := 0; i < n; i++ {
			keyTerm, err := etf.Decode(buf)
			if err != nil {
				return nil, 0, err
			}
			key, ok := textFromTerm(keyTerm)
			if !ok {
				return nil, 0, &TypeMismatch{Expected: "atom/binary key", Actual: tagName(keyTerm)}
			}
			idx[key] = buf.ReadOffset()
			if err := buf.SkipTerm(); err != nil {
				return nil, 0, &DataCorrupted{Err: err}
			}
		}
		return idx, buf.ReadOffset(), nil

	case etf.ContainerList:
		for i := 0; i < n; i++ {
			ekind, ecount, err := etf.DecodeContainerHeader(buf)
			if err != nil {
				return nil, 0, err
			}
			if ekind != etf.ContainerTuple || ecount != 2 {
				return nil, 0, &TypeMismatch{Expected: "keyword 2-tuple", Actual: "other list element"}
			}
			keyTerm, err := etf.Decode(buf)
			if err != nil {
				return nil, 0, err
			}
			key, ok := textFromTerm(keyTerm)
			if !ok {
				return nil, 0, &TypeMismatch{Expected: "atom key", Actual: tagName(keyTerm)}
			}
			idx[key] = buf.ReadOffset()
			if err := buf.SkipTerm(); err != nil {
				return nil, 0, &DataCorrupted{Err: err}
			}
		}
		if err := etf.ConsumeListEnd(buf); err != nil {
			return nil, 0, err
		}
		return idx, buf.ReadOffset(), nil

	default:
		return nil, 0, &TypeMismatch{Expected: "map or keyword list", Actual: "scalar"}
	}
}

func decodeInt(buf *etf.Buffer) (int64, error) {
	term, err := etf.Decode(buf)
	if err != nil {
		return 0, err
	}
	switch v := term.(type) {
	case int64:
		return v, nil
	case *big.Int:
		if !v.IsInt64() {
			return 0, &TypeMismatch{Expected: "64-bit integer", Actual: "integer out of range"}
		}
		return v.Int64(), nil
	default:
		return 0, &TypeMismatch{Expected: "integer", Actual: tagName(term)}
	}
}

// textFromTerm accepts the atom/string/binary family, every wire shape
// a peer might use for text.
func textFromTerm(t etf.Term) (string, bool) {
	switch v := t.(type) {
	case etf.Atom:
		return string(v), true
	case etf.String:
		return string(v), true
	case etf.Binary:
		return string(v), true
	default:
		return "", false
	}
}

func tagName(t etf.Term) string {
	return fmt.Sprintf("%T", t)
}

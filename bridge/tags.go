package bridge

import (
	"reflect"
	"strings"
)

// fieldSpec is the resolved wire behaviour for one exported struct
// field: its wire key name and any per-subtree policy override parsed
// from its `etf:"..."` tag.
type fieldSpec struct {
	index   int
	name    string
	skip    bool
	hasStr  bool
	str     StringPolicy
	hasUnk  bool
	unk     UnkeyedPolicy
	hasKeyd bool
	keyd    KeyedKind
}

// policy returns the effective policy for this field's subtree: the
// parent policy with any tag-specified overrides applied. Because this
// returns a new value rather than mutating p, the parent's policy is
// untouched once the field's encode/decode call returns, on every exit
// path including errors, with no push/pop bookkeeping.
func (f fieldSpec) policy(p Policy) Policy {
	if f.hasStr {
		p.String = f.str
	}
	if f.hasUnk {
		p.Unkeyed = f.unk
	}
	if f.hasKeyd {
		p.Keyed = f.keyd
	}
	return p
}

// parseFieldSpec reads a struct field's `etf` tag. Tag shape:
// `etf:"wireName,opt,opt"`. wireName "-" skips the field entirely; an
// empty wireName keeps the Go field name. Recognised options: binary,
// atom, charlist (string policy), list, tuple (unkeyed policy), map,
// keyword (keyed policy).
func parseFieldSpec(sf reflect.StructField) fieldSpec {
	spec := fieldSpec{index: -1, name: sf.Name}
	if sf.PkgPath != "" {
		spec.skip = true
		return spec
	}
	tag, ok := sf.Tag.Lookup("etf")
	if !ok {
		return spec
	}
	parts := strings.Split(tag, ",")
	if parts[0] == "-" {
		spec.skip = true
		return spec
	}
	if parts[0] != "" {
		spec.name = parts[0]
	}
	for _, opt := range parts[1:] {
		switch strings.TrimSpace(opt) {
		case "binary":
			spec.hasStr, spec.str = true, StringBinary
		case "atom":
			spec.hasStr, spec.str = true, StringAtom
		case "charlist":
			spec.hasStr, spec.str = true, StringCharlist
		case "list":
			spec.hasUnk, spec.unk = true, UnkeyedList
		case "tuple":
			spec.hasUnk, spec.unk = true, UnkeyedTuple
		case "map":
			spec.hasKeyd, spec.keyd = true, KeyedMap
		case "keyword":
			spec.hasKeyd, spec.keyd = true, KeyedKeywordList
		}
	}
	return spec
}

// collectFields returns the wire-visible fields of a struct type in
// declaration order.
func collectFields(t reflect.Type) []fieldSpec {
	fields := make([]fieldSpec, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		spec := parseFieldSpec(t.Field(i))
		if spec.skip {
			continue
		}
		spec.index = i
		fields = append(fields, spec)
	}
	return fields
}

package bridge

import (
	"testing"

	"github.com/driftcore/ergolink/etf"
	"github.com/stretchr/testify/require"
)

func TestStringPolicySelectsWireShape(t *testing.T) {
	term, err := ToTerm("hi", Policy{String: StringAtom})
	require.NoError(t, err)
	require.Equal(t, etf.Atom("hi"), term)

	term, err = ToTerm("hi", Policy{String: StringBinary})
	require.NoError(t, err)
	require.Equal(t, etf.Binary("hi"), term)

	term, err = ToTerm("hi", Policy{String: StringCharlist})
	require.NoError(t, err)
	require.Equal(t, etf.String("hi"), term)
}

func TestUnkeyedPolicySelectsListOrTuple(t *testing.T) {
	term, err := ToTerm([]int64{1, 2}, Policy{Unkeyed: UnkeyedList})
	require.NoError(t, err)
	require.Equal(t, etf.List{int64(1), int64(2)}, term)

	term, err = ToTerm([]int64{1, 2}, Policy{Unkeyed: UnkeyedTuple})
	require.NoError(t, err)
	require.Equal(t, etf.Tuple{int64(1), int64(2)}, term)
}

func TestBoolsEncodeAsAtoms(t *testing.T) {
	term, err := ToTerm(true, Default())
	require.NoError(t, err)
	require.Equal(t, etf.Atom("true"), term)

	term, err = ToTerm(false, Default())
	require.NoError(t, err)
	require.Equal(t, etf.Atom("false"), term)
}

func TestByteSliceEncodesAsBinary(t *testing.T) {
	term, err := ToTerm([]byte{1, 2, 3}, Default())
	require.NoError(t, err)
	require.Equal(t, etf.Binary{1, 2, 3}, term)
}

// A nil value encodes as the empty list, the idiomatic Erlang nil.
func TestNilEncodesAsEmptyList(t *testing.T) {
	buf, err := Encode((*string)(nil), Default())
	require.NoError(t, err)
	require.Equal(t, []byte{131, 106}, buf.Bytes())
}

type annotated struct {
	Tag   string   `etf:"tag,atom"`
	Body  string   `etf:"body,binary"`
	Items []string `etf:"items,tuple"`
}

// A field tag's policy override applies to that field's subtree only;
// sibling fields see the caller's policy untouched.
func TestFieldOverridesScopeToSubtree(t *testing.T) {
	v := annotated{Tag: "ok", Body: "payload", Items: []string{"a"}}
	term, err := ToTerm(v, Policy{String: StringCharlist, Keyed: KeyedMap, KeyString: StringAtom})
	require.NoError(t, err)

	m, ok := term.(etf.Map)
	require.True(t, ok)
	byKey := map[string]etf.Term{}
	for _, p := range m {
		byKey[string(p.Key.(etf.Atom))] = p.Value
	}
	require.Equal(t, etf.Atom("ok"), byKey["tag"])
	require.Equal(t, etf.Binary("payload"), byKey["body"])
	// The tuple override on Items does not leak into its elements'
	// string policy, which stays the caller's charlist.
	require.Equal(t, etf.Tuple{etf.String("a")}, byKey["items"])
}

type withSkip struct {
	Kept    string `etf:"kept"`
	Dropped string `etf:"-"`
}

func TestDashTagSkipsField(t *testing.T) {
	term, err := ToTerm(withSkip{Kept: "x", Dropped: "y"}, Default())
	require.NoError(t, err)
	m, ok := term.(etf.Map)
	require.True(t, ok)
	require.Len(t, m, 1)
	require.Equal(t, etf.Atom("kept"), m[0].Key)
}

// Keyword-list encoding of a struct preserves field declaration order.
func TestKeywordListPreservesFieldOrder(t *testing.T) {
	term, err := ToTerm(person{Name: "a", Age: 1}, Policy{Keyed: KeyedKeywordList})
	require.NoError(t, err)
	list, ok := term.(etf.List)
	require.True(t, ok)
	require.Len(t, list, 2)
	first := list[0].(etf.Tuple)
	second := list[1].(etf.Tuple)
	require.Equal(t, etf.Atom("name"), first[0])
	require.Equal(t, etf.Atom("age"), second[0])
}

func TestMapKeyStringPolicy(t *testing.T) {
	term, err := ToTerm(map[string]int64{"k": 7}, Policy{Keyed: KeyedMap, KeyString: StringBinary})
	require.NoError(t, err)
	m, ok := term.(etf.Map)
	require.True(t, ok)
	require.Equal(t, etf.Binary("k"), m[0].Key)
}

func TestUnsupportedKindIsInvalidArgument(t *testing.T) {
	_, err := ToTerm(make(chan int), Default())
	var invalid *InvalidArgument
	require.ErrorAs(t, err, &invalid)
}

package etf

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEqualCrossIntegerRepresentation(t *testing.T) {
	require.True(t, Equal(int64(5), int64(5)))
	require.True(t, Equal(int64(5), big.NewInt(5)))
	require.False(t, Equal(int64(5), int64(6)))
	require.False(t, Equal(Atom("a"), Atom("b")))
}

func TestHashConsistentWithEqual(t *testing.T) {
	a := Tuple{Atom("ok"), int64(1), Binary("x")}
	b := Tuple{Atom("ok"), int64(1), Binary("x")}
	require.True(t, Equal(a, b))
	require.Equal(t, Hash(a), Hash(b))
}

func TestMapEqualityIsOrderIndependent(t *testing.T) {
	a := Map{{Key: Atom("x"), Value: int64(1)}, {Key: Atom("y"), Value: int64(2)}}
	b := Map{{Key: Atom("y"), Value: int64(2)}, {Key: Atom("x"), Value: int64(1)}}
	require.True(t, Equal(a, b))
	require.Equal(t, Hash(a), Hash(b))
}

func TestPidPortReferenceStructuralEquality(t *testing.T) {
	p1 := Pid{Node: "n@h", Num: 1, Serial: 2, Creation: 3}
	p2 := Pid{Node: "n@h", Num: 1, Serial: 2, Creation: 3}
	require.True(t, Equal(p1, p2))

	r1 := Reference{Node: "n@h", Creation: 1, IDs: []uint32{1, 2}}
	r2 := Reference{Node: "n@h", Creation: 1, IDs: []uint32{1, 2}}
	require.True(t, Equal(r1, r2))
	r3 := Reference{Node: "n@h", Creation: 1, IDs: []uint32{1, 3}}
	require.False(t, Equal(r1, r3))
}

func TestRenderAtomAndTuple(t *testing.T) {
	require.Equal(t, "{:ok, 42}", Render(Tuple{Atom("ok"), int64(42)}))
}

package etf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferReserveWriteAt(t *testing.T) {
	buf := NewBuffer()
	buf.AppendByte(1)
	off := buf.Reserve(4)
	buf.AppendByte(9)
	buf.WriteAt(off, []byte{0, 0, 0, 42})
	require.Equal(t, []byte{1, 0, 0, 0, 42, 9}, buf.Bytes())
}

func TestBufferReadTagDoesNotAdvance(t *testing.T) {
	buf := FromBytes([]byte{ettSmallInteger, 7})
	tag, err := buf.ReadTag()
	require.NoError(t, err)
	require.Equal(t, byte(ettSmallInteger), tag)
	require.Equal(t, 0, buf.ReadOffset())

	term, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, int64(7), term)
	require.Equal(t, 2, buf.ReadOffset())
}

func TestBufferWriteCursorEqualsLength(t *testing.T) {
	buf := NewBuffer()
	require.NoError(t, Encode(Tuple{Atom("ok"), Binary("x")}, buf))
	require.Equal(t, len(buf.Bytes()), buf.Len())
}

func TestSetReadOffsetRewinds(t *testing.T) {
	buf := NewBuffer()
	require.NoError(t, Encode(Atom("a"), buf))
	mark := buf.Len()
	require.NoError(t, Encode(Atom("b"), buf))

	buf.SetReadOffset(mark)
	term, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, Atom("b"), term)
}

package ergolink

import (
	"context"
	"testing"
	"time"

	"github.com/driftcore/ergolink/bridge"
	"github.com/driftcore/ergolink/etf"
	"github.com/stretchr/testify/require"
)

func TestDSLElixirModulePrefixesWireName(t *testing.T) {
	ft := newFakeTransport()
	conn := dial(t, ft)

	done := make(chan struct{})
	var result etf.Term
	var callErr error
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		result, callErr = ElixirModule("Kernel").Func("is_atom").CallTerms(ctx, conn, etf.Atom("foo"))
		close(done)
	}()

	frame := <-ft.toServer
	_, msg := decodeFrameT(t, frame)
	call := msg.(etf.Tuple)
	mfa := call[2].(etf.Tuple)
	require.Equal(t, etf.Atom("Elixir.Kernel"), mfa[1])
	require.Equal(t, etf.Atom("is_atom"), mfa[2])
	require.Equal(t, etf.List{etf.Atom("foo")}, mfa[3])

	ft.toClient <- encodeFrame(t,
		etf.Tuple{int64(ctrlSend), etf.Atom(""), conn.SelfPid()},
		etf.Tuple{etf.Atom("rex"), etf.Atom("true")},
	)

	<-done
	require.NoError(t, callErr)
	require.Equal(t, etf.Atom("true"), result)
}

func TestDSLPlainModuleReachesErlang(t *testing.T) {
	b := Module("erlang").Func("node")
	require.Equal(t, "erlang", b.module)
	require.Equal(t, "node", b.function)
}

func TestDSLCallDecodesReplyThroughBridge(t *testing.T) {
	ft := newFakeTransport()
	conn := dial(t, ft)

	done := make(chan struct{})
	var out bool
	var callErr error
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		callErr = Module("erlang").Func("is_atom").Call(ctx, conn, bridge.Default(), &out, "foo")
		close(done)
	}()

	<-ft.toServer
	ft.toClient <- encodeFrame(t,
		etf.Tuple{int64(ctrlSend), etf.Atom(""), conn.SelfPid()},
		etf.Tuple{etf.Atom("rex"), etf.Atom("true")},
	)

	<-done
	require.NoError(t, callErr)
	require.True(t, out)
}

func TestDSLWithoutConnectionIsMissingConnection(t *testing.T) {
	ctx := context.Background()
	_, err := Module("erlang").Func("node").CallTerms(ctx, nil)
	require.ErrorIs(t, err, ErrMissingConnection)

	var out etf.Term
	err = Module("erlang").Func("node").Call(ctx, nil, bridge.Default(), &out)
	require.ErrorIs(t, err, ErrMissingConnection)
}

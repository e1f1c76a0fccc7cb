package ergolink

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/driftcore/ergolink/bridge"
	"github.com/driftcore/ergolink/etf"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory Transport: toClient frames are what the
// "remote peer" sends us, toServer frames are what we write out. It
// skips the handshake entirely, since fakeDialer hands one back already
// "connected".
type fakeTransport struct {
	toClient chan []byte
	toServer chan []byte
	closed   chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		toClient: make(chan []byte, 256),
		toServer: make(chan []byte, 256),
		closed:   make(chan struct{}),
	}
}

func (f *fakeTransport) ReadFrame() ([]byte, error) {
	select {
	case frame, ok := <-f.toClient:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	case <-f.closed:
		return nil, io.EOF
	}
}

func (f *fakeTransport) WriteFrame(payload []byte) error {
	select {
	case f.toServer <- append([]byte(nil), payload...):
		return nil
	case <-f.closed:
		return io.ErrClosedPipe
	}
}

func (f *fakeTransport) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

type fakeDialer struct{ transport Transport }

func (d *fakeDialer) Dial(ctx context.Context, local Node, remote string) (Transport, error) {
	return d.transport, nil
}

func dial(t *testing.T, ft *fakeTransport) *Connection {
	t.Helper()
	node := &Node{Name: "client@host", Cookie: "cookie", Dialer: &fakeDialer{transport: ft}}
	conn, err := node.Connect(context.Background(), "server@host", "")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func encodeFrame(t *testing.T, terms ...etf.Term) []byte {
	t.Helper()
	buf := etf.NewBuffer()
	for _, term := range terms {
		require.NoError(t, etf.Encode(term, buf))
	}
	return buf.Bytes()
}

func decodeFrameT(t *testing.T, frame []byte) (etf.Term, etf.Term) {
	t.Helper()
	buf := etf.FromBytes(frame)
	ctrl, err := etf.Decode(buf)
	require.NoError(t, err)
	if len(buf.Remaining()) == 0 {
		return ctrl, nil
	}
	msg, err := etf.Decode(buf)
	require.NoError(t, err)
	return ctrl, msg
}

func TestSendWrapsSenderPidAndAddressesByPid(t *testing.T) {
	ft := newFakeTransport()
	conn := dial(t, ft)

	target := etf.Pid{Node: "server@host", Num: 1, Creation: 1}
	require.NoError(t, conn.Send(target, etf.Atom("hello")))

	frame := <-ft.toServer
	ctrl, msg := decodeFrameT(t, frame)
	require.Equal(t, etf.Tuple{int64(ctrlSend), etf.Atom(""), target}, ctrl)
	require.Equal(t, etf.Tuple{conn.SelfPid(), etf.Atom("hello")}, msg)
}

func TestSendByNameUsesRegSend(t *testing.T) {
	ft := newFakeTransport()
	conn := dial(t, ft)

	require.NoError(t, conn.Send("some_server", etf.Atom("hi")))

	frame := <-ft.toServer
	ctrl, _ := decodeFrameT(t, frame)
	require.Equal(t, etf.Tuple{int64(ctrlRegSend), conn.SelfPid(), etf.Atom(""), etf.Atom("some_server")}, ctrl)
}

func TestSendValueEncodesUnderPolicy(t *testing.T) {
	ft := newFakeTransport()
	conn := dial(t, ft)

	target := etf.Pid{Node: "server@host", Num: 1, Creation: 1}
	require.NoError(t, conn.SendValue(target, "payload", bridge.Policy{String: bridge.StringBinary}))

	frame := <-ft.toServer
	_, msg := decodeFrameT(t, frame)
	require.Equal(t, etf.Tuple{conn.SelfPid(), etf.Binary("payload")}, msg)
}

func TestMessagesReceivesInboundFrame(t *testing.T) {
	ft := newFakeTransport()
	conn := dial(t, ft)

	sub := conn.Messages()
	defer sub.Close()

	from := etf.Pid{Node: "server@host", Num: 7, Creation: 1}
	ft.toClient <- encodeFrame(t,
		etf.Tuple{int64(ctrlSend), etf.Atom(""), conn.SelfPid()},
		etf.Tuple{from, etf.Atom("ping")},
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	term, err := sub.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, etf.Tuple{from, etf.Atom("ping")}, term)
}

func TestMessagesAsDecodesUnderPolicy(t *testing.T) {
	ft := newFakeTransport()
	conn := dial(t, ft)

	sub := MessagesAs[string](conn, bridge.Policy{String: bridge.StringBinary})
	defer sub.Close()

	ft.toClient <- encodeFrame(t,
		etf.Tuple{int64(ctrlSend), etf.Atom(""), conn.SelfPid()},
		etf.Binary("payload"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := sub.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "payload", v)
}

func TestRPCRoundTripStandardRex(t *testing.T) {
	ft := newFakeTransport()
	conn := dial(t, ft)

	done := make(chan struct{})
	var result etf.Term
	var rpcErr error
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		result, rpcErr = conn.RPC(ctx, "erlang", "is_atom", etf.Atom("x"))
		close(done)
	}()

	frame := <-ft.toServer
	ctrl, msg := decodeFrameT(t, frame)
	require.Equal(t, etf.Tuple{int64(ctrlRegSend), conn.SelfPid(), etf.Atom(""), etf.Atom("rex")}, ctrl)
	call, ok := msg.(etf.Tuple)
	require.True(t, ok)
	require.Equal(t, etf.Atom("$gen_call"), call[0])

	ft.toClient <- encodeFrame(t,
		etf.Tuple{int64(ctrlSend), etf.Atom(""), conn.SelfPid()},
		etf.Tuple{etf.Atom("rex"), etf.Atom("true")},
	)

	<-done
	require.NoError(t, rpcErr)
	require.Equal(t, etf.Atom("true"), result)
}

func TestRPCBadRpc(t *testing.T) {
	ft := newFakeTransport()
	conn := dial(t, ft)

	done := make(chan struct{})
	var rpcErr error
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_, rpcErr = conn.RPC(ctx, "erlang", "boom", etf.Atom("x"))
		close(done)
	}()

	<-ft.toServer
	ft.toClient <- encodeFrame(t,
		etf.Tuple{int64(ctrlSend), etf.Atom(""), conn.SelfPid()},
		etf.Tuple{etf.Atom("rex"), etf.Tuple{etf.Atom("badrpc"), etf.Atom("undef")}},
	)

	<-done
	var badrpc *BadRpc
	require.ErrorAs(t, rpcErr, &badrpc)
}

func TestRPCIgnoresMismatchedCallIDThenMatches(t *testing.T) {
	ft := newFakeTransport()
	conn := dial(t, ft)

	done := make(chan struct{})
	var result etf.Term
	var rpcErr error
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		result, rpcErr = conn.RPC(ctx, "m", "f")
		close(done)
	}()

	<-ft.toServer
	// A stray reply tagged with someone else's call id is ignored...
	ft.toClient <- encodeFrame(t,
		etf.Tuple{int64(ctrlSend), etf.Atom(""), conn.SelfPid()},
		etf.Tuple{etf.Atom("rex"), int64(9999), etf.Atom("not-mine")},
	)
	// ...while the correctly-tagged reply for call id 1 completes the RPC.
	ft.toClient <- encodeFrame(t,
		etf.Tuple{int64(ctrlSend), etf.Atom(""), conn.SelfPid()},
		etf.Tuple{etf.Atom("rex"), int64(1), etf.Atom("mine")},
	)

	<-done
	require.NoError(t, rpcErr)
	require.Equal(t, etf.Atom("mine"), result)
}

func TestRPCPipelinedCallsEachGetTheirOwnReply(t *testing.T) {
	ft := newFakeTransport()
	conn := dial(t, ft)

	results := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			r, err := conn.RPC(ctx, "m", "f")
			require.NoError(t, err)
			results <- string(r.(etf.Atom))
		}()
	}

	<-ft.toServer
	<-ft.toServer

	// Reply to call 2 first, then call 1: pipelined replies may arrive
	// out of order and each caller must still get its own.
	ft.toClient <- encodeFrame(t,
		etf.Tuple{int64(ctrlSend), etf.Atom(""), conn.SelfPid()},
		etf.Tuple{etf.Atom("rex"), int64(2), etf.Atom("second")},
	)
	ft.toClient <- encodeFrame(t,
		etf.Tuple{int64(ctrlSend), etf.Atom(""), conn.SelfPid()},
		etf.Tuple{etf.Atom("rex"), int64(1), etf.Atom("first")},
	)

	got := map[string]bool{}
	got[<-results] = true
	got[<-results] = true
	require.True(t, got["first"])
	require.True(t, got["second"])
}

func TestInboundCallDispatchSendsReply(t *testing.T) {
	ft := newFakeTransport()
	conn := dial(t, ft)

	conn.RegisterCallHandler(conn.SelfPid(), func(sender etf.Pid, args etf.Term) (interface{}, error) {
		list, _ := args.(etf.List)
		return len(list), nil
	}, bridge.Default())

	caller := etf.Pid{Node: "server@host", Num: 42, Creation: 1}
	ft.toClient <- encodeFrame(t,
		etf.Tuple{int64(ctrlSend), etf.Atom(""), conn.SelfPid()},
		etf.Tuple{etf.Atom("call"), int64(5), caller, etf.List{etf.Atom("a"), etf.Atom("b")}},
	)

	frame := <-ft.toServer
	ctrl, msg := decodeFrameT(t, frame)
	require.Equal(t, etf.Tuple{int64(ctrlSend), etf.Atom(""), caller}, ctrl)
	require.Equal(t, etf.Tuple{int64(5), int64(2)}, msg)
}

func TestInboundCallHandlerErrorRepliesWithErrorTuple(t *testing.T) {
	ft := newFakeTransport()
	conn := dial(t, ft)

	conn.RegisterCallHandler(conn.SelfPid(), func(sender etf.Pid, args etf.Term) (interface{}, error) {
		return nil, errors.New("handler boom")
	}, bridge.Default())

	caller := etf.Pid{Node: "server@host", Num: 42, Creation: 1}
	ft.toClient <- encodeFrame(t,
		etf.Tuple{int64(ctrlSend), etf.Atom(""), conn.SelfPid()},
		etf.Tuple{etf.Atom("call"), int64(9), caller, etf.List{}},
	)

	frame := <-ft.toServer
	_, msg := decodeFrameT(t, frame)
	reply, ok := msg.(etf.Tuple)
	require.True(t, ok)
	require.Equal(t, int64(9), reply[0])
	errTup, ok := reply[1].(etf.Tuple)
	require.True(t, ok)
	require.Equal(t, etf.Atom("error"), errTup[0])
}

// If the subscriber stream closes before any :rex frame arrives, RPC
// reports NoResponse rather than hanging or inventing a receive error.
func TestRPCReturnsNoResponseWhenStreamCloses(t *testing.T) {
	ft := newFakeTransport()
	conn := dial(t, ft)

	done := make(chan struct{})
	var rpcErr error
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, rpcErr = conn.RPC(ctx, "m", "f")
		close(done)
	}()

	<-ft.toServer
	conn.reg.Close()

	<-done
	require.ErrorIs(t, rpcErr, ErrNoResponse)
}

func TestCloseRejectsFurtherSend(t *testing.T) {
	ft := newFakeTransport()
	conn := dial(t, ft)

	require.NoError(t, conn.Close())

	target := etf.Pid{Node: "server@host", Num: 1, Creation: 1}
	err := conn.Send(target, etf.Atom("x"))
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestTransportFailureFailsSubscribersAndClosesConnection(t *testing.T) {
	ft := newFakeTransport()
	conn := dial(t, ft)

	sub := conn.Messages()
	defer sub.Close()

	ft.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := sub.Recv(ctx)
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return conn.getState() == stateClosed
	}, time.Second, 10*time.Millisecond)
}

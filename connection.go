package ergolink

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/driftcore/ergolink/bridge"
	"github.com/driftcore/ergolink/etf"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type connState int32

const (
	stateInit connState = iota
	stateConnecting
	stateReady
	stateClosed
)

// Connection is the per-remote-node actor: all mutable state (the
// reader task, the registrar) is owned by goroutines this Connection
// starts itself, writes are serialised through writeMu, and everything
// else is either immutable after construction or reached only through
// the registrar's channel requests — no other locks are required.
type Connection struct {
	node       *Node
	remoteName string
	transport  Transport
	selfPid    etf.Pid
	sessionID  string

	state atomic.Int32

	writeMu sync.Mutex

	reg *registrar

	callSeq atomic.Uint64

	readerOnce sync.Once
	readerDone chan struct{}

	closeOnce sync.Once
	closeErr  error

	log *logrus.Entry
}

func newConnection(ctx context.Context, node *Node, remoteName, registerAs string) (*Connection, error) {
	if node.Name == "" || node.Cookie == "" {
		return nil, &Error{kind: kindInitFailed, Node: remoteName}
	}
	c := &Connection{
		node:       node,
		remoteName: remoteName,
		sessionID:  uuid.NewString(),
		readerDone: make(chan struct{}),
	}
	c.state.Store(int32(stateConnecting))
	c.log = logrus.WithFields(logrus.Fields{
		"component": "ergolink.connection",
		"remote":    remoteName,
		"session":   c.sessionID,
	})

	dialer := node.Dialer
	if dialer == nil {
		dialer = NewTCPDialer(node.Resolver)
	}
	transport, err := dialer.Dial(ctx, *node, remoteName)
	if err != nil {
		c.log.WithError(err).Warn("connect failed")
		return nil, &Error{kind: kindConnectionFailed, Node: remoteName, Err: err}
	}
	c.transport = transport
	c.reg = newRegistrar(node.Name)
	c.selfPid = c.reg.NextPid()

	if registerAs != "" {
		if ok := c.reg.RegisterName(registerAs, c.selfPid); !ok {
			transport.Close()
			c.reg.Close()
			return nil, &Error{kind: kindRegisterFailed, Node: remoteName}
		}
	}

	c.setState(stateReady)
	c.log.Info("connection ready")
	return c, nil
}

func (c *Connection) getState() connState  { return connState(c.state.Load()) }
func (c *Connection) setState(s connState) { c.state.Store(int32(s)) }

// SelfPid is the synthetic local Pid this connection presents as the
// sender of every outbound Send and the subject of every $gen_call it
// issues.
func (c *Connection) SelfPid() etf.Pid { return c.selfPid }

// Spawn allocates a fresh synthetic local Pid that inbound {:call, ...}
// frames can address via RegisterCallHandler. It starts no goroutine and
// owns no mailbox of its own — this library doesn't host a process tree
// — it is only an address a handler can be bound to.
func (c *Connection) Spawn() etf.Pid {
	return c.reg.NextPid()
}

// RegisterCallHandler binds h to pid: any inbound {:call, id, sender,
// args} frame addressed to pid invokes h, and its result (or error) is
// sent back to sender.
func (c *Connection) RegisterCallHandler(pid etf.Pid, h CallHandler, policy bridge.Policy) {
	c.reg.RegisterHandler(pid, h, policy)
	c.startReader()
}

// UnregisterCallHandler removes any handler bound to pid.
func (c *Connection) UnregisterCallHandler(pid etf.Pid) {
	c.reg.UnregisterHandler(pid)
}

// RegisterName binds name to pid in this connection's local name table,
// the same table registerAs populates for the self Pid at Connect time.
// It reports false if name is already taken.
func (c *Connection) RegisterName(name string, pid etf.Pid) bool {
	return c.reg.RegisterName(name, pid)
}

func (c *Connection) startReader() {
	c.readerOnce.Do(func() {
		go c.readLoop()
	})
}

// sendControl builds the SEND or REG_SEND control tuple addressing to,
// which must be either an etf.Pid (SEND) or a string name (REG_SEND).
func (c *Connection) sendControl(to interface{}) (etf.Term, error) {
	switch t := to.(type) {
	case etf.Pid:
		return etf.Tuple{int64(ctrlSend), etf.Atom(""), t}, nil
	case string:
		return etf.Tuple{int64(ctrlRegSend), c.selfPid, etf.Atom(""), etf.Atom(t)}, nil
	default:
		return nil, &bridge.InvalidArgument{Value: to}
	}
}

func (c *Connection) sendRaw(ctrl etf.Term, message etf.Term) error {
	if c.getState() == stateClosed {
		return &Error{kind: kindNotConnected, Node: c.remoteName}
	}
	buf := etf.NewBuffer()
	if err := etf.Encode(ctrl, buf); err != nil {
		return &Error{kind: kindSendFailed, Node: c.remoteName, Err: err}
	}
	if message != nil {
		if err := etf.Encode(message, buf); err != nil {
			return &Error{kind: kindSendFailed, Node: c.remoteName, Err: err}
		}
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.transport.WriteFrame(buf.Bytes()); err != nil {
		c.closeWithError(err)
		return &Error{kind: kindSendFailed, Node: c.remoteName, Err: err}
	}
	return nil
}

// Send delivers term to a registered name (string) or a Pid, wrapped as
// {selfPid, term} so the recipient can address a reply back to us.
func (c *Connection) Send(to interface{}, term etf.Term) error {
	if c.getState() == stateClosed {
		return &Error{kind: kindNotConnected, Node: c.remoteName}
	}
	c.startReader()
	ctrl, err := c.sendControl(to)
	if err != nil {
		return err
	}
	return c.sendRaw(ctrl, etf.Tuple{c.selfPid, term})
}

// SendValue is Send's typed counterpart: v is bridge-encoded under
// policy before being wrapped and sent.
func (c *Connection) SendValue(to interface{}, v interface{}, policy bridge.Policy) error {
	term, err := bridge.ToTerm(v, policy)
	if err != nil {
		return err
	}
	return c.Send(to, term)
}

// Subscription is one consumer of this connection's inbound frame
// stream, as returned by Messages.
type Subscription struct {
	conn *Connection
	sub  *subscriber
}

// Messages opens a subscription to every inbound frame this connection
// receives, except frames shaped as inbound calls ({:call, id, sender,
// args}), which go to a registered handler or are dropped. :rex replies
// are delivered here as well as to the RPC waiting for them. The
// subscription is bounded and drops the oldest buffered frame on
// overflow; call Close when done.
func (c *Connection) Messages() *Subscription {
	c.startReader()
	return &Subscription{conn: c, sub: c.reg.Subscribe(true)}
}

// RecvResult blocks for the next Result, or returns ctx.Err() if ctx is
// done first.
func (s *Subscription) RecvResult(ctx context.Context) (Result, error) {
	select {
	case r, ok := <-s.sub.ch:
		if !ok {
			return Result{}, ErrReceiveFailed
		}
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Recv is RecvResult with the Term/Err pair flattened into a single
// return, for callers that don't need to distinguish "the channel
// closed" from "the frame itself carried an error".
func (s *Subscription) Recv(ctx context.Context) (etf.Term, error) {
	r, err := s.RecvResult(ctx)
	if err != nil {
		return nil, err
	}
	return r.Term, r.Err
}

// Close unsubscribes; the reader task stops fanning frames to s.
func (s *Subscription) Close() {
	s.conn.reg.Unsubscribe(s.sub)
}

// MessagesAs opens a subscription whose Recv decodes each frame into T
// under policy via the bridge, the typed counterpart of Messages.
func MessagesAs[T any](c *Connection, policy bridge.Policy) *TypedSubscription[T] {
	return &TypedSubscription[T]{raw: c.Messages(), policy: policy}
}

// TypedSubscription is MessagesAs's return type.
type TypedSubscription[T any] struct {
	raw    *Subscription
	policy bridge.Policy
}

// Recv blocks for the next frame and decodes it into a T.
func (s *TypedSubscription[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	r, err := s.raw.RecvResult(ctx)
	if err != nil {
		return zero, err
	}
	if r.Err != nil {
		return zero, r.Err
	}
	var out T
	if err := bridge.DecodeTerm(r.Term, &out, s.policy); err != nil {
		return zero, err
	}
	return out, nil
}

// Close unsubscribes the underlying raw subscription.
func (s *TypedSubscription[T]) Close() { s.raw.Close() }

// Close tears the connection down: closes the transport, stops the
// reader, and releases every subscriber (their channel closes rather
// than blocking forever). Further operations on this Connection return
// NotConnected.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.setState(stateClosed)
		c.closeErr = c.transport.Close()
		c.reg.Close()
	})
	return c.closeErr
}

func (c *Connection) closeWithError(err error) {
	c.closeOnce.Do(func() {
		c.setState(stateClosed)
		c.closeErr = err
		c.transport.Close()
		c.reg.Close()
	})
}

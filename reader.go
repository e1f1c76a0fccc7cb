package ergolink

import (
	"fmt"

	"github.com/driftcore/ergolink/bridge"
	"github.com/driftcore/ergolink/etf"
)

// Control message tags this client acts on. Other control tags (link,
// monitor, exit, ...) are outside this client's scope; decodeFrame
// still decodes them as an opaque control tuple so the reader never
// chokes on one, it just won't find a target Pid for them and the frame
// is fanned out as a plain message.
const (
	ctrlSend    = 2
	ctrlRegSend = 6
)

// readLoop is the connection's single reader task, started lazily on
// the first subscription, outbound Send or RPC, or call-handler
// registration. It classifies
// every inbound frame as a tick, a malformed-frame error, an inbound
// call directed at a locally registered handler, or a plain message,
// and never blocks waiting on a slow subscriber — Broadcast's
// bounded/drop-oldest and generously-buffered-unbounded channels handle
// that.
func (c *Connection) readLoop() {
	defer close(c.readerDone)
	// A panic in the reader must not take the process down silently:
	// subscribers see it as a receive failure and the connection closes.
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("reader panic: %v", r)
			c.log.WithError(err).Error("reader task panicked")
			c.reg.Broadcast(Result{Err: &Error{kind: kindReceiveFailed, Node: c.remoteName, Err: err}})
			c.closeWithError(err)
		}
	}()
	for {
		frame, err := c.transport.ReadFrame()
		if err != nil {
			c.log.WithError(err).Warn("transport read failed, closing connection")
			c.reg.Broadcast(Result{Err: &Error{kind: kindReceiveFailed, Node: c.remoteName, Err: err}})
			c.closeWithError(err)
			return
		}
		if len(frame) == 0 {
			c.log.Trace("tick")
			continue
		}

		ctrl, message, err := decodeFrame(frame)
		if err != nil {
			c.log.WithError(err).Warn("dropping malformed frame")
			c.reg.Broadcast(Result{Err: &Error{kind: kindReceiveFailed, Node: c.remoteName, Err: err}})
			continue
		}

		if call, ok := asInboundCall(message); ok {
			if target, ok := c.targetPid(ctrl); ok {
				if reg, ok := c.reg.Lookup(target); ok {
					go c.dispatchCall(call, reg)
					continue
				}
			}
			c.log.Warn("inbound call with no registered handler, ignoring")
			continue
		}

		c.reg.Broadcast(Result{Term: message})
	}
}

// decodeFrame decodes a distribution frame's control tuple and, if
// present, its payload term. Neither carries a leading version byte: in
// distribution mode peers write terms back to back with no per-term
// 131 prefix (the version byte belongs to the standalone encode/decode
// entry points, not this wire).
func decodeFrame(frame []byte) (ctrl, message etf.Term, err error) {
	buf := etf.FromBytes(frame)
	ctrl, err = etf.Decode(buf)
	if err != nil {
		return nil, nil, err
	}
	if len(buf.Remaining()) == 0 {
		return ctrl, nil, nil
	}
	message, err = etf.Decode(buf)
	if err != nil {
		return nil, nil, err
	}
	return ctrl, message, nil
}

type inboundCall struct {
	id     int64
	sender etf.Pid
	args   etf.Term
}

// asInboundCall recognises the {:call, id, sender, args} shape this
// client's own inbound-call protocol uses; it is a convention this
// library and its peers share, not a standard OTP control message.
func asInboundCall(message etf.Term) (inboundCall, bool) {
	tup, ok := message.(etf.Tuple)
	if !ok || len(tup) != 4 {
		return inboundCall{}, false
	}
	tag, ok := tup[0].(etf.Atom)
	if !ok || tag != "call" {
		return inboundCall{}, false
	}
	id, ok := tup[1].(int64)
	if !ok {
		return inboundCall{}, false
	}
	sender, ok := tup[2].(etf.Pid)
	if !ok {
		return inboundCall{}, false
	}
	return inboundCall{id: id, sender: sender, args: tup[3]}, true
}

// targetPid extracts the addressee of a SEND or REG_SEND control tuple:
// the literal Pid for SEND, or the Pid a REG_SEND's name resolves to in
// this connection's local name table.
func (c *Connection) targetPid(ctrl etf.Term) (etf.Pid, bool) {
	tup, ok := ctrl.(etf.Tuple)
	if !ok || len(tup) == 0 {
		return etf.Pid{}, false
	}
	tag, ok := tup[0].(int64)
	if !ok {
		return etf.Pid{}, false
	}
	switch tag {
	case ctrlSend:
		if len(tup) < 3 {
			return etf.Pid{}, false
		}
		pid, ok := tup[2].(etf.Pid)
		return pid, ok
	case ctrlRegSend:
		if len(tup) < 4 {
			return etf.Pid{}, false
		}
		name, ok := tup[3].(etf.Atom)
		if !ok {
			return etf.Pid{}, false
		}
		return c.reg.ResolveName(string(name))
	default:
		return etf.Pid{}, false
	}
}

// dispatchCall runs in its own goroutine so a slow handler never stalls
// the reader task. The handler's result is bridge-encoded under its
// registration policy and SENT back to call.sender; an error becomes
// {:error, message_binary} instead.
func (c *Connection) dispatchCall(call inboundCall, reg handlerReg) {
	result, err := reg.handler(call.sender, call.args)
	var reply etf.Term
	if err != nil {
		reply = etf.Tuple{etf.Atom("error"), etf.Binary(err.Error())}
	} else if term, encErr := bridge.ToTerm(result, reg.policy); encErr != nil {
		reply = etf.Tuple{etf.Atom("error"), etf.Binary(encErr.Error())}
	} else {
		reply = term
	}
	ctrl := etf.Tuple{int64(ctrlSend), etf.Atom(""), call.sender}
	if err := c.sendRaw(ctrl, etf.Tuple{call.id, reply}); err != nil {
		c.log.WithError(err).Warn("failed to deliver inbound-call reply")
	}
}

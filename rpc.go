package ergolink

import (
	"context"
	"math/rand"

	"github.com/driftcore/ergolink/bridge"
	"github.com/driftcore/ergolink/etf"
)

// RPC performs a synchronous remote procedure call against the peer's
// :rex server: it REG_SENDs a $gen_call envelope to the registered name
// "rex" and consumes subscriber frames until one tagged :rex arrives,
// decoding {:badrpc, Reason} into a *BadRpc error.
//
// Multiple concurrent RPCs on one Connection may be pipelined: each
// call subscribes independently and filters the shared frame stream for
// its own reply, so in-flight calls may complete in any order. A
// genuine OTP :rex server replies with a plain {:rex, Reply} 2-tuple
// that carries no correlation info, so concurrent callers there fall
// back to "first :rex frame wins". Against a
// peer that understands this client's convention, the reply carries the
// call's id as a second element, {:rex, id, Reply}, and RPC filters on
// it instead.
func (c *Connection) RPC(ctx context.Context, module, function string, args ...etf.Term) (etf.Term, error) {
	if c.getState() == stateClosed {
		return nil, &Error{kind: kindNotConnected, Node: c.remoteName}
	}
	c.startReader()

	id := c.callSeq.Add(1)
	ref := c.newCallReference(id)
	callTuple := etf.Tuple{
		etf.Atom("$gen_call"),
		etf.Tuple{c.selfPid, ref},
		etf.Tuple{etf.Atom("call"), etf.Atom(module), etf.Atom(function), etf.List(args), c.selfPid},
	}
	ctrl := etf.Tuple{int64(ctrlRegSend), c.selfPid, etf.Atom(""), etf.Atom("rex")}

	sub := c.reg.Subscribe(false)
	defer c.reg.Unsubscribe(sub)

	if err := c.sendRaw(ctrl, callTuple); err != nil {
		return nil, err
	}

	for {
		select {
		case r, ok := <-sub.ch:
			if !ok {
				return nil, &Error{kind: kindNoResponse, Node: c.remoteName}
			}
			if r.Err != nil {
				return nil, r.Err
			}
			reply, matched := matchRex(r.Term, id)
			if !matched {
				continue
			}
			if reason, ok := asBadRpc(reply); ok {
				return nil, &BadRpc{Reason: reason}
			}
			return reply, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// RPCDecoded is RPC's typed counterpart: each arg is bridge-encoded
// under policy before the call, and the reply is bridge-decoded into a
// T. It's a free function, not a method, because Go methods can't carry
// their own type parameter.
func RPCDecoded[T any](ctx context.Context, c *Connection, policy bridge.Policy, module, function string, args ...interface{}) (T, error) {
	var zero T
	terms := make([]etf.Term, len(args))
	for i, a := range args {
		term, err := bridge.ToTerm(a, policy)
		if err != nil {
			return zero, err
		}
		terms[i] = term
	}
	reply, err := c.RPC(ctx, module, function, terms...)
	if err != nil {
		return zero, err
	}
	var out T
	if err := bridge.DecodeTerm(reply, &out, policy); err != nil {
		return zero, err
	}
	return out, nil
}

// newCallReference builds a Reference for this call's $gen_call
// envelope. The monotonic call id occupies the first ID slot so replies
// that echo the reference can be matched to their caller; two random
// words follow so the reference still looks like an ordinary opaque
// Erlang reference to a peer that doesn't know this convention.
func (c *Connection) newCallReference(id uint64) etf.Reference {
	return etf.Reference{
		Node:     etf.Atom(c.node.Name),
		Creation: 1,
		IDs:      []uint32{uint32(id), rand.Uint32(), rand.Uint32()},
	}
}

// matchRex recognises a :rex reply addressed to this RPC call: either
// the standard {:rex, Reply} 2-tuple (accepted unconditionally, since a
// real rex server never echoes our call id) or this client's
// {:rex, id, Reply} 3-tuple (accepted only when id matches wantID).
func matchRex(term etf.Term, wantID uint64) (etf.Term, bool) {
	tup, ok := term.(etf.Tuple)
	if !ok || len(tup) < 2 {
		return nil, false
	}
	tag, ok := tup[0].(etf.Atom)
	if !ok || tag != "rex" {
		return nil, false
	}
	switch len(tup) {
	case 2:
		return tup[1], true
	case 3:
		gotID, ok := tup[1].(int64)
		if ok && uint64(gotID) == wantID {
			return tup[2], true
		}
		return nil, false
	default:
		return nil, false
	}
}

func asBadRpc(reply etf.Term) (etf.Term, bool) {
	tup, ok := reply.(etf.Tuple)
	if !ok || len(tup) != 2 {
		return nil, false
	}
	tag, ok := tup[0].(etf.Atom)
	if !ok || tag != "badrpc" {
		return nil, false
	}
	return tup[1], true
}

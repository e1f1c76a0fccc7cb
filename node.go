// Package ergolink is a client library for the distributed-Erlang (BEAM)
// wire protocol: it connects to a running node as an ordinary peer,
// exchanges messages, and drives remote procedure calls through the
// standard :rex/rpc machinery, without hosting a process tree or
// accepting inbound connections of its own (those remain the job of a
// real Erlang/Elixir node).
package ergolink

import "context"

// Node is a local distributed-Erlang identity: a name and the shared
// cookie used to authenticate outbound connections. It is immutable
// once constructed and safe to share read-only across every Connection
// it opens.
type Node struct {
	Name   string
	Cookie string

	Dialer   Dialer
	Resolver Resolver
}

// NewNode constructs a local identity using the default TCP dialer. The
// returned Node's Resolver is an empty StaticResolver the caller must
// populate with concrete addresses before Connect; this library does
// not resolve node names via EPMD.
func NewNode(name, cookie string) *Node {
	resolver := NewStaticResolver()
	return &Node{
		Name:     name,
		Cookie:   cookie,
		Dialer:   NewTCPDialer(resolver),
		Resolver: resolver,
	}
}

// Connect dials remoteName through n.Dialer, runs the handshake, and
// returns a Connection in the Ready state. registerAs, when non-empty,
// binds this connection's self Pid to a local name so a peer's
// REG_SEND can address it — this is a local bookkeeping table the
// connection's registrar resolves against on receipt, not a remote
// global-name-server call.
func (n *Node) Connect(ctx context.Context, remoteName, registerAs string) (*Connection, error) {
	return newConnection(ctx, n, remoteName, registerAs)
}

package ergolink

import (
	"context"

	"github.com/driftcore/ergolink/bridge"
	"github.com/driftcore/ergolink/etf"
)

// Module starts an RPC DSL chain naming an Erlang module, e.g.
// Module("erlang").Func("is_atom"). Use ElixirModule for an Elixir
// module; plain names reach Erlang modules directly.
func Module(name string) ModuleRef {
	return ModuleRef{name: name}
}

// ElixirModule starts a chain naming an Elixir module by its bare name
// (e.g. ElixirModule("Keyword") resolves to the wire module
// "Elixir.Keyword").
func ElixirModule(name string) ModuleRef {
	return ModuleRef{name: "Elixir." + name}
}

// ModuleRef is the first link of the RPC DSL chain.
type ModuleRef struct {
	name string
}

// Func completes the module/function pair, returning a BoundCall ready
// to be invoked against a Connection.
func (m ModuleRef) Func(name string) *BoundCall {
	return &BoundCall{module: m.name, function: name}
}

// BoundCall is a module:function pair not yet bound to a Connection.
type BoundCall struct {
	module, function string
}

// CallTerms invokes the call verbatim: args are sent as-is and the raw
// reply Term is returned, with no bridge encoding/decoding involved.
// Returns ErrMissingConnection if conn is nil.
func (b *BoundCall) CallTerms(ctx context.Context, conn *Connection, args ...etf.Term) (etf.Term, error) {
	if conn == nil {
		return nil, ErrMissingConnection
	}
	return conn.RPC(ctx, b.module, b.function, args...)
}

// Call invokes the call through the bridge: each arg is bridge-encoded
// under policy, and the reply is bridge-decoded into out (a non-nil
// pointer). Returns ErrMissingConnection if conn is nil.
func (b *BoundCall) Call(ctx context.Context, conn *Connection, policy bridge.Policy, out interface{}, args ...interface{}) error {
	if conn == nil {
		return ErrMissingConnection
	}
	terms := make([]etf.Term, len(args))
	for i, a := range args {
		term, err := bridge.ToTerm(a, policy)
		if err != nil {
			return err
		}
		terms[i] = term
	}
	reply, err := conn.RPC(ctx, b.module, b.function, terms...)
	if err != nil {
		return err
	}
	return bridge.DecodeTerm(reply, out, policy)
}

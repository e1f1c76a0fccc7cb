package ergolink

import "github.com/driftcore/ergolink/etf"

// Result is one fanned-out inbound frame: either a decoded message Term
// or a receive-side failure (a malformed frame, or the terminal error
// that closed the connection). It is the element type of every
// Subscription.
type Result struct {
	Term etf.Term
	Err  error
}

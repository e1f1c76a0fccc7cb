package ergolink

import (
	"fmt"

	"github.com/driftcore/ergolink/etf"
)

// kind enumerates the node/connection failure modes: every operational
// error this package returns (other than a decode/encode error bubbled
// up verbatim from etf or bridge) is one of these, so
// errors.Is(err, ergolink.ErrNotConnected) works the same way
// etf.DecodingError's Kind comparison does.
type kind int

const (
	kindInitFailed kind = iota
	kindConnectionFailed
	kindRegisterFailed
	kindNotConnected
	kindSendFailed
	kindReceiveFailed
	kindNoResponse
	kindMissingConnection
)

var kindText = map[kind]string{
	kindInitFailed:        "init failed",
	kindConnectionFailed:  "connection failed",
	kindRegisterFailed:    "register failed",
	kindNotConnected:      "not connected",
	kindSendFailed:        "send failed",
	kindReceiveFailed:     "receive failed",
	kindNoResponse:        "no response",
	kindMissingConnection: "missing connection",
}

// Error is the typed error every node/connection-level operation
// returns. Use errors.Is against the Err* sentinels below to match on
// kind alone, or inspect Node/Err for detail.
type Error struct {
	kind kind
	Node string
	Err  error
}

func (e *Error) Error() string {
	msg := "ergolink: " + kindText[e.kind]
	if e.Node != "" {
		msg += " (" + e.Node + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind alone, the same convention
// etf.DecodingError uses.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == other.kind
}

// Sentinel values for errors.Is comparisons against a specific kind.
var (
	ErrInitFailed        = &Error{kind: kindInitFailed}
	ErrConnectionFailed  = &Error{kind: kindConnectionFailed}
	ErrRegisterFailed    = &Error{kind: kindRegisterFailed}
	ErrNotConnected      = &Error{kind: kindNotConnected}
	ErrSendFailed        = &Error{kind: kindSendFailed}
	ErrReceiveFailed     = &Error{kind: kindReceiveFailed}
	ErrNoResponse        = &Error{kind: kindNoResponse}
	ErrMissingConnection = &Error{kind: kindMissingConnection}
)

// BadRpc carries the {:badrpc, Reason} payload a remote :rex server
// returned instead of a normal reply.
type BadRpc struct {
	Reason etf.Term
}

func (e *BadRpc) Error() string {
	return fmt.Sprintf("ergolink: badrpc: %s", etf.Render(e.Reason))
}

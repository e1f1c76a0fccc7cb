package bridge

import "fmt"

// TypeMismatch reports that a decode target's Go shape could not
// accept the ETF tag actually present on the wire.
type TypeMismatch struct {
	Expected string
	Actual   string
}

func (e *TypeMismatch) Error() string {
	return fmt.Sprintf("bridge: type mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// KeyNotFound reports a required keyed field missing from the wire
// term. Optional (pointer) fields do not produce this error; they
// decode to nil instead.
type KeyNotFound struct {
	Key string
}

func (e *KeyNotFound) Error() string {
	return fmt.Sprintf("bridge: key not found: %s", e.Key)
}

// InvalidArgument reports a Go value shape the encoder has no mapping
// for (channels, functions, unsafe pointers, and similar).
type InvalidArgument struct {
	Value interface{}
}

func (e *InvalidArgument) Error() string {
	return fmt.Sprintf("bridge: invalid argument: %#v", e.Value)
}

// DataCorrupted wraps a lower-level etf decode failure (a failed
// skip_term or length read) encountered while indexing a keyed term.
type DataCorrupted struct {
	Err error
}

func (e *DataCorrupted) Error() string {
	return fmt.Sprintf("bridge: data corrupted: %s", e.Err)
}

func (e *DataCorrupted) Unwrap() error { return e.Err }

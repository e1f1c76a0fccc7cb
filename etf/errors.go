package etf

import "fmt"

// EncodingError reports that a Term could not be represented on the
// wire: an oversize atom or big integer, a Bitstring whose final byte is
// only partly significant, or a value of a type with no ETF mapping.
type EncodingError struct {
	msg string
}

func (e *EncodingError) Error() string { return "etf: encoding error: " + e.msg }

func newEncodingError(format string, args ...interface{}) error {
	return &EncodingError{msg: fmt.Sprintf(format, args...)}
}

// DecodingErrorKind enumerates the decode failure modes.
type DecodingErrorKind int

const (
	// BadTerm covers malformed length/tag bytes.
	BadTerm DecodingErrorKind = iota
	// UnknownTagKind covers a leading tag byte outside the dispatch table.
	UnknownTagKind
	// MissingListEndKind covers a List whose tail is not NIL.
	MissingListEndKind
	// UnsupportedBitOffsetKind covers a BIT_BINARY whose trailing bit
	// count leaves the final byte only partially significant.
	UnsupportedBitOffsetKind
)

// DecodingError is returned for every malformed-wire condition. Use
// errors.As to recover Kind/Tag/Bits.
type DecodingError struct {
	Kind DecodingErrorKind
	Tag  byte  // set when Kind == UnknownTagKind
	Bits uint8 // set when Kind == UnsupportedBitOffsetKind
	msg  string
}

func (e *DecodingError) Error() string {
	switch e.Kind {
	case UnknownTagKind:
		return fmt.Sprintf("etf: decoding error: unknown tag %d", e.Tag)
	case MissingListEndKind:
		return "etf: decoding error: list missing nil tail"
	case UnsupportedBitOffsetKind:
		return fmt.Sprintf("etf: decoding error: unsupported bit offset (%d significant bits)", e.Bits)
	default:
		if e.msg != "" {
			return "etf: decoding error: " + e.msg
		}
		return "etf: decoding error: malformed term"
	}
}

// Is lets errors.Is(err, etf.ErrBadTerm) match on Kind alone.
func (e *DecodingError) Is(target error) bool {
	other, ok := target.(*DecodingError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func errBadTerm(format string, args ...interface{}) error {
	return &DecodingError{Kind: BadTerm, msg: fmt.Sprintf(format, args...)}
}

func errUnknownTag(tag byte) error {
	return &DecodingError{Kind: UnknownTagKind, Tag: tag}
}

func errMissingListEnd() error {
	return &DecodingError{Kind: MissingListEndKind}
}

func errUnsupportedBitOffset(bits uint8) error {
	return &DecodingError{Kind: UnsupportedBitOffsetKind, Bits: bits}
}

// Sentinel values for errors.Is comparisons against a specific kind.
var (
	ErrBadTerm              = &DecodingError{Kind: BadTerm}
	ErrUnknownTag           = &DecodingError{Kind: UnknownTagKind}
	ErrMissingListEnd       = &DecodingError{Kind: MissingListEndKind}
	ErrUnsupportedBitOffset = &DecodingError{Kind: UnsupportedBitOffsetKind}
)

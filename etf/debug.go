package etf

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Render formats t using the target ecosystem's conventional term
// syntax: tuples in {...}, lists in [...], atoms prefixed ':', and
// binaries as a quoted UTF-8 string when valid, else a hex debug form.
// This is a debugging aid only; it is not a stable wire or parse
// format.
func Render(t Term) string {
	var b strings.Builder
	render(&b, t)
	return b.String()
}

func render(b *strings.Builder, t Term) {
	switch v := t.(type) {
	case nil:
		b.WriteString("nil")
	case int64:
		b.WriteString(strconv.FormatInt(v, 10))
	case int:
		b.WriteString(strconv.Itoa(v))
	case *big.Int:
		b.WriteString(v.String())
	case float64:
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	case Atom:
		b.WriteByte(':')
		b.WriteString(string(v))
	case String:
		b.WriteByte('\'')
		b.WriteString(string(v))
		b.WriteByte('\'')
	case Binary:
		if utf8.Valid(v) {
			b.WriteByte('"')
			b.WriteString(string(v))
			b.WriteByte('"')
		} else {
			fmt.Fprintf(b, "<<%x>>", []byte(v))
		}
	case Bitstring:
		fmt.Fprintf(b, "<<%x:%d>>", v.Data, normalizeBits(v))
	case Tuple:
		b.WriteByte('{')
		for i, el := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			render(b, el)
		}
		b.WriteByte('}')
	case List:
		b.WriteByte('[')
		for i, el := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			render(b, el)
		}
		b.WriteByte(']')
	case Map:
		b.WriteString("%{")
		for i, p := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			render(b, p.Key)
			b.WriteString(" => ")
			render(b, p.Value)
		}
		b.WriteByte('}')
	case Pid:
		fmt.Fprintf(b, "#Pid<%s.%d.%d.%d>", v.Node, v.Creation, v.Num, v.Serial)
	case Port:
		fmt.Fprintf(b, "#Port<%s.%d.%d>", v.Node, v.Creation, v.ID)
	case Reference:
		fmt.Fprintf(b, "#Reference<%s.%d.%v>", v.Node, v.Creation, v.IDs)
	case Function:
		fmt.Fprintf(b, "#Function<%s.%d>", v.Module, v.Index)
	case Export:
		fmt.Fprintf(b, "&%s.%s/%d", v.Module, v.Function, v.Arity)
	default:
		fmt.Fprintf(b, "%v", v)
	}
}

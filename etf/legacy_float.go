package etf

import "fmt"

// parseDecimalFloat decodes the deprecated FLOAT_EXT ASCII form
// ("%.20e\x00"-style, 31 bytes) into *out. Modern encoders never emit
// this tag (NEW_FLOAT_EXT is always used), but peers running very old
// runtimes may still send it.
func parseDecimalFloat(b []byte, out *float64) (int, error) {
	s := string(b)
	for i, c := range s {
		if c == 0 {
			s = s[:i]
			break
		}
	}
	n, err := fmt.Sscanf(s, "%g", out)
	if err != nil {
		return n, errBadTerm("malformed legacy float: %v", err)
	}
	return n, nil
}

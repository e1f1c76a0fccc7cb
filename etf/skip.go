package etf

import "encoding/binary"

// skipOne advances over exactly one well-formed term starting at data[0]
// and returns the number of bytes consumed. Unlike decodeOne it never
// materialises List/Tuple/Map/Pid/... values — it only does arithmetic
// over the byte slice, which is what lets Buffer.SkipTerm run in
// O(size-of-term) with no heap allocation. It assumes well-formed input;
// malformed lengths still surface as errors, but a non-canonical (e.g.
// improper) list tail is not re-validated here (Decode is the strict
// path for that).
func skipOne(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, errBadTerm("unexpected end of buffer")
	}
	tag := data[0]
	rest := data[1:]
	consumed := 1

	step := func(n int) error {
		if len(rest) < n {
			return errBadTerm("truncated term")
		}
		rest = rest[n:]
		consumed += n
		return nil
	}
	skipChild := func() error {
		n, err := skipOne(rest)
		if err != nil {
			return err
		}
		rest = rest[n:]
		consumed += n
		return nil
	}

	switch tag {
	case ettAtomUTF8, ettAtom, ettString:
		if len(rest) < 2 {
			return 0, errBadTerm("truncated length")
		}
		n := int(binary.BigEndian.Uint16(rest))
		if err := step(2); err != nil {
			return 0, err
		}
		if err := step(n); err != nil {
			return 0, err
		}

	case ettSmallAtomUTF8, ettSmallAtom:
		if len(rest) == 0 {
			return 0, errBadTerm("truncated length")
		}
		n := int(rest[0])
		if err := step(1); err != nil {
			return 0, err
		}
		if err := step(n); err != nil {
			return 0, err
		}

	case ettNewFloat:
		if err := step(8); err != nil {
			return 0, err
		}

	case ettFloat:
		if err := step(31); err != nil {
			return 0, err
		}

	case ettSmallInteger:
		if err := step(1); err != nil {
			return 0, err
		}

	case ettInteger:
		if err := step(4); err != nil {
			return 0, err
		}

	case ettSmallBig:
		if len(rest) < 2 {
			return 0, errBadTerm("truncated small big")
		}
		n := int(rest[0])
		if err := step(2 + n); err != nil {
			return 0, err
		}

	case ettLargeBig:
		if len(rest) < 5 {
			return 0, errBadTerm("truncated large big")
		}
		n := int(binary.BigEndian.Uint32(rest))
		if err := step(5 + n); err != nil {
			return 0, err
		}

	case ettNil:
		// no payload

	case ettList:
		if len(rest) < 4 {
			return 0, errBadTerm("truncated list")
		}
		n := int(binary.BigEndian.Uint32(rest))
		if err := step(4); err != nil {
			return 0, err
		}
		for i := 0; i < n+1; i++ {
			if err := skipChild(); err != nil {
				return 0, err
			}
		}

	case ettSmallTuple:
		if len(rest) == 0 {
			return 0, errBadTerm("truncated tuple")
		}
		n := int(rest[0])
		if err := step(1); err != nil {
			return 0, err
		}
		for i := 0; i < n; i++ {
			if err := skipChild(); err != nil {
				return 0, err
			}
		}

	case ettLargeTuple:
		if len(rest) < 4 {
			return 0, errBadTerm("truncated tuple")
		}
		n := int(binary.BigEndian.Uint32(rest))
		if err := step(4); err != nil {
			return 0, err
		}
		for i := 0; i < n; i++ {
			if err := skipChild(); err != nil {
				return 0, err
			}
		}

	case ettMap:
		if len(rest) < 4 {
			return 0, errBadTerm("truncated map")
		}
		n := int(binary.BigEndian.Uint32(rest))
		if err := step(4); err != nil {
			return 0, err
		}
		for i := 0; i < n*2; i++ {
			if err := skipChild(); err != nil {
				return 0, err
			}
		}

	case ettBinary:
		if len(rest) < 4 {
			return 0, errBadTerm("truncated binary")
		}
		n := int(binary.BigEndian.Uint32(rest))
		if err := step(4 + n); err != nil {
			return 0, err
		}

	case ettBitBinary:
		if len(rest) < 5 {
			return 0, errBadTerm("truncated bitstring")
		}
		n := int(binary.BigEndian.Uint32(rest))
		if err := step(5 + n); err != nil {
			return 0, err
		}

	case ettPid, ettNewPid:
		if err := skipChild(); err != nil { // Node atom
			return 0, err
		}
		size := 9
		if tag == ettNewPid {
			size = 12
		}
		if err := step(size); err != nil {
			return 0, err
		}

	case ettPort, ettNewPort:
		if err := skipChild(); err != nil {
			return 0, err
		}
		size := 5
		if tag == ettNewPort {
			size = 8
		}
		if err := step(size); err != nil {
			return 0, err
		}

	case ettReference:
		if err := skipChild(); err != nil {
			return 0, err
		}
		if err := step(5); err != nil {
			return 0, err
		}

	case ettNewRef, ettNewerRef:
		if len(rest) < 2 {
			return 0, errBadTerm("truncated reference")
		}
		idCount := int(binary.BigEndian.Uint16(rest))
		if err := step(2); err != nil {
			return 0, err
		}
		if err := skipChild(); err != nil {
			return 0, err
		}
		creationSize := 1
		if tag == ettNewerRef {
			creationSize = 4
		}
		if err := step(creationSize + idCount*4); err != nil {
			return 0, err
		}

	case ettNewFun:
		if len(rest) < 29 {
			return 0, errBadTerm("truncated fun")
		}
		numFree := int(binary.BigEndian.Uint32(rest[25:29]))
		if err := step(29); err != nil {
			return 0, err
		}
		for i := 0; i < 4+numFree; i++ { // module, oldindex, olduniq, pid, freevars...
			if err := skipChild(); err != nil {
				return 0, err
			}
		}

	case ettFun:
		if len(rest) < 4 {
			return 0, errBadTerm("truncated fun")
		}
		numFree := int(binary.BigEndian.Uint32(rest))
		if err := step(4); err != nil {
			return 0, err
		}
		for i := 0; i < 4+numFree; i++ {
			if err := skipChild(); err != nil {
				return 0, err
			}
		}

	case ettExport:
		for i := 0; i < 3; i++ {
			if err := skipChild(); err != nil {
				return 0, err
			}
		}

	default:
		return 0, errUnknownTag(tag)
	}

	return consumed, nil
}

package etf

import (
	"encoding/binary"
	"math"
)

func putUint64(b []byte, v uint64)     { binary.BigEndian.PutUint64(b, v) }
func putUint32(b []byte, v uint32)     { binary.BigEndian.PutUint32(b, v) }
func mathFloat64bits(v float64) uint64 { return math.Float64bits(v) }

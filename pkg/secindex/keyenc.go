package secindex

import (
	"encoding/binary"
	"math"
)

// Type tags ensure a column that holds mixed value kinds still sorts with
// a stable total order: null < bool < int/double (numeric) < string.
const (
	tagNull byte = iota
	tagBoolFalse
	tagBoolTrue
	tagNumber
	tagString
)

// encodeSortable renders v into a byte slice whose lexicographic order
// matches v's semantic order against any other value this function can
// produce (spec §4.2 "Key encoding").
func encodeSortable(v interface{}) []byte {
	switch x := v.(type) {
	case nil:
		return []byte{tagNull}
	case bool:
		if x {
			return []byte{tagBoolTrue}
		}
		return []byte{tagBoolFalse}
	case string:
		// Strings are stored with a terminating 0x00 byte so that "ab" sorts
		// below "abc" (a bare prefix would otherwise tie with "ab\x00..." at
		// the same length and compare incorrectly against continuations).
		out := make([]byte, 0, len(x)+2)
		out = append(out, tagString)
		out = append(out, x...)
		out = append(out, 0x00)
		return out
	case int:
		return encodeNumber(float64(x))
	case int64:
		return encodeNumber(float64(x))
	case int32:
		return encodeNumber(float64(x))
	case float64:
		return encodeNumber(x)
	case float32:
		return encodeNumber(float64(x))
	default:
		return []byte{tagNull}
	}
}

// encodeNumber maps a float64 to bytes whose unsigned big-endian order
// equals the float's numeric order: the standard IEEE-754-to-sortable
// mapping is to flip the sign bit for positive numbers and flip every bit
// for negative numbers.
func encodeNumber(f float64) []byte {
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	out := make([]byte, 9)
	out[0] = tagNumber
	binary.BigEndian.PutUint64(out[1:], bits)
	return out
}

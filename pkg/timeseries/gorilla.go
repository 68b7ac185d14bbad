package timeseries

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"math/bits"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
)

// gorillaSample is one decoded (timestamp, value) pair.
type gorillaSample struct {
	TS    int64
	Value float64
}

// encodeGorilla implements the spec §4.4 Gorilla encoding contract,
// byte-aligned at point boundaries (rather than classic Gorilla's
// cross-point bit-packing) so a chunk can be scanned point-by-point
// without a bit cursor:
//
//	first point:       zigzag-varint timestamp, raw 8-byte IEEE-754 value
//	subsequent ts:      zigzag-varint delta-of-delta
//	subsequent value:   1 control byte (0 = same as previous, 1 = encoded
//	                    tail), then for an encoded tail: 1 byte
//	                    leading-zero count, 1 byte significant-bit count
//	                    (0 meaning 64), then ceil(significantBits/8)
//	                    bytes holding the significant window, big-endian.
func encodeGorilla(samples []gorillaSample) []byte {
	var buf bytes.Buffer
	if len(samples) == 0 {
		return buf.Bytes()
	}

	var tsBuf [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tsBuf[:], samples[0].TS)
	buf.Write(tsBuf[:n])
	var vbuf [8]byte
	binary.BigEndian.PutUint64(vbuf[:], math.Float64bits(samples[0].Value))
	buf.Write(vbuf[:])

	prevTS := samples[0].TS
	prevDelta := int64(0)
	prevBits := math.Float64bits(samples[0].Value)

	for i := 1; i < len(samples); i++ {
		delta := samples[i].TS - prevTS
		dod := delta - prevDelta
		n := binary.PutVarint(tsBuf[:], dod)
		buf.Write(tsBuf[:n])
		prevDelta = delta
		prevTS = samples[i].TS

		curBits := math.Float64bits(samples[i].Value)
		xor := curBits ^ prevBits
		if xor == 0 {
			buf.WriteByte(0)
		} else {
			lead := bits.LeadingZeros64(xor)
			trail := bits.TrailingZeros64(xor)
			sig := 64 - lead - trail
			sigEnc := sig
			if sig == 64 {
				sigEnc = 0
			}
			buf.WriteByte(1)
			buf.WriteByte(byte(lead))
			buf.WriteByte(byte(sigEnc))
			window := xor >> uint(trail)
			nbytes := (sig + 7) / 8
			for b := nbytes - 1; b >= 0; b-- {
				buf.WriteByte(byte(window >> uint(8*b)))
			}
		}
		prevBits = curBits
	}
	return buf.Bytes()
}

// decodeGorilla is the exact inverse of encodeGorilla, stopping cleanly
// at EOF once count samples have been read.
func decodeGorilla(data []byte, count int) ([]gorillaSample, error) {
	if count == 0 {
		return nil, nil
	}
	r := bytes.NewReader(data)
	out := make([]gorillaSample, 0, count)

	firstTS, err := binary.ReadVarint(r)
	if err != nil {
		return nil, kverrs.Internal.New("gorilla chunk: truncated first timestamp")
	}
	var vbuf [8]byte
	if _, err := io.ReadFull(r, vbuf[:]); err != nil {
		return nil, kverrs.Internal.New("gorilla chunk: truncated first value")
	}
	prevBits := binary.BigEndian.Uint64(vbuf[:])
	out = append(out, gorillaSample{TS: firstTS, Value: math.Float64frombits(prevBits)})

	prevTS := firstTS
	prevDelta := int64(0)

	for i := 1; i < count; i++ {
		dod, err := binary.ReadVarint(r)
		if err != nil {
			return nil, kverrs.Internal.New("gorilla chunk: truncated delta at point %d", i)
		}
		delta := prevDelta + dod
		ts := prevTS + delta
		prevDelta = delta
		prevTS = ts

		ctrl, err := r.ReadByte()
		if err != nil {
			return nil, kverrs.Internal.New("gorilla chunk: truncated control byte at point %d", i)
		}
		var curBits uint64
		if ctrl == 0 {
			curBits = prevBits
		} else {
			lead, err := r.ReadByte()
			if err != nil {
				return nil, kverrs.Internal.New("gorilla chunk: truncated leading-zero count at point %d", i)
			}
			sigEnc, err := r.ReadByte()
			if err != nil {
				return nil, kverrs.Internal.New("gorilla chunk: truncated significant-bit count at point %d", i)
			}
			sig := int(sigEnc)
			if sig == 0 {
				sig = 64
			}
			nbytes := (sig + 7) / 8
			var window uint64
			for b := 0; b < nbytes; b++ {
				by, err := r.ReadByte()
				if err != nil {
					return nil, kverrs.Internal.New("gorilla chunk: truncated window byte at point %d", i)
				}
				window = window<<8 | uint64(by)
			}
			trail := 64 - int(lead) - sig
			xor := window << uint(trail)
			curBits = prevBits ^ xor
		}
		out = append(out, gorillaSample{TS: ts, Value: math.Float64frombits(curBits)})
		prevBits = curBits
	}
	return out, nil
}

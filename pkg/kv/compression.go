package kv

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
)

var (
	sharedZstdEncoder, _ = zstd.NewWriter(nil)
	sharedZstdDecoder, _ = zstd.NewReader(nil)
)

// codec tags, stored as the first byte of every on-disk value so decode
// doesn't need to know which Compression the writer used — this matters
// once Compact rewrites entries with CompressionBottommost while older
// entries are still CompressionDefault.
const (
	tagNone byte = iota
	tagLZ4
	tagLZ4Raw // lz4 deemed the input incompressible; payload is verbatim
	tagZstd
	tagSnappy
	tagZlib
)

func tagFor(c Compression) byte {
	switch c {
	case CompressionLZ4:
		return tagLZ4
	case CompressionZstd:
		return tagZstd
	case CompressionSnappy:
		return tagSnappy
	case CompressionZlib:
		return tagZlib
	default:
		return tagNone
	}
}

// compress encodes data with the given codec, prefixing the result with a
// one-byte tag identifying the codec used so decompress is self-describing.
func compress(data []byte, c Compression) ([]byte, error) {
	tag := tagFor(c)
	switch tag {
	case tagNone:
		return append([]byte{tagNone}, data...), nil
	case tagLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		var table lz4.Compressor
		n, err := table.CompressBlock(data, buf)
		if err != nil {
			return nil, kverrs.Internal.Wrap(err)
		}
		if n == 0 {
			// incompressible; lz4 signals this by writing nothing
			return append([]byte{tagLZ4Raw}, data...), nil
		}
		header := make([]byte, binary.MaxVarintLen64)
		hn := binary.PutUvarint(header, uint64(len(data)))
		out := append([]byte{tagLZ4}, header[:hn]...)
		return append(out, buf[:n]...), nil
	case tagZstd:
		return append([]byte{tagZstd}, sharedZstdEncoder.EncodeAll(data, nil)...), nil
	case tagSnappy:
		return append([]byte{tagSnappy}, snappy.Encode(nil, data)...), nil
	case tagZlib:
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, kverrs.Internal.Wrap(err)
		}
		if err := w.Close(); err != nil {
			return nil, kverrs.Internal.Wrap(err)
		}
		return append([]byte{tagZlib}, buf.Bytes()...), nil
	default:
		return append([]byte{tagNone}, data...), nil
	}
}

// decompress is the exact inverse of compress, dispatching on the tag
// byte compress wrote rather than on caller-supplied configuration.
func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	tag, payload := data[0], data[1:]
	switch tag {
	case tagNone:
		return payload, nil
	case tagLZ4Raw:
		return payload, nil
	case tagLZ4:
		origLen, hn := binary.Uvarint(payload)
		if hn <= 0 {
			return nil, kverrs.Internal.New("corrupt lz4 frame header")
		}
		body := payload[hn:]
		dst := make([]byte, origLen)
		n, err := lz4.UncompressBlock(body, dst)
		if err != nil {
			return nil, kverrs.Internal.Wrap(err)
		}
		return dst[:n], nil
	case tagZstd:
		out, err := sharedZstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, kverrs.Internal.Wrap(err)
		}
		return out, nil
	case tagSnappy:
		return snappy.Decode(nil, payload)
	case tagZlib:
		r, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, kverrs.Internal.Wrap(err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, kverrs.Internal.Wrap(err)
		}
		return out, nil
	default:
		return nil, kverrs.Internal.New("unknown value codec tag")
	}
}

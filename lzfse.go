// The lzfse package implements the LZFSE compression format:
// LZ77-style matching followed by finite state entropy coding.
//
// A compressed stream is a sequence of blocks, each introduced by a
// 4-byte magic number, ending with an end-of-stream marker. Blocks
// come in four flavors: uncompressed, LZVN (a compact byte-oriented
// encoding used for small inputs), and two entropy-coded forms, of
// which only the second (with compressed weight tables) is produced
// by this encoder. The decoder accepts all four.
package lzfse

import (
	"errors"
	"fmt"
	"sync"
)

// Block magic numbers, little-endian: "bvx-", "bvx1", "bvx2", "bvxn",
// and "bvx$" for end of stream.
const (
	magicRaw = 0x2d787662
	magicV1  = 0x31787662
	magicV2  = 0x32787662
	magicVN  = 0x6e787662
	magicEOS = 0x24787662
)

var (
	// ErrCorrupt means the input is not valid LZFSE data.
	ErrCorrupt = errors.New("lzfse: corrupt input")

	// ErrTruncated means the input ends in the middle of a stream.
	ErrTruncated = errors.New("lzfse: truncated input")
)

// Per-block limits for entropy-coded blocks, and the limits on the
// fields of a single (literal count, match length, distance) triple.
const (
	maxLiteralsPerBlock = 40000
	maxLMDsPerBlock     = 10000

	maxLiteralRun    = 315    // largest L value
	maxMatchLen      = 2359   // largest M value
	maxMatchDistance = 262139 // largest D value
)

// Encoder cutoffs: inputs up to rawCutoff bytes are stored
// uncompressed, inputs up to vnCutoff bytes use LZVN encoding, and
// larger inputs use entropy-coded blocks.
const (
	rawCutoff = 20
	vnCutoff  = 4096
)

// MaxEncodedLen returns the maximum length of the result of encoding
// srcLen bytes: in the worst case the data is stored uncompressed,
// with an 8-byte block header and the 4-byte end-of-stream marker.
func MaxEncodedLen(srcLen int) int {
	return srcLen + 12
}

// Encode returns the encoded form of src. The returned slice may be a
// sub-slice of dst if dst was large enough to hold the entire encoded
// result.
func Encode(dst, src []byte) []byte {
	if n := MaxEncodedLen(len(src)); cap(dst) < n {
		dst = make([]byte, 0, n)
	} else {
		dst = dst[:0]
	}

	switch {
	case len(src) == 0:
		return appendUint32(dst, magicEOS)
	case len(src) <= rawCutoff:
		dst = appendRawBlock(dst, src)
		return appendUint32(dst, magicEOS)
	}

	e := encoderPool.Get().(*encoder)
	defer func() {
		e.reset()
		encoderPool.Put(e)
	}()

	var out []byte
	if len(src) <= vnCutoff {
		matches := e.finder.findMatches(e.matches[:0], src)
		e.matches = matches[:0]
		out = appendVNBlock(e.buf[:0], src, matches)
	} else {
		out = e.buf[:0]
		for off := 0; off < len(src); off += writerBlockSize {
			end := off + writerBlockSize
			if end > len(src) {
				end = len(src)
			}
			chunk := src[off:end]
			matches := e.finder.findMatches(e.matches[:0], chunk)
			e.matches = matches[:0]
			out = e.fse.encode(out, chunk, matches)
		}
		out = e.fse.finish(out)
	}
	out = appendUint32(out, magicEOS)
	e.buf = out[:0]

	if len(out) >= len(src)+12 {
		dst = appendRawBlock(dst, src)
		return appendUint32(dst, magicEOS)
	}
	return append(dst, out...)
}

// Decode returns the decoded form of src. The returned slice may be a
// sub-slice of dst if dst was large enough to hold the entire decoded
// result.
func Decode(dst, src []byte) ([]byte, error) {
	w := byteWriter{buf: dst[:0]}
	pos := 0

	for {
		if len(src)-pos < 4 {
			return nil, ErrTruncated
		}
		magic := load32(src, pos)

		switch magic {
		case magicEOS:
			pos += 4
			if pos != len(src) {
				return nil, fmt.Errorf("%w: %d trailing bytes after end of stream", ErrCorrupt, len(src)-pos)
			}
			return w.buf, nil

		case magicRaw:
			if len(src)-pos < 8 {
				return nil, ErrTruncated
			}
			n := int(load32(src, pos+4))
			pos += 8
			if n < 0 || len(src)-pos < n {
				return nil, ErrTruncated
			}
			w.writeLiterals(src[pos : pos+n])
			pos += n

		case magicVN:
			if len(src)-pos < 12 {
				return nil, ErrTruncated
			}
			var vn vnDecoder
			vn.init(load32(src, pos+4), load32(src, pos+8))
			pos += 12
			if uint32(len(src)-pos) < vn.nPayload {
				return nil, ErrTruncated
			}
			payload := src[pos : pos+int(vn.nPayload)]
			pos += int(vn.nPayload)
			consumed, _, done, err := vn.decode(&w, payload, maxInt)
			if err != nil {
				return nil, err
			}
			if !done || consumed != len(payload) {
				return nil, ErrCorrupt
			}

		case magicV1, magicV2:
			d := fseDecoderPool.Get().(*fseBlockDecoder)
			n, err := d.decodeBlock(&w, src[pos:], magic)
			fseDecoderPool.Put(d)
			if err != nil {
				return nil, err
			}
			pos += n

		default:
			return nil, fmt.Errorf("%w: bad block magic %#08x", ErrCorrupt, magic)
		}
	}
}

const maxInt = int(^uint(0) >> 1)

// An encoder bundles the scratch state needed to compress one stream.
type encoder struct {
	finder  matchFinder
	fse     fseEncoder
	matches []match
	buf     []byte
}

func (e *encoder) reset() {
	e.finder.reset()
	e.fse.reset()
}

var encoderPool = sync.Pool{
	New: func() interface{} { return new(encoder) },
}

var fseDecoderPool = sync.Pool{
	New: func() interface{} { return new(fseBlockDecoder) },
}

// A byteWriter collects decoded output in a flat buffer.
type byteWriter struct {
	buf []byte
}

func (w *byteWriter) writeLiterals(p []byte) {
	w.buf = append(w.buf, p...)
}

// copyMatch appends m bytes copied from d bytes back in the output.
// The source and destination may overlap.
func (w *byteWriter) copyMatch(d, m int) error {
	if d <= 0 || d > len(w.buf) {
		return fmt.Errorf("%w: match distance %d with %d bytes of history", ErrCorrupt, d, len(w.buf))
	}
	for m > d {
		w.buf = append(w.buf, w.buf[len(w.buf)-d:]...)
		m -= d
	}
	p := len(w.buf) - d
	w.buf = append(w.buf, w.buf[p:p+m]...)
	return nil
}

func appendRawBlock(dst, src []byte) []byte {
	dst = appendUint32(dst, magicRaw)
	dst = appendUint32(dst, uint32(len(src)))
	return append(dst, src...)
}

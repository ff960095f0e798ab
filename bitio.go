package lzfse

import "encoding/binary"

func load32(b []byte, i int) uint32 {
	return binary.LittleEndian.Uint32(b[i:])
}

func load64(b []byte, i int) uint64 {
	return binary.LittleEndian.Uint64(b[i:])
}

func load16(b []byte, i int) uint16 {
	return binary.LittleEndian.Uint16(b[i:])
}

func store32(b []byte, i int, v uint32) {
	binary.LittleEndian.PutUint32(b[i:], v)
}

func appendUint32(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendUint64(dst []byte, v uint64) []byte {
	dst = appendUint32(dst, uint32(v))
	return appendUint32(dst, uint32(v>>32))
}

// A bitWriter accumulates bits least-significant first and writes them
// out as little-endian bytes. Callers may push at most 64 bits between
// flushes, and pushed values must fit in the stated width.
type bitWriter struct {
	out []byte
	acc uint64
	n   uint
}

func (w *bitWriter) push(v uint64, n uint) {
	w.acc |= v << w.n
	w.n += n
}

func (w *bitWriter) flush() {
	for w.n >= 8 {
		w.out = append(w.out, byte(w.acc))
		w.acc >>= 8
		w.n -= 8
	}
}

// finish flushes any remaining bits, padding the final byte with
// zeros, and returns the number of padding bits (0–7).
func (w *bitWriter) finish() int {
	w.flush()
	if w.n == 0 {
		return 0
	}
	w.out = append(w.out, byte(w.acc))
	pad := 8 - int(w.n)
	w.acc = 0
	w.n = 0
	return pad
}

// A bitReader consumes a bitWriter's output in reverse: it starts at
// the end of the buffer and moves toward the start, returning bits in
// the opposite order from that in which they were pushed.
//
// The buffer must include at least 8 bytes of lead-in before the
// payload proper (buf[:8]); the reader may load those bytes into its
// accumulator but a stream that actually consumes them is corrupt,
// which finish detects.
type bitReader struct {
	buf []byte
	pos int // index of the next byte to load, moving backward
	acc uint64
	n   uint
}

// init positions the reader at the end of buf. pad is the number of
// padding bits in the final byte, as returned by bitWriter.finish.
func (b *bitReader) init(buf []byte, pad int) error {
	b.buf = buf
	if pad == 0 {
		b.pos = len(buf) - 7
		b.acc = load64(buf, b.pos-1) >> 8
		b.n = 56
		return nil
	}
	b.pos = len(buf) - 8
	b.acc = load64(buf, b.pos)
	b.n = uint(64 - pad)
	if b.acc>>b.n != 0 {
		return ErrCorrupt
	}
	return nil
}

// fill tops the accumulator up to at least 57 bits. Past the start of
// the buffer it feeds zeros; only a corrupt stream consumes that far,
// and finish rejects it.
func (b *bitReader) fill() {
	for b.n <= 56 {
		b.pos--
		var c byte
		if b.pos >= 0 {
			c = b.buf[b.pos]
		}
		b.acc = b.acc<<8 | uint64(c)
		b.n += 8
	}
}

// pull returns the top n bits of the accumulator. The caller must
// ensure, via fill, that enough bits are present.
func (b *bitReader) pull(n uint) uint32 {
	b.n -= n
	v := uint32(b.acc >> b.n)
	b.acc &= uint64(1)<<b.n - 1
	return v
}

// finish verifies that the reader consumed no more bits than the
// payload holds: the unread bytes plus whole unconsumed bytes in the
// accumulator must still cover the 8-byte lead-in.
func (b *bitReader) finish() error {
	if b.pos+int(b.n/8) < 8 {
		return ErrCorrupt
	}
	return nil
}

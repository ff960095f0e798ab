package lzfse

import (
	"bufio"
	"fmt"
	"io"
)

const (
	// Decoded output ring. It must be larger than maxMatchDistance so
	// back-references always land in live history.
	ringSize = 1 << 19
	ringMask = ringSize - 1

	// How much unread output to keep buffered before pausing decoding,
	// and the slack reserved so a single decode step cannot overwrite
	// unread bytes.
	ringFillTarget = 1 << 16
	ringSlack      = maxVNOpLen + 8
)

// A ringWriter is the lzWriter used for streaming decodes: a
// power-of-two ring holding the most recent ringSize bytes of output,
// of which the span [rpos, wpos) has not yet been read.
type ringWriter struct {
	ring []byte
	wpos int64 // total bytes written
	rpos int64 // total bytes handed to the reader
}

func (w *ringWriter) init() {
	w.ring = make([]byte, ringSize)
	w.wpos = 0
	w.rpos = 0
}

func (w *ringWriter) unread() int {
	return int(w.wpos - w.rpos)
}

// span returns the longest contiguous unread byte range.
func (w *ringWriter) span() []byte {
	off := int(w.rpos) & ringMask
	n := w.unread()
	if n > ringSize-off {
		n = ringSize - off
	}
	return w.ring[off : off+n]
}

func (w *ringWriter) writeLiterals(p []byte) {
	for len(p) > 0 {
		off := int(w.wpos) & ringMask
		n := copy(w.ring[off:], p)
		p = p[n:]
		w.wpos += int64(n)
	}
}

func (w *ringWriter) copyMatch(d, m int) error {
	if d <= 0 || int64(d) > w.wpos {
		return fmt.Errorf("%w: match distance %d with %d bytes of history", ErrCorrupt, d, w.wpos)
	}
	src := w.wpos - int64(d)
	for m > 0 {
		so := int(src) & ringMask
		do := int(w.wpos) & ringMask
		n := m
		if n > d {
			n = d // the copy may not overtake its own output
		}
		if n > ringSize-so {
			n = ringSize - so
		}
		if n > ringSize-do {
			n = ringSize - do
		}
		copy(w.ring[do:do+n], w.ring[so:so+n])
		src += int64(n)
		w.wpos += int64(n)
		m -= n
	}
	return nil
}

// Reader states.
const (
	stateMagic = iota
	stateRaw
	stateVN
	stateFSE
	stateEOS
)

// A Reader decompresses an LZFSE stream read from an underlying
// io.Reader. Its memory use is fixed regardless of stream size.
type Reader struct {
	br   *bufio.Reader
	ring ringWriter

	state        int
	rawRemaining uint32

	vn    vnDecoder
	vnBuf []byte // buffered, unconsumed payload
	vnEnd bool   // no payload left to read

	fse        *fseBlockDecoder
	scratchLit []byte
	scratchLMD []byte
	scratch    []byte

	err error
}

// NewReader returns a Reader that decompresses from r.
func NewReader(r io.Reader) *Reader {
	z := new(Reader)
	z.Reset(r)
	return z
}

// Reset discards the Reader's state and makes it equivalent to a new
// Reader reading from r.
func (z *Reader) Reset(r io.Reader) {
	if z.br == nil {
		z.br = bufio.NewReaderSize(r, 1<<15)
	} else {
		z.br.Reset(r)
	}
	z.ring.init()
	z.state = stateMagic
	z.vnBuf = z.vnBuf[:0]
	z.err = nil
}

func (z *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, z.err
	}
	for {
		if span := z.ring.span(); len(span) > 0 {
			n := copy(p, span)
			z.ring.rpos += int64(n)
			return n, nil
		}
		if z.err != nil {
			return 0, z.err
		}
		if err := z.step(); err != nil {
			z.err = err
		}
	}
}

// readFull fills buf from the underlying reader, reporting a short
// read as a truncated stream.
func (z *Reader) readFull(buf []byte) error {
	_, err := io.ReadFull(z.br, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrTruncated
	}
	return err
}

// step decodes some more of the stream into the ring.
func (z *Reader) step() error {
	budget := ringSize - z.ring.unread() - ringSlack

	switch z.state {
	case stateMagic:
		return z.startBlock()

	case stateRaw:
		n := int(z.rawRemaining)
		if n > budget {
			n = budget
		}
		off := int(z.ring.wpos) & ringMask
		if n > ringSize-off {
			n = ringSize - off
		}
		if err := z.readFull(z.ring.ring[off : off+n]); err != nil {
			return err
		}
		z.ring.wpos += int64(n)
		z.rawRemaining -= uint32(n)
		if z.rawRemaining == 0 {
			z.state = stateMagic
		}
		return nil

	case stateVN:
		if err := z.fillVN(); err != nil {
			return err
		}
		consumed, produced, done, err := z.vn.decode(&z.ring, z.vnBuf, budget)
		if err != nil {
			return err
		}
		z.vnBuf = z.vnBuf[consumed:]
		if done {
			if len(z.vnBuf) != 0 {
				return fmt.Errorf("%w: LZVN payload continues past eos", ErrCorrupt)
			}
			z.state = stateMagic
			return nil
		}
		if consumed == 0 && produced == 0 && z.vnEnd {
			// A partial opcode with no payload left to read.
			return fmt.Errorf("%w: LZVN opcode cut short", ErrCorrupt)
		}
		return nil

	case stateFSE:
		if _, err := z.fse.replay(&z.ring, budget); err != nil {
			return err
		}
		if z.fse.done() {
			z.state = stateMagic
		}
		return nil
	}

	// stateEOS
	return io.EOF
}

func (z *Reader) startBlock() error {
	var magic [4]byte
	if err := z.readFull(magic[:]); err != nil {
		return err
	}

	switch load32(magic[:], 0) {
	case magicEOS:
		z.state = stateEOS
		return io.EOF

	case magicRaw:
		var hdr [4]byte
		if err := z.readFull(hdr[:]); err != nil {
			return err
		}
		z.rawRemaining = load32(hdr[:], 0)
		z.state = stateRaw
		if z.rawRemaining == 0 {
			z.state = stateMagic
		}
		return nil

	case magicVN:
		var hdr [8]byte
		if err := z.readFull(hdr[:]); err != nil {
			return err
		}
		z.vn.init(load32(hdr[:], 0), load32(hdr[:], 4))
		z.vnBuf = z.vnBuf[:0]
		z.vnEnd = z.vn.nPayload == 0
		z.state = stateVN
		return nil

	case magicV1:
		return z.startFSEBlock(magicV1)

	case magicV2:
		return z.startFSEBlock(magicV2)

	default:
		return fmt.Errorf("%w: bad block magic %#08x", ErrCorrupt, load32(magic[:], 0))
	}
}

// startFSEBlock reads an entropy-coded block's header and payloads
// into scratch buffers and decodes them, leaving the block ready to
// replay.
func (z *Reader) startFSEBlock(magic uint32) error {
	if z.fse == nil {
		z.fse = new(fseBlockDecoder)
	}

	var hdrLen int
	if magic == magicV1 {
		hdrLen = headerSizeV1
	} else {
		hdrLen = headerSizeV2 + maxWeightPayload
	}
	z.scratch = growSlice(z.scratch, 4+hdrLen)
	buf := z.scratch

	// Re-create the raw header so the shared parser can be used. For
	// v2 the weight payload length is not known until the fixed part
	// has been read.
	store32(buf, 0, magic)
	h := &z.fse.hdr
	if magic == magicV1 {
		if err := z.readFull(buf[4 : 4+headerSizeV1-4]); err != nil {
			return err
		}
		if err := h.parseV1(buf[:headerSizeV1]); err != nil {
			return err
		}
	} else {
		if err := z.readFull(buf[4:headerSizeV2]); err != nil {
			return err
		}
		hSize := int(load32(buf[:], 24))
		if hSize < headerSizeV2 || hSize-headerSizeV2 > maxWeightPayload {
			return fmt.Errorf("%w: v2 header size %d", ErrCorrupt, hSize)
		}
		if err := z.readFull(buf[headerSizeV2:hSize]); err != nil {
			return err
		}
		if err := h.parseV2(buf[:hSize]); err != nil {
			return err
		}
	}

	// Copy the payloads into scratch buffers with 8 bytes of zero
	// lead-in for the backward bit readers.
	z.scratchLit = growSlice(z.scratchLit, 8+int(h.nLiteralPayload))
	lit := z.scratchLit[:8+h.nLiteralPayload]
	zero8(lit)
	if err := z.readFull(lit[8:]); err != nil {
		return err
	}
	z.scratchLMD = growSlice(z.scratchLMD, 8+int(h.nLMDPayload))
	lmd := z.scratchLMD[:8+h.nLMDPayload]
	zero8(lmd)
	if err := z.readFull(lmd[8:]); err != nil {
		return err
	}

	if err := z.fse.decodePayloads(lit, lmd); err != nil {
		return err
	}
	z.state = stateFSE
	return nil
}

// fillVN keeps a decodable amount of LZVN payload buffered.
func (z *Reader) fillVN() error {
	if z.vnEnd || len(z.vnBuf) >= maxVNOpLen {
		return nil
	}
	// Slide the remainder down and top the buffer up.
	z.vnBuf = append(z.scratchVNBase()[:0], z.vnBuf...)
	want := 1 << 12
	if have := len(z.vnBuf); want > have {
		n := want - have
		left := int(z.vn.nPayload) - have
		if n > left {
			n = left
		}
		buf := z.vnBuf[have : have+n]
		z.vnBuf = z.vnBuf[:have+n]
		if err := z.readFull(buf); err != nil {
			return err
		}
		if have+n >= int(z.vn.nPayload) {
			z.vnEnd = true
		}
	}
	return nil
}

// scratchVNBase returns the backing buffer for the LZVN payload
// window, allocating it on first use.
func (z *Reader) scratchVNBase() []byte {
	if cap(z.vnBuf) < 1<<12 {
		return make([]byte, 0, 1<<12)
	}
	return z.vnBuf[:cap(z.vnBuf)]
}

func growSlice(b []byte, n int) []byte {
	if cap(b) >= n {
		return b[:n]
	}
	return make([]byte, n)
}

func zero8(b []byte) {
	for i := 0; i < 8; i++ {
		b[i] = 0
	}
}

package lzfse

import "io"

// The encoder works through the input in fixed-size chunks so that
// block boundaries depend only on the byte stream, never on how the
// caller's writes were sized.
const writerBlockSize = 1 << 16

// A Writer compresses data to an underlying io.Writer. Output for a
// block may be withheld until enough input has accumulated; Close
// flushes everything and writes the end-of-stream marker. Memory use
// is fixed regardless of stream size.
type Writer struct {
	w       io.Writer
	finder  matchFinder
	fse     fseEncoder
	matches []match
	in      []byte
	out     []byte
	started bool
	err     error
}

// NewWriter returns a Writer that compresses to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Reset discards the Writer's state and makes it equivalent to a new
// Writer writing to w.
func (z *Writer) Reset(w io.Writer) {
	z.w = w
	z.finder.reset()
	z.fse.reset()
	z.in = z.in[:0]
	z.out = z.out[:0]
	z.started = false
	z.err = nil
}

func (z *Writer) Write(p []byte) (int, error) {
	if z.err != nil {
		return 0, z.err
	}
	n := len(p)
	for len(z.in)+len(p) >= writerBlockSize {
		if len(z.in) > 0 {
			take := writerBlockSize - len(z.in)
			z.in = append(z.in, p[:take]...)
			p = p[take:]
			z.chunk(z.in)
			z.in = z.in[:0]
		} else {
			z.chunk(p[:writerBlockSize])
			p = p[writerBlockSize:]
		}
		if z.err != nil {
			return 0, z.err
		}
	}
	z.in = append(z.in, p...)
	return n, nil
}

// chunk runs one chunk of input through the match finder and the
// entropy coder, flushing any blocks that completed.
func (z *Writer) chunk(p []byte) {
	z.started = true
	matches := z.finder.findMatches(z.matches[:0], p)
	z.matches = matches[:0]
	z.out = z.fse.encode(z.out[:0], p, matches)
	if len(z.out) > 0 {
		z.flush(z.out)
	}
}

func (z *Writer) flush(p []byte) {
	if z.err != nil {
		return
	}
	if _, err := z.w.Write(p); err != nil {
		z.err = err
	}
}

// Close flushes any pending data and writes the end-of-stream marker.
// It does not close the underlying writer. The Writer may be reused
// after a Reset.
func (z *Writer) Close() error {
	if z.err != nil {
		return z.err
	}

	if !z.started {
		// The whole stream fit in the input buffer; small streams get
		// the cheaper encodings.
		switch {
		case len(z.in) == 0:
			z.flush(appendUint32(z.out[:0], magicEOS))
			return z.err
		case len(z.in) <= rawCutoff:
			out := appendRawBlock(z.out[:0], z.in)
			z.flush(appendUint32(out, magicEOS))
			return z.err
		case len(z.in) <= vnCutoff:
			matches := z.finder.findMatches(z.matches[:0], z.in)
			z.matches = matches[:0]
			out := appendVNBlock(z.out[:0], z.in, matches)
			z.flush(appendUint32(out, magicEOS))
			return z.err
		}
	}

	if len(z.in) > 0 {
		z.chunk(z.in)
		z.in = z.in[:0]
		if z.err != nil {
			return z.err
		}
	}
	out := z.fse.finish(z.out[:0])
	z.flush(appendUint32(out, magicEOS))
	return z.err
}

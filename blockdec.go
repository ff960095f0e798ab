package lzfse

import "fmt"

// An lzWriter receives the decoded byte stream: runs of literals and
// back-reference copies.
type lzWriter interface {
	writeLiterals(p []byte)
	copyMatch(d, m int) error
}

type lmdTriple struct {
	l, m, d uint32
}

// An fseBlockDecoder holds the tables and decoded content of one
// entropy-coded block. Decoding is split in two: decodePayloads
// recovers the block's literals and triples from the bit streams, and
// replay feeds them to an lzWriter, possibly a bounded amount at a
// time.
type fseBlockDecoder struct {
	hdr blockHeader

	uTable [uStates]uEntry
	lTable [lStates]vEntry
	mTable [mStates]vEntry
	dTable [dStates]vEntry

	literals [maxLiteralsPerBlock]byte
	lmds     [maxLMDsPerBlock]lmdTriple

	// replay cursor
	next       int
	litPos     int
	curL, curM uint32
	curD       uint32
}

// decodeBlock decodes a whole v1 or v2 block from the start of src
// into w and returns the number of bytes consumed.
func (d *fseBlockDecoder) decodeBlock(w lzWriter, src []byte, magic uint32) (int, error) {
	var err error
	if magic == magicV1 {
		err = d.hdr.parseV1(src)
	} else {
		err = d.hdr.parseV2(src)
	}
	if err != nil {
		return 0, err
	}
	h := &d.hdr

	litStart := h.headerSize
	litEnd := litStart + int(h.nLiteralPayload)
	lmdEnd := litEnd + int(h.nLMDPayload)
	if len(src) < lmdEnd {
		return 0, ErrTruncated
	}
	// The headers are over 8 bytes long, so the lead-in slices below
	// stay within src.
	if err := d.decodePayloads(src[litStart-8:litEnd], src[litEnd-8:lmdEnd]); err != nil {
		return 0, err
	}
	if _, err := d.replay(w, maxInt); err != nil {
		return 0, err
	}
	return lmdEnd, nil
}

// decodePayloads decodes the literal and LMD bit streams. Both slices
// include 8 bytes of lead-in before the payload proper.
func (d *fseBlockDecoder) decodePayloads(litPayload, lmdPayload []byte) error {
	h := &d.hdr
	w := &h.weights
	buildVTable(w[0:lSymbols], lStates, lExtraBits[:], lBase[:], d.lTable[:])
	buildVTable(w[lSymbols:lSymbols+mSymbols], mStates, mExtraBits[:], mBase[:], d.mTable[:])
	buildVTable(w[lSymbols+mSymbols:lSymbols+mSymbols+dSymbols], dStates, dExtraBits[:], dBase[:], d.dTable[:])
	buildUTable(w[lSymbols+mSymbols+dSymbols:], uStates, d.uTable[:])

	if h.nLiterals > 0 {
		if err := d.decodeLiterals(litPayload); err != nil {
			return err
		}
	}
	if h.nLMDs > 0 {
		if err := d.decodeLMDs(lmdPayload); err != nil {
			return err
		}
	} else if h.nRawBytes != 0 {
		return fmt.Errorf("%w: %d raw bytes but no matches", ErrCorrupt, h.nRawBytes)
	}

	d.next = 0
	d.litPos = 0
	d.curL = 0
	d.curM = 0
	d.curD = 0
	return nil
}

func (d *fseBlockDecoder) decodeLiterals(payload []byte) error {
	var br bitReader
	if err := br.init(payload, d.hdr.literalPad); err != nil {
		return err
	}
	var state [4]uint32
	for i := range state {
		state[i] = uint32(d.hdr.literalState[i])
	}
	n := int(d.hdr.nLiterals)
	for i := 0; i < n; i += 4 {
		br.fill()
		for j := 0; j < 4; j++ {
			e := &d.uTable[state[j]]
			state[j] = uint32(e.delta) + br.pull(uint(e.k))
			d.literals[i+j] = e.symbol
		}
	}
	return br.finish()
}

func (d *fseBlockDecoder) decodeLMDs(payload []byte) error {
	var br bitReader
	if err := br.init(payload, d.hdr.lmdPad); err != nil {
		return err
	}
	ls := uint32(d.hdr.lState)
	ms := uint32(d.hdr.mState)
	ds := uint32(d.hdr.dState)
	prevD := uint32(0)
	var rawSum uint64
	var litSum uint32

	n := int(d.hdr.nLMDs)
	for i := 0; i < n; i++ {
		br.fill()
		le := &d.lTable[ls]
		ls = uint32(le.delta) + br.pull(uint(le.k))
		l := le.vBase + br.pull(uint(le.vBits))

		me := &d.mTable[ms]
		ms = uint32(me.delta) + br.pull(uint(me.k))
		m := me.vBase + br.pull(uint(me.vBits))

		de := &d.dTable[ds]
		ds = uint32(de.delta) + br.pull(uint(de.k))
		dist := de.vBase + br.pull(uint(de.vBits))

		// A distance of zero repeats the previous distance.
		if dist == 0 {
			dist = prevD
		} else {
			prevD = dist
		}
		if m > 0 && dist == 0 {
			return fmt.Errorf("%w: match with no distance", ErrCorrupt)
		}

		d.lmds[i] = lmdTriple{l, m, dist}
		rawSum += uint64(l) + uint64(m)
		litSum += l
	}
	if err := br.finish(); err != nil {
		return err
	}
	if litSum > d.hdr.nLiterals {
		return fmt.Errorf("%w: matches consume %d of %d literals", ErrCorrupt, litSum, d.hdr.nLiterals)
	}
	if rawSum != uint64(d.hdr.nRawBytes) {
		return fmt.Errorf("%w: block decodes to %d bytes, header says %d", ErrCorrupt, rawSum, d.hdr.nRawBytes)
	}
	return nil
}

// replay writes up to budget decoded bytes to w, returning the number
// written. It stops early only when the budget runs out; use done to
// tell the cases apart.
func (d *fseBlockDecoder) replay(w lzWriter, budget int) (int, error) {
	produced := 0
	for {
		if d.curL > 0 {
			t := int(d.curL)
			if t > budget-produced {
				t = budget - produced
			}
			w.writeLiterals(d.literals[d.litPos : d.litPos+t])
			d.litPos += t
			d.curL -= uint32(t)
			produced += t
			if d.curL > 0 {
				return produced, nil
			}
		}
		if d.curM > 0 {
			t := int(d.curM)
			if t > budget-produced {
				t = budget - produced
			}
			if t > 0 {
				if err := w.copyMatch(int(d.curD), t); err != nil {
					return produced, err
				}
				d.curM -= uint32(t)
				produced += t
			}
			if d.curM > 0 {
				return produced, nil
			}
		}
		if d.next == int(d.hdr.nLMDs) {
			return produced, nil
		}
		lm := d.lmds[d.next]
		d.next++
		d.curL, d.curM, d.curD = lm.l, lm.m, lm.d
	}
}

func (d *fseBlockDecoder) done() bool {
	return d.next == int(d.hdr.nLMDs) && d.curL == 0 && d.curM == 0
}

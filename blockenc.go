package lzfse

// An fseEncoder accumulates literals and (literal count, match length,
// distance) triples across chunks, emitting a v2 block whenever a
// per-block limit fills. The caller appends the end-of-stream marker.
type fseEncoder struct {
	literals [maxLiteralsPerBlock]byte
	nLit     int
	lmds     [maxLMDsPerBlock]lmdTriple
	nLMD     int
	nRaw     uint32
	prevD    uint32

	freqL [lSymbols]uint32
	freqM [mSymbols]uint32
	freqD [dSymbols]uint32
	freqU [uSymbols]uint32

	eL [lSymbols]eEntry
	eM [mSymbols]eEntry
	eD [dSymbols]eEntry
	eU [uSymbols]eEntry

	litBits bitWriter
	lmdBits bitWriter
}

func (e *fseEncoder) reset() {
	e.nLit = 0
	e.nLMD = 0
	e.nRaw = 0
	e.prevD = 0
	e.freqL = [lSymbols]uint32{}
	e.freqM = [mSymbols]uint32{}
	e.freqD = [dSymbols]uint32{}
	e.freqU = [uSymbols]uint32{}
}

// encode consumes one chunk's matches, walking src to recover the
// literal runs, and appends any completed blocks to dst.
func (e *fseEncoder) encode(dst []byte, src []byte, matches []match) []byte {
	pos := 0
	for _, m := range matches {
		lit := src[pos : pos+m.unmatched]
		pos += m.unmatched + m.length
		dst = e.push(dst, lit, m.length, m.distance)
	}
	return dst
}

// finish flushes the partially filled block, if any.
func (e *fseEncoder) finish(dst []byte) []byte {
	return e.flushBlock(dst)
}

// push splits an arbitrary literal run and match into triples within
// the L and M field limits.
func (e *fseEncoder) push(dst []byte, lit []byte, m, d int) []byte {
	for len(lit) > maxLiteralRun {
		dst = e.pushLMD(dst, lit[:maxLiteralRun], 0, 1)
		lit = lit[maxLiteralRun:]
	}
	for m > maxMatchLen {
		dst = e.pushLMD(dst, lit, maxMatchLen, d)
		lit = nil
		m -= maxMatchLen
	}
	if m > 0 {
		dst = e.pushLMD(dst, lit, m, d)
	} else if len(lit) > 0 {
		dst = e.pushLMD(dst, lit, 0, 1)
	}
	return dst
}

func (e *fseEncoder) pushLMD(dst []byte, lit []byte, m, d int) []byte {
	if e.nLMD == maxLMDsPerBlock || e.nLit+len(lit) > maxLiteralsPerBlock {
		dst = e.flushBlock(dst)
	}

	for _, c := range lit {
		e.freqU[c]++
	}
	copy(e.literals[e.nLit:], lit)
	e.nLit += len(lit)

	// Repeated distances are stored as zero.
	dPack := uint32(d)
	if dPack == e.prevD {
		dPack = 0
	} else {
		e.prevD = dPack
	}

	l := uint32(len(lit))
	e.lmds[e.nLMD] = lmdTriple{l, uint32(m), dPack}
	e.nLMD++
	e.freqL[lSymbol(l)]++
	e.freqM[mSymbol(uint32(m))]++
	e.freqD[dSymbol(dPack)]++
	e.nRaw += l + uint32(m)
	return dst
}

func (e *fseEncoder) flushBlock(dst []byte) []byte {
	if e.nLMD == 0 {
		return dst
	}

	// Pad the literal count to a multiple of four; the padding is
	// encoded but never replayed.
	padded := (e.nLit + 3) &^ 3
	for i := e.nLit; i < padded; i++ {
		c := e.literals[0]
		e.literals[i] = c
		e.freqU[c]++
	}

	var h blockHeader
	h.nRawBytes = e.nRaw
	h.nLiterals = uint32(padded)
	h.nLMDs = uint32(e.nLMD)

	normalizeWeights(e.freqL[:], uint32(e.nLMD), lStates, h.weights[0:lSymbols])
	normalizeWeights(e.freqM[:], uint32(e.nLMD), mStates, h.weights[lSymbols:lSymbols+mSymbols])
	normalizeWeights(e.freqD[:], uint32(e.nLMD), dStates, h.weights[lSymbols+mSymbols:lSymbols+mSymbols+dSymbols])
	normalizeWeights(e.freqU[:], uint32(padded), uStates, h.weights[lSymbols+mSymbols+dSymbols:])

	buildETable(h.weights[0:lSymbols], lStates, e.eL[:])
	buildETable(h.weights[lSymbols:lSymbols+mSymbols], mStates, e.eM[:])
	buildETable(h.weights[lSymbols+mSymbols:lSymbols+mSymbols+dSymbols], dStates, e.eD[:])
	buildETable(h.weights[lSymbols+mSymbols+dSymbols:], uStates, e.eU[:])

	// Literals are encoded backward through four interleaved states,
	// so the decoder can walk them forward.
	bw := &e.litBits
	bw.out = bw.out[:0]
	var us [4]int32
	for i := padded; i > 0; i -= 4 {
		us[3] = e.eU[e.literals[i-1]].encodeState(us[3], bw)
		us[2] = e.eU[e.literals[i-2]].encodeState(us[2], bw)
		us[1] = e.eU[e.literals[i-3]].encodeState(us[1], bw)
		us[0] = e.eU[e.literals[i-4]].encodeState(us[0], bw)
		bw.flush()
	}
	h.literalPad = bw.finish()
	for i := range h.literalState {
		h.literalState[i] = uint16(us[i])
	}
	h.nLiteralPayload = uint32(len(bw.out))

	// Triples are encoded last to first; within each, the decoder
	// pulls L, M, D, each as state bits then extra bits.
	mw := &e.lmdBits
	mw.out = mw.out[:0]
	var ls, ms, ds int32
	for i := e.nLMD - 1; i >= 0; i-- {
		t := e.lmds[i]
		dSym := dSymbol(t.d)
		mw.push(uint64(t.d-dBase[dSym]), uint(dExtraBits[dSym]))
		ds = e.eD[dSym].encodeState(ds, mw)
		mSym := mSymbol(t.m)
		mw.push(uint64(t.m-mBase[mSym]), uint(mExtraBits[mSym]))
		ms = e.eM[mSym].encodeState(ms, mw)
		lSym := lSymbol(t.l)
		mw.push(uint64(t.l-lBase[lSym]), uint(lExtraBits[lSym]))
		ls = e.eL[lSym].encodeState(ls, mw)
		mw.flush()
	}
	h.lmdPad = mw.finish()
	h.lState = uint16(ls)
	h.mState = uint16(ms)
	h.dState = uint16(ds)
	// The LMD payload carries its own 8 bytes of leading padding for
	// the backward reader.
	h.nLMDPayload = uint32(len(mw.out)) + 8

	dst = h.appendV2(dst)
	dst = append(dst, bw.out...)
	dst = append(dst, 0, 0, 0, 0, 0, 0, 0, 0)
	dst = append(dst, mw.out...)

	e.reset()
	return dst
}

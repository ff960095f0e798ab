package lzfse

import "fmt"

// Header sizes for the two entropy-coded block formats. A v1 header
// stores the 360 weights as plain uint16s (with 2 bytes of padding at
// the end); a v2 header packs its fields into three uint64s and is
// followed by the variable-length weight encoding.
const (
	headerSizeV1 = 772
	headerSizeV2 = 32
)

// blockHeader is the parsed form of a v1 or v2 entropy-coded block
// header.
type blockHeader struct {
	nRawBytes       uint32
	nLiterals       uint32
	nLiteralPayload uint32
	nLMDs           uint32
	nLMDPayload     uint32
	literalPad      int // padding bits in the literal payload's last byte
	lmdPad          int
	literalState    [4]uint16
	lState          uint16
	mState          uint16
	dState          uint16
	weights         [numWeights]uint16
	headerSize      int // bytes consumed before the literal payload
}

func field(v uint64, off, n uint) uint32 {
	return uint32(v >> off & (uint64(1)<<n - 1))
}

// parseV2 reads a v2 header from src, which starts at the block magic.
func (h *blockHeader) parseV2(src []byte) error {
	if len(src) < headerSizeV2 {
		return ErrTruncated
	}
	h.nRawBytes = load32(src, 4)
	v0 := load64(src, 8)
	v1 := load64(src, 16)
	v2 := load64(src, 24)

	h.nLiterals = field(v0, 0, 20)
	h.nLiteralPayload = field(v0, 20, 20)
	h.nLMDs = field(v0, 40, 20)
	h.literalPad = 7 - int(field(v0, 60, 3))

	for i := range h.literalState {
		h.literalState[i] = uint16(field(v1, uint(10*i), 10))
	}
	h.nLMDPayload = field(v1, 40, 20)
	h.lmdPad = 7 - int(field(v1, 60, 3))

	h.headerSize = int(field(v2, 0, 32))
	h.lState = uint16(field(v2, 32, 10))
	h.mState = uint16(field(v2, 42, 10))
	h.dState = uint16(field(v2, 52, 10))

	wlen := h.headerSize - headerSizeV2
	if wlen < 0 || wlen > maxWeightPayload {
		return fmt.Errorf("%w: v2 header size %d", ErrCorrupt, h.headerSize)
	}
	if len(src) < h.headerSize {
		return ErrTruncated
	}
	if err := decodePackedWeights(src[headerSizeV2:h.headerSize], &h.weights); err != nil {
		return err
	}
	return h.validate()
}

// parseV1 reads a v1 header from src, which starts at the block magic.
func (h *blockHeader) parseV1(src []byte) error {
	if len(src) < headerSizeV1 {
		return ErrTruncated
	}
	h.nRawBytes = load32(src, 4)
	nPayload := load32(src, 8)
	h.nLiterals = load32(src, 12)
	h.nLMDs = load32(src, 16)
	h.nLiteralPayload = load32(src, 20)
	h.nLMDPayload = load32(src, 24)
	h.literalPad = -int(int32(load32(src, 28)))
	for i := range h.literalState {
		h.literalState[i] = load16(src, 32+2*i)
	}
	h.lmdPad = -int(int32(load32(src, 40)))
	h.lState = load16(src, 44)
	h.mState = load16(src, 46)
	h.dState = load16(src, 48)
	for i := range h.weights {
		h.weights[i] = load16(src, 50+2*i)
	}
	h.headerSize = headerSizeV1

	if nPayload != h.nLiteralPayload+h.nLMDPayload {
		return fmt.Errorf("%w: v1 payload sizes disagree", ErrCorrupt)
	}
	return h.validate()
}

// Slack allowed beyond the tight per-symbol bit bounds when checking
// declared payload sizes.
const payloadSlack = 1024

func literalPayloadLimit(nLiterals uint32) uint32 {
	return payloadSlack + (10*nLiterals+7)/8
}

func lmdPayloadLimit(nLMDs uint32) uint32 {
	// Up to 14+17+23 bits per triple, plus the encoder's 8 bytes of
	// leading padding.
	return payloadSlack + 8 + (54*nLMDs+7)/8
}

func (h *blockHeader) validate() error {
	switch {
	case h.nLiterals > maxLiteralsPerBlock || h.nLiterals%4 != 0:
		return fmt.Errorf("%w: %d literals in block", ErrCorrupt, h.nLiterals)
	case h.nLMDs > maxLMDsPerBlock:
		return fmt.Errorf("%w: %d matches in block", ErrCorrupt, h.nLMDs)
	case h.nLiteralPayload > literalPayloadLimit(h.nLiterals):
		return fmt.Errorf("%w: literal payload of %d bytes", ErrCorrupt, h.nLiteralPayload)
	case h.nLMDPayload > lmdPayloadLimit(h.nLMDs):
		return fmt.Errorf("%w: match payload of %d bytes", ErrCorrupt, h.nLMDPayload)
	case h.literalPad < 0 || h.literalPad > 7 || h.lmdPad < 0 || h.lmdPad > 7:
		return fmt.Errorf("%w: bit stream padding out of range", ErrCorrupt)
	case h.lState >= lStates || h.mState >= mStates || h.dState >= dStates:
		return fmt.Errorf("%w: initial state out of range", ErrCorrupt)
	}
	for _, s := range h.literalState {
		if s >= uStates {
			return fmt.Errorf("%w: initial state out of range", ErrCorrupt)
		}
	}

	// Each weight table must fit its state table.
	for _, t := range []struct {
		off, n int
		states uint32
	}{
		{0, lSymbols, lStates},
		{lSymbols, mSymbols, mStates},
		{lSymbols + mSymbols, dSymbols, dStates},
		{lSymbols + mSymbols + dSymbols, uSymbols, uStates},
	} {
		var sum uint32
		for _, w := range h.weights[t.off : t.off+t.n] {
			sum += uint32(w)
		}
		if sum > t.states {
			return fmt.Errorf("%w: weights sum to %d for %d states", ErrCorrupt, sum, t.states)
		}
	}
	return nil
}

// appendV2 serializes h as a v2 header (with packed weights) onto dst.
func (h *blockHeader) appendV2(dst []byte) []byte {
	start := len(dst)
	dst = appendUint32(dst, magicV2)
	dst = appendUint32(dst, h.nRawBytes)

	v0 := uint64(h.nLiterals) |
		uint64(h.nLiteralPayload)<<20 |
		uint64(h.nLMDs)<<40 |
		uint64(7-h.literalPad)<<60
	v1 := uint64(h.literalState[0]) |
		uint64(h.literalState[1])<<10 |
		uint64(h.literalState[2])<<20 |
		uint64(h.literalState[3])<<30 |
		uint64(h.nLMDPayload)<<40 |
		uint64(7-h.lmdPad)<<60

	dst = appendUint64(dst, v0)
	dst = appendUint64(dst, v1)
	dst = appendUint64(dst, 0) // v2, patched below
	dst = appendPackedWeights(dst, &h.weights)

	h.headerSize = len(dst) - start
	v2 := uint64(uint32(h.headerSize)) |
		uint64(h.lState)<<32 |
		uint64(h.mState)<<42 |
		uint64(h.dState)<<52
	for i := 0; i < 8; i++ {
		dst[start+24+i] = byte(v2 >> (8 * i))
	}
	return dst
}

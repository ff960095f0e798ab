package lzfse

import "math/bits"

// Alphabet sizes and state counts for the four interleaved FSE
// streams: literal lengths (L), match lengths (M), match distances
// (D), and literal bytes (U).
const (
	lSymbols = 20
	lStates  = 64
	mSymbols = 20
	mStates  = 64
	dSymbols = 64
	dStates  = 256
	uSymbols = 256
	uStates  = 1024

	numWeights = lSymbols + mSymbols + dSymbols + uSymbols // 360

	// A weight table can pack into at most 14 bits per weight.
	maxWeightPayload = (numWeights*14 + 7) / 8 // 630
)

// L and M values split into 16 direct symbols plus four symbols with
// extra bits. D symbols come in groups of four sharing an extra-bit
// count of i>>2.
var (
	lExtraBits = [lSymbols]uint8{
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2, 3, 5, 8,
	}
	lBase = [lSymbols]uint32{
		0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 20, 28, 60,
	}
	mExtraBits = [mSymbols]uint8{
		0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 3, 5, 8, 11,
	}
	mBase = [mSymbols]uint32{
		0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 24, 56, 312,
	}
	dExtraBits = [dSymbols]uint8{
		0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3,
		4, 4, 4, 4, 5, 5, 5, 5, 6, 6, 6, 6, 7, 7, 7, 7,
		8, 8, 8, 8, 9, 9, 9, 9, 10, 10, 10, 10, 11, 11, 11, 11,
		12, 12, 12, 12, 13, 13, 13, 13, 14, 14, 14, 14, 15, 15, 15, 15,
	}
	dBase = [dSymbols]uint32{
		0, 1, 2, 3, 4, 6, 8, 10, 12, 16, 20, 24, 28, 36, 44, 52,
		60, 76, 92, 108, 124, 156, 188, 220, 252, 316, 380, 444,
		508, 636, 764, 892, 1020, 1276, 1532, 1788, 2044, 2556,
		3068, 3580, 4092, 5116, 6140, 7164, 8188, 10236, 12284,
		14332, 16380, 20476, 24572, 28668, 32764, 40956, 49148,
		57340, 65532, 81916, 98300, 114684, 131068, 163836,
		196604, 229372,
	}
)

func lSymbol(v uint32) int {
	switch {
	case v < 16:
		return int(v)
	case v < 20:
		return 16
	case v < 28:
		return 17
	case v < 60:
		return 18
	default:
		return 19
	}
}

func mSymbol(v uint32) int {
	switch {
	case v < 16:
		return int(v)
	case v < 24:
		return 16
	case v < 56:
		return 17
	case v < 312:
		return 18
	default:
		return 19
	}
}

// dSymbol finds the symbol whose [base, base+1<<extra) range contains
// v. Group k (symbols 4k..4k+3) starts at 4*(2^k - 1) and its symbols
// each span 2^k values.
func dSymbol(v uint32) int {
	k := uint(bits.Len32(v>>2+1) - 1)
	return int(4*k) + int((v-4*(1<<k-1))>>k) // v minus the group base, in 2^k steps
}

// A uEntry decodes one literal-table state: emit symbol, then read k
// bits to form the next state.
type uEntry struct {
	k      uint8
	symbol uint8
	delta  uint16
}

// A vEntry decodes one value-table state: read k bits for the next
// state, then vBits extra bits to add to vBase.
type vEntry struct {
	k     uint8
	vBits uint8
	delta uint16
	vBase uint32
}

// An eEntry is the encoder's view of one symbol: states below s0 push
// k-1 bits and transition by delta1, states at or above s0 push k bits
// and transition by delta0.
type eEntry struct {
	s0     int16
	k      int16
	delta0 int16
	delta1 int16
}

// buildUTable fills a decoder table for a literal alphabet from its
// weights. The caller has verified that the weights sum to at most n.
func buildUTable(w []uint16, n uint32, tbl []uEntry) {
	for i := range tbl {
		tbl[i] = uEntry{}
	}
	nClz := bits.LeadingZeros32(n)
	slot := 0
	for sym := range w {
		f := uint32(w[sym])
		if f == 0 {
			continue
		}
		k := uint(bits.LeadingZeros32(f) - nClz)
		x := int32((n<<1)>>k) - int32(f)
		for j := int32(0); j < int32(f); j++ {
			e := uEntry{symbol: uint8(sym)}
			if j < x {
				e.k = uint8(k)
				e.delta = uint16((f+uint32(j))<<k - n)
			} else {
				e.k = uint8(k - 1)
				e.delta = uint16(uint32(j-x) << (k - 1))
			}
			tbl[slot] = e
			slot++
		}
	}
}

// buildVTable is buildUTable for a value alphabet, folding each
// symbol's extra-bit count and base value into the table.
func buildVTable(w []uint16, n uint32, extra []uint8, base []uint32, tbl []vEntry) {
	for i := range tbl {
		tbl[i] = vEntry{}
	}
	nClz := bits.LeadingZeros32(n)
	slot := 0
	for sym := range w {
		f := uint32(w[sym])
		if f == 0 {
			continue
		}
		k := uint(bits.LeadingZeros32(f) - nClz)
		x := int32((n<<1)>>k) - int32(f)
		for j := int32(0); j < int32(f); j++ {
			e := vEntry{vBits: extra[sym], vBase: base[sym]}
			if j < x {
				e.k = uint8(k)
				e.delta = uint16((f+uint32(j))<<k - n)
			} else {
				e.k = uint8(k - 1)
				e.delta = uint16(uint32(j-x) << (k - 1))
			}
			tbl[slot] = e
			slot++
		}
	}
}

// buildETable fills an encoder table from the same weights the decoder
// will use. Symbols with weight zero get a zero entry; a well-formed
// encoder never reaches them.
func buildETable(w []uint16, n int32, tbl []eEntry) {
	nClz := bits.LeadingZeros32(uint32(n))
	offset := int32(0)
	for sym := range w {
		f := int32(w[sym])
		if f == 0 {
			tbl[sym] = eEntry{}
			continue
		}
		k := uint(bits.LeadingZeros32(uint32(f)) - nClz)
		tbl[sym] = eEntry{
			s0:     int16(f<<k - n),
			k:      int16(k),
			delta0: int16(offset - f + n>>k),
			delta1: int16(offset - f + n>>(k-1)),
		}
		offset += f
	}
}

// encodeState pushes the bits that let the decoder recover state and
// returns the encoder's next state.
func (e *eEntry) encodeState(state int32, bw *bitWriter) int32 {
	nbits := uint(e.k)
	delta := int32(e.delta0)
	if state < int32(e.s0) {
		nbits--
		delta = int32(e.delta1)
	}
	bw.push(uint64(state)&(uint64(1)<<nbits-1), nbits)
	return delta + state>>nbits
}

// normalizeWeights scales freq, which sums to total, into weights
// summing to exactly states (at most states after trimming), keeping
// every nonzero frequency at weight 1 or more.
func normalizeWeights(freq []uint32, total uint32, states uint32, w []uint16) {
	if total == 0 {
		for i := range w {
			w[i] = 0
		}
		return
	}
	shift := uint(bits.LeadingZeros32(states))
	mult := uint64(1<<31) / uint64(total)
	round := uint64(1) << (shift - 1)
	remaining := int32(states)
	maxIdx := -1
	maxW := int32(0)
	for i, f := range freq {
		if f == 0 {
			w[i] = 0
			continue
		}
		t := int32((uint64(f)*mult + round) >> shift)
		if t == 0 {
			t = 1
		}
		w[i] = uint16(t)
		remaining -= t
		if t > maxW {
			maxW = t
			maxIdx = i
		}
	}

	if remaining >= 0 || -remaining < maxW/4 {
		// The dominant symbol can absorb the difference.
		w[maxIdx] = uint16(int32(w[maxIdx]) + remaining)
		return
	}

	// Shave the overflow off the larger weights, coarsely first.
	for shift := 3; shift >= 0 && remaining < 0; shift-- {
		for i := range w {
			if remaining == 0 {
				break
			}
			if w[i] == 0 {
				continue
			}
			t := int32(w[i]-1) >> uint(shift)
			if t > -remaining {
				t = -remaining
			}
			w[i] -= uint16(t)
			remaining += t
		}
	}
}

// Bit lengths of packed weight codes, indexed by the low 5 bits of the
// stream. The code lengths repeat with period 16.
var weightBits = [32]uint8{
	2, 3, 2, 5, 2, 3, 2, 8, 2, 3, 2, 5, 2, 3, 2, 14,
	2, 3, 2, 5, 2, 3, 2, 8, 2, 3, 2, 5, 2, 3, 2, 14,
}

// packWeight returns the variable-length code for one weight and its
// length in bits.
func packWeight(v uint16) (code uint32, n uint) {
	switch {
	case v == 0:
		return 0, 2
	case v == 1:
		return 2, 2
	case v == 2:
		return 1, 3
	case v == 3:
		return 5, 3
	case v <= 7:
		return uint32(v-4)<<3 | 3, 5
	case v <= 23:
		return uint32(v-8)<<4 | 7, 8
	default:
		return uint32(v-24)<<4 | 15, 14
	}
}

// appendPackedWeights appends the variable-length encoding of all 360
// weights to dst.
func appendPackedWeights(dst []byte, w *[numWeights]uint16) []byte {
	var acc uint32
	var n uint
	for _, v := range w {
		code, k := packWeight(v)
		acc |= code << n
		n += k
		for n >= 8 {
			dst = append(dst, byte(acc))
			acc >>= 8
			n -= 8
		}
	}
	if n > 0 {
		dst = append(dst, byte(acc))
	}
	return dst
}

// decodePackedWeights reads 360 weights from payload, which must be
// consumed exactly.
func decodePackedWeights(payload []byte, w *[numWeights]uint16) error {
	var acc uint32
	var n uint
	pos := 0
	for i := range w {
		for n < 14 && pos < len(payload) {
			acc |= uint32(payload[pos]) << n
			n += 8
			pos++
		}
		k := uint(weightBits[acc&31])
		if k > n {
			return ErrCorrupt
		}
		switch k {
		case 2:
			w[i] = uint16(acc & 3 >> 1)
		case 3:
			w[i] = uint16(2 + acc>>2&1)
		case 5:
			w[i] = uint16(4 + acc>>3&3)
		case 8:
			w[i] = uint16(8 + acc>>4&15)
		default: // 14
			w[i] = uint16(24 + acc>>4&0x3ff)
		}
		acc >>= k
		n -= k
	}
	if pos != len(payload) || n >= 8 {
		return ErrCorrupt
	}
	return nil
}

package lzfse

import "fmt"

// LZVN is a byte-oriented encoding used for inputs too small to
// amortize an entropy-coded block. Each opcode carries up to 3
// leading literals (L), a match length (M), and a distance (D):
//
//	sml_d  LLMMMDDD DDDDDDDD            D <= 0x5ff
//	med_d  101LLMMM DDDDDDMM DDDDDDDD   M <= 34, D <= 0x3fff
//	lrg_d  LLMMM111 DDDDDDDD DDDDDDDD
//	pre_d  LLMMM110                     previous D
//	sml_l  1110LLLL                     1..15 literals
//	lrg_l  11100000 LLLLLLLL            16..271 literals
//	sml_m  1111MMMM                     1..15 more match bytes, previous D
//	lrg_m  11110000 MMMMMMMM            16..271 more match bytes
//	eos    00000110 + 7 bytes
//	nop    00001110, 00010110
//
// Opcodes 0x70-0x7f and 0xd0-0xdf are undefined. A D-type opcode
// holding x leading literals can carry at most 10-2x match bytes;
// that cap is what keeps the encoder out of the undefined ranges.

func vnMatchLenForLiterals(x int) int {
	return 10 - 2*x
}

// The eos opcode plus its padding.
var vnEOS = [8]byte{0x06, 0, 0, 0, 0, 0, 0, 0}

// The longest single opcode: lrg_l or lrg_m, two bytes plus up to 271
// literals.
const maxVNOpLen = 2 + 271

// appendVNBlock appends a bvxn block encoding src to dst using the
// match list from the finder.
func appendVNBlock(dst []byte, src []byte, matches []match) []byte {
	start := len(dst)
	dst = appendUint32(dst, magicVN)
	dst = appendUint32(dst, uint32(len(src)))
	dst = appendUint32(dst, 0) // payload size, patched below

	pos := 0
	prevD := 0
	for _, m := range matches {
		lit := src[pos : pos+m.unmatched]
		pos += m.unmatched + m.length
		dst, prevD = appendVNMatch(dst, lit, m.length, m.distance, prevD)
	}
	dst = append(dst, vnEOS[:]...)

	store32(dst, start+8, uint32(len(dst)-start-12))
	return dst
}

// appendVNLiterals emits a literal run, leaving up to keep bytes for
// the caller to fold into its next opcode.
func appendVNLiterals(dst []byte, lit []byte, keep int) ([]byte, []byte) {
	for len(lit) > keep {
		n := len(lit) - keep
		if n > 271 {
			n = 271
		}
		if n > 15 {
			dst = append(dst, 0xe0, byte(n-16))
		} else {
			dst = append(dst, 0xe0|byte(n))
		}
		dst = append(dst, lit[:n]...)
		lit = lit[n:]
	}
	return dst, lit
}

// appendVNMatchLen emits m more match bytes at the previous distance.
func appendVNMatchLen(dst []byte, m int) []byte {
	for m > 0 {
		if m > 15 {
			n := m
			if n > 271 {
				n = 271
			}
			dst = append(dst, 0xf0, byte(n-16))
			m -= n
		} else {
			dst = append(dst, 0xf0|byte(m))
			m = 0
		}
	}
	return dst
}

func appendVNMatch(dst []byte, lit []byte, m, d, prevD int) ([]byte, int) {
	if m == 0 {
		// Trailing literals.
		dst, _ = appendVNLiterals(dst, lit, 0)
		return dst, prevD
	}

	if d == prevD {
		// No need for a distance; emit the run as plain literal and
		// match-continuation opcodes.
		dst, _ = appendVNLiterals(dst, lit, 0)
		return appendVNMatchLen(dst, m), prevD
	}

	dst, lit = appendVNLiterals(dst, lit, 3)
	x := len(lit)
	m1 := vnMatchLenForLiterals(x)
	if m1 > m {
		m1 = m
	}

	switch {
	case d <= 0x5ff:
		dst = append(dst, byte(x<<6|(m1-3)<<3|d>>8), byte(d))
	case d <= 0x3fff && m <= 34:
		// med_d has room for the whole match length.
		m1 = m
		dst = append(dst, byte(0xa0|x<<3|(m1-3)>>2), byte((m1-3)&3|d<<2), byte(d>>6))
	default:
		dst = append(dst, byte(x<<6|(m1-3)<<3|7), byte(d), byte(d>>8))
	}
	dst = append(dst, lit...)
	return appendVNMatchLen(dst, m-m1), d
}

// A vnDecoder tracks progress through one bvxn block. Opcodes are
// decoded atomically: decode returns without consuming a partial
// opcode so a streaming caller can refill and retry.
type vnDecoder struct {
	nRaw     uint32 // declared output bytes remaining
	nPayload uint32 // declared payload bytes remaining
	d        int    // previous match distance
	done     bool
}

func (v *vnDecoder) init(nRaw, nPayload uint32) {
	v.nRaw = nRaw
	v.nPayload = nPayload
	v.d = 0
	v.done = false
}

// decode processes opcodes from p, writing at most budget bytes of
// output. It returns the payload bytes consumed and output bytes
// produced. done becomes true at the end-of-stream opcode, at which
// point both declared counts must be exactly used up.
func (v *vnDecoder) decode(w lzWriter, p []byte, budget int) (consumed, produced int, done bool, err error) {
	if int(v.nPayload) < len(p) {
		p = p[:v.nPayload]
	}
	pos := 0
	for pos < len(p) {
		op := p[pos]
		avail := len(p) - pos

		var opLen, nLit, nMatch, newD int
		switch {
		case op == 0x06: // eos
			if avail < 8 {
				break
			}
			if v.nPayload != 8 || v.nRaw != 0 {
				return pos, produced, false, fmt.Errorf("%w: early end of LZVN block", ErrCorrupt)
			}
			v.nPayload = 0
			v.done = true
			return pos + 8, produced, true, nil

		case op == 0x0e || op == 0x16: // nop
			opLen = 1

		case op >= 0x70 && op <= 0x7f || op >= 0xd0 && op <= 0xdf:
			return pos, produced, false, fmt.Errorf("%w: undefined LZVN opcode %#02x", ErrCorrupt, op)

		case op >= 0xf0: // sml_m / lrg_m
			if op == 0xf0 {
				opLen = 2
				if avail >= 2 {
					nMatch = int(p[pos+1]) + 16
				}
			} else {
				opLen = 1
				nMatch = int(op & 0xf)
			}
			newD = v.d

		case op >= 0xe0: // sml_l / lrg_l
			if op == 0xe0 {
				if avail >= 2 {
					nLit = int(p[pos+1]) + 16
					opLen = 2 + nLit
				} else {
					opLen = 2
				}
			} else {
				nLit = int(op & 0xf)
				opLen = 1 + nLit
			}

		case op >= 0xa0 && op < 0xc0: // med_d
			opLen = 3
			nLit = int(op >> 3 & 3)
			if avail >= 3 {
				nMatch = int(op&7)<<2 + int(p[pos+1]&3) + 3
				newD = int(p[pos+2])<<6 | int(p[pos+1])>>2
			}
			opLen += nLit

		default:
			nLit = int(op >> 6)
			nMatch = int(op>>3&7) + 3
			switch op & 7 {
			case 6: // pre_d
				opLen = 1
				newD = v.d
			case 7: // lrg_d
				opLen = 3
				if avail >= 3 {
					newD = int(p[pos+1]) | int(p[pos+2])<<8
				}
			default: // sml_d
				opLen = 2
				if avail >= 2 {
					newD = int(op&7)<<8 | int(p[pos+1])
				}
			}
			opLen += nLit
		}

		if op == 0x06 || opLen > avail {
			// Partial opcode; the caller refills and retries.
			break
		}
		if nLit+nMatch > budget-produced {
			break
		}
		if uint32(nLit+nMatch) > v.nRaw {
			return pos, produced, false, fmt.Errorf("%w: LZVN output overruns block", ErrCorrupt)
		}

		litStart := pos + opLen - nLit
		if nLit > 0 {
			w.writeLiterals(p[litStart : litStart+nLit])
		}
		if nMatch > 0 {
			if newD == 0 {
				return pos, produced, false, fmt.Errorf("%w: LZVN match with no distance", ErrCorrupt)
			}
			if err := w.copyMatch(newD, nMatch); err != nil {
				return pos, produced, false, err
			}
			v.d = newD
		}

		pos += opLen
		v.nPayload -= uint32(opLen)
		v.nRaw -= uint32(nLit + nMatch)
		produced += nLit + nMatch
	}

	if v.nPayload == 0 && !v.done {
		return pos, produced, false, fmt.Errorf("%w: LZVN block ends without eos", ErrCorrupt)
	}
	return pos, produced, false, nil
}

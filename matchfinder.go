package lzfse

import (
	"encoding/binary"
	"math/bits"
)

// A match is one unit of the LZ77 stream: a run of unmatched bytes
// followed by a back-reference. A trailing literal run has length 0.
type match struct {
	unmatched int
	length    int
	distance  int
}

const (
	tableBits    = 14
	numBuckets   = 1 << tableBits
	tableShift   = 32 - tableBits
	tableWays    = 4
	hashMul      = 0x9e3779b1
	minMatch     = 4
	goodMatchLen = 40

	// History kept for back-references. minFinderHistory must cover
	// maxMatchDistance.
	minFinderHistory = 1 << 18
	maxFinderHistory = 1 << 19
)

func hash4(u uint32) uint32 {
	return u * hashMul >> tableShift
}

// A tableEntry remembers the four bytes at a position, so candidates
// can be screened without touching the history buffer. pos is the
// position plus one; zero means empty.
type tableEntry struct {
	val uint32
	pos int32
}

type absMatch struct {
	start int
	end   int
	match int // position the match copies from
}

// A matchFinder finds LZ77 matches using a 4-way hash table over
// 4-byte sequences, with lazy match selection. It keeps its own
// history buffer so matches can reach back across chunk boundaries.
type matchFinder struct {
	table   [numBuckets][tableWays]tableEntry
	history []byte
}

func (q *matchFinder) reset() {
	q.table = [numBuckets][tableWays]tableEntry{}
	q.history = q.history[:0]
}

// findMatches looks for matches in src, appends them to dst, and
// returns dst. The matches cover all of src.
func (q *matchFinder) findMatches(dst []match, src []byte) []match {
	if len(q.history) > maxFinderHistory {
		// Trim the history buffer, rebasing the table.
		delta := len(q.history) - minFinderHistory
		copy(q.history, q.history[delta:])
		q.history = q.history[:minFinderHistory]

		for i := range q.table {
			for j := range q.table[i] {
				p := int(q.table[i][j].pos) - delta
				if p < 1 {
					q.table[i][j] = tableEntry{}
				} else {
					q.table[i][j].pos = int32(p)
				}
			}
		}
	}

	base := len(q.history)
	q.history = append(q.history, src...)
	h := q.history

	s := base
	nextEmit := base
	end := len(h)
	var pending absMatch

	emit := func(m absMatch) {
		dst = append(dst, match{
			unmatched: m.start - nextEmit,
			length:    m.end - m.start,
			distance:  m.start - m.match,
		})
		nextEmit = m.end
	}

	for s < end-minMatch+1 {
		m := q.search(s, nextEmit)

		if pending.end > 0 && (m.end == 0 || s >= pending.end) {
			// Nothing overlapping beat the pending match.
			if s < pending.end {
				q.insertRange(s+1, pending.end)
			}
			emit(pending)
			if s < pending.end {
				s = pending.end
			}
			pending = absMatch{}
			continue
		}

		if m.end == 0 {
			s++
			continue
		}

		if m.end-m.start >= goodMatchLen {
			// Long enough to take immediately.
			if pending.end > 0 && pending.start < m.start {
				pending.end = min(pending.end, m.start)
				if pending.end-pending.start >= minMatch {
					emit(pending)
				}
			}
			pending = absMatch{}
			if m.start < nextEmit {
				m.match += nextEmit - m.start
				m.start = nextEmit
			}
			q.insertRange(s+1, m.end)
			emit(m)
			s = m.end
			continue
		}

		if pending.end == 0 {
			pending = m
			s++
			continue
		}

		// Prefer the new match if it gains more bytes at the end than
		// it gives up at the start.
		if m.end-pending.end > m.start-pending.start {
			pending = m
		}
		s++
	}

	if pending.end > 0 {
		emit(pending)
	}
	if nextEmit < end {
		dst = append(dst, match{unmatched: end - nextEmit})
	}
	return dst
}

// search looks for the best match at pos, extending backward as far as
// min, and inserts pos into the table. It returns the zero absMatch if
// nothing of at least minMatch bytes is found.
func (q *matchFinder) search(pos, min int) absMatch {
	src := q.history
	u := binary.LittleEndian.Uint32(src[pos:])
	bucket := &q.table[hash4(u)]

	var best absMatch
	for i := range bucket {
		e := bucket[i]
		if e.pos == 0 || e.val != u {
			continue
		}
		candidate := int(e.pos) - 1
		if d := pos - candidate; d <= 0 || d > maxMatchDistance {
			continue
		}

		start := pos
		match := candidate
		end := extendMatch(src, match+4, pos+4)
		for start > min && match > 0 && src[start-1] == src[match-1] {
			start--
			match--
		}
		if end-start > best.end-best.start {
			best = absMatch{start, end, match}
		}
	}

	copy(bucket[1:], bucket[:])
	bucket[0] = tableEntry{val: u, pos: int32(pos + 1)}

	if best.end-best.start < minMatch {
		return absMatch{}
	}
	return best
}

// insertRange adds table entries for the positions in [start, end)
// that were skipped over by a match.
func (q *matchFinder) insertRange(start, end int) {
	src := q.history
	if end > len(src)-minMatch+1 {
		end = len(src) - minMatch + 1
	}
	for i := start; i < end; i++ {
		u := binary.LittleEndian.Uint32(src[i:])
		bucket := &q.table[hash4(u)]
		copy(bucket[1:], bucket[:])
		bucket[0] = tableEntry{val: u, pos: int32(i + 1)}
	}
}

// extendMatch returns the largest k such that k <= len(src) and that
// src[i:i+k-j] and src[j:k] have the same contents.
//
// It assumes that:
//
//	0 <= i && i < j && j <= len(src)
func extendMatch(src []byte, i, j int) int {
	for j+8 < len(src) {
		iBytes := binary.LittleEndian.Uint64(src[i:])
		jBytes := binary.LittleEndian.Uint64(src[j:])
		if iBytes != jBytes {
			// The XOR of the two values is nonzero at the first byte
			// that differs; the stream is little-endian, so the shift
			// by 3 converts a bit index to a byte index.
			return j + bits.TrailingZeros64(iBytes^jBytes)>>3
		}
		i, j = i+8, j+8
	}
	for ; j < len(src) && src[i] == src[j]; i, j = i+1, j+1 {
	}
	return j
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

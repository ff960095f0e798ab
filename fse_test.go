package lzfse

import (
	"math/rand"
	"testing"
)

func TestValueTables(t *testing.T) {
	check := func(name string, extra []uint8, base []uint32, symbol func(uint32) int, max uint32) {
		for i := range base {
			span := uint32(1) << extra[i]
			if i+1 < len(base) && base[i]+span != base[i+1] {
				t.Errorf("%s: symbol %d covers [%d, %d), but symbol %d starts at %d",
					name, i, base[i], base[i]+span, i+1, base[i+1])
			}
			if s := symbol(base[i]); s != i {
				t.Errorf("%s: symbol(%d) = %d, want %d", name, base[i], s, i)
			}
			if s := symbol(base[i] + span - 1); s != i {
				t.Errorf("%s: symbol(%d) = %d, want %d", name, base[i]+span-1, s, i)
			}
		}
		last := len(base) - 1
		if top := base[last] + 1<<extra[last] - 1; top < max {
			t.Errorf("%s: tables top out at %d, want at least %d", name, top, max)
		}
	}
	check("L", lExtraBits[:], lBase[:], lSymbol, maxLiteralRun)
	check("M", mExtraBits[:], mBase[:], mSymbol, maxMatchLen)
	check("D", dExtraBits[:], dBase[:], dSymbol, maxMatchDistance)
}

func TestPackedWeights(t *testing.T) {
	// Cycle every encodable weight value through the variable-length
	// coding.
	var w, got [numWeights]uint16
	for lo := 0; lo <= 1047; lo += numWeights {
		for i := range w {
			v := lo + i
			if v > 1047 {
				v = 0
			}
			w[i] = uint16(v)
		}
		packed := appendPackedWeights(nil, &w)
		if err := decodePackedWeights(packed, &got); err != nil {
			t.Fatalf("weights %d..: %v", lo, err)
		}
		if got != w {
			t.Fatalf("weights %d..: decoded table differs", lo)
		}
	}
}

func TestPackedWeightsTrailingByte(t *testing.T) {
	var w [numWeights]uint16
	packed := appendPackedWeights(nil, &w)
	var got [numWeights]uint16
	if err := decodePackedWeights(append(packed, 0), &got); err == nil {
		t.Fatal("decodePackedWeights accepted a trailing byte")
	}
	if err := decodePackedWeights(packed[:len(packed)-1], &got); err == nil {
		t.Fatal("decodePackedWeights accepted a truncated table")
	}
}

func TestNormalizeWeights(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for trial := 0; trial < 1000; trial++ {
		nSym := 2 + r.Intn(uSymbols-1)
		states := []uint32{64, 256, 1024}[r.Intn(3)]
		freq := make([]uint32, nSym)
		var total uint32
		for i := range freq {
			if r.Intn(3) > 0 {
				freq[i] = uint32(r.Intn(10000))
			}
			total += freq[i]
		}
		if total == 0 {
			freq[0] = 1
			total = 1
		}
		w := make([]uint16, nSym)
		normalizeWeights(freq, total, states, w)

		var sum uint32
		for i := range w {
			if freq[i] > 0 && w[i] == 0 {
				t.Fatalf("trial %d: symbol %d has frequency %d but weight 0", trial, i, freq[i])
			}
			if freq[i] == 0 && w[i] != 0 {
				t.Fatalf("trial %d: symbol %d has frequency 0 but weight %d", trial, i, w[i])
			}
			sum += uint32(w[i])
		}
		if sum == 0 || sum > states {
			t.Fatalf("trial %d: weights sum to %d with %d states", trial, sum, states)
		}
	}
}

// TestEntropyRoundTrip pushes a symbol stream through an encoder table
// and back through the matching decoder table.
func TestEntropyRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for trial := 0; trial < 50; trial++ {
		// A skewed distribution over a random-sized alphabet.
		nSym := 1 + r.Intn(uSymbols)
		msg := make([]byte, 4*(1+r.Intn(500)))
		for i := range msg {
			msg[i] = byte(r.Intn(nSym) * r.Intn(nSym) / nSym)
		}

		var freq [uSymbols]uint32
		for _, c := range msg {
			freq[c]++
		}
		var w [uSymbols]uint16
		normalizeWeights(freq[:], uint32(len(msg)), uStates, w[:])

		var et [uSymbols]eEntry
		buildETable(w[:], uStates, et[:])
		var dt [uStates]uEntry
		buildUTable(w[:], uStates, dt[:])

		var bw bitWriter
		var states [4]int32
		for i := len(msg); i > 0; i -= 4 {
			for j := 0; j < 4; j++ {
				states[3-j] = et[msg[i-1-j]].encodeState(states[3-j], &bw)
			}
			bw.flush()
		}
		pad := bw.finish()

		buf := append(make([]byte, 8), bw.out...)
		var br bitReader
		if err := br.init(buf, pad); err != nil {
			t.Fatalf("trial %d: init: %v", trial, err)
		}
		var ds [4]uint32
		for j := range ds {
			ds[j] = uint32(states[j])
			if ds[j] >= uStates {
				t.Fatalf("trial %d: final state %d out of range", trial, states[j])
			}
		}
		got := make([]byte, len(msg))
		for i := 0; i < len(msg); i += 4 {
			br.fill()
			for j := 0; j < 4; j++ {
				e := &dt[ds[j]]
				ds[j] = uint32(e.delta) + br.pull(uint(e.k))
				got[i+j] = e.symbol
			}
		}
		if err := br.finish(); err != nil {
			t.Fatalf("trial %d: finish: %v", trial, err)
		}
		for i := range got {
			if got[i] != msg[i] {
				t.Fatalf("trial %d: byte %d decoded as %d, want %d", trial, i, got[i], msg[i])
			}
		}
	}
}

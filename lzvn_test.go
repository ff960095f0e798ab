package lzfse

import (
	"bytes"
	"errors"
	"io/ioutil"
	"testing"
)

func vnRoundTrip(t *testing.T, src []byte, matches []match) {
	t.Helper()
	enc := appendVNBlock(nil, src, matches)
	enc = appendUint32(enc, magicEOS)

	dec, err := Decode(nil, enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(dec, src) {
		t.Fatalf("%d bytes did not survive the round trip (got %d back)", len(src), len(dec))
	}

	// The streaming decoder takes a different path through the same
	// opcodes, refilling a bounded payload window.
	r := NewReader(bytes.NewReader(enc))
	dec, err = ioutil.ReadAll(r)
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}
	if !bytes.Equal(dec, src) {
		t.Fatal("streaming decode differs")
	}
}

func TestVNLiteralRuns(t *testing.T) {
	// Around the sml_l/lrg_l boundaries.
	for _, n := range []int{1, 15, 16, 271, 272, 543, 1000} {
		var b streamBuilder
		b.literals(n)
		src, matches := b.finish()
		vnRoundTrip(t, src, matches)
	}
}

func TestVNOpcodeGrid(t *testing.T) {
	// Distances around the sml_d/med_d/lrg_d boundaries crossed with
	// match lengths around the med_d and lrg_m limits.
	for _, d := range []int{1, 3, 0x5ff, 0x600, 0x3fff, 0x4000, 40000} {
		for _, m := range []int{4, 10, 34, 35, 271, 272, 1000} {
			for _, lit := range []int{0, 1, 3, 4} {
				var b streamBuilder
				b.literals(d)
				b.literals(lit)
				b.match(m, d)
				b.literals(5)
				src, matches := b.finish()
				vnRoundTrip(t, src, matches)
			}
		}
	}
}

func TestVNRepeatDistance(t *testing.T) {
	var b streamBuilder
	b.literals(50)
	b.match(8, 20)
	b.literals(2)
	b.match(8, 20)
	b.match(12, 20)
	b.match(6, 19)
	src, matches := b.finish()
	vnRoundTrip(t, src, matches)
}

func vnBlock(nRaw uint32, payload []byte) []byte {
	enc := appendUint32(nil, magicVN)
	enc = appendUint32(enc, nRaw)
	enc = appendUint32(enc, uint32(len(payload)))
	enc = append(enc, payload...)
	return appendUint32(enc, magicEOS)
}

// The decoder accepts pre_d and nop opcodes that the encoder never
// produces.
func TestVNDecodeForeignOpcodes(t *testing.T) {
	payload := []byte{
		0xe2, 'a', 'b', // 2 literals
		0x0e,       // nop
		0x08, 0x02, // sml_d: match 4 at distance 2
		0x16, // nop
		0x1e, // pre_d: match 6 at the same distance
	}
	payload = append(payload, vnEOS[:]...)
	dec, err := Decode(nil, vnBlock(12, payload))
	if err != nil {
		t.Fatal(err)
	}
	if want := []byte("abababababab"); !bytes.Equal(dec, want) {
		t.Fatalf("got %q, want %q", dec, want)
	}
}

func TestVNDecodeCorrupt(t *testing.T) {
	cases := []struct {
		name    string
		nRaw    uint32
		payload []byte
	}{
		{"undefined opcode", 4, []byte{0x70, 0, 0, 0}},
		{"undefined opcode high", 4, []byte{0xd5, 0, 0, 0}},
		{"early eos", 4, vnEOS[:]},
		{"match before any distance", 4, []byte{0xf4}},
		{"output overrun", 2, append([]byte{0xe5, 'a', 'b', 'c', 'd', 'e'}, vnEOS[:]...)},
		{"no eos", 3, []byte{0xe3, 'a', 'b', 'c'}},
		{"distance zero", 8, append([]byte{0xe2, 'a', 'b', 0x08, 0x00}, vnEOS[:]...)},
	}
	for _, c := range cases {
		if _, err := Decode(nil, vnBlock(c.nRaw, c.payload)); !errors.Is(err, ErrCorrupt) {
			t.Errorf("%s: Decode = %v, want ErrCorrupt", c.name, err)
		}
	}
}

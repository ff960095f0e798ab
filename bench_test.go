package lzfse

import (
	"bytes"
	"io/ioutil"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

func BenchmarkEncode(b *testing.B) {
	b.StopTimer()
	b.ReportAllocs()
	data := testText(1 << 20)
	b.SetBytes(int64(len(data)))
	buf := Encode(nil, data)
	b.ReportMetric(float64(len(data))/float64(len(buf)), "ratio")
	b.StartTimer()
	for i := 0; i < b.N; i++ {
		buf = Encode(buf, data)
	}
}

func BenchmarkDecode(b *testing.B) {
	b.StopTimer()
	b.ReportAllocs()
	data := testText(1 << 20)
	enc := Encode(nil, data)
	b.SetBytes(int64(len(data)))
	buf, err := Decode(nil, enc)
	if err != nil {
		b.Fatal(err)
	}
	b.StartTimer()
	for i := 0; i < b.N; i++ {
		buf, err = Decode(buf, enc)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkWriter(b *testing.B) {
	b.StopTimer()
	b.ReportAllocs()
	data := testText(1 << 20)
	b.SetBytes(int64(len(data)))
	buf := new(bytes.Buffer)
	w := NewWriter(buf)
	w.Write(data)
	w.Close()
	b.ReportMetric(float64(len(data))/float64(buf.Len()), "ratio")
	b.StartTimer()
	for i := 0; i < b.N; i++ {
		w.Reset(ioutil.Discard)
		w.Write(data)
		w.Close()
	}
}

func BenchmarkReader(b *testing.B) {
	b.StopTimer()
	b.ReportAllocs()
	data := testText(1 << 20)
	enc := Encode(nil, data)
	b.SetBytes(int64(len(data)))
	src := bytes.NewReader(enc)
	r := NewReader(src)
	b.StartTimer()
	for i := 0; i < b.N; i++ {
		src.Reset(enc)
		r.Reset(src)
		if _, err := ioutil.ReadAll(r); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncodeSnappy(b *testing.B) {
	b.StopTimer()
	b.ReportAllocs()
	data := testText(1 << 20)
	b.SetBytes(int64(len(data)))
	buf := new(bytes.Buffer)
	w := snappy.NewBufferedWriter(buf)
	w.Write(data)
	w.Close()
	b.ReportMetric(float64(len(data))/float64(buf.Len()), "ratio")
	b.StartTimer()
	for i := 0; i < b.N; i++ {
		w.Reset(ioutil.Discard)
		w.Write(data)
		w.Close()
	}
}

func BenchmarkEncodeZstd(b *testing.B) {
	b.StopTimer()
	b.ReportAllocs()
	data := testText(1 << 20)
	b.SetBytes(int64(len(data)))
	w, err := zstd.NewWriter(nil)
	if err != nil {
		b.Fatal(err)
	}
	buf := w.EncodeAll(data, nil)
	b.ReportMetric(float64(len(data))/float64(len(buf)), "ratio")
	b.StartTimer()
	for i := 0; i < b.N; i++ {
		buf = w.EncodeAll(data, buf[:0])
	}
}

func BenchmarkEncodeLZ4(b *testing.B) {
	b.StopTimer()
	b.ReportAllocs()
	data := testText(1 << 20)
	b.SetBytes(int64(len(data)))
	buf := new(bytes.Buffer)
	w := lz4.NewWriter(buf)
	w.Write(data)
	w.Close()
	b.ReportMetric(float64(len(data))/float64(buf.Len()), "ratio")
	b.StartTimer()
	for i := 0; i < b.N; i++ {
		w.Reset(ioutil.Discard)
		w.Write(data)
		w.Close()
	}
}

func BenchmarkEncodeBrotli(b *testing.B) {
	b.StopTimer()
	b.ReportAllocs()
	data := testText(1 << 20)
	b.SetBytes(int64(len(data)))
	buf := new(bytes.Buffer)
	w := brotli.NewWriterLevel(buf, 5)
	w.Write(data)
	w.Close()
	b.ReportMetric(float64(len(data))/float64(buf.Len()), "ratio")
	b.StartTimer()
	for i := 0; i < b.N; i++ {
		w.Reset(ioutil.Discard)
		w.Write(data)
		w.Close()
	}
}

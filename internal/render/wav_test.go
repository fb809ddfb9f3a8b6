package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

type countingSource struct {
	calls  int
	frames int
}

func (s *countingSource) Process(dst []float32) {
	s.calls++
	for i := range dst {
		dst[i] = float32(s.frames+i/2) / 1000
	}
	s.frames += len(dst) / 2
}

func TestFramesPullsInBlocks(t *testing.T) {
	src := &countingSource{}
	out := Frames(src, 1000, 256)
	if len(out) != 2000 {
		t.Fatalf("len = %d, want 2000", len(out))
	}
	if src.calls != 4 {
		t.Fatalf("calls = %d, want 4", src.calls)
	}
	if out[2*999] != 0.999 {
		t.Fatalf("last frame = %v", out[2*999])
	}
}

func TestWriteWAVFileHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	samples := []float32{0, 0, 0.5, -0.5, 2, -2}
	if err := WriteWAVFile(path, samples, 48000); err != nil {
		t.Fatalf("WriteWAVFile: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.SampleRate != 48000 || dec.NumChans != 2 || dec.BitDepth != 16 {
		t.Fatalf("format = %d Hz, %d ch, %d bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	want := []int{0, 0, 16384, -16384, 32767, -32767}
	for i, w := range want {
		if buf.Data[i] != w {
			t.Fatalf("sample %d = %d, want %d", i, buf.Data[i], w)
		}
	}
}

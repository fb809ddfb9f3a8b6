// Package render renders a stream ahead of time and writes it to WAV files.
package render

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	channels  = 2
	bitDepth  = 16
	pcmFormat = 1
)

// Source fills dst with interleaved stereo frames.
type Source interface {
	Process(dst []float32)
}

// Frames pulls n stereo frames from src in blocks, the way the audio device
// would.
func Frames(src Source, n, block int) []float32 {
	if block <= 0 {
		block = 512
	}
	out := make([]float32, n*channels)
	for start := 0; start < n; start += block {
		end := min(start+block, n)
		src.Process(out[start*channels : end*channels])
	}
	return out
}

// WriteWAV encodes interleaved stereo float32 samples as 16-bit PCM.
func WriteWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, bitDepth, channels, pcmFormat)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: bitDepth,
	}
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		buf.Data[i] = int(math.Round(v * 32767))
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return enc.Close()
}

func WriteWAVFile(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAV(f, samples, sampleRate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

package kit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"

	"github.com/cbegin/polyseq-go/internal/config"
	"github.com/cbegin/polyseq-go/internal/engine"
)

// Registry receives decoded clips. The mixer implements it.
type Registry interface {
	AddSample(name string, data []float32) engine.SampleID
	MarkReady()
}

// DecodeWAV reads a WAV stream resampled to sampleRate and folds it to mono.
func DecodeWAV(r io.Reader, sampleRate int) ([]float32, error) {
	stream, err := wav.DecodeWithSampleRate(sampleRate, r)
	if err != nil {
		return nil, err
	}
	// The decoded stream is 16-bit little-endian stereo.
	raw, err := io.ReadAll(stream)
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		left := int16(binary.LittleEndian.Uint16(raw[i*4:]))
		right := int16(binary.LittleEndian.Uint16(raw[i*4+2:]))
		out[i] = (float32(left) + float32(right)) / 2 / 32768
	}
	return out, nil
}

func LoadFile(path string, sampleRate int) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := DecodeWAV(f, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return data, nil
}

// Load registers every configured sample in order, so the returned ids line up
// with the configuration's sample indices. A sample that fails to load is
// registered silent and its error reported; readiness is signalled either way.
func Load(reg Registry, samples []config.SampleConfig, sampleRate int, seed uint64, logger *log.Logger) ([]engine.SampleID, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	defer reg.MarkReady()
	ids := make([]engine.SampleID, len(samples))
	var errs []error
	for i, s := range samples {
		var (
			data []float32
			err  error
		)
		if s.Path != "" {
			data, err = LoadFile(s.Path, sampleRate)
		} else {
			data, err = Synthesize(s.Name, sampleRate, seed+uint64(i))
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("sample %q: %w", s.Name, err))
			data = nil
		} else {
			logger.Debug("sample loaded", "name", s.Name, "frames", len(data))
		}
		ids[i] = reg.AddSample(s.Name, data)
	}
	return ids, errors.Join(errs...)
}

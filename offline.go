package polyseq

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/polyseq-go/internal/config"
	"github.com/cbegin/polyseq-go/internal/kit"
	"github.com/cbegin/polyseq-go/internal/midiout"
	"github.com/cbegin/polyseq-go/internal/mixer"
	"github.com/cbegin/polyseq-go/internal/render"
)

const offlineBlock = 512

// RenderOffline plays pulses steps of the configured pattern through the
// mixer and returns interleaved stereo samples at cfg.SampleRate. Samples that
// fail to load are logged and play silent.
func RenderOffline(ctx context.Context, cfg config.Config, pulses int, logger *log.Logger) ([]float32, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	m := mixer.New(cfg.SampleRate, mixer.Options{BPM: cfg.BPM, PulsesPerBeat: cfg.PulsesPerBeat})
	ids, err := kit.Load(m, cfg.Samples, cfg.SampleRate, uint64(cfg.Seed), logger)
	if err != nil {
		logger.Warn("kit loaded with errors", "err", err)
	}
	seq, err := NewFromConfig(cfg, ids, WithBackend(m), WithLogger(logger))
	if err != nil {
		return nil, err
	}
	defer seq.Close()
	if err := waitReady(ctx, seq); err != nil {
		return nil, err
	}
	m.OnPulse(seq.OnPulse)

	frames := int(math.Ceil(float64(pulses) * m.FramesPerPulse()))
	return render.Frames(m, frames, offlineBlock), nil
}

// WriteOfflineWAV renders the pattern and writes it as a 16-bit WAV file.
func WriteOfflineWAV(ctx context.Context, path string, cfg config.Config, pulses int, logger *log.Logger) error {
	samples, err := RenderOffline(ctx, cfg, pulses, logger)
	if err != nil {
		return err
	}
	return render.WriteWAVFile(path, samples, cfg.SampleRate)
}

// ExportMIDI runs pulses steps of the configured pattern against a MIDI
// recorder and returns the resulting Standard MIDI File.
func ExportMIDI(ctx context.Context, cfg config.Config, pulses int, logger *log.Logger) (*smf.SMF, error) {
	rec := midiout.NewRecorder(cfg.BPM, cfg.PulsesPerBeat)
	backend := midiout.NewBackend(rec, cfg.MIDI.Channel, cfg.Notes(), logger)
	seq, err := NewFromConfig(cfg, PositionalIDs(cfg), WithBackend(backend), WithLogger(logger))
	if err != nil {
		return nil, err
	}
	defer seq.Close()
	if err := waitReady(ctx, seq); err != nil {
		return nil, err
	}
	for p := 0; p < pulses; p++ {
		seq.OnPulse(Timestamp(p))
	}
	// Taken before Close so held notes get the recorder's trailing release.
	return rec.SMF()
}

func waitReady(ctx context.Context, seq *Sequencer) error {
	select {
	case <-seq.Ready():
		return seq.Err()
	case <-ctx.Done():
		return fmt.Errorf("waiting for voice pool: %w", ctx.Err())
	}
}

// Package config loads the sequencer settings from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/cbegin/polyseq-go/internal/engine"
)

const (
	OutputAudio = "audio"
	OutputMIDI  = "midi"
	OutputNone  = "none"
)

// SampleConfig names one entry of the sample pool. An empty Path selects the
// built-in kit voice of the same name.
type SampleConfig struct {
	Name string `yaml:"name"`
	Path string `yaml:"path,omitempty"`
	// Note is played instead of the sample on MIDI output.
	Note uint8 `yaml:"note"`
}

type TrackConfig struct {
	Sample string `yaml:"sample"`
	Offset int    `yaml:"offset"`
	Length int    `yaml:"length"`
	Muted  bool   `yaml:"muted"`
}

type MIDIConfig struct {
	Port    string `yaml:"port,omitempty"`
	Channel uint8  `yaml:"channel"`
}

type Config struct {
	BPM            float64        `yaml:"bpm"`
	PulsesPerBeat  int            `yaml:"pulses_per_beat"`
	SampleRate     int            `yaml:"sample_rate"`
	Exponent       float64        `yaml:"exponent"`
	SequenceLength int            `yaml:"sequence_length"`
	GridCells      int            `yaml:"grid_cells"`
	Voices         int            `yaml:"voices,omitempty"`
	Seed           int64          `yaml:"seed,omitempty"`
	Output         string         `yaml:"output"`
	Samples        []SampleConfig `yaml:"samples"`
	Tracks         []TrackConfig  `yaml:"tracks"`
	MIDI           MIDIConfig     `yaml:"midi"`
	PresetsFile    string         `yaml:"presets_file,omitempty"`
	LogLevel       string         `yaml:"log_level"`
}

// Default is four drum tracks over sixteen steps at 120 BPM sixteenths.
func Default() Config {
	return Config{
		BPM:            120,
		PulsesPerBeat:  4,
		SampleRate:     44100,
		Exponent:       engine.DefaultExponent,
		SequenceLength: 16,
		GridCells:      16,
		Output:         OutputAudio,
		Samples: []SampleConfig{
			{Name: "kick", Note: 36},
			{Name: "ch", Note: 42},
			{Name: "oh", Note: 46},
			{Name: "sn", Note: 38},
		},
		Tracks: []TrackConfig{
			{Sample: "kick", Offset: 0, Length: 16},
			{Sample: "ch", Offset: 2, Length: 4, Muted: true},
			{Sample: "oh", Offset: 6, Length: 6, Muted: true},
			{Sample: "sn", Offset: 3, Length: 8, Muted: true},
		},
		MIDI:        MIDIConfig{Channel: 9},
		PresetsFile: "presets.yaml",
		LogLevel:    "info",
	}
}

// Load reads path over the defaults and validates the result. A missing file
// is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate(nil)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, cfg.Validate(nil)
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(nil); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// EnsureSeed gives a zero Seed a value taken from now, so an interactive start
// opens on a fresh random pattern. It returns the seed in use.
func (c *Config) EnsureSeed(now time.Time) int64 {
	if c.Seed == 0 {
		c.Seed = now.UnixNano()
		if c.Seed == 0 {
			c.Seed = 1
		}
	}
	return c.Seed
}

// VoiceCount is the voice pool size, which defaults to the sequence length.
func (c Config) VoiceCount() int {
	if c.Voices > 0 {
		return c.Voices
	}
	return c.SequenceLength
}

// Notes returns the MIDI note of every sample, in pool order.
func (c Config) Notes() []uint8 {
	notes := make([]uint8, len(c.Samples))
	for i, s := range c.Samples {
		notes[i] = s.Note
	}
	return notes
}

// SampleIndex returns the pool position of the named sample, or -1.
func (c Config) SampleIndex(name string) int {
	for i, s := range c.Samples {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// Validate reports settings the sequencer cannot run with. Settings that only
// degrade playback are logged as warnings on logger, which may be nil.
func (c Config) Validate(logger *log.Logger) error {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	var errs []error
	if c.BPM <= 0 {
		errs = append(errs, fmt.Errorf("bpm must be positive, got %v", c.BPM))
	}
	if c.PulsesPerBeat <= 0 {
		errs = append(errs, fmt.Errorf("pulses_per_beat must be positive, got %d", c.PulsesPerBeat))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.Exponent < 1 {
		errs = append(errs, fmt.Errorf("exponent must be at least 1, got %v", c.Exponent))
	}
	if c.SequenceLength <= 0 {
		errs = append(errs, fmt.Errorf("sequence_length must be positive, got %d", c.SequenceLength))
	}
	if c.GridCells <= 0 {
		errs = append(errs, fmt.Errorf("grid_cells must be positive, got %d", c.GridCells))
	}
	if c.Voices < 0 {
		errs = append(errs, fmt.Errorf("voices must not be negative, got %d", c.Voices))
	}
	switch c.Output {
	case OutputAudio, OutputMIDI, OutputNone:
	default:
		errs = append(errs, fmt.Errorf("unknown output %q", c.Output))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.MIDI.Channel > 15 {
		errs = append(errs, fmt.Errorf("midi channel %d out of range", c.MIDI.Channel))
	}
	if len(c.Samples) == 0 {
		errs = append(errs, errors.New("no samples configured"))
	}
	seen := make(map[string]bool, len(c.Samples))
	for _, s := range c.Samples {
		if s.Name == "" {
			errs = append(errs, errors.New("sample without a name"))
			continue
		}
		if s.Note > 127 {
			errs = append(errs, fmt.Errorf("sample %q: note %d out of range", s.Name, s.Note))
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("duplicate sample %q", s.Name))
		}
		seen[s.Name] = true
	}
	if len(c.Tracks) == 0 {
		errs = append(errs, errors.New("no tracks configured"))
	}
	longest := 0
	for i, t := range c.Tracks {
		if !seen[t.Sample] {
			errs = append(errs, fmt.Errorf("track %d: unknown sample %q", i, t.Sample))
		}
		if t.Offset < 0 || t.Length < 0 || t.Offset+t.Length > c.SequenceLength {
			logger.Warn("track window outside the sequence, it will be clamped",
				"track", i, "offset", t.Offset, "length", t.Length, "steps", c.SequenceLength)
		}
		if t.Length > longest {
			longest = t.Length
		}
	}
	if v := c.VoiceCount(); v > 0 && longest > v {
		logger.Warn("longest window exceeds the voice pool, overlapping hits will be cut",
			"longest", longest, "voices", v)
	}
	return errors.Join(errs...)
}

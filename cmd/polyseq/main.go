package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // registers the MIDI driver

	"github.com/cbegin/polyseq-go"
	"github.com/cbegin/polyseq-go/internal/audio"
	"github.com/cbegin/polyseq-go/internal/config"
	"github.com/cbegin/polyseq-go/internal/kit"
	"github.com/cbegin/polyseq-go/internal/midiout"
	"github.com/cbegin/polyseq-go/internal/mixer"
	"github.com/cbegin/polyseq-go/internal/preset"
	"github.com/cbegin/polyseq-go/internal/termview"
)

const (
	audioBuffer = 50 * time.Millisecond
	redrawEvery = 50 * time.Millisecond
	clearScreen = "\033[H\033[2J"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML configuration file")
		bpm        = flag.Float64("bpm", 0, "tempo in beats per minute (overrides config)")
		ppb        = flag.Int("ppb", 0, "pulses per beat (overrides config)")
		output     = flag.String("output", "", "output: audio|midi|none (overrides config)")
		port       = flag.String("port", "", "MIDI output port name (overrides config)")
		seed       = flag.Int64("seed", 0, "random pattern seed, 0 picks one from the clock (overrides config)")
		logLevel   = flag.String("log-level", "", "debug|info|warn|error (overrides config)")
		presetSlot = flag.Int("preset", -1, "select this preset slot at start")
		wavPath    = flag.String("wav", "", "render the pattern to this WAV file and exit")
		smfPath    = flag.String("smf", "", "export the pattern to this MIDI file and exit")
		pulses     = flag.Int("pulses", 0, "pulses to export with -wav/-smf (default: four passes of the sequence)")
		listPorts  = flag.Bool("list-ports", false, "list MIDI output ports and exit")
		noView     = flag.Bool("quiet", false, "do not draw the step display")
	)
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "polyseq"})

	if *listPorts {
		defer midi.CloseDriver()
		fmt.Println(midi.GetOutPorts().String())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", "err", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bpm":
			cfg.BPM = *bpm
		case "ppb":
			cfg.PulsesPerBeat = *ppb
		case "output":
			cfg.Output = *output
		case "port":
			cfg.MIDI.Port = *port
		case "seed":
			cfg.Seed = *seed
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(logger); err != nil {
		logger.Fatal("invalid config", "err", err)
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	logger.Info("pattern", "seed", cfg.EnsureSeed(time.Now()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n := *pulses
	if n <= 0 {
		n = 4 * cfg.SequenceLength
	}
	if *wavPath != "" || *smfPath != "" {
		if err := export(ctx, cfg, n, *wavPath, *smfPath, logger); err != nil {
			logger.Fatal("export", "err", err)
		}
		return
	}

	if err := run(ctx, cfg, *presetSlot, !*noView, logger); err != nil {
		logger.Fatal("run", "err", err)
	}
}

func export(ctx context.Context, cfg config.Config, pulses int, wavPath, smfPath string, logger *log.Logger) error {
	if wavPath != "" {
		if err := polyseq.WriteOfflineWAV(ctx, wavPath, cfg, pulses, logger); err != nil {
			return err
		}
		logger.Info("wrote wav", "path", wavPath, "pulses", pulses)
	}
	if smfPath != "" {
		f, err := polyseq.ExportMIDI(ctx, cfg, pulses, logger)
		if err != nil {
			return err
		}
		if err := f.WriteFile(smfPath); err != nil {
			return err
		}
		logger.Info("wrote midi file", "path", smfPath, "pulses", pulses)
	}
	return nil
}

// run plays live until the context is cancelled. The mixer clocks the
// sequencer on audio output; MIDI and silent runs use the ticker.
func run(ctx context.Context, cfg config.Config, slot int, view bool, logger *log.Logger) error {
	var (
		seq     *polyseq.Sequencer
		err     error
		cleanup []func()
	)
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	switch cfg.Output {
	case config.OutputAudio:
		m := mixer.New(cfg.SampleRate, mixer.Options{BPM: cfg.BPM, PulsesPerBeat: cfg.PulsesPerBeat})
		ids, loadErr := kit.Load(m, cfg.Samples, cfg.SampleRate, uint64(cfg.Seed), logger)
		if loadErr != nil {
			logger.Warn("some samples failed to load and will be silent", "err", loadErr)
		}
		seq, err = polyseq.NewFromConfig(cfg, ids, polyseq.WithBackend(m), polyseq.WithLogger(logger))
		if err != nil {
			return err
		}
		m.OnPulse(seq.OnPulse)
		out, err := audio.Open(cfg.SampleRate, m, audioBuffer)
		if err != nil {
			return err
		}
		out.Start()
		cleanup = append(cleanup, func() { _ = out.Close() })
		logger.Info("playing", "output", "audio", "rate", cfg.SampleRate, "bpm", cfg.BPM)

	case config.OutputMIDI:
		cleanup = append(cleanup, midi.CloseDriver)
		outPort, err := midi.FindOutPort(cfg.MIDI.Port)
		if err != nil {
			return fmt.Errorf("midi port %q: %w", cfg.MIDI.Port, err)
		}
		send, err := midi.SendTo(outPort)
		if err != nil {
			return err
		}
		backend := midiout.NewBackend(midiout.SendFunc(send), cfg.MIDI.Channel, cfg.Notes(), logger)
		seq, err = polyseq.NewFromConfig(cfg, polyseq.PositionalIDs(cfg), polyseq.WithBackend(backend), polyseq.WithLogger(logger))
		if err != nil {
			return err
		}
		logger.Info("playing", "output", "midi", "port", outPort.String(), "channel", cfg.MIDI.Channel)

	default:
		seq, err = polyseq.NewFromConfig(cfg, polyseq.PositionalIDs(cfg), polyseq.WithLogger(logger))
		if err != nil {
			return err
		}
		logger.Info("running without sound output")
	}
	cleanup = append(cleanup, func() { _ = seq.Close() })

	if cfg.PresetsFile != "" {
		bank, err := preset.ReadFile(cfg.PresetsFile)
		if err != nil {
			logger.Warn("presets not loaded", "path", cfg.PresetsFile, "err", err)
		} else {
			seq.SetPresets(bank)
		}
	}
	if slot >= 0 && !seq.SelectPreset(slot) {
		logger.Warn("preset slot is empty", "slot", slot)
	}

	select {
	case <-seq.Ready():
		if err := seq.Err(); err != nil {
			return err
		}
	case <-ctx.Done():
		return nil
	}
	if cfg.Output != config.OutputAudio {
		if err := seq.Start(); err != nil {
			return err
		}
	}

	var tv *termview.View
	if view {
		names := make([]string, len(cfg.Tracks))
		for i, t := range cfg.Tracks {
			names[i] = t.Sample
		}
		tv = termview.New(os.Stdout, names)
		seq.OnStepAdvance(tv.Observe)
	}
	redraw := time.NewTicker(redrawEvery)
	defer redraw.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping", "steps", seq.Step())
			return nil
		case <-redraw.C:
			if tv != nil {
				fmt.Print(clearScreen + tv.Render(seq.State().Snapshot()))
			}
		}
	}
}

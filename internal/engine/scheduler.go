package engine

import (
	"errors"
	"io"
	"sync"

	"github.com/charmbracelet/log"
)

// StepEvent describes one track sounding (or being pre-set while muted) on a pulse.
type StepEvent struct {
	Step  uint64    // global step of the pulse
	Track int       // track index
	Index int       // position read from the value sequence
	Value int       // raw velocity at Index
	Gain  float64   // shaped gain in [0,1]
	Slot  int       // voice slot used for the pulse
	Muted bool      // the track was muted; the gain was set but nothing started
	At    Timestamp // timestamp handed to OnPulse
}

type Options struct {
	// Exponent of the gain curve. Zero means DefaultExponent.
	Exponent float64
	Logger   *log.Logger
}

// Scheduler advances the global step counter once per pulse and drives one
// voice slot per pulse from the shared state.
type Scheduler struct {
	mu        sync.Mutex
	state     *State
	pool      *VoicePool
	step      uint64
	exponent  float64
	observers []func(StepEvent)
	missing   []bool
	reads     []trackRead
	logger    *log.Logger
}

func NewScheduler(state *State, opts Options) (*Scheduler, error) {
	if state == nil {
		return nil, errors.New("scheduler needs a state")
	}
	exp := opts.Exponent
	if exp == 0 {
		exp = DefaultExponent
	}
	if exp < 1 {
		return nil, errors.New("gain exponent must be >= 1")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Scheduler{
		state:    state,
		exponent: exp,
		missing:  make([]bool, state.Tracks()),
		reads:    make([]trackRead, 0, state.Tracks()),
		logger:   logger,
	}, nil
}

// AttachPool installs the voice pool once the backend is ready. Until then
// every pulse advances the step counter without touching any voice.
func (s *Scheduler) AttachPool(pool *VoicePool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool = pool
}

// Pool returns the attached voice pool, or nil.
func (s *Scheduler) Pool() *VoicePool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool
}

// ReplaceTrackSound swaps a track's sample without racing a pulse in progress.
func (s *Scheduler) ReplaceTrackSound(track int, sample SampleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool == nil {
		return errors.New("voice pool not ready")
	}
	return s.pool.ReplaceTrackSound(track, sample)
}

// OnStepAdvance registers an observer called after every pulse for each track
// that was processed. Observers run on the pulse goroutine and must not block.
func (s *Scheduler) OnStepAdvance(fn func(StepEvent)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Step returns the number of pulses processed so far.
func (s *Scheduler) Step() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *Scheduler) Exponent() float64 { return s.exponent }

// OnPulse processes one musical subdivision. Its cost is bounded by the track
// count, not by the sequence length.
func (s *Scheduler) OnPulse(at Timestamp) {
	s.mu.Lock()
	step := s.step
	s.step++
	s.reads = s.state.read(step, s.reads[:0])

	slot := 0
	if s.pool != nil {
		slot = int(step % uint64(s.pool.Voices()))
	}
	var events []StepEvent
	if len(s.observers) > 0 {
		events = make([]StepEvent, 0, len(s.reads))
	}
	for _, r := range s.reads {
		trig := s.pool.Handle(slot, r.track)
		if trig == nil {
			if !s.missing[r.track] {
				s.missing[r.track] = true
				s.logger.Debug("track handle missing, skipping", "track", r.track, "step", step)
			}
			continue
		}
		if s.missing[r.track] {
			s.missing[r.track] = false
			s.logger.Debug("track handle available", "track", r.track, "step", step)
		}
		gain := Gain(r.value, s.exponent)
		// The ramp is issued while muted too so an unmute hears the current level.
		trig.RampGainTo(GainToDecibels(gain), at)
		if !r.muted {
			trig.Start(at)
		}
		if events != nil {
			events = append(events, StepEvent{
				Step:  step,
				Track: r.track,
				Index: r.index,
				Value: r.value,
				Gain:  gain,
				Slot:  slot,
				Muted: r.muted,
				At:    at,
			})
		}
	}
	observers := s.observers
	s.mu.Unlock()

	for _, ev := range events {
		for _, fn := range observers {
			fn(ev)
		}
	}
}

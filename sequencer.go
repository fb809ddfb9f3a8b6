package polyseq

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/cbegin/polyseq-go/internal/config"
	"github.com/cbegin/polyseq-go/internal/engine"
	"github.com/cbegin/polyseq-go/internal/preset"
)

// Re-exported so callers outside the module can use the façade.
type (
	StepEvent   = engine.StepEvent
	Snapshot    = engine.Snapshot
	TrackWindow = engine.TrackWindow
	Timestamp   = engine.Timestamp
	SampleID    = engine.SampleID
	Backend     = engine.Backend
	Trigger     = engine.Trigger
)

// EventKind identifies the events delivered on Watch().
type EventKind int

const (
	EventStep EventKind = iota
	EventPresetRestored
	EventSoundChanged
)

// Event carries a step, a preset restore or a sound change.
type Event struct {
	Kind   EventKind
	Step   StepEvent // EventStep
	Preset int       // EventPresetRestored
	Track  int       // EventSoundChanged
	Sample SampleID  // EventSoundChanged
}

type Option func(*options)

type options struct {
	exponent    float64
	voices      int
	logger      *log.Logger
	backend     Backend
	grid        int
	presetSlots int
	bpm         float64
	ppb         int
}

func defaultOptions() options {
	return options{
		exponent:    engine.DefaultExponent,
		presetSlots: preset.DefaultSlots,
		bpm:         120,
		ppb:         4,
	}
}

// WithExponent sets the gain curve exponent. It must be at least 1.
func WithExponent(exp float64) Option {
	return func(o *options) { o.exponent = exp }
}

// WithVoices sets the voice pool size. The default is the sequence length.
func WithVoices(n int) Option {
	return func(o *options) { o.voices = n }
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBackend connects the sequencer to a sound backend. The voice pool is
// built once the backend reports ready; pulses before that are silent.
func WithBackend(b Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithGrid sets the number of cells the range selectors snap to.
func WithGrid(cells int) Option {
	return func(o *options) { o.grid = cells }
}

func WithPresetSlots(n int) Option {
	return func(o *options) { o.presetSlots = n }
}

// WithTempo sets the rate of the built-in ticker clock.
func WithTempo(bpm float64, pulsesPerBeat int) Option {
	return func(o *options) {
		o.bpm = bpm
		o.ppb = pulsesPerBeat
	}
}

// Sequencer is the polyrhythmic step sequencer: a shared value sequence read
// through one window per track, advanced by an external pulse.
type Sequencer struct {
	mu        sync.Mutex
	state     *engine.State
	scheduler *engine.Scheduler
	backend   Backend
	sounds    []SampleID
	voices    int
	grid      int
	bank      *preset.Bank
	restorers []func(Snapshot)
	logger    *log.Logger
	bpm       float64
	ppb       int

	ready     chan struct{}
	closing   chan struct{}
	closeErr  error
	closed    bool
	attachErr error

	tickStop chan struct{}
	tickDone chan struct{}

	eventCh   chan Event
	eventChMu sync.Mutex
}

// New creates a sequencer of sequenceLength steps with one track per entry of
// sounds.
func New(sequenceLength int, sounds []SampleID, opts ...Option) (*Sequencer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard)
	}
	state, err := engine.NewState(sequenceLength, len(sounds))
	if err != nil {
		return nil, err
	}
	sched, err := engine.NewScheduler(state, engine.Options{Exponent: o.exponent, Logger: o.logger})
	if err != nil {
		return nil, err
	}
	voices := o.voices
	if voices <= 0 {
		voices = sequenceLength
	}
	grid := o.grid
	if grid <= 0 {
		grid = sequenceLength
	}
	s := &Sequencer{
		state:     state,
		scheduler: sched,
		backend:   o.backend,
		sounds:    append([]SampleID(nil), sounds...),
		voices:    voices,
		grid:      grid,
		bank:      preset.NewBank(o.presetSlots),
		logger:    o.logger,
		bpm:       o.bpm,
		ppb:       o.ppb,
		ready:     make(chan struct{}),
		closing:   make(chan struct{}),
	}
	sched.OnStepAdvance(s.publishStep)
	if s.backend != nil {
		go s.attachWhenReady()
	} else {
		// Nothing to attach; pulses still advance the step counter.
		close(s.ready)
	}
	return s, nil
}

// NewFromConfig builds a sequencer whose tracks, windows and mutes follow cfg.
// ids maps cfg.Samples positions to backend sample ids. A zero Seed leaves the
// sequence silent; any other seed fills it with a random pattern.
func NewFromConfig(cfg config.Config, ids []SampleID, opts ...Option) (*Sequencer, error) {
	sounds, err := TrackSounds(cfg, ids)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithExponent(cfg.Exponent),
		WithVoices(cfg.VoiceCount()),
		WithGrid(cfg.GridCells),
		WithTempo(cfg.BPM, cfg.PulsesPerBeat),
	}
	s, err := New(cfg.SequenceLength, sounds, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	for i, t := range cfg.Tracks {
		s.state.SetWindow(i, t.Offset, t.Length)
		s.state.SetMuted(i, t.Muted)
	}
	if cfg.Seed != 0 {
		s.state.SetSequence(engine.RandomSequence(cfg.SequenceLength, rand.New(rand.NewSource(cfg.Seed))))
	}
	return s, nil
}

// TrackSounds resolves every track's sample name to a backend id.
func TrackSounds(cfg config.Config, ids []SampleID) ([]SampleID, error) {
	sounds := make([]SampleID, len(cfg.Tracks))
	for i, t := range cfg.Tracks {
		idx := cfg.SampleIndex(t.Sample)
		if idx < 0 || idx >= len(ids) {
			return nil, fmt.Errorf("track %d: unknown sample %q", i, t.Sample)
		}
		sounds[i] = ids[idx]
	}
	return sounds, nil
}

// PositionalIDs is the id list for backends that address samples by their
// position in cfg.Samples, such as the MIDI backend.
func PositionalIDs(cfg config.Config) []SampleID {
	ids := make([]SampleID, len(cfg.Samples))
	for i := range ids {
		ids[i] = SampleID(i)
	}
	return ids
}

func (s *Sequencer) attachWhenReady() {
	select {
	case <-s.backend.Ready():
	case <-s.closing:
		return
	}
	defer close(s.ready)
	pool, err := engine.NewVoicePool(s.backend, s.sounds, s.voices)
	if err != nil {
		s.logger.Error("voice pool", "err", err)
		s.mu.Lock()
		s.attachErr = err
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = pool.Close()
		return
	}
	s.scheduler.AttachPool(pool)
	s.mu.Unlock()
	s.logger.Debug("voice pool ready", "voices", s.voices, "tracks", len(s.sounds))
}

// Ready is closed once the voice pool has been built, or has failed to build.
// Err tells the two apart. Without a backend it is closed from the start.
func (s *Sequencer) Ready() <-chan struct{} { return s.ready }

// Err returns the error that stopped the voice pool from being built.
func (s *Sequencer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachErr
}

// State exposes the shared state the editors write to.
func (s *Sequencer) State() *engine.State { return s.state }

func (s *Sequencer) Len() int    { return s.state.Len() }
func (s *Sequencer) Tracks() int { return s.state.Tracks() }
func (s *Sequencer) Grid() int   { return s.grid }

// OnPulse advances the sequencer by one step at the given timestamp. Install it
// as the pulse handler of an external clock.
func (s *Sequencer) OnPulse(at Timestamp) { s.scheduler.OnPulse(at) }

// Step returns the number of pulses processed.
func (s *Sequencer) Step() uint64 { return s.scheduler.Step() }

// SetValueSequence replaces the value sequence. Values are clamped to 0..127.
func (s *Sequencer) SetValueSequence(values []int) { s.state.SetSequence(values) }

// SetTrackWindow sets a track's window, clamped into the sequence, and returns
// the window actually stored.
func (s *Sequencer) SetTrackWindow(track, offset, length int) TrackWindow {
	return s.state.SetWindow(track, offset, length)
}

// SetTrackRange applies a committed range selector value.
func (s *Sequencer) SetTrackRange(track, min, max int) TrackWindow {
	return s.state.SetWindow(track, min, max-min)
}

func (s *Sequencer) SetMuted(track int, muted bool) { s.state.SetMuted(track, muted) }

// OnStepAdvance registers an observer called for every track processed on a
// pulse. Observers run on the pulse goroutine.
func (s *Sequencer) OnStepAdvance(fn func(StepEvent)) { s.scheduler.OnStepAdvance(fn) }

// SetTrackSound gives a track a different sample from the pool. Only that
// track's handles are rebuilt.
func (s *Sequencer) SetTrackSound(track int, sample SampleID) error {
	if track < 0 || track >= len(s.sounds) {
		return fmt.Errorf("track %d out of range", track)
	}
	if err := s.scheduler.ReplaceTrackSound(track, sample); err != nil {
		return err
	}
	s.mu.Lock()
	s.sounds[track] = sample
	s.mu.Unlock()
	s.sendEvent(Event{Kind: EventSoundChanged, Track: track, Sample: sample})
	return nil
}

// TrackSound returns the sample currently assigned to track.
func (s *Sequencer) TrackSound(track int) SampleID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if track < 0 || track >= len(s.sounds) {
		return 0
	}
	return s.sounds[track]
}

// Presets returns the preset bank.
func (s *Sequencer) Presets() *preset.Bank {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bank
}

// SetPresets replaces the preset bank, e.g. with one read from disk.
func (s *Sequencer) SetPresets(b *preset.Bank) {
	if b == nil {
		return
	}
	s.mu.Lock()
	s.bank = b
	s.mu.Unlock()
}

// SavePreset stores the live state in slot, overwriting it.
func (s *Sequencer) SavePreset(slot int) bool {
	ok := s.Presets().Save(slot, s.state.Snapshot())
	if ok {
		s.logger.Debug("preset saved", "slot", slot)
	}
	return ok
}

// SelectPreset restores a saved slot into the live state and notifies the
// restore listeners. Unsaved slots are ignored.
func (s *Sequencer) SelectPreset(slot int) bool {
	snap, ok := s.Presets().Select(slot)
	if !ok {
		return false
	}
	s.state.Restore(snap)
	restored := s.state.Snapshot()
	s.mu.Lock()
	listeners := append([]func(Snapshot)(nil), s.restorers...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(restored.Clone())
	}
	s.sendEvent(Event{Kind: EventPresetRestored, Preset: slot})
	s.logger.Debug("preset selected", "slot", slot)
	return true
}

// OnPresetRestore registers a listener that resynchronises views after a
// preset is selected.
func (s *Sequencer) OnPresetRestore(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.restorers = append(s.restorers, fn)
	s.mu.Unlock()
}

// Watch returns a channel that receives step, preset and sound events. The
// channel is buffered (cap 64) and events are dropped when it is full. Only
// the most recent Watch() channel receives events.
func (s *Sequencer) Watch() <-chan Event {
	ch := make(chan Event, 64)
	s.eventChMu.Lock()
	s.eventCh = ch
	s.eventChMu.Unlock()
	return ch
}

func (s *Sequencer) publishStep(ev StepEvent) {
	s.sendEvent(Event{Kind: EventStep, Step: ev})
}

func (s *Sequencer) sendEvent(ev Event) {
	s.eventChMu.Lock()
	ch := s.eventCh
	s.eventChMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}

// PulseInterval is the wall-clock length of one pulse for the ticker clock.
func (s *Sequencer) PulseInterval() time.Duration {
	if s.bpm <= 0 || s.ppb <= 0 {
		return 0
	}
	return time.Duration(float64(time.Minute) / (s.bpm * float64(s.ppb)))
}

// Start drives the sequencer from a wall-clock ticker, for backends that do
// not provide their own clock. Timestamps are pulse indices starting at 0.
func (s *Sequencer) Start() error {
	interval := s.PulseInterval()
	if interval <= 0 {
		return errors.New("tempo must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("sequencer closed")
	}
	if s.tickStop != nil {
		return errors.New("sequencer already running")
	}
	stop, done := make(chan struct{}), make(chan struct{})
	s.tickStop, s.tickDone = stop, done
	go s.tick(interval, stop, done)
	return nil
}

func (s *Sequencer) tick(interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(interval)
	defer t.Stop()
	var pulse Timestamp
	s.OnPulse(pulse)
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			pulse++
			s.OnPulse(pulse)
		}
	}
}

// Stop halts the ticker clock. Sounds already started ring out.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	stop, done := s.tickStop, s.tickDone
	s.tickStop, s.tickDone = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *Sequencer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickStop != nil
}

// Close stops the clock and releases every trigger handle.
func (s *Sequencer) Close() error {
	s.Stop()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.closeErr
	}
	s.closed = true
	close(s.closing)
	s.mu.Unlock()
	var err error
	if pool := s.scheduler.Pool(); pool != nil {
		s.scheduler.AttachPool(nil)
		err = pool.Close()
	}
	s.mu.Lock()
	s.closeErr = err
	s.mu.Unlock()
	return err
}

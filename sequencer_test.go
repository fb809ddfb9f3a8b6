package polyseq

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cbegin/polyseq-go/internal/config"
	"github.com/cbegin/polyseq-go/internal/engine"
)

type fakeTrigger struct {
	sample SampleID
	starts []Timestamp
	gains  []float64
	closed bool
}

func (t *fakeTrigger) RampGainTo(db float64, _ Timestamp) {
	t.gains = append(t.gains, engine.DecibelsToGain(db))
}
func (t *fakeTrigger) Start(at Timestamp) { t.starts = append(t.starts, at) }
func (t *fakeTrigger) Close() error {
	t.closed = true
	return nil
}

type fakeBackend struct {
	mu       sync.Mutex
	ready    chan struct{}
	triggers []*fakeTrigger
	fail     bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{ready: make(chan struct{})}
}

func (b *fakeBackend) Ready() <-chan struct{} { return b.ready }

func (b *fakeBackend) NewTrigger(id SampleID) (Trigger, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return nil, errors.New("no such sample")
	}
	t := &fakeTrigger{sample: id}
	b.triggers = append(b.triggers, t)
	return t, nil
}

func (b *fakeBackend) bySample(id SampleID) []*fakeTrigger {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*fakeTrigger
	for _, t := range b.triggers {
		if t.sample == id {
			out = append(out, t)
		}
	}
	return out
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting")
	}
}

func TestSequencerSilentUntilBackendReady(t *testing.T) {
	b := newFakeBackend()
	s, err := New(4, []SampleID{10, 11}, WithBackend(b), WithVoices(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	s.SetValueSequence([]int{127, 127, 127, 127})

	var events int
	s.OnStepAdvance(func(StepEvent) { events++ })
	s.OnPulse(0)
	if s.Step() != 1 || events != 0 {
		t.Fatalf("step=%d events=%d before ready", s.Step(), events)
	}

	close(b.ready)
	waitFor(t, s.Ready())
	if err := s.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	if got := len(b.triggers); got != 4 {
		t.Fatalf("triggers = %d, want voices*tracks = 4", got)
	}
	s.OnPulse(100)
	if events != 2 {
		t.Fatalf("events = %d, want one per track", events)
	}
	started := 0
	for _, tr := range b.triggers {
		started += len(tr.starts)
	}
	if started != 2 {
		t.Fatalf("starts = %d, want 2", started)
	}
}

func TestSequencerWithoutBackendRunsOnTicker(t *testing.T) {
	s, err := New(4, []SampleID{0, 1}, WithTempo(6000, 16))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	select {
	case <-s.Ready():
	default:
		t.Fatal("Ready must be closed without a backend")
	}
	if err := s.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.Step() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	s.Stop()
	if s.Step() < 2 {
		t.Fatalf("step = %d, want >= 2", s.Step())
	}
}

func TestSequencerReportsPoolFailure(t *testing.T) {
	b := newFakeBackend()
	b.fail = true
	close(b.ready)
	s, err := New(4, []SampleID{1}, WithBackend(b))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	waitFor(t, s.Ready())
	if s.Err() == nil {
		t.Fatal("expected voice pool error")
	}
	s.OnPulse(0)
}

func TestSequencerOperations(t *testing.T) {
	s, err := New(8, []SampleID{0, 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	if s.Len() != 8 || s.Tracks() != 2 || s.Grid() != 8 {
		t.Fatalf("len=%d tracks=%d grid=%d", s.Len(), s.Tracks(), s.Grid())
	}

	s.SetValueSequence([]int{200, -4, 64})
	if got := s.State().Sequence(); got[0] != 127 || got[1] != 0 || got[2] != 64 {
		t.Fatalf("sequence = %v", got)
	}
	if w := s.SetTrackWindow(1, 6, 5); w.Offset != 6 || w.Length != 5 {
		t.Fatalf("window = %+v", w)
	}
	if w := s.SetTrackRange(0, 2, 5); w.Offset != 2 || w.Length != 3 {
		t.Fatalf("range window = %+v", w)
	}
	if w := s.SetTrackWindow(0, 3, 50); w.Length != 8 {
		t.Fatalf("window not clamped: %+v", w)
	}
	s.SetMuted(1, true)
	if !s.State().Muted(1) {
		t.Fatal("track 1 should be muted")
	}
}

func TestSequencerPresetsRestoreAndNotify(t *testing.T) {
	s, err := New(4, []SampleID{0, 1}, WithPresetSlots(4))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	events := s.Watch()
	var restored []Snapshot
	s.OnPresetRestore(func(snap Snapshot) { restored = append(restored, snap) })

	s.SetValueSequence([]int{1, 2, 3, 4})
	s.SetTrackWindow(1, 1, 2)
	if !s.SavePreset(2) {
		t.Fatal("SavePreset failed")
	}
	s.SetValueSequence([]int{9, 9, 9, 9})
	s.SetTrackWindow(1, 0, 4)
	s.SetMuted(0, true)

	if s.SelectPreset(1) {
		t.Fatal("unsaved slot must not select")
	}
	if !s.SelectPreset(2) {
		t.Fatal("SelectPreset failed")
	}
	if got := s.State().Sequence(); got[0] != 1 || got[3] != 4 {
		t.Fatalf("sequence after restore = %v", got)
	}
	if w := s.State().Window(1); w.Offset != 1 || w.Length != 2 {
		t.Fatalf("window after restore = %+v", w)
	}
	if s.State().Muted(0) {
		t.Fatal("mute flag not restored")
	}
	if len(restored) != 1 || restored[0].Sequence[2] != 3 {
		t.Fatalf("listeners got %v", restored)
	}
	select {
	case ev := <-events:
		if ev.Kind != EventPresetRestored || ev.Preset != 2 {
			t.Fatalf("event = %+v", ev)
		}
	default:
		t.Fatal("no preset event")
	}
}

func TestSequencerSetTrackSound(t *testing.T) {
	b := newFakeBackend()
	close(b.ready)
	s, err := New(4, []SampleID{10, 11}, WithBackend(b), WithVoices(3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	waitFor(t, s.Ready())

	old10 := b.bySample(10)
	old11 := b.bySample(11)
	if err := s.SetTrackSound(0, 12); err != nil {
		t.Fatalf("SetTrackSound: %v", err)
	}
	if s.TrackSound(0) != 12 {
		t.Fatalf("TrackSound = %d", s.TrackSound(0))
	}
	for _, tr := range old10 {
		if !tr.closed {
			t.Fatal("replaced handles must be closed")
		}
	}
	for _, tr := range old11 {
		if tr.closed {
			t.Fatal("other track's handles must survive")
		}
	}
	if got := len(b.bySample(12)); got != 3 {
		t.Fatalf("new handles = %d, want 3", got)
	}
	if err := s.SetTrackSound(5, 1); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestSequencerWatchStepEvents(t *testing.T) {
	s, err := New(4, []SampleID{0})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	ch := s.Watch()
	b := newFakeBackend()
	close(b.ready)
	pool, err := engine.NewVoicePool(b, []SampleID{0}, 4)
	if err != nil {
		t.Fatalf("NewVoicePool: %v", err)
	}
	s.scheduler.AttachPool(pool)
	s.SetValueSequence([]int{0, 127, 0, 0})
	s.OnPulse(0)
	s.OnPulse(1)
	var got []StepEvent
	for len(got) < 2 {
		select {
		case ev := <-ch:
			if ev.Kind == EventStep {
				got = append(got, ev.Step)
			}
		case <-time.After(time.Second):
			t.Fatalf("got %d step events", len(got))
		}
	}
	if got[0].Gain != 0 || got[1].Gain != 1 || got[1].Index != 1 {
		t.Fatalf("events = %+v", got)
	}
}

func TestSequencerTickerClock(t *testing.T) {
	s, err := New(4, []SampleID{0}, WithTempo(6000, 16))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	if got := s.PulseInterval(); got != 625*time.Microsecond {
		t.Fatalf("interval = %v", got)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Fatal("second Start should fail")
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.Step() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	s.Stop()
	if s.Running() {
		t.Fatal("still running after Stop")
	}
	n := s.Step()
	if n < 3 {
		t.Fatalf("step = %d, want >= 3", n)
	}
	time.Sleep(5 * time.Millisecond)
	if s.Step() != n {
		t.Fatal("pulses after Stop")
	}
}

func TestSequencerCloseReleasesHandles(t *testing.T) {
	b := newFakeBackend()
	close(b.ready)
	s, err := New(2, []SampleID{0, 1}, WithBackend(b))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	waitFor(t, s.Ready())
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, tr := range b.triggers {
		if !tr.closed {
			t.Fatal("handle left open")
		}
	}
	if err := s.Start(); err == nil {
		t.Fatal("Start after Close should fail")
	}
	s.OnPulse(0)
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Seed = 3
	ids := []SampleID{20, 21, 22, 23}
	s, err := NewFromConfig(cfg, ids)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	defer s.Close()
	for i, tc := range cfg.Tracks {
		w := s.State().Window(i)
		if w.Offset != tc.Offset || w.Length != tc.Length || w.Muted != tc.Muted {
			t.Fatalf("track %d window = %+v, want %+v", i, w, tc)
		}
		if s.TrackSound(i) != ids[cfg.SampleIndex(tc.Sample)] {
			t.Fatalf("track %d sound = %d", i, s.TrackSound(i))
		}
	}
	nonZero := 0
	for _, v := range s.State().Sequence() {
		if v != 0 {
			nonZero++
		}
	}
	if nonZero == 0 {
		t.Fatal("seeded sequence is silent")
	}

	cfg.Tracks[0].Sample = "cowbell"
	if _, err := NewFromConfig(cfg, ids); err == nil {
		t.Fatal("expected unknown sample error")
	}
}

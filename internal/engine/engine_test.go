package engine

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

type call struct {
	kind string // "ramp" or "start"
	db   float64
	at   Timestamp
}

type recordingTrigger struct {
	sample SampleID
	calls  []call
	closed bool
}

func (t *recordingTrigger) RampGainTo(db float64, at Timestamp) {
	t.calls = append(t.calls, call{kind: "ramp", db: db, at: at})
}
func (t *recordingTrigger) Start(at Timestamp) { t.calls = append(t.calls, call{kind: "start", at: at}) }
func (t *recordingTrigger) Close() error       { t.closed = true; return nil }

func (t *recordingTrigger) starts() int {
	n := 0
	for _, c := range t.calls {
		if c.kind == "start" {
			n++
		}
	}
	return n
}

type recordingBackend struct {
	triggers []*recordingTrigger
	ready    chan struct{}
	fail     bool
}

func newRecordingBackend() *recordingBackend {
	b := &recordingBackend{ready: make(chan struct{})}
	close(b.ready)
	return b
}

func (b *recordingBackend) NewTrigger(sample SampleID) (Trigger, error) {
	if b.fail {
		return nil, errors.New("no such sample")
	}
	t := &recordingTrigger{sample: sample}
	b.triggers = append(b.triggers, t)
	return t, nil
}

func (b *recordingBackend) Ready() <-chan struct{} { return b.ready }

func newTestScheduler(t *testing.T, n, tracks int, exponent float64) (*State, *Scheduler, *VoicePool) {
	t.Helper()
	st, err := NewState(n, tracks)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	sched, err := NewScheduler(st, Options{Exponent: exponent})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	sounds := make([]SampleID, tracks)
	for i := range sounds {
		sounds[i] = SampleID(i)
	}
	pool, err := NewVoicePool(newRecordingBackend(), sounds, n)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	sched.AttachPool(pool)
	return st, sched, pool
}

func TestReadIndexStaysInRange(t *testing.T) {
	const n = 16
	for length := 1; length <= n; length++ {
		for offset := 0; offset <= n; offset++ {
			for step := uint64(0); step < 200; step++ {
				idx := ReadIndex(step, offset, length, n)
				if idx < 0 || idx >= n {
					t.Fatalf("ReadIndex(%d, %d, %d) = %d, out of [0,%d)", step, offset, length, idx, n)
				}
			}
		}
	}
	if got := ReadIndex(math.MaxUint64, 3, 7, n); got < 0 || got >= n {
		t.Fatalf("ReadIndex near overflow = %d", got)
	}
}

func TestGainCurve(t *testing.T) {
	for _, exp := range []float64{1, 1.8, 3} {
		if g := Gain(0, exp); g != 0 {
			t.Fatalf("Gain(0, %v) = %v, want 0", exp, g)
		}
		if g := Gain(127, exp); g != 1 {
			t.Fatalf("Gain(127, %v) = %v, want 1", exp, g)
		}
		prev := 0.0
		for v := 0; v <= 127; v++ {
			g := Gain(v, exp)
			if g < prev {
				t.Fatalf("Gain not monotonic at %d with exponent %v: %v < %v", v, exp, g, prev)
			}
			prev = g
		}
	}
}

func TestGainDecibelsRoundTrip(t *testing.T) {
	if db := GainToDecibels(0); !math.IsInf(db, -1) {
		t.Fatalf("GainToDecibels(0) = %v, want -Inf", db)
	}
	if db := GainToDecibels(1); db != 0 {
		t.Fatalf("GainToDecibels(1) = %v, want 0", db)
	}
	for _, g := range []float64{0, 0.1, 0.5, 1} {
		if got := DecibelsToGain(GainToDecibels(g)); math.Abs(got-g) > 1e-12 {
			t.Fatalf("round trip of %v = %v", g, got)
		}
	}
}

func TestSchedulerEndToEndExample(t *testing.T) {
	st, sched, _ := newTestScheduler(t, 16, 1, 1.0)
	st.SetSequence([]int{127, 0, 64, 32})
	st.SetWindow(0, 0, 4)

	var events []StepEvent
	sched.OnStepAdvance(func(ev StepEvent) { events = append(events, ev) })
	for i := 0; i < 5; i++ {
		sched.OnPulse(Timestamp(i * 100))
	}

	wantIdx := []int{0, 1, 2, 3, 0}
	wantGain := []float64{1.0, 0.0, 0.504, 0.252, 1.0}
	if len(events) != len(wantIdx) {
		t.Fatalf("got %d events, want %d", len(events), len(wantIdx))
	}
	for i, ev := range events {
		if ev.Index != wantIdx[i] {
			t.Fatalf("pulse %d index = %d, want %d", i, ev.Index, wantIdx[i])
		}
		if math.Abs(ev.Gain-wantGain[i]) > 0.001 {
			t.Fatalf("pulse %d gain = %.4f, want %.3f", i, ev.Gain, wantGain[i])
		}
		if ev.At != Timestamp(i*100) {
			t.Fatalf("pulse %d timestamp = %d", i, ev.At)
		}
	}
}

func TestSchedulerZeroLengthTrackIsSilent(t *testing.T) {
	st, sched, pool := newTestScheduler(t, 16, 2, 0)
	st.SetSequence([]int{100, 100, 100, 100})
	st.SetWindow(1, 0, 0)

	tracks := map[int]int{}
	sched.OnStepAdvance(func(ev StepEvent) { tracks[ev.Track]++ })
	for i := 0; i < 32; i++ {
		sched.OnPulse(Timestamp(i))
	}
	if tracks[1] != 0 {
		t.Fatalf("zero-length track notified %d times", tracks[1])
	}
	if tracks[0] != 32 {
		t.Fatalf("track 0 notified %d times, want 32", tracks[0])
	}
	for slot := 0; slot < pool.Voices(); slot++ {
		trig := pool.Handle(slot, 1).(*recordingTrigger)
		if len(trig.calls) != 0 {
			t.Fatalf("slot %d zero-length track got calls %#v", slot, trig.calls)
		}
	}
}

func TestSchedulerMutedTrackRampsWithoutStarting(t *testing.T) {
	st, sched, pool := newTestScheduler(t, 4, 1, 1)
	st.SetSequence([]int{127, 127, 127, 127})
	st.SetMuted(0, true)
	sched.OnPulse(7)

	trig := pool.Handle(0, 0).(*recordingTrigger)
	if len(trig.calls) != 1 || trig.calls[0].kind != "ramp" {
		t.Fatalf("muted track calls = %#v, want a single ramp", trig.calls)
	}
	if trig.calls[0].db != 0 || trig.calls[0].at != 7 {
		t.Fatalf("ramp = %#v, want 0 dB at 7", trig.calls[0])
	}

	st.SetMuted(0, false)
	sched.OnPulse(8)
	next := pool.Handle(1, 0).(*recordingTrigger)
	if next.starts() != 1 {
		t.Fatalf("unmuted track starts = %d, want 1", next.starts())
	}
}

func TestSchedulerZeroValueStillTriggers(t *testing.T) {
	_, sched, pool := newTestScheduler(t, 4, 1, 0)
	sched.OnPulse(0)
	trig := pool.Handle(0, 0).(*recordingTrigger)
	if trig.starts() != 1 {
		t.Fatalf("zero velocity hit starts = %d, want 1", trig.starts())
	}
	if !math.IsInf(trig.calls[0].db, -1) {
		t.Fatalf("zero velocity ramp = %v dB, want -Inf", trig.calls[0].db)
	}
}

func TestSchedulerVoiceRotation(t *testing.T) {
	const v = 16
	_, sched, _ := newTestScheduler(t, v, 4, 0)
	var slots []int
	seen := map[uint64]bool{}
	sched.OnStepAdvance(func(ev StepEvent) {
		if seen[ev.Step] {
			return
		}
		seen[ev.Step] = true
		slots = append(slots, ev.Slot)
	})
	for i := 0; i < 3*v; i++ {
		sched.OnPulse(Timestamp(i))
	}
	for i, slot := range slots {
		if slot != i%v {
			t.Fatalf("pulse %d used slot %d, want %d", i, slot, i%v)
		}
	}
	first := map[int]bool{}
	for _, slot := range slots[:v] {
		if first[slot] {
			t.Fatalf("slot %d reused within one rotation", slot)
		}
		first[slot] = true
	}
}

func TestSchedulerSharesSlotAcrossTracks(t *testing.T) {
	_, sched, pool := newTestScheduler(t, 8, 4, 0)
	sched.OnPulse(0)
	sched.OnPulse(1)
	for track := 0; track < 4; track++ {
		if n := pool.Handle(0, track).(*recordingTrigger).starts(); n != 1 {
			t.Fatalf("slot 0 track %d starts = %d, want 1", track, n)
		}
		if n := pool.Handle(1, track).(*recordingTrigger).starts(); n != 1 {
			t.Fatalf("slot 1 track %d starts = %d, want 1", track, n)
		}
	}
}

func TestSchedulerWithoutPoolDegrades(t *testing.T) {
	st, err := NewState(16, 4)
	if err != nil {
		t.Fatal(err)
	}
	sched, err := NewScheduler(st, Options{})
	if err != nil {
		t.Fatal(err)
	}
	calls := 0
	sched.OnStepAdvance(func(StepEvent) { calls++ })
	sched.OnPulse(0)
	sched.OnPulse(1)
	if calls != 0 {
		t.Fatalf("observer called %d times without a pool", calls)
	}
	if sched.Step() != 2 {
		t.Fatalf("step = %d, want 2", sched.Step())
	}
}

func TestSchedulerSkipsOnlyTheMissingTrack(t *testing.T) {
	st, sched, pool := newTestScheduler(t, 4, 3, 1)
	st.SetSequence([]int{127, 127, 127, 127})
	for slot := range pool.slots {
		pool.slots[slot][1] = nil
	}
	var tracks []int
	sched.OnStepAdvance(func(ev StepEvent) { tracks = append(tracks, ev.Track) })
	sched.OnPulse(5)

	for _, track := range []int{0, 2} {
		trig := pool.Handle(0, track).(*recordingTrigger)
		if len(trig.calls) != 2 || trig.calls[0].kind != "ramp" || trig.calls[1].kind != "start" {
			t.Fatalf("track %d calls = %#v, want ramp then start", track, trig.calls)
		}
		if trig.calls[1].at != 5 {
			t.Fatalf("track %d started at %d, want 5", track, trig.calls[1].at)
		}
	}
	if len(tracks) != 2 || tracks[0] != 0 || tracks[1] != 2 {
		t.Fatalf("observed tracks = %v, want [0 2]", tracks)
	}

	pool.slots[1][1] = &recordingTrigger{sample: 1}
	sched.OnPulse(6)
	if n := pool.Handle(1, 1).(*recordingTrigger).starts(); n != 1 {
		t.Fatalf("restored track starts = %d, want 1", n)
	}
}

func TestSchedulerRejectsFlatExponent(t *testing.T) {
	st, _ := NewState(4, 1)
	if _, err := NewScheduler(st, Options{Exponent: 0.5}); err == nil {
		t.Fatal("expected error for exponent < 1")
	}
}

func TestVoicePoolReplaceTrackSound(t *testing.T) {
	backend := newRecordingBackend()
	pool, err := NewVoicePool(backend, []SampleID{0, 1, 2, 3}, 4)
	if err != nil {
		t.Fatal(err)
	}
	var before [][]*recordingTrigger
	for slot := 0; slot < 4; slot++ {
		row := make([]*recordingTrigger, 4)
		for track := range row {
			row[track] = pool.Handle(slot, track).(*recordingTrigger)
		}
		before = append(before, row)
	}
	if err := pool.ReplaceTrackSound(2, 9); err != nil {
		t.Fatalf("replace: %v", err)
	}
	for slot := 0; slot < 4; slot++ {
		for track := 0; track < 4; track++ {
			old := before[slot][track]
			now := pool.Handle(slot, track).(*recordingTrigger)
			if track == 2 {
				if !old.closed || now == old || now.sample != 9 {
					t.Fatalf("slot %d track 2 not replaced", slot)
				}
				continue
			}
			if old.closed || now != old {
				t.Fatalf("slot %d track %d disturbed", slot, track)
			}
		}
	}
	if pool.Sound(2) != 9 {
		t.Fatalf("Sound(2) = %d, want 9", pool.Sound(2))
	}
	if err := pool.ReplaceTrackSound(4, 1); err == nil {
		t.Fatal("expected error for out of range track")
	}
}

func TestVoicePoolHandlesAreDistinct(t *testing.T) {
	pool, err := NewVoicePool(newRecordingBackend(), []SampleID{0, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[Trigger]bool{}
	for slot := 0; slot < 3; slot++ {
		for track := 0; track < 2; track++ {
			h := pool.Handle(slot, track)
			if seen[h] {
				t.Fatalf("handle shared at slot %d track %d", slot, track)
			}
			seen[h] = true
		}
	}
	if pool.Handle(3, 0) != nil || pool.Handle(0, 2) != nil {
		t.Fatal("out of range handle should be nil")
	}
}

func TestVoicePoolBackendFailure(t *testing.T) {
	b := newRecordingBackend()
	b.fail = true
	if _, err := NewVoicePool(b, []SampleID{0}, 2); err == nil {
		t.Fatal("expected backend error")
	}
}

func TestStateWindowClamp(t *testing.T) {
	st, _ := NewState(16, 1)
	cases := []struct {
		offset, length int
		want           TrackWindow
	}{
		{0, 4, TrackWindow{Offset: 0, Length: 4}},
		{14, 4, TrackWindow{Offset: 12, Length: 4}},
		{-3, 5, TrackWindow{Offset: 0, Length: 5}},
		{2, 40, TrackWindow{Offset: 0, Length: 16}},
		{20, 0, TrackWindow{Offset: 16, Length: 0}},
	}
	for _, tc := range cases {
		got := st.SetWindow(0, tc.offset, tc.length)
		if got != tc.want {
			t.Fatalf("SetWindow(%d, %d) = %+v, want %+v", tc.offset, tc.length, got, tc.want)
		}
		if got.Offset+got.Length > st.Len() || got.Offset < 0 {
			t.Fatalf("window %+v violates bounds", got)
		}
	}
}

func TestStateSnapshotIsIndependent(t *testing.T) {
	st, _ := NewState(4, 2)
	st.SetSequence([]int{1, 2, 3, 4})
	st.SetWindow(1, 1, 2)
	st.SetMuted(0, true)
	snap := st.Snapshot()

	st.SetValue(0, 99)
	st.SetWindow(1, 0, 4)
	st.SetMuted(0, false)
	if snap.Sequence[0] != 1 || snap.Offsets[1] != 1 || snap.Lengths[1] != 2 || !snap.Muted[0] {
		t.Fatalf("snapshot changed after live edits: %+v", snap)
	}

	st.Restore(snap)
	got := st.Snapshot()
	if got.Sequence[0] != 1 || got.Offsets[1] != 1 || got.Lengths[1] != 2 || !got.Muted[0] {
		t.Fatalf("restore = %+v, want %+v", got, snap)
	}
}

func TestStateSetValueClamps(t *testing.T) {
	st, _ := NewState(2, 1)
	st.SetValue(0, 500)
	st.SetValue(1, -4)
	st.SetValue(7, 3)
	if st.Value(0) != 127 || st.Value(1) != 0 {
		t.Fatalf("values = %v", st.Sequence())
	}
}

func TestRandomSequence(t *testing.T) {
	seq := RandomSequence(1000, rand.New(rand.NewSource(1)))
	zeros := 0
	for _, v := range seq {
		if v < 0 || v > 127 {
			t.Fatalf("value %d out of range", v)
		}
		if v == 0 {
			zeros++
		}
	}
	if zeros < 200 || zeros > 400 {
		t.Fatalf("zero count = %d, expected around 300", zeros)
	}
}

func BenchmarkSchedulerOnPulse(b *testing.B) {
	st, _ := NewState(16, 4)
	st.SetSequence(RandomSequence(16, rand.New(rand.NewSource(2))))
	sched, _ := NewScheduler(st, Options{})
	pool, _ := NewVoicePool(newRecordingBackend(), []SampleID{0, 1, 2, 3}, 16)
	sched.AttachPool(pool)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sched.OnPulse(Timestamp(i))
	}
}

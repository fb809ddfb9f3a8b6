package engine

import (
	"errors"
	"math/rand"
	"sync"
)

// MaxVelocity is the top of the stored velocity range.
const MaxVelocity = 127

// TrackWindow is a track's view into the shared value sequence.
type TrackWindow struct {
	Offset int
	Length int
	Muted  bool
}

// State is the editable sequencer state shared by the scheduler and the widgets.
// A single mutex guards the sequence, the windows and the mute flags as one unit,
// so a pulse never observes a new offset together with a stale length.
type State struct {
	mu      sync.Mutex
	seq     []int
	windows []TrackWindow
}

func NewState(sequenceLength, tracks int) (*State, error) {
	if sequenceLength <= 0 {
		return nil, errors.New("sequence length must be positive")
	}
	if tracks <= 0 {
		return nil, errors.New("track count must be positive")
	}
	s := &State{
		seq:     make([]int, sequenceLength),
		windows: make([]TrackWindow, tracks),
	}
	for i := range s.windows {
		s.windows[i].Length = sequenceLength
	}
	return s, nil
}

// RandomSequence returns n velocities where roughly 30% of the steps are silent
// and the rest are spread over 1..127.
func RandomSequence(n int, rng *rand.Rand) []int {
	out := make([]int, n)
	for i := range out {
		if rng.Float64() < 0.3 {
			continue
		}
		out[i] = rng.Intn(MaxVelocity) + 1
	}
	return out
}

func (s *State) Len() int { return len(s.seq) }

func (s *State) Tracks() int { return len(s.windows) }

func (s *State) Value(i int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.seq) {
		return 0
	}
	return s.seq[i]
}

// SetValue writes one step. Out of range indices are ignored and values are
// clamped to 0..127.
func (s *State) SetValue(i, v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.seq) {
		return
	}
	s.seq[i] = clampVelocity(v)
}

// Sequence returns a copy of the value sequence.
func (s *State) Sequence() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.seq...)
}

// SetSequence overwrites the sequence from values. Extra values are dropped and
// missing ones leave the tail untouched.
func (s *State) SetSequence(values []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < len(values) && i < len(s.seq); i++ {
		s.seq[i] = clampVelocity(values[i])
	}
}

func (s *State) Window(track int) TrackWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	if track < 0 || track >= len(s.windows) {
		return TrackWindow{}
	}
	return s.windows[track]
}

// SetWindow stores a track window and returns the clamped result actually kept.
func (s *State) SetWindow(track, offset, length int) TrackWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	if track < 0 || track >= len(s.windows) {
		return TrackWindow{}
	}
	w := &s.windows[track]
	w.Offset, w.Length = clampWindow(offset, length, len(s.seq))
	return *w
}

func (s *State) SetMuted(track int, muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if track < 0 || track >= len(s.windows) {
		return
	}
	s.windows[track].Muted = muted
}

func (s *State) Muted(track int) bool {
	return s.Window(track).Muted
}

type trackRead struct {
	track int
	index int
	value int
	muted bool
}

// read resolves every enabled track's read position for step under a single
// lock acquisition. Tracks with a zero length are left out.
func (s *State) read(step uint64, dst []trackRead) []trackRead {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t, w := range s.windows {
		if w.Length <= 0 {
			continue
		}
		idx := ReadIndex(step, w.Offset, w.Length, len(s.seq))
		dst = append(dst, trackRead{track: t, index: idx, value: s.seq[idx], muted: w.Muted})
	}
	return dst
}

// ReadIndex is the step a track with window (offset, length) reads at the given
// global step, wrapped into a sequence of n values. length must be positive.
func ReadIndex(step uint64, offset, length, n int) int {
	if offset < 0 {
		offset = 0
	}
	idx := step%uint64(length) + uint64(offset)
	return int(idx % uint64(n))
}

// Snapshot is a deep copy of the whole editable state.
type Snapshot struct {
	Sequence []int
	Offsets  []int
	Lengths  []int
	Muted    []bool
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Sequence: append([]int(nil), s.seq...),
		Offsets:  make([]int, len(s.windows)),
		Lengths:  make([]int, len(s.windows)),
		Muted:    make([]bool, len(s.windows)),
	}
	for i, w := range s.windows {
		snap.Offsets[i] = w.Offset
		snap.Lengths[i] = w.Length
		snap.Muted[i] = w.Muted
	}
	return snap
}

// Restore copies snap back into the live state under one lock. Fields shorter
// than the live state leave the remaining entries untouched.
func (s *State) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < len(snap.Sequence) && i < len(s.seq); i++ {
		s.seq[i] = clampVelocity(snap.Sequence[i])
	}
	for i := range s.windows {
		w := &s.windows[i]
		offset, length := w.Offset, w.Length
		if i < len(snap.Offsets) {
			offset = snap.Offsets[i]
		}
		if i < len(snap.Lengths) {
			length = snap.Lengths[i]
		}
		w.Offset, w.Length = clampWindow(offset, length, len(s.seq))
		if i < len(snap.Muted) {
			w.Muted = snap.Muted[i]
		}
	}
}

// Clone returns an independent deep copy.
func (snap Snapshot) Clone() Snapshot {
	return Snapshot{
		Sequence: append([]int(nil), snap.Sequence...),
		Offsets:  append([]int(nil), snap.Offsets...),
		Lengths:  append([]int(nil), snap.Lengths...),
		Muted:    append([]bool(nil), snap.Muted...),
	}
}

func clampWindow(offset, length, n int) (int, int) {
	length = clampInt(length, 0, n)
	offset = clampInt(offset, 0, n-length)
	return offset, length
}

func clampVelocity(v int) int {
	return clampInt(v, 0, MaxVelocity)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package mixer

import (
	"math"

	"github.com/cbegin/polyseq-go/internal/engine"
)

// Voice is one trigger handle. Gain changes are linear ramps between the
// previously scheduled point and the new one; a start rewinds the clip.
type Voice struct {
	mixer *Mixer
	data  []float32

	pos      int
	playing  bool
	pending  bool
	startAt  int64
	fromGain float32
	toGain   float32
	fromAt   int64
	toAt     int64
	closed   bool
}

var _ engine.Trigger = (*Voice)(nil)

func (v *Voice) RampGainTo(db float64, at engine.Timestamp) {
	target := float32(engine.DecibelsToGain(db))
	if math.IsNaN(float64(target)) {
		target = 0
	}
	v.mixer.mu.Lock()
	defer v.mixer.mu.Unlock()
	if v.closed {
		return
	}
	now := v.mixer.frame
	v.fromGain = v.gainAt(now)
	v.fromAt = v.toAt
	if v.fromAt > now {
		v.fromAt = now
	}
	v.toGain = target
	v.toAt = int64(at)
}

func (v *Voice) Start(at engine.Timestamp) {
	v.mixer.mu.Lock()
	defer v.mixer.mu.Unlock()
	if v.closed {
		return
	}
	v.pending = true
	v.startAt = int64(at)
}

func (v *Voice) Close() error {
	v.mixer.mu.Lock()
	v.closed = true
	v.playing = false
	v.pending = false
	v.mixer.mu.Unlock()
	v.mixer.removeVoice(v)
	return nil
}

// gainAt evaluates the ramp at frame. Callers hold the mixer lock.
func (v *Voice) gainAt(frame int64) float32 {
	if frame >= v.toAt || v.toAt <= v.fromAt {
		return v.toGain
	}
	if frame <= v.fromAt {
		return v.fromGain
	}
	t := float32(frame-v.fromAt) / float32(v.toAt-v.fromAt)
	return v.fromGain + (v.toGain-v.fromGain)*t
}

func (v *Voice) render(frame int64) float32 {
	if v.pending && frame >= v.startAt {
		v.pending = false
		v.playing = true
		v.pos = 0
	}
	if !v.playing {
		return 0
	}
	if v.pos >= len(v.data) {
		v.playing = false
		return 0
	}
	s := v.data[v.pos] * v.gainAt(frame)
	v.pos++
	return s
}

package mixer

import "math"

// Limiter is a stereo-linked peak limiter for the master bus. Gain reduction
// follows a single envelope so the image does not shift under load, and the
// result is hard clipped to [-1, 1].
type Limiter struct {
	threshold float32
	ratio     float32
	attack    float32
	release   float32
	env       float32
}

func NewLimiter(sampleRate int, thresholdDB, ratio, attackMs, releaseMs float32) *Limiter {
	sr := float64(sampleRate)
	if ratio < 1 {
		ratio = 1
	}
	return &Limiter{
		threshold: float32(math.Pow(10, float64(thresholdDB)/20)),
		ratio:     ratio,
		attack:    float32(1.0 - math.Exp(-1.0/(float64(attackMs)*sr/1000.0))),
		release:   float32(1.0 - math.Exp(-1.0/(float64(releaseMs)*sr/1000.0))),
	}
}

// DefaultLimiter catches the peaks of several overlapping full-scale hits.
func DefaultLimiter(sampleRate int) *Limiter {
	return NewLimiter(sampleRate, -1, 20, 0.5, 80)
}

func (l *Limiter) Process(left, right float32) (float32, float32) {
	peak := float32(math.Max(math.Abs(float64(left)), math.Abs(float64(right))))
	if peak > l.env {
		l.env += l.attack * (peak - l.env)
	} else {
		l.env += l.release * (peak - l.env)
	}
	g := l.gain()
	return hardClip(left * g), hardClip(right * g)
}

func (l *Limiter) gain() float32 {
	if l.env <= l.threshold || l.threshold <= 0 {
		return 1
	}
	over := float64(l.env / l.threshold)
	return float32(math.Pow(over, float64(1/l.ratio-1)))
}

func (l *Limiter) Reset() { l.env = 0 }

func hardClip(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

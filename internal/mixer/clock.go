package mixer

// Clock turns a frame stream into pulses. A pulse falls on the first frame at
// or after each multiple of the pulse length, so fractional lengths do not
// drift over long runs.
type Clock struct {
	framesPerPulse float64
	next           float64
}

func NewClock(sampleRate int, bpm float64, pulsesPerBeat int) Clock {
	var c Clock
	c.SetTempo(sampleRate, bpm, pulsesPerBeat)
	return c
}

// FramesPerPulse returns rate*60 / (bpm*pulsesPerBeat), or 0 when stopped.
func (c *Clock) FramesPerPulse() float64 { return c.framesPerPulse }

func (c *Clock) SetTempo(sampleRate int, bpm float64, pulsesPerBeat int) {
	if sampleRate <= 0 || bpm <= 0 || pulsesPerBeat <= 0 {
		c.framesPerPulse = 0
		return
	}
	c.framesPerPulse = float64(sampleRate) * 60 / (bpm * float64(pulsesPerBeat))
}

// Tick reports how many pulses are due at frame.
func (c *Clock) Tick(frame int64) int {
	if c.framesPerPulse <= 0 {
		return 0
	}
	n := 0
	for float64(frame) >= c.next {
		c.next += c.framesPerPulse
		n++
	}
	return n
}

func (c *Clock) Reset() { c.next = 0 }

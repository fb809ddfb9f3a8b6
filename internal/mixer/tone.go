package mixer

import (
	"math"
	"sync/atomic"
)

// Tone bands of the master bus.
const (
	BandLow = iota
	BandMid
	BandHigh
	numBands
)

var toneCrossovers = [numBands - 1]float64{150, 5000}

// Tone is a three-band master equaliser. Band gains are stored as float32 bit
// patterns so the UI can change them without taking the mixer lock.
type Tone struct {
	gains  [numBands]atomic.Uint32
	alphas [numBands - 1]float32
	lpL    [numBands - 1]float32
	lpR    [numBands - 1]float32
}

func NewTone(sampleRate int) *Tone {
	t := &Tone{}
	dt := 1.0 / float64(sampleRate)
	for i, freq := range toneCrossovers {
		rc := 1.0 / (2.0 * math.Pi * freq)
		t.alphas[i] = float32(dt / (rc + dt))
	}
	for i := range t.gains {
		t.gains[i].Store(math.Float32bits(1))
	}
	return t
}

// SetGain sets a band's linear gain; 1 is unity. Unknown bands are ignored.
func (t *Tone) SetGain(band int, gain float32) {
	if band < 0 || band >= numBands {
		return
	}
	if gain < 0 {
		gain = 0
	}
	t.gains[band].Store(math.Float32bits(gain))
}

func (t *Tone) Gain(band int) float32 {
	if band < 0 || band >= numBands {
		return 1
	}
	return math.Float32frombits(t.gains[band].Load())
}

// Process filters one frame. At unity gains the input passes through
// untouched while the band filters keep tracking it.
func (t *Tone) Process(l, r float32) (float32, float32) {
	var outL, outR float32
	remL, remR := l, r
	flat := true
	for i := range t.alphas {
		t.lpL[i] += t.alphas[i] * (remL - t.lpL[i])
		t.lpR[i] += t.alphas[i] * (remR - t.lpR[i])
		g := t.Gain(i)
		flat = flat && g == 1
		outL += t.lpL[i] * g
		outR += t.lpR[i] * g
		remL -= t.lpL[i]
		remR -= t.lpR[i]
	}
	g := t.Gain(BandHigh)
	if flat && g == 1 {
		return l, r
	}
	return outL + remL*g, outR + remR*g
}

func (t *Tone) Reset() {
	t.lpL = [numBands - 1]float32{}
	t.lpR = [numBands - 1]float32{}
}

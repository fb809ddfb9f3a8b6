// Package kit provides the sample pool: a synthesised drum kit and WAV files
// decoded at the output rate.
package kit

import (
	"fmt"
	"math"
)

const (
	Kick      = "kick"
	ClosedHat = "ch"
	OpenHat   = "oh"
	Snare     = "sn"
)

// Names lists the built-in voices.
func Names() []string { return []string{Kick, ClosedHat, OpenHat, Snare} }

// Synthesize renders a built-in voice as a mono clip. seed only affects the
// noise in hats and snares.
func Synthesize(name string, sampleRate int, seed uint64) ([]float32, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if seed == 0 {
		seed = 0x9e3779b97f4a7c15
	}
	n := noise{state: seed}
	var length float64
	var voice func(t float64) float64
	switch name {
	case Kick:
		length, voice = 0.25, kick
	case Snare:
		length, voice = 0.2, func(t float64) float64 { return snare(t, &n) }
	case ClosedHat:
		length, voice = 0.06, func(t float64) float64 { return hat(t, 42, &n) }
	case OpenHat:
		length, voice = 0.18, func(t float64) float64 { return hat(t, 15, &n) }
	default:
		return nil, fmt.Errorf("unknown kit voice %q", name)
	}
	out := make([]float32, int(length*float64(sampleRate)))
	for i := range out {
		out[i] = float32(voice(float64(i) / float64(sampleRate)))
	}
	return out, nil
}

// kick is a pitch-swept sine with a short click on top.
func kick(t float64) float64 {
	phase := 2 * math.Pi * 185 / 12.5 * (1 - math.Exp(-t*12.5))
	body := math.Sin(phase) * math.Exp(-t*18) * 0.8
	click := math.Sin(2*math.Pi*2100*t) * math.Exp(-t*250) * 0.24
	return saturate(body + click)
}

func snare(t float64, n *noise) float64 {
	env := math.Exp(-t * 26)
	body := (math.Sin(2*math.Pi*188*t)*0.24 + math.Sin(2*math.Pi*356*t)*0.1) * env
	rattle := (n.next() - n.next()*0.55) * env * (0.55 + 0.25*math.Exp(-t*8))
	return saturate(body + rattle)
}

func hat(t, decay float64, n *noise) float64 {
	metal := math.Sin(2*math.Pi*7300*t) + math.Sin(2*math.Pi*9200*t)*0.6
	return saturate((n.next()*0.8 + metal*0.2) * math.Exp(-t*decay) * 0.5)
}

func saturate(x float64) float64 { return math.Tanh(x) }

// noise is a small LCG in [-1, 1).
type noise struct{ state uint64 }

func (n *noise) next() float64 {
	n.state = n.state*6364136223846793005 + 1442695040888963407
	return float64(n.state>>11)/float64(1<<53)*2 - 1
}

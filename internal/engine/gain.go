package engine

import "math"

// DefaultExponent shapes velocities toward perceived loudness: low values are
// pushed toward silence and high values expanded.
const DefaultExponent = 1.8

// Gain maps a raw 0..127 velocity to a linear gain in [0,1] using
// (v/127)^exponent. Exponents below 1 are treated as 1.
func Gain(value int, exponent float64) float64 {
	if value <= 0 {
		return 0
	}
	if value >= MaxVelocity {
		return 1
	}
	if exponent < 1 {
		exponent = 1
	}
	return math.Pow(float64(value)/MaxVelocity, exponent)
}

// GainToDecibels converts a linear gain to dBFS. Zero gain yields -Inf.
func GainToDecibels(gain float64) float64 {
	if gain <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(gain)
}

// DecibelsToGain is the inverse of GainToDecibels.
func DecibelsToGain(db float64) float64 {
	if math.IsInf(db, -1) {
		return 0
	}
	return math.Pow(10, db/20)
}

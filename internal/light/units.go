package light

import "math"

const (
	// DefaultGamma matches the perceptual curve of typical LED drivers.
	DefaultGamma Gamma = 1.8
	MinGamma     Gamma = 1.0
	MaxGamma     Gamma = 3.0
)

// Brightness is a linear perceptual level, nominally in [0,1].
type Brightness float64

// Intensity is a hardware duty cycle fraction, nominally in [0,1].
type Intensity float64

// Gamma relates Brightness to Intensity: intensity = brightness^gamma.
type Gamma float64

// NewGamma clamps v into [MinGamma, MaxGamma]. Non-positive values select DefaultGamma.
func NewGamma(v float64) Gamma {
	if v <= 0 {
		return DefaultGamma
	}
	return Gamma(math.Min(math.Max(v, float64(MinGamma)), float64(MaxGamma)))
}

// Intensity converts to a hardware duty cycle.
func (b Brightness) Intensity(g Gamma) Intensity {
	if b <= 0 {
		return 0
	}
	return Intensity(math.Pow(float64(b), float64(g)))
}

// Clamp bounds b to [0,1].
func (b Brightness) Clamp() Brightness {
	return Brightness(clamp01(float64(b)))
}

// Brightness converts back to a perceptual level.
func (i Intensity) Brightness(g Gamma) Brightness {
	if i <= 0 {
		return 0
	}
	return Brightness(math.Pow(float64(i), 1/float64(g)))
}

// Clamp bounds i to [0,1].
func (i Intensity) Clamp() Intensity {
	return Intensity(clamp01(float64(i)))
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

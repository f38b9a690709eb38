// Package synth generates labeled synthetic equipment recordings.
//
// Each condition has a Profile describing a motor hum (fundamental plus
// harmonics), background noise and the fault artefacts layered on top:
// intermittent high-frequency tones, Gaussian impact pulses, amplitude
// modulation and dropouts. Generation is deterministic for a given seed.
//
// Dataset defaults:
//
//	PerClass:   50
//	SampleRate: 22050 Hz
//	Duration:   2 .. 5 s
//	EnvNoise:   sigma 0.01 .. 0.05
//	Seed:       42
package synth

import (
	"fmt"

	"github.com/kehinde-elelu/aimechanics/pkg/condition"
)

// Range is a closed interval sampled uniformly.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Fixed returns the degenerate range [v, v].
func Fixed(v float64) Range { return Range{Min: v, Max: v} }

// Tones describes added sinusoidal fault components.
type Tones struct {
	Count    int   `json:"count" yaml:"count"`
	Freq     Range `json:"freq" yaml:"freq"`
	Strength Range `json:"strength" yaml:"strength"`
	// Duty is the probability that a sample carries the tone. 1 is continuous.
	Duty float64 `json:"duty" yaml:"duty"`
}

// Pulses describes Gaussian impact pulses at random positions.
type Pulses struct {
	Rate     Range   `json:"rate" yaml:"rate"`         // pulses per second
	Width    float64 `json:"width" yaml:"width"`       // seconds
	StdDiv   float64 `json:"std_div" yaml:"std_div"`   // pulse std = width samples / StdDiv
	Strength Range   `json:"strength" yaml:"strength"` // peak amplitude
}

// Profile is the recipe of one condition.
type Profile struct {
	BaseFreq Range `json:"base_freq" yaml:"base_freq"`
	// Harmonics holds the gain of the fundamental and each overtone.
	Harmonics []float64 `json:"harmonics" yaml:"harmonics"`
	// Wobble is the relative frequency deviation of a 0.5 Hz wobble.
	Wobble float64 `json:"wobble" yaml:"wobble"`
	Noise  float64 `json:"noise" yaml:"noise"`
	Tones  Tones   `json:"tones" yaml:"tones"`
	Pulses Pulses  `json:"pulses" yaml:"pulses"`

	AMFreq  Range `json:"am_freq" yaml:"am_freq"`
	AMDepth Range `json:"am_depth" yaml:"am_depth"`

	// Dropout is the probability that a sample is attenuated to DropoutGain.
	Dropout     float64 `json:"dropout" yaml:"dropout"`
	DropoutGain float64 `json:"dropout_gain" yaml:"dropout_gain"`

	// Peak is the absolute peak after normalization.
	Peak float64 `json:"peak" yaml:"peak"`
}

// NormalProfile is a steady motor hum with low noise.
func NormalProfile() Profile {
	return Profile{
		BaseFreq:  Range{40, 60},
		Harmonics: []float64{0.5, 0.3, 0.15, 0.1},
		Noise:     0.05,
		AMFreq:    Range{0.2, 1.0},
		AMDepth:   Range{0.02, 0.1},
		Peak:      0.8,
	}
}

// EarlyFaultProfile adds an intermittent high-frequency tone and small
// bearing pulses to a noisier hum.
func EarlyFaultProfile() Profile {
	return Profile{
		BaseFreq:  Range{40, 60},
		Harmonics: []float64{0.5, 0.3, 0.15, 0.1},
		Noise:     0.1,
		Tones: Tones{
			Count:    1,
			Freq:     Range{500, 2000},
			Strength: Range{0.05, 0.2},
			Duty:     0.2,
		},
		Pulses: Pulses{
			Rate:     Range{8, 15},
			Width:    0.01,
			StdDiv:   6,
			Strength: Range{0.05, 0.15},
		},
		AMFreq:  Range{0.2, 1.0},
		AMDepth: Range{0.1, 0.2},
		Peak:    0.8,
	}
}

// FailureProfile is an unstable, noisy hum with strong tones, heavy pulses,
// deep modulation and dropouts.
func FailureProfile() Profile {
	return Profile{
		BaseFreq:  Range{35, 65},
		Harmonics: []float64{0.4, 0.25, 0.15, 0.1},
		Wobble:    0.05,
		Noise:     0.2,
		Tones: Tones{
			Count:    3,
			Freq:     Range{1000, 4000},
			Strength: Range{0.15, 0.3},
			Duty:     1,
		},
		Pulses: Pulses{
			Rate:     Range{15, 30},
			Width:    0.02,
			StdDiv:   5,
			Strength: Range{0.2, 0.5},
		},
		AMFreq:      Range{0.5, 2.0},
		AMDepth:     Range{0.2, 0.4},
		Dropout:     0.05,
		DropoutGain: 0.2,
		Peak:        0.9,
	}
}

// ProfileFor returns the default profile of c.
func ProfileFor(c condition.Class) (Profile, error) {
	switch c {
	case condition.Normal:
		return NormalProfile(), nil
	case condition.EarlyFault:
		return EarlyFaultProfile(), nil
	case condition.Failure:
		return FailureProfile(), nil
	}
	return Profile{}, fmt.Errorf("synth: no profile for %v", c)
}

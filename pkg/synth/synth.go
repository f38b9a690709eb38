package synth

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/kehinde-elelu/aimechanics/pkg/audio/wav"
	"github.com/kehinde-elelu/aimechanics/pkg/condition"
	"github.com/kehinde-elelu/aimechanics/pkg/features"
)

func (r Range) draw(rng *rand.Rand) float64 {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rng.Float64()*(r.Max-r.Min)
}

// Render synthesizes one recording of the given duration.
func Render(p Profile, rng *rand.Rand, sampleRate int, duration float64) []float64 {
	n := int(float64(sampleRate) * duration)
	if n <= 0 {
		return nil
	}
	sr := float64(sampleRate)
	audio := make([]float64, n)

	base := p.BaseFreq.draw(rng)
	for i := range audio {
		t := float64(i) / sr
		f := base * (1 + p.Wobble*math.Sin(2*math.Pi*0.5*t))
		for h, gain := range p.Harmonics {
			audio[i] += gain * math.Sin(2*math.Pi*f*float64(h+1)*t)
		}
	}

	if p.Noise > 0 {
		for i := range audio {
			audio[i] += rng.NormFloat64() * p.Noise
		}
	}

	for range p.Tones.Count {
		freq := p.Tones.Freq.draw(rng)
		strength := p.Tones.Strength.draw(rng)
		for i := range audio {
			if p.Tones.Duty >= 1 || rng.Float64() < p.Tones.Duty {
				audio[i] += strength * math.Sin(2*math.Pi*freq*float64(i)/sr)
			}
		}
	}

	addPulses(audio, p.Pulses, rng, sr, duration)

	if p.AMDepth.Max > 0 {
		amFreq := p.AMFreq.draw(rng)
		depth := p.AMDepth.draw(rng)
		for i := range audio {
			audio[i] *= 1 + depth*math.Sin(2*math.Pi*amFreq*float64(i)/sr)
		}
	}

	if p.Dropout > 0 {
		for i := range audio {
			if rng.Float64() < p.Dropout {
				audio[i] *= p.DropoutGain
			}
		}
	}

	peak := 0.0
	for _, v := range audio {
		peak = math.Max(peak, math.Abs(v))
	}
	if peak > 0 && p.Peak > 0 {
		for i := range audio {
			audio[i] = audio[i] / peak * p.Peak
		}
	}
	return audio
}

func addPulses(audio []float64, p Pulses, rng *rand.Rand, sr, duration float64) {
	width := int(sr * p.Width)
	if width <= 0 || p.Rate.Max <= 0 {
		return
	}
	std := float64(width) / p.StdDiv
	shape := make([]float64, width)
	centre := float64(width-1) / 2
	for i := range shape {
		d := (float64(i) - centre) / std
		shape[i] = math.Exp(-0.5 * d * d)
	}

	count := int(duration * p.Rate.draw(rng))
	for range count {
		pos := int(rng.Float64() * duration * sr)
		if pos+width >= len(audio) {
			continue
		}
		strength := p.Strength.draw(rng)
		for i, s := range shape {
			audio[pos+i] += s * strength
		}
	}
}

// AddNoise adds white Gaussian noise with the given sigma in place.
func AddNoise(audio []float64, rng *rand.Rand, sigma float64) {
	for i := range audio {
		audio[i] += rng.NormFloat64() * sigma
	}
}

// Options controls Dataset.
type Options struct {
	PerClass    int
	SampleRate  int
	MinDuration float64 // seconds
	MaxDuration float64 // seconds
	EnvNoise    Range
	Seed        uint64
	// Profiles overrides the default profile per class.
	Profiles map[condition.Class]Profile
	// Classes restricts generation; nil means every class.
	Classes []condition.Class
}

// DefaultOptions returns 50 recordings per class of 2-5 s at 22050 Hz.
func DefaultOptions() Options {
	return Options{
		PerClass:    50,
		SampleRate:  22050,
		MinDuration: 2,
		MaxDuration: 5,
		EnvNoise:    Range{0.01, 0.05},
		Seed:        42,
	}
}

func (o Options) validate() error {
	if o.PerClass <= 0 {
		return fmt.Errorf("synth: per-class count must be positive, got %d", o.PerClass)
	}
	if o.SampleRate <= 0 {
		return fmt.Errorf("synth: invalid sample rate %d", o.SampleRate)
	}
	if o.MinDuration <= 0 || o.MaxDuration < o.MinDuration {
		return fmt.Errorf("synth: invalid duration range %v..%v", o.MinDuration, o.MaxDuration)
	}
	return nil
}

func (o Options) profile(c condition.Class) (Profile, error) {
	if p, ok := o.Profiles[c]; ok {
		return p, nil
	}
	return ProfileFor(c)
}

// Sample is one generated recording.
type Sample struct {
	Class    condition.Class
	Name     string // e.g. "early_fault_007"
	Waveform features.Waveform
}

// Dataset generates PerClass recordings for every class, in class order.
func Dataset(opts Options) ([]Sample, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	classes := opts.Classes
	if classes == nil {
		classes = condition.All()
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x5851f42d4c957f2d))

	out := make([]Sample, 0, len(classes)*opts.PerClass)
	for _, c := range classes {
		p, err := opts.profile(c)
		if err != nil {
			return nil, err
		}
		for i := range opts.PerClass {
			duration := Range{opts.MinDuration, opts.MaxDuration}.draw(rng)
			audio := Render(p, rng, opts.SampleRate, duration)
			AddNoise(audio, rng, opts.EnvNoise.draw(rng))
			out = append(out, Sample{
				Class:    c,
				Name:     fmt.Sprintf("%s_%03d", c, i+1),
				Waveform: features.Waveform{Samples: audio, SampleRate: opts.SampleRate},
			})
		}
	}
	return out, nil
}

// WriteDataset generates a dataset and writes it as
// <dir>/<class>/<name>.wav. It returns the written paths.
func WriteDataset(dir string, opts Options) ([]string, error) {
	samples, err := Dataset(opts)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(samples))
	for _, s := range samples {
		classDir := filepath.Join(dir, s.Class.String())
		if err := os.MkdirAll(classDir, 0755); err != nil {
			return paths, fmt.Errorf("synth: mkdir: %w", err)
		}
		path := filepath.Join(classDir, s.Name+".wav")
		if err := wav.WriteFile(path, s.Waveform); err != nil {
			return paths, fmt.Errorf("synth: write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

package resampler

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/kehinde-elelu/aimechanics/pkg/features"
)

// Resample returns w converted to dstRate. The input is returned unchanged
// when it is already at dstRate.
func Resample(w features.Waveform, dstRate int) (features.Waveform, error) {
	if w.SampleRate <= 0 || dstRate <= 0 {
		return features.Waveform{}, fmt.Errorf("resampler: invalid rates %d -> %d", w.SampleRate, dstRate)
	}
	if w.SampleRate == dstRate || len(w.Samples) == 0 {
		return features.Waveform{Samples: w.Samples, SampleRate: dstRate}, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(w.SampleRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return features.Waveform{}, fmt.Errorf("resampler: create: %w", err)
	}

	want := int(math.Round(float64(len(w.Samples)) * float64(dstRate) / float64(w.SampleRate)))

	// 100 ms of silence pushes the filter delay line out.
	pad := w.SampleRate / 10
	in := make([]float64, len(w.Samples)+pad)
	copy(in, w.Samples)

	out, err := r.Process(in)
	if err != nil {
		return features.Waveform{}, fmt.Errorf("resampler: process: %w", err)
	}
	samples := make([]float64, want)
	copy(samples, out)
	return features.Waveform{Samples: samples, SampleRate: dstRate}, nil
}

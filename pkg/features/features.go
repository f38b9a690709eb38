// Package features turns a mono waveform into the fixed-length feature
// vector every model in this repository is trained on.
//
// The vector layout is identified by SchemaVersion and described by Names.
// Extraction is pure: the same samples and sample rate always produce a
// bit-identical vector.
package features

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/kehinde-elelu/aimechanics/pkg/audio/fbank"
)

// SchemaVersion identifies the feature layout. It changes whenever Names
// changes or the meaning of any entry changes.
const SchemaVersion = "amfeat/2"

// Dim is the length of every feature vector.
const Dim = numTime + 2*numMFCC + numSpectral + numChroma + numContrast

const (
	numTime     = 4
	numMFCC     = 13
	numSpectral = 6
	numChroma   = 12
	numContrast = 7

	rolloffFraction = 0.85
)

// Vector is a feature vector in schema order.
type Vector []float64

// Waveform is a mono audio signal.
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the length of the waveform in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// ErrInvalidAudio is matched by every *InvalidAudioError.
var ErrInvalidAudio = errors.New("features: invalid audio")

// InvalidAudioError reports a waveform that cannot be analysed or decoded.
type InvalidAudioError struct {
	Reason string
	Err    error
}

func (e *InvalidAudioError) Error() string {
	if e.Err != nil {
		return "features: invalid audio: " + e.Reason + ": " + e.Err.Error()
	}
	return "features: invalid audio: " + e.Reason
}

func (e *InvalidAudioError) Unwrap() error { return e.Err }

// Is reports whether target is ErrInvalidAudio.
func (e *InvalidAudioError) Is(target error) bool {
	return target == ErrInvalidAudio
}

var pitchClasses = [numChroma]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Names returns the name of every vector entry in schema order.
func Names() []string {
	names := make([]string, 0, Dim)
	names = append(names, "time.mean_abs", "time.std", "time.peak", "time.zcr")
	for i := range numMFCC {
		names = append(names, fmt.Sprintf("mfcc.mean.%02d", i))
	}
	for i := range numMFCC {
		names = append(names, fmt.Sprintf("mfcc.std.%02d", i))
	}
	names = append(names,
		"centroid.mean", "centroid.std",
		"bandwidth.mean", "bandwidth.std",
		"rolloff.mean", "rolloff.std",
	)
	for _, pc := range pitchClasses {
		names = append(names, "chroma."+pc)
	}
	for i := range numContrast {
		names = append(names, fmt.Sprintf("contrast.%02d", i))
	}
	return names
}

// ExtractWaveform is Extract applied to w.
func ExtractWaveform(w Waveform) (Vector, error) {
	return Extract(w.Samples, w.SampleRate)
}

// Extract computes the feature vector of a mono waveform.
//
// The waveform is first scaled to unit peak amplitude, so the vector does
// not depend on recording gain. An all-zero waveform is left unscaled.
func Extract(samples []float64, sampleRate int) (Vector, error) {
	if err := validate(samples, sampleRate); err != nil {
		return nil, err
	}

	x := normalize(samples)

	vec := make(Vector, 0, Dim)
	vec = append(vec, timeDomain(x)...)

	e := fbank.New(fbank.ForSampleRate(sampleRate))
	spec := e.STFT(x)

	mfccMean, mfccStd := columnStats(e.MFCC(spec))
	chroma, _ := columnStats(e.Chroma(spec))
	contrast, _ := columnStats(e.Contrast(spec))
	vec = append(vec, mfccMean...)
	vec = append(vec, mfccStd...)
	vec = append(vec, spectralShape(spec)...)
	vec = append(vec, chroma...)
	vec = append(vec, contrast...)

	if len(vec) != Dim {
		// Unreachable unless the layout constants drift from the extractor.
		panic(fmt.Sprintf("features: produced %d values, want %d", len(vec), Dim))
	}
	return vec, nil
}

func validate(samples []float64, sampleRate int) error {
	if sampleRate <= 0 {
		return &InvalidAudioError{Reason: fmt.Sprintf("sample rate %d", sampleRate)}
	}
	if len(samples) == 0 {
		return &InvalidAudioError{Reason: "empty waveform"}
	}
	for i, v := range samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &InvalidAudioError{Reason: fmt.Sprintf("non-finite sample at index %d", i)}
		}
	}
	return nil
}

func normalize(samples []float64) []float64 {
	peak := 0.0
	for _, v := range samples {
		peak = math.Max(peak, math.Abs(v))
	}
	out := make([]float64, len(samples))
	if peak == 0 {
		copy(out, samples)
		return out
	}
	for i, v := range samples {
		out[i] = v / peak
	}
	return out
}

// timeDomain returns mean |x|, population std, peak |x| and the
// zero-crossing rate.
//
// The crossing count only includes upward steps of the sign sequence
// (sign[i+1]-sign[i] > 0), and is divided by len(x) rather than len(x)-1.
// Trained models depend on this exact arithmetic.
func timeDomain(x []float64) []float64 {
	var sumAbs, peak float64
	for _, v := range x {
		a := math.Abs(v)
		sumAbs += a
		peak = math.Max(peak, a)
	}
	_, std := stat.PopMeanStdDev(x, nil)

	crossings := 0
	for i := 0; i+1 < len(x); i++ {
		if sign(x[i+1])-sign(x[i]) > 0 {
			crossings++
		}
	}
	n := float64(len(x))
	return []float64{sumAbs / n, std, peak, float64(crossings) / n}
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// spectralShape returns mean and std of the spectral centroid, bandwidth
// and rolloff across frames.
func spectralShape(spec *fbank.Spectrogram) []float64 {
	frames := spec.NumFrames()
	centroid := make([]float64, frames)
	bandwidth := make([]float64, frames)
	rolloff := make([]float64, frames)

	for t, row := range spec.Magnitude {
		var total, weighted float64
		for k, m := range row {
			total += m
			weighted += m * spec.BinFrequency(k)
		}
		if total == 0 {
			continue
		}
		c := weighted / total
		centroid[t] = c

		var spread float64
		for k, m := range row {
			d := spec.BinFrequency(k) - c
			spread += m * d * d
		}
		bandwidth[t] = math.Sqrt(spread / total)

		threshold := rolloffFraction * total
		var cum float64
		for k, m := range row {
			cum += m
			if cum >= threshold {
				rolloff[t] = spec.BinFrequency(k)
				break
			}
		}
	}

	out := make([]float64, 0, numSpectral)
	for _, series := range [][]float64{centroid, bandwidth, rolloff} {
		mean, std := stat.PopMeanStdDev(series, nil)
		out = append(out, mean, std)
	}
	return out
}

// columnStats returns the mean and population standard deviation of
// every column of rows.
func columnStats(rows [][]float64) (means, stds []float64) {
	if len(rows) == 0 {
		return nil, nil
	}
	m := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, row := range rows {
		m.SetRow(i, row)
	}
	n, d := m.Dims()
	means = make([]float64, d)
	stds = make([]float64, d)
	col := make([]float64, n)
	for j := range d {
		mat.Col(col, j, m)
		means[j], stds[j] = stat.PopMeanStdDev(col, nil)
	}
	return means, stds
}

// Package fbank computes short-time spectral representations of mono audio:
// the magnitude spectrogram, log mel filterbank energies, cepstral
// coefficients, chroma and spectral contrast.
//
// Frame geometry is derived from the sample rate:
//
//	WindowSize:  25 ms (Hann window)
//	HopSize:     10 ms
//	FFTSize:     next power of two >= WindowSize
//	NumMels:     40 (HTK mel scale, 0 Hz .. Nyquist)
//	NumCeps:     13 (orthonormal DCT-II of log mel power)
//	Contrast:    6 octave bands from 200 Hz plus the remainder up to Nyquist
//	Decibels:    10*log10(max(v, 1e-10)), clipped to 80 dB below the maximum
//	Magnitudes:  floored at 80 dB below the loudest bin
//
// Frames are centred: half a window of zeros is padded on each side of the
// signal, so any non-empty input yields at least one frame. The magnitude
// spectrogram keeps TopDB of dynamic range: bins quieter than that relative
// to the loudest bin are raised to the floor, so numerically silent bins of
// a noise-free signal read as a very low noise floor.
package fbank

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Config controls spectral analysis parameters.
type Config struct {
	SampleRate int     // audio sample rate in Hz
	WindowSize int     // analysis window length in samples
	HopSize    int     // hop length in samples
	FFTSize    int     // FFT size, >= WindowSize
	NumMels    int     // number of mel bands
	NumCeps    int     // number of cepstral coefficients kept
	LowFreq    float64 // lowest mel frequency in Hz
	HighFreq   float64 // highest mel frequency in Hz (0 = Nyquist)

	ContrastLowFreq  float64 // lower edge of the first contrast octave band
	ContrastBands    int     // number of octave bands (one extra band covers the rest)
	ContrastQuantile float64 // fraction of a band averaged for peak and valley

	AMin  float64 // floor applied before taking decibels
	TopDB float64 // dynamic range kept below the loudest value, 0 keeps all
}

// ForSampleRate returns the 25 ms / 10 ms configuration for sampleRate.
func ForSampleRate(sampleRate int) Config {
	win := max(2, int(float64(sampleRate)*0.025))
	hop := max(1, int(float64(sampleRate)*0.010))
	return Config{
		SampleRate:       sampleRate,
		WindowSize:       win,
		HopSize:          hop,
		FFTSize:          nextPow2(win),
		NumMels:          40,
		NumCeps:          13,
		LowFreq:          0,
		HighFreq:         0,
		ContrastLowFreq:  200,
		ContrastBands:    6,
		ContrastQuantile: 0.02,
		AMin:             1e-10,
		TopDB:            80,
	}
}

// Extractor computes spectral features for one Config.
// It is immutable after New and safe for concurrent use.
type Extractor struct {
	cfg      Config
	window   []float64
	melBank  [][]float64
	dct      [][]float64
	chroma   []int    // pitch class per FFT bin, -1 for DC
	contrast [][2]int // [start, end) bin range per contrast band
}

// New creates an Extractor with the given config.
func New(cfg Config) *Extractor {
	high := cfg.HighFreq
	if high <= 0 {
		high = float64(cfg.SampleRate) / 2
	}
	e := &Extractor{cfg: cfg}
	e.window = hannWindow(cfg.WindowSize)
	e.melBank = melFilterBank(cfg.NumMels, cfg.FFTSize, cfg.SampleRate, cfg.LowFreq, high)
	e.dct = dctMatrix(cfg.NumCeps, cfg.NumMels)
	e.chroma = chromaBins(cfg.FFTSize, cfg.SampleRate)
	e.contrast = contrastBands(cfg)
	return e
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config { return e.cfg }

// Spectrogram is a magnitude spectrogram, [frame][bin] with
// bin in [0, FFTSize/2].
type Spectrogram struct {
	SampleRate int
	FFTSize    int
	Magnitude  [][]float64
}

// NumFrames returns the number of analysis frames.
func (s *Spectrogram) NumFrames() int { return len(s.Magnitude) }

// BinFrequency returns the centre frequency of bin k in Hz.
func (s *Spectrogram) BinFrequency(k int) float64 {
	return float64(k) * float64(s.SampleRate) / float64(s.FFTSize)
}

// NumFrames returns how many centred frames a signal of n samples yields.
func (e *Extractor) NumFrames(n int) int {
	if n <= 0 {
		return 0
	}
	padded := n + 2*(e.cfg.WindowSize/2)
	if padded < e.cfg.WindowSize {
		return 0
	}
	return (padded-e.cfg.WindowSize)/e.cfg.HopSize + 1
}

// STFT computes the centred magnitude spectrogram of samples.
// Returns nil for empty input.
func (e *Extractor) STFT(samples []float64) *Spectrogram {
	cfg := e.cfg
	numFrames := e.NumFrames(len(samples))
	if numFrames == 0 {
		return nil
	}
	pad := cfg.WindowSize / 2
	nfft := cfg.FFTSize
	halfFFT := nfft/2 + 1

	// gonum FFT plans keep scratch space and are not safe to share.
	plan := fourier.NewFFT(nfft)
	frame := make([]float64, nfft)
	coeff := make([]complex128, halfFFT)

	mags := make([][]float64, numFrames)
	for t := range numFrames {
		start := t*cfg.HopSize - pad
		for i := range nfft {
			frame[i] = 0
		}
		for i := 0; i < cfg.WindowSize; i++ {
			idx := start + i
			if idx >= 0 && idx < len(samples) {
				frame[i] = samples[idx] * e.window[i]
			}
		}
		coeff = plan.Coefficients(coeff, frame)

		row := make([]float64, halfFFT)
		for k, c := range coeff {
			re, im := real(c), imag(c)
			row[k] = math.Sqrt(re*re + im*im)
		}
		mags[t] = row
	}
	e.floorMagnitudes(mags)
	return &Spectrogram{SampleRate: cfg.SampleRate, FFTSize: nfft, Magnitude: mags}
}

// floorMagnitudes raises every magnitude to at least TopDB below the
// loudest one. All-zero spectrograms are left alone.
func (e *Extractor) floorMagnitudes(mags [][]float64) {
	if e.cfg.TopDB <= 0 {
		return
	}
	top := 0.0
	for _, row := range mags {
		for _, v := range row {
			top = math.Max(top, v)
		}
	}
	if top == 0 {
		return
	}
	floor := top * math.Pow(10, -e.cfg.TopDB/20)
	for _, row := range mags {
		for k, v := range row {
			row[k] = math.Max(v, floor)
		}
	}
}

// MelPower returns the mel band energies of every frame, [frame][NumMels].
func (e *Extractor) MelPower(spec *Spectrogram) [][]float64 {
	out := make([][]float64, spec.NumFrames())
	for t, row := range spec.Magnitude {
		mel := make([]float64, e.cfg.NumMels)
		for m, filter := range e.melBank {
			sum := 0.0
			for k, w := range filter {
				if w != 0 {
					sum += w * row[k] * row[k]
				}
			}
			mel[m] = sum
		}
		out[t] = mel
	}
	return out
}

// MFCC returns cepstral coefficients of every frame, [frame][NumCeps].
// The log mel energies share one decibel floor across the whole signal.
func (e *Extractor) MFCC(spec *Spectrogram) [][]float64 {
	logMel := e.MelPower(spec)
	e.decibels(logMel, nil)
	out := make([][]float64, len(logMel))
	for t, bands := range logMel {
		ceps := make([]float64, e.cfg.NumCeps)
		for c, basis := range e.dct {
			sum := 0.0
			for m, b := range basis {
				sum += b * bands[m]
			}
			ceps[c] = sum
		}
		out[t] = ceps
	}
	return out
}

// Chroma returns the 12 pitch-class energies of every frame, each frame
// normalized to a maximum of 1. Silent frames are all zero.
func (e *Extractor) Chroma(spec *Spectrogram) [][]float64 {
	out := make([][]float64, spec.NumFrames())
	for t, row := range spec.Magnitude {
		c := make([]float64, 12)
		for k, pc := range e.chroma {
			if pc >= 0 {
				c[pc] += row[k] * row[k]
			}
		}
		peak := 0.0
		for _, v := range c {
			peak = math.Max(peak, v)
		}
		if peak > 0 {
			for i := range c {
				c[i] /= peak
			}
		}
		out[t] = c
	}
	return out
}

// Contrast returns the peak-to-valley difference in dB for each contrast
// band of every frame, [frame][ContrastBands+1]. Peaks and valleys are
// band means of magnitudes, each converted with its own decibel floor.
// Bands that fall entirely above Nyquist are zero.
func (e *Extractor) Contrast(spec *Spectrogram) [][]float64 {
	q := e.cfg.ContrastQuantile
	frames := spec.NumFrames()
	peaks := make([][]float64, frames)
	valleys := make([][]float64, frames)
	var sorted []float64
	for t, row := range spec.Magnitude {
		peaks[t] = make([]float64, len(e.contrast))
		valleys[t] = make([]float64, len(e.contrast))
		for b, rng := range e.contrast {
			n := rng[1] - rng[0]
			if n <= 0 {
				continue
			}
			sorted = append(sorted[:0], row[rng[0]:rng[1]]...)
			sort.Float64s(sorted)
			take := max(1, int(math.Round(q*float64(n))))
			var valley, peak float64
			for i := 0; i < take; i++ {
				valley += sorted[i]
				peak += sorted[n-1-i]
			}
			valleys[t][b] = valley / float64(take)
			peaks[t][b] = peak / float64(take)
		}
	}

	used := make([]bool, len(e.contrast))
	for b, rng := range e.contrast {
		used[b] = rng[1] > rng[0]
	}
	e.decibels(peaks, used)
	e.decibels(valleys, used)
	out := make([][]float64, frames)
	for t := range out {
		vals := make([]float64, len(e.contrast))
		for b := range vals {
			if used[b] {
				vals[b] = peaks[t][b] - valleys[t][b]
			}
		}
		out[t] = vals
	}
	return out
}

// decibels converts rows in place to 10*log10(max(v, AMin)) and raises
// every value to at least TopDB below the largest one. When cols is
// non-nil only the columns it marks are converted.
func (e *Extractor) decibels(rows [][]float64, cols []bool) {
	amin := e.cfg.AMin
	if amin <= 0 {
		amin = 1e-10
	}
	top := math.Inf(-1)
	for _, row := range rows {
		for i, v := range row {
			if cols != nil && !cols[i] {
				continue
			}
			row[i] = 10 * math.Log10(math.Max(v, amin))
			top = math.Max(top, row[i])
		}
	}
	if e.cfg.TopDB <= 0 {
		return
	}
	floor := top - e.cfg.TopDB
	for _, row := range rows {
		for i, v := range row {
			if cols != nil && !cols[i] {
				continue
			}
			row[i] = math.Max(v, floor)
		}
	}
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

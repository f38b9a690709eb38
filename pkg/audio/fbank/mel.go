package fbank

import "math"

// hannWindow generates a symmetric Hann window of length n.
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// hzToMel converts frequency in Hz to mel scale.
func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// melToHz converts mel scale frequency back to Hz.
func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterBank creates the mel filterbank matrix.
// Returns [numMels][halfFFT] where halfFFT = fftSize/2 + 1.
func melFilterBank(numMels, fftSize, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	halfFFT := fftSize/2 + 1
	lowMel := hzToMel(lowFreq)
	highMel := hzToMel(highFreq)

	// numMels + 2 equally spaced mel points
	step := (highMel - lowMel) / float64(numMels+1)
	bins := make([]int, numMels+2)
	for i := range bins {
		hz := melToHz(lowMel + float64(i)*step)
		bin := int(math.Round(hz * float64(fftSize) / float64(sampleRate)))
		if bin >= halfFFT {
			bin = halfFFT - 1
		}
		bins[i] = bin
	}

	// Each filter spans at least one bin. On tiny FFTs this pushes the
	// upper filters past Nyquist; those stay empty.
	for i := 1; i < len(bins); i++ {
		if bins[i] <= bins[i-1] {
			bins[i] = bins[i-1] + 1
		}
	}

	bank := make([][]float64, numMels)
	for m := range numMels {
		filter := make([]float64, halfFFT)
		left, center, right := bins[m], bins[m+1], bins[m+2]
		for k := left; k < center && k < halfFFT; k++ {
			filter[k] = float64(k-left) / float64(center-left)
		}
		for k := center; k <= right && k < halfFFT; k++ {
			filter[k] = float64(right-k) / float64(right-center)
		}
		bank[m] = filter
	}
	return bank
}

// dctMatrix returns the first numCeps rows of the orthonormal DCT-II basis
// of size n.
func dctMatrix(numCeps, n int) [][]float64 {
	m := make([][]float64, numCeps)
	for k := range numCeps {
		scale := math.Sqrt(2.0 / float64(n))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(n))
		}
		row := make([]float64, n)
		for i := range n {
			row[i] = scale * math.Cos(math.Pi*float64(k)*(2*float64(i)+1)/(2*float64(n)))
		}
		m[k] = row
	}
	return m
}

// chromaBins maps every FFT bin to its pitch class (C=0 .. B=11).
// The DC bin has no pitch and maps to -1.
func chromaBins(fftSize, sampleRate int) []int {
	halfFFT := fftSize/2 + 1
	out := make([]int, halfFFT)
	out[0] = -1
	for k := 1; k < halfFFT; k++ {
		hz := float64(k) * float64(sampleRate) / float64(fftSize)
		midi := 69 + 12*math.Log2(hz/440.0)
		pc := int(math.Round(midi)) % 12
		if pc < 0 {
			pc += 12
		}
		out[k] = pc
	}
	return out
}

// contrastBands returns the [start, end) FFT bin range of each spectral
// contrast band: octaves starting at ContrastLowFreq, the first band
// reaching down to 0 Hz and the last one up to Nyquist.
func contrastBands(cfg Config) [][2]int {
	halfFFT := cfg.FFTSize/2 + 1
	nyquist := float64(cfg.SampleRate) / 2
	binOf := func(hz float64) int {
		b := int(math.Ceil(hz * float64(cfg.FFTSize) / float64(cfg.SampleRate)))
		return min(max(b, 0), halfFFT)
	}

	edges := make([]float64, cfg.ContrastBands+2)
	edges[0] = 0
	for i := 1; i <= cfg.ContrastBands; i++ {
		edges[i] = cfg.ContrastLowFreq * math.Pow(2, float64(i-1))
	}
	edges[len(edges)-1] = nyquist

	bands := make([][2]int, cfg.ContrastBands+1)
	for b := range bands {
		lo, hi := edges[b], edges[b+1]
		if lo >= nyquist {
			continue
		}
		start := binOf(lo)
		end := binOf(hi)
		if hi >= nyquist || b == len(bands)-1 {
			end = halfFFT
		}
		if end > start {
			bands[b] = [2]int{start, end}
		}
	}
	return bands
}

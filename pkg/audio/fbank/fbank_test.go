package fbank

import (
	"math"
	"testing"
)

func sine(freq float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return out
}

func TestHannWindow(t *testing.T) {
	w := hannWindow(401)
	if len(w) != 401 {
		t.Fatalf("expected 401, got %d", len(w))
	}
	if math.Abs(w[0]) > 1e-12 || math.Abs(w[400]) > 1e-12 {
		t.Errorf("endpoints = %f, %f, want 0", w[0], w[400])
	}
	if math.Abs(w[200]-1.0) > 1e-12 {
		t.Errorf("w[200] = %f, want 1.0", w[200])
	}
	if got := hannWindow(1); got[0] != 1 {
		t.Errorf("hannWindow(1) = %v", got)
	}
}

func TestMelConversion(t *testing.T) {
	// HTK mel scale: 2595 * log10(1 + f/700)
	mel := hzToMel(1000)
	if math.Abs(mel-1000.0) > 1.0 {
		t.Errorf("hzToMel(1000) = %f, want ~1000", mel)
	}
	hz := melToHz(mel)
	if math.Abs(hz-1000) > 1e-6 {
		t.Errorf("melToHz(hzToMel(1000)) = %f, want 1000", hz)
	}
}

func TestMelFilterBank(t *testing.T) {
	bank := melFilterBank(40, 512, 22050, 0, 11025)
	if len(bank) != 40 {
		t.Fatalf("expected 40 filters, got %d", len(bank))
	}
	halfFFT := 512/2 + 1
	for i, f := range bank {
		if len(f) != halfFFT {
			t.Fatalf("filter %d: expected %d bins, got %d", i, halfFFT, len(f))
		}
		peak := 0.0
		for _, v := range f {
			if v < 0 || v > 1 {
				t.Fatalf("filter %d: weight %f out of [0,1]", i, v)
			}
			peak = math.Max(peak, v)
		}
		if peak == 0 {
			t.Errorf("filter %d is all zeros", i)
		}
	}
}

func TestDCTOrthonormal(t *testing.T) {
	m := dctMatrix(13, 40)
	for i := range m {
		for j := range m {
			dot := 0.0
			for k := range m[i] {
				dot += m[i][k] * m[j][k]
			}
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(dot-want) > 1e-9 {
				t.Errorf("row %d . row %d = %f, want %f", i, j, dot, want)
			}
		}
	}
}

func TestForSampleRate(t *testing.T) {
	cfg := ForSampleRate(22050)
	if cfg.WindowSize != 551 || cfg.HopSize != 220 || cfg.FFTSize != 1024 {
		t.Errorf("geometry = %d/%d/%d, want 551/220/1024", cfg.WindowSize, cfg.HopSize, cfg.FFTSize)
	}
	tiny := ForSampleRate(20)
	if tiny.WindowSize != 2 || tiny.HopSize != 1 || tiny.FFTSize != 2 {
		t.Errorf("tiny geometry = %d/%d/%d", tiny.WindowSize, tiny.HopSize, tiny.FFTSize)
	}
}

func TestSTFTFrameCount(t *testing.T) {
	e := New(ForSampleRate(22050))
	tests := []struct {
		n    int
		want int
	}{
		{0, 0},
		{1, 1},
		{220, 1},
		{221, 2},
		{22050, 101},
	}
	for _, tt := range tests {
		if got := e.NumFrames(tt.n); got != tt.want {
			t.Errorf("NumFrames(%d) = %d, want %d", tt.n, got, tt.want)
		}
		spec := e.STFT(make([]float64, tt.n))
		if tt.want == 0 {
			if spec != nil {
				t.Errorf("STFT of %d samples should be nil", tt.n)
			}
			continue
		}
		if spec.NumFrames() != tt.want {
			t.Errorf("STFT(%d).NumFrames() = %d, want %d", tt.n, spec.NumFrames(), tt.want)
		}
		if len(spec.Magnitude[0]) != 1024/2+1 {
			t.Errorf("bins = %d", len(spec.Magnitude[0]))
		}
	}
}

func TestSTFTPeakBin(t *testing.T) {
	e := New(ForSampleRate(16000))
	spec := e.STFT(sine(1000, 16000, 16000))
	row := spec.Magnitude[spec.NumFrames()/2]
	best := 0
	for k := range row {
		if row[k] > row[best] {
			best = k
		}
	}
	if f := spec.BinFrequency(best); math.Abs(f-1000) > 16 {
		t.Errorf("peak at bin %d (%f Hz), want ~1000 Hz", best, f)
	}
}

func TestSTFTDynamicRangeFloor(t *testing.T) {
	e := New(ForSampleRate(22050))
	spec := e.STFT(sine(50, 22050, 22050))
	top, low := 0.0, math.Inf(1)
	for _, row := range spec.Magnitude {
		for _, v := range row {
			top = math.Max(top, v)
			low = math.Min(low, v)
		}
	}
	if want := top * 1e-4; low < want*(1-1e-12) {
		t.Errorf("quietest bin = %g, want >= %g (80 dB below %g)", low, want, top)
	}

	for _, row := range e.STFT(make([]float64, 2205)).Magnitude {
		for k, v := range row {
			if v != 0 {
				t.Fatalf("silent bin %d = %g, want 0", k, v)
			}
		}
	}
}

func TestMFCCShape(t *testing.T) {
	e := New(ForSampleRate(16000))
	spec := e.STFT(sine(300, 16000, 8000))
	mfcc := e.MFCC(spec)
	if len(mfcc) != spec.NumFrames() {
		t.Fatalf("frames = %d, want %d", len(mfcc), spec.NumFrames())
	}
	for _, row := range mfcc {
		if len(row) != 13 {
			t.Fatalf("coefficients = %d, want 13", len(row))
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("non-finite coefficient %f", v)
			}
		}
	}

	// Silence hits the power floor everywhere: c0 = sqrt(40) * -100 dB.
	silent := e.MFCC(e.STFT(make([]float64, 1600)))
	want := math.Sqrt(40) * -100
	if math.Abs(silent[0][0]-want) > 1e-6 {
		t.Errorf("silent c0 = %f, want %f", silent[0][0], want)
	}
}

func TestDecibelsTopDB(t *testing.T) {
	e := New(ForSampleRate(16000))
	rows := [][]float64{
		{1, 1e-20, 5},
		{1e-3, 0, 7},
	}
	e.decibels(rows, []bool{true, true, false})
	want := [][]float64{
		{0, -80, 5},
		{-30, -80, 7},
	}
	for i := range want {
		for j := range want[i] {
			if math.Abs(rows[i][j]-want[i][j]) > 1e-9 {
				t.Errorf("rows[%d][%d] = %f, want %f", i, j, rows[i][j], want[i][j])
			}
		}
	}

	cfg := ForSampleRate(16000)
	cfg.TopDB = 0
	rows = [][]float64{{1, 0}}
	New(cfg).decibels(rows, nil)
	if rows[0][1] != -100 {
		t.Errorf("without top_db the floor is amin: got %f", rows[0][1])
	}
}

func TestMFCCDynamicRange(t *testing.T) {
	// A pure tone leaves most mel bands near the numeric noise floor. The
	// log energies must stay within TopDB of the loudest band.
	e := New(ForSampleRate(22050))
	spec := e.STFT(sine(50, 22050, 22050))
	logMel := e.MelPower(spec)
	e.decibels(logMel, nil)
	top, low := math.Inf(-1), math.Inf(1)
	for _, row := range logMel {
		for _, v := range row {
			top = math.Max(top, v)
			low = math.Min(low, v)
		}
	}
	if top-low > 80+1e-9 {
		t.Errorf("dynamic range = %f dB, want <= 80", top-low)
	}
}

func TestChromaPitchClass(t *testing.T) {
	e := New(ForSampleRate(16000))
	spec := e.STFT(sine(440, 16000, 16000))
	c := e.Chroma(spec)[spec.NumFrames()/2]
	if c[9] != 1 {
		t.Errorf("chroma A = %f, want 1 (chroma=%v)", c[9], c)
	}
	for i, v := range c {
		if v < 0 || v > 1 {
			t.Errorf("chroma[%d] = %f out of [0,1]", i, v)
		}
	}
}

func TestContrast(t *testing.T) {
	e := New(ForSampleRate(22050))
	spec := e.STFT(sine(1000, 22050, 11025))
	for _, row := range e.Contrast(spec) {
		if len(row) != 7 {
			t.Fatalf("bands = %d, want 7", len(row))
		}
		for b, v := range row {
			if v < 0 {
				t.Errorf("band %d contrast %f < 0", b, v)
			}
		}
	}

	silent := e.Contrast(e.STFT(make([]float64, 2205)))
	for b, v := range silent[0] {
		if v != 0 {
			t.Errorf("silent band %d = %f, want 0", b, v)
		}
	}
}

func TestContrastBandsAboveNyquist(t *testing.T) {
	// At 8 kHz the 6400 Hz octave starts above Nyquist.
	bands := contrastBands(ForSampleRate(8000))
	if len(bands) != 7 {
		t.Fatalf("bands = %d", len(bands))
	}
	if bands[6] != [2]int{} {
		t.Errorf("band 6 = %v, want empty", bands[6])
	}
	if bands[5][1] != 256/2+1 {
		t.Errorf("band 5 should reach Nyquist, got %v", bands[5])
	}
}

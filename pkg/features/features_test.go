package features

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func tone(freq float64, sampleRate int, seconds float64) []float64 {
	n := int(float64(sampleRate) * seconds)
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.3 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestNames(t *testing.T) {
	names := Names()
	if len(names) != Dim || Dim != 55 {
		t.Fatalf("len(Names()) = %d, Dim = %d, want 55", len(names), Dim)
	}
	seen := make(map[string]bool)
	for _, n := range names {
		if seen[n] {
			t.Errorf("duplicate name %q", n)
		}
		seen[n] = true
	}
	if names[0] != "time.mean_abs" || names[3] != "time.zcr" {
		t.Errorf("time names = %v", names[:4])
	}
	if names[4] != "mfcc.mean.00" || names[17] != "mfcc.std.00" {
		t.Errorf("mfcc names = %q, %q", names[4], names[17])
	}
	if names[36] != "chroma.C" || names[47] != "chroma.B" {
		t.Errorf("chroma names = %q .. %q", names[36], names[47])
	}
	if names[54] != "contrast.06" {
		t.Errorf("last name = %q", names[54])
	}
}

func TestExtractDeterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	x := make([]float64, 11025)
	for i := range x {
		x[i] = rng.NormFloat64() * 0.2
	}
	a, err := Extract(x, 22050)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Extract(x, 22050)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if math.Float64bits(a[i]) != math.Float64bits(b[i]) {
			t.Fatalf("entry %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestExtractDimension(t *testing.T) {
	tests := []struct {
		name       string
		samples    []float64
		sampleRate int
	}{
		{"single sample", []float64{0.5}, 22050},
		{"shorter than window", tone(100, 22050, 0.01), 22050},
		{"half second", tone(100, 22050, 0.5), 22050},
		{"three seconds", tone(100, 22050, 3), 22050},
		{"8 kHz", tone(440, 8000, 1), 8000},
		{"silence", make([]float64, 4410), 22050},
		{"tiny rate", []float64{1, -1, 1, -1, 1}, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vec, err := Extract(tt.samples, tt.sampleRate)
			if err != nil {
				t.Fatal(err)
			}
			if len(vec) != Dim {
				t.Fatalf("len = %d, want %d", len(vec), Dim)
			}
			for i, v := range vec {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Errorf("%s = %v", Names()[i], v)
				}
			}
		})
	}
}

func TestExtractInvalid(t *testing.T) {
	tests := []struct {
		name       string
		samples    []float64
		sampleRate int
	}{
		{"empty", nil, 22050},
		{"nan", []float64{0, math.NaN(), 0}, 22050},
		{"inf", []float64{0, math.Inf(-1)}, 22050},
		{"zero rate", []float64{0.1, 0.2}, 0},
		{"negative rate", []float64{0.1, 0.2}, -8000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.samples, tt.sampleRate)
			if !errors.Is(err, ErrInvalidAudio) {
				t.Fatalf("err = %v, want ErrInvalidAudio", err)
			}
			var iae *InvalidAudioError
			if !errors.As(err, &iae) || iae.Reason == "" {
				t.Errorf("err = %#v, want *InvalidAudioError with reason", err)
			}
		})
	}
}

func TestGainInvariance(t *testing.T) {
	x := tone(220, 22050, 0.5)
	loud := make([]float64, len(x))
	for i, v := range x {
		loud[i] = v * 3
	}
	a, err := Extract(x, 22050)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Extract(loud, 22050)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9*math.Max(1, math.Abs(a[i])) {
			t.Errorf("%s: %v vs %v", Names()[i], a[i], b[i])
		}
	}
}

func TestTimeDomainZCR(t *testing.T) {
	// signs: +1 -1 +1 -1 0 +1, upward steps at 1->2, 3->4, 4->5.
	x := []float64{1, -1, 1, -1, 0, 1}
	got := timeDomain(x)
	if want := 3.0 / 6.0; got[3] != want {
		t.Errorf("zcr = %v, want %v", got[3], want)
	}
	if got[2] != 1 {
		t.Errorf("peak = %v, want 1", got[2])
	}
	if want := 5.0 / 6.0; math.Abs(got[0]-want) > 1e-12 {
		t.Errorf("mean_abs = %v, want %v", got[0], want)
	}
}

func TestSpectralCentroidTracksTone(t *testing.T) {
	low, err := Extract(tone(200, 22050, 0.5), 22050)
	if err != nil {
		t.Fatal(err)
	}
	high, err := Extract(tone(3000, 22050, 0.5), 22050)
	if err != nil {
		t.Fatal(err)
	}
	idx := 4 + 2*numMFCC // centroid.mean
	if Names()[idx] != "centroid.mean" {
		t.Fatalf("index %d is %q", idx, Names()[idx])
	}
	if low[idx] >= high[idx] {
		t.Errorf("centroid low=%v high=%v, want low < high", low[idx], high[idx])
	}
}

func TestSilenceUnscaled(t *testing.T) {
	vec, err := Extract(make([]float64, 2205), 22050)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if vec[i] != 0 {
			t.Errorf("%s = %v, want 0", Names()[i], vec[i])
		}
	}
}

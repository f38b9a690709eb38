package resampler

import (
	"math"
	"testing"

	"github.com/kehinde-elelu/aimechanics/pkg/features"
)

func sine(freq float64, rate int, seconds float64) features.Waveform {
	n := int(float64(rate) * seconds)
	s := make([]float64, n)
	for i := range s {
		s[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(rate))
	}
	return features.Waveform{Samples: s, SampleRate: rate}
}

func TestResampleLength(t *testing.T) {
	tests := []struct {
		src, dst int
		seconds  float64
		want     int
	}{
		{44100, 22050, 1, 22050},
		{16000, 22050, 0.5, 11025},
		{48000, 16000, 0.25, 4000},
	}
	for _, tt := range tests {
		out, err := Resample(sine(440, tt.src, tt.seconds), tt.dst)
		if err != nil {
			t.Fatalf("%d->%d: %v", tt.src, tt.dst, err)
		}
		if out.SampleRate != tt.dst {
			t.Errorf("rate = %d, want %d", out.SampleRate, tt.dst)
		}
		if len(out.Samples) != tt.want {
			t.Errorf("%d->%d: len = %d, want %d", tt.src, tt.dst, len(out.Samples), tt.want)
		}
	}
}

func TestResamplePreservesTone(t *testing.T) {
	out, err := Resample(sine(440, 44100, 1), 22050)
	if err != nil {
		t.Fatal(err)
	}
	mid := out.Samples[len(out.Samples)/4 : 3*len(out.Samples)/4]
	sum := 0.0
	for _, v := range mid {
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(mid)))
	if rms < 0.5 || rms > 0.9 {
		t.Errorf("rms = %f, want ~0.707", rms)
	}
}

func TestResamplePassthrough(t *testing.T) {
	in := sine(100, 22050, 0.1)
	out, err := Resample(in, 22050)
	if err != nil {
		t.Fatal(err)
	}
	if &out.Samples[0] != &in.Samples[0] {
		t.Error("same-rate resample should not copy")
	}
}

func TestResampleInvalid(t *testing.T) {
	if _, err := Resample(features.Waveform{Samples: []float64{1}, SampleRate: 0}, 16000); err == nil {
		t.Error("zero source rate should fail")
	}
	if _, err := Resample(sine(100, 16000, 0.1), -1); err == nil {
		t.Error("negative target rate should fail")
	}
}

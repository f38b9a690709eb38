package train

import (
	"context"
	"testing"

	"github.com/kehinde-elelu/aimechanics/pkg/features"
	"github.com/kehinde-elelu/aimechanics/pkg/synth"
)

// TestSyntheticCorpus trains on generated recordings and checks held-out
// accuracy, the way a fresh install is smoke-tested.
func TestSyntheticCorpus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping synthetic corpus training in short mode")
	}
	opts := synth.DefaultOptions()
	opts.PerClass = 150
	opts.Seed = 42
	opts.MinDuration = 0.5
	opts.MaxDuration = 1
	samples, err := synth.Dataset(opts)
	if err != nil {
		t.Fatal(err)
	}

	examples := make([]Example, len(samples))
	for i, s := range samples {
		vec, err := features.ExtractWaveform(s.Waveform)
		if err != nil {
			t.Fatalf("%s: %v", s.Name, err)
		}
		examples[i] = Example{Vector: vec, Class: s.Class, Source: s.Name}
	}

	trainSet, testSet, err := Split(examples, 0.25, 42)
	if err != nil {
		t.Fatal(err)
	}
	m, err := Train(context.Background(), trainSet, quietConfig())
	if err != nil {
		t.Fatal(err)
	}
	report, err := Evaluate(m, testSet)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("best=%s cv=%.3f test accuracy=%.3f components=%d",
		m.Selection.Best, m.Selection.Score, report.Accuracy, m.Selection.Components)
	if report.Accuracy <= 0.85 {
		t.Errorf("held-out accuracy = %.3f, want > 0.85", report.Accuracy)
	}
	for _, pc := range report.PerClass {
		if pc.Support != 38 {
			t.Errorf("%v support = %d, want 38", pc.Class, pc.Support)
		}
	}
}

package train

import (
	"math"
	"testing"

	"github.com/kehinde-elelu/aimechanics/pkg/condition"
)

const (
	n = condition.Normal
	e = condition.EarlyFault
	f = condition.Failure
)

func TestWeightedF1(t *testing.T) {
	truth := []condition.Class{n, n, n, n, e, e, f, f}
	pred := []condition.Class{n, n, n, e, e, f, f, f}
	// normal:      P=3/3 R=3/4 F1=6/7    support 4
	// early_fault: P=1/2 R=1/2 F1=1/2    support 2
	// failure:     P=2/3 R=1   F1=4/5    support 2
	want := (4*(6.0/7) + 2*0.5 + 2*0.8) / 8
	if got := weightedF1(truth, pred); math.Abs(got-want) > 1e-12 {
		t.Errorf("weightedF1 = %v, want %v", got, want)
	}
}

func TestWeightedF1ZeroDivision(t *testing.T) {
	// failure is never predicted: precision 0 by convention, not NaN.
	truth := []condition.Class{n, f}
	pred := []condition.Class{n, n}
	got := weightedF1(truth, pred)
	// normal: P=1/2 R=1 F1=2/3; failure: F1=0.
	if want := (2.0 / 3) / 2; math.Abs(got-want) > 1e-12 {
		t.Errorf("weightedF1 = %v, want %v", got, want)
	}
}

func TestNewReport(t *testing.T) {
	truth := []condition.Class{n, n, e, f}
	pred := []condition.Class{n, e, e, f}
	r := NewReport(truth, pred)
	if r.Total != 4 || r.Accuracy != 0.75 {
		t.Errorf("total=%d accuracy=%v", r.Total, r.Accuracy)
	}
	if r.Confusion[n][e] != 1 || r.Confusion[e][e] != 1 || r.Confusion[f][f] != 1 {
		t.Errorf("confusion = %v", r.Confusion)
	}
	if len(r.PerClass) != 3 {
		t.Fatalf("per class = %+v", r.PerClass)
	}
	if r.PerClass[0].Support != 2 || r.PerClass[0].Recall != 0.5 || r.PerClass[0].Precision != 1 {
		t.Errorf("normal = %+v", r.PerClass[0])
	}
	if math.Abs(r.MacroF1-(2.0/3+2.0/3+1)/3) > 1e-12 {
		t.Errorf("macro F1 = %v", r.MacroF1)
	}
}

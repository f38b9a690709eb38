package train

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/kehinde-elelu/aimechanics/pkg/condition"
	"github.com/kehinde-elelu/aimechanics/pkg/features"
	"github.com/kehinde-elelu/aimechanics/pkg/model"
	"github.com/kehinde-elelu/aimechanics/pkg/svm"
)

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

// clusters returns perClass examples of each listed class, separated in a
// few feature dimensions.
func clusters(perClass int, seed uint64, classes ...condition.Class) []Example {
	if len(classes) == 0 {
		classes = condition.All()
	}
	rng := rand.New(rand.NewPCG(seed, 99))
	var out []Example
	for _, c := range classes {
		for range perClass {
			v := make(features.Vector, features.Dim)
			for j := range v {
				v[j] = rng.NormFloat64()
			}
			v[int(c)] += 6
			v[20+int(c)] += 6
			out = append(out, Example{Vector: v, Class: c})
		}
	}
	return out
}

func smallGrid() Grid {
	return Grid{
		C:      []float64{1, 10},
		Gamma:  []svm.Gamma{svm.GammaScale, "0.1"},
		Kernel: []svm.Kernel{svm.KernelRBF, svm.KernelPoly},
	}
}

func TestGridCellsOrder(t *testing.T) {
	cells := DefaultGrid().Cells()
	if len(cells) != 40 {
		t.Fatalf("cells = %d, want 40", len(cells))
	}
	want := []model.Hyperparams{
		{Kernel: svm.KernelRBF, C: 0.1, Gamma: svm.GammaScale},
		{Kernel: svm.KernelPoly, C: 0.1, Gamma: svm.GammaScale},
		{Kernel: svm.KernelRBF, C: 0.1, Gamma: svm.GammaAuto},
	}
	for i, w := range want {
		if cells[i] != w {
			t.Errorf("cells[%d] = %+v, want %+v", i, cells[i], w)
		}
	}
	last := model.Hyperparams{Kernel: svm.KernelPoly, C: 100, Gamma: "1"}
	if cells[39] != last {
		t.Errorf("last cell = %+v", cells[39])
	}
}

func TestGridValidate(t *testing.T) {
	if err := DefaultGrid().Validate(); err != nil {
		t.Fatal(err)
	}
	bad := []Grid{
		{C: nil, Gamma: []svm.Gamma{"1"}, Kernel: []svm.Kernel{svm.KernelRBF}},
		{C: []float64{-1}, Gamma: []svm.Gamma{"1"}, Kernel: []svm.Kernel{svm.KernelRBF}},
		{C: []float64{1}, Gamma: []svm.Gamma{"huge"}, Kernel: []svm.Kernel{svm.KernelRBF}},
		{C: []float64{1}, Gamma: []svm.Gamma{"1"}, Kernel: []svm.Kernel{"linear"}},
	}
	for i, g := range bad {
		if err := g.Validate(); err == nil {
			t.Errorf("grid %d should be invalid", i)
		}
	}
}

func TestTrainSingleClass(t *testing.T) {
	examples := clusters(10, 1, condition.Normal)
	_, err := Train(context.Background(), examples, quietConfig())
	if !errors.Is(err, ErrTrainingData) {
		t.Fatalf("err = %v, want ErrTrainingData", err)
	}
	var de *DataError
	if !errors.As(err, &de) {
		t.Fatalf("err = %T", err)
	}
	if de.Diagnostics.ClassCounts[condition.Normal] != 10 || de.Diagnostics.Examples != 10 {
		t.Errorf("diagnostics = %+v", de.Diagnostics)
	}
}

func TestTrainInvalidData(t *testing.T) {
	base := clusters(6, 2)
	tests := []struct {
		name   string
		mutate func([]Example) []Example
	}{
		{"empty", func([]Example) []Example { return nil }},
		{"too few per class", func(ex []Example) []Example { return ex[:6+6+3] }},
		{"ragged", func(ex []Example) []Example {
			ex[4].Vector = ex[4].Vector[:10]
			return ex
		}},
		{"empty vector", func(ex []Example) []Example {
			ex[0].Vector = nil
			return ex
		}},
		{"nan", func(ex []Example) []Example {
			ex[7].Vector[3] = math.NaN()
			return ex
		}},
		{"inf", func(ex []Example) []Example {
			ex[8].Vector[0] = math.Inf(1)
			return ex
		}},
		{"invalid class", func(ex []Example) []Example {
			ex[1].Class = condition.Class(9)
			return ex
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := make([]Example, len(base))
			for i, e := range base {
				ex[i] = Example{Vector: append(features.Vector(nil), e.Vector...), Class: e.Class}
			}
			_, err := Train(context.Background(), tt.mutate(ex), quietConfig())
			if !errors.Is(err, ErrTrainingData) {
				t.Errorf("err = %v, want ErrTrainingData", err)
			}
		})
	}
}

func TestTrainConfigErrors(t *testing.T) {
	cfg := quietConfig()
	cfg.Folds = 1
	if _, err := Train(context.Background(), clusters(6, 3), cfg); err == nil {
		t.Error("folds=1 should fail")
	}
	cfg = quietConfig()
	cfg.VarianceRetained = 1.5
	if _, err := Train(context.Background(), clusters(6, 3), cfg); err == nil {
		t.Error("variance 1.5 should fail")
	}
}

func TestTrainSelectsAndRefits(t *testing.T) {
	examples := clusters(15, 4)
	cfg := quietConfig()
	cfg.Grid = smallGrid()
	cfg.Workers = 3
	m, err := Train(context.Background(), examples, cfg)
	if err != nil {
		t.Fatal(err)
	}
	sel := m.Selection
	if len(sel.Grid) != 8 {
		t.Fatalf("grid results = %d, want 8", len(sel.Grid))
	}
	for _, g := range sel.Grid {
		if !g.Finite() || len(g.FoldScores) != 5 {
			t.Errorf("cell %s: mean=%v folds=%d err=%q", g.Params, g.Mean, len(g.FoldScores), g.Error)
		}
	}
	if sel.Score < 0.9 {
		t.Errorf("cv score = %v", sel.Score)
	}
	if sel.TrainSize != 45 || sel.Folds != 5 || sel.Components != m.PCA.OutputDim() {
		t.Errorf("selection = %+v", sel)
	}
	best := selectBest(sel.Grid)
	if sel.Grid[best].Params != sel.Best {
		t.Errorf("best %+v is not the first top cell %+v", sel.Best, sel.Grid[best].Params)
	}

	report, err := Evaluate(m, examples)
	if err != nil {
		t.Fatal(err)
	}
	if report.Accuracy < 0.95 {
		t.Errorf("training accuracy = %v", report.Accuracy)
	}
}

func TestTrainRefitFailureKeepsDiagnostics(t *testing.T) {
	calibrationErr := errors.New("svm: probability calibration diverged")
	orig := fitSVC
	fitSVC = func(x [][]float64, y []int, p svm.Params) (*svm.SVC, error) {
		if p.Probability {
			return nil, calibrationErr
		}
		return orig(x, y, p)
	}
	t.Cleanup(func() { fitSVC = orig })

	cfg := quietConfig()
	cfg.Grid = smallGrid()
	m, err := Train(context.Background(), clusters(10, 7), cfg)
	if m != nil {
		t.Fatal("refit failure produced a model")
	}
	if !errors.Is(err, ErrTrainingConvergence) || !errors.Is(err, calibrationErr) {
		t.Fatalf("err = %v", err)
	}
	var ce *ConvergenceError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %#v, want *ConvergenceError", err)
	}
	if ce.Refit == nil || *ce.Refit != smallGrid().Cells()[selectBest(ce.Diagnostics.Grid)] {
		t.Errorf("refit params = %v", ce.Refit)
	}
	if len(ce.Diagnostics.Grid) != 8 || ce.Diagnostics.Examples != 30 {
		t.Errorf("diagnostics = %+v", ce.Diagnostics)
	}
	for _, g := range ce.Diagnostics.Grid {
		if len(g.FoldScores) != 5 {
			t.Errorf("cell %s lost its fold scores: %+v", g.Params, g)
		}
	}
}

func TestTrainDeterministicAcrossWorkers(t *testing.T) {
	examples := clusters(10, 5)
	cfg := quietConfig()
	cfg.Grid = smallGrid()

	cfg.Workers = 1
	a, err := Train(context.Background(), examples, cfg)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Workers = 8
	b, err := Train(context.Background(), examples, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if a.Selection.Best != b.Selection.Best || a.Selection.Score != b.Selection.Score {
		t.Fatalf("selection differs: %+v vs %+v", a.Selection.Best, b.Selection.Best)
	}
	for i := range a.Selection.Grid {
		if a.Selection.Grid[i].Mean != b.Selection.Grid[i].Mean {
			t.Errorf("cell %d mean %v vs %v", i, a.Selection.Grid[i].Mean, b.Selection.Grid[i].Mean)
		}
	}
	for _, ex := range examples {
		ra, _ := a.Predict(ex.Vector)
		rb, _ := b.Predict(ex.Vector)
		for j := range ra.Probabilities {
			if ra.Probabilities[j].Probability != rb.Probabilities[j].Probability {
				t.Fatalf("probabilities differ: %v vs %v", ra.Probabilities, rb.Probabilities)
			}
		}
	}
}

func TestTrainCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Train(ctx, clusters(6, 6), quietConfig())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	var ae *AbortedError
	if !errors.As(err, &ae) || len(ae.Diagnostics.Grid) != 40 {
		t.Errorf("err = %#v", err)
	}
}

func TestSelectBest(t *testing.T) {
	grid := []model.GridResult{
		{Mean: 0.5},
		{Mean: 0.9},
		{Error: "boom"},
		{Mean: 0.9},
		{Mean: math.NaN()},
	}
	if got := selectBest(grid); got != 1 {
		t.Errorf("selectBest = %d, want 1", got)
	}
	if got := selectBest([]model.GridResult{{Error: "a"}, {Mean: math.Inf(1)}}); got != -1 {
		t.Errorf("selectBest = %d, want -1", got)
	}
}

func TestReduce(t *testing.T) {
	cells := []model.Hyperparams{{C: 1}, {C: 2}, {C: 3}}
	results := [][]jobResult{
		{{done: true, score: 0.5}, {done: true, score: 1}},
		{{done: true, score: 0.5}, {done: true, err: errors.New("solver exploded")}},
		{{done: true, score: 0.5}, {}},
	}
	grid := reduce(cells, results)
	if grid[0].Mean != 0.75 || !grid[0].Finite() {
		t.Errorf("cell 0 = %+v", grid[0])
	}
	if grid[1].Finite() || grid[1].Error != "solver exploded" || grid[1].Mean != 0 {
		t.Errorf("cell 1 = %+v", grid[1])
	}
	if grid[2].Finite() || grid[2].Error != errNotRun {
		t.Errorf("cell 2 = %+v", grid[2])
	}

	err := &ConvergenceError{Diagnostics: Diagnostics{Grid: grid[1:2]}}
	if !errors.Is(err, ErrTrainingConvergence) {
		t.Error("ConvergenceError should match ErrTrainingConvergence")
	}
	if msg := err.Error(); msg == "" {
		t.Error("empty message")
	}
}

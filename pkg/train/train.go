// Package train fits a TrainedModel from labeled feature vectors.
//
// The pipeline is standardization, PCA and a calibrated SVC. Hyperparameters
// are chosen by exhaustive grid search scored with stratified k-fold
// cross-validation on the class-weighted F1 score; the winner is refit on
// all examples with probability calibration enabled.
//
// Cross-validation runs every (grid cell, fold) pair as an independent job
// on a bounded worker pool. The scaler and PCA of a fold are fitted once
// and shared read-only by all jobs of that fold. Each job writes only its
// own result slot, and the reduction scans cells in grid order, so the
// outcome does not depend on scheduling. Fold models are scored on vote
// predictions; only the final refit pays for calibration.
package train

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kehinde-elelu/aimechanics/pkg/condition"
	"github.com/kehinde-elelu/aimechanics/pkg/features"
	"github.com/kehinde-elelu/aimechanics/pkg/model"
	"github.com/kehinde-elelu/aimechanics/pkg/preprocess"
	"github.com/kehinde-elelu/aimechanics/pkg/svm"
)

// fitSVC is replaced in tests to make individual fits fail.
var fitSVC = svm.Fit

// Example is one labeled feature vector.
type Example struct {
	Vector features.Vector `json:"vector"`
	Class  condition.Class `json:"class"`
	// Source names where the example came from, e.g. a file path.
	Source string `json:"source,omitempty"`
}

type foldData struct {
	trainX [][]float64
	trainY []int
	testX  [][]float64
	testY  []condition.Class
	gammas map[svm.Gamma]float64
	err    error
}

type job struct {
	cell, fold int
}

type jobResult struct {
	done  bool
	score float64
	err   error
}

// Train selects hyperparameters by cross-validation and returns the model
// refit on all examples.
//
// It fails with *DataError for unusable input, *ConvergenceError when no
// grid cell scores, and *AbortedError when ctx ends first.
func Train(ctx context.Context, examples []Example, cfg Config) (*model.TrainedModel, error) {
	start := time.Now()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := cfg.logger()

	diag := Diagnostics{
		Examples:    len(examples),
		ClassCounts: make(map[condition.Class]int),
		Folds:       cfg.Folds,
	}
	if err := checkExamples(examples, cfg.Folds, &diag); err != nil {
		return nil, err
	}

	x := make([][]float64, len(examples))
	classes := make([]condition.Class, len(examples))
	for i, ex := range examples {
		x[i] = ex.Vector
		classes[i] = ex.Class
	}

	folds := stratifiedFolds(classes, cfg.Folds, cfg.Seed)
	cells := cfg.Grid.Cells()
	prepared := make([]*foldData, len(folds))
	for f := range folds {
		prepared[f] = prepareFold(x, classes, folds, f, cfg)
		if prepared[f].err != nil {
			log.Warn("train: fold preparation failed", "fold", f, "error", prepared[f].err)
		}
	}

	log.Info("train: cross-validating",
		"examples", len(examples),
		"cells", len(cells),
		"folds", len(folds),
		"workers", cfg.workers())

	results := make([][]jobResult, len(cells))
	for i := range results {
		results[i] = make([]jobResult, len(folds))
	}

	jobs := make(chan job)
	var wg sync.WaitGroup
	for range cfg.workers() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.cell][j.fold] = runJob(cells[j.cell], prepared[j.fold], cfg)
			}
		}()
	}

	canceled := false
feed:
	for ci := range cells {
		for f := range folds {
			if ctx.Err() != nil {
				canceled = true
				break feed
			}
			select {
			case <-ctx.Done():
				canceled = true
				break feed
			case jobs <- job{cell: ci, fold: f}:
			}
		}
	}
	close(jobs)
	wg.Wait()

	diag.Grid = reduce(cells, results)
	if canceled {
		return nil, &AbortedError{Err: ctx.Err(), Diagnostics: diag}
	}

	for _, g := range diag.Grid {
		log.Debug("train: grid cell", "params", g.Params.String(), "mean", g.Mean, "error", g.Error)
	}
	best := selectBest(diag.Grid)
	if best == -1 {
		return nil, &ConvergenceError{Diagnostics: diag}
	}
	chosen := diag.Grid[best]

	m, err := refit(x, classes, chosen, cfg)
	if err != nil {
		return nil, &ConvergenceError{Diagnostics: diag, Refit: &chosen.Params, Err: err}
	}
	m.Selection.Grid = diag.Grid
	m.Selection.Score = chosen.Mean
	m.Selection.Folds = cfg.Folds
	m.Selection.Duration = time.Since(start)

	log.Info("train: model selected",
		"id", m.ID,
		"params", chosen.Params.String(),
		"cv_f1", chosen.Mean,
		"components", m.PCA.OutputDim(),
		"support_vectors", m.SVC.NumSupportVectors(),
		"duration", m.Selection.Duration.Round(time.Millisecond))
	if m.SVC.Unconverged > 0 {
		log.Warn("train: solver hit iteration cap", "machines", m.SVC.Unconverged)
	}
	return m, nil
}

func checkExamples(examples []Example, folds int, diag *Diagnostics) error {
	fail := func(format string, args ...any) error {
		return &DataError{Reason: fmt.Sprintf(format, args...), Diagnostics: *diag}
	}
	if len(examples) == 0 {
		return fail("no examples")
	}
	for i, ex := range examples {
		if !ex.Class.Valid() {
			return fail("example %d has invalid class %d", i, int(ex.Class))
		}
		diag.ClassCounts[ex.Class]++
		if len(ex.Vector) == 0 {
			return fail("example %d has an empty feature vector", i)
		}
		if len(ex.Vector) != features.Dim {
			return fail("example %d has %d features, schema %s has %d",
				i, len(ex.Vector), features.SchemaVersion, features.Dim)
		}
		for j, v := range ex.Vector {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fail("example %d feature %d is not finite", i, j)
			}
		}
	}
	if len(diag.ClassCounts) < 2 {
		return fail("need at least 2 classes, got %d", len(diag.ClassCounts))
	}
	for _, c := range condition.All() {
		if n, ok := diag.ClassCounts[c]; ok && n < folds {
			return fail("class %s has %d examples, fewer than %d folds", c, n, folds)
		}
	}
	return nil
}

func prepareFold(x [][]float64, classes []condition.Class, folds [][]int, f int, cfg Config) *foldData {
	inTest := make(map[int]bool, len(folds[f]))
	for _, i := range folds[f] {
		inTest[i] = true
	}
	var trainX, testX [][]float64
	d := &foldData{}
	for i, row := range x {
		if inTest[i] {
			testX = append(testX, row)
			d.testY = append(d.testY, classes[i])
		} else {
			trainX = append(trainX, row)
			d.trainY = append(d.trainY, int(classes[i]))
		}
	}

	scaler, pca, err := fitTransforms(trainX, cfg.VarianceRetained)
	if err != nil {
		d.err = err
		return d
	}
	if d.trainX, err = project(scaler, pca, trainX); err != nil {
		d.err = err
		return d
	}
	if d.testX, err = project(scaler, pca, testX); err != nil {
		d.err = err
		return d
	}
	d.gammas = make(map[svm.Gamma]float64, len(cfg.Grid.Gamma))
	for _, g := range cfg.Grid.Gamma {
		v, err := g.Resolve(d.trainX)
		if err != nil {
			d.err = err
			return d
		}
		d.gammas[g] = v
	}
	return d
}

func fitTransforms(x [][]float64, retain float64) (*preprocess.Scaler, *preprocess.PCA, error) {
	scaler, err := preprocess.FitScaler(x)
	if err != nil {
		return nil, nil, fmt.Errorf("train: fit scaler: %w", err)
	}
	scaled, err := scaler.TransformAll(x)
	if err != nil {
		return nil, nil, fmt.Errorf("train: scale: %w", err)
	}
	pca, err := preprocess.FitPCA(scaled, retain)
	if err != nil {
		return nil, nil, fmt.Errorf("train: fit pca: %w", err)
	}
	return scaler, pca, nil
}

func project(scaler *preprocess.Scaler, pca *preprocess.PCA, x [][]float64) ([][]float64, error) {
	scaled, err := scaler.TransformAll(x)
	if err != nil {
		return nil, fmt.Errorf("train: scale: %w", err)
	}
	out, err := pca.TransformAll(scaled)
	if err != nil {
		return nil, fmt.Errorf("train: project: %w", err)
	}
	return out, nil
}

func runJob(cell model.Hyperparams, d *foldData, cfg Config) jobResult {
	if d.err != nil {
		return jobResult{done: true, err: d.err}
	}
	svc, err := fitSVC(d.trainX, d.trainY, cfg.svmParams(cell, d.gammas[cell.Gamma], false))
	if err != nil {
		return jobResult{done: true, err: err}
	}
	pred := make([]condition.Class, len(d.testX))
	for i, row := range d.testX {
		label, err := svc.Predict(row)
		if err != nil {
			return jobResult{done: true, err: err}
		}
		pred[i] = condition.Class(label)
	}
	score := weightedF1(d.testY, pred)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return jobResult{done: true, err: fmt.Errorf("train: non-finite fold score %v", score)}
	}
	return jobResult{done: true, score: score}
}

const errNotRun = "not run"

// reduce folds job results into one GridResult per cell, in grid order.
func reduce(cells []model.Hyperparams, results [][]jobResult) []model.GridResult {
	out := make([]model.GridResult, len(cells))
	for ci, cell := range cells {
		g := model.GridResult{Params: cell}
		sum := 0.0
		complete := true
		for _, r := range results[ci] {
			if !r.done {
				complete = false
				continue
			}
			if r.err != nil {
				if g.Error == "" {
					g.Error = r.err.Error()
				}
				continue
			}
			g.FoldScores = append(g.FoldScores, r.score)
			sum += r.score
		}
		switch {
		case g.Error != "":
			g.Mean = 0
		case !complete:
			g.Error = errNotRun
		case len(g.FoldScores) > 0:
			g.Mean = sum / float64(len(g.FoldScores))
		}
		out[ci] = g
	}
	return out
}

// selectBest returns the index of the highest finite mean score, the
// earliest cell winning ties, or -1 when no cell scored.
func selectBest(grid []model.GridResult) int {
	best := -1
	for i, g := range grid {
		if !g.Finite() {
			continue
		}
		if best == -1 || g.Mean > grid[best].Mean {
			best = i
		}
	}
	return best
}

func refit(x [][]float64, classes []condition.Class, chosen model.GridResult, cfg Config) (*model.TrainedModel, error) {
	scaler, pca, err := fitTransforms(x, cfg.VarianceRetained)
	if err != nil {
		return nil, err
	}
	projected, err := project(scaler, pca, x)
	if err != nil {
		return nil, err
	}
	gamma, err := chosen.Params.Gamma.Resolve(projected)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	y := make([]int, len(classes))
	for i, c := range classes {
		y[i] = int(c)
	}
	svc, err := fitSVC(projected, y, cfg.svmParams(chosen.Params, gamma, true))
	if err != nil {
		return nil, err
	}
	return model.New(scaler, pca, svc, model.Selection{
		Best:             chosen.Params,
		ResolvedGamma:    gamma,
		VarianceRetained: cfg.VarianceRetained,
		Components:       pca.OutputDim(),
		TrainSize:        len(x),
	})
}

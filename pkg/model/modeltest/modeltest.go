// Package modeltest builds small trained models for tests.
package modeltest

import (
	"math/rand/v2"
	"testing"

	"github.com/kehinde-elelu/aimechanics/pkg/condition"
	"github.com/kehinde-elelu/aimechanics/pkg/features"
	"github.com/kehinde-elelu/aimechanics/pkg/model"
	"github.com/kehinde-elelu/aimechanics/pkg/preprocess"
	"github.com/kehinde-elelu/aimechanics/pkg/svm"
)

// Vector returns a feature vector near the cluster of class c.
func Vector(rng *rand.Rand, c condition.Class) features.Vector {
	v := make(features.Vector, features.Dim)
	for j := range v {
		v[j] = rng.NormFloat64() * 0.3
	}
	v[int(c)] += 4
	v[10+int(c)] -= 3
	return v
}

// New fits a calibrated model on three separated clusters, one per
// condition class. Different seeds give models with different ids and
// parameters.
func New(t testing.TB, seed uint64) *model.TrainedModel {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, 17))
	var x [][]float64
	var y []int
	for _, c := range condition.All() {
		for range 15 {
			x = append(x, Vector(rng, c))
			y = append(y, int(c))
		}
	}
	scaler, err := preprocess.FitScaler(x)
	if err != nil {
		t.Fatal(err)
	}
	scaled, err := scaler.TransformAll(x)
	if err != nil {
		t.Fatal(err)
	}
	pca, err := preprocess.FitPCA(scaled, 0.95)
	if err != nil {
		t.Fatal(err)
	}
	projected, err := pca.TransformAll(scaled)
	if err != nil {
		t.Fatal(err)
	}
	gamma, err := svm.GammaScale.Resolve(projected)
	if err != nil {
		t.Fatal(err)
	}
	p := svm.DefaultParams()
	p.Gamma = gamma
	p.Seed = seed
	svc, err := svm.Fit(projected, y, p)
	if err != nil {
		t.Fatal(err)
	}
	m, err := model.New(scaler, pca, svc, model.Selection{
		Best:          model.Hyperparams{Kernel: svm.KernelRBF, C: 1, Gamma: svm.GammaScale},
		ResolvedGamma: gamma,
		Score:         1,
		Folds:         5,
		Components:    pca.OutputDim(),
		TrainSize:     len(x),
	})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

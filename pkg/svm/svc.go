// Package svm implements a multi-class C-support vector classifier with
// probability estimates.
//
// Multi-class problems are decomposed one-vs-one: one binary machine per
// pair of labels, each solved by SMO with second-order working set
// selection over a precomputed kernel matrix. Probabilities come from a
// Platt sigmoid per pair, fitted on internal cross-validated decision
// values, and are coupled into one distribution with the method of Wu, Lin
// and Weng.
//
// Defaults:
//
//	Degree:           3 (poly kernel), Coef0: 0
//	Tol:              1e-3 (stopping gap)
//	MaxIter:          100000 SMO steps per binary machine
//	ProbabilityFolds: 5
package svm

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// ErrNoProbability is returned by PredictProba on an uncalibrated model.
var ErrNoProbability = errors.New("svm: model has no probability calibration")

const minProb = 1e-7

// Params configures Fit.
type Params struct {
	Kernel  Kernel
	C       float64
	Gamma   float64 // resolved kernel coefficient, > 0
	Degree  int
	Coef0   float64
	Tol     float64
	MaxIter int

	// Probability enables Platt calibration. It costs ProbabilityFolds
	// extra binary solves per label pair.
	Probability      bool
	ProbabilityFolds int
	// Seed drives the fold permutation of the calibration.
	Seed uint64
}

// DefaultParams returns an RBF machine with C=1 and calibration enabled.
// Gamma must still be set.
func DefaultParams() Params {
	return Params{
		Kernel:           KernelRBF,
		C:                1,
		Degree:           3,
		Coef0:            0,
		Tol:              1e-3,
		MaxIter:          100000,
		Probability:      true,
		ProbabilityFolds: 5,
	}
}

func (p Params) validate() error {
	if !p.Kernel.Valid() {
		return fmt.Errorf("svm: unknown kernel %q", p.Kernel)
	}
	if !(p.C > 0) || math.IsInf(p.C, 0) {
		return fmt.Errorf("svm: C must be positive, got %v", p.C)
	}
	if !(p.Gamma > 0) || math.IsInf(p.Gamma, 0) {
		return fmt.Errorf("svm: gamma must be positive, got %v", p.Gamma)
	}
	if p.Kernel == KernelPoly && p.Degree < 1 {
		return fmt.Errorf("svm: degree must be >= 1, got %d", p.Degree)
	}
	return nil
}

// Pair is the binary machine separating Labels[Positive] (decision > 0)
// from Labels[Negative].
type Pair struct {
	Positive       int         `msgpack:"pos"`
	Negative       int         `msgpack:"neg"`
	SupportVectors [][]float64 `msgpack:"sv"`
	Coef           []float64   `msgpack:"coef"` // y_i * alpha_i
	Rho            float64     `msgpack:"rho"`
	ProbA          float64     `msgpack:"prob_a"`
	ProbB          float64     `msgpack:"prob_b"`
}

// SVC is a fitted classifier. It is immutable and safe for concurrent use.
type SVC struct {
	Kernel      Kernel  `msgpack:"kernel"`
	Gamma       float64 `msgpack:"gamma"`
	Degree      int     `msgpack:"degree"`
	Coef0       float64 `msgpack:"coef0"`
	Dim         int     `msgpack:"dim"`
	Labels      []int   `msgpack:"labels"`
	Pairs       []Pair  `msgpack:"pairs"`
	Probability bool    `msgpack:"probability"`

	// Unconverged counts binary solves that hit MaxIter.
	Unconverged int `msgpack:"unconverged"`
}

// Fit trains a classifier on rows x with integer labels y.
func Fit(x [][]float64, y []int, p Params) (*SVC, error) {
	if len(x) == 0 {
		return nil, errors.New("svm: no training data")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("svm: %d rows but %d labels", len(x), len(y))
	}
	dim := len(x[0])
	if dim == 0 {
		return nil, errors.New("svm: zero-dimensional input")
	}
	for i, row := range x {
		if len(row) != dim {
			return nil, fmt.Errorf("svm: row %d has %d values, want %d", i, len(row), dim)
		}
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if p.Tol <= 0 {
		p.Tol = 1e-3
	}
	if p.MaxIter <= 0 {
		p.MaxIter = 100000
	}
	if p.ProbabilityFolds < 2 {
		p.ProbabilityFolds = 5
	}

	labels := slices.Clone(y)
	slices.Sort(labels)
	labels = slices.Compact(labels)
	if len(labels) < 2 {
		return nil, fmt.Errorf("svm: need at least two classes, got %d", len(labels))
	}
	byLabel := make([][]int, len(labels))
	for i, v := range y {
		li, _ := slices.BinarySearch(labels, v)
		byLabel[li] = append(byLabel[li], i)
	}

	kfn, err := newKernelFunc(p.Kernel, p.Gamma, p.Degree, p.Coef0)
	if err != nil {
		return nil, err
	}
	gram := gramMatrix(x, kfn)

	s := &SVC{
		Kernel:      p.Kernel,
		Gamma:       p.Gamma,
		Degree:      p.Degree,
		Coef0:       p.Coef0,
		Dim:         dim,
		Labels:      labels,
		Probability: p.Probability,
	}
	rng := rand.New(rand.NewPCG(p.Seed, 0x9e3779b97f4a7c15))

	for a := range labels {
		for b := a + 1; b < len(labels); b++ {
			idx := append(slices.Clone(byLabel[a]), byLabel[b]...)
			yy := make([]float64, len(idx))
			for i := range idx {
				if i < len(byLabel[a]) {
					yy[i] = 1
				} else {
					yy[i] = -1
				}
			}

			sol := solveSubset(gram, idx, yy, p)
			if !sol.converged {
				s.Unconverged++
			}
			pair := Pair{Positive: a, Negative: b, Rho: sol.rho}
			for i, al := range sol.alpha {
				if al > 0 {
					pair.SupportVectors = append(pair.SupportVectors, slices.Clone(x[idx[i]]))
					pair.Coef = append(pair.Coef, yy[i]*al)
				}
			}
			if p.Probability {
				pair.ProbA, pair.ProbB, err = pairSigmoid(gram, idx, yy, p, rng, &s.Unconverged)
				if err != nil {
					return nil, err
				}
			}
			s.Pairs = append(s.Pairs, pair)
		}
	}
	return s, nil
}

func gramMatrix(x [][]float64, kfn kernelFunc) [][]float64 {
	n := len(x)
	g := make([][]float64, n)
	for i := range g {
		g[i] = make([]float64, n)
	}
	for i := range n {
		for j := i; j < n; j++ {
			v := kfn(x[i], x[j])
			g[i][j] = v
			g[j][i] = v
		}
	}
	return g
}

func solveSubset(gram [][]float64, idx []int, y []float64, p Params) binarySolution {
	sub := make([][]float64, len(idx))
	for i, gi := range idx {
		row := make([]float64, len(idx))
		for j, gj := range idx {
			row[j] = gram[gi][gj]
		}
		sub[i] = row
	}
	prob := &binaryProblem{kernel: sub, y: y, c: p.C, eps: p.Tol, maxIter: p.MaxIter}
	return prob.solve()
}

// pairSigmoid fits the Platt sigmoid of one pair on decision values
// obtained by internal cross-validation.
func pairSigmoid(gram [][]float64, idx []int, y []float64, p Params, rng *rand.Rand, unconverged *int) (float64, float64, error) {
	l := len(idx)
	folds := min(p.ProbabilityFolds, l)
	perm := rng.Perm(l)
	dec := make([]float64, l)

	for f := range folds {
		begin := f * l / folds
		end := (f + 1) * l / folds

		var trainIdx []int
		var trainY []float64
		var pos, neg int
		for _, k := range slices.Concat(perm[:begin], perm[end:]) {
			trainIdx = append(trainIdx, idx[k])
			trainY = append(trainY, y[k])
			if y[k] > 0 {
				pos++
			} else {
				neg++
			}
		}

		switch {
		case pos == 0 && neg == 0:
			for _, k := range perm[begin:end] {
				dec[k] = 0
			}
			continue
		case neg == 0:
			for _, k := range perm[begin:end] {
				dec[k] = 1
			}
			continue
		case pos == 0:
			for _, k := range perm[begin:end] {
				dec[k] = -1
			}
			continue
		}

		sol := solveSubset(gram, trainIdx, trainY, p)
		if !sol.converged {
			*unconverged++
		}
		for _, k := range perm[begin:end] {
			sum := 0.0
			for i, al := range sol.alpha {
				if al > 0 {
					sum += trainY[i] * al * gram[trainIdx[i]][idx[k]]
				}
			}
			dec[k] = sum - sol.rho
		}
	}

	positive := make([]bool, l)
	for i := range y {
		positive[i] = y[i] > 0
	}
	a, b := sigmoidTrain(dec, positive)
	if math.IsNaN(a) || math.IsNaN(b) {
		return 0, 0, errors.New("svm: probability calibration diverged")
	}
	return a, b, nil
}

// NumSupportVectors returns the total support vector count over all pairs.
func (s *SVC) NumSupportVectors() int {
	n := 0
	for _, p := range s.Pairs {
		n += len(p.SupportVectors)
	}
	return n
}

// Decision returns the decision value of every pair, in Pairs order.
func (s *SVC) Decision(x []float64) ([]float64, error) {
	if len(x) != s.Dim {
		return nil, fmt.Errorf("svm: expected %d values, got %d", s.Dim, len(x))
	}
	kfn, err := newKernelFunc(s.Kernel, s.Gamma, s.Degree, s.Coef0)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(s.Pairs))
	for i, p := range s.Pairs {
		sum := 0.0
		for j, sv := range p.SupportVectors {
			sum += p.Coef[j] * kfn(sv, x)
		}
		out[i] = sum - p.Rho
	}
	return out, nil
}

// Predict returns the label that wins the most pairwise votes.
// Ties go to the label listed first.
func (s *SVC) Predict(x []float64) (int, error) {
	dec, err := s.Decision(x)
	if err != nil {
		return 0, err
	}
	votes := make([]int, len(s.Labels))
	for i, p := range s.Pairs {
		if dec[i] > 0 {
			votes[p.Positive]++
		} else {
			votes[p.Negative]++
		}
	}
	best := 0
	for i, v := range votes {
		if v > votes[best] {
			best = i
		}
	}
	return s.Labels[best], nil
}

// PredictProba returns one probability per entry of Labels.
// The result is non-negative and sums to 1.
func (s *SVC) PredictProba(x []float64) ([]float64, error) {
	if !s.Probability {
		return nil, ErrNoProbability
	}
	dec, err := s.Decision(x)
	if err != nil {
		return nil, err
	}
	k := len(s.Labels)
	r := make([][]float64, k)
	for i := range r {
		r[i] = make([]float64, k)
	}
	for i, p := range s.Pairs {
		pr := sigmoidPredict(dec[i], p.ProbA, p.ProbB)
		pr = math.Min(math.Max(pr, minProb), 1-minProb)
		r[p.Positive][p.Negative] = pr
		r[p.Negative][p.Positive] = 1 - pr
	}

	probs := coupleProbabilities(r)
	sum := 0.0
	for i, v := range probs {
		if v < 0 || math.IsNaN(v) {
			v = 0
		}
		probs[i] = v
		sum += v
	}
	if sum == 0 {
		for i := range probs {
			probs[i] = 1 / float64(k)
		}
		return probs, nil
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}

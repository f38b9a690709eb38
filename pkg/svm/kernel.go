package svm

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

// Kernel names a kernel function.
type Kernel string

const (
	// KernelRBF is exp(-gamma * |x-y|^2).
	KernelRBF Kernel = "rbf"
	// KernelPoly is (gamma * x.y + coef0)^degree.
	KernelPoly Kernel = "poly"
)

// Valid reports whether k is a supported kernel.
func (k Kernel) Valid() bool {
	return k == KernelRBF || k == KernelPoly
}

// kernelFunc evaluates one kernel with fixed parameters.
type kernelFunc func(a, b []float64) float64

func newKernelFunc(k Kernel, gamma float64, degree int, coef0 float64) (kernelFunc, error) {
	switch k {
	case KernelRBF:
		return func(a, b []float64) float64 {
			sum := 0.0
			for i := range a {
				d := a[i] - b[i]
				sum += d * d
			}
			return math.Exp(-gamma * sum)
		}, nil
	case KernelPoly:
		return func(a, b []float64) float64 {
			dot := 0.0
			for i := range a {
				dot += a[i] * b[i]
			}
			return powi(gamma*dot+coef0, degree)
		}, nil
	}
	return nil, fmt.Errorf("svm: unknown kernel %q", k)
}

func powi(base float64, times int) float64 {
	ret := 1.0
	for t := times; t > 0; t /= 2 {
		if t%2 == 1 {
			ret *= base
		}
		base *= base
	}
	return ret
}

// Gamma is the kernel coefficient setting: "scale", "auto" or a positive
// decimal such as "0.01".
type Gamma string

const (
	// GammaScale resolves to 1 / (n_features * var(X)), with var(X) over
	// every entry of the training matrix. Zero variance resolves as 1.
	GammaScale Gamma = "scale"
	// GammaAuto resolves to 1 / n_features.
	GammaAuto Gamma = "auto"
)

// FixedGamma returns the Gamma setting for a literal value.
func FixedGamma(v float64) Gamma {
	return Gamma(strconv.FormatFloat(v, 'g', -1, 64))
}

// Validate checks that g is "scale", "auto" or a positive finite number.
func (g Gamma) Validate() error {
	if g == GammaScale || g == GammaAuto {
		return nil
	}
	v, err := strconv.ParseFloat(string(g), 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return fmt.Errorf("svm: invalid gamma %q", string(g))
	}
	return nil
}

// Resolve returns the numeric gamma for the training matrix x.
func (g Gamma) Resolve(x [][]float64) (float64, error) {
	if err := g.Validate(); err != nil {
		return 0, err
	}
	switch g {
	case GammaAuto, GammaScale:
		if len(x) == 0 || len(x[0]) == 0 {
			return 0, fmt.Errorf("svm: cannot resolve gamma %q without data", string(g))
		}
		nfeat := float64(len(x[0]))
		if g == GammaAuto {
			return 1 / nfeat, nil
		}
		flat := make([]float64, 0, len(x)*len(x[0]))
		for _, row := range x {
			flat = append(flat, row...)
		}
		variance := stat.PopVariance(flat, nil)
		if variance == 0 || math.IsNaN(variance) {
			return 1, nil
		}
		return 1 / (nfeat * variance), nil
	}
	v, _ := strconv.ParseFloat(string(g), 64)
	return v, nil
}

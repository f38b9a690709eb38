package preprocess

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PCA projects centred vectors onto the leading principal axes.
type PCA struct {
	Mean       []float64   `msgpack:"mean" json:"mean"`
	Components [][]float64 `msgpack:"components" json:"components"` // [k][d], unit rows
	// Explained holds the variance ratio of each kept component.
	Explained []float64 `msgpack:"explained" json:"explained"`
}

// FitPCA keeps the smallest number of components whose cumulative
// explained variance ratio reaches retain (0 < retain <= 1).
//
// Component signs are fixed so the loading with the largest magnitude is
// positive, which makes the projection independent of SVD sign choices.
// Zero-variance input keeps a single component.
func FitPCA(x [][]float64, retain float64) (*PCA, error) {
	if retain <= 0 || retain > 1 {
		return nil, fmt.Errorf("preprocess: variance ratio %v out of (0, 1]", retain)
	}
	centred, err := dense(x)
	if err != nil {
		return nil, err
	}
	n, d := centred.Dims()

	mean := make([]float64, d)
	col := make([]float64, n)
	for j := range d {
		mat.Col(col, j, centred)
		mean[j] = stat.Mean(col, nil)
		floats.AddConst(-mean[j], col)
		centred.SetCol(j, col)
	}

	var svd mat.SVD
	if ok := svd.Factorize(centred, mat.SVDThin); !ok {
		return nil, errors.New("preprocess: SVD did not converge")
	}
	values := svd.Values(nil)
	var v mat.Dense
	svd.VTo(&v)

	total := 0.0
	for _, s := range values {
		total += s * s
	}

	k := 1
	ratios := make([]float64, len(values))
	if total > 0 {
		cum := 0.0
		k = len(values)
		for i, s := range values {
			ratios[i] = s * s / total
			cum += ratios[i]
			// Tolerate rounding so retain = 1 does not depend on the last ulp.
			if cum >= retain-1e-12 {
				k = i + 1
				break
			}
		}
	}

	p := &PCA{
		Mean:       mean,
		Components: make([][]float64, k),
		Explained:  make([]float64, k),
	}
	for c := range k {
		comp := make([]float64, d)
		best := 0
		for j := range d {
			comp[j] = v.At(j, c)
			if math.Abs(comp[j]) > math.Abs(comp[best]) {
				best = j
			}
		}
		if comp[best] < 0 {
			for j := range comp {
				comp[j] = -comp[j]
			}
		}
		p.Components[c] = comp
		p.Explained[c] = ratios[c]
	}
	return p, nil
}

// InputDim returns the expected input dimension.
func (p *PCA) InputDim() int { return len(p.Mean) }

// OutputDim returns the number of kept components.
func (p *PCA) OutputDim() int { return len(p.Components) }

// ExplainedTotal returns the cumulative variance ratio of the kept components.
func (p *PCA) ExplainedTotal() float64 {
	return floats.Sum(p.Explained)
}

// Transform projects v onto the kept components.
func (p *PCA) Transform(v []float64) ([]float64, error) {
	if len(v) != len(p.Mean) {
		return nil, fmt.Errorf("preprocess: pca expects %d values, got %d", len(p.Mean), len(v))
	}
	out := make([]float64, len(p.Components))
	for c, comp := range p.Components {
		sum := 0.0
		for j, w := range comp {
			sum += (v[j] - p.Mean[j]) * w
		}
		out[c] = sum
	}
	return out, nil
}

// TransformAll applies Transform to every row.
func (p *PCA) TransformAll(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		r, err := p.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

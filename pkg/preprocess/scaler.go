// Package preprocess provides the fitted, immutable transforms applied to
// feature vectors before classification: standardization and PCA.
//
// Both transforms are fitted once on a training partition and then only
// applied; Transform never refits. Fitted values are plain exported fields
// so they serialize with the model artifact.
package preprocess

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrNoData is returned when fitting on an empty matrix.
var ErrNoData = errors.New("preprocess: no data")

// Scaler standardizes every column to zero mean and unit variance.
// A constant column keeps scale 1 so it maps to 0 instead of NaN.
//
// Inputs are first clamped to the per-column range seen during fitting,
// so a vector far outside the training data maps to the edge of the
// fitted distribution instead of an arbitrarily distant point. Scalers
// without Min/Max do not clamp.
type Scaler struct {
	Mean  []float64 `msgpack:"mean" json:"mean"`
	Scale []float64 `msgpack:"scale" json:"scale"`
	Min   []float64 `msgpack:"min,omitempty" json:"min,omitempty"`
	Max   []float64 `msgpack:"max,omitempty" json:"max,omitempty"`
}

// FitScaler computes column means, population standard deviations and
// ranges.
func FitScaler(x [][]float64) (*Scaler, error) {
	m, err := dense(x)
	if err != nil {
		return nil, err
	}
	n, d := m.Dims()
	s := &Scaler{
		Mean:  make([]float64, d),
		Scale: make([]float64, d),
		Min:   make([]float64, d),
		Max:   make([]float64, d),
	}
	col := make([]float64, n)
	for j := range d {
		mat.Col(col, j, m)
		s.Min[j], s.Max[j] = floats.Min(col), floats.Max(col)
		if s.Min[j] == s.Max[j] {
			s.Mean[j], s.Scale[j] = s.Min[j], 1
			continue
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j], s.Scale[j] = mean, std
	}
	return s, nil
}

// Dim returns the input dimension.
func (s *Scaler) Dim() int { return len(s.Mean) }

// Transform returns the standardized copy of v.
func (s *Scaler) Transform(v []float64) ([]float64, error) {
	if len(v) != len(s.Mean) {
		return nil, fmt.Errorf("preprocess: scaler expects %d values, got %d", len(s.Mean), len(v))
	}
	clamp := len(s.Min) == len(v) && len(s.Max) == len(v)
	out := make([]float64, len(v))
	for j, x := range v {
		if clamp {
			x = min(max(x, s.Min[j]), s.Max[j])
		}
		out[j] = (x - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

// TransformAll applies Transform to every row.
func (s *Scaler) TransformAll(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		r, err := s.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

func dims(x [][]float64) (int, error) {
	if len(x) == 0 || len(x[0]) == 0 {
		return 0, ErrNoData
	}
	d := len(x[0])
	for i, row := range x {
		if len(row) != d {
			return 0, fmt.Errorf("preprocess: row %d has %d values, want %d", i, len(row), d)
		}
	}
	return d, nil
}

// dense copies x into a matrix after checking it is non-empty and
// rectangular.
func dense(x [][]float64) (*mat.Dense, error) {
	d, err := dims(x)
	if err != nil {
		return nil, err
	}
	m := mat.NewDense(len(x), d, nil)
	for i, row := range x {
		m.SetRow(i, row)
	}
	return m, nil
}

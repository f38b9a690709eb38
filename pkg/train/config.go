package train

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/kehinde-elelu/aimechanics/pkg/model"
	"github.com/kehinde-elelu/aimechanics/pkg/svm"
)

// Grid is the hyperparameter search space.
type Grid struct {
	C      []float64    `json:"c" yaml:"c"`
	Gamma  []svm.Gamma  `json:"gamma" yaml:"gamma"`
	Kernel []svm.Kernel `json:"kernel" yaml:"kernel"`
}

// DefaultGrid returns C {0.1, 1, 10, 100}, gamma {scale, auto, 0.01, 0.1, 1}
// and kernel {rbf, poly}.
func DefaultGrid() Grid {
	return Grid{
		C:      []float64{0.1, 1, 10, 100},
		Gamma:  []svm.Gamma{svm.GammaScale, svm.GammaAuto, "0.01", "0.1", "1"},
		Kernel: []svm.Kernel{svm.KernelRBF, svm.KernelPoly},
	}
}

// Cells enumerates the grid with C outermost and kernel innermost. This
// order breaks score ties.
func (g Grid) Cells() []model.Hyperparams {
	cells := make([]model.Hyperparams, 0, len(g.C)*len(g.Gamma)*len(g.Kernel))
	for _, c := range g.C {
		for _, gamma := range g.Gamma {
			for _, k := range g.Kernel {
				cells = append(cells, model.Hyperparams{Kernel: k, C: c, Gamma: gamma})
			}
		}
	}
	return cells
}

// Validate checks that every axis is non-empty and every value is usable.
func (g Grid) Validate() error {
	if len(g.C) == 0 || len(g.Gamma) == 0 || len(g.Kernel) == 0 {
		return fmt.Errorf("train: grid has an empty axis (C=%d gamma=%d kernel=%d)",
			len(g.C), len(g.Gamma), len(g.Kernel))
	}
	for _, c := range g.C {
		if !(c > 0) {
			return fmt.Errorf("train: grid C %v is not positive", c)
		}
	}
	for _, gamma := range g.Gamma {
		if err := gamma.Validate(); err != nil {
			return fmt.Errorf("train: %w", err)
		}
	}
	for _, k := range g.Kernel {
		if !k.Valid() {
			return fmt.Errorf("train: unknown kernel %q", k)
		}
	}
	return nil
}

// Config controls Train.
type Config struct {
	// Folds is the number of stratified cross-validation folds.
	Folds int
	// VarianceRetained is the PCA explained-variance target in (0, 1].
	VarianceRetained float64
	Grid             Grid
	// Seed drives fold assignment and probability calibration.
	Seed uint64
	// Workers bounds concurrent fold x grid jobs. 0 means GOMAXPROCS.
	Workers int
	// MaxIter caps SMO iterations per binary machine.
	MaxIter int
	Logger  *slog.Logger
}

// DefaultConfig returns 5 folds, 95% retained variance, the default grid
// and seed 42.
func DefaultConfig() Config {
	return Config{
		Folds:            5,
		VarianceRetained: 0.95,
		Grid:             DefaultGrid(),
		Seed:             42,
		MaxIter:          100000,
	}
}

func (c Config) validate() error {
	if c.Folds < 2 {
		return fmt.Errorf("train: folds must be >= 2, got %d", c.Folds)
	}
	if c.VarianceRetained <= 0 || c.VarianceRetained > 1 {
		return fmt.Errorf("train: variance retained %v out of (0, 1]", c.VarianceRetained)
	}
	return c.Grid.Validate()
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c Config) svmParams(h model.Hyperparams, gamma float64, probability bool) svm.Params {
	p := svm.DefaultParams()
	p.Kernel = h.Kernel
	p.C = h.C
	p.Gamma = gamma
	p.Probability = probability
	p.Seed = c.Seed
	if c.MaxIter > 0 {
		p.MaxIter = c.MaxIter
	}
	return p
}

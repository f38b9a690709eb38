// Package model defines TrainedModel, the immutable bundle produced by
// training and consumed by inference, and its binary artifact format.
//
// A TrainedModel is never mutated after construction. Retraining produces
// a new value; callers swap references.
package model

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kehinde-elelu/aimechanics/pkg/condition"
	"github.com/kehinde-elelu/aimechanics/pkg/features"
	"github.com/kehinde-elelu/aimechanics/pkg/preprocess"
	"github.com/kehinde-elelu/aimechanics/pkg/svm"
)

// ErrSchemaMismatch is matched by every *SchemaMismatchError.
var ErrSchemaMismatch = errors.New("model: feature schema mismatch")

// SchemaMismatchError reports a feature vector whose layout differs from
// the one the model was trained on.
type SchemaMismatchError struct {
	WantDim     int
	GotDim      int
	WantVersion string
	GotVersion  string
}

func (e *SchemaMismatchError) Error() string {
	if e.WantVersion != e.GotVersion {
		return fmt.Sprintf("model: feature schema mismatch: model uses %q, extractor produces %q",
			e.WantVersion, e.GotVersion)
	}
	return fmt.Sprintf("model: feature schema mismatch: model expects %d features, got %d",
		e.WantDim, e.GotDim)
}

// Is reports whether target is ErrSchemaMismatch.
func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// Hyperparams is one point of the model-selection grid.
type Hyperparams struct {
	Kernel svm.Kernel `msgpack:"kernel" json:"kernel" yaml:"kernel"`
	C      float64    `msgpack:"c" json:"c" yaml:"c"`
	Gamma  svm.Gamma  `msgpack:"gamma" json:"gamma" yaml:"gamma"`
}

func (h Hyperparams) String() string {
	return fmt.Sprintf("kernel=%s C=%g gamma=%s", h.Kernel, h.C, h.Gamma)
}

// GridResult is the cross-validation outcome of one grid cell.
type GridResult struct {
	Params     Hyperparams `msgpack:"params" json:"params"`
	FoldScores []float64   `msgpack:"fold_scores" json:"fold_scores"`
	Mean       float64     `msgpack:"mean" json:"mean"`
	// Error is set when any fold failed; Mean is then zero.
	Error string `msgpack:"error,omitempty" json:"error,omitempty"`
}

// Finite reports whether the cell produced a usable score.
func (g GridResult) Finite() bool {
	return g.Error == "" && !math.IsNaN(g.Mean) && !math.IsInf(g.Mean, 0)
}

// Selection records how the model's hyperparameters were chosen.
type Selection struct {
	Best             Hyperparams   `msgpack:"best" json:"best"`
	ResolvedGamma    float64       `msgpack:"resolved_gamma" json:"resolved_gamma"`
	Score            float64       `msgpack:"score" json:"score"`
	Folds            int           `msgpack:"folds" json:"folds"`
	VarianceRetained float64       `msgpack:"variance_retained" json:"variance_retained"`
	Components       int           `msgpack:"components" json:"components"`
	TrainSize        int           `msgpack:"train_size" json:"train_size"`
	Grid             []GridResult  `msgpack:"grid" json:"grid"`
	Duration         time.Duration `msgpack:"duration" json:"duration"`
}

// TrainedModel is a fitted scaler, PCA projection and calibrated SVC
// together with the class list and selection metadata.
type TrainedModel struct {
	ID            string    `msgpack:"id"`
	CreatedAt     time.Time `msgpack:"created_at"`
	SchemaVersion string    `msgpack:"schema_version"`
	FeatureNames  []string  `msgpack:"feature_names"`

	Scaler *preprocess.Scaler `msgpack:"scaler"`
	PCA    *preprocess.PCA    `msgpack:"pca"`
	SVC    *svm.SVC           `msgpack:"svc"`

	// Classes is aligned with the probability vector of every Result.
	Classes   []condition.Class `msgpack:"classes"`
	Selection Selection         `msgpack:"selection"`
}

// New assembles a model trained on the current feature schema. The class
// list is derived from the SVC labels, which are condition class indices.
func New(scaler *preprocess.Scaler, pca *preprocess.PCA, svc *svm.SVC, sel Selection) (*TrainedModel, error) {
	m := &TrainedModel{
		ID:            uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		SchemaVersion: features.SchemaVersion,
		FeatureNames:  features.Names(),
		Scaler:        scaler,
		PCA:           pca,
		SVC:           svc,
		Selection:     sel,
	}
	if svc != nil {
		for _, l := range svc.Labels {
			m.Classes = append(m.Classes, condition.Class(l))
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks the internal consistency of m.
func (m *TrainedModel) Validate() error {
	switch {
	case m.Scaler == nil:
		return errors.New("model: missing scaler")
	case m.PCA == nil:
		return errors.New("model: missing pca")
	case m.SVC == nil:
		return errors.New("model: missing classifier")
	}
	if len(m.Scaler.Mean) != len(m.Scaler.Scale) {
		return errors.New("model: scaler mean and scale differ in length")
	}
	if m.PCA.InputDim() != m.Scaler.Dim() {
		return fmt.Errorf("model: pca input %d does not match scaler %d", m.PCA.InputDim(), m.Scaler.Dim())
	}
	if m.SVC.Dim != m.PCA.OutputDim() {
		return fmt.Errorf("model: classifier input %d does not match pca output %d", m.SVC.Dim, m.PCA.OutputDim())
	}
	if len(m.Classes) < 2 || len(m.Classes) != len(m.SVC.Labels) {
		return fmt.Errorf("model: %d classes for %d classifier labels", len(m.Classes), len(m.SVC.Labels))
	}
	for _, c := range m.Classes {
		if !c.Valid() {
			return fmt.Errorf("model: invalid class %d", int(c))
		}
	}
	if !m.SVC.Probability {
		return errors.New("model: classifier is not calibrated")
	}
	if len(m.FeatureNames) != 0 && len(m.FeatureNames) != m.Scaler.Dim() {
		return fmt.Errorf("model: %d feature names for %d features", len(m.FeatureNames), m.Scaler.Dim())
	}
	return nil
}

// FeatureDim returns the feature vector length the model expects.
func (m *TrainedModel) FeatureDim() int { return m.Scaler.Dim() }

// CheckSchema verifies that vectors produced by the extractor with the
// given version and length can be fed to m.
func (m *TrainedModel) CheckSchema(version string, dim int) error {
	if version != m.SchemaVersion || dim != m.FeatureDim() {
		return &SchemaMismatchError{
			WantDim:     m.FeatureDim(),
			GotDim:      dim,
			WantVersion: m.SchemaVersion,
			GotVersion:  version,
		}
	}
	return nil
}

// Transform applies the fitted scaler and PCA projection to vec.
// It fails with *SchemaMismatchError when vec has the wrong length.
func (m *TrainedModel) Transform(vec features.Vector) ([]float64, error) {
	if len(vec) != m.FeatureDim() {
		return nil, &SchemaMismatchError{
			WantDim:     m.FeatureDim(),
			GotDim:      len(vec),
			WantVersion: m.SchemaVersion,
			GotVersion:  m.SchemaVersion,
		}
	}
	scaled, err := m.Scaler.Transform(vec)
	if err != nil {
		return nil, fmt.Errorf("model: scale: %w", err)
	}
	projected, err := m.PCA.Transform(scaled)
	if err != nil {
		return nil, fmt.Errorf("model: project: %w", err)
	}
	return projected, nil
}

// Predict classifies one feature vector.
func (m *TrainedModel) Predict(vec features.Vector) (*Result, error) {
	x, err := m.Transform(vec)
	if err != nil {
		return nil, err
	}
	probs, err := m.SVC.PredictProba(x)
	if err != nil {
		return nil, fmt.Errorf("model: predict: %w", err)
	}
	return newResult(m.Classes, probs), nil
}

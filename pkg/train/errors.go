package train

import (
	"errors"
	"fmt"

	"github.com/kehinde-elelu/aimechanics/pkg/condition"
	"github.com/kehinde-elelu/aimechanics/pkg/model"
)

var (
	// ErrTrainingData is matched by every *DataError.
	ErrTrainingData = errors.New("train: invalid training data")
	// ErrTrainingConvergence is matched by every *ConvergenceError.
	ErrTrainingConvergence = errors.New("train: no grid configuration converged")
)

// Diagnostics is what a training run had gathered when it stopped.
type Diagnostics struct {
	Examples    int                     `json:"examples"`
	ClassCounts map[condition.Class]int `json:"class_counts"`
	Folds       int                     `json:"folds"`
	// Grid holds one entry per attempted configuration, in grid order.
	Grid []model.GridResult `json:"grid,omitempty"`
}

// DataError reports a corpus that cannot be trained on.
type DataError struct {
	Reason      string
	Diagnostics Diagnostics
}

func (e *DataError) Error() string {
	return "train: invalid training data: " + e.Reason
}

// Is reports whether target is ErrTrainingData.
func (e *DataError) Is(target error) bool { return target == ErrTrainingData }

// ConvergenceError reports that no grid cell produced a finite score, or
// that the selected cell failed its final fit on the whole training
// partition. In the latter case Refit names the cell and Err the cause.
type ConvergenceError struct {
	Diagnostics Diagnostics
	Refit       *model.Hyperparams
	Err         error
}

func (e *ConvergenceError) Error() string {
	if e.Refit != nil {
		return fmt.Sprintf("train: refit of %s failed (%d configurations attempted): %v", e.Refit, len(e.Diagnostics.Grid), e.Err)
	}
	first := ""
	for _, g := range e.Diagnostics.Grid {
		if g.Error != "" {
			first = ": first failure: " + g.Error
			break
		}
	}
	return fmt.Sprintf("train: no grid configuration converged (%d attempted)%s", len(e.Diagnostics.Grid), first)
}

// Is reports whether target is ErrTrainingConvergence.
func (e *ConvergenceError) Is(target error) bool { return target == ErrTrainingConvergence }

func (e *ConvergenceError) Unwrap() error { return e.Err }

// AbortedError reports a run stopped by its context.
// It unwraps to the context error.
type AbortedError struct {
	Err         error
	Diagnostics Diagnostics
}

func (e *AbortedError) Error() string {
	done := 0
	for _, g := range e.Diagnostics.Grid {
		if g.Error != errNotRun {
			done++
		}
	}
	return fmt.Sprintf("train: aborted after %d of %d configurations: %v", done, len(e.Diagnostics.Grid), e.Err)
}

func (e *AbortedError) Unwrap() error { return e.Err }

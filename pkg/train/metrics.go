package train

import (
	"errors"
	"fmt"

	"github.com/kehinde-elelu/aimechanics/pkg/condition"
	"github.com/kehinde-elelu/aimechanics/pkg/model"
)

// ClassMetrics holds per-class scores. Undefined ratios are 0.
type ClassMetrics struct {
	Class     condition.Class `json:"class" yaml:"class"`
	Precision float64         `json:"precision" yaml:"precision"`
	Recall    float64         `json:"recall" yaml:"recall"`
	F1        float64         `json:"f1" yaml:"f1"`
	Support   int             `json:"support" yaml:"support"`
}

// Report is a classification report over a labeled set.
type Report struct {
	Total      int            `json:"total" yaml:"total"`
	Accuracy   float64        `json:"accuracy" yaml:"accuracy"`
	WeightedF1 float64        `json:"weighted_f1" yaml:"weighted_f1"`
	MacroF1    float64        `json:"macro_f1" yaml:"macro_f1"`
	PerClass   []ClassMetrics `json:"per_class" yaml:"per_class"`
	// Confusion[i][j] counts examples of class i predicted as class j,
	// indexed by condition.Class.
	Confusion [][]int `json:"confusion" yaml:"confusion"`
}

// NewReport scores predictions against ground truth.
func NewReport(truth, pred []condition.Class) *Report {
	n := condition.Count
	r := &Report{Total: len(truth), Confusion: make([][]int, n)}
	for i := range r.Confusion {
		r.Confusion[i] = make([]int, n)
	}
	correct := 0
	for i := range truth {
		r.Confusion[truth[i]][pred[i]]++
		if truth[i] == pred[i] {
			correct++
		}
	}
	if len(truth) > 0 {
		r.Accuracy = float64(correct) / float64(len(truth))
	}

	present := 0
	var weighted, macro float64
	for _, c := range condition.All() {
		tp := r.Confusion[c][c]
		support, predicted := 0, 0
		for j := range n {
			support += r.Confusion[c][j]
			predicted += r.Confusion[j][c]
		}
		cm := ClassMetrics{Class: c, Support: support}
		if predicted > 0 {
			cm.Precision = float64(tp) / float64(predicted)
		}
		if support > 0 {
			cm.Recall = float64(tp) / float64(support)
		}
		if cm.Precision+cm.Recall > 0 {
			cm.F1 = 2 * cm.Precision * cm.Recall / (cm.Precision + cm.Recall)
		}
		if support == 0 && predicted == 0 {
			continue
		}
		present++
		macro += cm.F1
		weighted += cm.F1 * float64(support)
		r.PerClass = append(r.PerClass, cm)
	}
	if len(truth) > 0 {
		r.WeightedF1 = weighted / float64(len(truth))
	}
	if present > 0 {
		r.MacroF1 = macro / float64(present)
	}
	return r
}

// weightedF1 is the support-weighted mean of per-class F1.
func weightedF1(truth, pred []condition.Class) float64 {
	return NewReport(truth, pred).WeightedF1
}

// Evaluate classifies every example with m and reports the scores.
func Evaluate(m *model.TrainedModel, examples []Example) (*Report, error) {
	if m == nil {
		return nil, errors.New("train: evaluate nil model")
	}
	if len(examples) == 0 {
		return nil, errors.New("train: evaluate on empty set")
	}
	truth := make([]condition.Class, len(examples))
	pred := make([]condition.Class, len(examples))
	for i, ex := range examples {
		if !ex.Class.Valid() {
			return nil, fmt.Errorf("train: evaluate example %d: invalid class %d", i, int(ex.Class))
		}
		res, err := m.Predict(ex.Vector)
		if err != nil {
			return nil, fmt.Errorf("train: evaluate example %d: %w", i, err)
		}
		truth[i] = ex.Class
		pred[i] = res.Label
	}
	return NewReport(truth, pred), nil
}

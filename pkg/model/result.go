package model

import "github.com/kehinde-elelu/aimechanics/pkg/condition"

// ClassProbability is the probability of one class.
type ClassProbability struct {
	Class       condition.Class `json:"class" yaml:"class" msgpack:"class"`
	Probability float64         `json:"probability" yaml:"probability" msgpack:"probability"`
}

// Result is the outcome of classifying one waveform.
type Result struct {
	Label  condition.Class  `json:"label" yaml:"label" msgpack:"label"`
	Signal condition.Signal `json:"signal" yaml:"signal" msgpack:"signal"`
	// Probabilities follows the model's class order.
	Probabilities []ClassProbability `json:"probabilities" yaml:"probabilities" msgpack:"probabilities"`
}

// Confidence returns the probability of the predicted label.
func (r *Result) Confidence() float64 {
	return r.Probability(r.Label)
}

// Probability returns the probability of c, or 0 when the model does not
// know c.
func (r *Result) Probability(c condition.Class) float64 {
	for _, p := range r.Probabilities {
		if p.Class == c {
			return p.Probability
		}
	}
	return 0
}

// newResult picks the most probable class. Ties go to the class listed
// first.
func newResult(classes []condition.Class, probs []float64) *Result {
	r := &Result{Probabilities: make([]ClassProbability, len(classes))}
	best := 0
	for i, c := range classes {
		r.Probabilities[i] = ClassProbability{Class: c, Probability: probs[i]}
		if probs[i] > probs[best] {
			best = i
		}
	}
	r.Label = classes[best]
	r.Signal = r.Label.Signal()
	return r
}

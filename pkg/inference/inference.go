// Package inference classifies recordings with a trained model.
//
// Classify is a pure function of a model and a waveform. Engine wraps it
// for servers: it holds the current model behind an atomic pointer so a
// retrained model can be swapped in while requests are in flight.
package inference

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/kehinde-elelu/aimechanics/pkg/audio/resampler"
	"github.com/kehinde-elelu/aimechanics/pkg/audio/wav"
	"github.com/kehinde-elelu/aimechanics/pkg/features"
	"github.com/kehinde-elelu/aimechanics/pkg/model"
)

// ErrModelUnavailable is returned when no model is loaded.
var ErrModelUnavailable = errors.New("inference: model unavailable")

// Classify extracts features from samples and classifies them with m.
// Extraction errors are returned unchanged.
func Classify(m *model.TrainedModel, samples []float64, sampleRate int) (*model.Result, error) {
	if m == nil {
		return nil, ErrModelUnavailable
	}
	vec, err := features.Extract(samples, sampleRate)
	if err != nil {
		return nil, err
	}
	if err := m.CheckSchema(features.SchemaVersion, len(vec)); err != nil {
		return nil, err
	}
	return m.Predict(vec)
}

// IsRequestError reports whether err was caused by the request or the
// currently loaded model rather than by the server itself.
func IsRequestError(err error) bool {
	return errors.Is(err, features.ErrInvalidAudio) ||
		errors.Is(err, model.ErrSchemaMismatch) ||
		errors.Is(err, ErrModelUnavailable)
}

// Option configures an Engine.
type Option func(*Engine)

// WithTargetSampleRate resamples every waveform to rate before
// extraction. 0 keeps the native rate.
func WithTargetSampleRate(rate int) Option {
	return func(e *Engine) { e.targetRate = rate }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine classifies with the current model. It is safe for concurrent use.
type Engine struct {
	current    atomic.Pointer[model.TrainedModel]
	targetRate int
	log        *slog.Logger
}

// New returns an engine serving m, which may be nil until a model is
// swapped in.
func New(m *model.TrainedModel, opts ...Option) *Engine {
	e := &Engine{log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.current.Store(m)
	return e
}

// Model returns the current model or nil.
func (e *Engine) Model() *model.TrainedModel {
	return e.current.Load()
}

// Swap installs m and returns the previous model. Requests already
// running finish with the model they started with.
func (e *Engine) Swap(m *model.TrainedModel) *model.TrainedModel {
	old := e.current.Swap(m)
	if m != nil {
		e.log.Info("inference: model swapped", "id", m.ID)
	}
	return old
}

// Classify classifies a mono waveform.
func (e *Engine) Classify(samples []float64, sampleRate int) (*model.Result, error) {
	return e.classify(e.current.Load(), samples, sampleRate)
}

func (e *Engine) classify(m *model.TrainedModel, samples []float64, sampleRate int) (*model.Result, error) {
	if m == nil {
		return nil, ErrModelUnavailable
	}
	if e.targetRate > 0 && sampleRate > 0 && sampleRate != e.targetRate && len(samples) > 0 {
		w, err := resampler.Resample(features.Waveform{Samples: samples, SampleRate: sampleRate}, e.targetRate)
		if err != nil {
			return nil, fmt.Errorf("inference: %w", err)
		}
		samples, sampleRate = w.Samples, w.SampleRate
	}
	return Classify(m, samples, sampleRate)
}

// ClassifyWAV decodes a WAV stream and classifies it. The sample rate is
// taken from the WAV header.
func (e *Engine) ClassifyWAV(r io.Reader) (*model.Result, error) {
	res, _, err := e.ClassifyWAVModel(r)
	return res, err
}

// ClassifyWAVModel is ClassifyWAV that also returns the model the result
// came from. A concurrent Swap does not change which model that is.
func (e *Engine) ClassifyWAVModel(r io.Reader) (*model.Result, *model.TrainedModel, error) {
	m := e.current.Load()
	if m == nil {
		return nil, nil, ErrModelUnavailable
	}
	w, err := wav.Decode(r)
	if err != nil {
		return nil, nil, err
	}
	res, err := e.classify(m, w.Samples, w.SampleRate)
	if err != nil {
		return nil, nil, err
	}
	return res, m, nil
}

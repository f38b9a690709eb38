// Package corpus loads labeled recordings from a directory tree laid out
// as <root>/<class>/*.wav, one directory per condition class.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/kehinde-elelu/aimechanics/pkg/audio/resampler"
	"github.com/kehinde-elelu/aimechanics/pkg/audio/wav"
	"github.com/kehinde-elelu/aimechanics/pkg/condition"
	"github.com/kehinde-elelu/aimechanics/pkg/features"
	"github.com/kehinde-elelu/aimechanics/pkg/train"
)

// ErrEmpty is returned when a root holds no recordings.
var ErrEmpty = errors.New("corpus: no recordings found")

// File is one discovered recording.
type File struct {
	Path  string
	Class condition.Class
}

// Failure records a file that could not be loaded.
type Failure struct {
	Path string `json:"path" yaml:"path"`
	Err  string `json:"error" yaml:"error"`
}

// Corpus is a loaded set of examples.
type Corpus struct {
	Root     string
	Examples []train.Example
	Failures []Failure
}

// Counts returns the number of loaded examples per class.
func (c *Corpus) Counts() map[condition.Class]int {
	out := make(map[condition.Class]int)
	for _, ex := range c.Examples {
		out[ex.Class]++
	}
	return out
}

// Options controls Load.
type Options struct {
	// Workers bounds concurrent decoding. 0 means GOMAXPROCS.
	Workers int
	// TargetSampleRate resamples every file before extraction. 0 keeps
	// the native rate.
	TargetSampleRate int
	Logger           *slog.Logger
}

// Discover lists the WAV files under root in class order, then path
// order. Directories that do not name a class are skipped.
func Discover(root string) ([]File, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("corpus: read %s: %w", root, err)
	}
	var files []File
	for _, c := range condition.All() {
		if !slices.ContainsFunc(entries, func(e fs.DirEntry) bool { return e.IsDir() && e.Name() == c.String() }) {
			continue
		}
		dir := filepath.Join(root, c.String())
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".wav") {
				return nil
			}
			files = append(files, File{Path: path, Class: c})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("corpus: walk %s: %w", dir, err)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrEmpty, root)
	}
	return files, nil
}

// Load decodes and extracts features from every recording under root.
// Files that fail are collected in Corpus.Failures and do not stop the
// load. Examples keep discovery order regardless of scheduling.
func Load(ctx context.Context, root string, opts Options) (*Corpus, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	files, err := Discover(root)
	if err != nil {
		return nil, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	type result struct {
		vec features.Vector
		err error
	}
	results := make([]result, len(files))
	idx := make(chan int)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				vec, err := loadFile(files[i].Path, opts.TargetSampleRate)
				results[i] = result{vec: vec, err: err}
			}
		}()
	}

	var ctxErr error
feed:
	for i := range files {
		if ctxErr = ctx.Err(); ctxErr != nil {
			break
		}
		select {
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break feed
		case idx <- i:
		}
	}
	close(idx)
	wg.Wait()
	if ctxErr != nil {
		return nil, fmt.Errorf("corpus: load %s: %w", root, ctxErr)
	}

	c := &Corpus{Root: root}
	for i, f := range files {
		r := results[i]
		if r.err != nil {
			log.Warn("corpus: skipping file", "path", f.Path, "error", r.err)
			c.Failures = append(c.Failures, Failure{Path: f.Path, Err: r.err.Error()})
			continue
		}
		c.Examples = append(c.Examples, train.Example{Vector: r.vec, Class: f.Class, Source: f.Path})
	}
	log.Info("corpus: loaded", "root", root, "examples", len(c.Examples), "failures", len(c.Failures))
	return c, nil
}

func loadFile(path string, targetRate int) (features.Vector, error) {
	w, err := wav.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if targetRate > 0 && w.SampleRate != targetRate {
		if w, err = resampler.Resample(w, targetRate); err != nil {
			return nil, err
		}
	}
	return features.ExtractWaveform(w)
}

// Package registry persists trained models and tracks which one is
// current.
//
// A registry has two parts: an Index holding one msgpack Record per model
// plus the current-model pointer, and a Blobs store holding the model
// artifacts themselves. The index lives in badger on local disk; blobs
// live on disk or in S3.
//
// Index layout:
//
//	model:<id>  -> Record
//	current     -> model id
package registry

import (
	"bytes"
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kehinde-elelu/aimechanics/pkg/condition"
	"github.com/kehinde-elelu/aimechanics/pkg/model"
)

const (
	modelPrefix = "model:"
	currentKey  = "current"
	lockFile    = "train.lock"
)

var (
	// ErrNoCurrent is returned when no model has been made current.
	ErrNoCurrent = errors.New("registry: no current model")
	// ErrLocked is returned by Lock when another process holds the lock.
	ErrLocked = errors.New("registry: locked by another training run")
	// ErrAmbiguous is returned when an id prefix matches several models.
	ErrAmbiguous = errors.New("registry: ambiguous model id")
	// ErrChecksum is returned when an artifact does not match its record.
	ErrChecksum = errors.New("registry: artifact checksum mismatch")
)

// Record describes one registered model.
type Record struct {
	ID            string            `msgpack:"id" json:"id" yaml:"id"`
	CreatedAt     time.Time         `msgpack:"created_at" json:"created_at" yaml:"created_at"`
	RegisteredAt  time.Time         `msgpack:"registered_at" json:"registered_at" yaml:"registered_at"`
	SchemaVersion string            `msgpack:"schema_version" json:"schema_version" yaml:"schema_version"`
	Classes       []condition.Class `msgpack:"classes" json:"classes" yaml:"classes"`

	Params        model.Hyperparams `msgpack:"params" json:"params" yaml:"params"`
	ResolvedGamma float64           `msgpack:"resolved_gamma" json:"resolved_gamma" yaml:"resolved_gamma"`
	CVScore       float64           `msgpack:"cv_score" json:"cv_score" yaml:"cv_score"`
	Components    int               `msgpack:"components" json:"components" yaml:"components"`
	TrainSize     int               `msgpack:"train_size" json:"train_size" yaml:"train_size"`

	Blob   string `msgpack:"blob" json:"blob" yaml:"blob"`
	Size   int64  `msgpack:"size" json:"size" yaml:"size"`
	SHA256 string `msgpack:"sha256" json:"sha256" yaml:"sha256"`

	// Source names the dataset the model was trained on.
	Source  string             `msgpack:"source,omitempty" json:"source,omitempty" yaml:"source,omitempty"`
	Metrics map[string]float64 `msgpack:"metrics,omitempty" json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// PutOptions annotates a model being registered.
type PutOptions struct {
	Source  string
	Metrics map[string]float64
	// Activate makes the model current in the same index update.
	Activate bool
}

// Config selects the registry storage.
type Config struct {
	// Dir holds the badger index, the lock file and, for the local
	// backend, the artifacts.
	Dir string `json:"dir" yaml:"dir"`
	// Backend is "local" (default) or "s3".
	Backend string   `json:"backend,omitempty" yaml:"backend,omitempty"`
	S3      S3Config `json:"s3,omitempty" yaml:"s3,omitempty"`
}

// Registry is safe for concurrent use within a process. Lock serializes
// training runs across processes.
type Registry struct {
	index    Index
	blobs    Blobs
	lockPath string
	log      *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithLockFile sets the file used by Lock.
func WithLockFile(path string) Option {
	return func(r *Registry) { r.lockPath = path }
}

// New returns a registry over an existing index and blob store. The
// registry takes ownership of index.
func New(index Index, blobs Blobs, opts ...Option) *Registry {
	r := &Registry{index: index, blobs: blobs, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open opens the registry described by cfg, creating it if needed.
func Open(cfg Config, opts ...Option) (*Registry, error) {
	if cfg.Dir == "" {
		return nil, errors.New("registry: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	r := New(nil, nil, append([]Option{WithLockFile(filepath.Join(cfg.Dir, lockFile))}, opts...)...)

	switch cfg.Backend {
	case "", "local":
		blobs, err := NewLocalBlobs(filepath.Join(cfg.Dir, "blobs"))
		if err != nil {
			return nil, err
		}
		r.blobs = blobs
	case "s3":
		client, err := NewS3Client(cfg.S3)
		if err != nil {
			return nil, err
		}
		r.blobs = NewS3Blobs(client, cfg.S3.Bucket, cfg.S3.Prefix)
	default:
		return nil, fmt.Errorf("registry: unknown backend %q", cfg.Backend)
	}

	index, err := OpenBadger(BadgerOptions{Dir: filepath.Join(cfg.Dir, "index"), Logger: r.log})
	if err != nil {
		return nil, err
	}
	r.index = index
	return r, nil
}

// Close releases the index.
func (r *Registry) Close() error {
	return r.index.Close()
}

// Lock takes the cross-process training lock without waiting. The returned
// function releases it.
func (r *Registry) Lock() (unlock func() error, err error) {
	if r.lockPath == "" {
		return func() error { return nil }, nil
	}
	fl := flock.New(r.lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("registry: lock %s: %w", r.lockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", ErrLocked, r.lockPath)
	}
	return fl.Unlock, nil
}

func blobPath(id string) string {
	return "models/" + id + ".amsv"
}

// Put stores m and its record. Registering an id twice replaces the
// earlier artifact.
func (r *Registry) Put(ctx context.Context, m *model.TrainedModel, opts PutOptions) (*Record, error) {
	data, err := model.Marshal(m)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	rec := &Record{
		ID:            m.ID,
		CreatedAt:     m.CreatedAt,
		RegisteredAt:  time.Now().UTC(),
		SchemaVersion: m.SchemaVersion,
		Classes:       m.Classes,
		Params:        m.Selection.Best,
		ResolvedGamma: m.Selection.ResolvedGamma,
		CVScore:       m.Selection.Score,
		Components:    m.Selection.Components,
		TrainSize:     m.Selection.TrainSize,
		Blob:          blobPath(m.ID),
		Size:          int64(len(data)),
		SHA256:        hex.EncodeToString(sum[:]),
		Source:        opts.Source,
		Metrics:       opts.Metrics,
	}

	w, err := r.blobs.Create(ctx, rec.Blob)
	if err != nil {
		return nil, fmt.Errorf("registry: create blob: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("registry: write blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("registry: write blob: %w", err)
	}

	enc, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("registry: encode record: %w", err)
	}
	puts := []IndexEntry{{Key: modelPrefix + rec.ID, Value: enc}}
	if opts.Activate {
		puts = append(puts, IndexEntry{Key: currentKey, Value: []byte(rec.ID)})
	}
	if err := r.index.Update(ctx, puts, nil); err != nil {
		return nil, fmt.Errorf("registry: index: %w", err)
	}
	r.log.Info("registry: model stored", "id", rec.ID, "size", rec.Size, "current", opts.Activate)
	return rec, nil
}

// Get returns the record of id.
func (r *Registry) Get(ctx context.Context, id string) (*Record, error) {
	data, err := r.index.Get(ctx, modelPrefix+id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: model %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("registry: index: %w", err)
	}
	var rec Record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("registry: decode record %s: %w", id, err)
	}
	return &rec, nil
}

// Resolve expands a unique id prefix to a full id.
func (r *Registry) Resolve(ctx context.Context, prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("%w: empty model id", ErrNotFound)
	}
	var matches []string
	for e, err := range r.index.Scan(ctx, modelPrefix+prefix) {
		if err != nil {
			return "", fmt.Errorf("registry: scan: %w", err)
		}
		id := strings.TrimPrefix(e.Key, modelPrefix)
		if id == prefix {
			return id, nil
		}
		matches = append(matches, id)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: model %s", ErrNotFound, prefix)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("%w: %q matches %d models", ErrAmbiguous, prefix, len(matches))
}

// Load reads and verifies the artifact of id.
func (r *Registry) Load(ctx context.Context, id string) (*model.TrainedModel, error) {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.load(ctx, rec)
}

func (r *Registry) load(ctx context.Context, rec *Record) (*model.TrainedModel, error) {
	rc, err := r.blobs.Open(ctx, rec.Blob)
	if err != nil {
		return nil, fmt.Errorf("registry: open artifact %s: %w", rec.ID, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("registry: read artifact %s: %w", rec.ID, err)
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != rec.SHA256 {
		return nil, fmt.Errorf("%w: model %s", ErrChecksum, rec.ID)
	}
	m, err := model.Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("registry: model %s: %w", rec.ID, err)
	}
	if m.ID != rec.ID {
		return nil, fmt.Errorf("registry: artifact %s holds model %s", rec.ID, m.ID)
	}
	return m, nil
}

// List returns every record, newest first.
func (r *Registry) List(ctx context.Context) ([]Record, error) {
	var out []Record
	for e, err := range r.index.Scan(ctx, modelPrefix) {
		if err != nil {
			return nil, fmt.Errorf("registry: scan: %w", err)
		}
		var rec Record
		if err := msgpack.Unmarshal(e.Value, &rec); err != nil {
			return nil, fmt.Errorf("registry: decode %s: %w", e.Key, err)
		}
		out = append(out, rec)
	}
	slices.SortStableFunc(out, func(a, b Record) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Delete removes id and its artifact. Deleting the current model leaves
// the registry without a current model.
func (r *Registry) Delete(ctx context.Context, id string) error {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	deletes := []string{modelPrefix + id}
	if cur, err := r.currentID(ctx); err == nil && cur == id {
		deletes = append(deletes, currentKey)
	}
	if err := r.index.Update(ctx, nil, deletes); err != nil {
		return fmt.Errorf("registry: index: %w", err)
	}
	if err := r.blobs.Remove(ctx, rec.Blob); err != nil {
		r.log.Warn("registry: artifact left behind", "id", id, "blob", rec.Blob, "error", err)
	}
	r.log.Info("registry: model deleted", "id", id)
	return nil
}

// SetCurrent makes id the current model.
func (r *Registry) SetCurrent(ctx context.Context, id string) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	if err := put(ctx, r.index, currentKey, []byte(id)); err != nil {
		return fmt.Errorf("registry: index: %w", err)
	}
	r.log.Info("registry: current model set", "id", id)
	return nil
}

func (r *Registry) currentID(ctx context.Context) (string, error) {
	data, err := r.index.Get(ctx, currentKey)
	if errors.Is(err, ErrNotFound) {
		return "", ErrNoCurrent
	}
	if err != nil {
		return "", fmt.Errorf("registry: index: %w", err)
	}
	return string(data), nil
}

// Current returns the record of the current model.
func (r *Registry) Current(ctx context.Context) (*Record, error) {
	id, err := r.currentID(ctx)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// LoadCurrent loads the current model.
func (r *Registry) LoadCurrent(ctx context.Context) (*model.TrainedModel, *Record, error) {
	rec, err := r.Current(ctx)
	if err != nil {
		return nil, nil, err
	}
	m, err := r.load(ctx, rec)
	if err != nil {
		return nil, nil, err
	}
	return m, rec, nil
}

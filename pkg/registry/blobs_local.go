package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalBlobs stores artifacts under a directory on disk.
type LocalBlobs struct {
	root string
}

// NewLocalBlobs creates dir if needed and returns a store rooted there.
func NewLocalBlobs(dir string) (*LocalBlobs, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("registry: blobs dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("registry: blobs dir: %w", err)
	}
	return &LocalBlobs{root: abs}, nil
}

func (l *LocalBlobs) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("registry: blob path %q escapes the store", path)
	}
	return filepath.Join(l.root, clean), nil
}

func (l *LocalBlobs) Open(_ context.Context, path string) (io.ReadCloser, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Create writes to a temporary file renamed into place on Close.
func (l *LocalBlobs) Create(_ context.Context, path string) (io.WriteCloser, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(filepath.Dir(full), ".blob-*")
	if err != nil {
		return nil, err
	}
	return &localWriter{File: f, dest: full}, nil
}

func (l *LocalBlobs) Remove(_ context.Context, path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (l *LocalBlobs) Exists(_ context.Context, path string) (bool, error) {
	full, err := l.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

type localWriter struct {
	*os.File
	dest string
}

func (w *localWriter) Close() error {
	if err := w.File.Sync(); err != nil {
		w.File.Close()
		os.Remove(w.Name())
		return err
	}
	if err := w.File.Close(); err != nil {
		os.Remove(w.Name())
		return err
	}
	if err := os.Rename(w.Name(), w.dest); err != nil {
		os.Remove(w.Name())
		return err
	}
	return nil
}

var _ Blobs = (*LocalBlobs)(nil)

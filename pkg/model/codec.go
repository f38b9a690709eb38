package model

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// Artifact format:
//
//	[4B magic "AMSV"] [4B little-endian version]
//	[msgpack-encoded TrainedModel]
var artifactMagic = [4]byte{'A', 'M', 'S', 'V'}

const artifactVersion uint32 = 1

// ErrInvalidArtifact is returned for data that is not a model artifact.
var ErrInvalidArtifact = errors.New("model: invalid artifact")

// Marshal encodes m into the artifact format.
func Marshal(m *TrainedModel) ([]byte, error) {
	var buf bytes.Buffer
	if err := Save(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes an artifact produced by Marshal.
func Unmarshal(data []byte) (*TrainedModel, error) {
	return Load(bytes.NewReader(data))
}

// Save writes m to w in the artifact format.
func Save(w io.Writer, m *TrainedModel) error {
	if m == nil {
		return errors.New("model: save nil model")
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if _, err := w.Write(artifactMagic[:]); err != nil {
		return fmt.Errorf("model: save magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, artifactVersion); err != nil {
		return fmt.Errorf("model: save version: %w", err)
	}
	enc := msgpack.NewEncoder(w)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("model: save body: %w", err)
	}
	return nil
}

// Load reads a model from r.
func Load(r io.Reader) (*TrainedModel, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: read magic: %v", ErrInvalidArtifact, err)
	}
	if magic != artifactMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrInvalidArtifact, magic[:])
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: read version: %v", ErrInvalidArtifact, err)
	}
	if version != artifactVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidArtifact, version)
	}

	var m TrainedModel
	if err := msgpack.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrInvalidArtifact, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	return &m, nil
}

// SaveFile writes m to path atomically.
func SaveFile(path string, m *TrainedModel) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("model: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-*")
	if err != nil {
		return fmt.Errorf("model: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("model: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("model: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("model: rename: %w", err)
	}
	return nil
}

// LoadFile reads a model artifact from path.
func LoadFile(path string) (*TrainedModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("model: open: %w", err)
	}
	defer f.Close()
	return Load(f)
}

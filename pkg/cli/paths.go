package cli

import (
	"os"
	"path/filepath"
)

const (
	// DefaultBaseDir is the directory under $HOME holding config and data.
	DefaultBaseDir = ".aimechanics"
	// DefaultConfigFile is the config filename inside the base directory.
	DefaultConfigFile = "config.yaml"
)

// Paths locates the aimechanics directory layout.
type Paths struct {
	// Base is the root directory, usually ~/.aimechanics.
	Base string
}

// NewPaths returns the layout under the user's home directory.
func NewPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{Base: filepath.Join(home, DefaultBaseDir)}, nil
}

// defaultPaths falls back to a relative .aimechanics when $HOME is unset.
func defaultPaths() *Paths {
	p, err := NewPaths()
	if err != nil {
		return &Paths{Base: DefaultBaseDir}
	}
	return p
}

// ConfigFile returns ~/.aimechanics/config.yaml.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.Base, DefaultConfigFile)
}

// RegistryDir returns ~/.aimechanics/registry.
func (p *Paths) RegistryDir() string {
	return filepath.Join(p.Base, "registry")
}

// HistoryDB returns ~/.aimechanics/history.db.
func (p *Paths) HistoryDB() string {
	return filepath.Join(p.Base, "history.db")
}

// UploadDir returns ~/.aimechanics/uploads.
func (p *Paths) UploadDir() string {
	return filepath.Join(p.Base, "uploads")
}

// EnsureBase creates the base directory if it doesn't exist.
func (p *Paths) EnsureBase() error {
	return os.MkdirAll(p.Base, 0755)
}

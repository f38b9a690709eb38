package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/kehinde-elelu/aimechanics/pkg/registry"
	"github.com/kehinde-elelu/aimechanics/pkg/train"
)

// AppConfig is the aimechanics configuration file.
type AppConfig struct {
	Registry registry.Config `json:"registry" yaml:"registry"`
	Training TrainingConfig  `json:"training" yaml:"training"`
	Serve    ServeConfig     `json:"serve" yaml:"serve"`
	Audio    AudioConfig     `json:"audio" yaml:"audio"`

	path string
}

// TrainingConfig holds the defaults of the train command.
type TrainingConfig struct {
	Folds int `json:"folds" yaml:"folds" jsonschema:"number of stratified cross-validation folds"`
	// Variance is the PCA explained-variance target.
	Variance     float64    `json:"variance" yaml:"variance" jsonschema:"PCA explained-variance target in (0, 1]"`
	Seed         uint64     `json:"seed" yaml:"seed"`
	Workers      int        `json:"workers,omitempty" yaml:"workers,omitempty" jsonschema:"concurrent grid-search jobs; 0 uses every CPU"`
	TestFraction float64    `json:"test_fraction" yaml:"test_fraction" jsonschema:"held-out share of the corpus for evaluation"`
	Grid         train.Grid `json:"grid" yaml:"grid"`
}

// ServeConfig holds the defaults of the serve command.
type ServeConfig struct {
	Addr string `json:"addr" yaml:"addr"`
	// HistoryDB is the classification log. Empty disables logging.
	HistoryDB      string `json:"history_db,omitempty" yaml:"history_db,omitempty"`
	UploadDir      string `json:"upload_dir,omitempty" yaml:"upload_dir,omitempty" jsonschema:"keep a copy of every uploaded recording here"`
	MaxUploadBytes int64  `json:"max_upload_bytes,omitempty" yaml:"max_upload_bytes,omitempty"`
	PathRoot       string `json:"path_root,omitempty" yaml:"path_root,omitempty" jsonschema:"restrict classify-by-path to files under this directory"`
}

// AudioConfig controls audio ingestion.
type AudioConfig struct {
	TargetSampleRate int `json:"target_sample_rate,omitempty" yaml:"target_sample_rate,omitempty" jsonschema:"resample recordings to this rate before feature extraction; 0 keeps the native rate"`
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	p := defaultPaths()
	tc := train.DefaultConfig()
	return &AppConfig{
		Registry: registry.Config{Dir: p.RegistryDir(), Backend: "local"},
		Training: TrainingConfig{
			Folds:        tc.Folds,
			Variance:     tc.VarianceRetained,
			Seed:         tc.Seed,
			TestFraction: 0.25,
			Grid:         tc.Grid,
		},
		Serve: ServeConfig{
			Addr:      ":8000",
			HistoryDB: p.HistoryDB(),
		},
		path: p.ConfigFile(),
	}
}

// LoadAppConfig reads the config at path, or ~/.aimechanics/config.yaml
// when path is empty. A missing file yields the defaults. Values in the
// file override the defaults field by field.
func LoadAppConfig(path string) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if path != "" {
		cfg.path = path
	}
	data, err := os.ReadFile(cfg.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("cli: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cli: parse config %s: %w", cfg.path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("cli: config %s: %w", cfg.path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a command.
func (c *AppConfig) Validate() error {
	switch c.Registry.Backend {
	case "", "local":
	case "s3":
		if c.Registry.S3.Bucket == "" {
			return errors.New("registry.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown registry backend %q", c.Registry.Backend)
	}
	if c.Training.Folds < 2 {
		return fmt.Errorf("training.folds must be >= 2, got %d", c.Training.Folds)
	}
	if c.Training.Variance <= 0 || c.Training.Variance > 1 {
		return fmt.Errorf("training.variance %v out of (0, 1]", c.Training.Variance)
	}
	if c.Training.TestFraction <= 0 || c.Training.TestFraction >= 1 {
		return fmt.Errorf("training.test_fraction %v out of (0, 1)", c.Training.TestFraction)
	}
	if err := c.Training.Grid.Validate(); err != nil {
		return err
	}
	if c.Audio.TargetSampleRate < 0 {
		return fmt.Errorf("audio.target_sample_rate must not be negative")
	}
	return nil
}

// TrainConfig converts the training section into a train.Config.
func (c *AppConfig) TrainConfig() train.Config {
	tc := train.DefaultConfig()
	tc.Folds = c.Training.Folds
	tc.VarianceRetained = c.Training.Variance
	tc.Seed = c.Training.Seed
	tc.Workers = c.Training.Workers
	tc.Grid = c.Training.Grid
	return tc
}

// Save writes the configuration to its path.
func (c *AppConfig) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("cli: marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("cli: create config directory: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("cli: write config: %w", err)
	}
	return nil
}

// Path returns the config file path.
func (c *AppConfig) Path() string {
	return c.path
}

// ConfigSchema returns the JSON Schema of the config file.
func ConfigSchema() ([]byte, error) {
	s, err := jsonschema.For[AppConfig](nil)
	if err != nil {
		return nil, fmt.Errorf("cli: config schema: %w", err)
	}
	return json.MarshalIndent(s, "", "  ")
}

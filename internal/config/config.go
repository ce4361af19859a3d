// Package config loads CLI configuration from an optional YAML file,
// with command-line flags taking precedence over whatever the file
// sets. It knows nothing about the storage engine itself.
package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape of a pgstore CLI config file.
type Config struct {
	// DataDir is the default database directory, overridden by --data-dir.
	DataDir string `yaml:"data_dir"`

	// SyncWrites forces fsync after every write batch.
	SyncWrites bool `yaml:"sync_writes"`

	// Strict makes ingestion stop at the first bad record instead of
	// skipping it.
	Strict bool `yaml:"strict"`

	// BatchSize groups this many consecutive .pgdf records per write batch.
	BatchSize int `yaml:"batch_size"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{DataDir: "./data", BatchSize: 100}
}

// Load reads and validates the YAML config file at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader decodes a YAML config from r, starting from Default()
// so a partial file only overrides the fields it sets.
func LoadFromReader(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that cfg contains coherent values.
func Validate(cfg Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	if cfg.BatchSize < 0 {
		return fmt.Errorf("config: batch_size must not be negative")
	}
	return nil
}

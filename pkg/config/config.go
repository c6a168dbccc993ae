// Package config reads the optional .zipdiff.yml project file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFile is read from the working directory when no --config is given.
const DefaultFile = ".zipdiff.yml"

type Upload struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// Config mirrors the build command's flags. Zero values mean "not set"
// so flags and built-in defaults take over.
type Config struct {
	Exclude []string `yaml:"exclude"`
	Output  string   `yaml:"output"`
	Format  string   `yaml:"format"`
	Engine  string   `yaml:"engine"`
	Upload  Upload   `yaml:"upload"`
}

// Parse decodes a config document. Unknown keys are an error so typos do
// not silently fall back to defaults.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Engine {
	case "", "diff", "native":
	default:
		return fmt.Errorf(
			"config: engine %q (want diff or native)", c.Engine,
		)
	}
	return nil
}

// Load reads path. An empty path means DefaultFile, which may be absent;
// an explicitly named file must exist.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	slog.Debug("loaded config",
		"path", path,
		"exclude", len(cfg.Exclude),
		"engine", cfg.Engine,
	)
	return cfg, nil
}

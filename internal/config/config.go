// Package config loads celltool settings from YAML. Command-line flags
// override what is read here.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cell-tracer/internal/features"
	"cell-tracer/internal/logger"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration.
type Config struct {
	Generate struct {
		// Workers is the number of tracing goroutines; 0 uses every CPU.
		Workers int `yaml:"workers"`
		// SearchWindow bounds the per-label bounding box scan; 0 is exact.
		SearchWindow int `yaml:"searchWindow"`
	} `yaml:"generate"`

	Features struct {
		GroupBy  string   `yaml:"groupBy"`
		Reducers []string `yaml:"reducers"`
		// Policy is one of ignore, crop, raise.
		Policy  string `yaml:"policy"`
		Workers int    `yaml:"workers"`
	} `yaml:"features"`

	Export struct {
		// Dilate grows each entity before it is painted into a label image.
		Dilate int    `yaml:"dilate"`
		Format string `yaml:"format"` // tiff or png
	} `yaml:"export"`

	Render struct {
		Key        string `yaml:"key"`
		Alpha      int    `yaml:"alpha"`
		Background string `yaml:"background"` // black, white or transparent
	} `yaml:"render"`

	Log struct {
		Level   string `yaml:"level"`
		Console bool   `yaml:"console"`
	} `yaml:"log"`

	Metrics struct {
		// Textfile, when set, receives a Prometheus text dump on exit.
		Textfile string `yaml:"textfile"`
	} `yaml:"metrics"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Features.GroupBy = "marker"
	cfg.Features.Reducers = append([]string(nil), features.DefaultReducerNames...)
	cfg.Features.Policy = features.Ignore.String()
	cfg.Export.Format = "tiff"
	cfg.Render.Key = "cluster"
	cfg.Render.Alpha = 255
	cfg.Render.Background = "black"
	cfg.Log.Level = "info"
	cfg.Log.Console = true
	return cfg
}

// LoadConfig reads path over the defaults. A missing file yields the
// defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside a command.
func (c *Config) Validate() error {
	var errs []error
	if c.Generate.Workers < 0 {
		errs = append(errs, fmt.Errorf("generate.workers must not be negative"))
	}
	if c.Generate.SearchWindow < 0 {
		errs = append(errs, fmt.Errorf("generate.searchWindow must not be negative"))
	}
	if c.Features.Workers < 0 {
		errs = append(errs, fmt.Errorf("features.workers must not be negative"))
	}
	if _, err := features.ParsePolicy(c.Features.Policy); err != nil {
		errs = append(errs, fmt.Errorf("features.policy: %w", err))
	}
	if _, err := features.Lookup(c.Features.Reducers); err != nil {
		errs = append(errs, fmt.Errorf("features.reducers: %w", err))
	}
	if c.Export.Dilate < 0 {
		errs = append(errs, fmt.Errorf("export.dilate must not be negative"))
	}
	switch c.Export.Format {
	case "tiff", "png":
	default:
		errs = append(errs, fmt.Errorf("export.format %q is not tiff or png", c.Export.Format))
	}
	if c.Render.Alpha < 0 || c.Render.Alpha > 255 {
		errs = append(errs, fmt.Errorf("render.alpha %d out of range 0-255", c.Render.Alpha))
	}
	switch c.Render.Background {
	case "black", "white", "transparent":
	default:
		errs = append(errs, fmt.Errorf("render.background %q is not black, white or transparent", c.Render.Background))
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

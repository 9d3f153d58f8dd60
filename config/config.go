// Package config loads ofsrescue settings from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lvdlvd/ofsrescue/ofs"
)

// ScanConfig holds the scan window and path resolution settings.
type ScanConfig struct {
	StartSector  int    `yaml:"start_sector"`   // first sector scanned
	EndSector    int    `yaml:"end_sector"`     // one past the last sector scanned
	RootSector   uint32 `yaml:"root_sector"`    // where parent walks stop
	MaxPathDepth int    `yaml:"max_path_depth"` // bound on parent hops

	// Pinned is set when end_sector or root_sector was given explicitly,
	// so the window must not be widened to the image geometry
	Pinned bool `yaml:"-"`
}

// OutputConfig holds recovery output settings.
type OutputConfig struct {
	Dir          string `yaml:"dir"`
	OnWriteError string `yaml:"on_write_error"` // "abort" or "skip"
	Workers      int    `yaml:"workers"`
	Manifest     string `yaml:"manifest"` // optional YAML manifest path
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `yaml:"level"`   // e.g., "debug", "info", "warn", "error"
	Output  string `yaml:"output"`  // e.g., "stderr", "stdout", "file", "none"
	File    string `yaml:"file"`    // Path to the log file, used if output is "file"
	Format  string `yaml:"format"`  // "text", "json" or "auto"
	Verbose bool   `yaml:"verbose"` // per-sector debug records
}

// Config is the top-level configuration struct.
type Config struct {
	Scan    ScanConfig    `yaml:"scan"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the configuration for a double-density floppy.
func Default() *Config {
	return &Config{
		Scan: ScanConfig{
			StartSector:  ofs.DefaultStartSector,
			EndSector:    ofs.DefaultEndSector,
			RootSector:   ofs.DefaultRootSector,
			MaxPathDepth: ofs.DefaultMaxPathDepth,
		},
		Output: OutputConfig{
			Dir:          ".",
			OnWriteError: "abort",
			Workers:      1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			File:   "ofsrescue.log",
			Format: "auto",
		},
	}
}

// Load reads configuration from an io.Reader.
// A nil reader or empty input yields the defaults.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}

	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	// Decode the window keys again without defaults to see which were set
	var given struct {
		Scan struct {
			EndSector  *int    `yaml:"end_sector"`
			RootSector *uint32 `yaml:"root_sector"`
		} `yaml:"scan"`
	}
	if err := yaml.Unmarshal(data, &given); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}
	cfg.Scan.Pinned = given.Scan.EndSector != nil || given.Scan.RootSector != nil

	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path.
// A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}

// Validate checks the configuration for values no run can use.
func (c *Config) Validate() error {
	var errs []error

	s := c.Scan
	if s.StartSector < 0 {
		errs = append(errs, fmt.Errorf("scan.start_sector must not be negative, got %d", s.StartSector))
	}
	if s.EndSector < s.StartSector {
		errs = append(errs, fmt.Errorf("scan.end_sector %d is before scan.start_sector %d", s.EndSector, s.StartSector))
	}
	if s.MaxPathDepth < 1 {
		errs = append(errs, fmt.Errorf("scan.max_path_depth must be at least 1, got %d", s.MaxPathDepth))
	}

	switch strings.ToLower(c.Output.OnWriteError) {
	case "abort", "skip":
	default:
		errs = append(errs, fmt.Errorf("output.on_write_error must be abort or skip, got %q", c.Output.OnWriteError))
	}
	if c.Output.Workers < 1 {
		errs = append(errs, fmt.Errorf("output.workers must be at least 1, got %d", c.Output.Workers))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json", "auto":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text, json or auto, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// Package config loads the service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tastythames/polyrun/internal/profile"
	"github.com/tastythames/polyrun/internal/runner"
)

type Config struct {
	Listen string `yaml:"listen"`
	// DataDir holds uploads, staging and output directories.
	DataDir string `yaml:"data_dir"`

	Workers    int           `yaml:"workers"`
	QueueSize  int           `yaml:"queue_size"`
	RunTimeout time.Duration `yaml:"run_timeout"`

	// MaxUpload bounds the multipart body of a run request, in bytes.
	MaxUpload int64 `yaml:"max_upload"`
	// LogLimit bounds how much of a log is returned, in bytes.
	LogLimit int64 `yaml:"log_limit"`

	Batch BatchConfig `yaml:"batch"`

	// Profiles maps names to connection profile documents on disk.
	Profiles map[string]string `yaml:"profiles"`
}

type BatchConfig struct {
	Partition    string        `yaml:"partition"`
	PreRun       string        `yaml:"pre_run"`
	PostRun      string        `yaml:"post_run"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
	// PollJitter spreads the queue queries of concurrent runs.
	PollJitter time.Duration `yaml:"poll_jitter"`
	// LogWindow is how recent a log found under $HOME must be; a negative
	// value disables the search.
	LogWindow time.Duration `yaml:"log_window"`
}

func Default() Config {
	return Config{
		Listen:     ":9330",
		DataDir:    os.TempDir(),
		Workers:    4,
		QueueSize:  100,
		RunTimeout: 2 * time.Hour,
		MaxUpload:  512 << 20,
		LogLimit:   1 << 20,
		Batch: BatchConfig{
			PollInterval: 10 * time.Second,
			LogWindow:    runner.DefaultLogWindow,
		},
	}
}

// Load reads path over the defaults, when path is set, then applies
// POLYRUN_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("yaml unmarshal: %w", err)
		}
	}

	if v := os.Getenv("POLYRUN_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("POLYRUN_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("POLYRUN_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("POLYRUN_WORKERS: %w", err)
		}
		cfg.Workers = n
	}
	if v := os.Getenv("POLYRUN_PARTITION"); v != "" {
		cfg.Batch.Partition = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.QueueSize <= 0 {
		return errors.New("config: queue_size must be positive")
	}
	if c.DataDir == "" {
		return errors.New("config: data_dir is empty")
	}
	if c.Batch.PollJitter < 0 {
		return errors.New("config: batch.poll_jitter must not be negative")
	}
	return nil
}

// RunOptions returns the batch defaults applied to every run.
func (c *Config) RunOptions() runner.Options {
	o := runner.Options{
		Partition:    c.Batch.Partition,
		PreRun:       c.Batch.PreRun,
		PostRun:      c.Batch.PostRun,
		PollInterval: c.Batch.PollInterval,
		PollTimeout:  c.Batch.PollTimeout,
		PollJitter:   c.Batch.PollJitter,
		LogWindow:    c.Batch.LogWindow,
	}
	if c.Batch.LogWindow < 0 {
		o.NoLogFallback = true
		o.LogWindow = 0
	}
	return o
}

// Profile loads the named connection profile.
func (c *Config) Profile(name string) (profile.Profile, error) {
	path, ok := c.Profiles[name]
	if !ok {
		return profile.Profile{}, fmt.Errorf("config: unknown profile %q", name)
	}
	return profile.Load(path)
}

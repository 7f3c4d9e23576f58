package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds everything about the server that isn't part of a single
// HTTP request: binary paths, temp/stats locations, and the knobs the
// batch engine needs that the spec leaves to the implementation.
type Config struct {
	// FFmpegPath is the path to the encoder binary (default: "ffmpeg").
	FFmpegPath string `yaml:"ffmpeg_path"`

	// FFprobePath is the path to the probe binary (default: "ffprobe").
	FFprobePath string `yaml:"ffprobe_path"`

	// TempDir is where per-attempt pass-log files and temp outputs live.
	// Defaults to a vidstick subdirectory of os.TempDir().
	TempDir string `yaml:"temp_dir"`

	// StatsFile is where cumulative counters are persisted (C8).
	StatsFile string `yaml:"stats_file"`

	// MaxConcurrentJobs caps how many jobs may have an active worker
	// goroutine at once. Spec places no cap; this is a resource-discipline
	// knob, not a spec-mandated limit.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`

	// JobRetentionSeconds is how long a terminal job survives before
	// /api/cleanup-processes evicts it (spec §7: 300s).
	JobRetentionSeconds int `yaml:"job_retention_seconds"`

	// LogLevel controls logging verbosity: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogFormat selects the slog handler: "text" (default) or "json".
	LogFormat string `yaml:"log_format"`
}

// Default returns a config with sensible defaults.
func Default() *Config {
	return &Config{
		FFmpegPath:          "ffmpeg",
		FFprobePath:         "ffprobe",
		TempDir:             filepath.Join(os.TempDir(), "vidstick"),
		StatsFile:           "config/stats.json",
		MaxConcurrentJobs:   4,
		JobRetentionSeconds: 300,
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// Load reads config from a YAML file, applying defaults for missing values.
// A missing file is not an error: a default config is written to path and
// returned, matching how the teacher bootstraps a first run.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if saveErr := cfg.Save(path); saveErr != nil {
				fmt.Printf("Warning: could not create config file: %v\n", saveErr)
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "vidstick")
	}
	if cfg.StatsFile == "" {
		cfg.StatsFile = "config/stats.json"
	}
	if cfg.MaxConcurrentJobs < 1 {
		cfg.MaxConcurrentJobs = 4
	}
	if cfg.JobRetentionSeconds <= 0 {
		cfg.JobRetentionSeconds = 300
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}

	return cfg, nil
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

package config_test

import (
	"path/filepath"
	"testing"

	"github.com/vidstick/vidstick/internal/config"
)

func TestLoadMissingFileWritesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vidstick.yaml")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FFmpegPath != "ffmpeg" {
		t.Errorf("expected default ffmpeg_path, got %q", cfg.FFmpegPath)
	}
	if cfg.JobRetentionSeconds != 300 {
		t.Errorf("expected default retention 300, got %d", cfg.JobRetentionSeconds)
	}

	if _, err := config.Load(path); err != nil {
		t.Fatalf("expected config file to have been written, reload failed: %v", err)
	}
}

func TestLoadAppliesDefaultsForEmptyFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vidstick.yaml")

	cfg := config.Default()
	cfg.FFmpegPath = ""
	cfg.MaxConcurrentJobs = 0
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.FFmpegPath != "ffmpeg" {
		t.Errorf("expected empty ffmpeg_path to default, got %q", loaded.FFmpegPath)
	}
	if loaded.MaxConcurrentJobs != 4 {
		t.Errorf("expected empty max_concurrent_jobs to default to 4, got %d", loaded.MaxConcurrentJobs)
	}
}

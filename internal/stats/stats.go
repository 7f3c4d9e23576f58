// Package stats persists cumulative outcome counters across server
// restarts as a single JSON document, read-through cached to absorb
// bursts of per-file increments.
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Kind identifies which counter family an outcome belongs to.
type Kind string

const (
	Conversion Kind = "conversion"
	HexEdit    Kind = "hexedit"
	Image      Kind = "image"
	Sticker    Kind = "sticker"
)

// Counters is the persisted document shape. Missing fields default to
// zero on load, so adding a Kind never breaks an existing stats.json.
type Counters struct {
	SuccessfulConversions int `json:"successful_conversions"`
	FailedConversions     int `json:"failed_conversions"`
	SuccessfulHexedits    int `json:"successful_hexedits"`
	FailedHexedits        int `json:"failed_hexedits"`
	SuccessfulImages      int `json:"successful_images"`
	FailedImages          int `json:"failed_images"`
	SuccessfulStickers    int `json:"successful_stickers"`
	FailedStickers        int `json:"failed_stickers"`
}

// cacheTTL bounds how long a cached read is trusted before re-reading the
// file, per spec.md §4.8.
const cacheTTL = 10 * time.Second

// Sink is the mutex-guarded persisted stats document.
type Sink struct {
	path string

	mu        sync.Mutex
	cached    Counters
	cachedAt  time.Time
	hasCached bool
}

// New creates a Sink backed by path. The file is not required to exist
// yet; the first read returns a zero-valued Counters.
func New(path string) *Sink {
	return &Sink{path: path}
}

// Snapshot returns the current counters, serving from cache when the
// last read is within cacheTTL.
func (s *Sink) Snapshot() (Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Sink) snapshotLocked() (Counters, error) {
	if s.hasCached && time.Since(s.cachedAt) < cacheTTL {
		return s.cached, nil
	}

	c, err := s.readLocked()
	if err != nil {
		return Counters{}, err
	}
	s.cached = c
	s.cachedAt = time.Now()
	s.hasCached = true
	return c, nil
}

func (s *Sink) readLocked() (Counters, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Counters{}, nil
		}
		return Counters{}, fmt.Errorf("stats: read %s: %w", s.path, err)
	}
	var c Counters
	if err := json.Unmarshal(data, &c); err != nil {
		return Counters{}, fmt.Errorf("stats: parse %s: %w", s.path, err)
	}
	return c, nil
}

// Increment bumps the success or failure counter for kind and rewrites
// the full document to disk.
func (s *Sink) Increment(kind Kind, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.snapshotLocked()
	if err != nil {
		return err
	}

	switch kind {
	case Conversion:
		if success {
			c.SuccessfulConversions++
		} else {
			c.FailedConversions++
		}
	case HexEdit:
		if success {
			c.SuccessfulHexedits++
		} else {
			c.FailedHexedits++
		}
	case Image:
		if success {
			c.SuccessfulImages++
		} else {
			c.FailedImages++
		}
	case Sticker:
		if success {
			c.SuccessfulStickers++
		} else {
			c.FailedStickers++
		}
	default:
		return fmt.Errorf("stats: unknown kind %q", kind)
	}

	if err := s.writeLocked(c); err != nil {
		return err
	}
	s.cached = c
	s.cachedAt = time.Now()
	s.hasCached = true
	return nil
}

func (s *Sink) writeLocked(c Counters) error {
	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("stats: create dir %s: %w", dir, err)
		}
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("stats: marshal: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("stats: write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("stats: rename into place: %w", err)
	}
	return nil
}

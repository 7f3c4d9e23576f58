// Package tempsweep keeps the process-owned temp directory healthy: it
// checks free disk space (warning when it runs low) and removes pass-log
// leftovers older than an hour. The batch driver runs both together,
// after every few files of a job.
package tempsweep

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vidstick/vidstick/internal/logger"
)

// MinFreeSpaceMB is the minimum free space in TempDir below which callers
// should treat the directory as unsafe to write large pass-log files into.
const MinFreeSpaceMB = 100

// Prefix identifies the pass-log side files this package sweeps: the
// "vidstick-pass-" base the encode package writes via NewPassLogBase.
const Prefix = "vidstick-pass-"

// MaxAge is how long a stale pass-log file is allowed to linger before the
// sweep removes it, per spec.md §5.
const MaxAge = time.Hour

// AvailableMB returns the free space in dir in megabytes, or 0 if it
// cannot be determined.
func AvailableMB(dir string) uint64 {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return 0
	}
	return (stat.Bavail * uint64(stat.Bsize)) / (1024 * 1024)
}

// CheckDiskSpace reports whether dir has at least MinFreeSpaceMB available,
// logging a warning when it does not. Returns true when space cannot be
// determined, so a stat failure never blocks an attempt.
func CheckDiskSpace(dir string) bool {
	available := AvailableMB(dir)
	if available == 0 {
		return true
	}
	if available < MinFreeSpaceMB {
		logger.Warn("low disk space in temp dir", "dir", dir, "available_mb", available, "minimum_mb", MinFreeSpaceMB)
		return false
	}
	return true
}

// Sweep removes files in dir with Prefix older than MaxAge, returning how
// many were removed. Missing dir is not an error.
func Sweep(dir string) (int, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}

	cleaned := 0
	now := time.Now()

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(d.Name(), Prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if now.Sub(info.ModTime()) > MaxAge {
			if err := os.Remove(path); err == nil {
				cleaned++
			}
		}
		return nil
	})
	if err != nil {
		return cleaned, fmt.Errorf("tempsweep: walk %s: %w", dir, err)
	}
	return cleaned, nil
}

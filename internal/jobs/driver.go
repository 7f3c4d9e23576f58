package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vidstick/vidstick/internal/encode"
	"github.com/vidstick/vidstick/internal/hexpatch"
	"github.com/vidstick/vidstick/internal/logger"
	"github.com/vidstick/vidstick/internal/probe"
	"github.com/vidstick/vidstick/internal/stats"
	"github.com/vidstick/vidstick/internal/tempsweep"
)

// sweepEvery triggers a temp-dir sweep after every N completed files
// within a job, per spec.md §5.
const sweepEvery = 5

// Driver owns the external collaborators a batch needs: the probe and
// encoder binaries, the temp directory they share, and the stats sink
// notified on every per-file outcome.
type Driver struct {
	Registry *Registry
	Prober   *probe.Prober
	Runner   *encode.Runner
	Stats    *stats.Sink
	TempDir  string
}

// NewDriver wires a Driver from its collaborators.
func NewDriver(registry *Registry, prober *probe.Prober, runner *encode.Runner, statsSink *stats.Sink, tempDir string) *Driver {
	return &Driver{Registry: registry, Prober: prober, Runner: runner, Stats: statsSink, TempDir: tempDir}
}

// RunConversionJob drives C6's video-conversion skeleton for jobID,
// iterating InputPaths sequentially and invoking C1-C3 per file.
func (d *Driver) RunConversionJob(ctx context.Context, jobID string) {
	job, err := d.Registry.Get(jobID)
	if err != nil {
		return
	}

	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		d.failJob(jobID, fmt.Sprintf("cannot create output dir: %v", err))
		return
	}

	d.markProcessing(jobID)

	completedSinceSweep := 0
	for idx, input := range job.InputPaths {
		if d.Registry.ShouldStop(jobID) {
			break
		}
		d.waitWhilePaused(jobID)
		if d.Registry.ShouldStop(jobID) {
			break
		}

		output := filepath.Join(job.OutputDir, stem(input)+"_converted.webm")

		d.Registry.UpdateFile(jobID, idx, func(fs *FileStatus) {
			fs.Status = FileStarting
			fs.Progress = 0
			fs.Stage = "Starting"
		})

		result := d.convertOne(ctx, jobID, idx, input, output)
		d.recordResult(jobID, input, output, result.success, result.sizeKB)

		completedSinceSweep++
		if completedSinceSweep >= sweepEvery {
			d.sweepTempDir(jobID)
			completedSinceSweep = 0
		}

		d.preMarkNext(jobID, idx)
	}

	d.finalize(jobID)
}

// RunHexEditJob drives C6's hex-edit skeleton: identical shape, but
// invokes C4 with binary (0 -> 100) per-file progress.
func (d *Driver) RunHexEditJob(jobID string) {
	job, err := d.Registry.Get(jobID)
	if err != nil {
		return
	}

	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		d.failJob(jobID, fmt.Sprintf("cannot create output dir: %v", err))
		return
	}

	d.markProcessing(jobID)

	for idx, input := range job.InputPaths {
		if d.Registry.ShouldStop(jobID) {
			break
		}
		d.waitWhilePaused(jobID)
		if d.Registry.ShouldStop(jobID) {
			break
		}

		output := hexpatch.OutputPath(job.OutputDir, input)

		d.Registry.UpdateFile(jobID, idx, func(fs *FileStatus) {
			fs.Status = FileProcessing
			fs.Progress = 0
			fs.Stage = "Patching"
		})

		_, err := hexpatch.Patch(input, output)
		success := err == nil
		sizeKB := 0.0
		if success {
			if info, statErr := os.Stat(output); statErr == nil {
				sizeKB = float64(info.Size()) / 1024.0
			}
			d.Registry.UpdateFile(jobID, idx, func(fs *FileStatus) {
				fs.Status = FileCompleted
				fs.Progress = 100
				fs.Stage = "Completed"
			})
		} else {
			d.Registry.UpdateFile(jobID, idx, func(fs *FileStatus) {
				fs.Status = FileError
				fs.Progress = 100
				fs.Stage = err.Error()
			})
			logger.WithJob(jobID).Warn("hex patch failed", "input", input, "error", err)
		}

		if d.Stats != nil {
			_ = d.Stats.Increment(stats.HexEdit, success)
		}

		d.recordResult(jobID, input, output, success, sizeKB)
	}

	d.finalize(jobID)
}

type fileOutcome struct {
	success bool
	sizeKB  float64
}

// convertOne runs C1 (probe) then C3 (the size-targeted search loop) for
// a single input, reporting status transitions back through the registry.
func (d *Driver) convertOne(ctx context.Context, jobID string, idx int, input, output string) fileOutcome {
	d.Registry.UpdateFile(jobID, idx, func(fs *FileStatus) {
		fs.Status = FileAnalyzing
		fs.Progress = 5
		fs.Stage = "Analyzing source"
	})

	info, err := d.Prober.Probe(ctx, input)
	if err != nil {
		d.Registry.UpdateFile(jobID, idx, func(fs *FileStatus) {
			fs.Status = FileError
			fs.Progress = 100
			fs.Stage = err.Error()
		})
		if d.Stats != nil {
			_ = d.Stats.Increment(stats.Conversion, false)
		}
		return fileOutcome{success: false}
	}

	alpha := probe.HasAlpha(info.PixFmt, input)

	d.Registry.UpdateFile(jobID, idx, func(fs *FileStatus) {
		fs.Status = FilePreparing
		fs.Progress = 10
		fs.Stage = "Preparing encode"
	})

	report := func(status string, progress int, stage string, diag encode.Diagnostics) {
		d.Registry.UpdateFile(jobID, idx, func(fs *FileStatus) {
			fs.Status = FileStatusKind(status)
			fs.Progress = progress
			fs.Stage = stage
			fs.Attempt = diag.Attempt
			fs.CRF = diag.CRF
			fs.BitrateKbps = diag.BitrateKbps
			fs.FileSizeKB = diag.FileSizeKB
		})
	}
	ctrl := encode.Control{
		ShouldStop: func() bool { return d.Registry.ShouldStop(jobID) },
		IsPaused:   func() bool { return d.Registry.IsPaused(jobID) },
	}

	outcome, err := encode.Run(ctx, d.Runner, input, output, d.TempDir, info.DurationSeconds, alpha, report, ctrl)
	if err != nil {
		d.Registry.UpdateFile(jobID, idx, func(fs *FileStatus) {
			fs.Status = FileError
			fs.Progress = 100
			fs.Stage = err.Error()
		})
		if d.Stats != nil {
			_ = d.Stats.Increment(stats.Conversion, false)
		}
		return fileOutcome{success: false}
	}

	if d.Stats != nil {
		_ = d.Stats.Increment(stats.Conversion, true)
	}
	return fileOutcome{success: true, sizeKB: outcome.OutputSizeKB}
}

func (d *Driver) recordResult(jobID, input, output string, success bool, sizeKB float64) {
	d.Registry.Update(jobID, func(j *Job) {
		j.Results = append(j.Results, Result{
			Input:        input,
			Output:       output,
			Success:      success,
			OutputSizeKB: sizeKB,
		})
	})
}

// preMarkNext pre-marks file idx+1 as converting if it's still
// non-terminal, a UI smoothing hint per spec.md §3.
func (d *Driver) preMarkNext(jobID string, idx int) {
	d.Registry.UpdateFile(jobID, idx+1, func(fs *FileStatus) {
		if fs.Status.IsTerminal() {
			return
		}
		fs.Status = FileConverting
		fs.Stage = "Starting"
	})
}

func (d *Driver) waitWhilePaused(jobID string) {
	for d.Registry.IsPaused(jobID) {
		if d.Registry.ShouldStop(jobID) {
			return
		}
		time.Sleep(time.Second)
	}
}

func (d *Driver) sweepTempDir(jobID string) {
	if d.TempDir == "" {
		return
	}
	tempsweep.CheckDiskSpace(d.TempDir)
	if cleaned, err := tempsweep.Sweep(d.TempDir); err != nil {
		logger.WithJob(jobID).Warn("temp sweep failed", "error", err)
	} else if cleaned > 0 {
		logger.WithJob(jobID).Info("temp sweep", "removed", cleaned)
	}
}

// finalize sets progress=100 and status=completed even on partial
// failures, per spec.md §4.6 step 3.
func (d *Driver) finalize(jobID string) {
	d.Registry.Update(jobID, func(j *Job) {
		if j.Status.IsTerminal() {
			return
		}
		j.Status = StatusCompleted
		j.Progress = 100
		j.CanPause = false
		j.Paused = false
		j.EndTime = float64(time.Now().Unix())
	})
}

// markProcessing transitions a job from initializing to processing,
// unless it has already reached a terminal status (e.g. stopped before
// its worker goroutine got scheduled).
func (d *Driver) markProcessing(jobID string) {
	d.Registry.Update(jobID, func(j *Job) {
		if j.Status.IsTerminal() {
			return
		}
		j.Status = StatusProcessing
	})
}

func (d *Driver) failJob(jobID, message string) {
	d.Registry.Update(jobID, func(j *Job) {
		j.Status = StatusError
		j.CanPause = false
		j.Paused = false
		j.CurrentStage = message
		j.EndTime = float64(time.Now().Unix())
	})
}

func stem(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}

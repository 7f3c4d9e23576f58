package encode

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vidstick/vidstick/internal/logger"
)

// TargetKB is T in spec.md's glossary: the size the search converges
// toward.
const TargetKB = 254.0

// targetLow and targetHigh bound the acceptance band [0.90*T, T].
const (
	targetLow  = 0.90 * TargetKB
	targetHigh = TargetKB
)

// plateauDeltaKB is the glossary's plateau threshold: 0.04*T.
const plateauDeltaKB = 0.04 * TargetKB

// maxAttempts is a ceiling far above anything the search bounds would ever
// reach in practice — spec.md's design notes call the real cap "effectively
// infinite"; this just prevents a runaway loop from spinning forever.
const maxAttempts = 99999

// Errors the search loop can terminate with, matching spec.md §7.
var (
	// ErrCancelled is returned when the job was stopped (or paused then
	// stopped) between attempts.
	ErrCancelled = errors.New("cancelled")
	// ErrEncoderFailure is returned when a pass exits non-zero or the
	// final output is missing or zero bytes.
	ErrEncoderFailure = errors.New("encoder failure")
)

// Diagnostics carries the optional per-attempt fields spec.md's FileStatus
// exposes for the currently-reported stage.
type Diagnostics struct {
	Attempt     int
	CRF         int
	BitrateKbps int
	FileSizeKB  float64
}

// ReportFunc is called every time the loop wants to publish a FileStatus
// transition. status is "converting", "checking", or, once the loop
// accepts an output, "completed"; failures ("error") are communicated
// only via the loop's returned error, not through ReportFunc.
type ReportFunc func(status string, progress int, stage string, diag Diagnostics)

// Control lets the caller's job registry answer the loop's cooperative
// cancellation checks without this package knowing about jobs at all.
type Control struct {
	// ShouldStop reports whether the owning job has been stopped.
	ShouldStop func() bool
	// IsPaused reports whether the owning job is currently paused.
	IsPaused func() bool
}

// Outcome is the terminal result of a size-targeted encode.
type Outcome struct {
	OutputSizeKB float64
	MaxQuality   bool // true if accepted via the bitrate-saturation fallback
	Stage        string
}

// passRunner is the subset of *Runner the search loop needs. Tests supply
// a fake to exercise the adjustment logic without spawning a real encoder.
type passRunner interface {
	Run(ctx context.Context, st State, io IOPaths, pass Pass, alpha bool) (RunResult, error)
}

// Run drives the two-pass search described in spec.md §4.3: it adjusts
// (crf, bitrate) attempt by attempt until the output lands in
// [0.90*T, T] KB, or the search saturates and accepts the best it found.
func Run(ctx context.Context, runner passRunner, input, output, tempDir string, durationSeconds float64, alpha bool, report ReportFunc, ctrl Control) (Outcome, error) {
	st := State{
		CRF:         30,
		BitrateKbps: initialBitrateKbps(durationSeconds),
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		st.Attempt = attempt

		// Step 1: cooperative cancellation, observed only between attempts.
		for {
			if ctrl.ShouldStop != nil && ctrl.ShouldStop() {
				return Outcome{}, ErrCancelled
			}
			if ctrl.IsPaused != nil && ctrl.IsPaused() {
				time.Sleep(time.Second)
				continue
			}
			break
		}

		io := IOPaths{Input: input, Output: output, PassLogBase: NewPassLogBase(tempDir)}

		stage := fmt.Sprintf("Attempt %d/∞ – CRF:%d BR:%dk", attempt, st.CRF, st.BitrateKbps)
		report("converting", 15, stage, diagFor(st, 0))

		if res, err := runner.Run(ctx, st, io, Pass1, alpha); err != nil || !res.OK {
			return Outcome{}, fmt.Errorf("%w: pass 1 failed: %v", ErrEncoderFailure, err)
		}
		report("converting", 20, stage, diagFor(st, 0))

		if res, err := runner.Run(ctx, st, io, Pass2, alpha); err != nil || !res.OK {
			return Outcome{}, fmt.Errorf("%w: pass 2 failed: %v", ErrEncoderFailure, err)
		}
		report("converting", 25, stage, diagFor(st, 0))

		report("checking", 85, "Checking output size", diagFor(st, 0))
		sizeKB, err := sizeOnDiskKB(output)
		if err != nil || sizeKB <= 0 {
			return Outcome{}, fmt.Errorf("%w: output missing or empty", ErrEncoderFailure)
		}

		logger.Info("encode attempt",
			"attempt", attempt, "crf", st.CRF, "bitrate_kbps", st.BitrateKbps,
			"size", humanize.Bytes(uint64(sizeKB*1024)))

		// Step 6: in band -> done.
		if sizeKB >= targetLow && sizeKB <= targetHigh {
			final := fmt.Sprintf("Completed! %.1fKB", sizeKB)
			report("completed", 100, final, diagFor(st, sizeKB))
			return Outcome{OutputSizeKB: sizeKB, Stage: final}, nil
		}

		// Step 7: plateau detection against the previous attempt's size.
		plateaued := attempt > 1 && math.Abs(sizeKB-st.LastSizeKB) < plateauDeltaKB
		if plateaued {
			st.PlateauCount++
		} else {
			st.PlateauCount = 0
		}

		// Step 8: adjust crf/bitrate toward the target band.
		acceptedMaxQuality := false
		if sizeKB > targetHigh {
			if st.CRF < 50 {
				step := 3
				if attempt > 4 {
					step = 2
				}
				st.CRF = minInt(st.CRF+step, 50)
			} else {
				st.BitrateKbps = int(math.Floor(0.92 * float64(st.BitrateKbps)))
			}
		} else { // sizeKB < targetLow
			if st.CRF > 1 {
				step := 3
				if attempt > 4 {
					step = 2
				}
				st.CRF = maxInt(st.CRF-step, 1)
			} else if st.BitrateKbps < 50000 {
				st.BitrateKbps = minInt(int(math.Floor(1.08*float64(st.BitrateKbps))), 50000)
			} else {
				acceptedMaxQuality = true
			}
		}

		// Step 9: plateau override, applied after step 8's primary adjustment.
		if st.PlateauCount >= 2 {
			switch {
			case sizeKB > targetHigh:
				st.BitrateKbps = maxInt(int(math.Floor(0.9*float64(st.BitrateKbps))), 50)
				report("converting", 25, "Plateaued. Reducing bitrate", diagFor(st, sizeKB))
			case sizeKB < targetLow:
				if st.BitrateKbps >= 50000 {
					acceptedMaxQuality = true
				} else {
					st.BitrateKbps = minInt(int(math.Floor(1.1*float64(st.BitrateKbps))), 50000)
				}
			}
			st.PlateauCount = 0
		}

		if acceptedMaxQuality {
			final := fmt.Sprintf("Completed! %.1fKB (max quality)", sizeKB)
			report("completed", 100, final, diagFor(st, sizeKB))
			return Outcome{OutputSizeKB: sizeKB, MaxQuality: true, Stage: final}, nil
		}

		st.LastSizeKB = sizeKB
	}

	return Outcome{}, fmt.Errorf("%w: exceeded %d attempts without converging", ErrEncoderFailure, maxAttempts)
}

func diagFor(st State, sizeKB float64) Diagnostics {
	return Diagnostics{Attempt: st.Attempt, CRF: st.CRF, BitrateKbps: st.BitrateKbps, FileSizeKB: sizeKB}
}

// initialBitrateKbps computes the starting bitrate from target size and
// duration: bitrate = max(floor(T*8/duration_s), 50).
func initialBitrateKbps(durationSeconds float64) int {
	if durationSeconds <= 0 {
		return 50
	}
	kbps := int(math.Floor(TargetKB * 8 / durationSeconds))
	return maxInt(kbps, 50)
}

func sizeOnDiskKB(path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return float64(info.Size()) / 1024.0, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

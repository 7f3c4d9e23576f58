// Package encode drives the external two-pass VP9 encoder: building its
// argv deterministically from rate-control state (runner.go) and running
// the size-targeted search loop that adjusts that state until the output
// lands in the target band (search.go).
package encode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/vidstick/vidstick/internal/logger"
)

// Pass identifies which of the two encoder passes is being run.
type Pass int

const (
	Pass1 Pass = 1
	Pass2 Pass = 2
)

// State is the per-attempt rate-control state described in spec.md §3.
type State struct {
	CRF          int
	BitrateKbps  int
	Attempt      int
	PlateauCount int
	LastSizeKB   float64
}

// IOPaths names the input, final output, and unique pass-log base for one
// attempt.
type IOPaths struct {
	Input       string
	Output      string
	PassLogBase string // unique per-attempt prefix shared by both passes
}

// NewPassLogBase returns a unique pass-log base path colocated in dir,
// used to correlate pass 1 and pass 2 of a single attempt.
func NewPassLogBase(dir string) string {
	return filepath.Join(dir, "vidstick-pass-"+uuid.NewString())
}

// Runner launches the external encoder and reports exit status. It never
// retries — retry/adjustment policy lives entirely in the search loop.
type Runner struct {
	EncoderPath string
}

// NewRunner creates a Runner bound to the configured encoder binary.
func NewRunner(encoderPath string) *Runner {
	return &Runner{EncoderPath: encoderPath}
}

// RunResult is the outcome of a single encoder invocation.
type RunResult struct {
	ExitCode int
	OK       bool
}

// Run builds the encoder invocation for the given pass and executes it,
// discarding stdout/stderr. On completion it always attempts to delete
// the pass-log side files for this attempt's base, ignoring errors.
func (r *Runner) Run(ctx context.Context, st State, io IOPaths, pass Pass, alpha bool) (RunResult, error) {
	args := BuildArgs(st, io, pass, alpha)

	cmd := exec.CommandContext(ctx, r.EncoderPath, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil

	logger.Debug("encoder invocation", "pass", pass, "crf", st.CRF, "bitrate_kbps", st.BitrateKbps, "args", strings.Join(args, " "))

	err := cmd.Run()
	cleanupPassLogs(io.PassLogBase)

	if err != nil {
		var exitErr *exec.ExitError
		if ok := asExitError(err, &exitErr); ok {
			return RunResult{ExitCode: exitErr.ExitCode(), OK: false}, nil
		}
		return RunResult{OK: false}, err
	}
	return RunResult{ExitCode: 0, OK: true}, nil
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// scaleFilter is the fixed Telegram-sticker scale rule from spec.md §4.3:
// the longer side is pinned to 512, the shorter side scaled preserving
// aspect ratio to an even dimension.
const scaleFilter = "scale=if(iw>=ih,512,-2):if(iw>=ih,-2,512)"

// BuildArgs deterministically builds the encoder argv for one pass of one
// attempt, per spec.md §4.2 and §4.3.
func BuildArgs(st State, io IOPaths, pass Pass, alpha bool) []string {
	maxrate := int(1.5 * float64(st.BitrateKbps))
	bufsize := 3 * st.BitrateKbps
	threads := runtime.NumCPU()
	if threads < 1 {
		threads = 1
	}

	pixFmt := "yuv420p"
	if alpha {
		pixFmt = "yuva420p"
	}

	args := []string{
		"-y",
		"-i", io.Input,
		"-vf", scaleFilter,
		"-pix_fmt", pixFmt,
		"-c:v", "libvpx-vp9",
		"-crf", fmt.Sprintf("%d", st.CRF),
		"-b:v", fmt.Sprintf("%dk", st.BitrateKbps),
		"-maxrate", fmt.Sprintf("%dk", maxrate),
		"-bufsize", fmt.Sprintf("%dk", bufsize),
		"-row-mt", "1",
		"-tile-columns", "4",
		"-cpu-used", "5",
		"-threads", fmt.Sprintf("%d", threads),
		"-an",
		"-pass", fmt.Sprintf("%d", pass),
		"-passlogfile", io.PassLogBase,
		"-f", "webm",
	}

	if pass == Pass1 {
		args = append(args, os.DevNull)
	} else {
		args = append(args, io.Output)
	}

	return args
}

// cleanupPassLogs best-effort removes the pass-log side files an attempt
// produced. Errors are ignored: a leftover temp file is not fatal.
func cleanupPassLogs(base string) {
	matches, err := filepath.Glob(base + "*.log")
	if err != nil {
		return
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}
	_ = os.Remove(base + "-0.log")
}

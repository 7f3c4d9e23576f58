package encode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeRunner simulates the external encoder: each call to Run for Pass2
// writes sizesKB[attempt-1]*1024 bytes to the output path, so the search
// loop's size-band logic can be exercised without a real encoder binary.
type fakeRunner struct {
	sizesKB []float64
	calls   int
	failOn  int // pass1 call number to fail, 0 = never
}

func (f *fakeRunner) Run(ctx context.Context, st State, io IOPaths, pass Pass, alpha bool) (RunResult, error) {
	if pass == Pass1 {
		f.calls++
		if f.failOn != 0 && f.calls == f.failOn {
			return RunResult{ExitCode: 1, OK: false}, nil
		}
		return RunResult{OK: true}, nil
	}

	idx := st.Attempt - 1
	if idx >= len(f.sizesKB) {
		idx = len(f.sizesKB) - 1
	}
	size := int64(f.sizesKB[idx] * 1024)
	if err := os.WriteFile(io.Output, make([]byte, size), 0o644); err != nil {
		return RunResult{}, err
	}
	return RunResult{OK: true}, nil
}

func noopReport(status string, progress int, stage string, diag Diagnostics) {}

func TestRunConvergesWithinBand(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.webm")
	runner := &fakeRunner{sizesKB: []float64{400, 230}}

	outcome, err := Run(context.Background(), runner, "in.mp4", output, dir, 10, false, noopReport, Control{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.OutputSizeKB < targetLow || outcome.OutputSizeKB > targetHigh {
		t.Errorf("outcome size %.1f outside band [%.1f, %.1f]", outcome.OutputSizeKB, targetLow, targetHigh)
	}
	if runner.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", runner.calls)
	}
}

func TestRunStopsWhenCancelled(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.webm")
	runner := &fakeRunner{sizesKB: []float64{230}}

	ctrl := Control{ShouldStop: func() bool { return true }}
	_, err := Run(context.Background(), runner, "in.mp4", output, dir, 10, false, noopReport, ctrl)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if runner.calls != 0 {
		t.Errorf("expected no attempts once cancelled, got %d", runner.calls)
	}
}

func TestRunReportsEncoderFailure(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.webm")
	runner := &fakeRunner{sizesKB: []float64{230}, failOn: 1}

	_, err := Run(context.Background(), runner, "in.mp4", output, dir, 10, false, noopReport, Control{})
	if !errors.Is(err, ErrEncoderFailure) {
		t.Fatalf("expected ErrEncoderFailure, got %v", err)
	}
}

// TestRunDetectsPlateauAndReducesBitrate holds the output size flat and
// above the band across attempts, so the plateau detector (diff <
// 0.04*T two attempts running) fires and the search falls back to
// trimming bitrate instead of crf, per spec.md §4.3 step 9.
func TestRunDetectsPlateauAndReducesBitrate(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.webm")
	runner := &fakeRunner{sizesKB: []float64{400, 400, 400, 400}}

	var stages []string
	report := func(status string, progress int, stage string, diag Diagnostics) {
		stages = append(stages, stage)
	}

	attempts := 0
	ctrl := Control{ShouldStop: func() bool {
		attempts++
		return attempts > 3
	}}

	_, err := Run(context.Background(), runner, "in.mp4", output, dir, 10, false, report, ctrl)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected cancellation once plateau handling was exercised, got %v", err)
	}

	found := false
	for _, s := range stages {
		if strings.Contains(s, "Plateaued. Reducing bitrate") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a plateau-triggered bitrate reduction stage, got stages=%v", stages)
	}
}

// TestRunAcceptsMaxQualityFallback drives the output size flat and below
// target_low while the initial bitrate is close enough to 50000 that the
// plateau override (step 9) saturates it in one bump, exercising the
// accept-as-best path independently of the crf=1 path through step 8.
func TestRunAcceptsMaxQualityFallback(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.webm")
	runner := &fakeRunner{sizesKB: []float64{100}}

	// duration chosen so initialBitrateKbps lands just under 50000; one
	// plateau-triggered 1.1x bump (attempt 3) saturates it at 50000, and
	// the next plateau trigger (attempt 5) accepts as max quality.
	const duration = 0.0415

	outcome, err := Run(context.Background(), runner, "in.mp4", output, dir, duration, false, noopReport, Control{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !outcome.MaxQuality {
		t.Errorf("expected MaxQuality=true, got outcome=%+v", outcome)
	}
	if !strings.Contains(outcome.Stage, "(max quality)") {
		t.Errorf("expected stage to mention max quality, got %q", outcome.Stage)
	}
	if outcome.OutputSizeKB >= targetLow {
		t.Errorf("expected accepted size below target_low, got %.1f", outcome.OutputSizeKB)
	}
}

func TestInitialBitrateKbps(t *testing.T) {
	cases := []struct {
		duration float64
		want     int
	}{
		{10, 203}, // floor(254*8/10) = 203
		{0, 50},
		{-1, 50},
		{1000, 50}, // floor(254*8/1000)=2, clamped to the 50 kbps minimum
	}
	for _, c := range cases {
		if got := initialBitrateKbps(c.duration); got != c.want {
			t.Errorf("initialBitrateKbps(%v) = %d, want %d", c.duration, got, c.want)
		}
	}
}

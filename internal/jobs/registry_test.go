package jobs

import (
	"errors"
	"testing"
)

func TestCreateIsImmediatelyRetrievable(t *testing.T) {
	r := NewRegistry()
	id := "conversion-1"
	r.Create(id, KindVideoConversion, []string{"/a.mp4", "/b.mp4"}, "/out", nil)

	job, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.TotalFiles != 2 {
		t.Errorf("expected total_files=2, got %d", job.TotalFiles)
	}
	if job.Status != StatusInitializing {
		t.Errorf("expected initializing, got %s", job.Status)
	}
	if !job.CanPause {
		t.Errorf("expected can_pause=true on a fresh job")
	}
	for i, fs := range job.FileStatuses {
		if fs.Status != FilePending || fs.Progress != 0 {
			t.Errorf("file %d not seeded pending/0: %+v", i, fs)
		}
	}
}

func TestGetUnknownIDReturnsRegistryMiss(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nope")
	if !errors.Is(err, ErrRegistryMiss) {
		t.Fatalf("expected ErrRegistryMiss, got %v", err)
	}
}

func TestTwoSubmitsOfSameFilesYieldDistinctJobs(t *testing.T) {
	r := NewRegistry()
	r.Create("conversion-1", KindVideoConversion, []string{"/a.mp4"}, "/out", nil)
	r.Create("conversion-2", KindVideoConversion, []string{"/a.mp4"}, "/out", nil)

	all := r.List()
	if len(all) != 2 {
		t.Fatalf("expected 2 independent jobs, got %d", len(all))
	}
	if all[0].ID == all[1].ID {
		t.Errorf("expected distinct ids, got %s twice", all[0].ID)
	}
}

func TestUpdateFileRecomputesCompletedFilesAndProgress(t *testing.T) {
	r := NewRegistry()
	id := "conversion-1"
	r.Create(id, KindVideoConversion, []string{"/a.mp4", "/b.mp4"}, "/out", nil)

	r.UpdateFile(id, 0, func(fs *FileStatus) {
		fs.Status = FileCompleted
		fs.Progress = 100
	})
	r.UpdateFile(id, 1, func(fs *FileStatus) {
		fs.Status = FileConverting
		fs.Progress = 40
	})

	job, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.CompletedFiles != 1 {
		t.Errorf("expected completed_files=1, got %d", job.CompletedFiles)
	}
	want := 70.0 // mean of 100 and 40
	if job.Progress != want {
		t.Errorf("expected progress=%.1f, got %.1f", want, job.Progress)
	}
}

func TestPauseResumeLeavesCountersUnchanged(t *testing.T) {
	r := NewRegistry()
	id := "conversion-1"
	r.Create(id, KindVideoConversion, []string{"/a.mp4"}, "/out", nil)
	r.Update(id, func(j *Job) { j.Status = StatusProcessing })
	r.UpdateFile(id, 0, func(fs *FileStatus) {
		fs.Status = FileConverting
		fs.Progress = 33
	})

	before, _ := r.Get(id)

	if err := r.Pause(id); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := r.Resume(id); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	after, _ := r.Get(id)
	if after.CompletedFiles != before.CompletedFiles || after.FailedFiles != before.FailedFiles {
		t.Errorf("counters changed across pause/resume: before=%+v after=%+v", before, after)
	}
	if after.Progress != before.Progress {
		t.Errorf("progress changed across pause/resume: before=%.1f after=%.1f", before.Progress, after.Progress)
	}
	if after.Paused {
		t.Errorf("expected paused=false after resume")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	r := NewRegistry()
	id := "conversion-1"
	r.Create(id, KindVideoConversion, []string{"/a.mp4"}, "/out", nil)

	if err := r.Stop(id); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := r.Stop(id); err != nil {
		t.Fatalf("second Stop: %v", err)
	}

	job, _ := r.Get(id)
	if job.Status != StatusStopped {
		t.Errorf("expected stopped, got %s", job.Status)
	}
	if job.CanPause {
		t.Errorf("expected can_pause=false once terminal")
	}
}

func TestStopAllClearsRegistryAndSignalsMissingJobAsStop(t *testing.T) {
	r := NewRegistry()
	r.Create("conversion-1", KindVideoConversion, []string{"/a.mp4"}, "/out", nil)
	r.Create("conversion-2", KindVideoConversion, []string{"/a.mp4"}, "/out", nil)

	ids := r.StopAll()
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids returned, got %d", len(ids))
	}
	if len(r.List()) != 0 {
		t.Errorf("expected registry cleared")
	}
	if !r.ShouldStop("conversion-1") {
		t.Errorf("expected ShouldStop=true for a job removed by StopAll")
	}
}

func TestCompletedFileStatusReportsTerminal(t *testing.T) {
	r := NewRegistry()
	id := "conversion-1"
	r.Create(id, KindVideoConversion, []string{"/a.mp4"}, "/out", nil)

	r.UpdateFile(id, 0, func(fs *FileStatus) {
		fs.Status = FileCompleted
		fs.Progress = 100
	})

	// Application code should check IsTerminal before mutating further;
	// this test documents that the registry itself doesn't forbid it,
	// so callers (the driver) are responsible for the invariant.
	job, _ := r.Get(id)
	if !job.FileStatuses[0].Status.IsTerminal() {
		t.Fatalf("expected file 0 to report terminal")
	}
}

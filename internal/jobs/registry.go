package jobs

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry is the single shared mapping from job id to Job described in
// spec.md §4.5: one mutex guards map shape, counters, and every per-file
// sub-record. Readers take the lock and snapshot what they return.
type Registry struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	order []string

	subsMu      sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs:        make(map[string]*Job),
		subscribers: make(map[chan Event]struct{}),
	}
}

// NewConversionID returns a video-conversion job id of the form
// "conversion-<unix_seconds>-<8-hex-chars>". The hex suffix is taken from
// a uuid, so two submits within the same second get distinct ids.
func NewConversionID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("conversion-%d-%s", time.Now().Unix(), suffix)
}

// NewHexEditID returns a hex-edit job id in the
// "hex_<unix_seconds>_<8-hex-chars>" format from spec.md §6. The 8 hex
// chars are the leading bytes of a uuid, not a hand-rolled RNG.
func NewHexEditID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("hex_%d_%s", time.Now().Unix(), suffix)
}

// Create admits a new job with status=initializing and seeded
// FileStatuses, and makes it immediately retrievable via Get before
// returning, per spec.md §4.7's submit-endpoint atomicity requirement.
func (r *Registry) Create(id string, kind Kind, inputPaths []string, outputDir string, settings map[string]any) *Job {
	job := newJob(id, kind, inputPaths, outputDir, settings)

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.order = append(r.order, job.ID)
	snapshot := job.clone()
	r.mu.Unlock()

	r.broadcast(Event{Type: "created", Job: snapshot})
	return snapshot
}

// Get returns a snapshot of the job, or ErrRegistryMiss if id is unknown.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, registryMissError(id)
	}
	return job.clone(), nil
}

// List returns a snapshot of every job, in creation order.
func (r *Registry) List() []*Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Job, 0, len(r.order))
	for _, id := range r.order {
		if job, ok := r.jobs[id]; ok {
			out = append(out, job.clone())
		}
	}
	return out
}

// Update applies mutate to the job under lock and broadcasts the result.
// mutate must not retain the *Job pointer beyond the call.
func (r *Registry) Update(id string, mutate func(*Job)) (*Job, error) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return nil, registryMissError(id)
	}
	mutate(job)
	snapshot := job.clone()
	r.mu.Unlock()

	r.broadcast(Event{Type: "updated", Job: snapshot})
	return snapshot, nil
}

// UpdateFile applies mutate to FileStatus idx of job id, then recomputes
// completed_files, progress, and current_file per spec.md §4.5.
func (r *Registry) UpdateFile(id string, idx int, mutate func(*FileStatus)) (*Job, error) {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if !ok {
		r.mu.Unlock()
		return nil, registryMissError(id)
	}
	fs, ok := job.FileStatuses[idx]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s file index %d", ErrRegistryMiss, id, idx)
	}

	mutate(fs)
	recomputeAggregates(job, idx, fs)

	snapshot := job.clone()
	r.mu.Unlock()

	r.broadcast(Event{Type: "file_updated", Job: snapshot})
	return snapshot, nil
}

// recomputeAggregates updates completed_files, failed_files, progress,
// and current_file/current_stage from the job's FileStatuses. Must be
// called with the registry lock held.
func recomputeAggregates(job *Job, touchedIdx int, touched *FileStatus) {
	completed := 0
	failed := 0
	var progressSum float64
	for _, fs := range job.FileStatuses {
		if fs.Status == FileCompleted {
			completed++
		}
		if fs.Status == FileError {
			failed++
		}
		progressSum += float64(fs.Progress)
	}

	job.CompletedFiles = completed
	job.FailedFiles = failed

	if job.TotalFiles > 0 {
		progress := progressSum / float64(job.TotalFiles)
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
		job.Progress = roundTo1Decimal(progress)
	}

	job.CurrentFile = touched.Filename
	job.CurrentStage = touched.Stage
}

func roundTo1Decimal(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}

// Remove deletes a job from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.jobs, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Clear removes every job from the registry and returns the ids removed.
func (r *Registry) Clear() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.order
	r.jobs = make(map[string]*Job)
	r.order = nil
	return removed
}

// CleanupTerminal evicts completed/error/stopped jobs whose end_time is
// older than retentionSeconds, returning the evicted and remaining ids
// for the /api/cleanup-processes response.
func (r *Registry) CleanupTerminal(retentionSeconds int) (cleaned, remaining []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := float64(time.Now().Unix())
	newOrder := make([]string, 0, len(r.order))
	for _, id := range r.order {
		job, ok := r.jobs[id]
		if !ok {
			continue
		}
		if job.Status.IsTerminal() && job.EndTime > 0 && now-job.EndTime > float64(retentionSeconds) {
			delete(r.jobs, id)
			cleaned = append(cleaned, id)
			continue
		}
		newOrder = append(newOrder, id)
		remaining = append(remaining, id)
	}
	r.order = newOrder
	return cleaned, remaining
}

// ShouldStop reports whether id has been stopped, or is missing entirely
// (a missing job is itself a stop signal: StopAll clears the registry
// eagerly while workers keep running until their next check).
func (r *Registry) ShouldStop(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return true
	}
	return job.Status == StatusStopped
}

// IsPaused reports whether id is currently paused.
func (r *Registry) IsPaused(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return false
	}
	return job.Paused
}

// Stop sets status=stopped and paused=false on id, observable by its
// worker at the next inter-attempt/inter-file check. Idempotent.
func (r *Registry) Stop(id string) error {
	_, err := r.Update(id, func(j *Job) {
		if j.Status.IsTerminal() {
			return
		}
		j.Status = StatusStopped
		j.Paused = false
		j.CanPause = false
		j.EndTime = float64(time.Now().Unix())
	})
	return err
}

// StopAll clears the registry eagerly and returns the ids it held. The
// jobs are not marked stopped one by one: a worker whose job is gone sees
// ShouldStop report true at its next check and exits.
func (r *Registry) StopAll() []string {
	r.mu.Lock()
	ids := r.order
	r.jobs = make(map[string]*Job)
	r.order = nil
	r.mu.Unlock()
	return ids
}

// Pause sets paused=true on id if the job can still be paused.
func (r *Registry) Pause(id string) error {
	_, err := r.Update(id, func(j *Job) {
		if !j.CanPause || j.Status.IsTerminal() {
			return
		}
		j.Paused = true
		j.Status = StatusPaused
		j.CurrentStage = "Operation paused by user"
	})
	return err
}

// Resume clears paused=true on id.
func (r *Registry) Resume(id string) error {
	_, err := r.Update(id, func(j *Job) {
		if j.Status.IsTerminal() {
			return
		}
		j.Paused = false
		if j.Status == StatusPaused {
			j.Status = StatusProcessing
		}
	})
	return err
}

// Subscribe returns a channel that receives an Event on every registry
// mutation, for the supplementary SSE progress stream.
func (r *Registry) Subscribe() chan Event {
	ch := make(chan Event, 100)
	r.subsMu.Lock()
	r.subscribers[ch] = struct{}{}
	r.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscription.
func (r *Registry) Unsubscribe(ch chan Event) {
	r.subsMu.Lock()
	delete(r.subscribers, ch)
	r.subsMu.Unlock()
	close(ch)
}

func (r *Registry) broadcast(event Event) {
	r.subsMu.RLock()
	defer r.subsMu.RUnlock()
	for ch := range r.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

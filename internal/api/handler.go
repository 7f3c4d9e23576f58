package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/vidstick/vidstick/internal/config"
	"github.com/vidstick/vidstick/internal/jobs"
	"github.com/vidstick/vidstick/internal/logger"
)

// Handler provides the HTTP control plane (C7) described in spec.md §4.7.
type Handler struct {
	registry *jobs.Registry
	driver   *jobs.Driver
	cfg      *config.Config

	// jobSlots bounds how many batch-driver goroutines may run at once,
	// per SPEC_FULL's max_concurrent_jobs knob. Spec.md itself places no
	// cap on concurrent jobs; this only keeps a burst of submits from
	// spawning unbounded encoder processes.
	jobSlots *semaphore.Weighted
}

// NewHandler wires an API handler to its collaborators.
func NewHandler(registry *jobs.Registry, driver *jobs.Driver, cfg *config.Config) *Handler {
	n := int64(jobs.ClampConcurrentJobs(cfg.MaxConcurrentJobs))
	return &Handler{registry: registry, driver: driver, cfg: cfg, jobSlots: semaphore.NewWeighted(n)}
}

// runWithSlot acquires a concurrency slot before running fn in its own
// goroutine, blocking until one frees up rather than rejecting the
// submit outright — a full slot table just delays a job's start, it
// never fails the request that already returned 200 with a process_id.
func (h *Handler) runWithSlot(fn func(context.Context)) {
	go func() {
		ctx := context.Background()
		if err := h.jobSlots.Acquire(ctx, 1); err != nil {
			return
		}
		defer h.jobSlots.Release(1)
		fn(ctx)
	}()
}

// response helpers: every /api/* route answers in the
// {"success":true,"data":...} / {"success":false,"error":"..."} envelope.

func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
		"status":  status,
	})
}

// ConvertVideosRequest is the request body for POST /api/convert-videos.
type ConvertVideosRequest struct {
	Files     []string       `json:"files"`
	OutputDir string         `json:"output_dir"`
	Settings  map[string]any `json:"settings"`
}

// ConvertVideos handles POST /api/convert-videos.
func (h *Handler) ConvertVideos(w http.ResponseWriter, r *http.Request) {
	var req ConvertVideosRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validateSubmit(req.Files, req.OutputDir, false); err != nil {
		h.writeValidationError(w, err)
		return
	}

	id := jobs.NewConversionID()
	h.registry.Create(id, jobs.KindVideoConversion, req.Files, req.OutputDir, req.Settings)

	h.runWithSlot(func(ctx context.Context) { h.driver.RunConversionJob(ctx, id) })

	writeSuccess(w, http.StatusOK, map[string]string{"process_id": id})
}

// HexEditRequest is the request body for POST /api/hex-edit.
type HexEditRequest struct {
	Files     []string `json:"files"`
	OutputDir string   `json:"output_dir"`
	ProcessID string   `json:"process_id,omitempty"`
}

// HexEdit handles POST /api/hex-edit.
func (h *Handler) HexEdit(w http.ResponseWriter, r *http.Request) {
	var req HexEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validateSubmit(req.Files, req.OutputDir, true); err != nil {
		h.writeValidationError(w, err)
		return
	}

	id := req.ProcessID
	if id == "" {
		id = jobs.NewHexEditID()
	}
	h.registry.Create(id, jobs.KindHexEdit, req.Files, req.OutputDir, nil)

	h.runWithSlot(func(ctx context.Context) { h.driver.RunHexEditJob(id) })

	writeSuccess(w, http.StatusOK, map[string]string{"process_id": id})
}

// ConversionProgress handles GET /api/conversion-progress/{id}.
func (h *Handler) ConversionProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := h.registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Process not found")
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"progress":        job.Progress,
		"status":          job.Status,
		"current_stage":   job.CurrentStage,
		"current_file":    job.CurrentFile,
		"total_files":     job.TotalFiles,
		"completed_files": job.CompletedFiles,
		"failed_files":    job.FailedFiles,
		"file_statuses":   job.FileStatuses,
		"paused":          job.Paused,
		"can_pause":       job.CanPause,
	})
}

type processIDRequest struct {
	ProcessID string `json:"process_id"`
}

// StopProcess handles POST /api/stop-process. A literal "ALL" process_id
// stops every job and clears the registry eagerly (spec.md §5).
func (h *Handler) StopProcess(w http.ResponseWriter, r *http.Request) {
	var req processIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ProcessID == "ALL" {
		h.registry.StopAll()
		writeSuccess(w, http.StatusOK, map[string]bool{"success": true})
		return
	}

	if err := h.registry.Stop(req.ProcessID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"success": true})
}

// PauseOperation handles POST /api/pause-operation.
func (h *Handler) PauseOperation(w http.ResponseWriter, r *http.Request) {
	var req processIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.registry.Pause(req.ProcessID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"success": true})
}

// ResumeOperation handles POST /api/resume-operation.
func (h *Handler) ResumeOperation(w http.ResponseWriter, r *http.Request) {
	var req processIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.registry.Resume(req.ProcessID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, map[string]bool{"success": true})
}

// CleanupProcesses handles POST /api/cleanup-processes.
func (h *Handler) CleanupProcesses(w http.ResponseWriter, r *http.Request) {
	retention := jobs.ClampRetentionSeconds(h.cfg.JobRetentionSeconds)
	cleaned, remaining := h.registry.CleanupTerminal(retention)
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"cleaned_processes":   nonNil(cleaned),
		"remaining_processes": nonNil(remaining),
	})
}

// DebugProcesses handles GET /api/debug/processes.
func (h *Handler) DebugProcesses(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, h.registry.List())
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// validationError carries the HTTP status the handler should answer
// with, distinguishing a bad request (400) from a missing encoder (500)
// per spec.md §7.
type validationError struct {
	status  int
	message string
}

func (e *validationError) Error() string { return e.message }

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	if ve, ok := err.(*validationError); ok {
		writeError(w, ve.status, ve.message)
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

// validateSubmit implements spec.md §4.7's submit validation: files[]
// non-empty, all paths exist and are readable, output_dir creatable, and
// (for video conversion) the encoder binary resolvable. Hex-edit inputs
// must additionally carry a .webm extension (case-insensitive).
func (h *Handler) validateSubmit(files []string, outputDir string, requireWebm bool) error {
	if len(files) == 0 {
		return &validationError{status: http.StatusBadRequest, message: "files must be non-empty"}
	}
	if outputDir == "" {
		return &validationError{status: http.StatusBadRequest, message: "output_dir is required"}
	}

	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return &validationError{status: http.StatusBadRequest, message: fmt.Sprintf("input not readable: %s", f)}
		}
		if info.IsDir() {
			return &validationError{status: http.StatusBadRequest, message: fmt.Sprintf("input is a directory: %s", f)}
		}
		if requireWebm && !strings.EqualFold(filepath.Ext(f), ".webm") {
			return &validationError{status: http.StatusBadRequest, message: fmt.Sprintf("hex-edit input must be .webm: %s", f)}
		}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return &validationError{status: http.StatusBadRequest, message: fmt.Sprintf("output_dir not creatable: %v", err)}
	}

	if !requireWebm {
		if _, err := exec.LookPath(h.cfg.FFmpegPath); err != nil {
			if filepath.IsAbs(h.cfg.FFmpegPath) {
				if _, statErr := os.Stat(h.cfg.FFmpegPath); statErr == nil {
					return nil
				}
			}
			logger.Error("encoder not resolvable", "path", h.cfg.FFmpegPath, "error", err)
			return &validationError{status: http.StatusInternalServerError, message: "encoder binary not found"}
		}
	}

	return nil
}

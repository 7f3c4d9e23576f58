package jobs

import "time"

// Kind distinguishes the two batch pipelines that share this package's
// registry and driver.
type Kind string

const (
	KindVideoConversion Kind = "video_conversion"
	KindHexEdit         Kind = "hex_edit"
)

// Status is a Job's overall lifecycle state.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusProcessing   Status = "processing"
	StatusPaused       Status = "paused"
	StatusStopped      Status = "stopped"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

// IsTerminal reports whether a Job in this status never changes again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusStopped
}

// FileStatusKind is a per-file sub-record's lifecycle state.
type FileStatusKind string

const (
	FilePending    FileStatusKind = "pending"
	FileStarting   FileStatusKind = "starting"
	FileAnalyzing  FileStatusKind = "analyzing"
	FilePreparing  FileStatusKind = "preparing"
	FileConverting FileStatusKind = "converting"
	FileChecking   FileStatusKind = "checking"
	FileCompleted  FileStatusKind = "completed"
	FileError      FileStatusKind = "error"
	FileProcessing FileStatusKind = "processing" // hex-edit's single-step equivalent
)

// IsTerminal reports whether a FileStatus in this state never changes again.
func (k FileStatusKind) IsTerminal() bool {
	return k == FileCompleted || k == FileError
}

// FileStatus is the per-file sub-record of a Job, per spec.md §3.
type FileStatus struct {
	Filename string         `json:"filename"`
	Status   FileStatusKind `json:"status"`
	Progress int            `json:"progress"`
	Stage    string         `json:"stage"`

	// Optional search-loop diagnostics, populated only for conversions.
	Attempt     int     `json:"attempt,omitempty"`
	CRF         int     `json:"crf,omitempty"`
	BitrateKbps int     `json:"bitrate,omitempty"`
	FileSizeKB  float64 `json:"file_size,omitempty"`
}

func (f *FileStatus) clone() *FileStatus {
	c := *f
	return &c
}

// Result is one entry of a completed Job's result list.
type Result struct {
	Input        string  `json:"input"`
	Output       string  `json:"output"`
	Success      bool    `json:"success"`
	OutputSizeKB float64 `json:"output_size_kb"`
}

// Job is the batch-level record: one submission of one or more input
// files, driven to completion by the batch driver in driver.go.
type Job struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	InputPaths []string       `json:"input_paths"`
	OutputDir  string         `json:"output_dir"`
	Settings   map[string]any `json:"settings,omitempty"`

	TotalFiles     int     `json:"total_files"`
	CompletedFiles int     `json:"completed_files"`
	FailedFiles    int     `json:"failed_files"`
	Progress       float64 `json:"progress"`

	Status   Status `json:"status"`
	Paused   bool   `json:"paused"`
	CanPause bool   `json:"can_pause"`

	CurrentFile  string `json:"current_file"`
	CurrentStage string `json:"current_stage"`

	FileStatuses map[int]*FileStatus `json:"file_statuses"`

	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time,omitempty"`

	Results []Result `json:"results,omitempty"`
}

// newJob seeds a Job and its FileStatuses exactly as spec.md §3's
// lifecycle section describes: pending/0/"Ready to convert".
func newJob(id string, kind Kind, inputPaths []string, outputDir string, settings map[string]any) *Job {
	fileStatuses := make(map[int]*FileStatus, len(inputPaths))
	for i, p := range inputPaths {
		fileStatuses[i] = &FileStatus{
			Filename: basename(p),
			Status:   FilePending,
			Progress: 0,
			Stage:    "Ready to convert",
		}
	}

	return &Job{
		ID:           id,
		Kind:         kind,
		InputPaths:   inputPaths,
		OutputDir:    outputDir,
		Settings:     settings,
		TotalFiles:   len(inputPaths),
		Status:       StatusInitializing,
		CanPause:     true,
		FileStatuses: fileStatuses,
		StartTime:    float64(time.Now().Unix()),
	}
}

func (j *Job) clone() *Job {
	c := *j

	c.InputPaths = append([]string(nil), j.InputPaths...)

	c.FileStatuses = make(map[int]*FileStatus, len(j.FileStatuses))
	for idx, fs := range j.FileStatuses {
		c.FileStatuses[idx] = fs.clone()
	}

	if j.Settings != nil {
		c.Settings = make(map[string]any, len(j.Settings))
		for k, v := range j.Settings {
			c.Settings[k] = v
		}
	}

	c.Results = append([]Result(nil), j.Results...)

	return &c
}

func basename(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

// Event is broadcast to SSE subscribers on every registry mutation.
type Event struct {
	Type string `json:"type"` // "created", "updated", "file_updated"; removals are not broadcast
	Job  *Job   `json:"job,omitempty"`
}

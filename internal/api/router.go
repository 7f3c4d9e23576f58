package api

import "net/http"

// registerAPIRoutes registers every endpoint spec.md §4.7 names, plus the
// supplementary SSE stream, on mux.
func registerAPIRoutes(mux *http.ServeMux, h *Handler) {
	mux.HandleFunc("POST /api/convert-videos", h.ConvertVideos)
	mux.HandleFunc("POST /api/hex-edit", h.HexEdit)
	mux.HandleFunc("GET /api/conversion-progress/{id}", h.ConversionProgress)
	mux.HandleFunc("POST /api/stop-process", h.StopProcess)
	mux.HandleFunc("POST /api/pause-operation", h.PauseOperation)
	mux.HandleFunc("POST /api/resume-operation", h.ResumeOperation)
	mux.HandleFunc("POST /api/cleanup-processes", h.CleanupProcesses)
	mux.HandleFunc("GET /api/debug/processes", h.DebugProcesses)
	mux.HandleFunc("GET /api/jobs/stream", h.JobStream)
}

// NewRouter builds the HTTP mux for the server, wrapping every route in
// the CORS middleware spec.md §6 requires.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()
	registerAPIRoutes(mux, h)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return withCORS(mux)
}

package handlers

import (
	"net/http"
	"runtime"
	"time"

	"gif-converter/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// ToolStatus reports whether one external codec resolves.
type ToolStatus struct {
	Available bool   `json:"available"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
	Required  bool   `json:"required"`
}

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	Encoder string                `json:"encoder"`
	Tools   map[string]ToolStatus `json:"tools"`

	// Workload
	ActiveWorkspaces int  `json:"activeWorkspaces"`
	PendingReleases  int  `json:"pendingReleases"`
	RunningProcesses int  `json:"runningProcesses"`
	HistoryEnabled   bool `json:"historyEnabled"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// APIHealth is the minimal health endpoint used by the landing page.
// GET /api/health
func (h *Handlers) APIHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheck returns the detailed health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	tools, ready := h.checkTools()

	response := HealthResponse{
		Ready:            ready,
		Version:          startup.Version,
		Uptime:           time.Since(h.startTime).Round(time.Second).String(),
		Encoder:          h.config.WebPEncoder,
		Tools:            tools,
		ActiveWorkspaces: h.workspaces.Active(),
		PendingReleases:  h.workspaces.Pending(),
		RunningProcesses: h.tools.Running(),
		HistoryEnabled:   h.history != nil,
		GoVersion:        runtime.Version(),
		NumCPU:           runtime.NumCPU(),
		NumGoroutine:     runtime.NumGoroutine(),
	}

	w.Header().Set("Content-Type", "application/json")

	if ready {
		response.Status = statusHealthy
		w.WriteHeader(http.StatusOK)
	} else {
		response.Status = statusDegraded
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	writeJSON(w, response)
}

// LivenessCheck is a simple liveness check (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSONStatus(w, http.StatusOK, "alive")
}

// ReadinessCheck returns 200 only when the codecs needed for conversions resolve
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	if _, ready := h.checkTools(); ready {
		writeJSONStatus(w, http.StatusOK, "ready")
		return
	}
	writeJSONStatus(w, http.StatusServiceUnavailable, "not_ready")
}

// checkTools resolves each codec. ready is false when a required one is missing.
func (h *Handlers) checkTools() (map[string]ToolStatus, bool) {
	required := map[string]bool{
		"ffmpeg":   true,
		"img2webp": h.config.WebPEncoder == startup.EncoderImg2WebP,
	}
	paths := map[string]string{
		"ffmpeg":   h.config.FFmpegPath,
		"img2webp": h.config.Img2WebPPath,
	}

	ready := true
	tools := make(map[string]ToolStatus, len(paths))
	for name, bin := range paths {
		status := ToolStatus{Required: required[name]}
		path, err := h.tools.Check(bin)
		if err != nil {
			status.Error = err.Error()
			if status.Required {
				ready = false
			}
		} else {
			status.Available = true
			status.Path = path
		}
		tools[name] = status
	}

	return tools, ready
}

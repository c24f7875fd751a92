package metrics

import "gif-converter/internal/workspace"

// workspaceObserver implements workspace.Observer using the Prometheus
// metrics declared in this package.
type workspaceObserver struct{}

// NewWorkspaceObserver creates an observer that records workspace lifecycle
// events into the gauges and counters declared in metrics.go.
func NewWorkspaceObserver() workspace.Observer {
	return &workspaceObserver{}
}

func (o *workspaceObserver) HandleAllocated() {
	WorkspaceHandlesActive.Inc()
}

func (o *workspaceObserver) HandleReleased(mode string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	WorkspaceReleasesTotal.WithLabelValues(mode, status).Inc()
	if mode != "sweep" {
		WorkspaceHandlesActive.Dec()
	}
}

func (o *workspaceObserver) PendingChanged(pending int) {
	WorkspacePendingReleases.Set(float64(pending))
}

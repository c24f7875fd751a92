package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsExist(t *testing.T) {
	tests := []struct {
		name   string
		metric interface{}
	}{
		{"HTTPRequestsTotal", HTTPRequestsTotal},
		{"HTTPRequestDuration", HTTPRequestDuration},
		{"HTTPRequestsInFlight", HTTPRequestsInFlight},
		{"ConversionsTotal", ConversionsTotal},
		{"ConversionDuration", ConversionDuration},
		{"ProcessRunsTotal", ProcessRunsTotal},
		{"WorkspaceHandlesActive", WorkspaceHandlesActive},
		{"WorkspacePendingReleases", WorkspacePendingReleases},
		{"BatchItemsTotal", BatchItemsTotal},
		{"DBQueryTotal", DBQueryTotal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.metric == nil {
				t.Errorf("%s metric is nil", tt.name)
			}
		})
	}
}

func TestInitializeMetrics(t *testing.T) {
	InitializeMetrics()

	if got := testutil.CollectAndCount(ConversionsTotal); got < 4 {
		t.Errorf("Expected at least 4 pre-populated conversion series, got %d", got)
	}
	if got := testutil.CollectAndCount(ProcessRunsTotal); got < 10 {
		t.Errorf("Expected at least 10 pre-populated process series, got %d", got)
	}
}

func TestWorkspaceObserver(t *testing.T) {
	obs := NewWorkspaceObserver()

	before := testutil.ToFloat64(WorkspaceHandlesActive)
	obs.HandleAllocated()
	if got := testutil.ToFloat64(WorkspaceHandlesActive); got != before+1 {
		t.Errorf("Expected active gauge %v, got %v", before+1, got)
	}

	releasedBefore := testutil.ToFloat64(WorkspaceReleasesTotal.WithLabelValues("deferred", "error"))
	obs.HandleReleased("deferred", errors.New("boom"))
	if got := testutil.ToFloat64(WorkspaceReleasesTotal.WithLabelValues("deferred", "error")); got != releasedBefore+1 {
		t.Errorf("Expected error release counted, got %v", got)
	}
	if got := testutil.ToFloat64(WorkspaceHandlesActive); got != before {
		t.Errorf("Expected active gauge back to %v, got %v", before, got)
	}

	obs.PendingChanged(3)
	if got := testutil.ToFloat64(WorkspacePendingReleases); got != 3 {
		t.Errorf("Expected pending gauge 3, got %v", got)
	}
}

type fakeUsage struct{ bytes int64 }

func (f fakeUsage) Usage() (int64, int) { return f.bytes, 1 }

type fakeHistory struct{}

func (fakeHistory) ConversionCounts(context.Context) (HistoryStats, error) {
	return HistoryStats{"webp": {"success": 7}}, nil
}

func TestCollectorCollect(t *testing.T) {
	c := NewCollector(fakeUsage{bytes: 4096}, fakeHistory{}, time.Hour)
	c.collect()

	if got := testutil.ToFloat64(WorkspaceDiskBytes); got != 4096 {
		t.Errorf("Expected disk bytes 4096, got %v", got)
	}
	if got := testutil.ToFloat64(HistoryConversionsTotal.WithLabelValues("webp", "success")); got != 7 {
		t.Errorf("Expected history gauge 7, got %v", got)
	}
}

func TestCollectorStartStop(t *testing.T) {
	c := NewCollector(fakeUsage{}, nil, 10*time.Millisecond)
	c.Start()
	time.Sleep(25 * time.Millisecond)
	c.Stop()
}

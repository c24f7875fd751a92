package metrics

import (
	"context"
	"time"

	"gif-converter/internal/logging"
)

// UsageProvider reports disk usage of the workspace root.
type UsageProvider interface {
	Usage() (bytes int64, handles int)
}

// HistoryStats is a per-format, per-outcome count of recorded conversions.
type HistoryStats map[string]map[string]int64

// HistoryProvider reports conversion totals from the history store.
type HistoryProvider interface {
	ConversionCounts(ctx context.Context) (HistoryStats, error)
}

// Collector periodically collects and updates gauge metrics
type Collector struct {
	usage    UsageProvider
	history  HistoryProvider
	interval time.Duration
	stopChan chan struct{}
}

// NewCollector creates a new metrics collector. history may be nil when the
// history database is disabled.
func NewCollector(usage UsageProvider, history HistoryProvider, interval time.Duration) *Collector {
	return &Collector{
		usage:    usage,
		history:  history,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.usage != nil {
		bytes, handles := c.usage.Usage()
		WorkspaceDiskBytes.Set(float64(bytes))
		logging.Debug("Metrics collected: workspace bytes=%d, handles=%d", bytes, handles)
	}

	if c.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := c.history.ConversionCounts(ctx)
	if err != nil {
		logging.Warn("Failed to collect conversion history metrics: %v", err)
		return
	}
	for format, byStatus := range stats {
		for status, n := range byStatus {
			HistoryConversionsTotal.WithLabelValues(format, status).Set(float64(n))
		}
	}
}

package metrics

import "time"

// Source is the narrow view of the engine a PromExporter sweeps
// periodically. Defined here rather than depending on pkg/engine
// directly, so the metrics package never imports back up to its own
// caller — the same dependency direction warren keeps between
// pkg/metrics and pkg/manager, inverted via an interface instead of a
// concrete type since this engine has no single god-object to import.
type Source interface {
	StoreCount() int
	PathCacheSize() int
	SnapshotCount() int
	SubscriberCounts() map[string]int
	ContainerCountsByStatus() map[string]int
	MemoryUtilizationByContainer() map[string]float64
}

// PromExporter periodically samples a Source and republishes its state
// into the package's Prometheus gauges. Grounded on warren's
// pkg/metrics.Collector (ticker-driven Start/Stop around a collect
// sweep).
type PromExporter struct {
	source   Source
	interval time.Duration
	stopCh   chan struct{}
}

// NewPromExporter creates an exporter sweeping source every interval
// (<=0 defaults to 15s, matching warren's Collector).
func NewPromExporter(source Source, interval time.Duration) *PromExporter {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &PromExporter{source: source, interval: interval, stopCh: make(chan struct{})}
}

// Start begins the periodic sweep in a background goroutine.
func (e *PromExporter) Start() {
	ticker := time.NewTicker(e.interval)
	go func() {
		e.sweep()
		for {
			select {
			case <-ticker.C:
				e.sweep()
			case <-e.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the periodic sweep.
func (e *PromExporter) Stop() {
	close(e.stopCh)
}

func (e *PromExporter) sweep() {
	StoresTotal.Set(float64(e.source.StoreCount()))
	PathCacheSize.Set(float64(e.source.PathCacheSize()))
	SnapshotsTotal.Set(float64(e.source.SnapshotCount()))

	for store, count := range e.source.SubscriberCounts() {
		SubscribersTotal.WithLabelValues(store).Set(float64(count))
	}
	for status, count := range e.source.ContainerCountsByStatus() {
		ContainersTotal.WithLabelValues(status).Set(float64(count))
	}
	for container, util := range e.source.MemoryUtilizationByContainer() {
		MemoryUtilization.WithLabelValues(container).Set(util)
	}
}

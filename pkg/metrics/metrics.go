package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StoresTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "corestate_stores_total",
			Help: "Total number of initialized document stores",
		},
	)

	ContainersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corestate_containers_total",
			Help: "Total number of containers by lifecycle status",
		},
		[]string{"status"},
	)

	SubscribersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corestate_subscribers_total",
			Help: "Total number of active subscriptions by store",
		},
		[]string{"store"},
	)

	SnapshotsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "corestate_snapshots_total",
			Help: "Total number of retained snapshots",
		},
	)

	PathCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "corestate_path_cache_size",
			Help: "Current number of cached dotted-path tokenizations",
		},
	)

	MemoryUtilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corestate_memory_utilization_ratio",
			Help: "Memory pool utilization ratio by container",
		},
		[]string{"container"},
	)

	SecurityEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corestate_security_events_total",
			Help: "Total number of security events by severity",
		},
		[]string{"severity"},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corestate_dispatch_duration_seconds",
			Help:    "Duration of store dispatch operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"store", "op"},
	)

	FunctionCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corestate_function_calls_total",
			Help: "Total number of gated function calls by container and outcome",
		},
		[]string{"container", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		StoresTotal,
		ContainersTotal,
		SubscribersTotal,
		SnapshotsTotal,
		PathCacheSize,
		MemoryUtilization,
		SecurityEventsTotal,
		DispatchDuration,
		FunctionCallsTotal,
	)
}

// Handler returns the Prometheus HTTP handler for mounting under
// /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

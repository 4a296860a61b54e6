package metrics

import (
	"sync"
	"time"
)

// Performance aggregates a container's rolling execution stats,
// grounded on metrics.rs's PerformanceMetrics.
type Performance struct {
	FunctionCalls      int
	AvgExecutionTimeMs float64
	MinExecutionTimeMs float64
	MaxExecutionTimeMs float64
	TotalExecutionTime float64
	LastGC             time.Time
	Errors             int
	SuccessRate        float64
	Throughput         float64
	MemoryPressure     float64
	CPUUtilization     float64
}

func (p *Performance) recordExecution(execMs float64, success bool) {
	p.FunctionCalls++
	p.TotalExecutionTime += execMs
	p.AvgExecutionTimeMs = p.TotalExecutionTime / float64(p.FunctionCalls)
	if p.FunctionCalls == 1 || execMs < p.MinExecutionTimeMs {
		p.MinExecutionTimeMs = execMs
	}
	if execMs > p.MaxExecutionTimeMs {
		p.MaxExecutionTimeMs = execMs
	}
	if !success {
		p.Errors++
	}
	successes := p.FunctionCalls - p.Errors
	p.SuccessRate = float64(successes) / float64(p.FunctionCalls) * 100
}

// Thresholds are the alert trigger points, matching metrics.rs's
// default_thresholds plus the cpu_utilization alert spec.md documents
// but generate_alerts omits (a spec-supplement, see DESIGN.md).
type Thresholds struct {
	ExecutionTimeMs    float64
	MemoryPressurePct  float64
	ErrorRatePct       float64
	CPUUtilizationPct  float64
}

// DefaultThresholds mirrors metrics.rs's default_thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ExecutionTimeMs:   1000,
		MemoryPressurePct: 90,
		ErrorRatePct:      5,
		CPUUtilizationPct: 80,
	}
}

// AlertSeverity classifies an Alert.
type AlertSeverity string

const (
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// Alert is one threshold breach surfaced by GenerateAlerts.
type Alert struct {
	ContainerID string
	Metric      string
	Severity    AlertSeverity
	Detail      string
}

// Recommendation is one actionable suggestion surfaced by
// GenerateRecommendations.
type Recommendation struct {
	ContainerID string
	Category    string
	Priority    AlertSeverity
	Detail      string
}

// TrendDirection classifies the slope of a linear regression over a
// series' samples.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// Trend is the result of ordinary-least-squares regression over a
// TimeSeries, matching metrics.rs's analyze_trend.
type Trend struct {
	Direction  TrendDirection
	Slope      float64
	Confidence float64 // R^2, clamped to [0, 1]
}

func analyzeTrend(samples []Sample) Trend {
	n := float64(len(samples))
	if n < 2 {
		return Trend{Direction: TrendStable}
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, s := range samples {
		x := float64(i)
		y := s.Value
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return Trend{Direction: TrendStable}
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssRes, ssTot float64
	for i, s := range samples {
		pred := slope*float64(i) + intercept
		ssRes += (s.Value - pred) * (s.Value - pred)
		ssTot += (s.Value - meanY) * (s.Value - meanY)
	}

	var r2 float64
	if ssTot != 0 {
		r2 = 1 - ssRes/ssTot
	}
	if r2 < 0 {
		r2 = 0
	}
	if r2 > 1 {
		r2 = 1
	}

	direction := TrendStable
	switch {
	case slope > 0.1:
		direction = TrendIncreasing
	case slope < -0.1:
		direction = TrendDecreasing
	}

	return Trend{Direction: direction, Slope: slope, Confidence: r2}
}

// Report bundles a container's performance snapshot with its per-series
// trends and any alerts and recommendations generated from them.
type Report struct {
	ContainerID     string
	Performance     Performance
	Trends          map[string]Trend
	Alerts          []Alert
	Recommendations []Recommendation
}

// Collector owns per-container Performance stats and named TimeSeries,
// and generates reports, alerts, and recommendations against a
// configurable set of Thresholds. Grounded on metrics.rs's
// MetricsCollector.
type Collector struct {
	mu         sync.Mutex
	perf       map[string]*Performance
	series     map[string]map[string]*TimeSeries
	thresholds Thresholds
	monitoring bool
}

// NewCollector creates a collector with default thresholds.
func NewCollector() *Collector {
	return &Collector{
		perf:       make(map[string]*Performance),
		series:     make(map[string]map[string]*TimeSeries),
		thresholds: DefaultThresholds(),
		monitoring: true,
	}
}

// RegisterContainer seeds the five named series metrics.rs's
// register_container always creates: execution_time, memory_usage,
// cpu_usage, throughput, error_rate.
func (c *Collector) RegisterContainer(containerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.perf[containerID] = &Performance{}
	c.series[containerID] = map[string]*TimeSeries{
		"execution_time": NewTimeSeries(0, 0),
		"memory_usage":   NewTimeSeries(0, 0),
		"cpu_usage":      NewTimeSeries(0, 0),
		"throughput":     NewTimeSeries(0, 0),
		"error_rate":     NewTimeSeries(0, 0),
	}
}

// UnregisterContainer drops all metrics state for containerID.
func (c *Collector) UnregisterContainer(containerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.perf, containerID)
	delete(c.series, containerID)
}

// RecordFunctionCall records one function execution: updates the
// container's Performance, estimates CPU utilization from execution
// time, and appends a sample to the execution_time series.
func (c *Collector) RecordFunctionCall(containerID, functionName string, execMs float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	perf, ok := c.perf[containerID]
	if !ok {
		return
	}
	success := execMs < c.thresholds.ExecutionTimeMs
	perf.recordExecution(execMs, success)

	cpu := execMs / 1000 * 100
	if cpu > 100 {
		cpu = 100
	}
	perf.CPUUtilization = cpu

	if series, ok := c.series[containerID]["execution_time"]; ok {
		series.Add(execMs, map[string]string{"function": functionName, "container": containerID})
	}
}

// RecordMemoryUsage records a memory_usage sample and updates the
// container's memory pressure ratio.
func (c *Collector) RecordMemoryUsage(containerID string, used, limit int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	perf, ok := c.perf[containerID]
	if !ok || limit == 0 {
		return
	}
	pressure := float64(used) / float64(limit) * 100
	perf.MemoryPressure = pressure
	if series, ok := c.series[containerID]["memory_usage"]; ok {
		series.Add(pressure, map[string]string{"used": "", "limit": ""})
	}
}

// RecordThroughput records a throughput sample.
func (c *Collector) RecordThroughput(containerID string, opsPerSecond float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	perf, ok := c.perf[containerID]
	if !ok {
		return
	}
	perf.Throughput = opsPerSecond
	if series, ok := c.series[containerID]["throughput"]; ok {
		series.Add(opsPerSecond, nil)
	}
}

// SetThreshold overrides one threshold field at a time via a setter
// function, so callers don't need to reconstruct the whole struct.
func (c *Collector) SetThreshold(apply func(*Thresholds)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	apply(&c.thresholds)
}

// EnableMonitoring toggles report/alert generation.
func (c *Collector) EnableMonitoring(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.monitoring = enabled
}

// GenerateReport builds a Report for containerID: current performance,
// per-series trends, threshold alerts, and recommendations.
func (c *Collector) GenerateReport(containerID string) (Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	perf, ok := c.perf[containerID]
	if !ok || !c.monitoring {
		return Report{}, false
	}

	trends := make(map[string]Trend)
	for name, series := range c.series[containerID] {
		trends[name] = analyzeTrend(series.Samples())
	}

	report := Report{
		ContainerID: containerID,
		Performance: *perf,
		Trends:      trends,
	}
	report.Alerts = c.generateAlertsLocked(containerID, perf)
	report.Recommendations = c.generateRecommendationsLocked(containerID, perf)
	return report, true
}

// generateAlertsLocked mirrors metrics.rs's generate_alerts, with the
// cpu_utilization > 80% Warning alert spec.md documents but the source
// function omits, added here as a spec-supplement.
func (c *Collector) generateAlertsLocked(containerID string, perf *Performance) []Alert {
	var alerts []Alert
	if perf.AvgExecutionTimeMs > c.thresholds.ExecutionTimeMs {
		alerts = append(alerts, Alert{ContainerID: containerID, Metric: "execution_time", Severity: AlertWarning, Detail: "average execution time above threshold"})
	}
	if perf.MemoryPressure > c.thresholds.MemoryPressurePct {
		alerts = append(alerts, Alert{ContainerID: containerID, Metric: "memory_pressure", Severity: AlertCritical, Detail: "memory pressure above threshold"})
	}
	errorRate := 100 - perf.SuccessRate
	if perf.FunctionCalls > 0 && errorRate > c.thresholds.ErrorRatePct {
		alerts = append(alerts, Alert{ContainerID: containerID, Metric: "error_rate", Severity: AlertWarning, Detail: "error rate above threshold"})
	}
	if perf.CPUUtilization > c.thresholds.CPUUtilizationPct {
		alerts = append(alerts, Alert{ContainerID: containerID, Metric: "cpu_utilization", Severity: AlertWarning, Detail: "CPU utilization above threshold"})
	}
	return alerts
}

// generateRecommendationsLocked mirrors metrics.rs's
// generate_recommendations.
func (c *Collector) generateRecommendationsLocked(containerID string, perf *Performance) []Recommendation {
	var recs []Recommendation
	if perf.AvgExecutionTimeMs > 500 {
		recs = append(recs, Recommendation{ContainerID: containerID, Category: "performance", Priority: AlertCritical, Detail: "consider optimizing hot functions or reducing execution time"})
	}
	if perf.MemoryPressure > 70 {
		recs = append(recs, Recommendation{ContainerID: containerID, Category: "memory", Priority: AlertWarning, Detail: "consider increasing the container's memory limit or running GC more often"})
	}
	if perf.Throughput < 10 && perf.FunctionCalls > 100 {
		recs = append(recs, Recommendation{ContainerID: containerID, Category: "throughput", Priority: AlertWarning, Detail: "throughput is low relative to call volume; investigate contention"})
	}
	return recs
}

// DetectAnomalies exposes the execution_time series' anomaly detector
// for containerID.
func (c *Collector) DetectAnomalies(containerID string, thresholdMultiplier float64) []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	series, ok := c.series[containerID]["execution_time"]
	if !ok {
		return nil
	}
	return series.DetectAnomalies(thresholdMultiplier)
}

package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeSeriesTrimsByMaxSamples(t *testing.T) {
	ts := NewTimeSeries(5, time.Hour)
	for i := 0; i < 10; i++ {
		ts.Add(float64(i), nil)
	}
	assert.Len(t, ts.Samples(), 5)
}

func TestTimeSeriesTrimsByRetention(t *testing.T) {
	ts := NewTimeSeries(100, time.Millisecond)
	ts.Add(1, nil)
	time.Sleep(5 * time.Millisecond)
	ts.Add(2, nil)
	assert.Len(t, ts.Samples(), 1)
}

func TestDetectAnomaliesNeedsTenSamples(t *testing.T) {
	ts := NewTimeSeries(0, 0)
	for i := 0; i < 9; i++ {
		ts.Add(1, nil)
	}
	assert.Nil(t, ts.DetectAnomalies(2))
}

func TestDetectAnomaliesFlagsOutliers(t *testing.T) {
	ts := NewTimeSeries(0, 0)
	for i := 0; i < 20; i++ {
		ts.Add(1, nil)
	}
	ts.Add(1000, nil)
	anomalies := ts.DetectAnomalies(2)
	require.NotEmpty(t, anomalies)
	assert.Equal(t, 1000.0, anomalies[len(anomalies)-1].Value)
}

func TestAnalyzeTrendIncreasing(t *testing.T) {
	var samples []Sample
	for i := 0; i < 10; i++ {
		samples = append(samples, Sample{Value: float64(i)})
	}
	trend := analyzeTrend(samples)
	assert.Equal(t, TrendIncreasing, trend.Direction)
	assert.Greater(t, trend.Confidence, 0.9)
}

func TestAnalyzeTrendStableWithTooFewSamples(t *testing.T) {
	trend := analyzeTrend([]Sample{{Value: 1}})
	assert.Equal(t, TrendStable, trend.Direction)
}

func TestCollectorRecordFunctionCallUpdatesPerformance(t *testing.T) {
	c := NewCollector()
	c.RegisterContainer("c1")
	c.RecordFunctionCall("c1", "fn", 50)
	c.RecordFunctionCall("c1", "fn", 150)

	report, ok := c.GenerateReport("c1")
	require.True(t, ok)
	assert.Equal(t, 2, report.Performance.FunctionCalls)
	assert.Equal(t, 100.0, report.Performance.AvgExecutionTimeMs)
}

func TestCollectorGenerateAlertsOnExecutionTime(t *testing.T) {
	c := NewCollector()
	c.RegisterContainer("c1")
	c.RecordFunctionCall("c1", "slow", 2000)

	report, ok := c.GenerateReport("c1")
	require.True(t, ok)
	var found bool
	for _, a := range report.Alerts {
		if a.Metric == "execution_time" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCollectorGenerateAlertsOnMemoryPressure(t *testing.T) {
	c := NewCollector()
	c.RegisterContainer("c1")
	c.RecordMemoryUsage("c1", 95, 100)

	report, ok := c.GenerateReport("c1")
	require.True(t, ok)
	var found bool
	for _, a := range report.Alerts {
		if a.Metric == "memory_pressure" && a.Severity == AlertCritical {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCollectorUnregisterRemovesReport(t *testing.T) {
	c := NewCollector()
	c.RegisterContainer("c1")
	c.UnregisterContainer("c1")
	_, ok := c.GenerateReport("c1")
	assert.False(t, ok)
}

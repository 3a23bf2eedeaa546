package console

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfs/forecast-engine/pkg/metrics"
	"sfs/forecast-engine/pkg/output"
)

func TestConsoleOutput(t *testing.T) {
	o, err := New(output.Params{})
	require.NoError(t, err)
	co := o.(*Output)
	assert.Equal(t, "console", co.Description())

	require.NoError(t, co.Start())

	registry := metrics.NewRegistry()
	forecasts := registry.NewMetric(output.MetricSeriesForecasts, metrics.Counter, metrics.Default)
	failed := registry.NewMetric(output.MetricSeriesFailed, metrics.Rate, metrics.Default)
	duration := registry.NewMetric(output.MetricForecastDuration, metrics.Trend, metrics.Time)

	now := time.Now()
	co.AddMetricSamples([]metrics.SampleContainer{
		metrics.Samples{
			{Metric: forecasts, Time: now, Value: 1},
			{Metric: failed, Time: now, Value: 0},
			{Metric: duration, Time: now, Value: 10},
		},
		metrics.Samples{
			{Metric: forecasts, Time: now, Value: 1},
			{Metric: failed, Time: now, Value: 1},
			{Metric: duration, Time: now, Value: 30},
		},
		metrics.Samples{
			{Metric: forecasts, Time: now, Value: 1},
			{Metric: failed, Time: now, Value: 0},
			{Metric: duration, Time: now, Value: 20},
		},
	})

	stats := co.GetStats()
	assert.Equal(t, int64(3), stats["series_done"])
	assert.Equal(t, int64(1), stats["failed"])
	assert.InDelta(t, 33.33, stats["failure_rate"].(float64), 0.1)
	assert.Greater(t, stats["throughput"].(float64), 0.0)

	folded := co.registry.Get(output.MetricForecastDuration)
	require.NotNil(t, folded)
	assert.False(t, folded.Sink.IsEmpty())

	co.SetRunStatus(output.RunStatus{Status: "completed", SeriesDone: 3, SeriesFailed: 1})
	require.NoError(t, co.Stop())
}

func TestConsoleNoSamples(t *testing.T) {
	o, err := New(output.Params{})
	require.NoError(t, err)
	co := o.(*Output)
	require.NoError(t, co.Start())

	stats := co.GetStats()
	assert.Equal(t, int64(0), stats["series_done"])
	assert.Equal(t, 0.0, stats["failure_rate"])
	assert.Equal(t, 0.0, stats["throughput"])

	require.NoError(t, co.Stop())
}

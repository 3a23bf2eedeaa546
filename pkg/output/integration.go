package output

import (
	"context"
	"fmt"
	"time"

	"sfs/forecast-engine/pkg/metrics"
	"sfs/forecast-engine/pkg/types"
)

// CreateOutputsFromConfig builds output instances from run configs.
// Already-created outputs are stopped if any single one fails.
func CreateOutputsFromConfig(ctx context.Context, configs []types.OutputConfig, params Params) ([]Output, error) {
	outputs := make([]Output, 0, len(configs))

	for _, cfg := range configs {
		configArg := cfg.URL
		if configArg == "" && len(cfg.Options) > 0 {
			for k, v := range cfg.Options {
				if configArg == "" {
					configArg = fmt.Sprintf("%s=%s", k, v)
				} else {
					configArg = fmt.Sprintf("%s&%s=%s", configArg, k, v)
				}
			}
		}

		p := Params{
			OutputType:     cfg.Type,
			ConfigArgument: configArg,
			Logger:         params.Logger,
			JobID:          params.JobID,
			JobName:        params.JobName,
			Tags:           params.Tags,
		}

		out, err := Create(ctx, cfg.Type, p)
		if err != nil {
			for _, o := range outputs {
				_ = o.Stop()
			}
			return nil, fmt.Errorf("creating output %s: %w", cfg.Type, err)
		}
		outputs = append(outputs, out)
	}

	return outputs, nil
}

// Metric names emitted by the forecasting pipeline.
const (
	MetricSeriesForecasts  = "series_forecasts"
	MetricSeriesFailed     = "series_failed"
	MetricForecastDuration = "forecast_duration"
	MetricBatchDuration    = "batch_duration"
	MetricJobProgress      = "job_progress"
	MetricModelWins        = "model_wins"
	MetricSMAPE            = "smape"
)

// SampleEmitter pushes metric samples onto the shared samples channel.
type SampleEmitter struct {
	samplesChan chan metrics.SampleContainer
	registry    *metrics.Registry
	tags        map[string]string
}

// NewSampleEmitter creates an emitter with a private metric registry.
func NewSampleEmitter(samplesChan chan metrics.SampleContainer, tags map[string]string) *SampleEmitter {
	return &SampleEmitter{
		samplesChan: samplesChan,
		registry:    metrics.NewRegistry(),
		tags:        tags,
	}
}

// Emit sends one sample. The send is non-blocking; samples are dropped
// when the channel is full rather than stalling the forecast workers.
func (e *SampleEmitter) Emit(metricName string, metricType metrics.MetricType, contains metrics.ValueType, value float64, tags map[string]string) {
	if e.samplesChan == nil {
		return
	}

	m := e.registry.Get(metricName)
	if m == nil {
		m = e.registry.NewMetric(metricName, metricType, contains)
	}

	allTags := make(map[string]string, len(e.tags)+len(tags))
	for k, v := range e.tags {
		allTags[k] = v
	}
	for k, v := range tags {
		allTags[k] = v
	}

	sample := metrics.Sample{
		Metric: m,
		Time:   time.Now(),
		Value:  value,
		Tags:   allTags,
	}

	select {
	case e.samplesChan <- metrics.Samples{sample}:
	default:
	}
}

// EmitCounter sends a counter sample.
func (e *SampleEmitter) EmitCounter(name string, value float64, tags map[string]string) {
	e.Emit(name, metrics.Counter, metrics.Default, value, tags)
}

// EmitGauge sends a gauge sample.
func (e *SampleEmitter) EmitGauge(name string, value float64, tags map[string]string) {
	e.Emit(name, metrics.Gauge, metrics.Default, value, tags)
}

// EmitRate sends a rate sample. A true value counts as a pass.
func (e *SampleEmitter) EmitRate(name string, pass bool, tags map[string]string) {
	value := 0.0
	if pass {
		value = 1.0
	}
	e.Emit(name, metrics.Rate, metrics.Default, value, tags)
}

// EmitTrend sends a trend sample holding a duration in milliseconds.
func (e *SampleEmitter) EmitTrend(name string, value float64, tags map[string]string) {
	e.Emit(name, metrics.Trend, metrics.Time, value, tags)
}

// EmitSeriesMetrics reports one finished series forecast.
func (e *SampleEmitter) EmitSeriesMetrics(key types.SeriesKey, modelID string, smape float64, duration time.Duration, failed bool) {
	tags := map[string]string{
		"channel": key.Channel,
		"family":  key.Family,
		"item_id": key.ItemID,
	}

	e.EmitCounter(MetricSeriesForecasts, 1, tags)
	e.EmitRate(MetricSeriesFailed, failed, tags)
	e.EmitTrend(MetricForecastDuration, float64(duration.Milliseconds()), tags)

	if !failed {
		e.EmitCounter(MetricModelWins, 1, map[string]string{"model": modelID})
		e.Emit(MetricSMAPE, metrics.Trend, metrics.Default, smape, tags)
	}
}

// EmitBatchMetrics reports one finished task batch.
func (e *SampleEmitter) EmitBatchMetrics(batchID, workerID string, seriesCount int, duration time.Duration) {
	tags := map[string]string{
		"batch":  batchID,
		"worker": workerID,
	}
	e.EmitTrend(MetricBatchDuration, float64(duration.Milliseconds()), tags)
	e.EmitGauge("batch_series", float64(seriesCount), tags)
}

// EmitProgress reports overall job progress in [0, 1].
func (e *SampleEmitter) EmitProgress(p types.Progress) {
	e.EmitGauge(MetricJobProgress, p.Fraction(), nil)
}

// Close releases the emitter. The samples channel stays open; the
// manager owns its lifecycle.
func (e *SampleEmitter) Close() {}

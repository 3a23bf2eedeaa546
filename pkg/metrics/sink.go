package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Sink aggregates samples of one metric.
type Sink interface {
	// Add folds one sample into the aggregate.
	Add(sample Sample)
	// Format returns the aggregate as named values; duration is the run
	// length in seconds, used for per-second rates.
	Format(duration float64) map[string]float64
	// IsEmpty reports whether the sink has seen no samples.
	IsEmpty() bool
}

// NewSink creates the sink matching a metric type.
func NewSink(metricType MetricType) Sink {
	switch metricType {
	case Counter:
		return &CounterSink{}
	case Gauge:
		return &GaugeSink{}
	case Rate:
		return &RateSink{}
	case Trend:
		return NewTrendSink()
	default:
		return &CounterSink{}
	}
}

// CounterSink sums sample values.
type CounterSink struct {
	Value float64
	First time.Time
	mu    sync.Mutex
}

// Add folds one sample into the counter.
func (c *CounterSink) Add(sample Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Value += sample.Value
	if c.First.IsZero() {
		c.First = sample.Time
	}
}

// Format returns count and per-second rate.
func (c *CounterSink) Format(duration float64) map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := map[string]float64{
		"count": c.Value,
	}
	if duration > 0 {
		result["rate"] = c.Value / duration
	}
	return result
}

// IsEmpty reports whether the counter is zero.
func (c *CounterSink) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Value == 0
}

// GaugeSink keeps the latest value plus running min/max/avg.
type GaugeSink struct {
	Value  float64
	Min    float64
	Max    float64
	Sum    float64
	Count  int64
	minSet bool
	mu     sync.Mutex
}

// Add folds one sample into the gauge.
func (g *GaugeSink) Add(sample Sample) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Value = sample.Value
	g.Sum += sample.Value
	g.Count++
	if !g.minSet || sample.Value < g.Min {
		g.Min = sample.Value
		g.minSet = true
	}
	if sample.Value > g.Max {
		g.Max = sample.Value
	}
}

// Format returns value, min, max and avg.
func (g *GaugeSink) Format(duration float64) map[string]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	result := map[string]float64{
		"value": g.Value,
		"min":   g.Min,
		"max":   g.Max,
	}
	if g.Count > 0 {
		result["avg"] = g.Sum / float64(g.Count)
	}
	return result
}

// IsEmpty reports whether the gauge has seen no samples.
func (g *GaugeSink) IsEmpty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Count == 0
}

// RateSink tracks the fraction of non-zero samples.
type RateSink struct {
	Trues int64
	Total int64
	mu    sync.Mutex
}

// Add folds one sample; a non-zero value counts as true.
func (r *RateSink) Add(sample Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Total++
	if sample.Value != 0 {
		r.Trues++
	}
}

// Format returns passes, fails and the true rate.
func (r *RateSink) Format(duration float64) map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := map[string]float64{
		"passes": float64(r.Trues),
		"fails":  float64(r.Total - r.Trues),
	}
	if r.Total > 0 {
		result["rate"] = float64(r.Trues) / float64(r.Total)
	} else {
		result["rate"] = 0
	}
	return result
}

// IsEmpty reports whether the rate has seen no samples.
func (r *RateSink) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Total == 0
}

// trendScale converts sample values to histogram integers. Values are
// durations in milliseconds; recording at microsecond granularity keeps
// sub-millisecond resolution through the histogram.
const trendScale = 1000

// trendMaxValue bounds recordable values at one hour in microseconds.
const trendMaxValue = int64(3600_000) * trendScale

// TrendSink keeps a value distribution in an HDR histogram and reports
// percentiles from it. Min, max and sum are tracked exactly; percentiles
// carry the histogram's 3-significant-digit precision.
type TrendSink struct {
	hist   *hdrhistogram.Histogram
	Count  int64
	Sum    float64
	Min    float64
	Max    float64
	minSet bool
	mu     sync.Mutex
}

// NewTrendSink creates an empty trend sink.
func NewTrendSink() *TrendSink {
	return &TrendSink{
		hist: hdrhistogram.New(1, trendMaxValue, 3),
	}
}

// Add folds one sample into the distribution.
func (t *TrendSink) Add(sample Sample) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v := int64(sample.Value * trendScale)
	if v < 0 {
		v = 0
	}
	if v > trendMaxValue {
		v = trendMaxValue
	}
	_ = t.hist.RecordValue(v)

	t.Count++
	t.Sum += sample.Value
	if !t.minSet || sample.Value < t.Min {
		t.Min = sample.Value
		t.minSet = true
	}
	if sample.Value > t.Max {
		t.Max = sample.Value
	}
}

// Format returns count, min, max, avg, med and the upper percentiles.
func (t *TrendSink) Format(duration float64) map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := map[string]float64{
		"count": float64(t.Count),
		"min":   t.Min,
		"max":   t.Max,
	}

	if t.Count > 0 {
		result["avg"] = t.Sum / float64(t.Count)
		result["med"] = t.percentile(50)
		result["p(90)"] = t.percentile(90)
		result["p(95)"] = t.percentile(95)
		result["p(99)"] = t.percentile(99)
	}

	return result
}

// percentile reads a quantile from the histogram. Callers hold the lock.
func (t *TrendSink) percentile(p float64) float64 {
	if t.Count == 0 {
		return 0
	}
	return float64(t.hist.ValueAtQuantile(p)) / trendScale
}

// Percentile returns the value at quantile p in [0, 100].
func (t *TrendSink) Percentile(p float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percentile(p)
}

// IsEmpty reports whether the trend has seen no samples.
func (t *TrendSink) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Count == 0
}

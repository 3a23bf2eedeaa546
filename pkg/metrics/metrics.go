// Package metrics provides the sample pipeline primitives: metric
// definitions, a registry, and per-type aggregation sinks.
package metrics

import (
	"sync"
	"time"
)

// MetricType identifies how samples of a metric aggregate.
type MetricType string

const (
	// Counter accumulates; it only grows.
	Counter MetricType = "counter"
	// Gauge keeps the latest value plus min/max/avg.
	Gauge MetricType = "gauge"
	// Rate tracks the fraction of non-zero samples.
	Rate MetricType = "rate"
	// Trend keeps a distribution and reports percentiles.
	Trend MetricType = "trend"
)

// ValueType describes what a metric's values measure.
type ValueType string

const (
	// Default is a plain number.
	Default ValueType = "default"
	// Time is a duration in milliseconds.
	Time ValueType = "time"
	// Data is a size in bytes.
	Data ValueType = "data"
)

// Metric is a registered metric definition with its aggregation sink.
type Metric struct {
	Name        string            `json:"name"`
	Type        MetricType        `json:"type"`
	Description string            `json:"description,omitempty"`
	Contains    ValueType         `json:"contains,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Sink        Sink              `json:"-"`
}

// Sample is a single measurement of a metric.
type Sample struct {
	Metric   *Metric           `json:"metric"`
	Time     time.Time         `json:"time"`
	Value    float64           `json:"value"`
	Tags     map[string]string `json:"tags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SampleContainer yields one or more related samples.
type SampleContainer interface {
	GetSamples() []Sample
}

// Samples is a Sample slice implementing SampleContainer.
type Samples []Sample

// GetSamples returns the samples.
func (s Samples) GetSamples() []Sample {
	return s
}

// ConnectedSamples groups samples that share a source, such as all metrics
// emitted for one series.
type ConnectedSamples struct {
	Samples []Sample
	Tags    map[string]string
	Time    time.Time
}

// GetSamples returns the samples.
func (cs ConnectedSamples) GetSamples() []Sample {
	return cs.Samples
}

// Registry manages metric definitions. NewMetric is idempotent per name.
type Registry struct {
	metrics map[string]*Metric
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		metrics: make(map[string]*Metric),
	}
}

// NewMetric registers a metric, returning the existing one on repeat calls.
func (r *Registry) NewMetric(name string, metricType MetricType, contains ValueType) *Metric {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.metrics[name]; ok {
		return m
	}

	m := &Metric{
		Name:     name,
		Type:     metricType,
		Contains: contains,
		Tags:     make(map[string]string),
		Sink:     NewSink(metricType),
	}
	r.metrics[name] = m
	return m
}

// Get returns a registered metric or nil.
func (r *Registry) Get(name string) *Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// All returns a copy of the registered metrics.
func (r *Registry) All() map[string]*Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*Metric, len(r.metrics))
	for k, v := range r.metrics {
		result[k] = v
	}
	return result
}

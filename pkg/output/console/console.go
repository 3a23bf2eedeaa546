// Package console prints a live-updating run summary to stdout.
package console

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"sfs/forecast-engine/pkg/metrics"
	"sfs/forecast-engine/pkg/output"
)

func init() {
	output.Register("console", New)
}

// Output aggregates pipeline samples and prints a summary on Stop.
type Output struct {
	params    output.Params
	registry  *metrics.Registry
	mu        sync.Mutex
	runStatus output.RunStatus
	stopCh    chan struct{}
	wg        sync.WaitGroup

	seriesDone    atomic.Int64
	seriesFailed  atomic.Int64
	totalDuration atomic.Int64 // nanoseconds
	startTime     time.Time
}

// New creates a console output.
func New(params output.Params) (output.Output, error) {
	return &Output{
		params:   params,
		registry: metrics.NewRegistry(),
		stopCh:   make(chan struct{}),
	}, nil
}

func (o *Output) Description() string {
	return "console"
}

func (o *Output) Start() error {
	o.startTime = time.Now()
	return nil
}

func (o *Output) Stop() error {
	close(o.stopCh)
	o.wg.Wait()

	o.printSummary()
	return nil
}

// AddMetricSamples folds samples into the per-metric sinks and the
// headline counters.
func (o *Output) AddMetricSamples(containers []metrics.SampleContainer) {
	for _, container := range containers {
		for _, sample := range container.GetSamples() {
			switch sample.Metric.Name {
			case output.MetricSeriesForecasts:
				o.seriesDone.Add(1)
			case output.MetricSeriesFailed:
				if sample.Value != 0 {
					o.seriesFailed.Add(1)
				}
			case output.MetricForecastDuration:
				o.totalDuration.Add(int64(sample.Value * 1e6)) // ms -> ns
			}

			m := o.registry.Get(sample.Metric.Name)
			if m == nil {
				m = o.registry.NewMetric(sample.Metric.Name, sample.Metric.Type, sample.Metric.Contains)
			}
			if m.Sink != nil {
				m.Sink.Add(sample)
			}
		}
	}
}

func (o *Output) SetRunStatus(status output.RunStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runStatus = status
}

// printSummary writes the final aggregate view.
func (o *Output) printSummary() {
	duration := time.Since(o.startTime).Seconds()
	done := o.seriesDone.Load()
	failed := o.seriesFailed.Load()

	fmt.Println("\n========== run summary ==========")
	fmt.Printf("elapsed:         %.2fs\n", duration)
	fmt.Printf("series forecast: %d\n", done)
	fmt.Printf("series failed:   %d\n", failed)

	if done > 0 {
		fmt.Printf("failure rate:    %.2f%%\n", float64(failed)/float64(done)*100)
		fmt.Printf("throughput:      %.2f series/s\n", float64(done)/duration)
	}

	fmt.Println("\n---------- metric detail ----------")
	all := o.registry.All()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		m := all[name]
		if m.Sink == nil || m.Sink.IsEmpty() {
			continue
		}
		stats := m.Sink.Format(duration)
		keys := make([]string, 0, len(stats))
		for k := range stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Printf("\n%s:\n", name)
		for _, k := range keys {
			if m.Contains == metrics.Time {
				fmt.Printf("  %s: %.2fms\n", k, stats[k])
			} else {
				fmt.Printf("  %s: %.2f\n", k, stats[k])
			}
		}
	}
	fmt.Println("=================================")
}

// GetStats snapshots the headline counters.
func (o *Output) GetStats() map[string]interface{} {
	duration := time.Since(o.startTime).Seconds()
	done := o.seriesDone.Load()
	failed := o.seriesFailed.Load()

	stats := map[string]interface{}{
		"duration":     duration,
		"series_done":  done,
		"failed":       failed,
		"failure_rate": 0.0,
		"throughput":   0.0,
	}

	if done > 0 {
		stats["failure_rate"] = float64(failed) / float64(done) * 100
		stats["throughput"] = float64(done) / duration
	}

	return stats
}

// Package json streams samples to a newline-delimited JSON file.
// A .gz suffix on the target path enables gzip compression.
package json

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"sfs/forecast-engine/internal/jsonutil"
	"sfs/forecast-engine/pkg/metrics"
	"sfs/forecast-engine/pkg/output"
)

func init() {
	output.Register("json", New)
}

// Output writes one JSON document per sample.
type Output struct {
	params    output.Params
	file      *os.File
	gz        *gzip.Writer
	writer    *bufio.Writer
	seen      map[string]bool
	mu        sync.Mutex
	runStatus output.RunStatus
}

// New creates a JSON file output.
func New(params output.Params) (output.Output, error) {
	return &Output{
		params: params,
		seen:   make(map[string]bool),
	}, nil
}

func (o *Output) Description() string {
	return fmt.Sprintf("json (%s)", o.params.ConfigArgument)
}

func (o *Output) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	filename := o.params.ConfigArgument
	if filename == "" {
		filename = fmt.Sprintf("metrics_%s.json", time.Now().Format("20060102_150405"))
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("creating JSON file: %w", err)
	}
	o.file = file

	var w io.Writer = file
	if strings.HasSuffix(filename, ".gz") {
		o.gz = gzip.NewWriter(file)
		w = o.gz
	}
	o.writer = bufio.NewWriter(w)

	return nil
}

func (o *Output) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.file == nil {
		return nil
	}

	_ = o.writer.Flush()
	if o.gz != nil {
		_ = o.gz.Close()
	}
	return o.file.Close()
}

// AddMetricSamples writes a Metric document the first time each metric
// appears, then a Point document per sample.
func (o *Output) AddMetricSamples(containers []metrics.SampleContainer) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.writer == nil {
		return
	}

	for _, container := range containers {
		for _, sample := range container.GetSamples() {
			if !o.seen[sample.Metric.Name] {
				o.seen[sample.Metric.Name] = true
				o.writeEntry(map[string]interface{}{
					"type":   "Metric",
					"metric": sample.Metric.Name,
					"data": map[string]interface{}{
						"type":     string(sample.Metric.Type),
						"contains": metricContains(sample.Metric.Contains),
					},
				})
			}
			o.writeEntry(map[string]interface{}{
				"type":   "Point",
				"metric": sample.Metric.Name,
				"data": map[string]interface{}{
					"time":  sample.Time.UnixMilli(),
					"value": sample.Value,
					"tags":  sample.Tags,
				},
			})
		}
	}
}

func (o *Output) writeEntry(entry map[string]interface{}) {
	data, err := jsonutil.Marshal(entry)
	if err != nil {
		if o.params.Logger != nil {
			o.params.Logger.Error("encoding JSON sample failed: %v", err)
		}
		return
	}
	_, _ = o.writer.Write(data)
	_ = o.writer.WriteByte('\n')
}

func (o *Output) SetRunStatus(status output.RunStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runStatus = status
}

func metricContains(v metrics.ValueType) string {
	switch v {
	case metrics.Time:
		return "time"
	case metrics.Data:
		return "data"
	default:
		return "default"
	}
}

// Package output defines the metric output plugin interface, the plugin
// registry, and the manager that fans samples out to active outputs.
package output

import (
	"context"

	"sfs/forecast-engine/pkg/metrics"
)

// Output is a metric output plugin.
type Output interface {
	// Description returns a human-readable description.
	Description() string

	// Start prepares the output for samples.
	Start() error

	// Stop flushes and releases the output.
	Stop() error

	// AddMetricSamples delivers a batch of sample containers.
	AddMetricSamples(samples []metrics.SampleContainer)

	// SetRunStatus delivers the final job status before Stop.
	SetRunStatus(status RunStatus)
}

// RunStatus is the job summary passed to outputs at shutdown.
type RunStatus struct {
	Duration     float64 // run length in seconds
	SeriesDone   int     // series forecast
	SeriesFailed int     // series that errored
	Status       string  // running, completed, failed, cancelled
	Error        error
}

// Params configures a new Output instance.
type Params struct {
	// OutputType is the registered plugin name.
	OutputType string

	// ConfigArgument is the plugin argument, such as a URL or file path.
	ConfigArgument string

	// Logger receives plugin diagnostics.
	Logger Logger

	// JobID and JobName identify the job producing samples.
	JobID   string
	JobName string

	// Tags are attached to every pushed sample.
	Tags map[string]string
}

// Logger is the narrow printf-style logger handed to plugins.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// Factory constructs an Output from params.
type Factory func(params Params) (Output, error)

var registry = make(map[string]Factory)

// Register adds an output factory under a name. Plugins call this from
// their init functions.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Get returns a registered factory.
func Get(name string) (Factory, bool) {
	f, ok := registry[name]
	return f, ok
}

// List returns the registered output type names.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// Create builds an output of the given type.
func Create(ctx context.Context, outputType string, params Params) (Output, error) {
	factory, ok := Get(outputType)
	if !ok {
		return nil, &UnknownOutputError{Type: outputType}
	}
	params.OutputType = outputType
	return factory(params)
}

// UnknownOutputError reports an unregistered output type.
type UnknownOutputError struct {
	Type string
}

func (e *UnknownOutputError) Error() string {
	return "unknown output type: " + e.Type
}

package output

import (
	"time"

	"sfs/forecast-engine/pkg/metrics"
)

const (
	// sendBatchToOutputsRate is how often buffered samples are fanned
	// out to the active outputs.
	sendBatchToOutputsRate = 50 * time.Millisecond

	// defaultSamplesChanSize is the buffer of the shared samples channel.
	defaultSamplesChanSize = 1000
)

// Manager drains a samples channel and forwards batches to a set of
// outputs, then finalizes them with the job status.
type Manager struct {
	outputs []Output
	logger  Logger
}

// NewManager returns a manager for the given outputs.
func NewManager(outputs []Output, logger Logger) *Manager {
	return &Manager{outputs: outputs, logger: logger}
}

// NewSamplesChannel returns a buffered channel sized for a typical run.
func NewSamplesChannel() chan metrics.SampleContainer {
	return make(chan metrics.SampleContainer, defaultSamplesChanSize)
}

// AddOutput registers an extra output. Call before Start.
func (m *Manager) AddOutput(out Output) {
	m.outputs = append(m.outputs, out)
}

// GetOutputs returns the managed outputs.
func (m *Manager) GetOutputs() []Output {
	return m.outputs
}

// Start starts every output and begins draining samplesChan. It
// returns a wait function that blocks until the channel is closed and
// fully drained, and a finish function that stops the outputs with the
// final status. Callers must close samplesChan before finish.
func (m *Manager) Start(samplesChan chan metrics.SampleContainer) (wait func(), finish func(error), err error) {
	if err := m.startOutputs(); err != nil {
		return nil, nil, err
	}

	sendToOutputs := func(samples []metrics.SampleContainer) {
		for _, out := range m.outputs {
			out.AddMetricSamples(samples)
		}
	}

	done := make(chan struct{})
	start := time.Now()
	go func() {
		defer close(done)
		ticker := time.NewTicker(sendBatchToOutputsRate)
		defer ticker.Stop()

		buffer := make([]metrics.SampleContainer, 0, cap(samplesChan))
		for {
			select {
			case sample, ok := <-samplesChan:
				if !ok {
					if len(buffer) > 0 {
						sendToOutputs(buffer)
					}
					return
				}
				buffer = append(buffer, sample)
			case <-ticker.C:
				if len(buffer) > 0 {
					sendToOutputs(buffer)
					buffer = buffer[:0]
				}
			}
		}
	}()

	wait = func() { <-done }
	finish = func(runErr error) {
		<-done
		m.stopOutputs(time.Since(start), runErr)
	}
	return wait, finish, nil
}

// startOutputs starts outputs in order, stopping already-started ones
// if any Start fails.
func (m *Manager) startOutputs() error {
	for i, out := range m.outputs {
		if err := out.Start(); err != nil {
			m.stopStartedOutputs(i)
			return err
		}
	}
	return nil
}

func (m *Manager) stopStartedOutputs(upto int) {
	for i := 0; i < upto; i++ {
		if err := m.outputs[i].Stop(); err != nil {
			m.logger.Error("stopping output %q failed: %v", m.outputs[i].Description(), err)
		}
	}
}

// stopOutputs sets the final run status on every output and stops them.
func (m *Manager) stopOutputs(duration time.Duration, runErr error) {
	status := RunStatus{
		Duration: duration.Seconds(),
		Status:   "completed",
		Error:    runErr,
	}
	if runErr != nil {
		status.Status = "failed"
	}
	for _, out := range m.outputs {
		out.SetRunStatus(status)
		if err := out.Stop(); err != nil {
			m.logger.Error("stopping output %q failed: %v", out.Description(), err)
		}
	}
}

package output

import (
	"sync"
	"time"

	"sfs/forecast-engine/pkg/metrics"
)

// SampleBuffer is a thread-safe accumulator outputs can embed to
// collect samples between flushes.
type SampleBuffer struct {
	sync.Mutex
	buffer []metrics.SampleContainer
}

// AddMetricSamples appends a batch to the buffer.
func (sb *SampleBuffer) AddMetricSamples(samples []metrics.SampleContainer) {
	if len(samples) == 0 {
		return
	}
	sb.Lock()
	sb.buffer = append(sb.buffer, samples...)
	sb.Unlock()
}

// GetBufferedSamples returns the buffered samples and resets the buffer.
func (sb *SampleBuffer) GetBufferedSamples() []metrics.SampleContainer {
	sb.Lock()
	defer sb.Unlock()
	buffered := sb.buffer
	sb.buffer = make([]metrics.SampleContainer, 0, cap(buffered))
	return buffered
}

// PeriodicFlusher invokes a flush callback at a fixed interval and once
// more on Stop, so no buffered samples are lost at shutdown.
type PeriodicFlusher struct {
	period    time.Duration
	flushFunc func()
	stop      chan struct{}
	stopped   chan struct{}
	once      sync.Once
}

func (pf *PeriodicFlusher) run() {
	ticker := time.NewTicker(pf.period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			pf.flushFunc()
		case <-pf.stop:
			pf.flushFunc()
			close(pf.stopped)
			return
		}
	}
}

// Stop halts the flush loop after one final flush. It blocks until the
// final flush completes and is safe to call multiple times.
func (pf *PeriodicFlusher) Stop() {
	pf.once.Do(func() {
		close(pf.stop)
	})
	<-pf.stopped
}

// NewPeriodicFlusher starts a flush loop with the given period.
func NewPeriodicFlusher(period time.Duration, flushFunc func()) (*PeriodicFlusher, error) {
	if period <= 0 {
		return nil, &InvalidFlushPeriodError{Period: period}
	}
	pf := &PeriodicFlusher{
		period:    period,
		flushFunc: flushFunc,
		stop:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go pf.run()
	return pf, nil
}

// InvalidFlushPeriodError reports a non-positive flush period.
type InvalidFlushPeriodError struct {
	Period time.Duration
}

func (e *InvalidFlushPeriodError) Error() string {
	return "flush period must be positive, got " + e.Period.String()
}

// Package engine provides the embedded API of the forecast engine: a
// master wired to the in-process pool and dataset loader, plus a
// blocking runner for CLI use.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"sfs/forecast-engine/internal/dataset"
	"sfs/forecast-engine/internal/master"
	"sfs/forecast-engine/internal/worker"
	"sfs/forecast-engine/pkg/types"
)

// Config holds the engine configuration.
type Config struct {
	// Standalone executes jobs in-process even when a spec asks for the
	// distributed backend.
	Standalone bool

	// MaxJobs caps concurrently tracked jobs.
	MaxJobs int

	// HeartbeatTimeout is how long a silent worker stays schedulable.
	HeartbeatTimeout time.Duration

	// Slots is the local pool concurrency.
	Slots int
}

// DefaultConfig returns a default engine configuration.
func DefaultConfig() *Config {
	return &Config{
		Standalone:       true,
		MaxJobs:          100,
		HeartbeatTimeout: 30 * time.Second,
		Slots:            runtime.NumCPU(),
	}
}

// Engine is the forecast engine.
type Engine struct {
	config   *Config
	master   *master.ForecastMaster
	registry master.WorkerRegistry
	pool     *worker.ForecastPool
	sink     master.JobSink
	started  bool
	mu       sync.RWMutex
}

// New creates a new engine.
func New(cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Engine{config: cfg}
}

// SetSink wires a job lifecycle sink. Must be called before Start.
func (e *Engine) SetSink(sink master.JobSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}

// Start builds and starts the master stack.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}

	masterCfg := &master.Config{
		HeartbeatTimeout:    e.config.HeartbeatTimeout,
		HealthCheckInterval: 10 * time.Second,
		StandaloneMode:      e.config.Standalone,
		MaxConcurrentJobs:   e.config.MaxJobs,
	}

	e.registry = master.NewInMemoryWorkerRegistry()
	scheduler := master.NewBatchScheduler(e.registry)
	aggregator := master.NewReportAggregator()
	e.pool = worker.NewForecastPool(e.config.Slots)

	e.master = master.NewForecastMaster(masterCfg, e.registry, scheduler, aggregator)
	e.master.SetExecutor(e.pool)
	e.master.SetResolver(master.ResolverFunc(resolveDataset))
	if e.sink != nil {
		e.master.SetSink(e.sink)
	}

	if err := e.master.Start(context.Background()); err != nil {
		return fmt.Errorf("starting master: %w", err)
	}

	e.started = true
	return nil
}

// Stop shuts the engine down.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if e.master != nil {
		if err := e.master.Stop(ctx); err != nil {
			return fmt.Errorf("stopping master: %w", err)
		}
	}
	if e.pool != nil {
		e.pool.Stop()
	}

	e.started = false
	return nil
}

// IsRunning reports whether the engine has started.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.started
}

// Master returns the master node, for serving its API.
func (e *Engine) Master() master.Master {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.master == nil {
		return nil
	}
	return e.master
}

// Registry returns the worker registry.
func (e *Engine) Registry() master.WorkerRegistry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry
}

// Pool returns the in-process forecast pool.
func (e *Engine) Pool() *worker.ForecastPool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pool
}

// resolveDataset loads and prepares the dataset a spec points at.
func resolveDataset(ctx context.Context, spec *types.JobSpec) (*master.ResolvedDataset, error) {
	prepared, err := dataset.Prepare(spec.DatasetPath, spec)
	if err != nil {
		return nil, err
	}
	return &master.ResolvedDataset{
		Series: prepared.Output.Series(),
		Health: prepared.Health,
		Class:  prepared.Class,
	}, nil
}

// Submit launches a forecast job.
func (e *Engine) Submit(ctx context.Context, spec *types.JobSpec) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.master == nil {
		return "", fmt.Errorf("engine not started")
	}
	return e.master.Submit(ctx, spec)
}

// Status returns the observable state of a job.
func (e *Engine) Status(ctx context.Context, jobID string) (*types.JobState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.master == nil {
		return nil, fmt.Errorf("engine not started")
	}
	return e.master.GetJob(ctx, jobID)
}

// Report returns the final report of a completed job.
func (e *Engine) Report(ctx context.Context, jobID string) (*types.JobReport, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.master == nil {
		return nil, fmt.Errorf("engine not started")
	}
	return e.master.GetReport(ctx, jobID)
}

// Cancel stops a job.
func (e *Engine) Cancel(ctx context.Context, jobID string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.master == nil {
		return fmt.Errorf("engine not started")
	}
	return e.master.Cancel(ctx, jobID)
}

// RunForecast submits a job and blocks until it finishes. The progress
// callback, when set, is invoked on every poll with the current state.
func (e *Engine) RunForecast(ctx context.Context, spec *types.JobSpec, onProgress func(*types.JobState)) (*types.JobReport, error) {
	jobID, err := e.Submit(ctx, spec)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = e.Cancel(context.Background(), jobID)
			return nil, ctx.Err()
		case <-ticker.C:
			state, err := e.Status(ctx, jobID)
			if err != nil {
				continue
			}
			if onProgress != nil {
				onProgress(state)
			}

			switch state.Status {
			case types.JobCompleted:
				return e.Report(ctx, jobID)
			case types.JobFailed:
				return nil, fmt.Errorf("forecast failed: %s", state.Error)
			case types.JobCancelled:
				return nil, fmt.Errorf("forecast cancelled")
			}
		}
	}
}

package master

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sfs/forecast-engine/pkg/logger"
	"sfs/forecast-engine/pkg/types"
)

// Master defines the interface for a master node.
type Master interface {
	// Start initializes and starts the master node.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the master node.
	Stop(ctx context.Context) error

	// Submit accepts a forecast job and returns its ID.
	Submit(ctx context.Context, spec *types.JobSpec) (string, error)

	// GetJob returns the observable state of a job.
	GetJob(ctx context.Context, jobID string) (*types.JobState, error)

	// ListJobs returns all known jobs, most recent first.
	ListJobs(ctx context.Context) ([]*types.JobState, error)

	// GetReport returns the final report of a completed job.
	GetReport(ctx context.Context, jobID string) (*types.JobReport, error)

	// Cancel stops a running or paused job.
	Cancel(ctx context.Context, jobID string) error

	// Pause suspends task dispatch for a running job.
	Pause(ctx context.Context, jobID string) error

	// Resume restarts task dispatch for a paused job.
	Resume(ctx context.Context, jobID string) error

	// GetWorkers returns all registered workers.
	GetWorkers(ctx context.Context) ([]*types.WorkerInfo, error)

	// LeaseBatches hands queued task batches to a worker.
	LeaseBatches(ctx context.Context, workerID string, max int) ([]*types.TaskBatch, error)

	// SubmitBatchResult records a worker's result for one batch.
	SubmitBatchResult(ctx context.Context, result *types.BatchResult) error
}

// Config holds the configuration for a master node.
type Config struct {
	// ID is the unique identifier for this master.
	ID string

	// HeartbeatTimeout is how long a worker may go silent before it is
	// marked offline.
	HeartbeatTimeout time.Duration

	// HealthCheckInterval is the interval between worker health sweeps.
	HealthCheckInterval time.Duration

	// StandaloneMode forces local execution regardless of the job's
	// backend.
	StandaloneMode bool

	// MaxConcurrentJobs is the maximum number of jobs running at once.
	MaxConcurrentJobs int
}

// DefaultConfig returns a default master configuration.
func DefaultConfig() *Config {
	return &Config{
		ID:                  uuid.New().String(),
		HeartbeatTimeout:    15 * time.Second,
		HealthCheckInterval: 5 * time.Second,
		StandaloneMode:      false,
		MaxConcurrentJobs:   100,
	}
}

// ForecastMaster implements the Master interface.
type ForecastMaster struct {
	config *Config

	registry   WorkerRegistry
	scheduler  Scheduler
	aggregator Aggregator

	// resolver prepares datasets, executor runs local batches, sink
	// receives lifecycle notifications. All optional until wired.
	resolver DatasetResolver
	executor BatchExecutor
	sink     JobSink

	// Job state management
	jobs     map[string]*jobInfo
	jobMu    sync.RWMutex
	jobCount atomic.Int32

	// Per-worker dispatch queues for the distributed backend.
	dispatch   map[string][]*types.TaskBatch
	dispatchMu sync.Mutex

	// State management
	state    atomic.Value // MasterState
	started  atomic.Bool
	stopOnce sync.Once
	stopped  chan struct{}

	// Health check
	healthCtx    context.Context
	healthCancel context.CancelFunc

	mu sync.RWMutex
}

// MasterState represents the state of the master node.
type MasterState string

const (
	// MasterStateStarting indicates the master is starting.
	MasterStateStarting MasterState = "starting"
	// MasterStateRunning indicates the master is running.
	MasterStateRunning MasterState = "running"
	// MasterStateStopping indicates the master is stopping.
	MasterStateStopping MasterState = "stopping"
	// MasterStateStopped indicates the master is stopped.
	MasterStateStopped MasterState = "stopped"
)

// jobInfo holds the full runtime state of one job.
type jobInfo struct {
	state    *types.JobState
	resolved *ResolvedDataset

	// batches indexes all planned batches; pending maps unfinished
	// batch IDs to their assigned worker.
	batches map[string]*types.TaskBatch
	pending map[string]string

	results []types.SeriesResult
	report  *types.JobReport

	stopCh   chan struct{}
	done     chan struct{}
	doneOnce sync.Once

	// paused gates local execution between series; resumeCh is
	// replaced on every pause.
	paused   bool
	resumeCh chan struct{}

	mu sync.RWMutex
}

func (j *jobInfo) finish() {
	j.doneOnce.Do(func() { close(j.done) })
}

// waitWhilePaused blocks while the job is paused, releasing on resume
// or context cancellation.
func (j *jobInfo) waitWhilePaused(ctx context.Context) {
	for {
		j.mu.RLock()
		paused := j.paused
		resumeCh := j.resumeCh
		j.mu.RUnlock()

		if !paused {
			return
		}
		select {
		case <-resumeCh:
		case <-ctx.Done():
			return
		}
	}
}

// NewForecastMaster creates a new forecast master.
func NewForecastMaster(config *Config, registry WorkerRegistry, scheduler Scheduler, aggregator Aggregator) *ForecastMaster {
	if config == nil {
		config = DefaultConfig()
	}

	m := &ForecastMaster{
		config:     config,
		registry:   registry,
		scheduler:  scheduler,
		aggregator: aggregator,
		jobs:       make(map[string]*jobInfo),
		dispatch:   make(map[string][]*types.TaskBatch),
		stopped:    make(chan struct{}),
	}

	m.state.Store(MasterStateStopped)

	return m
}

// SetResolver wires the dataset resolver used at job submit.
func (m *ForecastMaster) SetResolver(resolver DatasetResolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolver = resolver
}

// SetExecutor wires the executor for the local backend.
func (m *ForecastMaster) SetExecutor(executor BatchExecutor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executor = executor
}

// SetSink wires the job lifecycle sink.
func (m *ForecastMaster) SetSink(sink JobSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

// Start initializes and starts the master node.
func (m *ForecastMaster) Start(ctx context.Context) error {
	if m.started.Load() {
		return fmt.Errorf("master already started")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Store(MasterStateStarting)

	m.healthCtx, m.healthCancel = context.WithCancel(context.Background())
	go m.healthCheckLoop()

	m.state.Store(MasterStateRunning)
	m.started.Store(true)

	logger.Info("master started", zap.String("id", m.config.ID), zap.Bool("standalone", m.config.StandaloneMode))

	return nil
}

// Stop gracefully shuts down the master node. Running jobs are
// signalled to stop; Stop does not wait for them.
func (m *ForecastMaster) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() {
		m.state.Store(MasterStateStopping)

		if m.healthCancel != nil {
			m.healthCancel()
		}

		m.jobMu.Lock()
		for _, info := range m.jobs {
			info.mu.Lock()
			if !info.state.Status.Terminal() {
				select {
				case <-info.stopCh:
				default:
					close(info.stopCh)
				}
			}
			info.mu.Unlock()
		}
		m.jobMu.Unlock()

		m.state.Store(MasterStateStopped)
		m.started.Store(false)
		close(m.stopped)

		logger.Info("master stopped", zap.String("id", m.config.ID))
	})
	return nil
}

// Submit accepts a forecast job. The spec is normalized and validated;
// dataset resolution and execution happen in the background.
func (m *ForecastMaster) Submit(ctx context.Context, spec *types.JobSpec) (string, error) {
	if spec == nil {
		return "", fmt.Errorf("job spec cannot be nil")
	}
	if !m.started.Load() {
		return "", fmt.Errorf("master not started")
	}

	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return "", fmt.Errorf("invalid job spec: %w", err)
	}

	if int(m.jobCount.Load()) >= m.config.MaxConcurrentJobs {
		return "", fmt.Errorf("maximum concurrent jobs reached: %d", m.config.MaxConcurrentJobs)
	}

	jobID := uuid.New().String()

	info := &jobInfo{
		state: &types.JobState{
			ID:         jobID,
			Spec:       *spec,
			Status:     types.JobPending,
			SubmitTime: time.Now(),
		},
		batches: make(map[string]*types.TaskBatch),
		pending: make(map[string]string),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	m.jobMu.Lock()
	m.jobs[jobID] = info
	m.jobCount.Add(1)
	m.jobMu.Unlock()

	m.notifyUpdated(info)

	logger.Info("job submitted",
		zap.String("job_id", jobID),
		zap.String("dataset", spec.DatasetPath),
		zap.String("backend", string(spec.Backend)),
		zap.Int("horizon", spec.Horizon))

	go m.runJob(info)

	return jobID, nil
}

// runJob drives one job from dataset resolution to the final report.
func (m *ForecastMaster) runJob(info *jobInfo) {
	defer m.jobCount.Add(-1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-info.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	m.mu.RLock()
	resolver := m.resolver
	m.mu.RUnlock()

	if resolver == nil {
		m.failJob(info, fmt.Errorf("no dataset resolver configured"))
		return
	}

	resolved, err := resolver.Resolve(ctx, &info.state.Spec)
	if err != nil {
		m.failJob(info, fmt.Errorf("failed to resolve dataset: %w", err))
		return
	}
	if len(resolved.Series) == 0 {
		m.failJob(info, fmt.Errorf("dataset contains no series"))
		return
	}

	info.mu.Lock()
	if info.state.Status.Terminal() {
		info.mu.Unlock()
		info.finish()
		return
	}
	info.resolved = resolved
	info.state.Status = types.JobRunning
	info.state.StartTime = time.Now()
	info.state.Progress.TotalSeries = len(resolved.Series)
	info.mu.Unlock()

	m.notifyUpdated(info)

	local := m.config.StandaloneMode || info.state.Spec.Backend == types.BackendLocal
	if local {
		m.runLocal(ctx, info)
	} else {
		m.runDistributed(ctx, info)
	}
}

// runLocal executes the whole job as one batch through the in-process
// executor.
func (m *ForecastMaster) runLocal(ctx context.Context, info *jobInfo) {
	m.mu.RLock()
	executor := m.executor
	m.mu.RUnlock()

	if executor == nil {
		m.failJob(info, fmt.Errorf("no local executor configured"))
		return
	}

	spec := info.state.Spec
	batch := &types.TaskBatch{
		ID:        uuid.New().String(),
		JobID:     info.state.ID,
		WorkerID:  "local",
		Series:    info.resolved.Series,
		Horizon:   spec.Horizon,
		Freq:      spec.FreqOut,
		ObjMetric: spec.ObjMetric,
		CVStride:  spec.CVStride,
	}

	progress := func(done, failed int) {
		info.waitWhilePaused(ctx)
		info.mu.Lock()
		info.state.Progress.DoneSeries = done
		info.state.Progress.FailedSeries = failed
		info.mu.Unlock()
	}

	result, err := executor.ExecuteBatch(ctx, batch, progress)
	if err != nil {
		if ctx.Err() != nil {
			m.markCancelled(info)
			return
		}
		m.failJob(info, fmt.Errorf("batch execution failed: %w", err))
		return
	}

	info.mu.Lock()
	info.results = m.aggregator.Merge(info.results, result)
	info.mu.Unlock()

	m.finalizeJob(info)
}

// runDistributed plans batches across the online workers and waits for
// their results to arrive through SubmitBatchResult.
func (m *ForecastMaster) runDistributed(ctx context.Context, info *jobInfo) {
	spec := info.state.Spec
	series := info.resolved.Series

	maxWorkers := spec.MaxWorkers
	if maxWorkers > len(series) {
		maxWorkers = len(series)
	}

	workers, err := m.scheduler.SelectWorkers(ctx, nil, maxWorkers)
	if err != nil {
		m.failJob(info, fmt.Errorf("failed to select workers: %w", err))
		return
	}

	batches, err := m.scheduler.Plan(ctx, info.state.ID, &spec, series, workers)
	if err != nil {
		m.failJob(info, fmt.Errorf("failed to plan batches: %w", err))
		return
	}

	info.mu.Lock()
	for _, batch := range batches {
		info.batches[batch.ID] = batch
		info.pending[batch.ID] = batch.WorkerID
	}
	info.mu.Unlock()

	m.enqueueBatches(batches)

	logger.Info("job scheduled",
		zap.String("job_id", info.state.ID),
		zap.Int("series", len(series)),
		zap.Int("batches", len(batches)),
		zap.Int("workers", len(workers)))

	select {
	case <-info.done:
	case <-ctx.Done():
		m.markCancelled(info)
	}
}

// enqueueBatches appends batches to their workers' dispatch queues.
func (m *ForecastMaster) enqueueBatches(batches []*types.TaskBatch) {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()
	for _, batch := range batches {
		m.dispatch[batch.WorkerID] = append(m.dispatch[batch.WorkerID], batch)
	}
}

// LeaseBatches pops up to max queued batches for a worker. Batches of
// paused jobs stay queued; batches that were completed or reassigned
// in the meantime are dropped.
func (m *ForecastMaster) LeaseBatches(ctx context.Context, workerID string, max int) ([]*types.TaskBatch, error) {
	status, err := m.registry.GetWorkerStatus(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if status.State != types.WorkerOnline {
		return []*types.TaskBatch{}, nil
	}

	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	queue := m.dispatch[workerID]
	if len(queue) == 0 {
		return []*types.TaskBatch{}, nil
	}

	leased := make([]*types.TaskBatch, 0, len(queue))
	kept := queue[:0]

	for _, batch := range queue {
		if max > 0 && len(leased) >= max {
			kept = append(kept, batch)
			continue
		}
		switch m.leaseState(batch, workerID) {
		case leaseReady:
			leased = append(leased, batch)
		case leaseHold:
			kept = append(kept, batch)
		case leaseDrop:
		}
	}

	m.dispatch[workerID] = kept
	return leased, nil
}

type leaseDecision int

const (
	leaseReady leaseDecision = iota
	leaseHold
	leaseDrop
)

// leaseState decides whether a queued batch is ready for the worker,
// must stay queued, or is stale.
func (m *ForecastMaster) leaseState(batch *types.TaskBatch, workerID string) leaseDecision {
	m.jobMu.RLock()
	info, ok := m.jobs[batch.JobID]
	m.jobMu.RUnlock()
	if !ok {
		return leaseDrop
	}

	info.mu.RLock()
	defer info.mu.RUnlock()

	assigned, pending := info.pending[batch.ID]
	if !pending || assigned != workerID {
		return leaseDrop
	}
	if info.state.Status.Terminal() {
		return leaseDrop
	}
	if info.paused || info.state.Status == types.JobPaused {
		return leaseHold
	}
	return leaseReady
}

// SubmitBatchResult folds a worker's batch result into its job. The
// first result for a batch wins; later duplicates are ignored.
func (m *ForecastMaster) SubmitBatchResult(ctx context.Context, result *types.BatchResult) error {
	if result == nil {
		return fmt.Errorf("batch result cannot be nil")
	}

	m.jobMu.RLock()
	info, ok := m.jobs[result.JobID]
	m.jobMu.RUnlock()
	if !ok {
		return fmt.Errorf("job not found: %s", result.JobID)
	}

	info.mu.Lock()

	if _, pending := info.pending[result.BatchID]; !pending {
		info.mu.Unlock()
		return nil
	}
	delete(info.pending, result.BatchID)

	info.results = m.aggregator.Merge(info.results, result)
	info.state.Progress.DoneSeries += len(result.Results)
	for i := range result.Results {
		if result.Results[i].Failed() {
			info.state.Progress.FailedSeries++
		}
	}
	remaining := len(info.pending)
	info.mu.Unlock()

	logger.Debug("batch result received",
		zap.String("job_id", result.JobID),
		zap.String("batch_id", result.BatchID),
		zap.String("worker_id", result.WorkerID),
		zap.Int("series", len(result.Results)),
		zap.Int("remaining_batches", remaining))

	if remaining == 0 {
		m.finalizeJob(info)
	}
	return nil
}

// GetJob returns a copy of the job's observable state.
func (m *ForecastMaster) GetJob(ctx context.Context, jobID string) (*types.JobState, error) {
	info, err := m.getJob(jobID)
	if err != nil {
		return nil, err
	}

	info.mu.RLock()
	defer info.mu.RUnlock()
	state := *info.state
	return &state, nil
}

// ListJobs returns all known jobs, most recently submitted first.
func (m *ForecastMaster) ListJobs(ctx context.Context) ([]*types.JobState, error) {
	m.jobMu.RLock()
	defer m.jobMu.RUnlock()

	states := make([]*types.JobState, 0, len(m.jobs))
	for _, info := range m.jobs {
		info.mu.RLock()
		state := *info.state
		info.mu.RUnlock()
		states = append(states, &state)
	}

	sort.Slice(states, func(i, j int) bool {
		return states[i].SubmitTime.After(states[j].SubmitTime)
	})
	return states, nil
}

// GetReport returns the final report of a completed job.
func (m *ForecastMaster) GetReport(ctx context.Context, jobID string) (*types.JobReport, error) {
	info, err := m.getJob(jobID)
	if err != nil {
		return nil, err
	}

	info.mu.RLock()
	defer info.mu.RUnlock()

	if info.report == nil {
		return nil, fmt.Errorf("job not completed: %s (status: %s)", jobID, info.state.Status)
	}
	return info.report, nil
}

// Cancel stops a running or paused job.
func (m *ForecastMaster) Cancel(ctx context.Context, jobID string) error {
	info, err := m.getJob(jobID)
	if err != nil {
		return err
	}

	info.mu.Lock()
	if info.state.Status != types.JobRunning &&
		info.state.Status != types.JobPaused &&
		info.state.Status != types.JobPending {
		status := info.state.Status
		info.mu.Unlock()
		return fmt.Errorf("job is not running or paused: %s", status)
	}

	select {
	case <-info.stopCh:
	default:
		close(info.stopCh)
	}

	info.state.Status = types.JobCancelled
	info.state.EndTime = time.Now()

	// Unblock a paused local run so it can observe the cancel.
	if info.paused {
		info.paused = false
		close(info.resumeCh)
	}
	info.mu.Unlock()

	m.notifyUpdated(info)
	info.finish()

	logger.Info("job cancelled", zap.String("job_id", jobID))
	return nil
}

// Pause suspends task dispatch for a running job. Local jobs pause
// between series; distributed jobs stop leasing queued batches.
func (m *ForecastMaster) Pause(ctx context.Context, jobID string) error {
	info, err := m.getJob(jobID)
	if err != nil {
		return err
	}

	info.mu.Lock()
	if info.state.Status != types.JobRunning {
		status := info.state.Status
		info.mu.Unlock()
		return fmt.Errorf("job is not running: %s", status)
	}

	info.paused = true
	info.resumeCh = make(chan struct{})
	info.state.Status = types.JobPaused
	info.mu.Unlock()

	m.notifyUpdated(info)

	logger.Info("job paused", zap.String("job_id", jobID))
	return nil
}

// Resume restarts task dispatch for a paused job.
func (m *ForecastMaster) Resume(ctx context.Context, jobID string) error {
	info, err := m.getJob(jobID)
	if err != nil {
		return err
	}

	info.mu.Lock()
	if info.state.Status != types.JobPaused {
		status := info.state.Status
		info.mu.Unlock()
		return fmt.Errorf("job is not paused: %s", status)
	}

	info.paused = false
	close(info.resumeCh)
	info.state.Status = types.JobRunning
	info.mu.Unlock()

	m.notifyUpdated(info)

	logger.Info("job resumed", zap.String("job_id", jobID))
	return nil
}

// GetWorkers returns all registered workers.
func (m *ForecastMaster) GetWorkers(ctx context.Context) ([]*types.WorkerInfo, error) {
	if m.registry == nil {
		return []*types.WorkerInfo{}, nil
	}
	return m.registry.ListWorkers(ctx, nil)
}

func (m *ForecastMaster) getJob(jobID string) (*jobInfo, error) {
	m.jobMu.RLock()
	defer m.jobMu.RUnlock()

	info, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	return info, nil
}

// finalizeJob builds the report and marks the job completed.
func (m *ForecastMaster) finalizeJob(info *jobInfo) {
	info.mu.Lock()
	if info.state.Status.Terminal() {
		info.mu.Unlock()
		info.finish()
		return
	}

	info.state.Status = types.JobCompleted
	info.state.EndTime = time.Now()

	var health *types.HealthSummary
	var class *types.Classification
	if info.resolved != nil {
		health = info.resolved.Health
		class = info.resolved.Class
	}
	info.report = m.aggregator.BuildReport(info.state, info.results, health, class)
	report := info.report
	info.mu.Unlock()

	m.notifyUpdated(info)
	m.notifyFinished(report)
	info.finish()

	logger.Info("job completed",
		zap.String("job_id", info.state.ID),
		zap.Int("series", len(report.Results)),
		zap.Int("failed", report.Failed),
		zap.Duration("elapsed", report.Elapsed))
}

// failJob marks the job failed.
func (m *ForecastMaster) failJob(info *jobInfo, err error) {
	info.mu.Lock()
	if info.state.Status.Terminal() {
		info.mu.Unlock()
		info.finish()
		return
	}
	info.state.Status = types.JobFailed
	info.state.Error = err.Error()
	info.state.EndTime = time.Now()
	info.mu.Unlock()

	m.notifyUpdated(info)
	info.finish()

	logger.Error("job failed", zap.String("job_id", info.state.ID), zap.Error(err))
}

// markCancelled finalizes a job that was stopped mid-flight.
func (m *ForecastMaster) markCancelled(info *jobInfo) {
	info.mu.Lock()
	if !info.state.Status.Terminal() {
		info.state.Status = types.JobCancelled
		info.state.EndTime = time.Now()
	}
	info.mu.Unlock()

	m.notifyUpdated(info)
	info.finish()
}

func (m *ForecastMaster) notifyUpdated(info *jobInfo) {
	m.mu.RLock()
	sink := m.sink
	m.mu.RUnlock()
	if sink == nil {
		return
	}

	info.mu.RLock()
	state := *info.state
	info.mu.RUnlock()
	sink.JobUpdated(&state)
}

func (m *ForecastMaster) notifyFinished(report *types.JobReport) {
	m.mu.RLock()
	sink := m.sink
	m.mu.RUnlock()
	if sink != nil && report != nil {
		sink.JobFinished(report)
	}
}

// healthCheckLoop periodically sweeps worker heartbeats.
func (m *ForecastMaster) healthCheckLoop() {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.healthCtx.Done():
			return
		case <-ticker.C:
			m.checkWorkerHealth()
		}
	}
}

// checkWorkerHealth marks workers with stale heartbeats offline and
// reschedules their unfinished batches.
func (m *ForecastMaster) checkWorkerHealth() {
	if m.registry == nil {
		return
	}

	ctx := context.Background()
	workers, err := m.registry.ListWorkers(ctx, nil)
	if err != nil {
		return
	}

	now := time.Now()
	for _, worker := range workers {
		status, err := m.registry.GetWorkerStatus(ctx, worker.ID)
		if err != nil {
			continue
		}
		if status.State != types.WorkerOnline {
			continue
		}
		if now.Sub(status.LastSeen) <= m.config.HeartbeatTimeout {
			continue
		}

		logger.Warn("worker heartbeat stale, marking offline",
			zap.String("worker_id", worker.ID),
			zap.Time("last_seen", status.LastSeen))

		_ = m.registry.MarkOffline(ctx, worker.ID)
		m.rescheduleWorkerBatches(ctx, worker.ID)
	}
}

// rescheduleWorkerBatches moves a dead worker's unfinished batches to
// the surviving workers of each affected job.
func (m *ForecastMaster) rescheduleWorkerBatches(ctx context.Context, workerID string) {
	// Discard whatever is still queued for the dead worker; pending
	// entries among them are re-enqueued below under new assignments.
	m.dispatchMu.Lock()
	delete(m.dispatch, workerID)
	m.dispatchMu.Unlock()

	m.jobMu.RLock()
	jobs := make([]*jobInfo, 0, len(m.jobs))
	for _, info := range m.jobs {
		jobs = append(jobs, info)
	}
	m.jobMu.RUnlock()

	for _, info := range jobs {
		info.mu.Lock()
		if info.state.Status.Terminal() {
			info.mu.Unlock()
			continue
		}

		affected := false
		pendingBatches := make([]*types.TaskBatch, 0, len(info.pending))
		for batchID, assigned := range info.pending {
			if batch, ok := info.batches[batchID]; ok {
				pendingBatches = append(pendingBatches, batch)
			}
			if assigned == workerID {
				affected = true
			}
		}

		if !affected {
			info.mu.Unlock()
			continue
		}

		rescheduled, err := m.scheduler.Reschedule(ctx, workerID, pendingBatches)
		if err != nil {
			info.mu.Unlock()
			m.failJob(info, fmt.Errorf("worker %s lost and no workers remain: %w", workerID, err))
			continue
		}

		moved := make([]*types.TaskBatch, 0)
		for _, batch := range rescheduled {
			if info.pending[batch.ID] != batch.WorkerID {
				info.pending[batch.ID] = batch.WorkerID
				moved = append(moved, batch)
			}
		}
		info.mu.Unlock()

		if len(moved) > 0 {
			m.enqueueBatches(moved)
			logger.Info("batches rescheduled",
				zap.String("job_id", info.state.ID),
				zap.String("failed_worker", workerID),
				zap.Int("batches", len(moved)))
		}
	}
}

// GetState returns the current master state.
func (m *ForecastMaster) GetState() MasterState {
	return m.state.Load().(MasterState)
}

// IsRunning returns whether the master is running.
func (m *ForecastMaster) IsRunning() bool {
	return m.started.Load() && m.GetState() == MasterStateRunning
}

// JobCount returns the number of active jobs.
func (m *ForecastMaster) JobCount() int {
	return int(m.jobCount.Load())
}

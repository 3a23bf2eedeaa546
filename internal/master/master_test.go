package master

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfs/forecast-engine/pkg/types"
)

// stubExecutor forecasts every series in the batch with a fixed score.
// When release is set it blocks until the channel closes or the context
// is cancelled.
type stubExecutor struct {
	release chan struct{}
	err     error

	mu    sync.Mutex
	calls int
}

func (e *stubExecutor) ExecuteBatch(ctx context.Context, batch *types.TaskBatch, progress func(done, failed int)) (*types.BatchResult, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.release != nil {
		select {
		case <-e.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.err != nil {
		return nil, e.err
	}

	results := make([]types.SeriesResult, 0, len(batch.Series))
	for i, s := range batch.Series {
		if progress != nil {
			progress(i, 0)
		}
		results = append(results, types.SeriesResult{
			Key:            s.Key,
			ModelID:        "naive",
			SMAPEMean:      0.2,
			NaiveSMAPEMean: 0.2,
			CVWindows:      2,
		})
	}
	if progress != nil {
		progress(len(batch.Series), 0)
	}

	return &types.BatchResult{
		BatchID:  batch.ID,
		JobID:    batch.JobID,
		WorkerID: batch.WorkerID,
		Results:  results,
	}, nil
}

func (e *stubExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// recordingSink captures lifecycle notifications.
type recordingSink struct {
	mu       sync.Mutex
	updates  []types.JobStatus
	finished []*types.JobReport
}

func (s *recordingSink) JobUpdated(state *types.JobState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, state.Status)
}

func (s *recordingSink) JobFinished(report *types.JobReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, report)
}

func (s *recordingSink) finishedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.finished)
}

func staticResolver(series []*types.Series) ResolverFunc {
	return func(ctx context.Context, spec *types.JobSpec) (*ResolvedDataset, error) {
		return &ResolvedDataset{Series: series}, nil
	}
}

func failingResolver(err error) ResolverFunc {
	return func(ctx context.Context, spec *types.JobSpec) (*ResolvedDataset, error) {
		return nil, err
	}
}

func localSpec() *types.JobSpec {
	return &types.JobSpec{
		DatasetPath: "demand.csv",
		FreqIn:      types.FreqDaily,
		Horizon:     4,
	}
}

func distributedSpec() *types.JobSpec {
	spec := localSpec()
	spec.Backend = types.BackendDistributed
	return spec
}

// newStandaloneMaster wires a master that runs jobs through the given
// executor in standalone mode.
func newStandaloneMaster(executor BatchExecutor, series []*types.Series) *ForecastMaster {
	registry := NewInMemoryWorkerRegistry()
	scheduler := NewBatchScheduler(registry)
	aggregator := NewReportAggregator()

	config := DefaultConfig()
	config.StandaloneMode = true

	m := NewForecastMaster(config, registry, scheduler, aggregator)
	m.SetExecutor(executor)
	m.SetResolver(staticResolver(series))
	return m
}

// newDistributedMaster wires a master with a real registry and batch
// scheduler for the distributed flow.
func newDistributedMaster(series []*types.Series) (*ForecastMaster, *InMemoryWorkerRegistry) {
	registry := NewInMemoryWorkerRegistry()
	scheduler := NewBatchScheduler(registry)
	aggregator := NewReportAggregator()

	m := NewForecastMaster(DefaultConfig(), registry, scheduler, aggregator)
	m.SetResolver(staticResolver(series))
	return m, registry
}

func waitForStatus(t *testing.T, m *ForecastMaster, jobID string, status types.JobStatus) *types.JobState {
	t.Helper()
	ctx := context.Background()

	var state *types.JobState
	require.Eventually(t, func() bool {
		s, err := m.GetJob(ctx, jobID)
		if err != nil {
			return false
		}
		state = s
		return s.Status == status
	}, 2*time.Second, 5*time.Millisecond, "waiting for job %s to reach %s", jobID, status)
	return state
}

func TestNewForecastMaster(t *testing.T) {
	m := NewForecastMaster(nil, nil, nil, nil)
	assert.NotNil(t, m)
	assert.Equal(t, MasterStateStopped, m.GetState())
	assert.False(t, m.IsRunning())
}

func TestMasterStartStop(t *testing.T) {
	m := newStandaloneMaster(&stubExecutor{}, makeSeries(1))
	ctx := context.Background()

	err := m.Start(ctx)
	require.NoError(t, err)
	assert.True(t, m.IsRunning())
	assert.Equal(t, MasterStateRunning, m.GetState())

	err = m.Start(ctx)
	assert.Error(t, err)

	err = m.Stop(ctx)
	require.NoError(t, err)
	assert.False(t, m.IsRunning())
	assert.Equal(t, MasterStateStopped, m.GetState())
}

func TestSubmitNotStarted(t *testing.T) {
	m := newStandaloneMaster(&stubExecutor{}, makeSeries(1))
	ctx := context.Background()

	_, err := m.Submit(ctx, localSpec())
	assert.Error(t, err)
}

func TestSubmitNilSpec(t *testing.T) {
	m := newStandaloneMaster(&stubExecutor{}, makeSeries(1))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	_, err := m.Submit(ctx, nil)
	assert.Error(t, err)
}

func TestSubmitInvalidSpec(t *testing.T) {
	m := newStandaloneMaster(&stubExecutor{}, makeSeries(1))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	// No dataset.
	_, err := m.Submit(ctx, &types.JobSpec{FreqIn: types.FreqDaily, Horizon: 4})
	assert.Error(t, err)

	// Bad frequency.
	_, err = m.Submit(ctx, &types.JobSpec{DatasetPath: "demand.csv", FreqIn: "Q", Horizon: 4})
	assert.Error(t, err)
}

func TestLocalJobCompletes(t *testing.T) {
	executor := &stubExecutor{}
	m := newStandaloneMaster(executor, makeSeries(3))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	jobID, err := m.Submit(ctx, localSpec())
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	state := waitForStatus(t, m, jobID, types.JobCompleted)
	assert.Equal(t, 3, state.Progress.TotalSeries)
	assert.Equal(t, 3, state.Progress.DoneSeries)
	assert.Equal(t, 0, state.Progress.FailedSeries)
	assert.False(t, state.EndTime.IsZero())

	report, err := m.GetReport(ctx, jobID)
	require.NoError(t, err)
	assert.Len(t, report.Results, 3)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 1, executor.callCount())
}

func TestLocalBackendForcedInStandalone(t *testing.T) {
	executor := &stubExecutor{}
	m := newStandaloneMaster(executor, makeSeries(2))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	// Distributed backend still runs locally under standalone mode.
	jobID, err := m.Submit(ctx, distributedSpec())
	require.NoError(t, err)

	waitForStatus(t, m, jobID, types.JobCompleted)
	assert.Equal(t, 1, executor.callCount())
}

func TestGetJobNotFound(t *testing.T) {
	m := newStandaloneMaster(&stubExecutor{}, makeSeries(1))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	_, err := m.GetJob(ctx, "non-existent")
	assert.Error(t, err)
}

func TestGetReportNotCompleted(t *testing.T) {
	executor := &stubExecutor{release: make(chan struct{})}
	m := newStandaloneMaster(executor, makeSeries(1))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	jobID, err := m.Submit(ctx, localSpec())
	require.NoError(t, err)

	waitForStatus(t, m, jobID, types.JobRunning)

	_, err = m.GetReport(ctx, jobID)
	assert.Error(t, err)

	close(executor.release)
	waitForStatus(t, m, jobID, types.JobCompleted)
}

func TestCancelJob(t *testing.T) {
	executor := &stubExecutor{release: make(chan struct{})}
	m := newStandaloneMaster(executor, makeSeries(2))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	jobID, err := m.Submit(ctx, localSpec())
	require.NoError(t, err)

	waitForStatus(t, m, jobID, types.JobRunning)

	err = m.Cancel(ctx, jobID)
	require.NoError(t, err)

	state, err := m.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCancelled, state.Status)

	_, err = m.GetReport(ctx, jobID)
	assert.Error(t, err)
}

func TestCancelJobNotFound(t *testing.T) {
	m := newStandaloneMaster(&stubExecutor{}, makeSeries(1))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	err := m.Cancel(ctx, "non-existent")
	assert.Error(t, err)
}

func TestCancelCompletedJob(t *testing.T) {
	m := newStandaloneMaster(&stubExecutor{}, makeSeries(1))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	jobID, err := m.Submit(ctx, localSpec())
	require.NoError(t, err)
	waitForStatus(t, m, jobID, types.JobCompleted)

	err = m.Cancel(ctx, jobID)
	assert.Error(t, err)
}

func TestPauseResume(t *testing.T) {
	executor := &stubExecutor{release: make(chan struct{})}
	m := newStandaloneMaster(executor, makeSeries(2))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	jobID, err := m.Submit(ctx, localSpec())
	require.NoError(t, err)

	waitForStatus(t, m, jobID, types.JobRunning)

	err = m.Pause(ctx, jobID)
	require.NoError(t, err)

	state, err := m.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobPaused, state.Status)

	// Pausing twice fails.
	err = m.Pause(ctx, jobID)
	assert.Error(t, err)

	err = m.Resume(ctx, jobID)
	require.NoError(t, err)

	state, err = m.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobRunning, state.Status)

	// Resuming a running job fails.
	err = m.Resume(ctx, jobID)
	assert.Error(t, err)

	close(executor.release)
	waitForStatus(t, m, jobID, types.JobCompleted)
}

func TestCancelPausedJob(t *testing.T) {
	executor := &stubExecutor{release: make(chan struct{})}
	m := newStandaloneMaster(executor, makeSeries(2))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	jobID, err := m.Submit(ctx, localSpec())
	require.NoError(t, err)
	waitForStatus(t, m, jobID, types.JobRunning)

	require.NoError(t, m.Pause(ctx, jobID))

	err = m.Cancel(ctx, jobID)
	require.NoError(t, err)

	state, err := m.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCancelled, state.Status)
}

func TestListJobs(t *testing.T) {
	m := newStandaloneMaster(&stubExecutor{}, makeSeries(1))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		jobID, err := m.Submit(ctx, localSpec())
		require.NoError(t, err)
		ids = append(ids, jobID)
		time.Sleep(2 * time.Millisecond) // distinct submit times
	}

	jobs, err := m.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	// Most recently submitted first.
	assert.Equal(t, ids[2], jobs[0].ID)
	assert.Equal(t, ids[0], jobs[2].ID)
}

func TestResolverFailureFailsJob(t *testing.T) {
	registry := NewInMemoryWorkerRegistry()
	m := NewForecastMaster(DefaultConfig(), registry, NewBatchScheduler(registry), NewReportAggregator())
	m.SetResolver(failingResolver(fmt.Errorf("no such file")))

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	jobID, err := m.Submit(ctx, localSpec())
	require.NoError(t, err)

	state := waitForStatus(t, m, jobID, types.JobFailed)
	assert.Contains(t, state.Error, "no such file")
}

func TestEmptyDatasetFailsJob(t *testing.T) {
	m := newStandaloneMaster(&stubExecutor{}, nil)
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	jobID, err := m.Submit(ctx, localSpec())
	require.NoError(t, err)

	state := waitForStatus(t, m, jobID, types.JobFailed)
	assert.Contains(t, state.Error, "no series")
}

func TestNoResolverFailsJob(t *testing.T) {
	registry := NewInMemoryWorkerRegistry()
	m := NewForecastMaster(DefaultConfig(), registry, NewBatchScheduler(registry), NewReportAggregator())

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	jobID, err := m.Submit(ctx, localSpec())
	require.NoError(t, err)

	waitForStatus(t, m, jobID, types.JobFailed)
}

func TestMaxConcurrentJobs(t *testing.T) {
	executor := &stubExecutor{release: make(chan struct{})}

	registry := NewInMemoryWorkerRegistry()
	config := DefaultConfig()
	config.StandaloneMode = true
	config.MaxConcurrentJobs = 1

	m := NewForecastMaster(config, registry, NewBatchScheduler(registry), NewReportAggregator())
	m.SetExecutor(executor)
	m.SetResolver(staticResolver(makeSeries(1)))

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	jobID, err := m.Submit(ctx, localSpec())
	require.NoError(t, err)
	assert.Equal(t, 1, m.JobCount())

	_, err = m.Submit(ctx, localSpec())
	assert.Error(t, err)

	close(executor.release)
	waitForStatus(t, m, jobID, types.JobCompleted)

	// Capacity frees up once the job finishes.
	require.Eventually(t, func() bool { return m.JobCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestDistributedJobCompletes(t *testing.T) {
	series := makeSeries(10)
	m, registry := newDistributedMaster(series)
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	require.NoError(t, registry.Register(ctx, &types.WorkerInfo{ID: "worker-1", Slots: 4}))
	require.NoError(t, registry.Register(ctx, &types.WorkerInfo{ID: "worker-2", Slots: 4}))

	jobID, err := m.Submit(ctx, distributedSpec())
	require.NoError(t, err)

	// Drain the dispatch queues the way polling workers would.
	var leased []*types.TaskBatch
	require.Eventually(t, func() bool {
		for _, workerID := range []string{"worker-1", "worker-2"} {
			batches, err := m.LeaseBatches(ctx, workerID, 10)
			if err != nil {
				return false
			}
			leased = append(leased, batches...)
		}
		return len(leased) == 2
	}, 2*time.Second, 5*time.Millisecond)

	total := 0
	for _, batch := range leased {
		total += len(batch.Series)
		assert.Equal(t, jobID, batch.JobID)
	}
	assert.Equal(t, len(series), total)

	// Leasing again returns nothing.
	batches, err := m.LeaseBatches(ctx, "worker-1", 10)
	require.NoError(t, err)
	assert.Empty(t, batches)

	for _, batch := range leased {
		results := make([]types.SeriesResult, 0, len(batch.Series))
		for _, s := range batch.Series {
			results = append(results, types.SeriesResult{
				Key:            s.Key,
				ModelID:        "naive",
				SMAPEMean:      0.2,
				NaiveSMAPEMean: 0.2,
			})
		}
		err := m.SubmitBatchResult(ctx, &types.BatchResult{
			BatchID:  batch.ID,
			JobID:    batch.JobID,
			WorkerID: batch.WorkerID,
			Results:  results,
		})
		require.NoError(t, err)
	}

	state := waitForStatus(t, m, jobID, types.JobCompleted)
	assert.Equal(t, len(series), state.Progress.DoneSeries)

	report, err := m.GetReport(ctx, jobID)
	require.NoError(t, err)
	assert.Len(t, report.Results, len(series))
}

func TestSubmitBatchResultFirstWins(t *testing.T) {
	series := makeSeries(4)
	m, registry := newDistributedMaster(series)
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	require.NoError(t, registry.Register(ctx, &types.WorkerInfo{ID: "worker-1", Slots: 4}))

	jobID, err := m.Submit(ctx, distributedSpec())
	require.NoError(t, err)

	var leased []*types.TaskBatch
	require.Eventually(t, func() bool {
		batches, err := m.LeaseBatches(ctx, "worker-1", 10)
		if err != nil {
			return false
		}
		leased = append(leased, batches...)
		return len(leased) == 1
	}, 2*time.Second, 5*time.Millisecond)

	batch := leased[0]
	result := &types.BatchResult{
		BatchID:  batch.ID,
		JobID:    batch.JobID,
		WorkerID: "worker-1",
		Results: []types.SeriesResult{
			{Key: series[0].Key, ModelID: "naive"},
			{Key: series[1].Key, ModelID: "naive"},
			{Key: series[2].Key, ModelID: "naive"},
			{Key: series[3].Key, ModelID: "naive"},
		},
	}

	require.NoError(t, m.SubmitBatchResult(ctx, result))
	waitForStatus(t, m, jobID, types.JobCompleted)

	// A duplicate result is ignored, not double-counted.
	require.NoError(t, m.SubmitBatchResult(ctx, result))

	report, err := m.GetReport(ctx, jobID)
	require.NoError(t, err)
	assert.Len(t, report.Results, 4)
}

func TestSubmitBatchResultNil(t *testing.T) {
	m, _ := newDistributedMaster(makeSeries(1))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	err := m.SubmitBatchResult(ctx, nil)
	assert.Error(t, err)
}

func TestSubmitBatchResultUnknownJob(t *testing.T) {
	m, _ := newDistributedMaster(makeSeries(1))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	err := m.SubmitBatchResult(ctx, &types.BatchResult{BatchID: "b", JobID: "non-existent"})
	assert.Error(t, err)
}

func TestLeaseBatchesUnknownWorker(t *testing.T) {
	m, _ := newDistributedMaster(makeSeries(1))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	_, err := m.LeaseBatches(ctx, "non-existent", 10)
	assert.Error(t, err)
}

func TestLeaseBatchesOfflineWorker(t *testing.T) {
	m, registry := newDistributedMaster(makeSeries(1))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	require.NoError(t, registry.Register(ctx, &types.WorkerInfo{ID: "worker-1"}))
	require.NoError(t, registry.MarkOffline(ctx, "worker-1"))

	batches, err := m.LeaseBatches(ctx, "worker-1", 10)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestLeaseBatchesHeldWhilePaused(t *testing.T) {
	series := makeSeries(4)
	m, registry := newDistributedMaster(series)
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	require.NoError(t, registry.Register(ctx, &types.WorkerInfo{ID: "worker-1", Slots: 4}))

	jobID, err := m.Submit(ctx, distributedSpec())
	require.NoError(t, err)

	waitForStatus(t, m, jobID, types.JobRunning)
	require.NoError(t, m.Pause(ctx, jobID))

	// Queued batches stay put while the job is paused.
	time.Sleep(20 * time.Millisecond)
	batches, err := m.LeaseBatches(ctx, "worker-1", 10)
	require.NoError(t, err)
	assert.Empty(t, batches)

	require.NoError(t, m.Resume(ctx, jobID))

	var leased []*types.TaskBatch
	require.Eventually(t, func() bool {
		batches, err := m.LeaseBatches(ctx, "worker-1", 10)
		if err != nil {
			return false
		}
		leased = append(leased, batches...)
		return len(leased) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, leased[0].Series, len(series))
}

func TestSinkNotifications(t *testing.T) {
	sink := &recordingSink{}
	m := newStandaloneMaster(&stubExecutor{}, makeSeries(2))
	m.SetSink(sink)

	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	jobID, err := m.Submit(ctx, localSpec())
	require.NoError(t, err)
	waitForStatus(t, m, jobID, types.JobCompleted)

	require.Eventually(t, func() bool { return sink.finishedCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()

	require.NotEmpty(t, sink.updates)
	assert.Equal(t, types.JobPending, sink.updates[0])
	assert.Equal(t, types.JobCompleted, sink.updates[len(sink.updates)-1])
	assert.Len(t, sink.finished[0].Results, 2)
}

func TestMultiSinkFanOut(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{}
	sinks := MultiSink{first, second}

	state := &types.JobState{ID: "job-1", Status: types.JobRunning}
	sinks.JobUpdated(state)

	report := &types.JobReport{JobID: "job-1"}
	sinks.JobFinished(report)

	assert.Len(t, first.updates, 1)
	assert.Len(t, second.updates, 1)
	assert.Equal(t, 1, first.finishedCount())
	assert.Equal(t, 1, second.finishedCount())
}

func TestGetWorkers(t *testing.T) {
	m, registry := newDistributedMaster(makeSeries(1))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))
	defer m.Stop(ctx)

	require.NoError(t, registry.Register(ctx, &types.WorkerInfo{ID: "worker-1"}))
	require.NoError(t, registry.Register(ctx, &types.WorkerInfo{ID: "worker-2"}))

	workers, err := m.GetWorkers(ctx)
	require.NoError(t, err)
	assert.Len(t, workers, 2)
}

func TestStopSignalsRunningJobs(t *testing.T) {
	executor := &stubExecutor{release: make(chan struct{})}
	m := newStandaloneMaster(executor, makeSeries(2))
	ctx := context.Background()
	require.NoError(t, m.Start(ctx))

	jobID, err := m.Submit(ctx, localSpec())
	require.NoError(t, err)
	waitForStatus(t, m, jobID, types.JobRunning)

	require.NoError(t, m.Stop(ctx))

	// The blocked executor observes the cancellation.
	state := waitForStatus(t, m, jobID, types.JobCancelled)
	assert.Equal(t, types.JobCancelled, state.Status)
}

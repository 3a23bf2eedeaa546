package master

import (
	"context"

	"sfs/forecast-engine/pkg/types"
)

// WorkerRegistry manages worker registration and status.
type WorkerRegistry interface {
	// Register registers a new worker.
	Register(ctx context.Context, worker *types.WorkerInfo) error

	// Unregister removes a worker.
	Unregister(ctx context.Context, workerID string) error

	// UpdateHeartbeat refreshes a worker's last-seen time and load
	// metrics, reviving offline workers.
	UpdateHeartbeat(ctx context.Context, workerID string, metrics *types.WorkerMetrics) error

	// GetWorker returns a single worker's registration.
	GetWorker(ctx context.Context, workerID string) (*types.WorkerInfo, error)

	// GetWorkerStatus returns a worker's current status.
	GetWorkerStatus(ctx context.Context, workerID string) (*types.WorkerStatus, error)

	// ListWorkers lists workers matching the filter.
	ListWorkers(ctx context.Context, filter *WorkerFilter) ([]*types.WorkerInfo, error)

	// GetOnlineWorkers returns all online workers.
	GetOnlineWorkers(ctx context.Context) ([]*types.WorkerInfo, error)

	// WatchWorkers subscribes to worker lifecycle events until the
	// context is done.
	WatchWorkers(ctx context.Context) (<-chan *types.WorkerEvent, error)

	// MarkOffline marks a worker offline.
	MarkOffline(ctx context.Context, workerID string) error

	// Drain stops leasing new batches to a worker.
	Drain(ctx context.Context, workerID string) error
}

// WorkerFilter selects workers by state and labels.
type WorkerFilter struct {
	States []types.WorkerState
	Labels map[string]string
}

// Scheduler partitions a job's series into task batches across
// workers.
type Scheduler interface {
	// Plan splits the series into one batch per worker, proportional
	// to the worker count.
	Plan(ctx context.Context, jobID string, spec *types.JobSpec, series []*types.Series, workers []*types.WorkerInfo) ([]*types.TaskBatch, error)

	// Reschedule reassigns a failed worker's batches across the
	// surviving workers.
	Reschedule(ctx context.Context, failedWorkerID string, batches []*types.TaskBatch) ([]*types.TaskBatch, error)

	// SelectWorkers picks up to max workers for a job, least loaded
	// first.
	SelectWorkers(ctx context.Context, labels map[string]string, max int) ([]*types.WorkerInfo, error)
}

// Aggregator merges batch results into the final job report.
type Aggregator interface {
	// Merge folds a batch result into the accumulated series results.
	Merge(results []types.SeriesResult, batch *types.BatchResult) []types.SeriesResult

	// BuildReport assembles the job report from the merged results.
	BuildReport(job *types.JobState, results []types.SeriesResult, health *types.HealthSummary, class *types.Classification) *types.JobReport
}

// BatchExecutor runs one task batch to completion. The local backend
// implements this with an in-process worker pool.
type BatchExecutor interface {
	ExecuteBatch(ctx context.Context, batch *types.TaskBatch, progress func(done, failed int)) (*types.BatchResult, error)
}

// ResolvedDataset is the prepared input of a job: gap-free series at
// the forecast frequency plus the health and classification summaries
// computed on the raw input.
type ResolvedDataset struct {
	Series []*types.Series
	Health *types.HealthSummary
	Class  *types.Classification
}

// DatasetResolver loads and prepares the dataset a job spec
// references.
type DatasetResolver interface {
	Resolve(ctx context.Context, spec *types.JobSpec) (*ResolvedDataset, error)
}

// ResolverFunc adapts a function to the DatasetResolver interface.
type ResolverFunc func(ctx context.Context, spec *types.JobSpec) (*ResolvedDataset, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, spec *types.JobSpec) (*ResolvedDataset, error) {
	return f(ctx, spec)
}

// JobSink receives job lifecycle notifications, for persistence.
type JobSink interface {
	// JobUpdated is called when a job's observable state changes.
	JobUpdated(state *types.JobState)

	// JobFinished is called once with the final report of a completed
	// job. Failed and cancelled jobs only get JobUpdated.
	JobFinished(report *types.JobReport)
}

// MultiSink fans notifications out to several sinks.
type MultiSink []JobSink

// JobUpdated forwards the state change to every sink.
func (m MultiSink) JobUpdated(state *types.JobState) {
	for _, sink := range m {
		sink.JobUpdated(state)
	}
}

// JobFinished forwards the report to every sink.
func (m MultiSink) JobFinished(report *types.JobReport) {
	for _, sink := range m {
		sink.JobFinished(report)
	}
}

package master

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"sfs/forecast-engine/pkg/types"
)

// BatchScheduler implements the Scheduler interface. It partitions a
// job's series into contiguous batches, one per selected worker.
type BatchScheduler struct {
	registry WorkerRegistry
}

// NewBatchScheduler creates a new batch scheduler.
func NewBatchScheduler(registry WorkerRegistry) *BatchScheduler {
	return &BatchScheduler{
		registry: registry,
	}
}

// Plan splits the series across workers. Batch sizes differ by at most
// one series; the remainder goes to the first batches. Workers beyond
// the series count get no batch.
func (s *BatchScheduler) Plan(ctx context.Context, jobID string, spec *types.JobSpec, series []*types.Series, workers []*types.WorkerInfo) ([]*types.TaskBatch, error) {
	if spec == nil {
		return nil, fmt.Errorf("job spec cannot be nil")
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("no series to schedule")
	}
	if len(workers) == 0 {
		return nil, fmt.Errorf("no workers available for scheduling")
	}

	numBatches := len(workers)
	if numBatches > len(series) {
		numBatches = len(series)
	}

	counts := splitCounts(len(series), numBatches)

	batches := make([]*types.TaskBatch, 0, numBatches)
	offset := 0
	for i := 0; i < numBatches; i++ {
		chunk := series[offset : offset+counts[i]]
		offset += counts[i]

		batches = append(batches, &types.TaskBatch{
			ID:        uuid.New().String(),
			JobID:     jobID,
			Index:     i,
			WorkerID:  workers[i].ID,
			Series:    chunk,
			Horizon:   spec.Horizon,
			Freq:      spec.FreqOut,
			ObjMetric: spec.ObjMetric,
			CVStride:  spec.CVStride,
		})
	}

	return batches, nil
}

// splitCounts distributes total items across n parts. The first
// total%n parts receive one extra item.
func splitCounts(total, n int) []int {
	base := total / n
	remainder := total % n

	counts := make([]int, n)
	for i := range counts {
		counts[i] = base
		if i < remainder {
			counts[i]++
		}
	}
	return counts
}

// Reschedule reassigns the failed worker's batches to the workers that
// still hold batches of the same job. Batch identity is preserved;
// only the worker assignment changes.
func (s *BatchScheduler) Reschedule(ctx context.Context, failedWorkerID string, batches []*types.TaskBatch) ([]*types.TaskBatch, error) {
	if len(batches) == 0 {
		return batches, nil
	}

	failed := make([]*types.TaskBatch, 0)
	remaining := make([]*types.TaskBatch, 0, len(batches))
	survivorSet := make(map[string]struct{})

	for _, batch := range batches {
		if batch.WorkerID == failedWorkerID {
			failed = append(failed, batch)
		} else {
			remaining = append(remaining, batch)
			survivorSet[batch.WorkerID] = struct{}{}
		}
	}

	if len(failed) == 0 {
		return batches, nil // no change needed
	}
	if len(survivorSet) == 0 {
		return nil, fmt.Errorf("no remaining workers to reschedule work")
	}

	survivors := make([]string, 0, len(survivorSet))
	for id := range survivorSet {
		survivors = append(survivors, id)
	}
	sort.Strings(survivors)

	// Round-robin the orphaned batches across the survivors.
	for i, batch := range failed {
		batch.WorkerID = survivors[i%len(survivors)]
	}

	return append(remaining, failed...), nil
}

// SelectWorkers picks up to max online workers, least loaded first.
// When labels are given only matching workers are considered.
func (s *BatchScheduler) SelectWorkers(ctx context.Context, labels map[string]string, max int) ([]*types.WorkerInfo, error) {
	filter := &WorkerFilter{
		States: []types.WorkerState{types.WorkerOnline},
		Labels: labels,
	}

	workers, err := s.registry.ListWorkers(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	if len(workers) == 0 {
		if len(labels) > 0 {
			return nil, fmt.Errorf("no workers found matching labels: %v", labels)
		}
		return nil, fmt.Errorf("no online workers available")
	}

	type loadedWorker struct {
		info *types.WorkerInfo
		load float64
	}

	loaded := make([]loadedWorker, 0, len(workers))
	for _, worker := range workers {
		entry := loadedWorker{info: worker}
		if status, err := s.registry.GetWorkerStatus(ctx, worker.ID); err == nil {
			entry.load = status.Load
		}
		loaded = append(loaded, entry)
	}

	sort.SliceStable(loaded, func(i, j int) bool {
		if loaded[i].load != loaded[j].load {
			return loaded[i].load < loaded[j].load
		}
		return loaded[i].info.ID < loaded[j].info.ID
	})

	if max > 0 && len(loaded) > max {
		loaded = loaded[:max]
	}

	selected := make([]*types.WorkerInfo, len(loaded))
	for i, entry := range loaded {
		selected[i] = entry.info
	}
	return selected, nil
}

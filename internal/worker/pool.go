// Package worker provides the forecast execution runtime: an
// in-process pool that runs model selection for batches of series, and
// the node runtime that leases batches from a remote master.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"sfs/forecast-engine/internal/forecaster"
	"sfs/forecast-engine/pkg/logger"
	"sfs/forecast-engine/pkg/output"
	"sfs/forecast-engine/pkg/types"
)

// ForecastPool executes task batches with a fixed number of
// goroutines. Each goroutine pulls series off a shared queue and runs
// cross-validated model selection.
type ForecastPool struct {
	size    int
	emitter *output.SampleEmitter

	// Pool-lifetime counters, reported in worker heartbeats.
	active atomic.Int32
	done   atomic.Int64
	failed atomic.Int64

	stopped atomic.Bool
}

// NewForecastPool creates a pool with the given concurrency. Sizes
// below 1 are clamped to 1.
func NewForecastPool(size int) *ForecastPool {
	if size < 1 {
		size = 1
	}
	return &ForecastPool{size: size}
}

// SetEmitter wires per-series and per-batch metric emission.
func (p *ForecastPool) SetEmitter(emitter *output.SampleEmitter) {
	p.emitter = emitter
}

// Size returns the pool concurrency.
func (p *ForecastPool) Size() int { return p.size }

// ActiveSeries returns the number of series currently executing.
func (p *ForecastPool) ActiveSeries() int { return int(p.active.Load()) }

// DoneSeries returns the number of series completed over the pool
// lifetime.
func (p *ForecastPool) DoneSeries() int64 { return p.done.Load() }

// FailedSeries returns the number of failed series over the pool
// lifetime.
func (p *ForecastPool) FailedSeries() int64 { return p.failed.Load() }

// Stop prevents new batches from starting. In-flight batches finish
// the series already dequeued and return early.
func (p *ForecastPool) Stop() {
	p.stopped.Store(true)
}

// ExecuteBatch runs every series of the batch through model selection
// and returns the collected results. The progress callback, when set,
// is invoked after each series with monotone counters.
func (p *ForecastPool) ExecuteBatch(ctx context.Context, batch *types.TaskBatch, progress func(done, failed int)) (*types.BatchResult, error) {
	if batch == nil {
		return nil, fmt.Errorf("batch cannot be nil")
	}
	if p.stopped.Load() {
		return nil, fmt.Errorf("pool stopped")
	}

	start := time.Now()
	total := len(batch.Series)

	result := &types.BatchResult{
		BatchID:  batch.ID,
		JobID:    batch.JobID,
		WorkerID: batch.WorkerID,
		Results:  make([]types.SeriesResult, total),
	}
	if total == 0 {
		return result, nil
	}

	opts := forecaster.Options{
		Horizon:   batch.Horizon,
		Freq:      batch.Freq,
		ObjMetric: batch.ObjMetric,
		Stride:    batch.CVStride,
	}

	type workItem struct {
		idx    int
		series *types.Series
	}

	workChan := make(chan workItem, total)
	for i, s := range batch.Series {
		workChan <- workItem{idx: i, series: s}
	}
	close(workChan)

	workers := p.size
	if workers > total {
		workers = total
	}

	// progressMu keeps the done counter and its callback atomic so
	// observers never see the counter go backwards.
	var progressMu sync.Mutex
	var doneCount, failedCount int

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workChan {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if p.stopped.Load() {
					return
				}

				res := p.runSeries(item.series, opts)
				result.Results[item.idx] = *res

				p.done.Add(1)
				if res.Failed() {
					p.failed.Add(1)
				}

				progressMu.Lock()
				doneCount++
				if res.Failed() {
					failedCount++
				}
				if progress != nil {
					progress(doneCount, failedCount)
				}
				progressMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.stopped.Load() && doneCount < total {
		return nil, fmt.Errorf("pool stopped")
	}

	result.Elapsed = time.Since(start)

	if p.emitter != nil {
		p.emitter.EmitBatchMetrics(batch.ID, batch.WorkerID, total, result.Elapsed)
	}

	return result, nil
}

// runSeries runs model selection for one series. Panics are converted
// into a failed result so one bad series never takes down the batch.
func (p *ForecastPool) runSeries(s *types.Series, opts forecaster.Options) (result *types.SeriesResult) {
	p.active.Add(1)
	defer p.active.Add(-1)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("series forecast panicked",
				zap.String("series", s.Key.String()),
				zap.Any("panic", r))
			result = &types.SeriesResult{
				Key: s.Key,
				Err: fmt.Sprintf("panic: %v", r),
			}
			if p.emitter != nil {
				p.emitter.EmitSeriesMetrics(s.Key, "", 0, time.Since(start), true)
			}
		}
	}()

	res, err := forecaster.CVSelect(s, opts)
	duration := time.Since(start)
	if err != nil {
		logger.Debug("series forecast failed",
			zap.String("series", s.Key.String()),
			zap.Error(err))
		res = &types.SeriesResult{Key: s.Key, Err: err.Error()}
	}

	if p.emitter != nil {
		p.emitter.EmitSeriesMetrics(res.Key, res.ModelID, res.SMAPEMean, duration, res.Failed())
	}

	return res
}

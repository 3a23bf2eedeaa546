package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sfs/forecast-engine/api/rest"
	"sfs/forecast-engine/api/rest/client"
	"sfs/forecast-engine/pkg/logger"
	"sfs/forecast-engine/pkg/types"
)

// Config holds the configuration for a worker node.
type Config struct {
	// ID is the unique identifier of this worker. Generated when empty;
	// the master may assign a different one at registration.
	ID string

	// MasterURL is the base URL of the master's REST API.
	MasterURL string

	// APIKey authenticates requests when the master requires it.
	APIKey string

	// Slots is the number of series forecast concurrently.
	Slots int

	// Labels are key/value tags used for worker selection.
	Labels map[string]string

	// Version is reported at registration.
	Version string

	// HeartbeatInterval is how often liveness is reported. The master's
	// registration response overrides it.
	HeartbeatInterval time.Duration

	// PollInterval is how often the worker asks for batches when idle.
	PollInterval time.Duration

	// LeaseMax is the number of batches requested per lease.
	LeaseMax int

	// RegisterRetries and RegisterBackoff bound the registration loop.
	RegisterRetries int
	RegisterBackoff time.Duration
}

// DefaultConfig returns a default worker configuration.
func DefaultConfig() *Config {
	return &Config{
		Slots:             runtime.NumCPU(),
		HeartbeatInterval: 5 * time.Second,
		PollInterval:      time.Second,
		LeaseMax:          1,
		RegisterRetries:   5,
		RegisterBackoff:   2 * time.Second,
	}
}

// Worker is a forecast worker node. It registers with a master, leases
// task batches over REST, executes them in a local pool, and posts the
// results back.
type Worker struct {
	config *Config
	client *client.Client
	pool   *ForecastPool

	state         atomic.Value // types.WorkerState
	draining      atomic.Bool
	activeBatches atomic.Int32

	loopCtx    context.Context
	loopCancel context.CancelFunc
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    chan struct{}
}

// New creates a worker from the configuration.
func New(config *Config) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ID == "" {
		config.ID = uuid.New().String()
	}
	if config.Slots <= 0 {
		config.Slots = runtime.NumCPU()
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 5 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.LeaseMax <= 0 {
		config.LeaseMax = 1
	}
	if config.RegisterRetries <= 0 {
		config.RegisterRetries = 5
	}
	if config.RegisterBackoff <= 0 {
		config.RegisterBackoff = 2 * time.Second
	}

	w := &Worker{
		config:  config,
		client:  client.New(config.MasterURL, client.WithAPIKey(config.APIKey)),
		pool:    NewForecastPool(config.Slots),
		stopped: make(chan struct{}),
	}
	w.state.Store(types.WorkerOffline)
	return w
}

// ID returns the worker's identifier.
func (w *Worker) ID() string { return w.config.ID }

// Pool returns the underlying forecast pool.
func (w *Worker) Pool() *ForecastPool { return w.pool }

// State returns the worker's lifecycle state.
func (w *Worker) State() types.WorkerState {
	state, _ := w.state.Load().(types.WorkerState)
	return state
}

// Stopped is closed once the worker has fully shut down.
func (w *Worker) Stopped() <-chan struct{} { return w.stopped }

// Start registers with the master and begins the heartbeat and task
// polling loops.
func (w *Worker) Start(ctx context.Context) error {
	if w.config.MasterURL == "" {
		return fmt.Errorf("master URL is required")
	}

	resp, err := w.register(ctx)
	if err != nil {
		return err
	}
	if resp.AssignedID != "" {
		w.config.ID = resp.AssignedID
	}
	if resp.HeartbeatIntervalMS > 0 {
		w.config.HeartbeatInterval = time.Duration(resp.HeartbeatIntervalMS) * time.Millisecond
	}

	w.state.Store(types.WorkerOnline)
	w.loopCtx, w.loopCancel = context.WithCancel(context.Background())

	w.wg.Add(2)
	go w.heartbeatLoop()
	go w.pollLoop()

	logger.Info("worker started",
		zap.String("worker_id", w.config.ID),
		zap.String("master", w.config.MasterURL),
		zap.Int("slots", w.config.Slots))
	return nil
}

// register announces the worker, retrying with backoff.
func (w *Worker) register(ctx context.Context) (*rest.WorkerRegisterResponse, error) {
	req := &rest.WorkerRegisterRequest{
		WorkerID: w.config.ID,
		Slots:    w.config.Slots,
		Labels:   w.config.Labels,
		Version:  w.config.Version,
	}

	var lastErr error
	for attempt := 1; attempt <= w.config.RegisterRetries; attempt++ {
		resp, err := w.client.Register(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		logger.Warn("worker registration failed",
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.config.RegisterBackoff):
		}
	}
	return nil, fmt.Errorf("registering with master: %w", lastErr)
}

// Stop drains in-flight batches, unregisters, and shuts the worker
// down. The context bounds how long the drain may take.
func (w *Worker) Stop(ctx context.Context) error {
	var err error
	w.stopOnce.Do(func() {
		w.draining.Store(true)
		w.state.Store(types.WorkerDraining)

		// Let in-flight batches finish.
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
	drain:
		for w.activeBatches.Load() > 0 {
			select {
			case <-ctx.Done():
				break drain
			case <-ticker.C:
			}
		}

		if w.loopCancel != nil {
			w.loopCancel()
		}
		w.pool.Stop()

		unregCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if uerr := w.client.Unregister(unregCtx, w.config.ID, "shutdown"); uerr != nil {
			logger.Warn("worker unregister failed", zap.Error(uerr))
		}

		w.wg.Wait()
		w.state.Store(types.WorkerOffline)
		close(w.stopped)

		logger.Info("worker stopped", zap.String("worker_id", w.config.ID))
	})
	return err
}

// heartbeatLoop reports liveness and load until the worker stops.
func (w *Worker) heartbeatLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.loopCtx.Done():
			return
		case <-ticker.C:
			w.sendHeartbeat()
		}
	}
}

// sendHeartbeat posts one heartbeat and applies returned commands.
func (w *Worker) sendHeartbeat() {
	ctx, cancel := context.WithTimeout(w.loopCtx, w.config.HeartbeatInterval)
	defer cancel()

	resp, err := w.client.Heartbeat(ctx, w.config.ID, &rest.WorkerHeartbeatRequest{
		WorkerID:  w.config.ID,
		Metrics:   w.metrics(),
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		logger.Warn("heartbeat failed", zap.Error(err))
		return
	}

	for _, cmd := range resp.Commands {
		w.handleCommand(cmd)
	}
}

// handleCommand applies a control command from the master.
func (w *Worker) handleCommand(cmd *rest.ControlCommand) {
	switch cmd.Type {
	case rest.CommandDrain:
		logger.Info("drain requested by master", zap.String("worker_id", w.config.ID))
		w.draining.Store(true)
		w.state.Store(types.WorkerDraining)
	case rest.CommandStop:
		logger.Info("stop requested by master", zap.String("worker_id", w.config.ID))
		go w.Stop(context.Background())
	default:
		logger.Warn("unknown control command", zap.String("type", cmd.Type))
	}
}

// metrics snapshots the pool for the heartbeat. Load is approximated
// by slot utilization; the pool is CPU bound.
func (w *Worker) metrics() *types.WorkerMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	active := w.pool.ActiveSeries()
	return &types.WorkerMetrics{
		CPUUsage:     float64(active) / float64(w.config.Slots) * 100,
		MemoryUsage:  float64(mem.HeapAlloc) / (1 << 20),
		ActiveSeries: active,
		DoneSeries:   w.pool.DoneSeries(),
		FailedSeries: w.pool.FailedSeries(),
	}
}

// pollLoop leases and executes batches until the worker stops.
func (w *Worker) pollLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.loopCtx.Done():
			return
		case <-ticker.C:
			if w.draining.Load() || w.activeBatches.Load() > 0 {
				continue
			}
			w.leaseAndRun()
		}
	}
}

// leaseAndRun fetches up to LeaseMax batches and executes them in
// order.
func (w *Worker) leaseAndRun() {
	ctx, cancel := context.WithTimeout(w.loopCtx, 10*time.Second)
	batches, err := w.client.LeaseBatches(ctx, w.config.ID, w.config.LeaseMax)
	cancel()
	if err != nil {
		logger.Debug("batch lease failed", zap.Error(err))
		return
	}

	for _, batch := range batches {
		select {
		case <-w.loopCtx.Done():
			return
		default:
		}
		w.runBatch(batch)
	}
}

// runBatch executes one batch and posts the result back.
func (w *Worker) runBatch(batch *types.TaskBatch) {
	w.activeBatches.Add(1)
	defer w.activeBatches.Add(-1)

	logger.Info("executing batch",
		zap.String("job_id", batch.JobID),
		zap.String("batch_id", batch.ID),
		zap.Int("series", len(batch.Series)))

	result, err := w.pool.ExecuteBatch(w.loopCtx, batch, nil)
	if err != nil {
		// Report every series as failed so the job still completes.
		logger.Error("batch execution failed",
			zap.String("batch_id", batch.ID),
			zap.Error(err))
		result = &types.BatchResult{
			BatchID:  batch.ID,
			JobID:    batch.JobID,
			WorkerID: w.config.ID,
			Results:  make([]types.SeriesResult, len(batch.Series)),
		}
		for i, s := range batch.Series {
			result.Results[i] = types.SeriesResult{Key: s.Key, Err: err.Error()}
		}
	}
	result.WorkerID = w.config.ID

	w.submitResult(result)
}

// submitResult posts a batch result, retrying transient failures.
func (w *Worker) submitResult(result *types.BatchResult) {
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := w.client.SubmitResult(ctx, result)
		cancel()
		if err == nil {
			logger.Info("batch result submitted",
				zap.String("batch_id", result.BatchID),
				zap.Int("results", len(result.Results)))
			return
		}

		logger.Warn("batch result submission failed",
			zap.String("batch_id", result.BatchID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-w.loopCtx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

package worker

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfs/forecast-engine/api/rest"
	"sfs/forecast-engine/internal/master"
	"sfs/forecast-engine/pkg/types"
)

// stubMaster queues batches for lease and records submitted results.
// The job-facing methods are never reached by a worker.
type stubMaster struct {
	mu      sync.Mutex
	batches []*types.TaskBatch
	results []*types.BatchResult
}

func (m *stubMaster) seed(batch *types.TaskBatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, batch)
}

func (m *stubMaster) queued() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func (m *stubMaster) takeResults() []*types.BatchResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*types.BatchResult(nil), m.results...)
}

func (m *stubMaster) Start(ctx context.Context) error { return nil }
func (m *stubMaster) Stop(ctx context.Context) error  { return nil }

func (m *stubMaster) Submit(ctx context.Context, spec *types.JobSpec) (string, error) {
	return "", fmt.Errorf("not supported")
}

func (m *stubMaster) GetJob(ctx context.Context, jobID string) (*types.JobState, error) {
	return nil, fmt.Errorf("not supported")
}

func (m *stubMaster) ListJobs(ctx context.Context) ([]*types.JobState, error) {
	return nil, nil
}

func (m *stubMaster) GetReport(ctx context.Context, jobID string) (*types.JobReport, error) {
	return nil, fmt.Errorf("not supported")
}

func (m *stubMaster) Cancel(ctx context.Context, jobID string) error { return nil }
func (m *stubMaster) Pause(ctx context.Context, jobID string) error  { return nil }
func (m *stubMaster) Resume(ctx context.Context, jobID string) error { return nil }

func (m *stubMaster) GetWorkers(ctx context.Context) ([]*types.WorkerInfo, error) {
	return nil, nil
}

func (m *stubMaster) LeaseBatches(ctx context.Context, workerID string, max int) ([]*types.TaskBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := max
	if n > len(m.batches) {
		n = len(m.batches)
	}
	leased := m.batches[:n]
	m.batches = m.batches[n:]
	for _, b := range leased {
		b.WorkerID = workerID
	}
	return leased, nil
}

func (m *stubMaster) SubmitBatchResult(ctx context.Context, result *types.BatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
	return nil
}

// countingRegistry counts heartbeats so tests can observe them without
// poking at shared status structs.
type countingRegistry struct {
	*master.InMemoryWorkerRegistry
	heartbeats atomic.Int64
}

func (r *countingRegistry) UpdateHeartbeat(ctx context.Context, workerID string, metrics *types.WorkerMetrics) error {
	r.heartbeats.Add(1)
	return r.InMemoryWorkerRegistry.UpdateHeartbeat(ctx, workerID, metrics)
}

// startTestMaster serves the REST API on a loopback port with a short
// heartbeat interval and returns its base URL.
func startTestMaster(t *testing.T, m *stubMaster, registry *countingRegistry) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	config := rest.DefaultConfig()
	config.HeartbeatInterval = 50 * time.Millisecond
	config.DataDir = t.TempDir()

	server := rest.NewServer(m, registry, config)
	go func() { _ = server.App().Listener(ln) }()
	t.Cleanup(func() { _ = server.ShutdownWithTimeout(time.Second) })

	return "http://" + ln.Addr().String()
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, runtime.NumCPU(), config.Slots)
	assert.Equal(t, 5*time.Second, config.HeartbeatInterval)
	assert.Equal(t, time.Second, config.PollInterval)
	assert.Equal(t, 1, config.LeaseMax)
	assert.Equal(t, 5, config.RegisterRetries)
	assert.Equal(t, 2*time.Second, config.RegisterBackoff)
}

func TestNewWorker(t *testing.T) {
	w := New(nil)

	assert.NotEmpty(t, w.ID())
	assert.Equal(t, types.WorkerOffline, w.State())
	require.NotNil(t, w.Pool())
	assert.Equal(t, runtime.NumCPU(), w.Pool().Size())
}

func TestNewWorkerAppliesDefaults(t *testing.T) {
	config := &Config{MasterURL: "http://localhost:8066"}
	w := New(config)

	assert.NotEmpty(t, config.ID)
	assert.Equal(t, config.ID, w.ID())
	assert.Equal(t, runtime.NumCPU(), config.Slots)
	assert.Equal(t, 5*time.Second, config.HeartbeatInterval)
	assert.Equal(t, time.Second, config.PollInterval)
	assert.Equal(t, 1, config.LeaseMax)
	assert.Equal(t, 5, config.RegisterRetries)
	assert.Equal(t, 2*time.Second, config.RegisterBackoff)
}

func TestNewWorkerKeepsExplicitConfig(t *testing.T) {
	config := &Config{
		ID:                "w-1",
		MasterURL:         "http://localhost:8066",
		Slots:             3,
		HeartbeatInterval: 10 * time.Second,
		PollInterval:      2 * time.Second,
		LeaseMax:          4,
		RegisterRetries:   1,
		RegisterBackoff:   time.Second,
	}
	w := New(config)

	assert.Equal(t, "w-1", w.ID())
	assert.Equal(t, 3, config.Slots)
	assert.Equal(t, 3, w.Pool().Size())
	assert.Equal(t, 10*time.Second, config.HeartbeatInterval)
	assert.Equal(t, 2*time.Second, config.PollInterval)
	assert.Equal(t, 4, config.LeaseMax)
	assert.Equal(t, 1, config.RegisterRetries)
}

func TestStartRequiresMasterURL(t *testing.T) {
	w := New(&Config{ID: "w-1"})

	err := w.Start(context.Background())
	assert.EqualError(t, err, "master URL is required")
}

func TestStartUnreachableMaster(t *testing.T) {
	// Grab a free port and close it again so the connect is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	w := New(&Config{
		ID:              "w-unreachable",
		MasterURL:       "http://" + addr,
		Slots:           1,
		RegisterRetries: 2,
		RegisterBackoff: 10 * time.Millisecond,
	})

	err = w.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registering with master")
	assert.Equal(t, types.WorkerOffline, w.State())
}

func TestWorkerLifecycle(t *testing.T) {
	m := &stubMaster{}
	registry := &countingRegistry{InMemoryWorkerRegistry: master.NewInMemoryWorkerRegistry()}
	masterURL := startTestMaster(t, m, registry)

	m.seed(&types.TaskBatch{
		ID:    "batch-1",
		JobID: "job-1",
		Series: []*types.Series{
			poolSeries("item-001", 20),
			poolSeries("item-002", 20),
		},
		Horizon:  4,
		Freq:     types.FreqDaily,
		CVStride: 2,
	})

	w := New(&Config{
		ID:              "w-lifecycle",
		MasterURL:       masterURL,
		Slots:           2,
		Labels:          map[string]string{"zone": "test"},
		Version:         "test",
		PollInterval:    20 * time.Millisecond,
		LeaseMax:        2,
		RegisterRetries: 3,
		RegisterBackoff: 50 * time.Millisecond,
	})

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))

	assert.Equal(t, "w-lifecycle", w.ID())
	assert.Equal(t, types.WorkerOnline, w.State())

	info, err := registry.GetWorker(ctx, "w-lifecycle")
	require.NoError(t, err)
	assert.Equal(t, 2, info.Slots)
	assert.Equal(t, "test", info.Labels["zone"])
	assert.Equal(t, "test", info.Version)

	require.Eventually(t, func() bool {
		return len(m.takeResults()) == 1
	}, 5*time.Second, 20*time.Millisecond, "batch result never submitted")

	result := m.takeResults()[0]
	assert.Equal(t, "batch-1", result.BatchID)
	assert.Equal(t, "job-1", result.JobID)
	assert.Equal(t, "w-lifecycle", result.WorkerID)
	require.Len(t, result.Results, 2)
	for _, res := range result.Results {
		assert.False(t, res.Failed())
		assert.NotEmpty(t, res.ModelID)
	}
	assert.Equal(t, int64(2), w.Pool().DoneSeries())

	require.Eventually(t, func() bool {
		return registry.heartbeats.Load() >= 2
	}, 5*time.Second, 20*time.Millisecond, "heartbeats never arrived")

	require.NoError(t, w.Stop(ctx))
	assert.Equal(t, types.WorkerOffline, w.State())

	select {
	case <-w.Stopped():
	default:
		t.Fatal("stopped channel not closed")
	}

	_, err = registry.GetWorker(ctx, "w-lifecycle")
	assert.Error(t, err, "worker should be unregistered")

	// Stop is idempotent.
	require.NoError(t, w.Stop(ctx))
}

func TestWorkerDrainCommand(t *testing.T) {
	m := &stubMaster{}
	registry := &countingRegistry{InMemoryWorkerRegistry: master.NewInMemoryWorkerRegistry()}
	masterURL := startTestMaster(t, m, registry)

	w := New(&Config{
		ID:              "w-drain",
		MasterURL:       masterURL,
		Slots:           1,
		PollInterval:    20 * time.Millisecond,
		RegisterRetries: 3,
		RegisterBackoff: 50 * time.Millisecond,
	})

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))

	resp, err := http.Post(masterURL+"/api/v1/workers/w-drain/drain", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The drain command rides back on the next heartbeat.
	require.Eventually(t, func() bool {
		return w.State() == types.WorkerDraining
	}, 5*time.Second, 10*time.Millisecond, "worker never started draining")

	// A draining worker leases nothing.
	m.seed(&types.TaskBatch{
		ID:      "batch-1",
		JobID:   "job-1",
		Series:  []*types.Series{poolSeries("item-001", 20)},
		Horizon: 4,
		Freq:    types.FreqDaily,
	})
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, m.queued())
	assert.Empty(t, m.takeResults())

	require.NoError(t, w.Stop(ctx))
}

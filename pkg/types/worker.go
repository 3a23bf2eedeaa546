package types

import "time"

// WorkerState is the lifecycle state of a worker node.
type WorkerState string

const (
	// WorkerOnline means the worker is accepting task batches.
	WorkerOnline WorkerState = "online"
	// WorkerOffline means heartbeats have stopped.
	WorkerOffline WorkerState = "offline"
	// WorkerDraining means the worker finishes current batches but leases
	// no new ones.
	WorkerDraining WorkerState = "draining"
)

// WorkerInfo contains worker registration information.
type WorkerInfo struct {
	ID       string            `json:"id"`
	Address  string            `json:"address,omitempty"`
	Slots    int               `json:"slots"` // concurrent series capacity
	Labels   map[string]string `json:"labels,omitempty"`
	Version  string            `json:"version,omitempty"`
	JoinTime time.Time         `json:"join_time"`
}

// WorkerMetrics is the load snapshot reported with each heartbeat.
type WorkerMetrics struct {
	CPUUsage     float64 `json:"cpu_usage"`
	MemoryUsage  float64 `json:"memory_usage"`
	ActiveSeries int     `json:"active_series"`
	DoneSeries   int64   `json:"done_series"`
	FailedSeries int64   `json:"failed_series"`
}

// WorkerStatus is the registry's view of a worker.
type WorkerStatus struct {
	State         WorkerState    `json:"state"`
	Load          float64        `json:"load"`
	ActiveBatches int            `json:"active_batches"`
	LastSeen      time.Time      `json:"last_seen"`
	Metrics       *WorkerMetrics `json:"metrics,omitempty"`
}

// WorkerEventType identifies a worker lifecycle event.
type WorkerEventType string

const (
	// WorkerEventRegistered fires on registration.
	WorkerEventRegistered WorkerEventType = "registered"
	// WorkerEventUnregistered fires on unregistration.
	WorkerEventUnregistered WorkerEventType = "unregistered"
	// WorkerEventOnline fires when a worker comes back online.
	WorkerEventOnline WorkerEventType = "online"
	// WorkerEventOffline fires when heartbeats lapse.
	WorkerEventOffline WorkerEventType = "offline"
	// WorkerEventUpdated fires on other state changes.
	WorkerEventUpdated WorkerEventType = "updated"
)

// WorkerEvent is a worker lifecycle notification.
type WorkerEvent struct {
	Type     WorkerEventType `json:"type"`
	WorkerID string          `json:"worker_id"`
	Worker   *WorkerInfo     `json:"worker,omitempty"`
}

// TaskBatch is the unit of distribution: a slice of a job's series assigned
// to one worker.
type TaskBatch struct {
	ID       string    `json:"id"`
	JobID    string    `json:"job_id"`
	Index    int       `json:"index"`
	WorkerID string    `json:"worker_id,omitempty"`
	Series   []*Series `json:"series"`

	// Horizon, Freq, ObjMetric and CVStride carry the job parameters the
	// worker needs to run selection without fetching the spec.
	Horizon   int       `json:"horizon"`
	Freq      Frequency `json:"freq"`
	ObjMetric string    `json:"obj_metric"`
	CVStride  int       `json:"cv_stride"`
}

// BatchResult is a worker's response for one task batch.
type BatchResult struct {
	BatchID  string         `json:"batch_id"`
	JobID    string         `json:"job_id"`
	WorkerID string         `json:"worker_id"`
	Results  []SeriesResult `json:"results"`
	Elapsed  time.Duration  `json:"elapsed"`
}

package rest

import (
	"time"

	"github.com/jinzhu/copier"

	"sfs/forecast-engine/internal/store"
	"sfs/forecast-engine/pkg/types"
)

// ErrorResponse is the uniform error document returned by all
// endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SuccessResponse acknowledges a state-changing request.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the health check document.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadyResponse is the readiness check document.
type ReadyResponse struct {
	Ready     bool   `json:"ready"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ============================================================================
// Dataset types
// ============================================================================

// DatasetResponse describes a stored dataset.
type DatasetResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Freq       string    `json:"freq"`
	Rows       int       `json:"rows"`
	Series     int       `json:"series"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// DatasetListResponse lists stored datasets.
type DatasetListResponse struct {
	Datasets []*DatasetResponse `json:"datasets"`
	Total    int                `json:"total"`
}

// DatasetHealthResponse carries the health summary and demand
// classification of a dataset.
type DatasetHealthResponse struct {
	DatasetID      string                `json:"dataset_id"`
	Health         *types.HealthSummary  `json:"health"`
	Classification *types.Classification `json:"classification"`
}

func toDatasetResponse(d *store.Dataset) *DatasetResponse {
	resp := &DatasetResponse{}
	_ = copier.Copy(resp, d)
	return resp
}

// ============================================================================
// Job types
// ============================================================================

// JobSubmitRequest launches a forecast job. Either the spec object or
// its YAML document must be provided.
type JobSubmitRequest struct {
	Spec *types.JobSpec `json:"spec,omitempty"`
	YAML string         `json:"yaml,omitempty"`
}

// JobSubmitResponse acknowledges a submitted job.
type JobSubmitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// ProgressResponse reports job completion.
type ProgressResponse struct {
	DoneSeries   int     `json:"done_series"`
	TotalSeries  int     `json:"total_series"`
	FailedSeries int     `json:"failed_series"`
	Fraction     float64 `json:"fraction"`
}

// JobResponse describes one job.
type JobResponse struct {
	ID         string           `json:"id"`
	Name       string           `json:"name,omitempty"`
	Status     string           `json:"status"`
	Progress   ProgressResponse `json:"progress"`
	SubmitTime string           `json:"submit_time"`
	StartTime  string           `json:"start_time,omitempty"`
	EndTime    string           `json:"end_time,omitempty"`
	Duration   string           `json:"duration,omitempty"`
	Error      string           `json:"error,omitempty"`
	Spec       *types.JobSpec   `json:"spec,omitempty"`
}

// JobListResponse lists jobs.
type JobListResponse struct {
	Jobs  []*JobResponse `json:"jobs"`
	Total int            `json:"total"`
}

func toJobResponse(state *types.JobState) *JobResponse {
	resp := &JobResponse{}
	_ = copier.Copy(&resp.Progress, &state.Progress)
	resp.Progress.Fraction = state.Progress.Fraction()

	resp.ID = state.ID
	resp.Name = state.Spec.Name
	resp.Status = string(state.Status)
	resp.SubmitTime = state.SubmitTime.Format(time.RFC3339)
	if !state.StartTime.IsZero() {
		resp.StartTime = state.StartTime.Format(time.RFC3339)
	}
	if !state.EndTime.IsZero() {
		resp.EndTime = state.EndTime.Format(time.RFC3339)
	}
	if d := state.Duration(); d > 0 {
		resp.Duration = d.Round(time.Millisecond).String()
	}
	resp.Error = state.Error

	spec := state.Spec
	resp.Spec = &spec
	return resp
}

func toJobResponseFromRecord(j *store.Job) *JobResponse {
	resp := &JobResponse{
		ID:     j.ID,
		Name:   j.Name,
		Status: j.Status,
		Progress: ProgressResponse{
			DoneSeries:   j.DoneSeries,
			TotalSeries:  j.TotalSeries,
			FailedSeries: j.FailedSeries,
		},
		SubmitTime: j.SubmitTime.Format(time.RFC3339),
		Error:      j.Error,
	}
	if j.TotalSeries > 0 {
		resp.Progress.Fraction = float64(j.DoneSeries) / float64(j.TotalSeries)
	}
	if j.StartTime != nil {
		resp.StartTime = j.StartTime.Format(time.RFC3339)
	}
	if j.EndTime != nil {
		resp.EndTime = j.EndTime.Format(time.RFC3339)
		if j.StartTime != nil {
			resp.Duration = j.EndTime.Sub(*j.StartTime).Round(time.Millisecond).String()
		}
	}
	if spec, err := j.Spec(); err == nil {
		resp.Spec = spec
	}
	return resp
}

// ReportQueryResponse carries the result of a JSONPath report query.
type ReportQueryResponse struct {
	Path   string `json:"path"`
	Result any    `json:"result"`
}

// ============================================================================
// Worker types (control plane)
// ============================================================================

// WorkerResponse describes a registered worker and its status.
type WorkerResponse struct {
	ID            string            `json:"id"`
	Address       string            `json:"address,omitempty"`
	Slots         int               `json:"slots"`
	Labels        map[string]string `json:"labels,omitempty"`
	Version       string            `json:"version,omitempty"`
	State         string            `json:"state"`
	Load          float64           `json:"load"`
	ActiveBatches int               `json:"active_batches"`
	JoinTime      string            `json:"join_time,omitempty"`
	LastSeen      string            `json:"last_seen,omitempty"`
}

// WorkerListResponse lists registered workers.
type WorkerListResponse struct {
	Workers []*WorkerResponse `json:"workers"`
	Total   int               `json:"total"`
}

func toWorkerResponse(info *types.WorkerInfo, status *types.WorkerStatus) *WorkerResponse {
	resp := &WorkerResponse{}
	_ = copier.Copy(resp, info)
	if !info.JoinTime.IsZero() {
		resp.JoinTime = info.JoinTime.Format(time.RFC3339)
	}
	if status != nil {
		resp.State = string(status.State)
		resp.Load = status.Load
		resp.ActiveBatches = status.ActiveBatches
		if !status.LastSeen.IsZero() {
			resp.LastSeen = status.LastSeen.Format(time.RFC3339)
		}
	}
	return resp
}

// ============================================================================
// Worker plane request/response types
// ============================================================================

// WorkerRegisterRequest registers a worker node.
type WorkerRegisterRequest struct {
	WorkerID string            `json:"worker_id"`
	Address  string            `json:"address,omitempty"`
	Slots    int               `json:"slots"`
	Labels   map[string]string `json:"labels,omitempty"`
	Version  string            `json:"version,omitempty"`
}

// WorkerRegisterResponse acknowledges a registration.
type WorkerRegisterResponse struct {
	Accepted            bool   `json:"accepted"`
	AssignedID          string `json:"assigned_id,omitempty"`
	HeartbeatIntervalMS int64  `json:"heartbeat_interval_ms"`
	MasterID            string `json:"master_id,omitempty"`
	Error               string `json:"error,omitempty"`
}

// WorkerHeartbeatRequest refreshes a worker's liveness and load.
type WorkerHeartbeatRequest struct {
	WorkerID  string               `json:"worker_id"`
	Metrics   *types.WorkerMetrics `json:"metrics,omitempty"`
	Timestamp int64                `json:"timestamp"`
}

// ControlCommand is a master-to-worker instruction delivered with the
// heartbeat response.
type ControlCommand struct {
	Type  string `json:"type"` // drain | stop
	JobID string `json:"job_id,omitempty"`
}

// Worker control command types.
const (
	CommandDrain = "drain"
	CommandStop  = "stop"
)

// WorkerHeartbeatResponse acknowledges a heartbeat and delivers any
// pending control commands.
type WorkerHeartbeatResponse struct {
	Commands  []*ControlCommand `json:"commands,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// BatchLeaseResponse carries the batches leased to a worker.
type BatchLeaseResponse struct {
	Batches []*types.TaskBatch `json:"batches"`
}

// WorkerUnregisterRequest removes a worker from the registry.
type WorkerUnregisterRequest struct {
	WorkerID string `json:"worker_id"`
	Reason   string `json:"reason,omitempty"`
}

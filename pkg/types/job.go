package types

import (
	"fmt"
	"time"
)

// Backend selects where forecast tasks execute.
type Backend string

const (
	// BackendLocal runs tasks in an in-process worker pool.
	BackendLocal Backend = "local"
	// BackendDistributed fans tasks out to registered workers.
	BackendDistributed Backend = "distributed"
)

// DefaultMaxWorkers caps the fan-out width of a single job.
const DefaultMaxWorkers = 1000

// ObjectiveSMAPEMean selects models by mean sMAPE across CV windows.
const ObjectiveSMAPEMean = "smape_mean"

// JobSpec describes a forecast job.
type JobSpec struct {
	// Name labels the job in reports and exports. Defaults to the
	// dataset file name.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// DatasetID references a stored dataset; DatasetPath points at a file
	// on disk. Exactly one must be set.
	DatasetID   string `yaml:"dataset_id,omitempty" json:"dataset_id,omitempty"`
	DatasetPath string `yaml:"dataset_path,omitempty" json:"dataset_path,omitempty"`

	// FreqIn is the frequency of the input data, FreqOut the frequency of
	// the forecast. Data is resampled when they differ.
	FreqIn  Frequency `yaml:"freq_in" json:"freq_in"`
	FreqOut Frequency `yaml:"freq_out" json:"freq_out"`

	// Horizon is the number of periods to forecast. Minimum 1.
	Horizon int `yaml:"horizon" json:"horizon"`

	// ObjMetric is the model selection objective. Defaults to smape_mean.
	ObjMetric string `yaml:"obj_metric,omitempty" json:"obj_metric,omitempty"`

	// CVStride is the step between rolling cross-validation origins.
	// Defaults to 2.
	CVStride int `yaml:"cv_stride,omitempty" json:"cv_stride,omitempty"`

	// Backend selects local or distributed execution.
	Backend Backend `yaml:"backend,omitempty" json:"backend,omitempty"`

	// MaxWorkers caps parallelism. The effective width is
	// min(MaxWorkers, number of series); defaults to DefaultMaxWorkers.
	MaxWorkers int `yaml:"max_workers,omitempty" json:"max_workers,omitempty"`

	// Transform is an optional JavaScript row transform applied at load.
	Transform string `yaml:"transform,omitempty" json:"transform,omitempty"`
}

// Normalize fills defaults in place.
func (s *JobSpec) Normalize() {
	if s.ObjMetric == "" {
		s.ObjMetric = ObjectiveSMAPEMean
	}
	if s.CVStride <= 0 {
		s.CVStride = 2
	}
	if s.Backend == "" {
		s.Backend = BackendLocal
	}
	if s.MaxWorkers <= 0 || s.MaxWorkers > DefaultMaxWorkers {
		s.MaxWorkers = DefaultMaxWorkers
	}
	if s.FreqOut == "" {
		s.FreqOut = s.FreqIn
	}
}

// Validate checks the spec for launch.
func (s *JobSpec) Validate() error {
	if s.DatasetID == "" && s.DatasetPath == "" {
		return fmt.Errorf("job spec requires a dataset")
	}
	if !s.FreqIn.Valid() {
		return fmt.Errorf("invalid input frequency: %s", s.FreqIn)
	}
	if s.FreqOut != "" && !s.FreqOut.Valid() {
		return fmt.Errorf("invalid output frequency: %s", s.FreqOut)
	}
	if s.FreqOut != "" && s.FreqOut.Coarseness() < s.FreqIn.Coarseness() {
		return fmt.Errorf("output frequency %s is finer than input frequency %s", s.FreqOut, s.FreqIn)
	}
	if s.Horizon < 1 {
		return fmt.Errorf("horizon must be at least 1")
	}
	if s.ObjMetric != "" && s.ObjMetric != ObjectiveSMAPEMean {
		return fmt.Errorf("unknown objective metric: %s", s.ObjMetric)
	}
	switch s.Backend {
	case "", BackendLocal, BackendDistributed:
	default:
		return fmt.Errorf("unknown backend: %s", s.Backend)
	}
	return nil
}

// JobStatus is the lifecycle state of a forecast job.
type JobStatus string

const (
	// JobPending means the job is accepted but not yet running.
	JobPending JobStatus = "pending"
	// JobRunning means forecast tasks are executing.
	JobRunning JobStatus = "running"
	// JobPaused means task dispatch is suspended.
	JobPaused JobStatus = "paused"
	// JobCompleted means all series finished and the report is ready.
	JobCompleted JobStatus = "completed"
	// JobFailed means the job stopped on an unrecoverable error.
	JobFailed JobStatus = "failed"
	// JobCancelled means the job was stopped by request.
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Progress tracks completion of a running job.
type Progress struct {
	DoneSeries   int `json:"done_series"`
	TotalSeries  int `json:"total_series"`
	FailedSeries int `json:"failed_series"`
}

// Fraction returns completion in [0, 1].
func (p Progress) Fraction() float64 {
	if p.TotalSeries == 0 {
		return 0
	}
	return float64(p.DoneSeries) / float64(p.TotalSeries)
}

// JobState is the observable state of a job.
type JobState struct {
	ID         string    `json:"id"`
	Spec       JobSpec   `json:"spec"`
	Status     JobStatus `json:"status"`
	Progress   Progress  `json:"progress"`
	SubmitTime time.Time `json:"submit_time"`
	StartTime  time.Time `json:"start_time,omitempty"`
	EndTime    time.Time `json:"end_time,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Duration returns the elapsed run time of the job.
func (s *JobState) Duration() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	end := s.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartTime)
}

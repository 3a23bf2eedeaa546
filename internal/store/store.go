// Package store persists datasets, jobs and series results in a
// relational database, with an optional Redis cache for reports.
package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"sfs/forecast-engine/internal/config"
	"sfs/forecast-engine/internal/jsonutil"
	"sfs/forecast-engine/pkg/logger"
	"sfs/forecast-engine/pkg/types"
)

// Dataset is a stored dataset file.
type Dataset struct {
	ID         string    `gorm:"primaryKey;size:64" json:"id"`
	Name       string    `gorm:"size:255;index" json:"name"`
	Path       string    `gorm:"size:512" json:"path"`
	Freq       string    `gorm:"size:8" json:"freq"`
	Rows       int       `json:"rows"`
	Series     int       `json:"series"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `gorm:"index" json:"uploaded_at"`
}

// Job is a persisted job record. The spec and performance summary are
// stored as JSON documents.
type Job struct {
	ID           string     `gorm:"primaryKey;size:64" json:"id"`
	Name         string     `gorm:"size:255" json:"name"`
	Status       string     `gorm:"size:16;index" json:"status"`
	SpecJSON     string     `gorm:"type:text" json:"-"`
	PerfJSON     string     `gorm:"type:text" json:"-"`
	DoneSeries   int        `json:"done_series"`
	TotalSeries  int        `json:"total_series"`
	FailedSeries int        `json:"failed_series"`
	Error        string     `gorm:"type:text" json:"error,omitempty"`
	SubmitTime   time.Time  `gorm:"index" json:"submit_time"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
}

// Spec unmarshals the stored job spec.
func (j *Job) Spec() (*types.JobSpec, error) {
	var spec types.JobSpec
	if err := jsonutil.UnmarshalString(j.SpecJSON, &spec); err != nil {
		return nil, fmt.Errorf("decoding job spec: %w", err)
	}
	return &spec, nil
}

// SeriesRow is one persisted series result, without the forecast
// points.
type SeriesRow struct {
	ID             uint    `gorm:"primaryKey;autoIncrement" json:"-"`
	JobID          string  `gorm:"size:64;index" json:"job_id"`
	Channel        string  `gorm:"size:128" json:"channel"`
	Family         string  `gorm:"size:128" json:"family"`
	ItemID         string  `gorm:"size:128" json:"item_id"`
	ModelID        string  `gorm:"size:32" json:"model_type"`
	SMAPEMean      float64 `json:"smape_mean"`
	SMAPEStd       float64 `json:"smape_std"`
	NaiveSMAPEMean float64 `json:"naive_smape_mean"`
	CVWindows      int     `json:"cv_windows"`
	Error          string  `gorm:"type:text" json:"error,omitempty"`
}

// Store persists engine state in a relational database.
type Store struct {
	db *gorm.DB
}

// Open connects to the configured database and migrates the schema.
func Open(cfg *config.DatabaseConfig) (*Store, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN())
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := db.AutoMigrate(&Dataset{}, &Job{}, &SeriesRow{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB returns the underlying GORM handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// SaveDataset records an uploaded dataset.
func (s *Store) SaveDataset(ctx context.Context, d *Dataset) error {
	return s.db.WithContext(ctx).Create(d).Error
}

// GetDataset returns one dataset by ID.
func (s *Store) GetDataset(ctx context.Context, id string) (*Dataset, error) {
	var d Dataset
	if err := s.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDatasets returns all datasets, newest first.
func (s *Store) ListDatasets(ctx context.Context) ([]*Dataset, error) {
	var datasets []*Dataset
	err := s.db.WithContext(ctx).Order("uploaded_at DESC").Find(&datasets).Error
	return datasets, err
}

// DeleteDataset removes a dataset record.
func (s *Store) DeleteDataset(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&Dataset{}, "id = ?", id).Error
}

// SaveJob upserts a job record from its observable state.
func (s *Store) SaveJob(ctx context.Context, state *types.JobState) error {
	record, err := jobRecord(state)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(record).Error
}

// GetJob returns one job record by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := s.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// ListJobs returns job records, newest first. A non-positive limit
// returns all.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	q := s.db.WithContext(ctx).Order("submit_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var jobs []*Job
	err := q.Find(&jobs).Error
	return jobs, err
}

// SaveSeriesResults stores the per-series outcomes of a finished job.
func (s *Store) SaveSeriesResults(ctx context.Context, jobID string, results []types.SeriesResult) error {
	if len(results) == 0 {
		return nil
	}

	rows := make([]SeriesRow, len(results))
	for i := range results {
		r := &results[i]
		rows[i] = SeriesRow{
			JobID:          jobID,
			Channel:        r.Key.Channel,
			Family:         r.Key.Family,
			ItemID:         r.Key.ItemID,
			ModelID:        r.ModelID,
			SMAPEMean:      r.SMAPEMean,
			SMAPEStd:       r.SMAPEStd,
			NaiveSMAPEMean: r.NaiveSMAPEMean,
			CVWindows:      r.CVWindows,
			Error:          r.Err,
		}
	}
	return s.db.WithContext(ctx).CreateInBatches(rows, 500).Error
}

// ListSeriesResults returns the stored series outcomes of a job.
func (s *Store) ListSeriesResults(ctx context.Context, jobID string) ([]*SeriesRow, error) {
	var rows []*SeriesRow
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("channel, family, item_id").
		Find(&rows).Error
	return rows, err
}

// JobUpdated persists job state transitions. Part of the master's
// lifecycle sink.
func (s *Store) JobUpdated(state *types.JobState) {
	if err := s.SaveJob(context.Background(), state); err != nil {
		logger.Warn("persisting job state failed",
			zap.String("job_id", state.ID), zap.Error(err))
	}
}

// JobFinished persists the series results and performance summary of a
// completed job.
func (s *Store) JobFinished(report *types.JobReport) {
	ctx := context.Background()

	if err := s.SaveSeriesResults(ctx, report.JobID, report.Results); err != nil {
		logger.Warn("persisting series results failed",
			zap.String("job_id", report.JobID), zap.Error(err))
	}

	if report.Perf != nil {
		perfJSON, err := jsonutil.MarshalString(report.Perf)
		if err == nil {
			err = s.db.Model(&Job{}).
				Where("id = ?", report.JobID).
				Update("perf_json", perfJSON).Error
		}
		if err != nil {
			logger.Warn("persisting perf summary failed",
				zap.String("job_id", report.JobID), zap.Error(err))
		}
	}
}

func jobRecord(state *types.JobState) (*Job, error) {
	specJSON, err := jsonutil.MarshalString(&state.Spec)
	if err != nil {
		return nil, fmt.Errorf("encoding job spec: %w", err)
	}

	record := &Job{
		ID:           state.ID,
		Name:         state.Spec.Name,
		Status:       string(state.Status),
		SpecJSON:     specJSON,
		DoneSeries:   state.Progress.DoneSeries,
		TotalSeries:  state.Progress.TotalSeries,
		FailedSeries: state.Progress.FailedSeries,
		Error:        state.Error,
		SubmitTime:   state.SubmitTime,
	}
	if !state.StartTime.IsZero() {
		t := state.StartTime
		record.StartTime = &t
	}
	if !state.EndTime.IsZero() {
		t := state.EndTime
		record.EndTime = &t
	}
	return record, nil
}

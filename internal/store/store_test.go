package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"sfs/forecast-engine/internal/config"
	"sfs/forecast-engine/pkg/types"
)

// mockStore opens a GORM handle over a sqlmock connection so query
// shapes can be asserted without a database.
func mockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	return &Store{db: gdb}, mock
}

func jobState() *types.JobState {
	return &types.JobState{
		ID: "job-1",
		Spec: types.JobSpec{
			Name:        "demand",
			DatasetPath: "data/demand.csv",
			FreqIn:      types.FreqDaily,
			Horizon:     4,
		},
		Status:     types.JobRunning,
		Progress:   types.Progress{DoneSeries: 3, TotalSeries: 10, FailedSeries: 1},
		SubmitTime: time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC),
		StartTime:  time.Date(2023, 6, 1, 10, 0, 1, 0, time.UTC),
	}
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "sqlite"})
	assert.EqualError(t, err, "unsupported database driver: sqlite")
}

func TestJobRecord(t *testing.T) {
	state := jobState()

	record, err := jobRecord(state)
	require.NoError(t, err)

	assert.Equal(t, "job-1", record.ID)
	assert.Equal(t, "demand", record.Name)
	assert.Equal(t, "running", record.Status)
	assert.Equal(t, 3, record.DoneSeries)
	assert.Equal(t, 10, record.TotalSeries)
	assert.Equal(t, 1, record.FailedSeries)
	assert.Equal(t, state.SubmitTime, record.SubmitTime)
	require.NotNil(t, record.StartTime)
	assert.Equal(t, state.StartTime, *record.StartTime)
	assert.Nil(t, record.EndTime, "zero end time maps to null")
}

func TestJobRecordSpecRoundTrip(t *testing.T) {
	state := jobState()

	record, err := jobRecord(state)
	require.NoError(t, err)

	spec, err := record.Spec()
	require.NoError(t, err)
	assert.Equal(t, state.Spec, *spec)
}

func TestJobSpecInvalidJSON(t *testing.T) {
	j := &Job{SpecJSON: "{"}

	_, err := j.Spec()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding job spec")
}

func TestGetJob(t *testing.T) {
	s, mock := mockStore(t)

	rows := sqlmock.NewRows([]string{"id", "name", "status", "done_series", "total_series", "failed_series", "submit_time"}).
		AddRow("job-1", "demand", "completed", 10, 10, 0, time.Date(2023, 6, 1, 10, 0, 0, 0, time.UTC))
	mock.ExpectQuery("SELECT (.+) FROM `jobs` WHERE id = ").WillReturnRows(rows)

	j, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", j.ID)
	assert.Equal(t, "demand", j.Name)
	assert.Equal(t, "completed", j.Status)
	assert.Equal(t, 10, j.DoneSeries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobNotFound(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM `jobs` WHERE id = ").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetJob(context.Background(), "nope")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListJobs(t *testing.T) {
	s, mock := mockStore(t)

	rows := sqlmock.NewRows([]string{"id", "status"}).
		AddRow("job-2", "running").
		AddRow("job-1", "completed")
	mock.ExpectQuery("SELECT (.+) FROM `jobs` ORDER BY submit_time DESC LIMIT").WillReturnRows(rows)

	jobs, err := s.ListJobs(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-2", jobs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobsNoLimit(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM `jobs` ORDER BY submit_time DESC").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("job-1"))

	jobs, err := s.ListJobs(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestSaveJob(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `jobs`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveJob(context.Background(), jobState()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveDataset(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `datasets`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.SaveDataset(context.Background(), &Dataset{
		ID:         "ds-1",
		Name:       "demand",
		Path:       "data/demand.csv",
		Freq:       "D",
		Rows:       100,
		Series:     4,
		SizeBytes:  2048,
		UploadedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteDataset(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `datasets`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteDataset(context.Background(), "ds-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSeriesResults(t *testing.T) {
	s, mock := mockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `series_rows`").WillReturnResult(sqlmock.NewResult(1, 2))
	mock.ExpectCommit()

	results := []types.SeriesResult{
		{
			Key:       types.SeriesKey{Channel: "web", Family: "shoes", ItemID: "item-001"},
			ModelID:   "naive",
			SMAPEMean: 0.15,
			CVWindows: 4,
		},
		{
			Key: types.SeriesKey{Channel: "store", Family: "shoes", ItemID: "item-003"},
			Err: "series has no points",
		},
	}
	require.NoError(t, s.SaveSeriesResults(context.Background(), "job-1", results))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveSeriesResultsEmpty(t *testing.T) {
	s, mock := mockStore(t)

	require.NoError(t, s.SaveSeriesResults(context.Background(), "job-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet(), "empty input should not touch the database")
}

func TestListSeriesResults(t *testing.T) {
	s, mock := mockStore(t)

	rows := sqlmock.NewRows([]string{"id", "job_id", "channel", "family", "item_id", "model_id", "smape_mean", "cv_windows"}).
		AddRow(1, "job-1", "store", "shoes", "item-003", "ses", 0.2, 3).
		AddRow(2, "job-1", "web", "shoes", "item-001", "naive", 0.15, 4)
	mock.ExpectQuery("SELECT (.+) FROM `series_rows` WHERE job_id = ").WillReturnRows(rows)

	results, err := s.ListSeriesResults(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "store", results[0].Channel)
	assert.Equal(t, "ses", results[0].ModelID)
	assert.Equal(t, 0.15, results[1].SMAPEMean)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobSpecNormalize(t *testing.T) {
	s := JobSpec{DatasetPath: "demand.csv", FreqIn: FreqDaily, Horizon: 6}
	s.Normalize()

	assert.Equal(t, ObjectiveSMAPEMean, s.ObjMetric)
	assert.Equal(t, 2, s.CVStride)
	assert.Equal(t, BackendLocal, s.Backend)
	assert.Equal(t, DefaultMaxWorkers, s.MaxWorkers)
	assert.Equal(t, FreqDaily, s.FreqOut)
}

func TestJobSpecValidate(t *testing.T) {
	testCases := []struct {
		name    string
		spec    JobSpec
		wantErr string
	}{
		{
			name:    "missing dataset",
			spec:    JobSpec{FreqIn: FreqDaily, Horizon: 1},
			wantErr: "requires a dataset",
		},
		{
			name:    "bad frequency",
			spec:    JobSpec{DatasetPath: "x.csv", FreqIn: "H", Horizon: 1},
			wantErr: "invalid input frequency",
		},
		{
			name:    "zero horizon",
			spec:    JobSpec{DatasetPath: "x.csv", FreqIn: FreqDaily, Horizon: 0},
			wantErr: "horizon must be at least 1",
		},
		{
			name:    "unknown objective",
			spec:    JobSpec{DatasetPath: "x.csv", FreqIn: FreqDaily, Horizon: 1, ObjMetric: "mape"},
			wantErr: "unknown objective metric",
		},
		{
			name:    "unknown backend",
			spec:    JobSpec{DatasetPath: "x.csv", FreqIn: FreqDaily, Horizon: 1, Backend: "gpu"},
			wantErr: "unknown backend",
		},
		{
			name: "valid",
			spec: JobSpec{DatasetPath: "x.csv", FreqIn: FreqDaily, FreqOut: FreqWeekly, Horizon: 8},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tc.wantErr)
			}
		})
	}
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobPending.Terminal())
	assert.False(t, JobRunning.Terminal())
	assert.False(t, JobPaused.Terminal())
	assert.True(t, JobCompleted.Terminal())
	assert.True(t, JobFailed.Terminal())
	assert.True(t, JobCancelled.Terminal())
}

func TestProgressFraction(t *testing.T) {
	assert.Equal(t, 0.0, Progress{}.Fraction())
	assert.Equal(t, 0.5, Progress{DoneSeries: 5, TotalSeries: 10}.Fraction())
	assert.Equal(t, 1.0, Progress{DoneSeries: 3, TotalSeries: 3}.Fraction())
}

func TestSeriesCounts(t *testing.T) {
	s := &Series{
		Key: SeriesKey{Channel: "Store", Family: "Footwear", ItemID: "SKU1"},
		Points: []DataPoint{
			{Demand: 10},
			{Demand: 0, Missing: true},
			{Demand: 5},
		},
	}

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 2, s.ObservedCount())
	assert.Equal(t, 1, s.MissingCount())
	assert.Equal(t, 15.0, s.TotalDemand())
	assert.Equal(t, []float64{10, 0, 5}, s.Demand())
}

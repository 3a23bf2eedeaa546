package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfs/forecast-engine/pkg/types"
)

func TestParseJobFile(t *testing.T) {
	data := []byte(`
name: retail-weekly
dataset: demand.csv.gz
freq_in: D
freq_out: W-MON
horizon: 8
cv_stride: 2
backend: local
outputs:
  - type: console
  - type: webhook
    url: https://hooks.example.com/forecast
`)

	jf, err := ParseJobFile(data)
	require.NoError(t, err)

	assert.Equal(t, "retail-weekly", jf.Name)
	assert.Equal(t, "demand.csv.gz", jf.Dataset)
	assert.Len(t, jf.Outputs, 2)

	spec, err := jf.ToSpec()
	require.NoError(t, err)
	assert.Equal(t, types.FreqDaily, spec.FreqIn)
	assert.Equal(t, types.FreqWeekly, spec.FreqOut)
	assert.Equal(t, 8, spec.Horizon)
	assert.Equal(t, types.BackendLocal, spec.Backend)
	assert.Equal(t, types.ObjectiveSMAPEMean, spec.ObjMetric)
}

func TestParseJobFileUnknownField(t *testing.T) {
	data := []byte(`
dataset: demand.csv
horizon: 4
horizont: 5
`)

	_, err := ParseJobFile(data)
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Greater(t, perr.Line, 0)
	assert.Contains(t, perr.Message, "horizont")
}

func TestParseJobFileInvalidYAML(t *testing.T) {
	_, err := ParseJobFile([]byte("dataset: [unclosed"))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseJobFileMissingDataset(t *testing.T) {
	// Parsing tolerates a missing dataset (the CLI may supply it);
	// converting to a spec does not.
	jf, err := ParseJobFile([]byte("horizon: 4"))
	require.NoError(t, err)

	_, err = jf.ToSpec()
	assert.ErrorContains(t, err, "dataset")
}

func TestParseJobFileDatasetID(t *testing.T) {
	jf, err := ParseJobFile([]byte("dataset_id: 3f6c\nhorizon: 4"))
	require.NoError(t, err)

	spec, err := jf.ToSpec()
	require.NoError(t, err)
	assert.Equal(t, "3f6c", spec.DatasetID)
	assert.Empty(t, spec.DatasetPath)
}

func TestParseJobFileBadFrequency(t *testing.T) {
	data := []byte(`
dataset: demand.csv
freq_in: Hourly
horizon: 4
`)
	_, err := ParseJobFile(data)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "freq_in", verr.Field)
}

func TestToSpecRejectsMissingHorizon(t *testing.T) {
	jf, err := ParseJobFile([]byte("dataset: demand.csv"))
	require.NoError(t, err)

	_, err = jf.ToSpec()
	assert.ErrorContains(t, err, "horizon")
}

func TestToSpecDefaultsFreqOut(t *testing.T) {
	jf := &JobFile{Dataset: "demand.csv", FreqIn: "W-MON", Horizon: 6}
	spec, err := jf.ToSpec()
	require.NoError(t, err)

	assert.Equal(t, types.FreqWeekly, spec.FreqIn)
	assert.Equal(t, types.FreqWeekly, spec.FreqOut)
	assert.Equal(t, 2, spec.CVStride)
	assert.Equal(t, types.DefaultMaxWorkers, spec.MaxWorkers)
}

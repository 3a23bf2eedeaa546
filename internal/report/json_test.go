package report

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalReport(t *testing.T) {
	data, err := MarshalReport(sampleReport())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "job-1", doc["job_id"])
	assert.Contains(t, string(data), "\n  ", "output should be indented")
}

func TestQuery(t *testing.T) {
	report := sampleReport()

	result, err := Query(report, "$.perf.accuracy")
	require.NoError(t, err)
	assert.Equal(t, 85.0, result)

	result, err = Query(report, "$.job_id")
	require.NoError(t, err)
	assert.Equal(t, "job-1", result)

	result, err = Query(report, "$.top[0].key.item_id")
	require.NoError(t, err)
	assert.Equal(t, "item-002", result)
}

func TestQueryMultipleMatches(t *testing.T) {
	result, err := Query(sampleReport(), "$.results[*].model_type")
	require.NoError(t, err)

	models, ok := result.([]any)
	require.True(t, ok, "multiple matches should come back as a slice")
	require.Len(t, models, 2)
	assert.Contains(t, models, "naive")
	assert.Contains(t, models, "")
}

func TestQueryNoResults(t *testing.T) {
	_, err := Query(sampleReport(), "$.nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no results")
}

func TestQueryInvalidExpression(t *testing.T) {
	_, err := Query(sampleReport(), "$[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSONPath")
}

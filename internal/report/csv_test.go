package report

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteForecastCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteForecastCSV(&buf, sampleReport()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5, "header plus four points, failed series skipped")
	assert.Equal(t, "timestamp,channel,family,item_id,demand,type", lines[0])
	assert.Equal(t, "2023-01-01,web,shoes,item-001,10,actual", lines[1])
	assert.Equal(t, "2023-01-02,web,shoes,item-001,12.5,actual", lines[2])
	assert.Equal(t, "2023-01-03,web,shoes,item-001,11,fcast", lines[3])
	assert.Equal(t, "2023-01-04,web,shoes,item-001,11,fcast", lines[4])
}

func TestWriteResultsCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResultsCSV(&buf, sampleReport()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "channel,family,item_id,model_type,smape_mean,smape_std,naive_smape_mean,cv_windows,error", lines[0])
	assert.Equal(t, "web,shoes,item-001,naive,0.150000,0.020000,0.250000,4,", lines[1])
	assert.Equal(t, "store,shoes,item-003,,0.000000,0.000000,0.000000,0,series has no points", lines[2])
}

func TestExportFiles(t *testing.T) {
	dir := t.TempDir()

	paths, err := ExportFiles(dir, sampleReport(), false)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "demand_fcast.csv"), paths[0])
	assert.Equal(t, filepath.Join(dir, "demand_results.csv"), paths[1])

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "timestamp,channel,family,item_id,demand,type\n"))

	data, err = os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Contains(t, string(data), "web,shoes,item-001,naive")
}

func TestExportFilesGzip(t *testing.T) {
	dir := t.TempDir()

	paths, err := ExportFiles(dir, sampleReport(), true)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.True(t, strings.HasSuffix(paths[0], "demand_fcast.csv.gz"))
	assert.True(t, strings.HasSuffix(paths[1], "demand_results.csv.gz"))

	f, err := os.Open(paths[0])
	require.NoError(t, err)
	defer f.Close()

	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	assert.Contains(t, string(data), "2023-01-01,web,shoes,item-001,10,actual")
}

func TestExportFilesCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "exports")

	paths, err := ExportFiles(dir, sampleReport(), false)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	_, err = os.Stat(paths[0])
	assert.NoError(t, err)
}

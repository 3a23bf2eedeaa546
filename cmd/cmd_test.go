package cmd

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfs/forecast-engine/internal/config"
	"sfs/forecast-engine/pkg/types"
)

// resetFlags restores the package-level flag variables to their
// registered defaults after a test mutates them.
func resetFlags(t *testing.T) {
	t.Cleanup(func() {
		runHorizon = 0
		runFreq = ""
		runFreqOut = ""
		runStride = 0
		runMaxWorkers = 0
		runSlots = 0
		runName = ""
		runSpecFile = ""
		runOutputs = nil
		runExportDir = "."
		runNoExport = false
		runCompress = false
		validateFreq = "D"
		validateVerbose = false
		reportServer = "http://localhost:8080"
		reportPath = ""
		reportAPIKey = ""
		cfgFile = ""
		cfgSets = nil
		debug = false
		quiet = false
	})
}

func writeDatasetCSV(t *testing.T, name string) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("timestamp,channel,family,item_id,demand\n")
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 21; i++ {
		ts := start.AddDate(0, 0, i).Format("2006-01-02")
		fmt.Fprintf(&b, "%s,website,tops,sku-1,%d\n", ts, 20+i%3)
		fmt.Fprintf(&b, "%s,store,shoes,sku-2,%d\n", ts, 5+i%2)
	}

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func TestBuildRunSpecDefaults(t *testing.T) {
	resetFlags(t)

	spec, _, err := buildRunSpec("data/demand.csv", config.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "data/demand.csv", spec.DatasetPath)
	assert.Equal(t, types.FreqDaily, spec.FreqIn)
	assert.Equal(t, types.FreqDaily, spec.FreqOut)
	assert.Equal(t, 12, spec.Horizon)
	assert.Equal(t, types.BackendLocal, spec.Backend)
	assert.Equal(t, types.ObjectiveSMAPEMean, spec.ObjMetric)
	assert.Equal(t, 2, spec.CVStride)
	assert.Equal(t, types.DefaultMaxWorkers, spec.MaxWorkers)
	assert.Empty(t, spec.Name)
}

func TestBuildRunSpecFlagOverrides(t *testing.T) {
	resetFlags(t)
	runName = "q3-plan"
	runHorizon = 8
	runFreq = "W"
	runFreqOut = "M"
	runStride = 3
	runMaxWorkers = 5

	spec, _, err := buildRunSpec("demand.csv", config.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "q3-plan", spec.Name)
	assert.Equal(t, 8, spec.Horizon)
	assert.Equal(t, types.FreqWeekly, spec.FreqIn)
	assert.Equal(t, types.FreqMonthly, spec.FreqOut)
	assert.Equal(t, 3, spec.CVStride)
	assert.Equal(t, 5, spec.MaxWorkers)
}

func TestBuildRunSpecFromSpecFile(t *testing.T) {
	resetFlags(t)

	specPath := filepath.Join(t.TempDir(), "job.yml")
	content := "name: from-file\nhorizon: 6\nfreq_in: W-MON\ncv_stride: 4\n"
	require.NoError(t, os.WriteFile(specPath, []byte(content), 0644))

	runSpecFile = specPath
	runHorizon = 9 // flags override spec file fields

	spec, _, err := buildRunSpec("demand.csv", config.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "from-file", spec.Name)
	assert.Equal(t, 9, spec.Horizon)
	assert.Equal(t, types.FreqWeekly, spec.FreqIn)
	assert.Equal(t, types.FreqWeekly, spec.FreqOut)
	assert.Equal(t, 4, spec.CVStride)
}

func TestBuildRunSpecFileOutputs(t *testing.T) {
	resetFlags(t)

	specPath := filepath.Join(t.TempDir(), "job.yml")
	content := "dataset: demand.csv\nhorizon: 4\noutputs:\n  - type: json\n"
	require.NoError(t, os.WriteFile(specPath, []byte(content), 0644))
	runSpecFile = specPath

	spec, outputs, err := buildRunSpec("", config.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, "demand.csv", spec.DatasetPath)
	assert.Equal(t, 4, spec.Horizon)
	require.Len(t, outputs, 1)
	assert.Equal(t, "json", outputs[0].Type)
}

func TestBuildRunSpecDatasetFromFile(t *testing.T) {
	resetFlags(t)

	specPath := filepath.Join(t.TempDir(), "job.yml")
	require.NoError(t, os.WriteFile(specPath, []byte("dataset: warehouse.csv\n"), 0644))
	runSpecFile = specPath

	spec, _, err := buildRunSpec("", config.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "warehouse.csv", spec.DatasetPath)

	// The command-line dataset wins over the spec file's.
	spec, _, err = buildRunSpec("cli.csv", config.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "cli.csv", spec.DatasetPath)
}

func TestBuildRunSpecMissingSpecFile(t *testing.T) {
	resetFlags(t)
	runSpecFile = filepath.Join(t.TempDir(), "absent.yml")

	_, _, err := buildRunSpec("demand.csv", config.DefaultConfig())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reading spec file")
}

func TestBuildRunSpecInvalidSpecFile(t *testing.T) {
	resetFlags(t)

	specPath := filepath.Join(t.TempDir(), "job.yml")
	require.NoError(t, os.WriteFile(specPath, []byte("horizon: [unterminated"), 0644))
	runSpecFile = specPath

	_, _, err := buildRunSpec("demand.csv", config.DefaultConfig())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parsing spec file")
}

func TestBuildRunSpecInvalidFreq(t *testing.T) {
	resetFlags(t)
	runFreq = "X"

	_, _, err := buildRunSpec("demand.csv", config.DefaultConfig())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown frequency")
}

func TestBuildRunSpecFinerOutputFreq(t *testing.T) {
	resetFlags(t)
	runFreq = "M"
	runFreqOut = "D"

	_, _, err := buildRunSpec("demand.csv", config.DefaultConfig())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid job spec")
}

func TestLoadConfigSetOverrides(t *testing.T) {
	resetFlags(t)
	cfgSets = []string{"server.address=:9090", "forecast.cv_stride=5"}

	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 5, cfg.Forecast.CVStride)
}

func TestLoadConfigBadSetOverride(t *testing.T) {
	resetFlags(t)
	cfgSets = []string{"noequals"}

	_, err := loadConfig()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "want section.key=value")
}

func TestNormalizeMasterURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"master:8080", "http://master:8080"},
		{"http://master:8080", "http://master:8080"},
		{"https://master.example.com", "https://master.example.com"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeMasterURL(tt.in))
	}
}

func TestParseLabels(t *testing.T) {
	labels := parseLabels("region=eu,tier=fast")
	assert.Equal(t, map[string]string{"region": "eu", "tier": "fast"}, labels)

	labels = parseLabels(" region = eu , gpu=a100")
	assert.Equal(t, map[string]string{"region": "eu", "gpu": "a100"}, labels)

	labels = parseLabels("noequals")
	assert.Empty(t, labels)
}

func TestProgressPrinterQuiet(t *testing.T) {
	// Just verify the quiet printer does nothing without panicking.
	p := newProgressPrinter(true)
	p.update(&types.JobState{}, time.Second)
	p.clear()
}

func TestRunValidate(t *testing.T) {
	resetFlags(t)
	quiet = true

	err := runValidate(validateCmd, []string{writeDatasetCSV(t, "demand.csv")})
	assert.NoError(t, err)
}

func TestRunValidateMissingColumn(t *testing.T) {
	resetFlags(t)
	quiet = true

	path := filepath.Join(t.TempDir(), "bad.csv")
	content := "timestamp,channel,demand\n2023-01-01,website,5\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	err := runValidate(validateCmd, []string{path})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed with")
}

func TestRunValidateMissingFile(t *testing.T) {
	resetFlags(t)
	quiet = true

	err := runValidate(validateCmd, []string{filepath.Join(t.TempDir(), "absent.csv")})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reading dataset")
}

func TestRunValidateInvalidFreq(t *testing.T) {
	resetFlags(t)
	validateFreq = "yearly"

	err := runValidate(validateCmd, []string{"demand.csv"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown frequency")
}

func TestRunForecastWritesExports(t *testing.T) {
	resetFlags(t)
	quiet = true
	runHorizon = 4
	runSlots = 2
	exportDir := t.TempDir()
	runExportDir = exportDir

	err := runForecast(runCmd, []string{writeDatasetCSV(t, "demand.csv")})
	require.NoError(t, err)

	for _, name := range []string{"demand_fcast.csv", "demand_results.csv"} {
		_, err := os.Stat(filepath.Join(exportDir, name))
		assert.NoError(t, err, name)
	}
}

func TestRunForecastMissingDataset(t *testing.T) {
	resetFlags(t)
	quiet = true
	runNoExport = true

	err := runForecast(runCmd, []string{filepath.Join(t.TempDir(), "absent.csv")})
	assert.Error(t, err)
}

func TestRunReportUnreachableServer(t *testing.T) {
	resetFlags(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	reportServer = addr // scheme added by normalizeMasterURL
	err = runReport(reportCmd, []string{"job-1"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fetching report")
}

func TestRootHelp(t *testing.T) {
	root := GetRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"--help"})
	t.Cleanup(func() {
		root.SetOut(nil)
		root.SetErr(nil)
		root.SetArgs([]string{})
	})

	assert.NoError(t, root.Execute())
}

func TestVersionCommand(t *testing.T) {
	// Just verify the banner prints without panicking.
	versionCmd.Run(versionCmd, nil)
}

package report

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"sfs/forecast-engine/pkg/types"
)

// forecastHeader matches the input schema plus the point type column.
var forecastHeader = []string{"timestamp", "channel", "family", "item_id", "demand", "type"}

// resultsHeader lists the per-series selection outcome columns.
var resultsHeader = []string{
	"channel", "family", "item_id",
	"model_type", "smape_mean", "smape_std", "naive_smape_mean", "cv_windows", "error",
}

// WriteForecastCSV writes the long-format predictions: for every
// series the actual history followed by the forecast, one point per
// row. Failed series contribute no rows.
func WriteForecastCSV(w io.Writer, report *types.JobReport) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(forecastHeader); err != nil {
		return err
	}

	for i := range report.Results {
		r := &report.Results[i]
		if r.Failed() {
			continue
		}
		for _, p := range r.Points {
			record := []string{
				p.Timestamp.Format(types.TimestampLayout),
				r.Key.Channel,
				r.Key.Family,
				r.Key.ItemID,
				formatDemand(p.Demand),
				p.Type,
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteResultsCSV writes one row per series with the winning model and
// its cross-validation metrics. Failed series appear with the error
// column set.
func WriteResultsCSV(w io.Writer, report *types.JobReport) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(resultsHeader); err != nil {
		return err
	}

	for i := range report.Results {
		r := &report.Results[i]
		record := []string{
			r.Key.Channel,
			r.Key.Family,
			r.Key.ItemID,
			r.ModelID,
			formatMetric(r.SMAPEMean),
			formatMetric(r.SMAPEStd),
			formatMetric(r.NaiveSMAPEMean),
			strconv.Itoa(r.CVWindows),
			r.Err,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportFiles writes <name>_fcast.csv and <name>_results.csv into dir
// and returns the written paths. With compress set the files are
// gzipped and get a .gz suffix.
func ExportFiles(dir string, report *types.JobReport, compress bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}

	name := BaseName(&report.Spec)

	exports := []struct {
		suffix string
		write  func(io.Writer, *types.JobReport) error
	}{
		{"_fcast.csv", WriteForecastCSV},
		{"_results.csv", WriteResultsCSV},
	}

	paths := make([]string, 0, len(exports))
	for _, export := range exports {
		path := filepath.Join(dir, name+export.suffix)
		if compress {
			path += ".gz"
		}
		if err := writeFile(path, compress, report, export.write); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, compress bool, report *types.JobReport, write func(io.Writer, *types.JobReport) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var w io.Writer = f
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(f)
		w = gz
	}

	if err := write(w, report); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if gz != nil {
		return gz.Close()
	}
	return nil
}

func formatDemand(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

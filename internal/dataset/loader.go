package dataset

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"sfs/forecast-engine/pkg/types"
)

// RequiredColumns are the CSV columns every dataset must carry, in
// canonical order.
var RequiredColumns = []string{"timestamp", "channel", "family", "item_id", "demand"}

// Row is one parsed input record.
type Row struct {
	Timestamp time.Time
	Key       types.SeriesKey
	Demand    float64
}

// UnsupportedFormatError reports a dataset path with an unknown
// extension.
type UnsupportedFormatError struct {
	Path string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported dataset format: %s, expected .csv or .csv.gz", e.Path)
}

// SchemaError reports required columns absent from the header.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	msgs := make([]string, len(e.Missing))
	for i, col := range e.Missing {
		msgs[i] = fmt.Sprintf("missing **%s** column", col)
	}
	return "invalid dataset schema: " + strings.Join(msgs, "; ")
}

// RowError reports a malformed record.
type RowError struct {
	Line    int // 1-based physical line
	Column  string
	Message string
}

func (e *RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row error at line %d, column %s: %s", e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("row error at line %d: %s", e.Line, e.Message)
}

// Loader reads demand datasets at a given input frequency.
type Loader struct {
	freq      types.Frequency
	transform *Transform
}

// NewLoader creates a loader for the given input frequency.
func NewLoader(freq types.Frequency) *Loader {
	return &Loader{freq: freq}
}

// WithTransform sets a row transform applied during load.
func (l *Loader) WithTransform(t *Transform) *Loader {
	l.transform = t
	return l
}

// Load reads a dataset file. Plain .csv and gzipped .csv.gz files are
// supported; anything else is an UnsupportedFormatError.
func (l *Loader) Load(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(path, ".csv.gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening gzip dataset: %w", err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(path, ".csv"):
	default:
		return nil, &UnsupportedFormatError{Path: path}
	}

	return l.LoadReader(r)
}

// LoadReader reads a dataset from an uncompressed CSV stream, applies
// the optional transform, and returns an imputed frame.
func (l *Loader) LoadReader(r io.Reader) (*Frame, error) {
	rows, err := ReadRows(r)
	if err != nil {
		return nil, err
	}

	if l.transform != nil {
		rows, err = l.transform.Apply(rows)
		if err != nil {
			return nil, fmt.Errorf("applying transform: %w", err)
		}
	}

	frame := NewFrame(l.freq)
	for _, row := range rows {
		frame.Add(row)
	}
	frame.Impute()
	return frame, nil
}

// ReadRows parses the CSV stream into rows, enforcing the required
// schema. Rows with malformed fields fail the load.
func ReadRows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &SchemaError{Missing: RequiredColumns}
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	index, missing := indexColumns(header)
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	var rows []Row
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &RowError{Line: line, Message: err.Error()}
		}

		row, rerr := parseRecord(record, index, line)
		if rerr != nil {
			return nil, rerr
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// indexColumns maps the required column names to header positions and
// reports the ones that are absent.
func indexColumns(header []string) (map[string]int, []string) {
	index := make(map[string]int, len(RequiredColumns))
	for i, col := range header {
		index[strings.TrimSpace(strings.ToLower(col))] = i
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	return index, missing
}

func parseRecord(record []string, index map[string]int, line int) (Row, *RowError) {
	field := func(col string) string {
		i := index[col]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	ts, err := time.Parse(types.TimestampLayout, field("timestamp"))
	if err != nil {
		return Row{}, &RowError{Line: line, Column: "timestamp", Message: fmt.Sprintf("expected %s date, got %q", types.TimestampLayout, field("timestamp"))}
	}

	demandStr := field("demand")
	demand := 0.0
	if demandStr != "" {
		demand, err = strconv.ParseFloat(demandStr, 64)
		if err != nil {
			return Row{}, &RowError{Line: line, Column: "demand", Message: fmt.Sprintf("expected number, got %q", demandStr)}
		}
	}

	key := types.SeriesKey{
		Channel: field("channel"),
		Family:  field("family"),
		ItemID:  field("item_id"),
	}
	if key.ItemID == "" {
		return Row{}, &RowError{Line: line, Column: "item_id", Message: "item_id must not be empty"}
	}

	return Row{Timestamp: ts.UTC(), Key: key, Demand: demand}, nil
}

// ValidationResult collects schema errors and data quality warnings.
type ValidationResult struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// OK reports whether the dataset passed validation.
func (v ValidationResult) OK() bool { return len(v.Errors) == 0 }

// Validate checks a dataset stream without building a frame. Missing
// columns are errors; data oddities are warnings.
func Validate(r io.Reader) ValidationResult {
	var result ValidationResult

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		for _, col := range RequiredColumns {
			result.Errors = append(result.Errors, fmt.Sprintf("missing **%s** column", col))
		}
		return result
	}

	index, missing := indexColumns(header)
	for _, col := range missing {
		result.Errors = append(result.Errors, fmt.Sprintf("missing **%s** column", col))
	}
	if len(header) > len(RequiredColumns) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d extra column(s) will be ignored", len(header)-len(RequiredColumns)))
	}
	if len(missing) > 0 {
		return result
	}

	badRows := 0
	negative := 0
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			badRows++
			continue
		}
		row, rerr := parseRecord(record, index, line)
		if rerr != nil {
			badRows++
			continue
		}
		if row.Demand < 0 {
			negative++
		}
	}

	if badRows > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d row(s) failed to parse", badRows))
	}
	if negative > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d row(s) carry negative demand", negative))
	}
	if line == 1 {
		result.Warnings = append(result.Warnings, "dataset has no data rows")
	}

	return result
}

// ValidateFile opens a dataset path and validates it.
func ValidateFile(path string) (ValidationResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(path, ".csv.gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return ValidationResult{}, fmt.Errorf("opening gzip dataset: %w", err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(path, ".csv"):
	default:
		return ValidationResult{}, &UnsupportedFormatError{Path: path}
	}

	return Validate(r), nil
}

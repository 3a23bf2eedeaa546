package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"sfs/forecast-engine/pkg/types"
)

// JobFile is the YAML document describing one forecast job. Dataset
// points at a file; DatasetID references a catalogued upload instead.
type JobFile struct {
	Name       string               `yaml:"name"`
	Dataset    string               `yaml:"dataset"`
	DatasetID  string               `yaml:"dataset_id"`
	FreqIn     string               `yaml:"freq_in"`
	FreqOut    string               `yaml:"freq_out"`
	Horizon    int                  `yaml:"horizon"`
	ObjMetric  string               `yaml:"obj_metric"`
	CVStride   int                  `yaml:"cv_stride"`
	Backend    string               `yaml:"backend"`
	MaxWorkers int                  `yaml:"max_workers"`
	Transform  string               `yaml:"transform"`
	Outputs    []types.OutputConfig `yaml:"outputs"`
}

// ParseError represents a job file parsing error with location
// information.
type ParseError struct {
	Line    int    // 1-based line where the error occurred
	Column  int    // 1-based column where the error occurred
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error at line %d, column %d: %s", e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a new ParseError.
func NewParseError(line, column int, message string, cause error) *ParseError {
	return &ParseError{
		Line:    line,
		Column:  column,
		Message: message,
		Cause:   cause,
	}
}

// ParseJobFile parses a job definition from bytes. Unknown fields are
// rejected so typos surface as errors instead of silent defaults.
func ParseJobFile(data []byte) (*JobFile, error) {
	var jf JobFile

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&jf); err != nil {
		return nil, wrapYAMLError(err)
	}

	if err := jf.validate(); err != nil {
		return nil, err
	}

	return &jf, nil
}

// LoadJobFile parses a job definition from a file path.
func LoadJobFile(path string) (*JobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewParseError(0, 0, fmt.Sprintf("failed to read file: %s", path), err)
	}
	return ParseJobFile(data)
}

// wrapYAMLError converts a YAML error to a ParseError with line
// information.
func wrapYAMLError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	line, column := extractLineColumn(errStr)
	message := cleanYAMLErrorMessage(errStr)

	return NewParseError(line, column, message, err)
}

// extractLineColumn pulls line and column out of a YAML error message.
func extractLineColumn(errStr string) (int, int) {
	var line, column int

	if idx := strings.Index(errStr, "line "); idx != -1 {
		fmt.Sscanf(errStr[idx:], "line %d", &line)
	}
	if idx := strings.Index(errStr, "column "); idx != -1 {
		fmt.Sscanf(errStr[idx:], "column %d", &column)
	}

	return line, column
}

// cleanYAMLErrorMessage strips the yaml prefix and capitalizes.
func cleanYAMLErrorMessage(errStr string) string {
	errStr = strings.TrimPrefix(errStr, "yaml: ")
	if len(errStr) > 0 {
		errStr = strings.ToUpper(errStr[:1]) + errStr[1:]
	}
	return errStr
}

// validate checks the job file fields ahead of the spec-level
// validation in ToSpec. The dataset reference may be supplied by the
// caller, so its absence is not an error here.
func (f *JobFile) validate() error {
	if f.FreqIn != "" {
		if _, err := types.ParseFrequency(f.FreqIn); err != nil {
			return &ValidationError{Field: "freq_in", Message: err.Error()}
		}
	}
	if f.FreqOut != "" {
		if _, err := types.ParseFrequency(f.FreqOut); err != nil {
			return &ValidationError{Field: "freq_out", Message: err.Error()}
		}
	}
	if f.Horizon < 0 {
		return &ValidationError{Field: "horizon", Message: "horizon must not be negative"}
	}
	for i, out := range f.Outputs {
		if out.Type == "" {
			return &ValidationError{Field: fmt.Sprintf("outputs[%d].type", i), Message: "output type is required"}
		}
	}
	return nil
}

// ToSpec converts the job file into a normalized job spec.
func (f *JobFile) ToSpec() (types.JobSpec, error) {
	freqIn := types.FreqDaily
	if f.FreqIn != "" {
		freqIn, _ = types.ParseFrequency(f.FreqIn)
	}
	freqOut := freqIn
	if f.FreqOut != "" {
		freqOut, _ = types.ParseFrequency(f.FreqOut)
	}

	spec := types.JobSpec{
		Name:        f.Name,
		DatasetPath: f.Dataset,
		DatasetID:   f.DatasetID,
		FreqIn:      freqIn,
		FreqOut:     freqOut,
		Horizon:     f.Horizon,
		ObjMetric:   f.ObjMetric,
		CVStride:    f.CVStride,
		Backend:     types.Backend(f.Backend),
		MaxWorkers:  f.MaxWorkers,
		Transform:   f.Transform,
	}
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return types.JobSpec{}, err
	}
	return spec, nil
}

package dataset

import (
	"fmt"

	"sfs/forecast-engine/pkg/types"
)

// Prepared bundles everything a forecast job needs from its dataset.
type Prepared struct {
	// Input is the imputed frame at the input frequency; Output the
	// frame resampled to the forecast frequency. They are the same
	// frame when no resampling is needed.
	Input  *Frame
	Output *Frame

	// Health and Class are computed on the input frame, before
	// resampling.
	Health *types.HealthSummary
	Class  *types.Classification
}

// Prepare runs the standard dataset pipeline for a job: load the CSV
// at the input frequency, apply the optional row transform, impute
// missing periods, summarize health and classification, then resample
// to the forecast frequency.
func Prepare(path string, spec *types.JobSpec) (*Prepared, error) {
	loader := NewLoader(spec.FreqIn)

	if spec.Transform != "" {
		transform, err := CompileTransform(spec.Transform)
		if err != nil {
			return nil, err
		}
		loader = loader.WithTransform(transform)
	}

	frame, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	if frame.NumSeries() == 0 {
		return nil, fmt.Errorf("dataset %s contains no series", path)
	}

	prep := &Prepared{
		Input:  frame,
		Output: frame,
		Health: ComputeHealth(frame),
		Class:  Classify(frame),
	}

	if spec.FreqOut != "" && spec.FreqOut != spec.FreqIn {
		prep.Output = frame.Resample(spec.FreqOut)
	}

	return prep, nil
}

// Package report renders finished forecast jobs: console summaries,
// CSV exports and JSONPath-queryable JSON documents.
package report

import (
	"path/filepath"
	"strings"

	"sfs/forecast-engine/pkg/types"
)

// BaseName returns the export file stem for a job: the job name when
// set, otherwise the dataset file name without its extension.
func BaseName(spec *types.JobSpec) string {
	if spec.Name != "" {
		return spec.Name
	}
	base := filepath.Base(spec.DatasetPath)
	base = strings.TrimSuffix(base, ".gz")
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." {
		return "forecast"
	}
	return base
}

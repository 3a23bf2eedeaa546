package report

import (
	"fmt"

	"github.com/ohler55/ojg/jp"

	"sfs/forecast-engine/internal/jsonutil"
	"sfs/forecast-engine/pkg/types"
)

// MarshalReport returns the indented JSON document of a report.
func MarshalReport(report *types.JobReport) ([]byte, error) {
	return jsonutil.MarshalIndent(report)
}

// Query evaluates a JSONPath expression, e.g. $.perf.accuracy or
// $.top[0].key.item_id, against the report document. A single match is
// returned bare; multiple matches as a slice.
func Query(report *types.JobReport, expression string) (any, error) {
	data, err := jsonutil.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}

	var doc any
	if err := jsonutil.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}

	path, err := jp.ParseString(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath expression %q: %w", expression, err)
	}

	results := path.Get(doc)
	if len(results) == 0 {
		return nil, fmt.Errorf("JSONPath %q returned no results", expression)
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return results, nil
}

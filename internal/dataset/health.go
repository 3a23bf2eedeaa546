package dataset

import (
	"sort"

	"github.com/duke-git/lancet/v2/mathutil"
	"github.com/duke-git/lancet/v2/slice"

	"sfs/forecast-engine/pkg/types"
)

// ComputeHealth builds the dataset health report from an imputed frame.
// Per-series rows carry the spanned, missing and observed period counts;
// the summary aggregates them and the overall missing fraction.
func ComputeHealth(f *Frame) *types.HealthSummary {
	summary := &types.HealthSummary{Freq: f.Freq()}

	keys := f.Keys()
	if len(keys) == 0 {
		return summary
	}

	rows := make([]types.SeriesHealth, 0, len(keys))
	lengths := make([]int, 0, len(keys))

	var totalLen, totalMissing int
	for _, key := range keys {
		s, ok := f.Get(key)
		if !ok || s.Len() == 0 {
			continue
		}
		h := seriesHealth(s)
		rows = append(rows, h)
		lengths = append(lengths, h.DemandLen)
		totalLen += h.DemandLen
		totalMissing += h.DemandMissingDates

		if summary.FirstDate.IsZero() || h.TimestampMin.Before(summary.FirstDate) {
			summary.FirstDate = h.TimestampMin
		}
		if h.TimestampMax.After(summary.LastDate) {
			summary.LastDate = h.TimestampMax
		}
	}
	if len(rows) == 0 {
		return summary
	}

	summary.Series = rows
	summary.NumSeries = len(rows)
	summary.NumChannels = len(slice.Unique(slice.Map(keys, func(_ int, k types.SeriesKey) string { return k.Channel })))
	summary.NumFamilies = len(slice.Unique(slice.Map(keys, func(_ int, k types.SeriesKey) string { return k.Family })))
	summary.NumItemIDs = len(slice.Unique(slice.Map(keys, func(_ int, k types.SeriesKey) string { return k.ItemID })))
	summary.Duration = f.Freq().PeriodsBetween(summary.FirstDate, summary.LastDate) + 1
	if totalLen > 0 {
		summary.PctMissing = float64(totalMissing) / float64(totalLen)
	}
	summary.Lengths = lengthStats(lengths)
	return summary
}

func seriesHealth(s *types.Series) types.SeriesHealth {
	return types.SeriesHealth{
		Key:                s.Key,
		TimestampMin:       s.First().Timestamp,
		TimestampMax:       s.Last().Timestamp,
		DemandLen:          s.Len(),
		DemandMissingDates: s.MissingCount(),
		DemandNonNullCount: s.ObservedCount(),
	}
}

func lengthStats(lengths []int) types.LengthStats {
	if len(lengths) == 0 {
		return types.LengthStats{}
	}
	sorted := make([]int, len(lengths))
	copy(sorted, lengths)
	sort.Ints(sorted)

	return types.LengthStats{
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   mathutil.Average(slice.Map(sorted, func(_ int, n int) float64 { return float64(n) })...),
		Median: median(sorted),
	}
}

// median of a sorted int slice.
func median(sorted []int) float64 {
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}

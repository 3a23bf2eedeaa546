package dataset

import (
	"math"

	"sfs/forecast-engine/pkg/types"
)

// Classification thresholds.
const (
	// shortMinObserved is the minimum observed periods for a series to
	// leave the short category.
	shortMinObserved = 8

	// continuousMaxMissing is the largest missing fraction a continuous
	// series may have.
	continuousMaxMissing = 0.2
)

// Classify buckets every series into short, medium or continuous demand.
// Short series have too little history to cross-validate, continuous
// series are long with few gaps, medium is everything in between.
func Classify(f *Frame) *types.Classification {
	class := &types.Classification{
		ByKey: make(map[types.SeriesKey]string),
		Perc:  make(map[string]int, len(types.Categories)),
	}
	for _, cat := range types.Categories {
		class.Perc[cat] = 0
	}

	keys := f.Keys()
	counts := make(map[string]int, len(types.Categories))
	total := 0
	for _, key := range keys {
		s, ok := f.Get(key)
		if !ok || s.Len() == 0 {
			continue
		}
		cat := classifySeries(s)
		class.ByKey[key] = cat
		counts[cat]++
		total++
	}
	if total == 0 {
		return class
	}

	for _, cat := range types.Categories {
		class.Perc[cat] = int(math.Round(float64(counts[cat]) / float64(total) * 100))
	}
	return class
}

func classifySeries(s *types.Series) string {
	if s.ObservedCount() < shortMinObserved {
		return types.CategoryShort
	}
	missing := float64(s.MissingCount()) / float64(s.Len())
	if missing <= continuousMaxMissing {
		return types.CategoryContinuous
	}
	return types.CategoryMedium
}

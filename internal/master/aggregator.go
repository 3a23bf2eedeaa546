package master

import (
	"sort"

	"sfs/forecast-engine/pkg/types"
)

// topSeriesCount is the length of the top-demand ranking in reports.
const topSeriesCount = 10

// ReportAggregator implements the Aggregator interface.
type ReportAggregator struct{}

// NewReportAggregator creates a new report aggregator.
func NewReportAggregator() *ReportAggregator {
	return &ReportAggregator{}
}

// Merge folds a batch result into the accumulated series results.
func (a *ReportAggregator) Merge(results []types.SeriesResult, batch *types.BatchResult) []types.SeriesResult {
	if batch == nil {
		return results
	}
	return append(results, batch.Results...)
}

// BuildReport assembles the final report from the merged series
// results.
func (a *ReportAggregator) BuildReport(job *types.JobState, results []types.SeriesResult, health *types.HealthSummary, class *types.Classification) *types.JobReport {
	report := &types.JobReport{
		JobID:   job.ID,
		Spec:    job.Spec,
		Health:  health,
		Class:   class,
		Results: results,
		Elapsed: job.Duration(),
	}

	for i := range results {
		if results[i].Failed() {
			report.Failed++
		}
	}

	report.Perf = a.buildPerfSummary(results)
	report.Top = a.topByDemand(results, topSeriesCount)

	return report
}

// buildPerfSummary computes error means and the winning-model
// distribution over the series that produced a forecast.
func (a *ReportAggregator) buildPerfSummary(results []types.SeriesResult) *types.PerfSummary {
	perf := &types.PerfSummary{
		ModelDist: []types.ModelShare{},
	}

	wins := make(map[string]int)
	var errSum, naiveErrSum float64
	var scored int

	for i := range results {
		r := &results[i]
		if r.Failed() {
			continue
		}
		wins[r.ModelID]++
		errSum += r.SMAPEMean
		naiveErrSum += r.NaiveSMAPEMean
		scored++
	}

	if scored == 0 {
		return perf
	}

	perf.ErrMean = errSum / float64(scored)
	perf.NaiveErrMean = naiveErrSum / float64(scored)
	perf.Accuracy = (1 - perf.ErrMean) * 100
	perf.NaiveAccuracy = (1 - perf.NaiveErrMean) * 100
	perf.AccIncrease = perf.Accuracy - perf.NaiveAccuracy

	for modelID, count := range wins {
		perf.ModelDist = append(perf.ModelDist, types.ModelShare{
			ModelID: modelID,
			Perc:    float64(count) / float64(scored) * 100,
		})
	}

	// Largest share first, model ID as tie-breaker.
	sort.SliceStable(perf.ModelDist, func(i, j int) bool {
		if perf.ModelDist[i].Perc != perf.ModelDist[j].Perc {
			return perf.ModelDist[i].Perc > perf.ModelDist[j].Perc
		}
		return perf.ModelDist[i].ModelID < perf.ModelDist[j].ModelID
	})

	return perf
}

// topByDemand ranks series by total historical demand, largest first.
func (a *ReportAggregator) topByDemand(results []types.SeriesResult, n int) []types.TopSeries {
	type ranked struct {
		key    types.SeriesKey
		demand float64
	}

	entries := make([]ranked, 0, len(results))
	for i := range results {
		r := &results[i]
		if r.Failed() {
			continue
		}
		entries = append(entries, ranked{key: r.Key, demand: totalActualDemand(r)})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].demand != entries[j].demand {
			return entries[i].demand > entries[j].demand
		}
		return entries[i].key.String() < entries[j].key.String()
	})

	if len(entries) > n {
		entries = entries[:n]
	}

	top := make([]types.TopSeries, len(entries))
	for i, entry := range entries {
		top[i] = types.TopSeries{
			Rank:   i + 1,
			Key:    entry.key,
			Demand: entry.demand,
		}
	}
	return top
}

func totalActualDemand(r *types.SeriesResult) float64 {
	var sum float64
	for _, p := range r.Points {
		if p.Type == types.PointActual {
			sum += p.Demand
		}
	}
	return sum
}

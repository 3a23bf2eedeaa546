package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"sfs/forecast-engine/pkg/types"
)

const labelWidth = 21

// Render writes the dotted-label console summary of a finished job.
func Render(w io.Writer, report *types.JobReport) {
	spec := &report.Spec

	fmt.Fprintln(w)
	fmt.Fprintln(w, "     Forecast results:")
	fmt.Fprintln(w)

	line(w, "Status", "completed")
	line(w, "Dataset", "%s", BaseName(spec))
	if spec.FreqOut != "" && spec.FreqOut != spec.FreqIn {
		line(w, "Frequency", "%s resampled to %s", spec.FreqIn, spec.FreqOut)
	} else {
		line(w, "Frequency", "%s", spec.FreqIn)
	}
	line(w, "Horizon", "%d periods", spec.Horizon)
	if report.Failed > 0 {
		line(w, "Series", "%d (%d failed)", len(report.Results), report.Failed)
	} else {
		line(w, "Series", "%d", len(report.Results))
	}
	line(w, "Total time", "%s", report.Elapsed.Round(time.Millisecond))

	if report.Health != nil {
		renderHealth(w, report.Health)
	}
	if report.Class != nil {
		renderClassification(w, report.Class)
	}
	if report.Perf != nil && len(report.Perf.ModelDist) > 0 {
		renderModelDist(w, report.Perf)
	}
	if len(report.Top) > 0 {
		renderTop(w, report.Top)
	}

	if report.Perf != nil {
		fmt.Fprintln(w)
		line(w, "Forecast accuracy", "%.1f%% (%.1f%% increase vs. naive)",
			report.Perf.Accuracy, report.Perf.AccIncrease)
	}

	fmt.Fprintln(w)
}

func renderHealth(w io.Writer, health *types.HealthSummary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "     Dataset health:")
	fmt.Fprintln(w)

	line(w, "Date range", "%s to %s",
		health.FirstDate.Format(types.TimestampLayout),
		health.LastDate.Format(types.TimestampLayout))
	line(w, "Series count", "%d (%d channels, %d families, %d items)",
		health.NumSeries, health.NumChannels, health.NumFamilies, health.NumItemIDs)
	line(w, "Missing periods", "%.2f%%", health.PctMissing*100)
	line(w, "Series length", "min %d / median %.1f / mean %.1f / max %d",
		health.Lengths.Min, health.Lengths.Median, health.Lengths.Mean, health.Lengths.Max)
}

func renderClassification(w io.Writer, class *types.Classification) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "     Demand classification:")
	fmt.Fprintln(w)

	for _, category := range types.Categories {
		line(w, category, "%d%%", class.Perc[category])
	}
}

func renderModelDist(w io.Writer, perf *types.PerfSummary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "     Best model distribution:")
	fmt.Fprintln(w)

	for _, share := range perf.ModelDist {
		line(w, share.ModelID, "%.1f%%", share.Perc)
	}
}

func renderTop(w io.Writer, top []types.TopSeries) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "     Top series by demand:")
	fmt.Fprintln(w)

	for _, entry := range top {
		fmt.Fprintf(w, "     %3d. %-40s %12.0f\n", entry.Rank, entry.Key.String(), entry.Demand)
	}
}

func line(w io.Writer, label, format string, args ...any) {
	dots := labelWidth - len(label)
	if dots < 2 {
		dots = 2
	}
	fmt.Fprintf(w, "     %s%s: %s\n", label, strings.Repeat(".", dots), fmt.Sprintf(format, args...))
}

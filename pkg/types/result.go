package types

import "time"

// Forecast point types, matching the original predictions output.
const (
	// PointActual marks a historical observation.
	PointActual = "actual"
	// PointForecast marks a forecast value.
	PointForecast = "fcast"
)

// ForecastPoint is one row of the predictions output.
type ForecastPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Demand    float64   `json:"demand"`
	Type      string    `json:"type"` // actual | fcast
}

// SeriesResult is the outcome of model selection for one series.
type SeriesResult struct {
	Key SeriesKey `json:"key"`

	// ModelID identifies the winning model.
	ModelID string `json:"model_type"`

	// SMAPEMean and SMAPEStd summarize the winner's cross-validation error.
	SMAPEMean float64 `json:"smape_mean"`
	SMAPEStd  float64 `json:"smape_std"`

	// NaiveSMAPEMean is the naive baseline's error over the same windows.
	NaiveSMAPEMean float64 `json:"naive_smape_mean"`

	// CVWindows is the number of rolling origins evaluated.
	CVWindows int `json:"cv_windows"`

	// Points holds the actual history followed by the forecast.
	Points []ForecastPoint `json:"points,omitempty"`

	// Err is set when the series failed to forecast.
	Err string `json:"error,omitempty"`
}

// Failed reports whether the series produced no forecast.
func (r *SeriesResult) Failed() bool { return r.Err != "" }

// ModelShare is one slice of the winning-model distribution.
type ModelShare struct {
	ModelID string  `json:"model_type"`
	Perc    float64 `json:"perc"`
}

// PerfSummary aggregates forecast performance across all series.
type PerfSummary struct {
	// ModelDist is the distribution of winning models, percentages summing
	// to 100 over the non-failed series. Zero shares are omitted.
	ModelDist []ModelShare `json:"model_dist"`

	// ErrMean is the mean winner sMAPE; NaiveErrMean the mean baseline
	// sMAPE over the same series.
	ErrMean      float64 `json:"err_mean"`
	NaiveErrMean float64 `json:"naive_err_mean"`

	// Accuracy is (1 - ErrMean) * 100; AccIncrease is the gain over the
	// naive baseline in accuracy points.
	Accuracy      float64 `json:"accuracy"`
	NaiveAccuracy float64 `json:"naive_accuracy"`
	AccIncrease   float64 `json:"acc_increase"`
}

// SeriesHealth is one row of the per-series health summary.
type SeriesHealth struct {
	Key SeriesKey `json:"key"`

	TimestampMin time.Time `json:"timestamp_min"`
	TimestampMax time.Time `json:"timestamp_max"`

	// DemandLen counts periods spanned, DemandMissingDates the imputed
	// periods, DemandNonNullCount the observed periods.
	DemandLen          int `json:"demand_len"`
	DemandMissingDates int `json:"demand_missing_dates"`
	DemandNonNullCount int `json:"demand_nonnull_count"`
}

// LengthStats summarizes the distribution of series lengths.
type LengthStats struct {
	Min    int     `json:"min"`
	Median float64 `json:"median"`
	Mean   float64 `json:"mean"`
	Max    int     `json:"max"`
}

// HealthSummary is the dataset-level health report.
type HealthSummary struct {
	Freq        Frequency      `json:"freq"`
	NumSeries   int            `json:"num_series"`
	NumChannels int            `json:"num_channels"`
	NumFamilies int            `json:"num_families"`
	NumItemIDs  int            `json:"num_item_ids"`
	FirstDate   time.Time      `json:"first_date"`
	LastDate    time.Time      `json:"last_date"`
	Duration    int            `json:"duration"`    // in frequency units
	PctMissing  float64        `json:"pct_missing"` // sum(missing)/sum(len)
	Lengths     LengthStats    `json:"lengths"`
	Series      []SeriesHealth `json:"series,omitempty"`
}

// Demand classification categories, in display order.
const (
	// CategoryShort marks series with too little history.
	CategoryShort = "short"
	// CategoryMedium marks series with gappy history.
	CategoryMedium = "medium"
	// CategoryContinuous marks long, regular series.
	CategoryContinuous = "continuous"
)

// Categories lists the classification labels in display order.
var Categories = []string{CategoryShort, CategoryMedium, CategoryContinuous}

// Classification is the demand classification of a dataset.
type Classification struct {
	// ByKey maps each series to its category.
	ByKey map[SeriesKey]string `json:"-"`

	// Perc holds integer percentages per category label, including zero
	// entries, in Categories order.
	Perc map[string]int `json:"perc"`
}

// TopSeries is one row of the top-demand ranking.
type TopSeries struct {
	Rank   int       `json:"rank"`
	Key    SeriesKey `json:"key"`
	Demand float64   `json:"demand"`
}

// JobReport is the complete result bundle of a finished job.
type JobReport struct {
	JobID  string          `json:"job_id"`
	Spec   JobSpec         `json:"spec"`
	Health *HealthSummary  `json:"health,omitempty"`
	Class  *Classification `json:"classification,omitempty"`
	Perf   *PerfSummary    `json:"perf"`
	Top    []TopSeries     `json:"top"`

	// Results holds one entry per series; Failed counts series with errors.
	Results []SeriesResult `json:"results"`
	Failed  int            `json:"failed"`

	Elapsed time.Duration `json:"elapsed"`
}

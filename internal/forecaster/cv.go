package forecaster

import (
	"fmt"

	"sfs/forecast-engine/pkg/types"
)

// ObjSMAPEMean is the cross-validation objective metric.
const ObjSMAPEMean = "smape_mean"

// DefaultStride is the step the rolling origin walks back by.
const DefaultStride = 2

// Options configure cross-validated model selection.
type Options struct {
	// Horizon is the number of future periods to forecast, at least 1.
	Horizon int

	// Freq sets the season length and the forecast timestamps.
	Freq types.Frequency

	// ObjMetric selects the objective. Only smape_mean is supported;
	// empty means smape_mean.
	ObjMetric string

	// Stride is the rolling-origin step, DefaultStride when zero.
	Stride int

	// Models restricts the zoo. Empty means the whole default zoo.
	Models []string

	// MaxWindows caps the number of CV windows, zero means no cap.
	MaxWindows int
}

func (o Options) withDefaults() (Options, error) {
	if o.Horizon < 1 {
		return o, fmt.Errorf("horizon must be at least 1, got %d", o.Horizon)
	}
	if !o.Freq.Valid() {
		return o, fmt.Errorf("unknown frequency: %s", o.Freq)
	}
	if o.ObjMetric == "" {
		o.ObjMetric = ObjSMAPEMean
	}
	if o.ObjMetric != ObjSMAPEMean {
		return o, fmt.Errorf("unsupported objective metric: %s", o.ObjMetric)
	}
	if o.Stride <= 0 {
		o.Stride = DefaultStride
	}
	return o, nil
}

// CVSelect picks the winning model for one series by rolling-origin
// cross-validation and returns its forecast.
//
// Origins walk back from the series end in steps of the stride. At
// each origin every model is fit on the prefix and scored on the next
// min(horizon, remaining) actuals with sMAPE. The winner minimizes
// the mean sMAPE across windows and is refit on the full series for
// the final forecast. Series with fewer than two points skip CV and
// get the naive forecast.
func CVSelect(s *types.Series, o Options) (*types.SeriesResult, error) {
	opts, err := o.withDefaults()
	if err != nil {
		return nil, err
	}
	if s == nil || s.Len() == 0 {
		return nil, fmt.Errorf("series has no points")
	}

	y := s.Demand()
	if len(y) < 2 {
		return shortSeriesResult(s, opts)
	}

	season := opts.Freq.SeasonLength()
	zoo, err := NewZoo(opts.Models, season)
	if err != nil {
		return nil, err
	}

	origins := cvOrigins(len(y), opts.Stride, opts.MaxWindows)
	scores := make(map[string][]float64, len(zoo))
	naiveScores := make([]float64, 0, len(origins))
	baseline := &naiveModel{}

	for _, t := range origins {
		train := y[:t]
		end := t + opts.Horizon
		if end > len(y) {
			end = len(y)
		}
		test := y[t:end]

		for _, m := range zoo {
			if err := m.Fit(train); err != nil {
				return nil, fmt.Errorf("fitting %s: %w", m.ID(), err)
			}
			pred := clampZero(m.Forecast(len(test)))
			scores[m.ID()] = append(scores[m.ID()], SMAPE(test, pred))
		}

		// The baseline is scored regardless of the zoo selection.
		if err := baseline.Fit(train); err != nil {
			return nil, fmt.Errorf("fitting baseline: %w", err)
		}
		pred := clampZero(baseline.Forecast(len(test)))
		naiveScores = append(naiveScores, SMAPE(test, pred))
	}

	winner := zoo[0]
	winnerMean := mean(scores[winner.ID()])
	for _, m := range zoo[1:] {
		if sm := mean(scores[m.ID()]); sm < winnerMean {
			winner = m
			winnerMean = sm
		}
	}

	if err := winner.Fit(y); err != nil {
		return nil, fmt.Errorf("refitting %s: %w", winner.ID(), err)
	}
	forecast := clampZero(winner.Forecast(opts.Horizon))

	return &types.SeriesResult{
		Key:            s.Key,
		ModelID:        winner.ID(),
		SMAPEMean:      winnerMean,
		SMAPEStd:       stddev(scores[winner.ID()]),
		NaiveSMAPEMean: mean(naiveScores),
		CVWindows:      len(origins),
		Points:         buildPoints(s, forecast, opts.Freq),
	}, nil
}

// shortSeriesResult forecasts a sub-2-point series with the naive
// model, a single window and zero spread.
func shortSeriesResult(s *types.Series, opts Options) (*types.SeriesResult, error) {
	m := &naiveModel{}
	if err := m.Fit(s.Demand()); err != nil {
		return nil, err
	}
	forecast := clampZero(m.Forecast(opts.Horizon))

	return &types.SeriesResult{
		Key:       s.Key,
		ModelID:   ModelNaive,
		CVWindows: 1,
		Points:    buildPoints(s, forecast, opts.Freq),
	}, nil
}

// cvOrigins returns the fit-prefix lengths for each rolling window,
// newest first.
func cvOrigins(n, stride, maxWindows int) []int {
	var origins []int
	for t := n - 1; t >= 1; t -= stride {
		origins = append(origins, t)
		if maxWindows > 0 && len(origins) >= maxWindows {
			break
		}
	}
	return origins
}

// buildPoints lays out the history as actual points followed by the
// forecast points at future period starts.
func buildPoints(s *types.Series, forecast []float64, freq types.Frequency) []types.ForecastPoint {
	points := make([]types.ForecastPoint, 0, s.Len()+len(forecast))
	for _, p := range s.Points {
		points = append(points, types.ForecastPoint{
			Timestamp: p.Timestamp,
			Demand:    p.Demand,
			Type:      types.PointActual,
		})
	}
	last := s.Last().Timestamp
	for i, v := range forecast {
		points = append(points, types.ForecastPoint{
			Timestamp: freq.Add(last, i+1),
			Demand:    v,
			Type:      types.PointForecast,
		})
	}
	return points
}

package forecaster

import "math"

// SMAPE is the symmetric mean absolute percentage error,
// mean(2|y-f| / (|y|+|f|)), in [0, 2]. A term where both values are
// zero contributes zero. Slices must have equal length.
func SMAPE(actual, forecast []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	var sum float64
	for i, y := range actual {
		f := forecast[i]
		denom := math.Abs(y) + math.Abs(f)
		if denom == 0 {
			continue
		}
		sum += 2 * math.Abs(y-f) / denom
	}
	return sum / float64(len(actual))
}

// WAPE is the weighted absolute percentage error,
// sum|y-f| / sum|y|, zero when there is no actual demand at all.
func WAPE(actual, forecast []float64) float64 {
	var num, denom float64
	for i, y := range actual {
		num += math.Abs(y - forecast[i])
		denom += math.Abs(y)
	}
	if denom == 0 {
		return 0
	}
	return num / denom
}

// mean of a non-empty slice, zero when empty.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the sample standard deviation, zero for fewer than two
// values.
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// clampZero floors forecasts at zero in place; demand cannot go
// negative.
func clampZero(values []float64) []float64 {
	for i, v := range values {
		if v < 0 {
			values[i] = 0
		}
	}
	return values
}

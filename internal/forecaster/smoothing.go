package forecaster

import "math"

func init() {
	RegisterModel(ModelSES, func(int) Model { return &sesModel{} })
	RegisterModel(ModelHolt, func(int) Model { return &holtModel{} })
}

// holtDamping is the trend damping factor for the Holt model.
const holtDamping = 0.98

var (
	sesAlphaGrid  = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9}
	holtAlphaGrid = []float64{0.2, 0.4, 0.6, 0.8}
	holtBetaGrid  = []float64{0.05, 0.15, 0.3}
)

// sesModel is simple exponential smoothing. Fit scans the alpha grid
// and keeps the level with the lowest one-step squared error.
type sesModel struct {
	level float64
}

func (m *sesModel) ID() string { return ModelSES }

func (m *sesModel) Fit(demand []float64) error {
	if len(demand) == 0 {
		return ErrNoHistory
	}

	bestSSE := math.Inf(1)
	bestLevel := demand[len(demand)-1]
	for _, alpha := range sesAlphaGrid {
		level := demand[0]
		var sse float64
		for _, y := range demand[1:] {
			err := y - level
			sse += err * err
			level = alpha*y + (1-alpha)*level
		}
		if sse < bestSSE {
			bestSSE = sse
			bestLevel = level
		}
	}
	m.level = bestLevel
	return nil
}

func (m *sesModel) Forecast(horizon int) []float64 {
	out := make([]float64, horizon)
	for i := range out {
		out[i] = m.level
	}
	return out
}

// holtModel is damped Holt linear trend smoothing over a small
// (alpha, beta) grid.
type holtModel struct {
	level float64
	trend float64
}

func (m *holtModel) ID() string { return ModelHolt }

func (m *holtModel) Fit(demand []float64) error {
	n := len(demand)
	if n == 0 {
		return ErrNoHistory
	}
	if n == 1 {
		m.level = demand[0]
		m.trend = 0
		return nil
	}

	bestSSE := math.Inf(1)
	for _, alpha := range holtAlphaGrid {
		for _, beta := range holtBetaGrid {
			level := demand[0]
			trend := demand[1] - demand[0]
			var sse float64
			for _, y := range demand[1:] {
				f := level + holtDamping*trend
				err := y - f
				sse += err * err

				prevLevel := level
				level = alpha*y + (1-alpha)*(level+holtDamping*trend)
				trend = beta*(level-prevLevel) + (1-beta)*holtDamping*trend
			}
			if sse < bestSSE {
				bestSSE = sse
				m.level = level
				m.trend = trend
			}
		}
	}
	return nil
}

func (m *holtModel) Forecast(horizon int) []float64 {
	out := make([]float64, horizon)
	damp := 0.0
	pow := 1.0
	for h := 0; h < horizon; h++ {
		pow *= holtDamping
		damp += pow
		out[h] = m.level + damp*m.trend
	}
	return out
}

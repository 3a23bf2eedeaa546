package forecaster

func init() {
	RegisterModel(ModelNaive, func(int) Model { return &naiveModel{} })
	RegisterModel(ModelSNaive, func(season int) Model { return &snaiveModel{season: season} })
	RegisterModel(ModelDrift, func(int) Model { return &driftModel{} })
}

// naiveModel repeats the last observation. It doubles as the accuracy
// baseline every other model is measured against.
type naiveModel struct {
	last float64
}

func (m *naiveModel) ID() string { return ModelNaive }

func (m *naiveModel) Fit(demand []float64) error {
	if len(demand) == 0 {
		return ErrNoHistory
	}
	m.last = demand[len(demand)-1]
	return nil
}

func (m *naiveModel) Forecast(horizon int) []float64 {
	out := make([]float64, horizon)
	for i := range out {
		out[i] = m.last
	}
	return out
}

// snaiveModel repeats the value one season earlier. Histories shorter
// than one season fall back to the naive forecast.
type snaiveModel struct {
	season  int
	history []float64
}

func (m *snaiveModel) ID() string { return ModelSNaive }

func (m *snaiveModel) Fit(demand []float64) error {
	if len(demand) == 0 {
		return ErrNoHistory
	}
	m.history = demand
	return nil
}

func (m *snaiveModel) Forecast(horizon int) []float64 {
	out := make([]float64, horizon)
	n := len(m.history)
	if m.season < 1 || n < m.season {
		for i := range out {
			out[i] = m.history[n-1]
		}
		return out
	}
	for h := 1; h <= horizon; h++ {
		out[h-1] = m.history[n-m.season+((h-1)%m.season)]
	}
	return out
}

// driftModel extends the last value by the mean first difference.
type driftModel struct {
	last  float64
	slope float64
}

func (m *driftModel) ID() string { return ModelDrift }

func (m *driftModel) Fit(demand []float64) error {
	n := len(demand)
	if n == 0 {
		return ErrNoHistory
	}
	m.last = demand[n-1]
	m.slope = 0
	if n >= 2 {
		m.slope = (demand[n-1] - demand[0]) / float64(n-1)
	}
	return nil
}

func (m *driftModel) Forecast(horizon int) []float64 {
	out := make([]float64, horizon)
	for h := 1; h <= horizon; h++ {
		out[h-1] = m.last + m.slope*float64(h)
	}
	return out
}

package forecaster

func init() {
	RegisterModel(ModelMA3, func(int) Model { return &movingAvgModel{id: ModelMA3, window: 3} })
	RegisterModel(ModelMA6, func(int) Model { return &movingAvgModel{id: ModelMA6, window: 6} })
	RegisterModel(ModelMA12, func(int) Model { return &movingAvgModel{id: ModelMA12, window: 12} })
}

// movingAvgModel forecasts the trailing window mean. Histories shorter
// than the window average whatever is there.
type movingAvgModel struct {
	id     string
	window int
	level  float64
}

func (m *movingAvgModel) ID() string { return m.id }

func (m *movingAvgModel) Fit(demand []float64) error {
	n := len(demand)
	if n == 0 {
		return ErrNoHistory
	}
	w := m.window
	if w > n {
		w = n
	}
	var sum float64
	for _, v := range demand[n-w:] {
		sum += v
	}
	m.level = sum / float64(w)
	return nil
}

func (m *movingAvgModel) Forecast(horizon int) []float64 {
	out := make([]float64, horizon)
	for i := range out {
		out[i] = m.level
	}
	return out
}

package forecaster

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Model identifiers.
const (
	ModelNaive  = "naive"
	ModelSNaive = "snaive"
	ModelDrift  = "drift"
	ModelMA3    = "ma3"
	ModelMA6    = "ma6"
	ModelMA12   = "ma12"
	ModelSES    = "ses"
	ModelHolt   = "holt"
)

// DefaultModels lists the full zoo in evaluation order. Ties on the
// objective break toward the earlier, simpler model.
var DefaultModels = []string{
	ModelNaive, ModelSNaive, ModelDrift,
	ModelMA3, ModelMA6, ModelMA12,
	ModelSES, ModelHolt,
}

// ErrNoHistory is returned when a model is fit on an empty series.
var ErrNoHistory = errors.New("model needs at least one observation")

// Model produces point forecasts from a fitted demand history.
type Model interface {
	// ID returns the model identifier.
	ID() string

	// Fit estimates the model state from the demand history.
	Fit(demand []float64) error

	// Forecast returns horizon point forecasts. Fit must have been
	// called first.
	Forecast(horizon int) []float64
}

// Factory builds a fresh model for a seasonal period length.
type Factory func(season int) Model

var (
	modelMu  sync.RWMutex
	modelZoo = make(map[string]Factory)
)

// RegisterModel adds a model constructor under an identifier.
// Registering a duplicate identifier panics.
func RegisterModel(id string, factory Factory) {
	modelMu.Lock()
	defer modelMu.Unlock()
	if _, dup := modelZoo[id]; dup {
		panic(fmt.Sprintf("model %q registered twice", id))
	}
	modelZoo[id] = factory
}

// NewModel builds a registered model.
func NewModel(id string, season int) (Model, error) {
	modelMu.RLock()
	factory, ok := modelZoo[id]
	modelMu.RUnlock()
	if !ok {
		return nil, &UnknownModelError{ID: id}
	}
	return factory(season), nil
}

// NewZoo builds the requested models, or the whole default zoo when ids
// is empty.
func NewZoo(ids []string, season int) ([]Model, error) {
	if len(ids) == 0 {
		ids = DefaultModels
	}
	zoo := make([]Model, 0, len(ids))
	for _, id := range ids {
		m, err := NewModel(id, season)
		if err != nil {
			return nil, err
		}
		zoo = append(zoo, m)
	}
	return zoo, nil
}

// ModelIDs returns the registered identifiers, sorted.
func ModelIDs() []string {
	modelMu.RLock()
	defer modelMu.RUnlock()
	ids := make([]string, 0, len(modelZoo))
	for id := range modelZoo {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UnknownModelError reports a model identifier with no registration.
type UnknownModelError struct {
	ID string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model: %s", e.ID)
}

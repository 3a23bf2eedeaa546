package types

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the date format of the input data, %Y-%m-%d.
const TimestampLayout = "2006-01-02"

// SeriesKey identifies a single demand time series.
// Each series is keyed by its channel, family and item_id.
type SeriesKey struct {
	Channel string `json:"channel"`
	Family  string `json:"family"`
	ItemID  string `json:"item_id"`
}

// String returns the canonical channel/family/item_id form.
func (k SeriesKey) String() string {
	return k.Channel + "/" + k.Family + "/" + k.ItemID
}

// IsZero reports whether all key components are empty.
func (k SeriesKey) IsZero() bool {
	return k.Channel == "" && k.Family == "" && k.ItemID == ""
}

// ParseSeriesKey parses a channel/family/item_id string.
func ParseSeriesKey(s string) (SeriesKey, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 {
		return SeriesKey{}, fmt.Errorf("invalid series key: %s", s)
	}
	return SeriesKey{Channel: parts[0], Family: parts[1], ItemID: parts[2]}, nil
}

// DataPoint is one demand observation at a period start.
type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Demand    float64   `json:"demand"`

	// Missing marks a period that had no observation in the input and was
	// filled with zero demand during imputation.
	Missing bool `json:"missing,omitempty"`
}

// Series is an ordered, gap-free demand history for one key.
type Series struct {
	Key    SeriesKey   `json:"key"`
	Points []DataPoint `json:"points"`
}

// Len returns the number of points in the series.
func (s *Series) Len() int { return len(s.Points) }

// ObservedCount returns the number of non-imputed points.
func (s *Series) ObservedCount() int {
	n := 0
	for _, p := range s.Points {
		if !p.Missing {
			n++
		}
	}
	return n
}

// MissingCount returns the number of imputed points.
func (s *Series) MissingCount() int {
	return len(s.Points) - s.ObservedCount()
}

// Demand returns the demand values in timestamp order.
func (s *Series) Demand() []float64 {
	values := make([]float64, len(s.Points))
	for i, p := range s.Points {
		values[i] = p.Demand
	}
	return values
}

// TotalDemand returns the sum of observed demand.
func (s *Series) TotalDemand() float64 {
	var total float64
	for _, p := range s.Points {
		total += p.Demand
	}
	return total
}

// First returns the first point. The series must not be empty.
func (s *Series) First() DataPoint { return s.Points[0] }

// Last returns the last point. The series must not be empty.
func (s *Series) Last() DataPoint { return s.Points[len(s.Points)-1] }

package dataset

import (
	"fmt"
	"math"
	"testing"
	"time"

	"pgregory.net/rapid"

	"sfs/forecast-engine/pkg/types"
)

// genDailyFrame draws a random imputed daily frame.
func genDailyFrame(t *rapid.T) *Frame {
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC) // a Monday
	frame := NewFrame(types.FreqDaily)

	numSeries := rapid.IntRange(1, 5).Draw(t, "numSeries")
	for i := 0; i < numSeries; i++ {
		key := types.SeriesKey{
			Channel: "web",
			Family:  "tops",
			ItemID:  fmt.Sprintf("sku-%d", i),
		}
		offsets := rapid.SliceOfNDistinct(rapid.IntRange(0, 365), 1, 40, rapid.ID[int]).Draw(t, "offsets")
		for _, off := range offsets {
			frame.Add(Row{
				Timestamp: start.AddDate(0, 0, off),
				Key:       key,
				Demand:    rapid.Float64Range(0, 500).Draw(t, "demand"),
			})
		}
	}
	frame.Impute()
	return frame
}

func totalDemand(f *Frame) float64 {
	var total float64
	for _, s := range f.Series() {
		total += s.TotalDemand()
	}
	return total
}

func TestProperty_ResamplePreservesTotalDemand(t *testing.T) {
	t.Run("daily_to_weekly", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			frame := genDailyFrame(t)
			before := totalDemand(frame)

			weekly := frame.Resample(types.FreqWeekly)
			after := totalDemand(weekly)

			if math.Abs(before-after) > 1e-6*(1+math.Abs(before)) {
				t.Errorf("weekly resample changed total demand: got %v, want %v", after, before)
			}
		})
	})

	t.Run("daily_to_monthly", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			frame := genDailyFrame(t)
			before := totalDemand(frame)

			monthly := frame.Resample(types.FreqMonthly)
			after := totalDemand(monthly)

			if math.Abs(before-after) > 1e-6*(1+math.Abs(before)) {
				t.Errorf("monthly resample changed total demand: got %v, want %v", after, before)
			}
		})
	})

	t.Run("resample_never_grows_points", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			frame := genDailyFrame(t)
			weekly := frame.Resample(types.FreqWeekly)

			if weekly.NumPoints() > frame.NumPoints() {
				t.Errorf("weekly frame has more points than daily: %d > %d",
					weekly.NumPoints(), frame.NumPoints())
			}
			if weekly.NumSeries() != frame.NumSeries() {
				t.Errorf("resample changed series count: got %d, want %d",
					weekly.NumSeries(), frame.NumSeries())
			}
		})
	})
}

func TestProperty_ImputedSeriesAreGapFree(t *testing.T) {
	t.Run("consecutive_periods", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			frame := genDailyFrame(t)

			for _, s := range frame.Series() {
				for i := 1; i < s.Len(); i++ {
					prev := s.Points[i-1].Timestamp
					want := frame.Freq().Next(prev)
					if !s.Points[i].Timestamp.Equal(want) {
						t.Fatalf("series %s has a gap after %s: got %s, want %s",
							s.Key, prev.Format(types.TimestampLayout),
							s.Points[i].Timestamp.Format(types.TimestampLayout),
							want.Format(types.TimestampLayout))
					}
				}
			}
		})
	})

	t.Run("edges_are_observed", func(t *testing.T) {
		rapid.Check(t, func(t *rapid.T) {
			frame := genDailyFrame(t)

			// Imputation fills interior gaps only, so the first and last
			// points of each series are real observations.
			for _, s := range frame.Series() {
				if s.First().Missing {
					t.Errorf("series %s starts with an imputed point", s.Key)
				}
				if s.Last().Missing {
					t.Errorf("series %s ends with an imputed point", s.Key)
				}
			}
		})
	})
}

func TestProperty_ClassificationCoversEverySeries(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		frame := genDailyFrame(t)
		class := Classify(frame)

		for _, key := range frame.Keys() {
			cat, ok := class.ByKey[key]
			if !ok {
				t.Fatalf("series %s was not classified", key)
			}
			switch cat {
			case types.CategoryShort, types.CategoryMedium, types.CategoryContinuous:
			default:
				t.Fatalf("series %s got unknown category %q", key, cat)
			}
		}

		sum := 0
		for _, perc := range class.Perc {
			if perc < 0 || perc > 100 {
				t.Fatalf("percentage out of range: %d", perc)
			}
			sum += perc
		}
		if sum < 99 || sum > 101 {
			t.Errorf("category percentages should sum to ~100, got %d", sum)
		}
	})
}

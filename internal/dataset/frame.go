package dataset

import (
	"sort"

	"sfs/forecast-engine/pkg/types"
)

// Frame holds every series of a dataset at one frequency.
type Frame struct {
	freq   types.Frequency
	series map[types.SeriesKey]*types.Series
	keys   []types.SeriesKey
	sorted bool
}

// NewFrame creates an empty frame at the given frequency.
func NewFrame(freq types.Frequency) *Frame {
	return &Frame{
		freq:   freq,
		series: make(map[types.SeriesKey]*types.Series),
	}
}

// Freq returns the frame frequency.
func (f *Frame) Freq() types.Frequency { return f.freq }

// Add folds one row into the frame. Timestamps are truncated to the
// frame frequency. Rows usually arrive in timestamp order, so demand on
// the same period as the previous row merges immediately; out-of-order
// duplicates merge during Impute.
func (f *Frame) Add(row Row) {
	ts := f.freq.Truncate(row.Timestamp)

	s, ok := f.series[row.Key]
	if !ok {
		s = &types.Series{Key: row.Key}
		f.series[row.Key] = s
		f.keys = append(f.keys, row.Key)
		f.sorted = false
	}

	if n := len(s.Points); n > 0 && s.Points[n-1].Timestamp.Equal(ts) {
		s.Points[n-1].Demand += row.Demand
		return
	}
	s.Points = append(s.Points, types.DataPoint{Timestamp: ts, Demand: row.Demand})
}

// AddSeries inserts a whole series, replacing any existing one with the
// same key.
func (f *Frame) AddSeries(s *types.Series) {
	if _, ok := f.series[s.Key]; !ok {
		f.keys = append(f.keys, s.Key)
		f.sorted = false
	}
	f.series[s.Key] = s
}

// Get returns the series for a key.
func (f *Frame) Get(key types.SeriesKey) (*types.Series, bool) {
	s, ok := f.series[key]
	return s, ok
}

// Keys returns the series keys sorted by channel, family, item_id.
func (f *Frame) Keys() []types.SeriesKey {
	f.sortKeys()
	keys := make([]types.SeriesKey, len(f.keys))
	copy(keys, f.keys)
	return keys
}

// Series returns all series in key order.
func (f *Frame) Series() []*types.Series {
	f.sortKeys()
	out := make([]*types.Series, 0, len(f.keys))
	for _, key := range f.keys {
		out = append(out, f.series[key])
	}
	return out
}

// NumSeries returns the number of series.
func (f *Frame) NumSeries() int { return len(f.series) }

// NumPoints returns the total number of points across all series.
func (f *Frame) NumPoints() int {
	n := 0
	for _, s := range f.series {
		n += s.Len()
	}
	return n
}

func (f *Frame) sortKeys() {
	if f.sorted {
		return
	}
	sort.Slice(f.keys, func(i, j int) bool {
		a, b := f.keys[i], f.keys[j]
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		if a.Family != b.Family {
			return a.Family < b.Family
		}
		return a.ItemID < b.ItemID
	})
	f.sorted = true
}

// Impute sorts every series, merges duplicate periods, and fills
// interior gaps with zero-demand points marked missing, so each series
// covers a contiguous period range.
func (f *Frame) Impute() {
	for _, s := range f.series {
		if s.Len() == 0 {
			continue
		}

		sort.Slice(s.Points, func(i, j int) bool {
			return s.Points[i].Timestamp.Before(s.Points[j].Timestamp)
		})

		filled := make([]types.DataPoint, 0, s.Len())
		filled = append(filled, s.Points[0])
		for i := 1; i < len(s.Points); i++ {
			next := s.Points[i]
			last := &filled[len(filled)-1]
			if last.Timestamp.Equal(next.Timestamp) {
				last.Demand += next.Demand
				last.Missing = last.Missing && next.Missing
				continue
			}
			for gap := f.freq.Next(last.Timestamp); gap.Before(next.Timestamp); gap = f.freq.Next(gap) {
				filled = append(filled, types.DataPoint{Timestamp: gap, Missing: true})
			}
			filled = append(filled, next)
		}
		s.Points = filled
	}
}

// Resample rebuilds the frame at a coarser output frequency. Demand is
// summed into the output periods; an output period counts as missing
// only when every contributing input period was missing.
func (f *Frame) Resample(freqOut types.Frequency) *Frame {
	if freqOut == f.freq {
		return f
	}

	out := NewFrame(freqOut)
	for _, key := range f.Keys() {
		src := f.series[key]
		if src.Len() == 0 {
			continue
		}

		dst := &types.Series{Key: key}
		for _, p := range src.Points {
			bucket := freqOut.Truncate(p.Timestamp)
			n := len(dst.Points)
			if n > 0 && dst.Points[n-1].Timestamp.Equal(bucket) {
				dst.Points[n-1].Demand += p.Demand
				dst.Points[n-1].Missing = dst.Points[n-1].Missing && p.Missing
			} else {
				dst.Points = append(dst.Points, types.DataPoint{
					Timestamp: bucket,
					Demand:    p.Demand,
					Missing:   p.Missing,
				})
			}
		}
		out.AddSeries(dst)
	}
	return out
}

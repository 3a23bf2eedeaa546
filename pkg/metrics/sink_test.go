package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func sample(v float64) Sample {
	return Sample{Time: time.Now(), Value: v}
}

func TestCounterSink(t *testing.T) {
	c := &CounterSink{}
	assert.True(t, c.IsEmpty())

	c.Add(sample(2))
	c.Add(sample(3))

	out := c.Format(10)
	assert.Equal(t, 5.0, out["count"])
	assert.Equal(t, 0.5, out["rate"])
	assert.False(t, c.IsEmpty())
}

func TestGaugeSink(t *testing.T) {
	g := &GaugeSink{}
	g.Add(sample(10))
	g.Add(sample(4))
	g.Add(sample(7))

	out := g.Format(0)
	assert.Equal(t, 7.0, out["value"])
	assert.Equal(t, 4.0, out["min"])
	assert.Equal(t, 10.0, out["max"])
	assert.Equal(t, 7.0, out["avg"])
}

func TestRateSink(t *testing.T) {
	r := &RateSink{}
	r.Add(sample(1))
	r.Add(sample(0))
	r.Add(sample(1))
	r.Add(sample(1))

	out := r.Format(0)
	assert.Equal(t, 3.0, out["passes"])
	assert.Equal(t, 1.0, out["fails"])
	assert.Equal(t, 0.75, out["rate"])
}

func TestTrendSink(t *testing.T) {
	tr := NewTrendSink()
	assert.True(t, tr.IsEmpty())

	for _, v := range []float64{10, 20, 30, 40, 50} {
		tr.Add(sample(v))
	}

	out := tr.Format(0)
	assert.Equal(t, 5.0, out["count"])
	assert.Equal(t, 10.0, out["min"])
	assert.Equal(t, 50.0, out["max"])
	assert.Equal(t, 30.0, out["avg"])
	// Percentiles come from the histogram with 3-significant-digit
	// precision, so allow a small relative error.
	assert.InEpsilon(t, 30.0, out["med"], 0.01)
	assert.InEpsilon(t, 50.0, out["p(99)"], 0.01)
}

func TestTrendSinkNegativeClamped(t *testing.T) {
	tr := NewTrendSink()
	tr.Add(sample(-5))

	assert.Equal(t, -5.0, tr.Min)
	assert.GreaterOrEqual(t, tr.Percentile(50), 0.0)
}

// Percentiles must be monotonic and bounded by the observed range.
func TestTrendSinkPercentileProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tr := NewTrendSink()
		n := rapid.IntRange(1, 200).Draw(t, "n")

		min, max := 1e18, 0.0
		for i := 0; i < n; i++ {
			v := rapid.Float64Range(0, 10000).Draw(t, "v")
			tr.Add(sample(v))
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}

		p50 := tr.Percentile(50)
		p90 := tr.Percentile(90)
		p99 := tr.Percentile(99)

		if p50 > p90 || p90 > p99 {
			t.Fatalf("percentiles not monotonic: p50=%v p90=%v p99=%v", p50, p90, p99)
		}
		// 1% tolerance for histogram precision.
		if p99 > max*1.01+1 {
			t.Fatalf("p99 %v exceeds max %v", p99, max)
		}
	})
}

func TestRegistryIdempotent(t *testing.T) {
	r := NewRegistry()
	m1 := r.NewMetric("cv_duration", Trend, Time)
	m2 := r.NewMetric("cv_duration", Counter, Default)

	assert.Same(t, m1, m2)
	assert.Equal(t, Trend, m2.Type)
	assert.Len(t, r.All(), 1)
	assert.Nil(t, r.Get("missing"))
}

func TestNewSinkByType(t *testing.T) {
	assert.IsType(t, &CounterSink{}, NewSink(Counter))
	assert.IsType(t, &GaugeSink{}, NewSink(Gauge))
	assert.IsType(t, &RateSink{}, NewSink(Rate))
	assert.IsType(t, &TrendSink{}, NewSink(Trend))
}

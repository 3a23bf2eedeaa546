package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfs/forecast-engine/pkg/types"
)

func TestComputeHealth(t *testing.T) {
	csv := strings.Join([]string{
		"timestamp,channel,family,item_id,demand",
		"2023-01-02,web,tops,sku-1,1",
		"2023-01-03,web,tops,sku-1,2",
		"2023-01-06,web,tops,sku-1,3", // Jan 4 and 5 imputed
		"2023-01-04,store,shoes,sku-2,4",
		"2023-01-05,store,shoes,sku-2,5",
		"",
	}, "\n")

	frame, err := NewLoader(types.FreqDaily).LoadReader(strings.NewReader(csv))
	require.NoError(t, err)

	health := ComputeHealth(frame)
	require.NotNil(t, health)

	assert.Equal(t, types.FreqDaily, health.Freq)
	assert.Equal(t, 2, health.NumSeries)
	assert.Equal(t, 2, health.NumChannels)
	assert.Equal(t, 2, health.NumFamilies)
	assert.Equal(t, 2, health.NumItemIDs)
	assert.Equal(t, mustDate(t, "2023-01-02"), health.FirstDate)
	assert.Equal(t, mustDate(t, "2023-01-06"), health.LastDate)
	assert.Equal(t, 5, health.Duration)

	// sku-1 spans 5 days with 2 imputed, sku-2 spans 2 days with none.
	assert.InDelta(t, 2.0/7.0, health.PctMissing, 1e-9)

	assert.Equal(t, 2, health.Lengths.Min)
	assert.Equal(t, 5, health.Lengths.Max)
	assert.InDelta(t, 3.5, health.Lengths.Mean, 1e-9)
	assert.InDelta(t, 3.5, health.Lengths.Median, 1e-9)

	require.Len(t, health.Series, 2)
	first := health.Series[0]
	assert.Equal(t, types.SeriesKey{Channel: "store", Family: "shoes", ItemID: "sku-2"}, first.Key)
	assert.Equal(t, 2, first.DemandLen)
	assert.Equal(t, 0, first.DemandMissingDates)
	assert.Equal(t, 2, first.DemandNonNullCount)

	second := health.Series[1]
	assert.Equal(t, 5, second.DemandLen)
	assert.Equal(t, 2, second.DemandMissingDates)
	assert.Equal(t, 3, second.DemandNonNullCount)
}

func TestComputeHealthWeeklyDuration(t *testing.T) {
	frame := NewFrame(types.FreqWeekly)
	frame.Add(row(t, "2023-01-02", "web", "tops", "sku-1", 1))
	frame.Add(row(t, "2023-01-30", "web", "tops", "sku-1", 2))
	frame.Impute()

	health := ComputeHealth(frame)
	assert.Equal(t, 5, health.Duration) // Jan 2, 9, 16, 23, 30
}

func TestComputeHealthEmptyFrame(t *testing.T) {
	health := ComputeHealth(NewFrame(types.FreqDaily))
	require.NotNil(t, health)
	assert.Equal(t, 0, health.NumSeries)
	assert.Equal(t, 0, health.Duration)
	assert.Zero(t, health.PctMissing)
	assert.Empty(t, health.Series)
}

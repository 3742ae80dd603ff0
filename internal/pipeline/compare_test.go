package pipeline

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundtable-report/internal/model"
	"roundtable-report/internal/period"
)

func TestCompareDeltaRoundTrip(t *testing.T) {
	layout := model.Layout{Index: "fare"}
	records := []model.Record{
		{Mode: "bus", Dims: []string{"A"}, Date: day(2023, time.January, 1), Rides: 100},
		{Mode: "bus", Dims: []string{"A"}, Date: day(2024, time.January, 1), Rides: 150},
	}
	rows := Compare(records, layout, false, testPeriod)

	got, ok := findRow(rows, "bus", "A", day(2024, time.January, 1), layout)
	require.True(t, ok)
	assert.Equal(t, 150.0, got.Values[model.MetricRides])
	assert.Equal(t, 100.0, got.Values[model.MetricPre])
	assert.Equal(t, 50.0, got.Values[model.MetricDiff])
	assert.InDelta(t, 50.0, got.Values[model.MetricPctDiff], 1e-9)
	assert.Equal(t, "2024-01", got.Month)
	assert.Equal(t, "", got.Key)

	_, ok = findRow(rows, "bus", "A", day(2023, time.January, 1), layout)
	assert.False(t, ok, "first year has no predecessor")

	total, ok := findRow(rows, "bus", model.TotalLabel, day(2024, time.January, 1), layout)
	require.True(t, ok)
	assert.Equal(t, 150.0, total.Values[model.MetricRides])

	// only January 2024 has a predecessor
	for _, r := range rows {
		assert.True(t, r.Date.Equal(day(2024, time.January, 1)), r.Date)
	}
}

func TestCompareDeltaLag(t *testing.T) {
	layout := model.Layout{Split: []string{"region"}, Index: "media"}
	var records []model.Record
	start := period.MonthIndex(day(2022, time.March, 1))
	for i := 0; i < 26; i++ {
		if i == 9 || i == 17 {
			continue // gaps resample to zero
		}
		records = append(records,
			model.Record{Mode: "rail", Dims: []string{"North", "card"}, Date: period.MonthStart(start + i), Rides: float64(10 + i)},
			model.Record{Mode: "rail", Dims: []string{"North", "cash"}, Date: period.MonthStart(start + i), Rides: float64(2*i + 1)},
		)
	}
	ridership := make(map[string]float64)
	for _, r := range records {
		ridership[groupKey(r.Mode, r.Dims, r.Date)] = r.Rides
	}

	rows := Compare(records, layout, false, testPeriod)
	require.NotEmpty(t, rows)
	for _, r := range rows {
		assert.Equal(t, "North", r.Key)
		if r.Dims[1] == model.TotalLabel {
			continue
		}
		prior := period.MonthStart(period.MonthIndex(r.Date) - period.Lag)
		assert.Equal(t, ridership[groupKey(r.Mode, r.Dims, prior)], r.Values[model.MetricPre], "%v %v", r.Dims, r.Date)
		assert.Equal(t, ridership[groupKey(r.Mode, r.Dims, r.Date)], r.Values[model.MetricRides])
		assert.GreaterOrEqual(t, period.MonthIndex(r.Date), start+period.Lag)
	}

	// Total rows sum the index categories
	total, ok := findRow(rows, "rail", model.TotalLabel, period.MonthStart(start+20), layout)
	require.True(t, ok)
	assert.Equal(t, float64(10+20)+float64(2*20+1), total.Values[model.MetricRides])
	assert.Equal(t, float64(10+8)+float64(2*8+1), total.Values[model.MetricPre])
}

func TestCompareDeltaZeroPredecessor(t *testing.T) {
	layout := model.Layout{Index: "media"}
	records := []model.Record{
		{Mode: "bus", Dims: []string{"card"}, Date: day(2022, time.December, 1), Rides: 5},
		{Mode: "bus", Dims: []string{"card"}, Date: day(2024, time.January, 1), Rides: 8},
		{Mode: "bus", Dims: []string{"card"}, Date: day(2024, time.March, 1), Rides: 3},
	}
	rows := Compare(records, layout, false, testPeriod)

	got, ok := findRow(rows, "bus", "card", day(2024, time.January, 1), layout)
	require.True(t, ok)
	assert.Equal(t, 0.0, got.Values[model.MetricPre])
	assert.True(t, math.IsInf(got.Values[model.MetricPctDiff], 1))

	dec, ok := findRow(rows, "bus", "card", day(2023, time.December, 1), layout)
	require.True(t, ok)
	assert.Equal(t, -100.0, dec.Values[model.MetricPctDiff])

	_, ok = findRow(rows, "bus", "card", day(2024, time.February, 1), layout)
	assert.False(t, ok, "0/0 rows are dropped")

	_, ok = findRow(rows, "bus", "card", day(2024, time.March, 1), layout)
	assert.True(t, ok)
}

func shareRecords(regions ...string) []model.Record {
	var records []model.Record
	for m := 0; m < 16; m++ {
		date := period.MonthStart(period.MonthIndex(day(2022, time.October, 1)) + m)
		for _, mode := range []string{"bus", "rail"} {
			for i, media := range []string{"card", "cash", "pass"} {
				for _, region := range regions {
					dims := []string{media}
					if region != "" {
						dims = []string{region, media}
					}
					records = append(records, model.Record{
						Mode:  mode,
						Dims:  dims,
						Date:  date,
						Rides: float64((m+1)*(i+2)) + float64(len(region)),
					})
				}
			}
		}
	}
	return records
}

func TestCompareShare(t *testing.T) {
	layout := model.Layout{Index: "media"}
	rows := Compare(shareRecords(""), layout, true, testPeriod)

	totals := 0
	for _, r := range rows {
		assert.True(t, testPeriod.InShareWindow(r.Date), r.Date)
		assert.NotContains(t, r.Values, model.MetricRides)
		if r.Dims[0] != model.TotalLabel {
			continue
		}
		totals++
		assert.InDelta(t, 100.0, r.Values[model.MetricPctOfTotal], 1e-9)
	}
	// 13 months x 2 modes
	assert.Equal(t, 26, totals)

	card, ok := findRow(rows, "bus", "card", day(2024, time.January, 1), layout)
	require.True(t, ok)
	assert.InDelta(t, 32.0/(32+48+64)*100, card.Values[model.MetricPctOfTotal], 1e-9)
}

func TestCompareShareAcrossSplits(t *testing.T) {
	layout := model.Layout{Split: []string{"region"}, Index: "media"}
	rows := Compare(shareRecords("North", "South"), layout, true, testPeriod)

	sums := make(map[string]float64)
	for _, r := range rows {
		assert.NotEqual(t, model.TotalLabel, r.Dims[1], "no total row without a value for region")
		assert.Equal(t, r.Dims[0], r.Key)
		sums[groupKey(r.Mode, nil, r.Date)] += r.Values[model.MetricPctOfTotal]
	}
	assert.Len(t, sums, 26)
	for key, sum := range sums {
		assert.InDelta(t, 100.0, sum, 1e-9, key)
	}

	card, ok := findRow(rows, "bus", "card", day(2024, time.January, 1), layout)
	require.True(t, ok)
	assert.Equal(t, "North", card.Dims[0])
	// bus 2024-01: card, cash and pass in both regions
	assert.InDelta(t, 37.0/(2*(37+53+69))*100, card.Values[model.MetricPctOfTotal], 1e-9)
}

func TestCompareShareByColumn(t *testing.T) {
	layout := model.Layout{Pivot: model.ColSeg, Index: "time_bin"}
	jan := day(2024, time.January, 1)
	records := []model.Record{
		{Mode: "rail", Dims: []string{"Blue", "AM Peak"}, Date: jan, Rides: 60},
		{Mode: "rail", Dims: []string{"Red", "AM Peak"}, Date: jan, Rides: 30},
		{Mode: "rail", Dims: []string{"Red", "PM Peak"}, Date: jan, Rides: 10},
	}
	rows := Compare(records, layout, true, testPeriod)

	want := map[string]float64{
		"Blue/AM Peak": 60,
		"Red/AM Peak":  30,
		"Red/PM Peak":  10,
	}
	require.Len(t, rows, len(want))
	for _, r := range rows {
		assert.Empty(t, r.Month)
		assert.InDelta(t, want[r.Dims[0]+"/"+r.Dims[1]], r.Values[model.MetricPctOfTotal], 1e-9)
	}
}

func TestCompareShareZeroPartition(t *testing.T) {
	layout := model.Layout{Index: "media"}
	records := []model.Record{
		{Mode: "bus", Dims: []string{"card"}, Date: day(2024, time.January, 1), Rides: 0},
		{Mode: "rail", Dims: []string{"card"}, Date: day(2024, time.January, 1), Rides: 4},
	}
	rows := Compare(records, layout, true, testPeriod)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, "rail", r.Mode)
		assert.Equal(t, 100.0, r.Values[model.MetricPctOfTotal])
	}
}

package pipeline

import (
	"slices"
	"time"

	"roundtable-report/internal/model"
	"roundtable-report/internal/period"
)

// Compare derives the comparative result of reconciled records: shares of the
// partition total in share mode, year-over-year deltas otherwise. Rows with a
// missing (NaN) metric are dropped.
func Compare(records []model.Record, layout model.Layout, share bool, p period.Period) []model.ResultRow {
	var rows []model.ResultRow
	metrics := model.DeltaMetrics
	if share {
		rows = shares(records, layout, p)
		metrics = []model.Metric{model.MetricPctOfTotal}
	} else {
		rows = deltas(records, layout)
	}

	splitWidth := len(layout.Split)
	out := rows[:0]
	for _, row := range rows {
		if !row.Complete(metrics) {
			continue
		}
		if layout.ByMonth() {
			row.Month = row.Date.Format(period.MonthLayout)
		}
		row.Key = model.SplitKey(row.Dims, splitWidth)
		out = append(out, row)
	}
	return out
}

// withIndex returns a copy of dims with the index column replaced.
func withIndex(dims []string, layout model.Layout, val string) []string {
	out := slices.Clone(dims)
	out[layout.IndexPos()] = val
	return out
}

// shares computes pct_of_total within each (mode, date) partition over the
// 13-month share window. The Total row of a partition sums its shares; it has
// no value for split or pivot columns, so it is only kept when the index is
// the sole dimension.
func shares(records []model.Record, layout model.Layout, p period.Period) []model.ResultRow {
	totals := make(map[string]float64)
	for _, rec := range records {
		if p.InShareWindow(rec.Date) {
			totals[groupKey(rec.Mode, nil, rec.Date)] += rec.Rides
		}
	}

	var rows []model.ResultRow
	sums := NewAggregate(1)
	totalDims := []string{model.TotalLabel}
	for _, rec := range records {
		if !p.InShareWindow(rec.Date) {
			continue
		}
		total := totals[groupKey(rec.Mode, nil, rec.Date)]
		if total == 0 {
			continue
		}
		pct := rec.Rides / total * 100
		rows = append(rows, model.ResultRow{
			Mode:   rec.Mode,
			Dims:   rec.Dims,
			Date:   rec.Date,
			Values: map[model.Metric]float64{model.MetricPctOfTotal: pct},
		})
		sums.Add(rec.Mode, totalDims, rec.Date, pct)
	}
	if layout.Width() > 1 {
		return rows
	}
	for _, t := range sums.Records() {
		rows = append(rows, model.ResultRow{
			Mode:   t.Mode,
			Dims:   t.Dims,
			Date:   t.Date,
			Values: map[model.Metric]float64{model.MetricPctOfTotal: t.Rides},
		})
	}
	return rows
}

// monthSeries is one group's ridership resampled to calendar months.
type monthSeries struct {
	mode   string
	dims   []string
	months map[int]float64
	first  int
	last   int
}

func (s *monthSeries) add(idx int, rides float64) {
	if len(s.months) == 0 || idx < s.first {
		s.first = idx
	}
	if len(s.months) == 0 || idx > s.last {
		s.last = idx
	}
	s.months[idx] += rides
}

// resample groups records by (mode, dims) into monthly series. Each series
// covers the months between its first and last record; gaps count as zero.
func resample(records []model.Record, dims func(model.Record) []string) []*monthSeries {
	index := make(map[string]*monthSeries)
	var series []*monthSeries
	for _, rec := range records {
		d := dims(rec)
		key := groupKey(rec.Mode, d, time.Time{})
		s, ok := index[key]
		if !ok {
			s = &monthSeries{mode: rec.Mode, dims: d, months: make(map[int]float64)}
			index[key] = s
			series = append(series, s)
		}
		s.add(period.MonthIndex(rec.Date), rec.Rides)
	}
	slices.SortFunc(series, func(a, b *monthSeries) int {
		return CompareRecords(model.Record{Mode: a.mode, Dims: a.dims}, model.Record{Mode: b.mode, Dims: b.dims})
	})
	return series
}

// deltas resamples each full key and each key without the index column (the
// Total rows) to months and compares every month with the one Lag months
// earlier in the same series. Months without a predecessor are dropped.
func deltas(records []model.Record, layout model.Layout) []model.ResultRow {
	full := resample(records, func(r model.Record) []string { return r.Dims })
	totals := resample(records, func(r model.Record) []string {
		return withIndex(r.Dims, layout, model.TotalLabel)
	})

	var rows []model.ResultRow
	for _, s := range append(full, totals...) {
		for idx := s.first + period.Lag; idx <= s.last; idx++ {
			rides, pre := s.months[idx], s.months[idx-period.Lag]
			rows = append(rows, model.ResultRow{
				Mode: s.mode,
				Dims: s.dims,
				Date: period.MonthStart(idx),
				Values: map[model.Metric]float64{
					model.MetricRides:   rides,
					model.MetricPre:     pre,
					model.MetricDiff:    rides - pre,
					model.MetricPctDiff: (rides/pre - 1) * 100,
				},
			})
		}
	}
	return rows
}

package pipeline

import (
	"slices"
	"strings"
	"time"

	"roundtable-report/internal/model"
)

const keySep = "\x1f"

// Aggregate sums ridership by (mode, dimensions, date). One Aggregate is a
// partial result for a chunk; merging partials gives the reconciled totals.
type Aggregate struct {
	width   int
	index   map[string]int
	records []model.Record
}

// NewAggregate creates an empty aggregate over width dimension columns.
func NewAggregate(width int) *Aggregate {
	return &Aggregate{
		width: width,
		index: make(map[string]int),
	}
}

func groupKey(mode string, dims []string, date time.Time) string {
	var b strings.Builder
	b.WriteString(mode)
	for _, d := range dims {
		b.WriteString(keySep)
		b.WriteString(d)
	}
	b.WriteString(keySep)
	b.WriteString(date.Format(time.DateOnly))
	return b.String()
}

// Add sums rides into the group. dims is copied when the group is new.
func (a *Aggregate) Add(mode string, dims []string, date time.Time, rides float64) {
	key := groupKey(mode, dims, date)
	if i, exists := a.index[key]; exists {
		a.records[i].Rides += rides
		return
	}
	a.index[key] = len(a.records)
	a.records = append(a.records, model.Record{
		Mode:  mode,
		Dims:  slices.Clone(dims),
		Date:  date,
		Rides: rides,
	})
}

// Merge sums every group of other into a.
func (a *Aggregate) Merge(other *Aggregate) {
	for _, rec := range other.records {
		a.Add(rec.Mode, rec.Dims, rec.Date, rec.Rides)
	}
}

// Len returns the number of distinct groups.
func (a *Aggregate) Len() int {
	return len(a.records)
}

// Width returns the number of dimension columns.
func (a *Aggregate) Width() int {
	return a.width
}

// Total returns the ridership summed over every group.
func (a *Aggregate) Total() float64 {
	var sum float64
	for _, rec := range a.records {
		sum += rec.Rides
	}
	return sum
}

// Records returns the groups in insertion order.
func (a *Aggregate) Records() []model.Record {
	return a.records
}

// Sorted returns the groups ordered by mode, dimensions, then date.
func (a *Aggregate) Sorted() []model.Record {
	out := slices.Clone(a.records)
	slices.SortFunc(out, CompareRecords)
	return out
}

// CompareRecords orders records by mode, dimensions, then date.
func CompareRecords(x, y model.Record) int {
	if c := strings.Compare(x.Mode, y.Mode); c != 0 {
		return c
	}
	if c := slices.Compare(x.Dims, y.Dims); c != 0 {
		return c
	}
	return x.Date.Compare(y.Date)
}

package model

import (
	"time"
)

// Well-known columns of an intermediate extract
const (
	ColType         = "type"
	ColServiceDate  = "service_date"
	ColDayType      = "day_type"
	ColFinanceCode  = "finance_code"
	ColMedia        = "media"
	ColFareProdName = "fare_prod_name"
	ColSeg          = "seg"
	ColHour         = "hr"
	ColRides        = "rides"
)

const (
	// PivotMonth is the pivot_col value that places calendar months on the column axis.
	PivotMonth = "Month"
	// SystemSplit is the split_col placeholder asking for a combined "system" mode.
	SystemSplit = "sys"
	// SystemMode is the mode label of the synthesized bus+rail rows.
	SystemMode = "system"
	// BusMode is the mode whose route segments are replaced by route groups.
	BusMode = "bus"
	// TotalLabel labels synthesized total rows on the index axis.
	TotalLabel = "Total"
	// KeySeparator joins split values into the composite key.
	KeySeparator = " - "
)

// Row is one raw ridership record read from an intermediate extract
type Row struct {
	Type        string            `json:"type"`
	ServiceDate time.Time         `json:"service_date"`
	DayType     string            `json:"day_type"`
	Rides       float64           `json:"rides"`
	Fields      map[string]string `json:"fields"` // every other column, by header name
}

// Field returns a column value by name, including the typed columns.
func (r Row) Field(name string) string {
	switch name {
	case ColType:
		return r.Type
	case ColDayType:
		return r.DayType
	case ColServiceDate:
		if r.ServiceDate.IsZero() {
			return ""
		}
		return r.ServiceDate.Format("2006-01-02")
	}
	return r.Fields[name]
}

// Metric names a value column of a comparative result
type Metric string

const (
	MetricRides      Metric = "rides"
	MetricPre        Metric = "pre"
	MetricDiff       Metric = "diff"
	MetricPctDiff    Metric = "pct_diff"
	MetricPctOfTotal Metric = "pct_of_total"
)

// DeltaMetrics are produced by the year-over-year transform, in output column order.
var DeltaMetrics = []Metric{MetricRides, MetricPre, MetricDiff, MetricPctDiff}

// IsPercent reports whether the metric is expressed in percent.
func (m Metric) IsPercent() bool {
	return m == MetricPctDiff || m == MetricPctOfTotal
}

// Valid reports whether m is a known metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricRides, MetricPre, MetricDiff, MetricPctDiff, MetricPctOfTotal:
		return true
	}
	return false
}

// Layout is the resolved grouping key of a report. The full key of an aggregated
// record is (mode, Columns()..., date); Dims of Record and ResultRow follow Columns().
type Layout struct {
	Split  []string `json:"split"`  // split columns, without the sys placeholder
	Pivot  string   `json:"pivot"`  // pivot column; empty when pivoting by month
	Index  string   `json:"index"`  // index column
	System bool     `json:"system"` // synthesize the combined system mode
}

// Columns returns the dimension columns in key order: split, pivot, index.
func (l Layout) Columns() []string {
	cols := make([]string, 0, len(l.Split)+2)
	cols = append(cols, l.Split...)
	if l.Pivot != "" {
		cols = append(cols, l.Pivot)
	}
	return append(cols, l.Index)
}

// Width is the number of dimension columns.
func (l Layout) Width() int {
	w := len(l.Split) + 1
	if l.Pivot != "" {
		w++
	}
	return w
}

// IndexPos is the position of the index column in Dims.
func (l Layout) IndexPos() int {
	return l.Width() - 1
}

// PivotPos is the position of the pivot column in Dims, or -1 when pivoting by month.
func (l Layout) PivotPos() int {
	if l.Pivot == "" {
		return -1
	}
	return len(l.Split)
}

// ByMonth reports whether the pivot axis is the calendar month.
func (l Layout) ByMonth() bool {
	return l.Pivot == ""
}

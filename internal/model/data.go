package model

import (
	"math"
	"strings"
	"time"
)

// Record is the summed ridership of one grouping key on one date
type Record struct {
	Mode  string    `json:"type"`
	Dims  []string  `json:"dims"`
	Date  time.Time `json:"service_date"`
	Rides float64   `json:"rides"`
}

// ResultRow is a record of the comparative result
type ResultRow struct {
	Mode   string             `json:"type"`
	Dims   []string           `json:"dims"`
	Date   time.Time          `json:"service_date"`
	Month  string             `json:"month,omitempty"` // YYYY-MM, set when pivoting by month
	Key    string             `json:"key"`             // split values joined by KeySeparator
	Values map[Metric]float64 `json:"values"`
}

// Value returns a metric and whether it is present and not NaN.
func (r ResultRow) Value(m Metric) (float64, bool) {
	v, ok := r.Values[m]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Complete reports whether every listed metric is present and not NaN.
func (r ResultRow) Complete(metrics []Metric) bool {
	for _, m := range metrics {
		if _, ok := r.Value(m); !ok {
			return false
		}
	}
	return true
}

// SplitKey joins the first n dimension values, the split columns, into the composite key.
func SplitKey(dims []string, n int) string {
	return strings.Join(dims[:n], KeySeparator)
}

// ExportResult represents the result of writing one output artifact
type ExportResult struct {
	Type        string    `json:"type"` // "csv", "xlsx", "png"
	Path        string    `json:"path"`
	RecordCount int       `json:"record_count"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

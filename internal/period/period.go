// Package period defines the reporting period shared by every stage of a run.
//
// A report always looks at the last completed calendar month ("current"), the same
// month one year earlier, the 13-month window between them, and a 25-month window
// used when extracting source data. All of these derive from a single reference time
// so that a run started just before midnight on the last day of a month cannot mix
// two different periods.
package period

import "time"

const (
	// MonthLayout formats month labels and output directory names.
	MonthLayout = "2006-01"
	// QueryDateLayout formats the bind parameters of extraction queries.
	QueryDateLayout = "20060102"

	// Lag is the number of monthly periods between a value and its comparison value.
	Lag = 12
	// QueryMonths is the width of the extraction window in months.
	QueryMonths = 25
)

// Period is the reporting period of one run.
type Period struct {
	Current   time.Time `json:"current"`    // first day of the last completed month
	YearAgo   time.Time `json:"year_ago"`   // first day of Current's month one year earlier
	QueryFrom time.Time `json:"query_from"` // first day of the 25-month extraction window
	QueryTo   time.Time `json:"query_to"`   // last day of the last completed month
}

// New derives the period from a reference time. Only the calendar date of now matters.
func New(now time.Time) Period {
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	current := thisMonth.AddDate(0, -1, 0)
	return Period{
		Current:   current,
		YearAgo:   current.AddDate(-1, 0, 0),
		QueryFrom: thisMonth.AddDate(0, -QueryMonths, 0),
		QueryTo:   thisMonth.AddDate(0, 0, -1),
	}
}

// Label returns the current month as YYYY-MM.
func (p Period) Label() string {
	return p.Current.Format(MonthLayout)
}

// QueryParams returns the bind values for the extraction window.
func (p Period) QueryParams() (from, to string) {
	return p.QueryFrom.Format(QueryDateLayout), p.QueryTo.Format(QueryDateLayout)
}

// IsComparisonMonth reports whether t falls in the current month or the same month a year earlier.
func (p Period) IsComparisonMonth(t time.Time) bool {
	m := MonthIndex(t)
	return m == MonthIndex(p.Current) || m == MonthIndex(p.YearAgo)
}

// InShareWindow reports whether t falls in the 13 months ending with the current month.
func (p Period) InShareWindow(t time.Time) bool {
	m := MonthIndex(t)
	return m >= MonthIndex(p.YearAgo) && m <= MonthIndex(p.Current)
}

// MonthIndex numbers calendar months consecutively so month arithmetic is integer arithmetic.
func MonthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

// MonthStart is the inverse of MonthIndex.
func MonthStart(idx int) time.Time {
	return time.Date(idx/12, time.Month(idx%12+1), 1, 0, 0, 0, 0, time.UTC)
}

// TruncateMonth returns the first day of t's month.
func TruncateMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

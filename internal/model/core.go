package model

import (
	"fmt"
	"math"
	"strings"
)

// Phase selects which parts of a run execute
type Phase string

const (
	PhaseAll   Phase = "all"   // extract, then aggregate and render
	PhaseQuery Phase = "query" // extract only
	PhaseVis   Phase = "vis"   // aggregate and render from existing extracts
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return p == PhaseAll || p == PhaseQuery || p == PhaseVis
}

// Extracts reports whether the phase runs the extraction queries.
func (p Phase) Extracts() bool { return p == PhaseAll || p == PhaseQuery }

// Reports reports whether the phase builds the report tables.
func (p Phase) Reports() bool { return p == PhaseAll || p == PhaseVis }

// RunSpec is the payload for POST /api/v1/runs
type RunSpec struct {
	Phase     Phase    `json:"phase" example:"all"`
	ReportIDs []string `json:"report_ids,omitempty"` // empty means every configured report
}

// PivotTable is one 2-D table of a report: rows are index categories, columns are
// pivot-axis categories and cells hold one metric. Missing cells are NaN.
type PivotTable struct {
	Mode     string      `json:"mode"`
	SplitKey string      `json:"split_key,omitempty"`
	ReportID string      `json:"report_id"`
	Metric   Metric      `json:"metric"`
	Focus    int         `json:"focus,omitempty"` // focus window; zero for full tables
	RowName  string      `json:"row_name"`
	ColName  string      `json:"col_name"`
	Rows     []string    `json:"rows"`
	Cols     []string    `json:"cols"`
	Cells    [][]float64 `json:"cells"` // Cells[row][col]
}

// Label renders the table metadata the way the report images are keyed:
// mode|split|<report id tail>|metric[focus], with the split part omitted when empty.
func (t PivotTable) Label() string {
	parts := []string{t.Mode}
	if t.SplitKey != "" {
		parts = append(parts, t.SplitKey)
	}
	if tail := ReportTail(t.ReportID); tail != "" {
		parts = append(parts, tail)
	}
	metric := string(t.Metric)
	if t.Focus > 0 {
		metric = fmt.Sprintf("%s%d", metric, t.Focus)
	}
	return strings.Join(append(parts, metric), "|")
}

// ReportTail derives the label part of a hyphen-delimited report id by dropping its
// first two segments: "03-rail-fm_grp-Month" yields "fm_grp|Month".
func ReportTail(id string) string {
	parts := strings.Split(id, "-")
	if len(parts) <= 2 {
		return ""
	}
	return strings.Join(parts[2:], "|")
}

// Empty reports whether the table has no cells.
func (t PivotTable) Empty() bool {
	return len(t.Rows) == 0 || len(t.Cols) == 0
}

// At returns the cell at row r, column c.
func (t PivotTable) At(r, c int) float64 {
	return t.Cells[r][c]
}

// Lookup returns the cell for a row and column label, NaN when absent.
func (t PivotTable) Lookup(row, col string) float64 {
	r, c := indexOf(t.Rows, row), indexOf(t.Cols, col)
	if r < 0 || c < 0 {
		return math.NaN()
	}
	return t.Cells[r][c]
}

// TotalRow returns the position of the synthesized total row, or -1.
func (t PivotTable) TotalRow() int {
	return indexOf(t.Rows, TotalLabel)
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

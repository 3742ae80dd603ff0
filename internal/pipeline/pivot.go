package pipeline

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"roundtable-report/internal/config"
	"roundtable-report/internal/model"
	"roundtable-report/pkg/utils"
)

const (
	// FocusColumns is the number of trailing columns a focus table keeps.
	FocusColumns = 5
	// ChangeSuffix labels the synthesized change column of a focus table.
	ChangeSuffix = "\nChange"
	// WrapWidth is the label width for route-segment columns.
	WrapWidth = 9
)

// BuildPivots reshapes a comparative result into one table per mode, split key
// and metric, applies the configured row and column orders, and appends a
// focus table for each when the report asks for one.
func BuildPivots(rows []model.ResultRow, r *config.Report) ([]model.PivotTable, error) {
	layout := r.Layout()
	var modes, keys []string
	for _, row := range rows {
		if !slices.Contains(modes, row.Mode) {
			modes = append(modes, row.Mode)
		}
		if !slices.Contains(keys, row.Key) {
			keys = append(keys, row.Key)
		}
	}

	var tables []model.PivotTable
	for _, mode := range modes {
		for _, key := range keys {
			var slice []model.ResultRow
			for _, row := range rows {
				if row.Mode == mode && row.Key == key {
					slice = append(slice, row)
				}
			}
			if len(slice) == 0 {
				continue
			}
			for _, metric := range r.Metrics() {
				t, err := pivot(slice, layout, metric)
				if err != nil {
					return nil, fmt.Errorf("%w: report %s: %s%s: %w", model.ErrConfig, r.ID, mode, keyLabel(key), err)
				}
				t.Mode, t.SplitKey, t.ReportID = mode, key, r.ID
				t.RowName, t.ColName = r.IndexName(), r.PivotCol
				t = OrderRows(t, r.CategoryOrder(mode, key))
				if cols, ok := r.ColumnOrder(mode); ok {
					t = OrderColumns(t, cols, !layout.ByMonth() && layout.Pivot == model.ColSeg)
				}
				tables = append(tables, t)
			}
		}
	}

	if r.FocusTbl > 0 {
		n := len(tables)
		for _, t := range tables[:n] {
			tables = append(tables, Focus(t, int(r.FocusTbl)))
		}
	}
	return tables, nil
}

func keyLabel(key string) string {
	if key == "" {
		return ""
	}
	return " " + key
}

// pivot lays out one metric: rows from the index column, columns from the
// month label or pivot column. Absent cells are NaN.
func pivot(rows []model.ResultRow, layout model.Layout, metric model.Metric) (model.PivotTable, error) {
	t := model.PivotTable{Metric: metric}
	type cell struct{ row, col string }
	values := make(map[cell]float64, len(rows))
	for _, row := range rows {
		v, ok := row.Value(metric)
		if !ok {
			continue
		}
		c := cell{row: row.Dims[layout.IndexPos()], col: row.Month}
		if !layout.ByMonth() {
			c.col = row.Dims[layout.PivotPos()]
		}
		if _, dup := values[c]; dup {
			return t, fmt.Errorf("duplicate cell (%s, %s) for %s", c.row, c.col, metric)
		}
		values[c] = v
		if !slices.Contains(t.Rows, c.row) {
			t.Rows = append(t.Rows, c.row)
		}
		if !slices.Contains(t.Cols, c.col) {
			t.Cols = append(t.Cols, c.col)
		}
	}

	slices.SortFunc(t.Rows, compareRowLabels)
	slices.Sort(t.Cols)
	t.Cells = make([][]float64, len(t.Rows))
	for i, rl := range t.Rows {
		t.Cells[i] = make([]float64, len(t.Cols))
		for j, cl := range t.Cols {
			v, ok := values[cell{rl, cl}]
			if !ok {
				v = math.NaN()
			}
			t.Cells[i][j] = v
		}
	}
	return t, nil
}

// compareRowLabels sorts lexically with the Total row last.
func compareRowLabels(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == model.TotalLabel:
		return 1
	case b == model.TotalLabel:
		return -1
	case a < b:
		return -1
	}
	return 1
}

// OrderRows moves the listed categories to the top in the listed order. Other
// rows keep their relative order after them; the Total row stays last.
func OrderRows(t model.PivotTable, order []string) model.PivotTable {
	if len(order) == 0 {
		return t
	}
	rank := make(map[string]int, len(order))
	for i, cat := range order {
		if _, seen := rank[cat]; !seen {
			rank[cat] = i
		}
	}
	idx := make([]int, len(t.Rows))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(rowRank(t.Rows[a], rank), rowRank(t.Rows[b], rank))
	})

	out := t
	out.Rows = make([]string, len(idx))
	out.Cells = make([][]float64, len(idx))
	for i, j := range idx {
		out.Rows[i] = t.Rows[j]
		out.Cells[i] = t.Cells[j]
	}
	return out
}

func rowRank(label string, rank map[string]int) int {
	if label == model.TotalLabel {
		return math.MaxInt
	}
	if r, ok := rank[label]; ok {
		return r
	}
	return math.MaxInt - 1
}

// OrderColumns keeps only the listed columns, in the listed order, skipping
// entries the table lacks. wrap word-wraps the labels.
func OrderColumns(t model.PivotTable, order []string, wrap bool) model.PivotTable {
	var cols []string
	var idx []int
	for _, col := range order {
		j := slices.Index(t.Cols, col)
		if j < 0 || slices.Contains(cols, col) {
			continue
		}
		cols = append(cols, col)
		idx = append(idx, j)
	}

	out := t
	out.Cols = make([]string, len(cols))
	for i, col := range cols {
		if wrap {
			col = utils.Fill(col, WrapWidth)
		}
		out.Cols[i] = col
	}
	out.Cells = make([][]float64, len(t.Rows))
	for i, row := range t.Cells {
		out.Cells[i] = make([]float64, len(idx))
		for k, j := range idx {
			out.Cells[i][k] = row[j]
		}
	}
	return out
}

// Focus keeps the last FocusColumns columns of t and appends a change column:
// the last column minus the mean of the kept columns, ignoring NaN cells.
func Focus(t model.PivotTable, focus int) model.PivotTable {
	n := min(FocusColumns, len(t.Cols))
	first := len(t.Cols) - n

	out := t
	out.Focus = focus
	out.Cols = slices.Clone(t.Cols[first:])
	out.Cells = make([][]float64, len(t.Rows))
	if n > 0 {
		out.Cols = append(out.Cols, t.Cols[len(t.Cols)-1]+ChangeSuffix)
	}
	for i, row := range t.Cells {
		kept := slices.Clone(row[first:])
		if n > 0 {
			kept = append(kept, kept[n-1]-nanMean(kept))
		}
		out.Cells[i] = kept
	}
	return out
}

func nanMean(values []float64) float64 {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return math.NaN()
	}
	return stat.Mean(present, nil)
}

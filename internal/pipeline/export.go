package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"roundtable-report/internal/config"
	"roundtable-report/internal/model"
)

const (
	// RawDataFile holds the comparative result of a report in long form.
	RawDataFile = "raw_data.csv"
	// WorkbookFile holds one sheet per pivot table.
	WorkbookFile = "tables.xlsx"

	maxSheetName = 31
)

// resultMetrics are the value columns written for a report.
func resultMetrics(r *config.Report) []model.Metric {
	if r.ShareMode() {
		return []model.Metric{model.MetricPctOfTotal}
	}
	return model.DeltaMetrics
}

// WriteResultCSV writes the comparative result in long form: mode, grouping
// columns (index under its display name), service date, month label when
// pivoting by month, composite key and the metric columns.
func WriteResultCSV(path string, rows []model.ResultRow, r *config.Report) (model.ExportResult, error) {
	result := model.ExportResult{Type: "csv", Path: path, Timestamp: time.Now()}

	file, err := os.Create(path)
	if err != nil {
		result.Error = err.Error()
		return result, fmt.Errorf("%w: failed to create %s: %w", model.ErrIO, path, err)
	}
	defer file.Close()

	layout := r.Layout()
	metricCols := resultMetrics(r)

	header := []string{model.ColType}
	header = append(header, layout.Columns()...)
	header[len(header)-1] = r.IndexName()
	header = append(header, model.ColServiceDate)
	if layout.ByMonth() {
		header = append(header, model.PivotMonth)
	}
	header = append(header, "key")
	for _, m := range metricCols {
		header = append(header, string(m))
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		result.Error = err.Error()
		return result, fmt.Errorf("%w: failed to write CSV header: %w", model.ErrIO, err)
	}

	for _, row := range rows {
		record := make([]string, 0, len(header))
		record = append(record, row.Mode)
		record = append(record, row.Dims...)
		record = append(record, row.Date.Format(time.DateOnly))
		if layout.ByMonth() {
			record = append(record, row.Month)
		}
		record = append(record, row.Key)
		for _, m := range metricCols {
			v, ok := row.Value(m)
			if !ok {
				record = append(record, "")
				continue
			}
			record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := writer.Write(record); err != nil {
			result.Error = err.Error()
			return result, fmt.Errorf("%w: failed to write CSV record: %w", model.ErrIO, err)
		}
		result.RecordCount++
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		result.Error = err.Error()
		return result, fmt.Errorf("%w: failed to flush %s: %w", model.ErrIO, path, err)
	}
	result.Success = true
	return result, nil
}

// WorkbookSink writes every pivot table of a report to one Excel workbook.
type WorkbookSink struct{}

func (WorkbookSink) Name() string { return "xlsx" }

// Write saves dir/tables.xlsx with one sheet per table. Nothing is written
// when there are no tables.
func (WorkbookSink) Write(ctx context.Context, dir string, r *config.Report, tables []model.PivotTable) ([]model.ExportResult, error) {
	if len(tables) == 0 {
		return nil, nil
	}
	path := filepath.Join(dir, WorkbookFile)
	result := model.ExportResult{Type: "xlsx", Path: path, Timestamp: time.Now()}

	f := excelize.NewFile()
	defer f.Close()

	used := make(map[string]bool, len(tables))
	for i, t := range tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := sheetName(i, t.Label(), used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return nil, fmt.Errorf("%w: workbook sheet %q: %w", model.ErrIO, name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("%w: workbook sheet %q: %w", model.ErrIO, name, err)
		}
		if err := writeSheet(f, name, r.Title(t.Metric), t); err != nil {
			return nil, fmt.Errorf("%w: workbook sheet %q: %w", model.ErrIO, name, err)
		}
		result.RecordCount += len(t.Rows)
	}

	if err := f.SaveAs(path); err != nil {
		result.Error = err.Error()
		return []model.ExportResult{result}, fmt.Errorf("%w: failed to save %s: %w", model.ErrIO, path, err)
	}
	result.Success = true
	return []model.ExportResult{result}, nil
}

// writeSheet lays out a table under a title row: header row, then one row per
// category. NaN cells stay blank.
func writeSheet(f *excelize.File, sheet, title string, t model.PivotTable) error {
	set := func(col, row int, v interface{}) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(sheet, cell, v)
	}

	if err := set(1, 1, title); err != nil {
		return err
	}
	if err := set(1, 2, t.RowName); err != nil {
		return err
	}
	for j, col := range t.Cols {
		if err := set(j+2, 2, col); err != nil {
			return err
		}
	}
	for i, row := range t.Rows {
		if err := set(1, i+3, row); err != nil {
			return err
		}
		for j := range t.Cols {
			v := t.At(i, j)
			switch {
			case math.IsNaN(v):
				continue
			case math.IsInf(v, 0):
				if err := set(j+2, i+3, strconv.FormatFloat(v, 'f', -1, 64)); err != nil {
					return err
				}
			default:
				if err := set(j+2, i+3, v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// sheetName derives a unique Excel sheet name from a table label.
func sheetName(i int, label string, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']', '\n':
			return ' '
		}
		return r
	}, label)
	if runes := []rune(name); len(runes) > maxSheetName || used[name] || name == "" {
		prefix := strconv.Itoa(i+1) + " "
		if keep := maxSheetName - len(prefix); len(runes) > keep {
			name = string(runes[len(runes)-keep:])
		}
		name = prefix + name
	}
	used[name] = true
	return name
}

// Package source moves ridership rows across the intermediate CSV boundary:
// extraction queries write them, report runs read them back in chunks.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"roundtable-report/internal/model"
)

// DefaultChunkSize bounds the rows materialized per chunk.
const DefaultChunkSize = 500000

// Accepted service_date layouts.
var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339}

// CSVReader reads an intermediate extract as a sequence of bounded chunks.
type CSVReader struct {
	path      string
	file      *os.File
	csv       *csv.Reader
	headers   []string
	chunkSize int
	line      int
	rowsRead  int64
}

// OpenCSV opens an extract and reads its header row.
func OpenCSV(path string, chunkSize int) (*CSVReader, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open CSV file: %w", model.ErrIO, err)
	}

	csvReader := csv.NewReader(file)
	csvReader.LazyQuotes = true
	csvReader.ReuseRecord = true
	header, err := csvReader.Read()
	if err != nil {
		file.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s has no header row", model.ErrData, path)
		}
		return nil, fmt.Errorf("%w: failed to read CSV header: %w", model.ErrIO, err)
	}

	headers := make([]string, len(header))
	for i, h := range header {
		// Clean header names: trim whitespace and remove all quotes
		headers[i] = strings.ReplaceAll(strings.TrimSpace(h), `"`, "")
	}
	for _, required := range []string{model.ColType, model.ColServiceDate, model.ColRides} {
		if !slices.Contains(headers, required) {
			file.Close()
			return nil, fmt.Errorf("%w: %s lacks required column %q", model.ErrData, path, required)
		}
	}

	return &CSVReader{
		path:      path,
		file:      file,
		csv:       csvReader,
		headers:   headers,
		chunkSize: chunkSize,
		line:      1,
	}, nil
}

// Headers returns the cleaned header names.
func (r *CSVReader) Headers() []string {
	return r.headers
}

// RowsRead returns the number of rows returned so far.
func (r *CSVReader) RowsRead() int64 {
	return r.rowsRead
}

// Next returns the next chunk of at most chunkSize rows. It returns io.EOF once
// the file is exhausted and no rows remain.
func (r *CSVReader) Next(ctx context.Context) ([]model.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunk := make([]model.Row, 0, min(r.chunkSize, 4096))
	for len(chunk) < r.chunkSize {
		record, err := r.csv.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		r.line++
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %w", model.ErrData, r.path, r.line, err)
		}
		row, err := r.parse(record)
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %w", model.ErrData, r.path, r.line, err)
		}
		chunk = append(chunk, row)
	}

	if len(chunk) == 0 {
		return nil, io.EOF
	}
	r.rowsRead += int64(len(chunk))
	return chunk, nil
}

func (r *CSVReader) parse(record []string) (model.Row, error) {
	row := model.Row{Fields: make(map[string]string, len(r.headers))}
	for i, h := range r.headers {
		if h == "" || i >= len(record) {
			continue
		}
		val := strings.TrimSpace(record[i])
		switch h {
		case model.ColType:
			row.Type = val
		case model.ColDayType:
			row.DayType = val
		case model.ColServiceDate:
			if val == "" {
				continue
			}
			d, err := ParseDate(val)
			if err != nil {
				return row, err
			}
			row.ServiceDate = d
		case model.ColRides:
			if val == "" {
				continue
			}
			rides, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return row, fmt.Errorf("invalid rides value %q", val)
			}
			row.Rides = rides
		default:
			row.Fields[h] = val
		}
	}
	return row, nil
}

// ParseDate parses a service date, keeping only the calendar date.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid service_date %q", s)
}

// Close releases the underlying file.
func (r *CSVReader) Close() error {
	return r.file.Close()
}

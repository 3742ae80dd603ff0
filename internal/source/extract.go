package source

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"roundtable-report/internal/model"
	"roundtable-report/internal/period"
)

// Queries maps query names to SQL text. Statements bind :from_date and :to_date.
type Queries map[string]string

// LoadQueries reads the JSON queries file.
func LoadQueries(path string) (Queries, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read queries file: %w", model.ErrIO, err)
	}
	var q Queries
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("%w: failed to parse queries file: %w", model.ErrConfig, err)
	}
	return q, nil
}

// Extractor runs named queries over the extraction window and streams the
// results into intermediate CSV files.
type Extractor struct {
	db        *sql.DB
	queries   Queries
	chunkSize int
	logger    *slog.Logger
}

// NewExtractor creates an extractor reading from db.
func NewExtractor(db *sql.DB, queries Queries, chunkSize int, logger *slog.Logger) *Extractor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{db: db, queries: queries, chunkSize: chunkSize, logger: logger}
}

// Extract runs query for the period's query window and writes the rows to path:
// the header once, then each chunk as it arrives. It returns the rows written.
func (e *Extractor) Extract(ctx context.Context, query string, p period.Period, path string) (int64, error) {
	text, ok := e.queries[query]
	if !ok {
		return 0, fmt.Errorf("%w: unknown query %q", model.ErrConfig, query)
	}
	from, to := p.QueryParams()
	start := time.Now()
	e.logger.Info("extracting", slog.String("query", query), slog.String("from_date", from), slog.String("to_date", to))

	rows, err := e.db.QueryContext(ctx, text, sql.Named("from_date", from), sql.Named("to_date", to))
	if err != nil {
		return 0, fmt.Errorf("%w: query %s failed: %w", model.ErrIO, query, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("%w: query %s columns: %w", model.ErrIO, query, err)
	}

	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create %s: %w", model.ErrIO, path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(cols); err != nil {
		return 0, fmt.Errorf("%w: failed to write header: %w", model.ErrIO, err)
	}

	vals := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	record := make([]string, len(cols))

	var written int64
	chunks := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return written, fmt.Errorf("%w: query %s scan: %w", model.ErrData, query, err)
		}
		for i, v := range vals {
			record[i] = formatValue(v)
		}
		if err := w.Write(record); err != nil {
			return written, fmt.Errorf("%w: failed to write row: %w", model.ErrIO, err)
		}
		written++
		if written%int64(e.chunkSize) == 0 {
			if err := flushChunk(ctx, w); err != nil {
				return written, err
			}
			chunks++
			e.logger.Debug("chunk written", slog.String("query", query), slog.Int("chunk", chunks), slog.Int64("rows", written))
		}
	}
	if err := rows.Err(); err != nil {
		return written, fmt.Errorf("%w: query %s: %w", model.ErrIO, query, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return written, fmt.Errorf("%w: failed to flush %s: %w", model.ErrIO, path, err)
	}

	e.logger.Info("extract written",
		slog.String("query", query),
		slog.String("path", path),
		slog.Int64("rows", written),
		slog.Duration("duration", time.Since(start)))
	return written, nil
}

func flushChunk(ctx context.Context, w *csv.Writer) error {
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: failed to write chunk: %w", model.ErrIO, err)
	}
	return ctx.Err()
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(val)
	}
}

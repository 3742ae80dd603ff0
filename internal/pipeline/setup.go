package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"roundtable-report/internal/config"
	"roundtable-report/internal/model"
	"roundtable-report/internal/period"
	"roundtable-report/internal/refdata"
	"roundtable-report/internal/render"
	"roundtable-report/internal/source"
	"roundtable-report/pkg/utils"
)

// Setup loads everything one run needs from settings: params, reference data,
// the source database and the queries. The reporting period is derived from
// now. The returned close function releases the source database.
func Setup(ctx context.Context, s *config.Settings, now time.Time, logger *slog.Logger) (*Runner, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}

	params, invalid, err := config.LoadParams(s.Path(s.ParamsFile))
	if err != nil {
		return nil, nil, err
	}
	for id, err := range invalid {
		logger.Error("invalid report parameters", "report", id, "error", err)
	}

	dbPath := s.Path(s.SourceDB)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, nil, fmt.Errorf("%w: source database: %w", model.ErrIO, err)
	}
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to open source database: %w", model.ErrIO, err)
	}

	ref, err := refdata.Load(ctx, s.Path(s.RefDataFile), db, logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	var extractor *source.Extractor
	if queries, err := source.LoadQueries(s.Path(s.QueriesFile)); err != nil {
		logger.Warn("extraction disabled", "error", err)
	} else {
		extractor = source.NewExtractor(db, queries, s.ChunkSize, logger)
	}

	var sinks []Sink
	if s.HasSink("xlsx") {
		sinks = append(sinks, WorkbookSink{})
	}
	if s.HasSink("png") {
		sinks = append(sinks, render.HeatmapSink{})
	}

	runner := NewRunner(Options{
		Params:    params,
		Invalid:   invalid,
		Refdata:   ref,
		Period:    period.New(now),
		Output:    utils.NewOutputManager(s.RootDir),
		Extractor: extractor,
		Sinks:     sinks,
		ChunkSize: s.ChunkSize,
		Logger:    logger,
	})
	return runner, db.Close, nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"roundtable-report/internal/config"
	"roundtable-report/internal/metrics"
	"roundtable-report/internal/model"
	"roundtable-report/internal/period"
	"roundtable-report/internal/refdata"
	"roundtable-report/internal/source"
	"roundtable-report/internal/store"
	"roundtable-report/pkg/utils"
)

// Sink receives the pivot tables of one report and writes them under dir.
type Sink interface {
	Name() string
	Write(ctx context.Context, dir string, r *config.Report, tables []model.PivotTable) ([]model.ExportResult, error)
}

// ChunkReader yields bounded chunks of raw rows and io.EOF after the last one.
type ChunkReader interface {
	Next(ctx context.Context) ([]model.Row, error)
	Close() error
}

// OpenFunc opens an intermediate extract for chunked reading.
type OpenFunc func(path string, chunkSize int) (ChunkReader, error)

func openCSV(path string, chunkSize int) (ChunkReader, error) {
	return source.OpenCSV(path, chunkSize)
}

// Options configures a Runner. Extractor may be nil when only the vis phase runs.
type Options struct {
	Params    *config.Params
	Invalid   map[string]error
	Refdata   *refdata.Tables
	Period    period.Period
	Output    *utils.OutputManager
	Extractor *source.Extractor
	Sinks     []Sink
	ChunkSize int
	Logger    *slog.Logger
	Open      OpenFunc
}

// Runner executes report ids against one reporting period.
type Runner struct {
	params    *config.Params
	invalid   map[string]error
	ref       *refdata.Tables
	period    period.Period
	output    *utils.OutputManager
	extractor *source.Extractor
	sinks     []Sink
	chunkSize int
	logger    *slog.Logger
	open      OpenFunc
}

// NewRunner creates a runner from opts, filling defaults.
func NewRunner(opts Options) *Runner {
	r := &Runner{
		params:    opts.Params,
		invalid:   opts.Invalid,
		ref:       opts.Refdata,
		period:    opts.Period,
		output:    opts.Output,
		extractor: opts.Extractor,
		sinks:     opts.Sinks,
		chunkSize: opts.ChunkSize,
		logger:    opts.Logger,
		open:      opts.Open,
	}
	if r.chunkSize <= 0 {
		r.chunkSize = source.DefaultChunkSize
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.open == nil {
		r.open = openCSV
	}
	if r.ref == nil {
		r.ref = &refdata.Tables{}
	}
	return r
}

// ReportResult is the outcome of one report id.
type ReportResult struct {
	Stats  *model.ReportStats
	Tables []model.PivotTable
	Dir    string
	Err    error
	Detail *model.ErrorDetail
}

// TableInfo describes the produced tables for storage.
func (res *ReportResult) TableInfo() []model.TableInfo {
	infos := make([]model.TableInfo, 0, len(res.Tables))
	for _, t := range res.Tables {
		infos = append(infos, model.TableInfo{
			ReportID: t.ReportID,
			Label:    t.Label(),
			Rows:     len(t.Rows),
			Cols:     len(t.Cols),
			Path:     res.Dir,
		})
	}
	return infos
}

// BatchResult is the outcome of RunAll.
type BatchResult struct {
	Extracted     map[string]int64
	ExtractErrors map[string]error
	Reports       []*ReportResult
}

// IDs resolves the requested report ids; empty means every id of the params
// file, invalid ones included so their errors are reported.
func (r *Runner) IDs(requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	ids := r.params.IDs()
	invalid := make([]string, 0, len(r.invalid))
	for id := range r.invalid {
		invalid = append(invalid, id)
	}
	sort.Strings(invalid)
	return append(ids, invalid...)
}

func (r *Runner) report(id string) (*config.Report, error) {
	if err, ok := r.invalid[id]; ok {
		return nil, err
	}
	report, ok := r.params.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: unknown report id %q", model.ErrConfig, id)
	}
	return report, nil
}

func (r *Runner) dataDir() (string, error) {
	dir, err := r.output.DataDir(r.period.Label())
	if err != nil {
		return "", fmt.Errorf("%w: %w", model.ErrIO, err)
	}
	return dir, nil
}

// Extract runs the query behind each distinct datafile of ids once, writing
// the intermediate CSVs. It returns row counts and per-datafile errors.
func (r *Runner) Extract(ctx context.Context, ids []string) (map[string]int64, map[string]error) {
	counts := make(map[string]int64)
	failed := make(map[string]error)
	datafiles := r.params.Datafiles(ids)
	if len(datafiles) == 0 {
		return counts, failed
	}

	dir, err := r.dataDir()
	for _, datafile := range datafiles {
		switch {
		case err != nil:
			failed[datafile] = err
			continue
		case r.extractor == nil:
			failed[datafile] = fmt.Errorf("%w: no source database configured", model.ErrConfig)
			continue
		}

		start := time.Now()
		n, xerr := r.extractor.Extract(ctx, datafile, r.period, r.output.ExtractPath(dir, datafile))
		metrics.ObserveStage(StageExtract, time.Since(start))
		if xerr != nil {
			r.logger.Error("extraction failed", "query", datafile, "error", xerr)
			metrics.ErrorsTotal.WithLabelValues(model.ErrorType(xerr)).Inc()
			failed[datafile] = xerr
			continue
		}
		metrics.RowsExtracted.WithLabelValues(datafile).Add(float64(n))
		counts[datafile] = n
	}
	return counts, failed
}

// RunAll executes a phase for the given report ids. A failing report id never
// stops the others.
func (r *Runner) RunAll(ctx context.Context, phase model.Phase, requested []string) *BatchResult {
	ids := r.IDs(requested)
	batch := &BatchResult{Extracted: map[string]int64{}, ExtractErrors: map[string]error{}}
	if phase.Extracts() {
		batch.Extracted, batch.ExtractErrors = r.Extract(ctx, ids)
	}
	if !phase.Reports() {
		return batch
	}

	for _, id := range ids {
		if report, ok := r.params.Get(id); ok {
			if err, failed := batch.ExtractErrors[report.Datafile]; failed {
				rt := NewReportTracker(id, r.logger)
				rt.StartStage(StageExtract)
				detail := rt.Fail(fmt.Errorf("extract %s: %w", report.Datafile, err))
				batch.Reports = append(batch.Reports, &ReportResult{Stats: rt.Stats, Err: err, Detail: &detail})
				continue
			}
		}
		batch.Reports = append(batch.Reports, r.RunReport(ctx, id))
	}
	return batch
}

// RunReport builds one report id from its intermediate extract: normalize
// chunk by chunk, reconcile, compare, write raw_data.csv, pivot and hand the
// tables to every sink.
func (r *Runner) RunReport(ctx context.Context, id string) *ReportResult {
	rt := NewReportTracker(id, r.logger)
	res := &ReportResult{Stats: rt.Stats}
	if err := r.runReport(ctx, id, rt, res); err != nil {
		detail := rt.Fail(err)
		res.Err, res.Detail = err, &detail
		return res
	}
	rt.Complete()
	return res
}

func (r *Runner) runReport(ctx context.Context, id string, rt *ReportTracker, res *ReportResult) error {
	rt.StartStage(StageNormalize)
	report, err := r.report(id)
	if err != nil {
		return err
	}
	dataDir, err := r.dataDir()
	if err != nil {
		return err
	}

	reader, err := r.open(r.output.ExtractPath(dataDir, report.Datafile), r.chunkSize)
	if err != nil {
		return err
	}
	defer reader.Close()

	n := NewNormalizer(report, r.ref)
	var partials []*Aggregate
	for {
		chunk, err := reader.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		partial := n.Normalize(chunk)
		partials = append(partials, partial)
		rt.Stats.Chunks++
		rt.Stats.PartialKeys += int64(partial.Len())
		r.logger.Debug("chunk normalized", "report", id, "chunk", rt.Stats.Chunks, "rows", len(chunk), "keys", partial.Len())
	}
	rt.Stats.RowsRead = n.RowsSeen()
	rt.Stats.RowsDropped = n.Dropped()
	rt.EndStage(n.RowsSeen())
	metrics.RowsRead.Add(float64(n.RowsSeen()))
	metrics.RecordDrops(n.Dropped())
	r.logDrops(id, n.Dropped())

	rt.StartStage(StageReconcile)
	layout := report.Layout()
	records := Reconcile(partials, layout, r.period)
	rt.Stats.ReconciledKeys = int64(len(records))
	rt.EndStage(int64(len(records)))

	rt.StartStage(StageCompare)
	rows := Compare(records, layout, report.ShareMode(), r.period)
	rt.Stats.ResultRows = int64(len(rows))
	rt.EndStage(int64(len(rows)))

	rt.StartStage(StageExport)
	rawPath, err := r.output.GetOutputFilePath(dataDir, report.Outfile, RawDataFile)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrIO, err)
	}
	res.Dir = filepath.Dir(rawPath)
	if _, err := WriteResultCSV(rawPath, rows, report); err != nil {
		return err
	}
	rt.EndStage(int64(len(rows)))

	rt.StartStage(StagePivot)
	tables, err := BuildPivots(rows, report)
	if err != nil {
		return err
	}
	res.Tables = tables
	rt.Stats.Tables = len(tables)
	rt.EndStage(int64(len(tables)))
	metrics.TablesTotal.Add(float64(len(tables)))

	rt.StartStage(StageExport)
	var written int64
	for _, sink := range r.sinks {
		if err := ctx.Err(); err != nil {
			return err
		}
		results, err := sink.Write(ctx, res.Dir, report, tables)
		if err != nil {
			return fmt.Errorf("%s output: %w", sink.Name(), err)
		}
		for _, out := range results {
			size, _ := r.output.GetFileSize(out.Path)
			r.logger.Debug("output written", "report", id, "type", r.output.GetFileType(out.Path), "path", out.Path, "bytes", size)
			written++
		}
	}
	rt.EndStage(written)
	return nil
}

func (r *Runner) logDrops(id string, dropped map[string]int64) {
	reasons := make([]string, 0, len(dropped))
	for reason := range dropped {
		reasons = append(reasons, reason)
	}
	slices.Sort(reasons)
	for _, reason := range reasons {
		if dropped[reason] > 0 {
			r.logger.Warn("rows dropped", "report", id, "reason", reason, "count", dropped[reason])
		}
	}
}

// Run executes a stored run: it records status, per-report stats, errors and
// produced tables in the run store.
func (r *Runner) Run(ctx context.Context, runID string, spec model.RunSpec) (err error) {
	start := time.Now()
	logger := r.logger.With("run", runID)
	logger.Info("run started", "phase", spec.Phase, "reports", len(r.IDs(spec.ReportIDs)), "period", r.period.Label())

	r.persist(logger, store.UpdateRunStatus(runID, model.StatusRunning))
	defer func() {
		if err != nil {
			r.persist(logger, store.UpdateRunStatus(runID, model.StatusFailed))
			metrics.RunsTotal.WithLabelValues(model.StatusFailed).Inc()
		}
	}()

	if !spec.Phase.Valid() {
		err = fmt.Errorf("%w: unknown phase %q", model.ErrConfig, spec.Phase)
		r.persist(logger, store.SaveRunError(runID, model.ErrorDetail{Stage: "run", ErrorType: model.ErrorType(err), Message: err.Error()}))
		return err
	}

	batch := r.RunAll(ctx, spec.Phase, spec.ReportIDs)

	datafiles := make([]string, 0, len(batch.ExtractErrors))
	for datafile := range batch.ExtractErrors {
		datafiles = append(datafiles, datafile)
	}
	slices.Sort(datafiles)
	for _, datafile := range datafiles {
		xerr := batch.ExtractErrors[datafile]
		r.persist(logger, store.SaveRunError(runID, model.ErrorDetail{
			Stage:     StageExtract,
			ErrorType: model.ErrorType(xerr),
			Message:   fmt.Sprintf("%s: %v", datafile, xerr),
		}))
	}

	failed := 0
	for _, res := range batch.Reports {
		r.persist(logger, store.SaveReportStats(runID, res.Stats))
		if res.Detail != nil {
			failed++
			r.persist(logger, store.SaveRunError(runID, *res.Detail))
			continue
		}
		r.persist(logger, store.SaveTables(runID, res.TableInfo()))
	}

	attempted := len(batch.Reports)
	if !spec.Phase.Reports() {
		attempted, failed = len(batch.Extracted)+len(batch.ExtractErrors), len(batch.ExtractErrors)
	}
	status := model.StatusCompleted
	switch {
	case attempted > 0 && failed == attempted:
		err = fmt.Errorf("run %s: all %d report ids failed", runID, failed)
		logger.Error("run failed", "duration", time.Since(start))
		return err
	case failed > 0 || len(batch.ExtractErrors) > 0:
		status = model.StatusPartial
	}

	r.persist(logger, store.UpdateRunStatus(runID, status))
	metrics.RunsTotal.WithLabelValues(status).Inc()
	logger.Info("run finished", "status", status, "failed", failed, "duration", time.Since(start))
	return nil
}

func (r *Runner) persist(logger *slog.Logger, err error) {
	if err != nil {
		logger.Error("failed to update run store", "error", err)
	}
}

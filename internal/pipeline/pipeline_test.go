package pipeline

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundtable-report/internal/config"
	"roundtable-report/internal/logging"
	"roundtable-report/internal/model"
	"roundtable-report/internal/store"
	"roundtable-report/pkg/utils"
)

const runnerParams = `01-bus-media-Month:
  datafile: ridership
  split_col: [sys]
  idx_col: media
  pivot_col: Month
  vis_title: {rides: Rides, pct_diff: Percent}
  outfile: media
`

const runnerExtract = `type,service_date,day_type,media,rides
bus,2023-01-05,W,card,100
bus,2024-01-05,W,card,150
bus,2024-01-06,W,cash,10
rail,2023-01-09,W,card,50
rail,2024-01-09,W,card,60
rail,2024-01-10,W,,7
`

type recordingSink struct {
	dirs   []string
	tables int
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Write(_ context.Context, dir string, _ *config.Report, tables []model.PivotTable) ([]model.ExportResult, error) {
	s.dirs = append(s.dirs, dir)
	s.tables += len(tables)
	return nil, nil
}

func newTestRunner(t *testing.T, sinks ...Sink) (*Runner, string) {
	t.Helper()
	root := t.TempDir()
	params, invalid, err := config.ParseParams([]byte(runnerParams))
	require.NoError(t, err)

	output := utils.NewOutputManager(root)
	dataDir, err := output.DataDir(testPeriod.Label())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(output.ExtractPath(dataDir, "ridership"), []byte(runnerExtract), 0o644))

	return NewRunner(Options{
		Params:    params,
		Invalid:   invalid,
		Refdata:   testTables(),
		Period:    testPeriod,
		Output:    output,
		Sinks:     sinks,
		ChunkSize: 2,
		Logger:    logging.Discard(),
	}), dataDir
}

func TestRunReport(t *testing.T) {
	sink := &recordingSink{}
	runner, dataDir := newTestRunner(t, sink, WorkbookSink{})

	res := runner.RunReport(context.Background(), "01-bus-media-Month")
	require.NoError(t, res.Err)
	assert.Nil(t, res.Detail)

	stats := res.Stats
	assert.Equal(t, model.StatusCompleted, stats.Status)
	assert.EqualValues(t, 6, stats.RowsRead)
	assert.Equal(t, 3, stats.Chunks)
	assert.EqualValues(t, 1, stats.RowsDropped[model.DropEmptyKey])
	assert.Equal(t, 6, stats.Tables)
	assert.NotEmpty(t, stats.Stages)

	require.Len(t, res.Tables, 6)
	assert.Equal(t, "bus|rides", res.Tables[0].Label())
	assert.Equal(t, 150.0, res.Tables[0].Lookup("card", "2024-01"))
	assert.Equal(t, 160.0, res.Tables[0].Lookup(model.TotalLabel, "2024-01"))
	assert.Equal(t, "bus|pct_diff", res.Tables[1].Label())
	assert.InDelta(t, 50.0, res.Tables[1].Lookup("card", "2024-01"), 1e-9)
	assert.Equal(t, "system|rides", res.Tables[4].Label())
	assert.Equal(t, 210.0, res.Tables[4].Lookup("card", "2024-01"))

	reportDir := filepath.Join(dataDir, "media")
	assert.Equal(t, reportDir, res.Dir)
	assert.Equal(t, []string{reportDir}, sink.dirs)
	assert.Equal(t, 6, sink.tables)
	assert.FileExists(t, filepath.Join(reportDir, WorkbookFile))

	f, err := os.Open(filepath.Join(reportDir, RawDataFile))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"type", "media", "service_date", "Month", "key", "rides", "pre", "diff", "pct_diff"}, records[0])
	assert.Contains(t, records[1:], []string{"bus", "card", "2024-01-01", "2024-01", "", "150", "100", "50", "50"})

	infos := res.TableInfo()
	require.Len(t, infos, 6)
	assert.Equal(t, model.TableInfo{ReportID: "01-bus-media-Month", Label: "bus|rides", Rows: 2, Cols: 1, Path: reportDir}, infos[0])
}

func TestRunReportErrors(t *testing.T) {
	runner, dataDir := newTestRunner(t)

	res := runner.RunReport(context.Background(), "missing")
	assert.ErrorIs(t, res.Err, model.ErrConfig)
	require.NotNil(t, res.Detail)
	assert.Equal(t, "config", res.Detail.ErrorType)
	assert.Equal(t, model.StatusFailed, res.Stats.Status)

	require.NoError(t, os.Remove(filepath.Join(dataDir, "ridership.csv")))
	res = runner.RunReport(context.Background(), "01-bus-media-Month")
	assert.ErrorIs(t, res.Err, model.ErrIO)
	assert.Equal(t, StageNormalize, res.Detail.Stage)
}

func TestRunReportCancelled(t *testing.T) {
	runner, _ := newTestRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := runner.RunReport(ctx, "01-bus-media-Month")
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestRunRecordsOutcome(t *testing.T) {
	require.NoError(t, store.InitDB(filepath.Join(t.TempDir(), "runs.db")))
	t.Cleanup(func() { store.Close() })

	runner, _ := newTestRunner(t)
	spec := model.RunSpec{Phase: model.PhaseVis, ReportIDs: []string{"01-bus-media-Month", "missing"}}
	require.NoError(t, store.SaveRun("run-1", spec))
	require.NoError(t, runner.Run(context.Background(), "run-1", spec))

	run, err := store.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPartial, run.Status)
	require.Len(t, run.Reports, 2)
	assert.Equal(t, model.StatusCompleted, run.Reports[0].Status)
	assert.Equal(t, model.StatusFailed, run.Reports[1].Status)

	errs, err := store.GetRunErrors("run-1")
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "missing", errs[0].ReportID)
	assert.Equal(t, "config", errs[0].ErrorType)

	tables, err := store.GetRunTables("run-1")
	require.NoError(t, err)
	assert.Len(t, tables, 6)
}

func TestRunFailsWithoutSource(t *testing.T) {
	require.NoError(t, store.InitDB(filepath.Join(t.TempDir(), "runs.db")))
	t.Cleanup(func() { store.Close() })

	runner, _ := newTestRunner(t)
	spec := model.RunSpec{Phase: model.PhaseAll}
	require.NoError(t, store.SaveRun("run-2", spec))
	assert.Error(t, runner.Run(context.Background(), "run-2", spec))

	run, err := store.GetRun("run-2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, run.Status)

	errs, err := store.GetRunErrors("run-2")
	require.NoError(t, err)
	require.Len(t, errs, 2, "one for the extract, one for the report depending on it")
	assert.Equal(t, StageExtract, errs[0].Stage)
	assert.Equal(t, StageExtract, errs[1].Stage)
}

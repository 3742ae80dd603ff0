package pipeline

import (
	"log/slog"
	"time"

	"roundtable-report/internal/metrics"
	"roundtable-report/internal/model"
)

// Report stages, in execution order
const (
	StageExtract   = "extract"
	StageNormalize = "normalize"
	StageReconcile = "reconcile"
	StageCompare   = "compare"
	StagePivot     = "pivot"
	StageExport    = "export"
)

// ReportTracker records stage timings and the outcome of one report id.
type ReportTracker struct {
	Stats  *model.ReportStats
	stage  string
	start  time.Time
	logger *slog.Logger
}

// NewReportTracker creates a tracker in the running state.
func NewReportTracker(reportID string, logger *slog.Logger) *ReportTracker {
	stats := model.NewReportStats(reportID)
	stats.Status = model.StatusRunning
	return &ReportTracker{
		Stats:  stats,
		logger: logger.With("report", reportID),
	}
}

// StartStage marks the start of a report stage
func (rt *ReportTracker) StartStage(stage string) {
	rt.stage = stage
	rt.start = time.Now()
	rt.logger.Debug("stage started", "stage", stage)
}

// EndStage marks the end of the current stage
func (rt *ReportTracker) EndStage(records int64) {
	end := time.Now()
	m := model.StageMetrics{
		StageName:        rt.stage,
		StartTime:        rt.start,
		EndTime:          end,
		Duration:         end.Sub(rt.start),
		RecordsProcessed: records,
	}
	rt.Stats.Stages = append(rt.Stats.Stages, m)
	metrics.ObserveStage(rt.stage, m.Duration)
	rt.logger.Debug("stage completed", "stage", rt.stage, "records", records, "duration", m.Duration)
}

// Stage returns the current or last stage.
func (rt *ReportTracker) Stage() string {
	return rt.stage
}

// Fail marks the report as failed in the current stage and returns the error detail.
func (rt *ReportTracker) Fail(err error) model.ErrorDetail {
	detail := model.ErrorDetail{
		ReportID:  rt.Stats.ReportID,
		Stage:     rt.stage,
		ErrorType: model.ErrorType(err),
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
	rt.Stats.Status = model.StatusFailed
	rt.Stats.Error = detail.Message
	metrics.ReportsTotal.WithLabelValues(model.StatusFailed).Inc()
	metrics.ErrorsTotal.WithLabelValues(detail.ErrorType).Inc()
	rt.logger.Error("report failed", "stage", detail.Stage, "type", detail.ErrorType, "error", err)
	return detail
}

// Complete marks the report as completed
func (rt *ReportTracker) Complete() {
	rt.Stats.Status = model.StatusCompleted
	metrics.ReportsTotal.WithLabelValues(model.StatusCompleted).Inc()

	var total time.Duration
	for _, s := range rt.Stats.Stages {
		total += s.Duration
	}
	rt.logger.Info("report completed",
		"rows_read", rt.Stats.RowsRead,
		"rows_dropped", rt.Stats.Dropped(),
		"keys", rt.Stats.ReconciledKeys,
		"tables", rt.Stats.Tables,
		"duration", total,
	)
}

package model

import (
	"time"
)

// Run statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusPartial   = "partial" // some report ids failed
)

// Reasons a raw row is dropped during normalization
const (
	DropSystemAverage = "system_average" // no system average for (month, day type)
	DropFareGroup     = "fm_grp"         // finance code without a fare group
	DropStudentGroup  = "s_fm_grp"       // media without a student fare group
	DropVentraGroup   = "v_fm_grp"       // fare product without a Ventra fare group
	DropRouteGroup    = "seg"            // bus segment without a route group
	DropTimeBin       = "time_bin"       // hour outside the time-bin map
	DropEmptyKey      = "empty_key"      // empty grouping value
)

// StageMetrics represents metrics for a specific report stage
type StageMetrics struct {
	StageName        string        `json:"stage_name"`
	StartTime        time.Time     `json:"start_time"`
	EndTime          time.Time     `json:"end_time"`
	Duration         time.Duration `json:"duration"`
	RecordsProcessed int64         `json:"records_processed"`
}

// ReportStats summarizes one report id within a run
type ReportStats struct {
	ReportID       string           `json:"report_id"`
	Status         string           `json:"status"`
	Chunks         int              `json:"chunks"`
	RowsRead       int64            `json:"rows_read"`
	RowsDropped    map[string]int64 `json:"rows_dropped"`
	PartialKeys    int64            `json:"partial_keys"`
	ReconciledKeys int64            `json:"reconciled_keys"`
	ResultRows     int64            `json:"result_rows"`
	Tables         int              `json:"tables"`
	Stages         []StageMetrics   `json:"stages"`
	Error          string           `json:"error,omitempty"`
}

// NewReportStats returns empty stats for a report id.
func NewReportStats(reportID string) *ReportStats {
	return &ReportStats{
		ReportID:    reportID,
		Status:      StatusPending,
		RowsDropped: make(map[string]int64),
	}
}

// Dropped returns the total number of dropped rows.
func (s *ReportStats) Dropped() int64 {
	var n int64
	for _, c := range s.RowsDropped {
		n += c
	}
	return n
}

// ErrorDetail represents a stored run error
type ErrorDetail struct {
	ReportID  string    `json:"report_id,omitempty"`
	Stage     string    `json:"stage"`
	ErrorType string    `json:"error_type"` // "config", "io", "data", "internal"
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// TableInfo describes one produced pivot table
type TableInfo struct {
	ReportID string `json:"report_id"`
	Label    string `json:"label"`
	Rows     int    `json:"rows"`
	Cols     int    `json:"cols"`
	Path     string `json:"path,omitempty"`
}

// Run is a stored run with its per-report stats
type Run struct {
	ID        string        `json:"id"`
	Spec      RunSpec       `json:"spec"`
	Status    string        `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Reports   []ReportStats `json:"reports,omitempty"`
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roundtable"

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Runs finished, by final status.",
	}, []string{"status"})

	ReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reports_total",
		Help:      "Report ids processed, by status.",
	}, []string{"status"})

	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Report errors, by error class.",
	}, []string{"type"})

	RowsRead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_read_total",
		Help:      "Raw rows read from intermediate extracts.",
	})

	RowsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_dropped_total",
		Help:      "Raw rows dropped during normalization, by reason.",
	}, []string{"reason"})

	RowsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_extracted_total",
		Help:      "Rows written to intermediate extracts, by query.",
	}, []string{"query"})

	TablesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tables_total",
		Help:      "Pivot tables produced.",
	})

	StageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Duration of report stages.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"stage"})
)

// ObserveStage records the duration of a finished stage.
func ObserveStage(stage string, d time.Duration) {
	StageSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordDrops adds per-reason drop counts.
func RecordDrops(dropped map[string]int64) {
	for reason, n := range dropped {
		RowsDropped.WithLabelValues(reason).Add(float64(n))
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

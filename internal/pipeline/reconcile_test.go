package pipeline

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundtable-report/internal/model"
)

const systemParams = `r:
  datafile: d
  split_col: [sys]
  idx_col: media
  pivot_col: Month
  vis_title: {rides: R}
  outfile: o
`

func sampleRows() []model.Row {
	var rows []model.Row
	modes := []string{"bus", "rail"}
	media := []string{"card", "cash", "pass"}
	for i := 0; i < 240; i++ {
		date := day(2023, time.Month(1+i%13), 1+i%27)
		rows = append(rows, row(modes[i%2], date, float64(i%17+1), model.ColMedia, media[i%3]))
	}
	return rows
}

func normalizeChunks(t *testing.T, params string, chunks [][]model.Row) []*Aggregate {
	t.Helper()
	n := NewNormalizer(loadReport(t, params), testTables())
	var partials []*Aggregate
	for _, chunk := range chunks {
		partials = append(partials, n.Normalize(chunk))
	}
	return partials
}

func TestReconcileIdempotentUnderChunking(t *testing.T) {
	rows := sampleRows()
	r := loadReport(t, systemParams)
	want := Reconcile(normalizeChunks(t, systemParams, [][]model.Row{rows}), r.Layout(), testPeriod)
	require.NotEmpty(t, want)

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		shuffled := append([]model.Row(nil), rows...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		var chunks [][]model.Row
		for rest := shuffled; len(rest) > 0; {
			size := 1 + rng.Intn(40)
			if size > len(rest) {
				size = len(rest)
			}
			chunks = append(chunks, rest[:size])
			rest = rest[size:]
		}

		got := Reconcile(normalizeChunks(t, systemParams, chunks), r.Layout(), testPeriod)
		if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
			t.Fatalf("trial %d with %d chunks (-want +got):\n%s", trial, len(chunks), diff)
		}
	}
}

func TestReconcileSystemConservation(t *testing.T) {
	r := loadReport(t, systemParams)
	records := Reconcile(normalizeChunks(t, systemParams, [][]model.Row{sampleRows()}), r.Layout(), testPeriod)

	modes := make(map[string]float64)
	system := make(map[string]float64)
	for _, rec := range records {
		key := groupKey("", rec.Dims, rec.Date)
		if rec.Mode == model.SystemMode {
			system[key] += rec.Rides
		} else {
			modes[key] += rec.Rides
		}
	}
	require.NotEmpty(t, system)
	assert.Equal(t, modes, system)

	seen := make(map[string]bool)
	for _, rec := range records {
		key := groupKey(rec.Mode, rec.Dims, rec.Date)
		assert.False(t, seen[key], "duplicate key %q", key)
		seen[key] = true
	}
}

func TestReconcileComparisonMonths(t *testing.T) {
	params := "r:\n  datafile: d\n  idx_col: media\n  pivot_col: fm_grp\n  vis_title: {rides: R}\n  outfile: o\n"
	rows := []model.Row{
		row("bus", day(2024, time.January, 5), 1, model.ColMedia, "card", model.ColFinanceCode, "FULL"),
		row("bus", day(2024, time.January, 20), 2, model.ColMedia, "card", model.ColFinanceCode, "FULL"),
		row("bus", day(2023, time.January, 1), 4, model.ColMedia, "card", model.ColFinanceCode, "FULL"),
		row("bus", day(2023, time.June, 1), 8, model.ColMedia, "card", model.ColFinanceCode, "FULL"),
		row("bus", day(2024, time.February, 1), 16, model.ColMedia, "card", model.ColFinanceCode, "FULL"),
	}
	r := loadReport(t, params)
	got := Reconcile(normalizeChunks(t, params, [][]model.Row{rows[:2], rows[2:]}), r.Layout(), testPeriod)

	var total float64
	for _, rec := range got {
		assert.True(t, testPeriod.IsComparisonMonth(rec.Date), rec.Date)
		total += rec.Rides
	}
	assert.Len(t, got, 3)
	assert.Equal(t, 7.0, total)
}

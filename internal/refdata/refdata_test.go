package refdata

import (
	"context"
	"database/sql"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundtable-report/internal/model"
	"roundtable-report/internal/period"
)

const sampleData = `{
  "fare_codes": [
    {"finance_code": "FULL", "fm_grp": "Full Fare"},
    {"finance_code": "RED", "fm_grp": "Reduced"},
    {"finance_code": "RED", "fm_grp": "Reduced"}
  ],
  "fare_code_bins": [{"finance_code": "FULL", "fm_grp_bin": "Full"}],
  "student_fare_codes": [{"media": 12, "s_fm_grp": "Student"}],
  "ventra_fare_codes": [{"fare_prod_name": "30-Day Pass", "v_fm_grp": "Pass"}],
  "route_groups": [
    {"rte_group": 1, "r_grp": "Express"},
    {"rte_group": 2, "r_grp": "Local"}
  ],
  "hour_bins": {"7": "AM Peak", "12": "Midday", "17": "PM Peak"}
}`

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE system_averages (year INTEGER, month INTEGER, wk REAL, sa REAL, su REAL, cawk REAL, casa REAL, casu REAL);
		INSERT INTO system_averages VALUES (2026, 9, 100, 60, 40, 110, 66, 44);
		INSERT INTO system_averages VALUES (2025, 9, 90, NULL, 30, 95, NULL, 33);
		CREATE TABLE routes (routenum INTEGER, rte_group INTEGER);
		INSERT INTO routes VALUES (4, 2), (146, 1), (999, 7);
	`)
	require.NoError(t, err)
	return db
}

func TestParse(t *testing.T) {
	tables, err := Parse([]byte(sampleData))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"FULL": "Full Fare", "RED": "Reduced"}, tables.FareGroups)
	assert.Equal(t, map[string]string{"FULL": "Full"}, tables.FareBins)
	assert.Equal(t, map[string]string{"12": "Student"}, tables.StudentGroups)
	assert.Equal(t, map[string]string{"30-Day Pass": "Pass"}, tables.VentraGroups)
	assert.Equal(t, map[string]string{"1": "Express", "2": "Local"}, tables.RouteLabels)
	assert.Equal(t, "AM Peak", tables.HourBins["7"])
	assert.Len(t, tables.HourBins, 3)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"conflicting duplicate", `{"fare_codes": [{"finance_code": "A", "fm_grp": "X"}, {"finance_code": "A", "fm_grp": "Y"}]}`},
		{"missing field", `{"fare_codes": [{"finance_code": "A"}]}`},
		{"list expected", `{"fare_codes": {"A": "X"}}`},
		{"bad hour bins", `{"hour_bins": [1, 2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			assert.ErrorIs(t, err, model.ErrConfig)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleData), 0o644))

	tables, err := Load(context.Background(), path, openDB(t), nil)
	require.NoError(t, err)

	sep := period.MonthIndex(time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC))
	a, ok := tables.Average(sep, "A")
	require.True(t, ok)
	assert.Equal(t, Average{SA: 60, CASA: 66}, a)
	a, ok = tables.Average(sep, "W")
	require.True(t, ok)
	assert.Equal(t, Average{SA: 100, CASA: 110}, a)

	_, ok = tables.Average(sep-12, "A")
	assert.False(t, ok, "null averages are skipped")
	_, ok = tables.Average(sep-12, "U")
	assert.True(t, ok)
	_, ok = tables.Average(sep, "X")
	assert.False(t, ok)

	assert.Equal(t, map[string]string{"4": "Local", "146": "Express"}, tables.RouteGroups)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, model.ErrIO)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLoadMissingTables(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	tables, err := Parse([]byte(`{}`))
	require.NoError(t, err)
	assert.ErrorIs(t, tables.LoadSystemAverages(context.Background(), db), model.ErrIO)
	assert.ErrorIs(t, tables.LoadRouteGroups(context.Background(), db), model.ErrIO)
}

func TestLoadFileSample(t *testing.T) {
	tables, err := LoadFile(filepath.Join("..", "..", "testdata", "data.json"))
	require.NoError(t, err)
	assert.Equal(t, "Discount", tables.FareBins["STU"])
	assert.Equal(t, "Student", tables.StudentGroups["12"])
	assert.Equal(t, "AM Peak", tables.HourBins["8"])
}

package pipeline

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundtable-report/internal/config"
	"roundtable-report/internal/logging"
	"roundtable-report/internal/model"
)

const setupQueries = `{"ridership": "SELECT type, service_date, day_type, media, rides FROM rides WHERE replace(service_date, '-', '') BETWEEN :from_date AND :to_date ORDER BY service_date"}`

func writeSourceDB(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE system_averages (year INTEGER, month INTEGER, wk REAL, sa REAL, su REAL, cawk REAL, casa REAL, casu REAL);
		INSERT INTO system_averages VALUES (2024, 1, 100, 60, 40, 110, 66, 44);
		CREATE TABLE routes (routenum INTEGER, rte_group INTEGER);
		CREATE TABLE rides (type TEXT, service_date TEXT, day_type TEXT, media TEXT, rides REAL);
		INSERT INTO rides VALUES ('bus', '2021-06-01', 'W', 'card', 999);
		INSERT INTO rides VALUES ('bus', '2023-01-05', 'W', 'card', 100);
		INSERT INTO rides VALUES ('bus', '2024-01-05', 'W', 'card', 150);
		INSERT INTO rides VALUES ('rail', '2023-01-09', 'W', 'card', 50);
		INSERT INTO rides VALUES ('rail', '2024-01-09', 'W', 'card', 60);
		INSERT INTO rides VALUES ('rail', '2024-02-01', 'W', 'card', 5);
	`)
	require.NoError(t, err)
}

func setupSettings(t *testing.T) *config.Settings {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "params.yml"), []byte(runnerParams), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data.json"), []byte(`{}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "queries.json"), []byte(setupQueries), 0o644))
	return &config.Settings{
		RootDir:     root,
		ParamsFile:  "params.yml",
		RefDataFile: "data.json",
		QueriesFile: "queries.json",
		SourceDB:    "ridership.db",
		ChunkSize:   2,
		Sinks:       []string{"xlsx"},
	}
}

func TestSetupRunAll(t *testing.T) {
	s := setupSettings(t)
	writeSourceDB(t, s.Path(s.SourceDB))

	runner, closeSource, err := Setup(context.Background(), s, time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC), logging.Discard())
	require.NoError(t, err)
	defer closeSource()

	batch := runner.RunAll(context.Background(), model.PhaseAll, nil)
	assert.Empty(t, batch.ExtractErrors)
	// rows outside the 25-month window stay in the database
	assert.Equal(t, map[string]int64{"ridership": 4}, batch.Extracted)

	require.Len(t, batch.Reports, 1)
	res := batch.Reports[0]
	require.NoError(t, res.Err)
	assert.Equal(t, model.StatusCompleted, res.Stats.Status)
	assert.Equal(t, filepath.Join(s.RootDir, "data", "2024-01", "media"), res.Dir)
	assert.FileExists(t, filepath.Join(res.Dir, WorkbookFile))
	assert.FileExists(t, filepath.Join(res.Dir, RawDataFile))
	assert.FileExists(t, filepath.Join(s.RootDir, "data", "2024-01", "ridership.csv"))
}

func TestSetupMissingSource(t *testing.T) {
	s := setupSettings(t)
	_, _, err := Setup(context.Background(), s, time.Now(), logging.Discard())
	assert.ErrorIs(t, err, model.ErrIO)
}

func TestSetupWithoutQueries(t *testing.T) {
	s := setupSettings(t)
	writeSourceDB(t, s.Path(s.SourceDB))
	s.QueriesFile = "missing.json"

	runner, closeSource, err := Setup(context.Background(), s, time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC), logging.Discard())
	require.NoError(t, err)
	defer closeSource()

	_, failed := runner.Extract(context.Background(), runner.IDs(nil))
	assert.ErrorIs(t, failed["ridership"], model.ErrConfig)
}

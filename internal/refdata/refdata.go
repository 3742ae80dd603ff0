// Package refdata loads the lookup tables used to enrich raw ridership rows.
package refdata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"roundtable-report/internal/model"
	"roundtable-report/internal/period"
	"roundtable-report/pkg/utils"
)

// OtherRides labels finance codes without a fare-code bin.
const OtherRides = "Other Rides"

// AverageKey identifies one system-average cell.
type AverageKey struct {
	Month   int // period.MonthIndex of the month
	DayType string
}

// Average holds the plain and calendar-adjusted system averages.
type Average struct {
	SA   float64
	CASA float64
}

// Tables is the read-only reference data shared by every report of a run.
type Tables struct {
	FareGroups     map[string]string // finance_code -> fm_grp
	FareBins       map[string]string // finance_code -> fm_grp_bin
	StudentGroups  map[string]string // media -> s_fm_grp
	VentraGroups   map[string]string // fare_prod_name -> v_fm_grp
	RouteLabels    map[string]string // rte_group -> r_grp
	RouteGroups    map[string]string // seg -> r_grp
	HourBins       map[string]string // hr -> time_bin
	SystemAverages map[AverageKey]Average
}

type lookup struct {
	list  string
	key   string
	value string
	dst   func(*Tables) *map[string]string
}

var lookups = []lookup{
	{"fare_codes", model.ColFinanceCode, "fm_grp", func(t *Tables) *map[string]string { return &t.FareGroups }},
	{"fare_code_bins", model.ColFinanceCode, "fm_grp_bin", func(t *Tables) *map[string]string { return &t.FareBins }},
	{"student_fare_codes", model.ColMedia, "s_fm_grp", func(t *Tables) *map[string]string { return &t.StudentGroups }},
	{"ventra_fare_codes", model.ColFareProdName, "v_fm_grp", func(t *Tables) *map[string]string { return &t.VentraGroups }},
	{"route_groups", "rte_group", "r_grp", func(t *Tables) *map[string]string { return &t.RouteLabels }},
}

// Load reads the reference data file and the database-backed tables.
func Load(ctx context.Context, path string, db *sql.DB, logger *slog.Logger) (*Tables, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := t.LoadSystemAverages(ctx, db); err != nil {
		return nil, err
	}
	if err := t.LoadRouteGroups(ctx, db); err != nil {
		return nil, err
	}
	logger.Info("reference data loaded",
		slog.Int("fare_groups", len(t.FareGroups)),
		slog.Int("fare_bins", len(t.FareBins)),
		slog.Int("student_groups", len(t.StudentGroups)),
		slog.Int("ventra_groups", len(t.VentraGroups)),
		slog.Int("route_groups", len(t.RouteGroups)),
		slog.Int("hour_bins", len(t.HourBins)),
		slog.Int("system_averages", len(t.SystemAverages)))
	return t, nil
}

// LoadFile reads the JSON reference data file.
func LoadFile(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read reference data: %w", model.ErrIO, err)
	}
	return Parse(data)
}

// Parse decodes a reference data document. Record lists become key/value maps;
// a key listed twice with different values is an error.
func Parse(data []byte) (*Tables, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse reference data: %w", model.ErrConfig, err)
	}
	var hourBins map[string]interface{}
	if msg, ok := raw["hour_bins"]; ok {
		if err := json.Unmarshal(msg, &hourBins); err != nil {
			return nil, fmt.Errorf("%w: hour_bins: %w", model.ErrConfig, err)
		}
	}

	t := &Tables{
		RouteGroups:    make(map[string]string),
		HourBins:       make(map[string]string, len(hourBins)),
		SystemAverages: make(map[AverageKey]Average),
	}
	for _, l := range lookups {
		var records []map[string]interface{}
		if msg, ok := raw[l.list]; ok {
			if err := json.Unmarshal(msg, &records); err != nil {
				return nil, fmt.Errorf("%w: %s must be a list of records: %w", model.ErrConfig, l.list, err)
			}
		}
		m, err := index(l, records)
		if err != nil {
			return nil, err
		}
		*l.dst(t) = m
	}
	for hr, bin := range hourBins {
		t.HourBins[utils.CanonicalKey(hr)] = utils.Stringify(bin)
	}
	return t, nil
}

func index(l lookup, records []map[string]interface{}) (map[string]string, error) {
	m := make(map[string]string, len(records))
	for i, rec := range records {
		k, kok := rec[l.key]
		v, vok := rec[l.value]
		if !kok || !vok {
			return nil, fmt.Errorf("%w: %s record %d needs %q and %q", model.ErrConfig, l.list, i, l.key, l.value)
		}
		key, val := utils.Stringify(k), utils.Stringify(v)
		if prev, dup := m[key]; dup && prev != val {
			return nil, fmt.Errorf("%w: %s maps %q to both %q and %q", model.ErrConfig, l.list, key, prev, val)
		}
		m[key] = val
	}
	return m, nil
}

// melted system-average columns: day type, plain column, calendar-adjusted column
var averageColumns = [][3]string{
	{"W", "wk", "cawk"},
	{"A", "sa", "casa"},
	{"U", "su", "casu"},
}

// LoadSystemAverages reads system_averages and melts its weekday, Saturday and
// Sunday columns into one cell per (month, day type).
func (t *Tables) LoadSystemAverages(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `SELECT year, month, wk, sa, su, cawk, casa, casu FROM system_averages`)
	if err != nil {
		return fmt.Errorf("%w: failed to query system averages: %w", model.ErrIO, err)
	}
	defer rows.Close()

	for rows.Next() {
		var year, month int
		var vals [6]sql.NullFloat64
		if err := rows.Scan(&year, &month, &vals[0], &vals[1], &vals[2], &vals[3], &vals[4], &vals[5]); err != nil {
			return fmt.Errorf("%w: failed to scan system averages: %w", model.ErrData, err)
		}
		idx := period.MonthIndex(time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC))
		for i, col := range averageColumns {
			plain, adjusted := vals[i], vals[i+3]
			if !plain.Valid || !adjusted.Valid {
				continue
			}
			t.SystemAverages[AverageKey{Month: idx, DayType: col[0]}] = Average{SA: plain.Float64, CASA: adjusted.Float64}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: failed to read system averages: %w", model.ErrIO, err)
	}
	return nil
}

// LoadRouteGroups reads the route table and resolves each route's group label
// through the route_groups reference list.
func (t *Tables) LoadRouteGroups(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `SELECT CAST(routenum AS TEXT) AS seg, rte_group FROM routes`)
	if err != nil {
		return fmt.Errorf("%w: failed to query routes: %w", model.ErrIO, err)
	}
	defer rows.Close()

	for rows.Next() {
		var seg, group sql.NullString
		if err := rows.Scan(&seg, &group); err != nil {
			return fmt.Errorf("%w: failed to scan routes: %w", model.ErrData, err)
		}
		label, ok := t.RouteLabels[utils.CanonicalKey(group.String)]
		if !seg.Valid || !ok {
			continue
		}
		t.RouteGroups[utils.CanonicalKey(seg.String)] = label
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: failed to read routes: %w", model.ErrIO, err)
	}
	return nil
}

// Average returns the system average for a month index and day type.
func (t *Tables) Average(month int, dayType string) (Average, bool) {
	a, ok := t.SystemAverages[AverageKey{Month: month, DayType: dayType}]
	return a, ok
}

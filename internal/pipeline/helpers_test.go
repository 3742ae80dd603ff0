package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"roundtable-report/internal/config"
	"roundtable-report/internal/model"
	"roundtable-report/internal/period"
	"roundtable-report/internal/refdata"
)

// testPeriod reports on January 2024.
var testPeriod = period.New(time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC))

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func loadReport(t *testing.T, body string) *config.Report {
	t.Helper()
	p, invalid, err := config.ParseParams([]byte(body))
	require.NoError(t, err)
	require.Empty(t, invalid)
	require.Len(t, p.IDs(), 1)
	r, _ := p.Get(p.IDs()[0])
	return r
}

func row(mode string, date time.Time, rides float64, fields ...string) model.Row {
	r := model.Row{Type: mode, ServiceDate: date, Rides: rides, Fields: make(map[string]string)}
	for i := 0; i+1 < len(fields); i += 2 {
		switch fields[i] {
		case model.ColDayType:
			r.DayType = fields[i+1]
		default:
			r.Fields[fields[i]] = fields[i+1]
		}
	}
	return r
}

func testTables() *refdata.Tables {
	return &refdata.Tables{
		FareGroups:    map[string]string{"FULL": "Full Fare", "RED": "Reduced"},
		FareBins:      map[string]string{"FULL": "Full"},
		StudentGroups: map[string]string{"12": "Student"},
		VentraGroups:  map[string]string{"30-Day Pass": "Pass"},
		RouteGroups:   map[string]string{"4": "Local", "146": "Express"},
		HourBins:      map[string]string{"7": "AM Peak", "12": "Midday"},
		SystemAverages: map[refdata.AverageKey]refdata.Average{
			{Month: period.MonthIndex(day(2024, time.January, 1)), DayType: "W"}: {SA: 10, CASA: 12},
		},
	}
}

func findRow(rows []model.ResultRow, mode, index string, date time.Time, layout model.Layout) (model.ResultRow, bool) {
	for _, r := range rows {
		if r.Mode == mode && r.Dims[layout.IndexPos()] == index && r.Date.Equal(date) {
			return r, true
		}
	}
	return model.ResultRow{}, false
}

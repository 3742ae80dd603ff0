package pipeline

import (
	"roundtable-report/internal/config"
	"roundtable-report/internal/model"
	"roundtable-report/internal/period"
	"roundtable-report/internal/refdata"
	"roundtable-report/pkg/utils"
)

// dimSource says where a grouping column's value comes from: an enrichment
// step or a raw row field.
type dimSource struct {
	step  config.Enrichment
	field string
	enrch bool
}

// Normalizer turns raw chunks into partial aggregates: system-average
// adjustment, enrichment joins, then group-and-sum by the grouping key.
type Normalizer struct {
	adj     config.Adjustment
	steps   []config.Enrichment
	sources []dimSource
	ref     *refdata.Tables
	dropped map[string]int64
	rows    int64

	derived map[config.Enrichment]string
	dims    []string
}

// NewNormalizer prepares the enrichment steps of a report.
func NewNormalizer(r *config.Report, ref *refdata.Tables) *Normalizer {
	layout := r.Layout()
	steps := r.Enrichments()

	cols := layout.Columns()
	sources := make([]dimSource, len(cols))
	for i, col := range cols {
		sources[i] = dimSource{field: col}
		for _, step := range steps {
			if step.Column() == col {
				sources[i] = dimSource{step: step, enrch: true}
			}
		}
	}

	return &Normalizer{
		adj:     r.SAAdj,
		steps:   steps,
		sources: sources,
		ref:     ref,
		dropped: make(map[string]int64),
		derived: make(map[config.Enrichment]string, len(steps)),
		dims:    make([]string, len(cols)),
	}
}

// Normalize aggregates one chunk. Rows failing a join or carrying an empty
// grouping value are dropped and counted by reason.
func (n *Normalizer) Normalize(chunk []model.Row) *Aggregate {
	agg := NewAggregate(len(n.sources))
	for i := range chunk {
		row := &chunk[i]
		n.rows++

		if row.Type == "" || row.ServiceDate.IsZero() {
			n.dropped[model.DropEmptyKey]++
			continue
		}
		rides, reason := n.adjust(row)
		if reason != "" {
			n.dropped[reason]++
			continue
		}
		if reason = n.enrich(row); reason != "" {
			n.dropped[reason]++
			continue
		}
		if reason = n.fill(row); reason != "" {
			n.dropped[reason]++
			continue
		}
		agg.Add(row.Type, n.dims, row.ServiceDate, rides)
	}
	return agg
}

// adjust applies the system-average adjustment and the scaling divisor.
func (n *Normalizer) adjust(row *model.Row) (float64, string) {
	rides := row.Rides
	if n.adj.Enabled() {
		avg, ok := n.ref.Average(period.MonthIndex(row.ServiceDate), row.DayType)
		if !ok || avg.SA == 0 {
			return 0, model.DropSystemAverage
		}
		switch n.adj.Mode {
		case config.AdjustSA:
			rides = rides / avg.SA
		case config.AdjustCASA:
			rides = rides / avg.SA * avg.CASA
		}
	}
	return rides / n.adj.Scale(), ""
}

func (n *Normalizer) enrich(row *model.Row) string {
	for _, step := range n.steps {
		var val string
		var ok bool
		switch step {
		case config.EnrichFareGroup:
			val, ok = n.ref.FareGroups[utils.CanonicalKey(row.Field(model.ColFinanceCode))]
			if !ok {
				return model.DropFareGroup
			}
		case config.EnrichFareBin:
			val, ok = n.ref.FareBins[utils.CanonicalKey(row.Field(model.ColFinanceCode))]
			if !ok {
				val = refdata.OtherRides
			}
		case config.EnrichStudentGroup:
			val, ok = n.ref.StudentGroups[utils.CanonicalKey(row.Field(model.ColMedia))]
			if !ok {
				return model.DropStudentGroup
			}
		case config.EnrichVentraGroup:
			val, ok = n.ref.VentraGroups[utils.CanonicalKey(row.Field(model.ColFareProdName))]
			if !ok {
				return model.DropVentraGroup
			}
		case config.EnrichRouteGroup:
			seg := utils.CanonicalKey(row.Field(model.ColSeg))
			val = seg
			if row.Type == model.BusMode {
				if val, ok = n.ref.RouteGroups[seg]; !ok {
					return model.DropRouteGroup
				}
			}
		case config.EnrichTimeBin:
			val, ok = n.ref.HourBins[utils.CanonicalKey(row.Field(model.ColHour))]
			if !ok {
				return model.DropTimeBin
			}
		}
		n.derived[step] = val
	}
	return ""
}

// fill writes the grouping values of row into the dims buffer.
func (n *Normalizer) fill(row *model.Row) string {
	for i, src := range n.sources {
		var val string
		if src.enrch {
			val = n.derived[src.step]
		} else {
			val = row.Field(src.field)
		}
		if val == "" {
			return model.DropEmptyKey
		}
		n.dims[i] = val
	}
	return ""
}

// Dropped returns the rows dropped so far, by reason.
func (n *Normalizer) Dropped() map[string]int64 {
	return n.dropped
}

// RowsSeen returns the rows normalized so far, kept or dropped.
func (n *Normalizer) RowsSeen() int64 {
	return n.rows
}

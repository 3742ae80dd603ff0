package pipeline

import (
	"roundtable-report/internal/model"
	"roundtable-report/internal/period"
)

// Reconcile merges the partial aggregates of every chunk so each grouping key
// is summed exactly once. With a system layout, bus and rail are additionally
// re-aggregated without the mode as the "system" pseudo-mode. Layouts not
// pivoting by month keep only the current and year-ago months.
func Reconcile(partials []*Aggregate, layout model.Layout, p period.Period) []model.Record {
	merged := NewAggregate(layout.Width())
	for _, partial := range partials {
		merged.Merge(partial)
	}

	if layout.System {
		system := NewAggregate(layout.Width())
		for _, rec := range merged.Records() {
			if rec.Mode == model.SystemMode {
				continue
			}
			system.Add(model.SystemMode, rec.Dims, rec.Date, rec.Rides)
		}
		merged.Merge(system)
	}

	records := merged.Sorted()
	if layout.ByMonth() {
		return records
	}
	kept := records[:0]
	for _, rec := range records {
		if p.IsComparisonMonth(rec.Date) {
			kept = append(kept, rec)
		}
	}
	return kept
}

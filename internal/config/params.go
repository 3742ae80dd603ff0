package config

import (
	"fmt"
	"os"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"roundtable-report/internal/model"
)

// Report holds the parameters of one report id. Fields mirror the params file keys.
type Report struct {
	ID         string         `yaml:"-"`
	Datafile   string         `yaml:"datafile" validate:"required"`
	SplitCol   []string       `yaml:"split_col" validate:"dive,required"`
	IdxCol     string         `yaml:"idx_col" validate:"required"`
	PivotCol   string         `yaml:"pivot_col" validate:"required"`
	CatCol     CategoryColumn `yaml:"cat_col"`
	SAAdj      Adjustment     `yaml:"sa_adj"`
	VisTitle   Titles         `yaml:"vis_title" validate:"min=1,dive"`
	ReorderCol ColumnOrder    `yaml:"reorder_col"`
	FocusTbl   OptionalInt    `yaml:"focus_tbl" validate:"gte=0"`
	Outfile    string         `yaml:"outfile" validate:"required"`

	layout      model.Layout
	enrichments []Enrichment
}

// Params is the ordered set of report configurations from one params file.
type Params struct {
	order   []string
	reports map[string]*Report
}

var validate = validator.New()

// LoadParams reads and validates a params file. YAML and JSON are both accepted.
// A report id with invalid parameters is reported in the returned error map and
// left out of Params; the other report ids remain usable.
func LoadParams(path string) (*Params, map[string]error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read params file: %w", model.ErrIO, err)
	}
	return ParseParams(data)
}

// ParseParams decodes a params document; see LoadParams.
func ParseParams(data []byte) (*Params, map[string]error, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: failed to parse params: %w", model.ErrConfig, err)
	}
	if len(doc.Content) == 0 {
		return nil, nil, fmt.Errorf("%w: params file is empty", model.ErrConfig)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("%w: params root must be a mapping of report ids", model.ErrConfig)
	}

	p := &Params{reports: make(map[string]*Report)}
	invalid := make(map[string]error)
	for i := 0; i+1 < len(root.Content); i += 2 {
		id := root.Content[i].Value
		var r Report
		if err := root.Content[i+1].Decode(&r); err != nil {
			invalid[id] = fmt.Errorf("%w: report %s: %w", model.ErrConfig, id, err)
			continue
		}
		r.ID = id
		if err := r.resolve(); err != nil {
			invalid[id] = err
			continue
		}
		p.order = append(p.order, id)
		p.reports[id] = &r
	}
	return p, invalid, nil
}

// IDs returns the valid report ids in file order.
func (p *Params) IDs() []string {
	return slices.Clone(p.order)
}

// Get returns the report with the given id.
func (p *Params) Get(id string) (*Report, bool) {
	r, ok := p.reports[id]
	return r, ok
}

// Datafiles returns the distinct extracts the given reports read, in first-use order.
func (p *Params) Datafiles(ids []string) []string {
	var files []string
	for _, id := range ids {
		r, ok := p.reports[id]
		if !ok || slices.Contains(files, r.Datafile) {
			continue
		}
		files = append(files, r.Datafile)
	}
	return files
}

// resolve validates the report and derives its grouping layout and enrichment steps.
func (r *Report) resolve() error {
	if r.SAAdj.Mode == "" {
		r.SAAdj.Mode = AdjustNone
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: report %s: %w", model.ErrConfig, r.ID, err)
	}

	layout := model.Layout{Index: r.IdxCol}
	for _, col := range r.SplitCol {
		if col == model.SystemSplit {
			layout.System = true
			continue
		}
		layout.Split = append(layout.Split, col)
	}
	if r.PivotCol != model.PivotMonth {
		layout.Pivot = r.PivotCol
	}

	cols := layout.Columns()
	seen := make(map[string]bool, len(cols))
	for _, col := range cols {
		switch col {
		case model.ColType, model.ColServiceDate, model.ColRides, model.SystemSplit:
			return fmt.Errorf("%w: report %s: %q cannot be a grouping column", model.ErrConfig, r.ID, col)
		}
		if seen[col] {
			return fmt.Errorf("%w: report %s: grouping column %q used twice", model.ErrConfig, r.ID, col)
		}
		seen[col] = true
	}

	metrics := r.Metrics()
	for _, m := range metrics {
		if !m.Valid() {
			return fmt.Errorf("%w: report %s: unknown metric %q in vis_title", model.ErrConfig, r.ID, m)
		}
	}
	if slices.Contains(metrics, model.MetricPctOfTotal) && len(metrics) > 1 {
		return fmt.Errorf("%w: report %s: pct_of_total cannot be combined with other metrics", model.ErrConfig, r.ID)
	}

	r.layout = layout
	r.enrichments = resolveEnrichments(cols)
	return nil
}

// Layout returns the resolved grouping layout.
func (r *Report) Layout() model.Layout {
	return r.layout
}

// Enrichments returns the enrichment steps the grouping columns require, in application order.
func (r *Report) Enrichments() []Enrichment {
	return r.enrichments
}

// Metrics returns the requested metrics in configuration order.
func (r *Report) Metrics() []model.Metric {
	metrics := make([]model.Metric, len(r.VisTitle))
	for i, t := range r.VisTitle {
		metrics[i] = t.Metric
	}
	return metrics
}

// ShareMode reports whether the report computes percent-of-total shares
// instead of year-over-year deltas.
func (r *Report) ShareMode() bool {
	return slices.Contains(r.Metrics(), model.MetricPctOfTotal)
}

// Title returns the display title of a metric.
func (r *Report) Title(m model.Metric) string {
	for _, t := range r.VisTitle {
		if t.Metric == m {
			return t.Text
		}
	}
	return string(m)
}

// IndexName returns the display name of the index column.
func (r *Report) IndexName() string {
	if r.CatCol.Name == "" {
		return r.IdxCol
	}
	return r.CatCol.Name
}

// CategoryOrder returns the explicit row order for a table, or nil. A single
// configured order applies to every table; otherwise the order is looked up by
// mode, then by split key.
func (r *Report) CategoryOrder(mode, splitKey string) []string {
	orders := r.CatCol.Orders
	switch {
	case len(orders) == 0:
		return nil
	case len(orders) == 1:
		return orders[0].Categories
	}
	for _, label := range []string{mode, splitKey} {
		for _, o := range orders {
			if o.Label == label {
				return o.Categories
			}
		}
	}
	return nil
}

// ColumnOrder returns the explicit column order for a mode.
func (r *Report) ColumnOrder(mode string) ([]string, bool) {
	cols, ok := r.ReorderCol[mode]
	return cols, ok
}

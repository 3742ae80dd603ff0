package config

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"roundtable-report/internal/model"
)

// Enrichment is a derived-column step applied to every chunk before grouping.
type Enrichment int

const (
	EnrichFareGroup    Enrichment = iota // fm_grp, inner join on finance_code
	EnrichFareBin                        // fm_grp_bin, left join on finance_code
	EnrichStudentGroup                   // s_fm_grp, inner join on media
	EnrichVentraGroup                    // v_fm_grp, inner join on fare_prod_name
	EnrichRouteGroup                     // seg, bus segments replaced by route group
	EnrichTimeBin                        // time_bin, hour mapped to a named bin
)

var enrichmentColumns = []string{
	EnrichFareGroup:    "fm_grp",
	EnrichFareBin:      "fm_grp_bin",
	EnrichStudentGroup: "s_fm_grp",
	EnrichVentraGroup:  "v_fm_grp",
	EnrichRouteGroup:   model.ColSeg,
	EnrichTimeBin:      "time_bin",
}

// Column returns the grouping column the step produces.
func (e Enrichment) Column() string {
	return enrichmentColumns[e]
}

func (e Enrichment) String() string {
	return e.Column()
}

func resolveEnrichments(cols []string) []Enrichment {
	var steps []Enrichment
	for e, col := range enrichmentColumns {
		for _, c := range cols {
			if c == col {
				steps = append(steps, Enrichment(e))
				break
			}
		}
	}
	return steps
}

// AdjustMode selects the system-average adjustment.
type AdjustMode string

const (
	AdjustNone AdjustMode = "none"
	AdjustSA   AdjustMode = "sa"
	AdjustCASA AdjustMode = "casa"
)

// Adjustment is the sa_adj pair [mode, divisor].
type Adjustment struct {
	Mode    AdjustMode `validate:"oneof=none sa casa"`
	Divisor float64    `validate:"gte=0"`
}

// Enabled reports whether rows are joined to the system averages.
func (a Adjustment) Enabled() bool {
	return a.Mode == AdjustSA || a.Mode == AdjustCASA
}

// Scale returns the divisor applied to every row; unset means 1.
func (a Adjustment) Scale() float64 {
	if a.Divisor == 0 {
		return 1
	}
	return a.Divisor
}

func (a *Adjustment) UnmarshalYAML(n *yaml.Node) error {
	a.Mode = AdjustNone
	if falsy(n) {
		return nil
	}
	if n.Kind != yaml.SequenceNode || len(n.Content) == 0 || len(n.Content) > 2 {
		return fmt.Errorf("line %d: sa_adj must be [mode, divisor]", n.Line)
	}
	if m := n.Content[0]; !falsy(m) {
		a.Mode = AdjustMode(m.Value)
	}
	if len(n.Content) == 2 && !falsy(n.Content[1]) {
		d, err := strconv.ParseFloat(n.Content[1].Value, 64)
		if err != nil {
			return fmt.Errorf("line %d: sa_adj divisor %q is not a number", n.Line, n.Content[1].Value)
		}
		a.Divisor = d
	}
	return nil
}

// CategoryOrder is an explicit row order applied to tables matching Label.
type CategoryOrder struct {
	Label      string
	Categories []string
}

// CategoryColumn is the cat_col pair [display name, order].
type CategoryColumn struct {
	Name   string
	Orders []CategoryOrder
}

func (c *CategoryColumn) UnmarshalYAML(n *yaml.Node) error {
	if falsy(n) {
		return nil
	}
	if n.Kind == yaml.ScalarNode {
		c.Name = n.Value
		return nil
	}
	if n.Kind != yaml.SequenceNode || len(n.Content) == 0 || len(n.Content) > 2 {
		return fmt.Errorf("line %d: cat_col must be [name, order]", n.Line)
	}
	c.Name = n.Content[0].Value
	if len(n.Content) == 1 || falsy(n.Content[1]) {
		return nil
	}

	order := n.Content[1]
	switch order.Kind {
	case yaml.SequenceNode:
		var cats []string
		if err := order.Decode(&cats); err != nil {
			return err
		}
		c.Orders = []CategoryOrder{{Categories: cats}}
	case yaml.MappingNode:
		for i := 0; i+1 < len(order.Content); i += 2 {
			var cats []string
			if err := order.Content[i+1].Decode(&cats); err != nil {
				return err
			}
			c.Orders = append(c.Orders, CategoryOrder{Label: order.Content[i].Value, Categories: cats})
		}
	default:
		return fmt.Errorf("line %d: cat_col order must be a list or a mapping", order.Line)
	}
	return nil
}

// Title pairs a metric with its display title.
type Title struct {
	Metric model.Metric `validate:"required"`
	Text   string
}

// Titles is the vis_title mapping in file order.
type Titles []Title

func (t *Titles) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: vis_title must be a mapping of metric to title", n.Line)
	}
	*t = (*t)[:0]
	for i := 0; i+1 < len(n.Content); i += 2 {
		*t = append(*t, Title{
			Metric: model.Metric(n.Content[i].Value),
			Text:   n.Content[i+1].Value,
		})
	}
	return nil
}

// ColumnOrder is the reorder_col mapping of mode to column list.
type ColumnOrder map[string][]string

func (c *ColumnOrder) UnmarshalYAML(n *yaml.Node) error {
	if falsy(n) {
		*c = nil
		return nil
	}
	var m map[string][]string
	if err := n.Decode(&m); err != nil {
		return err
	}
	*c = m
	return nil
}

// OptionalInt decodes null and false as zero.
type OptionalInt int

func (o *OptionalInt) UnmarshalYAML(n *yaml.Node) error {
	if falsy(n) {
		*o = 0
		return nil
	}
	v, err := strconv.Atoi(n.Value)
	if n.Kind != yaml.ScalarNode || err != nil {
		return fmt.Errorf("line %d: expected an integer, got %q", n.Line, n.Value)
	}
	*o = OptionalInt(v)
	return nil
}

func falsy(n *yaml.Node) bool {
	if n == nil || n.Kind == 0 {
		return true
	}
	if n.Kind != yaml.ScalarNode {
		return false
	}
	switch n.Tag {
	case "!!null":
		return true
	case "!!bool":
		return n.Value == "false" || n.Value == "False" || n.Value == "FALSE"
	}
	return n.Value == ""
}

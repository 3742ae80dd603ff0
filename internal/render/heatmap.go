package render

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"roundtable-report/internal/config"
	"roundtable-report/internal/model"
	"roundtable-report/pkg/utils"
)

const paletteSize = 64

var totalColor = color.RGBA{R: 0xe6, G: 0xe6, B: 0xe6, A: 0xff}

// HeatmapSink renders one annotated heatmap PNG per pivot table.
type HeatmapSink struct{}

func (HeatmapSink) Name() string { return "png" }

// Write renders every non-empty table into dir.
func (HeatmapSink) Write(ctx context.Context, dir string, r *config.Report, tables []model.PivotTable) ([]model.ExportResult, error) {
	var results []model.ExportResult
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if t.Empty() {
			continue
		}
		path := filepath.Join(dir, FileName(t))
		res := model.ExportResult{Type: "png", Path: path, RecordCount: len(t.Rows), Timestamp: time.Now()}
		if err := Heatmap(t, Title(t, r.Title(t.Metric)), path); err != nil {
			res.Error = err.Error()
			results = append(results, res)
			return results, fmt.Errorf("%w: %s: %w", model.ErrIO, t.Label(), err)
		}
		res.Success = true
		results = append(results, res)
	}
	return results, nil
}

// Title renders "<Mode> - [<split> - ]<title>", with " (-<focus>M)" for focus tables.
func Title(t model.PivotTable, title string) string {
	parts := []string{capitalize(t.Mode)}
	if t.SplitKey != "" {
		parts = append(parts, t.SplitKey)
	}
	s := strings.Join(append(parts, title), " - ")
	if t.Focus > 0 {
		s += fmt.Sprintf(" (-%dM)", t.Focus)
	}
	return s
}

// FileName is the image name of a table: mode, split and metric, each with
// hyphens, spaces and slashes removed, joined by hyphens.
func FileName(t model.PivotTable) string {
	metric := string(t.Metric)
	if t.Focus > 0 {
		metric = fmt.Sprintf("%s%d", metric, t.Focus)
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{t.Mode, t.SplitKey, metric} {
		if p != "" {
			parts = append(parts, utils.SanitizeFileName(p))
		}
	}
	return strings.Join(parts, "-") + ".png"
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// CellText formats a cell annotation; NaN cells are left blank.
func CellText(v float64, metric model.Metric) string {
	if math.IsNaN(v) {
		return ""
	}
	s := fmt.Sprintf("%.1f", v)
	if metric.IsPercent() {
		s += " %"
	}
	return s
}

// grid exposes a set of table rows as a plotter.GridXYZ. Row i of the grid is
// drawn at y[i].
type grid struct {
	t    model.PivotTable
	rows []int
	y    []float64
}

func (g grid) Dims() (c, r int)   { return len(g.t.Cols), len(g.rows) }
func (g grid) Z(c, r int) float64 { return g.t.At(g.rows[r], c) }
func (g grid) X(c int) float64    { return float64(c) }
func (g grid) Y(r int) float64    { return g.y[r] }

// flat is a single-colour palette.
type flat []color.Color

func (f flat) Colors() []color.Color { return f }

// Heatmap draws t with the body rows on a diverging palette and the Total row
// in grey, every cell annotated, and saves it to path.
func Heatmap(t model.PivotTable, title, path string) error {
	n := len(t.Rows)
	total := t.TotalRow()

	// the first table row is drawn on top
	body := grid{t: t}
	for i := n - 1; i >= 0; i-- {
		if i == total {
			continue
		}
		body.rows = append(body.rows, i)
		body.y = append(body.y, float64(n-1-i))
	}

	p := plot.New()
	p.Title.Text = title

	if len(body.rows) > 0 {
		cm := moreland.SmoothBlueRed()
		cm.SetMin(0)
		cm.SetMax(1)
		pal := cm.Palette(paletteSize)
		hm := plotter.NewHeatMap(body, pal)
		hm.Min, hm.Max = bounds(body, t.Metric)
		colors := pal.Colors()
		hm.Underflow, hm.Overflow = colors[0], colors[len(colors)-1]
		hm.NaN = color.Transparent
		p.Add(hm)
	}
	if total >= 0 {
		tg := grid{t: t, rows: []int{total}, y: []float64{float64(n - 1 - total)}}
		hm := plotter.NewHeatMap(tg, flat{totalColor})
		hm.Min, hm.Max = 0, 1
		hm.Underflow, hm.Overflow = totalColor, totalColor
		hm.NaN = color.Transparent
		p.Add(hm)
	}

	var pts plotter.XYs
	var texts []string
	for i := range t.Rows {
		for j := range t.Cols {
			s := CellText(t.At(i, j), t.Metric)
			if s == "" {
				continue
			}
			pts = append(pts, plotter.XY{X: float64(j), Y: float64(n - 1 - i)})
			texts = append(texts, s)
		}
	}
	if len(pts) > 0 {
		labels, err := plotter.NewLabels(plotter.XYLabels{XYs: pts, Labels: texts})
		if err != nil {
			return err
		}
		for i := range labels.TextStyle {
			labels.TextStyle[i].XAlign = draw.XCenter
			labels.TextStyle[i].YAlign = draw.YCenter
		}
		p.Add(labels)
	}

	xticks := make([]plot.Tick, len(t.Cols))
	for j, col := range t.Cols {
		xticks[j] = plot.Tick{Value: float64(j), Label: col}
	}
	yticks := make([]plot.Tick, n)
	for i, row := range t.Rows {
		yticks[i] = plot.Tick{Value: float64(n - 1 - i), Label: row}
	}
	p.X.Tick.Marker = plot.ConstantTicks(xticks)
	p.Y.Tick.Marker = plot.ConstantTicks(yticks)
	p.X.Min, p.X.Max = -0.5, float64(len(t.Cols))-0.5
	p.Y.Min, p.Y.Max = -0.5, float64(n)-0.5
	p.X.Label.Text = t.ColName
	p.Y.Label.Text = t.RowName

	width := vg.Length(math.Max(6, 1.1*float64(len(t.Cols))+2)) * vg.Inch
	height := vg.Length(math.Max(4, 0.45*float64(n)+1.5)) * vg.Inch
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("save heatmap: %w", err)
	}
	return nil
}

// bounds returns the colour range of the finite body cells. Change metrics are
// centred on zero.
func bounds(g grid, metric model.Metric) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	c, r := g.Dims()
	for i := 0; i < c; i++ {
		for j := 0; j < r; j++ {
			v := g.Z(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		return 0, 1
	}
	if metric == model.MetricPctDiff || metric == model.MetricDiff {
		m := math.Max(math.Abs(lo), math.Abs(hi))
		lo, hi = -m, m
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

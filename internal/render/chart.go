package render

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// ChartHTML renders an interactive scatter of cell centres, one series per
// class, and writes the page to w.
func ChartHTML(w io.Writer, s Scene) error {
	if err := s.planar(); err != nil {
		return err
	}

	series := map[Class][]opts.ScatterData{}
	for id := 0; id < s.Grid.NumCells(); id++ {
		cell, err := s.Grid.CellBounds(id)
		if err != nil {
			return err
		}
		c := cell.Centre()
		class := s.ClassOf(id)
		series[class] = append(series[class], opts.ScatterData{
			Name:  fmt.Sprintf("cell %d", id),
			Value: []interface{}{c[0], c[1]},
		})
	}

	pad := s.Grid.SafeDist * 1.05

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: s.Title, Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: s.Title, Subtitle: fmt.Sprintf("cells=%d invariant=%d", s.Grid.NumCells(), len(series[Invariant]))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: s.label(0), NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: s.label(1), NameLocation: "middle", NameGap: 30}),
	)
	for _, class := range []Class{Outside, StartOnly, Invariant} {
		scatter.AddSeries(class.String(), series[class],
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(classColors[class])}),
		)
	}

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

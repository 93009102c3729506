package render

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/mkverify/internal/grid"
)

// PlotPNG draws every cell of a planar grid filled by class, with the
// initial region outlined on top, and saves it to path.
func PlotPNG(path string, s Scene) error {
	if err := s.planar(); err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = s.Title
	p.X.Label.Text = s.label(0)
	p.Y.Label.Text = s.label(1)
	p.X.Min, p.X.Max = -s.Grid.SafeDist, s.Grid.SafeDist
	p.Y.Min, p.Y.Max = -s.Grid.SafeDist, s.Grid.SafeDist

	legend := map[Class]*plotter.Polygon{}
	for id := 0; id < s.Grid.NumCells(); id++ {
		cell, err := s.Grid.CellBounds(id)
		if err != nil {
			return err
		}
		poly, err := plotter.NewPolygon(outline(cell))
		if err != nil {
			return fmt.Errorf("cell %d polygon: %w", id, err)
		}
		class := s.ClassOf(id)
		poly.Color = classColors[class]
		poly.LineStyle.Color = color.White
		poly.LineStyle.Width = vg.Points(0.25)
		p.Add(poly)
		if _, ok := legend[class]; !ok {
			legend[class] = poly
		}
	}
	for _, class := range []Class{Invariant, StartOnly, Outside} {
		if poly, ok := legend[class]; ok {
			p.Legend.Add(class.String(), poly)
		}
	}

	if len(s.Initial) == 2 {
		line, err := plotter.NewLine(outline(s.Initial))
		if err != nil {
			return fmt.Errorf("initial region outline: %w", err)
		}
		line.Color = color.Black
		line.Width = vg.Points(1.5)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
		p.Legend.Add("initial region", line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}

// outline returns the closed corner path of a planar box.
func outline(b grid.Box) plotter.XYs {
	x, y := b[0], b[1]
	return plotter.XYs{
		{X: x.Lo, Y: y.Lo},
		{X: x.Hi, Y: y.Lo},
		{X: x.Hi, Y: y.Hi},
		{X: x.Lo, Y: y.Hi},
		{X: x.Lo, Y: y.Lo},
	}
}

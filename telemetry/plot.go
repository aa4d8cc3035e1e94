package telemetry

import (
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var axisColors = []color.RGBA{
	{R: 200, A: 255},
	{G: 150, A: 255},
	{B: 200, A: 255},
}

// PlotTrajectory saves a chart of the actual and waypoint translation of every tick. The file type
// follows the extension of path.
func PlotTrajectory(rows []TickRow, path string) error {
	if len(rows) == 0 {
		return errors.New("no ticks to plot")
	}
	p := plot.New()
	p.Title.Text = "Cartesian trajectory"
	p.X.Label.Text = "tick"
	p.Y.Label.Text = "mm"
	p.Add(plotter.NewGrid())

	names := []string{"x", "y", "z"}
	for axis, name := range names {
		actual := make(plotter.XYs, 0, len(rows))
		waypoint := make(plotter.XYs, 0, len(rows))
		for _, r := range rows {
			a := []float64{r.Actual.X, r.Actual.Y, r.Actual.Z}
			w := []float64{r.Waypoint.X, r.Waypoint.Y, r.Waypoint.Z}
			actual = append(actual, plotter.XY{X: float64(r.Tick), Y: a[axis]})
			waypoint = append(waypoint, plotter.XY{X: float64(r.Tick), Y: w[axis]})
		}

		actualLine, err := plotter.NewLine(actual)
		if err != nil {
			return err
		}
		actualLine.Color = axisColors[axis]
		actualLine.Width = vg.Points(1)

		waypointLine, err := plotter.NewLine(waypoint)
		if err != nil {
			return err
		}
		waypointLine.Color = axisColors[axis]
		waypointLine.Width = vg.Points(1)
		waypointLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

		p.Add(actualLine, waypointLine)
		p.Legend.Add("actual "+name, actualLine)
		p.Legend.Add("waypoint "+name, waypointLine)
	}

	return p.Save(10*vg.Inch, 6*vg.Inch, path)
}

package report

import (
	"bytes"
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// maxPlotPoints bounds the points drawn per line; longer series are strided.
const maxPlotPoints = 4000

// Trace is one named line on a time-series plot.
type Trace struct {
	Name   string
	Values []float64
}

// Band draws dashed tolerance lines at Target +- Bound.
type Band struct {
	Target float64
	Bound  float64
	Label  string
}

var plotColors = []color.Color{
	color.RGBA{B: 255, A: 255},               // Blue
	color.RGBA{R: 255, G: 165, B: 0, A: 255}, // Orange
	color.RGBA{G: 160, A: 255},               // Green
	color.RGBA{R: 128, G: 0, B: 128, A: 255}, // Purple
	color.RGBA{G: 128, B: 128, A: 255},       // Teal
}

var tolColor = color.RGBA{R: 255, A: 255}

// decimate strides a series down to at most maxPlotPoints, skipping NaNs.
func decimate(t, y []float64) plotter.XYs {
	n := len(y)
	if len(t) < n {
		n = len(t)
	}
	stride := 1
	if n > maxPlotPoints {
		stride = (n + maxPlotPoints - 1) / maxPlotPoints
	}
	pts := make(plotter.XYs, 0, n/stride+1)
	for i := 0; i < n; i += stride {
		if math.IsNaN(y[i]) || math.IsInf(y[i], 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: t[i], Y: y[i]})
	}
	return pts
}

func dashedLine(x0, x1, y float64, c color.Color, dash float64) (*plotter.Line, error) {
	l, err := plotter.NewLine(plotter.XYs{{X: x0, Y: y}, {X: x1, Y: y}})
	if err != nil {
		return nil, err
	}
	l.Color = c
	l.LineStyle.Dashes = []vg.Length{vg.Points(dash), vg.Points(dash)}
	return l, nil
}

// CreateTimeSeriesPlot draws one or more traces against the time axis t (s).
// settleAt, when finite, is marked with a vertical line.
func CreateTimeSeriesPlot(title, yLabel string, t []float64, traces []Trace, band *Band, settleAt float64) ([]byte, error) {
	if len(t) == 0 || len(traces) == 0 {
		return nil, fmt.Errorf("no samples to plot for %s", title)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = yLabel
	p.X.Min = t[0]
	p.X.Max = t[len(t)-1]
	p.Add(plotter.NewGrid())

	linesPlotted := false
	for i, tr := range traces {
		pts := decimate(t, tr.Values)
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create line for %s: %v", tr.Name, err)
		}
		line.Color = plotColors[i%len(plotColors)]
		line.LineStyle.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(tr.Name, line)
		linesPlotted = true
	}
	if !linesPlotted {
		return nil, fmt.Errorf("every sample of %s is NaN", title)
	}

	if band != nil {
		bound := math.Abs(band.Bound)
		var l *plotter.Line
		for _, y := range []float64{band.Target + bound, band.Target - bound} {
			var err error
			if l, err = dashedLine(p.X.Min, p.X.Max, y, tolColor, 5); err != nil {
				return nil, err
			}
			p.Add(l)
		}
		p.Legend.Add(band.Label, l)
	}

	if !math.IsInf(settleAt, 0) && !math.IsNaN(settleAt) {
		marker, err := plotter.NewLine(plotter.XYs{{X: settleAt, Y: p.Y.Min}, {X: settleAt, Y: p.Y.Max}})
		if err != nil {
			return nil, err
		}
		marker.Color = color.Gray{Y: 96}
		marker.LineStyle.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
		p.Add(marker)
		p.Legend.Add(fmt.Sprintf("settled at %.4f s", settleAt), marker)
	}

	p.Legend.Top = true
	p.Legend.XOffs = vg.Points(-10)

	return renderPNG(p, 800, 360)
}

func renderPNG(p *plot.Plot, w, h float64) ([]byte, error) {
	writer, err := p.WriterTo(vg.Points(w), vg.Points(h), "png")
	if err != nil {
		return nil, fmt.Errorf("failed to create plot writer: %v", err)
	}
	buf := new(bytes.Buffer)
	if _, err := writer.WriteTo(buf); err != nil {
		return nil, fmt.Errorf("failed to write plot to buffer: %v", err)
	}
	return buf.Bytes(), nil
}

package report

import (
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/user/pll_qa_go/internal/scenario"
)

// CreateSpectrumPlot overlays the final source and output spectra. Either
// snapshot may be nil.
func CreateSpectrumPlot(title string, src, out *scenario.SpectralSnapshot) ([]byte, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Frequency (Hz)"
	p.Y.Label.Text = "Power (dB)"
	p.Add(plotter.NewGrid())

	drawn := 0
	for i, s := range []struct {
		name string
		snap *scenario.SpectralSnapshot
	}{
		{"source", src},
		{"output", out},
	} {
		if s.snap == nil || len(s.snap.Power) == 0 {
			continue
		}
		pts := make(plotter.XYs, 0, len(s.snap.Power))
		for k, v := range s.snap.Power {
			if k >= len(s.snap.Bins) || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			pts = append(pts, plotter.XY{X: s.snap.Bins[k], Y: v})
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s spectrum line: %v", s.name, err)
		}
		line.Color = plotColors[i%len(plotColors)]
		line.LineStyle.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%s (CNR %s)", s.name, formatDB(s.snap.CNR)), line)
		drawn++
	}
	if drawn == 0 {
		return nil, fmt.Errorf("no spectrum to plot for %s", title)
	}
	p.Legend.Top = true
	return renderPNG(p, 800, 360)
}

func formatDB(v float64) string {
	switch {
	case math.IsNaN(v):
		return "n/a"
	case math.IsInf(v, 1):
		return "inf dB"
	}
	return fmt.Sprintf("%.1f dB", v)
}

package report

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"

	"github.com/user/pll_qa_go/internal/analysis"
)

// maxSpectrogramRows caps the frames drawn; earlier frames are dropped.
const maxSpectrogramRows = 256

// spectrogramGrid adapts centred power frames to plotter.GridXYZ.
// Column c is a frequency bin, row r a frame.
type spectrogramGrid struct {
	frames [][]float64
	bins   []float64
	floor  float64
}

func (g spectrogramGrid) Dims() (c, r int) { return len(g.bins), len(g.frames) }
func (g spectrogramGrid) X(c int) float64  { return g.bins[c] }
func (g spectrogramGrid) Y(r int) float64  { return float64(r) }

// Z clamps non-finite power to the floor so the palette never sees NaN.
func (g spectrogramGrid) Z(c, r int) float64 {
	v := g.frames[r][c]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return g.floor
	}
	return v
}

// CreateSpectrogramPlot draws complete frames (FFT order) as a heat map with
// frequency on X and frame number on Y.
func CreateSpectrogramPlot(title string, frames [][]float64, sampleRate float64, fftSize int) ([]byte, error) {
	var rows [][]float64
	for _, f := range frames {
		if len(f) == fftSize {
			rows = append(rows, analysis.CenterFrame(f))
		}
	}
	if len(rows) < 2 || fftSize < 2 {
		return nil, fmt.Errorf("need at least two complete frames for %s", title)
	}
	if len(rows) > maxSpectrogramRows {
		rows = rows[len(rows)-maxSpectrogramRows:]
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range rows {
		for _, v := range r {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		return nil, fmt.Errorf("no finite power values for %s", title)
	}
	if lo == hi {
		hi = lo + 1
	}

	grid := spectrogramGrid{frames: rows, bins: analysis.BinAxis(sampleRate, fftSize), floor: lo}
	hm := plotter.NewHeatMap(grid, palette.Heat(64, 1))
	hm.Min = lo
	hm.Max = hi
	hm.Underflow = color.Black
	hm.Overflow = color.White

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Frequency (Hz)"
	p.Y.Label.Text = "Frame"
	p.Add(hm)

	return renderPNG(p, 800, 400)
}

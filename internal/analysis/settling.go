package analysis

import (
	"math"

	"github.com/user/pll_qa_go/internal/scenario"
)

// DefaultRunLength is the number of consecutive out-of-tolerance samples that
// marks the boundary after which a series counts as settled.
const DefaultRunLength = 5

// NeverSettles is the settling index reported when the final sample is still
// outside tolerance.
const NeverSettles = math.MaxInt

// SettlingResult holds the settling verdict for a real-valued series.
type SettlingResult struct {
	Index     int
	Locked    bool
	PeakError float64
}

// ComplexSettlingResult holds the settling verdict for a complex series. The
// peaks are tracked per component.
type ComplexSettlingResult struct {
	Index    int
	Locked   bool
	PeakReal float64
	PeakImag float64
}

// TimeMs converts the settling index to milliseconds, +Inf when never settled.
func (r SettlingResult) TimeMs(sampleRate float64) float64 {
	return indexToMs(r.Index, r.Locked, sampleRate)
}

// TimeMs converts the settling index to milliseconds, +Inf when never settled.
func (r ComplexSettlingResult) TimeMs(sampleRate float64) float64 {
	return indexToMs(r.Index, r.Locked, sampleRate)
}

func indexToMs(idx int, locked bool, sampleRate float64) float64 {
	if !locked || sampleRate <= 0 {
		return math.Inf(1)
	}
	return float64(idx) / sampleRate * 1000.0
}

func neverSettles() SettlingResult {
	return SettlingResult{Index: NeverSettles, PeakError: math.Inf(1)}
}

// DetectSettling finds the settling index of a real series. If the last
// sample is outside tolerance the series never settled. Otherwise the index
// is the top of the most recent run of k consecutive out-of-tolerance
// samples, or 0 when no such run exists. PeakError is the largest deviation
// over the whole series.
//
// A NaN sample is never within tolerance and has an unbounded deviation.
func DetectSettling(series []float64, tol scenario.RealTolerance, k int) SettlingResult {
	n := len(series)
	bound := math.Abs(tol.Bound)
	outside := func(i int) bool {
		return !(math.Abs(series[i]-tol.Target) <= bound)
	}
	if n == 0 || outside(n-1) {
		return neverSettles()
	}

	peak := 0.0
	for _, v := range series {
		peak = math.Max(peak, deviation(v-tol.Target))
	}
	return SettlingResult{Index: settlingIndex(n, k, outside), Locked: true, PeakError: peak}
}

// deviation is |d|, or +Inf when d is NaN.
func deviation(d float64) float64 {
	if math.IsNaN(d) {
		return math.Inf(1)
	}
	return math.Abs(d)
}

// DetectComplexSettling is DetectSettling for complex series: a sample is
// within tolerance only if both its real and imaginary deviations are.
func DetectComplexSettling(series []complex128, tol scenario.ComplexTolerance, k int) ComplexSettlingResult {
	n := len(series)
	bound := math.Abs(tol.Bound)
	outside := func(i int) bool {
		d := series[i] - tol.Target
		return !(math.Abs(real(d)) <= bound && math.Abs(imag(d)) <= bound)
	}
	if n == 0 || outside(n-1) {
		return ComplexSettlingResult{Index: NeverSettles, PeakReal: math.Inf(1), PeakImag: math.Inf(1)}
	}

	var peakRe, peakIm float64
	for _, v := range series {
		d := v - tol.Target
		peakRe = math.Max(peakRe, deviation(real(d)))
		peakIm = math.Max(peakIm, deviation(imag(d)))
	}
	return ComplexSettlingResult{
		Index:    settlingIndex(n, k, outside),
		Locked:   true,
		PeakReal: peakRe,
		PeakImag: peakIm,
	}
}

// settlingIndex scans backward for the first run of k out-of-tolerance
// samples and returns its highest index. Without such a run the series has
// been settled from the start.
func settlingIndex(n, k int, outside func(i int) bool) int {
	if k < 1 {
		k = 1
	}
	streak := 0
	for j := n - 1; j >= 0; j-- {
		if !outside(j) {
			streak = 0
			continue
		}
		streak++
		if streak == k {
			return j + k - 1
		}
	}
	return 0
}

package analysis

import (
	"math"
	"math/big"
)

// DefaultAveragingWindow is the number of trailing samples excluded from the
// slope average.
const DefaultAveragingWindow = 100

// AccumulatorPrecisionResult describes the finest step and the mean slope of a
// raw phase accumulator capture, in raw units and in radians.
type AccumulatorPrecisionResult struct {
	N      int
	Window int
	Pairs  int // adjacent pairs that contributed to the slope

	MinimumStep uint64
	MeanSlope   *big.Int

	Precision      float64 // one LSB in radians
	MinimumStepRad float64
	MeanSlopeRad   float64
}

// PrecisionOK reports whether the measured finest step is at least one
// theoretical LSB.
func (r AccumulatorPrecisionResult) PrecisionOK() bool {
	return r.MinimumStepRad >= r.Precision
}

// Precision returns the angular weight of one LSB of an n-bit accumulator,
// pi * 2^-(n-1).
func Precision(n int) float64 {
	return math.Ldexp(math.Pi, -(n - 1))
}

// StepToRadians right-aligns a raw step within the 64-bit word and scales it.
func StepToRadians(raw uint64, n int) float64 {
	return float64(raw>>uint(64-n)) * Precision(n)
}

// SlopeToRadians is StepToRadians for a signed value of arbitrary size. The
// shift rounds toward negative infinity.
func SlopeToRadians(raw *big.Int, n int) float64 {
	if raw == nil {
		return 0
	}
	shifted := new(big.Int).Rsh(raw, uint(64-n))
	f, _ := new(big.Float).SetInt(shifted).Float64()
	return f * Precision(n)
}

// absDiff returns |a-b| exactly; the true difference of two int64 always fits
// in a uint64.
func absDiff(a, b int64) uint64 {
	if a >= b {
		return uint64(a) - uint64(b)
	}
	return uint64(b) - uint64(a)
}

// AnalyzeAccumulator measures an n-bit accumulator capture. MinimumStep is the
// smallest |s[i]-s[i-1]| over the whole series. MeanSlope averages the signed
// differences of pairs i with 1 <= i < len-w-1, so the last w+1 samples do
// not contribute. Callers must supply len >= 2 and len >= w+2.
func AnalyzeAccumulator(series []int64, n, w int) AccumulatorPrecisionResult {
	res := AccumulatorPrecisionResult{
		N:         n,
		Window:    w,
		MeanSlope: new(big.Int),
		Precision: Precision(n),
	}

	minStep := uint64(math.MaxUint64)
	sum := new(big.Int)
	a, b := new(big.Int), new(big.Int)
	limit := len(series) - w - 1
	for i := 1; i < len(series); i++ {
		if d := absDiff(series[i], series[i-1]); d < minStep {
			minStep = d
		}
		if i < limit {
			a.SetInt64(series[i])
			b.SetInt64(series[i-1])
			sum.Add(sum, a.Sub(a, b))
			res.Pairs++
		}
	}
	if len(series) < 2 {
		minStep = 0
	}
	res.MinimumStep = minStep
	if res.Pairs > 0 {
		res.MeanSlope.Div(sum, big.NewInt(int64(res.Pairs)))
	}

	res.MinimumStepRad = StepToRadians(res.MinimumStep, n)
	res.MeanSlopeRad = SlopeToRadians(res.MeanSlope, n)
	return res
}

package analysis

import (
	"math"
	"testing"
)

// ramp builds a left-aligned n-bit accumulator counting up one LSB per
// sample and wrapping within the n-bit range.
func ramp(n, length int) []int64 {
	out := make([]int64, length)
	levels := int64(1) << uint(n)
	half := levels / 2
	for k := range out {
		v := int64(k)%levels - half
		out[k] = v << uint(64-n)
	}
	return out
}

func TestAnalyzeAccumulatorWrappingRamp(t *testing.T) {
	series := ramp(4, 64)
	r := AnalyzeAccumulator(series, 4, 10)

	if r.MinimumStep != 1<<60 {
		t.Fatalf("minimum step = %d, want 1<<60", r.MinimumStep)
	}
	want := math.Pi / 8
	if math.Abs(r.MinimumStepRad-want) > 1e-15 {
		t.Fatalf("minimum step = %v rad, want pi/8", r.MinimumStepRad)
	}
	if !r.PrecisionOK() {
		t.Fatal("precision check must pass for a one-LSB ramp")
	}
	if r.Pairs != 52 {
		t.Fatalf("pairs = %d, want 52", r.Pairs)
	}
}

func TestAnalyzeAccumulatorOneLSBAllWidths(t *testing.T) {
	for _, n := range []int{2, 4, 16, 38, 63, 64} {
		step := int64(1) << uint(64-n)
		series := []int64{-2 * step, -step, 0, step}
		r := AnalyzeAccumulator(series, n, 0)
		if r.MinimumStepRad != Precision(n) {
			t.Errorf("N=%d: minimum step %v rad, want %v", n, r.MinimumStepRad, Precision(n))
		}
		if r.MinimumStepRad < 0 {
			t.Errorf("N=%d: negative step", n)
		}
		if !r.PrecisionOK() {
			t.Errorf("N=%d: precision check failed", n)
		}
		if r.MeanSlopeRad != Precision(n) {
			t.Errorf("N=%d: slope %v rad, want %v", n, r.MeanSlopeRad, Precision(n))
		}
	}
}

func TestAnalyzeAccumulatorSlopeWindow(t *testing.T) {
	series := make([]int64, 20)
	for k := range series {
		series[k] = int64(k) << 48
	}
	// Make the tail transient large; it must not leak into the slope.
	series[19] = series[18] + 1<<58

	r := AnalyzeAccumulator(series, 16, 3)
	if r.Pairs != 15 {
		t.Fatalf("pairs = %d, want 15", r.Pairs)
	}
	if r.MeanSlope.Int64() != 1<<48 {
		t.Fatalf("mean slope = %s, want %d", r.MeanSlope, int64(1)<<48)
	}
	if r.MeanSlopeRad != Precision(16) {
		t.Fatalf("slope = %v rad, want %v", r.MeanSlopeRad, Precision(16))
	}
}

func TestAnalyzeAccumulatorNegativeSlopeFloors(t *testing.T) {
	r := AnalyzeAccumulator([]int64{0, -1, -3, 100}, 64, 0)
	if r.Pairs != 2 {
		t.Fatalf("pairs = %d, want 2", r.Pairs)
	}
	if r.MeanSlope.Int64() != -2 {
		t.Fatalf("mean slope = %s, want -2 (floor of -1.5)", r.MeanSlope)
	}
	if r.MinimumStep != 1 {
		t.Fatalf("minimum step = %d, want 1", r.MinimumStep)
	}
	if r.MeanSlopeRad != -2*Precision(64) {
		t.Fatalf("slope = %v rad", r.MeanSlopeRad)
	}
}

func TestAnalyzeAccumulatorEmptyWindow(t *testing.T) {
	r := AnalyzeAccumulator([]int64{0, 4, 8, 12}, 64, 2)
	if r.Pairs != 0 || r.MeanSlope.Sign() != 0 || r.MeanSlopeRad != 0 {
		t.Fatalf("got pairs=%d slope=%s, want empty window", r.Pairs, r.MeanSlope)
	}
	if r.MinimumStep != 4 {
		t.Fatalf("minimum step = %d, want 4 over the whole series", r.MinimumStep)
	}
}

func TestAnalyzeAccumulatorFullWordDifference(t *testing.T) {
	r := AnalyzeAccumulator([]int64{math.MaxInt64, math.MinInt64}, 64, 0)
	if r.MinimumStep != math.MaxUint64 {
		t.Fatalf("minimum step = %d, want MaxUint64", r.MinimumStep)
	}
	if math.Abs(r.MinimumStepRad-2*math.Pi) > 1e-9 {
		t.Fatalf("minimum step = %v rad, want ~2pi", r.MinimumStepRad)
	}
}

func TestPrecisionCheckDetectsOverResolution(t *testing.T) {
	// A step of half an LSB for N=8 right-aligns to zero.
	half := int64(1) << 55
	r := AnalyzeAccumulator([]int64{0, half, 2 * half, 3 * half}, 8, 0)
	if r.MinimumStepRad != 0 {
		t.Fatalf("minimum step = %v rad, want 0", r.MinimumStepRad)
	}
	if r.PrecisionOK() {
		t.Fatal("precision check must fail below one LSB")
	}
}

func TestPrecision(t *testing.T) {
	if Precision(1) != math.Pi {
		t.Fatalf("Precision(1) = %v", Precision(1))
	}
	if Precision(4) != math.Pi/8 {
		t.Fatalf("Precision(4) = %v", Precision(4))
	}
	if StepToRadians(3<<60, 4) != 3*math.Pi/8 {
		t.Fatal("StepToRadians mismatch")
	}
	if SlopeToRadians(nil, 4) != 0 {
		t.Fatal("nil slope must convert to 0")
	}
}

func TestAnalyzeAccumulatorIdempotent(t *testing.T) {
	series := ramp(8, 300)
	orig := append([]int64(nil), series...)
	first := AnalyzeAccumulator(series, 8, 20)
	for i := 0; i < 3; i++ {
		got := AnalyzeAccumulator(series, 8, 20)
		if got.MinimumStep != first.MinimumStep || got.MeanSlope.Cmp(first.MeanSlope) != 0 ||
			got.Pairs != first.Pairs || got.MinimumStepRad != first.MinimumStepRad || got.MeanSlopeRad != first.MeanSlopeRad {
			t.Fatalf("run %d: %+v != %+v", i, got, first)
		}
		if got.MeanSlope == first.MeanSlope {
			t.Fatal("results must not share the slope value")
		}
	}
	for i := range series {
		if series[i] != orig[i] {
			t.Fatalf("input modified at %d", i)
		}
	}
}

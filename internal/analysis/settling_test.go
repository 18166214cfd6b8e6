package analysis

import (
	"math"
	"testing"

	"github.com/user/pll_qa_go/internal/scenario"
)

func TestDetectSettlingBackwardRun(t *testing.T) {
	series := []float64{2, 2, 2, 2, 2, 0.02, 0.01, 0.0, 0.0, 0.0}
	r := DetectSettling(series, scenario.RealTolerance{Target: 0, Bound: 0.1}, DefaultRunLength)
	if !r.Locked {
		t.Fatal("expected lock")
	}
	if r.Index != 4 {
		t.Fatalf("settling index = %d, want 4", r.Index)
	}
	if r.PeakError != 2 {
		t.Fatalf("peak error = %v, want 2", r.PeakError)
	}
	if got := r.TimeMs(1000); got != 4 {
		t.Fatalf("TimeMs = %v, want 4", got)
	}
}

func TestDetectSettlingNeverSettles(t *testing.T) {
	tests := []struct {
		name   string
		series []float64
	}{
		{"final sample outside", []float64{0, 0, 0, 0, 0.5}},
		{"all outside", []float64{3, 3, 3}},
		{"settles then diverges", []float64{5, 5, 5, 5, 5, 0, 0, 0, -0.2}},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DetectSettling(tt.series, scenario.RealTolerance{Target: 0, Bound: 0.1}, DefaultRunLength)
			if r.Locked || r.Index != NeverSettles {
				t.Fatalf("got %+v, want never-settles", r)
			}
			if !math.IsInf(r.PeakError, 1) {
				t.Fatalf("peak error = %v, want +Inf", r.PeakError)
			}
			if !math.IsInf(r.TimeMs(4096), 1) {
				t.Fatal("time must be +Inf for never-settles")
			}
		})
	}
}

func TestDetectSettlingWithinFromStart(t *testing.T) {
	series := []float64{0.05, -0.05, 0.02, 0.0, 0.01}
	r := DetectSettling(series, scenario.RealTolerance{Target: 0, Bound: 0.1}, DefaultRunLength)
	if !r.Locked || r.Index != 0 {
		t.Fatalf("got %+v, want settled at index 0", r)
	}
	if r.PeakError != 0.05 {
		t.Fatalf("peak = %v, want 0.05", r.PeakError)
	}
}

func TestDetectSettlingShortStreakIgnored(t *testing.T) {
	// Four out-of-tolerance samples are not enough to mark the boundary.
	series := []float64{0, 1, 1, 1, 1, 0, 0}
	r := DetectSettling(series, scenario.RealTolerance{Target: 0, Bound: 0.1}, DefaultRunLength)
	if r.Index != 0 {
		t.Fatalf("index = %d, want 0", r.Index)
	}
	if r.PeakError != 1 {
		t.Fatalf("peak = %v, want 1", r.PeakError)
	}

	r = DetectSettling(series, scenario.RealTolerance{Target: 0, Bound: 0.1}, 4)
	if r.Index != 4 {
		t.Fatalf("k=4: index = %d, want 4", r.Index)
	}
}

func TestDetectSettlingMostRecentRun(t *testing.T) {
	series := []float64{9, 9, 9, 9, 9, 0, 0, 3, 3, 3, 3, 3, 3, 0, 0}
	r := DetectSettling(series, scenario.RealTolerance{Target: 0, Bound: 1}, DefaultRunLength)
	if r.Index != 12 {
		t.Fatalf("index = %d, want 12 (top of most recent run)", r.Index)
	}
	if r.PeakError != 9 {
		t.Fatalf("peak = %v, want 9 over the whole series", r.PeakError)
	}
}

func TestDetectSettlingToleranceTie(t *testing.T) {
	// Deviation exactly equal to the bound counts as settled.
	series := []float64{1.5, 1.5, 1.5, 1.5, 1.5, 1.5}
	r := DetectSettling(series, scenario.RealTolerance{Target: 1, Bound: 0.5}, DefaultRunLength)
	if !r.Locked || r.Index != 0 {
		t.Fatalf("got %+v, want settled from the start", r)
	}

	r = DetectSettling([]float64{0, 0.25}, scenario.RealTolerance{Target: 0, Bound: -0.25}, 1)
	if !r.Locked {
		t.Fatal("negative bound must be taken in absolute value")
	}
}

func TestDetectSettlingPeakBound(t *testing.T) {
	series := []float64{0.3, -0.9, 0.2, 0.7, -0.05, 0.01, 0.0}
	target := 0.0
	r := DetectSettling(series, scenario.RealTolerance{Target: target, Bound: 0.1}, 2)
	max := 0.0
	for _, v := range series {
		d := math.Abs(v - target)
		if r.PeakError < d {
			t.Fatalf("peak %v below deviation %v", r.PeakError, d)
		}
		max = math.Max(max, d)
	}
	if r.PeakError != max {
		t.Fatalf("peak = %v, want %v", r.PeakError, max)
	}
}

func TestDetectSettlingIdempotent(t *testing.T) {
	series := []float64{4, 4, 4, 4, 4, 4, 0.5, 0.05, 0.0}
	tol := scenario.RealTolerance{Target: 0, Bound: 0.1}
	first := DetectSettling(series, tol, DefaultRunLength)
	for i := 0; i < 3; i++ {
		if got := DetectSettling(series, tol, DefaultRunLength); got != first {
			t.Fatalf("run %d: %+v != %+v", i, got, first)
		}
	}
	if series[0] != 4 || series[8] != 0.0 {
		t.Fatal("input series was modified")
	}
}

func TestDetectSettlingNaN(t *testing.T) {
	tol := scenario.RealTolerance{Target: 0, Bound: 0.1}
	r := DetectSettling([]float64{5, 5, 5, 5, 5, 5, math.NaN()}, tol, DefaultRunLength)
	if r.Locked || r.Index != NeverSettles || !math.IsInf(r.PeakError, 1) {
		t.Fatalf("NaN tail: got %+v, want never-settles", r)
	}

	// The NaN belongs to the out-of-tolerance run instead of splitting it.
	series := []float64{5, 5, math.NaN(), 5, 5, 0, 0, 0}
	r = DetectSettling(series, tol, DefaultRunLength)
	if !r.Locked || r.Index != 4 {
		t.Fatalf("NaN inside run: got %+v, want index 4", r)
	}
	if !math.IsInf(r.PeakError, 1) {
		t.Fatalf("peak = %v, want +Inf", r.PeakError)
	}
}

func TestDetectComplexSettlingNaN(t *testing.T) {
	tol := scenario.ComplexTolerance{Target: 1, Bound: 0.1}
	r := DetectComplexSettling([]complex128{5, 5, complex(1, math.NaN())}, tol, DefaultRunLength)
	if r.Locked || r.Index != NeverSettles {
		t.Fatalf("NaN tail: got %+v, want never-settles", r)
	}

	series := []complex128{5, 5, complex(math.NaN(), 0), 5, 5, 1, 1}
	r = DetectComplexSettling(series, tol, DefaultRunLength)
	if !r.Locked || r.Index != 4 {
		t.Fatalf("NaN inside run: got %+v, want index 4", r)
	}
	if !math.IsInf(r.PeakReal, 1) || r.PeakImag != 0 {
		t.Fatalf("peaks = (%v, %v), want (+Inf, 0)", r.PeakReal, r.PeakImag)
	}
}

func TestDetectComplexSettlingIdempotent(t *testing.T) {
	series := []complex128{5 + 5i, 5 + 5i, 5 + 5i, 5 + 5i, 5 + 5i, 1.05, 1}
	orig := append([]complex128(nil), series...)
	tol := scenario.ComplexTolerance{Target: 1, Bound: 0.1}
	first := DetectComplexSettling(series, tol, DefaultRunLength)
	for i := 0; i < 3; i++ {
		if got := DetectComplexSettling(series, tol, DefaultRunLength); got != first {
			t.Fatalf("run %d: %+v != %+v", i, got, first)
		}
	}
	for i := range series {
		if series[i] != orig[i] {
			t.Fatalf("input modified at %d", i)
		}
	}
}

func TestDetectComplexSettling(t *testing.T) {
	series := []complex128{
		0, 0,
		5 + 5i, 5 + 5i, 5 + 5i, 5 + 5i, 5 + 5i,
		1.05 + 0.02i, 1.0 + 0.01i, 1.0 + 0i,
	}
	r := DetectComplexSettling(series, scenario.ComplexTolerance{Target: 1, Bound: 0.1}, DefaultRunLength)
	if !r.Locked {
		t.Fatal("expected lock")
	}
	if r.Index != 6 {
		t.Fatalf("index = %d, want 6", r.Index)
	}
	if r.PeakReal != 4.0 || r.PeakImag != 5.0 {
		t.Fatalf("peaks = (%v, %v), want (4, 5)", r.PeakReal, r.PeakImag)
	}
}

func TestDetectComplexSettlingRunAtStart(t *testing.T) {
	series := []complex128{5 + 5i, 5 + 5i, 5 + 5i, 5 + 5i, 5 + 5i, 1, 1, 1}
	r := DetectComplexSettling(series, scenario.ComplexTolerance{Target: 1, Bound: 0.1}, DefaultRunLength)
	if r.Index != 4 {
		t.Fatalf("index = %d, want 4", r.Index)
	}
	if r.PeakReal != 4.0 || r.PeakImag != 5.0 {
		t.Fatalf("peaks = (%v, %v)", r.PeakReal, r.PeakImag)
	}
}

func TestDetectComplexSettlingEitherComponent(t *testing.T) {
	// Only the imaginary part leaves tolerance; that alone breaks the lock.
	tol := scenario.ComplexTolerance{Target: 1, Bound: 0.1}
	r := DetectComplexSettling([]complex128{1, 1, 1 + 0.2i}, tol, DefaultRunLength)
	if r.Locked || !math.IsInf(r.PeakReal, 1) || !math.IsInf(r.PeakImag, 1) {
		t.Fatalf("got %+v, want never-settles", r)
	}

	series := []complex128{1 + 0.5i, 1 + 0.5i, 1 + 0.5i, 1 + 0.5i, 1 + 0.5i, 1 + 0.1i, 1}
	r = DetectComplexSettling(series, tol, DefaultRunLength)
	if !r.Locked || r.Index != 4 {
		t.Fatalf("got %+v, want index 4", r)
	}
	if r.PeakReal != 0 || r.PeakImag != 0.5 {
		t.Fatalf("peaks = (%v, %v)", r.PeakReal, r.PeakImag)
	}
}

func TestDetectComplexSettlingFromStart(t *testing.T) {
	series := []complex128{1, 1.01 + 0.01i, 0.99 - 0.01i, 1}
	r := DetectComplexSettling(series, scenario.ComplexTolerance{Target: 1, Bound: 0.1}, DefaultRunLength)
	if !r.Locked || r.Index != 0 {
		t.Fatalf("got %+v, want index 0", r)
	}
}

func TestSettlingIndexRunLengthFloor(t *testing.T) {
	outside := func(i int) bool { return i == 2 }
	if got := settlingIndex(5, 0, outside); got != 2 {
		t.Fatalf("k=0 treated as 1: got %d, want 2", got)
	}
}

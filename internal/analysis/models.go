package analysis

import (
	"errors"

	"github.com/user/pll_qa_go/internal/scenario"
)

var (
	ErrSeriesTooShort = errors.New("series too short for analysis window")
	ErrNoSeries       = errors.New("scenario has no series to analyze")
	ErrResetIndex     = errors.New("reset index outside captured series")
)

// Options tunes EvaluateScenario. The zero value is not useful; start from
// DefaultOptions.
type Options struct {
	RunLength       int
	AveragingWindow int

	OutTarget         complex128
	OutTolerance      float64
	PhaseErrTarget    float64
	PhaseErrTolerance float64
	FreqToleranceFrac float64 // relative tolerance when the scenario sets none

	NoiseBandwidth float64 // 0: NoiseBandwidthFactor * Params.Bandwidth
}

// DefaultOptions mirrors the qualification campaign's tolerances.
func DefaultOptions() Options {
	return Options{
		RunLength:         DefaultRunLength,
		AveragingWindow:   DefaultAveragingWindow,
		OutTarget:         1,
		OutTolerance:      0.1,
		PhaseErrTarget:    0,
		PhaseErrTolerance: 0.1,
		FreqToleranceFrac: 0.05,
	}
}

// ResetResult is the state of the loop at the reset tag.
type ResetResult struct {
	Index       int
	Freq        float64
	Accumulator int64
	FreqOK      bool
	AccumOK     bool
}

// SwitchResult is the observed order transition.
type SwitchResult struct {
	Index      uint64
	TimeSec    float64
	FinalOrder int
	Count      int
}

// Verdict collects every metric computed for one scenario.
type Verdict struct {
	Scenario string
	Params   scenario.Parameters

	Out        *ComplexSettlingResult
	PhaseError *SettlingResult
	Freq       *SettlingResult
	FreqTarget float64

	Accumulator *AccumulatorPrecisionResult

	SpectrumSource *scenario.SpectralSnapshot
	SpectrumOut    *scenario.SpectralSnapshot

	Reset  *ResetResult
	Switch *SwitchResult

	Failures []string
}

// Pass reports whether every expectation held.
func (v *Verdict) Pass() bool {
	return len(v.Failures) == 0
}

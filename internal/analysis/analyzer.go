package analysis

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/user/pll_qa_go/internal/scenario"
)

const tracerName = "github.com/user/pll_qa_go/internal/analysis"

// checkPreconditions rejects inputs the analyzers are not defined for.
func checkPreconditions(sc *scenario.Scenario, opts Options) error {
	if sc == nil {
		return fmt.Errorf("scenario is nil, cannot analyze")
	}
	if err := sc.Params.Validate(); err != nil {
		return fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	if sc.Len() == 0 {
		return fmt.Errorf("scenario %s: %w", sc.Name, ErrNoSeries)
	}
	if sc.Expect.CheckAccumulator {
		if need := opts.AveragingWindow + 2; len(sc.Accumulator) < need {
			return fmt.Errorf("scenario %s: accumulator has %d samples, need %d: %w",
				sc.Name, len(sc.Accumulator), need, ErrSeriesTooShort)
		}
	}
	if idx := sc.Expect.ResetIndex; idx >= 0 {
		if idx >= len(sc.Freq) || idx >= len(sc.Accumulator) {
			return fmt.Errorf("scenario %s: index %d: %w", sc.Name, idx, ErrResetIndex)
		}
	}
	return nil
}

// freqTolerance resolves the frequency target and bound for a scenario.
func freqTolerance(sc *scenario.Scenario, opts Options) scenario.RealTolerance {
	target := sc.Expect.FreqTarget
	if target == 0 {
		target = sc.Params.Frequency
		if sc.Params.IsSweep() {
			target = (sc.Params.FrequencyMax - sc.Params.FrequencyMin) / 2
		}
	}
	bound := sc.Expect.FreqTolerance
	if bound == 0 {
		bound = target * opts.FreqToleranceFrac
	}
	return scenario.RealTolerance{Target: target, Bound: bound}
}

// EvaluateScenario runs every analyzer that has input in the scenario and
// checks the results against its expectations. The analyzers run
// concurrently; each writes only its own field of the verdict.
func EvaluateScenario(ctx context.Context, sc *scenario.Scenario, opts Options) (*Verdict, error) {
	if err := checkPreconditions(sc, opts); err != nil {
		return nil, err
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "EvaluateScenario", trace.WithAttributes(
		attribute.String("scenario", sc.Name),
		attribute.Int("items", sc.Len()),
		attribute.Float64("samp_rate", sc.Params.SampleRate),
	))
	defer span.End()

	v := &Verdict{
		Scenario: sc.Name,
		Params:   sc.Params,
		Failures: make([]string, 0),
	}
	freqTol := freqTolerance(sc, opts)
	v.FreqTarget = freqTol.Target

	g, gctx := errgroup.WithContext(ctx)
	run := func(name string, fn func()) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, s := tracer.Start(gctx, name)
			defer s.End()
			fn()
			return nil
		})
	}

	if len(sc.Out) > 0 {
		run("settling.out", func() {
			r := DetectComplexSettling(sc.Out, scenario.ComplexTolerance{Target: opts.OutTarget, Bound: opts.OutTolerance}, opts.RunLength)
			v.Out = &r
		})
	}
	if len(sc.PhaseError) > 0 {
		run("settling.pe", func() {
			r := DetectSettling(sc.PhaseError, scenario.RealTolerance{Target: opts.PhaseErrTarget, Bound: opts.PhaseErrTolerance}, opts.RunLength)
			v.PhaseError = &r
		})
	}
	if len(sc.Freq) > 0 {
		run("settling.freq", func() {
			r := DetectSettling(sc.Freq, freqTol, opts.RunLength)
			v.Freq = &r
		})
	}
	if len(sc.Accumulator) >= 2 {
		run("quantization.pa", func() {
			r := AnalyzeAccumulator(sc.Accumulator, sc.Params.N, opts.AveragingWindow)
			v.Accumulator = &r
		})
	}
	if sc.Params.FFTSize > 0 {
		noiseBW := opts.NoiseBandwidth
		if len(sc.SpectrumSource) > 0 {
			run("spectrum.src", func() {
				if snap, ok := AnalyzeSpectrum(sc.SpectrumSource, sc.Params.SampleRate, sc.Params.FFTSize, sc.Params.Bandwidth, noiseBW); ok {
					v.SpectrumSource = &snap
				}
			})
		}
		if len(sc.SpectrumOut) > 0 {
			run("spectrum.out", func() {
				if snap, ok := AnalyzeSpectrum(sc.SpectrumOut, sc.Params.SampleRate, sc.Params.FFTSize, sc.Params.Bandwidth, noiseBW); ok {
					v.SpectrumOut = &snap
				}
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	if idx := sc.Expect.ResetIndex; idx >= 0 {
		v.Reset = CheckReset(sc, idx)
	}
	if sc.Transition != nil {
		t := sc.Transition
		v.Switch = &SwitchResult{
			Index:      t.Index,
			TimeSec:    t.Seconds(sc.Params.SampleRate),
			FinalOrder: t.FinalOrder,
			Count:      t.Count,
		}
	}

	v.Failures = append(v.Failures, checkExpectations(sc, v)...)
	span.SetAttributes(attribute.Bool("pass", v.Pass()), attribute.Int("failures", len(v.Failures)))
	return v, nil
}

// CheckReset inspects the loop at the reset tag: the frequency estimate must
// be back at the central frequency (integer part) and the accumulator cleared.
func CheckReset(sc *scenario.Scenario, idx int) *ResetResult {
	r := &ResetResult{Index: idx, Freq: sc.Freq[idx], Accumulator: sc.Accumulator[idx]}
	r.FreqOK = math.Round(r.Freq-sc.Params.CenterFrequency) == 0
	r.AccumOK = r.Accumulator == 0
	return r
}

func checkExpectations(sc *scenario.Scenario, v *Verdict) []string {
	var failures []string
	e := sc.Expect
	fs := sc.Params.SampleRate

	lock := func(channel string, locked bool, ms float64) {
		switch {
		case e.Lock && !locked:
			failures = append(failures, fmt.Sprintf("output '%s' never settles", channel))
		case !e.Lock && locked:
			failures = append(failures, fmt.Sprintf("output '%s' settled after %.3f ms, unlock expected", channel, ms))
		}
	}
	if e.CheckLock {
		if v.Out != nil {
			lock(string(scenario.ChannelOut), v.Out.Locked, v.Out.TimeMs(fs))
		}
		if v.PhaseError != nil {
			lock(string(scenario.ChannelPhaseError), v.PhaseError.Locked, v.PhaseError.TimeMs(fs))
		}
		if v.Freq != nil {
			lock(string(scenario.ChannelFreq), v.Freq.Locked, v.Freq.TimeMs(fs))
		}
		if v.Out == nil && v.PhaseError == nil && v.Freq == nil {
			failures = append(failures, "lock check requested but no loop outputs were captured")
		}
	}

	if e.CheckAccumulator && v.Accumulator != nil && !v.Accumulator.PrecisionOK() {
		failures = append(failures, fmt.Sprintf("accumulator minimum step %.3g rad below one LSB (%.3g rad)",
			v.Accumulator.MinimumStepRad, v.Accumulator.Precision))
	}

	if r := v.Reset; r != nil {
		if !r.FreqOK {
			failures = append(failures, fmt.Sprintf("frequency at reset %.3f Hz, want %.0f Hz", r.Freq, sc.Params.CenterFrequency))
		}
		if !r.AccumOK {
			failures = append(failures, fmt.Sprintf("accumulator at reset is %d, want 0", r.Accumulator))
		}
	}

	if e.SwitchOrder > 0 {
		switch s := v.Switch; {
		case s == nil:
			failures = append(failures, "order switch was never observed")
		case s.Count != 1:
			failures = append(failures, fmt.Sprintf("order switch observed %d times, want 1", s.Count))
		case s.FinalOrder != e.SwitchOrder:
			failures = append(failures, fmt.Sprintf("final loop order %d, want %d", s.FinalOrder, e.SwitchOrder))
		}
	}
	return failures
}

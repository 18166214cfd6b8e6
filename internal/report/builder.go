package report

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/pll_qa_go/internal/analysis"
	"github.com/user/pll_qa_go/internal/scenario"
)

var ErrFlushed = errors.New("report already flushed")

type image struct {
	Key     string
	Caption string
	PNG     []byte
}

// summary holds the scalar columns of the run overview table.
type summary struct {
	Pass       bool
	OutMs      float64
	PEMs       float64
	FreqMs     float64
	MinStepRad float64
	CNROut     float64
}

type section struct {
	Name        string
	Description string
	ParamLine   string
	Failures    []string
	Metrics     [][]string
	Images      []image
	Warnings    []string
	summary     summary
}

// Builder accumulates the figures and verdicts of one run. Create one per
// run with NewBuilder, add each scenario as it is evaluated and Flush once
// at the end; the builder holds no scenario data after Flush.
type Builder struct {
	RunID     string
	Title     string
	StartedAt time.Time

	opts analysis.Options

	mu       sync.Mutex
	sections []section
	flushed  bool
}

// NewBuilder starts a report for a new run. opts supplies the tolerance
// bands drawn on the plots.
func NewBuilder(title string, opts analysis.Options) *Builder {
	return &Builder{
		RunID:     uuid.New().String(),
		Title:     title,
		StartedAt: time.Now(),
		opts:      opts,
	}
}

// Len is the number of scenarios added so far.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sections)
}

// AddScenario renders the plots for one evaluated scenario. Plot failures are
// recorded in the section and do not fail the call.
func (b *Builder) AddScenario(sc *scenario.Scenario, v *analysis.Verdict) error {
	if sc == nil || v == nil {
		return fmt.Errorf("scenario and verdict are required")
	}
	sec := newSection(sc, v)
	b.renderPlots(&sec, sc, v)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flushed {
		return ErrFlushed
	}
	b.sections = append(b.sections, sec)
	return nil
}

// Flush writes the PDF and releases every section.
func (b *Builder) Flush(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flushed {
		return ErrFlushed
	}
	b.flushed = true
	defer func() { b.sections = nil }()

	if err := buildPDFReport(path, b); err != nil {
		return err
	}
	log.Printf("Report for run %s written to %s (%d scenarios)", b.RunID, path, len(b.sections))
	return nil
}

func fmtFloat(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func fmtInt(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func newSection(sc *scenario.Scenario, v *analysis.Verdict) section {
	p := sc.Params
	fs := p.SampleRate
	sec := section{
		Name:        sc.Name,
		Description: sc.Description,
		ParamLine: paramLine([][2]string{
			{"samp_rate", fmtFloat(fs)},
			{"N", fmtInt(p.N)},
			{"order", fmtInt(p.Order)},
			{"f_central", fmtFloat(p.CenterFrequency)},
			{"bw", fmtFloat(p.Bandwidth)},
			{"freq", fmtFloat(p.Frequency)},
			{"noise", fmtFloat(p.Noise)},
			{"items", fmtInt(p.Items)},
			{"fft_size", fmtInt(p.FFTSize)},
		}),
		Failures: append([]string(nil), v.Failures...),
		summary: summary{
			Pass:       v.Pass(),
			OutMs:      math.NaN(),
			PEMs:       math.NaN(),
			FreqMs:     math.NaN(),
			MinStepRad: math.NaN(),
			CNROut:     math.NaN(),
		},
	}
	add := func(name, value string) { sec.Metrics = append(sec.Metrics, []string{name, value}) }

	if r := v.Out; r != nil {
		sec.summary.OutMs = r.TimeMs(fs)
		add("out settling time (ms)", formatMs(sec.summary.OutMs))
		add("out peak error re / im", fmt.Sprintf("%.4g / %.4g", r.PeakReal, r.PeakImag))
	}
	if r := v.PhaseError; r != nil {
		sec.summary.PEMs = r.TimeMs(fs)
		add("pe settling time (ms)", formatMs(sec.summary.PEMs))
		add("pe peak error (rad)", fmt.Sprintf("%.4g", r.PeakError))
	}
	if r := v.Freq; r != nil {
		sec.summary.FreqMs = r.TimeMs(fs)
		add("freq settling time (ms)", formatMs(sec.summary.FreqMs))
		add("freq target / peak error (Hz)", fmt.Sprintf("%.1f / %.4g", v.FreqTarget, r.PeakError))
	}
	if a := v.Accumulator; a != nil {
		sec.summary.MinStepRad = a.MinimumStepRad
		add("accumulator minimum step (raw)", strconv.FormatUint(a.MinimumStep, 10))
		add("accumulator minimum step (rad)", formatRad(a.MinimumStepRad))
		add("accumulator mean slope (raw)", a.MeanSlope.String())
		add("accumulator mean slope (rad)", formatRad(a.MeanSlopeRad))
		add("precision pi/2^(N-1) (rad)", formatRad(a.Precision))
	}
	if s := v.SpectrumSource; s != nil {
		add("CNR source", formatDB(s.CNR))
	}
	if s := v.SpectrumOut; s != nil {
		sec.summary.CNROut = s.CNR
		add("CNR output", formatDB(s.CNR))
	}
	if r := v.Reset; r != nil {
		add(fmt.Sprintf("freq / accumulator at reset (index %d)", r.Index), fmt.Sprintf("%.3f Hz / %d", r.Freq, r.Accumulator))
	}
	if s := v.Switch; s != nil {
		add("order switch", fmt.Sprintf("to order %d at %.4f s (%d transition(s))", s.FinalOrder, s.TimeSec, s.Count))
	}
	return sec
}

// settleSeconds is the plot marker position, +Inf when not locked.
func settleSeconds(locked bool, index int, fs float64) float64 {
	if !locked {
		return math.Inf(1)
	}
	return float64(index) / fs
}

func (b *Builder) renderPlots(sec *section, sc *scenario.Scenario, v *analysis.Verdict) {
	t := sc.Time()
	fs := sc.Params.SampleRate
	plotErr := func(what string, err error) {
		sec.Warnings = append(sec.Warnings, fmt.Sprintf("%s plot: %v", what, err))
	}
	addPlot := func(key, caption string, png []byte, err error) {
		if err != nil {
			plotErr(key, err)
			return
		}
		sec.Images = append(sec.Images, image{Key: key, Caption: caption, PNG: png})
	}

	if len(sc.Out) > 0 && v.Out != nil {
		png, err := CreateTimeSeriesPlot("Loop output", "out", t,
			[]Trace{{"real", sc.Out.Real()}, {"imag", sc.Out.Imag()}},
			&Band{Target: real(b.opts.OutTarget), Bound: b.opts.OutTolerance, Label: "tolerance (real)"},
			settleSeconds(v.Out.Locked, v.Out.Index, fs))
		addPlot("out", "Complex loop output", png, err)
	}
	if len(sc.Freq) > 0 && v.Freq != nil {
		bound := sc.Expect.FreqTolerance
		if bound == 0 {
			bound = v.FreqTarget * b.opts.FreqToleranceFrac
		}
		png, err := CreateTimeSeriesPlot("Frequency estimate", "freq (Hz)", t,
			[]Trace{{"freq", sc.Freq}},
			&Band{Target: v.FreqTarget, Bound: bound, Label: "tolerance"},
			settleSeconds(v.Freq.Locked, v.Freq.Index, fs))
		addPlot("freq", "Frequency estimate", png, err)
	}
	if len(sc.PhaseError) > 0 && v.PhaseError != nil {
		png, err := CreateTimeSeriesPlot("Phase error", "pe (rad)", t,
			[]Trace{{"pe", sc.PhaseError}},
			&Band{Target: b.opts.PhaseErrTarget, Bound: b.opts.PhaseErrTolerance, Label: "tolerance"},
			settleSeconds(v.PhaseError.Locked, v.PhaseError.Index, fs))
		addPlot("pe", "Phase error", png, err)
	}
	if len(sc.Accumulator) > 0 {
		phase := make([]float64, len(sc.Accumulator))
		for i, w := range sc.Accumulator {
			phase[i] = math.Ldexp(float64(w), -63) * math.Pi
		}
		png, err := CreateTimeSeriesPlot("Phase accumulator", "pa (rad)", t,
			[]Trace{{"pa", phase}}, nil, math.Inf(1))
		addPlot("pa", "Phase accumulator scaled to radians", png, err)
	}
	switch {
	case len(sc.Source) > 0:
		png, err := CreateTimeSeriesPlot("Source", "src", t,
			[]Trace{{"real", sc.Source.Real()}, {"imag", sc.Source.Imag()}}, nil, math.Inf(1))
		addPlot("src", "Reference input", png, err)
	case len(sc.SourceReal) > 0:
		png, err := CreateTimeSeriesPlot("Source", "src", t,
			[]Trace{{"src", sc.SourceReal}}, nil, math.Inf(1))
		addPlot("src", "Reference input", png, err)
	}
	if v.SpectrumSource != nil || v.SpectrumOut != nil {
		png, err := CreateSpectrumPlot("Final spectrum frame", v.SpectrumSource, v.SpectrumOut)
		addPlot("spectrum", "Power spectrum before and after the loop", png, err)
	}
	if len(sc.SpectrumOut) > 1 && sc.Params.FFTSize > 0 {
		png, err := CreateSpectrogramPlot("Output spectrogram", sc.SpectrumOut, fs, sc.Params.FFTSize)
		addPlot("spectrogram", "Output power over time", png, err)
	}
}

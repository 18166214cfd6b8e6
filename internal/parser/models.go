package parser

import (
	"errors"

	"github.com/user/pll_qa_go/internal/scenario"
)

// File names inside a capture directory.
const (
	ParamsFile       = "params.json"
	SamplesFile      = "samples.csv"
	SpectrumSrcFile  = "spectrum_src.csv"
	SpectrumOutFile  = "spectrum_out.csv"
	TransitionFile   = "transition.json"
	DefaultCaptureID = "capture"
)

// Column headers understood in samples.csv.
const (
	ColOutRe = "out_re"
	ColOutIm = "out_im"
	ColFreq  = "freq"
	ColPE    = "pe"
	ColPA    = "pa"
	ColSrcRe = "src_re"
	ColSrcIm = "src_im"
	ColSrc   = "src"
	ColTime  = "time" // accepted and ignored, the time axis is derived
)

var knownColumns = map[string]bool{
	ColOutRe: true, ColOutIm: true, ColFreq: true, ColPE: true, ColPA: true,
	ColSrcRe: true, ColSrcIm: true, ColSrc: true, ColTime: true,
}

var (
	ErrNoParameters = errors.New("capture has no params.json and no preset was given")
	ErrNoHeader     = errors.New("samples file has no header row")
)

// RunConfig is the content of params.json: parameters and expectations in one
// flat object. When Preset is set the named preset supplies every field the
// file leaves out.
type RunConfig struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Preset      string `json:"preset,omitempty"`

	scenario.Parameters
	scenario.Expectations
}

// Samples holds the columns read from samples.csv.
type Samples struct {
	Columns []string // recognised columns in file order
	Rows    int

	Out        scenario.ComplexSeries
	Freq       scenario.RealSeries
	PhaseError scenario.RealSeries
	Accum      scenario.AccumulatorSeries
	Source     scenario.ComplexSeries
	SourceReal scenario.RealSeries

	ParseWarnings []string
}

// Capture is a fully loaded capture directory.
type Capture struct {
	Dir      string
	Config   RunConfig
	Scenario *scenario.Scenario

	ParseWarnings []string // non-fatal problems from every file
}

// LoadOptions controls LoadCapture.
type LoadOptions struct {
	Preset string // used when the directory has no params.json
}

func newSamples() *Samples {
	return &Samples{
		Columns:       make([]string, 0),
		ParseWarnings: make([]string, 0),
	}
}

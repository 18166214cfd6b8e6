package parser

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/pll_qa_go/internal/analysis"
	"github.com/user/pll_qa_go/internal/control"
	"github.com/user/pll_qa_go/internal/scenario"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

const sampleCSV = `# capture from bench run 7
time,out_re,out_im,freq,pe,pa,src_re,src_im
0,0.1,0.2,500,1.5,0,1,0
1,0.9,0.05,740,0.2,-9223372036854775808,0,1
2,1.0,0.0,750,0.0,18446744073709551615,-1,0
3,1.0,,750,,bogus,0,-1
`

func TestParseSamples(t *testing.T) {
	s, err := ParseSamples(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ParseSamples: %v", err)
	}
	if s.Rows != 4 {
		t.Fatalf("rows = %d, want 4", s.Rows)
	}
	want := []string{ColOutRe, ColOutIm, ColFreq, ColPE, ColPA, ColSrcRe, ColSrcIm}
	if strings.Join(s.Columns, ",") != strings.Join(want, ",") {
		t.Fatalf("columns = %v", s.Columns)
	}
	if s.Out[1] != complex(0.9, 0.05) {
		t.Fatalf("out[1] = %v", s.Out[1])
	}
	if !math.IsNaN(imag(s.Out[3])) || !math.IsNaN(s.PhaseError[3]) {
		t.Fatal("blank cells must become NaN")
	}
	if s.Accum[1] != math.MinInt64 || s.Accum[2] != -1 {
		t.Fatalf("accumulator = %v", s.Accum)
	}
	// blank out_im, blank pe, bad pa
	if s.Accum[3] != 0 || len(s.ParseWarnings) != 3 {
		t.Fatalf("bad accumulator cell: value %d, warnings %v", s.Accum[3], s.ParseWarnings)
	}
	if s.Source[2] != -1 || len(s.SourceReal) != 0 {
		t.Fatalf("source = %v / %v", s.Source, s.SourceReal)
	}
}

func TestParseSamplesHeaderProblems(t *testing.T) {
	if _, err := ParseSamples(strings.NewReader("")); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("empty file: err = %v", err)
	}
	if _, err := ParseSamples(strings.NewReader("a,b\n1,2\n")); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("no known columns: err = %v", err)
	}

	s, err := ParseSamples(strings.NewReader("src,extra,src\n0.5,1,2\n0.25\n"))
	if err != nil {
		t.Fatalf("ParseSamples: %v", err)
	}
	if len(s.SourceReal) != 2 || s.SourceReal[1] != 0.25 {
		t.Fatalf("src = %v", s.SourceReal)
	}
	// unknown column, duplicate column, short row
	if len(s.ParseWarnings) != 3 {
		t.Fatalf("warnings = %v", s.ParseWarnings)
	}
}

func TestParseSpectrum(t *testing.T) {
	frames, warnings, err := ParseSpectrum(strings.NewReader("-10,-20,-Inf,0\n\n1,2,x,4\n"))
	if err != nil {
		t.Fatalf("ParseSpectrum: %v", err)
	}
	if len(frames) != 2 || len(frames[0]) != 4 {
		t.Fatalf("frames = %v", frames)
	}
	if !math.IsInf(frames[0][2], -1) {
		t.Fatalf("frame[0][2] = %v, want -Inf", frames[0][2])
	}
	if !math.IsNaN(frames[1][2]) || len(warnings) != 1 {
		t.Fatalf("bad cell: %v, warnings %v", frames[1][2], warnings)
	}
}

func TestLoadParametersOverlaysPreset(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ParamsFile, `{"preset": "pll_out_of_band", "freq": 1200, "reset_index": 3}`)
	cfg, err := LoadParameters(filepath.Join(dir, ParamsFile))
	if err != nil {
		t.Fatalf("LoadParameters: %v", err)
	}
	if cfg.Frequency != 1200 || cfg.N != 38 || cfg.Order != 2 {
		t.Fatalf("parameters = %+v", cfg.Parameters)
	}
	if cfg.Lock || cfg.ResetIndex != 3 || !cfg.CheckLock {
		t.Fatalf("expectations = %+v", cfg.Expectations)
	}

	writeFile(t, dir, ParamsFile, `{"samp_rate": 4096, "n": 80}`)
	if _, err := LoadParameters(filepath.Join(dir, ParamsFile)); !errors.Is(err, scenario.ErrBitWidth) {
		t.Fatalf("err = %v, want ErrBitWidth", err)
	}

	writeFile(t, dir, ParamsFile, `{"samp_rate": 4096, "n": 16}`)
	cfg, err = LoadParameters(filepath.Join(dir, ParamsFile))
	if err != nil {
		t.Fatalf("LoadParameters: %v", err)
	}
	if cfg.ResetIndex != -1 || !cfg.Lock {
		t.Fatalf("defaults lost: %+v", cfg.Expectations)
	}
}

func TestLoadCapture(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ParamsFile, `{"name": "bench7", "samp_rate": 1000, "n": 38, "order": 2, "freq": 750, "items": 4, "fft_size": 4}`)
	writeFile(t, dir, SamplesFile, sampleCSV)
	writeFile(t, dir, SpectrumOutFile, "-60,-60,0,-60\n-60,0,-60,-60\n")
	writeFile(t, dir, TransitionFile, `{"index": 2, "order": 3, "final_order": 3, "count": 1}`)

	c, err := LoadCapture(dir, LoadOptions{})
	if err != nil {
		t.Fatalf("LoadCapture: %v", err)
	}
	sc := c.Scenario
	if sc.Name != "bench7" || sc.Len() != 4 {
		t.Fatalf("scenario %s with %d samples", sc.Name, sc.Len())
	}
	// src has no spectrum file, so one frame is derived from the 4 samples
	if len(sc.SpectrumOut) != 2 || len(sc.SpectrumSource) != 1 {
		t.Fatalf("spectra: src %d frames, out %d frames", len(sc.SpectrumSource), len(sc.SpectrumOut))
	}
	if sc.Transition == nil || sc.Transition.Index != 2 || sc.Transition.FinalOrder != 3 {
		t.Fatalf("transition = %+v", sc.Transition)
	}
	if len(c.ParseWarnings) != 3 {
		t.Fatalf("warnings = %v", c.ParseWarnings)
	}
}

func TestParseSamplesBlankTailNeverSettles(t *testing.T) {
	csv := "freq,pe\n" + strings.Repeat("9,9\n", 6) + ",\n"
	s, err := ParseSamples(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseSamples: %v", err)
	}
	if len(s.ParseWarnings) != 2 {
		t.Fatalf("blank cells must be reported: %v", s.ParseWarnings)
	}
	r := analysis.DetectSettling(s.PhaseError, scenario.RealTolerance{Target: 0, Bound: 0.1}, analysis.DefaultRunLength)
	if r.Locked || r.Index != analysis.NeverSettles {
		t.Fatalf("blank final sample: got %+v, want never-settles", r)
	}
}

func TestLoadCaptureWithoutParams(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, SamplesFile, "src\n0\n1\n")

	if _, err := LoadCapture(dir, LoadOptions{}); !errors.Is(err, ErrNoParameters) {
		t.Fatalf("err = %v, want ErrNoParameters", err)
	}

	c, err := LoadCapture(dir, LoadOptions{Preset: "pc_precision"})
	if err != nil {
		t.Fatalf("LoadCapture: %v", err)
	}
	if c.Scenario.Name != "pc_precision" || c.Scenario.Params.N != 4 {
		t.Fatalf("scenario = %s N=%d", c.Scenario.Name, c.Scenario.Params.N)
	}
	if c.Scenario.IsPLL() {
		t.Fatal("phase converter preset must not be a PLL run")
	}
	// items mismatch is reported, not fatal
	if len(c.ParseWarnings) != 1 {
		t.Fatalf("warnings = %v", c.ParseWarnings)
	}
}

func TestLoadCaptureMissingSamples(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ParamsFile, `{"samp_rate": 1000, "n": 38}`)
	if _, err := LoadCapture(dir, LoadOptions{}); err == nil {
		t.Fatal("missing samples.csv must fail")
	}
}

func TestLoadCaptureRejectsBadTransition(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ParamsFile, `{"samp_rate": 1000, "n": 38, "order": 2}`)
	writeFile(t, dir, SamplesFile, "freq\n1\n2\n")
	writeFile(t, dir, TransitionFile, `{"index": 2, "order": 5, "final_order": 5, "count": 1}`)
	if _, err := LoadCapture(dir, LoadOptions{}); !errors.Is(err, control.ErrTransition) {
		t.Fatalf("err = %v, want ErrTransition", err)
	}
}

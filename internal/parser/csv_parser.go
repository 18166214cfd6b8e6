package parser

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/user/pll_qa_go/internal/analysis"
	"github.com/user/pll_qa_go/internal/control"
	"github.com/user/pll_qa_go/internal/scenario"
)

// newReader configures a csv.Reader the way every capture file is read.
func newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	return reader
}

// parseFloatCell converts one cell; blanks become NaN.
func parseFloatCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}

// parseAccumCell accepts the signed or unsigned rendering of a 64-bit word.
func parseAccumCell(cell string) (int64, error) {
	cell = strings.TrimSpace(cell)
	if v, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return v, nil
	}
	u, err := strconv.ParseUint(cell, 10, 64)
	if err != nil {
		return 0, err
	}
	return int64(u), nil
}

// ParseSamples reads a samples CSV. The first non-comment row names the
// columns; unknown columns are skipped with a warning.
func ParseSamples(r io.Reader) (*Samples, error) {
	reader := newReader(r)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read samples header: %w", err)
	}

	s := newSamples()
	index := make(map[string]int)
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if !knownColumns[name] {
			s.ParseWarnings = append(s.ParseWarnings, fmt.Sprintf("Warning: unknown column '%s' ignored.", h))
			continue
		}
		if _, dup := index[name]; dup {
			s.ParseWarnings = append(s.ParseWarnings, fmt.Sprintf("Warning: duplicate column '%s', using the first one.", name))
			continue
		}
		index[name] = i
		if name != ColTime {
			s.Columns = append(s.Columns, name)
		}
	}
	if len(s.Columns) == 0 {
		return nil, fmt.Errorf("samples header %v: %w", header, ErrNoHeader)
	}

	has := func(col string) bool { _, ok := index[col]; return ok }
	var outRe, outIm, srcRe, srcIm []float64

	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read samples row %d: %w", line, err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		if len(row) < len(header) {
			s.ParseWarnings = append(s.ParseWarnings, fmt.Sprintf("Warning: row %d has %d fields, expected %d. Missing cells set to NaN.", line, len(row), len(header)))
		}
		cell := func(col string) string {
			i := index[col]
			if i < len(row) {
				return row[i]
			}
			return ""
		}
		float := func(col string) float64 {
			if i := index[col]; i < len(row) && strings.TrimSpace(row[i]) == "" {
				s.ParseWarnings = append(s.ParseWarnings, fmt.Sprintf("Warning: blank value in column '%s', row %d. Using NaN, the sample counts as out of tolerance.", col, line))
			}
			v, err := parseFloatCell(cell(col))
			if err != nil {
				s.ParseWarnings = append(s.ParseWarnings, fmt.Sprintf("Error converting value '%s' in column '%s', row %d. Using NaN. Error: %v", cell(col), col, line, err))
				return math.NaN()
			}
			return v
		}

		if has(ColOutRe) || has(ColOutIm) {
			outRe = append(outRe, floatOr0(has(ColOutRe), float, ColOutRe))
			outIm = append(outIm, floatOr0(has(ColOutIm), float, ColOutIm))
		}
		if has(ColFreq) {
			s.Freq = append(s.Freq, float(ColFreq))
		}
		if has(ColPE) {
			s.PhaseError = append(s.PhaseError, float(ColPE))
		}
		if has(ColPA) {
			raw := cell(ColPA)
			v, err := parseAccumCell(raw)
			if err != nil {
				s.ParseWarnings = append(s.ParseWarnings, fmt.Sprintf("Warning: accumulator value '%s' at row %d is not an integer. Using 0.", raw, line))
				v = 0
			}
			s.Accum = append(s.Accum, v)
		}
		if has(ColSrcRe) || has(ColSrcIm) {
			srcRe = append(srcRe, floatOr0(has(ColSrcRe), float, ColSrcRe))
			srcIm = append(srcIm, floatOr0(has(ColSrcIm), float, ColSrcIm))
		}
		if has(ColSrc) {
			s.SourceReal = append(s.SourceReal, float(ColSrc))
		}
		s.Rows++
	}

	if has(ColOutRe) != has(ColOutIm) {
		s.ParseWarnings = append(s.ParseWarnings, "Warning: only one component of 'out' present, the other is taken as 0.")
	}
	s.Out = joinComplex(outRe, outIm)
	s.Source = joinComplex(srcRe, srcIm)
	if s.Rows == 0 {
		s.ParseWarnings = append(s.ParseWarnings, "Warning: samples file has a header but no data rows.")
	}
	return s, nil
}

func floatOr0(present bool, float func(string) float64, col string) float64 {
	if !present {
		return 0
	}
	return float(col)
}

func joinComplex(re, im []float64) scenario.ComplexSeries {
	if len(re) == 0 {
		return nil
	}
	out := make(scenario.ComplexSeries, len(re))
	for i := range re {
		out[i] = complex(re[i], im[i])
	}
	return out
}

// ParseSpectrum reads one dB power frame per row. Rows keep their length;
// the analyzer decides which frames are complete.
func ParseSpectrum(r io.Reader) ([][]float64, []string, error) {
	reader := newReader(r)
	var frames [][]float64
	warnings := make([]string, 0)
	line := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, warnings, fmt.Errorf("failed to read spectrum row %d: %w", line, err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		frame := make([]float64, len(row))
		for i, cell := range row {
			v, err := parseFloatCell(cell)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("Error converting spectrum value '%s', frame %d, bin %d. Using NaN.", cell, line, i))
				v = math.NaN()
			}
			frame[i] = v
		}
		frames = append(frames, frame)
	}
	return frames, warnings, nil
}

// LoadParameters reads a params.json file. Expectations not given in the
// file keep their defaults.
func LoadParameters(path string) (*RunConfig, error) {
	return loadParameters(path, "")
}

func loadParameters(path, basePreset string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameters: %w", err)
	}
	return decodeRunConfig(data, basePreset)
}

// decodeRunConfig overlays the JSON object on a preset: the one named in the
// file, else basePreset, else bare defaults.
func decodeRunConfig(data []byte, basePreset string) (*RunConfig, error) {
	head := struct {
		Preset string `json:"preset"`
	}{Preset: basePreset}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}

	cfg := &RunConfig{Expectations: scenario.DefaultExpectations()}
	if head.Preset != "" {
		p, err := scenario.Lookup(head.Preset)
		if err != nil {
			return nil, err
		}
		cfg.Name = p.Name
		cfg.Description = p.Description
		cfg.Preset = p.Name
		cfg.Parameters = p.Params
		cfg.Expectations = p.Expect
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	if err := cfg.Parameters.Validate(); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}
	return cfg, nil
}

// LoadTransition reads the order-switch record written by the capture tool.
func LoadTransition(path string) (*control.Transition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transition: %w", err)
	}
	var t control.Transition
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode transition: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &t, nil
}

func parseSpectrumFile(path string) ([][]float64, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ParseSpectrum(f)
}

// LoadCapture reads a capture directory into a scenario ready for analysis.
// Missing optional files are not an error.
func LoadCapture(dir string, opts LoadOptions) (*Capture, error) {
	c := &Capture{Dir: dir, ParseWarnings: make([]string, 0)}

	cfg, err := loadParameters(filepath.Join(dir, ParamsFile), opts.Preset)
	switch {
	case err == nil:
		c.Config = *cfg
	case errors.Is(err, fs.ErrNotExist) && opts.Preset != "":
		p, err := scenario.Lookup(opts.Preset)
		if err != nil {
			return nil, err
		}
		c.Config = RunConfig{Name: p.Name, Description: p.Description, Preset: p.Name, Parameters: p.Params, Expectations: p.Expect}
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%s: %w", dir, ErrNoParameters)
	default:
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	if c.Config.Name == "" {
		c.Config.Name = filepath.Base(filepath.Clean(dir))
		if c.Config.Name == "." || c.Config.Name == string(filepath.Separator) {
			c.Config.Name = DefaultCaptureID
		}
	}

	f, err := os.Open(filepath.Join(dir, SamplesFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open samples: %w", err)
	}
	samples, err := ParseSamples(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", SamplesFile, err)
	}
	c.ParseWarnings = append(c.ParseWarnings, samples.ParseWarnings...)

	sc := scenario.New(c.Config.Name, c.Config.Parameters)
	sc.Description = c.Config.Description
	sc.Expect = c.Config.Expectations
	sc.Out = samples.Out
	sc.Freq = samples.Freq
	sc.PhaseError = samples.PhaseError
	sc.Accumulator = samples.Accum
	sc.Source = samples.Source
	sc.SourceReal = samples.SourceReal

	for _, sf := range []struct {
		file string
		dst  *[][]float64
	}{
		{SpectrumSrcFile, &sc.SpectrumSource},
		{SpectrumOutFile, &sc.SpectrumOut},
	} {
		frames, warnings, err := parseSpectrumFile(filepath.Join(dir, sf.file))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sf.file, err)
		}
		for _, w := range warnings {
			c.ParseWarnings = append(c.ParseWarnings, sf.file+": "+w)
		}
		*sf.dst = frames
	}

	// Derive spectra from the captured signals when no frames were recorded.
	if n := sc.Params.FFTSize; n > 0 {
		if sc.SpectrumSource == nil && len(sc.Source) >= n {
			sc.SpectrumSource = analysis.PowerFrames(sc.Source, n)
		}
		if sc.SpectrumOut == nil && len(sc.Out) >= n {
			sc.SpectrumOut = analysis.PowerFrames(sc.Out, n)
		}
	}

	t, err := LoadTransition(filepath.Join(dir, TransitionFile))
	switch {
	case err == nil:
		sc.Transition = t
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	if items := sc.Params.Items; items > 0 && samples.Rows != items {
		c.ParseWarnings = append(c.ParseWarnings, fmt.Sprintf("Warning: params declare %d items, samples file has %d rows.", items, samples.Rows))
	}
	c.Scenario = sc
	log.Printf("Loaded capture %s: %d samples, columns %v, %d warnings", sc.Name, samples.Rows, samples.Columns, len(c.ParseWarnings))
	return c, nil
}

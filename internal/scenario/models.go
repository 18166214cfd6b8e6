package scenario

import (
	"errors"
	"fmt"

	"github.com/user/pll_qa_go/internal/control"
)

// Channel names the semantic kind of a captured sample series.
type Channel string

const (
	ChannelOut         Channel = "out"  // complex loop output
	ChannelFreq        Channel = "freq" // frequency estimate (Hz)
	ChannelPhaseError  Channel = "pe"   // phase error (rad)
	ChannelAccumulator Channel = "pa"   // raw N-bit phase accumulator
	ChannelSource      Channel = "src"  // reference input fed to the device
	ChannelTime        Channel = "time"
)

// Series kinds. Indices map 1:1 onto the uniform time grid t[i] = i / SampleRate.
type (
	ComplexSeries     []complex128
	RealSeries        []float64
	AccumulatorSeries []int64 // N-bit value left-aligned in the 64-bit word
)

var (
	ErrSampleRate = errors.New("sample rate must be positive")
	ErrBitWidth   = errors.New("accumulator bit width out of range")
	ErrOrder      = errors.New("loop order must be 2 or 3")
	ErrItems      = errors.New("item count too small")
	ErrFFTSize    = errors.New("fft size must be even and non-negative")
)

const (
	MinBits = 2
	MaxBits = 64
)

// Coefficients holds the loop filter gains for both supported orders.
// The suffix is the filter order the coefficient belongs to.
type Coefficients struct {
	Coeff1_2 float64 `json:"coeff1_2"`
	Coeff2_2 float64 `json:"coeff2_2"`
	Coeff2_4 float64 `json:"coeff2_4"`
	Coeff1_3 float64 `json:"coeff1_3"`
	Coeff2_3 float64 `json:"coeff2_3"`
	Coeff3_3 float64 `json:"coeff3_3"`
}

// Parameters describes one run of the device under test.
type Parameters struct {
	SampleRate      float64      `json:"samp_rate"`
	N               int          `json:"n"`
	Order           int          `json:"order"`
	Coefficients    Coefficients `json:"coefficients"`
	CenterFrequency float64      `json:"f_central"`
	Bandwidth       float64      `json:"bw"`
	Amplitude       float64      `json:"amplitude"`
	Frequency       float64      `json:"freq"`
	Noise           float64      `json:"noise"`
	Items           int          `json:"items"`
	FFTSize         int          `json:"fft_size"`

	// Frequency sweep input, zero when the input is a fixed tone.
	FrequencyMin float64 `json:"freq_min,omitempty"`
	FrequencyMax float64 `json:"freq_max,omitempty"`
	SweepRate    float64 `json:"sweep,omitempty"`

	// Phase converter ramp bounds (rad).
	MinValue float64 `json:"min_value,omitempty"`
	MaxValue float64 `json:"max_value,omitempty"`
}

// Validate checks the invariants every analysis relies on.
func (p Parameters) Validate() error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("%w: %v", ErrSampleRate, p.SampleRate)
	}
	if p.N < MinBits || p.N > MaxBits {
		return fmt.Errorf("%w: N=%d (want %d..%d)", ErrBitWidth, p.N, MinBits, MaxBits)
	}
	if p.Order != 0 && p.Order != 2 && p.Order != 3 {
		return fmt.Errorf("%w: %d", ErrOrder, p.Order)
	}
	if p.Items != 0 && p.Items < 2 {
		return fmt.Errorf("%w: %d", ErrItems, p.Items)
	}
	if p.FFTSize < 0 || p.FFTSize%2 != 0 {
		return fmt.Errorf("%w: %d", ErrFFTSize, p.FFTSize)
	}
	return nil
}

// IsSweep reports whether the input was a frequency sweep.
func (p Parameters) IsSweep() bool {
	return p.SweepRate != 0 && p.FrequencyMax != p.FrequencyMin
}

// Expectations are the pass criteria the reference campaign applies to a run.
type Expectations struct {
	CheckLock        bool    `json:"check_lock"`
	Lock             bool    `json:"lock"` // false: the loop must never settle
	FreqTarget       float64 `json:"freq_target,omitempty"`
	FreqTolerance    float64 `json:"freq_tolerance,omitempty"`
	CheckAccumulator bool    `json:"check_accumulator"`
	ResetIndex       int     `json:"reset_index"`
	SwitchOrder      int     `json:"switch_order,omitempty"`
	AveragingWindow  int     `json:"averaging_window,omitempty"`
}

// DefaultExpectations expects lock on every channel and a valid accumulator.
func DefaultExpectations() Expectations {
	return Expectations{
		CheckLock:        true,
		Lock:             true,
		CheckAccumulator: true,
		ResetIndex:       -1,
	}
}

// Scenario aggregates the parameters and captured series of one run.
type Scenario struct {
	Name        string
	Description string
	Params      Parameters
	Expect      Expectations

	Out         ComplexSeries
	Freq        RealSeries
	PhaseError  RealSeries
	Accumulator AccumulatorSeries
	Source      ComplexSeries
	SourceReal  RealSeries // real-valued inputs (phase converter ramp)

	// Raw spectrum frames in FFT order, one frame per row.
	SpectrumSource [][]float64
	SpectrumOut    [][]float64

	Transition *control.Transition

	time RealSeries
}

// New creates an empty scenario for the given parameters.
func New(name string, params Parameters) *Scenario {
	return &Scenario{
		Name:   name,
		Params: params,
		Expect: DefaultExpectations(),
	}
}

// Len is the nominal sample count: the longest captured series.
func (s *Scenario) Len() int {
	n := 0
	for _, l := range []int{len(s.Out), len(s.Freq), len(s.PhaseError), len(s.Accumulator), len(s.Source), len(s.SourceReal)} {
		if l > n {
			n = l
		}
	}
	return n
}

// Time returns the time axis t[i] = i / SampleRate. It is derived on first use.
func (s *Scenario) Time() RealSeries {
	if s.time == nil || len(s.time) != s.Len() {
		s.time = TimeAxis(s.Len(), s.Params.SampleRate)
	}
	return s.time
}

// TimeAxis builds n points spaced 1/sampleRate apart, starting at zero.
func TimeAxis(n int, sampleRate float64) RealSeries {
	t := make(RealSeries, n)
	if sampleRate <= 0 {
		return t
	}
	for i := range t {
		t[i] = float64(i) / sampleRate
	}
	return t
}

// Real splits the real parts out of a complex series.
func (c ComplexSeries) Real() RealSeries {
	out := make(RealSeries, len(c))
	for i, v := range c {
		out[i] = real(v)
	}
	return out
}

// Imag splits the imaginary parts out of a complex series.
func (c ComplexSeries) Imag() RealSeries {
	out := make(RealSeries, len(c))
	for i, v := range c {
		out[i] = imag(v)
	}
	return out
}

// Float converts raw accumulator words for plotting.
func (a AccumulatorSeries) Float() RealSeries {
	out := make(RealSeries, len(a))
	for i, v := range a {
		out[i] = float64(v)
	}
	return out
}

// RealTolerance defines "settled" as |sample - Target| <= |Bound|.
type RealTolerance struct {
	Target float64
	Bound  float64
}

// ComplexTolerance applies Bound to the real and imaginary deviations
// independently.
type ComplexTolerance struct {
	Target complex128
	Bound  float64
}

// SpectralSnapshot is one power-spectrum frame re-centred so that index 0 is
// the most negative frequency.
type SpectralSnapshot struct {
	Power      []float64 // dB
	Bins       []float64 // Hz, -fs/2 .. +fs/2
	BinSpacing float64   // Hz per bin
	CNR        float64   // dB
}

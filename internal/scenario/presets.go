package scenario

import (
	"fmt"
	"math"
	"sort"
)

// Preset is a named scenario definition from the qualification campaign.
type Preset struct {
	Name        string
	Description string
	Params      Parameters
	Expect      Expectations
}

// baseLoop holds the loop filter configuration shared by every PLL preset.
func baseLoop() Parameters {
	return Parameters{
		Order: 2,
		Coefficients: Coefficients{
			Coeff1_2: 0.021,
			Coeff2_2: 0.000022,
			Coeff2_4: 1,
			Coeff1_3: 0.0038,
			Coeff2_3: 0.000002,
			Coeff3_3: 0.0000000009,
		},
		CenterFrequency: 500,
		Bandwidth:       500,
		Amplitude:       1,
		N:               38,
		FFTSize:         1024,
		SampleRate:      4096 * 4,
		Items:           4096 * 2,
	}
}

func toneExpect(lock bool, freq float64) Expectations {
	e := DefaultExpectations()
	e.Lock = lock
	e.FreqTarget = freq
	e.FreqTolerance = freq * 0.05
	return e
}

var presets = map[string]func() Preset{
	"pll_in_band": func() Preset {
		p := baseLoop()
		p.Frequency = 750
		return Preset{"pll_in_band", "input sine without noise in the central bandwidth of the loop", p, toneExpect(true, p.Frequency)}
	},
	"pll_band_edge": func() Preset {
		p := baseLoop()
		p.Frequency = 750
		p.Items = 4096 * 6
		return Preset{"pll_band_edge", "input sine without noise at the boundary of the loop bandwidth", p, toneExpect(true, p.Frequency)}
	},
	"pll_out_of_band": func() Preset {
		p := baseLoop()
		p.Frequency = 1001
		p.Items = 4096 * 8
		return Preset{"pll_out_of_band", "input sine without noise outside the loop bandwidth, unlock expected", p, toneExpect(false, p.Frequency)}
	},
	"pll_reset": func() Preset {
		p := baseLoop()
		p.Bandwidth = 1000
		p.Frequency = 550
		e := toneExpect(true, p.Frequency)
		e.ResetIndex = p.Items / 2
		e.CheckLock = false
		e.CheckAccumulator = false
		return Preset{"pll_reset", "reset tag in the middle of the run: loop returns to the central frequency and clears the accumulator", p, e}
	},
	"pll_order_switch": func() Preset {
		p := baseLoop()
		p.Bandwidth = 1500
		p.SampleRate = 4096
		p.Items = 4096 * 6
		p.Frequency = 600
		e := toneExpect(true, p.Frequency)
		e.SwitchOrder = 3
		return Preset{"pll_order_switch", "switch from the second order to the third order while running", p, e}
	},
	"pll_sweep": func() Preset {
		p := baseLoop()
		p.SampleRate = 4096 * 40
		p.Items = 4096 * 80
		p.FrequencyMin = 0
		p.FrequencyMax = 1000
		p.SweepRate = 1000
		mid := (p.FrequencyMax - p.FrequencyMin) / 2
		return Preset{"pll_sweep", "frequency sweep input", p, toneExpect(true, mid)}
	},
	"pc_wrapping": func() Preset {
		return phaseConverter("pc_wrapping", "phase converter wrapping test", 38)
	},
	"pc_precision": func() Preset {
		return phaseConverter("pc_precision", "phase converter precision test", 4)
	},
}

func phaseConverter(name, desc string, n int) Preset {
	p := Parameters{
		SampleRate: 4096,
		Items:      4096 * 2,
		N:          n,
		MaxValue:   2 * math.Pi,
		MinValue:   -2 * math.Pi,
	}
	e := Expectations{CheckAccumulator: true, ResetIndex: -1}
	return Preset{name, desc, p, e}
}

// Lookup returns the preset with the given name.
func Lookup(name string) (Preset, error) {
	fn, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown preset %q", name)
	}
	return fn(), nil
}

// PresetNames lists the catalogue in a stable order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Scenario instantiates an empty scenario from the preset.
func (p Preset) Scenario() *Scenario {
	sc := New(p.Name, p.Params)
	sc.Description = p.Description
	sc.Expect = p.Expect
	return sc
}

// IsPLL reports whether the scenario drives the loop rather than the bare
// phase converter.
func (s *Scenario) IsPLL() bool {
	return s.Params.Order != 0
}

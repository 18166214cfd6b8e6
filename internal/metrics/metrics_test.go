package metrics

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/pll_qa_go/internal/analysis"
	"github.com/user/pll_qa_go/internal/scenario"
)

func TestObserveAndWriteTextfile(t *testing.T) {
	m := New()
	m.Observe(&analysis.Verdict{
		Scenario:    "pll_in_band",
		Params:      scenario.Parameters{SampleRate: 1000},
		Out:         &analysis.ComplexSettlingResult{Index: 250, Locked: true},
		Freq:        &analysis.SettlingResult{Index: analysis.NeverSettles, PeakError: math.Inf(1)},
		SpectrumOut: &scenario.SpectralSnapshot{CNR: 31.5},
		Failures:    []string{"output 'freq' never settles"},
	}, 3*time.Millisecond)

	path := filepath.Join(t.TempDir(), "pllqa.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(data)

	for _, want := range []string{
		`pllqa_scenarios_total 1`,
		`pllqa_scenario_pass{scenario="pll_in_band"} 0`,
		`pllqa_failures_total{scenario="pll_in_band"} 1`,
		`pllqa_settling_time_seconds{channel="out",scenario="pll_in_band"} 0.25`,
		`pllqa_settling_time_seconds{channel="freq",scenario="pll_in_band"} +Inf`,
		`pllqa_cnr_db{scenario="pll_in_band",signal="out"} 31.5`,
		`pllqa_evaluation_duration_seconds_count 1`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
	if strings.Contains(text, "pllqa_accumulator_min_step_radians{") {
		t.Error("accumulator gauge set without accumulator result")
	}
}

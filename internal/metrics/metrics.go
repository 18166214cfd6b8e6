package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/user/pll_qa_go/internal/analysis"
	"github.com/user/pll_qa_go/internal/scenario"
)

// Metrics holds the gauges describing the last verification run. The
// registry is private so a run can be exported as a node_exporter textfile.
type Metrics struct {
	Registry *prometheus.Registry

	ScenariosTotal     prometheus.Counter
	FailuresByScenario *prometheus.CounterVec
	EvalDuration       prometheus.Histogram

	Pass          *prometheus.GaugeVec
	SettlingTime  *prometheus.GaugeVec
	AccumMinStep  *prometheus.GaugeVec
	AccumSlope    *prometheus.GaugeVec
	CarrierNoise  *prometheus.GaugeVec
	SwitchSeconds *prometheus.GaugeVec
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,

		ScenariosTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "pllqa_scenarios_total",
			Help: "Number of scenarios evaluated",
		}),
		FailuresByScenario: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pllqa_failures_total",
				Help: "Number of failed expectations per scenario",
			},
			[]string{"scenario"},
		),
		EvalDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pllqa_evaluation_duration_seconds",
			Help:    "Wall time spent evaluating one scenario",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),

		Pass: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pllqa_scenario_pass",
				Help: "1 if every expectation of the scenario held, else 0",
			},
			[]string{"scenario"},
		),
		SettlingTime: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pllqa_settling_time_seconds",
				Help: "Settling time per output channel, +Inf when the channel never settles",
			},
			[]string{"scenario", "channel"},
		),
		AccumMinStep: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pllqa_accumulator_min_step_radians",
				Help: "Smallest phase accumulator step",
			},
			[]string{"scenario"},
		),
		AccumSlope: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pllqa_accumulator_slope_radians",
				Help: "Mean phase accumulator slope per sample",
			},
			[]string{"scenario"},
		),
		CarrierNoise: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pllqa_cnr_db",
				Help: "Carrier to noise ratio of the final spectrum frame",
			},
			[]string{"scenario", "signal"},
		),
		SwitchSeconds: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pllqa_order_switch_seconds",
				Help: "Simulation time at which the loop order changed",
			},
			[]string{"scenario"},
		),
	}
}

// Observe records one verdict.
func (m *Metrics) Observe(v *analysis.Verdict, took time.Duration) {
	name := v.Scenario
	fs := v.Params.SampleRate

	m.ScenariosTotal.Inc()
	m.EvalDuration.Observe(took.Seconds())
	m.FailuresByScenario.WithLabelValues(name).Add(float64(len(v.Failures)))
	if v.Pass() {
		m.Pass.WithLabelValues(name).Set(1)
	} else {
		m.Pass.WithLabelValues(name).Set(0)
	}

	if v.Out != nil {
		m.SettlingTime.WithLabelValues(name, string(scenario.ChannelOut)).Set(v.Out.TimeMs(fs) / 1000)
	}
	if v.PhaseError != nil {
		m.SettlingTime.WithLabelValues(name, string(scenario.ChannelPhaseError)).Set(v.PhaseError.TimeMs(fs) / 1000)
	}
	if v.Freq != nil {
		m.SettlingTime.WithLabelValues(name, string(scenario.ChannelFreq)).Set(v.Freq.TimeMs(fs) / 1000)
	}
	if a := v.Accumulator; a != nil {
		m.AccumMinStep.WithLabelValues(name).Set(a.MinimumStepRad)
		m.AccumSlope.WithLabelValues(name).Set(a.MeanSlopeRad)
	}
	if s := v.SpectrumSource; s != nil {
		m.CarrierNoise.WithLabelValues(name, string(scenario.ChannelSource)).Set(s.CNR)
	}
	if s := v.SpectrumOut; s != nil {
		m.CarrierNoise.WithLabelValues(name, string(scenario.ChannelOut)).Set(s.CNR)
	}
	if v.Switch != nil {
		m.SwitchSeconds.WithLabelValues(name).Set(v.Switch.TimeSec)
	}
}

// WriteTextfile writes the registry in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}

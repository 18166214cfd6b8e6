package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/user/pll_qa_go/internal/analysis"
	"github.com/user/pll_qa_go/internal/metrics"
	"github.com/user/pll_qa_go/internal/parser"
	"github.com/user/pll_qa_go/internal/report"
	"github.com/user/pll_qa_go/internal/scenario"
	"github.com/user/pll_qa_go/internal/store"
	"github.com/user/pll_qa_go/internal/telemetry"
)

var ErrNoCaptures = errors.New("no capture directories given")

// Config selects the captures to verify and where results go. Empty output
// paths disable that output.
type Config struct {
	Captures    []string
	Preset      string // used for captures without params.json
	Label       string
	Title       string
	PDFPath     string
	DBPath      string
	MetricsPath string
	Options     analysis.Options
}

// Outcome is the result for one capture. Err is set when the capture could
// not be loaded or evaluated.
type Outcome struct {
	Capture  string
	Scenario string
	Verdict  *analysis.Verdict
	Warnings []string
	Err      error

	sc   *scenario.Scenario
	took time.Duration
}

// Summary is the result of a whole run.
type Summary struct {
	RunID    string
	Outcomes []Outcome
	Passed   int
	Failed   int
	Errored  int
}

// OK reports whether every capture was evaluated and passed.
func (s *Summary) OK() bool {
	return s.Failed == 0 && s.Errored == 0
}

// StatusFunc receives progress messages.
type StatusFunc func(string)

// Run verifies every capture in order. A capture that fails to load is
// recorded in the summary and the run continues; output errors abort.
func Run(ctx context.Context, cfg Config, status StatusFunc) (*Summary, error) {
	if len(cfg.Captures) == 0 {
		return nil, ErrNoCaptures
	}
	if status == nil {
		status = func(msg string) { log.Println(msg) }
	}
	if cfg.Title == "" {
		cfg.Title = "PLL Verification Report"
	}

	sum := &Summary{RunID: uuid.New().String()}
	ctx, span := telemetry.StartSpan(ctx, "verify.run", telemetry.AttrRunID.String(sum.RunID))
	defer span.End()

	var builder *report.Builder
	if cfg.PDFPath != "" {
		builder = report.NewBuilder(cfg.Title, cfg.Options)
		builder.RunID = sum.RunID
	}

	var history *store.Store
	if cfg.DBPath != "" {
		var err error
		if history, err = store.NewStore(cfg.DBPath); err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		defer history.Close()
		if _, err := history.StartRun(sum.RunID, cfg.Label); err != nil {
			return nil, err
		}
	}

	var m *metrics.Metrics
	if cfg.MetricsPath != "" {
		m = metrics.New()
	}

	for _, dir := range cfg.Captures {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		out := verifyCapture(ctx, dir, cfg, status)
		switch {
		case out.Err != nil:
			sum.Errored++
			status(fmt.Sprintf("Error in %s: %v", dir, out.Err))
			sum.Outcomes = append(sum.Outcomes, out)
			continue
		case out.Verdict.Pass():
			sum.Passed++
		default:
			sum.Failed++
		}

		if builder != nil {
			// The scenario is only needed while its plots render.
			if err := builder.AddScenario(out.sc, out.Verdict); err != nil {
				status(fmt.Sprintf("Report: %v", err))
			}
		}
		if history != nil {
			if _, err := history.Record(sum.RunID, out.Verdict); err != nil {
				return sum, fmt.Errorf("failed to record verdict: %w", err)
			}
		}
		if m != nil {
			m.Observe(out.Verdict, out.took)
		}
		out.sc = nil
		sum.Outcomes = append(sum.Outcomes, out)
	}

	if builder != nil {
		status(fmt.Sprintf("Generating PDF: %s...", cfg.PDFPath))
		if err := builder.Flush(cfg.PDFPath); err != nil {
			telemetry.RecordError(span, err)
			return sum, fmt.Errorf("failed to generate PDF report: %w", err)
		}
	}
	if m != nil {
		if err := m.WriteTextfile(cfg.MetricsPath); err != nil {
			return sum, fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	span.SetAttributes(telemetry.AttrPass.Bool(sum.OK()))
	return sum, nil
}

// verifyCapture loads and evaluates one capture directory.
func verifyCapture(ctx context.Context, dir string, cfg Config, status StatusFunc) Outcome {
	out := Outcome{Capture: dir}
	ctx, span := telemetry.StartSpan(ctx, "verify.capture", telemetry.AttrCapture.String(dir))
	defer span.End()

	status(fmt.Sprintf("Loading capture: %s", dir))
	c, err := parser.LoadCapture(dir, parser.LoadOptions{Preset: cfg.Preset})
	if err != nil {
		telemetry.RecordError(span, err)
		out.Err = err
		return out
	}
	out.sc = c.Scenario
	out.Scenario = c.Scenario.Name
	out.Warnings = c.ParseWarnings
	if len(c.ParseWarnings) > 0 {
		status("Parsing Warnings/Errors:")
		for _, w := range c.ParseWarnings {
			status(fmt.Sprintf("- %s", w))
		}
	}

	opts := cfg.Options
	if w := c.Scenario.Expect.AveragingWindow; w > 0 {
		opts.AveragingWindow = w
	}

	status(fmt.Sprintf("Analyzing %s (%d samples)...", c.Scenario.Name, c.Scenario.Len()))
	start := time.Now()
	v, err := analysis.EvaluateScenario(ctx, c.Scenario, opts)
	out.took = time.Since(start)
	if err != nil {
		telemetry.RecordError(span, err)
		out.Err = err
		return out
	}
	out.Verdict = v
	span.SetAttributes(telemetry.ScenarioAttributes("", v.Scenario, v.Pass())...)

	if v.Pass() {
		status(fmt.Sprintf("%s: PASS", v.Scenario))
	} else {
		status(fmt.Sprintf("%s: FAIL", v.Scenario))
		for _, f := range v.Failures {
			status(fmt.Sprintf("- %s", f))
		}
	}
	return out
}

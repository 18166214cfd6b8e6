package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/user/pll_qa_go/internal/analysis"
	"github.com/user/pll_qa_go/internal/runner"
	"github.com/user/pll_qa_go/internal/scenario"
	"github.com/user/pll_qa_go/internal/store"
	"github.com/user/pll_qa_go/internal/telemetry"
)

var (
	// Global flags
	dbPath  string
	verbose bool

	// verify flags
	captures     []string
	presetName   string
	label        string
	pdfPath      string
	metricsPath  string
	otlpEndpoint string
	runLength    int
	window       int

	// history flags
	limit int
)

var errVerifyFailed = errors.New("verification failed")

func main() {
	rootCmd := &cobra.Command{
		Use:   "pll_qa",
		Short: "Verification oracle for PLL and phase converter captures",
		Long: `Evaluates captured loop outputs against the expectations of each test
scenario and reports settling times, accumulator precision and spectral purity.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !verbose {
				log.SetOutput(io.Discard)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite history database (empty: no history)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(presetsCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// mark colours PASS/FAIL when stdout is a terminal.
func mark(pass bool) string {
	colour := term.IsTerminal(int(os.Stdout.Fd()))
	switch {
	case pass && colour:
		return "\x1b[32mPASS\x1b[0m"
	case pass:
		return "PASS"
	case colour:
		return "\x1b[31mFAIL\x1b[0m"
	}
	return "FAIL"
}

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [capture-dir...]",
		Short: "Evaluate capture directories and write the report",
		Long: `Loads each capture directory (params.json, samples.csv and the optional
spectrum and transition files), evaluates it and prints one line per scenario.
Exits non-zero when any scenario fails or cannot be loaded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			if otlpEndpoint != "" {
				cfg := telemetry.DefaultConfig("pll-qa")
				cfg.CollectorEndpoint = otlpEndpoint
				tp, err := telemetry.InitTracer(ctx, cfg)
				if err != nil {
					return err
				}
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := telemetry.Shutdown(sctx, tp); err != nil {
						log.Printf("tracer shutdown: %v", err)
					}
				}()
			}

			opts := analysis.DefaultOptions()
			if runLength > 0 {
				opts.RunLength = runLength
			}
			if window > 0 {
				opts.AveragingWindow = window
			}
			cfg := runner.Config{
				Captures:    append(append([]string(nil), captures...), args...),
				Preset:      presetName,
				Label:       label,
				PDFPath:     pdfPath,
				DBPath:      dbPath,
				MetricsPath: metricsPath,
				Options:     opts,
			}
			status := func(msg string) { log.Println(msg) }

			sum, err := runner.Run(ctx, cfg, status)
			if sum != nil {
				printSummary(sum)
			}
			if err != nil {
				return err
			}
			if !sum.OK() {
				return fmt.Errorf("%w: %d failed, %d errored", errVerifyFailed, sum.Failed, sum.Errored)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&captures, "capture", "c", nil, "Capture directory (repeatable)")
	cmd.Flags().StringVarP(&presetName, "preset", "p", "", "Preset for captures without params.json")
	cmd.Flags().StringVar(&label, "label", "", "Label stored with the run")
	cmd.Flags().StringVarP(&pdfPath, "pdf", "o", "", "PDF report path (empty: no report)")
	cmd.Flags().StringVar(&metricsPath, "metrics", "", "Prometheus textfile path (empty: no metrics)")
	cmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC collector endpoint (empty: no tracing)")
	cmd.Flags().IntVar(&runLength, "run-length", 0, fmt.Sprintf("Out-of-tolerance run length that resets settling (default %d)", analysis.DefaultRunLength))
	cmd.Flags().IntVar(&window, "window", 0, fmt.Sprintf("Accumulator averaging window (default %d)", analysis.DefaultAveragingWindow))

	return cmd
}

func printSummary(sum *runner.Summary) {
	fmt.Printf("=== Run %s ===\n", sum.RunID)
	for _, o := range sum.Outcomes {
		if o.Err != nil {
			fmt.Printf("ERROR %-24s %v\n", o.Capture, o.Err)
			continue
		}
		v := o.Verdict
		fmt.Printf("%s  %-24s", mark(v.Pass()), o.Scenario)
		fs := v.Params.SampleRate
		if v.Out != nil {
			fmt.Printf("  out %s", formatMs(v.Out.TimeMs(fs)))
		}
		if v.Freq != nil {
			fmt.Printf("  freq %s", formatMs(v.Freq.TimeMs(fs)))
		}
		if v.Accumulator != nil {
			fmt.Printf("  step %.4g rad", v.Accumulator.MinimumStepRad)
		}
		fmt.Println()
		for _, f := range v.Failures {
			fmt.Printf("      - %s\n", f)
		}
	}
	fmt.Printf("\n%d passed, %d failed, %d errored\n", sum.Passed, sum.Failed, sum.Errored)
}

func formatMs(v float64) string {
	switch {
	case math.IsNaN(v):
		return "-"
	case math.IsInf(v, 1):
		return "never"
	}
	return fmt.Sprintf("%.3f ms", v)
}

func presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the built-in scenario presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range scenario.PresetNames() {
				p, err := scenario.Lookup(name)
				if err != nil {
					return err
				}
				kind := "pll"
				if p.Params.Order == 0 {
					kind = "pc"
				}
				fmt.Printf("%-22s %-3s N=%-3d %s\n", p.Name, kind, p.Params.N, p.Description)
			}
			return nil
		},
	}
}

func openHistory() (*store.Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("--db is required")
	}
	return store.NewStore(dbPath)
}

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded verification runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openHistory()
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Printf("%s  %s  %s\n", r.RunID, r.StartedAt.Format(time.RFC3339), r.Label)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs")
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <scenario|run-id>",
		Short: "Show recorded verdicts for a scenario or a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openHistory()
			if err != nil {
				return err
			}
			defer db.Close()

			records, err := db.History(args[0], limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				if records, err = db.RunVerdicts(args[0]); err != nil {
					return err
				}
			}
			if len(records) == 0 {
				return fmt.Errorf("no verdicts recorded for %q", args[0])
			}
			for _, r := range records {
				fmt.Printf("%s  %s  %-22s out %s  pe %s  freq %s  step %.4g rad\n",
					r.CreatedAt.Format(time.RFC3339), mark(r.Pass), r.Scenario,
					formatMs(r.OutSettleMs), formatMs(r.PESettleMs), formatMs(r.FreqSettleMs), r.MinStepRad)
				if len(r.Failures) > 0 {
					fmt.Printf("      %s\n", strings.Join(r.Failures, "; "))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of verdicts")
	return cmd
}

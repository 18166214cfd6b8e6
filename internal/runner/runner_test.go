package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/pll_qa_go/internal/analysis"
	"github.com/user/pll_qa_go/internal/parser"
	"github.com/user/pll_qa_go/internal/store"
)

// writeLockedCapture writes a pll_in_band capture whose outputs settle after
// 20 samples.
func writeLockedCapture(t *testing.T, dir string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("out_re,out_im,freq,pe,pa\n")
	step := int64(1) << 26
	for i := 0; i < 400; i++ {
		if i < 20 {
			fmt.Fprintf(&b, "0.2,0.5,500,1,%d\n", int64(i)*3*step)
			continue
		}
		fmt.Fprintf(&b, "1,0,750,0.01,%d\n", int64(i)*3*step)
	}
	files := map[string]string{
		parser.ParamsFile:  `{"name": "bench_locked", "preset": "pll_in_band"}`,
		parser.SamplesFile: b.String(),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestRunWritesOutputs(t *testing.T) {
	good := t.TempDir()
	writeLockedCapture(t, good)
	out := t.TempDir()

	cfg := Config{
		Captures:    []string{good, filepath.Join(out, "missing")},
		Label:       "nightly",
		PDFPath:     filepath.Join(out, "report.pdf"),
		DBPath:      filepath.Join(out, "history.db"),
		MetricsPath: filepath.Join(out, "pllqa.prom"),
		Options:     analysis.DefaultOptions(),
	}
	var messages []string
	sum, err := Run(context.Background(), cfg, func(msg string) { messages = append(messages, msg) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Passed != 1 || sum.Failed != 0 || sum.Errored != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.OK() {
		t.Fatal("a capture that failed to load must fail the run")
	}
	if len(sum.Outcomes) != 2 || sum.Outcomes[0].Scenario != "bench_locked" || sum.Outcomes[1].Err == nil {
		t.Fatalf("outcomes = %+v", sum.Outcomes)
	}
	if sum.Outcomes[0].sc != nil {
		t.Fatal("scenario data must be released after the run")
	}
	if len(messages) == 0 {
		t.Fatal("expected status messages")
	}

	for _, p := range []string{cfg.PDFPath, cfg.DBPath, cfg.MetricsPath} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
	}

	db, err := store.NewStore(cfg.DBPath)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer db.Close()
	runs, err := db.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != sum.RunID || runs[0].Label != "nightly" {
		t.Fatalf("runs = %+v", runs)
	}
	verdicts, err := db.RunVerdicts(sum.RunID)
	if err != nil {
		t.Fatalf("RunVerdicts: %v", err)
	}
	if len(verdicts) != 1 || !verdicts[0].Pass || verdicts[0].Scenario != "bench_locked" {
		t.Fatalf("verdicts = %+v", verdicts)
	}
}

func TestRunNoCaptures(t *testing.T) {
	if _, err := Run(context.Background(), Config{}, nil); !errors.Is(err, ErrNoCaptures) {
		t.Fatalf("err = %v, want ErrNoCaptures", err)
	}
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	writeLockedCapture(t, dir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := Run(ctx, Config{Captures: []string{dir}, Options: analysis.DefaultOptions()}, func(string) {})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(sum.Outcomes) != 0 {
		t.Fatalf("outcomes = %+v", sum.Outcomes)
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/user/pll_qa_go/internal/analysis"
	"github.com/user/pll_qa_go/internal/runner"
	"github.com/user/pll_qa_go/internal/scenario"
)

// App struct
type App struct {
	ctx context.Context

	mu     sync.Mutex
	cancel context.CancelFunc // set while a verification runs
}

// NewApp creates a new App application struct
func NewApp() *App {
	return &App{}
}

// Startup is called when the app starts. The context is saved
// so we can call the runtime methods
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx
	runtime.WindowSetTitle(a.ctx, windowTitle)
}

func (a *App) running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

// BeforeClose asks for confirmation while a verification is running. It
// returns true to keep the window open.
func (a *App) BeforeClose(ctx context.Context) bool {
	if !a.running() {
		return false
	}
	choice, err := runtime.MessageDialog(ctx, runtime.MessageDialogOptions{
		Type:          runtime.QuestionDialog,
		Title:         "Verification running",
		Message:       "A verification is still running. Quit anyway? The report will not be written.",
		Buttons:       []string{"Quit", "Keep running"},
		DefaultButton: "Keep running",
	})
	if err != nil {
		log.Printf("close dialog: %v", err)
		return false
	}
	return choice != "Quit"
}

// Shutdown cancels a verification still in progress.
func (a *App) Shutdown(ctx context.Context) {
	a.CancelVerify()
}

func (a *App) sendStatus(message string) {
	if a.ctx != nil {
		runtime.EventsEmit(a.ctx, "statusUpdate", message)
	}
	log.Println(message)
}

func (a *App) clearLog() {
	if a.ctx != nil {
		runtime.EventsEmit(a.ctx, "clearLog")
	}
}

func (a *App) complete(ok bool, msg string) {
	a.sendStatus(msg)
	if a.ctx != nil {
		runtime.EventsEmit(a.ctx, "generationComplete", ok, msg)
	}
}

// ListPresets returns the preset names for the preset selector.
func (a *App) ListPresets() []string {
	return scenario.PresetNames()
}

// SelectCaptureDirectory opens a native directory picker.
func (a *App) SelectCaptureDirectory() (string, error) {
	return runtime.OpenDirectoryDialog(a.ctx, runtime.OpenDialogOptions{
		Title: "Select capture directory",
	})
}

// SelectReportPath opens a native save dialog for the PDF report.
func (a *App) SelectReportPath() (string, error) {
	return runtime.SaveFileDialog(a.ctx, runtime.SaveDialogOptions{
		Title:           "Save report",
		DefaultFilename: "pll_report.pdf",
		Filters:         []runtime.FileFilter{{DisplayName: "PDF (*.pdf)", Pattern: "*.pdf"}},
	})
}

// CancelVerify stops the running verification after the current capture.
func (a *App) CancelVerify() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// HandleVerify is called from the frontend to verify the capture
// directories (one per line) and write the PDF report. Progress is reported
// through events; the return value only acknowledges the request.
func (a *App) HandleVerify(captureDirs string, pdfFilePath string, dbFilePath string, preset string) (string, error) {
	var dirs []string
	for _, d := range strings.Split(captureDirs, "\n") {
		if d = strings.TrimSpace(d); d != "" {
			dirs = append(dirs, d)
		}
	}
	if len(dirs) == 0 {
		return "", runner.ErrNoCaptures
	}
	if pdfFilePath == "" {
		return "", fmt.Errorf("a PDF report path is required")
	}

	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		return "", fmt.Errorf("a verification is already running")
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.cancel = cancel
	a.mu.Unlock()

	a.clearLog()
	a.sendStatus(fmt.Sprintf("Request: %d capture(s), PDF=[%s], preset=[%s]", len(dirs), pdfFilePath, preset))

	go func() { // keep the UI responsive
		defer func() {
			a.mu.Lock()
			a.cancel = nil
			a.mu.Unlock()
			cancel()
		}()
		defer func() {
			if r := recover(); r != nil {
				a.complete(false, fmt.Sprintf("PANIC recovered: %v", r))
			}
		}()

		runtime.EventsEmit(a.ctx, "generationStart")

		sum, err := runner.Run(ctx, runner.Config{
			Captures: dirs,
			Preset:   preset,
			PDFPath:  pdfFilePath,
			DBPath:   dbFilePath,
			Options:  analysis.DefaultOptions(),
		}, a.sendStatus)
		if err != nil {
			a.complete(false, fmt.Sprintf("Verification aborted: %v", err))
			return
		}
		msg := fmt.Sprintf("%d passed, %d failed, %d errored. Report: %s", sum.Passed, sum.Failed, sum.Errored, pdfFilePath)
		a.complete(sum.OK(), msg)
	}()

	return "Verification started in background.", nil
}

package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/retracehq/retrace/internal/models"
	"github.com/retracehq/retrace/internal/orchestrate"
)

const (
	colCase    = 9
	colName    = 28
	colStatus  = 8
	colVerdict = 9
)

// runReporter prints live case progress and the final run summary to the
// console. It is registered as an orchestrator progress listener, so it
// must tolerate concurrent events from the worker pool.
type runReporter struct {
	mu  sync.Mutex
	out io.Writer
}

func newRunReporter(out io.Writer) *runReporter {
	return &runReporter{out: out}
}

// Observe is an orchestrate.ProgressListener.
func (r *runReporter) Observe(event orchestrate.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.EventType {
	case orchestrate.EventRunStart:
		fmt.Fprintf(r.out, "running %d test case(s)\n\n", event.TotalCases)
	case orchestrate.EventCaseComplete:
		fmt.Fprintf(r.out, "%s %s %s %s %6dms",
			padRight(fmt.Sprintf("[%d/%d]", event.CaseNum, event.TotalCases), colCase),
			padRight(truncateName(event.TestCaseName, colName), colName),
			padRight(statusGlyph(event.Status), colStatus),
			padRight(verdictLabel(event.Verdict), colVerdict),
			event.DurationMs)
		if event.Error != "" {
			fmt.Fprintf(r.out, "  %s", event.Error)
		}
		fmt.Fprintln(r.out)
	case orchestrate.EventRunFailed:
		fmt.Fprintf(r.out, "\nrun failed: %s\n", event.Error)
	case orchestrate.EventRunCancelled:
		fmt.Fprintf(r.out, "\nrun cancelled after %dms\n", event.DurationMs)
	}
}

// PrintSummary renders the terminal state of a run.
func (r *runReporter) PrintSummary(run models.RegressionRun) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "\nrun %s: %s\n", run.ID, run.Status)
	if run.Error != "" {
		fmt.Fprintf(r.out, "error: %s\n", run.Error)
	}
	fmt.Fprintf(r.out, "execution: %d total, %d succeeded, %d failed\n",
		run.TotalCount, run.SuccessCount, run.FailedCount)
	fmt.Fprintf(r.out, "verdicts:  %d passed, %d declined, %d unknown\n",
		run.PassedCount, run.DeclinedCount, run.UnknownCount)
	if run.StartedAt != nil && run.CompletedAt != nil {
		fmt.Fprintf(r.out, "duration:  %s\n", run.CompletedAt.Sub(*run.StartedAt).Round(time.Millisecond))
	}
}

// PollLine renders one status-poll snapshot for server-mode runs.
func (r *runReporter) PollLine(run models.RegressionRun) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "%s  %d/%d done (%d failed)\n",
		padRight(string(run.Status), colStatus+2),
		run.SuccessCount+run.FailedCount, run.TotalCount, run.FailedCount)
}

func statusGlyph(status models.ExecutionStatus) string {
	if status == models.ExecutionSuccess {
		return "ok"
	}
	return "FAILED"
}

func verdictLabel(verdict models.Verdict) string {
	if verdict == "" {
		return "-"
	}
	return string(verdict)
}

// truncateName shortens a name to maxLen runes, replacing the last rune
// with "…" if needed.
func truncateName(name string, maxLen int) string {
	runes := []rune(name)
	if len(runes) <= maxLen {
		return name
	}
	return string(runes[:maxLen-1]) + "…"
}

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}

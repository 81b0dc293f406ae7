package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// ConsoleReporter prints one line per case as it finishes and a summary
// block when the run ends.
type ConsoleReporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleReporter creates a console reporter writing to w.
func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{w: w}
}

func (r *ConsoleReporter) ReportCase(result CaseResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.w, "%-7s %s (%.2fs)\n", result.Status.Display(), result.ID, result.Duration.Seconds())
	if result.Status == XFail || result.Status == XPass {
		fmt.Fprintf(r.w, "        expected failure: %s\n", result.XFailReason)
	}
	if result.Message != "" && result.Status.Failed() {
		for _, line := range strings.Split(strings.TrimRight(result.Message, "\n"), "\n") {
			fmt.Fprintf(r.w, "        %s\n", line)
		}
	}
}

func (r *ConsoleReporter) Close(summary Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintln(r.w, "=========================================")
	fmt.Fprintln(r.w, "      SUITE SUMMARY")
	fmt.Fprintln(r.w, "=========================================")
	fmt.Fprintf(r.w, "Result:     %s\n", summary.Result().Display())
	fmt.Fprintf(r.w, "Duration:   %v\n", summary.Duration)
	fmt.Fprintf(r.w, "Cases:      %d\n", summary.Total)
	fmt.Fprintf(r.w, "Passed:     %d\n", summary.Passed)
	fmt.Fprintf(r.w, "Failed:     %d\n", summary.Failed)
	fmt.Fprintf(r.w, "Errors:     %d\n", summary.Errored)
	if summary.XFailed > 0 {
		fmt.Fprintf(r.w, "XFailed:    %d\n", summary.XFailed)
	}
	if summary.XPassed > 0 {
		fmt.Fprintf(r.w, "XPassed:    %d\n", summary.XPassed)
	}
	fmt.Fprintln(r.w, "=========================================")
	return nil
}

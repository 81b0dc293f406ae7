package report

import "time"

// CaseResult records the outcome of one fixture/format case.
type CaseResult struct {
	// ID is "<fixture>-<format>".
	ID       string
	Fixture  string
	Format   string
	Status   Status
	Duration time.Duration
	// Message carries the failure detail: a unified diff, an XML mismatch
	// path or a build error.
	Message string
	// XFailReason is set for cases marked as expected failures.
	XFailReason string
}

// Summary tallies the case results of one run.
type Summary struct {
	Total    int
	Passed   int
	Failed   int
	XFailed  int
	XPassed  int
	Errored  int
	Duration time.Duration
}

// Summarize counts results by status. The caller sets Duration to the
// wall time of the run.
func Summarize(results []CaseResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case Pass:
			s.Passed++
		case Fail:
			s.Failed++
		case XFail:
			s.XFailed++
		case XPass:
			s.XPassed++
		case Error:
			s.Errored++
		}
	}
	return s
}

// Ok reports whether the suite passed.
func (s Summary) Ok() bool {
	return s.Failed == 0 && s.Errored == 0
}

// Result returns the overall suite status.
func (s Summary) Result() Status {
	if s.Ok() {
		return Pass
	}
	return Fail
}

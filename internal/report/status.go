// Package report carries case results from the engine to the configured
// reporters: console lines with a closing summary, a TAP stream and a JSON
// report.
package report

import "os"

const (
	// Pass means the generated reports matched the references.
	Pass Status = "PASS"
	// Fail means at least one comparison differed.
	Fail Status = "FAIL"
	// XFail means a case expected to fail on this platform failed.
	XFail Status = "XFAIL"
	// XPass means a case expected to fail passed instead.
	XPass Status = "XPASS"
	// Error means the case could not run, e.g. the fixture build broke.
	Error Status = "ERROR"
)

// Status classifies one case outcome.
type Status string

// Display renders the status with ANSI color when a terminal is attached.
func (s Status) Display() string {
	if term, hasTerm := os.LookupEnv("TERM"); !hasTerm || term == "" {
		return string(s)
	}

	red := "\033[31m"
	yellow := "\033[33m"
	blue := "\033[34m"
	green := "\033[32m"
	reset := "\033[0m"

	switch s {
	case Fail, Error:
		return red + string(s) + reset
	case XPass:
		return yellow + string(s) + reset
	case XFail:
		return blue + string(s) + reset
	default:
		return green + string(s) + reset
	}
}

// Failed reports whether the status fails the suite.
func (s Status) Failed() bool {
	return s == Fail || s == Error
}

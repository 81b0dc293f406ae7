// Package summary extracts aggregate coverage numbers from a gcovr JSON
// report. The harness logs them after a passing json case; they never
// influence pass or fail.
package summary

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Summary aggregates one gcovr JSON coverage report.
type Summary struct {
	FormatVersion   string
	Files           int
	LineTotal       int
	LineCovered     int
	FunctionTotal   int
	FunctionCovered int
}

// Parse extracts the aggregate coverage from raw gcovr JSON content. Lines
// flagged "gcovr/noncode" do not count; a line is covered when its count
// is positive.
func Parse(data []byte) (*Summary, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON")
	}
	root := gjson.ParseBytes(data)
	files := root.Get("files")
	if !files.IsArray() {
		return nil, errors.New("no files array, not a gcovr coverage report")
	}

	s := &Summary{FormatVersion: root.Get("gcovr/format_version").String()}
	files.ForEach(func(_, file gjson.Result) bool {
		s.Files++
		file.Get("lines").ForEach(func(_, line gjson.Result) bool {
			if line.Get("gcovr/noncode").Bool() {
				return true
			}
			s.LineTotal++
			if line.Get("count").Int() > 0 {
				s.LineCovered++
			}
			return true
		})
		file.Get("functions").ForEach(func(_, fn gjson.Result) bool {
			s.FunctionTotal++
			if fn.Get("execution_count").Int() > 0 {
				s.FunctionCovered++
			}
			return true
		})
		return true
	})
	return s, nil
}

// LinePercent returns the covered line percentage, 0 when no lines count.
func (s *Summary) LinePercent() float64 {
	if s.LineTotal == 0 {
		return 0
	}
	return 100 * float64(s.LineCovered) / float64(s.LineTotal)
}

// String renders a one-line digest suitable for logging.
func (s *Summary) String() string {
	out := fmt.Sprintf("%d files, lines %d/%d (%.1f%%)", s.Files, s.LineCovered, s.LineTotal, s.LinePercent())
	if s.FunctionTotal > 0 {
		out += fmt.Sprintf(", functions %d/%d", s.FunctionCovered, s.FunctionTotal)
	}
	return out
}

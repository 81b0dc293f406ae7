// Package recipe extracts the available targets from a fixture's Makefile
// and validates the declared run target against them. Only plain rule lines
// are considered; variable expansions, pattern rules and recipe bodies are
// intentionally invisible to the harness.
package recipe

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
)

// targetLine matches a plain Makefile rule line. Target names are word
// characters (plus spaces and dashes for multi-target rules); prerequisite
// lists may additionally contain dots, so "txt: coverage.json" parses while
// "coverage.json:" does not.
var targetLine = regexp.MustCompile(`^(\w[\w -]*):([\s\w.-]*)$`)

// StringSet is a set of strings.
type StringSet map[string]struct{}

// Add inserts v into the set.
func (s StringSet) Add(v string) {
	s[v] = struct{}{}
}

// Has reports whether v is in the set.
func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in sorted order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Targets maps each Makefile target to the set of its prerequisites.
// Repeated rules for the same target accumulate prerequisites.
type Targets map[string]StringSet

// Parse scans Makefile content for rule lines and collects the targets.
func Parse(r io.Reader) (Targets, error) {
	targets := make(Targets)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m := targetLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		deps := strings.Fields(m[2])
		for _, target := range strings.Fields(m[1]) {
			set, ok := targets[target]
			if !ok {
				set = make(StringSet)
				targets[target] = set
			}
			for _, dep := range deps {
				set.Add(dep)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan makefile: %w", err)
	}
	return targets, nil
}

// ParseFile parses the Makefile at path.
func ParseFile(path string) (Targets, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open makefile: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// ValidateRun checks a fixture's run target for consistency with the
// available targets: it may only reference known formats, everything it
// references must exist as a target, and every known format that has a
// target must be referenced. name is used to prefix error messages.
func ValidateRun(name string, targets Targets, known []string) error {
	run := targets["run"]

	knownSet := make(StringSet, len(known))
	for _, format := range known {
		knownSet.Add(format)
	}

	var unknown []string
	for dep := range run {
		if !knownSet.Has(dep) {
			unknown = append(unknown, dep)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%s/Makefile target 'run' references unknown format %v", name, unknown)
	}

	var unresolved []string
	for dep := range run {
		if _, ok := targets[dep]; !ok {
			unresolved = append(unresolved, dep)
		}
	}
	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		return fmt.Errorf("%s/Makefile target 'run' has unresolved prerequisite %v", name, unresolved)
	}

	var unreferenced []string
	for _, format := range known {
		if _, ok := targets[format]; !ok {
			continue
		}
		if !run.Has(format) {
			unreferenced = append(unreferenced, format)
		}
	}
	if len(unreferenced) > 0 {
		sort.Strings(unreferenced)
		return fmt.Errorf("%s/Makefile target 'run' doesn't reference available target %v", name, unreferenced)
	}

	return nil
}

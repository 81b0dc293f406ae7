// Package textdiff produces unified diffs of scrubbed report content for
// the text-compared formats (txt, html, json, csv).
package textdiff

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// Unified returns the unified diff between the reference and the generated
// content with three lines of context, labeled with the given file names.
// An empty string means the contents are identical.
func Unified(fromFile, toFile, reference, generated string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(reference),
		B:        difflib.SplitLines(generated),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("failed to compute unified diff: %w", err)
	}
	return text, nil
}

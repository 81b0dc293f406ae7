// Package reference manages the golden files a fixture's generated reports
// are compared against. The reference directory drives the pairing: only
// files that exist under it are compared, so fixtures may check any subset
// of a format's outputs.
package reference

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Pair links a generated report file with its reference counterpart.
type Pair struct {
	// Name is the shared base file name, e.g. "coverage.txt".
	Name string
	// GeneratedPath is the file the recipe produced in the fixture dir.
	GeneratedPath string
	// ReferencePath is the stored golden file.
	ReferencePath string
}

// Find returns the reference files matching the output patterns, each
// paired with the like-named generated file in the fixture directory. A
// missing reference directory yields no pairs and no error.
func Find(fixtureDir, refDir string, patterns []string) ([]Pair, error) {
	refRoot := filepath.Join(fixtureDir, refDir)
	fsys := os.DirFS(refRoot)

	var pairs []Pair
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to match reference pattern %q: %w", pattern, err)
		}
		for _, name := range matches {
			pairs = append(pairs, Pair{
				Name:          name,
				GeneratedPath: filepath.Join(fixtureDir, name),
				ReferencePath: filepath.Join(refRoot, name),
			})
		}
	}
	return pairs, nil
}

// Generate copies generated files matching the output patterns into the
// reference directory, skipping files that already have a reference. It
// creates the reference directory on first use and returns the names of
// the files it copied.
func Generate(fixtureDir, refDir string, patterns []string) ([]string, error) {
	refRoot := filepath.Join(fixtureDir, refDir)
	fsys := os.DirFS(fixtureDir)

	var copied []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return copied, fmt.Errorf("failed to match output pattern %q: %w", pattern, err)
		}
		for _, name := range matches {
			refPath := filepath.Join(refRoot, name)
			if _, err := os.Stat(refPath); err == nil {
				continue
			}
			if err := os.MkdirAll(refRoot, 0o755); err != nil {
				return copied, fmt.Errorf("failed to create reference dir: %w", err)
			}
			data, err := os.ReadFile(filepath.Join(fixtureDir, name))
			if err != nil {
				return copied, fmt.Errorf("failed to read generated file: %w", err)
			}
			if err := os.WriteFile(refPath, data, 0o644); err != nil {
				return copied, fmt.Errorf("failed to write reference file: %w", err)
			}
			copied = append(copied, name)
		}
	}
	return copied, nil
}

// Update overwrites a stale reference with the raw generated content, byte
// for byte as the recipe produced it.
func Update(refPath string, raw []byte) error {
	if err := os.WriteFile(refPath, raw, 0o644); err != nil {
		return fmt.Errorf("failed to update reference %s: %w", refPath, err)
	}
	return nil
}

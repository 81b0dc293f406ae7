// Package fixture discovers the sample projects that make up a test suite.
// Every immediate subdirectory of the suite root is a fixture, except
// hidden, underscore-prefixed and cache directories.
package fixture

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zjy-dev/covregress/internal/recipe"
)

// Fixture is one sample project under the suite root.
type Fixture struct {
	// Name is the directory name; it prefixes the test case IDs.
	Name string
	// Dir is the fixture directory, make's working directory.
	Dir string
	// Targets holds the fixture's parsed Makefile targets.
	Targets recipe.Targets
}

// Discover lists the fixtures under root in name order and parses each
// fixture's Makefile. A fixture directory without a parseable Makefile is
// an error naming the fixture.
func Discover(root string) ([]Fixture, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite root %s: %w", root, err)
	}

	var fixtures []Fixture
	for _, entry := range entries {
		name := entry.Name()
		if skipName(name) {
			continue
		}
		dir := filepath.Join(root, name)
		if !entry.IsDir() {
			// a symlinked fixture directory still counts
			info, err := os.Stat(dir)
			if err != nil || !info.IsDir() {
				continue
			}
		}
		targets, err := recipe.ParseFile(filepath.Join(dir, "Makefile"))
		if err != nil {
			return nil, fmt.Errorf("failed to load recipe for fixture %s: %w", name, err)
		}
		fixtures = append(fixtures, Fixture{Name: name, Dir: dir, Targets: targets})
	}
	return fixtures, nil
}

func skipName(name string) bool {
	return strings.HasPrefix(name, ".") ||
		strings.HasPrefix(name, "_") ||
		strings.Contains(name, "pycache")
}

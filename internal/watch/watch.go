// Package watch re-runs affected fixtures when files under their
// directories change. Reference files, generated reports and build
// artifacts are ignored so a run triggered by the watcher cannot
// retrigger itself.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/zjy-dev/covregress/internal/logger"
	"github.com/zjy-dev/covregress/internal/scrub"
)

const defaultDebounce = 500 * time.Millisecond

// artifactExtensions are build products the fixture recipes create.
var artifactExtensions = map[string]bool{
	".gcda": true,
	".gcno": true,
	".gcov": true,
	".o":    true,
	".obj":  true,
	".exe":  true,
}

// Mapper decides which fixture a filesystem event belongs to.
type Mapper struct {
	suiteRoot    string
	referenceDir string
	known        map[string]bool
}

// NewMapper creates a mapper for the suite. A non-empty fixture list
// restricts mapping to those names; nil accepts any fixture-shaped path.
func NewMapper(suiteRoot, referenceDir string, fixtures []string) *Mapper {
	m := &Mapper{suiteRoot: suiteRoot, referenceDir: referenceDir}
	if fixtures != nil {
		m.known = make(map[string]bool, len(fixtures))
		for _, name := range fixtures {
			m.known[name] = true
		}
	}
	return m
}

// Fixture maps a changed path to the fixture it belongs to. The second
// return is false for paths the watcher ignores: anything outside the
// suite, skipped directory names, reference files, generated reports and
// build artifacts.
func (m *Mapper) Fixture(path string) (string, bool) {
	rel, err := filepath.Rel(m.suiteRoot, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}

	segments := strings.Split(filepath.ToSlash(rel), "/")
	name := segments[0]
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || strings.Contains(name, "pycache") {
		return "", false
	}
	if m.known != nil && !m.known[name] {
		return "", false
	}
	if len(segments) == 1 {
		// The fixture directory entry itself.
		return name, true
	}

	for _, seg := range segments[1:] {
		if seg == m.referenceDir {
			return "", false
		}
	}

	base := segments[len(segments)-1]
	if artifactExtensions[strings.ToLower(filepath.Ext(base))] {
		return "", false
	}
	for _, format := range scrub.Formats {
		for _, pattern := range format.OutputPatterns {
			if ok, _ := doublestar.Match(pattern, base); ok {
				return "", false
			}
		}
	}
	return name, true
}

// Config parameterizes the watch loop.
type Config struct {
	SuiteRoot    string
	ReferenceDir string
	// Fixtures restricts mapping to known fixture names.
	Fixtures []string
	// Debounce batches rapid-fire events into one callback. Zero means
	// 500ms.
	Debounce time.Duration
}

// Run watches the suite and invokes onChange with the sorted set of
// changed fixtures once events settle. It blocks until the context is
// cancelled, which is the normal way to stop watching.
func Run(ctx context.Context, cfg Config, onChange func(fixtures []string)) error {
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	mapper := NewMapper(cfg.SuiteRoot, cfg.ReferenceDir, cfg.Fixtures)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addTree(watcher, cfg.SuiteRoot, cfg.ReferenceDir); err != nil {
		return err
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(cfg.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	logger.Info("Watching %s for fixture changes", cfg.SuiteRoot)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if _, watchable := mapper.Fixture(ev.Name); watchable {
						if err := watcher.Add(ev.Name); err != nil {
							logger.Warn("Failed to watch new directory %s: %v", ev.Name, err)
						}
					}
				}
			}
			name, ok := mapper.Fixture(ev.Name)
			if !ok {
				continue
			}
			pending[name] = struct{}{}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(cfg.Debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			sort.Strings(changed)
			pending = make(map[string]struct{})
			onChange(changed)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error: %v", err)
		}
	}
}

// addTree registers the suite root and every fixture subdirectory.
// Reference directories are left unwatched.
func addTree(watcher *fsnotify.Watcher, root, referenceDir string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root {
			name := d.Name()
			if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || strings.Contains(name, "pycache") || name == referenceDir {
				return filepath.SkipDir
			}
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

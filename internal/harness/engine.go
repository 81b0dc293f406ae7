package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/text/encoding"

	"github.com/zjy-dev/covregress/internal/exec"
	"github.com/zjy-dev/covregress/internal/logger"
	"github.com/zjy-dev/covregress/internal/reference"
	"github.com/zjy-dev/covregress/internal/report"
	"github.com/zjy-dev/covregress/internal/scrub"
	"github.com/zjy-dev/covregress/internal/summary"
	"github.com/zjy-dev/covregress/internal/textdiff"
	"github.com/zjy-dev/covregress/internal/xmldiff"
)

// Config holds the dependencies and parameters for one engine run.
type Config struct {
	// Core components
	Exec      exec.Executor
	Reporters report.Reporters

	// Suite parameters
	SuiteRoot    string
	Make         string
	ReferenceDir string

	// Reference management modes
	GenerateReference bool
	UpdateReference   bool

	// SkipClean leaves build artifacts in place after each fixture.
	SkipClean bool
	// Parallel is the number of fixtures built concurrently. Cases within
	// a fixture share build state and always run sequentially.
	Parallel int
}

// Engine executes a case plan against the suite.
type Engine struct {
	cfg       Config
	mu        sync.Mutex
	results   []report.CaseResult
	startTime time.Time
}

// fixtureRun groups the plan's cases per fixture.
type fixtureRun struct {
	name  string
	dir   string
	cases []Case
}

// NewEngine creates an engine for the given configuration.
func NewEngine(cfg Config) *Engine {
	if cfg.Parallel <= 0 {
		cfg.Parallel = 1
	}
	return &Engine{cfg: cfg}
}

// Run executes the plan and returns the suite summary. The suite lock is
// held for the whole run. Cancelling the context stops scheduling new
// fixtures and cases; already-recorded results are summarized as usual.
func (e *Engine) Run(ctx context.Context, cases []Case) (report.Summary, error) {
	e.startTime = time.Now()

	lock, err := acquireLock(e.cfg.SuiteRoot)
	if err != nil {
		return report.Summary{}, err
	}
	defer lock.Unlock()

	runs := groupCases(cases)
	logger.Info("Running %d cases across %d fixtures", len(cases), len(runs))

	p := pool.New().WithMaxGoroutines(e.cfg.Parallel)
	for _, fr := range runs {
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			e.runFixture(ctx, fr)
		})
	}
	p.Wait()

	s := report.Summarize(e.results)
	s.Duration = time.Since(e.startTime).Round(time.Millisecond)
	if err := e.cfg.Reporters.Close(s); err != nil {
		return s, fmt.Errorf("failed to finalize reports: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return s, fmt.Errorf("run interrupted: %w", err)
	}
	return s, nil
}

// groupCases splits the plan into per-fixture runs, preserving order.
func groupCases(cases []Case) []fixtureRun {
	index := make(map[string]int)
	var runs []fixtureRun
	for _, c := range cases {
		i, ok := index[c.Fixture]
		if !ok {
			i = len(runs)
			index[c.Fixture] = i
			runs = append(runs, fixtureRun{name: c.Fixture, dir: c.Dir})
		}
		runs[i].cases = append(runs[i].cases, c)
	}
	return runs
}

// runFixture builds the fixture once, runs its cases sequentially and
// cleans up afterwards. A broken build errors every case of the fixture.
func (e *Engine) runFixture(ctx context.Context, fr fixtureRun) {
	logger.Info("Fixture %s: building", fr.name)
	if err := e.make(fr.dir, "clean"); err != nil {
		e.failFixture(fr, err)
		return
	}
	if err := e.make(fr.dir, "all"); err != nil {
		e.failFixture(fr, err)
		return
	}

	for _, c := range fr.cases {
		if ctx.Err() != nil {
			break
		}
		e.runCase(c)
	}

	if !e.cfg.SkipClean {
		if err := e.make(fr.dir, "clean"); err != nil {
			logger.Warn("Fixture %s: final clean failed: %v", fr.name, err)
		}
	}
}

// failFixture records a build error for every case of the fixture.
func (e *Engine) failFixture(fr fixtureRun, buildErr error) {
	logger.Error("Fixture %s: build failed: %v", fr.name, buildErr)
	for _, c := range fr.cases {
		status := report.Error
		if c.XFail {
			status = report.XFail
		}
		e.record(report.CaseResult{
			ID:          c.ID(),
			Fixture:     c.Fixture,
			Format:      c.Format,
			Status:      status,
			Message:     buildErr.Error(),
			XFailReason: c.XFailReason,
		})
	}
}

// runCase executes one case and records the outcome, translating results
// of expected-failure cases into XFAIL and XPASS.
func (e *Engine) runCase(c Case) {
	start := time.Now()
	status, message := e.executeCase(c)

	if c.XFail {
		switch {
		case status == report.Pass:
			status = report.XPass
			logger.Warn("Case %s passed but was expected to fail: %s", c.ID(), c.XFailReason)
		case status.Failed():
			status = report.XFail
		}
	}

	e.record(report.CaseResult{
		ID:          c.ID(),
		Fixture:     c.Fixture,
		Format:      c.Format,
		Status:      status,
		Duration:    time.Since(start).Round(time.Millisecond),
		Message:     message,
		XFailReason: c.XFailReason,
	})
}

// executeCase builds one format and compares its output files against the
// stored references.
func (e *Engine) executeCase(c Case) (report.Status, string) {
	format, ok := scrub.Lookup(c.Format)
	if !ok {
		return report.Error, fmt.Sprintf("unknown format %q", c.Format)
	}

	if err := e.make(c.Dir, c.Format); err != nil {
		return report.Fail, err.Error()
	}

	if e.cfg.GenerateReference {
		copied, err := reference.Generate(c.Dir, e.cfg.ReferenceDir, format.OutputPatterns)
		if err != nil {
			return report.Fail, err.Error()
		}
		for _, name := range copied {
			logger.Info("Copying %s to %s", name, filepath.Join(e.cfg.ReferenceDir, name))
		}
	}

	pairs, err := reference.Find(c.Dir, e.cfg.ReferenceDir, format.OutputPatterns)
	if err != nil {
		return report.Fail, err.Error()
	}
	if len(pairs) == 0 {
		logger.Warn("Case %s has no reference files to compare", c.ID())
	}

	enc, err := caseEncoding(c.Fixture, c.Format)
	if err != nil {
		return report.Fail, err.Error()
	}

	for _, pair := range pairs {
		if status, message := e.comparePair(pair, format, enc); status != report.Pass {
			return status, message
		}
	}

	if c.Format == "json" {
		e.logCoverageSummary(c)
	}

	if c.CleanEach {
		if err := e.make(c.Dir, "clean-each"); err != nil {
			return report.Fail, err.Error()
		}
	}

	return report.Pass, ""
}

// comparePair checks one generated file against its reference. For stale
// text references, update mode rewrites the reference with the raw
// generated bytes; the case still fails for this run.
func (e *Engine) comparePair(pair reference.Pair, format scrub.Format, enc encoding.Encoding) (report.Status, string) {
	rawGenerated, err := os.ReadFile(pair.GeneratedPath)
	if err != nil {
		return report.Fail, fmt.Sprintf("failed to read generated file: %v", err)
	}
	rawReference, err := os.ReadFile(pair.ReferencePath)
	if err != nil {
		return report.Fail, fmt.Sprintf("failed to read reference file: %v", err)
	}

	generated, err := decodeContent(rawGenerated, enc)
	if err != nil {
		return report.Fail, fmt.Sprintf("%s: %v", pair.Name, err)
	}
	referenceText, err := decodeContent(rawReference, enc)
	if err != nil {
		return report.Fail, fmt.Sprintf("%s: %v", pair.ReferencePath, err)
	}

	generatedScrubbed := format.Scrub(generated)
	referenceScrubbed := format.Scrub(referenceText)

	if format.CompareXML {
		if err := xmldiff.Compare(referenceScrubbed, generatedScrubbed); err != nil {
			return report.Fail, fmt.Sprintf("%s: %v", pair.Name, err)
		}
		return report.Pass, ""
	}

	fromFile := filepath.Join(e.cfg.ReferenceDir, pair.Name)
	diff, err := textdiff.Unified(fromFile, pair.Name, referenceScrubbed, generatedScrubbed)
	if err != nil {
		return report.Fail, err.Error()
	}
	if diff == "" {
		return report.Pass, ""
	}

	message := "Unified diff output:\n" + diff
	if e.cfg.UpdateReference {
		if err := reference.Update(pair.ReferencePath, rawGenerated); err != nil {
			message += err.Error()
		} else {
			message += "(reference updated)"
		}
	}
	return report.Fail, message
}

// make runs one make target in dir, translating a non-zero exit into an
// error carrying the combined output.
func (e *Engine) make(dir, target string) error {
	logger.Debug("Running %s %s in %s", e.cfg.Make, target, dir)
	result, err := e.cfg.Exec.Run(dir, e.cfg.Make, target)
	if err != nil {
		return fmt.Errorf("failed to run %s %s: %w", e.cfg.Make, target, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%s %s exited with code %d:\n%s%s", e.cfg.Make, target, result.ExitCode, result.Stdout, result.Stderr)
	}
	return nil
}

// logCoverageSummary digests the fixture's coverage.json after a passing
// json case. Failures here only log; the comparison already passed.
func (e *Engine) logCoverageSummary(c Case) {
	data, err := os.ReadFile(filepath.Join(c.Dir, "coverage.json"))
	if err != nil {
		logger.Debug("Case %s: no coverage.json to summarize: %v", c.ID(), err)
		return
	}
	s, err := summary.Parse(data)
	if err != nil {
		logger.Debug("Case %s: %v", c.ID(), err)
		return
	}
	logger.Info("Coverage %s: %s", c.Fixture, s)
}

// record stores a result and fans it out to the reporters.
func (e *Engine) record(result report.CaseResult) {
	e.mu.Lock()
	e.results = append(e.results, result)
	e.mu.Unlock()
	e.cfg.Reporters.ReportCase(result)
}

package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/covregress/internal/exec"
	"github.com/zjy-dev/covregress/internal/report"
)

// MockExecutor records make invocations and lets tests script outcomes.
type MockExecutor struct {
	mu    sync.Mutex
	calls []string
	runFn func(dir string, command string, args ...string) (*exec.ExecutionResult, error)
}

func (m *MockExecutor) Run(dir string, command string, args ...string) (*exec.ExecutionResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, strings.Join(append([]string{command}, args...), " "))
	m.mu.Unlock()
	if m.runFn != nil {
		return m.runFn(dir, command, args...)
	}
	return &exec.ExecutionResult{ExitCode: 0}, nil
}

func (m *MockExecutor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// recordingReporter captures everything the engine reports.
type recordingReporter struct {
	mu      sync.Mutex
	cases   []report.CaseResult
	summary report.Summary
	closed  bool
}

func (r *recordingReporter) ReportCase(result report.CaseResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases = append(r.cases, result)
}

func (r *recordingReporter) Close(summary report.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary = summary
	r.closed = true
	return nil
}

func (r *recordingReporter) Cases() []report.CaseResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]report.CaseResult(nil), r.cases...)
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// newSuite lays out a one-fixture suite and returns the pieces every
// engine test needs. The suite root doubles as the lock directory.
func newSuite(t *testing.T, fixtureName string, files map[string]string) (string, string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, fixtureName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	writeFiles(t, dir, files)
	return root, dir
}

func testConfig(mock *MockExecutor, rec *recordingReporter, root string) Config {
	return Config{
		Exec:         mock,
		Reporters:    report.Reporters{rec},
		SuiteRoot:    root,
		Make:         "make",
		ReferenceDir: "reference",
		Parallel:     1,
	}
}

func TestEngineRun(t *testing.T) {
	t.Run("should pass a case whose output matches the reference", func(t *testing.T) {
		root, dir := newSuite(t, "simple1", map[string]string{
			"coverage.txt":           "lines: 80.0%\n",
			"reference/coverage.txt": "lines: 80.0%\n",
		})
		mock := &MockExecutor{}
		rec := &recordingReporter{}
		engine := NewEngine(testConfig(mock, rec, root))

		s, err := engine.Run(context.Background(), []Case{
			{Fixture: "simple1", Format: "txt", Dir: dir},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, s.Total)
		assert.Equal(t, 1, s.Passed)
		assert.True(t, s.Ok())

		results := rec.Cases()
		require.Len(t, results, 1)
		assert.Equal(t, "simple1-txt", results[0].ID)
		assert.Equal(t, report.Pass, results[0].Status)
		assert.Empty(t, results[0].Message)
		assert.True(t, rec.closed)
		assert.Equal(t, 1, rec.summary.Total)

		assert.Equal(t, []string{"make clean", "make all", "make txt", "make clean"}, mock.Calls())
	})

	t.Run("should fail with a diff when output drifts from the reference", func(t *testing.T) {
		root, dir := newSuite(t, "simple1", map[string]string{
			"coverage.txt":           "lines: 85.0%\n",
			"reference/coverage.txt": "lines: 80.0%\n",
		})
		mock := &MockExecutor{}
		rec := &recordingReporter{}
		engine := NewEngine(testConfig(mock, rec, root))

		s, err := engine.Run(context.Background(), []Case{
			{Fixture: "simple1", Format: "txt", Dir: dir},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, s.Failed)
		assert.False(t, s.Ok())

		results := rec.Cases()
		require.Len(t, results, 1)
		assert.Equal(t, report.Fail, results[0].Status)
		assert.Contains(t, results[0].Message, "Unified diff output:")
		assert.Contains(t, results[0].Message, "-lines: 80.0%")
		assert.Contains(t, results[0].Message, "+lines: 85.0%")

		reference, err := os.ReadFile(filepath.Join(dir, "reference", "coverage.txt"))
		require.NoError(t, err)
		assert.Equal(t, "lines: 80.0%\n", string(reference), "reference must stay untouched without update mode")

		calls := mock.Calls()
		assert.Equal(t, "make clean", calls[len(calls)-1], "final clean still runs after a failure")
	})

	t.Run("should error every case of a fixture whose build fails", func(t *testing.T) {
		root, dir := newSuite(t, "simple1", map[string]string{})
		mock := &MockExecutor{}
		mock.runFn = func(dir string, command string, args ...string) (*exec.ExecutionResult, error) {
			if len(args) > 0 && args[0] == "all" {
				return &exec.ExecutionResult{ExitCode: 2, Stderr: "no compiler\n"}, nil
			}
			return &exec.ExecutionResult{ExitCode: 0}, nil
		}
		rec := &recordingReporter{}
		engine := NewEngine(testConfig(mock, rec, root))

		s, err := engine.Run(context.Background(), []Case{
			{Fixture: "simple1", Format: "txt", Dir: dir},
			{Fixture: "simple1", Format: "xml", Dir: dir, XFail: true, XFailReason: "known broken here"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, s.Errored)
		assert.Equal(t, 1, s.XFailed, "build errors on expected-failure cases stay expected")
		assert.False(t, s.Ok())

		results := rec.Cases()
		require.Len(t, results, 2)
		assert.Equal(t, report.Error, results[0].Status)
		assert.Contains(t, results[0].Message, "make all exited with code 2")
		assert.Contains(t, results[0].Message, "no compiler")
		assert.Equal(t, report.XFail, results[1].Status)

		assert.NotContains(t, mock.Calls(), "make txt", "cases are not attempted after a broken build")
	})

	t.Run("should error the fixture when make cannot be spawned", func(t *testing.T) {
		root, dir := newSuite(t, "simple1", map[string]string{})
		mock := &MockExecutor{}
		mock.runFn = func(dir string, command string, args ...string) (*exec.ExecutionResult, error) {
			return nil, errors.New("make: command not found")
		}
		rec := &recordingReporter{}
		engine := NewEngine(testConfig(mock, rec, root))

		s, err := engine.Run(context.Background(), []Case{
			{Fixture: "simple1", Format: "txt", Dir: dir},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, s.Errored)

		results := rec.Cases()
		require.Len(t, results, 1)
		assert.Contains(t, results[0].Message, "failed to run make clean")
	})

	t.Run("should fail only the case whose format build fails", func(t *testing.T) {
		root, dir := newSuite(t, "simple1", map[string]string{
			"coverage.txt":           "lines: 80.0%\n",
			"reference/coverage.txt": "lines: 80.0%\n",
		})
		mock := &MockExecutor{}
		mock.runFn = func(dir string, command string, args ...string) (*exec.ExecutionResult, error) {
			if len(args) > 0 && args[0] == "csv" {
				return &exec.ExecutionResult{ExitCode: 1, Stdout: "gcovr crashed\n"}, nil
			}
			return &exec.ExecutionResult{ExitCode: 0}, nil
		}
		rec := &recordingReporter{}
		engine := NewEngine(testConfig(mock, rec, root))

		s, err := engine.Run(context.Background(), []Case{
			{Fixture: "simple1", Format: "txt", Dir: dir},
			{Fixture: "simple1", Format: "csv", Dir: dir},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, s.Passed)
		assert.Equal(t, 1, s.Failed)

		results := rec.Cases()
		require.Len(t, results, 2)
		assert.Equal(t, report.Pass, results[0].Status)
		assert.Equal(t, report.Fail, results[1].Status)
		assert.Contains(t, results[1].Message, "make csv exited with code 1")
		assert.Contains(t, results[1].Message, "gcovr crashed")
	})

	t.Run("should compare xml structurally instead of textually", func(t *testing.T) {
		root, dir := newSuite(t, "simple1", map[string]string{
			"coverage.xml":           `<coverage line-rate="0.90002" branch-rate="0.5"><packages></packages></coverage>`,
			"reference/coverage.xml": `<coverage branch-rate="0.5" line-rate="0.9"><packages></packages></coverage>`,
		})
		mock := &MockExecutor{}
		rec := &recordingReporter{}
		engine := NewEngine(testConfig(mock, rec, root))

		s, err := engine.Run(context.Background(), []Case{
			{Fixture: "simple1", Format: "xml", Dir: dir},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, s.Passed, "numeric drift within tolerance and attribute order are not differences")
	})

	t.Run("should fail xml comparisons beyond the tolerance", func(t *testing.T) {
		root, dir := newSuite(t, "simple1", map[string]string{
			"coverage.xml":           `<coverage line-rate="0.91"><packages></packages></coverage>`,
			"reference/coverage.xml": `<coverage line-rate="0.9"><packages></packages></coverage>`,
		})
		mock := &MockExecutor{}
		rec := &recordingReporter{}
		engine := NewEngine(testConfig(mock, rec, root))

		s, err := engine.Run(context.Background(), []Case{
			{Fixture: "simple1", Format: "xml", Dir: dir},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, s.Failed)

		results := rec.Cases()
		require.Len(t, results, 1)
		assert.Contains(t, results[0].Message, "coverage.xml:")
		assert.Contains(t, results[0].Message, "differ beyond tolerance")
		assert.Contains(t, results[0].Message, "@line-rate")
	})

	t.Run("should fail when a referenced file was not generated", func(t *testing.T) {
		root, dir := newSuite(t, "simple1", map[string]string{
			"reference/coverage.txt": "lines: 80.0%\n",
		})
		mock := &MockExecutor{}
		rec := &recordingReporter{}
		engine := NewEngine(testConfig(mock, rec, root))

		s, err := engine.Run(context.Background(), []Case{
			{Fixture: "simple1", Format: "txt", Dir: dir},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, s.Failed)

		results := rec.Cases()
		require.Len(t, results, 1)
		assert.Contains(t, results[0].Message, "failed to read generated file")
	})

	t.Run("should pass when no references exist for the case", func(t *testing.T) {
		root, dir := newSuite(t, "simple1", map[string]string{
			"coverage.txt": "lines: 80.0%\n",
		})
		mock := &MockExecutor{}
		rec := &recordingReporter{}
		engine := NewEngine(testConfig(mock, rec, root))

		s, err := engine.Run(context.Background(), []Case{
			{Fixture: "simple1", Format: "txt", Dir: dir},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, s.Passed)
	})

	t.Run("should translate failures of expected-failure cases", func(t *testing.T) {
		root, dir := newSuite(t, "rounding", map[string]string{
			"coverage.txt":           "lines: 85.0%\n",
			"reference/coverage.txt": "lines: 80.0%\n",
		})
		mock := &MockExecutor{}
		rec := &recordingReporter{}
		engine := NewEngine(testConfig(mock, rec, root))

		s, err := engine.Run(context.Background(), []Case{
			{Fixture: "rounding", Format: "txt", Dir: dir, XFail: true, XFailReason: "branch coverage is platform-dependent"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, s.XFailed)
		assert.True(t, s.Ok(), "expected failures do not fail the suite")

		results := rec.Cases()
		require.Len(t, results, 1)
		assert.Equal(t, report.XFail, results[0].Status)
		assert.Equal(t, "branch coverage is platform-dependent", results[0].XFailReason)
	})

	t.Run("should flag unexpected passes of expected-failure cases", func(t *testing.T) {
		root, dir := newSuite(t, "rounding", map[string]string{
			"coverage.txt":           "lines: 80.0%\n",
			"reference/coverage.txt": "lines: 80.0%\n",
		})
		mock := &MockExecutor{}
		rec := &recordingReporter{}
		engine := NewEngine(testConfig(mock, rec, root))

		s, err := engine.Run(context.Background(), []Case{
			{Fixture: "rounding", Format: "txt", Dir: dir, XFail: true, XFailReason: "branch coverage is platform-dependent"},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, s.XPassed)
		assert.True(t, s.Ok())

		results := rec.Cases()
		require.Len(t, results, 1)
		assert.Equal(t, report.XPass, results[0].Status)
	})

	t.Run("should copy missing references in generate mode", func(t *testing.T) {
		root, dir := newSuite(t, "simple1", map[string]string{
			"coverage.txt": "lines: 80.0%\n",
		})
		mock := &MockExecutor{}
		rec := &recordingReporter{}
		cfg := testConfig(mock, rec, root)
		cfg.GenerateReference = true
		engine := NewEngine(cfg)

		s, err := engine.Run(context.Background(), []Case{
			{Fixture: "simple1", Format: "txt", Dir: dir},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, s.Passed, "a freshly copied reference compares equal")

		copied, err := os.ReadFile(filepath.Join(dir, "reference", "coverage.txt"))
		require.NoError(t, err)
		assert.Equal(t, "lines: 80.0%\n", string(copied))
	})

	t.Run("should rewrite stale references in update mode but still fail", func(t *testing.T) {
		root, dir := newSuite(t, "simple1", map[string]string{
			"coverage.txt":           "lines: 85.0%\n",
			"reference/coverage.txt": "lines: 80.0%\n",
		})
		mock := &MockExecutor{}
		rec := &recordingReporter{}
		cfg := testConfig(mock, rec, root)
		cfg.UpdateReference = true
		engine := NewEngine(cfg)

		s, err := engine.Run(context.Background(), []Case{
			{Fixture: "simple1", Format: "txt", Dir: dir},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, s.Failed, "update mode reports the drift it repaired")

		results := rec.Cases()
		require.Len(t, results, 1)
		assert.Contains(t, results[0].Message, "Unified diff output:")
		assert.Contains(t, results[0].Message, "(reference updated)")

		updated, err := os.ReadFile(filepath.Join(dir, "reference", "coverage.txt"))
		require.NoError(t, err)
		assert.Equal(t, "lines: 85.0%\n", string(updated))
	})

	t.Run("should run clean-each after a passing case", func(t *testing.T) {
		root, dir := newSuite(t, "dupfiles", map[string]string{
			"coverage.txt":           "lines: 80.0%\n",
			"reference/coverage.txt": "lines: 80.0%\n",
		})
		mock := &MockExecutor{}
		rec := &recordingReporter{}
		engine := NewEngine(testConfig(mock, rec, root))

		_, err := engine.Run(context.Background(), []Case{
			{Fixture: "dupfiles", Format: "txt", Dir: dir, CleanEach: true},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"make clean", "make all", "make txt", "make clean-each", "make clean"}, mock.Calls())
	})

	t.Run("should skip clean-each when the comparison fails", func(t *testing.T) {
		root, dir := newSuite(t, "dupfiles", map[string]string{
			"coverage.txt":           "lines: 85.0%\n",
			"reference/coverage.txt": "lines: 80.0%\n",
		})
		mock := &MockExecutor{}
		rec := &recordingReporter{}
		engine := NewEngine(testConfig(mock, rec, root))

		_, err := engine.Run(context.Background(), []Case{
			{Fixture: "dupfiles", Format: "txt", Dir: dir, CleanEach: true},
		})
		require.NoError(t, err)
		assert.NotContains(t, mock.Calls(), "make clean-each", "failed artifacts are kept for inspection")
	})

	t.Run("should skip the final clean when configured", func(t *testing.T) {
		root, dir := newSuite(t, "simple1", map[string]string{
			"coverage.txt":           "lines: 80.0%\n",
			"reference/coverage.txt": "lines: 80.0%\n",
		})
		mock := &MockExecutor{}
		rec := &recordingReporter{}
		cfg := testConfig(mock, rec, root)
		cfg.SkipClean = true
		engine := NewEngine(cfg)

		_, err := engine.Run(context.Background(), []Case{
			{Fixture: "simple1", Format: "txt", Dir: dir},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"make clean", "make all", "make txt"}, mock.Calls())
	})

	t.Run("should only warn when the final clean fails", func(t *testing.T) {
		root, dir := newSuite(t, "simple1", map[string]string{
			"coverage.txt":           "lines: 80.0%\n",
			"reference/coverage.txt": "lines: 80.0%\n",
		})
		mock := &MockExecutor{}
		cleans := 0
		mock.runFn = func(dir string, command string, args ...string) (*exec.ExecutionResult, error) {
			if len(args) > 0 && args[0] == "clean" {
				cleans++
				if cleans == 2 {
					return &exec.ExecutionResult{ExitCode: 1, Stderr: "dirty\n"}, nil
				}
			}
			return &exec.ExecutionResult{ExitCode: 0}, nil
		}
		rec := &recordingReporter{}
		engine := NewEngine(testConfig(mock, rec, root))

		s, err := engine.Run(context.Background(), []Case{
			{Fixture: "simple1", Format: "txt", Dir: dir},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, s.Passed)
		assert.True(t, s.Ok())
	})

	t.Run("should run several fixtures to completion", func(t *testing.T) {
		root := t.TempDir()
		var cases []Case
		for _, name := range []string{"simple1", "simple2"} {
			dir := filepath.Join(root, name)
			require.NoError(t, os.MkdirAll(dir, 0o755))
			writeFiles(t, dir, map[string]string{
				"coverage.txt":           "lines: 80.0%\n",
				"reference/coverage.txt": "lines: 80.0%\n",
			})
			cases = append(cases, Case{Fixture: name, Format: "txt", Dir: dir})
		}
		mock := &MockExecutor{}
		rec := &recordingReporter{}
		cfg := testConfig(mock, rec, root)
		cfg.Parallel = 2
		engine := NewEngine(cfg)

		s, err := engine.Run(context.Background(), cases)
		require.NoError(t, err)
		assert.Equal(t, 2, s.Total)
		assert.Equal(t, 2, s.Passed)

		var ids []string
		for _, r := range rec.Cases() {
			ids = append(ids, r.ID)
		}
		assert.ElementsMatch(t, []string{"simple1-txt", "simple2-txt"}, ids)
	})

	t.Run("should stop scheduling when the context is cancelled", func(t *testing.T) {
		root, dir := newSuite(t, "simple1", map[string]string{})
		mock := &MockExecutor{}
		rec := &recordingReporter{}
		engine := NewEngine(testConfig(mock, rec, root))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		s, err := engine.Run(ctx, []Case{
			{Fixture: "simple1", Format: "txt", Dir: dir},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "run interrupted")
		assert.Zero(t, s.Total)
		assert.Empty(t, mock.Calls())
	})

	t.Run("should refuse to run a locked suite", func(t *testing.T) {
		root, dir := newSuite(t, "simple1", map[string]string{})
		held, err := acquireLock(root)
		require.NoError(t, err)
		defer held.Unlock()

		engine := NewEngine(testConfig(&MockExecutor{}, &recordingReporter{}, root))
		_, err = engine.Run(context.Background(), []Case{
			{Fixture: "simple1", Format: "txt", Dir: dir},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "locked by another run")
	})
}

package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// JSONReporter writes the machine-readable run report, replacing the
// output file atomically so a watching consumer never reads a torn write.
type JSONReporter struct {
	mu        sync.Mutex
	path      string
	generator string
	platform  string
	cases     []jsonCase
}

type jsonCase struct {
	ID         string `json:"id"`
	Fixture    string `json:"fixture"`
	Format     string `json:"format"`
	Status     Status `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Message    string `json:"message,omitempty"`
}

type jsonReport struct {
	Generator string     `json:"generator"`
	Platform  string     `json:"platform"`
	Result    Status     `json:"result"`
	Cases     []jsonCase `json:"cases"`
}

// NewJSONReporter creates a JSON reporter writing to path on Close.
func NewJSONReporter(path, generator, platform string) *JSONReporter {
	return &JSONReporter{path: path, generator: generator, platform: platform}
}

func (r *JSONReporter) ReportCase(result CaseResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases = append(r.cases, jsonCase{
		ID:         result.ID,
		Fixture:    result.Fixture,
		Format:     result.Format,
		Status:     result.Status,
		DurationMS: result.Duration.Milliseconds(),
		Message:    result.Message,
	})
}

func (r *JSONReporter) Close(summary Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := jsonReport{
		Generator: r.generator,
		Platform:  r.platform,
		Result:    summary.Result(),
		Cases:     r.cases,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON report: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to move JSON report into place: %w", err)
	}
	return nil
}

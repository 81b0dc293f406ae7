package report

// Reporter consumes case results as the engine produces them. ReportCase
// may be called from concurrent fixtures; implementations lock internally.
// Close is called once with the final summary.
type Reporter interface {
	ReportCase(result CaseResult)
	Close(summary Summary) error
}

// Reporters fans out to every contained reporter.
type Reporters []Reporter

func (reps Reporters) ReportCase(result CaseResult) {
	for _, r := range reps {
		r.ReportCase(result)
	}
}

func (reps Reporters) Close(summary Summary) error {
	for _, r := range reps {
		if err := r.Close(summary); err != nil {
			return err
		}
	}
	return nil
}

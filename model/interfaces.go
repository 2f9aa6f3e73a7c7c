package model

// ErrorReporter is the observability sink for failures that must not abort the caller,
// such as task handler errors and failed live actions.
type ErrorReporter interface {
	ReportError(module, operation string, err error)
}

// NopReporter discards every report.
type NopReporter struct{}

func (NopReporter) ReportError(string, string, error) {}

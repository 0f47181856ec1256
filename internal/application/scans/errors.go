package scans

import (
	"errors"
	"fmt"
)

var (
	// ErrNoReport means the engine returned normally but produced no report.
	ErrNoReport = errors.New("scan completed but no report was generated")
	// ErrReportUnavailable means accessibility was requested and no report exists at response time.
	ErrReportUnavailable = errors.New("accessibility scan was requested but report is unavailable")
	// ErrScanNotFound is returned by read use cases for unknown or foreign scans.
	ErrScanNotFound = errors.New("scan not found")
)

// ValidationError reports a missing required request field.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing %s in request body", e.Field)
}

// AnalysisError wraps a failure raised by the analysis engine, including timeouts.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("accessibility scan failed: %v", e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

package model

import "time"

// Status classifies the overall outcome of one build.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	// StatusUnknown means no status heuristic fired and no failure
	// evidence exists. It is a real classification outcome, not an
	// error, and is never coerced into SUCCESS or FAILED.
	StatusUnknown Status = "UNKNOWN"
)

// JobStatus is the per-job state Bamboo tags failing jobs with.
type JobStatus string

const (
	JobFailed  JobStatus = "Failed"
	JobUnknown JobStatus = "Unknown"
)

// BuildReport is one parsed CI build result page.
type BuildReport struct {
	// BuildID is the build number, taken from the page heading or the
	// source URL. Zero when neither yields one.
	BuildID   int    `json:"build_id"`
	SourceURL string `json:"source_url"`
	Status    Status `json:"status"`
	// CompletedAt is day-granular; nil when the completion timestamp
	// could not be parsed. Time of day is ignored for windowing.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// CompletedText is the raw completion timestamp as displayed.
	CompletedText      string          `json:"completed_text,omitempty"`
	TotalTests         int             `json:"total_tests"`
	QuarantinedSkipped int             `json:"quarantined_skipped"`
	NewFailures        []FailureRecord `json:"new_failures,omitempty"`
	ExistingFailures   []FailureRecord `json:"existing_failures,omitempty"`
	FixedTests         []string        `json:"fixed_tests,omitempty"`
	FailedJobs         []JobFailure    `json:"failed_jobs,omitempty"`
}

// HasFailureEvidence reports whether any failure table row or failed
// job was found on the page.
func (r *BuildReport) HasFailureEvidence() bool {
	return len(r.NewFailures) > 0 || len(r.ExistingFailures) > 0 || len(r.FailedJobs) > 0
}

// FailureRecord is one failing test-case instance tied to a job.
type FailureRecord struct {
	// Suite is empty when the test label had no "Suite [Case]" shape.
	Suite string `json:"suite,omitempty"`
	// Case is "suite.case" when both parsed, else the raw label.
	Case string `json:"case"`
	Job  string `json:"job"`
	// Error is the excerpt captured from the detail row, if any.
	Error string `json:"error,omitempty"`
}

// JobFailure is one failing or hung job, independent of test-case
// granularity.
type JobFailure struct {
	Name   string    `json:"name"`
	Status JobStatus `json:"status"`
	// Reason is a human-readable cause computed during parsing.
	Reason string `json:"reason"`
	// Key is the opaque Bamboo job identifier, used for log lookups.
	Key        string           `json:"key,omitempty"`
	Diagnostic *SanitizerDetail `json:"diagnostic,omitempty"`
}

// LeakKind distinguishes the two leak classes LeakSanitizer reports.
type LeakKind string

const (
	LeakDirect   LeakKind = "Direct"
	LeakIndirect LeakKind = "Indirect"
)

// SanitizerDetail is a structured memory-safety diagnostic extracted
// from a sanitizer-flagged job.
type SanitizerDetail struct {
	// ErrorType is e.g. "memory-leak" or "heap-buffer-overflow".
	ErrorType string   `json:"error_type"`
	LeakKind  LeakKind `json:"leak_kind,omitempty"`
	LeakSize  string   `json:"leak_size,omitempty"`
	// Test is the test recovered from the log context preceding the
	// diagnostic, when one could be found.
	Test    string `json:"test,omitempty"`
	Summary string `json:"summary"`
}

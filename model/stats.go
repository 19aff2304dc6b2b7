package model

// TestFailureStats accumulates occurrences of one failing test across
// builds.
type TestFailureStats struct {
	Count int
	// Jobs counts occurrences per job name.
	Jobs map[string]int
	// Builds is the set of build ids the failure appeared in.
	Builds map[int]struct{}
}

// PatternEntryKind tags one element of a failure signature.
type PatternEntryKind string

const (
	PatternCombined PatternEntryKind = "combined"
	PatternHung     PatternEntryKind = "hung"
	PatternJobOnly  PatternEntryKind = "job_only"
)

// PatternEntry is one tagged element of a failure signature.
type PatternEntry struct {
	Kind PatternEntryKind
	Text string
}

// Pattern is a cluster of builds sharing an identical failure
// signature.
type Pattern struct {
	Entries []PatternEntry
	// Builds is sorted ascending.
	Builds []int
}

// AggregateStats is derived from a sequence of BuildReports. It is
// rebuilt from scratch on every analysis run and never persisted.
type AggregateStats struct {
	Total      int
	Successful int
	Failed     int
	// TestFailures groups failures by test case, including the
	// synthetic "(Job Failed)" and "(Hung/Timeout)" entries.
	TestFailures   map[string]*TestFailureStats
	HungJobs       map[string]int
	ErrorTypes     map[string]int
	BuildsByStatus map[Status][]int
	// Patterns is ranked by affected-build count descending.
	Patterns []Pattern

	TotalFailureInstances      int
	MeanFailuresPerFailedBuild float64
}

// SuccessRate is the fraction of successful builds, in percent.
func (s *AggregateStats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.Total) * 100
}

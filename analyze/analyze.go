// Package analyze folds a sequence of BuildReports into aggregate
// failure statistics and failure-pattern clusters. All derived data is
// rebuilt per run; the reports are read-only input.
package analyze

import (
	"strings"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog"

	"github.com/cistat/cistat/jobname"
	"github.com/cistat/cistat/model"
)

// Synthetic test names group failures that carry no test context.
const (
	SyntheticJobFailed = "(Job Failed)"
	SyntheticHung      = "(Hung/Timeout)"
)

const unknownJob = "Unknown Job"

// Aggregator accumulates statistics over build reports.
type Aggregator struct {
	matcher *jobname.Matcher
	logger  zerolog.Logger
}

// New creates an Aggregator using the given matcher to suppress
// double-counting between test-level and job-level failure signals.
func New(matcher *jobname.Matcher, logger zerolog.Logger) *Aggregator {
	return &Aggregator{matcher: matcher, logger: logger}
}

// Aggregate builds fresh AggregateStats from the reports.
func (a *Aggregator) Aggregate(reports []*model.BuildReport) *model.AggregateStats {
	s := &model.AggregateStats{
		Total:          len(reports),
		TestFailures:   make(map[string]*model.TestFailureStats),
		HungJobs:       make(map[string]int),
		ErrorTypes:     make(map[string]int),
		BuildsByStatus: make(map[model.Status][]int),
	}

	var perFailedBuild []float64

	for _, r := range reports {
		if r.Status == model.StatusSuccess {
			s.Successful++
			s.BuildsByStatus[model.StatusSuccess] = append(s.BuildsByStatus[model.StatusSuccess], r.BuildID)
		} else {
			s.Failed++
			s.BuildsByStatus[model.StatusFailed] = append(s.BuildsByStatus[model.StatusFailed], r.BuildID)
		}

		instances := 0

		// Normalized names of jobs already explained by a test-level
		// failure in this build.
		trackedJobs := make(map[string]struct{})

		for _, f := range r.NewFailures {
			job := jobOrUnknown(f.Job)
			a.record(s, f.Case, job, r.BuildID)
			trackedJobs[a.matcher.Normalize(job)] = struct{}{}
			instances++

			if errType := ClassifyError(f.Error); errType != "" {
				s.ErrorTypes[errType]++
			}
		}

		for _, f := range r.ExistingFailures {
			job := jobOrUnknown(f.Job)
			a.record(s, f.Case, job, r.BuildID)
			trackedJobs[a.matcher.Normalize(job)] = struct{}{}
			instances++
		}

		for _, j := range r.FailedJobs {
			// Hung jobs carry no test context to deduplicate against,
			// so they always count.
			if j.Status == model.JobUnknown {
				s.HungJobs[j.Name]++
				a.record(s, SyntheticHung, j.Name, r.BuildID)
				instances++
				continue
			}
			if a.tracked(trackedJobs, a.matcher.Normalize(j.Name)) {
				continue
			}
			a.record(s, SyntheticJobFailed, j.Name, r.BuildID)
			instances++
		}

		if r.Status != model.StatusSuccess {
			perFailedBuild = append(perFailedBuild, float64(instances))
		}
	}

	for _, tf := range s.TestFailures {
		s.TotalFailureInstances += tf.Count
	}
	if len(perFailedBuild) > 0 {
		mean, err := stats.Mean(perFailedBuild)
		if err != nil {
			a.logger.Warn().Err(err).Msg("computing mean failures per build")
		} else {
			s.MeanFailuresPerFailedBuild = mean
		}
	}

	s.Patterns = clusterPatterns(reports)
	return s
}

func (a *Aggregator) record(s *model.AggregateStats, testCase, job string, buildID int) {
	tf, ok := s.TestFailures[testCase]
	if !ok {
		tf = &model.TestFailureStats{
			Jobs:   make(map[string]int),
			Builds: make(map[int]struct{}),
		}
		s.TestFailures[testCase] = tf
	}
	tf.Count++
	tf.Jobs[job]++
	tf.Builds[buildID] = struct{}{}
}

func (a *Aggregator) tracked(trackedJobs map[string]struct{}, normalized string) bool {
	for tracked := range trackedJobs {
		if a.matcher.Match(normalized, tracked) {
			return true
		}
	}
	return false
}

// ClassifyError buckets an error excerpt into a histogram class. The
// rules apply in a fixed priority order; an empty excerpt classifies
// as nothing.
func ClassifyError(excerpt string) string {
	switch {
	case excerpt == "":
		return ""
	case strings.Contains(excerpt, "AssertionError"):
		return "AssertionError"
	case strings.Contains(excerpt, "RFC") || strings.Contains(excerpt, "MUST"):
		return "RFC Compliance"
	case strings.Contains(strings.ToLower(excerpt), "timeout") ||
		strings.Contains(strings.ToLower(excerpt), "hung"):
		return "Timeout/Hung"
	default:
		return "Other Error"
	}
}

func jobOrUnknown(job string) string {
	if job == "" {
		return unknownJob
	}
	return job
}

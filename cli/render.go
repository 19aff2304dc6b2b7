package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cistat/cistat/model"
)

// renderReport prints a single build's outcome in the order an
// operator scans for: verdict first, then jobs, then failing cases.
func renderReport(w io.Writer, r *model.BuildReport, details bool) {
	fmt.Fprintf(w, "Build #%d: %s\n", r.BuildID, r.Status)
	if r.CompletedText != "" {
		fmt.Fprintf(w, "Completed: %s\n", r.CompletedText)
	}
	if r.TotalTests > 0 {
		fmt.Fprintf(w, "Tests: %d total, %d quarantined/skipped\n", r.TotalTests, r.QuarantinedSkipped)
	}
	fmt.Fprintf(w, "URL: %s\n", r.SourceURL)

	if len(r.FailedJobs) > 0 {
		fmt.Fprintf(w, "\nFailed jobs (%d):\n", len(r.FailedJobs))
		for _, j := range r.FailedJobs {
			fmt.Fprintf(w, "  [%s] %s\n", j.Status, j.Name)
			if j.Reason != "" {
				fmt.Fprintf(w, "      %s\n", j.Reason)
			}
			if j.Diagnostic != nil {
				fmt.Fprintf(w, "      %s\n", j.Diagnostic.Summary)
			}
		}
	}

	renderFailureList(w, "New test failures", r.NewFailures, details)
	renderFailureList(w, "Existing test failures", r.ExistingFailures, details)

	if len(r.FixedTests) > 0 {
		fmt.Fprintf(w, "\nFixed tests (%d):\n", len(r.FixedTests))
		for _, name := range r.FixedTests {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}
}

func renderFailureList(w io.Writer, title string, failures []model.FailureRecord, details bool) {
	if len(failures) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s (%d):\n", title, len(failures))
	for _, f := range failures {
		line := f.Case
		if f.Job != "" {
			line += " on " + f.Job
		}
		fmt.Fprintf(w, "  %s\n", line)
		if details && f.Error != "" {
			fmt.Fprintf(w, "      %s\n", firstLine(f.Error))
		}
	}
}

// renderStats prints the aggregate view over a walked window.
func renderStats(w io.Writer, s *model.AggregateStats, days, top int) {
	fmt.Fprintf(w, "Builds analyzed (last %d days): %d\n", days, s.Total)
	if s.Total == 0 {
		return
	}
	fmt.Fprintf(w, "  Successful: %d\n", s.Successful)
	fmt.Fprintf(w, "  Failed:     %d\n", s.Failed)
	fmt.Fprintf(w, "  Success rate: %.1f%%\n", s.SuccessRate())
	if first, last, ok := buildRange(s); ok {
		fmt.Fprintf(w, "  Build range: #%d .. #%d\n", first, last)
	}
	if s.Failed > 0 {
		fmt.Fprintf(w, "  Failure instances: %d (mean %.1f per failed build)\n",
			s.TotalFailureInstances, s.MeanFailuresPerFailedBuild)
	}

	if len(s.TestFailures) > 0 {
		fmt.Fprintf(w, "\nMost frequent failures (top %d):\n", top)
		for _, name := range rankedFailures(s.TestFailures, top) {
			tf := s.TestFailures[name]
			fmt.Fprintf(w, "  %3dx %s (in %d build(s))\n", tf.Count, name, len(tf.Builds))
			for _, job := range rankedJobs(tf.Jobs) {
				fmt.Fprintf(w, "        %dx on %s\n", tf.Jobs[job], job)
			}
		}
	}

	if len(s.HungJobs) > 0 {
		fmt.Fprintf(w, "\nHung/timeout jobs:\n")
		for _, job := range rankedJobs(s.HungJobs) {
			fmt.Fprintf(w, "  %3dx %s\n", s.HungJobs[job], job)
		}
	}

	if len(s.ErrorTypes) > 0 {
		fmt.Fprintf(w, "\nError types:\n")
		for _, kind := range rankedJobs(s.ErrorTypes) {
			fmt.Fprintf(w, "  %3dx %s\n", s.ErrorTypes[kind], kind)
		}
	}

	renderPatterns(w, s.Patterns)
}

const maxPatterns = 10

func renderPatterns(w io.Writer, patterns []model.Pattern) {
	if len(patterns) == 0 {
		return
	}
	fmt.Fprintf(w, "\nRecurring failure patterns:\n")
	for i, p := range patterns {
		if i >= maxPatterns {
			fmt.Fprintf(w, "  ... and %d more\n", len(patterns)-maxPatterns)
			break
		}
		fmt.Fprintf(w, "  %d build(s) %v:\n", len(p.Builds), p.Builds)
		for _, e := range p.Entries {
			switch e.Kind {
			case model.PatternHung:
				fmt.Fprintf(w, "    hung: %s\n", e.Text)
			case model.PatternJobOnly:
				fmt.Fprintf(w, "    job:  %s\n", e.Text)
			default:
				fmt.Fprintf(w, "    %s\n", e.Text)
			}
		}
	}
}

// rankedFailures orders test names by failure count, ties by name.
func rankedFailures(failures map[string]*model.TestFailureStats, top int) []string {
	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ci, cj := failures[names[i]].Count, failures[names[j]].Count
		if ci != cj {
			return ci > cj
		}
		return names[i] < names[j]
	})
	if top > 0 && len(names) > top {
		names = names[:top]
	}
	return names
}

func rankedJobs(counts map[string]int) []string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

func buildRange(s *model.AggregateStats) (int, int, bool) {
	first, last := 0, 0
	seen := false
	for _, ids := range s.BuildsByStatus {
		for _, id := range ids {
			if !seen || id < first {
				first = id
			}
			if !seen || id > last {
				last = id
			}
			seen = true
		}
	}
	return first, last, seen
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return strings.TrimSpace(text[:i])
	}
	return strings.TrimSpace(text)
}

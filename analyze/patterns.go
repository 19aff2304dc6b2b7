package analyze

import (
	"sort"
	"strings"

	"github.com/cistat/cistat/model"
)

// clusterPatterns groups non-success builds by failure signature. The
// signature is the sorted set of tagged failure entries; builds with
// byte-identical signatures land in one cluster.
func clusterPatterns(reports []*model.BuildReport) []model.Pattern {
	groups := make(map[string]*model.Pattern)

	for _, r := range reports {
		if r.Status == model.StatusSuccess {
			continue
		}
		entries := Signature(r)
		key := signatureKey(entries)
		g, ok := groups[key]
		if !ok {
			g = &model.Pattern{Entries: entries}
			groups[key] = g
		}
		g.Builds = append(g.Builds, r.BuildID)
	}

	patterns := make([]model.Pattern, 0, len(groups))
	for _, g := range groups {
		sort.Ints(g.Builds)
		patterns = append(patterns, *g)
	}

	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i].Builds) != len(patterns[j].Builds) {
			return len(patterns[i].Builds) > len(patterns[j].Builds)
		}
		return signatureKey(patterns[i].Entries) < signatureKey(patterns[j].Entries)
	})
	return patterns
}

// Signature computes a build's failure signature: one combined entry
// per test failure, one hung entry per unknown-status job, and one
// job_only entry per failed job whose exact name has no combined entry
// in this build.
func Signature(r *model.BuildReport) []model.PatternEntry {
	var entries []model.PatternEntry
	jobsWithTests := make(map[string]struct{})

	combined := func(f model.FailureRecord) {
		job := jobOrUnknown(f.Job)
		entries = append(entries, model.PatternEntry{
			Kind: model.PatternCombined,
			Text: job + " - " + f.Case,
		})
		jobsWithTests[job] = struct{}{}
	}
	for _, f := range r.NewFailures {
		combined(f)
	}
	for _, f := range r.ExistingFailures {
		combined(f)
	}

	for _, j := range r.FailedJobs {
		if j.Status == model.JobUnknown {
			entries = append(entries, model.PatternEntry{Kind: model.PatternHung, Text: j.Name})
			continue
		}
		if _, ok := jobsWithTests[jobOrUnknown(j.Name)]; !ok {
			entries = append(entries, model.PatternEntry{Kind: model.PatternJobOnly, Text: j.Name})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind < entries[j].Kind
		}
		return entries[i].Text < entries[j].Text
	})
	return entries
}

func signatureKey(entries []model.PatternEntry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(string(e.Kind))
		b.WriteByte(':')
		b.WriteString(e.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

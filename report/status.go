package report

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cistat/cistat/model"
)

// statusHeuristic inspects one region of the page and returns a status,
// or StatusUnknown when it cannot tell.
type statusHeuristic func(doc *goquery.Document, pageText string) model.Status

// statusHeuristics is an ordered guard list, evaluated left to right
// with early termination on the first hit. The order is a confidence
// ranking: direct heading text outranks the looser summary match, which
// outranks the failure counters, which outrank the failing-since
// marker. Structural table evidence is handled separately after table
// parsing.
var statusHeuristics = []statusHeuristic{
	statusFromHeading,
	statusFromBuildSummary,
	statusFromFailureCounters,
	statusFromFailingSince,
}

var (
	failedWordRe  = regexp.MustCompile(`\bfailed\b`)
	successWordRe = regexp.MustCompile(`\b(successful|success)\b`)

	buildSummaryRe = regexp.MustCompile(`(?i)Build[^\n]*#\d+[^\n]*\b(failed|successful)\b`)

	newFailuresCountRe      = regexp.MustCompile(`(?i)New test failures\s+(\d+)`)
	existingFailuresCountRe = regexp.MustCompile(`(?i)Existing test failures\s+(\d+)`)
)

// statusFromText needs whole-word matches so that e.g. "failedover"
// or test names containing "failed" do not misclassify the build.
func statusFromText(text string) model.Status {
	lower := strings.ToLower(text)
	if failedWordRe.MatchString(lower) {
		return model.StatusFailed
	}
	if successWordRe.MatchString(lower) {
		return model.StatusSuccess
	}
	return model.StatusUnknown
}

func statusFromHeading(doc *goquery.Document, _ string) model.Status {
	heading := doc.Find("h1").First()
	if heading.Length() == 0 {
		return model.StatusUnknown
	}
	return statusFromText(heading.Text())
}

// statusFromBuildSummary matches a looser "Build ... #N ... failed"
// summary line anywhere in the page.
func statusFromBuildSummary(_ *goquery.Document, pageText string) model.Status {
	m := buildSummaryRe.FindString(pageText)
	if m == "" {
		return model.StatusUnknown
	}
	return statusFromText(m)
}

func statusFromFailureCounters(_ *goquery.Document, pageText string) model.Status {
	for _, re := range []*regexp.Regexp{newFailuresCountRe, existingFailuresCountRe} {
		m := re.FindStringSubmatch(pageText)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return model.StatusFailed
		}
	}
	return model.StatusUnknown
}

func statusFromFailingSince(doc *goquery.Document, _ string) model.Status {
	if doc.Find("dt.failing-since").Length() > 0 {
		return model.StatusFailed
	}
	return model.StatusUnknown
}

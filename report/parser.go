// Package report converts one Bamboo-style build result page into a
// structured BuildReport. The pages are loosely structured and vary
// across builds, so every extraction step is a heuristic that degrades
// to a safe default; Parse never fails for malformed input.
package report

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/cistat/cistat/model"
)

// LogFetcher retrieves the raw log page for a job, for sanitizer
// diagnostic enrichment. ok is false when no log can be located.
type LogFetcher interface {
	FetchLog(ctx context.Context, baseURL, jobKey string) (string, bool)
}

// Parser extracts BuildReports from page text.
type Parser struct {
	logs   LogFetcher
	logger zerolog.Logger
}

// New creates a parser. With a nil LogFetcher, Parse is a pure function
// of its input; sanitizer jobs then only get diagnostics the page
// itself carries.
func New(logger zerolog.Logger, logs LogFetcher) *Parser {
	return &Parser{logs: logs, logger: logger}
}

var (
	urlIDRe     = regexp.MustCompile(`-(\d+)/?$`)
	headingIDRe = regexp.MustCompile(`#([\d,]+)`)

	totalTestsRe  = regexp.MustCompile(`(?i)Total tests[:\s]+(\d+)`)
	quarantinedRe = regexp.MustCompile(`(?i)(\d+)\s+Quarantined\s*/\s*skipped`)

	agoSuffixRe = regexp.MustCompile(`\s*–\s*.*$`)
	dayRe       = regexp.MustCompile(`(\d{1,2}\s+\w+\s+\d{4})`)
)

// dayLayout parses timestamps like "17 Oct 2025".
const dayLayout = "2 Jan 2006"

// Parse extracts a BuildReport from one page. Status resolution is
// two-phase: the ordered per-section heuristics run first, then after
// all tables are parsed the collected evidence is reconciled.
func (p *Parser) Parse(ctx context.Context, documentText, sourceURL string) *model.BuildReport {
	r := &model.BuildReport{
		SourceURL: sourceURL,
		Status:    model.StatusUnknown,
		BuildID:   buildIDFromURL(sourceURL),
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(documentText))
	if err != nil {
		p.logger.Warn().Err(err).Str("url", sourceURL).Msg("unreadable document")
		return r
	}
	pageText := doc.Text()

	if id := buildIDFromHeading(doc); id != 0 {
		r.BuildID = id
	}

	for _, heuristic := range statusHeuristics {
		if s := heuristic(doc, pageText); s != model.StatusUnknown {
			r.Status = s
			break
		}
	}

	r.CompletedText, r.CompletedAt = completedTime(doc)
	r.TotalTests = intFromPattern(totalTestsRe, pageText)
	r.QuarantinedSkipped = intFromPattern(quarantinedRe, pageText)

	p.parseTables(doc, r)
	p.parseFailedJobs(ctx, doc, pageText, sourceURL, r)

	// Evidence reconciliation: structural findings outrank a silent
	// page, but only once all tables have been seen.
	if r.Status == model.StatusUnknown && r.HasFailureEvidence() {
		r.Status = model.StatusFailed
	}
	if r.Status == model.StatusUnknown && r.TotalTests > 0 && !r.HasFailureEvidence() {
		r.Status = model.StatusSuccess
	}

	return r
}

func buildIDFromURL(sourceURL string) int {
	m := urlIDRe.FindStringSubmatch(sourceURL)
	if m == nil {
		return 0
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return id
}

func buildIDFromHeading(doc *goquery.Document) int {
	heading := doc.Find("h1").First()
	if heading.Length() == 0 {
		return 0
	}
	m := headingIDRe.FindStringSubmatch(heading.Text())
	if m == nil {
		return 0
	}
	id, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0
	}
	return id
}

// completedTime reads the "Completed" definition pair. The time element
// shows e.g. "17 Oct 2025, 1:43:42 PM – 18 hours ago"; only the day
// part matters for windowing, and an unparseable date leaves
// CompletedAt nil without discarding the raw text.
func completedTime(doc *goquery.Document) (string, *time.Time) {
	dt := doc.Find("dt.completed").First()
	if dt.Length() == 0 {
		return "", nil
	}
	dd := dt.NextFiltered("dd").First()
	if dd.Length() == 0 {
		return "", nil
	}
	elem := dd.Find("time").First()
	if elem.Length() == 0 {
		return "", nil
	}

	text := agoSuffixRe.ReplaceAllString(strings.TrimSpace(elem.Text()), "")
	m := dayRe.FindStringSubmatch(text)
	if m == nil {
		return text, nil
	}
	day, err := time.Parse(dayLayout, m[1])
	if err != nil {
		return text, nil
	}
	return text, &day
}

func intFromPattern(re *regexp.Regexp, text string) int {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

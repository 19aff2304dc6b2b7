package report

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cistat/cistat/model"
	"github.com/cistat/cistat/sanitizer"
)

var sanitizerJobRe = regexp.MustCompile(`(?i)AddressSanitizer|ASAN`)

// hungMarker is the page-wide note Bamboo leaves when a build was
// declared hung.
const hungMarker = "Detected hung build state"

const (
	reasonHung      = "Hung build detected (logs quiet for extended period)"
	reasonUnknown   = "Unknown status"
	reasonJobFailed = "Job failed"
	reasonSanitizer = "AddressSanitizer detected issue - check job logs for details"
)

// parseFailedJobs converts job list items tagged Failed or Unknown into
// JobFailures. Sanitizer-titled failed jobs additionally get a
// diagnostic, from the page's inline markers, from the page text, or
// from a fetched job log, in that order.
func (p *Parser) parseFailedJobs(ctx context.Context, doc *goquery.Document, pageText, sourceURL string, r *model.BuildReport) {
	pageDiags := sanitizer.FromPageText(pageText)
	buildHung := strings.Contains(pageText, hungMarker)

	doc.Find(`li[id^="job-"]`).Each(func(_ int, item *goquery.Selection) {
		classes := strings.Fields(item.AttrOr("class", ""))
		if len(classes) == 0 {
			return
		}
		status := model.JobStatus(classes[0])
		if status != model.JobFailed && status != model.JobUnknown {
			return
		}

		jf := model.JobFailure{
			Name:   item.AttrOr("title", ""),
			Status: status,
			Key:    item.AttrOr("data-job-key", ""),
		}

		switch {
		case status == model.JobUnknown && buildHung:
			jf.Reason = reasonHung
		case status == model.JobUnknown:
			jf.Reason = reasonUnknown
		case sanitizerJobRe.MatchString(jf.Name):
			jf.Diagnostic, jf.Reason = p.sanitizerDiagnostic(ctx, pageDiags, pageText, sourceURL, jf.Key)
		default:
			jf.Reason = reasonJobFailed
		}

		r.FailedJobs = append(r.FailedJobs, jf)
	})
}

// sanitizerDiagnostic resolves the diagnostic for a sanitizer-flagged
// job, trying the cheapest source first and fetching the job log only
// as a last resort.
func (p *Parser) sanitizerDiagnostic(ctx context.Context, pageDiags []*model.SanitizerDetail, pageText, sourceURL, jobKey string) (*model.SanitizerDetail, string) {
	if len(pageDiags) > 0 {
		return pageDiags[0], pageDiags[0].Summary
	}

	if d := sanitizer.Parse(pageText); d != nil && d.Summary != "" {
		return d, d.Summary
	}

	if p.logs != nil {
		if logText, ok := p.logs.FetchLog(ctx, sourceURL, jobKey); ok {
			if d := sanitizer.Parse(logText); d != nil && d.Summary != "" {
				return d, d.Summary
			}
		}
	}

	return nil, reasonSanitizer
}

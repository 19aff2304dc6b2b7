package report

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cistat/cistat/model"
)

type tableKind int

const (
	tableIgnored tableKind = iota
	tableNewFailures
	tableExistingFailures
	tableFixedTests
)

// boilerplateNames are cell texts that mark a row as a header repeat or
// pure status chrome rather than a test entry.
var boilerplateNames = map[string]struct{}{
	"test":     {},
	"status":   {},
	"view job": {},
	"failed":   {},
	"collapse": {},
	"expand":   {},
}

// errorIndicators must appear in a candidate detail row for its text to
// be taken as an error excerpt.
var errorIndicators = []string{"Error", "Failure", "Assert", "RFC", "MUST", "Exception"}

var suiteCaseRe = regexp.MustCompile(`^(.+?)\s*\[([^\]]+)\]`)

func (p *Parser) parseTables(doc *goquery.Document, r *model.BuildReport) {
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		switch classifyTable(table) {
		case tableNewFailures:
			p.parseFailureTable(table, r, false)
		case tableExistingFailures:
			p.parseFailureTable(table, r, true)
		case tableFixedTests:
			p.parseFixedTable(table, r)
		}
	})
}

// classifyTable decides what a candidate table holds. A failure table
// needs both a status and a test token in its header row; the section
// label (caption or nearest preceding heading) separates the
// fixed/existing variants from new failures.
func classifyTable(table *goquery.Selection) tableKind {
	header := table.Find("tr").First()
	if header.Length() == 0 {
		return tableIgnored
	}
	headerText := strings.ToLower(header.Text())
	if strings.Contains(headerText, "artifact") || strings.Contains(headerText, "file size") {
		return tableIgnored
	}
	if !strings.Contains(headerText, "status") || !strings.Contains(headerText, "test") {
		return tableIgnored
	}

	section := strings.ToLower(sectionLabel(table))
	switch {
	case strings.Contains(section, "fixed tests"):
		return tableFixedTests
	case strings.Contains(section, "existing test failures"):
		return tableExistingFailures
	}
	return tableNewFailures
}

// sectionLabel returns the caption or nearest preceding heading text;
// Bamboo puts section names in either place.
func sectionLabel(table *goquery.Selection) string {
	if caption := table.Find("caption").First(); caption.Length() > 0 {
		return caption.Text()
	}
	if heading := table.PrevAllFiltered("h1, h2, h3, h4").First(); heading.Length() > 0 {
		return heading.Text()
	}
	return ""
}

// parseFailureTable walks data rows of a new- or existing-failures
// table. The two kinds differ in minimum cell count and job column;
// layout is inferred from cell count since Bamboo renders at least two
// variants of each.
func (p *Parser) parseFailureTable(table *goquery.Selection, r *model.BuildReport, existing bool) {
	minCells := 2
	if existing {
		minCells = 3
	}

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return // header
		}
		cells := row.Find("td")
		if cells.Length() < minCells {
			return
		}

		if !existing {
			statusText := strings.ToLower(strings.TrimSpace(cells.Eq(0).Text()))
			if !strings.Contains(statusText, "fail") && !strings.Contains(statusText, "collapse") {
				return
			}
		}

		rec, ok := failureFromRow(cells, existing)
		if !ok {
			return
		}

		if existing {
			r.ExistingFailures = append(r.ExistingFailures, rec)
		} else {
			rec.Error = errorExcerpt(row)
			r.NewFailures = append(r.NewFailures, rec)
		}
	})
}

func (p *Parser) parseFixedTable(table *goquery.Selection, r *model.BuildReport) {
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		_, _, label := testLabel(testCell(cells))
		if label == "" {
			return
		}
		if _, skip := boilerplateNames[strings.ToLower(label)]; skip {
			return
		}
		statusText := strings.ToLower(strings.TrimSpace(cells.Eq(0).Text()))
		if strings.Contains(statusText, "success") || !strings.Contains(statusText, "expand") {
			r.FixedTests = append(r.FixedTests, label)
		}
	})
}

func failureFromRow(cells *goquery.Selection, existing bool) (model.FailureRecord, bool) {
	suite, caseName, label := testLabel(testCell(cells))
	if label == "" {
		return model.FailureRecord{}, false
	}
	if _, skip := boilerplateNames[strings.ToLower(label)]; skip {
		return model.FailureRecord{}, false
	}

	// New-failures layout puts the job in column 3; the wider
	// existing-failures layout adds a failing-since column before it.
	jobCol := 3
	if existing && cells.Length() >= 6 {
		jobCol = 4
	}
	job := ""
	if cells.Length() > jobCol {
		jobCell := cells.Eq(jobCol)
		if link := jobCell.Find("a").First(); link.Length() > 0 {
			job = strings.TrimSpace(link.Text())
		} else {
			job = strings.TrimSpace(jobCell.Text())
		}
	}

	return model.FailureRecord{
		Suite: suite,
		Case:  formatCase(suite, caseName),
		Job:   job,
	}, true
}

func testCell(cells *goquery.Selection) *goquery.Selection {
	if cells.Length() >= 3 {
		return cells.Eq(2)
	}
	return cells.Eq(1)
}

// testLabel pulls suite and case out of a test cell, preferring
// Bamboo's test-class/test-name markup over the raw cell text.
func testLabel(cell *goquery.Selection) (suite, caseName, label string) {
	suiteSpan := cell.Find("span.test-class").First()
	nameLink := cell.Find("a.test-name").First()

	switch {
	case suiteSpan.Length() > 0 && nameLink.Length() > 0:
		suite = strings.TrimSpace(suiteSpan.Text())
		caseName = strings.TrimSpace(nameLink.Text())
		label = fmt.Sprintf("%s [%s]", suite, caseName)
	case nameLink.Length() > 0:
		caseName = strings.TrimSpace(nameLink.Text())
		label = caseName
	default:
		label = strings.TrimSpace(cell.Text())
		suite, caseName = SplitSuiteCase(label)
	}
	return suite, caseName, label
}

// SplitSuiteCase splits a "Suite [Case]" shaped label. A label without
// brackets is all case.
func SplitSuiteCase(label string) (suite, caseName string) {
	if m := suiteCaseRe.FindStringSubmatch(label); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	return "", strings.TrimSpace(label)
}

func formatCase(suite, caseName string) string {
	if suite != "" && caseName != "" {
		return suite + "." + caseName
	}
	return caseName
}

// errorExcerpt takes the row immediately after a failure row only when
// it is structurally a detail row (two cells or fewer) and carries an
// error indicator; otherwise the next row is another test entry.
func errorExcerpt(row *goquery.Selection) string {
	next := row.Next()
	if next.Length() == 0 || !next.Is("tr") {
		return ""
	}
	if next.Find("td").Length() > 2 {
		return ""
	}
	text := strings.TrimSpace(next.Text())
	for _, indicator := range errorIndicators {
		if strings.Contains(text, indicator) {
			return text
		}
	}
	return ""
}

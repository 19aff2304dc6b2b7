// Package sanitizer extracts structured memory-safety diagnostics from
// the free-text logs of sanitizer-flagged jobs. The input is log-like
// text, not a grammar: extraction is layered regex passes where later
// passes only fill fields the earlier ones left empty.
package sanitizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cistat/cistat/model"
)

var (
	leakRe    = regexp.MustCompile(`(?i)(Direct|Indirect) leak of (\d+) byte[s]? in (\d+) object`)
	summaryRe = regexp.MustCompile(`(?i)SUMMARY: AddressSanitizer: ([^\n]+)`)
	errorRe   = regexp.MustCompile(`(?i)ERROR: AddressSanitizer: ([^\n]+)`)
	byteRe    = regexp.MustCompile(`(\d+) byte`)
)

// testPatterns recognize the shapes a test name shows up in near a
// diagnostic, from most to least specific.
var testPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)(?:Running test:|Test case:|Testing:)\s+([a-zA-Z0-9_.-]+)`),
	regexp.MustCompile(`(?im)===== ([a-zA-Z0-9_.-]+) =====`),
	regexp.MustCompile(`(?im)/tests?/[^/\n]+/([a-zA-Z0-9_.-]+)\.py`),
	regexp.MustCompile(`(?im)test[_-]([a-zA-Z0-9_.-]+)`),
	regexp.MustCompile(`(?im)^([a-zA-Z0-9_]+)::test`),
}

// contextWindow bounds how far back from a diagnostic the associated
// test is searched for.
const contextWindow = 10000

// Parse extracts a sanitizer diagnostic from log text. It returns nil
// when no recognized diagnostic signal exists at all, which is distinct
// from a detected diagnostic with empty fields.
func Parse(logText string) *model.SanitizerDetail {
	if logText == "" {
		return nil
	}

	d := &model.SanitizerDetail{}
	found := false

	if m := leakRe.FindStringSubmatch(logText); m != nil {
		found = true
		d.ErrorType = "memory-leak"
		d.LeakKind = leakKind(m[1])
		d.LeakSize = fmt.Sprintf("%s bytes in %s object(s)", m[2], m[3])
	}

	if m := summaryRe.FindStringSubmatch(logText); m != nil {
		found = true
		applySummary(d, strings.TrimSpace(m[1]))
	}

	if m := errorRe.FindStringSubmatch(logText); m != nil {
		found = true
		if d.ErrorType == "" {
			d.ErrorType = strings.TrimSpace(m[1])
		}
	}

	if !found {
		return nil
	}

	d.Test = associatedTest(logText)
	d.Summary = summarize(d)
	return d
}

func leakKind(raw string) model.LeakKind {
	if strings.EqualFold(raw, string(model.LeakIndirect)) {
		return model.LeakIndirect
	}
	return model.LeakDirect
}

// applySummary classifies a "SUMMARY: AddressSanitizer: ..." line,
// filling only fields still empty.
func applySummary(d *model.SanitizerDetail, summary string) {
	lower := strings.ToLower(summary)
	switch {
	case strings.Contains(lower, "leak"):
		if d.ErrorType == "" {
			d.ErrorType = "memory-leak"
		}
		if d.LeakSize == "" {
			if m := byteRe.FindStringSubmatch(summary); m != nil {
				d.LeakSize = m[1] + " bytes"
			}
		}
	case strings.Contains(lower, "heap-buffer-overflow"):
		if d.ErrorType == "" {
			d.ErrorType = "heap-buffer-overflow"
		}
	case strings.Contains(lower, "use-after-free"):
		if d.ErrorType == "" {
			d.ErrorType = "use-after-free"
		}
	case strings.Contains(lower, "stack-buffer-overflow"):
		if d.ErrorType == "" {
			d.ErrorType = "stack-buffer-overflow"
		}
	case strings.Contains(lower, "global-buffer-overflow"):
		if d.ErrorType == "" {
			d.ErrorType = "global-buffer-overflow"
		}
	default:
		if d.ErrorType == "" {
			if fields := strings.Fields(summary); len(fields) > 0 {
				d.ErrorType = fields[0]
			} else {
				d.ErrorType = "unknown"
			}
		}
	}
}

// associatedTest searches the text preceding the diagnostic for a test
// name, taking the last (closest-preceding) match of the first pattern
// that matches at all.
func associatedTest(logText string) string {
	errorPos := -1
	for _, marker := range []string{"leak of", "ERROR:", "SUMMARY:"} {
		if pos := strings.Index(logText, marker); pos > 0 {
			errorPos = pos
			break
		}
	}
	if errorPos <= 0 {
		return ""
	}

	start := errorPos - contextWindow
	if start < 0 {
		start = 0
	}
	context := logText[start:errorPos]

	for _, re := range testPatterns {
		matches := re.FindAllStringSubmatch(context, -1)
		if len(matches) == 0 {
			continue
		}
		name := matches[len(matches)-1][1]
		name = strings.TrimSuffix(name, ".pyc")
		name = strings.TrimSuffix(name, ".py")
		if name == "" {
			continue
		}
		if !strings.HasPrefix(name, "test") {
			name = "test_" + name
		}
		return name
	}
	return ""
}

func summarize(d *model.SanitizerDetail) string {
	test := d.Test
	if test == "" {
		test = "unknown test"
	}

	if d.ErrorType == "memory-leak" {
		kind := string(d.LeakKind)
		if kind == "" {
			kind = "Memory"
		}
		size := d.LeakSize
		if size == "" {
			size = "unknown size"
		}
		return fmt.Sprintf("%s leak detected (%s) in %s", kind, size, test)
	}

	errType := d.ErrorType
	if errType == "" {
		errType = "Unknown issue"
	}
	if d.LeakSize != "" {
		return fmt.Sprintf("%s (%s) in %s", errType, d.LeakSize, test)
	}
	return fmt.Sprintf("%s in %s", errType, test)
}

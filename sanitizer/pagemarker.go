package sanitizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cistat/cistat/model"
)

var (
	pageMarkerRe     = regexp.MustCompile(`(?i)Address Sanitizer Error detected in ([^\n]+)`)
	leaksTriggeredRe = regexp.MustCompile(`(?i)(\d+)\s+Leaks?\s+triggered`)
	pathTestRe       = regexp.MustCompile(`([a-zA-Z0-9_.-]+)\.test_([a-zA-Z0-9_.-]+)`)
)

// markerContext is how far past an inline marker its leak counter is
// looked for.
const markerContext = 500

// FromPageText scans visible page text for Bamboo's inline sanitizer
// markers ("Address Sanitizer Error detected in ...") and returns one
// detail per occurrence. Build pages often surface the error this way
// without exposing the job log.
func FromPageText(pageText string) []*model.SanitizerDetail {
	var details []*model.SanitizerDetail

	for _, loc := range pageMarkerRe.FindAllStringSubmatchIndex(pageText, -1) {
		testPath := strings.TrimSpace(pageText[loc[2]:loc[3]])

		end := loc[1] + markerContext
		if end > len(pageText) {
			end = len(pageText)
		}
		context := pageText[loc[0]:end]

		leakCount := ""
		if m := leaksTriggeredRe.FindStringSubmatch(context); m != nil {
			leakCount = m[1]
		}

		d := &model.SanitizerDetail{
			Test: testFromPath(testPath),
		}
		if leakCount != "" {
			d.ErrorType = "memory-leak"
			d.Summary = fmt.Sprintf("Memory leak detected (%s leak(s)) in %s", leakCount, d.Test)
		} else {
			d.ErrorType = "asan-error"
			d.Summary = fmt.Sprintf("AddressSanitizer error in %s", d.Test)
		}
		details = append(details, d)
	}

	return details
}

// testFromPath recovers a test name from an artifact-style path like
// "bfd_vrf_topo1.test_bfd_vrf_topo1/r3.asan.bgpd.27086".
func testFromPath(testPath string) string {
	if m := pathTestRe.FindStringSubmatch(testPath); m != nil {
		return fmt.Sprintf("%s.test_%s", m[1], m[2])
	}
	if i := strings.IndexByte(testPath, '/'); i > 0 {
		return testPath[:i]
	}
	return testPath
}

// Package jobname canonicalizes free-text CI job names and decides
// whether two names denote the same job. It exists so a failure that
// shows up both as a test-level row and as a failed-job entry is only
// counted once.
package jobname

import "strings"

// DefaultFillerTokens are removed during normalization, in order.
// Removal is plain substring replacement, so order matters ("testing"
// before "test").
var DefaultFillerTokens = []string{
	"testing",
	"protocol",
	"on",
	"the",
	"test",
	"tests",
	"ipv4",
	"ipv6",
	"basic",
}

// DefaultMetadataTokens are build-metadata words ignored when comparing
// word sets. They distinguish build variants, not jobs.
var DefaultMetadataTokens = []string{"part", "build", "amd64", "arm8", "i386"}

// DefaultContainmentThreshold is the minimum fraction of the smaller
// word set that must overlap the larger for two names to match. The
// asymmetric denominator is intentional: it lets a short canonical name
// absorb a longer verbose one.
const DefaultContainmentThreshold = 0.66

// Matcher holds the tunable normalization and matching heuristics.
type Matcher struct {
	fillerTokens   []string
	metadataTokens map[string]struct{}
	threshold      float64
}

// New builds a Matcher from explicit token sets and threshold.
func New(fillerTokens, metadataTokens []string, threshold float64) *Matcher {
	meta := make(map[string]struct{}, len(metadataTokens))
	for _, t := range metadataTokens {
		meta[strings.ToLower(t)] = struct{}{}
	}
	return &Matcher{
		fillerTokens:   fillerTokens,
		metadataTokens: meta,
		threshold:      threshold,
	}
}

// Default returns a Matcher with the inherited heuristic constants.
func Default() *Matcher {
	return New(DefaultFillerTokens, DefaultMetadataTokens, DefaultContainmentThreshold)
}

// Normalize lowercases a job name, strips filler tokens, and collapses
// whitespace.
//
//	"IPv4 LDP Protocol on Debian 12" -> "ldp debian 12"
//	"LDP Testing on Debian 12"       -> "ldp debian 12"
func (m *Matcher) Normalize(name string) string {
	n := strings.ToLower(name)
	for _, token := range m.fillerTokens {
		n = strings.ReplaceAll(n, token, "")
	}
	return strings.Join(strings.Fields(n), " ")
}

// Match reports whether two normalized job names likely refer to the
// same job: either one contains the other, or their word sets (less
// metadata tokens) overlap by at least the containment threshold of the
// smaller set.
func (m *Matcher) Match(a, b string) bool {
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}

	wordsA := m.wordSet(a)
	wordsB := m.wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return false
	}

	shared := 0
	for w := range wordsA {
		if _, ok := wordsB[w]; ok {
			shared++
		}
	}

	smaller := len(wordsA)
	if len(wordsB) < smaller {
		smaller = len(wordsB)
	}
	return float64(shared)/float64(smaller) >= m.threshold
}

func (m *Matcher) wordSet(name string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(name) {
		if _, skip := m.metadataTokens[w]; skip {
			continue
		}
		words[w] = struct{}{}
	}
	return words
}

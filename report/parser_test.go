package report

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cistat/cistat/model"
)

func testParser() *Parser {
	return New(zerolog.Nop(), nil)
}

const failedBuildPage = `<html><body>
<h1>Build: FRR-FRR #100 failed</h1>
<dl>
  <dt class="completed">Completed</dt>
  <dd><time>17 Oct 2025, 1:43:42 PM &ndash; 18 hours ago</time></dd>
</dl>
<p>Total tests 21832</p>
<p>5 Quarantined / skipped</p>
<h2>New test failures 1</h2>
<table>
  <tr><th></th><th>Status</th><th>Test</th><th>Job</th></tr>
  <tr>
    <td>Collapse</td>
    <td>Failed</td>
    <td><span class="test-class">BGP Suite</span> <a class="test-name">test_peer_down</a></td>
    <td><a href="/browse/FRR-FRR-AMD64-100">AMD64 Basic</a></td>
  </tr>
  <tr><td colspan="2">AssertionError: peer did not come up</td></tr>
</table>
<h2>Existing test failures 1</h2>
<table>
  <tr><th></th><th>Status</th><th>Test</th><th>Failing since</th><th>Job</th><th>Duration</th></tr>
  <tr>
    <td></td>
    <td>Failed</td>
    <td>RFC-Compliance-tests [ANVL-LDP-9.5]</td>
    <td>#95</td>
    <td><a href="#">IPv4 LDP Protocol on Debian 12</a></td>
    <td>4m</td>
  </tr>
</table>
<h2>Fixed tests</h2>
<table>
  <tr><th>Status</th><th>Test</th><th>Failing since</th><th>Job</th></tr>
  <tr>
    <td>Successful</td>
    <td></td>
    <td>ospf_topo1 [test_ospf_convergence]</td>
    <td>OSPF Testing</td>
  </tr>
</table>
<ul>
  <li id="job-1" class="Failed" title="AddressSanitizer Tests Part 1" data-job-key="FRR-FRR-ASAN1-100"></li>
  <li id="job-2" class="Unknown" title="ISIS Testing on Ubuntu" data-job-key="FRR-FRR-ISIS-100"></li>
  <li id="job-3" class="Successful" title="Static Analysis" data-job-key="FRR-FRR-SA-100"></li>
</ul>
<p>Address Sanitizer Error detected in bfd_vrf_topo1.test_bfd_vrf_topo1/r3.asan.bgpd.27086
2 Leaks triggered</p>
</body></html>`

func TestParseFailedBuild(t *testing.T) {
	r := testParser().Parse(context.Background(), failedBuildPage, "https://ci.example.org/browse/FRR-FRR-100")

	require.Equal(t, 100, r.BuildID)
	require.Equal(t, model.StatusFailed, r.Status)
	require.Equal(t, 21832, r.TotalTests)
	require.Equal(t, 5, r.QuarantinedSkipped)

	require.NotNil(t, r.CompletedAt)
	require.Equal(t, "2025-10-17", r.CompletedAt.Format("2006-01-02"))
	require.Equal(t, "17 Oct 2025, 1:43:42 PM", r.CompletedText)

	require.Len(t, r.NewFailures, 1)
	require.Equal(t, model.FailureRecord{
		Suite: "BGP Suite",
		Case:  "BGP Suite.test_peer_down",
		Job:   "AMD64 Basic",
		Error: "AssertionError: peer did not come up",
	}, r.NewFailures[0])

	require.Len(t, r.ExistingFailures, 1)
	require.Equal(t, model.FailureRecord{
		Suite: "RFC-Compliance-tests",
		Case:  "RFC-Compliance-tests.ANVL-LDP-9.5",
		Job:   "IPv4 LDP Protocol on Debian 12",
	}, r.ExistingFailures[0])

	require.Equal(t, []string{"ospf_topo1 [test_ospf_convergence]"}, r.FixedTests)

	require.Len(t, r.FailedJobs, 2)

	asan := r.FailedJobs[0]
	require.Equal(t, "AddressSanitizer Tests Part 1", asan.Name)
	require.Equal(t, model.JobFailed, asan.Status)
	require.Equal(t, "FRR-FRR-ASAN1-100", asan.Key)
	require.NotNil(t, asan.Diagnostic)
	require.Equal(t, "memory-leak", asan.Diagnostic.ErrorType)
	require.Equal(t, "bfd_vrf_topo1.test_bfd_vrf_topo1", asan.Diagnostic.Test)
	require.Equal(t, "Memory leak detected (2 leak(s)) in bfd_vrf_topo1.test_bfd_vrf_topo1", asan.Reason)

	hung := r.FailedJobs[1]
	require.Equal(t, "ISIS Testing on Ubuntu", hung.Name)
	require.Equal(t, model.JobUnknown, hung.Status)
	require.Equal(t, "Unknown status", hung.Reason)
}

const successBuildPage = `<html><body>
<h1>Build: FRR-FRR #101 was successful</h1>
<dl>
  <dt class="completed">Completed</dt>
  <dd><time>18 Oct 2025, 9:12:00 AM &ndash; 2 hours ago</time></dd>
</dl>
<p>Total tests 500</p>
</body></html>`

func TestParseSuccessfulBuild(t *testing.T) {
	r := testParser().Parse(context.Background(), successBuildPage, "https://ci.example.org/browse/FRR-FRR-101")

	require.Equal(t, 101, r.BuildID)
	require.Equal(t, model.StatusSuccess, r.Status)
	require.Equal(t, 500, r.TotalTests)
	require.Empty(t, r.NewFailures)
	require.Empty(t, r.ExistingFailures)
	require.Empty(t, r.FailedJobs)
}

func TestStatusFromEvidenceWhenHeadingSilent(t *testing.T) {
	// No status word anywhere; the failure table rows are the only
	// evidence and must force FAILED after table parsing.
	page := `<html><body>
<h1>Build results #102</h1>
<table>
  <tr><th>Status</th><th>Test</th><th>Job</th></tr>
  <tr><td>Collapse</td><td>Failed</td><td>bgp_topo1 [test_bgp_basic]</td></tr>
</table>
</body></html>`
	r := testParser().Parse(context.Background(), page, "https://ci.example.org/browse/FRR-FRR-102")
	require.Equal(t, model.StatusFailed, r.Status)
	require.Len(t, r.NewFailures, 1)
	require.Equal(t, "bgp_topo1.test_bgp_basic", r.NewFailures[0].Case)
}

func TestStatusSuccessFromTotalsWithoutHeading(t *testing.T) {
	page := `<html><body>
<h1>Build results #103</h1>
<p>Total tests 500</p>
</body></html>`
	r := testParser().Parse(context.Background(), page, "https://ci.example.org/browse/FRR-FRR-103")
	require.Equal(t, model.StatusSuccess, r.Status)
}

func TestStatusUnknownIsAnOutcome(t *testing.T) {
	page := `<html><body><h1>Some unrelated page</h1></body></html>`
	r := testParser().Parse(context.Background(), page, "https://ci.example.org/browse/FRR-FRR-104")
	require.Equal(t, model.StatusUnknown, r.Status)
	require.Empty(t, r.NewFailures)
	require.Empty(t, r.FailedJobs)
}

func TestStatusFromFailureCounters(t *testing.T) {
	page := `<html><body>
<h1>Build results #105</h1>
<p>Existing test failures 27</p>
</body></html>`
	r := testParser().Parse(context.Background(), page, "https://ci.example.org/browse/FRR-FRR-105")
	require.Equal(t, model.StatusFailed, r.Status)
}

func TestStatusFromFailingSinceMarker(t *testing.T) {
	page := `<html><body>
<h1>Build results #106</h1>
<dl><dt class="failing-since">Failing since</dt><dd>#99</dd></dl>
</body></html>`
	r := testParser().Parse(context.Background(), page, "https://ci.example.org/browse/FRR-FRR-106")
	require.Equal(t, model.StatusFailed, r.Status)
}

func TestHeadingOutranksCounters(t *testing.T) {
	// "failed" in the heading wins even though counters are zero.
	page := `<html><body>
<h1>Build #107 failed</h1>
<p>New test failures 0</p>
<p>Total tests 900</p>
</body></html>`
	r := testParser().Parse(context.Background(), page, "https://ci.example.org/browse/FRR-FRR-107")
	require.Equal(t, model.StatusFailed, r.Status)
}

func TestWholeWordStatusMatch(t *testing.T) {
	// "unfailed"/"successfully" must not satisfy the whole-word
	// heading heuristic; totals then resolve SUCCESS post hoc.
	page := `<html><body>
<h1>Build #108 results unfailed successfully recorded</h1>
<p>Total tests 10</p>
</body></html>`
	r := testParser().Parse(context.Background(), page, "https://ci.example.org/browse/FRR-FRR-108")
	require.Equal(t, model.StatusSuccess, r.Status)
}

func TestHungBuildReason(t *testing.T) {
	page := `<html><body>
<h1>Build #109 failed</h1>
<p>Detected hung build state</p>
<ul><li id="job-1" class="Unknown" title="OSPF Testing" data-job-key="K-1"></li></ul>
</body></html>`
	r := testParser().Parse(context.Background(), page, "https://ci.example.org/browse/FRR-FRR-109")
	require.Len(t, r.FailedJobs, 1)
	require.Equal(t, "Hung build detected (logs quiet for extended period)", r.FailedJobs[0].Reason)
}

func TestArtifactTableIgnored(t *testing.T) {
	page := `<html><body>
<h1>Build #110 failed</h1>
<table>
  <tr><th>Artifact</th><th>File size</th><th>Test status</th></tr>
  <tr><td>Collapse</td><td>Failed</td><td>logs.tar.gz</td><td>12MB</td></tr>
</table>
</body></html>`
	r := testParser().Parse(context.Background(), page, "https://ci.example.org/browse/FRR-FRR-110")
	require.Empty(t, r.NewFailures)
}

func TestTwoColumnFailureLayout(t *testing.T) {
	// Narrow layout: no collapse column, test label in column 1, no
	// job column at all.
	page := `<html><body>
<h1>Build #111 failed</h1>
<table>
  <tr><th>Status</th><th>Test</th></tr>
  <tr><td>Failed</td><td>isis_topo1 [test_isis_route]</td></tr>
</table>
</body></html>`
	r := testParser().Parse(context.Background(), page, "https://ci.example.org/browse/FRR-FRR-111")
	require.Len(t, r.NewFailures, 1)
	require.Equal(t, "isis_topo1.test_isis_route", r.NewFailures[0].Case)
	require.Equal(t, "isis_topo1", r.NewFailures[0].Suite)
	require.Empty(t, r.NewFailures[0].Job)
}

func TestErrorExcerptRequiresDetailRow(t *testing.T) {
	// The following row has more than two cells, so it is another test
	// entry, not an error detail.
	page := `<html><body>
<h1>Build #112 failed</h1>
<table>
  <tr><th></th><th>Status</th><th>Test</th><th>Job</th></tr>
  <tr><td>Collapse</td><td>Failed</td><td>a_topo [test_a]</td><td>Job A</td></tr>
  <tr><td>Collapse</td><td>Failed</td><td>b_topo [test_b]</td><td>Job B</td></tr>
</table>
</body></html>`
	r := testParser().Parse(context.Background(), page, "https://ci.example.org/browse/FRR-FRR-112")
	require.Len(t, r.NewFailures, 2)
	require.Empty(t, r.NewFailures[0].Error)
	require.Empty(t, r.NewFailures[1].Error)
}

func TestParseIdempotent(t *testing.T) {
	p := testParser()
	first := p.Parse(context.Background(), failedBuildPage, "https://ci.example.org/browse/FRR-FRR-100")
	second := p.Parse(context.Background(), failedBuildPage, "https://ci.example.org/browse/FRR-FRR-100")
	require.Equal(t, first, second)
}

func TestParseMalformedInput(t *testing.T) {
	for _, text := range []string{"", "<<<<not html", "<table><tr>"} {
		r := testParser().Parse(context.Background(), text, "https://ci.example.org/browse/FRR-FRR-1")
		require.NotNil(t, r)
		require.Equal(t, model.StatusUnknown, r.Status)
		require.Equal(t, 1, r.BuildID)
	}
}

func TestSplitSuiteCase(t *testing.T) {
	tests := []struct {
		in        string
		wantSuite string
		wantCase  string
	}{
		{"RFC-Compliance-tests [ANVL-LDP-9.5]", "RFC-Compliance-tests", "ANVL-LDP-9.5"},
		{"test_isis_srv6_topo1 [test_rib_ipv6_step3]", "test_isis_srv6_topo1", "test_rib_ipv6_step3"},
		{"plain_test_name", "", "plain_test_name"},
	}
	for _, tt := range tests {
		suite, caseName := SplitSuiteCase(tt.in)
		require.Equal(t, tt.wantSuite, suite)
		require.Equal(t, tt.wantCase, caseName)
	}
}

type stubLogFetcher struct {
	log string
}

func (s *stubLogFetcher) FetchLog(_ context.Context, _, _ string) (string, bool) {
	if s.log == "" {
		return "", false
	}
	return s.log, true
}

func TestSanitizerJobEnrichedFromLog(t *testing.T) {
	// No inline marker on the page; the diagnostic has to come from
	// the fetched job log.
	page := `<html><body>
<h1>Build #113 failed</h1>
<ul><li id="job-1" class="Failed" title="ASAN Topotests" data-job-key="K-ASAN"></li></ul>
</body></html>`
	logText := "Running test: test_bfd_vrf\nDirect leak of 256 bytes in 2 objects allocated from:\n"

	p := New(zerolog.Nop(), &stubLogFetcher{log: logText})
	r := p.Parse(context.Background(), page, "https://ci.example.org/browse/FRR-FRR-113")

	require.Len(t, r.FailedJobs, 1)
	require.NotNil(t, r.FailedJobs[0].Diagnostic)
	require.Equal(t, model.LeakDirect, r.FailedJobs[0].Diagnostic.LeakKind)
	require.Equal(t, "Direct leak detected (256 bytes in 2 object(s)) in test_bfd_vrf", r.FailedJobs[0].Reason)
}

func TestSanitizerJobWithoutAnySignal(t *testing.T) {
	page := `<html><body>
<h1>Build #114 failed</h1>
<ul><li id="job-1" class="Failed" title="ASAN Topotests" data-job-key="K-ASAN"></li></ul>
</body></html>`
	r := testParser().Parse(context.Background(), page, "https://ci.example.org/browse/FRR-FRR-114")
	require.Len(t, r.FailedJobs, 1)
	require.Nil(t, r.FailedJobs[0].Diagnostic)
	require.Equal(t, "AddressSanitizer detected issue - check job logs for details", r.FailedJobs[0].Reason)
}

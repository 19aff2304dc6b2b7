package sanitizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cistat/cistat/model"
)

func TestParseLeak(t *testing.T) {
	log := `Running test: test_bgp_peer_down
some unrelated output
Direct leak of 512 bytes in 4 objects allocated from:
    #0 0x7f3a in malloc
SUMMARY: AddressSanitizer: 512 byte(s) leaked in 4 allocation(s).
`
	d := Parse(log)
	require.NotNil(t, d)
	require.Equal(t, "memory-leak", d.ErrorType)
	require.Equal(t, model.LeakDirect, d.LeakKind)
	require.Equal(t, "512 bytes in 4 object(s)", d.LeakSize)
	require.Equal(t, "test_bgp_peer_down", d.Test)
	require.Equal(t, "Direct leak detected (512 bytes in 4 object(s)) in test_bgp_peer_down", d.Summary)
}

func TestParseIndirectLeak(t *testing.T) {
	d := Parse("Indirect leak of 64 byte in 1 object allocated from:\n")
	require.NotNil(t, d)
	require.Equal(t, model.LeakIndirect, d.LeakKind)
	require.Equal(t, "64 bytes in 1 object(s)", d.LeakSize)
}

func TestParseSummaryOnly(t *testing.T) {
	log := "ERROR: AddressSanitizer: heap-buffer-overflow on address 0x60200000\nSUMMARY: AddressSanitizer: heap-buffer-overflow in bgp_packet_read\n"
	d := Parse(log)
	require.NotNil(t, d)
	require.Equal(t, "heap-buffer-overflow", d.ErrorType)
	require.Empty(t, d.LeakSize)
	require.Equal(t, "heap-buffer-overflow in unknown test", d.Summary)
}

func TestParseErrorLineDoesNotOverwrite(t *testing.T) {
	log := "Direct leak of 8 bytes in 1 object allocated from:\nERROR: AddressSanitizer: something else entirely\n"
	d := Parse(log)
	require.NotNil(t, d)
	// The leak pass ran first; the error pass must not overwrite it.
	require.Equal(t, "memory-leak", d.ErrorType)
}

func TestParseNoSignal(t *testing.T) {
	require.Nil(t, Parse("all tests passed\nnothing to see here\n"))
	require.Nil(t, Parse(""))
}

func TestAssociatedTestClosestPrecedingWins(t *testing.T) {
	log := `Running test: test_first
output
Running test: test_second
Direct leak of 16 bytes in 2 objects allocated from:
`
	d := Parse(log)
	require.NotNil(t, d)
	require.Equal(t, "test_second", d.Test)
}

func TestAssociatedTestFromPytestPath(t *testing.T) {
	log := "collected /tests/topotests/bfd_topo2.py output\nSUMMARY: AddressSanitizer: 128 byte(s) leaked in 2 allocation(s).\n"
	d := Parse(log)
	require.NotNil(t, d)
	require.Equal(t, "test_bfd_topo2", d.Test)
}

func TestAssociatedTestWindowBounded(t *testing.T) {
	// The test marker sits beyond the lookback window and must not be
	// recovered.
	log := "Running test: test_far_away\n" + strings.Repeat("x", contextWindow+100) +
		"\nDirect leak of 8 bytes in 1 object allocated from:\n"
	d := Parse(log)
	require.NotNil(t, d)
	require.NotEqual(t, "test_far_away", d.Test)
}

func TestFromPageText(t *testing.T) {
	page := `Build dashboard
Address Sanitizer Error detected in bfd_vrf_topo1.test_bfd_vrf_topo1/r3.asan.bgpd.27086
3 Leaks triggered
`
	details := FromPageText(page)
	require.Len(t, details, 1)
	require.Equal(t, "memory-leak", details[0].ErrorType)
	require.Equal(t, "bfd_vrf_topo1.test_bfd_vrf_topo1", details[0].Test)
	require.Equal(t, "Memory leak detected (3 leak(s)) in bfd_vrf_topo1.test_bfd_vrf_topo1", details[0].Summary)
}

func TestFromPageTextNoMarker(t *testing.T) {
	require.Empty(t, FromPageText("nothing interesting on this page"))
}

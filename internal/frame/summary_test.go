package frame

import (
	"strings"
	"testing"
)

// minimalIPv4 builds a 20-byte IPv4 header with no payload.
func minimalIPv4(proto byte, src, dst [4]byte) []byte {
	h := make([]byte, 20)
	h[0] = 0x45 // version 4, IHL 5
	h[2] = 0x00
	h[3] = 20 // total length
	h[8] = 64 // TTL
	h[9] = proto
	copy(h[12:16], src[:])
	copy(h[16:20], dst[:])
	return h
}

func TestSummaryIPv4(t *testing.T) {
	packet := minimalIPv4(1, [4]byte{192, 168, 100, 2}, [4]byte{192, 168, 100, 1})

	s := Summary(packet)

	for _, want := range []string{"IPv4", "ICMP", "192.168.100.2", "192.168.100.1", "20B"} {
		if !strings.Contains(s, want) {
			t.Errorf("Summary %q missing %q", s, want)
		}
	}
}

func TestSummaryDegradesGracefully(t *testing.T) {
	cases := map[string][]byte{
		"empty":          nil,
		"truncated ipv4": {0x45, 0x00},
		"truncated ipv6": {0x60, 0x00, 0x00},
		"bogus version":  {0xF0, 0x00},
	}

	for name, packet := range cases {
		// Must not panic and must return something printable.
		if s := Summary(packet); s == "" {
			t.Errorf("%s: empty summary", name)
		}
	}
}

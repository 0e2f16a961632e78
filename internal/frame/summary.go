package frame

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Summary renders a short human-readable description of an IP packet for
// relay logging, e.g. "IPv4 ICMP 192.168.100.2 → 192.168.100.1 (84B)".
// Anything that fails to decode degrades to placeholder values; a malformed
// packet must never abort the relay.
func Summary(packet []byte) string {
	if len(packet) == 0 {
		return "empty packet"
	}

	switch packet[0] >> 4 {
	case 4:
		var ip4 layers.IPv4
		if err := ip4.DecodeFromBytes(packet, gopacket.NilDecodeFeedback); err != nil {
			return fmt.Sprintf("IPv4 ? (%dB)", len(packet))
		}
		return fmt.Sprintf("IPv4 %s %s → %s (%dB)", ip4.Protocol, ip4.SrcIP, ip4.DstIP, len(packet))
	case 6:
		var ip6 layers.IPv6
		if err := ip6.DecodeFromBytes(packet, gopacket.NilDecodeFeedback); err != nil {
			return fmt.Sprintf("IPv6 ? (%dB)", len(packet))
		}
		return fmt.Sprintf("IPv6 %s %s → %s (%dB)", ip6.NextHeader, ip6.SrcIP, ip6.DstIP, len(packet))
	default:
		return fmt.Sprintf("IP version %d ? (%dB)", packet[0]>>4, len(packet))
	}
}

package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// EthernetHeaderLen is the fixed header size: two MACs plus EtherType.
	EthernetHeaderLen = 14

	// EtherTypeIPv4 is the EtherType for IPv4 payloads.
	EtherTypeIPv4 = 0x0800
)

// The device's lwIP stack expects link-layer frames, but a TUN interface
// exchanges raw IP packets. The bridge fabricates Ethernet headers with two
// fixed locally administered addresses; nothing on either side learns or
// negotiates them.
var (
	// HostMAC represents the host side of the point-to-point link.
	HostMAC = [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

	// DeviceMAC represents the emulated device side.
	DeviceMAC = [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// ErrFrameTooShort indicates a frame smaller than the Ethernet header.
var ErrFrameTooShort = errors.New("frame too short for ethernet header")

// StripEthernet removes the 14-byte Ethernet header from an inbound frame
// and returns the IP packet behind it. The returned slice aliases the input.
func StripEthernet(ethFrame []byte) ([]byte, error) {
	if len(ethFrame) < EthernetHeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(ethFrame))
	}
	return ethFrame[EthernetHeaderLen:], nil
}

// AddEthernet prepends a synthetic Ethernet header to an outbound IP packet:
// destination DeviceMAC, source HostMAC, EtherType IPv4. The result is
// always exactly len(packet)+14 bytes.
func AddEthernet(packet []byte) []byte {
	ethFrame := make([]byte, EthernetHeaderLen+len(packet))
	copy(ethFrame[0:6], DeviceMAC[:])
	copy(ethFrame[6:12], HostMAC[:])
	binary.BigEndian.PutUint16(ethFrame[12:14], EtherTypeIPv4)
	copy(ethFrame[EthernetHeaderLen:], packet)
	return ethFrame
}

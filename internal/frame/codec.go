// Package frame implements the length-prefixed wire framing used on the
// serial transport, plus the synthetic Ethernet translation layer.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxFrameSize is the largest IP packet the bridge relays (the link MTU).
	MaxFrameSize = 1500

	// headerLen is the size of the wire length prefix.
	headerLen = 2

	// maxEncodable is the largest payload the 2-byte length prefix can carry.
	maxEncodable = 0xFFFF
)

var (
	// ErrConnectionLost indicates the peer closed the stream mid-frame.
	ErrConnectionLost = errors.New("serial connection lost")

	// ErrInvalidLength indicates a declared frame length of zero or beyond
	// the configured maximum. The stream itself remains usable.
	ErrInvalidLength = errors.New("invalid frame length")
)

// ReadFrame reads one length-prefixed frame from r.
//
// The wire format is [length:2B big-endian][payload:length bytes]. A short
// read on either part reports ErrConnectionLost. A declared length of zero
// or greater than max reports ErrInvalidLength without consuming payload
// bytes; the remote firmware and the bridge must agree on the framing mode
// for the stream to stay aligned after such a frame.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: reading length prefix: %v", ErrConnectionLost, err)
	}

	length := int(binary.BigEndian.Uint16(header[:]))
	if length == 0 || length > max {
		return nil, fmt.Errorf("%w: declared %d, max %d", ErrInvalidLength, length, max)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: reading %d-byte payload: %v", ErrConnectionLost, length, err)
	}
	return payload, nil
}

// WriteFrame writes payload to w with its 2-byte big-endian length prefix.
// Header and payload go out in a single Write so a concurrent observer never
// sees a torn frame.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxEncodable {
		return fmt.Errorf("payload of %d bytes exceeds 16-bit length prefix", len(payload))
	}

	buf := make([]byte, headerLen+len(payload))
	binary.BigEndian.PutUint16(buf[:headerLen], uint16(len(payload)))
	copy(buf[headerLen:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: writing frame: %v", ErrConnectionLost, err)
	}
	return nil
}

package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestReadFrameRoundTrip(t *testing.T) {
	sizes := []int{1, 2, 20, 64, 1499, 1500}

	for _, size := range sizes {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i)
		}

		var buf bytes.Buffer
		if err := WriteFrame(&buf, payload); err != nil {
			t.Fatalf("WriteFrame(%d bytes) failed: %v", size, err)
		}

		if buf.Len() != size+2 {
			t.Errorf("Expected %d bytes on the wire, got %d", size+2, buf.Len())
		}

		got, err := ReadFrame(&buf, MaxFrameSize)
		if err != nil {
			t.Fatalf("ReadFrame(%d bytes) failed: %v", size, err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("Round trip mismatch for %d-byte payload", size)
		}
	}
}

func TestReadFrameZeroLength(t *testing.T) {
	// Declared length 0 drops the frame but keeps the stream usable.
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x00})
	if err := WriteFrame(&buf, []byte{0xDE, 0xAD}); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	_, err := ReadFrame(&buf, MaxFrameSize)
	if !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("Expected ErrInvalidLength, got %v", err)
	}

	// The next frame on the same stream must still decode.
	got, err := ReadFrame(&buf, MaxFrameSize)
	if err != nil {
		t.Fatalf("ReadFrame after invalid frame failed: %v", err)
	}
	if !bytes.Equal(got, []byte{0xDE, 0xAD}) {
		t.Errorf("Expected subsequent frame payload DE AD, got % X", got)
	}
}

func TestReadFrameOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF}) // declared 65535, far beyond the MTU

	_, err := ReadFrame(&buf, MaxFrameSize)
	if !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("Expected ErrInvalidLength, got %v", err)
	}
}

func TestReadFrameMaxRespected(t *testing.T) {
	// A length valid for Ethernet framing is invalid for pure-IP framing.
	payload := make([]byte, MaxFrameSize+EthernetHeaderLen)
	var buf bytes.Buffer
	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	if _, err := ReadFrame(bytes.NewReader(buf.Bytes()), MaxFrameSize); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("Expected ErrInvalidLength at max=%d, got %v", MaxFrameSize, err)
	}
	if _, err := ReadFrame(bytes.NewReader(buf.Bytes()), MaxFrameSize+EthernetHeaderLen); err != nil {
		t.Fatalf("Expected success at max=%d, got %v", MaxFrameSize+EthernetHeaderLen, err)
	}
}

func TestReadFrameTruncatedHeader(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x01}), MaxFrameSize)
	if !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("Expected ErrConnectionLost on short header, got %v", err)
	}

	_, err = ReadFrame(bytes.NewReader(nil), MaxFrameSize)
	if !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("Expected ErrConnectionLost on EOF, got %v", err)
	}
}

func TestReadFrameTruncatedPayload(t *testing.T) {
	// Declared 10 bytes, only 4 present before the peer closed.
	data := []byte{0x00, 0x0A, 0x01, 0x02, 0x03, 0x04}
	_, err := ReadFrame(bytes.NewReader(data), MaxFrameSize)
	if !errors.Is(err, ErrConnectionLost) {
		t.Fatalf("Expected ErrConnectionLost on truncated payload, got %v", err)
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	payload := make([]byte, maxEncodable+1)
	if err := WriteFrame(io.Discard, payload); err == nil {
		t.Fatal("Expected error for payload beyond 16-bit length prefix")
	}
}

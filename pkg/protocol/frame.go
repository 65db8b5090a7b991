package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/malike-rnd/cl7206c2-rfid/pkg/crc"
)

// Framing constants.
const (
	// SyncMarker precedes every frame on the wire.
	SyncMarker byte = 0xAA

	// HeaderSize is sync + cmd + sub + 2-byte length.
	HeaderSize = 5

	// ChecksumSize is the trailing big-endian CRC-16.
	ChecksumSize = 2

	// MinFrameSize is the size of a payload-less frame.
	MinFrameSize = HeaderSize + ChecksumSize

	// MaxPayloadSize is the largest payload the 16-bit length field can
	// describe.
	MaxPayloadSize = 0xFFFF
)

// Framing errors.
var (
	// ErrPayloadTooLarge indicates the payload exceeds the length field's
	// range.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Frame is one decoded protocol frame. Payload aliases no decoder
// state; frames are safe to retain after the decode call that produced
// them.
type Frame struct {
	Cmd     byte
	Sub     byte
	Payload []byte
}

// Key returns the correlation key for this frame.
func (f Frame) Key() CommandKey {
	return CommandKey{Cmd: f.Cmd, Sub: f.Sub}
}

// String returns a compact human-readable form for logs.
func (f Frame) String() string {
	if spec, ok := LookupCommand(f.Key()); ok {
		return fmt.Sprintf("%s (cmd=0x%02X sub=0x%02X len=%d)", spec.Name, f.Cmd, f.Sub, len(f.Payload))
	}
	return fmt.Sprintf("cmd=0x%02X sub=0x%02X len=%d", f.Cmd, f.Sub, len(f.Payload))
}

// Encode produces the on-wire bytes for a (cmd, sub, payload) triple.
func Encode(cmd, sub byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	// cmd + sub + length + payload is the checksum range.
	body := make([]byte, 0, HeaderSize-1+len(payload)+ChecksumSize)
	body = append(body, cmd, sub)
	body = binary.BigEndian.AppendUint16(body, uint16(len(payload)))
	body = append(body, payload...)
	body = crc.Append(body)

	out := make([]byte, 0, 1+len(body))
	out = append(out, SyncMarker)
	out = append(out, body...)
	return out, nil
}

// EncodeFrame is Encode for an existing Frame value.
func EncodeFrame(f Frame) ([]byte, error) {
	return Encode(f.Cmd, f.Sub, f.Payload)
}

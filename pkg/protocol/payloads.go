package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Payload decode errors.
var (
	// ErrShortPayload indicates a response payload shorter than its fixed
	// layout requires.
	ErrShortPayload = errors.New("payload too short")
)

// StatusError is a non-zero status acknowledgement from the reader.
type StatusError struct {
	Code byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("reader status 0x%02X", e.Code)
}

// DecodeStatus interprets a one-byte status acknowledgement. Status
// zero is success; anything else becomes a *StatusError.
func DecodeStatus(p []byte) (byte, error) {
	if len(p) == 0 {
		return 0, ErrShortPayload
	}
	if p[0] != 0 {
		return p[0], &StatusError{Code: p[0]}
	}
	return 0, nil
}

// DeviceInfo is the reader-info response (cmd 0x01, sub 0x00).
type DeviceInfo struct {
	// Model is the 4-byte hardware identification prefix.
	Model []byte

	// Name is the configured reader name, NUL-trimmed.
	Name string

	// UptimeSeconds counts seconds since the reader booted.
	UptimeSeconds uint32
}

// DecodeDeviceInfo parses a reader-info payload. The name and uptime
// fields are optional trailers; only the model prefix is mandatory.
func DecodeDeviceInfo(p []byte) (*DeviceInfo, error) {
	if len(p) < 4 {
		return nil, fmt.Errorf("device info: %w", ErrShortPayload)
	}
	info := &DeviceInfo{Model: append([]byte(nil), p[:4]...)}

	// Name sits after the 4-byte model and a 2-byte marker.
	const nameOff, nameLen = 6, 16
	if len(p) >= nameOff+nameLen {
		info.Name = strings.TrimRight(string(p[nameOff:nameOff+nameLen]), "\x00")
	}
	if len(p) >= nameOff+nameLen+4 {
		info.UptimeSeconds = binary.BigEndian.Uint32(p[nameOff+nameLen:])
	}
	return info, nil
}

// NetworkConfig is the IP/mask/gateway triple (sub 0x05 get, 0x04 set).
type NetworkConfig struct {
	IP      net.IP
	Mask    net.IP
	Gateway net.IP
}

// DecodeNetworkConfig parses the 12-byte network payload.
func DecodeNetworkConfig(p []byte) (*NetworkConfig, error) {
	if len(p) < 12 {
		return nil, fmt.Errorf("network config: %w", ErrShortPayload)
	}
	return &NetworkConfig{
		IP:      net.IPv4(p[0], p[1], p[2], p[3]).To4(),
		Mask:    net.IPv4(p[4], p[5], p[6], p[7]).To4(),
		Gateway: net.IPv4(p[8], p[9], p[10], p[11]).To4(),
	}, nil
}

// Encode produces the 12-byte set-IP payload.
func (c *NetworkConfig) Encode() ([]byte, error) {
	ip, mask, gw := c.IP.To4(), c.Mask.To4(), c.Gateway.To4()
	if ip == nil || mask == nil || gw == nil {
		return nil, errors.New("network config: addresses must be IPv4")
	}
	out := make([]byte, 0, 12)
	out = append(out, ip...)
	out = append(out, mask...)
	out = append(out, gw...)
	return out, nil
}

// DecodeMAC parses the 6-byte MAC payload.
func DecodeMAC(p []byte) (net.HardwareAddr, error) {
	if len(p) < 6 {
		return nil, fmt.Errorf("mac: %w", ErrShortPayload)
	}
	return net.HardwareAddr(append([]byte(nil), p[:6]...)), nil
}

// SystemTime is the reader clock (sub 0x11 get, 0x10 set).
type SystemTime struct {
	Seconds      uint32
	Microseconds uint32
}

// DecodeSystemTime parses a 4- or 8-byte time payload; microseconds are
// optional.
func DecodeSystemTime(p []byte) (*SystemTime, error) {
	if len(p) < 4 {
		return nil, fmt.Errorf("system time: %w", ErrShortPayload)
	}
	t := &SystemTime{Seconds: binary.BigEndian.Uint32(p)}
	if len(p) >= 8 {
		t.Microseconds = binary.BigEndian.Uint32(p[4:])
	}
	return t, nil
}

// EncodeSetTime produces the 4-byte set-time payload.
func EncodeSetTime(unixSeconds uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, unixSeconds)
}

// GPIState is one opto-isolated input's level.
type GPIState struct {
	Pin   byte
	Level byte
}

// DecodeGPIStates parses the repeated [pin][level] pairs of the GPI
// response.
func DecodeGPIStates(p []byte) ([]GPIState, error) {
	states := make([]GPIState, 0, len(p)/2)
	for i := 0; i+1 < len(p); i += 2 {
		states = append(states, GPIState{Pin: p[i], Level: p[i+1]})
	}
	return states, nil
}

// EncodeSetGPO produces the set-GPO payload for one output pin.
func EncodeSetGPO(pin, level byte) []byte {
	return []byte{pin, level}
}

// AntennaConfig is one RF port's configuration block (sub 0x0C get,
// 0x0B set). The firmware's block is at least 12 bytes; unknown bytes
// are preserved in Raw so a read-modify-write cycle round-trips them.
type AntennaConfig struct {
	Index     byte
	Power     byte // dBm
	Protocol  byte // 0 single-target, 1 ISO 6B, 2 Gen2 dual-target
	Frequency byte // region code
	Session   byte // Gen2 session 0-3
	Target    byte // 0 = A, 1 = B
	QValue    byte

	Raw []byte
}

const antennaConfigSize = 12

// DecodeAntennaConfig parses an antenna configuration block.
func DecodeAntennaConfig(p []byte) (*AntennaConfig, error) {
	if len(p) < antennaConfigSize {
		return nil, fmt.Errorf("antenna config: %w", ErrShortPayload)
	}
	return &AntennaConfig{
		Index:     p[0],
		Power:     p[3],
		Protocol:  p[4],
		Frequency: p[5],
		Session:   p[7],
		Target:    p[8],
		QValue:    p[9],
		Raw:       append([]byte(nil), p...),
	}, nil
}

// Encode writes the typed fields back over the preserved raw block.
func (c *AntennaConfig) Encode() []byte {
	out := make([]byte, max(len(c.Raw), antennaConfigSize))
	copy(out, c.Raw)
	out[0] = c.Index
	out[3] = c.Power
	out[4] = c.Protocol
	out[5] = c.Frequency
	out[7] = c.Session
	out[8] = c.Target
	out[9] = c.QValue
	return out
}

// WiegandConfig is the Wiegand output configuration.
type WiegandConfig struct {
	Enable byte
	Format byte // 0 off, 1 W26, 2 W34, 3 W66
	Bits   byte
}

// DecodeWiegandConfig parses the 3-byte Wiegand payload.
func DecodeWiegandConfig(p []byte) (*WiegandConfig, error) {
	if len(p) < 3 {
		return nil, fmt.Errorf("wiegand config: %w", ErrShortPayload)
	}
	return &WiegandConfig{Enable: p[0], Format: p[1], Bits: p[2]}, nil
}

// Encode produces the set-Wiegand payload.
func (c *WiegandConfig) Encode() []byte {
	return []byte{c.Enable, c.Format, c.Bits}
}

// RS485Config is the RS-485 bus address and COM mode.
type RS485Config struct {
	Address byte
	Mode    byte
}

// DecodeRS485Config parses the 2-byte RS485 payload.
func DecodeRS485Config(p []byte) (*RS485Config, error) {
	if len(p) < 2 {
		return nil, fmt.Errorf("rs485 config: %w", ErrShortPayload)
	}
	return &RS485Config{Address: p[0], Mode: p[1]}, nil
}

// Encode produces the set-RS485 payload.
func (c *RS485Config) Encode() []byte {
	return []byte{c.Address, c.Mode}
}

// RelayConfig is the relay number and on-time.
type RelayConfig struct {
	Relay    byte
	OnTimeMS uint16
}

// DecodeRelayConfig parses the 3-byte relay payload.
func DecodeRelayConfig(p []byte) (*RelayConfig, error) {
	if len(p) < 3 {
		return nil, fmt.Errorf("relay config: %w", ErrShortPayload)
	}
	return &RelayConfig{Relay: p[0], OnTimeMS: binary.BigEndian.Uint16(p[1:3])}, nil
}

// Encode produces the set-relay payload.
func (c *RelayConfig) Encode() []byte {
	return []byte{c.Relay, byte(c.OnTimeMS >> 8), byte(c.OnTimeMS)}
}

// ServerMode is the reader's TCP server/client configuration.
type ServerMode struct {
	LocalPort  uint16
	ServerIP   net.IP
	ServerPort uint16
	Mode       byte // 0 TCP server, 1 TCP client, 2 UDP
}

// DecodeServerMode parses the 9-byte server-mode payload.
func DecodeServerMode(p []byte) (*ServerMode, error) {
	if len(p) < 9 {
		return nil, fmt.Errorf("server mode: %w", ErrShortPayload)
	}
	return &ServerMode{
		LocalPort:  binary.BigEndian.Uint16(p[0:2]),
		ServerIP:   net.IPv4(p[2], p[3], p[4], p[5]).To4(),
		ServerPort: binary.BigEndian.Uint16(p[6:8]),
		Mode:       p[8],
	}, nil
}

// PingConfig is the gateway liveness-probe configuration.
type PingConfig struct {
	Enable byte
	Target net.IP
}

// DecodePingConfig parses the ping payload. The target field is only
// present when the probe is enabled.
func DecodePingConfig(p []byte) (*PingConfig, error) {
	if len(p) < 1 {
		return nil, fmt.Errorf("ping config: %w", ErrShortPayload)
	}
	c := &PingConfig{Enable: p[0]}
	if c.Enable == 1 && len(p) >= 6 {
		c.Target = net.IPv4(p[2], p[3], p[4], p[5]).To4()
	}
	return c, nil
}

// Encode produces the set-ping payload.
func (c *PingConfig) Encode() ([]byte, error) {
	target := c.Target.To4()
	if target == nil {
		target = net.IPv4zero.To4()
	}
	out := make([]byte, 0, 5)
	out = append(out, c.Enable)
	out = append(out, target...)
	return out, nil
}

// EncodeCacheTime produces the 2-byte set-cache-time payload.
func EncodeCacheTime(t uint16) []byte {
	return []byte{byte(t >> 8), byte(t)}
}

// DecodeCacheTime parses the 2-byte cache-time payload.
func DecodeCacheTime(p []byte) (uint16, error) {
	if len(p) < 2 {
		return 0, fmt.Errorf("cache time: %w", ErrShortPayload)
	}
	return binary.BigEndian.Uint16(p), nil
}

// UpgradeFinalizeOffset marks the last chunk of a firmware upload; the
// reader then verifies the image CRC and signature.
const UpgradeFinalizeOffset uint32 = 0xFFFFFFFF

// EncodeUpgradeChunk produces one firmware-chunk payload:
// [offset:4 BE][len:2 BE][data].
func EncodeUpgradeChunk(offset uint32, data []byte) ([]byte, error) {
	if len(data) > MaxPayloadSize-6 {
		return nil, fmt.Errorf("upgrade chunk: %w", ErrPayloadTooLarge)
	}
	out := make([]byte, 0, 6+len(data))
	out = binary.BigEndian.AppendUint32(out, offset)
	out = binary.BigEndian.AppendUint16(out, uint16(len(data)))
	out = append(out, data...)
	return out, nil
}

// UpgradeAck is the reader's per-chunk acknowledgement: the flash write
// address and a status byte.
type UpgradeAck struct {
	Address uint32
	Status  byte
}

// DecodeUpgradeAck parses a firmware-chunk acknowledgement.
func DecodeUpgradeAck(p []byte) (*UpgradeAck, error) {
	if len(p) < 5 {
		return nil, fmt.Errorf("upgrade ack: %w", ErrShortPayload)
	}
	return &UpgradeAck{
		Address: binary.BigEndian.Uint32(p[0:4]),
		Status:  p[4],
	}, nil
}

// EncodeKeepaliveSeq produces the 4-byte keepalive sequence payload.
func EncodeKeepaliveSeq(seq uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, seq)
}

// DecodeKeepaliveSeq parses a keepalive acknowledgement's sequence.
func DecodeKeepaliveSeq(p []byte) (uint32, error) {
	if len(p) < 4 {
		return 0, fmt.Errorf("keepalive: %w", ErrShortPayload)
	}
	return binary.BigEndian.Uint32(p), nil
}

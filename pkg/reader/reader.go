// Package reader exposes the reader's management commands as typed
// methods over a session.
package reader

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/malike-rnd/cl7206c2-rfid/pkg/protocol"
	"github.com/malike-rnd/cl7206c2-rfid/pkg/session"
)

// Conn is the slice of the session the reader needs. *session.Session
// satisfies it.
type Conn interface {
	Send(ctx context.Context, cmd, sub byte, payload []byte) (*session.Result, error)
	SendNoReply(cmd, sub byte, payload []byte) error
	Collect(ctx context.Context, cmd, sub byte, payload []byte, idle time.Duration) ([]protocol.Frame, error)
}

// DefaultCollectIdle is how long stored-tag retrieval waits after the
// last frame before concluding the burst has ended. The reader streams
// cached records with no terminator frame.
const DefaultCollectIdle = 500 * time.Millisecond

// DefaultChunkSize is the firmware upload chunk size.
const DefaultChunkSize = 512

// Reader issues management commands to one reader.
type Reader struct {
	conn Conn
}

// New wraps a session in a Reader.
func New(conn Conn) *Reader {
	return &Reader{conn: conn}
}

func decoded[T any](res *session.Result, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	v, ok := res.Decoded.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected response payload %T", res.Decoded)
	}
	return v, nil
}

// Info queries model, name and uptime.
func (r *Reader) Info(ctx context.Context) (*protocol.DeviceInfo, error) {
	return decoded[*protocol.DeviceInfo](r.conn.Send(ctx, protocol.CmdSystem, protocol.SubReaderInfo, nil))
}

// NetworkConfig queries IP, netmask and gateway.
func (r *Reader) NetworkConfig(ctx context.Context) (*protocol.NetworkConfig, error) {
	return decoded[*protocol.NetworkConfig](r.conn.Send(ctx, protocol.CmdSystem, protocol.SubGetNetwork, nil))
}

// SetNetworkConfig reconfigures IP, netmask and gateway. The reader
// applies the change immediately; the current connection usually drops.
func (r *Reader) SetNetworkConfig(ctx context.Context, cfg *protocol.NetworkConfig) error {
	payload, err := cfg.Encode()
	if err != nil {
		return err
	}
	_, err = r.conn.Send(ctx, protocol.CmdSystem, protocol.SubSetIP, payload)
	return err
}

// MAC queries the hardware address.
func (r *Reader) MAC(ctx context.Context) (net.HardwareAddr, error) {
	return decoded[net.HardwareAddr](r.conn.Send(ctx, protocol.CmdSystem, protocol.SubGetMAC, nil))
}

// SetMAC rewrites the hardware address.
func (r *Reader) SetMAC(ctx context.Context, mac net.HardwareAddr) error {
	if len(mac) != 6 {
		return errors.New("mac must be 6 bytes")
	}
	_, err := r.conn.Send(ctx, protocol.CmdSystem, protocol.SubSetMAC, mac)
	return err
}

// Clock queries the reader's clock.
func (r *Reader) Clock(ctx context.Context) (time.Time, error) {
	st, err := decoded[*protocol.SystemTime](r.conn.Send(ctx, protocol.CmdSystem, protocol.SubGetTime, nil))
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(st.Seconds), int64(st.Microseconds)*1000), nil
}

// SetClock sets the reader's clock.
func (r *Reader) SetClock(ctx context.Context, t time.Time) error {
	_, err := r.conn.Send(ctx, protocol.CmdSystem, protocol.SubSetTime,
		protocol.EncodeSetTime(uint32(t.Unix())))
	return err
}

// GPIStates queries the opto-isolated input levels.
func (r *Reader) GPIStates(ctx context.Context) ([]protocol.GPIState, error) {
	return decoded[[]protocol.GPIState](r.conn.Send(ctx, protocol.CmdSystem, protocol.SubGetGPI, nil))
}

// SetGPO drives one output pin.
func (r *Reader) SetGPO(ctx context.Context, pin, level byte) error {
	_, err := r.conn.Send(ctx, protocol.CmdSystem, protocol.SubSetGPO, protocol.EncodeSetGPO(pin, level))
	return err
}

// AntennaConfig queries one RF port's configuration.
func (r *Reader) AntennaConfig(ctx context.Context, index byte) (*protocol.AntennaConfig, error) {
	return decoded[*protocol.AntennaConfig](r.conn.Send(ctx, protocol.CmdSystem, protocol.SubGetAntenna, []byte{index}))
}

// SetAntennaConfig writes one RF port's configuration.
func (r *Reader) SetAntennaConfig(ctx context.Context, cfg *protocol.AntennaConfig) error {
	_, err := r.conn.Send(ctx, protocol.CmdSystem, protocol.SubSetAntenna, cfg.Encode())
	return err
}

// SetPower adjusts one RF port's transmit power, preserving the rest of
// its configuration through a read-modify-write cycle.
func (r *Reader) SetPower(ctx context.Context, index, dBm byte) error {
	cfg, err := r.AntennaConfig(ctx, index)
	if err != nil {
		return err
	}
	cfg.Power = dBm
	return r.SetAntennaConfig(ctx, cfg)
}

// WiegandConfig queries the Wiegand output configuration.
func (r *Reader) WiegandConfig(ctx context.Context) (*protocol.WiegandConfig, error) {
	return decoded[*protocol.WiegandConfig](r.conn.Send(ctx, protocol.CmdSystem, protocol.SubGetWiegand, nil))
}

// SetWiegandConfig writes the Wiegand output configuration.
func (r *Reader) SetWiegandConfig(ctx context.Context, cfg *protocol.WiegandConfig) error {
	_, err := r.conn.Send(ctx, protocol.CmdSystem, protocol.SubSetWiegand, cfg.Encode())
	return err
}

// RS485Config queries the serial bus address and mode.
func (r *Reader) RS485Config(ctx context.Context) (*protocol.RS485Config, error) {
	return decoded[*protocol.RS485Config](r.conn.Send(ctx, protocol.CmdSystem, protocol.SubGetRS485, nil))
}

// SetRS485Config writes the serial bus address and mode.
func (r *Reader) SetRS485Config(ctx context.Context, cfg *protocol.RS485Config) error {
	_, err := r.conn.Send(ctx, protocol.CmdSystem, protocol.SubSetRS485, cfg.Encode())
	return err
}

// RelayConfig queries the relay configuration.
func (r *Reader) RelayConfig(ctx context.Context) (*protocol.RelayConfig, error) {
	return decoded[*protocol.RelayConfig](r.conn.Send(ctx, protocol.CmdSystem, protocol.SubGetRelay, nil))
}

// PulseRelay closes a relay for the given on-time.
func (r *Reader) PulseRelay(ctx context.Context, relay byte, onTime time.Duration) error {
	cfg := protocol.RelayConfig{Relay: relay, OnTimeMS: uint16(onTime / time.Millisecond)}
	_, err := r.conn.Send(ctx, protocol.CmdSystem, protocol.SubSetRelay, cfg.Encode())
	return err
}

// ServerMode queries the TCP server/client configuration.
func (r *Reader) ServerMode(ctx context.Context) (*protocol.ServerMode, error) {
	return decoded[*protocol.ServerMode](r.conn.Send(ctx, protocol.CmdSystem, protocol.SubGetServer, nil))
}

// PingConfig queries the gateway liveness probe.
func (r *Reader) PingConfig(ctx context.Context) (*protocol.PingConfig, error) {
	return decoded[*protocol.PingConfig](r.conn.Send(ctx, protocol.CmdSystem, protocol.SubGetPing, nil))
}

// SetPingConfig writes the gateway liveness probe.
func (r *Reader) SetPingConfig(ctx context.Context, cfg *protocol.PingConfig) error {
	payload, err := cfg.Encode()
	if err != nil {
		return err
	}
	_, err = r.conn.Send(ctx, protocol.CmdSystem, protocol.SubSetPing, payload)
	return err
}

// SetDHCP enables or disables the DHCP client.
func (r *Reader) SetDHCP(ctx context.Context, enable bool) error {
	var b byte
	if enable {
		b = 1
	}
	_, err := r.conn.Send(ctx, protocol.CmdSystem, protocol.SubSetDHCP, []byte{b})
	return err
}

// DHCP reports whether the DHCP client is enabled.
func (r *Reader) DHCP(ctx context.Context) (bool, error) {
	res, err := r.conn.Send(ctx, protocol.CmdSystem, protocol.SubGetDHCP, nil)
	if err != nil {
		return false, err
	}
	if len(res.Frame.Payload) < 1 {
		return false, protocol.ErrShortPayload
	}
	return res.Frame.Payload[0] != 0, nil
}

// Reboot restarts the reader. The reader drops the connection instead
// of answering; the session reconnects on its own.
func (r *Reader) Reboot() error {
	return r.conn.SendNoReply(protocol.CmdSystem, protocol.SubReboot, nil)
}

// FactoryReset restores factory defaults. Like Reboot, no response
// comes back.
func (r *Reader) FactoryReset() error {
	return r.conn.SendNoReply(protocol.CmdSystem, protocol.SubFactoryReset, nil)
}

// SetTagCache enables or disables offline tag caching.
func (r *Reader) SetTagCache(ctx context.Context, enable bool) error {
	var b byte
	if enable {
		b = 1
	}
	_, err := r.conn.Send(ctx, protocol.CmdSystem, protocol.SubSetTagCache, []byte{b})
	return err
}

// TagCache reports whether offline tag caching is enabled.
func (r *Reader) TagCache(ctx context.Context) (bool, error) {
	res, err := r.conn.Send(ctx, protocol.CmdSystem, protocol.SubGetTagCache, nil)
	if err != nil {
		return false, err
	}
	if len(res.Frame.Payload) < 1 {
		return false, protocol.ErrShortPayload
	}
	return res.Frame.Payload[0] != 0, nil
}

// SetCacheTime sets the cache retention period.
func (r *Reader) SetCacheTime(ctx context.Context, t uint16) error {
	_, err := r.conn.Send(ctx, protocol.CmdSystem, protocol.SubSetCacheTime, protocol.EncodeCacheTime(t))
	return err
}

// CacheTime returns the cache retention period in seconds.
func (r *Reader) CacheTime(ctx context.Context) (uint16, error) {
	res, err := r.conn.Send(ctx, protocol.CmdSystem, protocol.SubGetCacheTime, nil)
	if err != nil {
		return 0, err
	}
	return protocol.DecodeCacheTime(res.Frame.Payload)
}

// DeleteTag removes one cached record by its tag index.
func (r *Reader) DeleteTag(ctx context.Context, index uint32) error {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, index)
	_, err := r.conn.Send(ctx, protocol.CmdSystem, protocol.SubDeleteTag, payload)
	return err
}

// ClearStoredTags empties the reader's tag cache.
func (r *Reader) ClearStoredTags(ctx context.Context) error {
	_, err := r.conn.Send(ctx, protocol.CmdSystem, protocol.SubClearTags, nil)
	return err
}

// StoredTags retrieves the reader's cached tag records. The reader
// streams one frame per record with no terminator, so collection ends
// after idle with no traffic; zero idle uses DefaultCollectIdle.
// Records that fail to decode are skipped.
func (r *Reader) StoredTags(ctx context.Context, idle time.Duration) ([]*protocol.TagRecord, error) {
	if idle <= 0 {
		idle = DefaultCollectIdle
	}
	frames, err := r.conn.Collect(ctx, protocol.CmdSystem, protocol.SubGetTags, nil, idle)
	if err != nil {
		return nil, err
	}

	records := make([]*protocol.TagRecord, 0, len(frames))
	for _, f := range frames {
		rec, err := protocol.DecodeTagPayload(f.Payload)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// UploadFirmware streams a firmware image to the reader in chunks and
// finalizes the transfer. A non-zero ack status aborts the upload.
// progress, when non-nil, is called with the byte offset after each
// acknowledged chunk.
func (r *Reader) UploadFirmware(ctx context.Context, image []byte, progress func(offset int)) error {
	if len(image) == 0 {
		return errors.New("empty firmware image")
	}

	for offset := 0; offset < len(image); offset += DefaultChunkSize {
		end := offset + DefaultChunkSize
		if end > len(image) {
			end = len(image)
		}
		if err := r.sendChunk(ctx, uint32(offset), image[offset:end]); err != nil {
			return fmt.Errorf("chunk at %d: %w", offset, err)
		}
		if progress != nil {
			progress(end)
		}
	}

	if err := r.sendChunk(ctx, protocol.UpgradeFinalizeOffset, nil); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	return nil
}

func (r *Reader) sendChunk(ctx context.Context, offset uint32, data []byte) error {
	payload, err := protocol.EncodeUpgradeChunk(offset, data)
	if err != nil {
		return err
	}
	ack, err := decoded[*protocol.UpgradeAck](r.conn.Send(ctx, protocol.CmdUpgrade, protocol.SubUpgradeChunk, payload))
	if err != nil {
		return err
	}
	if ack.Status != 0 {
		return fmt.Errorf("reader rejected chunk: status 0x%02X", ack.Status)
	}
	return nil
}

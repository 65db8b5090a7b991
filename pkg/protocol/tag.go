package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Tag payload block types. A tag notification payload is a run of
// blocks; the EPC block always comes first.
const (
	tagBlockEPC        byte = 0xAA
	tagBlockAntenna    byte = 0x01
	tagBlockRSSI       byte = 0x02
	tagBlockTID        byte = 0x03
	tagBlockUserData   byte = 0x04
	tagBlockReserved   byte = 0x05
	tagBlockSubAntenna byte = 0x06
	tagBlockTime       byte = 0x07
	tagBlockIndex      byte = 0x08
)

// ErrNoEPC indicates a tag payload that does not begin with a complete
// EPC block. Without an EPC the record is useless.
var ErrNoEPC = errors.New("tag payload has no EPC block")

// TagRecord is one decoded tag observation, from a live notification or
// a stored-tag retrieval.
type TagRecord struct {
	EPC []byte
	PC  uint16
	TID []byte

	// Antenna is the zero-based RF port the tag was read on.
	Antenna byte

	// SubAntenna is the hub port when an antenna hub is attached.
	SubAntenna byte

	// RSSI is the raw signal strength byte; zero when absent.
	RSSI byte

	// Seen is the observation time: the reader's clock for cached
	// records, the host's clock for live ones.
	Seen time.Time

	// Index is the record's ordinal in the reader's tag cache. Only
	// stored-tag retrievals carry it.
	Index uint32

	// Cached reports whether the record came out of the tag cache
	// (an index block was present).
	Cached bool
}

// PhysicalAntenna folds the RF port and hub port into the 1-based
// antenna number printed on the enclosure.
func (r *TagRecord) PhysicalAntenna() int {
	return int(r.Antenna)*2 + int(r.SubAntenna) + 1
}

func (r *TagRecord) String() string {
	return fmt.Sprintf("tag %X ant %d rssi %d", r.EPC, r.PhysicalAntenna(), r.RSSI)
}

// DecodeTagPayload parses a tag notification payload. Trailing blocks
// may be truncated or unknown; everything decoded up to that point is
// returned. A payload without a complete EPC block is an error.
func DecodeTagPayload(p []byte) (*TagRecord, error) {
	return decodeTagPayload(p, time.Now)
}

func decodeTagPayload(p []byte, now func() time.Time) (*TagRecord, error) {
	rec, rest, err := decodeEPCBlock(p)
	if err != nil {
		return nil, err
	}

blocks:
	for len(rest) > 0 {
		switch rest[0] {
		case tagBlockAntenna:
			if len(rest) < 2 {
				break blocks
			}
			rec.Antenna = rest[1]
			rest = rest[2:]
		case tagBlockRSSI:
			if len(rest) < 2 {
				break blocks
			}
			rec.RSSI = rest[1]
			rest = rest[2:]
		case tagBlockSubAntenna:
			if len(rest) < 2 {
				break blocks
			}
			rec.SubAntenna = rest[1]
			rest = rest[2:]
		case tagBlockTID:
			data, tail, ok := lengthPrefixed(rest[1:])
			if !ok {
				break blocks
			}
			rec.TID = data
			rest = tail
		case tagBlockUserData, tagBlockReserved:
			_, tail, ok := lengthPrefixed(rest[1:])
			if !ok {
				break blocks
			}
			rest = tail
		case tagBlockTime:
			if len(rest) < 9 {
				break blocks
			}
			sec := binary.BigEndian.Uint32(rest[1:5])
			usec := binary.BigEndian.Uint32(rest[5:9])
			rec.Seen = time.Unix(int64(sec), int64(usec)*1000)
			rest = rest[9:]
		case tagBlockIndex:
			if len(rest) < 5 {
				break blocks
			}
			rec.Index = binary.BigEndian.Uint32(rest[1:5])
			rec.Cached = true
			rest = rest[5:]
		default:
			// Unknown block type: length is unknowable, so the rest of
			// this payload cannot be walked.
			break blocks
		}
	}

	if rec.Seen.IsZero() {
		rec.Seen = now()
	}
	return rec, nil
}

// decodeEPCBlock parses the leading EPC block:
// [AA][flag][reserved][len:2 BE][epcLen:2 BE][EPC][PC:2 BE][ant].
func decodeEPCBlock(p []byte) (*TagRecord, []byte, error) {
	const headerLen = 7
	if len(p) < headerLen || p[0] != tagBlockEPC {
		return nil, nil, ErrNoEPC
	}
	epcLen := int(binary.BigEndian.Uint16(p[5:7]))
	if len(p) < headerLen+epcLen+3 {
		return nil, nil, fmt.Errorf("epc block truncated: %w", ErrNoEPC)
	}
	rec := &TagRecord{
		EPC:     append([]byte(nil), p[headerLen:headerLen+epcLen]...),
		PC:      binary.BigEndian.Uint16(p[headerLen+epcLen : headerLen+epcLen+2]),
		Antenna: p[headerLen+epcLen+2],
	}
	return rec, p[headerLen+epcLen+3:], nil
}

// lengthPrefixed reads a [len:2 BE][data] field, returning the data and
// the remaining bytes.
func lengthPrefixed(p []byte) ([]byte, []byte, bool) {
	if len(p) < 2 {
		return nil, nil, false
	}
	n := int(binary.BigEndian.Uint16(p))
	if len(p) < 2+n {
		return nil, nil, false
	}
	return append([]byte(nil), p[2:2+n]...), p[2+n:], true
}

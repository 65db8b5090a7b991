package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/malike-rnd/cl7206c2-rfid/pkg/crc"
)

// FramingError reports a frame span that failed validation. The decoder
// recovers from framing errors by itself; the error is informational.
type FramingError struct {
	// Cmd and Sub are taken from the failed span's header bytes.
	Cmd byte
	Sub byte

	// Want and Got are the computed and received checksums.
	Want uint16
	Got  uint16

	// Discarded is the number of bytes skipped before the next sync
	// marker was sought (always 1 for a checksum failure, possibly more
	// for leading garbage).
	Discarded int
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error: cmd=0x%02X sub=0x%02X checksum got 0x%04X want 0x%04X",
		e.Cmd, e.Sub, e.Got, e.Want)
}

// decodeState tracks progress through the current frame.
type decodeState uint8

const (
	seekSync decodeState = iota
	readHeader
	readPayload
	readChecksum
)

// Decoder reassembles frames out of a raw byte stream. The stream may
// split a frame across any number of reads or deliver several frames in
// one read; Feed handles both. A checksum failure discards one byte of
// the failed span and rescans, so a corrupted frame never
// desynchronizes the frames that follow it.
//
// Decoder is not safe for concurrent use; the session's read loop is
// its only caller.
type Decoder struct {
	buf        []byte
	state      decodeState
	payloadLen int

	onError func(*FramingError)

	frames       uint64
	framingFails uint64
}

// NewDecoder creates an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// SetErrorHandler registers a callback for framing errors. Pass nil to
// drop them silently.
func (d *Decoder) SetErrorHandler(fn func(*FramingError)) {
	d.onError = fn
}

// Stats returns the number of frames decoded and framing errors seen.
func (d *Decoder) Stats() (frames, framingErrors uint64) {
	return d.frames, d.framingFails
}

// Reset discards all buffered state. Called on reconnect so a partial
// frame from the old connection cannot corrupt the new stream.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.state = seekSync
	d.payloadLen = 0
}

// Feed appends chunk to the decoder's buffer and returns every complete
// valid frame available. It never blocks; when the buffer holds only a
// partial frame the partial state is kept for the next call.
func (d *Decoder) Feed(chunk []byte) []Frame {
	d.buf = append(d.buf, chunk...)

	var out []Frame
	for {
		f, ok := d.next()
		if !ok {
			break
		}
		out = append(out, f)
	}
	return out
}

// next advances the state machine. It returns (frame, true) when a full
// valid frame was consumed and (zero, false) when more bytes are
// needed.
func (d *Decoder) next() (Frame, bool) {
	for {
		switch d.state {
		case seekSync:
			i := 0
			for i < len(d.buf) && d.buf[i] != SyncMarker {
				i++
			}
			if i > 0 {
				d.consume(i)
			}
			if len(d.buf) == 0 {
				return Frame{}, false
			}
			d.state = readHeader

		case readHeader:
			if len(d.buf) < HeaderSize {
				return Frame{}, false
			}
			d.payloadLen = int(binary.BigEndian.Uint16(d.buf[3:5]))
			d.state = readPayload

		case readPayload:
			if len(d.buf) < HeaderSize+d.payloadLen {
				return Frame{}, false
			}
			d.state = readChecksum

		case readChecksum:
			total := HeaderSize + d.payloadLen + ChecksumSize
			if len(d.buf) < total {
				return Frame{}, false
			}

			// Checksum range: cmd through end of payload, sync excluded.
			body := d.buf[1 : total-ChecksumSize]
			want := crc.Checksum(body)
			got := uint16(d.buf[total-ChecksumSize])<<8 | uint16(d.buf[total-1])

			if want != got {
				d.framingFails++
				if d.onError != nil {
					d.onError(&FramingError{
						Cmd:       d.buf[1],
						Sub:       d.buf[2],
						Want:      want,
						Got:       got,
						Discarded: 1,
					})
				}
				// Drop only the failed sync byte; a valid frame may start
				// anywhere inside the corrupted span.
				d.consume(1)
				d.state = seekSync
				continue
			}

			f := Frame{
				Cmd:     d.buf[1],
				Sub:     d.buf[2],
				Payload: append([]byte(nil), d.buf[HeaderSize:HeaderSize+d.payloadLen]...),
			}
			d.consume(total)
			d.state = seekSync
			d.frames++
			return f, true
		}
	}
}

// consume drops n leading bytes from the buffer.
func (d *Decoder) consume(n int) {
	d.buf = d.buf[:copy(d.buf, d.buf[n:])]
}

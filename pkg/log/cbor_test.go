package log

import (
	"bytes"
	"testing"
	"time"
)

func sampleEvents() []Event {
	now := time.Now().Truncate(0)
	status := uint8(0)
	rtt := 12 * time.Millisecond
	return []Event{
		{
			Timestamp: now,
			SessionID: "f4b4c1ce-0001-4a8e-9d1e-000000000001",
			Direction: DirectionOut,
			Layer:     LayerTransport,
			Category:  CategoryCommand,
			Frame: &FrameEvent{
				Cmd:  0x01,
				Sub:  0x00,
				Size: 7,
				Data: []byte{0xAA, 0x01, 0x00, 0x00, 0x00, 0x94, 0x03},
			},
		},
		{
			Timestamp:  now,
			SessionID:  "f4b4c1ce-0001-4a8e-9d1e-000000000001",
			Direction:  DirectionIn,
			Layer:      LayerProtocol,
			Category:   CategoryCommand,
			RemoteAddr: "192.168.1.116:9090",
			Command: &CommandEvent{
				Type:      MessageTypeResponse,
				Name:      "get-network",
				Cmd:       0x01,
				Sub:       0x05,
				Status:    &status,
				RoundTrip: &rtt,
			},
		},
		{
			Timestamp: now,
			SessionID: "f4b4c1ce-0001-4a8e-9d1e-000000000001",
			Direction: DirectionIn,
			Layer:     LayerSession,
			Category:  CategoryTag,
			Tag: &TagEvent{
				EPC:     []byte{0xE2, 0x00, 0x12, 0x34},
				Antenna: 3,
				RSSI:    0xC8,
				Cached:  true,
			},
		},
		{
			Timestamp: now,
			SessionID: "f4b4c1ce-0001-4a8e-9d1e-000000000001",
			Direction: DirectionOut,
			Layer:     LayerProtocol,
			Category:  CategoryControl,
			Keepalive: &KeepaliveEvent{Sequence: 42},
		},
		{
			Timestamp: now,
			SessionID: "f4b4c1ce-0001-4a8e-9d1e-000000000001",
			Layer:     LayerSession,
			Category:  CategoryState,
			StateChange: &StateChangeEvent{
				Entity:   StateEntitySession,
				OldState: "active",
				NewState: "reconnecting",
				Reason:   "keepalive timeout",
			},
		},
		{
			Timestamp: now,
			SessionID: "f4b4c1ce-0001-4a8e-9d1e-000000000001",
			Direction: DirectionIn,
			Layer:     LayerTransport,
			Category:  CategoryError,
			Error: &ErrorEventData{
				Layer:   LayerTransport,
				Message: "checksum mismatch",
				Context: "frame decode",
			},
		},
	}
}

func TestEncodeDecodeEvent(t *testing.T) {
	for _, ev := range sampleEvents() {
		data, err := EncodeEvent(ev)
		if err != nil {
			t.Fatalf("encode %s: %v", ev.Category, err)
		}

		got, err := DecodeEvent(data)
		if err != nil {
			t.Fatalf("decode %s: %v", ev.Category, err)
		}

		if got.SessionID != ev.SessionID || got.Direction != ev.Direction ||
			got.Layer != ev.Layer || got.Category != ev.Category {
			t.Errorf("%s: header fields differ: %+v", ev.Category, got)
		}
		if !got.Timestamp.Equal(ev.Timestamp) {
			t.Errorf("%s: timestamp %v != %v", ev.Category, got.Timestamp, ev.Timestamp)
		}
	}
}

func TestEncodeDecodeTagPayload(t *testing.T) {
	ev := sampleEvents()[2]

	data, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Tag == nil {
		t.Fatal("tag payload lost")
	}
	if !bytes.Equal(got.Tag.EPC, ev.Tag.EPC) || got.Tag.Antenna != 3 || !got.Tag.Cached {
		t.Errorf("tag = %+v", got.Tag)
	}
}

func TestEncodeDecodeCommandPayload(t *testing.T) {
	ev := sampleEvents()[1]

	data, err := EncodeEvent(ev)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Command == nil {
		t.Fatal("command payload lost")
	}
	if got.Command.Name != "get-network" || got.Command.Status == nil || *got.Command.Status != 0 {
		t.Errorf("command = %+v", got.Command)
	}
	if got.Command.RoundTrip == nil || *got.Command.RoundTrip != 12*time.Millisecond {
		t.Errorf("round trip = %v", got.Command.RoundTrip)
	}
}

func TestEncoderDecoderStream(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	events := sampleEvents()
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}

	dec := NewDecoder(&buf)
	for i := range events {
		var got Event
		if err := dec.Decode(&got); err != nil {
			t.Fatalf("decode event %d: %v", i, err)
		}
		if got.Category != events[i].Category {
			t.Errorf("event %d: category %s, want %s", i, got.Category, events[i].Category)
		}
	}
}

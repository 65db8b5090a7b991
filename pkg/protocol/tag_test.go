package protocol

import (
	"bytes"
	"testing"
	"time"
)

// buildTagPayload assembles an EPC block plus trailing blocks.
func buildTagPayload(epc []byte, pc uint16, ant byte, blocks ...[]byte) []byte {
	body := make([]byte, 0, 7+len(epc)+3)
	body = append(body, tagBlockEPC, 0x00, 0x00)
	inner := len(epc) + 5
	body = append(body, byte(inner>>8), byte(inner))
	body = append(body, byte(len(epc)>>8), byte(len(epc)))
	body = append(body, epc...)
	body = append(body, byte(pc>>8), byte(pc), ant)
	for _, b := range blocks {
		body = append(body, b...)
	}
	return body
}

var testEPC = []byte{0xE2, 0x00, 0x34, 0x12, 0x01, 0x23, 0x45, 0x67, 0x89, 0xAB, 0xCD, 0xEF}

func TestDecodeTagMinimal(t *testing.T) {
	before := time.Now()
	rec, err := DecodeTagPayload(buildTagPayload(testEPC, 0x3000, 1))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(rec.EPC, testEPC) {
		t.Errorf("epc = % X", rec.EPC)
	}
	if rec.PC != 0x3000 {
		t.Errorf("pc = 0x%04X", rec.PC)
	}
	if rec.Antenna != 1 {
		t.Errorf("antenna = %d", rec.Antenna)
	}
	if rec.Seen.Before(before) {
		t.Error("record without a time block must be stamped with the host clock")
	}
	if rec.Cached {
		t.Error("record without an index block must not be cached")
	}
}

func TestDecodeTagAllBlocks(t *testing.T) {
	tid := []byte{0xE2, 0x80, 0x11, 0x05}
	payload := buildTagPayload(testEPC, 0x3400, 2,
		[]byte{tagBlockRSSI, 0xC8},
		[]byte{tagBlockTID, 0x00, byte(len(tid)), tid[0], tid[1], tid[2], tid[3]},
		[]byte{tagBlockSubAntenna, 0x01},
		[]byte{tagBlockTime, 0x65, 0x00, 0x00, 0x00, 0x00, 0x00, 0x03, 0xE8},
		[]byte{tagBlockIndex, 0x00, 0x00, 0x00, 0x2A},
	)

	rec, err := DecodeTagPayload(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.RSSI != 0xC8 {
		t.Errorf("rssi = %d", rec.RSSI)
	}
	if !bytes.Equal(rec.TID, tid) {
		t.Errorf("tid = % X", rec.TID)
	}
	if rec.SubAntenna != 1 {
		t.Errorf("sub antenna = %d", rec.SubAntenna)
	}
	want := time.Unix(0x65000000, 1000*1000)
	if !rec.Seen.Equal(want) {
		t.Errorf("seen = %v, want %v", rec.Seen, want)
	}
	if !rec.Cached || rec.Index != 42 {
		t.Errorf("cached = %v index = %d", rec.Cached, rec.Index)
	}
}

func TestDecodeTagUnknownBlockStopsWalk(t *testing.T) {
	payload := buildTagPayload(testEPC, 0x3000, 0,
		[]byte{tagBlockRSSI, 0xB0},
		[]byte{0x7F, 0x01, 0x02, 0x03}, // unknown type
		[]byte{tagBlockSubAntenna, 0x01},
	)

	rec, err := DecodeTagPayload(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.RSSI != 0xB0 {
		t.Errorf("rssi = %d", rec.RSSI)
	}
	if rec.SubAntenna != 0 {
		t.Error("blocks after an unknown type must not be decoded")
	}
}

func TestDecodeTagTruncatedTrailer(t *testing.T) {
	payload := buildTagPayload(testEPC, 0x3000, 0,
		[]byte{tagBlockTID, 0x00, 0x08, 0xE2}, // claims 8 bytes, has 1
	)

	rec, err := DecodeTagPayload(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.TID != nil {
		t.Errorf("tid = % X, want nil", rec.TID)
	}
	if !bytes.Equal(rec.EPC, testEPC) {
		t.Errorf("epc = % X", rec.EPC)
	}
}

func TestDecodeTagNoEPC(t *testing.T) {
	for _, p := range [][]byte{
		nil,
		{0x01, 0x02},
		{tagBlockEPC, 0x00, 0x00, 0x00, 0x11, 0x00, 0x0C, 0xE2}, // truncated EPC
	} {
		if _, err := DecodeTagPayload(p); err == nil {
			t.Errorf("payload % X: want error", p)
		}
	}
}

func TestPhysicalAntenna(t *testing.T) {
	cases := []struct {
		ant, sub byte
		want     int
	}{
		{0, 0, 1},
		{0, 1, 2},
		{1, 0, 3},
		{3, 1, 8},
	}
	for _, c := range cases {
		rec := &TagRecord{Antenna: c.ant, SubAntenna: c.sub}
		if got := rec.PhysicalAntenna(); got != c.want {
			t.Errorf("ant %d sub %d: got %d, want %d", c.ant, c.sub, got, c.want)
		}
	}
}

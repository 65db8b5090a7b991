package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/malike-rnd/cl7206c2-rfid/pkg/log"
)

func TestStatsCountsByLayer(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Layer: log.LayerTransport, Category: log.CategoryCommand},
		{Timestamp: ts, Layer: log.LayerTransport, Category: log.CategoryCommand},
		{Timestamp: ts, Layer: log.LayerProtocol, Category: log.CategoryCommand},
		{Timestamp: ts, Layer: log.LayerSession, Category: log.CategoryState},
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "Total Events: 4") {
		t.Error("expected total event count")
	}
	if !strings.Contains(output, "TRANSPORT:") {
		t.Error("expected TRANSPORT layer in output")
	}
	if !strings.Contains(output, "PROTOCOL:") {
		t.Error("expected PROTOCOL layer in output")
	}
	if !strings.Contains(output, "SESSION:") {
		t.Error("expected SESSION layer in output")
	}
}

func TestStatsTracksSessions(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, SessionID: "sess-aaaa-bbbb", ReaderName: "dock-3", RemoteAddr: "192.168.1.116:9090"},
		{Timestamp: ts.Add(time.Second), SessionID: "sess-aaaa-bbbb",
			Category: log.CategoryTag, Tag: &log.TagEvent{EPC: []byte{0xE2, 0x01}}},
		{Timestamp: ts.Add(2 * time.Second), SessionID: "sess-aaaa-bbbb",
			Category: log.CategoryTag, Tag: &log.TagEvent{EPC: []byte{0xE2, 0x01}}},
		{Timestamp: ts, SessionID: "sess-cccc-dddd"},
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "Sessions: 2") {
		t.Errorf("expected 2 sessions, got:\n%s", output)
	}
	if !strings.Contains(output, "[sess-aaa]") {
		t.Error("expected shortened session ID")
	}
	if !strings.Contains(output, "Reader: dock-3") {
		t.Error("expected reader name")
	}
	if !strings.Contains(output, "Remote: 192.168.1.116:9090") {
		t.Error("expected remote address")
	}
	if !strings.Contains(output, "Tags: 2 reads, 1 unique") {
		t.Errorf("expected tag dedup summary, got:\n%s", output)
	}
}

func TestStatsCountsCommandsAndErrors(t *testing.T) {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, Category: log.CategoryCommand,
			Command: &log.CommandEvent{Type: log.MessageTypeRequest, Name: "get-reader-info"}},
		{Timestamp: ts, Category: log.CategoryCommand,
			Command: &log.CommandEvent{Type: log.MessageTypeResponse, Name: "get-reader-info"}},
		{Timestamp: ts, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerTransport, Message: "bad checksum"}},
		{Timestamp: ts, Category: log.CategoryControl,
			Keepalive: &log.KeepaliveEvent{Sequence: 1}},
	}

	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "get-reader-info:") {
		t.Error("expected command count")
	}
	if !strings.Contains(output, "Errors: 1") {
		t.Error("expected error count")
	}
	if !strings.Contains(output, "Keepalives: 1") {
		t.Error("expected keepalive count")
	}
}

func TestStatsMissingFile(t *testing.T) {
	var buf bytes.Buffer
	if err := RunStats("/nonexistent/file.rlog", &buf); err == nil {
		t.Error("expected error for missing file")
	}
}

package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSlogAdapterWritesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	a := NewSlogAdapter(logger)
	a.Log(tagEvent("session-a", 0xBE))

	out := buf.String()
	for _, want := range []string{"session-a", "TAG", "epc=e2be", "antenna=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestSlogAdapterStateChange(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	a := NewSlogAdapter(logger)
	a.Log(Event{
		SessionID: "session-a",
		Layer:     LayerSession,
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntitySession,
			OldState: "connecting",
			NewState: "active",
		},
	})

	out := buf.String()
	if !strings.Contains(out, "old_state=connecting") || !strings.Contains(out, "new_state=active") {
		t.Errorf("output missing state attrs: %s", out)
	}
}

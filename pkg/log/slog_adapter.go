package log

import (
	"context"
	"encoding/hex"
	"log/slog"
)

// SlogAdapter writes protocol events to an slog.Logger.
// Useful for development when you want to see protocol events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session_id", event.SessionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}

	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}
	if event.ReaderName != "" {
		attrs = append(attrs, slog.String("reader", event.ReaderName))
	}

	// Add type-specific attributes
	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.String("cmd", hex.EncodeToString([]byte{event.Frame.Cmd, event.Frame.Sub})),
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated),
		)
	case event.Command != nil:
		attrs = append(attrs,
			slog.String("command", event.Command.Name),
			slog.String("msg_type", event.Command.Type.String()),
		)
		if event.Command.Status != nil {
			attrs = append(attrs, slog.Uint64("status", uint64(*event.Command.Status)))
		}
		if event.Command.RoundTrip != nil {
			attrs = append(attrs, slog.Duration("round_trip", *event.Command.RoundTrip))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Keepalive != nil:
		attrs = append(attrs, slog.Uint64("sequence", uint64(event.Keepalive.Sequence)))
	case event.Tag != nil:
		attrs = append(attrs,
			slog.String("epc", hex.EncodeToString(event.Tag.EPC)),
			slog.Int("antenna", event.Tag.Antenna),
		)
		if event.Tag.RSSI != 0 {
			attrs = append(attrs, slog.Uint64("rssi", uint64(event.Tag.RSSI)))
		}
		if event.Tag.Cached {
			attrs = append(attrs, slog.Bool("cached", true))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)

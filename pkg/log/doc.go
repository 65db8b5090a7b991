// Package log provides structured protocol logging for reader sessions.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, protocol, session).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/rfid/reader.rlog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    log.NewFileLogger("/var/log/rfid/reader.rlog"),
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: Raw frame bytes (FrameEvent)
//   - Protocol: Decoded commands (CommandEvent), keepalives (KeepaliveEvent)
//   - Session: State changes (StateChangeEvent), tag observations (TagEvent)
//
// Errors at any layer use ErrorEventData.
//
// # File Format
//
// Log files use CBOR encoding with .rlog extension. Reader provides
// streaming filtered access for viewing and export.
package log

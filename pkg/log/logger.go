package log

// Logger receives protocol capture events from the session, transport,
// and inventory layers. A nil Logger (or NoopLogger) disables capture.
type Logger interface {
	// Log records one capture event. Implementations must be safe for
	// concurrent use; the session read loop calls Log inline, so slow
	// sinks should queue internally.
	Log(event Event)
}

// NoopLogger discards every event. The zero value is ready to use.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}

package log

// MultiLogger fans one event stream out to several sinks, typically a
// FileLogger for later analysis plus a SlogAdapter for live console
// output.
type MultiLogger struct {
	sinks []Logger
}

// NewMultiLogger creates a MultiLogger over the given sinks.
func NewMultiLogger(sinks ...Logger) *MultiLogger {
	return &MultiLogger{sinks: sinks}
}

// Log forwards the event to every sink in order.
func (m *MultiLogger) Log(event Event) {
	for _, s := range m.sinks {
		s.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)

package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID uniquely identifies the reader session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates frame flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the reader address (IP:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// ReaderName is the configured reader name (populated once known).
	ReaderName string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Command     *CommandEvent     `cbor:"11,keyasint,omitempty"` // Decoded requests/responses
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Session/inventory state
	Keepalive   *KeepaliveEvent   `cbor:"13,keyasint,omitempty"` // Liveness traffic
	Tag         *TagEvent         `cbor:"14,keyasint,omitempty"` // Tag observations
	Error       *ErrorEventData   `cbor:"15,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of frame flow.
type Direction uint8

const (
	// DirectionIn indicates a frame from the reader.
	DirectionIn Direction = 0
	// DirectionOut indicates a frame to the reader.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerProtocol is the command layer (decoded frames).
	LayerProtocol Layer = 1
	// LayerSession is the session/inventory layer.
	LayerSession Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerProtocol:
		return "PROTOCOL"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryCommand indicates a request or response frame.
	CategoryCommand Category = 0
	// CategoryControl indicates liveness traffic (keepalive).
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryTag indicates a tag observation.
	CategoryTag Category = 3
	// CategoryError indicates an error event.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryCommand:
		return "COMMAND"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryTag:
		return "TAG"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Cmd and Sub are the frame's command bytes.
	Cmd byte `cbor:"1,keyasint"`
	Sub byte `cbor:"2,keyasint"`

	// Size is the full frame size in bytes (header and checksum included).
	Size int `cbor:"3,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"4,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"5,keyasint,omitempty"`
}

// CommandEvent captures a decoded request or response.
type CommandEvent struct {
	// Type distinguishes request/response/notification.
	Type MessageType `cbor:"1,keyasint"`

	// Name is the registry name of the command (e.g. "get-network").
	Name string `cbor:"2,keyasint"`

	// Cmd and Sub identify the command on the wire.
	Cmd byte `cbor:"3,keyasint"`
	Sub byte `cbor:"4,keyasint"`

	// Status is the reader's status byte (responses only).
	Status *uint8 `cbor:"5,keyasint,omitempty"`

	// RoundTrip is the request-to-response latency (responses only).
	// Stored as nanoseconds.
	RoundTrip *time.Duration `cbor:"6,keyasint,omitempty"`
}

// MessageType distinguishes request/response/notification.
type MessageType uint8

const (
	// MessageTypeRequest indicates a request frame.
	MessageTypeRequest MessageType = 0
	// MessageTypeResponse indicates a response frame.
	MessageTypeResponse MessageType = 1
	// MessageTypeNotification indicates an unsolicited frame.
	MessageTypeNotification MessageType = 2
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeNotification:
		return "NOTIFICATION"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures session and inventory lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a TCP connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntitySession indicates a session state change.
	StateEntitySession StateEntity = 1
	// StateEntityInventory indicates an inventory run state change.
	StateEntityInventory StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	case StateEntityInventory:
		return "INVENTORY"
	default:
		return "UNKNOWN"
	}
}

// KeepaliveEvent captures liveness traffic.
type KeepaliveEvent struct {
	// Sequence is the keepalive sequence number.
	Sequence uint32 `cbor:"1,keyasint"`
}

// TagEvent captures one tag observation.
type TagEvent struct {
	// EPC is the tag's EPC bytes.
	EPC []byte `cbor:"1,keyasint"`

	// Antenna is the 1-based physical antenna number.
	Antenna int `cbor:"2,keyasint"`

	// RSSI is the raw signal strength byte.
	RSSI uint8 `cbor:"3,keyasint,omitempty"`

	// Cached indicates a record retrieved from the reader's tag cache.
	Cached bool `cbor:"4,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}

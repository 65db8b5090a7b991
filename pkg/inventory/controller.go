// Package inventory drives continuous tag inventory: start/stop
// control, notification decoding, and duplicate suppression.
package inventory

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/malike-rnd/cl7206c2-rfid/pkg/log"
	"github.com/malike-rnd/cl7206c2-rfid/pkg/protocol"
)

// Sender is the slice of the session the controller needs for
// inventory control. Inventory commands get no acknowledgement, so
// only fire-and-forget sending is required.
type Sender interface {
	SendNoReply(cmd, sub byte, payload []byte) error
}

// FrameWriter writes raw frames; satisfied by the session during
// reconnect replay.
type FrameWriter interface {
	WriteFrame(cmd, sub byte, payload []byte) error
}

// Start-inventory carries no payload; the reader passes the bare frame
// to the RF module, which runs on its configured antennas.
var startPayload []byte

// Config configures the inventory controller.
type Config struct {
	// DedupWindow suppresses repeat observations of the same EPC on the
	// same antenna within the window. Zero disables suppression.
	DedupWindow time.Duration

	// Buffer is the event channel capacity (default: 256). When the
	// consumer falls behind, further records are dropped and counted.
	Buffer int

	// Logger receives tag capture events. Nil disables capture.
	Logger log.Logger

	// SessionID tags capture events with the owning session.
	SessionID string
}

// Controller tracks the desired inventory state and funnels decoded,
// deduplicated tag records to its event channel.
type Controller struct {
	sender Sender
	cfg    Config
	logger log.Logger
	clock  func() time.Time

	mu      sync.Mutex
	running bool
	seen    map[string]time.Time

	dropped atomic.Uint64
	events  chan *protocol.TagRecord
}

// purgeThreshold caps the dedup map: when it grows past this size,
// expired entries are swept out.
const purgeThreshold = 4096

// New creates a controller. Records only flow after Start.
func New(sender Sender, cfg Config) *Controller {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Controller{
		sender: sender,
		cfg:    cfg,
		logger: logger,
		clock:  time.Now,
		seen:   make(map[string]time.Time),
		events: make(chan *protocol.TagRecord, cfg.Buffer),
	}
}

// Start begins continuous inventory and marks it as the desired state,
// so a reconnect restores it.
func (c *Controller) Start() error {
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()

	c.logState("stopped", "running")
	return c.sender.SendNoReply(protocol.CmdRF, protocol.SubInventoryStart, startPayload)
}

// Stop halts inventory and clears the desired state.
func (c *Controller) Stop() error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.logState("running", "stopped")
	return c.sender.SendNoReply(protocol.CmdRF, protocol.SubInventoryStop, nil)
}

// Running reports the desired inventory state.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Replay restores a running inventory on a fresh connection. Wire it
// into the session's reconnect hook:
//
//	sess.SetReplay(func(w session.FrameWriter) error { return ctrl.Replay(w) })
func (c *Controller) Replay(w FrameWriter) error {
	if !c.Running() {
		return nil
	}
	return w.WriteFrame(protocol.CmdRF, protocol.SubInventoryStart, startPayload)
}

// HandleFrame decodes tag notifications and offers them to the dedup
// filter. Non-tag frames are ignored, as are undecodable payloads.
// Register it with the session's unsolicited handler.
func (c *Controller) HandleFrame(f protocol.Frame) {
	if !protocol.IsTagNotification(f) {
		return
	}
	rec, err := protocol.DecodeTagPayload(f.Payload)
	if err != nil {
		c.logger.Log(log.Event{
			Timestamp: c.clock(),
			SessionID: c.cfg.SessionID,
			Direction: log.DirectionIn,
			Layer:     log.LayerSession,
			Category:  log.CategoryError,
			Error: &log.ErrorEventData{
				Layer:   log.LayerSession,
				Message: err.Error(),
				Context: "tag decode",
			},
		})
		return
	}
	c.Offer(rec)
}

// dedupKey identifies one observation for suppression. The antenna and
// sub-antenna are part of the key: the same EPC on a different antenna
// is a distinct read (gate readers tell entry from exit this way).
func dedupKey(rec *protocol.TagRecord) string {
	k := make([]byte, 0, len(rec.EPC)+2)
	k = append(k, rec.EPC...)
	k = append(k, rec.Antenna, rec.SubAntenna)
	return string(k)
}

// Offer runs rec through duplicate suppression and, when accepted,
// delivers it to the event channel. Returns whether the record was
// accepted. Entries expire lazily: a record for an expired key is
// accepted again and refreshes the entry.
func (c *Controller) Offer(rec *protocol.TagRecord) bool {
	now := c.clock()

	if c.cfg.DedupWindow > 0 {
		key := dedupKey(rec)

		c.mu.Lock()
		if last, ok := c.seen[key]; ok && now.Sub(last) < c.cfg.DedupWindow {
			c.mu.Unlock()
			return false
		}
		c.seen[key] = now
		if len(c.seen) > purgeThreshold {
			c.purgeLocked(now)
		}
		c.mu.Unlock()
	}

	c.logTag(rec)

	select {
	case c.events <- rec:
	default:
		c.dropped.Add(1)
	}
	return true
}

// Events returns the channel of accepted tag records.
func (c *Controller) Events() <-chan *protocol.TagRecord {
	return c.events
}

// Dropped returns the number of records lost to a full event channel.
func (c *Controller) Dropped() uint64 {
	return c.dropped.Load()
}

// purgeLocked sweeps expired dedup entries. Caller holds c.mu.
func (c *Controller) purgeLocked(now time.Time) {
	for key, last := range c.seen {
		if now.Sub(last) >= c.cfg.DedupWindow {
			delete(c.seen, key)
		}
	}
}

func (c *Controller) logState(old, next string) {
	c.logger.Log(log.Event{
		Timestamp: c.clock(),
		SessionID: c.cfg.SessionID,
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityInventory,
			OldState: old,
			NewState: next,
		},
	})
}

func (c *Controller) logTag(rec *protocol.TagRecord) {
	c.logger.Log(log.Event{
		Timestamp: c.clock(),
		SessionID: c.cfg.SessionID,
		Direction: log.DirectionIn,
		Layer:     log.LayerSession,
		Category:  log.CategoryTag,
		Tag: &log.TagEvent{
			EPC:     rec.EPC,
			Antenna: rec.PhysicalAntenna(),
			RSSI:    rec.RSSI,
			Cached:  rec.Cached,
		},
	})
}

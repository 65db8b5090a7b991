package inventory

import (
	"testing"
	"time"

	"github.com/malike-rnd/cl7206c2-rfid/pkg/protocol"
)

type sentFrame struct {
	cmd, sub byte
	payload  []byte
}

type fakeSender struct {
	frames []sentFrame
}

func (f *fakeSender) SendNoReply(cmd, sub byte, payload []byte) error {
	f.frames = append(f.frames, sentFrame{cmd, sub, payload})
	return nil
}

func (f *fakeSender) WriteFrame(cmd, sub byte, payload []byte) error {
	return f.SendNoReply(cmd, sub, payload)
}

// fakeClock advances only when told to.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }
func (f *fakeClock) read() time.Time         { return f.now }

func newTestController(window time.Duration) (*Controller, *fakeSender, *fakeClock) {
	sender := &fakeSender{}
	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	c := New(sender, Config{DedupWindow: window, Buffer: 16})
	c.clock = clock.read
	return c, sender, clock
}

func record(epc ...byte) *protocol.TagRecord {
	return &protocol.TagRecord{EPC: epc, Antenna: 0}
}

func TestStartStopFrames(t *testing.T) {
	c, sender, _ := newTestController(0)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !c.Running() {
		t.Error("not running after start")
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if c.Running() {
		t.Error("still running after stop")
	}

	if len(sender.frames) != 2 {
		t.Fatalf("sent %d frames", len(sender.frames))
	}
	if sender.frames[0].cmd != protocol.CmdRF || sender.frames[0].sub != protocol.SubInventoryStart {
		t.Errorf("start frame = %+v", sender.frames[0])
	}
	if len(sender.frames[0].payload) != 0 {
		t.Errorf("start payload = % X, want empty", sender.frames[0].payload)
	}
	if sender.frames[1].sub != protocol.SubInventoryStop {
		t.Errorf("stop frame = %+v", sender.frames[1])
	}
}

func TestDedupSuppressesWithinWindow(t *testing.T) {
	c, _, clock := newTestController(5500 * time.Millisecond)

	if !c.Offer(record(0xE2, 0x01)) {
		t.Fatal("first observation rejected")
	}

	clock.advance(100 * time.Millisecond)
	if c.Offer(record(0xE2, 0x01)) {
		t.Error("repeat at 100ms accepted")
	}

	clock.advance(4900 * time.Millisecond) // t = 5000ms
	if c.Offer(record(0xE2, 0x01)) {
		t.Error("repeat at 5000ms accepted")
	}

	clock.advance(1000 * time.Millisecond) // t = 6000ms
	if !c.Offer(record(0xE2, 0x01)) {
		t.Error("observation after window expiry rejected")
	}

	// Only the two accepted records reached the channel.
	if got := len(c.Events()); got != 2 {
		t.Errorf("got %d events, want 2", got)
	}
}

func TestDedupDistinctEPCsIndependent(t *testing.T) {
	c, _, _ := newTestController(time.Minute)

	if !c.Offer(record(0xE2, 0x01)) || !c.Offer(record(0xE2, 0x02)) {
		t.Error("distinct EPCs must not suppress each other")
	}
}

func TestDedupKeyIncludesAntenna(t *testing.T) {
	c, _, clock := newTestController(5 * time.Second)

	onAnt := func(ant, sub byte) *protocol.TagRecord {
		return &protocol.TagRecord{EPC: []byte{0xE2, 0x01, 0x30}, Antenna: ant, SubAntenna: sub}
	}

	if !c.Offer(onAnt(0, 0)) {
		t.Fatal("first observation rejected")
	}

	clock.advance(100 * time.Millisecond)
	if !c.Offer(onAnt(1, 0)) {
		t.Error("same EPC on a different antenna suppressed")
	}
	if !c.Offer(onAnt(0, 1)) {
		t.Error("same EPC on a different sub-antenna suppressed")
	}
	if c.Offer(onAnt(0, 0)) {
		t.Error("repeat on the same antenna accepted inside the window")
	}
}

func TestDedupAcceptanceRefreshesWindow(t *testing.T) {
	c, _, clock := newTestController(time.Second)

	c.Offer(record(0xE2, 0x01))
	clock.advance(1100 * time.Millisecond)
	if !c.Offer(record(0xE2, 0x01)) {
		t.Fatal("expired entry rejected")
	}
	clock.advance(900 * time.Millisecond)
	if c.Offer(record(0xE2, 0x01)) {
		t.Error("re-acceptance must restart the window")
	}
}

func TestDedupDisabled(t *testing.T) {
	c, _, _ := newTestController(0)

	for i := 0; i < 3; i++ {
		if !c.Offer(record(0xE2, 0x01)) {
			t.Fatal("dedup disabled must accept everything")
		}
	}
}

func TestOverflowCountsDrops(t *testing.T) {
	sender := &fakeSender{}
	c := New(sender, Config{Buffer: 2})

	for i := byte(0); i < 5; i++ {
		c.Offer(record(0xE2, i))
	}
	if got := c.Dropped(); got != 3 {
		t.Errorf("dropped = %d, want 3", got)
	}
	if got := len(c.Events()); got != 2 {
		t.Errorf("buffered = %d, want 2", got)
	}
}

func TestHandleFrameDecodesNotification(t *testing.T) {
	c, _, _ := newTestController(0)

	// EPC block: header, 2-byte EPC, PC, antenna.
	payload := []byte{0xAA, 0x00, 0x00, 0x00, 0x07, 0x00, 0x02, 0xE2, 0x01, 0x30, 0x00, 0x01}
	c.HandleFrame(protocol.Frame{Cmd: protocol.CmdTagNotify, Sub: protocol.TagNotifyEPC, Payload: payload})

	select {
	case rec := <-c.Events():
		if rec.EPC[0] != 0xE2 || rec.Antenna != 1 {
			t.Errorf("record = %+v", rec)
		}
	default:
		t.Fatal("no record delivered")
	}

	// Garbage and non-tag frames are ignored.
	c.HandleFrame(protocol.Frame{Cmd: protocol.CmdTagNotify, Sub: protocol.TagNotifyEPC, Payload: []byte{0x01}})
	c.HandleFrame(protocol.Frame{Cmd: protocol.CmdSystem, Sub: protocol.SubKeepalive})
	if len(c.Events()) != 0 {
		t.Error("invalid frames produced records")
	}
}

func TestReplayOnlyWhenRunning(t *testing.T) {
	c, sender, _ := newTestController(0)

	if err := c.Replay(sender); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(sender.frames) != 0 {
		t.Fatal("replay wrote frames while stopped")
	}

	c.Start()
	sender.frames = nil
	if err := c.Replay(sender); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(sender.frames) != 1 || sender.frames[0].sub != protocol.SubInventoryStart {
		t.Errorf("replay frames = %+v", sender.frames)
	}
}

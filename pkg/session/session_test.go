package session

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/malike-rnd/cl7206c2-rfid/pkg/protocol"
)

// peer plays the reader's side of a net.Pipe connection. It constantly
// drains the pipe so session writes never block, and parses frames for
// the test to assert on.
type peer struct {
	t      *testing.T
	conn   net.Conn
	frames chan protocol.Frame
	closed chan struct{}
}

func newPeer(t *testing.T, conn net.Conn) *peer {
	p := &peer{
		t:      t,
		conn:   conn,
		frames: make(chan protocol.Frame, 32),
		closed: make(chan struct{}),
	}
	go func() {
		defer close(p.closed)
		dec := protocol.NewDecoder()
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				for _, f := range dec.Feed(buf[:n]) {
					select {
					case p.frames <- f:
					default:
					}
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return p
}

// expect waits for the next frame with the given key, skipping
// keepalives unless a keepalive is what's expected.
func (p *peer) expect(cmd, sub byte) protocol.Frame {
	p.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-p.frames:
			if f.Cmd == cmd && f.Sub == sub {
				return f
			}
			if f.Cmd == protocol.CmdSystem && f.Sub == protocol.SubKeepalive {
				continue
			}
			p.t.Fatalf("unexpected frame %v, want 0x%02X/0x%02X", f, cmd, sub)
		case <-deadline:
			p.t.Fatalf("timed out waiting for frame 0x%02X/0x%02X", cmd, sub)
		}
	}
}

func (p *peer) write(cmd, sub byte, payload []byte) {
	p.t.Helper()
	raw, err := protocol.Encode(cmd, sub, payload)
	if err != nil {
		p.t.Fatalf("encode: %v", err)
	}
	if _, err := p.conn.Write(raw); err != nil {
		p.t.Fatalf("peer write: %v", err)
	}
}

// dialPipe returns a session config whose dialer hands out the client
// ends of pipes, plus the channel of server ends.
func dialPipe(t *testing.T) (Config, chan net.Conn) {
	t.Helper()
	server := make(chan net.Conn, 4)
	cfg := Config{
		Addr:      "pipe",
		KeepAlive: KeepaliveConfig{Disabled: true},
		Backoff:   BackoffConfig{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 2, Jitter: 0},
		Dialer: func(ctx context.Context) (net.Conn, error) {
			c, s := net.Pipe()
			server <- s
			return c, nil
		},
	}
	return cfg, server
}

func dialTestSession(t *testing.T, cfg Config, server chan net.Conn) (*Session, *peer) {
	t.Helper()
	s, err := Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, newPeer(t, <-server)
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", s.State(), want)
}

func TestSendCorrelatesResponse(t *testing.T) {
	cfg, server := dialPipe(t)
	s, p := dialTestSession(t, cfg, server)

	go func() {
		p.expect(protocol.CmdSystem, protocol.SubGetNetwork)
		p.write(protocol.CmdSystem, protocol.SubGetNetwork,
			[]byte{192, 168, 1, 116, 255, 255, 255, 0, 192, 168, 1, 1})
	}()

	res, err := s.Send(context.Background(), protocol.CmdSystem, protocol.SubGetNetwork, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	nc, ok := res.Decoded.(*protocol.NetworkConfig)
	if !ok {
		t.Fatalf("decoded = %T", res.Decoded)
	}
	if nc.IP.String() != "192.168.1.116" {
		t.Errorf("ip = %v", nc.IP)
	}
}

func TestSendDistinctKeysConcurrently(t *testing.T) {
	cfg, server := dialPipe(t)
	s, p := dialTestSession(t, cfg, server)

	// Answer each request as it arrives; arrival order is up to the
	// scheduler, so match on the subcommand.
	go func() {
		for i := 0; i < 2; i++ {
			select {
			case f := <-p.frames:
				switch f.Sub {
				case protocol.SubGetMAC:
					p.write(protocol.CmdSystem, protocol.SubGetMAC, []byte{0xAA, 0xBB, 0xCC, 0x01, 0x02, 0x03})
				case protocol.SubGetNetwork:
					p.write(protocol.CmdSystem, protocol.SubGetNetwork,
						[]byte{192, 168, 1, 116, 255, 255, 255, 0, 192, 168, 1, 1})
				}
			case <-time.After(2 * time.Second):
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	var macRes, netRes *Result
	var macErr, netErr error
	go func() {
		defer wg.Done()
		macRes, macErr = s.Send(context.Background(), protocol.CmdSystem, protocol.SubGetMAC, nil)
	}()
	go func() {
		defer wg.Done()
		netRes, netErr = s.Send(context.Background(), protocol.CmdSystem, protocol.SubGetNetwork, nil)
	}()
	wg.Wait()

	if macErr != nil {
		t.Fatalf("mac send: %v", macErr)
	}
	if netErr != nil {
		t.Fatalf("network send: %v", netErr)
	}
	if macRes.Frame.Sub != protocol.SubGetMAC || len(macRes.Frame.Payload) != 6 {
		t.Errorf("mac response routed wrong: %+v", macRes.Frame)
	}
	nc, ok := netRes.Decoded.(*protocol.NetworkConfig)
	if !ok {
		t.Fatalf("network decoded = %T", netRes.Decoded)
	}
	if nc.IP.String() != "192.168.1.116" {
		t.Errorf("network response routed wrong: ip = %v", nc.IP)
	}
}

func TestSendDuplicateKeyFailsFast(t *testing.T) {
	cfg, server := dialPipe(t)
	s, p := dialTestSession(t, cfg, server)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Send(ctx, protocol.CmdSystem, protocol.SubGetMAC, nil)
	}()
	p.expect(protocol.CmdSystem, protocol.SubGetMAC)

	if _, err := s.Send(context.Background(), protocol.CmdSystem, protocol.SubGetMAC, nil); !errors.Is(err, ErrRequestPending) {
		t.Fatalf("err = %v, want ErrRequestPending", err)
	}

	p.write(protocol.CmdSystem, protocol.SubGetMAC, []byte{1, 2, 3, 4, 5, 6})
	<-done
}

func TestSendRejectsNoReplyCommand(t *testing.T) {
	cfg, server := dialPipe(t)
	s, _ := dialTestSession(t, cfg, server)

	if _, err := s.Send(context.Background(), protocol.CmdSystem, protocol.SubReboot, nil); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("err = %v, want ErrNoResponse", err)
	}
}

func TestSendNonZeroStatus(t *testing.T) {
	cfg, server := dialPipe(t)
	s, p := dialTestSession(t, cfg, server)

	go func() {
		p.expect(protocol.CmdSystem, protocol.SubSetIP)
		p.write(protocol.CmdSystem, protocol.SubSetIP, []byte{0x02})
	}()

	res, err := s.Send(context.Background(), protocol.CmdSystem, protocol.SubSetIP,
		[]byte{10, 0, 0, 2, 255, 0, 0, 0, 10, 0, 0, 1})
	var se *protocol.StatusError
	if !errors.As(err, &se) || se.Code != 0x02 {
		t.Fatalf("err = %v, want StatusError code 2", err)
	}
	if res == nil || res.Frame.Sub != protocol.SubSetIP {
		t.Errorf("result = %+v", res)
	}
}

func TestUnsolicitedTagNotification(t *testing.T) {
	cfg, server := dialPipe(t)
	s, p := dialTestSession(t, cfg, server)

	got := make(chan protocol.Frame, 1)
	cancel := s.OnUnsolicited(func(f protocol.Frame) { got <- f })
	defer cancel()

	p.write(protocol.CmdTagNotify, protocol.TagNotifyEPC, []byte{0x01, 0x02})

	select {
	case f := <-got:
		if !protocol.IsTagNotification(f) {
			t.Errorf("frame = %v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}

	cancel()
	p.write(protocol.CmdTagNotify, protocol.TagNotifyEPC, []byte{0x03})
	select {
	case <-got:
		t.Fatal("handler fired after cancellation")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestKeepaliveCarriesSequence(t *testing.T) {
	cfg, server := dialPipe(t)
	cfg.KeepAlive = KeepaliveConfig{Interval: 20 * time.Millisecond, Window: time.Hour}
	s, p := dialTestSession(t, cfg, server)
	_ = s

	f1 := p.expect(protocol.CmdSystem, protocol.SubKeepalive)
	f2 := p.expect(protocol.CmdSystem, protocol.SubKeepalive)

	s1, err := protocol.DecodeKeepaliveSeq(f1.Payload)
	if err != nil {
		t.Fatalf("decode seq: %v", err)
	}
	s2, err := protocol.DecodeKeepaliveSeq(f2.Payload)
	if err != nil {
		t.Fatalf("decode seq: %v", err)
	}
	if s2 != s1+1 {
		t.Errorf("sequences %d, %d not consecutive", s1, s2)
	}
}

func TestLivenessTimeoutClosesWithoutReconnect(t *testing.T) {
	cfg, server := dialPipe(t)
	cfg.KeepAlive = KeepaliveConfig{Interval: 20 * time.Millisecond, Window: 60 * time.Millisecond}
	cfg.DisableReconnect = true
	s, _ := dialTestSession(t, cfg, server)

	// The peer drains but never answers; the silence window expires.
	waitState(t, s, StateClosed)
}

func TestReconnectReplaysBeforeActive(t *testing.T) {
	cfg, server := dialPipe(t)
	s, p1 := dialTestSession(t, cfg, server)

	s.SetReplay(func(w FrameWriter) error {
		return w.WriteFrame(protocol.CmdRF, protocol.SubInventoryStart, nil)
	})

	// Kill the first connection from the reader's side.
	p1.conn.Close()
	waitState(t, s, StateReconnecting)

	p2 := newPeer(t, <-server)
	f := p2.expect(protocol.CmdRF, protocol.SubInventoryStart)
	if len(f.Payload) != 0 {
		t.Errorf("replay payload = % X, want empty", f.Payload)
	}
	waitState(t, s, StateActive)

	// The fresh connection serves requests normally.
	go func() {
		p2.expect(protocol.CmdSystem, protocol.SubGetMAC)
		p2.write(protocol.CmdSystem, protocol.SubGetMAC, []byte{1, 2, 3, 4, 5, 6})
	}()
	if _, err := s.Send(context.Background(), protocol.CmdSystem, protocol.SubGetMAC, nil); err != nil {
		t.Fatalf("send after reconnect: %v", err)
	}
}

func TestReconnectRetriesWhenReplayFails(t *testing.T) {
	cfg, server := dialPipe(t)
	s, p1 := dialTestSession(t, cfg, server)

	var calls atomic.Int32
	s.SetReplay(func(w FrameWriter) error {
		if calls.Add(1) == 1 {
			return errors.New("reader state not restored")
		}
		return w.WriteFrame(protocol.CmdRF, protocol.SubInventoryStart, nil)
	})

	p1.conn.Close()
	waitState(t, s, StateReconnecting)

	// The first attempt's replay fails; its connection must be dropped
	// and a fresh one dialed, never going Active in between.
	c2 := <-server
	defer c2.Close()

	p3 := newPeer(t, <-server)
	p3.expect(protocol.CmdRF, protocol.SubInventoryStart)
	waitState(t, s, StateActive)

	if n := calls.Load(); n != 2 {
		t.Errorf("replay ran %d times, want 2", n)
	}

	go func() {
		p3.expect(protocol.CmdSystem, protocol.SubGetMAC)
		p3.write(protocol.CmdSystem, protocol.SubGetMAC, []byte{1, 2, 3, 4, 5, 6})
	}()
	if _, err := s.Send(context.Background(), protocol.CmdSystem, protocol.SubGetMAC, nil); err != nil {
		t.Fatalf("send after recovered reconnect: %v", err)
	}
}

func TestDisconnectFailsPendingRequests(t *testing.T) {
	cfg, server := dialPipe(t)
	s, p := dialTestSession(t, cfg, server)

	var wg sync.WaitGroup
	wg.Add(1)
	var sendErr error
	go func() {
		defer wg.Done()
		_, sendErr = s.Send(context.Background(), protocol.CmdSystem, protocol.SubGetTime, nil)
	}()
	p.expect(protocol.CmdSystem, protocol.SubGetTime)

	p.conn.Close()
	wg.Wait()

	if !errors.Is(sendErr, ErrConnectionLost) {
		t.Fatalf("err = %v, want ErrConnectionLost", sendErr)
	}
}

func TestCollectGathersBurst(t *testing.T) {
	cfg, server := dialPipe(t)
	s, p := dialTestSession(t, cfg, server)

	go func() {
		p.expect(protocol.CmdSystem, protocol.SubGetTags)
		for i := byte(0); i < 3; i++ {
			p.write(protocol.CmdSystem, protocol.SubGetTags, []byte{i})
			time.Sleep(10 * time.Millisecond)
		}
	}()

	frames, err := s.Collect(context.Background(), protocol.CmdSystem, protocol.SubGetTags, nil, 150*time.Millisecond)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for i, f := range frames {
		if f.Payload[0] != byte(i) {
			t.Errorf("frame %d payload = % X", i, f.Payload)
		}
	}
}

func TestSendAfterClose(t *testing.T) {
	cfg, server := dialPipe(t)
	s, _ := dialTestSession(t, cfg, server)

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.Send(context.Background(), protocol.CmdSystem, protocol.SubGetMAC, nil); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("err = %v, want ErrSessionClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateConnecting:   "CONNECTING",
		StateActive:       "ACTIVE",
		StateReconnecting: "RECONNECTING",
		StateClosed:       "CLOSED",
		State(99):         "UNKNOWN",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}

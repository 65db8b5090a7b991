package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/malike-rnd/cl7206c2-rfid/pkg/log"
	"github.com/malike-rnd/cl7206c2-rfid/pkg/protocol"
)

// Session errors.
var (
	ErrNotActive      = errors.New("session not active")
	ErrSessionClosed  = errors.New("session closed")
	ErrConnectionLost = errors.New("connection lost")
	ErrNoResponse     = errors.New("command produces no response, use SendNoReply")
)

// State represents the session state. There is no disconnected state:
// a failed Dial returns an error without creating a Session, and once a
// session stops reconnecting it is Closed for good.
type State uint8

const (
	// StateConnecting indicates the initial connection is in progress.
	StateConnecting State = iota

	// StateActive indicates a live connection accepting requests.
	StateActive

	// StateReconnecting indicates automatic reconnection is in progress.
	StateReconnecting

	// StateClosed indicates the session has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateActive:
		return "ACTIVE"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// DialFunc establishes the raw connection to the reader. Overridable
// for tests.
type DialFunc func(ctx context.Context) (net.Conn, error)

// FrameWriter writes frames on the session's connection.
type FrameWriter interface {
	WriteFrame(cmd, sub byte, payload []byte) error
}

// ReplayFunc runs after a reconnect completes, before the session
// accepts new requests. Frames written through w go out on the fresh
// connection ahead of anything else; use it to restore reader state
// that does not survive a connection drop (a running inventory).
type ReplayFunc func(w FrameWriter) error

// Config configures a session.
type Config struct {
	// Addr is the reader's TCP address (host:port).
	Addr string

	// DialTimeout bounds each connection attempt (default: 5s).
	DialTimeout time.Duration

	// KeepAlive configures liveness monitoring.
	KeepAlive KeepaliveConfig

	// Backoff configures the reconnect delay schedule.
	Backoff BackoffConfig

	// DisableReconnect turns automatic reconnection off; the session
	// closes on the first connection loss.
	DisableReconnect bool

	// Logger receives protocol capture events. Nil disables capture.
	Logger log.Logger

	// Dialer overrides TCP dialing. Nil uses Addr.
	Dialer DialFunc
}

// Result is a correlated response.
type Result struct {
	// Frame is the raw response frame.
	Frame protocol.Frame

	// Decoded is the typed payload when the command registry has a
	// decoder for it, nil otherwise.
	Decoded any
}

// Session owns one reader connection: framing, correlation, liveness
// and reconnection.
type Session struct {
	cfg    Config
	id     string
	logger log.Logger
	dial   DialFunc

	mu    sync.RWMutex
	state State
	conn  net.Conn

	writeMu sync.Mutex

	correlator *correlator
	keepalive  *keepAlive
	backoff    *Backoff

	handlersMu  sync.Mutex
	handlers    map[int]func(protocol.Frame)
	nextHandler int

	burstMu sync.Mutex
	burst   map[protocol.CommandKey]chan protocol.Frame

	replayMu sync.Mutex
	replay   ReplayFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Dial connects to the reader and returns an active session.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:        cfg,
		id:         uuid.NewString(),
		logger:     logger,
		state:      StateConnecting,
		correlator: newCorrelator(),
		backoff:    NewBackoffWithConfig(cfg.Backoff),
		handlers:   make(map[int]func(protocol.Frame)),
		burst:      make(map[protocol.CommandKey]chan protocol.Frame),
		ctx:        sctx,
		cancel:     cancel,
	}
	s.dial = cfg.Dialer
	if s.dial == nil {
		s.dial = func(ctx context.Context) (net.Conn, error) {
			d := net.Dialer{Timeout: cfg.DialTimeout}
			return d.DialContext(ctx, "tcp", cfg.Addr)
		}
	}
	s.keepalive = newKeepAlive(cfg.KeepAlive, s.sendKeepalive, s.keepaliveDead)

	dctx, dcancel := context.WithTimeout(ctx, cfg.DialTimeout)
	conn, err := s.dial(dctx)
	dcancel()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("dial %s: %w", cfg.Addr, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.setStateLocked(StateActive, "connected")
	s.mu.Unlock()

	s.wg.Add(1)
	go s.readLoop(conn)
	s.keepalive.start(s.ctx)

	return s, nil
}

// ID returns the session's UUID.
func (s *Session) ID() string { return s.id }

// State returns the current session state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// RemoteAddr returns the reader's address for the current connection,
// or empty when disconnected.
func (s *Session) RemoteAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return ""
	}
	return s.conn.RemoteAddr().String()
}

// SetReplay registers the reconnect replay hook.
func (s *Session) SetReplay(fn ReplayFunc) {
	s.replayMu.Lock()
	s.replay = fn
	s.replayMu.Unlock()
}

// OnUnsolicited registers a handler for frames that resolve no pending
// request (tag notifications, mostly). The returned function cancels
// the registration.
func (s *Session) OnUnsolicited(fn func(protocol.Frame)) func() {
	s.handlersMu.Lock()
	id := s.nextHandler
	s.nextHandler++
	s.handlers[id] = fn
	s.handlersMu.Unlock()

	return func() {
		s.handlersMu.Lock()
		delete(s.handlers, id)
		s.handlersMu.Unlock()
	}
}

// Send issues a request and waits for the correlated response. The
// response payload is decoded when the command registry knows the
// command; a non-zero status byte surfaces as a *protocol.StatusError
// alongside the raw frame.
func (s *Session) Send(ctx context.Context, cmd, sub byte, payload []byte) (*Result, error) {
	key := protocol.CommandKey{Cmd: cmd, Sub: sub}
	spec, known := protocol.LookupCommand(key)
	if known && spec.Reply == protocol.ReplyNone {
		return nil, ErrNoResponse
	}

	if err := s.requireActive(); err != nil {
		return nil, err
	}

	ch, err := s.correlator.add(key)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	s.logCommand(log.DirectionOut, log.MessageTypeRequest, key, nil, nil)
	if err := s.WriteFrame(cmd, sub, payload); err != nil {
		s.correlator.remove(key)
		return nil, err
	}

	select {
	case <-ctx.Done():
		s.correlator.remove(key)
		return nil, ctx.Err()
	case <-s.ctx.Done():
		s.correlator.remove(key)
		return nil, ErrSessionClosed
	case o := <-ch:
		if o.err != nil {
			return nil, o.err
		}
		rtt := time.Since(start)
		res := &Result{Frame: o.frame}
		var decodeErr error
		if known && spec.Decode != nil {
			res.Decoded, decodeErr = spec.Decode(o.frame.Payload)
		}
		s.logCommand(log.DirectionIn, log.MessageTypeResponse, key, statusOf(o.frame, known, spec), &rtt)
		return res, decodeErr
	}
}

// SendNoReply writes a request without waiting for any response. Used
// for commands the reader acknowledges unreliably or not at all.
func (s *Session) SendNoReply(cmd, sub byte, payload []byte) error {
	if err := s.requireActive(); err != nil {
		return err
	}
	s.logCommand(log.DirectionOut, log.MessageTypeRequest, protocol.CommandKey{Cmd: cmd, Sub: sub}, nil, nil)
	return s.WriteFrame(cmd, sub, payload)
}

// Collect issues a burst request and gathers every response frame with
// the request's key until no frame arrives for idle. Used for
// stored-tag retrieval, where the reader streams an unbounded run of
// frames with no terminator.
func (s *Session) Collect(ctx context.Context, cmd, sub byte, payload []byte, idle time.Duration) ([]protocol.Frame, error) {
	if err := s.requireActive(); err != nil {
		return nil, err
	}

	key := protocol.CommandKey{Cmd: cmd, Sub: sub}
	s.burstMu.Lock()
	if _, exists := s.burst[key]; exists {
		s.burstMu.Unlock()
		return nil, ErrRequestPending
	}
	ch := make(chan protocol.Frame, 256)
	s.burst[key] = ch
	s.burstMu.Unlock()

	defer func() {
		s.burstMu.Lock()
		delete(s.burst, key)
		s.burstMu.Unlock()
	}()

	s.logCommand(log.DirectionOut, log.MessageTypeRequest, key, nil, nil)
	if err := s.WriteFrame(cmd, sub, payload); err != nil {
		return nil, err
	}

	var frames []protocol.Frame
	timer := time.NewTimer(idle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return frames, ctx.Err()
		case <-s.ctx.Done():
			return frames, ErrSessionClosed
		case <-timer.C:
			return frames, nil
		case f := <-ch:
			frames = append(frames, f)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(idle)
		}
	}
}

// WriteFrame encodes and writes one frame on the current connection.
// It does not gate on session state; Send and SendNoReply do.
func (s *Session) WriteFrame(cmd, sub byte, payload []byte) error {
	raw, err := protocol.Encode(cmd, sub, payload)
	if err != nil {
		return err
	}

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return ErrNotActive
	}

	s.logFrame(log.DirectionOut, cmd, sub, raw)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := conn.Write(raw); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close shuts the session down. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.setStateLocked(StateClosed, "closed by caller")
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.cancel()
	s.keepalive.stop()
	s.correlator.failAll(ErrSessionClosed)
	if conn != nil {
		conn.Close()
	}
	s.wg.Wait()
	return nil
}

func (s *Session) requireActive() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.state {
	case StateActive:
		return nil
	case StateClosed:
		return ErrSessionClosed
	default:
		return ErrNotActive
	}
}

// readLoop reads from one connection until it dies. Each connection
// gets its own decoder so a loop still draining a dead connection
// cannot corrupt the next connection's frame stream.
func (s *Session) readLoop(conn net.Conn) {
	defer s.wg.Done()

	dec := protocol.NewDecoder()
	dec.SetErrorHandler(func(e *protocol.FramingError) {
		s.logError(log.LayerTransport, e.Error(), "frame decode")
	})

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, f := range dec.Feed(buf[:n]) {
				s.keepalive.markAlive()
				s.dispatch(f)
			}
		}
		if err != nil {
			s.handleDisconnect(err)
			return
		}
	}
}

func (s *Session) dispatch(f protocol.Frame) {
	s.logFrame(log.DirectionIn, f.Cmd, f.Sub, f.Payload)

	// Keepalive acknowledgements only count as liveness.
	if f.Cmd == protocol.CmdSystem && f.Sub == protocol.SubKeepalive {
		if seq, err := protocol.DecodeKeepaliveSeq(f.Payload); err == nil {
			s.logKeepalive(log.DirectionIn, seq)
		}
		return
	}

	s.burstMu.Lock()
	ch, isBurst := s.burst[f.Key()]
	s.burstMu.Unlock()
	if isBurst {
		select {
		case ch <- f:
		default:
			s.logError(log.LayerSession, "burst buffer full, frame dropped", "collect")
		}
		return
	}

	if s.correlator.resolve(f) {
		return
	}

	s.handlersMu.Lock()
	handlers := make([]func(protocol.Frame), 0, len(s.handlers))
	for _, h := range s.handlers {
		handlers = append(handlers, h)
	}
	s.handlersMu.Unlock()
	for _, h := range handlers {
		h(f)
	}
}

// handleDisconnect tears the dead connection down and, unless
// reconnection is disabled, starts the reconnect loop.
func (s *Session) handleDisconnect(cause error) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.conn = nil

	// A read error while already reconnecting means the fresh connection
	// died mid-replay. The running reconnect loop owns recovery; spawning
	// a second one here would race its Active transition.
	if s.state == StateReconnecting {
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		s.correlator.failAll(fmt.Errorf("%w: %v", ErrConnectionLost, cause))
		return
	}

	reconnect := !s.cfg.DisableReconnect
	if reconnect {
		s.setStateLocked(StateReconnecting, cause.Error())
	} else {
		s.setStateLocked(StateClosed, cause.Error())
	}
	s.mu.Unlock()

	s.keepalive.stop()
	if conn != nil {
		conn.Close()
	}
	s.correlator.failAll(fmt.Errorf("%w: %v", ErrConnectionLost, cause))

	if reconnect {
		s.wg.Add(1)
		go s.reconnectLoop()
	} else {
		s.cancel()
	}
}

func (s *Session) reconnectLoop() {
	defer s.wg.Done()

	for {
		delay := s.backoff.Next()
		select {
		case <-s.ctx.Done():
			return
		case <-time.After(delay):
		}

		dctx, dcancel := context.WithTimeout(s.ctx, s.cfg.DialTimeout)
		conn, err := s.dial(dctx)
		dcancel()
		if err != nil {
			s.logError(log.LayerSession, err.Error(),
				fmt.Sprintf("reconnect attempt %d", s.backoff.Attempts()))
			continue
		}

		s.mu.Lock()
		if s.state == StateClosed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.mu.Unlock()

		s.wg.Add(1)
		go s.readLoop(conn)

		// Restore reader state before accepting requests: replay frames
		// must be on the wire before anything gated on StateActive.
		s.replayMu.Lock()
		replay := s.replay
		s.replayMu.Unlock()
		if replay != nil {
			if err := replay(s); err != nil {
				// The reader state could not be restored, so this attempt
				// is no good. Drop the connection and redial.
				s.logError(log.LayerSession, err.Error(), "reconnect replay")
				s.mu.Lock()
				if s.conn == conn {
					s.conn = nil
				}
				s.mu.Unlock()
				conn.Close()
				continue
			}
		}

		s.mu.Lock()
		if s.state == StateClosed {
			s.mu.Unlock()
			return
		}
		if s.conn != conn {
			// The connection died during replay and its read loop already
			// tore it down. Try again.
			s.mu.Unlock()
			continue
		}
		s.setStateLocked(StateActive, "reconnected")
		s.mu.Unlock()

		s.backoff.Reset()
		s.keepalive.start(s.ctx)
		return
	}
}

func (s *Session) sendKeepalive(seq uint32) error {
	s.logKeepalive(log.DirectionOut, seq)
	return s.WriteFrame(protocol.CmdSystem, protocol.SubKeepalive, protocol.EncodeKeepaliveSeq(seq))
}

// keepaliveDead forces the read loop to fail, funneling connection
// teardown through a single path.
func (s *Session) keepaliveDead() {
	s.logError(log.LayerSession, "liveness window expired", "keepalive")
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn != nil {
		conn.Close()
	}
}

// setStateLocked transitions the state and logs it. Caller holds s.mu.
func (s *Session) setStateLocked(next State, reason string) {
	if s.state == next {
		return
	}
	old := s.state
	s.state = next
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: old.String(),
			NewState: next.String(),
			Reason:   reason,
		},
	})
}

const maxLoggedFrameBytes = 64

func (s *Session) logFrame(dir log.Direction, cmd, sub byte, data []byte) {
	truncated := false
	logged := data
	if len(logged) > maxLoggedFrameBytes {
		logged = logged[:maxLoggedFrameBytes]
		truncated = true
	}
	s.logger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  s.id,
		Direction:  dir,
		Layer:      log.LayerTransport,
		Category:   log.CategoryCommand,
		RemoteAddr: s.RemoteAddr(),
		Frame: &log.FrameEvent{
			Cmd:       cmd,
			Sub:       sub,
			Size:      len(data),
			Data:      append([]byte(nil), logged...),
			Truncated: truncated,
		},
	})
}

func (s *Session) logCommand(dir log.Direction, mt log.MessageType, key protocol.CommandKey, status *uint8, rtt *time.Duration) {
	name := fmt.Sprintf("0x%02X/0x%02X", key.Cmd, key.Sub)
	if spec, ok := protocol.LookupCommand(key); ok {
		name = spec.Name
	}
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Direction: dir,
		Layer:     log.LayerProtocol,
		Category:  log.CategoryCommand,
		Command: &log.CommandEvent{
			Type:      mt,
			Name:      name,
			Cmd:       key.Cmd,
			Sub:       key.Sub,
			Status:    status,
			RoundTrip: rtt,
		},
	})
}

func (s *Session) logKeepalive(dir log.Direction, seq uint32) {
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Direction: dir,
		Layer:     log.LayerProtocol,
		Category:  log.CategoryControl,
		Keepalive: &log.KeepaliveEvent{Sequence: seq},
	})
}

func (s *Session) logError(layer log.Layer, msg, context string) {
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Layer:     layer,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: msg,
			Context: context,
		},
	})
}

// statusOf extracts the status byte for command capture when the
// payload carries one.
func statusOf(f protocol.Frame, known bool, spec protocol.CommandSpec) *uint8 {
	if !known || len(f.Payload) == 0 {
		return nil
	}
	st := f.Payload[0]
	return &st
}

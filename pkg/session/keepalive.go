package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Keepalive constants.
const (
	// DefaultKeepaliveInterval is the default interval between keepalive
	// frames.
	DefaultKeepaliveInterval = 10 * time.Second

	// DefaultLivenessWindow is the default silence window after which the
	// connection is considered dead. The reader answers keepalives and
	// also pushes tag notifications, so any received frame resets the
	// window; it must be a multiple of the interval to ride out
	// occasional loss.
	DefaultLivenessWindow = 40 * time.Second
)

// KeepaliveConfig configures liveness monitoring.
type KeepaliveConfig struct {
	// Interval between keepalive frames.
	Interval time.Duration

	// Window is the maximum silence before the connection is declared
	// dead. Must be larger than Interval.
	Window time.Duration

	// Disabled turns keepalive off entirely (some firmware revisions
	// reset on unknown commands).
	Disabled bool
}

// DefaultKeepaliveConfig returns the default keepalive configuration.
func DefaultKeepaliveConfig() KeepaliveConfig {
	return KeepaliveConfig{
		Interval: DefaultKeepaliveInterval,
		Window:   DefaultLivenessWindow,
	}
}

// keepAlive sends periodic keepalive frames and declares the connection
// dead when nothing has been received for a full window.
type keepAlive struct {
	config KeepaliveConfig

	send   func(seq uint32) error
	onDead func()

	sequence atomic.Uint32

	// lastRx is the UnixNano time of the last received frame.
	lastRx atomic.Int64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

func newKeepAlive(config KeepaliveConfig, send func(seq uint32) error, onDead func()) *keepAlive {
	if config.Interval <= 0 {
		config.Interval = DefaultKeepaliveInterval
	}
	if config.Window <= config.Interval {
		config.Window = 4 * config.Interval
	}

	ka := &keepAlive{
		config: config,
		send:   send,
		onDead: onDead,
	}
	ka.lastRx.Store(time.Now().UnixNano())
	return ka
}

// markAlive records receive activity. Called for every decoded frame,
// not just keepalive acknowledgements.
func (ka *keepAlive) markAlive() {
	ka.lastRx.Store(time.Now().UnixNano())
}

// start begins the keepalive loop. No-op when already running or
// disabled by configuration.
func (ka *keepAlive) start(ctx context.Context) {
	if ka.config.Disabled {
		return
	}

	ka.mu.Lock()
	if ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	stopCh := ka.stopCh
	ka.mu.Unlock()

	ka.markAlive()
	go ka.loop(ctx, stopCh)
}

// stop halts the keepalive loop. Safe to call when not running.
func (ka *keepAlive) stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if !ka.running {
		return
	}
	ka.running = false
	close(ka.stopCh)
}

// lastActivity returns the time of the last received frame.
func (ka *keepAlive) lastActivity() time.Time {
	return time.Unix(0, ka.lastRx.Load())
}

func (ka *keepAlive) loop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(ka.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			silence := time.Since(ka.lastActivity())
			if silence >= ka.config.Window {
				ka.stop()
				if ka.onDead != nil {
					ka.onDead()
				}
				return
			}
			// Send failures surface through the read loop.
			_ = ka.send(ka.sequence.Add(1))
		}
	}
}

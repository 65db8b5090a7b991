package session

import (
	"errors"
	"sync"

	"github.com/malike-rnd/cl7206c2-rfid/pkg/protocol"
)

// ErrRequestPending is returned when a request is issued while another
// request with the same (cmd, sub) key is still in flight. The wire
// protocol has no message IDs, so two concurrent requests with the same
// key would have indistinguishable responses.
var ErrRequestPending = errors.New("request already pending for this command")

// outcome is what a waiter receives: the response frame, or the error
// that killed the connection while the request was in flight.
type outcome struct {
	frame protocol.Frame
	err   error
}

// correlator matches response frames to waiting requests by command key.
type correlator struct {
	mu      sync.Mutex
	pending map[protocol.CommandKey]chan outcome
}

func newCorrelator() *correlator {
	return &correlator{
		pending: make(map[protocol.CommandKey]chan outcome),
	}
}

// add registers a waiter for key. Fails fast if a request with the same
// key is already pending.
func (c *correlator) add(key protocol.CommandKey) (<-chan outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pending[key]; exists {
		return nil, ErrRequestPending
	}

	ch := make(chan outcome, 1)
	c.pending[key] = ch
	return ch, nil
}

// remove drops the waiter for key, if any. Called by the requester on
// timeout or cancellation.
func (c *correlator) remove(key protocol.CommandKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, key)
}

// resolve delivers a response frame to the waiter for its key.
// Returns false when nobody is waiting, in which case the frame is
// unsolicited.
func (c *correlator) resolve(f protocol.Frame) bool {
	c.mu.Lock()
	ch, ok := c.pending[f.Key()]
	if ok {
		delete(c.pending, f.Key())
	}
	c.mu.Unlock()

	if !ok {
		return false
	}
	ch <- outcome{frame: f}
	return true
}

// failAll delivers err to every waiter and clears the pending set.
// Called when the connection drops: in-flight requests cannot be
// replayed because the reader may or may not have executed them.
func (c *correlator) failAll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, ch := range c.pending {
		ch <- outcome{err: err}
		delete(c.pending, key)
	}
}

// pendingCount returns the number of in-flight requests.
func (c *correlator) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

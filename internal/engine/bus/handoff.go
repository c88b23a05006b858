// Package bus provides the transport pieces of the event bus: the envelope
// carried between goroutines, the rendezvous hand-off that moves envelopes
// onto the owner goroutine, and the cooperative scheduler that runs deferred
// handlers there.
package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrHandoffClosed is returned by Send once the receiving side shut down.
var ErrHandoffClosed = errors.New("handoff is closed")

// Handoff is a zero-capacity channel between event producers and the owner
// goroutine. Send blocks until the owner receives the envelope, so exactly one
// envelope transfers at a time.
type Handoff struct {
	ch        chan Envelope
	done      chan struct{}
	closeOnce sync.Once

	// Stats
	totalSent     int64
	totalDrained  int64
	totalRejected int64
	waiting       int32
}

// NewHandoff creates an open hand-off.
func NewHandoff() *Handoff {
	return &Handoff{
		ch:   make(chan Envelope),
		done: make(chan struct{}),
	}
}

// Send blocks until the owner receives env, the hand-off closes, or ctx ends.
func (h *Handoff) Send(ctx context.Context, env Envelope) error {
	select {
	case <-h.done:
		atomic.AddInt64(&h.totalRejected, 1)
		return ErrHandoffClosed
	default:
	}

	atomic.AddInt32(&h.waiting, 1)
	defer atomic.AddInt32(&h.waiting, -1)

	select {
	case h.ch <- env:
		atomic.AddInt64(&h.totalSent, 1)
		return nil
	case <-h.done:
		atomic.AddInt64(&h.totalRejected, 1)
		return ErrHandoffClosed
	case <-ctx.Done():
		atomic.AddInt64(&h.totalRejected, 1)
		return ctx.Err()
	}
}

// C returns the receive side. Only the owner goroutine may read from it.
func (h *Handoff) C() <-chan Envelope {
	return h.ch
}

// Done is closed once Close was called.
func (h *Handoff) Done() <-chan struct{} {
	return h.done
}

// Drain receives and discards every envelope whose sender is currently
// blocked in Send. It never waits for new senders.
func (h *Handoff) Drain() int {
	n := 0
	for {
		select {
		case <-h.ch:
			n++
		default:
			atomic.AddInt64(&h.totalDrained, int64(n))
			return n
		}
	}
}

// Close rejects all current and future senders. It is safe to call twice.
func (h *Handoff) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// HandoffStats is a snapshot of hand-off counters.
type HandoffStats struct {
	Waiting  int   `json:"waiting"`
	Sent     int64 `json:"sent"`
	Drained  int64 `json:"drained"`
	Rejected int64 `json:"rejected"`
}

// Stats returns current hand-off statistics.
func (h *Handoff) Stats() HandoffStats {
	return HandoffStats{
		Waiting:  int(atomic.LoadInt32(&h.waiting)),
		Sent:     atomic.LoadInt64(&h.totalSent),
		Drained:  atomic.LoadInt64(&h.totalDrained),
		Rejected: atomic.LoadInt64(&h.totalRejected),
	}
}

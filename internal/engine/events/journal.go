package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/service_orchestrator/pkg/clock"
)

// DefaultJournalSize is used when NewRingBuffer gets a non-positive size.
const DefaultJournalSize = 1000

// EventHandler observes entries as they are logged.
type EventHandler func(Event)

// EventFilter selects entries.
type EventFilter func(Event) bool

// Journal is what the manager writes to and the admin surface reads from.
type Journal interface {
	Log(event Event)

	// LogWithContext is Log with the trace ID taken from ctx.
	LogWithContext(ctx context.Context, event Event)

	// Subscribe and SubscribeFiltered return an unsubscribe function.
	Subscribe(handler EventHandler) func()
	SubscribeFiltered(filter EventFilter, handler EventHandler) func()

	// Recent lookups return at most n entries, newest first.
	Recent(n int) []Event
	RecentByService(service string, n int) []Event
	RecentByType(eventType EventType, n int) []Event
}

// Query selects entries for Find. Zero fields match everything.
type Query struct {
	Service string
	Type    EventType
	Since   time.Time
	Limit   int
}

func (q Query) match(e Event) bool {
	if q.Service != "" && e.Service != q.Service {
		return false
	}
	if q.Type != "" && e.Type != q.Type {
		return false
	}
	if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
		return false
	}
	return true
}

// RingBuffer keeps the last N entries in memory. Safe for concurrent use;
// handlers run on the logging goroutine after the lock is released.
type RingBuffer struct {
	clock clock.Clock

	mu      sync.RWMutex
	entries []Event
	next    int // slot the next entry overwrites once the buffer is full
	limit   int

	subs    map[uint64]subscription
	nextSub uint64
}

type subscription struct {
	filter  EventFilter
	handler EventHandler
}

// RingOption configures a RingBuffer.
type RingOption func(*RingBuffer)

// WithClock stamps entries with c instead of the wall clock.
func WithClock(c clock.Clock) RingOption {
	return func(rb *RingBuffer) {
		if c != nil {
			rb.clock = c
		}
	}
}

// NewRingBuffer returns a journal holding the last size entries.
func NewRingBuffer(size int, opts ...RingOption) *RingBuffer {
	if size <= 0 {
		size = DefaultJournalSize
	}
	rb := &RingBuffer{
		clock:   clock.Real(),
		entries: make([]Event, 0, size),
		limit:   size,
		subs:    make(map[uint64]subscription),
	}
	for _, opt := range opts {
		opt(rb)
	}
	return rb
}

// Log stores event and notifies subscribers.
func (rb *RingBuffer) Log(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = rb.clock.Now().UTC()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}

	rb.mu.Lock()
	if len(rb.entries) < rb.limit {
		rb.entries = append(rb.entries, event)
	} else {
		rb.entries[rb.next] = event
		rb.next = (rb.next + 1) % rb.limit
	}
	subs := make([]subscription, 0, len(rb.subs))
	for _, s := range rb.subs {
		subs = append(subs, s)
	}
	rb.mu.Unlock()

	for _, s := range subs {
		if s.filter == nil || s.filter(event) {
			s.handler(event)
		}
	}
}

// LogWithContext copies the trace ID from ctx before logging.
func (rb *RingBuffer) LogWithContext(ctx context.Context, event Event) {
	if id := TraceID(ctx); id != "" && event.TraceID == "" {
		event.TraceID = id
	}
	rb.Log(event)
}

// Subscribe delivers every entry to handler.
func (rb *RingBuffer) Subscribe(handler EventHandler) func() {
	return rb.SubscribeFiltered(nil, handler)
}

// SubscribeFiltered delivers entries matching filter to handler.
func (rb *RingBuffer) SubscribeFiltered(filter EventFilter, handler EventHandler) func() {
	rb.mu.Lock()
	id := rb.nextSub
	rb.nextSub++
	rb.subs[id] = subscription{filter: filter, handler: handler}
	rb.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			rb.mu.Lock()
			delete(rb.subs, id)
			rb.mu.Unlock()
		})
	}
}

// Find returns entries matching q, newest first. A zero Limit returns nil.
func (rb *RingBuffer) Find(q Query) []Event {
	if q.Limit <= 0 {
		return nil
	}
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []Event
	n := len(rb.entries)
	// The newest entry sits just before next once the buffer has wrapped,
	// and at the end of the slice before that.
	newest := n - 1
	if n == rb.limit {
		newest = (rb.next - 1 + n) % n
	}
	for i := 0; i < n && len(out) < q.Limit; i++ {
		e := rb.entries[(newest-i+n)%n]
		if q.match(e) {
			out = append(out, e)
		}
	}
	return out
}

func (rb *RingBuffer) Recent(n int) []Event {
	return rb.Find(Query{Limit: n})
}

func (rb *RingBuffer) RecentByService(service string, n int) []Event {
	return rb.Find(Query{Service: service, Limit: n})
}

func (rb *RingBuffer) RecentByType(eventType EventType, n int) []Event {
	return rb.Find(Query{Type: eventType, Limit: n})
}

// Count returns how many entries are held.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}

// Clear drops every entry. Subscribers stay registered.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.entries = rb.entries[:0]
	rb.next = 0
}

// NoOpJournal discards everything.
type NoOpJournal struct{}

func (NoOpJournal) Log(Event)                                          {}
func (NoOpJournal) LogWithContext(context.Context, Event)              {}
func (NoOpJournal) Subscribe(EventHandler) func()                      { return func() {} }
func (NoOpJournal) SubscribeFiltered(EventFilter, EventHandler) func() { return func() {} }
func (NoOpJournal) Recent(int) []Event                                 { return nil }
func (NoOpJournal) RecentByService(string, int) []Event                { return nil }
func (NoOpJournal) RecentByType(EventType, int) []Event                { return nil }

var (
	_ Journal = (*RingBuffer)(nil)
	_ Journal = NoOpJournal{}
)

package builtin

import (
	"sort"
	"sync"
	"time"

	"github.com/R3E-Network/service_orchestrator/internal/engine/bus"
	"github.com/R3E-Network/service_orchestrator/internal/engine/service"
	"github.com/R3E-Network/service_orchestrator/pkg/clock"
)

// EventLogID is the registered identifier of the event log.
const EventLogID = "eventlog"

// Entry is one recorded event.
type Entry struct {
	Name   string    `json:"name"`
	Args   int       `json:"args"`
	Kwargs []string  `json:"kwargs,omitempty"`
	At     time.Time `json:"at"`
}

// EventLog records every scattered event. Recent and Total are safe for
// concurrent use; everything else runs on the owner goroutine.
type EventLog struct {
	*service.Base
	clock clock.Clock

	mu      sync.RWMutex
	size    int
	entries []Entry
	next    int
	total   int64
}

// NewEventLog returns a constructor for an event log holding size entries.
func NewEventLog(size int, c clock.Clock) service.Constructor {
	if size <= 0 {
		size = 256
	}
	if c == nil {
		c = clock.Real()
	}
	return func(host service.Host) (service.Service, error) {
		return &EventLog{
			Base:    service.NewBase(EventLogID, host),
			clock:   c,
			size:    size,
			entries: make([]Entry, 0, size),
		}, nil
	}
}

// OnAnyEvent records env.
func (l *EventLog) OnAnyEvent(env bus.Envelope) {
	e := Entry{Name: env.Name, Args: len(env.Args), At: l.clock.Now()}
	for k := range env.Kwargs {
		e.Kwargs = append(e.Kwargs, k)
	}
	sort.Strings(e.Kwargs)
	l.record(e)
}

// Note records an entry that did not travel through the bus.
func (l *EventLog) Note(name string) {
	l.record(Entry{Name: name, At: l.clock.Now()})
}

func (l *EventLog) record(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) < l.size {
		l.entries = append(l.entries, e)
	} else {
		l.entries[l.next] = e
	}
	l.next = (l.next + 1) % l.size
	l.total++
}

// Recent returns up to n entries, newest first.
func (l *EventLog) Recent(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := len(l.entries)
	if n <= 0 || n > count {
		n = count
	}
	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + count) % count
		out = append(out, l.entries[idx])
	}
	return out
}

// Total returns the number of events ever recorded.
func (l *EventLog) Total() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// OnSystemShutdown logs the final count.
func (l *EventLog) OnSystemShutdown() error {
	l.Logger().Entry().WithField("events", l.Total()).Info("event log closed")
	return nil
}

var _ service.CatchAllSubscriber = (*EventLog)(nil)

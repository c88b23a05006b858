// Package events provides the orchestrator journal: a bounded, structured
// record of lifecycle transitions, bus activity, and shutdown results that
// operators can read back through the admin surface.
//
// Journal entries are not the scattered events services exchange; those
// travel through the bus package and are only summarized here.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/service_orchestrator/internal/engine/state"
)

// EventType classifies the kind of journal entry.
type EventType string

const (
	// Registry
	EventServiceRegistered EventType = "service.registered"
	EventServicesLoaded    EventType = "service.loaded"

	// Lifecycle
	EventServiceStarting     EventType = "service.starting"
	EventServicePreInit      EventType = "service.preinit"
	EventServiceStarted      EventType = "service.started"
	EventServiceStartFailed  EventType = "service.start_failed"
	EventServicePostInitFail EventType = "service.postinit_failed"

	// Shutdown
	EventServiceStopped        EventType = "service.stopped"
	EventServiceShutdownFailed EventType = "service.shutdown_failed"

	// Bus
	EventBusScatter        EventType = "bus.scatter"
	EventBusHandoff        EventType = "bus.handoff"
	EventBusDispatchFailed EventType = "bus.dispatch_failed"
	EventBusDrained        EventType = "bus.drained"
	EventBusDropped        EventType = "bus.dropped"

	// Orchestrator
	EventOrchestratorStarted  EventType = "orchestrator.started"
	EventOrchestratorStopping EventType = "orchestrator.stopping"
	EventOrchestratorStopped  EventType = "orchestrator.stopped"

	// Admin
	EventAdminScatter EventType = "admin.scatter"
)

// Severity ranks journal entries.
type Severity string

const (
	SeverityDebug   Severity = "debug"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is one journal entry. A zero ID, Timestamp or Severity is filled in
// when the entry is logged.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`

	Service   string       `json:"service,omitempty"`
	Component string       `json:"component,omitempty"`
	Status    state.Status `json:"status,omitempty"`

	Message  string            `json:"message,omitempty"`
	Error    string            `json:"error,omitempty"`
	Duration time.Duration     `json:"duration_ns,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	TraceID  string            `json:"trace_id,omitempty"`
}

// String returns the JSON form of the event.
func (e Event) String() string {
	data, err := json.Marshal(e)
	if err != nil {
		return string(e.Type)
	}
	return string(data)
}

type traceKey struct{}

// WithTraceID returns a context carrying traceID for LogWithContext.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID returns the trace ID stored by WithTraceID.
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}

// EventBuilder assembles an Event fluently.
type EventBuilder struct {
	event Event
}

// NewEvent starts an info-level entry of the given type.
func NewEvent(eventType EventType) *EventBuilder {
	return &EventBuilder{event: Event{Type: eventType, Severity: SeverityInfo}}
}

func (b *EventBuilder) Service(id string) *EventBuilder {
	b.event.Service = id
	return b
}

func (b *EventBuilder) Component(component string) *EventBuilder {
	b.event.Component = component
	return b
}

func (b *EventBuilder) Status(status state.Status) *EventBuilder {
	b.event.Status = status
	return b
}

func (b *EventBuilder) Severity(severity Severity) *EventBuilder {
	b.event.Severity = severity
	return b
}

func (b *EventBuilder) Message(msg string) *EventBuilder {
	b.event.Message = msg
	return b
}

// ErrorFrom records err and raises the severity to error. A nil err is
// ignored.
func (b *EventBuilder) ErrorFrom(err error) *EventBuilder {
	if err == nil {
		return b
	}
	b.event.Error = err.Error()
	b.event.Severity = SeverityError
	return b
}

func (b *EventBuilder) Duration(d time.Duration) *EventBuilder {
	b.event.Duration = d
	return b
}

// Metadata sets one metadata key.
func (b *EventBuilder) Metadata(key, value string) *EventBuilder {
	if b.event.Metadata == nil {
		b.event.Metadata = make(map[string]string, 1)
	}
	b.event.Metadata[key] = value
	return b
}

// Build returns the event with an ID assigned.
func (b *EventBuilder) Build() Event {
	if b.event.ID == "" {
		b.event.ID = uuid.NewString()
	}
	return b.event
}

// LogTo writes the event to journal.
func (b *EventBuilder) LogTo(journal Journal) {
	journal.Log(b.Build())
}

package service

import (
	"fmt"
	"time"

	"github.com/R3E-Network/service_orchestrator/internal/engine/bus"
	"github.com/R3E-Network/service_orchestrator/internal/engine/state"
	"github.com/R3E-Network/service_orchestrator/pkg/logger"
)

// AllEvents is the subscription marker that receives every scattered event.
const AllEvents = "*"

// Host is the orchestrator handle a service receives at construction. Every
// method runs on the owner goroutine and is only valid there.
type Host interface {
	// GetService returns the running instance for id, starting it if needed.
	GetService(id string) (Service, error)

	// Scatter dispatches an event to its subscribers before returning.
	// Exact-name handlers are deferred to the next yield.
	Scatter(name string, args ...any) error

	// ScatterEnvelope is Scatter with keyword arguments.
	ScatterEnvelope(env bus.Envelope) error

	// Yield runs the deferred handlers queued so far and reports how many ran.
	Yield() int

	// Logger returns the orchestrator logger.
	Logger() *logger.Logger
}

// Service is the lifecycle contract every orchestrated component implements.
// Embed *Base to get the default behavior of every hook.
type Service interface {
	// State returns the current lifecycle status.
	State() state.Status

	// SetState records a new lifecycle status. OnInit must set StatusRunning.
	SetState(s state.Status)

	// Bind attaches a resolved dependency under alias.
	Bind(alias string, dep Service)

	// Dependency returns the dependency bound under alias.
	Dependency(alias string) (Service, bool)

	// OnPreInit leaves the service connectable but not functional. Returning
	// false or an error aborts the start.
	OnPreInit() (bool, error)

	// OnInit finishes initialization. Dependencies are bound by now.
	OnInit() error

	// OnPostInit runs after the service is published as running.
	OnPostInit() error

	// OnSystemShutdown is the last call a service receives. Keep it short.
	OnSystemShutdown() error
}

// Ticker is implemented by services that want the periodic heartbeat.
type Ticker interface {
	OnTick(elapsed time.Duration)
}

// Handler receives one scattered event.
type Handler func(env bus.Envelope)

// EventSubscriber exposes handlers keyed by exact event name. A handler found
// here is deferred to the owner's next yield.
type EventSubscriber interface {
	EventHandlers() map[string]Handler
}

// CatchAllSubscriber receives any subscribed event it has no exact handler
// for. It runs to completion before the scatter returns.
type CatchAllSubscriber interface {
	OnAnyEvent(env bus.Envelope)
}

// Lookup returns the dependency bound under alias as type T.
func Lookup[T any](svc Service, alias string) (T, error) {
	var zero T
	dep, ok := svc.Dependency(alias)
	if !ok {
		return zero, fmt.Errorf("dependency %q not bound", alias)
	}
	typed, ok := dep.(T)
	if !ok {
		return zero, fmt.Errorf("dependency %q is %T, want %T", alias, dep, zero)
	}
	return typed, nil
}

// MustLookup is Lookup that panics when the dependency is missing.
func MustLookup[T any](svc Service, alias string) T {
	v, err := Lookup[T](svc, alias)
	if err != nil {
		panic(err)
	}
	return v
}

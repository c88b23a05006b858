// Package manager is the service orchestrator: the lifecycle controller that
// starts services in dependency order, the event bus that scatters named
// events to subscribers, and the tick and shutdown sequencer.
//
// All orchestrator state lives in a Runtime that exists only inside the
// goroutine executing Manager.Run. Other goroutines reach it through the
// Manager facade: Scatter hands an envelope over a rendezvous channel, and
// every other method submits a call that the owner loop executes.
//
// Example usage:
//
//	reg := service.NewRegistry()
//	_ = reg.Register("tokens", service.Descriptor{New: newTokens, AutoStart: true})
//
//	m := manager.New(reg, manager.WithLogger(log))
//	go m.Run(ctx)
//
//	if err := m.ServicesLoaded(ctx); err != nil {
//	    log.WithError(err).Warn("auto-start incomplete")
//	}
//	_ = m.Scatter(ctx, "token.moved", "alice", 3)
//	report, _ := m.Shutdown(ctx)
package manager

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/R3E-Network/service_orchestrator/internal/engine/bus"
	"github.com/R3E-Network/service_orchestrator/internal/engine/events"
	"github.com/R3E-Network/service_orchestrator/internal/engine/metrics"
	"github.com/R3E-Network/service_orchestrator/internal/engine/service"
	"github.com/R3E-Network/service_orchestrator/internal/engine/state"
	"github.com/R3E-Network/service_orchestrator/pkg/clock"
	"github.com/R3E-Network/service_orchestrator/pkg/logger"
)

// Renderer is the rendering subsystem. Shutdown is called once, before any
// service is stopped.
type Renderer interface {
	Shutdown() error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func() error

// Shutdown calls f.
func (f RendererFunc) Shutdown() error { return f() }

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the orchestrator logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithClock sets the time source used by Tick.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithRenderer sets the rendering subsystem torn down by Shutdown.
func WithRenderer(r Renderer) Option {
	return func(m *Manager) {
		m.renderer = r
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.MetricsCollector) Option {
	return func(m *Manager) {
		if c != nil {
			m.metrics = c
		}
	}
}

// WithJournal sets the journal lifecycle and bus activity is recorded to.
func WithJournal(j events.Journal) Option {
	return func(m *Manager) {
		if j != nil {
			m.journal = j
		}
	}
}

// WithTickInterval makes the owner loop call Tick every d. Zero disables the
// built-in driver; callers then drive Manager.Tick themselves.
func WithTickInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.tickInterval = d
		}
	}
}

// Manager is the cross-goroutine facade of the orchestrator. Its methods are
// safe for concurrent use, but must not be called from the owner goroutine
// (from a service hook or handler); owner code uses the Host it was
// constructed with instead.
type Manager struct {
	reg     *service.Registry
	handoff *bus.Handoff
	calls   chan call
	done    chan struct{}
	started atomic.Bool

	log          *logger.Logger
	clock        clock.Clock
	renderer     Renderer
	metrics      metrics.MetricsCollector
	journal      events.Journal
	tickInterval time.Duration
}

type call struct {
	fn     func(*Runtime) error
	result chan error
}

// New creates a manager for reg. The registry belongs to the manager from
// here on; register further services through Manager.Register.
func New(reg *service.Registry, opts ...Option) *Manager {
	if reg == nil {
		reg = service.NewRegistry()
	}
	m := &Manager{
		reg:     reg,
		handoff: bus.NewHandoff(),
		calls:   make(chan call),
		done:    make(chan struct{}),
		log:     logger.NewDefault("orchestrator"),
		clock:   clock.Real(),
		metrics: metrics.NewNoOpCollector(),
		journal: events.NoOpJournal{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run executes the owner loop on the calling goroutine until Shutdown is
// called or ctx ends. Cancelling ctx runs the shutdown sequence before Run
// returns ctx.Err(). Run may only be called once.
func (m *Manager) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(m.done)
	defer m.handoff.Close()

	rt := newRuntime(m)
	m.reg = nil

	var tick <-chan time.Time
	if m.tickInterval > 0 {
		t := time.NewTicker(m.tickInterval)
		defer t.Stop()
		tick = t.C
	}

	events.NewEvent(events.EventOrchestratorStarted).
		Component("orchestrator").
		Metadata("services", strconv.Itoa(rt.reg.Len())).
		LogTo(m.journal)
	m.log.Entry().WithField("services", rt.reg.Len()).Info("orchestrator started")

	for !rt.stopped {
		// A non-nil ready channel makes the select below non-blocking, so
		// deferred handlers run whenever no producer is waiting.
		var ready <-chan struct{}
		if rt.sched.Pending() > 0 {
			ready = closedChan
		}

		select {
		case <-ctx.Done():
			rt.Shutdown()
			return ctx.Err()
		case env := <-m.handoff.C():
			rt.receive(env)
		case c := <-m.calls:
			c.result <- c.fn(rt)
		case <-tick:
			rt.Tick()
		case <-ready:
			rt.Yield()
		}
		m.metrics.UpdateUptime()
	}
	return nil
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Done is closed once the owner loop has exited.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Do runs fn on the owner goroutine and returns its error. It blocks until the
// owner loop accepts the call, ctx ends, or the loop stops. An accepted call
// always runs to completion.
func (m *Manager) Do(ctx context.Context, fn func(*Runtime) error) error {
	c := call{fn: fn, result: make(chan error, 1)}
	select {
	case m.calls <- c:
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-c.result
}

// GetService returns the running instance for id, starting it and its
// dependencies first if needed. The instance belongs to the owner goroutine;
// callers must only use the parts of it that are safe for concurrent use.
func (m *Manager) GetService(ctx context.Context, id string) (service.Service, error) {
	var svc service.Service
	err := m.Do(ctx, func(rt *Runtime) error {
		var err error
		svc, err = rt.GetService(id)
		return err
	})
	return svc, err
}

// Register adds or replaces the descriptor for id.
func (m *Manager) Register(ctx context.Context, id string, desc service.Descriptor) error {
	return m.Do(ctx, func(rt *Runtime) error {
		return rt.Register(id, desc)
	})
}

// RegisterWithDeclaredIdentifier registers desc under desc.ID.
func (m *Manager) RegisterWithDeclaredIdentifier(ctx context.Context, desc service.Descriptor) error {
	return m.Do(ctx, func(rt *Runtime) error {
		return rt.RegisterWithDeclaredIdentifier(desc)
	})
}

// ServicesLoaded starts every auto-start service.
func (m *Manager) ServicesLoaded(ctx context.Context) error {
	return m.Do(ctx, func(rt *Runtime) error {
		return rt.ServicesLoaded()
	})
}

// Scatter hands an event to the owner loop. It returns once the owner has
// received the envelope, not once subscribers have run.
func (m *Manager) Scatter(ctx context.Context, name string, args ...any) error {
	return m.ScatterEnvelope(ctx, bus.NewEnvelope(name, args...))
}

// ScatterEnvelope is Scatter with a prepared envelope.
func (m *Manager) ScatterEnvelope(ctx context.Context, env bus.Envelope) error {
	err := m.handoff.Send(ctx, env)
	if errors.Is(err, bus.ErrHandoffClosed) {
		return ErrStopped
	}
	return err
}

// Tick distributes the heartbeat to running services.
func (m *Manager) Tick(ctx context.Context) (int, error) {
	var n int
	err := m.Do(ctx, func(rt *Runtime) error {
		n = rt.Tick()
		return nil
	})
	return n, err
}

// Shutdown stops every running service and the owner loop. Calling it after
// the loop stopped is a no-op that returns an empty report.
func (m *Manager) Shutdown(ctx context.Context) (ShutdownReport, error) {
	var report ShutdownReport
	err := m.Do(ctx, func(rt *Runtime) error {
		report = rt.Shutdown()
		return nil
	})
	if errors.Is(err, ErrStopped) {
		return ShutdownReport{}, nil
	}
	return report, err
}

// Statuses returns a snapshot of every registered service.
func (m *Manager) Statuses(ctx context.Context) ([]ServiceStatus, error) {
	var out []ServiceStatus
	err := m.Do(ctx, func(rt *Runtime) error {
		out = rt.Statuses()
		return nil
	})
	return out, err
}

// HandoffStats returns hand-off counters. Safe to call from any goroutine.
func (m *Manager) HandoffStats() bus.HandoffStats {
	return m.handoff.Stats()
}

// ServiceStatus describes one registered service.
type ServiceStatus struct {
	ID           string       `json:"id"`
	Status       state.Status `json:"status"`
	AutoStart    bool         `json:"auto_start"`
	Dependencies []string     `json:"dependencies,omitempty"`
	Events       []string     `json:"events,omitempty"`
}

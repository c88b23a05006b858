package manager

import (
	"time"

	"github.com/R3E-Network/service_orchestrator/internal/engine/bus"
	"github.com/R3E-Network/service_orchestrator/internal/engine/events"
	"github.com/R3E-Network/service_orchestrator/internal/engine/metrics"
	"github.com/R3E-Network/service_orchestrator/internal/engine/service"
	"github.com/R3E-Network/service_orchestrator/internal/engine/state"
	"github.com/R3E-Network/service_orchestrator/pkg/clock"
	"github.com/R3E-Network/service_orchestrator/pkg/logger"
)

// Runtime is the owner handle. It holds the registry, the running and
// pre-init tables, and the deferred scheduler, none of which are locked.
// A Runtime is only valid on the goroutine executing Manager.Run: inside a
// Do callback, or inside a service hook or handler, which receives it as
// its service.Host.
type Runtime struct {
	reg     *service.Registry
	running map[string]*instance
	order   []string
	preinit map[string]service.Service // nil value: constructor still running
	sched   *bus.Scheduler
	handoff *bus.Handoff

	log      *logger.Logger
	clock    clock.Clock
	renderer Renderer
	metrics  metrics.MetricsCollector
	journal  events.Journal

	lastTick time.Time
	ticked   bool
	stopped  bool
}

// instance is a published service with its capabilities resolved once.
type instance struct {
	svc      service.Service
	ticker   service.Ticker
	handlers map[string]service.Handler
	catchAll service.CatchAllSubscriber
}

func newRuntime(m *Manager) *Runtime {
	return &Runtime{
		reg:      m.reg,
		running:  make(map[string]*instance),
		preinit:  make(map[string]service.Service),
		sched:    bus.NewScheduler(),
		handoff:  m.handoff,
		log:      m.log,
		clock:    m.clock,
		renderer: m.renderer,
		metrics:  m.metrics,
		journal:  m.journal,
	}
}

var _ service.Host = (*Runtime)(nil)

// Logger returns the orchestrator logger.
func (rt *Runtime) Logger() *logger.Logger {
	return rt.log
}

// Registry returns the service registry.
func (rt *Runtime) Registry() *service.Registry {
	return rt.reg
}

// Register adds or replaces the descriptor for id. A running instance keeps
// running; the new descriptor applies to the next start.
func (rt *Runtime) Register(id string, desc service.Descriptor) error {
	if err := rt.reg.Register(id, desc); err != nil {
		return err
	}
	events.NewEvent(events.EventServiceRegistered).
		Service(id).
		Component("registry").
		LogTo(rt.journal)
	return nil
}

// RegisterWithDeclaredIdentifier registers desc under desc.ID.
func (rt *Runtime) RegisterWithDeclaredIdentifier(desc service.Descriptor) error {
	return rt.Register(desc.ID, desc)
}

// IsRunning reports whether id is in the running table.
func (rt *Runtime) IsRunning(id string) bool {
	_, ok := rt.running[id]
	return ok
}

// IsStarting reports whether id is in the pre-init table.
func (rt *Runtime) IsStarting(id string) bool {
	_, ok := rt.preinit[id]
	return ok
}

// Running returns the running service identifiers in start order.
func (rt *Runtime) Running() []string {
	return append([]string(nil), rt.order...)
}

// Pending returns the number of deferred handlers waiting for a yield.
func (rt *Runtime) Pending() int {
	return rt.sched.Pending()
}

// Yield runs the deferred handlers queued so far. Handlers they schedule
// wait for the next yield.
func (rt *Runtime) Yield() int {
	n := rt.sched.RunPending()
	rt.metrics.RecordDeferredPending(rt.sched.Pending())
	return n
}

// Statuses returns every registered service in registration order.
func (rt *Runtime) Statuses() []ServiceStatus {
	ids := rt.reg.IDs()
	out := make([]ServiceStatus, 0, len(ids))
	for _, id := range ids {
		desc, _ := rt.reg.Lookup(id)
		st := ServiceStatus{
			ID:        id,
			Status:    rt.status(id),
			AutoStart: desc.AutoStart,
			Events:    append([]string(nil), desc.Events...),
		}
		for _, dep := range desc.Dependencies {
			st.Dependencies = append(st.Dependencies, dep.ID)
		}
		out = append(out, st)
	}
	return out
}

func (rt *Runtime) status(id string) state.Status {
	if inst, ok := rt.running[id]; ok {
		return inst.svc.State()
	}
	if svc := rt.preinit[id]; svc != nil {
		return svc.State()
	}
	return state.StatusUnstarted
}

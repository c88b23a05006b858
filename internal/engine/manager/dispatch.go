package manager

import (
	"github.com/R3E-Network/service_orchestrator/internal/engine/bus"
	"github.com/R3E-Network/service_orchestrator/internal/engine/events"
	"github.com/R3E-Network/service_orchestrator/internal/engine/service"
)

const (
	originOwner   = "owner"
	originHandoff = "handoff"
)

// Scatter dispatches an event from the owner goroutine. Catch-all handlers
// have run when it returns; exact-name handlers run at the next yield.
func (rt *Runtime) Scatter(name string, args ...any) error {
	return rt.ScatterEnvelope(bus.NewEnvelope(name, args...))
}

// ScatterEnvelope is Scatter with a prepared envelope.
func (rt *Runtime) ScatterEnvelope(env bus.Envelope) error {
	if rt.stopped {
		return ErrStopped
	}
	rt.metrics.RecordScatter(env.Name, originOwner)
	return rt.Dispatch(env)
}

// Dispatch delivers env to the union of its exact and wildcard subscribers,
// each once. Subscribers that are not running yet are started first; the
// first start failure aborts the dispatch. Subscribers in the middle of their
// own start are skipped.
func (rt *Runtime) Dispatch(env bus.Envelope) error {
	for _, id := range rt.subscribers(env.Name) {
		if _, ok := rt.preinit[id]; ok {
			rt.log.WithService(id).WithField("event", env.Name).Debug("subscriber still starting, skipped")
			continue
		}
		if _, err := rt.GetService(id); err != nil {
			return err
		}
		inst := rt.running[id]

		if h, ok := inst.handlers[env.Name]; ok && h != nil {
			rt.sched.Schedule(func() { h(env) })
			rt.metrics.RecordHandler("deferred")
			continue
		}
		if inst.catchAll != nil {
			inst.catchAll.OnAnyEvent(env)
			rt.metrics.RecordHandler("catch_all")
		}
	}
	rt.metrics.RecordDeferredPending(rt.sched.Pending())
	return nil
}

// subscribers returns the exact subscribers of name followed by the wildcard
// subscribers, without duplicates.
func (rt *Runtime) subscribers(name string) []string {
	exact := rt.reg.Subscribers(name)
	var wildcard []string
	if name != service.AllEvents {
		wildcard = rt.reg.Subscribers(service.AllEvents)
	}

	seen := make(map[string]struct{}, len(exact)+len(wildcard))
	out := make([]string, 0, len(exact)+len(wildcard))
	for _, list := range [][]string{exact, wildcard} {
		for _, id := range list {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// receive dispatches an envelope handed off by another goroutine. The
// producer has already returned, so failures are logged and counted.
func (rt *Runtime) receive(env bus.Envelope) {
	rt.metrics.RecordScatter(env.Name, originHandoff)
	events.NewEvent(events.EventBusHandoff).
		Component("bus").
		Severity(events.SeverityDebug).
		Metadata("event", env.Name).
		LogTo(rt.journal)

	if err := rt.Dispatch(env); err != nil {
		rt.metrics.RecordDispatchError()
		rt.log.Entry().
			WithField("event", env.Name).
			WithError(err).
			Warn("dispatch of handed-off event failed")
		events.NewEvent(events.EventBusDispatchFailed).
			Component("bus").
			Severity(events.SeverityWarning).
			ErrorFrom(err).
			Metadata("event", env.Name).
			LogTo(rt.journal)
	}
}

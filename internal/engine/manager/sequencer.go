package manager

import (
	"strconv"

	"github.com/R3E-Network/service_orchestrator/internal/engine/events"
	"github.com/R3E-Network/service_orchestrator/internal/engine/state"
)

// Tick passes the time elapsed since the previous call to every running
// Ticker, in start order, and returns how many were called. The first call
// only records the baseline.
func (rt *Runtime) Tick() int {
	now := rt.clock.Now()
	if !rt.ticked {
		rt.ticked = true
		rt.lastTick = now
		return 0
	}
	elapsed := now.Sub(rt.lastTick)
	rt.lastTick = now

	n := 0
	for _, id := range rt.order {
		if t := rt.running[id].ticker; t != nil {
			t.OnTick(elapsed)
			n++
		}
	}
	rt.metrics.RecordTick(elapsed)
	return n
}

// ShutdownReport summarizes one shutdown.
type ShutdownReport struct {
	Stopped []string         `json:"stopped"`
	Failed  map[string]error `json:"-"`
	Drained int              `json:"drained"`
	Dropped int              `json:"dropped"`
}

// Shutdown tears down the renderer, stops every running service, discards
// pending hand-offs and deferred handlers, and ends the owner loop. A hook
// failure is logged and never stops the rest. Only the first call does
// anything.
func (rt *Runtime) Shutdown() ShutdownReport {
	report := ShutdownReport{Failed: make(map[string]error)}
	if rt.stopped {
		return report
	}
	rt.stopped = true

	rt.log.Entry().WithField("running", len(rt.running)).Info("orchestrator stopping")
	events.NewEvent(events.EventOrchestratorStopping).
		Component("shutdown").
		LogTo(rt.journal)

	if rt.renderer != nil {
		if err := guard(rt.renderer.Shutdown); err != nil {
			rt.log.Entry().WithError(err).Warn("renderer shutdown failed")
		}
	}

	for _, id := range rt.order {
		svc := rt.running[id].svc
		svc.SetState(state.StatusStopped)
		rt.metrics.RecordServiceStatus(id, int(state.StatusStopped))
		report.Stopped = append(report.Stopped, id)

		if err := guard(svc.OnSystemShutdown); err != nil {
			serr := newServiceError(ErrShutdownHook, id, err)
			report.Failed[id] = serr
			rt.metrics.RecordServiceFailure(id, "shutdown")
			rt.log.WithService(id).WithError(err).Error("service shutdown hook failed")
			events.NewEvent(events.EventServiceShutdownFailed).
				Service(id).
				Component("shutdown").
				Status(state.StatusStopped).
				Severity(events.SeverityError).
				ErrorFrom(serr).
				LogTo(rt.journal)
			continue
		}
		events.NewEvent(events.EventServiceStopped).
			Service(id).
			Component("shutdown").
			Status(state.StatusStopped).
			LogTo(rt.journal)
	}

	report.Drained = rt.handoff.Drain()
	rt.handoff.Close()
	report.Dropped = rt.sched.Drop()
	rt.metrics.RecordShutdownDiscards(report.Drained, report.Dropped)
	rt.metrics.RecordDeferredPending(0)
	if report.Drained > 0 {
		events.NewEvent(events.EventBusDrained).
			Component("bus").
			Metadata("count", strconv.Itoa(report.Drained)).
			LogTo(rt.journal)
	}
	if report.Dropped > 0 {
		events.NewEvent(events.EventBusDropped).
			Component("bus").
			Metadata("count", strconv.Itoa(report.Dropped)).
			LogTo(rt.journal)
	}

	rt.log.Entry().
		WithField("stopped", len(report.Stopped)).
		WithField("failed", len(report.Failed)).
		WithField("drained", report.Drained).
		WithField("dropped", report.Dropped).
		Info("orchestrator stopped")
	events.NewEvent(events.EventOrchestratorStopped).
		Component("shutdown").
		Metadata("stopped", strconv.Itoa(len(report.Stopped))).
		Metadata("failed", strconv.Itoa(len(report.Failed))).
		LogTo(rt.journal)
	return report
}

// Stopped reports whether Shutdown has run.
func (rt *Runtime) Stopped() bool {
	return rt.stopped
}

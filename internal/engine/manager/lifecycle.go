package manager

import (
	"errors"
	"strconv"
	"time"

	"github.com/R3E-Network/service_orchestrator/internal/engine/events"
	"github.com/R3E-Network/service_orchestrator/internal/engine/service"
	"github.com/R3E-Network/service_orchestrator/internal/engine/state"
)

// GetService returns the running instance for id, or starts it.
func (rt *Runtime) GetService(id string) (service.Service, error) {
	if !rt.reg.Has(id) {
		return nil, notFound(id, rt.reg.IDs())
	}
	if inst, ok := rt.running[id]; ok {
		return inst.svc, nil
	}
	if _, ok := rt.preinit[id]; ok {
		return nil, stateError(id, "service is still starting")
	}
	if rt.stopped {
		return nil, ErrStopped
	}
	return rt.StartService(id)
}

// StartService constructs id, resolves its dependencies, and publishes it to
// the running table. On failure nothing is published and the pre-init entry
// is gone. An OnPostInit error is returned together with the instance, which
// stays published.
func (rt *Runtime) StartService(id string) (service.Service, error) {
	desc, ok := rt.reg.Lookup(id)
	if !ok {
		return nil, notFound(id, rt.reg.IDs())
	}
	if _, ok := rt.running[id]; ok {
		return nil, stateError(id, "service is already running")
	}
	if _, ok := rt.preinit[id]; ok {
		return nil, stateError(id, "service is still starting")
	}

	began := rt.clock.Now()
	svc, err := rt.start(id, desc, began)
	rt.metrics.RecordServiceStart(id, rt.clock.Now().Sub(began), err)
	return svc, err
}

func (rt *Runtime) start(id string, desc service.Descriptor, began time.Time) (service.Service, error) {
	rt.preinit[id] = nil
	defer delete(rt.preinit, id)

	events.NewEvent(events.EventServiceStarting).
		Service(id).
		Component("lifecycle").
		Severity(events.SeverityDebug).
		LogTo(rt.journal)

	svc, err := desc.New(rt)
	if err == nil && svc == nil {
		err = errors.New("constructor returned nil")
	}
	if err != nil {
		return nil, rt.startFailed("construct", newServiceError(ErrConstructFailed, id, err))
	}
	rt.preinit[id] = svc

	var ready bool
	err = guard(func() error {
		var hookErr error
		ready, hookErr = svc.OnPreInit()
		return hookErr
	})
	if err == nil && !ready {
		err = errors.New("OnPreInit returned false")
	}
	if err != nil {
		return nil, rt.startFailed("preinit", newServiceError(ErrPreInitFailed, id, err))
	}
	if from := svc.State(); from != state.StatusPreInit {
		if !state.CanTransition(from, state.StatusPreInit) {
			return nil, rt.startFailed("state", &ServiceError{
				Kind: ErrState, ServiceID: id, Cause: state.NewTransitionError(from, state.StatusPreInit),
			})
		}
		svc.SetState(state.StatusPreInit)
	}
	rt.metrics.RecordServiceStatus(id, int(state.StatusPreInit))
	events.NewEvent(events.EventServicePreInit).
		Service(id).
		Component("lifecycle").
		Status(state.StatusPreInit).
		Severity(events.SeverityDebug).
		LogTo(rt.journal)

	for _, dep := range desc.Dependencies {
		ref, err := rt.resolve(dep.ID)
		if err != nil {
			// The dependency already recorded its own failure.
			rt.metrics.RecordServiceStatus(id, int(state.StatusUnstarted))
			return nil, err
		}
		svc.Bind(dep.Name(), ref)
	}

	if err := guard(svc.OnInit); err != nil {
		return nil, rt.startFailed("init", newServiceError(ErrInitFailed, id, err))
	}
	if st := svc.State(); st != state.StatusRunning {
		return nil, rt.startFailed("state", stateError(id, "OnInit left the service %s, want running", st))
	}

	delete(rt.preinit, id)
	rt.publish(id, svc)
	rt.log.WithService(id).Info("service started")
	events.NewEvent(events.EventServiceStarted).
		Service(id).
		Component("lifecycle").
		Status(state.StatusRunning).
		Duration(rt.clock.Now().Sub(began)).
		LogTo(rt.journal)

	if err := svc.OnPostInit(); err != nil {
		rt.metrics.RecordServiceFailure(id, "postinit")
		rt.log.WithService(id).WithError(err).Warn("service post-init failed")
		events.NewEvent(events.EventServicePostInitFail).
			Service(id).
			Component("lifecycle").
			Severity(events.SeverityWarning).
			ErrorFrom(err).
			LogTo(rt.journal)
		return svc, err
	}
	return svc, nil
}

// resolve returns the instance a dependent binds for id: the running one, the
// partially started one, or a freshly started one.
func (rt *Runtime) resolve(id string) (service.Service, error) {
	if inst, ok := rt.running[id]; ok {
		return inst.svc, nil
	}
	if partial, ok := rt.preinit[id]; ok {
		if partial == nil {
			return nil, stateError(id, "dependency requested while its constructor runs")
		}
		return partial, nil
	}
	return rt.StartService(id)
}

func (rt *Runtime) publish(id string, svc service.Service) {
	inst := &instance{svc: svc}
	if t, ok := svc.(service.Ticker); ok {
		inst.ticker = t
	}
	if s, ok := svc.(service.EventSubscriber); ok {
		inst.handlers = s.EventHandlers()
	}
	if c, ok := svc.(service.CatchAllSubscriber); ok {
		inst.catchAll = c
	}
	rt.running[id] = inst
	rt.order = append(rt.order, id)
	rt.metrics.RecordServiceStatus(id, int(state.StatusRunning))
	rt.metrics.RecordServicesRunning(len(rt.running))
}

func (rt *Runtime) startFailed(phase string, err *ServiceError) error {
	rt.metrics.RecordServiceFailure(err.ServiceID, phase)
	rt.metrics.RecordServiceStatus(err.ServiceID, int(state.StatusUnstarted))
	rt.log.WithService(err.ServiceID).
		WithField("phase", phase).
		WithError(err).
		Warn("service start failed")
	events.NewEvent(events.EventServiceStartFailed).
		Service(err.ServiceID).
		Component("lifecycle").
		Severity(events.SeverityError).
		ErrorFrom(err).
		Metadata("phase", phase).
		LogTo(rt.journal)
	return err
}

// ServicesLoaded starts every auto-start service in registration order. A
// failure does not stop the remaining starts; all failures are returned
// joined.
func (rt *Runtime) ServicesLoaded() error {
	var errs []error
	started := 0
	for _, id := range rt.reg.AutoStart() {
		if _, err := rt.GetService(id); err != nil {
			errs = append(errs, err)
			continue
		}
		started++
	}
	rt.log.Entry().
		WithField("started", started).
		WithField("failed", len(errs)).
		Info("services loaded")
	events.NewEvent(events.EventServicesLoaded).
		Component("registry").
		Metadata("started", strconv.Itoa(started)).
		Metadata("failed", strconv.Itoa(len(errs))).
		LogTo(rt.journal)
	return errors.Join(errs...)
}

package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/service_orchestrator/internal/engine/bus"
	"github.com/R3E-Network/service_orchestrator/internal/engine/service"
	"github.com/R3E-Network/service_orchestrator/internal/engine/state"
	"github.com/R3E-Network/service_orchestrator/pkg/logger"
)

// trace records hook calls in order. Only the owner goroutine appends to it;
// tests read it inside Do or after the loop stopped.
type trace struct {
	calls []string
}

func (tr *trace) add(s string) { tr.calls = append(tr.calls, s) }

// probe is a configurable service.
type probe struct {
	*service.Base
	tr *trace

	refusePreInit bool
	preInitErr    error
	initErr       error
	initPanic     bool
	stayPreInit   bool
	postInitErr   error
	shutdownErr   error
	shutdownPanic bool

	seenAtInit map[string]state.Status
	states     []state.Status // state observed on entry to each hook
}

func (p *probe) OnPreInit() (bool, error) {
	p.tr.add(p.ID() + ".preinit")
	p.states = append(p.states, p.State())
	if p.preInitErr != nil {
		return false, p.preInitErr
	}
	return !p.refusePreInit, nil
}

func (p *probe) OnInit() error {
	p.tr.add(p.ID() + ".init")
	p.states = append(p.states, p.State())
	if p.initPanic {
		panic("init exploded")
	}
	if p.initErr != nil {
		return p.initErr
	}
	p.seenAtInit = make(map[string]state.Status)
	for alias, dep := range p.Dependencies() {
		p.seenAtInit[alias] = dep.State()
	}
	if !p.stayPreInit {
		p.SetState(state.StatusRunning)
	}
	return nil
}

func (p *probe) OnPostInit() error {
	p.tr.add(p.ID() + ".postinit")
	return p.postInitErr
}

func (p *probe) OnSystemShutdown() error {
	p.tr.add(p.ID() + ".shutdown")
	if p.shutdownPanic {
		panic("shutdown exploded")
	}
	return p.shutdownErr
}

// ticking adds the Ticker capability.
type ticking struct {
	*probe
	ticks []time.Duration
}

func (t *ticking) OnTick(elapsed time.Duration) { t.ticks = append(t.ticks, elapsed) }

// subscriber handles events by exact name and optionally as a catch-all.
type subscriber struct {
	*probe
	exact  map[string][]bus.Envelope
	caught []bus.Envelope
}

func (s *subscriber) handle(env bus.Envelope) {
	s.tr.add(s.ID() + ".on." + env.Name)
	s.exact[env.Name] = append(s.exact[env.Name], env)
}

// exactOnly has exact-name handlers and no catch-all.
type exactOnly struct {
	*subscriber
	names []string
}

func (e *exactOnly) EventHandlers() map[string]service.Handler {
	out := make(map[string]service.Handler, len(e.names))
	for _, n := range e.names {
		out[n] = e.handle
	}
	return out
}

// catchAll only has the catch-all handler.
type catchAll struct {
	*subscriber
}

func (c *catchAll) OnAnyEvent(env bus.Envelope) {
	c.tr.add(c.ID() + ".any." + env.Name)
	c.caught = append(c.caught, env)
}

// both has exact handlers and a catch-all.
type both struct {
	*exactOnly
}

func (b *both) OnAnyEvent(env bus.Envelope) {
	b.tr.add(b.ID() + ".any." + env.Name)
	b.caught = append(b.caught, env)
}

// built collects the instances constructors hand out, keyed by id.
type built map[string]service.Service

func newProbe(id string, host service.Host, tr *trace) *probe {
	return &probe{Base: service.NewBase(id, host), tr: tr}
}

func newSubscriber(id string, host service.Host, tr *trace) *subscriber {
	return &subscriber{probe: newProbe(id, host, tr), exact: make(map[string][]bus.Envelope)}
}

// probeCtor registers a probe constructor, letting configure adjust it.
func probeCtor(id string, tr *trace, out built, configure func(*probe)) service.Constructor {
	return func(host service.Host) (service.Service, error) {
		tr.add(id + ".new")
		p := newProbe(id, host, tr)
		if configure != nil {
			configure(p)
		}
		out[id] = p
		return p, nil
	}
}

func startManager(t *testing.T, reg *service.Registry, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithLogger(logger.NewDiscard())}, opts...)
	m := New(reg, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx) }()

	t.Cleanup(func() {
		_, _ = m.Shutdown(context.Background())
		cancel()
		select {
		case err := <-errc:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("owner loop did not stop")
		}
	})
	return m
}

// do runs fn on the owner goroutine and fails the test on error.
func do(t *testing.T, m *Manager, fn func(rt *Runtime)) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Do(ctx, func(rt *Runtime) error {
		fn(rt)
		return nil
	}))
}

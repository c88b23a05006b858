package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/service_orchestrator/internal/engine/events"
	"github.com/R3E-Network/service_orchestrator/internal/engine/service"
	"github.com/R3E-Network/service_orchestrator/internal/engine/state"
)

func TestStartService_NoDependencies(t *testing.T) {
	tr := &trace{}
	out := built{}
	reg := service.NewRegistry()
	require.NoError(t, reg.Register("tokens", service.Descriptor{New: probeCtor("tokens", tr, out, nil)}))
	m := startManager(t, reg)

	first, err := m.GetService(context.Background(), "tokens")
	require.NoError(t, err)
	second, err := m.GetService(context.Background(), "tokens")
	require.NoError(t, err)
	assert.Same(t, first, second, "a running service is returned, not rebuilt")

	do(t, m, func(rt *Runtime) {
		p := out["tokens"].(*probe)
		assert.Equal(t, []state.Status{state.StatusUnstarted, state.StatusPreInit}, p.states)
		assert.Equal(t, state.StatusRunning, p.State())
		assert.Equal(t, []string{"tokens.new", "tokens.preinit", "tokens.init", "tokens.postinit"}, tr.calls)
		assert.True(t, rt.IsRunning("tokens"))
		assert.False(t, rt.IsStarting("tokens"))
	})
}

func TestStartService_DependencyRunningBeforeInit(t *testing.T) {
	tr := &trace{}
	out := built{}
	reg := service.NewRegistry()
	require.NoError(t, reg.Register("sockets", service.Descriptor{
		New:          probeCtor("sockets", tr, out, nil),
		Dependencies: []service.Dependency{service.DependsOn("tokens")},
	}))
	require.NoError(t, reg.Register("tokens", service.Descriptor{New: probeCtor("tokens", tr, out, nil)}))
	m := startManager(t, reg)

	_, err := m.GetService(context.Background(), "sockets")
	require.NoError(t, err)

	do(t, m, func(rt *Runtime) {
		sockets := out["sockets"].(*probe)
		assert.Equal(t, state.StatusRunning, sockets.seenAtInit["tokens"])

		dep, ok := sockets.Dependency("tokens")
		require.True(t, ok)
		assert.Same(t, out["tokens"], dep)

		assert.Equal(t, []string{
			"sockets.new", "sockets.preinit",
			"tokens.new", "tokens.preinit", "tokens.init", "tokens.postinit",
			"sockets.init", "sockets.postinit",
		}, tr.calls)
		assert.Equal(t, []string{"tokens", "sockets"}, rt.Running())
	})
}

func TestStartService_DependencyAlias(t *testing.T) {
	tr := &trace{}
	out := built{}
	reg := service.NewRegistry()
	require.NoError(t, reg.Register("sockets", service.Descriptor{
		New:          probeCtor("sockets", tr, out, nil),
		Dependencies: []service.Dependency{service.DependsOnAs("tokens", "tm")},
	}))
	require.NoError(t, reg.Register("tokens", service.Descriptor{New: probeCtor("tokens", tr, out, nil)}))
	m := startManager(t, reg)

	_, err := m.GetService(context.Background(), "sockets")
	require.NoError(t, err)

	do(t, m, func(rt *Runtime) {
		sockets := out["sockets"].(*probe)
		got, err := service.Lookup[*probe](sockets, "tm")
		require.NoError(t, err)
		assert.Same(t, out["tokens"], got)

		_, ok := sockets.Dependency("tokens")
		assert.False(t, ok, "the dependency is bound under its alias only")
	})
}

func TestGetService_NotFound(t *testing.T) {
	reg := service.NewRegistry()
	require.NoError(t, reg.Register("zeta", service.Descriptor{New: probeCtor("zeta", &trace{}, built{}, nil)}))
	require.NoError(t, reg.Register("alpha", service.Descriptor{New: probeCtor("alpha", &trace{}, built{}, nil)}))
	m := startManager(t, reg)

	_, err := m.GetService(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "alpha, zeta")

	var serr *ServiceError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "ghost", serr.ServiceID)

	do(t, m, func(rt *Runtime) {
		assert.False(t, rt.IsStarting("ghost"))
		assert.Empty(t, rt.Running())
	})
}

func TestStartService_Failures(t *testing.T) {
	hookErr := errors.New("hook failed")

	tests := []struct {
		name      string
		configure func(*probe)
		kind      error
		cause     error
	}{
		{"preinit returns false", func(p *probe) { p.refusePreInit = true }, ErrPreInitFailed, nil},
		{"preinit returns error", func(p *probe) { p.preInitErr = hookErr }, ErrPreInitFailed, hookErr},
		{"init returns error", func(p *probe) { p.initErr = hookErr }, ErrInitFailed, hookErr},
		{"init panics", func(p *probe) { p.initPanic = true }, ErrInitFailed, nil},
		{"init leaves service pre-init", func(p *probe) { p.stayPreInit = true }, ErrState, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := service.NewRegistry()
			require.NoError(t, reg.Register("tokens", service.Descriptor{
				New: probeCtor("tokens", &trace{}, built{}, tt.configure),
			}))
			m := startManager(t, reg)

			_, err := m.GetService(context.Background(), "tokens")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
			if tt.cause != nil {
				assert.True(t, errors.Is(err, tt.cause))
			}

			do(t, m, func(rt *Runtime) {
				assert.False(t, rt.IsRunning("tokens"))
				assert.False(t, rt.IsStarting("tokens"))
			})
		})
	}
}

func TestStartService_InitPanicIsRecorded(t *testing.T) {
	reg := service.NewRegistry()
	require.NoError(t, reg.Register("tokens", service.Descriptor{
		New: probeCtor("tokens", &trace{}, built{}, func(p *probe) { p.initPanic = true }),
	}))
	m := startManager(t, reg)

	_, err := m.GetService(context.Background(), "tokens")
	var perr *PanicError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "init exploded", perr.Value)
}

func TestStartService_ConstructorFails(t *testing.T) {
	boom := errors.New("no socket")
	reg := service.NewRegistry()
	require.NoError(t, reg.Register("sockets", service.Descriptor{
		New: func(service.Host) (service.Service, error) { return nil, boom },
	}))
	require.NoError(t, reg.Register("nil", service.Descriptor{
		New: func(service.Host) (service.Service, error) { return nil, nil },
	}))
	m := startManager(t, reg)

	_, err := m.GetService(context.Background(), "sockets")
	assert.True(t, errors.Is(err, ErrConstructFailed))
	assert.True(t, errors.Is(err, boom))

	_, err = m.GetService(context.Background(), "nil")
	assert.True(t, errors.Is(err, ErrConstructFailed))

	do(t, m, func(rt *Runtime) {
		assert.False(t, rt.IsStarting("sockets"))
		assert.False(t, rt.IsStarting("nil"))
	})
}

func TestStartService_PostInitFailureKeepsServicePublished(t *testing.T) {
	postErr := errors.New("post-init side effect failed")
	out := built{}
	reg := service.NewRegistry()
	require.NoError(t, reg.Register("tokens", service.Descriptor{
		New: probeCtor("tokens", &trace{}, out, func(p *probe) { p.postInitErr = postErr }),
	}))
	m := startManager(t, reg)

	svc, err := m.GetService(context.Background(), "tokens")
	assert.Same(t, postErr, err, "post-init errors are returned unwrapped")
	assert.Same(t, out["tokens"], svc)

	again, err := m.GetService(context.Background(), "tokens")
	require.NoError(t, err)
	assert.Same(t, svc, again)
}

func TestStartService_DependencyFailurePropagates(t *testing.T) {
	tr := &trace{}
	reg := service.NewRegistry()
	require.NoError(t, reg.Register("sockets", service.Descriptor{
		New:          probeCtor("sockets", tr, built{}, nil),
		Dependencies: []service.Dependency{service.DependsOn("tokens")},
	}))
	require.NoError(t, reg.Register("tokens", service.Descriptor{
		New: probeCtor("tokens", tr, built{}, func(p *probe) { p.refusePreInit = true }),
	}))
	m := startManager(t, reg)

	_, err := m.GetService(context.Background(), "sockets")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPreInitFailed))

	var serr *ServiceError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "tokens", serr.ServiceID, "the dependency's error reaches the caller unchanged")

	do(t, m, func(rt *Runtime) {
		for _, id := range []string{"sockets", "tokens"} {
			assert.False(t, rt.IsRunning(id), id)
			assert.False(t, rt.IsStarting(id), id)
		}
		assert.NotContains(t, tr.calls, "sockets.init")
	})
}

func TestStartService_MutualDependencyBindsPartialInstance(t *testing.T) {
	out := built{}
	reg := service.NewRegistry()
	require.NoError(t, reg.Register("a", service.Descriptor{
		New:          probeCtor("a", &trace{}, out, nil),
		Dependencies: []service.Dependency{service.DependsOn("b")},
	}))
	require.NoError(t, reg.Register("b", service.Descriptor{
		New:          probeCtor("b", &trace{}, out, nil),
		Dependencies: []service.Dependency{service.DependsOn("a")},
	}))
	m := startManager(t, reg)

	_, err := m.GetService(context.Background(), "a")
	require.NoError(t, err)

	do(t, m, func(rt *Runtime) {
		b := out["b"].(*probe)
		assert.Equal(t, state.StatusPreInit, b.seenAtInit["a"], "b saw a mid-startup")
		dep, ok := b.Dependency("a")
		require.True(t, ok)
		assert.Same(t, out["a"], dep)
		assert.Equal(t, []string{"b", "a"}, rt.Running())
	})
}

func TestStartService_DiamondSharesInstance(t *testing.T) {
	out := built{}
	reg := service.NewRegistry()
	require.NoError(t, reg.Register("top", service.Descriptor{
		New:          probeCtor("top", &trace{}, out, nil),
		Dependencies: []service.Dependency{service.DependsOn("left"), service.DependsOn("right")},
	}))
	for _, id := range []string{"left", "right"} {
		require.NoError(t, reg.Register(id, service.Descriptor{
			New:          probeCtor(id, &trace{}, out, nil),
			Dependencies: []service.Dependency{service.DependsOn("base")},
		}))
	}
	require.NoError(t, reg.Register("base", service.Descriptor{New: probeCtor("base", &trace{}, out, nil)}))
	m := startManager(t, reg)

	_, err := m.GetService(context.Background(), "top")
	require.NoError(t, err)

	do(t, m, func(rt *Runtime) {
		l, _ := out["left"].(*probe).Dependency("base")
		r, _ := out["right"].(*probe).Dependency("base")
		assert.Same(t, l, r)
		assert.Equal(t, []string{"base", "left", "right", "top"}, rt.Running())
	})
}

func TestRegister_ReplacesConstructor(t *testing.T) {
	tr := &trace{}
	reg := service.NewRegistry()
	require.NoError(t, reg.Register("tokens", service.Descriptor{New: probeCtor("old", tr, built{}, nil)}))
	m := startManager(t, reg)

	require.NoError(t, m.Register(context.Background(), "tokens", service.Descriptor{New: probeCtor("new", tr, built{}, nil)}))
	_, err := m.GetService(context.Background(), "tokens")
	require.NoError(t, err)

	do(t, m, func(rt *Runtime) {
		assert.Contains(t, tr.calls, "new.new")
		assert.NotContains(t, tr.calls, "old.new")
	})
}

func TestServicesLoaded(t *testing.T) {
	tr := &trace{}
	reg := service.NewRegistry()
	require.NoError(t, reg.Register("lazy", service.Descriptor{New: probeCtor("lazy", tr, built{}, nil)}))
	require.NoError(t, reg.Register("broken", service.Descriptor{
		New:       probeCtor("broken", tr, built{}, func(p *probe) { p.initErr = errors.New("no") }),
		AutoStart: true,
	}))
	require.NoError(t, reg.Register("eager", service.Descriptor{New: probeCtor("eager", tr, built{}, nil), AutoStart: true}))
	journal := events.NewRingBuffer(32)
	m := startManager(t, reg, WithJournal(journal))

	err := m.ServicesLoaded(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInitFailed))

	do(t, m, func(rt *Runtime) {
		assert.True(t, rt.IsRunning("eager"), "a failure does not stop later auto-starts")
		assert.False(t, rt.IsRunning("lazy"))
	})
	assert.Len(t, journal.RecentByType(events.EventServicesLoaded, 10), 1)
	assert.Len(t, journal.RecentByService("broken", 10), 3, "starting, preinit and start_failed")
}

func TestStartService_AlreadyRunning(t *testing.T) {
	reg := service.NewRegistry()
	require.NoError(t, reg.Register("tokens", service.Descriptor{New: probeCtor("tokens", &trace{}, built{}, nil)}))
	m := startManager(t, reg)

	_, err := m.GetService(context.Background(), "tokens")
	require.NoError(t, err)

	err = m.Do(context.Background(), func(rt *Runtime) error {
		_, err := rt.StartService("tokens")
		return err
	})
	assert.True(t, errors.Is(err, ErrState))
}

func TestGetService_FromConstructorOfItself(t *testing.T) {
	reg := service.NewRegistry()
	require.NoError(t, reg.Register("loop", service.Descriptor{
		New: func(host service.Host) (service.Service, error) {
			if _, err := host.GetService("loop"); err != nil {
				return nil, err
			}
			return newProbe("loop", host, &trace{}), nil
		},
	}))
	m := startManager(t, reg)

	_, err := m.GetService(context.Background(), "loop")
	assert.True(t, errors.Is(err, ErrConstructFailed))
	assert.True(t, errors.Is(err, ErrState))
}

func TestStatuses(t *testing.T) {
	reg := service.NewRegistry()
	require.NoError(t, reg.Register("sockets", service.Descriptor{
		New:          probeCtor("sockets", &trace{}, built{}, nil),
		Dependencies: []service.Dependency{service.DependsOnAs("tokens", "tm")},
		Events:       []string{"token.moved"},
		AutoStart:    true,
	}))
	require.NoError(t, reg.Register("tokens", service.Descriptor{New: probeCtor("tokens", &trace{}, built{}, nil)}))
	require.NoError(t, reg.Register("idle", service.Descriptor{New: probeCtor("idle", &trace{}, built{}, nil)}))
	m := startManager(t, reg)

	require.NoError(t, m.ServicesLoaded(context.Background()))
	got, err := m.Statuses(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, ServiceStatus{
		ID: "sockets", Status: state.StatusRunning, AutoStart: true,
		Dependencies: []string{"tokens"}, Events: []string{"token.moved"},
	}, got[0])
	assert.Equal(t, state.StatusRunning, got[1].Status)
	assert.Equal(t, state.StatusUnstarted, got[2].Status)
}

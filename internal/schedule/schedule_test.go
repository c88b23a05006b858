package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/service_orchestrator/internal/config"
	"github.com/R3E-Network/service_orchestrator/internal/engine/bus"
	"github.com/R3E-Network/service_orchestrator/internal/engine/manager"
	"github.com/R3E-Network/service_orchestrator/internal/engine/service"
	"github.com/R3E-Network/service_orchestrator/pkg/logger"
)

type recordingTarget struct {
	mu    sync.Mutex
	calls []bus.Envelope
	err   error
}

func (r *recordingTarget) Scatter(_ context.Context, name string, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, bus.NewEnvelope(name, args...))
	return r.err
}

func (r *recordingTarget) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestScheduler_AddValidation(t *testing.T) {
	s := New(&recordingTarget{}, logger.NewDiscard())

	require.NoError(t, s.Add(config.ScheduledScatter{Name: "sync", Spec: "@hourly", Event: "tokens.sync"}))
	assert.True(t, errors.Is(s.Add(config.ScheduledScatter{Name: "sync", Spec: "@daily", Event: "x"}), ErrDuplicateJob))
	assert.Error(t, s.Add(config.ScheduledScatter{Name: "bad", Spec: "not a spec", Event: "x"}))

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "sync", jobs[0].Name)
}

func TestScheduler_FirePassesArgs(t *testing.T) {
	target := &recordingTarget{}
	s := New(target, logger.NewDiscard())
	require.NoError(t, s.AddAll([]config.ScheduledScatter{
		{Name: "sync", Spec: "@hourly", Event: "tokens.sync", Args: []string{"full", "eu"}},
	}))

	require.NoError(t, s.Fire("sync"))
	require.Equal(t, 1, target.count())

	env := target.calls[0]
	assert.Equal(t, "tokens.sync", env.Name)
	assert.Equal(t, []any{"full", "eu"}, env.Args)
	assert.EqualValues(t, 1, s.Jobs()[0].Fired)

	assert.True(t, errors.Is(s.Fire("missing"), ErrUnknownJob))
}

func TestScheduler_FailuresAreCounted(t *testing.T) {
	target := &recordingTarget{err: manager.ErrStopped}
	s := New(target, logger.NewDiscard())
	require.NoError(t, s.Add(config.ScheduledScatter{Name: "sync", Spec: "@hourly", Event: "tokens.sync"}))

	assert.True(t, errors.Is(s.Fire("sync"), manager.ErrStopped))
	st := s.Jobs()[0]
	assert.EqualValues(t, 1, st.Failed)
	assert.Contains(t, st.LastError, "stopped")
}

func TestScheduler_Remove(t *testing.T) {
	s := New(&recordingTarget{}, logger.NewDiscard())
	require.NoError(t, s.Add(config.ScheduledScatter{Name: "sync", Spec: "@hourly", Event: "x"}))
	require.NoError(t, s.Remove("sync"))
	assert.Empty(t, s.Jobs())
	assert.True(t, errors.Is(s.Remove("sync"), ErrUnknownJob))
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	target := &recordingTarget{}
	s := New(target, logger.NewDiscard(), WithSeconds())
	require.NoError(t, s.Add(config.ScheduledScatter{Name: "fast", Spec: "* * * * * *", Event: "tick"}))

	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, s.Stop(ctx))
	}()

	require.Eventually(t, func() bool { return target.count() >= 1 }, 3*time.Second, 20*time.Millisecond)
	assert.False(t, s.Jobs()[0].Next.IsZero())
}

// audit records every event it receives.
type audit struct {
	*service.Base
	seen []string
}

func (a *audit) OnAnyEvent(env bus.Envelope) { a.seen = append(a.seen, env.Name) }

func TestScheduler_ScattersIntoManager(t *testing.T) {
	reg := service.NewRegistry()
	require.NoError(t, reg.Register("audit", service.Descriptor{
		New: func(host service.Host) (service.Service, error) {
			return &audit{Base: service.NewBase("audit", host)}, nil
		},
		Events: []string{service.AllEvents},
	}))
	m := manager.New(reg, manager.WithLogger(logger.NewDiscard()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	s := New(m, logger.NewDiscard(), WithTimeout(time.Second))
	require.NoError(t, s.Add(config.ScheduledScatter{Name: "sync", Spec: "@hourly", Event: "tokens.sync"}))
	require.NoError(t, s.Fire("sync"))

	var seen []string
	require.NoError(t, m.Do(ctx, func(rt *manager.Runtime) error {
		svc, err := rt.GetService("audit")
		if err != nil {
			return err
		}
		seen = append(seen, svc.(*audit).seen...)
		return nil
	}))
	assert.Equal(t, []string{"tokens.sync"}, seen)

	_, err := m.Shutdown(ctx)
	require.NoError(t, err)
	assert.True(t, errors.Is(s.Fire("sync"), manager.ErrStopped))
}

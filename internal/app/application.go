package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/R3E-Network/service_orchestrator/internal/admin"
	"github.com/R3E-Network/service_orchestrator/internal/app/builtin"
	"github.com/R3E-Network/service_orchestrator/internal/config"
	"github.com/R3E-Network/service_orchestrator/internal/engine/events"
	"github.com/R3E-Network/service_orchestrator/internal/engine/manager"
	"github.com/R3E-Network/service_orchestrator/internal/engine/metrics"
	"github.com/R3E-Network/service_orchestrator/internal/engine/service"
	"github.com/R3E-Network/service_orchestrator/internal/middleware"
	"github.com/R3E-Network/service_orchestrator/internal/schedule"
	"github.com/R3E-Network/service_orchestrator/pkg/clock"
	"github.com/R3E-Network/service_orchestrator/pkg/logger"
)

// Application ties the orchestrator, its scheduler, and the admin surface
// together and manages their lifecycle.
type Application struct {
	cfg *config.Config
	log *logger.Logger

	Discovery service.DiscoveryResult
	Manager   *manager.Manager
	Journal   *events.RingBuffer
	Metrics   *metrics.Collector
	Scheduler *schedule.Scheduler
	Admin     *admin.Server

	limiter  *middleware.RateLimiter
	stopGC   chan struct{}

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
	loopErr  chan error
	stopOnce sync.Once
	report   manager.ShutdownReport
	stopErr  error
}

// Option configures an Application.
type Option func(*options)

type options struct {
	clock   clock.Clock
	modules []service.Module
	skipStd bool
}

// WithClock replaces the wall clock used by the owner loop and built-ins.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithModules adds discovery modules after the built-in ones.
func WithModules(modules ...service.Module) Option {
	return func(o *options) { o.modules = append(o.modules, modules...) }
}

// WithoutBuiltins skips the built-in event log and heartbeat.
func WithoutBuiltins() Option {
	return func(o *options) { o.skipStd = true }
}

// New builds a fully wired application from cfg.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = logger.New(cfg.Logging)
	}
	o := options{clock: clock.Real()}
	for _, opt := range opts {
		opt(&o)
	}

	reg := service.NewRegistry()
	reg.Disable(cfg.Services.Disabled...)

	modules := o.modules
	if !o.skipStd {
		modules = append(builtin.Modules(cfg.Services, o.clock), modules...)
	}
	discovery := service.Discover(reg, log.Named("discovery"), modules...)
	if skipped := reg.Skipped(); len(skipped) > 0 {
		log.Entry().WithField("services", skipped).Info("services disabled by config")
	}

	journal := events.NewRingBuffer(cfg.Orchestrator.JournalSize, events.WithClock(o.clock))
	collector := metrics.NewCollector(cfg.Orchestrator.MetricsNamespace)

	mgr := manager.New(reg,
		manager.WithLogger(log.Named("orchestrator")),
		manager.WithClock(o.clock),
		manager.WithJournal(journal),
		manager.WithMetrics(collector),
		manager.WithTickInterval(cfg.Orchestrator.TickInterval),
	)

	sched := schedule.New(mgr, log.Named("schedule"), schedule.WithTimeout(cfg.Orchestrator.ShutdownTimeout))
	if err := sched.AddAll(cfg.Schedule); err != nil {
		return nil, err
	}

	a := &Application{
		cfg:       cfg,
		log:       log,
		Discovery: discovery,
		Manager:   mgr,
		Journal:   journal,
		Metrics:   collector,
		Scheduler: sched,
		stopGC:    make(chan struct{}),
		ready:     make(chan struct{}),
		loopErr:   make(chan error, 1),
	}
	if cfg.Admin.Enabled {
		adminLog := log.Named("admin")
		adminOpts := []admin.Option{
			admin.WithJournal(journal),
			admin.WithJobs(sched),
			admin.WithGatherer(collector.Registry()),
			admin.WithRequestMetrics(middleware.NewHTTPMetrics(collector.Registry(), cfg.Orchestrator.MetricsNamespace)),
			admin.WithCORS(cfg.Admin.AllowedOrigins),
			admin.WithLogger(adminLog),
		}
		if cfg.Admin.ScatterRate > 0 {
			a.limiter = middleware.NewRateLimiter(cfg.Admin.ScatterRate, cfg.Admin.ScatterBurst, 10*time.Minute, adminLog)
			adminOpts = append(adminOpts, admin.WithScatterLimit(a.limiter))
		}
		a.Admin = admin.NewServer(cfg.Admin.Addr, mgr, adminOpts...)
	}
	return a, nil
}

// Start runs the owner loop, starts the auto-start services, then the
// scheduler and the admin listener. A failing auto-start service is logged
// and does not fail Start.
func (a *Application) Start(ctx context.Context) error {
	if a.Admin != nil {
		l, err := net.Listen("tcp", a.cfg.Admin.Addr)
		if err != nil {
			return fmt.Errorf("admin listen: %w", err)
		}
		a.mu.Lock()
		a.listener = l
		a.mu.Unlock()
	}

	go func() { a.loopErr <- a.Manager.Run(context.Background()) }()

	if err := a.Manager.ServicesLoaded(ctx); err != nil {
		if errors.Is(err, manager.ErrStopped) || ctx.Err() != nil {
			return err
		}
		a.log.Entry().WithError(err).Warn("some services failed to start")
	}

	a.Scheduler.Start()

	if a.limiter != nil {
		a.limiter.StartCleanup(time.Minute, a.stopGC)
	}
	if a.Admin != nil {
		go func() {
			if err := a.Admin.Serve(a.listener); err != nil {
				a.log.Entry().WithError(err).Error("admin server stopped")
			}
		}()
	}
	close(a.ready)
	a.log.Entry().Info("application started")
	return nil
}

// Ready is closed once Start has finished.
func (a *Application) Ready() <-chan struct{} {
	return a.ready
}

// AdminAddr returns the bound admin address, or "" when the admin surface is
// disabled or not yet listening.
func (a *Application) AdminAddr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Run starts the application and blocks until ctx ends or the orchestrator
// stops on its own, then stops everything within the configured timeout.
func (a *Application) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-a.Manager.Done():
		a.log.Entry().Info("orchestrator stopped")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Orchestrator.ShutdownTimeout)
	defer cancel()
	report, err := a.Stop(stopCtx)
	if err != nil {
		return err
	}
	if len(report.Failed) > 0 {
		a.log.Entry().WithField("failed", len(report.Failed)).Warn("shutdown hooks failed")
	}
	return nil
}

// Stop stops the scheduler and the admin server, then shuts the
// orchestrator down and waits for the owner loop to exit. Only the first
// call does anything; later calls return the same result.
func (a *Application) Stop(ctx context.Context) (manager.ShutdownReport, error) {
	a.stopOnce.Do(func() {
		a.report, a.stopErr = a.stop(ctx)
	})
	return a.report, a.stopErr
}

func (a *Application) stop(ctx context.Context) (manager.ShutdownReport, error) {
	var errs []error
	close(a.stopGC)
	if err := a.Scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if a.Admin != nil && a.AdminAddr() != "" {
		if err := a.Admin.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin: %w", err))
		}
	}

	report, err := a.Manager.Shutdown(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("orchestrator: %w", err))
	}

	select {
	case err := <-a.loopErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("owner loop: %w", err))
		}
	case <-a.Manager.Done():
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("owner loop: %w", ctx.Err()))
	}

	a.log.Entry().
		WithField("stopped", len(report.Stopped)).
		WithField("drained", report.Drained).
		WithField("dropped", report.Dropped).
		Info("application stopped")
	return report, errors.Join(errs...)
}

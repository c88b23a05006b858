// Package schedule runs cron jobs that scatter events into the orchestrator.
// Jobs run on cron's goroutines and reach the owner loop only through the
// hand-off, like any other producer.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/service_orchestrator/internal/config"
	"github.com/R3E-Network/service_orchestrator/pkg/logger"
)

// Common errors
var (
	ErrDuplicateJob = errors.New("duplicate job")
	ErrUnknownJob   = errors.New("unknown job")
)

// Scatterer hands an event to the orchestrator. *manager.Manager implements it.
type Scatterer interface {
	Scatter(ctx context.Context, name string, args ...any) error
}

// Scheduler owns a cron instance and the jobs registered on it.
type Scheduler struct {
	cron    *cron.Cron
	target  Scatterer
	log     *logger.Logger
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]*job
}

type job struct {
	cfg     config.ScheduledScatter
	entry   cron.EntryID
	fired   int64
	failed  int64
	lastErr error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTimeout bounds how long one job waits for the owner to accept its event.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSeconds accepts six-field specs with a leading seconds field.
func WithSeconds() Option {
	return func(s *Scheduler) {
		s.cron = cron.New(cron.WithSeconds(), cron.WithLogger(cronLogger{s.log}))
	}
}

// New creates a stopped scheduler that scatters into target.
func New(target Scatterer, log *logger.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = logger.NewDefault("schedule")
	}
	s := &Scheduler{
		target:  target,
		log:     log,
		timeout: 5 * time.Second,
		jobs:    make(map[string]*job),
	}
	s.cron = cron.New(cron.WithLogger(cronLogger{log}))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers one job. Jobs may be added before or after Start.
func (s *Scheduler) Add(cfg config.ScheduledScatter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[cfg.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, cfg.Name)
	}
	j := &job{cfg: cfg}
	id, err := s.cron.AddFunc(cfg.Spec, func() { s.run(j) })
	if err != nil {
		return fmt.Errorf("schedule %s: invalid spec %q: %w", cfg.Name, cfg.Spec, err)
	}
	j.entry = id
	s.jobs[cfg.Name] = j
	return nil
}

// AddAll registers every job, stopping at the first error.
func (s *Scheduler) AddAll(jobs []config.ScheduledScatter) error {
	for _, cfg := range jobs {
		if err := s.Add(cfg); err != nil {
			return err
		}
	}
	return nil
}

// Remove unregisters a job.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	s.cron.Remove(j.entry)
	delete(s.jobs, name)
	return nil
}

// Fire runs a job now, outside its schedule, and returns the scatter error.
func (s *Scheduler) Fire(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(j)
}

// Start starts the cron goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Entry().WithField("jobs", len(s.Jobs())).Info("scheduler started")
}

// Stop stops scheduling and waits for running jobs until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(j *job) error {
	args := make([]any, len(j.cfg.Args))
	for i, a := range j.cfg.Args {
		args[i] = a
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	err := s.target.Scatter(ctx, j.cfg.Event, args...)

	s.mu.Lock()
	j.fired++
	if err != nil {
		j.failed++
		j.lastErr = err
	}
	s.mu.Unlock()

	entry := s.log.Entry().WithFields(logrus.Fields{"job": j.cfg.Name, "event": j.cfg.Event})
	if err != nil {
		entry.WithError(err).Warn("scheduled scatter failed")
		return err
	}
	entry.Debug("scheduled scatter handed off")
	return nil
}

// JobStatus describes one job.
type JobStatus struct {
	Name      string    `json:"name"`
	Spec      string    `json:"spec"`
	Event     string    `json:"event"`
	Next      time.Time `json:"next,omitempty"`
	Prev      time.Time `json:"prev,omitempty"`
	Fired     int64     `json:"fired"`
	Failed    int64     `json:"failed"`
	LastError string    `json:"last_error,omitempty"`
}

// Jobs returns every job sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for name, j := range s.jobs {
		e := s.cron.Entry(j.entry)
		st := JobStatus{
			Name:   name,
			Spec:   j.cfg.Spec,
			Event:  j.cfg.Event,
			Next:   e.Next,
			Prev:   e.Prev,
			Fired:  j.fired,
			Failed: j.failed,
		}
		if j.lastErr != nil {
			st.LastError = j.lastErr.Error()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// cronLogger routes cron's own logging into logrus.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Entry().WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Entry().WithFields(fields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func fields(kv []interface{}) logrus.Fields {
	out := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return out
}

// Package admin serves the orchestrator's HTTP admin surface: service
// statuses, event injection, the journal, scheduled jobs, and Prometheus
// metrics.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/service_orchestrator/internal/engine/bus"
	"github.com/R3E-Network/service_orchestrator/internal/engine/events"
	"github.com/R3E-Network/service_orchestrator/internal/engine/manager"
	"github.com/R3E-Network/service_orchestrator/internal/httputil"
	"github.com/R3E-Network/service_orchestrator/internal/middleware"
	"github.com/R3E-Network/service_orchestrator/internal/schedule"
	"github.com/R3E-Network/service_orchestrator/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Orchestrator is the part of *manager.Manager the admin surface uses.
type Orchestrator interface {
	Statuses(ctx context.Context) ([]manager.ServiceStatus, error)
	ScatterEnvelope(ctx context.Context, env bus.Envelope) error
	HandoffStats() bus.HandoffStats
	Done() <-chan struct{}
}

// JobLister reports scheduled jobs. *schedule.Scheduler implements it.
type JobLister interface {
	Jobs() []schedule.JobStatus
}

// Option configures a Server.
type Option func(*Server)

// WithJournal exposes j under /journal.
func WithJournal(j events.Journal) Option {
	return func(s *Server) { s.journal = j }
}

// WithJobs exposes jobs under /jobs.
func WithJobs(jobs JobLister) Option {
	return func(s *Server) { s.jobs = jobs }
}

// WithGatherer exposes g under /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithCORS answers cross-origin requests from origins.
func WithCORS(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.cors = middleware.NewCORS(origins)
		}
	}
}

// WithScatterLimit rate limits POST /events per client.
func WithScatterLimit(rl *middleware.RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithRequestMetrics records every request in m.
func WithRequestMetrics(m *middleware.HTTPMetrics) Option {
	return func(s *Server) { s.reqMetrics = m }
}

// WithLogger sets the request logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// Server is the admin HTTP server.
type Server struct {
	orch     Orchestrator
	journal  events.Journal
	jobs     JobLister
	gatherer prometheus.Gatherer
	log      *logger.Logger

	cors       *middleware.CORS
	limiter    *middleware.RateLimiter
	reqMetrics *middleware.HTTPMetrics

	router *mux.Router
	http   *http.Server
}

// NewServer creates a server for orch listening on addr.
func NewServer(addr string, orch Orchestrator, opts ...Option) *Server {
	s := &Server{
		orch:    orch,
		journal: events.NoOpJournal{},
		log:     logger.NewDefault("admin"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router = mux.NewRouter()
	s.router.Use(s.loggingMiddleware)
	if s.reqMetrics != nil {
		s.router.Use(s.reqMetrics.Middleware())
	}
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/services", s.handleListServices).Methods(http.MethodGet)
	s.router.HandleFunc("/services/{id}", s.handleGetService).Methods(http.MethodGet)
	var scatter http.Handler = http.HandlerFunc(s.handleScatter)
	if s.limiter != nil {
		scatter = s.limiter.Handler(scatter)
	}
	s.router.Handle("/events/{name}", scatter).Methods(http.MethodPost)
	s.router.HandleFunc("/journal", s.handleJournal).Methods(http.MethodGet)
	s.router.HandleFunc("/handoff", s.handleHandoff).Methods(http.MethodGet)
	s.router.HandleFunc("/jobs", s.handleJobs).Methods(http.MethodGet)
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	var handler http.Handler = s.router
	if s.cors != nil {
		handler = s.cors.Handler(handler)
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.log.Entry().WithField("addr", l.Addr().String()).Info("admin server listening")
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.orch.Done():
		httputil.ServiceUnavailable(w, "orchestrator stopped")
	default:
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.orch.Statuses(r.Context())
	if err != nil {
		s.writeOrchestratorError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	statuses, err := s.orch.Statuses(r.Context())
	if err != nil {
		s.writeOrchestratorError(w, err)
		return
	}
	for _, st := range statuses {
		if st.ID == id {
			httputil.WriteJSON(w, http.StatusOK, st)
			return
		}
	}
	httputil.NotFound(w, "service not found: "+id)
}

// ScatterRequest is the optional body of POST /events/{name}.
type ScatterRequest struct {
	Args   []any          `json:"args,omitempty"`
	Kwargs map[string]any `json:"kwargs,omitempty"`
}

// ScatterResponse acknowledges a hand-off.
type ScatterResponse struct {
	Event   string `json:"event"`
	TraceID string `json:"trace_id"`
}

func (s *Server) handleScatter(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req ScatterRequest
	if err := httputil.DecodeJSON(r, &req, maxBodyBytes); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	env := bus.NewEnvelope(name, req.Args...)
	for k, v := range req.Kwargs {
		env = env.With(k, v)
	}
	if err := s.orch.ScatterEnvelope(r.Context(), env); err != nil {
		s.writeOrchestratorError(w, err)
		return
	}
	s.journal.LogWithContext(events.WithTraceID(r.Context(), traceID(r)), events.NewEvent(events.EventAdminScatter).
		Component("admin").
		Metadata("event", name).
		Metadata("remote", r.RemoteAddr).
		Build())
	httputil.WriteJSON(w, http.StatusAccepted, ScatterResponse{
		Event:   name,
		TraceID: traceID(r),
	})
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var out []events.Event
	switch {
	case q.Get("service") != "":
		out = s.journal.RecentByService(q.Get("service"), limit)
	case q.Get("type") != "":
		out = s.journal.RecentByType(events.EventType(q.Get("type")), limit)
	default:
		out = s.journal.Recent(limit)
	}
	if out == nil {
		out = []events.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleHandoff(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.orch.HandoffStats())
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		httputil.WriteJSON(w, http.StatusOK, []schedule.JobStatus{})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.jobs.Jobs())
}

func (s *Server) writeOrchestratorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, manager.ErrStopped):
		httputil.ServiceUnavailable(w, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httputil.WriteError(w, http.StatusGatewayTimeout, err.Error())
	default:
		httputil.InternalError(w, err.Error())
	}
}

type traceKey struct{}

func traceID(r *http.Request) string {
	id, _ := r.Context().Value(traceKey{}).(string)
	return id
}

// loggingMiddleware tags every request with a trace ID and logs it.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(httputil.TraceHeader)
		if id == "" {
			id = uuid.NewString()
		}
		r = r.WithContext(context.WithValue(r.Context(), traceKey{}, id))
		w.Header().Set(httputil.TraceHeader, id)

		wrapped := middleware.NewResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		s.log.Entry().
			WithField("trace_id", id).
			WithField("method", r.Method).
			WithField("path", middleware.RouteTemplate(r)).
			WithField("status", wrapped.Status()).
			WithField("duration", time.Since(start)).
			Debug("admin request")
	})
}

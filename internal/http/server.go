package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"sxledger/internal/formula"
	"sxledger/internal/log"
	"sxledger/internal/middleware/ratelimit"
	"sxledger/internal/middleware/security"
	"sxledger/internal/middleware/trace"
	"sxledger/internal/services"
	"sxledger/internal/sx"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the API.
type Deps struct {
	Session   *services.Session
	Evaluator sx.Evaluator
	Ready     Pinger
	Logger    *log.Logger
	// Now defaults to time.Now; it drives calendar and cashflow windows.
	Now func() time.Time
	// RequestsPerMinute limits mutating calls per client; 0 uses the
	// limiter default.
	RequestsPerMinute int
}

type Server struct {
	http.Server
	session *services.Session
	eval    sx.Evaluator
	ready   Pinger
	now     func() time.Time

	tracer      *trace.Middleware
	rateLimiter *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		session: deps.Session,
		eval:    deps.Evaluator,
		ready:   deps.Ready,
		now:     deps.Now,
		tracer:  trace.NewMiddleware(),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: deps.RequestsPerMinute,
		}),
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.eval == nil {
		s.eval = formula.NewEvaluator()
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/instances", s.handleListInstances)
	mux.HandleFunc("GET /api/instances/{id}", s.handleGetInstance)
	mux.HandleFunc("POST /api/instances/{id}/state", s.handleSetState)
	mux.HandleFunc("POST /api/instances/{id}/variables", s.handleSetVariable)
	mux.HandleFunc("GET /api/variables/needed", s.handleNeeded)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("POST /api/effect", s.handleEffect)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)

	mux.HandleFunc("GET /api/schedules", s.handleListSchedules)
	mux.HandleFunc("POST /api/schedules", s.handleCreateSchedule)
	mux.HandleFunc("GET /api/schedules/{id}", s.handleGetSchedule)
	mux.HandleFunc("PUT /api/schedules/{id}", s.handleUpdateSchedule)
	mux.HandleFunc("DELETE /api/schedules/{id}", s.handleDeleteSchedule)

	mux.HandleFunc("GET /api/cashflow", s.handleCashflow)
	mux.HandleFunc("GET /calendar.ics", s.handleCalendar)

	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	detector := security.NewDetector()

	var h http.Handler = mux
	h = s.rateLimiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		NewJSONResponse().Status(http.StatusTooManyRequests).Write(w, errorBody{Error: "rate limit exceeded"})
	})(h)
	h = detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = log.Middleware(logger, trace.RequestID)(h)
	h = s.tracer.Middleware(h)
	s.Handler = h

	return s
}

// Shutdown stops the limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Metrics exposes request counters.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

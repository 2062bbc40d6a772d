package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"finanzas/internal/backup"
	applog "finanzas/internal/log"
	"finanzas/internal/middleware/ratelimit"
	"finanzas/internal/middleware/security"
	"finanzas/internal/middleware/trace"
	"finanzas/internal/services"
)

type Server struct {
	http.Server
	svc     *services.LedgerService
	codec   *backup.Codec
	tracer  *trace.Middleware
	limiter *ratelimit.Limiter
	logger  *applog.Logger
	now     func() time.Time

	shutdownOnce sync.Once
}

type ServerOption func(*Server)

// WithRateLimiter limits write requests per client.
func WithRateLimiter(rl *ratelimit.Limiter) ServerOption {
	return func(s *Server) { s.limiter = rl }
}

// NewServer wires the JSON routes onto a mux behind request tracing,
// security headers and the optional rate limiter.
func NewServer(addr string, svc *services.LedgerService, codec *backup.Codec, logger *applog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = applog.FromContext(context.Background())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		svc:    svc,
		codec:  codec,
		tracer: trace.NewMiddleware(logger, clientIP),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /accounts", s.handleListAccounts)
	mux.HandleFunc("POST /accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /contacts", s.handleListContacts)
	mux.HandleFunc("POST /contacts", s.handleCreateContact)
	mux.HandleFunc("GET /transactions", s.handleListTransactions)
	mux.HandleFunc("POST /transactions", s.handleCreateTransaction)

	mux.HandleFunc("GET /loans", s.handleListLoans)
	mux.HandleFunc("POST /loans", s.handleCreateLoan)
	mux.HandleFunc("GET /loans/{id}", s.handleGetLoan)
	mux.HandleFunc("GET /loans/{id}/history", s.handleLoanHistory)
	mux.HandleFunc("POST /loans/{id}/payments", s.handleRegisterPayment)

	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /stats/overdue", s.handleOverdue)
	mux.HandleFunc("GET /settings", s.handleGetSettings)
	mux.HandleFunc("PUT /settings", s.handleUpdateSettings)

	mux.HandleFunc("GET /backup", s.handleExport)
	mux.HandleFunc("GET /backup.xlsx", s.handleExportReport)
	mux.HandleFunc("POST /backup", s.handleImport)
	mux.HandleFunc("DELETE /data", s.handleClear)

	var handler http.Handler = mux
	if s.limiter != nil {
		handler = s.limiter.Middleware(clientIP, rateLimited,
			http.MethodPost, http.MethodPut, http.MethodDelete)(handler)
	}
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.tracer.Middleware(handler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Metrics returns the request counters kept by the tracer.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func rateLimited(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
}

// clientIP prefers proxy headers over the socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

// handleReady reports ready once the store answers a read.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.Settings(r.Context()); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
		ErrorResponse(http.StatusServiceUnavailable, "store unavailable").Write(w)
		return
	}
	NewResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}

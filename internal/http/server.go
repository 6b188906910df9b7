// Package http exposes the dashboard and account list state, their commands
// and the navigation queue as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"expensemanager/internal/accountlist"
	"expensemanager/internal/cache"
	"expensemanager/internal/core"
	"expensemanager/internal/dashboard"
	applog "expensemanager/internal/log"
	"expensemanager/internal/navigation"
	"expensemanager/internal/stream"
)

// DashboardView is the dashboard state holder seen by the API.
type DashboardView interface {
	Snapshot() dashboard.Snapshot
	Dispatch(command, id string) bool
}

// AccountListView is the account list state holder seen by the API.
type AccountListView interface {
	State() stream.Observable[accountlist.UiState]
	Dispatch(command, id string) bool
}

// CurrencySetter persists the display currency.
type CurrencySetter interface {
	SetCurrency(ctx context.Context, code string) (core.Currency, error)
}

// TransactionRecorder writes transactions and keeps balances in step.
type TransactionRecorder interface {
	Record(ctx context.Context, t core.Transaction) (core.Transaction, error)
	Delete(ctx context.Context, id string) error
}

// NavigationDrainer hands out pending navigation requests.
type NavigationDrainer interface {
	Drain() []navigation.Destination
}

// Deps are the collaborators of the API. CacheStats may be nil.
type Deps struct {
	Dashboard   DashboardView
	AccountList AccountListView
	Currency    CurrencySetter
	Recorder    TransactionRecorder
	Navigation  NavigationDrainer
	CacheStats  func() cache.Stats
	Logger      *applog.Logger

	RateLimitRPS   float64
	RateLimitBurst int
}

type Server struct {
	http.Server
	deps    Deps
	logger  *applog.Logger
	limiter *rateLimiter
	metrics *securityMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.Default(applog.ComponentHTTP)
	}

	s := &Server{
		deps:    deps,
		logger:  deps.Logger,
		limiter: newRateLimiter(deps.RateLimitRPS, deps.RateLimitBurst),
		metrics: &securityMetrics{},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(forwardedClient)
	r.Use(applog.Middleware(s.logger, func(r *http.Request) string { return middleware.GetReqID(r.Context()) }))
	r.Use(applog.AccessLog)
	r.Use(securityHeaders)

	// set before Route so the /api subrouter inherits them
	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleMethodNotAllowed)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimit)

		r.Get("/dashboard", s.handleDashboard)
		r.Post("/dashboard/commands/{command}", s.handleDashboardCommand)

		r.Get("/accounts", s.handleAccounts)
		r.Post("/accounts/commands/{command}", s.handleAccountCommand)

		r.Put("/settings/currency", s.handleSetCurrency)

		r.Post("/transactions", s.handleCreateTransaction)
		r.Delete("/transactions/{id}", s.handleDeleteTransaction)

		r.Get("/navigation", s.handleNavigation)
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and the limiter cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Run serves until ctx is done, then shuts down within timeout.
func (s *Server) Run(ctx context.Context, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "HTTP server listening", "addr", s.Addr)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			s.limiter.stop()
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("Shutting down HTTP server", applog.FieldOperation, applog.OpShutdown)
	return s.Shutdown(shutdownCtx)
}

type healthResponse struct {
	Status           string       `json:"status"`
	RateLimitHits    int64        `json:"rateLimitHits"`
	UnroutedRequests int64        `json:"unroutedRequests"`
	ActiveClients    int          `json:"activeClients"`
	FormatCache      *cache.Stats `json:"formatCache,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:           "ok",
		RateLimitHits:    atomic.LoadInt64(&s.metrics.rateLimitHits),
		UnroutedRequests: atomic.LoadInt64(&s.metrics.unroutedRequests),
		ActiveClients:    s.limiter.activeClients(),
	}
	if s.deps.CacheStats != nil {
		stats := s.deps.CacheStats()
		resp.FormatCache = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"arbvault/core"
	"arbvault/observability/audit"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress   string
	ShutdownTimeout time.Duration
	RateLimit       RateLimit
}

// EventSource lists committed events.
type EventSource interface {
	List(ctx context.Context, filter audit.Filter) ([]audit.Record, error)
}

// Server exposes the node over JSON/HTTP.
type Server struct {
	cfg     Config
	node    *core.Node
	events  EventSource
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
}

// New constructs a new HTTP server. events may be nil, in which case the
// events endpoint reports an empty list.
func New(cfg Config, node *core.Node, events EventSource, auth *Authenticator, logger *slog.Logger) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("node required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":7080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	limiter, err := NewRateLimiter(cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:     cfg,
		node:    node,
		events:  events,
		auth:    auth,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Handler builds the routing tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.limiter.Middleware)

		v1.Get("/router", s.handleRouterState)
		v1.Post("/router/estimate", s.handleEstimate)
		v1.Get("/vault", s.handleVaultState)
		v1.Get("/vault/positions/{owner}", s.handlePosition)
		v1.Get("/balances/{address}/{token}", s.handleBalance)
		v1.Get("/events", s.handleEvents)

		v1.Group(func(signed chi.Router) {
			signed.Use(s.auth.Middleware)
			signed.Post("/router/init", s.handleRouterInit)
			signed.Post("/router/fee", s.handleRouterFee)
			signed.Post("/router/swaps", s.handleSwaps)
			signed.Post("/vault/init", s.handleVaultInit)
			signed.Post("/vault/deposit", s.handleDeposit)
			signed.Post("/vault/withdraw", s.handleWithdraw)
			signed.Post("/vault/arbitrage", s.handleArbitrage)
		})
	})

	return otelhttp.NewHandler(r, "vaultd")
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "address", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

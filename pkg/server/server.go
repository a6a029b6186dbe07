package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"bastion-hq/aegis/pkg/security/auth"
	"bastion-hq/aegis/pkg/telemetry/health"
	"bastion-hq/aegis/pkg/telemetry/tracing"
)

// Config configures the HTTP listener.
type Config struct {
	ListenAddress   string        // Default: ":8080"
	ReadTimeout     time.Duration // Default: 10s
	WriteTimeout    time.Duration // Default: 10s
	IdleTimeout     time.Duration // Default: 60s
	ShutdownTimeout time.Duration // Default: 15s
	RequestTimeout  time.Duration // Per evaluation. Default: 5s
	MaxHeaderBytes  int           // Default: 1 MiB
	MaxBodyBytes    int64         // Default: 1 MiB
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddress:   ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RequestTimeout:  5 * time.Second,
		MaxHeaderBytes:  1 << 20,
		MaxBodyBytes:    1 << 20,
	}
}

// BuildInfo is reported by the version endpoint.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Deps are the handlers the server mounts. Everything but Evaluator is
// optional. Without Auth the evaluation endpoint is unauthenticated.
type Deps struct {
	Evaluator Evaluator
	Auth      *auth.Validator
	Metrics   http.Handler
	Health    *health.Checker
	Tracer    *tracing.Tracer
	Build     BuildInfo
	Logger    *slog.Logger
}

// Server serves the evaluation API.
type Server struct {
	config     Config
	evaluator  Evaluator
	auth       *auth.Validator
	metrics    http.Handler
	health     *health.Checker
	tracer     *tracing.Tracer
	build      BuildInfo
	logger     *slog.Logger
	httpServer *http.Server

	mu      sync.Mutex
	running bool
}

// New creates a Server.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Evaluator == nil {
		return nil, errors.New("evaluator is required")
	}
	def := DefaultConfig()
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = def.ListenAddress
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.MaxHeaderBytes <= 0 {
		cfg.MaxHeaderBytes = def.MaxHeaderBytes
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if deps.Health == nil {
		deps.Health = health.New(0)
	}
	if deps.Tracer == nil {
		deps.Tracer = tracing.Noop()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Server{
		config:    cfg,
		evaluator: deps.Evaluator,
		auth:      deps.Auth,
		metrics:   deps.Metrics,
		health:    deps.Health,
		tracer:    deps.Tracer,
		build:     deps.Build,
		logger:    deps.Logger.With("component", "server"),
	}, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	var evaluate http.Handler = http.TimeoutHandler(
		http.HandlerFunc(s.handleEvaluate), s.config.RequestTimeout, `{"error":"evaluation timed out"}`)
	if s.auth != nil {
		evaluate = auth.Middleware(s.auth, s.logger)(evaluate)
	}
	mux.Handle("POST /v1/evaluate", evaluate)
	mux.HandleFunc("GET /health", s.health.LivenessHandler())
	mux.HandleFunc("GET /ready", s.health.ReadinessHandler())
	mux.HandleFunc("GET /version", health.VersionHandler(s.build.Version, s.build.Commit, s.build.BuildTime))
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	var h http.Handler = mux
	h = accessLog(s.logger)(h)
	h = tracing.HTTPMiddleware(s.tracer)(h)
	h = requestID(h)
	h = recovery(s.logger)(h)
	return h
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	s.running = true
	s.httpServer = &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	srv := s.httpServer
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "address", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

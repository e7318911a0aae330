package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/eduba/publishgw/internal/auth"
	"github.com/eduba/publishgw/internal/command"
	"github.com/eduba/publishgw/internal/events"
	"github.com/eduba/publishgw/internal/gateway"
	"github.com/eduba/publishgw/internal/runlog"
)

// DefaultMaxUploadSize bounds a submission body.
const DefaultMaxUploadSize = 64 << 20

// Invoker runs submissions through the agent pipeline.
type Invoker interface {
	Invoke(ctx context.Context, d command.Descriptor) (gateway.Invocation, error)
	InFlight() int64
}

// InvocationReader reads the run log.
type InvocationReader interface {
	Get(ctx context.Context, id string) (*runlog.Record, error)
	List(ctx context.Context, limit int) ([]*runlog.Record, error)
}

// Config holds API server configuration
type Config struct {
	Listen        string
	MaxUploadSize int64
	CORSOrigins   []string
	// Tokens guard the operator endpoints. With none configured those
	// endpoints are not mounted.
	Tokens       []auth.TokenConfig
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	gateway   Invoker
	runs      InvocationReader
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. runs and hub may be nil, which
// leaves the matching operator endpoints unmounted.
func New(config Config, gw Invoker, runs InvocationReader, hub *events.Hub, logger *slog.Logger) *Server {
	if config.MaxUploadSize <= 0 {
		config.MaxUploadSize = DefaultMaxUploadSize
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = time.Minute
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 15 * time.Minute
	}
	return &Server{
		config:    config,
		gateway:   gw,
		runs:      runs,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server and blocks until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.config.ReadTimeout,
		// Submissions block until the agent exits.
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		// In-flight agent runs get the same budget they had to begin with;
		// with no write timeout shutdown waits for them.
		shutdownCtx, cancel := context.Background(), context.CancelFunc(func() {})
		if s.config.WriteTimeout > 0 {
			shutdownCtx, cancel = context.WithTimeout(context.Background(), s.config.WriteTimeout)
		}
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	if len(s.config.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: s.config.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Last-Event-ID"},
			ExposedHeaders: []string{headerInvocationID},
		}).Handler)
	}

	// Unauthenticated.
	r.Get("/healthz", s.handleHealthz)
	r.Get("/openapi.json", s.handleOpenAPI)
	r.Post("/api/create-page", s.handleInvoke(command.KindCreate))
	r.Post("/api/sector-chat", s.handleInvoke(command.KindRefine))

	// Operator endpoints.
	if len(s.config.Tokens) > 0 {
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			if s.runs != nil {
				r.With(s.requireScopes(auth.ScopeInvocationsRO)).Get("/api/invocations", s.handleListInvocations)
				r.With(s.requireScopes(auth.ScopeInvocationsRO)).Get("/api/invocations/{id}", s.handleGetInvocation)
			}
			if s.events != nil {
				r.With(s.requireScopes(auth.ScopeEventsRO)).Get("/events", s.handleEvents)
			}
		})
	}

	return r
}

// recoverMiddleware turns a handler panic into a JSON 500. Deferred cleanup
// in the pipeline has already run by the time the panic reaches here.
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.Error("panic in handler",
				"path", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			s.writeError(w, http.StatusInternalServerError, "internal error")
		}()
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

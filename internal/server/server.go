// Package server exposes the resource resolution service over HTTP.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/agentctx/internal/agent"
	"github.com/opencode-ai/agentctx/internal/event"
	"github.com/opencode-ai/agentctx/internal/logging"
	"github.com/opencode-ai/agentctx/internal/resource"
)

// Config holds server configuration.
type Config struct {
	Addr              string
	EnableCORS        bool
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:              "127.0.0.1:7777",
		EnableCORS:        true,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // No write timeout for SSE
		HeartbeatInterval: SSEHeartbeatInterval,
	}
}

// Server is the HTTP server.
type Server struct {
	config  *Config
	router  *chi.Mux
	httpSrv *http.Server
	service *resource.Service
	agents  *agent.Registry
	bus     *event.Bus
	log     zerolog.Logger

	mu      sync.Mutex
	watches map[string]resource.Disposable

	// streams is the parent of every request context; Shutdown cancels it
	// so open event streams end instead of holding the server open.
	streams    context.Context
	endStreams context.CancelFunc
}

// New creates a server over the given service and agent registry. The bus
// feeds the /event stream and should be the one the service publishes to.
func New(cfg *Config, service *resource.Service, agents *agent.Registry, bus *event.Bus) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = SSEHeartbeatInterval
	}

	s := &Server{
		config:  cfg,
		router:  chi.NewRouter(),
		service: service,
		agents:  agents,
		bus:     bus,
		log:     logging.Component("server"),
		watches: make(map[string]resource.Disposable),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.streams, s.endStreams = context.WithCancel(context.Background())
	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return s.streams },
	}

	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

// requestLogger logs each request through zerolog at debug level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("requestID", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/healthz", s.health)
	r.Handle("/metrics", s.service.Metrics().Handler())

	r.Route("/agent", func(r chi.Router) {
		r.Get("/", s.listAgents)
		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", s.getAgent)
			r.Get("/resources", s.resolveResources)
			r.Post("/watch", s.startWatch)
			r.Delete("/watch", s.stopWatch)
		})
	})

	r.Route("/cache", func(r chi.Router) {
		r.Get("/", s.cacheStats)
		r.Delete("/", s.clearCache)
	})

	r.Get("/event", s.events)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.httpSrv.ListenAndServe()
}

// Shutdown releases the watches started over HTTP and gracefully shuts down
// the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	watches := s.watches
	s.watches = make(map[string]resource.Disposable)
	s.mu.Unlock()
	for _, w := range watches {
		w.Dispose()
	}

	s.endStreams()
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

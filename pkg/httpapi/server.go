package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"vending/pkg/inventory"
	"vending/pkg/machine"
	"vending/pkg/metrics"
	"vending/pkg/order"
)

// Machine is the transaction engine as seen by the HTTP layer. *machine.Service satisfies it.
type Machine interface {
	ProcessTransaction(ctx context.Context, req order.Request) (machine.Result, error)
	ComputeOrderTotal(ctx context.Context, o order.Order) (int, error)
	AvailableItems(ctx context.Context) ([]inventory.Item, error)
	Denominations(ctx context.Context) ([]inventory.Denomination, error)
	Operational(ctx context.Context) (bool, error)
}

// Config wires the server's collaborators.
type Config struct {
	Machine     Machine
	Metrics     *metrics.Metrics
	Log         zerolog.Logger
	CORSOrigins []string
	DevMode     bool
}

// Server exposes the vending machine over JSON.
type Server struct {
	router  *chi.Mux
	machine Machine
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New builds the router with its middleware stack and routes.
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		machine: cfg.Machine,
		metrics: cfg.Metrics,
		log:     cfg.Log.With().Str("component", "http").Logger(),
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173"}
	}
	s.setupMiddleware(origins, cfg.DevMode)
	s.setupRoutes()
	return s
}

// Handler returns the root handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(origins []string, devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metricsMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/api/machine", func(r chi.Router) {
		r.Get("/items", s.handleItems)
		r.Get("/denominations", s.handleDenominations)
		r.Post("/calculate-total", s.handleCalculateTotal)
		r.Post("/buy", s.handleBuy)
	})
}

// loggingMiddleware logs one line per request.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// metricsMiddleware records request counts and latency labelled by route pattern.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveRequest(r.Method, path, status, time.Since(start))
	})
}

// Package web serves the DataFinder dashboard and JSON API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/datafinder/internal/config"
	"github.com/JonMunkholm/datafinder/internal/core"
	"github.com/JonMunkholm/datafinder/internal/web/middleware"
)

// Server is the HTTP front end over a core.Service.
type Server struct {
	service *core.Service
	cfg     *config.Config
	logger  *slog.Logger
	router  *chi.Mux
	server  *http.Server
}

// NewServer builds the router. Relative paths in API requests resolve
// against cfg.Paths.
func NewServer(service *core.Service, cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		service: service,
		cfg:     cfg,
		logger:  logger,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
	s.router.Use(clientContext)
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleDashboard)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Security.APIKeys))

		r.Get("/health", s.handleHealth)
		r.Get("/history", s.handleHistory)
		r.Get("/metrics", s.handleMetrics)

		r.Post("/match", s.handleMatch)
		r.Post("/merge", s.handleMerge)
		r.Post("/verify", s.handleVerify)
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	sc := s.cfg.Server
	s.server = &http.Server{
		Addr:         sc.Addr(),
		Handler:      s.router,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
		IdleTimeout:  sc.IdleTimeout,
	}

	s.logger.Info("starting server", "addr", sc.Addr())
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for running work.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	if derr := s.service.Drain(ctx); derr != nil {
		s.logger.Warn("runs still active at shutdown", "error", derr)
	}
	return err
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// clientContext stores the request origin so recorded runs carry it.
// It runs after TrustedRealIP, so RemoteAddr is already the client.
func clientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := core.WithClient(r.Context(), core.Client{IP: ip, UserAgent: r.UserAgent()})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v with the given status. Encoding errors can only be
// logged since the header is already out.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "path", r.URL.Path, "error", err,
			"request_id", chimw.GetReqID(r.Context()))
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return d.Round(10 * time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(10 * time.Microsecond).String()
	default:
		return d.String()
	}
}

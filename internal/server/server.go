// Package server exposes the hub over HTTP: the WebSocket relay
// endpoint, the byte-range transfer endpoint, and a read-only
// introspection API.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"cuecast/internal/hub"
	"cuecast/internal/store"
	"cuecast/internal/transfer"
)

type Server struct {
	router     chi.Router
	hub        *hub.Hub
	store      *store.Store
	transfers  *transfer.Coordinator
	corsOrigin string
	limiter    *rateLimiter
	upgrader   websocket.Upgrader
}

// API rate limit: 120 requests per minute per IP.
const (
	defaultAPIRateLimit  = 120
	defaultAPIRateWindow = time.Minute
)

type Option func(*Server)

func WithStore(s *store.Store) Option {
	return func(srv *Server) { srv.store = s }
}

func WithTransfers(c *transfer.Coordinator) Option {
	return func(srv *Server) { srv.transfers = c }
}

func WithCORSOrigin(origin string) Option {
	return func(srv *Server) { srv.corsOrigin = origin }
}

// WithAPIRateLimit overrides the per-IP request budget for the /api
// route group.
func WithAPIRateLimit(limit int, window time.Duration) Option {
	return func(srv *Server) { srv.limiter = newRateLimiter(limit, window) }
}

func NewServer(h *hub.Hub, opts ...Option) *Server {
	srv := &Server{
		router: chi.NewRouter(),
		hub:    h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Devices connect from app contexts with no Origin header
			// or a platform-specific one; identity is the register
			// message, not the origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(srv)
	}
	if srv.limiter == nil {
		srv.limiter = newRateLimiter(defaultAPIRateLimit, defaultAPIRateWindow)
	}
	srv.router.Use(middleware.Logger)
	srv.router.Use(middleware.Recoverer)
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the rate limiter's cleanup goroutine. Call during
// server shutdown.
func (s *Server) Close() {
	s.limiter.stop()
}

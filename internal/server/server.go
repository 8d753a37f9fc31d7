package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/grocerylist/internal/config"
	"github.com/dukerupert/grocerylist/internal/database"
	"github.com/dukerupert/grocerylist/internal/handler"
	"github.com/dukerupert/grocerylist/internal/metrics"
	"github.com/dukerupert/grocerylist/internal/middleware"
	"github.com/dukerupert/grocerylist/internal/store"
	"github.com/dukerupert/grocerylist/internal/viewstate"
	ws "github.com/dukerupert/grocerylist/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

type Server struct {
	conn        *database.Conn
	store       *store.GroceryStore
	mirror      *viewstate.Mirror
	hub         *ws.Hub
	groceryH    *handler.GroceryHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

// New wires the HTTP surface around an initialized store. The mirror is
// seeded from the store once and then kept current from mutation results.
func New(ctx context.Context, conn *database.Conn, gs *store.GroceryStore, cfg *config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	mirror := viewstate.NewMirror(gs.List(ctx))

	return &Server{
		conn:        conn,
		store:       gs,
		mirror:      mirror,
		hub:         hub,
		groceryH:    handler.NewGroceryHandler(gs, mirror, hub, logger.With("component", "grocery")),
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		logger:      logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the change feed hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Mirror returns the server's view of the list.
func (s *Server) Mirror() *viewstate.Mirror {
	return s.mirror
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(s.logger.With("component", "http")))
	r.Use(middleware.Recovery(s.logger.With("component", "recovery")))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.healthHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/ws", ws.HandleWebSocket(s.hub, s.store.List, s.logger.With("component", "websocket")))

	r.Route("/api/items", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.rateLimiter))

		r.Get("/", s.groceryH.ListItems)
		r.Post("/", s.groceryH.CreateItem)
		r.Delete("/", s.groceryH.ClearItems)
		r.Get("/summary", s.groceryH.Summary)
		r.Post("/{id}/toggle", s.groceryH.ToggleItem)
		r.Put("/{id}", s.groceryH.UpdateItem)
		r.Delete("/{id}", s.groceryH.DeleteItem)
	})

	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if db := s.conn.DB(); db == nil || db.PingContext(ctx) != nil {
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"items":  s.mirror.Len(),
	})
}

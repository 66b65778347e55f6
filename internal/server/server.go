package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/calsync/internal/handler"
	"github.com/dukerupert/calsync/internal/middleware"
	"github.com/dukerupert/calsync/internal/store"
	ws "github.com/dukerupert/calsync/internal/websocket"
)

// Config holds HTTP-layer settings.
type Config struct {
	// WSOrigins lists accepted websocket origin patterns. Empty accepts all.
	WSOrigins []string
	// SyncRateLimit caps manual sync triggers per client per minute.
	SyncRateLimit int
}

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	calendarEventH *handler.CalendarEventHandler
	syncH          *handler.SyncHandler
	rateLimiter    *middleware.RateLimiter
	cfg            Config
	logger         *slog.Logger
}

func New(db *sql.DB, hub *ws.Hub, sync handler.SyncService, cfg Config, logger *slog.Logger) *Server {
	if cfg.SyncRateLimit <= 0 {
		cfg.SyncRateLimit = 6
	}
	eventStore := store.NewEventStore(db)

	return &Server{
		db:             db,
		hub:            hub,
		calendarEventH: handler.NewCalendarEventHandler(eventStore, hub, logger.With("component", "events")),
		syncH:          handler.NewSyncHandler(sync, logger.With("component", "sync_handler")),
		rateLimiter:    middleware.NewRateLimiter(),
		cfg:            cfg,
		logger:         logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.cfg.WSOrigins, s.logger.With("component", "websocket")))

	// Sync API routes
	mux.HandleFunc("GET /api/sync/status", s.syncH.Status)
	mux.HandleFunc("POST /api/sync", s.rateLimitedHandler(s.syncH.SyncAll))
	mux.HandleFunc("POST /api/calendars/{id}/sync", s.rateLimitedHandler(s.syncH.SyncCalendar))
	mux.HandleFunc("POST /api/calendars/{id}/full-sync", s.rateLimitedHandler(s.syncH.FullSync))

	// Local event API routes
	mux.HandleFunc("POST /api/events", s.calendarEventH.Create)
	mux.HandleFunc("GET /api/events", s.calendarEventH.List)
	mux.HandleFunc("GET /api/events/{id}", s.calendarEventH.Get)
	mux.HandleFunc("PUT /api/events/{id}", s.calendarEventH.Update)

	return middleware.RequestLogger(s.logger.With("component", "http"), "/health")(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health check", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	return middleware.RateLimit(s.rateLimiter, keyFunc, s.cfg.SyncRateLimit, time.Minute)(h).ServeHTTP
}

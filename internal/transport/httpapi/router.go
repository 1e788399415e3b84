// Package httpapi exposes the REST endpoints and mounts the websocket handler.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/park285/Cheese-Arena/internal/room"
	"github.com/park285/Cheese-Arena/internal/store"
)

// Feed is the recent-results source.
type Feed interface {
	Recent(ctx context.Context, n int) ([]store.Recent, error)
}

// VisitorCounter counts landing-page hits.
type VisitorCounter interface {
	Visit(ctx context.Context, now time.Time) (store.VisitorCounts, error)
	Visitors(ctx context.Context, now time.Time) (store.VisitorCounts, error)
}

// Deps wires the router. Archive, Feed and Visitors are optional.
type Deps struct {
	Rooms       *room.Manager
	WS          http.Handler
	Connections func() int
	Archive     store.Archive
	Feed        Feed
	Visitors    VisitorCounter
	Logger      *zap.Logger
	Now         func() time.Time
}

type handlers struct{ Deps }

func NewRouter(d Deps) *chi.Mux {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handlers{Deps: d}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/healthz", h.health)
	if d.WS != nil {
		r.Handle("/ws", d.WS)
	}

	r.Group(func(r chi.Router) {
		r.Use(requestLogger(d.Logger))
		r.Get("/", h.index)
		r.Route("/api", func(r chi.Router) {
			r.Get("/rooms", h.rooms)
			r.Get("/rooms/{room_id}", h.roomSnapshot)
			r.Get("/rooms/{room_id}/board.png", h.boardPNG)
			r.Get("/leaderboard", h.leaderboard)
			r.Get("/games/{game_id}/replay", h.replay)
			r.Get("/recent", h.recent)
			r.Get("/visitor-count", h.visitorCount)
		})
	})
	return r
}

// requestLogger logs one line per request with the chi request id.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			logger.Info("http_request",
				zap.String("request_id", chimw.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

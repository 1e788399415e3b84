package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/park285/Cheese-Arena/internal/render"
	"github.com/park285/Cheese-Arena/internal/room"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func limitParam(r *http.Request, def, ceiling int) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("limit")))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, ceiling)
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok", "rooms": h.Rooms.RoomCount()}
	if h.Connections != nil {
		body["connections"] = h.Connections()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"service": "cheese-arena", "ws": "/ws"}
	if h.Visitors != nil {
		counts, err := h.Visitors.Visit(r.Context(), h.Now())
		if err != nil {
			h.Logger.Warn("visitor_count_failed", zap.Error(err))
		} else {
			body["visitors"] = counts
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handlers) rooms(w http.ResponseWriter, _ *http.Request) {
	list := h.Rooms.ListSpectatableRooms()
	if list == nil {
		list = []room.RoomInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": list})
}

func (h *handlers) roomSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Rooms.Snapshot(chi.URLParam(r, "room_id"))
	if errors.Is(err, room.ErrRoomNotFound) {
		writeError(w, http.StatusNotFound, room.Code(err))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, room.Code(err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handlers) boardPNG(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "room_id")
	snap, err := h.Rooms.Snapshot(id)
	if errors.Is(err, room.ErrRoomNotFound) {
		writeError(w, http.StatusNotFound, room.Code(err))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, room.Code(err))
		return
	}
	opts := render.Options{
		Flip:   r.URL.Query().Get("flip") == "1",
		Header: snap.Players.White + " vs " + snap.Players.Black,
		Footer: snap.WhiteTimeFormatted + "  " + strings.ToUpper(snap.Turn) + " TO MOVE  " + snap.BlackTimeFormatted,
	}
	if snap.Winner != "" {
		opts.Footer = "Result: " + snap.Winner + " (" + string(snap.Reason) + ")"
	}
	if moves, err := h.Rooms.Moves(id); err == nil && len(moves) > 0 {
		last := moves[len(moves)-1].Move
		opts.LastMove = &last
	}
	png, err := render.PNG(r.Context(), snap.Board, opts)
	if err != nil {
		h.Logger.Warn("board_render_failed", zap.String("room_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "render_failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (h *handlers) leaderboard(w http.ResponseWriter, r *http.Request) {
	if h.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive_unavailable")
		return
	}
	rows, err := h.Archive.Leaderboard(r.Context(), limitParam(r, 10, 100))
	if err != nil {
		h.Logger.Warn("leaderboard_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leaderboard": rows})
}

func (h *handlers) replay(w http.ResponseWriter, r *http.Request) {
	if h.Archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive_unavailable")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "game_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_game_id")
		return
	}
	rep, err := h.Archive.Replay(r.Context(), id)
	if err != nil {
		h.Logger.Warn("replay_failed", zap.Int64("game_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	if rep == nil {
		writeError(w, http.StatusNotFound, "game_not_found")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *handlers) recent(w http.ResponseWriter, r *http.Request) {
	if h.Feed == nil {
		writeError(w, http.StatusServiceUnavailable, "feed_unavailable")
		return
	}
	list, err := h.Feed.Recent(r.Context(), limitParam(r, 20, 50))
	if err != nil {
		h.Logger.Warn("recent_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": list})
}

func (h *handlers) visitorCount(w http.ResponseWriter, r *http.Request) {
	if h.Visitors == nil {
		writeError(w, http.StatusServiceUnavailable, "counter_unavailable")
		return
	}
	counts, err := h.Visitors.Visitors(r.Context(), h.Now())
	if err != nil {
		h.Logger.Warn("visitor_count_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

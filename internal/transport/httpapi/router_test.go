package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/park285/Cheese-Arena/internal/chessrules"
	"github.com/park285/Cheese-Arena/internal/room"
	"github.com/park285/Cheese-Arena/internal/store"
)

type apiFixture struct {
	srv     *httptest.Server
	rooms   *room.Manager
	archive *store.Memory
	redis   *store.Redis
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb, err := store.NewRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	rooms := room.NewManager(chessrules.NewEngine(), nil, nil, room.WithLogger(zap.NewNop()))
	t.Cleanup(rooms.Close)
	archive := store.NewMemory()

	r := NewRouter(Deps{
		Rooms:       rooms,
		Connections: func() int { return 0 },
		Archive:     archive,
		Feed:        rdb,
		Visitors:    rdb,
		Logger:      zap.NewNop(),
		Now:         func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) },
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &apiFixture{srv: srv, rooms: rooms, archive: archive, redis: rdb}
}

func (f *apiFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

// startGame seats alice as white and bob as black and plays e2e4.
func startGame(t *testing.T, rooms *room.Manager, id string) {
	t.Helper()
	ctx := context.Background()
	white := room.SeatA
	if _, _, err := rooms.CreateRoom(ctx, id, "c-alice", room.Participant{ID: "alice", Name: "Alice"}, room.Options{Mode: room.ModeFriend, Seat: &white}); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, _, err := rooms.JoinRoom(ctx, id, "c-bob", room.Participant{ID: "bob", Name: "Bob"}, false); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if _, err := rooms.ApplyMove(ctx, "c-alice", room.Move{From: "e2", To: "e4"}); err != nil {
		t.Fatalf("ApplyMove: %v", err)
	}
}

func TestRouter_Health(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.get(t, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["status"] != "ok" || body["rooms"].(float64) != 0 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestRouter_RoomsAndBoard(t *testing.T) {
	f := newAPIFixture(t)
	startGame(t, f.rooms, "ROOM01")

	var list struct {
		Rooms []room.RoomInfo `json:"rooms"`
	}
	decodeBody(t, f.get(t, "/api/rooms"), &list)
	if len(list.Rooms) != 1 || list.Rooms[0].ID != "ROOM01" || list.Rooms[0].MoveCount != 1 {
		t.Fatalf("unexpected rooms %+v", list.Rooms)
	}

	var snap room.Snapshot
	decodeBody(t, f.get(t, "/api/rooms/ROOM01"), &snap)
	if snap.Turn != "black" || snap.Players.White != "Alice" || snap.Board[4][4] != "P" {
		t.Fatalf("unexpected snapshot turn=%s players=%+v e4=%q", snap.Turn, snap.Players, snap.Board[4][4])
	}

	resp := f.get(t, "/api/rooms/ROOM01/board.png?flip=1")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("status=%d type=%s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := png.Decode(&buf); err != nil {
		t.Fatalf("png decode: %v", err)
	}

	if resp := f.get(t, "/api/rooms/NOPE/board.png"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing room status = %d", resp.StatusCode)
	}
	var errBody map[string]string
	missing := f.get(t, "/api/rooms/NOPE")
	decodeBody(t, missing, &errBody)
	if missing.StatusCode != http.StatusNotFound || errBody["error"] != "room_not_found" {
		t.Fatalf("status=%d body=%+v", missing.StatusCode, errBody)
	}
}

func TestRouter_LeaderboardAndReplay(t *testing.T) {
	f := newAPIFixture(t)
	aliceID, bobID := int64(1), int64(2)
	end := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	sum := room.Summary{
		RoomID:      "ROOM02",
		Mode:        room.ModeFriend,
		TimeControl: 300 * time.Second,
		White:       room.Participant{ID: "alice", Name: "Alice", UserID: &aliceID},
		Black:       room.Participant{ID: "bob", Name: "Bob", UserID: &bobID},
		Winner:      "white",
		Reason:      room.ReasonResign,
		StartedAt:   end.Add(-time.Minute),
		EndedAt:     end,
		Moves: []room.MoveRecord{
			{Ply: 1, Seat: room.SeatA, Move: room.Move{From: "e2", To: "e4"}, Notation: "e4"},
		},
	}
	if err := f.archive.RecordCompletedGame(context.Background(), sum); err != nil {
		t.Fatalf("record: %v", err)
	}

	var lb struct {
		Leaderboard []store.Standing `json:"leaderboard"`
	}
	decodeBody(t, f.get(t, "/api/leaderboard?limit=5"), &lb)
	if len(lb.Leaderboard) != 2 || lb.Leaderboard[0].UserID != aliceID || lb.Leaderboard[0].Elo != 1220 {
		t.Fatalf("unexpected leaderboard %+v", lb.Leaderboard)
	}

	var rep store.Replay
	decodeBody(t, f.get(t, "/api/games/1/replay"), &rep)
	if rep.Game.RoomCode != "ROOM02" || len(rep.Moves) != 1 || rep.Moves[0].Notation != "e4" {
		t.Fatalf("unexpected replay %+v", rep)
	}

	if resp := f.get(t, "/api/games/99/replay"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing game status = %d", resp.StatusCode)
	}
	if resp := f.get(t, "/api/games/abc/replay"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", resp.StatusCode)
	}
}

func TestRouter_RecentAndVisitors(t *testing.T) {
	f := newAPIFixture(t)
	end := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	sum := room.Summary{
		RoomID:    "ROOM03",
		Mode:      room.ModeFriend,
		White:     room.Participant{ID: "alice", Name: "Alice"},
		Black:     room.Participant{ID: "bob", Name: "Bob"},
		Winner:    "draw",
		Reason:    room.ReasonAgreement,
		StartedAt: end.Add(-time.Minute),
		EndedAt:   end,
	}
	if err := f.redis.RecordCompletedGame(context.Background(), sum); err != nil {
		t.Fatalf("record: %v", err)
	}
	var feed struct {
		Games []store.Recent `json:"games"`
	}
	decodeBody(t, f.get(t, "/api/recent"), &feed)
	if len(feed.Games) != 1 || feed.Games[0].RoomID != "ROOM03" {
		t.Fatalf("unexpected feed %+v", feed.Games)
	}

	f.get(t, "/")
	f.get(t, "/")
	var counts store.VisitorCounts
	decodeBody(t, f.get(t, "/api/visitor-count"), &counts)
	if counts.Total != 2 || counts.Today != 2 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestRouter_OptionalDepsUnavailable(t *testing.T) {
	rooms := room.NewManager(chessrules.NewEngine(), nil, nil, room.WithLogger(zap.NewNop()))
	t.Cleanup(rooms.Close)
	r := NewRouter(Deps{Rooms: rooms})
	for _, path := range []string{"/api/leaderboard", "/api/recent", "/api/visitor-count", "/api/games/1/replay"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
	}
}

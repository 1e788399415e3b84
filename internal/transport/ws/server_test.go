package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-Arena/internal/chessrules"
	"github.com/park285/Cheese-Arena/internal/msgcat"
	"github.com/park285/Cheese-Arena/internal/room"
)

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type fixture struct {
	srv   *httptest.Server
	hub   *Hub
	rooms *room.Manager
	queue *room.MatchQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hub := NewHub(zap.NewNop())
	cfg := room.DefaultConfig()
	cfg.DisconnectGrace = time.Second
	cfg.BotThinkDelay = 0
	rooms := room.NewManager(chessrules.NewEngine(), nil, hub, room.WithConfig(cfg), room.WithLogger(zap.NewNop()))
	t.Cleanup(rooms.Close)
	queue := room.NewMatchQueue(rooms, hub)
	msgs, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat: %v", err)
	}
	s := NewServer(hub, rooms, queue, msgs, zap.NewNop(), Options{})
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, hub: hub, rooms: rooms, queue: queue}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func send(t *testing.T, c *websocket.Conn, typ string, data any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c, map[string]any{"type": typ, "data": data}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// expect reads until an event of type typ arrives, skipping others.
func expect(t *testing.T, c *websocket.Conn, typ string) inbound {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		var ev inbound
		if err := wsjson.Read(ctx, c, &ev); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if ev.Type == typ {
			return ev
		}
	}
}

func expectError(t *testing.T, c *websocket.Conn, code string) room.ErrorPayload {
	t.Helper()
	ev := expect(t, c, room.EventError)
	var p room.ErrorPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if p.Code != code {
		t.Fatalf("expected error %s, got %+v", code, p)
	}
	return p
}

func roomPayload(t *testing.T, ev inbound) room.RoomPayload {
	t.Helper()
	var p room.RoomPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatalf("decode room payload: %v", err)
	}
	return p
}

func TestServer_GameOverWebsocket(t *testing.T) {
	f := newFixture(t)
	a := f.dial(t)
	b := f.dial(t)

	send(t, a, InCreateRoom, map[string]any{"room": "R1", "id": "alice", "name": "Alice", "color": "white", "timeControl": 60})
	created := roomPayload(t, expect(t, a, room.EventRoomCreated))
	if created.Room != "R1" || created.Role != room.RoleWhite || created.Snapshot.Phase != room.PhaseForming {
		t.Fatalf("unexpected roomCreated %+v", created)
	}

	send(t, b, InJoinRoom, map[string]any{"room": "R1", "id": "bob", "name": "Bob"})
	joined := roomPayload(t, expect(t, b, room.EventRoomJoined))
	if joined.Role != room.RoleBlack || joined.Snapshot.Opponent != "Alice" || !joined.Snapshot.IsActive {
		t.Fatalf("unexpected roomJoined %+v", joined)
	}
	expect(t, a, room.EventGameUpdate)

	send(t, a, InMove, map[string]any{"from": "e2", "to": "e4"})
	ev := expect(t, b, room.EventGameUpdate)
	var up room.GameUpdatePayload
	if err := json.Unmarshal(ev.Data, &up); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if up.Snapshot.MoveCount != 1 || up.Notation != "e4" || up.Snapshot.Turn != "black" {
		t.Fatalf("unexpected update %+v", up)
	}

	send(t, a, InMove, map[string]any{"from": "d2", "to": "d4"})
	expectError(t, a, "not_your_turn")

	send(t, b, InResign, nil)
	ev = expect(t, a, room.EventGameUpdate)
	if err := json.Unmarshal(ev.Data, &up); err != nil {
		t.Fatalf("decode update: %v", err)
	}
	if up.Snapshot.Winner != "white" || up.Snapshot.Reason != room.ReasonResign {
		t.Fatalf("expected white to win by resignation, got %+v", up.Snapshot)
	}
}

func TestServer_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	a := f.dial(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectError(t, a, "bad_request")

	send(t, a, "teleport", nil)
	p := expectError(t, a, "unknown_event")
	if !strings.Contains(p.Message, "teleport") {
		t.Fatalf("message should name the event: %q", p.Message)
	}

	send(t, a, InJoinRoom, map[string]any{"room": "NOPE", "id": "alice"})
	p = expectError(t, a, "room_not_found")
	if !strings.Contains(p.Message, "NOPE") {
		t.Fatalf("message should name the room: %q", p.Message)
	}

	send(t, a, InMove, map[string]any{"from": "e2", "to": "e4"})
	expectError(t, a, "not_attached")

	send(t, a, InCreateRoom, map[string]any{"room": "R2"})
	expectError(t, a, "invalid_args")
}

func TestServer_DisconnectNotifiesOpponent(t *testing.T) {
	f := newFixture(t)
	a := f.dial(t)
	b := f.dial(t)

	send(t, a, InCreateRoom, map[string]any{"room": "R1", "id": "alice", "color": "white"})
	expect(t, a, room.EventRoomCreated)
	send(t, b, InJoinRoom, map[string]any{"room": "R1", "id": "bob"})
	expect(t, b, room.EventRoomJoined)

	_ = b.Close(websocket.StatusNormalClosure, "bye")
	ev := expect(t, a, room.EventPlayerDisconnected)
	var p room.DisconnectPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Seat != room.RoleBlack || p.TimeoutSeconds != 1 {
		t.Fatalf("unexpected disconnect payload %+v", p)
	}

	c := f.dial(t)
	send(t, c, InJoinRoom, map[string]any{"room": "R1", "id": "bob"})
	if got := roomPayload(t, expect(t, c, room.EventRoomJoined)); got.Role != room.RoleBlack {
		t.Fatalf("bob should reclaim black, got %s", got.Role)
	}
	expect(t, a, room.EventPlayerReconnected)
}

func TestServer_Matchmaking(t *testing.T) {
	f := newFixture(t)
	a := f.dial(t)
	b := f.dial(t)

	send(t, a, InFindMatch, map[string]any{"id": "alice", "timeControl": 600})
	expect(t, a, EventMatchmaking)

	send(t, a, InCancelMatchmaking, nil)
	expect(t, a, EventMatchmaking)
	send(t, a, InCancelMatchmaking, nil)
	expectError(t, a, "not_queued")

	send(t, a, InFindMatch, map[string]any{"id": "alice", "timeControl": 600})
	expect(t, a, EventMatchmaking)
	send(t, b, InFindMatch, map[string]any{"id": "bob", "timeControl": 600})

	var found room.MatchFoundPayload
	if err := json.Unmarshal(expect(t, a, room.EventMatchFound).Data, &found); err != nil {
		t.Fatalf("decode: %v", err)
	}
	expect(t, b, room.EventMatchFound)
	if !strings.HasPrefix(found.Room, "M-") {
		t.Fatalf("unexpected match room %q", found.Room)
	}
	if f.queue.Len() != 0 {
		t.Fatalf("queue should be empty after pairing")
	}
}

func TestHub_SlowConsumerIsCut(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &client{id: "c1", out: make(chan room.Event, 1), ctx: ctx, cancel: cancel}
	h.register(c)

	h.Send("c1", room.Event{Type: room.EventGameUpdate})
	h.Send("c1", room.Event{Type: room.EventGameUpdate})
	if ctx.Err() == nil {
		t.Fatalf("client with a full buffer should be cancelled")
	}
	h.Send("nobody", room.Event{Type: room.EventGameUpdate})

	h.unregister("c1")
	if h.Len() != 0 {
		t.Fatalf("expected empty hub")
	}
}

func TestHub_CloseAll(t *testing.T) {
	h := NewHub(nil)
	ctxA, cancelA := context.WithCancel(context.Background())
	ctxB, cancelB := context.WithCancel(context.Background())
	defer cancelA()
	defer cancelB()
	h.register(&client{id: "a", out: make(chan room.Event, 1), ctx: ctxA, cancel: cancelA})
	h.register(&client{id: "b", out: make(chan room.Event, 1), ctx: ctxB, cancel: cancelB})

	h.CloseAll()
	if ctxA.Err() == nil || ctxB.Err() == nil {
		t.Fatalf("CloseAll should cancel every client")
	}
}

func TestIdentity_Participant(t *testing.T) {
	p, err := identity{Name: " Alice "}.participant()
	if err != nil || p.ID != "Alice" || p.Name != "Alice" {
		t.Fatalf("name fallback: %+v %v", p, err)
	}
	if _, err := (identity{}).participant(); err == nil {
		t.Fatalf("empty identity must fail")
	}
	long := strings.Repeat("x", 100)
	p, _ = identity{ID: "id", Name: long}.participant()
	if len(p.Name) != maxNameLen {
		t.Fatalf("name not capped: %d", len(p.Name))
	}
}

func TestCreateRoomData_Options(t *testing.T) {
	opts := createRoomData{Mode: "BOT", TimeControl: 90, Color: "black", Difficulty: "hard"}.options()
	if opts.Mode != room.ModeBot || opts.TimeControl != 90*time.Second || opts.Seat == nil || *opts.Seat != room.SeatB {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts := (createRoomData{Color: "random"}).options(); opts.Seat != nil || opts.Mode != room.ModeFriend {
		t.Fatalf("random colour must leave the seat open: %+v", opts)
	}
}

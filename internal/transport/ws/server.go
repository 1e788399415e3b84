package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-Arena/internal/msgcat"
	"github.com/park285/Cheese-Arena/internal/room"
)

type Options struct {
	// OriginPatterns are passed to websocket.Accept; empty allows same-host only.
	OriginPatterns []string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 16 << 10
	}
	return o
}

// Server upgrades HTTP requests and feeds client envelopes to the room layer.
type Server struct {
	hub    *Hub
	rooms  *room.Manager
	queue  *room.MatchQueue
	msgs   *msgcat.Catalog
	logger *zap.Logger
	opts   Options

	handlers map[string]handlerFunc
}

type handlerFunc func(ctx context.Context, c *client, data json.RawMessage) error

func NewServer(hub *Hub, rooms *room.Manager, queue *room.MatchQueue, msgs *msgcat.Catalog, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{hub: hub, rooms: rooms, queue: queue, msgs: msgs, logger: logger, opts: opts.withDefaults()}
	s.handlers = map[string]handlerFunc{
		InCreateRoom:        s.createRoom,
		InJoinRoom:          s.joinRoom,
		InMove:              s.move,
		InOfferDraw:         s.offerDraw,
		InRespondDraw:       s.respondDraw,
		InResign:            s.resign,
		InRequestRematch:    s.requestRematch,
		InFindMatch:         s.findMatch,
		InCancelMatchmaking: s.cancelMatchmaking,
		InLeaveRoom:         s.leaveRoom,
		InChat:              s.chat,
		InPossibleMoves:     s.possibleMoves,
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.opts.OriginPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.logger.Debug("ws_accept_failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(s.opts.ReadLimit)

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		id:     room.ConnID(uuid.NewString()),
		out:    make(chan room.Event, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
	s.hub.register(c)
	s.logger.Info("ws_connected", zap.String("conn", string(c.id)), zap.String("remote", r.RemoteAddr))

	done := make(chan struct{}, 2)
	go func() { s.writeLoop(c, conn); done <- struct{}{} }()
	go func() { s.pingLoop(c, conn); done <- struct{}{} }()

	s.readLoop(c, conn)
	cancel()
	<-done
	<-done

	s.hub.unregister(c.id)
	s.queue.DropConn(c.id)
	s.rooms.HandleDisconnect(context.Background(), c.id)
	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("ws_disconnected", zap.String("conn", string(c.id)))
}

func (s *Server) readLoop(c *client, conn *websocket.Conn) {
	for {
		typ, raw, err := conn.Read(c.ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && c.ctx.Err() == nil {
				s.logger.Debug("ws_read_failed", zap.String("conn", string(c.id)), zap.Error(err))
			}
			return
		}
		var env envelope
		if typ != websocket.MessageText || json.Unmarshal(raw, &env) != nil || env.Type == "" {
			s.sendError(c, errBadRequest, nil)
			continue
		}
		s.dispatch(c, env)
	}
}

func (s *Server) dispatch(c *client, env envelope) {
	h, ok := s.handlers[strings.TrimSpace(env.Type)]
	if !ok {
		s.sendError(c, errUnknownEvent, map[string]any{"Event": env.Type})
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("ws_handler_panic", zap.String("event", env.Type), zap.Any("panic", r))
			s.sendError(c, errors.New("internal"), nil)
		}
	}()
	if err := h(c.ctx, c, env.Data); err != nil {
		s.logger.Debug("ws_request_rejected",
			zap.String("conn", string(c.id)),
			zap.String("event", env.Type),
			zap.Error(err),
		)
		s.sendError(c, err, templateData(env.Data))
	}
}

func (s *Server) writeLoop(c *client, conn *websocket.Conn) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.out:
			ctx, cancel := context.WithTimeout(c.ctx, s.opts.WriteTimeout)
			err := wsjson.Write(ctx, conn, ev)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		}
	}
}

func (s *Server) pingLoop(c *client, conn *websocket.Conn) {
	t := time.NewTicker(s.opts.PingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(c.ctx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				s.logger.Info("ws_ping_timeout", zap.String("conn", string(c.id)))
				c.cancel()
				return
			}
		}
	}
}

var (
	errBadRequest   = errors.New("bad_request")
	errUnknownEvent = errors.New("unknown_event")
)

// sendError reports err to the originating connection only.
func (s *Server) sendError(c *client, err error, data map[string]any) {
	code := room.Code(err)
	switch {
	case errors.Is(err, errBadRequest):
		code = "bad_request"
	case errors.Is(err, errUnknownEvent):
		code = "unknown_event"
	}
	if data == nil {
		data = map[string]any{}
	}
	for _, k := range []string{"Room", "Event"} {
		if _, ok := data[k]; !ok {
			data[k] = ""
		}
	}
	msg := s.msgs.RenderOr("errors."+code, data, err.Error())
	s.hub.Send(c.id, room.Event{Type: room.EventError, Payload: room.ErrorPayload{Code: code, Message: msg}})
}

func templateData(raw json.RawMessage) map[string]any {
	var probe struct {
		Room string `json:"room"`
	}
	_ = json.Unmarshal(raw, &probe)
	return map[string]any{"Room": probe.Room}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", room.ErrInvalidArgs, err)
	}
	return nil
}

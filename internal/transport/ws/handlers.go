package ws

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/park285/Cheese-Arena/internal/room"
)

func (s *Server) createRoom(ctx context.Context, c *client, raw json.RawMessage) error {
	var d createRoomData
	if err := decode(raw, &d); err != nil {
		return err
	}
	who, err := d.participant()
	if err != nil {
		return err
	}
	id := strings.TrimSpace(d.Room)
	if id == "" {
		id = strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	}
	_, _, err = s.rooms.CreateRoom(ctx, id, c.id, who, d.options())
	return err
}

func (s *Server) joinRoom(ctx context.Context, c *client, raw json.RawMessage) error {
	var d joinRoomData
	if err := decode(raw, &d); err != nil {
		return err
	}
	if strings.TrimSpace(d.Room) == "" {
		return room.ErrInvalidArgs
	}
	who, err := d.participant()
	if err != nil {
		if !d.Spectate {
			return err
		}
		who = room.Participant{ID: string(c.id), Name: "Spectator"}
	}
	_, _, err = s.rooms.JoinRoom(ctx, d.Room, c.id, who, d.Spectate)
	return err
}

func (s *Server) move(ctx context.Context, c *client, raw json.RawMessage) error {
	var mv room.Move
	if err := decode(raw, &mv); err != nil {
		return err
	}
	if strings.TrimSpace(mv.From) == "" || strings.TrimSpace(mv.To) == "" {
		return room.ErrInvalidArgs
	}
	_, err := s.rooms.ApplyMove(ctx, c.id, mv)
	return err
}

func (s *Server) offerDraw(ctx context.Context, c *client, _ json.RawMessage) error {
	return s.rooms.OfferDraw(ctx, c.id)
}

func (s *Server) respondDraw(ctx context.Context, c *client, raw json.RawMessage) error {
	var d respondDrawData
	if err := decode(raw, &d); err != nil {
		return err
	}
	return s.rooms.RespondDraw(ctx, c.id, d.Accept)
}

func (s *Server) resign(ctx context.Context, c *client, _ json.RawMessage) error {
	return s.rooms.Resign(ctx, c.id)
}

func (s *Server) requestRematch(ctx context.Context, c *client, _ json.RawMessage) error {
	_, err := s.rooms.RequestRematch(ctx, c.id)
	return err
}

func (s *Server) findMatch(ctx context.Context, c *client, raw json.RawMessage) error {
	var d findMatchData
	if err := decode(raw, &d); err != nil {
		return err
	}
	who, err := d.participant()
	if err != nil {
		return err
	}
	crit := room.Criteria{TimeControl: time.Duration(max(d.TimeControl, 0)) * time.Second}
	m, err := s.queue.Enqueue(ctx, c.id, who, crit)
	if err != nil {
		return err
	}
	if m != nil {
		c.setIdentity("")
		return nil
	}
	c.setIdentity(who.ID)
	s.hub.Send(c.id, room.Event{Type: EventMatchmaking, Payload: matchmakingPayload{
		Status:      "searching",
		TimeControl: crit.TimeControl.Seconds(),
		Queued:      s.queue.Len(),
	}})
	return nil
}

func (s *Server) cancelMatchmaking(_ context.Context, c *client, _ json.RawMessage) error {
	id := c.queuedAs()
	if id == "" {
		return room.ErrNotQueued
	}
	if err := s.queue.Cancel(id); err != nil {
		return err
	}
	c.setIdentity("")
	s.hub.Send(c.id, room.Event{Type: EventMatchmaking, Payload: matchmakingPayload{Status: "cancelled"}})
	return nil
}

func (s *Server) leaveRoom(ctx context.Context, c *client, _ json.RawMessage) error {
	if err := s.rooms.LeaveRoom(ctx, c.id); err != nil {
		return err
	}
	s.hub.Send(c.id, room.Event{Type: EventRoomLeft})
	return nil
}

func (s *Server) chat(ctx context.Context, c *client, raw json.RawMessage) error {
	var d chatData
	if err := decode(raw, &d); err != nil {
		return err
	}
	return s.rooms.Chat(ctx, c.id, d.Text)
}

func (s *Server) possibleMoves(ctx context.Context, c *client, raw json.RawMessage) error {
	var d possibleMovesData
	if err := decode(raw, &d); err != nil {
		return err
	}
	if strings.TrimSpace(d.From) == "" {
		return room.ErrInvalidArgs
	}
	_, err := s.rooms.PossibleMoves(ctx, c.id, d.From)
	return err
}

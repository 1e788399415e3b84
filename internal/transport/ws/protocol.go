package ws

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/park285/Cheese-Arena/internal/room"
)

// Inbound event names.
const (
	InCreateRoom        = "createRoom"
	InJoinRoom          = "joinRoom"
	InMove              = "move"
	InOfferDraw         = "offerDraw"
	InRespondDraw       = "respondDraw"
	InResign            = "resign"
	InRequestRematch    = "requestRematch"
	InFindMatch         = "findMatch"
	InCancelMatchmaking = "cancelMatchmaking"
	InLeaveRoom         = "leaveRoom"
	InChat              = "chat"
	InPossibleMoves     = "possibleMoves"
)

// Transport-level acknowledgements.
const (
	EventMatchmaking = "matchmaking"
	EventRoomLeft    = "roomLeft"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

const maxNameLen = 40

type identity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	UserID *int64 `json:"userId,omitempty"`
}

// participant resolves the identity; a missing id falls back to the name.
func (i identity) participant() (room.Participant, error) {
	id := strings.TrimSpace(i.ID)
	name := strings.TrimSpace(i.Name)
	if id == "" {
		id = name
	}
	if id == "" {
		return room.Participant{}, room.ErrInvalidArgs
	}
	if name == "" {
		name = id
	}
	if r := []rune(name); len(r) > maxNameLen {
		name = string(r[:maxNameLen])
	}
	return room.Participant{ID: id, Name: name, UserID: i.UserID}, nil
}

type createRoomData struct {
	identity
	Room        string `json:"room"`
	Mode        string `json:"mode"`
	TimeControl int    `json:"timeControl"`
	Color       string `json:"color"`
	Difficulty  string `json:"difficulty"`
	FEN         string `json:"fen"`
}

func (d createRoomData) options() room.Options {
	opts := room.Options{
		Mode:        room.ParseMode(d.Mode),
		TimeControl: time.Duration(max(d.TimeControl, 0)) * time.Second,
		Difficulty:  strings.TrimSpace(d.Difficulty),
		StartFEN:    strings.TrimSpace(d.FEN),
	}
	switch strings.ToLower(strings.TrimSpace(d.Color)) {
	case "white":
		s := room.SeatA
		opts.Seat = &s
	case "black":
		s := room.SeatB
		opts.Seat = &s
	}
	return opts
}

type joinRoomData struct {
	identity
	Room     string `json:"room"`
	Spectate bool   `json:"spectate"`
}

type respondDrawData struct {
	Accept bool `json:"accept"`
}

type findMatchData struct {
	identity
	TimeControl int `json:"timeControl"`
}

type chatData struct {
	Text string `json:"text"`
}

type possibleMovesData struct {
	From string `json:"from"`
}

type matchmakingPayload struct {
	Status      string  `json:"status"`
	TimeControl float64 `json:"timeControl,omitempty"`
	Queued      int     `json:"queued,omitempty"`
}

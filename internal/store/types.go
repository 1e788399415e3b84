// Package store persists finished games: a Postgres archive with player
// stats, a Redis result feed and retry queue, and an in-memory fallback.
package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/park285/Cheese-Arena/internal/room"
)

var ErrDuplicateGame = errors.New("store: game already recorded")

const (
	startingElo = 1200
	eloWin      = 20
	eloLoss     = 15
	eloFloor    = 800
)

// Standing is one leaderboard row.
type Standing struct {
	UserID      int64  `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	Elo         int    `json:"elo"`
	Played      int    `json:"gamesPlayed"`
	Won         int    `json:"gamesWon"`
	Drawn       int    `json:"gamesDrawn"`
	Lost        int    `json:"gamesLost"`
}

// GameRow is the stored header of a finished game.
type GameRow struct {
	ID          int64     `json:"id"`
	RoomCode    string    `json:"roomCode"`
	White       string    `json:"white"`
	Black       string    `json:"black"`
	Winner      string    `json:"winner"`
	Reason      string    `json:"reason"`
	Mode        string    `json:"mode"`
	TimeControl int       `json:"timeControl"`
	StartedAt   time.Time `json:"startedAt"`
	EndedAt     time.Time `json:"endedAt"`
	MoveCount   int       `json:"moveCount"`
	PGN         string    `json:"pgn,omitempty"`
}

type ReplayMove struct {
	Number    int     `json:"moveNumber"`
	Notation  string  `json:"notation"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	FEN       string  `json:"fen"`
	WhiteTime float64 `json:"whiteTime"`
	BlackTime float64 `json:"blackTime"`
}

type Replay struct {
	Game  GameRow      `json:"game"`
	Moves []ReplayMove `json:"moves"`
}

// Archive is the read side shared by the Postgres and in-memory stores.
type Archive interface {
	Leaderboard(ctx context.Context, limit int) ([]Standing, error)
	Replay(ctx context.Context, id int64) (*Replay, error)
}

// recordKey identifies one finished session across retries.
func recordKey(sum room.Summary) string {
	return sum.RoomID + "|" + strconv.FormatInt(sum.EndedAt.UnixNano(), 10)
}

type outcome int

const (
	outcomeLoss outcome = iota
	outcomeWin
	outcomeDraw
)

func outcomeFor(sum room.Summary, seat room.Seat) outcome {
	switch sum.Winner {
	case "draw", "":
		return outcomeDraw
	case seat.String():
		return outcomeWin
	default:
		return outcomeLoss
	}
}

// nextElo applies the fixed rating step for one game.
func nextElo(cur int, o outcome) int {
	switch o {
	case outcomeWin:
		return cur + eloWin
	case outcomeLoss:
		return max(cur-eloLoss, eloFloor)
	default:
		return cur
	}
}

// rated lists the seats whose participant carries a persistent user id.
func rated(sum room.Summary) map[room.Seat]room.Participant {
	out := make(map[room.Seat]room.Participant, 2)
	if p := sum.White; p.UserID != nil && !p.Bot {
		out[room.SeatA] = p
	}
	if p := sum.Black; p.UserID != nil && !p.Bot {
		out[room.SeatB] = p
	}
	return out
}

func replayMoves(moves []room.MoveRecord) []ReplayMove {
	out := make([]ReplayMove, 0, len(moves))
	for i, mv := range moves {
		out = append(out, ReplayMove{
			Number:    i + 1,
			Notation:  mv.Notation,
			From:      mv.Move.From,
			To:        mv.Move.To,
			FEN:       mv.FEN,
			WhiteTime: mv.WhiteLeft.Seconds(),
			BlackTime: mv.BlackLeft.Seconds(),
		})
	}
	return out
}

package room

import (
	"strings"
	"time"
)

// Seat is one of the two playing slots. SeatA moves first.
type Seat int

const (
	SeatA Seat = iota
	SeatB
)

func (s Seat) Opponent() Seat {
	if s == SeatA {
		return SeatB
	}
	return SeatA
}

func (s Seat) String() string {
	if s == SeatA {
		return "white"
	}
	return "black"
}

func (s Seat) Role() Role {
	if s == SeatA {
		return RoleWhite
	}
	return RoleBlack
}

// Role is the resolved position of a connection inside a room.
type Role string

const (
	RoleWhite     Role = "white"
	RoleBlack     Role = "black"
	RoleSpectator Role = "spectator"
)

// Seat reports the seat for a playing role.
func (r Role) Seat() (Seat, bool) {
	switch r {
	case RoleWhite:
		return SeatA, true
	case RoleBlack:
		return SeatB, true
	default:
		return 0, false
	}
}

type Phase string

const (
	PhaseForming  Phase = "forming"
	PhaseActive   Phase = "active"
	PhaseTerminal Phase = "terminal"
)

type Mode string

const (
	ModeFriend Mode = "friend"
	ModeBot    Mode = "bot"
	ModeMatch  Mode = "match"
)

// ParseMode maps wire values onto a Mode, defaulting to friend.
func ParseMode(raw string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeBot:
		return ModeBot
	case ModeMatch:
		return ModeMatch
	default:
		return ModeFriend
	}
}

type Reason string

const (
	ReasonCheckmate            Reason = "checkmate"
	ReasonStalemate            Reason = "stalemate"
	ReasonInsufficientMaterial Reason = "insufficient_material"
	ReasonRepetition           Reason = "repetition"
	ReasonFiftyMoveRule        Reason = "fifty_move_rule"
	ReasonTimeout              Reason = "timeout"
	ReasonAbandonment          Reason = "abandonment"
	ReasonResign               Reason = "resign"
	ReasonAgreement            Reason = "agreement"
)

// ConnID identifies one live transport connection.
type ConnID string

// Participant is a bound seat identity. ID drives reconnect-by-identity.
type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	UserID *int64 `json:"userId,omitempty"`
	Bot    bool   `json:"bot,omitempty"`
}

func botParticipant() Participant {
	return Participant{ID: "bot", Name: "Bot", Bot: true}
}

// Move is a move descriptor in coordinate form ("e2", "e4").
// Promote without Promotion asks for the queen-first fallback.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	Promote   bool   `json:"promote,omitempty"`
}

// UCI renders the move in long algebraic form, e.g. "e7e8q".
func (m Move) UCI() string {
	return strings.ToLower(strings.TrimSpace(m.From) + strings.TrimSpace(m.To) + strings.TrimSpace(m.Promotion))
}

// MoveFromUCI parses "e2e4" / "e7e8q" into a Move.
func MoveFromUCI(s string) (Move, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, false
	}
	mv := Move{From: s[0:2], To: s[2:4]}
	if len(s) == 5 {
		mv.Promotion = s[4:5]
		mv.Promote = true
	}
	return mv, true
}

// Result is the decided outcome. A nil Winner means a draw.
type Result struct {
	Winner *Seat
	Reason Reason
}

func (r Result) IsDraw() bool { return r.Winner == nil }

// Label is "white", "black" or "draw".
func (r Result) Label() string {
	if r.Winner == nil {
		return "draw"
	}
	return r.Winner.String()
}

func winResult(winner Seat, reason Reason) Result {
	w := winner
	return Result{Winner: &w, Reason: reason}
}

func drawResult(reason Reason) Result {
	return Result{Reason: reason}
}

// MoveRecord is one applied move with the clocks after it.
type MoveRecord struct {
	Ply       int           `json:"ply"`
	Seat      Seat          `json:"seat"`
	Move      Move          `json:"move"`
	Notation  string        `json:"notation"`
	FEN       string        `json:"fen"`
	WhiteLeft time.Duration `json:"whiteLeft"`
	BlackLeft time.Duration `json:"blackLeft"`
	At        time.Time     `json:"at"`
}

// Summary is what a GameRecorder receives for a finished session.
type Summary struct {
	RoomID      string        `json:"roomId"`
	Mode        Mode          `json:"mode"`
	TimeControl time.Duration `json:"timeControl"`
	White       Participant   `json:"white"`
	Black       Participant   `json:"black"`
	Winner      string        `json:"winner"`
	Reason      Reason        `json:"reason"`
	StartedAt   time.Time     `json:"startedAt"`
	EndedAt     time.Time     `json:"endedAt"`
	FinalFEN    string        `json:"finalFen"`
	Moves       []MoveRecord  `json:"moves"`
}

// Options tune room creation. Zero values fall back to manager defaults.
type Options struct {
	Mode        Mode
	TimeControl time.Duration
	// Seat pins the creator's seat; nil means random.
	Seat       *Seat
	Difficulty string
	// StartFEN starts from a custom position instead of the initial one.
	StartFEN string
}

// Criteria is what two queued participants must share to be paired.
type Criteria struct {
	TimeControl time.Duration
}

// RoomInfo is the public listing entry for spectatable rooms.
type RoomInfo struct {
	ID         string  `json:"id"`
	White      string  `json:"white"`
	Black      string  `json:"black"`
	Spectators int     `json:"spectators"`
	Mode       Mode    `json:"mode"`
	MoveCount  int     `json:"moveCount"`
	WhiteTime  float64 `json:"whiteTime"`
	BlackTime  float64 `json:"blackTime"`
}

package room

import (
	"sort"
	"time"
)

type Players struct {
	White string `json:"white"`
	Black string `json:"black"`
}

// Snapshot is the client view of a room. Clients need no rules knowledge:
// legal moves come pre-computed per origin square.
type Snapshot struct {
	Room               string              `json:"room"`
	Board              Board               `json:"board"`
	Turn               string              `json:"turn"`
	Check              bool                `json:"check"`
	Winner             string              `json:"winner,omitempty"`
	Reason             Reason              `json:"reason,omitempty"`
	IsActive           bool                `json:"isActive"`
	Phase              Phase               `json:"phase"`
	WhiteTime          float64             `json:"whiteTime"`
	BlackTime          float64             `json:"blackTime"`
	WhiteTimeFormatted string              `json:"whiteTimeFormatted"`
	BlackTimeFormatted string              `json:"blackTimeFormatted"`
	LegalMoves         map[string][]string `json:"legalMoves"`
	Players            Players             `json:"players"`
	Mode               Mode                `json:"mode"`
	MoveCount          int                 `json:"moveCount"`
	Spectators         int                 `json:"spectators"`
	Role               Role                `json:"role,omitempty"`
	Opponent           string              `json:"opponent,omitempty"`
}

// ForRole addresses the snapshot to one connection.
func (snap Snapshot) ForRole(role Role) Snapshot {
	snap.Role = role
	switch role {
	case RoleWhite:
		snap.Opponent = snap.Players.Black
	case RoleBlack:
		snap.Opponent = snap.Players.White
	default:
		snap.Opponent = ""
	}
	return snap
}

// clocksLocked reports both clocks as of now without committing the decay.
func (s *Session) clocksLocked(now time.Time) (white, black time.Duration) {
	white = s.seats[SeatA].remaining
	black = s.seats[SeatB].remaining
	if s.phase != PhaseActive || s.result != nil {
		return white, black
	}
	if s.rules.SideToMove(s.state) == SeatA {
		white = Advance(white, s.lastUpdate, true, now)
	} else {
		black = Advance(black, s.lastUpdate, true, now)
	}
	return white, black
}

func (s *Session) snapshotLocked(now time.Time) Snapshot {
	side := s.rules.SideToMove(s.state)
	running := s.phase == PhaseActive && s.result == nil
	white, black := s.clocksLocked(now)

	snap := Snapshot{
		Room:               s.id,
		Board:              s.rules.Board(s.state),
		Turn:               side.String(),
		Check:              s.rules.InCheck(s.state),
		IsActive:           running,
		Phase:              s.phase,
		WhiteTime:          white.Seconds(),
		BlackTime:          black.Seconds(),
		WhiteTimeFormatted: FormatClock(white),
		BlackTimeFormatted: FormatClock(black),
		LegalMoves:         map[string][]string{},
		Mode:               s.mode,
		MoveCount:          len(s.moves),
		Spectators:         len(s.spectators),
	}
	if p := s.seats[SeatA].player; p != nil {
		snap.Players.White = p.Name
	}
	if p := s.seats[SeatB].player; p != nil {
		snap.Players.Black = p.Name
	}
	if s.result != nil {
		snap.Winner = s.result.Label()
		snap.Reason = s.result.Reason
	}
	if running {
		snap.LegalMoves = legalMoveMap(s.rules.LegalMoves(s.state))
	}
	return snap
}

func legalMoveMap(moves []Move) map[string][]string {
	out := make(map[string][]string)
	seen := make(map[string]struct{}, len(moves))
	for _, mv := range moves {
		key := mv.From + mv.To
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out[mv.From] = append(out[mv.From], mv.To)
	}
	for from := range out {
		sort.Strings(out[from])
	}
	return out
}

func (s *Session) targetsFromLocked(from string) []string {
	if s.phase != PhaseActive || s.result != nil {
		return []string{}
	}
	targets := legalMoveMap(s.rules.LegalMoves(s.state))[from]
	if targets == nil {
		return []string{}
	}
	return targets
}

func (s *Session) infoLocked(now time.Time) RoomInfo {
	white, black := s.clocksLocked(now)
	info := RoomInfo{
		ID:         s.id,
		Spectators: len(s.spectators),
		Mode:       s.mode,
		MoveCount:  len(s.moves),
		WhiteTime:  white.Seconds(),
		BlackTime:  black.Seconds(),
	}
	if p := s.seats[SeatA].player; p != nil {
		info.White = p.Name
	}
	if p := s.seats[SeatB].player; p != nil {
		info.Black = p.Name
	}
	return info
}

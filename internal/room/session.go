package room

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type seatState struct {
	player    *Participant
	conn      ConnID
	remaining time.Duration
	grace     *graceTimer
}

type botTask struct {
	ply  int
	seat Seat
	done chan struct{}
}

// MoveOutcome is the result of a committed ApplyMove.
type MoveOutcome struct {
	Move     Move
	Notation string
	Ply      int
	Finished bool
	TimedOut bool
	Snapshot Snapshot
}

// Session is one game room. Every field below mu is guarded by it; the
// atomics mirror facts that never change back once set.
type Session struct {
	mu sync.Mutex

	id          string
	mode        Mode
	timeControl time.Duration
	difficulty  string
	// reserved sessions were created with both identities bound up front
	// and only start once both have a live connection.
	reserved bool

	rules RulesEngine
	state State

	seats      [2]seatState
	spectators map[ConnID]struct{}

	phase     Phase
	result    *Result
	moves     []MoveRecord
	drawOffer *Seat
	rematch   map[Seat]struct{}
	rematchID string
	saved     bool
	bot       *botTask

	lastUpdate time.Time
	createdAt  time.Time
	startedAt  time.Time
	endedAt    time.Time

	sup *Supervisor

	terminal atomic.Bool
	retired  atomic.Bool
}

func newSession(id string, opts Options, rules RulesEngine, sup *Supervisor, now time.Time) (*Session, error) {
	st, err := rules.NewState(opts.StartFEN)
	if err != nil {
		return nil, fmt.Errorf("%w: start position: %v", ErrInvalidArgs, err)
	}
	s := &Session{
		id:          id,
		mode:        opts.Mode,
		timeControl: opts.TimeControl,
		difficulty:  opts.Difficulty,
		rules:       rules,
		state:       st,
		spectators:  make(map[ConnID]struct{}),
		phase:       PhaseForming,
		rematch:     make(map[Seat]struct{}),
		lastUpdate:  now,
		createdAt:   now,
		sup:         sup,
	}
	for i := range s.seats {
		s.seats[i].remaining = opts.TimeControl
	}
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Mode() Mode { return s.mode }

// Terminal reports whether a result has been decided. Safe without the lock.
func (s *Session) Terminal() bool { return s.terminal.Load() }

func (s *Session) bindLocked(seat Seat, p Participant, conn ConnID) {
	bound := p
	s.seats[seat].player = &bound
	s.seats[seat].conn = conn
}

func (s *Session) bothBoundLocked() bool {
	return s.seats[SeatA].player != nil && s.seats[SeatB].player != nil
}

func (s *Session) firstEmptySeatLocked() (Seat, bool) {
	for _, seat := range []Seat{SeatA, SeatB} {
		if s.seats[seat].player == nil {
			return seat, true
		}
	}
	return 0, false
}

func (s *Session) seatOfConnLocked(conn ConnID) (Seat, bool) {
	if conn == "" {
		return 0, false
	}
	for _, seat := range []Seat{SeatA, SeatB} {
		if s.seats[seat].conn == conn {
			return seat, true
		}
	}
	return 0, false
}

// seatOfIdentityLocked finds a human seat bound to id whose connection is gone.
func (s *Session) seatOfIdentityLocked(id string) (Seat, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, false
	}
	for _, seat := range []Seat{SeatA, SeatB} {
		st := s.seats[seat]
		if st.player == nil || st.player.Bot || st.conn != "" {
			continue
		}
		if st.player.ID == id {
			return seat, true
		}
	}
	return 0, false
}

func (s *Session) roleOfLocked(conn ConnID) (Role, bool) {
	if seat, ok := s.seatOfConnLocked(conn); ok {
		return seat.Role(), true
	}
	if _, ok := s.spectators[conn]; ok {
		return RoleSpectator, true
	}
	return "", false
}

func (s *Session) isBotSeatLocked(seat Seat) bool {
	p := s.seats[seat].player
	return p != nil && p.Bot
}

func (s *Session) connCountLocked() int {
	n := len(s.spectators)
	for _, seat := range s.seats {
		if seat.conn != "" {
			n++
		}
	}
	return n
}

func (s *Session) pendingTimersLocked() int {
	n := 0
	for _, seat := range s.seats {
		if seat.grace != nil {
			n++
		}
	}
	return n
}

func (s *Session) idleLocked() bool {
	return s.connCountLocked() == 0 && s.pendingTimersLocked() == 0
}

// detachLocked removes conn from the room. The seat identity stays bound.
func (s *Session) detachLocked(conn ConnID) (seat Seat, wasSeat bool, found bool) {
	if st, ok := s.seatOfConnLocked(conn); ok {
		s.seats[st].conn = ""
		return st, true, true
	}
	if _, ok := s.spectators[conn]; ok {
		delete(s.spectators, conn)
		return 0, false, true
	}
	return 0, false, false
}

func (s *Session) activateLocked(now time.Time) {
	s.phase = PhaseActive
	s.lastUpdate = now
	s.startedAt = now
}

// maybeActivateLocked moves a forming room to Active once it can start.
func (s *Session) maybeActivateLocked(now time.Time) bool {
	if s.phase != PhaseForming || !s.bothBoundLocked() {
		return false
	}
	if s.reserved {
		for _, seat := range []Seat{SeatA, SeatB} {
			if !s.isBotSeatLocked(seat) && s.seats[seat].conn == "" {
				return false
			}
		}
	}
	s.activateLocked(now)
	return true
}

// tickLocked charges the side to move for the time since the last update and
// flags a timeout when its clock runs out.
func (s *Session) tickLocked(now time.Time) bool {
	if s.phase != PhaseActive || s.result != nil {
		return false
	}
	side := s.settleClockLocked(now)
	if s.seats[side].remaining <= 0 {
		return s.finishLocked(winResult(side.Opponent(), ReasonTimeout), now)
	}
	return false
}

func (s *Session) settleClockLocked(now time.Time) Seat {
	side := s.rules.SideToMove(s.state)
	running := s.phase == PhaseActive && s.result == nil
	s.seats[side].remaining = Advance(s.seats[side].remaining, s.lastUpdate, running, now)
	if now.After(s.lastUpdate) {
		s.lastUpdate = now
	}
	return side
}

// finishLocked records the result. It returns false if one was already set.
func (s *Session) finishLocked(res Result, now time.Time) bool {
	if s.result != nil {
		return false
	}
	r := res
	s.result = &r
	s.phase = PhaseTerminal
	s.endedAt = now
	s.drawOffer = nil
	s.terminal.Store(true)
	if s.sup != nil {
		s.sup.disarmAllLocked(s)
	}
	return true
}

// applyMoveLocked runs the move pipeline: turn check, clock, legality,
// apply, terminal detection.
func (s *Session) applyMoveLocked(seat Seat, mv Move, now time.Time) (MoveOutcome, error) {
	if s.phase != PhaseActive || s.result != nil {
		return MoveOutcome{}, ErrNotYourTurn
	}
	if s.rules.SideToMove(s.state) != seat {
		return MoveOutcome{}, ErrNotYourTurn
	}
	if s.tickLocked(now) {
		return MoveOutcome{Finished: true, TimedOut: true, Ply: len(s.moves)}, nil
	}

	resolved, ok := s.resolveMoveLocked(mv)
	if !ok {
		return MoveOutcome{}, ErrIllegalMove
	}
	next, notation, err := s.rules.Apply(s.state, resolved)
	if err != nil {
		return MoveOutcome{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	s.state = next
	s.drawOffer = nil
	s.moves = append(s.moves, MoveRecord{
		Ply:       len(s.moves) + 1,
		Seat:      seat,
		Move:      resolved,
		Notation:  notation,
		FEN:       s.rules.Serialize(next),
		WhiteLeft: s.seats[SeatA].remaining,
		BlackLeft: s.seats[SeatB].remaining,
		At:        now,
	})

	out := MoveOutcome{Move: resolved, Notation: notation, Ply: len(s.moves)}
	if t := s.rules.TerminalStatus(next); t.Kind != TerminalNone {
		s.finishLocked(resultFromTerminal(t), now)
		out.Finished = true
	}
	return out, nil
}

var promotionOrder = []string{"q", "r", "b", "n"}

// resolveMoveLocked returns the legal form of mv. A move flagged as a
// promotion without a piece falls back to the strongest legal promotion.
func (s *Session) resolveMoveLocked(mv Move) (Move, bool) {
	mv.From = strings.ToLower(strings.TrimSpace(mv.From))
	mv.To = strings.ToLower(strings.TrimSpace(mv.To))
	mv.Promotion = strings.ToLower(strings.TrimSpace(mv.Promotion))
	if mv.Promotion != "" {
		mv.Promote = true
	}
	if s.rules.IsLegal(s.state, mv) {
		return mv, true
	}
	if !mv.Promote || mv.Promotion != "" {
		return Move{}, false
	}
	for _, piece := range promotionOrder {
		cand := mv
		cand.Promotion = piece
		if s.rules.IsLegal(s.state, cand) {
			return cand, true
		}
	}
	return Move{}, false
}

func resultFromTerminal(t Terminal) Result {
	switch t.Kind {
	case TerminalCheckmate:
		return winResult(t.Winner, ReasonCheckmate)
	case TerminalStalemate:
		return drawResult(ReasonStalemate)
	case TerminalInsufficientMaterial:
		return drawResult(ReasonInsufficientMaterial)
	case TerminalRepetition:
		return drawResult(ReasonRepetition)
	default:
		return drawResult(ReasonFiftyMoveRule)
	}
}

// claimSummaryLocked hands out the summary once per finished session.
func (s *Session) claimSummaryLocked() (Summary, bool) {
	if s.result == nil || s.saved {
		return Summary{}, false
	}
	s.saved = true
	return s.summaryLocked(), true
}

func (s *Session) summaryLocked() Summary {
	sum := Summary{
		RoomID:      s.id,
		Mode:        s.mode,
		TimeControl: s.timeControl,
		StartedAt:   s.startedAt,
		EndedAt:     s.endedAt,
		FinalFEN:    s.rules.Serialize(s.state),
		Moves:       append([]MoveRecord(nil), s.moves...),
	}
	if p := s.seats[SeatA].player; p != nil {
		sum.White = *p
	}
	if p := s.seats[SeatB].player; p != nil {
		sum.Black = *p
	}
	if s.result != nil {
		sum.Winner = s.result.Label()
		sum.Reason = s.result.Reason
	}
	if sum.StartedAt.IsZero() {
		sum.StartedAt = s.createdAt
	}
	return sum
}

// fanoutLocked builds one event per attached connection.
func (s *Session) fanoutLocked(except ConnID, build func(Role) Event) []delivery {
	out := make([]delivery, 0, s.connCountLocked())
	for _, seat := range []Seat{SeatA, SeatB} {
		c := s.seats[seat].conn
		if c == "" || c == except {
			continue
		}
		out = append(out, delivery{conn: c, ev: build(seat.Role())})
	}
	for c := range s.spectators {
		if c == except {
			continue
		}
		out = append(out, delivery{conn: c, ev: build(RoleSpectator)})
	}
	return out
}

func (s *Session) broadcastLocked(except ConnID, ev Event) []delivery {
	return s.fanoutLocked(except, func(Role) Event { return ev })
}

func (s *Session) gameUpdateLocked(now time.Time, last *Move, notation string) []delivery {
	snap := s.snapshotLocked(now)
	return s.fanoutLocked("", func(role Role) Event {
		return Event{Type: EventGameUpdate, Payload: GameUpdatePayload{
			Snapshot: snap.ForRole(role),
			LastMove: last,
			Notation: notation,
		}}
	})
}

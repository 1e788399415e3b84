package room

import (
	"context"
	"time"
)

// State is the rules engine's opaque game state. Implementations must treat
// it as immutable: Apply returns a new State and leaves its input untouched.
type State any

// Board is an 8x8 symbol matrix, rank 8 first. "." marks an empty square.
type Board [8][8]string

type TerminalKind int

const (
	TerminalNone TerminalKind = iota
	TerminalCheckmate
	TerminalStalemate
	TerminalInsufficientMaterial
	TerminalRepetition
	TerminalFiftyMove
)

// Terminal describes a finished position. Winner is only meaningful for checkmate.
type Terminal struct {
	Kind   TerminalKind
	Winner Seat
}

// RulesEngine is the legality and termination oracle.
type RulesEngine interface {
	NewState(fen string) (State, error)
	LegalMoves(st State) []Move
	IsLegal(st State, mv Move) bool
	Apply(st State, mv Move) (State, string, error)
	TerminalStatus(st State) Terminal
	SideToMove(st State) Seat
	InCheck(st State) bool
	Serialize(st State) string
	Board(st State) Board
}

// Effort bounds one advisor search.
type Effort struct {
	Preset   string
	MoveTime time.Duration
}

// Advisor suggests a move for a serialized position.
type Advisor interface {
	SuggestMove(ctx context.Context, fen string, effort Effort) (Move, error)
}

// GameRecorder persists a finished session. The manager calls it at most once
// per session and never while holding a session lock.
type GameRecorder interface {
	RecordCompletedGame(ctx context.Context, summary Summary) error
}

// Broadcaster delivers an event to one live connection.
type Broadcaster interface {
	Send(conn ConnID, ev Event)
}

type nopRecorder struct{}

func (nopRecorder) RecordCompletedGame(context.Context, Summary) error { return nil }

type nopBroadcaster struct{}

func (nopBroadcaster) Send(ConnID, Event) {}

// Package chessrules implements room.RulesEngine on top of corentings/chess.
package chessrules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/Cheese-Arena/internal/room"
)

var errForeignState = errors.New("chessrules: state was not produced by this engine")

// position is the immutable State handed to the room package. Every Apply
// works on a clone, so a position is never mutated once published.
type position struct {
	game *nchess.Game
	fen  string
}

// Engine is stateless and safe for concurrent use.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

var _ room.RulesEngine = (*Engine)(nil)

func (e *Engine) NewState(fen string) (room.State, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" {
		g := nchess.NewGame()
		return &position{game: g, fen: g.FEN()}, nil
	}
	opt, err := nchess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen: %w", err)
	}
	g := nchess.NewGame(opt)
	return &position{game: g, fen: g.FEN()}, nil
}

func unwrap(st room.State) *position {
	p, ok := st.(*position)
	if !ok || p == nil || p.game == nil {
		panic(errForeignState)
	}
	return p
}

func (e *Engine) LegalMoves(st room.State) []room.Move {
	p := unwrap(st)
	if p.game.Outcome() != nchess.NoOutcome {
		return nil
	}
	valid := p.game.ValidMoves()
	out := make([]room.Move, 0, len(valid))
	for _, mv := range valid {
		if parsed, ok := room.MoveFromUCI(mv.String()); ok {
			out = append(out, parsed)
		}
	}
	return out
}

func (e *Engine) IsLegal(st room.State, mv room.Move) bool {
	p := unwrap(st)
	if p.game.Outcome() != nchess.NoOutcome {
		return false
	}
	want := mv.UCI()
	for _, cand := range p.game.ValidMoves() {
		if cand.String() == want {
			return true
		}
	}
	return false
}

// Apply plays mv on a copy of st and returns the copy with the move in SAN.
// Threefold repetition and the fifty-move rule are claimed automatically.
func (e *Engine) Apply(st room.State, mv room.Move) (room.State, string, error) {
	p := unwrap(st)
	if !e.IsLegal(st, mv) {
		return nil, "", fmt.Errorf("%s is not legal in %s", mv.UCI(), p.fen)
	}
	next := p.game.Clone()
	pos := next.Position()
	decoded, err := nchess.UCINotation{}.Decode(pos, mv.UCI())
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", mv.UCI(), err)
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, decoded)
	if err := next.Move(decoded, nil); err != nil {
		return nil, "", fmt.Errorf("apply %s: %w", mv.UCI(), err)
	}
	if next.Outcome() == nchess.NoOutcome {
		claimAutomaticDraw(next)
	}
	return &position{game: next, fen: next.FEN()}, san, nil
}

func claimAutomaticDraw(g *nchess.Game) {
	for _, method := range g.EligibleDraws() {
		switch method {
		case nchess.ThreefoldRepetition, nchess.FiftyMoveRule:
			if err := g.Draw(method); err == nil {
				return
			}
		}
	}
}

func (e *Engine) TerminalStatus(st room.State) room.Terminal {
	p := unwrap(st)
	switch p.game.Outcome() {
	case nchess.NoOutcome:
		return room.Terminal{Kind: room.TerminalNone}
	case nchess.WhiteWon:
		return room.Terminal{Kind: room.TerminalCheckmate, Winner: room.SeatA}
	case nchess.BlackWon:
		return room.Terminal{Kind: room.TerminalCheckmate, Winner: room.SeatB}
	}
	switch p.game.Method() {
	case nchess.Stalemate:
		return room.Terminal{Kind: room.TerminalStalemate}
	case nchess.InsufficientMaterial:
		return room.Terminal{Kind: room.TerminalInsufficientMaterial}
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return room.Terminal{Kind: room.TerminalRepetition}
	default:
		return room.Terminal{Kind: room.TerminalFiftyMove}
	}
}

func (e *Engine) SideToMove(st room.State) room.Seat {
	if unwrap(st).game.Position().Turn() == nchess.White {
		return room.SeatA
	}
	return room.SeatB
}

// InCheck reports whether the side to move has its king attacked.
func (e *Engine) InCheck(st room.State) bool {
	white := e.SideToMove(st) == room.SeatA
	king := "k"
	if white {
		king = "K"
	}
	b := e.Board(st)
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			if b[row][col] == king {
				return attacked(b, row, col, !white)
			}
		}
	}
	return false
}

var (
	knightSteps  = [8][2]int{{-2, -1}, {-2, 1}, {-1, -2}, {-1, 2}, {1, -2}, {1, 2}, {2, -1}, {2, 1}}
	kingSteps    = [8][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
	straightRays = [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	diagonalRays = [4][2]int{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}}
)

func onBoard(row, col int) bool { return row >= 0 && row < 8 && col >= 0 && col < 8 }

// attacked reports whether a piece of the given colour attacks (row, col).
// Row 0 is rank 8.
func attacked(b room.Board, row, col int, byWhite bool) bool {
	own := func(sym string) string {
		if byWhite {
			return strings.ToUpper(sym)
		}
		return sym
	}
	at := func(r, c int, sym string) bool {
		return onBoard(r, c) && b[r][c] == own(sym)
	}

	// a white pawn attacks toward rank 8, so it sits one row below the target
	pawnRow := row - 1
	if byWhite {
		pawnRow = row + 1
	}
	if at(pawnRow, col-1, "p") || at(pawnRow, col+1, "p") {
		return true
	}
	for _, d := range knightSteps {
		if at(row+d[0], col+d[1], "n") {
			return true
		}
	}
	for _, d := range kingSteps {
		if at(row+d[0], col+d[1], "k") {
			return true
		}
	}
	slide := func(rays [4][2]int, pieces ...string) bool {
		for _, d := range rays {
			r, c := row+d[0], col+d[1]
			for onBoard(r, c) && b[r][c] == "." {
				r, c = r+d[0], c+d[1]
			}
			if !onBoard(r, c) {
				continue
			}
			for _, p := range pieces {
				if b[r][c] == own(p) {
					return true
				}
			}
		}
		return false
	}
	return slide(straightRays, "r", "q") || slide(diagonalRays, "b", "q")
}

func (e *Engine) Serialize(st room.State) string { return unwrap(st).fen }

func (e *Engine) Board(st room.State) room.Board {
	var b room.Board
	board := unwrap(st).game.Position().Board()
	for row := 0; row < 8; row++ {
		rank := nchess.Rank8 - nchess.Rank(row)
		for col := 0; col < 8; col++ {
			file := nchess.FileA + nchess.File(col)
			b[row][col] = symbol(board.Piece(nchess.NewSquare(file, rank)))
		}
	}
	return b
}

// symbol renders a piece in FEN letters, uppercase for white.
func symbol(pc nchess.Piece) string {
	if pc == nchess.NoPiece {
		return "."
	}
	var s string
	switch pc.Type() {
	case nchess.King:
		s = "k"
	case nchess.Queen:
		s = "q"
	case nchess.Rook:
		s = "r"
	case nchess.Bishop:
		s = "b"
	case nchess.Knight:
		s = "n"
	case nchess.Pawn:
		s = "p"
	default:
		return "."
	}
	if pc.Color() == nchess.White {
		return strings.ToUpper(s)
	}
	return s
}

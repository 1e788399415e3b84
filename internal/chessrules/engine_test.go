package chessrules

import (
	"testing"

	"github.com/park285/Cheese-Arena/internal/room"
)

func play(t *testing.T, e *Engine, st room.State, moves ...string) room.State {
	t.Helper()
	for _, raw := range moves {
		mv, ok := room.MoveFromUCI(raw)
		if !ok {
			t.Fatalf("bad uci %q", raw)
		}
		next, _, err := e.Apply(st, mv)
		if err != nil {
			t.Fatalf("Apply %s: %v", raw, err)
		}
		st = next
	}
	return st
}

func TestApply_LeavesInputUntouched(t *testing.T) {
	e := NewEngine()
	st, err := e.NewState("")
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	before := e.Serialize(st)
	next, san, err := e.Apply(st, room.Move{From: "e2", To: "e4"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if san != "e4" {
		t.Fatalf("expected SAN e4, got %q", san)
	}
	if e.Serialize(st) != before {
		t.Fatalf("input state changed: %s", e.Serialize(st))
	}
	if e.SideToMove(st) != room.SeatA || e.SideToMove(next) != room.SeatB {
		t.Fatalf("unexpected side to move")
	}
}

func TestIsLegal_RejectsIllegal(t *testing.T) {
	e := NewEngine()
	st, _ := e.NewState("")
	if e.IsLegal(st, room.Move{From: "e2", To: "e5"}) {
		t.Fatalf("e2e5 must be illegal")
	}
	if _, _, err := e.Apply(st, room.Move{From: "e7", To: "e5"}); err == nil {
		t.Fatalf("black move on white's turn must fail")
	}
	if got := len(e.LegalMoves(st)); got != 20 {
		t.Fatalf("expected 20 opening moves, got %d", got)
	}
}

func TestTerminalStatus_Checkmate(t *testing.T) {
	e := NewEngine()
	st, _ := e.NewState("")
	st = play(t, e, st, "f2f3", "e7e5", "g2g4", "d8h4")
	term := e.TerminalStatus(st)
	if term.Kind != room.TerminalCheckmate || term.Winner != room.SeatB {
		t.Fatalf("expected black checkmate, got %+v", term)
	}
	if len(e.LegalMoves(st)) != 0 {
		t.Fatalf("no legal moves expected after mate")
	}
}

func TestTerminalStatus_Stalemate(t *testing.T) {
	e := NewEngine()
	st, err := e.NewState("7k/8/6K1/5Q2/8/8/8/8 w - - 0 1")
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	st = play(t, e, st, "f5f7")
	if term := e.TerminalStatus(st); term.Kind != room.TerminalStalemate {
		t.Fatalf("expected stalemate, got %+v", term)
	}
	if e.InCheck(st) {
		t.Fatalf("stalemate must not be check")
	}
}

func TestApply_Promotion(t *testing.T) {
	e := NewEngine()
	st, err := e.NewState("8/P7/8/8/8/8/2k5/4K3 w - - 0 1")
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	if e.IsLegal(st, room.Move{From: "a7", To: "a8"}) {
		t.Fatalf("promotion without a piece must not be legal")
	}
	next, san, err := e.Apply(st, room.Move{From: "a7", To: "a8", Promotion: "q"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if san != "a8=Q" {
		t.Fatalf("unexpected SAN %q", san)
	}
	if got := e.Board(next)[0][0]; got != "Q" {
		t.Fatalf("expected white queen on a8, got %q", got)
	}
}

func TestNewState_BadFEN(t *testing.T) {
	if _, err := NewEngine().NewState("not a fen"); err == nil {
		t.Fatalf("expected error for malformed fen")
	}
}

func TestBoard_InitialLayout(t *testing.T) {
	e := NewEngine()
	st, _ := e.NewState("")
	b := e.Board(st)
	if b[0][4] != "k" || b[7][4] != "K" || b[6][0] != "P" || b[3][3] != "." {
		t.Fatalf("unexpected board: %v", b)
	}
}

func TestInCheck_FromPosition(t *testing.T) {
	e := NewEngine()
	cases := []struct {
		name string
		fen  string
		want bool
	}{
		{"start", "", false},
		{"rook on rank", "4k3/8/8/8/8/8/8/4K2r w - - 0 1", true},
		{"rook blocked", "4k3/8/8/8/8/8/8/4K1Nr w - - 0 1", false},
		{"knight", "7k/8/8/8/8/3n4/8/4K3 w - - 0 1", true},
		{"pawn", "7k/8/8/8/8/3p4/4K3/8 w - - 0 1", true},
		{"pawn behind", "7k/8/8/8/8/8/3pK3/8 w - - 0 1", false},
		{"bishop on black king", "4k3/8/8/1B6/8/8/8/4K3 b - - 0 1", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, err := e.NewState(tc.fen)
			if err != nil {
				t.Fatalf("NewState: %v", err)
			}
			if got := e.InCheck(st); got != tc.want {
				t.Fatalf("InCheck = %v, want %v", got, tc.want)
			}
		})
	}
}

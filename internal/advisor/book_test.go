package advisor

import (
	"bytes"
	"context"
	"encoding/binary"
	"math/rand"
	"testing"

	chesslib "github.com/corentings/chess/v2"

	"github.com/park285/Cheese-Arena/internal/room"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// polyglotMove packs from/to squares the way polyglot books store them.
func polyglotMove(fromFile, fromRank, toFile, toRank uint16) uint16 {
	return toFile | toRank<<3 | fromFile<<6 | fromRank<<9
}

func buildBook(t *testing.T, fen string, moves map[uint16]uint16) *Book {
	t.Helper()
	hashStr, err := chesslib.NewZobristHasher().HashPosition(fen)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	key := chesslib.ZobristHashToUint64(hashStr)
	var buf bytes.Buffer
	for mv, weight := range moves {
		entry := make([]byte, 16)
		binary.BigEndian.PutUint64(entry[0:8], key)
		binary.BigEndian.PutUint16(entry[8:10], mv)
		binary.BigEndian.PutUint16(entry[10:12], weight)
		buf.Write(entry)
	}
	b, err := ReadBook(&buf)
	if err != nil {
		t.Fatalf("ReadBook: %v", err)
	}
	return b
}

type stubAdvisor struct {
	calls int
	move  room.Move
}

func (s *stubAdvisor) SuggestMove(context.Context, string, room.Effort) (room.Move, error) {
	s.calls++
	return s.move, nil
}

func TestBook_Moves(t *testing.T) {
	b := buildBook(t, startFEN, map[uint16]uint16{
		polyglotMove(4, 1, 4, 3): 10,
		polyglotMove(3, 1, 3, 3): 5,
	})
	moves, err := b.Moves(startFEN)
	if err != nil {
		t.Fatalf("Moves: %v", err)
	}
	got := map[string]uint16{}
	for _, m := range moves {
		got[m.UCI] = m.Weight
	}
	if len(got) != 2 || got["e2e4"] != 10 || got["d2d4"] != 5 {
		t.Fatalf("unexpected book moves %+v", moves)
	}

	other, err := b.Moves("8/8/8/8/8/8/8/K6k w - - 0 1")
	if err != nil || len(other) != 0 {
		t.Fatalf("unrelated position should be out of book: %+v %v", other, err)
	}
}

func TestBooked_FallsThrough(t *testing.T) {
	b := buildBook(t, startFEN, map[uint16]uint16{polyglotMove(4, 1, 4, 3): 1})
	next := &stubAdvisor{move: room.Move{From: "g1", To: "f3"}}
	adv := NewBooked(b, next, 0, nil)

	mv, err := adv.SuggestMove(context.Background(), startFEN, room.Effort{})
	if err != nil || mv.UCI() != "e2e4" || next.calls != 0 {
		t.Fatalf("book move expected: %v %v calls=%d", mv, err, next.calls)
	}

	deep := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 20"
	mv, err = adv.SuggestMove(context.Background(), deep, room.Effort{})
	if err != nil || mv.UCI() != "g1f3" || next.calls != 1 {
		t.Fatalf("past the book depth the next advisor answers: %v %v", mv, err)
	}

	bare := NewBooked(b, nil, 0, nil)
	if _, err := bare.SuggestMove(context.Background(), deep, room.Effort{}); err == nil {
		t.Fatalf("expected error without a fallback advisor")
	}
}

func TestPickWeighted(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	moves := []BookMove{{UCI: "e2e4", Weight: 0}, {UCI: "d2d4", Weight: 3}}
	for i := 0; i < 50; i++ {
		if got := pickWeighted(moves, r); got.UCI != "d2d4" {
			t.Fatalf("zero weight entry picked")
		}
	}
	zero := []BookMove{{UCI: "e2e4"}, {UCI: "d2d4"}}
	if got := pickWeighted(zero, r); got.UCI == "" {
		t.Fatalf("all-zero weights still pick a move")
	}
}

func TestPlyOf(t *testing.T) {
	cases := map[string]int{
		startFEN: 0,
		"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1": 1,
		"8/8/8/8/8/8/8/K6k w - - 0 20":                                38,
		"garbage": 0,
	}
	for fen, want := range cases {
		if got := plyOf(fen); got != want {
			t.Fatalf("plyOf(%q) = %d, want %d", fen, got, want)
		}
	}
}

func TestLoadBook_Missing(t *testing.T) {
	if _, err := LoadBook(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := LoadBook("/nonexistent/book.bin"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

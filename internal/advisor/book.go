package advisor

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	chesslib "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/park285/Cheese-Arena/internal/room"
)

// DefaultBookPlies bounds how deep into the game the book is consulted.
const DefaultBookPlies = 16

// Book answers from a polyglot opening book.
type Book struct {
	book *chesslib.PolyglotBook
}

func LoadBook(path string) (*Book, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("polyglot book path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open polyglot book %q: %w", path, err)
	}
	defer file.Close()
	return ReadBook(file)
}

func ReadBook(r io.Reader) (*Book, error) {
	b, err := chesslib.LoadFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book: %w", err)
	}
	return &Book{book: b}, nil
}

// BookMove is one legal book continuation.
type BookMove struct {
	UCI    string
	Weight uint16
}

// Moves lists the book moves for fen that are legal there.
func (b *Book) Moves(fen string) ([]BookMove, error) {
	opt, err := chesslib.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	game := chesslib.NewGame(opt)

	hashStr, err := chesslib.NewZobristHasher().HashPosition(game.FEN())
	if err != nil {
		return nil, fmt.Errorf("compute polyglot hash: %w", err)
	}
	entries := b.book.FindMoves(chesslib.ZobristHashToUint64(hashStr))
	if len(entries) == 0 {
		return nil, nil
	}

	legal := make(map[string]struct{})
	for _, mv := range game.ValidMoves() {
		legal[mv.String()] = struct{}{}
	}
	out := make([]BookMove, 0, len(entries))
	for _, e := range entries {
		decoded := chesslib.DecodeMove(e.Move).ToMove()
		uci := decoded.String()
		if _, ok := legal[uci]; !ok {
			// polyglot writes castling as king-takes-rook
			uci = castleAlias(uci)
			if _, ok := legal[uci]; !ok {
				continue
			}
		}
		out = append(out, BookMove{UCI: uci, Weight: e.Weight})
	}
	return out, nil
}

func castleAlias(uci string) string {
	switch uci {
	case "e1h1":
		return "e1g1"
	case "e1a1":
		return "e1c1"
	case "e8h8":
		return "e8g8"
	case "e8a8":
		return "e8c8"
	}
	return uci
}

// pickWeighted draws a book move in proportion to its weight. Zero-weight
// entries are only picked when every entry is zero.
func pickWeighted(moves []BookMove, r *rand.Rand) BookMove {
	total := 0
	for _, m := range moves {
		total += int(m.Weight)
	}
	if total == 0 {
		return moves[r.Intn(len(moves))]
	}
	roll := r.Intn(total)
	for _, m := range moves {
		roll -= int(m.Weight)
		if roll < 0 {
			return m
		}
	}
	return moves[len(moves)-1]
}

// plyOf derives the half-move count from a FEN's side-to-move and fullmove
// fields.
func plyOf(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) < 6 {
		return 0
	}
	full, err := strconv.Atoi(fields[5])
	if err != nil || full < 1 {
		return 0
	}
	ply := (full - 1) * 2
	if fields[1] == "b" {
		ply++
	}
	return ply
}

// Booked plays from an opening book while the game is young and defers to
// next afterwards or when the book has nothing.
type Booked struct {
	book     *Book
	next     room.Advisor
	maxPlies int
	logger   *zap.Logger

	randMu sync.Mutex
	rand   *rand.Rand
}

var _ room.Advisor = (*Booked)(nil)

func NewBooked(book *Book, next room.Advisor, maxPlies int, logger *zap.Logger) *Booked {
	if maxPlies <= 0 {
		maxPlies = DefaultBookPlies
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Booked{
		book:     book,
		next:     next,
		maxPlies: maxPlies,
		logger:   logger,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *Booked) SuggestMove(ctx context.Context, fen string, effort room.Effort) (room.Move, error) {
	if plyOf(fen) < b.maxPlies {
		moves, err := b.book.Moves(fen)
		if err != nil {
			b.logger.Debug("book_lookup_failed", zap.Error(err))
		}
		if len(moves) > 0 {
			b.randMu.Lock()
			pick := pickWeighted(moves, b.rand)
			b.randMu.Unlock()
			if mv, ok := room.MoveFromUCI(pick.UCI); ok {
				b.logger.Debug("book_move", zap.String("move", pick.UCI), zap.Uint16("weight", pick.Weight), zap.Int("candidates", len(moves)))
				return mv, nil
			}
		}
	}
	if b.next == nil {
		return room.Move{}, fmt.Errorf("position out of book")
	}
	return b.next.SuggestMove(ctx, fen, effort)
}

package render

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/park285/Cheese-Arena/internal/room"
)

func startBoard() room.Board {
	var b room.Board
	back := []string{"r", "n", "b", "q", "k", "b", "n", "r"}
	for i := 0; i < 8; i++ {
		b[0][i] = back[i]
		b[1][i] = "p"
		for r := 2; r < 6; r++ {
			b[r][i] = "."
		}
		b[6][i] = "P"
		b[7][i] = string(back[i][0] - 'a' + 'A')
	}
	return b
}

func TestPNG_Decodes(t *testing.T) {
	out, err := PNG(context.Background(), startBoard(), Options{Header: "Alice vs Bob", LastMove: &room.Move{From: "e2", To: "e4"}})
	if err != nil {
		t.Fatalf("PNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := img.Bounds().Dx(); got != boardSize+margin*2 {
		t.Fatalf("unexpected width %d", got)
	}
}

func TestPNG_FlipDiffers(t *testing.T) {
	b := startBoard()
	white, err := PNG(context.Background(), b, Options{})
	if err != nil {
		t.Fatalf("PNG: %v", err)
	}
	black, err := PNG(context.Background(), b, Options{Flip: true})
	if err != nil {
		t.Fatalf("PNG flipped: %v", err)
	}
	if bytes.Equal(white, black) {
		t.Fatalf("expected different images for flipped viewpoints")
	}
}

func TestPNG_RejectsUnknownSymbol(t *testing.T) {
	b := startBoard()
	b[4][4] = "x"
	if _, err := PNG(context.Background(), b, Options{}); err == nil {
		t.Fatalf("expected error for unknown symbol")
	}
}

func TestPNG_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := PNG(ctx, startBoard(), Options{}); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestSquareRect(t *testing.T) {
	origin := startOrigin()
	r, ok := squareRect("a8", origin, false)
	if !ok || r.Min != origin {
		t.Fatalf("a8 should sit at the origin, got %v ok=%v", r, ok)
	}
	r, ok = squareRect("h1", origin, true)
	if !ok || r.Min != origin {
		t.Fatalf("h1 should sit at the origin when flipped, got %v", r)
	}
	if _, ok := squareRect("z9", origin, false); ok {
		t.Fatalf("invalid square accepted")
	}
}

func startOrigin() image.Point { return image.Point{X: margin, Y: margin + bandHeight} }

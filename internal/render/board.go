// Package render draws a room board as a PNG for spectators and previews.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/park285/Cheese-Arena/internal/room"
)

type Options struct {
	// Flip draws the board from black's side.
	Flip     bool
	LastMove *room.Move
	Header   string
	Footer   string
}

const (
	squareSize = 64
	boardSize  = squareSize * 8
	margin     = 28
	bandHeight = 30
)

var (
	lightSquare    = color.RGBA{233, 207, 163, 255}
	darkSquare     = color.RGBA{187, 136, 96, 255}
	backgroundFill = color.RGBA{28, 31, 46, 255}
	lastMoveFill   = color.NRGBA{R: 255, G: 228, B: 120, A: 120}
	labelColor     = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	headerColor    = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
)

// PNG renders board, rank 8 first, into PNG bytes.
func PNG(ctx context.Context, board room.Board, opts Options) ([]byte, error) {
	width := boardSize + margin*2
	height := boardSize + margin*2 + bandHeight*2
	origin := image.Point{X: margin, Y: margin + bandHeight}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundFill), image.Point{}, imagedraw.Src)

	drawSquares(img, origin)
	if opts.LastMove != nil {
		for _, sq := range []string{opts.LastMove.From, opts.LastMove.To} {
			if r, ok := squareRect(sq, origin, opts.Flip); ok {
				imagedraw.Draw(img, r, image.NewUniform(lastMoveFill), image.Point{}, imagedraw.Over)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			sym := board[row][col]
			if sym == "" || sym == "." {
				continue
			}
			piece, err := pieceImage(sym, squareSize)
			if err != nil {
				return nil, err
			}
			r, c := row, col
			if opts.Flip {
				r, c = 7-row, 7-col
			}
			x := origin.X + c*squareSize
			y := origin.Y + r*squareSize
			imagedraw.Draw(img, image.Rect(x, y, x+squareSize, y+squareSize), piece, image.Point{}, imagedraw.Over)
		}
	}

	drawCoordinates(img, origin, opts.Flip)
	drawBand(img, opts.Header, margin+bandHeight/2)
	drawBand(img, opts.Footer, height-margin-bandHeight/2)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawSquares(dst imagedraw.Image, origin image.Point) {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			clr := lightSquare
			if (row+col)%2 == 1 {
				clr = darkSquare
			}
			x := origin.X + col*squareSize
			y := origin.Y + row*squareSize
			imagedraw.Draw(dst, image.Rect(x, y, x+squareSize, y+squareSize), image.NewUniform(clr), image.Point{}, imagedraw.Src)
		}
	}
}

// squareRect maps an algebraic square ("e4") to its pixel rectangle.
func squareRect(sq string, origin image.Point, flip bool) (image.Rectangle, bool) {
	sq = strings.ToLower(strings.TrimSpace(sq))
	if len(sq) != 2 || sq[0] < 'a' || sq[0] > 'h' || sq[1] < '1' || sq[1] > '8' {
		return image.Rectangle{}, false
	}
	col := int(sq[0] - 'a')
	row := 7 - int(sq[1]-'1')
	if flip {
		row, col = 7-row, 7-col
	}
	x := origin.X + col*squareSize
	y := origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize), true
}

func drawCoordinates(dst imagedraw.Image, origin image.Point, flip bool) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(labelColor), Face: basicfont.Face7x13}
	ascent := basicfont.Face7x13.Metrics().Ascent.Ceil()
	for i := 0; i < 8; i++ {
		file := string(rune('a' + i))
		rank := string(rune('8' - i))
		if flip {
			file = string(rune('h' - i))
			rank = string(rune('1' + i))
		}
		center := origin.X + i*squareSize + squareSize/2
		drawCentered(d, file, center, origin.Y+boardSize+ascent+4)
		drawCentered(d, rank, origin.X-margin/2, origin.Y+i*squareSize+squareSize/2+ascent/2)
	}
}

func drawBand(dst imagedraw.Image, text string, centerY int) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(headerColor), Face: basicfont.Face7x13}
	ascent := basicfont.Face7x13.Metrics().Ascent.Ceil()
	drawCentered(d, truncate(d, text, boardSize), dst.Bounds().Dx()/2, centerY+ascent/2)
}

func drawCentered(d *font.Drawer, text string, centerX, baseline int) {
	width := d.MeasureString(text).Round()
	d.Dot = fixed.P(centerX-width/2, baseline)
	d.DrawString(text)
}

func truncate(d *font.Drawer, text string, maxWidth int) string {
	if d.MeasureString(text).Round() <= maxWidth {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		if c := string(runes) + "..."; d.MeasureString(c).Round() <= maxWidth {
			return c
		}
	}
	return ""
}

package render

import (
	"bytes"
	"embed"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

//go:embed assets/pieces/*.svg
var pieceFiles embed.FS

type pieceKey struct {
	symbol string
	size   int
}

var (
	pieceCache   = map[pieceKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

// pieceImage rasterises the FEN symbol ("K", "p", ...) at size pixels.
func pieceImage(symbol string, size int) (image.Image, error) {
	key := pieceKey{symbol: symbol, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	name, white, err := pieceAsset(symbol)
	if err != nil {
		return nil, err
	}
	data, err := pieceFiles.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read piece asset %s: %w", name, err)
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(colorize(data, white)))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg %s: %w", name, err)
	}
	if icon.ViewBox.W <= 0 {
		icon.ViewBox.W = float64(size)
	}
	if icon.ViewBox.H <= 0 {
		icon.ViewBox.H = float64(size)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()
	return img, nil
}

func pieceAsset(symbol string) (name string, white bool, err error) {
	if len(symbol) != 1 || !strings.Contains("KQRBNPkqrbnp", symbol) {
		return "", false, fmt.Errorf("unknown piece symbol %q", symbol)
	}
	upper := strings.ToUpper(symbol)
	return "assets/pieces/" + upper + ".svg", symbol == upper, nil
}

// colorize fills the shared piece outline for one side.
func colorize(svg []byte, white bool) []byte {
	fill, stroke := "#1f1f24", "#e8e8ec"
	if white {
		fill, stroke = "#fbfbf6", "#202024"
	}
	out := bytes.ReplaceAll(svg, []byte("#FILL"), []byte(fill))
	return bytes.ReplaceAll(out, []byte("#STROKE"), []byte(stroke))
}

package advisor

import (
	"errors"
	"math/rand"

	"github.com/park285/Cheese-Arena/internal/advisor/uci"
)

var errNoLines = errors.New("advisor: engine reported no lines")

// choose picks one engine line by the preset's weights. Lines beyond the
// weighted prefix are never picked.
func choose(p Preset, lines []uci.Line, r *rand.Rand) (uci.Line, error) {
	if len(lines) == 0 {
		return uci.Line{}, errNoLines
	}
	n := min(len(p.Weights), len(lines))
	total := 0.0
	for i := 0; i < n; i++ {
		total += p.Weights[i]
	}
	if total <= 0 {
		return lines[0], nil
	}
	roll := r.Float64() * total
	for i := 0; i < n; i++ {
		roll -= p.Weights[i]
		if roll <= 0 {
			return jitter(lines[i], p.EvalNoise, r), nil
		}
	}
	return jitter(lines[n-1], p.EvalNoise, r), nil
}

// jitter shifts the evaluation by up to noise centipawns either way.
func jitter(l uci.Line, noise int, r *rand.Rand) uci.Line {
	if noise <= 0 {
		return l
	}
	l.EvalCP += r.Intn(2*noise+1) - noise
	return l
}

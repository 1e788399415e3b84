// Package advisor turns a UCI engine into a room.Advisor with
// difficulty-scaled, deliberately imperfect play.
package advisor

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-Arena/internal/advisor/uci"
)

// Preset is one difficulty level: engine strength plus how loosely the
// final move is picked among the engine's top lines.
type Preset struct {
	Name       string
	SkillLevel int
	Threads    int
	HashMB     int
	MoveTime   time.Duration
	Depth      int
	Nodes      int
	MultiPV    int
	Elo        int
	// Weights apply to the first len(Weights) engine lines.
	Weights   []float64
	EvalNoise int
}

const (
	engineThreads    = 2
	topLevelThreads  = 6
	DefaultPresetKey = "level3"
)

var presets = map[string]Preset{
	"level1": {SkillLevel: 0, Threads: engineThreads, HashMB: 16, MoveTime: 20 * time.Millisecond, Depth: 5, MultiPV: 5, Elo: 600, Weights: []float64{0.5, 0.3, 0.2}, EvalNoise: 80},
	"level2": {SkillLevel: 0, Threads: engineThreads, HashMB: 16, MoveTime: 60 * time.Millisecond, Depth: 6, MultiPV: 5, Elo: 700, Weights: []float64{0.6, 0.3, 0.1}, EvalNoise: 60},
	"level3": {SkillLevel: 1, Threads: engineThreads, HashMB: 24, MoveTime: 80 * time.Millisecond, Depth: 8, MultiPV: 5, Elo: 800, Weights: []float64{0.7, 0.2, 0.1}, EvalNoise: 45},
	"level4": {SkillLevel: 3, Threads: engineThreads, HashMB: 32, MoveTime: 140 * time.Millisecond, Depth: 10, MultiPV: 5, Elo: 1000, Weights: []float64{0.65, 0.25, 0.1}, EvalNoise: 30},
	"level5": {SkillLevel: 7, Threads: engineThreads, HashMB: 48, MoveTime: 200 * time.Millisecond, Depth: 12, MultiPV: 5, Elo: 1200, Weights: []float64{0.7, 0.2, 0.1}, EvalNoise: 25},
	"level6": {SkillLevel: 11, Threads: engineThreads, HashMB: 64, MoveTime: 300 * time.Millisecond, Depth: 16, MultiPV: 2, Elo: 1400, Weights: []float64{0.8, 0.2}, EvalNoise: 10},
	"level7": {SkillLevel: 16, Threads: engineThreads, HashMB: 96, MoveTime: 500 * time.Millisecond, Depth: 20, MultiPV: 2, Elo: 1650, Weights: []float64{0.85, 0.15}, EvalNoise: 5},
	"level8": {SkillLevel: 20, Threads: topLevelThreads, HashMB: 128, MoveTime: time.Second, Depth: 30, MultiPV: 1, Elo: 1900, Weights: []float64{1.0}},
}

var aliases = map[string]string{
	"easy":         "level1",
	"beginner":     "level1",
	"medium":       "level3",
	"intermediate": "level5",
	"hard":         "level6",
	"advanced":     "level7",
	"master":       "level8",
}

// LookupPreset resolves a level name or alias. Empty picks the default.
func LookupPreset(name string) (Preset, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultPresetKey
	}
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	p, ok := presets[key]
	if !ok {
		return Preset{}, fmt.Errorf("unknown difficulty %q", name)
	}
	p.Name = key
	p.Weights = append([]float64(nil), p.Weights...)
	return p, nil
}

// PresetNames lists the canonical level names.
func PresetNames() []string {
	out := make([]string, 0, len(presets))
	for i := 1; i <= len(presets); i++ {
		out = append(out, fmt.Sprintf("level%d", i))
	}
	return out
}

func (p Preset) Validate() error {
	switch {
	case p.SkillLevel < 0 || p.SkillLevel > 20:
		return fmt.Errorf("skill level %d out of range 0-20", p.SkillLevel)
	case p.Threads <= 0:
		return fmt.Errorf("threads must be > 0: %d", p.Threads)
	case p.HashMB <= 0:
		return fmt.Errorf("hash size must be > 0: %d", p.HashMB)
	case p.MultiPV <= 0:
		return fmt.Errorf("multipv must be > 0: %d", p.MultiPV)
	case len(p.Weights) == 0:
		return fmt.Errorf("weights must not be empty")
	case len(p.Weights) > p.MultiPV:
		return fmt.Errorf("weights (%d) exceed multipv (%d)", len(p.Weights), p.MultiPV)
	case p.MoveTime < 0 || p.Depth < 0 || p.Nodes < 0 || p.EvalNoise < 0:
		return fmt.Errorf("negative search limit in preset %s", p.Name)
	case p.MoveTime == 0 && p.Depth == 0 && p.Nodes == 0:
		return fmt.Errorf("preset %s has no search limit", p.Name)
	}
	sum := 0.0
	for i, w := range p.Weights {
		if w < 0 {
			return fmt.Errorf("weight %d is negative: %f", i, w)
		}
		sum += w
	}
	if sum == 0 {
		return fmt.Errorf("weights sum to zero")
	}
	return nil
}

func (p Preset) engineOptions() uci.Options {
	return uci.Options{
		Threads:    p.Threads,
		SkillLevel: p.SkillLevel,
		HashMB:     p.HashMB,
		MultiPV:    p.MultiPV,
		Elo:        p.Elo,
	}
}

// limits caps the preset's think time at budget when budget is set.
func (p Preset) limits(budget time.Duration) uci.Limits {
	mt := p.MoveTime
	if budget > 0 && (mt == 0 || mt > budget) {
		mt = budget
	}
	return uci.Limits{Depth: p.Depth, MoveTime: mt, Nodes: p.Nodes}
}

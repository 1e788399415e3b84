package advisor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-Arena/internal/advisor/uci"
	"github.com/park285/Cheese-Arena/internal/room"
)

// Stockfish suggests moves from a pool of UCI engine processes.
type Stockfish struct {
	pool   *uci.Pool
	logger *zap.Logger

	randMu sync.Mutex
	rand   *rand.Rand
}

var _ room.Advisor = (*Stockfish)(nil)

func NewStockfish(binary string, logger *zap.Logger) (*Stockfish, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := uci.NewPool(uci.PoolConfig{Binary: binary, Logger: logger})
	if err != nil {
		return nil, err
	}
	return &Stockfish{
		pool:   pool,
		logger: logger,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// SuggestMove searches fen at the effort's difficulty and returns one of the
// engine's top lines.
func (s *Stockfish) SuggestMove(ctx context.Context, fen string, effort room.Effort) (room.Move, error) {
	preset, err := LookupPreset(effort.Preset)
	if err != nil {
		return room.Move{}, err
	}
	if err := preset.Validate(); err != nil {
		return room.Move{}, err
	}

	start := time.Now()
	proc, err := s.pool.Acquire(ctx, preset.engineOptions())
	if err != nil {
		return room.Move{}, fmt.Errorf("acquire engine: %w", err)
	}
	var procErr error
	defer func() { s.pool.Release(proc, procErr) }()

	if procErr = proc.Reset(ctx); procErr != nil {
		return room.Move{}, procErr
	}
	res, err := proc.Search(ctx, fen, preset.limits(effort.MoveTime))
	if err != nil {
		procErr = err
		return room.Move{}, err
	}

	line, err := choose(preset, res.Lines, s.random())
	if err != nil {
		if res.BestMove == "" {
			return room.Move{}, err
		}
		line = uci.Line{Move: res.BestMove}
	}
	mv, ok := room.MoveFromUCI(line.Move)
	if !ok {
		return room.Move{}, fmt.Errorf("engine returned malformed move %q", line.Move)
	}
	s.logger.Debug("advisor_move",
		zap.String("preset", preset.Name),
		zap.String("move", line.Move),
		zap.String("best", res.BestMove),
		zap.Int("eval_cp", line.EvalCP),
		zap.Int("lines", len(res.Lines)),
		zap.Duration("took", time.Since(start)),
	)
	return mv, nil
}

// random hands out a per-call generator seeded from the shared one.
func (s *Stockfish) random() *rand.Rand {
	s.randMu.Lock()
	seed := s.rand.Int63()
	s.randMu.Unlock()
	return rand.New(rand.NewSource(seed))
}

func (s *Stockfish) Close() error { return s.pool.Close() }

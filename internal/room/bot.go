package room

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// scheduleBotLocked starts the bot's turn when it is to move. At most one
// task per ply is started.
func (m *Manager) scheduleBotLocked(s *Session) {
	if s.phase != PhaseActive || s.result != nil || s.retired.Load() {
		return
	}
	side := s.rules.SideToMove(s.state)
	if !s.isBotSeatLocked(side) {
		return
	}
	ply := len(s.moves)
	if s.bot != nil && s.bot.ply == ply {
		return
	}
	if m.ctx.Err() != nil {
		return
	}
	task := &botTask{ply: ply, seat: side, done: make(chan struct{})}
	s.bot = task
	fen := s.rules.Serialize(s.state)
	effort := m.effortFor(s.difficulty)

	m.bots.Add(1)
	go m.runBot(s, task, fen, effort)
}

func (m *Manager) effortFor(difficulty string) Effort {
	return Effort{Preset: difficulty, MoveTime: m.cfg.BotMoveTimeout}
}

func (m *Manager) runBot(s *Session, task *botTask, fen string, effort Effort) {
	defer m.bots.Done()
	defer close(task.done)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("bot_turn_panic", zap.String("room_id", s.id), zap.Any("panic", r))
		}
	}()

	if d := m.cfg.BotThinkDelay; d > 0 {
		t := time.NewTimer(d)
		select {
		case <-m.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
	if s.retired.Load() || s.Terminal() {
		m.logger.Debug("bot_turn_skipped", zap.String("room_id", s.id), zap.Int("ply", task.ply))
		return
	}

	mv, err := m.suggest(fen, effort)
	m.commitBotMove(s, task, mv, err)
}

func (m *Manager) suggest(fen string, effort Effort) (Move, error) {
	if m.advisor == nil {
		return Move{}, ErrAdvisorUnavailable
	}
	timeout := m.cfg.BotMoveTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(m.ctx, timeout+time.Second)
	defer cancel()
	mv, err := m.advisor.SuggestMove(ctx, fen, effort)
	if err != nil {
		return Move{}, errors.Join(ErrAdvisorUnavailable, err)
	}
	return mv, nil
}

// commitBotMove re-enters the session and plays mv, or a random legal move
// when the advisor failed or answered with something illegal.
func (m *Manager) commitBotMove(s *Session, task *botTask, mv Move, adviceErr error) {
	now := m.now()
	s.mu.Lock()
	if s.retired.Load() || s.result != nil || s.bot != task || len(s.moves) != task.ply {
		s.mu.Unlock()
		m.logger.Info("bot_move_dropped", zap.String("room_id", s.id), zap.Int("ply", task.ply))
		return
	}
	s.bot = nil

	if adviceErr == nil && !s.rules.IsLegal(s.state, mv) {
		adviceErr = ErrIllegalMove
	}
	if adviceErr != nil {
		legal := s.rules.LegalMoves(s.state)
		if len(legal) == 0 {
			s.mu.Unlock()
			return
		}
		mv = legal[m.randomIndex(len(legal))]
		m.logger.Warn("bot_fallback_move",
			zap.String("room_id", s.id),
			zap.String("move", mv.UCI()),
			zap.Error(adviceErr),
		)
	}

	_, ds, sum, err := m.applyLocked(s, task.seat, mv, now)
	s.mu.Unlock()
	if err != nil {
		m.logger.Warn("bot_move_rejected", zap.String("room_id", s.id), zap.Error(err))
		return
	}
	m.settle(s, sum, ds)
	m.collectIfIdle(s)
}

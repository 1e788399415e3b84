package room

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartTicker flags clock timeouts and sweeps abandoned forming rooms until
// ctx is done.
func (m *Manager) StartTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.ctx.Done():
				return
			case <-t.C:
				m.TickAll()
			}
		}
	}()
}

// TickAll runs one ticker pass and returns how many games timed out.
func (m *Manager) TickAll() int {
	timedOut := 0
	for _, s := range m.sessions() {
		if m.tick(s) {
			timedOut++
		}
	}
	return timedOut
}

func (m *Manager) tick(s *Session) bool {
	now := m.now()
	s.mu.Lock()
	if s.retired.Load() {
		s.mu.Unlock()
		return false
	}
	if s.phase == PhaseForming && s.connCountLocked() == 0 && m.cfg.FormingTTL > 0 && now.Sub(s.createdAt) > m.cfg.FormingTTL {
		s.retired.Store(true)
		s.mu.Unlock()
		m.drop(s)
		return false
	}
	if !s.tickLocked(now) {
		s.mu.Unlock()
		return false
	}
	ds := s.gameUpdateLocked(now, nil, "")
	var sum *Summary
	if summary, ok := s.claimSummaryLocked(); ok {
		sum = &summary
	}
	s.mu.Unlock()

	m.logger.Info("clock_flagged", zap.String("room_id", s.id))
	m.settle(s, sum, ds)
	m.collectIfIdle(s)
	return true
}

package room

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type graceTimer struct {
	gen   uint64
	timer *time.Timer
}

// forfeitSink settles a session the supervisor has just forfeited.
type forfeitSink interface {
	forfeited(s *Session, sum *Summary, ds []delivery)
}

// Supervisor owns the per-seat grace timers. Arm and disarm run with the
// session lock held; expiry re-enters the lock and re-checks the seat before
// forfeiting, so a reconnect always wins over a late timer.
type Supervisor struct {
	grace  time.Duration
	gen    atomic.Uint64
	now    func() time.Time
	sink   forfeitSink
	logger *zap.Logger
}

func newSupervisor(grace time.Duration, now func() time.Time, sink forfeitSink, logger *zap.Logger) *Supervisor {
	return &Supervisor{grace: grace, now: now, sink: sink, logger: logger}
}

// Grace is the configured grace period.
func (d *Supervisor) Grace() time.Duration { return d.grace }

func (d *Supervisor) armLocked(s *Session, seat Seat) {
	d.disarmLocked(s, seat)
	gt := &graceTimer{gen: d.gen.Add(1)}
	gt.timer = time.AfterFunc(d.grace, func() { d.expire(s, seat, gt) })
	s.seats[seat].grace = gt
	d.logger.Info("grace_armed",
		zap.String("room_id", s.id),
		zap.String("seat", seat.String()),
		zap.Duration("grace", d.grace),
	)
}

// disarmLocked is a no-op when no timer is pending.
func (d *Supervisor) disarmLocked(s *Session, seat Seat) {
	gt := s.seats[seat].grace
	if gt == nil {
		return
	}
	gt.timer.Stop()
	s.seats[seat].grace = nil
	d.logger.Info("grace_cancelled",
		zap.String("room_id", s.id),
		zap.String("seat", seat.String()),
	)
}

func (d *Supervisor) disarmAllLocked(s *Session) {
	for _, seat := range []Seat{SeatA, SeatB} {
		d.disarmLocked(s, seat)
	}
}

func (d *Supervisor) expire(s *Session, seat Seat, gt *graceTimer) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("grace_expire_panic", zap.String("room_id", s.id), zap.Any("panic", r))
		}
	}()

	s.mu.Lock()
	if s.seats[seat].grace != gt {
		s.mu.Unlock()
		return
	}
	s.seats[seat].grace = nil
	if s.seats[seat].conn != "" || s.phase != PhaseActive || s.result != nil {
		s.mu.Unlock()
		return
	}
	now := d.now()
	s.settleClockLocked(now)
	s.finishLocked(winResult(seat.Opponent(), ReasonAbandonment), now)
	ds := s.gameUpdateLocked(now, nil, "")
	var sum *Summary
	if summary, ok := s.claimSummaryLocked(); ok {
		sum = &summary
	}
	s.mu.Unlock()

	d.logger.Info("grace_forfeit",
		zap.String("room_id", s.id),
		zap.String("seat", seat.String()),
		zap.Uint64("gen", gt.gen),
	)
	if d.sink != nil {
		d.sink.forfeited(s, sum, ds)
	}
}

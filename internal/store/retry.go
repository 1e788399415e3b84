package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-Arena/internal/room"
)

// RetryQueue holds summaries the primary recorder rejected.
type RetryQueue interface {
	Park(ctx context.Context, sum room.Summary) error
	Drain(ctx context.Context, limit int, fn func(context.Context, room.Summary) error) (int, error)
}

// RetryRecorder parks failed writes instead of retrying inline. The
// reconciler replays them later.
type RetryRecorder struct {
	primary room.GameRecorder
	queue   RetryQueue
	logger  *zap.Logger
}

var _ room.GameRecorder = (*RetryRecorder)(nil)

func NewRetryRecorder(primary room.GameRecorder, queue RetryQueue, logger *zap.Logger) *RetryRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryRecorder{primary: primary, queue: queue, logger: logger}
}

func (r *RetryRecorder) RecordCompletedGame(ctx context.Context, sum room.Summary) error {
	err := r.primary.RecordCompletedGame(ctx, sum)
	if err == nil || errors.Is(err, ErrDuplicateGame) {
		return nil
	}
	if perr := r.queue.Park(ctx, sum); perr != nil {
		return errors.Join(err, perr)
	}
	r.logger.Warn("game_record_parked",
		zap.String("room_id", sum.RoomID),
		zap.Error(err),
	)
	return nil
}

// Reconcile replays up to limit parked summaries once.
func (r *RetryRecorder) Reconcile(ctx context.Context, limit int) (int, error) {
	return r.queue.Drain(ctx, limit, func(ctx context.Context, sum room.Summary) error {
		err := r.primary.RecordCompletedGame(ctx, sum)
		if errors.Is(err, ErrDuplicateGame) {
			return nil
		}
		return err
	})
}

// StartReconciler drains the retry queue every interval until ctx is done.
func (r *RetryRecorder) StartReconciler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := r.Reconcile(ctx, 100)
				if err != nil {
					r.logger.Warn("reconcile_failed", zap.Int("replayed", n), zap.Error(err))
					continue
				}
				if n > 0 {
					r.logger.Info("reconcile_done", zap.Int("replayed", n))
				}
			}
		}
	}()
}

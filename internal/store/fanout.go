package store

import (
	"context"
	"errors"

	"github.com/park285/Cheese-Arena/internal/room"
)

// Fanout hands each finished game to every recorder. Duplicates are not errors.
type Fanout []room.GameRecorder

func (f Fanout) RecordCompletedGame(ctx context.Context, sum room.Summary) error {
	var errs []error
	for _, r := range f {
		if r == nil {
			continue
		}
		if err := r.RecordCompletedGame(ctx, sum); err != nil && !errors.Is(err, ErrDuplicateGame) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

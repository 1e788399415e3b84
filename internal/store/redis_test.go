package store

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/park285/Cheese-Arena/internal/room"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	r, err := NewRedis(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestRedis_RecentFeed(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()
	a := room.Participant{Name: "Alice"}
	b := room.Participant{Name: "Bob"}

	first := summary("r1", "white", room.ReasonCheckmate, a, b)
	second := summary("r2", "draw", room.ReasonStalemate, b, a)
	second.EndedAt = second.EndedAt.Add(time.Minute)
	for _, s := range []room.Summary{first, second} {
		if err := r.RecordCompletedGame(ctx, s); err != nil {
			t.Fatalf("record %s: %v", s.RoomID, err)
		}
	}
	if err := r.RecordCompletedGame(ctx, first); !errors.Is(err, ErrDuplicateGame) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	got, err := r.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].RoomID != "r2" || got[1].RoomID != "r1" {
		t.Fatalf("unexpected feed %+v", got)
	}
	if got[1].Winner != "white" || got[1].Moves != 3 || got[1].PGN == "" {
		t.Fatalf("unexpected entry %+v", got[1])
	}
}

func TestRedis_ParkAndDrain(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()
	for _, id := range []string{"r1", "r2", "r3"} {
		if err := r.Park(ctx, summary(id, "black", room.ReasonTimeout, room.Participant{}, room.Participant{})); err != nil {
			t.Fatalf("Park: %v", err)
		}
	}

	var seen []string
	boom := errors.New("boom")
	n, err := r.Drain(ctx, 10, func(_ context.Context, s room.Summary) error {
		if s.RoomID == "r2" {
			return boom
		}
		seen = append(seen, s.RoomID)
		return nil
	})
	if !errors.Is(err, boom) || n != 1 {
		t.Fatalf("expected stop at r2 after one, got n=%d err=%v", n, err)
	}
	if left, _ := r.Parked(ctx); left != 2 {
		t.Fatalf("failed summary must be requeued, parked=%d", left)
	}

	n, err = r.Drain(ctx, 10, func(_ context.Context, s room.Summary) error {
		seen = append(seen, s.RoomID)
		return nil
	})
	if err != nil || n != 2 {
		t.Fatalf("second drain n=%d err=%v", n, err)
	}
	if len(seen) != 3 || seen[0] != "r1" || seen[1] != "r3" || seen[2] != "r2" {
		t.Fatalf("unexpected drain order %v", seen)
	}
}

func TestRetryRecorder_ParksAndReconciles(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()
	primary := &flakyRecorder{fail: true, mem: NewMemory()}
	rr := NewRetryRecorder(primary, r, nil)

	sum := summary("r1", "white", room.ReasonResign, room.Participant{Name: "A"}, room.Participant{Name: "B"})
	if err := rr.RecordCompletedGame(ctx, sum); err != nil {
		t.Fatalf("parked write should not surface an error: %v", err)
	}
	if left, _ := r.Parked(ctx); left != 1 {
		t.Fatalf("expected one parked summary, got %d", left)
	}

	primary.fail = false
	n, err := rr.Reconcile(ctx, 10)
	if err != nil || n != 1 {
		t.Fatalf("Reconcile n=%d err=%v", n, err)
	}
	if primary.mem.Len() != 1 {
		t.Fatalf("reconciled game not stored")
	}
	n, err = rr.Reconcile(ctx, 10)
	if err != nil || n != 0 {
		t.Fatalf("queue should be empty, n=%d err=%v", n, err)
	}
}

func TestRetryRecorder_ParkFailure(t *testing.T) {
	r, mr := newTestRedis(t)
	rr := NewRetryRecorder(failingRecorder{err: errors.New("db down")}, r, nil)
	mr.Close()
	sum := summary("r1", "white", room.ReasonResign, room.Participant{}, room.Participant{})
	if err := rr.RecordCompletedGame(context.Background(), sum); err == nil {
		t.Fatalf("expected error when the queue is unreachable")
	}
}

func TestRedis_Visitors(t *testing.T) {
	r, _ := newTestRedis(t)
	ctx := context.Background()
	day := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if _, err := r.Visit(ctx, day); err != nil {
			t.Fatalf("Visit: %v", err)
		}
	}
	got, err := r.Visit(ctx, day.Add(24*time.Hour))
	if err != nil || got.Total != 4 || got.Today != 1 {
		t.Fatalf("Visit next day = %+v, %v", got, err)
	}
	counts, err := r.Visitors(ctx, day)
	if err != nil || counts.Total != 4 || counts.Today != 3 {
		t.Fatalf("Visitors = %+v, %v", counts, err)
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://:secret@localhost:6380/2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected options %+v", opts)
	}
	if _, err := parseRedisURL("http://localhost"); err == nil {
		t.Fatalf("expected scheme error")
	}
}

type flakyRecorder struct {
	fail bool
	mem  *Memory
}

func (f *flakyRecorder) RecordCompletedGame(ctx context.Context, s room.Summary) error {
	if f.fail {
		return errors.New("db down")
	}
	return f.mem.RecordCompletedGame(ctx, s)
}

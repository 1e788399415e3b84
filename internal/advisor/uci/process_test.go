package uci

import (
	"context"
	"testing"
	"time"
)

func TestParseInfo(t *testing.T) {
	idx, line, ok := parseInfo("info depth 12 seldepth 18 multipv 2 score cp -35 nodes 1200 pv e7e5 g1f3 b8c6")
	if !ok || idx != 2 {
		t.Fatalf("expected multipv 2, got ok=%v idx=%d", ok, idx)
	}
	if line.Move != "e7e5" || line.EvalCP != -35 || len(line.PV) != 3 {
		t.Fatalf("unexpected line %+v", line)
	}

	_, line, ok = parseInfo("info depth 5 score mate -3 pv h7h8")
	if !ok || line.EvalCP != -mateScore {
		t.Fatalf("mate score not mapped: %+v", line)
	}

	if _, _, ok := parseInfo("info depth 5 currmove e2e4 currmovenumber 1"); ok {
		t.Fatalf("info without pv must be ignored")
	}
	if _, _, ok := parseInfo("info depth 5 pv"); ok {
		t.Fatalf("empty pv must be ignored")
	}
}

func TestPositionCommand(t *testing.T) {
	if got := positionCommand("", nil); got != "position startpos" {
		t.Fatalf("got %q", got)
	}
	fen := "8/8/8/8/8/8/8/K6k w - - 0 1"
	if got := positionCommand(fen, []string{"a1a2"}); got != "position fen "+fen+" moves a1a2" {
		t.Fatalf("got %q", got)
	}
}

func TestLimits(t *testing.T) {
	cmd, err := Limits{Depth: 8, MoveTime: 80 * time.Millisecond}.goCommand()
	if err != nil || cmd != "go depth 8 movetime 80" {
		t.Fatalf("got %q err=%v", cmd, err)
	}
	if _, err := (Limits{}).goCommand(); err == nil {
		t.Fatalf("empty limits must fail")
	}
	if d := (Limits{Depth: 100}).deadline(); d != 20*time.Second {
		t.Fatalf("depth deadline should cap at 20s, got %v", d)
	}
	if d := (Limits{Depth: 1}).deadline(); d != 6*time.Second {
		t.Fatalf("depth deadline floor is 6s, got %v", d)
	}
}

func TestOrdered(t *testing.T) {
	got := ordered(map[int]Line{3: {Move: "c"}, 1: {Move: "a"}, 2: {Move: "b"}})
	if len(got) != 3 || got[0].Move != "a" || got[2].Move != "c" {
		t.Fatalf("unexpected order %+v", got)
	}
}

func TestNewPool_MissingBinary(t *testing.T) {
	if _, err := NewPool(PoolConfig{Binary: "/nonexistent/stockfish"}); err == nil {
		t.Fatalf("expected error for missing binary")
	}
	if _, err := NewPool(PoolConfig{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestPool_ClosedRejectsAcquire(t *testing.T) {
	p := &Pool{capacity: 1, buckets: map[string]*bucket{}, owner: map[*Process]*bucket{}}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := p.Acquire(context.Background(), Options{HashMB: 16, MultiPV: 1}); err != ErrPoolClosed {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}

package store

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/park285/Cheese-Arena/internal/room"
)

// Memory is the in-process recorder used when no database is configured.
type Memory struct {
	mu sync.RWMutex

	nextID  int64
	byID    map[int64]*Replay
	byKey   map[string]int64
	players map[int64]*Standing
}

var (
	_ room.GameRecorder = (*Memory)(nil)
	_ Archive           = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[int64]*Replay),
		byKey:   make(map[string]int64),
		players: make(map[int64]*Standing),
	}
}

func (m *Memory) RecordCompletedGame(_ context.Context, sum room.Summary) error {
	key := recordKey(sum)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byKey[key]; exists {
		return ErrDuplicateGame
	}
	m.nextID++
	id := m.nextID
	m.byKey[key] = id
	m.byID[id] = &Replay{
		Game: GameRow{
			ID:          id,
			RoomCode:    sum.RoomID,
			White:       sum.White.Name,
			Black:       sum.Black.Name,
			Winner:      sum.Winner,
			Reason:      string(sum.Reason),
			Mode:        string(sum.Mode),
			TimeControl: int(sum.TimeControl.Seconds()),
			StartedAt:   sum.StartedAt,
			EndedAt:     sum.EndedAt,
			MoveCount:   len(sum.Moves),
			PGN:         BuildPGN(sum),
		},
		Moves: replayMoves(sum.Moves),
	}

	for seat, pl := range rated(sum) {
		st, ok := m.players[*pl.UserID]
		if !ok {
			st = &Standing{
				UserID:   *pl.UserID,
				Username: "user" + strconv.FormatInt(*pl.UserID, 10),
				Elo:      startingElo,
			}
			m.players[*pl.UserID] = st
		}
		st.DisplayName = pl.Name
		o := outcomeFor(sum, seat)
		st.Played++
		switch o {
		case outcomeWin:
			st.Won++
		case outcomeLoss:
			st.Lost++
		default:
			st.Drawn++
		}
		st.Elo = nextElo(st.Elo, o)
	}
	return nil
}

func (m *Memory) Leaderboard(_ context.Context, limit int) ([]Standing, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	out := make([]Standing, 0, len(m.players))
	for _, st := range m.players {
		out = append(out, *st)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Elo != out[j].Elo {
			return out[i].Elo > out[j].Elo
		}
		if out[i].Won != out[j].Won {
			return out[i].Won > out[j].Won
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Replay(_ context.Context, id int64) (*Replay, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rep, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *rep
	cp.Moves = append([]ReplayMove(nil), rep.Moves...)
	return &cp, nil
}

// Len reports how many games are stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

package room

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Match describes a pairing produced by the queue.
type Match struct {
	Room  string
	White Participant
	Black Participant
}

type queueEntry struct {
	who      Participant
	conn     ConnID
	criteria Criteria
	at       time.Time
}

// MatchQueue pairs waiting identities with equal criteria. The queue only
// pairs; the matched players bind their connections with JoinRoom.
type MatchQueue struct {
	mu      sync.Mutex
	entries []queueEntry

	rooms *Manager
	out   Broadcaster
}

func NewMatchQueue(rooms *Manager, out Broadcaster) *MatchQueue {
	if out == nil {
		out = nopBroadcaster{}
	}
	return &MatchQueue{rooms: rooms, out: out}
}

func (q *MatchQueue) normalize(c Criteria) Criteria {
	if c.TimeControl <= 0 {
		c.TimeControl = q.rooms.cfg.DefaultTimeControl
	}
	return c
}

// Enqueue adds who to the queue or pairs it with the oldest compatible
// entry. A nil Match means who is now waiting.
func (q *MatchQueue) Enqueue(ctx context.Context, conn ConnID, who Participant, c Criteria) (*Match, error) {
	who.ID = strings.TrimSpace(who.ID)
	if who.ID == "" {
		return nil, ErrInvalidArgs
	}
	c = q.normalize(c)

	q.mu.Lock()
	for _, e := range q.entries {
		if e.who.ID == who.ID {
			q.mu.Unlock()
			return nil, ErrAlreadyQueued
		}
	}
	idx := -1
	for i, e := range q.entries {
		if e.criteria == c && e.who.ID != who.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.entries = append(q.entries, queueEntry{who: who, conn: conn, criteria: c, at: q.rooms.now()})
		n := len(q.entries)
		q.mu.Unlock()
		q.rooms.logger.Info("match_queued",
			zap.String("identity", who.ID),
			zap.Duration("time_control", c.TimeControl),
			zap.Int("queue_len", n),
		)
		return nil, nil
	}
	peer := q.entries[idx]
	q.entries = append(q.entries[:idx:idx], q.entries[idx+1:]...)
	q.mu.Unlock()

	id, peerRole, whoRole, err := q.rooms.CreateMatchRoom(ctx, peer.who, who, c.TimeControl)
	if err != nil {
		q.mu.Lock()
		q.entries = append([]queueEntry{peer}, q.entries...)
		q.mu.Unlock()
		return nil, err
	}

	match := &Match{Room: id}
	if peerRole == RoleWhite {
		match.White, match.Black = peer.who, who
	} else {
		match.White, match.Black = who, peer.who
	}
	q.rooms.logger.Info("match_found",
		zap.String("room_id", id),
		zap.String("white", match.White.ID),
		zap.String("black", match.Black.ID),
		zap.Duration("waited", q.rooms.now().Sub(peer.at)),
	)
	q.out.Send(peer.conn, Event{Type: EventMatchFound, Payload: MatchFoundPayload{Room: id, Role: peerRole}})
	q.out.Send(conn, Event{Type: EventMatchFound, Payload: MatchFoundPayload{Room: id, Role: whoRole}})
	return match, nil
}

// Cancel removes identity from the queue.
func (q *MatchQueue) Cancel(identity string) error {
	identity = strings.TrimSpace(identity)
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.who.ID == identity {
			q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
			return nil
		}
	}
	return ErrNotQueued
}

// DropConn removes whatever conn had queued. Used on disconnect.
func (q *MatchQueue) DropConn(conn ConnID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.conn == conn {
			q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (q *MatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

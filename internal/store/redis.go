package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/Cheese-Arena/internal/room"
)

const (
	keyRecent   = "arena:recent"
	keyRetry    = "arena:retry"
	keyVisitors = "arena:visitors"

	archiveTTL    = 7 * 24 * time.Hour
	recentCap     = 50
	visitorDayTTL = 48 * time.Hour
)

func keyGame(key string) string { return "arena:game:" + strings.TrimSpace(key) }

func keyVisitorDay(day time.Time) string { return keyVisitors + ":" + day.UTC().Format("2006-01-02") }

// Recent is one entry of the finished-games feed.
type Recent struct {
	RoomID  string    `json:"roomId"`
	White   string    `json:"white"`
	Black   string    `json:"black"`
	Winner  string    `json:"winner"`
	Reason  string    `json:"reason"`
	Mode    string    `json:"mode"`
	Moves   int       `json:"moves"`
	EndedAt time.Time `json:"endedAt"`
	PGN     string    `json:"pgn"`
}

// Redis archives finished games for the recent feed, parks summaries that
// the primary recorder could not store, and counts visitors.
type Redis struct {
	rdb *redis.Client
}

var _ room.GameRecorder = (*Redis)(nil)

func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

func NewRedisWithClient(rdb *redis.Client) *Redis { return &Redis{rdb: rdb} }

func (r *Redis) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}

// RecordCompletedGame archives the result and pushes it onto the recent feed.
func (r *Redis) RecordCompletedGame(ctx context.Context, sum room.Summary) error {
	key := recordKey(sum)
	raw, err := json.Marshal(Recent{
		RoomID:  sum.RoomID,
		White:   sum.White.Name,
		Black:   sum.Black.Name,
		Winner:  sum.Winner,
		Reason:  string(sum.Reason),
		Mode:    string(sum.Mode),
		Moves:   len(sum.Moves),
		EndedAt: sum.EndedAt,
		PGN:     BuildPGN(sum),
	})
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetNX(ctx, keyGame(key), raw, archiveTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicateGame
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, keyRecent, key)
		p.LTrim(ctx, keyRecent, 0, recentCap-1)
		return nil
	})
	return err
}

// Recent returns up to n archived results, newest first. Expired entries are skipped.
func (r *Redis) Recent(ctx context.Context, n int) ([]Recent, error) {
	if n <= 0 || n > recentCap {
		n = recentCap
	}
	keys, err := r.rdb.LRange(ctx, keyRecent, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Recent, 0, len(keys))
	for _, k := range keys {
		raw, err := r.rdb.Get(ctx, keyGame(k)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec Recent
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Park queues a summary for a later retry.
func (r *Redis) Park(ctx context.Context, sum room.Summary) error {
	raw, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	return r.rdb.RPush(ctx, keyRetry, raw).Err()
}

// Drain pops up to limit parked summaries and hands each to fn. A failing
// summary goes back to the tail of the queue and stops the drain.
func (r *Redis) Drain(ctx context.Context, limit int, fn func(context.Context, room.Summary) error) (int, error) {
	done := 0
	for done < limit {
		raw, err := r.rdb.LPop(ctx, keyRetry).Bytes()
		if errors.Is(err, redis.Nil) {
			return done, nil
		}
		if err != nil {
			return done, err
		}
		var sum room.Summary
		if err := json.Unmarshal(raw, &sum); err != nil {
			continue
		}
		if err := fn(ctx, sum); err != nil {
			if perr := r.rdb.RPush(ctx, keyRetry, raw).Err(); perr != nil {
				return done, errors.Join(err, perr)
			}
			return done, err
		}
		done++
	}
	return done, nil
}

func (r *Redis) Parked(ctx context.Context) (int64, error) {
	return r.rdb.LLen(ctx, keyRetry).Result()
}

// VisitorCounts is the lifetime and same-day visitor tally.
type VisitorCounts struct {
	Total int64 `json:"total"`
	Today int64 `json:"today"`
}

// Visit counts one visitor for now's UTC day.
func (r *Redis) Visit(ctx context.Context, now time.Time) (VisitorCounts, error) {
	day := keyVisitorDay(now)
	var total, today *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		total = p.Incr(ctx, keyVisitors)
		today = p.Incr(ctx, day)
		p.Expire(ctx, day, visitorDayTTL)
		return nil
	})
	if err != nil {
		return VisitorCounts{}, err
	}
	return VisitorCounts{Total: total.Val(), Today: today.Val()}, nil
}

func (r *Redis) Visitors(ctx context.Context, now time.Time) (VisitorCounts, error) {
	vals, err := r.rdb.MGet(ctx, keyVisitors, keyVisitorDay(now)).Result()
	if err != nil {
		return VisitorCounts{}, err
	}
	return VisitorCounts{Total: toInt(vals[0]), Today: toInt(vals[1])}, nil
}

func toInt(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}

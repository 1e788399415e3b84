package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/Cheese-Arena/internal/room"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id           BIGSERIAL PRIMARY KEY,
    username     VARCHAR(64) UNIQUE NOT NULL,
    display_name VARCHAR(100),
    elo_rating   INTEGER NOT NULL DEFAULT 1200,
    games_played INTEGER NOT NULL DEFAULT 0,
    games_won    INTEGER NOT NULL DEFAULT 0,
    games_drawn  INTEGER NOT NULL DEFAULT 0,
    games_lost   INTEGER NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS games (
    id            BIGSERIAL PRIMARY KEY,
    record_key    TEXT UNIQUE NOT NULL,
    room_code     VARCHAR(100) NOT NULL,
    white_player  VARCHAR(100),
    black_player  VARCHAR(100),
    white_user_id BIGINT REFERENCES users(id),
    black_user_id BIGINT REFERENCES users(id),
    winner        VARCHAR(20),
    win_reason    VARCHAR(50),
    game_mode     VARCHAR(20),
    time_control  INTEGER,
    start_time    TIMESTAMPTZ,
    end_time      TIMESTAMPTZ,
    move_count    INTEGER NOT NULL DEFAULT 0,
    final_fen     TEXT,
    pgn           TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS game_moves (
    id                   BIGSERIAL PRIMARY KEY,
    game_id              BIGINT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
    move_number          INTEGER NOT NULL,
    move_notation        VARCHAR(20) NOT NULL,
    from_square          VARCHAR(10),
    to_square            VARCHAR(10),
    position_fen         TEXT,
    white_time_remaining REAL,
    black_time_remaining REAL
);
CREATE INDEX IF NOT EXISTS game_moves_game_idx ON game_moves (game_id, move_number);
`

// Postgres records finished games with their moves and keeps per-user stats.
type Postgres struct {
	db *sql.DB
}

var (
	_ room.GameRecorder = (*Postgres)(nil)
	_ Archive           = (*Postgres)(nil)
)

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// RecordCompletedGame stores the game, its moves and the rated players' stats
// in one transaction. A session already stored yields ErrDuplicateGame.
func (p *Postgres) RecordCompletedGame(ctx context.Context, sum room.Summary) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	players := rated(sum)
	for _, pl := range players {
		if err = ensureUser(ctx, tx, pl); err != nil {
			return fmt.Errorf("ensure user %d: %w", *pl.UserID, err)
		}
	}

	var gameID int64
	err = tx.QueryRowContext(ctx, `INSERT INTO games (
        record_key, room_code, white_player, black_player,
        white_user_id, black_user_id, winner, win_reason,
        game_mode, time_control, start_time, end_time, move_count, final_fen, pgn
      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
      ON CONFLICT (record_key) DO NOTHING
      RETURNING id`,
		recordKey(sum), sum.RoomID, sum.White.Name, sum.Black.Name,
		nullableID(sum.White), nullableID(sum.Black), sum.Winner, string(sum.Reason),
		string(sum.Mode), int(sum.TimeControl.Seconds()), nullableTime(sum.StartedAt), sum.EndedAt,
		len(sum.Moves), sum.FinalFEN, BuildPGN(sum),
	).Scan(&gameID)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrDuplicateGame
		return err
	}
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO game_moves (
        game_id, move_number, move_notation, from_square, to_square,
        position_fen, white_time_remaining, black_time_remaining
      ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, mv := range replayMoves(sum.Moves) {
		if _, err = stmt.ExecContext(ctx, gameID, mv.Number, mv.Notation, mv.From, mv.To, mv.FEN, mv.WhiteTime, mv.BlackTime); err != nil {
			return fmt.Errorf("insert move %d: %w", mv.Number, err)
		}
	}

	for seat, pl := range players {
		if err = updateStats(ctx, tx, *pl.UserID, outcomeFor(sum, seat)); err != nil {
			return fmt.Errorf("update stats %d: %w", *pl.UserID, err)
		}
	}
	return tx.Commit()
}

func ensureUser(ctx context.Context, tx *sql.Tx, pl room.Participant) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users (id, username, display_name)
        VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		*pl.UserID, "user"+strconv.FormatInt(*pl.UserID, 10), pl.Name)
	return err
}

func updateStats(ctx context.Context, tx *sql.Tx, userID int64, o outcome) error {
	var err error
	switch o {
	case outcomeWin:
		_, err = tx.ExecContext(ctx, `UPDATE users SET games_played = games_played + 1,
            games_won = games_won + 1, elo_rating = elo_rating + $2 WHERE id = $1`, userID, eloWin)
	case outcomeLoss:
		_, err = tx.ExecContext(ctx, `UPDATE users SET games_played = games_played + 1,
            games_lost = games_lost + 1, elo_rating = GREATEST(elo_rating - $2, $3) WHERE id = $1`,
			userID, eloLoss, eloFloor)
	default:
		_, err = tx.ExecContext(ctx, `UPDATE users SET games_played = games_played + 1,
            games_drawn = games_drawn + 1 WHERE id = $1`, userID)
	}
	return err
}

// Leaderboard returns rated players who finished at least one game, best first.
func (p *Postgres) Leaderboard(ctx context.Context, limit int) ([]Standing, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id, username, COALESCE(display_name, ''), elo_rating,
            games_played, games_won, games_drawn, games_lost
        FROM users WHERE games_played > 0
        ORDER BY elo_rating DESC, games_won DESC, id
        LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Standing, 0, limit)
	for rows.Next() {
		var s Standing
		if err := rows.Scan(&s.UserID, &s.Username, &s.DisplayName, &s.Elo, &s.Played, &s.Won, &s.Drawn, &s.Lost); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Replay loads a stored game and its moves. A missing game returns nil, nil.
func (p *Postgres) Replay(ctx context.Context, id int64) (*Replay, error) {
	var (
		g       GameRow
		started sql.NullTime
		tc      sql.NullInt64
		pgn     sql.NullString
	)
	err := p.db.QueryRowContext(ctx, `SELECT id, room_code, COALESCE(white_player, ''), COALESCE(black_player, ''),
            COALESCE(winner, ''), COALESCE(win_reason, ''), COALESCE(game_mode, ''), time_control,
            start_time, end_time, move_count, pgn
        FROM games WHERE id = $1`, id).Scan(
		&g.ID, &g.RoomCode, &g.White, &g.Black, &g.Winner, &g.Reason, &g.Mode, &tc,
		&started, &g.EndedAt, &g.MoveCount, &pgn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	g.TimeControl = int(tc.Int64)
	g.StartedAt = started.Time
	g.PGN = pgn.String

	rows, err := p.db.QueryContext(ctx, `SELECT move_number, move_notation, COALESCE(from_square, ''), COALESCE(to_square, ''),
            COALESCE(position_fen, ''), COALESCE(white_time_remaining, 0), COALESCE(black_time_remaining, 0)
        FROM game_moves WHERE game_id = $1 ORDER BY move_number`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rep := &Replay{Game: g, Moves: []ReplayMove{}}
	for rows.Next() {
		var mv ReplayMove
		if err := rows.Scan(&mv.Number, &mv.Notation, &mv.From, &mv.To, &mv.FEN, &mv.WhiteTime, &mv.BlackTime); err != nil {
			return nil, err
		}
		rep.Moves = append(rep.Moves, mv)
	}
	return rep, rows.Err()
}

func nullableID(p room.Participant) any {
	if p.UserID == nil || p.Bot {
		return nil
	}
	return *p.UserID
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

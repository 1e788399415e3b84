package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr string
	// AllowedOrigins are websocket origin patterns; empty accepts same-host only.
	AllowedOrigins []string

	RedisURL    string
	DatabaseURL string

	StockfishPath   string
	OpeningBookPath string
	BookPlies       int
	BotDefaultLevel string
	BotThinkDelay   time.Duration
	BotMoveTimeout  time.Duration

	DefaultTimeControl time.Duration
	DisconnectGrace    time.Duration
	TickInterval       time.Duration
	FormingTTL         time.Duration
	ReconcileInterval  time.Duration

	MessagesDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:         ":8080",
		BotDefaultLevel:    "level3",
		BotThinkDelay:      500 * time.Millisecond,
		BotMoveTimeout:     3 * time.Second,
		DefaultTimeControl: 300 * time.Second,
		DisconnectGrace:    15 * time.Second,
		TickInterval:       time.Second,
		FormingTTL:         10 * time.Minute,
		ReconcileInterval:  30 * time.Second,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	cfg.StockfishPath = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))
	cfg.OpeningBookPath = strings.TrimSpace(os.Getenv("OPENING_BOOK_PATH"))
	if v := strings.TrimSpace(os.Getenv("BOOK_PLIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BookPlies = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("BOT_DEFAULT_LEVEL")); v != "" {
		cfg.BotDefaultLevel = v
	}
	cfg.BotThinkDelay = durationEnv("BOT_THINK_DELAY", cfg.BotThinkDelay)
	cfg.BotMoveTimeout = durationEnv("BOT_MOVE_TIMEOUT", cfg.BotMoveTimeout)

	// plain integers are seconds
	if v := strings.TrimSpace(os.Getenv("DEFAULT_TIME_CONTROL")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DefaultTimeControl = time.Duration(n) * time.Second
		}
	}
	cfg.DisconnectGrace = durationEnv("DISCONNECT_GRACE", cfg.DisconnectGrace)
	cfg.TickInterval = durationEnv("TICK_INTERVAL", cfg.TickInterval)
	cfg.FormingTTL = durationEnv("FORMING_TTL", cfg.FormingTTL)
	cfg.ReconcileInterval = durationEnv("RECONCILE_INTERVAL", cfg.ReconcileInterval)

	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if cfg.ListenAddr == "" {
		return nil, errors.New("LISTEN_ADDR is required")
	}
	return cfg, nil
}

// durationEnv accepts Go durations ("15s") or bare seconds ("15").
func durationEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

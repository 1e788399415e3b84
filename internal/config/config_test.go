package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"LISTEN_ADDR", "DEFAULT_TIME_CONTROL", "DISCONNECT_GRACE", "ALLOWED_ORIGINS", "BOT_THINK_DELAY"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.DefaultTimeControl != 300*time.Second || cfg.DisconnectGrace != 15*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.BotThinkDelay != 500*time.Millisecond || cfg.BotDefaultLevel != "level3" {
		t.Fatalf("unexpected bot defaults %+v", cfg)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("DEFAULT_TIME_CONTROL", "600")
	t.Setenv("DISCONNECT_GRACE", "30")
	t.Setenv("BOT_THINK_DELAY", "250ms")
	t.Setenv("TICK_INTERVAL", "bogus")
	t.Setenv("ALLOWED_ORIGINS", " example.com , ,*.example.org")
	t.Setenv("OPENING_BOOK_PATH", "/data/book.bin")
	t.Setenv("BOOK_PLIES", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" || cfg.DefaultTimeControl != 600*time.Second {
		t.Fatalf("unexpected %+v", cfg)
	}
	if cfg.DisconnectGrace != 30*time.Second || cfg.BotThinkDelay != 250*time.Millisecond {
		t.Fatalf("durations not parsed: %+v", cfg)
	}
	if cfg.TickInterval != time.Second {
		t.Fatalf("bad value must keep default, got %v", cfg.TickInterval)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "*.example.org" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.OpeningBookPath != "/data/book.bin" || cfg.BookPlies != 12 {
		t.Fatalf("book settings not loaded: %q %d", cfg.OpeningBookPath, cfg.BookPlies)
	}
}

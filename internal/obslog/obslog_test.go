package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestBuild_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "arena.log")
	l, err := Build(Options{Level: "info", Format: "json", File: path})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	l.Info("room_created", zap.String("room_id", "r1"))
	l.Debug("hidden")
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(raw)
	if !strings.Contains(out, `"msg":"room_created"`) || !strings.Contains(out, `"room_id":"r1"`) {
		t.Fatalf("unexpected log output %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line written at info level")
	}
}

func TestReplace_Restores(t *testing.T) {
	prev := L()
	l := zap.NewExample()
	restore := Replace(l)
	if L() != l {
		t.Fatalf("Replace did not install logger")
	}
	restore()
	if L() != prev {
		t.Fatalf("restore did not put back the previous logger")
	}
}

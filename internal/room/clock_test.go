package room

import (
	"errors"
	"testing"
	"time"
)

func TestAdvance(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name      string
		remaining time.Duration
		running   bool
		elapsed   time.Duration
		want      time.Duration
	}{
		{"stopped", 10 * time.Second, false, 3 * time.Second, 10 * time.Second},
		{"running", 10 * time.Second, true, 3 * time.Second, 7 * time.Second},
		{"floors at zero", 400 * time.Millisecond, true, 500 * time.Millisecond, 0},
		{"clock skew", 10 * time.Second, true, -time.Second, 10 * time.Second},
	}
	for _, tc := range cases {
		got := Advance(tc.remaining, base, tc.running, base.Add(tc.elapsed))
		if got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestFormatClock(t *testing.T) {
	cases := map[time.Duration]string{
		300 * time.Second:      "5:00",
		61*time.Second + 600e6: "1:02",
		9*time.Second + 400e6:  "0:09",
		-5 * time.Second:       "0:00",
		0:                      "0:00",
	}
	for in, want := range cases {
		if got := FormatClock(in); got != want {
			t.Fatalf("FormatClock(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestCode(t *testing.T) {
	if Code(ErrRoomTaken) != "room_taken" || Code(nil) != "" {
		t.Fatalf("unexpected codes")
	}
	if got := Code(errors.New("boom")); got != "internal" {
		t.Fatalf("unknown errors must map to internal, got %q", got)
	}
}

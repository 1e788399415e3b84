package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-Arena/internal/room"
)

func mapResultToPGN(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

// BuildPGN renders a finished session as PGN text.
func BuildPGN(sum room.Summary) string {
	date := sum.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	result := mapResultToPGN(sum.Winner)

	var b strings.Builder
	b.WriteString("[Event \"Cheese Arena\"]\n")
	fmt.Fprintf(&b, "[Site \"%s\"]\n", sanitizePGN(sum.RoomID))
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(sum.White.Name))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(sum.Black.Name))
	if sum.TimeControl > 0 {
		fmt.Fprintf(&b, "[TimeControl \"%d\"]\n", int(sum.TimeControl.Seconds()))
	}
	if sum.Reason != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(string(sum.Reason)))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", result)

	for i := 0; i < len(sum.Moves); i += 2 {
		fmt.Fprintf(&b, "%d. %s", i/2+1, strings.TrimSpace(sum.Moves[i].Notation))
		if i+1 < len(sum.Moves) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(sum.Moves[i+1].Notation))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}

package conversation

import (
	"strings"
	"time"
)

// window is a bounded, insertion-ordered history of turns. The oldest turn
// is evicted once the capacity is reached, so len(turns) <= capacity holds
// after every add.
type window struct {
	capacity int
	turns    []Turn
}

func newWindow(capacity int) *window {
	return &window{capacity: capacity}
}

func (w *window) add(role Role, text string) {
	turn := Turn{
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}

	if len(w.turns) >= w.capacity {
		w.turns = append(w.turns[len(w.turns)-w.capacity+1:], turn)
	} else {
		w.turns = append(w.turns, turn)
	}
}

func (w *window) len() int {
	return len(w.turns)
}

// all returns the window oldest-first. The slice aliases internal state and
// must not be mutated.
func (w *window) all() []Turn {
	return w.turns
}

// last returns the most recent n turns, oldest-first.
func (w *window) last(n int) []Turn {
	if n >= len(w.turns) {
		return w.turns
	}
	return w.turns[len(w.turns)-n:]
}

// olderThan returns every turn except the most recent n, oldest-first.
func (w *window) olderThan(n int) []Turn {
	if n >= len(w.turns) {
		return nil
	}
	return w.turns[:len(w.turns)-n]
}

// render produces the deterministic textual form of the given turns, one
// "role：text" line per turn, oldest-first.
func render(turns []Turn) string {
	var builder strings.Builder

	for _, turn := range turns {
		builder.WriteString(string(turn.Role))
		builder.WriteString("：")
		builder.WriteString(turn.Text)
		builder.WriteString("\n")
	}

	return builder.String()
}

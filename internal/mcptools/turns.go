package mcptools

import (
	"sync"
	"time"

	"github.com/agentic-research/atelier/internal/edit"
)

// Turns starts a new session turn when a tool call arrives after Idle
// without any tool activity. MCP itself has no notion of a turn.
type Turns struct {
	Mode edit.Mode
	Idle time.Duration

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewTurns returns a policy for mode with the given idle gap.
func NewTurns(mode edit.Mode, idle time.Duration) *Turns {
	return &Turns{Mode: mode, Idle: idle, now: time.Now}
}

func (t *Turns) touch(sess *edit.Session) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if t.last.IsZero() || now.Sub(t.last) >= t.Idle {
		sess.BeginTurn(t.Mode)
	}
	t.last = now
}

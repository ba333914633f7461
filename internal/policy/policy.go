// Package policy decides the next action of an investigation.
//
// Responsibilities:
//   - Inspect a session snapshot and pick the next (tool, args, reasoning)
//   - Signal conclusion when the investigation has run its course
//
// Two interchangeable implementations exist: a deterministic heuristic
// with no external dependency, and a language-model policy that
// degrades to the heuristic on any transport or parse failure. Policies
// never mutate the session.
package policy

import (
	"context"

	"github.com/osinthq/inquest/internal/session"
)

// ToolConclude is the sentinel tool name signalling the loop to stop.
const ToolConclude = "conclude"

// Action is the policy's answer for one turn.
type Action struct {
	Tool      string                 `json:"tool"`
	Args      map[string]interface{} `json:"args,omitempty"`
	Reasoning string                 `json:"reasoning"`
}

// Conclude reports whether the action ends the investigation.
func (a Action) Conclude() bool { return a.Tool == ToolConclude }

// Policy picks the next action from a session snapshot.
type Policy interface {
	Decide(ctx context.Context, s *session.Session) Action
}

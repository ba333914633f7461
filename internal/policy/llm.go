package policy

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/osinthq/inquest/internal/llm"
	"github.com/osinthq/inquest/internal/session"
)

const plannerSystemPrompt = `You are the planning policy of an OSINT investigation runtime.
Given the current investigation state, reply with a single JSON object:
  {"tool": "<tool name>", "args": {"query": "..."}, "reasoning": "<one sentence>"}
Use {"tool": "conclude", "reasoning": "..."} when the investigation should stop.
Reply with JSON only, no prose around it.`

// maxContextChars bounds the session snapshot sent to the model.
const maxContextChars = 6000

// LLMPolicy asks an external language model for the next action and
// degrades to the heuristic on any transport or parse failure.
type LLMPolicy struct {
	client   llm.Client
	fallback Policy
}

// NewLLMPolicy creates a model-backed policy with a heuristic fallback.
func NewLLMPolicy(client llm.Client) *LLMPolicy {
	return &LLMPolicy{client: client, fallback: NewHeuristic()}
}

func (p *LLMPolicy) Decide(ctx context.Context, s *session.Session) Action {
	reply, err := p.client.Complete(ctx, plannerSystemPrompt, s.ContextForLLM(maxContextChars))
	if err != nil {
		return p.fallback.Decide(ctx, s)
	}
	action, ok := parseAction(reply)
	if !ok {
		return p.fallback.Decide(ctx, s)
	}
	return action
}

// parseAction extracts a JSON action from a model reply. The model is
// asked for bare JSON but replies wrapped in code fences or prose are
// tolerated: the first balanced top-level object is parsed.
func parseAction(reply string) (Action, bool) {
	raw, ok := extractJSONObject(reply)
	if !ok {
		return Action{}, false
	}
	var action Action
	if err := json.Unmarshal([]byte(raw), &action); err != nil {
		return Action{}, false
	}
	action.Tool = strings.TrimSpace(action.Tool)
	if action.Tool == "" {
		return Action{}, false
	}
	return action, true
}

func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

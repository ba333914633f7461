package agent

import (
	"fmt"
	"time"
)

// LoopConfig bounds and shapes one investigation run. Configuration
// errors are rejected by Validate before the loop starts.
type LoopConfig struct {
	// MaxTurns is the hard upper bound on decide/execute turns. The
	// seed phase counts as zero turns.
	MaxTurns int

	// ToolTimeout bounds each individual tool call.
	ToolTimeout time.Duration

	// Deadline optionally bounds the whole loop; zero means unbounded.
	Deadline time.Duration

	// AutoSanctionsScreen seeds a screening lead after the first
	// successful search produced entities.
	AutoSanctionsScreen bool

	// AutoNewsCheck seeds a news lead after the first successful search.
	AutoNewsCheck bool

	// EnableSafety constructs a real harness; false means no-op.
	EnableSafety bool

	// EnforceSafety makes blocked pre-checks skip the action instead
	// of observing.
	EnforceSafety bool

	// GenerateGraph runs the graph post-processor after the loop.
	GenerateGraph bool

	// LLMProvider selects the decision policy: "heuristic", "openai"
	// or "custom".
	LLMProvider string

	// DemoMode forces the heuristic policy and the fixture data source.
	DemoMode bool

	// PersistPath, when set, auto-saves the session after termination.
	PersistPath string

	// EstimatedToolCost is the per-call cost reported to the policy
	// gate's budget.
	EstimatedToolCost float64
}

// DefaultLoopConfig returns the stock loop configuration.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxTurns:            15,
		ToolTimeout:         30 * time.Second,
		AutoSanctionsScreen: true,
		EnableSafety:        true,
		GenerateGraph:       true,
		LLMProvider:         "heuristic",
		EstimatedToolCost:   1.0,
	}
}

// Validate rejects configurations the loop cannot run with.
func (c LoopConfig) Validate() error {
	if c.MaxTurns < 0 {
		return fmt.Errorf("max_turns must be non-negative, got %d", c.MaxTurns)
	}
	if c.ToolTimeout < 0 {
		return fmt.Errorf("tool timeout must be non-negative, got %s", c.ToolTimeout)
	}
	switch c.LLMProvider {
	case "", "heuristic", "openai", "custom":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLMProvider)
	}
	return nil
}

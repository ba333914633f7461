// Package bridge is the single concurrent entry point adapter layers
// use to run investigations.
//
// Responsibilities:
//   - Schedule agent loops and return the assembled InvestigationResult
//   - Refuse duplicate runs per channel (atomic check-and-insert)
//   - Translate progress events to text for plain adapters
//   - Apply the publication boundary: scrub every outward-facing report
//
// Multiple RunInvestigation calls execute in parallel. The
// channel-scoped path serializes per channel id but parallelizes
// across channels.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/osinthq/inquest/internal/agent"
	"github.com/osinthq/inquest/internal/audit"
	"github.com/osinthq/inquest/internal/llm"
	"github.com/osinthq/inquest/internal/metrics"
	"github.com/osinthq/inquest/internal/policy"
	"github.com/osinthq/inquest/internal/progress"
	"github.com/osinthq/inquest/internal/safety"
	"github.com/osinthq/inquest/internal/session"
	"github.com/osinthq/inquest/internal/tools"
)

// ErrDuplicateChannel is returned when a channel already has a running
// investigation. User-visible, never raised into the loop.
var ErrDuplicateChannel = errors.New("investigation already running in this channel")

// SendFunc delivers one text message to a channel's audience.
type SendFunc func(text string) error

// InvestigationResult is the bridge's return value.
type InvestigationResult struct {
	Session            *session.Session `json:"-"`
	Summary            session.Summary  `json:"summary"`
	ReportText         string           `json:"report_text"`
	ScrubbedReportText string           `json:"scrubbed_report_text"`
	PIIScrubbed        int              `json:"pii_scrubbed"`
	Err                string           `json:"error,omitempty"`
}

// Config assembles a bridge.
type Config struct {
	Registry *tools.Registry

	// Loop is the base loop configuration. Runs the bridge starts on
	// its own (the channel path) use it directly; other callers pass
	// a per-run config derived from it. Zero value means defaults.
	Loop agent.LoopConfig

	// LLM configures the chat client behind LLM-backed policies.
	LLM llm.Config

	Policy policy.Policy // overrides provider-based selection when set
	Audit  audit.Logger  // optional
	Gate   safety.GateConfig
}

// Bridge schedules investigations and guards channels.
type Bridge struct {
	cfg Config

	// executor is shared by every run; its instance cache holds
	// collaborators that outlive a single investigation.
	executor *tools.Executor

	mu     sync.Mutex
	active map[string]string // channel id -> session id
}

// New creates a bridge.
func New(cfg Config) *Bridge {
	if cfg.Loop == (agent.LoopConfig{}) {
		cfg.Loop = agent.DefaultLoopConfig()
	}
	return &Bridge{
		cfg:      cfg,
		executor: tools.NewExecutor(cfg.Registry, cfg.Loop.ToolTimeout),
		active:   make(map[string]string),
	}
}

// ActiveChannels returns the channel ids with a running investigation.
func (b *Bridge) ActiveChannels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.active))
	for ch := range b.active {
		out = append(out, ch)
	}
	return out
}

// RunInvestigation is the primitive path: construct an agent, run the
// loop synchronously, format and scrub the report. emit may be nil.
func (b *Bridge) RunInvestigation(ctx context.Context, goal string, loopCfg agent.LoopConfig, emit agent.EmitFunc) *InvestigationResult {
	var harness *safety.Harness
	if loopCfg.EnableSafety {
		harness = safety.NewDefaultHarness(loopCfg.EnforceSafety, b.cfg.Gate)
	} else {
		harness = safety.NewNoopHarness()
	}

	a, err := agent.New(loopCfg, agent.Deps{
		Registry: b.cfg.Registry,
		Executor: b.executor,
		Policy:   b.policyFor(loopCfg),
		Harness:  harness,
		Audit:    b.cfg.Audit,
		Emit:     emit,
	})
	if err != nil {
		return &InvestigationResult{Err: err.Error()}
	}

	s, err := a.Run(ctx, goal)
	if err != nil {
		return &InvestigationResult{Session: s, Err: err.Error()}
	}

	report := agent.BuildReport(s)
	scrubbed := b.scrubForPublication(harness, report)
	metrics.PIIRedactionsTotal.Add(float64(scrubbed.PIIFound))

	return &InvestigationResult{
		Session:            s,
		Summary:            s.Summary(),
		ReportText:         report,
		ScrubbedReportText: scrubbed.ScrubbedText,
		PIIScrubbed:        scrubbed.PIIFound,
	}
}

// policyFor selects the decision policy for one run. An explicit
// heuristic request wins even when the bridge carries an LLM policy;
// the reverse request degrades to the heuristic, since the bridge
// holds no provider credentials beyond its configuration. The chat
// client behind the LLM policy is built once and shared across
// investigations through the executor's instance cache.
func (b *Bridge) policyFor(loopCfg agent.LoopConfig) policy.Policy {
	if loopCfg.LLMProvider == "heuristic" {
		return policy.NewHeuristic()
	}
	if b.cfg.Policy != nil {
		return b.cfg.Policy
	}
	switch loopCfg.LLMProvider {
	case "openai", "custom":
		inst, err := b.executor.GetOrCreate("llm_client", func() (interface{}, error) {
			return llm.NewCachedClient(llm.NewClient(b.cfg.LLM), time.Hour), nil
		})
		if err == nil {
			return policy.NewLLMPolicy(inst.(llm.Client))
		}
	}
	return policy.NewHeuristic()
}

// scrubForPublication routes the report through the run's harness. A
// disabled harness has no redactor, but the publication boundary is
// mandatory, so a standalone redactor covers that case.
func (b *Bridge) scrubForPublication(harness *safety.Harness, report string) safety.PublicationResult {
	result := harness.ScrubForPublication(report, "final_report")
	if result.ScrubbedText == report {
		if count, _ := safety.NewRedactor().Detect(report); count > 0 {
			text, n, types := safety.NewRedactor().Scrub(report)
			return safety.PublicationResult{
				ScrubbedText:    text,
				PIIFound:        n,
				PIITypes:        types,
				SecurityVerdict: result.SecurityVerdict,
				Safe:            result.Safe,
			}
		}
	}
	return result
}

// HandleInvestigateCommand is the channel-scoped path. It refuses to
// start a second run on an active channel, streams progress as text
// via send, and emits the scrubbed report on completion. The channel
// is always deregistered on exit.
func (b *Bridge) HandleInvestigateCommand(ctx context.Context, goal, channelID string, send SendFunc) *InvestigationResult {
	b.mu.Lock()
	if _, busy := b.active[channelID]; busy {
		b.mu.Unlock()
		_ = send(fmt.Sprintf("An investigation is already running in this channel (%s). Wait for it to finish.", channelID))
		return &InvestigationResult{Err: ErrDuplicateChannel.Error()}
	}
	b.active[channelID] = "pending"
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.active, channelID)
		b.mu.Unlock()
	}()

	_ = send(fmt.Sprintf("Starting investigation: %s", goal))

	loopCfg := b.cfg.Loop
	emit := func(ev progress.Event) {
		// Terminal events are reported below with the scrubbed text.
		if ev.Terminal() || ev.Type == progress.EventStarted {
			return
		}
		_ = send(ev.Text())
	}

	result := b.RunInvestigation(ctx, goal, loopCfg, emit)
	if result.Session != nil {
		b.mu.Lock()
		b.active[channelID] = result.Session.ID
		b.mu.Unlock()
	}

	if result.Err != "" {
		_ = send("Investigation failed: " + result.Err)
		return result
	}

	_ = send(result.ScrubbedReportText)
	if result.PIIScrubbed > 0 {
		_ = send(fmt.Sprintf("Note: %d item(s) of personally identifiable information were redacted from this report.", result.PIIScrubbed))
	}
	return result
}

// FormatBlocks renders the result as generic layout blocks for
// block-based chat adapters. No adapter-specific wire format: adapters
// interpret the maps.
func FormatBlocks(result *InvestigationResult) []map[string]interface{} {
	if result.Err != "" {
		return []map[string]interface{}{
			{"type": "text", "text": "Investigation failed: " + result.Err},
		}
	}
	blocks := []map[string]interface{}{
		{"type": "header", "text": "Investigation Report"},
		{"type": "text", "text": result.ScrubbedReportText},
		{"type": "context", "text": fmt.Sprintf("%d findings | %d entities | %d turns",
			result.Summary.FindingCount, result.Summary.EntityCount, result.Summary.Turns)},
	}
	if result.PIIScrubbed > 0 {
		blocks = append(blocks, map[string]interface{}{
			"type": "context",
			"text": fmt.Sprintf("%d PII item(s) redacted", result.PIIScrubbed),
		})
	}
	return blocks
}

// FormatEmbed renders the result as a single generic embed payload for
// embed-based chat adapters.
func FormatEmbed(result *InvestigationResult) map[string]interface{} {
	if result.Err != "" {
		return map[string]interface{}{
			"title":       "Investigation failed",
			"description": result.Err,
		}
	}
	return map[string]interface{}{
		"title":       "Investigation Report",
		"description": result.ScrubbedReportText,
		"fields": []map[string]interface{}{
			{"name": "Findings", "value": result.Summary.FindingCount},
			{"name": "Entities", "value": result.Summary.EntityCount},
			{"name": "Turns", "value": result.Summary.Turns},
			{"name": "PII redacted", "value": result.PIIScrubbed},
		},
	}
}

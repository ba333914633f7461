// Package agent drives one investigation: a bounded decision/execution
// cycle over the session, the tool executor and the safety harness.
//
// Responsibilities:
//   - Seed the session from the goal and enqueue built-in follow-up leads
//   - Run decide/execute turns under the turn budget and wall-clock deadline
//   - Route every tool call through the harness (pre and post checks)
//   - Derive findings and leads from tool results via the ingest rules
//   - Emit progress events without ever blocking on a slow subscriber
//   - Finalize: graph post-processing, report, audit attachment, persistence
//
// Tool-level errors never escape the loop; they degrade into failed
// turns. Cancellation and deadline breaches terminate cleanly with a
// partial session.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/osinthq/inquest/internal/audit"
	"github.com/osinthq/inquest/internal/graph"
	"github.com/osinthq/inquest/internal/metrics"
	"github.com/osinthq/inquest/internal/policy"
	"github.com/osinthq/inquest/internal/progress"
	"github.com/osinthq/inquest/internal/safety"
	"github.com/osinthq/inquest/internal/session"
	"github.com/osinthq/inquest/internal/tools"
)

// EmitFunc receives progress events. Implementations must not block;
// the bus's drop-oldest policy satisfies this.
type EmitFunc func(progress.Event)

// Deps are the collaborators an agent runs with. Registry is required;
// everything else has a working default.
type Deps struct {
	Registry *tools.Registry

	// Executor, when set, is shared with other agents so its instance
	// cache spans investigations. Nil builds a private executor from
	// Registry and the loop's tool timeout.
	Executor *tools.Executor

	Policy  policy.Policy // nil selects by LoopConfig.LLMProvider
	Harness *safety.Harness
	Audit   audit.Logger // optional
	Emit    EmitFunc     // optional
}

// Agent runs one investigation loop.
type Agent struct {
	cfg      LoopConfig
	executor *tools.Executor
	policy   policy.Policy
	harness  *safety.Harness
	audit    audit.Logger
	emit     EmitFunc
}

// New builds an agent. Configuration errors are rejected here, before
// the loop starts.
func New(cfg LoopConfig, deps Deps) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("agent requires a tool registry")
	}

	pol := deps.Policy
	if pol == nil || cfg.DemoMode {
		pol = policy.NewHeuristic()
	}

	harness := deps.Harness
	if harness == nil {
		harness = safety.NewNoopHarness()
	}
	if !cfg.EnableSafety {
		harness = safety.NewNoopHarness()
	}

	emit := deps.Emit
	if emit == nil {
		emit = func(progress.Event) {}
	}

	executor := deps.Executor
	if executor == nil {
		executor = tools.NewExecutor(deps.Registry, cfg.ToolTimeout)
	}

	return &Agent{
		cfg:      cfg,
		executor: executor,
		policy:   pol,
		harness:  harness,
		audit:    deps.Audit,
		emit:     emit,
	}, nil
}

// Run executes the investigation for goal and returns the session.
// The returned session is valid (possibly partial) even when the run
// was cancelled or every tool failed.
func (a *Agent) Run(ctx context.Context, goal string) (*session.Session, error) {
	s := session.New(goal)
	if goal == "" {
		s.RecordReasoning("refusing to investigate: no goal was provided")
		a.emit(progress.ErrorEvent("no goal provided"))
		return s, nil
	}
	return a.drive(ctx, s, false)
}

// Resume continues a previously saved session under the same budget
// rules. The seed phase is skipped; accumulated findings and open
// leads drive the next decisions.
func (a *Agent) Resume(ctx context.Context, s *session.Session) (*session.Session, error) {
	if s == nil {
		return nil, fmt.Errorf("resume requires a session")
	}
	return a.drive(ctx, s, true)
}

func (a *Agent) drive(ctx context.Context, s *session.Session, resumed bool) (*session.Session, error) {
	start := time.Now()

	if a.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Deadline)
		defer cancel()
	}

	a.logAudit(func(l audit.Logger) error { return l.LogInvestigationStarted(ctx, s.ID, s.Goal) })
	a.emit(progress.Started(s.Goal))

	if !resumed {
		a.seed(ctx, s)
	}

	cancelled := a.runTurns(ctx, s)

	a.finalize(ctx, s)

	metrics.InvestigationDuration.Observe(time.Since(start).Seconds())
	metrics.TurnsPerInvestigation.Observe(float64(s.TurnCount))

	if cancelled {
		metrics.InvestigationsTotal.WithLabelValues("cancelled").Inc()
		a.logAudit(func(l audit.Logger) error { return l.LogInvestigationFailed(ctx, s.ID, ctx.Err()) })
		a.emit(progress.ErrorEvent(cancelReason(ctx)))
		return s, nil
	}

	metrics.InvestigationsTotal.WithLabelValues("completed").Inc()
	a.logAudit(func(l audit.Logger) error { return l.LogInvestigationCompleted(ctx, s.ID, time.Since(start)) })
	a.emit(progress.Completed(SummaryLine(s)))
	return s, nil
}

// seed performs the initial goal-derived tool call and enqueues the
// built-in follow-up leads. Counts as zero turns.
func (a *Agent) seed(ctx context.Context, s *session.Session) {
	action := policy.Action{
		Tool:      "entity_search",
		Args:      map[string]interface{}{"query": s.Goal},
		Reasoning: "seeding the investigation with an entity search on the goal",
	}
	s.RecordReasoning(action.Reasoning)
	outcome := a.runAction(ctx, s, action)

	if outcome.ok && len(s.EntityIndex) > 0 {
		if a.cfg.AutoSanctionsScreen {
			lead := s.AddLead(session.Lead{
				Description: "screen discovered entities against sanctions lists",
				Priority:    0.8,
				Tool:        "sanctions_screen",
				Query:       s.Goal,
			})
			a.emit(progress.LeadEvent(lead.Description, lead.Priority))
		}
		if a.cfg.AutoNewsCheck {
			lead := s.AddLead(session.Lead{
				Description: "check recent news coverage of the target",
				Priority:    0.6,
				Tool:        "news_search",
				Query:       s.Goal,
			})
			a.emit(progress.LeadEvent(lead.Description, lead.Priority))
		}
	}
}

// runTurns executes decide/execute turns until the policy concludes,
// the budget is spent, or the context ends. Returns true when the run
// was cancelled.
func (a *Agent) runTurns(ctx context.Context, s *session.Session) bool {
	for s.TurnCount < a.cfg.MaxTurns {
		if ctx.Err() != nil {
			s.RecordReasoning("investigation aborted by caller: " + cancelReason(ctx))
			return true
		}

		action := a.policy.Decide(ctx, s)
		s.RecordReasoning(action.Reasoning)

		if action.Conclude() {
			a.emit(progress.ProgressMsg("concluding: " + action.Reasoning))
			return false
		}

		outcome := a.runAction(ctx, s, action)
		if outcome.cancelled {
			s.RecordReasoning("investigation aborted by caller: " + cancelReason(ctx))
			return true
		}

		s.TurnCount++
		a.emit(progress.TurnEvent(s.TurnCount, action.Tool, action.Reasoning))
		if outcome.ok {
			a.emit(progress.FindingEvent(outcome.finding.Source, outcome.finding.Summary, outcome.finding.Confidence))
		}
	}
	return false
}

// actionOutcome summarizes one executed (or skipped) action.
type actionOutcome struct {
	ok        bool
	cancelled bool
	finding   session.Finding
}

// runAction pushes one action through pre-check, execution, post-check
// and ingestion. Tool failures degrade into a failed outcome; they are
// recorded but never propagated.
func (a *Agent) runAction(ctx context.Context, s *session.Session, action policy.Action) actionOutcome {
	leadID, _ := action.Args["lead_id"].(string)
	if leadID != "" {
		s.ResolveLead(leadID, session.LeadInvestigating)
	}

	verdict := a.harness.PreCheck(action.Tool, action.Args, a.cfg.EstimatedToolCost)
	a.logSafety(ctx, s.ID, action.Tool, safety.ModePre, verdictLabel(verdict))

	// A rate-limited block is retried once after the gate's
	// recommended delay, then recorded as failed.
	if verdict.Blocked && verdict.RateLimited {
		if !sleepCtx(ctx, verdict.RetryAfter) {
			return actionOutcome{cancelled: true}
		}
		verdict = a.harness.PreCheck(action.Tool, action.Args, a.cfg.EstimatedToolCost)
		a.logSafety(ctx, s.ID, action.Tool, safety.ModePre, verdictLabel(verdict))
	}

	if verdict.Blocked {
		metrics.ToolCallsTotal.WithLabelValues(action.Tool, "blocked").Inc()
		s.RecordReasoning(fmt.Sprintf("action %s blocked by safety harness: %s", action.Tool, verdict.Reason))
		s.RecordToolUse(action.Tool, stringify(action.Args), "blocked: "+verdict.Reason)
		a.failLead(s, leadID)
		return actionOutcome{}
	}

	started := time.Now()
	result, err := a.executor.Execute(ctx, action.Tool, tools.Args(action.Args))
	elapsed := time.Since(started)
	metrics.ToolCallDuration.WithLabelValues(action.Tool).Observe(elapsed.Seconds())
	a.logAudit(func(l audit.Logger) error {
		return l.LogToolExecution(ctx, s.ID, action.Tool, elapsed, err)
	})

	if err != nil {
		// The per-call deadline lives on a child context, so a live
		// parent with a timeout error means the tool timed out; a dead
		// parent means the caller cancelled or the wall clock ran out.
		if ctx.Err() != nil {
			return actionOutcome{cancelled: true}
		}
		metrics.ToolCallsTotal.WithLabelValues(action.Tool, errorLabel(err)).Inc()
		a.harness.ReportToolFailure(action.Tool)
		// The error text is all the output a failed call has; it still
		// goes through the post-check so every executed call leaves one
		// pre and one post entry in the audit trail.
		post := a.harness.PostCheck(err.Error(), action.Tool)
		a.logSafety(ctx, s.ID, action.Tool, safety.ModePost, post.SecurityVerdict)
		s.RecordReasoning(fmt.Sprintf("tool %s failed: %v", action.Tool, err))
		s.RecordToolUse(action.Tool, stringify(action.Args), "error: "+err.Error())
		a.failLead(s, leadID)
		return actionOutcome{}
	}

	post := a.harness.PostCheck(stringify(map[string]interface{}(result)), action.Tool)
	a.logSafety(ctx, s.ID, action.Tool, safety.ModePost, post.SecurityVerdict)
	if !post.Safe {
		s.RecordReasoning(fmt.Sprintf("tool %s output flagged by monitor: %v", action.Tool, post.SecurityFlags))
	}

	finding, newIDs := ingest(s, action.Tool, result)
	for _, lead := range deriveLeads(s, finding.ID, result, newIDs) {
		a.emit(progress.LeadEvent(lead.Description, lead.Priority))
	}

	metrics.ToolCallsTotal.WithLabelValues(action.Tool, "ok").Inc()
	a.harness.ReportToolSuccess(action.Tool)
	a.harness.RecordSpend(a.cfg.EstimatedToolCost)
	s.RecordToolUse(action.Tool, stringify(action.Args), finding.Summary)

	if leadID != "" {
		s.ResolveLead(leadID, session.LeadResolved)
	}
	return actionOutcome{ok: true, finding: finding}
}

// finalize attaches post-processing artifacts and persists the session.
// Failures here are recorded on the session but never invalidate the
// findings that preceded them. Not cancellable once entered.
func (a *Agent) finalize(ctx context.Context, s *session.Session) {
	if a.cfg.GenerateGraph {
		s.InvestigationGraph = graph.Build(s.EntityIndex)
	}
	s.SafetyAudit = a.harness.AuditSummary()

	if a.cfg.PersistPath != "" {
		path := fmt.Sprintf("%s/%s.json", a.cfg.PersistPath, s.ID)
		if err := session.SaveFile(s, path); err != nil {
			s.RecordReasoning("failed to persist session: " + err.Error())
			a.logAudit(func(l audit.Logger) error {
				return l.Log(ctx, audit.NewEvent(audit.EventSystemError).
					WithSession(s.ID).
					WithError(err).
					WithDescription("session persistence failed"))
			})
		} else {
			a.logAudit(func(l audit.Logger) error {
				return l.Log(ctx, audit.NewEvent(audit.EventSessionSaved).
					WithSession(s.ID).
					WithDescription(path).
					WithResult(audit.ResultSuccess))
			})
		}
	}
}

func (a *Agent) failLead(s *session.Session, leadID string) {
	if leadID != "" {
		s.ResolveLead(leadID, session.LeadDeadEnd)
	}
}

func (a *Agent) logAudit(fn func(audit.Logger) error) {
	if a.audit != nil {
		_ = fn(a.audit)
	}
}

func (a *Agent) logSafety(ctx context.Context, sessionID, tool, mode, verdict string) {
	metrics.SafetyChecksTotal.WithLabelValues(mode, verdict).Inc()
	if a.audit != nil {
		_ = a.audit.LogSafetyVerdict(ctx, sessionID, tool, mode, verdict)
	}
}

func verdictLabel(v safety.PreCheckVerdict) string {
	switch {
	case v.Blocked:
		return safety.ResultBlock
	case v.Reason != "":
		return safety.ResultObserve
	default:
		return safety.ResultAllow
	}
}

func errorLabel(err error) string {
	switch {
	case errors.Is(err, tools.ErrTimeout):
		return "timeout"
	case errors.Is(err, tools.ErrUnknownTool):
		return "unknown"
	default:
		return "error"
	}
}

func cancelReason(ctx context.Context) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "deadline"
	}
	return "cancelled"
}

// sleepCtx waits for d unless the context ends first. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func stringify(v map[string]interface{}) string {
	if len(v) == 0 {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// Package safety provides the two-mode safety harness that sits on
// every tool input and output and on every outward-facing report.
//
// Responsibilities:
//   - Pre-check proposed tool calls against the policy gate and monitor
//   - Post-check tool output for PII and injection patterns (detect-only)
//   - Scrub publication-facing text so no PII leaves the runtime
//   - Keep a per-investigation audit trail of every check
//
// The harness composes three independently pluggable sub-gates:
//
//	policy gate: intent restrictions, budget, rate limit, breaker
//	monitor:     injection/traversal detectors over text
//	redactor:    PII detector and replacement
//
// Any sub-gate may be absent; a harness with all three absent is a
// no-op. Modes: in observe mode (the default during investigation) a
// blocking pre-check verdict is recorded in the audit trail but the
// call proceeds; in enforce mode the call is skipped. Publication
// scrubbing is mandatory in both modes.
package safety

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Audit results.
const (
	ResultAllow   = "ALLOW"
	ResultObserve = "OBSERVE"
	ResultBlock   = "BLOCK"
	ResultClean   = "CLEAN"
	ResultFlagged = "FLAGGED"
)

// Audit modes.
const (
	ModePre     = "pre"
	ModePost    = "post"
	ModePublish = "publish"
)

// PreCheckVerdict is the harness's answer before tool execution.
type PreCheckVerdict struct {
	Allowed     bool          `json:"allowed"`
	Blocked     bool          `json:"blocked"`
	Reason      string        `json:"reason,omitempty"`
	RateLimited bool          `json:"rate_limited"`
	RetryAfter  time.Duration `json:"-"`
}

// PostCheckResult is the harness's answer after tool execution. In
// observe mode ScrubbedText equals the input.
type PostCheckResult struct {
	ScrubbedText    string   `json:"scrubbed_text"`
	PIIFound        int      `json:"pii_found"`
	PIITypes        []string `json:"pii_types,omitempty"`
	SecurityFlags   []string `json:"security_flags,omitempty"`
	SecurityVerdict string   `json:"security_verdict"`
	Safe            bool     `json:"safe"`
}

// PublicationResult has the same shape as PostCheckResult but its
// ScrubbedText is guaranteed PII-free.
type PublicationResult struct {
	ScrubbedText    string   `json:"scrubbed_text"`
	PIIFound        int      `json:"pii_found"`
	PIITypes        []string `json:"pii_types,omitempty"`
	SecurityFlags   []string `json:"security_flags,omitempty"`
	SecurityVerdict string   `json:"security_verdict"`
	Safe            bool     `json:"safe"`
}

// AuditEntry records one harness check.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Mode      string    `json:"mode"`
	Tool      string    `json:"tool,omitempty"`
	Result    string    `json:"result"`
	Details   string    `json:"details,omitempty"`
}

// Config assembles a harness. Nil sub-gates are absent, not defaulted.
type Config struct {
	Enforce  bool
	Gate     *Gate
	Monitor  *Monitor
	Redactor *Redactor
}

// Harness is the per-investigation safety gate stack.
type Harness struct {
	enforce  bool
	gate     *Gate
	monitor  *Monitor
	redactor *Redactor

	mu     sync.Mutex
	trail  []AuditEntry
	blocks int
}

// NewHarness builds a harness from config.
func NewHarness(cfg Config) *Harness {
	return &Harness{
		enforce:  cfg.Enforce,
		gate:     cfg.Gate,
		monitor:  cfg.Monitor,
		redactor: cfg.Redactor,
	}
}

// NewDefaultHarness builds a harness with all three sub-gates enabled.
func NewDefaultHarness(enforce bool, gateCfg GateConfig) *Harness {
	return NewHarness(Config{
		Enforce:  enforce,
		Gate:     NewGate(gateCfg),
		Monitor:  NewMonitor(),
		Redactor: NewRedactor(),
	})
}

// NewNoopHarness builds a fully disabled harness.
func NewNoopHarness() *Harness {
	return NewHarness(Config{})
}

// Enforce reports whether blocked pre-checks skip the action.
func (h *Harness) Enforce() bool { return h.enforce }

func (h *Harness) record(mode, tool, result, details string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trail = append(h.trail, AuditEntry{
		Timestamp: time.Now().UTC(),
		Mode:      mode,
		Tool:      tool,
		Result:    result,
		Details:   details,
	})
	if result == ResultBlock {
		h.blocks++
	}
}

// PreCheck evaluates a proposed tool call. Sub-gate order: policy gate
// on (tool, cost), then the monitor over the serialized arguments. The
// first BLOCK stops evaluation. In observe mode the verdict is always
// allowed; the blocking reason goes to the audit trail instead.
func (h *Harness) PreCheck(tool string, args map[string]interface{}, cost float64) PreCheckVerdict {
	if h.gate != nil {
		gv := h.gate.Check(tool, cost)
		if !gv.Allowed {
			return h.blockVerdict(tool, gv.Reason, gv.RateLimited, gv.RetryAfter)
		}
	}

	if h.monitor != nil && len(args) > 0 {
		text := stringifyArgs(args)
		if flags, verdict := h.monitor.Check(text); verdict == VerdictBlock {
			return h.blockVerdict(tool, fmt.Sprintf("monitor flags: %v", flags), false, 0)
		}
	}

	h.record(ModePre, tool, ResultAllow, "")
	return PreCheckVerdict{Allowed: true}
}

func (h *Harness) blockVerdict(tool, reason string, rateLimited bool, retryAfter time.Duration) PreCheckVerdict {
	if h.enforce {
		h.record(ModePre, tool, ResultBlock, reason)
		return PreCheckVerdict{Blocked: true, Reason: reason, RateLimited: rateLimited, RetryAfter: retryAfter}
	}
	h.record(ModePre, tool, ResultObserve, reason)
	return PreCheckVerdict{Allowed: true, Reason: reason, RateLimited: rateLimited, RetryAfter: retryAfter}
}

// PostCheck inspects tool output. The redactor runs detect-only; the
// monitor runs over the unscrubbed text. In observe mode ScrubbedText
// always equals the input.
func (h *Harness) PostCheck(text, tool string) PostCheckResult {
	result := PostCheckResult{
		ScrubbedText:    text,
		SecurityVerdict: VerdictClean,
		Safe:            true,
	}

	if h.redactor != nil {
		count, types := h.redactor.Detect(text)
		result.PIIFound = count
		result.PIITypes = types
		if h.enforce && count > 0 {
			scrubbed, _, _ := h.redactor.Scrub(text)
			result.ScrubbedText = scrubbed
		}
	}

	if h.monitor != nil {
		flags, verdict := h.monitor.Check(text)
		result.SecurityFlags = flags
		result.SecurityVerdict = verdict
		result.Safe = verdict != VerdictBlock
	}

	auditResult := ResultClean
	if result.PIIFound > 0 || len(result.SecurityFlags) > 0 {
		auditResult = ResultFlagged
	}
	h.record(ModePost, tool, auditResult,
		fmt.Sprintf("pii=%d verdict=%s", result.PIIFound, result.SecurityVerdict))

	return result
}

// ScrubForPublication removes all detected PII from text. This is the
// publication boundary: scrubbing happens regardless of mode.
func (h *Harness) ScrubForPublication(text, context string) PublicationResult {
	result := PublicationResult{
		ScrubbedText:    text,
		SecurityVerdict: VerdictClean,
		Safe:            true,
	}

	if h.redactor != nil {
		scrubbed, count, types := h.redactor.Scrub(text)
		result.ScrubbedText = scrubbed
		result.PIIFound = count
		result.PIITypes = types
	}

	if h.monitor != nil {
		flags, verdict := h.monitor.Check(result.ScrubbedText)
		result.SecurityFlags = flags
		result.SecurityVerdict = verdict
		result.Safe = verdict != VerdictBlock
	}

	auditResult := ResultClean
	if result.PIIFound > 0 {
		auditResult = ResultFlagged
	}
	h.record(ModePublish, context, auditResult, fmt.Sprintf("pii=%d", result.PIIFound))

	return result
}

// ScrubMapForPublication walks an arbitrary string-keyed structure and
// scrubs every string leaf. Returns the scrubbed copy and the total
// detection count.
func (h *Harness) ScrubMapForPublication(obj map[string]interface{}, context string) (map[string]interface{}, int) {
	total := 0
	out := h.scrubValue(obj, &total).(map[string]interface{})
	auditResult := ResultClean
	if total > 0 {
		auditResult = ResultFlagged
	}
	h.record(ModePublish, context, auditResult, fmt.Sprintf("pii=%d", total))
	return out, total
}

func (h *Harness) scrubValue(v interface{}, total *int) interface{} {
	switch val := v.(type) {
	case string:
		if h.redactor == nil {
			return val
		}
		scrubbed, count, _ := h.redactor.Scrub(val)
		*total += count
		return scrubbed
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[k] = h.scrubValue(inner, total)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = h.scrubValue(inner, total)
		}
		return out
	default:
		return v
	}
}

// ReportToolSuccess feeds the circuit breaker.
func (h *Harness) ReportToolSuccess(tool string) {
	if h.gate != nil {
		h.gate.ReportSuccess(tool)
	}
}

// ReportToolFailure feeds the circuit breaker.
func (h *Harness) ReportToolFailure(tool string) {
	if h.gate != nil {
		h.gate.ReportFailure(tool)
	}
}

// RecordSpend reports actual observed cost back to the budget.
func (h *Harness) RecordSpend(cost float64) {
	if h.gate != nil {
		h.gate.RecordSpend(cost)
	}
}

// AuditTrail returns a copy of the audit entries so far.
func (h *Harness) AuditTrail() []AuditEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]AuditEntry, len(h.trail))
	copy(out, h.trail)
	return out
}

// AuditSummary renders the trail into the opaque bag attached to the
// session after the loop terminates.
func (h *Harness) AuditSummary() map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := make([]interface{}, 0, len(h.trail))
	for _, e := range h.trail {
		entries = append(entries, map[string]interface{}{
			"timestamp": e.Timestamp.Format(time.RFC3339Nano),
			"mode":      e.Mode,
			"tool":      e.Tool,
			"result":    e.Result,
			"details":   e.Details,
		})
	}
	mode := "observe"
	if h.enforce {
		mode = "enforce"
	}
	return map[string]interface{}{
		"mode":         mode,
		"total_checks": len(h.trail),
		"blocks":       h.blocks,
		"entries":      entries,
	}
}

func stringifyArgs(args map[string]interface{}) string {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(data)
}

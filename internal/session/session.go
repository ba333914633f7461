// Package session holds the mutable state of one investigation.
//
// Responsibilities:
//   - Accumulate findings, leads and the entity index as tools report back
//   - Keep an ordered tool history and reasoning trace for the audit artifact
//   - Render compact snapshots for the decision policy (ContextForLLM)
//   - Serialize to and from the versioned JSON form used for resume and audit
//
// A Session is owned by exactly one agent loop at a time and is not
// safe for concurrent mutation. The loop never suspends while mutating
// session state, so no locking is needed here.
package session

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Lead status transitions. Leads never change any other field after creation.
const (
	LeadOpen          = "open"
	LeadInvestigating = "investigating"
	LeadResolved      = "resolved"
	LeadDeadEnd       = "dead_end"
)

// Entity is a schema-tagged record with id-keyed property lists.
// Relationships are entities too; they name their endpoints by id
// inside Properties rather than holding pointers.
type Entity struct {
	ID         string              `json:"id"`
	Schema     string              `json:"schema"`
	Properties map[string][]string `json:"properties"`
}

// Name returns the first "name" property, falling back to the id.
func (e *Entity) Name() string {
	if vals, ok := e.Properties["name"]; ok && len(vals) > 0 {
		return vals[0]
	}
	return e.ID
}

// Finding is an attested observation produced by a single tool call.
// Once added to a session a finding is immutable.
type Finding struct {
	ID            string                 `json:"id"`
	Source        string                 `json:"source"`
	Summary       string                 `json:"summary"`
	Entities      []Entity               `json:"entities,omitempty"`
	Relationships []Entity               `json:"relationships,omitempty"`
	Confidence    float64                `json:"confidence"`
	Timestamp     time.Time              `json:"timestamp"`
	RawData       map[string]interface{} `json:"raw_data,omitempty"`
}

// Lead is a suggested follow-up derived from a finding.
type Lead struct {
	ID            string    `json:"id"`
	Description   string    `json:"description"`
	Priority      float64   `json:"priority"`
	SourceFinding string    `json:"source_finding,omitempty"`
	Query         string    `json:"query,omitempty"`
	Tool          string    `json:"tool,omitempty"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// ToolUse is one entry in the ordered tool history.
type ToolUse struct {
	Tool          string    `json:"tool"`
	Args          string    `json:"args"`
	ResultSummary string    `json:"result_summary"`
	Timestamp     time.Time `json:"timestamp"`
}

// Summary is the compact status view of a session.
type Summary struct {
	SessionID    string    `json:"session_id"`
	Goal         string    `json:"goal"`
	StartedAt    time.Time `json:"started_at"`
	Turns        int       `json:"turns"`
	EntityCount  int       `json:"entity_count"`
	FindingCount int       `json:"finding_count"`
	LeadsOpen    int       `json:"leads_open"`
	LeadsTotal   int       `json:"leads_total"`
	ToolsUsed    int       `json:"tools_used"`
	UniqueTools  []string  `json:"unique_tools"`
}

// Session is the mutable state of one investigation.
type Session struct {
	ID             string
	Goal           string
	StartedAt      time.Time
	TurnCount      int
	Findings       []Finding
	Leads          []Lead
	EntityIndex    map[string]*Entity
	ToolHistory    []ToolUse
	ReasoningTrace []string

	// Opaque bags attached by post-processing. Round-tripped by the
	// codec but never interpreted by the session itself.
	InvestigationGraph map[string]interface{}
	SafetyAudit        map[string]interface{}
}

// New creates an empty session for the given goal.
func New(goal string) *Session {
	return &Session{
		ID:          uuid.New().String(),
		Goal:        goal,
		StartedAt:   time.Now().UTC(),
		EntityIndex: make(map[string]*Entity),
	}
}

// AddFinding appends a finding and indexes every referenced entity.
// Duplicate entity ids merge property values into the existing lists,
// preserving insertion order and deduplicating per key. Returns the
// stored finding with its generated id.
func (s *Session) AddFinding(f Finding) Finding {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	s.Findings = append(s.Findings, f)

	for i := range f.Entities {
		s.indexEntity(&f.Entities[i])
	}
	for i := range f.Relationships {
		s.indexEntity(&f.Relationships[i])
	}
	return f
}

func (s *Session) indexEntity(e *Entity) {
	if e.ID == "" {
		return
	}
	existing, ok := s.EntityIndex[e.ID]
	if !ok {
		cp := Entity{ID: e.ID, Schema: e.Schema, Properties: make(map[string][]string, len(e.Properties))}
		for k, vals := range e.Properties {
			cp.Properties[k] = append([]string(nil), vals...)
		}
		s.EntityIndex[e.ID] = &cp
		return
	}
	for k, vals := range e.Properties {
		for _, v := range vals {
			if !contains(existing.Properties[k], v) {
				if existing.Properties == nil {
					existing.Properties = make(map[string][]string)
				}
				existing.Properties[k] = append(existing.Properties[k], v)
			}
		}
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// AddLead appends a lead with status open. Returns the stored lead
// with its generated id.
func (s *Session) AddLead(l Lead) Lead {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Status == "" {
		l.Status = LeadOpen
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now().UTC()
	}
	s.Leads = append(s.Leads, l)
	return l
}

// OpenLeads returns leads with status open, sorted by priority
// descending. Ties keep insertion order.
func (s *Session) OpenLeads() []Lead {
	var open []Lead
	for _, l := range s.Leads {
		if l.Status == LeadOpen {
			open = append(open, l)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		return open[i].Priority > open[j].Priority
	})
	return open
}

// ResolveLead transitions the lead with the given id to the given
// status. Unknown ids are ignored.
func (s *Session) ResolveLead(id, status string) {
	for i := range s.Leads {
		if s.Leads[i].ID == id {
			s.Leads[i].Status = status
			return
		}
	}
}

// RecordToolUse appends one entry to the tool history.
func (s *Session) RecordToolUse(tool, args, resultSummary string) {
	s.ToolHistory = append(s.ToolHistory, ToolUse{
		Tool:          tool,
		Args:          args,
		ResultSummary: resultSummary,
		Timestamp:     time.Now().UTC(),
	})
}

// RecordReasoning appends one entry to the reasoning trace.
func (s *Session) RecordReasoning(text string) {
	s.ReasoningTrace = append(s.ReasoningTrace, text)
}

// Summary returns the compact status view.
func (s *Session) Summary() Summary {
	open := 0
	for _, l := range s.Leads {
		if l.Status == LeadOpen {
			open++
		}
	}
	seen := make(map[string]bool)
	var unique []string
	for _, tu := range s.ToolHistory {
		if !seen[tu.Tool] {
			seen[tu.Tool] = true
			unique = append(unique, tu.Tool)
		}
	}
	return Summary{
		SessionID:    s.ID,
		Goal:         s.Goal,
		StartedAt:    s.StartedAt,
		Turns:        s.TurnCount,
		EntityCount:  len(s.EntityIndex),
		FindingCount: len(s.Findings),
		LeadsOpen:    open,
		LeadsTotal:   len(s.Leads),
		ToolsUsed:    len(s.ToolHistory),
		UniqueTools:  unique,
	}
}

// ContextForLLM renders a compact textual snapshot for the decision
// policy: goal, turn, counts, the last five findings, up to five
// top-priority open leads, and up to ten entities. Output is truncated
// to maxChars with a trailing marker if exceeded.
func (s *Session) ContextForLLM(maxChars int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Investigation goal: %s\n", s.Goal)
	fmt.Fprintf(&b, "Turn: %d | Findings: %d | Entities: %d | Open leads: %d\n",
		s.TurnCount, len(s.Findings), len(s.EntityIndex), len(s.OpenLeads()))

	if len(s.Findings) > 0 {
		b.WriteString("\nRecent findings:\n")
		start := len(s.Findings) - 5
		if start < 0 {
			start = 0
		}
		for _, f := range s.Findings[start:] {
			fmt.Fprintf(&b, "- [%s] %s (confidence %.2f)\n", f.Source, f.Summary, f.Confidence)
		}
	}

	open := s.OpenLeads()
	if len(open) > 0 {
		b.WriteString("\nOpen leads (highest priority first):\n")
		if len(open) > 5 {
			open = open[:5]
		}
		for _, l := range open {
			fmt.Fprintf(&b, "- (%.2f) %s", l.Priority, l.Description)
			if l.Tool != "" {
				fmt.Fprintf(&b, " [tool: %s", l.Tool)
				if l.Query != "" {
					fmt.Fprintf(&b, ", query: %s", l.Query)
				}
				b.WriteString("]")
			}
			b.WriteString("\n")
		}
	}

	if len(s.EntityIndex) > 0 {
		b.WriteString("\nKnown entities:\n")
		ids := make([]string, 0, len(s.EntityIndex))
		for id := range s.EntityIndex {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		if len(ids) > 10 {
			ids = ids[:10]
		}
		for _, id := range ids {
			e := s.EntityIndex[id]
			fmt.Fprintf(&b, "- %s (%s)\n", e.Name(), e.Schema)
		}
	}

	out := b.String()
	if maxChars > 0 && len(out) > maxChars {
		marker := "\n[...truncated]"
		cut := maxChars - len(marker)
		if cut < 0 {
			cut = 0
		}
		out = out[:cut] + marker
	}
	return out
}

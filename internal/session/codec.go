package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// codecVersion is the on-disk schema version written by Save.
const codecVersion = 1

// ErrInvalidSession is returned when a persisted document cannot be
// reconstructed into a usable session.
var ErrInvalidSession = errors.New("invalid session document")

// document is the versioned JSON form of a session. Timestamps are
// ISO-8601 UTC strings. Unknown top-level keys are ignored on load;
// missing optional keys default to empty.
type document struct {
	Version            int                    `json:"version"`
	ID                 string                 `json:"id"`
	Goal               string                 `json:"goal"`
	StartedAt          string                 `json:"started_at"`
	TurnCount          int                    `json:"turn_count"`
	Findings           []Finding              `json:"findings"`
	Leads              []Lead                 `json:"leads"`
	EntityIndex        map[string]*Entity     `json:"entity_index"`
	ToolHistory        []ToolUse              `json:"tool_history"`
	ReasoningTrace     []string               `json:"reasoning_trace"`
	InvestigationGraph map[string]interface{} `json:"investigation_graph,omitempty"`
	SafetyAudit        map[string]interface{} `json:"safety_audit,omitempty"`
}

// Save serializes the session to its versioned JSON form.
func Save(s *Session) ([]byte, error) {
	doc := document{
		Version:            codecVersion,
		ID:                 s.ID,
		Goal:               s.Goal,
		StartedAt:          s.StartedAt.UTC().Format(time.RFC3339Nano),
		TurnCount:          s.TurnCount,
		Findings:           s.Findings,
		Leads:              s.Leads,
		EntityIndex:        s.EntityIndex,
		ToolHistory:        s.ToolHistory,
		ReasoningTrace:     s.ReasoningTrace,
		InvestigationGraph: s.InvestigationGraph,
		SafetyAudit:        s.SafetyAudit,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing session %s: %w", s.ID, err)
	}
	return data, nil
}

// Load reconstructs a session from its serialized form. Entities are
// re-indexed from the findings, then the standalone entity index is
// overlaid for anything not referenced from a finding.
func Load(data []byte) (*Session, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if doc.Version != codecVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSession, doc.Version)
	}
	if doc.ID == "" || doc.Goal == "" {
		return nil, fmt.Errorf("%w: missing id or goal", ErrInvalidSession)
	}

	startedAt, err := time.Parse(time.RFC3339Nano, doc.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: bad started_at %q", ErrInvalidSession, doc.StartedAt)
	}

	s := &Session{
		ID:                 doc.ID,
		Goal:               doc.Goal,
		StartedAt:          startedAt,
		TurnCount:          doc.TurnCount,
		Leads:              doc.Leads,
		ToolHistory:        doc.ToolHistory,
		ReasoningTrace:     doc.ReasoningTrace,
		EntityIndex:        make(map[string]*Entity),
		InvestigationGraph: doc.InvestigationGraph,
		SafetyAudit:        doc.SafetyAudit,
	}

	for _, f := range doc.Findings {
		s.AddFinding(f)
	}
	for id, e := range doc.EntityIndex {
		if _, ok := s.EntityIndex[id]; !ok {
			s.EntityIndex[id] = e
		}
	}
	return s, nil
}

// SaveFile writes the serialized session to path, creating parent
// directories as needed.
func SaveFile(s *Session, path string) error {
	data, err := Save(s)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating session directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}
	return nil
}

// LoadFile reads and reconstructs a session from path.
func LoadFile(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}
	return Load(data)
}

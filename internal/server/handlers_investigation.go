package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/osinthq/inquest/internal/agent"
	"github.com/osinthq/inquest/internal/db"
	"github.com/osinthq/inquest/internal/progress"
	"github.com/osinthq/inquest/internal/safety"
	"github.com/osinthq/inquest/internal/session"
)

// handleInvestigations routes GET (list) and POST (create).
func (s *Server) handleInvestigations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListInvestigations(w, r)
	case http.MethodPost:
		s.handleCreateInvestigation(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListInvestigations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	status := r.URL.Query().Get("status")

	list, err := s.store.List(r.Context(), limit, status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*db.Investigation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"investigations": list,
		"count":          len(list),
	})
}

// createRequest is the POST /api/investigations body.
type createRequest struct {
	Goal          string `json:"goal"`
	MaxTurns      int    `json:"max_turns,omitempty"`
	LLMProvider   string `json:"llm_provider,omitempty"`
	AutoSanctions *bool  `json:"auto_sanctions,omitempty"`
	AutoNews      *bool  `json:"auto_news,omitempty"`
	Enforce       *bool  `json:"enforce,omitempty"`
	// DryRun forces the deterministic demo configuration: heuristic
	// policy over fixture data, nothing persisted to disk.
	DryRun bool `json:"dry_run,omitempty"`
}

// applyCreateRequest overlays per-request overrides on the configured
// loop defaults.
func (s *Server) applyCreateRequest(req createRequest) agent.LoopConfig {
	loopCfg := s.loopConfig()
	if req.MaxTurns > 0 {
		loopCfg.MaxTurns = req.MaxTurns
	}
	if req.LLMProvider != "" {
		loopCfg.LLMProvider = req.LLMProvider
	}
	if req.AutoSanctions != nil {
		loopCfg.AutoSanctionsScreen = *req.AutoSanctions
	}
	if req.AutoNews != nil {
		loopCfg.AutoNewsCheck = *req.AutoNews
	}
	if req.Enforce != nil {
		loopCfg.EnforceSafety = *req.Enforce
	}
	if req.DryRun {
		loopCfg.DemoMode = true
		loopCfg.PersistPath = ""
	}
	return loopCfg
}

// handleCreateInvestigation accepts the goal, records a running entry
// and launches the loop in the background. The response returns
// immediately with the id and the stream URL.
func (s *Server) handleCreateInvestigation(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Goal) == "" {
		http.Error(w, "goal is required", http.StatusBadRequest)
		return
	}

	loopCfg := s.applyCreateRequest(req)

	inv := &db.Investigation{
		ID:        uuid.NewString(),
		Goal:      req.Goal,
		Status:    db.StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := s.launchInvestigation(inv, loopCfg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":         inv.ID,
		"goal":       inv.Goal,
		"status":     inv.Status,
		"started_at": inv.StartedAt.Format(time.RFC3339),
		"stream_url": "/ws/investigations/" + inv.ID,
	})
}

// launchInvestigation records the running entry and starts the loop in
// the background.
func (s *Server) launchInvestigation(inv *db.Investigation, loopCfg agent.LoopConfig) error {
	if err := s.store.Put(s.ctx, inv); err != nil {
		return err
	}
	s.wg.Add(1)
	go s.runInvestigation(inv, loopCfg)
	return nil
}

// runInvestigation drives one background run and records the terminal
// state. Progress events fan out on the bus keyed by investigation id.
// The terminal event is held back until the store row is terminal, so
// a stream handler that reads a running record after subscribing
// cannot have missed it.
func (s *Server) runInvestigation(inv *db.Investigation, loopCfg agent.LoopConfig) {
	defer s.wg.Done()

	var terminal progress.Event
	sawTerminal := false
	emit := func(ev progress.Event) {
		if ev.Terminal() {
			terminal = ev
			sawTerminal = true
			return
		}
		s.bus.Publish(inv.ID, ev)
	}

	result := s.bridge.RunInvestigation(s.ctx, inv.Goal, loopCfg, emit)

	inv.CompletedAt = time.Now().UTC()
	if result.Err != "" {
		inv.Status = db.StatusFailed
		inv.Error = result.Err
	} else {
		inv.Status = db.StatusCompleted
	}
	if result.Session != nil {
		if data, err := session.Save(result.Session); err == nil {
			inv.SessionJSON = data
		}
	}
	// Background context: the request that created the record is gone.
	_ = s.store.Put(context.Background(), inv)

	// A run that died before emitting (a config rejection, for one)
	// still owes its subscribers a terminal frame.
	if !sawTerminal {
		terminal = terminalEventFor(inv)
	}
	s.bus.Publish(inv.ID, terminal)
}

// handleInvestigationByID routes GET /{id} and POST /{id}/export.
func (s *Server) handleInvestigationByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/investigations/")
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" {
		http.Error(w, "investigation id required", http.StatusBadRequest)
		return
	}

	if id, ok := strings.CutSuffix(rest, "/export"); ok {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleExportInvestigation(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.handleGetInvestigation(w, r, rest)
}

func (s *Server) handleGetInvestigation(w http.ResponseWriter, r *http.Request, id string) {
	inv, err := s.store.Get(r.Context(), id)
	if err == db.ErrNotFound {
		http.Error(w, "investigation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	body := map[string]interface{}{
		"id":           inv.ID,
		"goal":         inv.Goal,
		"status":       inv.Status,
		"started_at":   inv.StartedAt.Format(time.RFC3339),
		"completed_at": formatOptionalTime(inv.CompletedAt),
		"error":        inv.Error,
		"has_session":  len(inv.SessionJSON) > 0,
	}

	// Once the session document is stored the status answer carries
	// the full trace: counts, findings, reasoning and the safety audit.
	if len(inv.SessionJSON) > 0 {
		if sess, err := session.Load(inv.SessionJSON); err == nil {
			body["summary"] = sess.Summary()
			body["findings"] = sess.Findings
			body["reasoning"] = sess.ReasoningTrace
			body["safety_audit"] = sess.SafetyAudit
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// handleExportInvestigation renders the stored session as a report.
// Export is a publication boundary, so the report is always scrubbed
// regardless of the run's safety mode.
func (s *Server) handleExportInvestigation(w http.ResponseWriter, r *http.Request, id string) {
	inv, err := s.store.Get(r.Context(), id)
	if err == db.ErrNotFound {
		http.Error(w, "investigation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if inv.Status == db.StatusRunning {
		http.Error(w, "investigation still running", http.StatusConflict)
		return
	}
	if len(inv.SessionJSON) == 0 {
		http.Error(w, "no session recorded for this investigation", http.StatusNotFound)
		return
	}

	sess, err := session.Load(inv.SessionJSON)
	if err != nil {
		http.Error(w, "stored session is unreadable: "+err.Error(), http.StatusInternalServerError)
		return
	}

	report := agent.BuildReport(sess)
	scrubbed, piiFound, piiTypes := safety.NewRedactor().Scrub(report)
	if piiTypes == nil {
		piiTypes = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":           inv.ID,
		"goal":         inv.Goal,
		"report":       scrubbed,
		"pii_redacted": piiFound,
		"pii_types":    piiTypes,
	})
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

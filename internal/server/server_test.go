package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/osinthq/inquest/internal/bridge"
	"github.com/osinthq/inquest/internal/config"
	"github.com/osinthq/inquest/internal/db"
	"github.com/osinthq/inquest/internal/progress"
	"github.com/osinthq/inquest/internal/session"
	"github.com/osinthq/inquest/internal/tools"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Agent.MaxTurns = 3
	cfg.Agent.GenerateGraph = false

	registry := tools.NewRegistry()
	tools.RegisterFixtureTools(registry)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		store:  db.NewMemoryStore(),
		bus:    progress.NewBus(),
		bridge: bridge.New(bridge.Config{Registry: registry}),
		ctx:    ctx,
		cancel: cancel,
	}
	t.Cleanup(func() {
		cancel()
		s.wg.Wait()
	})
	return s
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return out
}

func waitForStatus(t *testing.T, s *Server, id, want string) *db.Investigation {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		inv, err := s.store.Get(context.Background(), id)
		if err == nil && inv.Status == want {
			return inv
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Investigation %s did not reach status %s", id, want)
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.handleHealth, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if decodeBody(t, w)["status"] != "healthy" {
		t.Error("Expected healthy status")
	}

	w = doJSON(t, s.handleHealth, http.MethodPost, "/health", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for POST, got %d", w.Code)
	}
}

func TestReadyEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.handleReady, http.MethodGet, "/ready", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if decodeBody(t, w)["status"] != "ready" {
		t.Error("Expected ready status")
	}
}

func TestInfoEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.handleInfo, http.MethodGet, "/api/info", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["service"] != "inquest" {
		t.Errorf("Unexpected service name %v", body["service"])
	}
	if body["safety_mode"] != "observe" {
		t.Errorf("Expected observe mode by default, got %v", body["safety_mode"])
	}
}

func TestCreateInvestigationRunsToCompletion(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s.handleInvestigations, http.MethodPost, "/api/investigations",
		map[string]interface{}{"goal": "Acme Corp"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("Expected non-empty investigation id")
	}
	if body["status"] != db.StatusRunning {
		t.Errorf("Expected running status, got %v", body["status"])
	}
	if !strings.HasPrefix(body["stream_url"].(string), "/ws/investigations/") {
		t.Errorf("Unexpected stream_url %v", body["stream_url"])
	}

	inv := waitForStatus(t, s, id, db.StatusCompleted)
	if len(inv.SessionJSON) == 0 {
		t.Error("Expected session document stored on completion")
	}
	if _, err := session.Load(inv.SessionJSON); err != nil {
		t.Errorf("Stored session does not decode: %v", err)
	}
}

func TestCreateInvestigationRequiresGoal(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.handleInvestigations, http.MethodPost, "/api/investigations",
		map[string]interface{}{"goal": "   "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for blank goal, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/investigations", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	s.handleInvestigations(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestListInvestigations(t *testing.T) {
	s := newTestServer(t)
	base := time.Now().UTC()
	for i, status := range []string{db.StatusCompleted, db.StatusRunning, db.StatusCompleted} {
		inv := &db.Investigation{
			ID:        string(rune('a' + i)),
			Goal:      "g",
			Status:    status,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.store.Put(context.Background(), inv); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	w := doJSON(t, s.handleInvestigations, http.MethodGet, "/api/investigations", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if decodeBody(t, w)["count"].(float64) != 3 {
		t.Error("Expected 3 investigations")
	}

	w = doJSON(t, s.handleInvestigations, http.MethodGet, "/api/investigations?status=completed&limit=1", nil)
	body := decodeBody(t, w)
	if body["count"].(float64) != 1 {
		t.Errorf("Expected 1 filtered investigation, got %v", body["count"])
	}

	w = doJSON(t, s.handleInvestigations, http.MethodGet, "/api/investigations?limit=nope", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", w.Code)
	}
}

func TestGetInvestigation(t *testing.T) {
	s := newTestServer(t)
	inv := &db.Investigation{ID: "inv-1", Goal: "g", Status: db.StatusRunning, StartedAt: time.Now().UTC()}
	if err := s.store.Put(context.Background(), inv); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	w := doJSON(t, s.handleInvestigationByID, http.MethodGet, "/api/investigations/inv-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["id"] != "inv-1" || body["status"] != db.StatusRunning {
		t.Errorf("Unexpected record %v", body)
	}
	if body["has_session"] != false {
		t.Error("Expected has_session false before completion")
	}

	w = doJSON(t, s.handleInvestigationByID, http.MethodGet, "/api/investigations/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown id, got %d", w.Code)
	}
}

// Export is a publication boundary: the rendered report must come back
// scrubbed even though the stored session holds raw PII.
func TestExportScrubsStoredSession(t *testing.T) {
	s := newTestServer(t)

	sess := session.New("trace contact")
	sess.AddFinding(session.Finding{
		Source:     "entity_search",
		Summary:    "Reach subject at john@example.com or 555-123-4567",
		Confidence: 0.8,
		Timestamp:  time.Now().UTC(),
	})
	data, err := session.Save(sess)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	inv := &db.Investigation{
		ID:          "inv-pii",
		Goal:        "trace contact",
		Status:      db.StatusCompleted,
		StartedAt:   time.Now().UTC(),
		CompletedAt: time.Now().UTC(),
		SessionJSON: data,
	}
	if err := s.store.Put(context.Background(), inv); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	w := doJSON(t, s.handleInvestigationByID, http.MethodPost, "/api/investigations/inv-pii/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	report, _ := body["report"].(string)
	if strings.Contains(report, "john@example.com") || strings.Contains(report, "555-123-4567") {
		t.Error("Expected exported report to be PII-free")
	}
	if !strings.Contains(report, "[EMAIL]") {
		t.Error("Expected email replaced by stable token")
	}
	if body["pii_redacted"].(float64) < 2 {
		t.Errorf("Expected at least 2 redactions, got %v", body["pii_redacted"])
	}
}

func TestExportRefusedWhileRunning(t *testing.T) {
	s := newTestServer(t)
	inv := &db.Investigation{ID: "inv-run", Goal: "g", Status: db.StatusRunning, StartedAt: time.Now().UTC()}
	if err := s.store.Put(context.Background(), inv); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	w := doJSON(t, s.handleInvestigationByID, http.MethodPost, "/api/investigations/inv-run/export", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 while running, got %d", w.Code)
	}

	w = doJSON(t, s.handleInvestigationByID, http.MethodPost, "/api/investigations/missing/export", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown id, got %d", w.Code)
	}
}

func TestExportWithoutSession(t *testing.T) {
	s := newTestServer(t)
	inv := &db.Investigation{ID: "inv-empty", Goal: "g", Status: db.StatusFailed, StartedAt: time.Now().UTC()}
	if err := s.store.Put(context.Background(), inv); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	w := doJSON(t, s.handleInvestigationByID, http.MethodPost, "/api/investigations/inv-empty/export", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 when no session stored, got %d", w.Code)
	}
}

// A subscriber that sees a running store record must still be in time
// for the terminal event: the producer writes the terminal row before
// publishing the terminal frame. A stream handler relies on that order
// when it decides whether to wait on the bus or synthesize the frame
// from the record.
func TestTerminalEventFollowsStoreWrite(t *testing.T) {
	s := newTestServer(t)

	inv := &db.Investigation{
		ID:        "inv-order",
		Goal:      "Acme Corp",
		Status:    db.StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	sub := s.bus.Subscribe(inv.ID, progress.DefaultQueueSize)
	defer s.bus.Unsubscribe(sub)

	loopCfg := s.loopConfig()
	loopCfg.MaxTurns = 2
	if err := s.launchInvestigation(inv, loopCfg); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}

	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-sub.C:
			if !ev.Terminal() {
				continue
			}
			stored, err := s.store.Get(context.Background(), inv.ID)
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if stored.Status == db.StatusRunning {
				t.Error("Terminal event published before the store row went terminal")
			}
			return
		case <-deadline:
			t.Fatal("No terminal event delivered")
		}
	}
}

// A zero max_turns in the request keeps the configured default rather
// than collapsing the run to seed-only.
func TestMaxTurnsZeroKeepsDefault(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s.handleInvestigations, http.MethodPost, "/api/investigations",
		map[string]interface{}{"goal": "Acme Corp", "max_turns": 0})
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", w.Code)
	}
	id := decodeBody(t, w)["id"].(string)

	inv := waitForStatus(t, s, id, db.StatusCompleted)
	if inv.Error != "" {
		t.Errorf("Expected no error, got %q", inv.Error)
	}
	sess, err := session.Load(inv.SessionJSON)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if sess.TurnCount == 0 {
		t.Error("Expected at least one turn with default budget")
	}
}

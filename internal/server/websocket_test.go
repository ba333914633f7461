package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/osinthq/inquest/internal/db"
	"github.com/osinthq/inquest/internal/progress"
)

func newWSTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := newTestServer(t)
	mux := http.NewServeMux()
	s.registerHandlers(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return s, ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

// Opening a socket on a fresh id and sending a start frame creates
// and streams the run.
func TestStartInvestigationOverWebSocket(t *testing.T) {
	s, ts := newWSTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/investigations/ws-born"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(wsClientFrame{Action: "start", Goal: "Acme Corp", MaxTurns: 2}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	sawStarted := false
	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("ReadJSON failed: %v", err)
		}
		if frame.Type == string(progress.EventStarted) {
			sawStarted = true
		}
		if frame.Type == string(progress.EventError) {
			t.Fatalf("Unexpected error frame: %+v", frame)
		}
		if frame.Type == string(progress.EventCompleted) {
			break
		}
	}
	if !sawStarted {
		t.Error("Expected a started frame before completion")
	}

	inv := waitForStatus(t, s, "ws-born", db.StatusCompleted)
	if inv.Goal != "Acme Corp" {
		t.Errorf("Unexpected stored goal %q", inv.Goal)
	}
}

func TestStartFrameRequiresGoal(t *testing.T) {
	_, ts := newWSTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/investigations/ws-empty"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(wsClientFrame{Action: "start"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	var frame wsFrame
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if frame.Type != "error" || !strings.Contains(frame.Error, "goal") {
		t.Errorf("Expected goal-required error frame, got %+v", frame)
	}
}

func TestPingAnsweredWithPong(t *testing.T) {
	_, ts := newWSTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/investigations/ws-ping"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(wsClientFrame{Action: "ping"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	var frame wsFrame
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if frame.Type != "pong" {
		t.Errorf("Expected pong frame, got %q", frame.Type)
	}
}

func TestStreamTerminalInvestigationSendsOneEvent(t *testing.T) {
	s, ts := newWSTestServer(t)
	inv := &db.Investigation{ID: "inv-done", Goal: "g", Status: db.StatusCompleted, StartedAt: time.Now().UTC()}
	if err := s.store.Put(context.Background(), inv); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/investigations/inv-done"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	var frame wsFrame
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if frame.Type != string(progress.EventCompleted) {
		t.Errorf("Expected completed frame, got %q", frame.Type)
	}

	// Server closes after the terminal event.
	if err := conn.ReadJSON(&frame); err == nil {
		t.Error("Expected connection closed after terminal event")
	}
}

func TestStreamRunningInvestigationDeliversEvents(t *testing.T) {
	s, ts := newWSTestServer(t)
	inv := &db.Investigation{ID: "inv-live", Goal: "g", Status: db.StatusRunning, StartedAt: time.Now().UTC()}
	if err := s.store.Put(context.Background(), inv); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/investigations/inv-live"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	// Wait for the handler to subscribe before publishing.
	deadline := time.Now().Add(5 * time.Second)
	for s.bus.SubscriberCount("inv-live") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.bus.Publish("inv-live", progress.TurnEvent(1, "entity_search", "looking up subject"))
	s.bus.Publish("inv-live", progress.Completed("done"))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var first, second wsFrame
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if first.Type != string(progress.EventTurn) || first.Event.Tool != "entity_search" {
		t.Errorf("Unexpected first frame %+v", first)
	}
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if second.Type != string(progress.EventCompleted) {
		t.Errorf("Expected completed frame, got %q", second.Type)
	}
}

func TestStreamFailedInvestigationSendsError(t *testing.T) {
	s, ts := newWSTestServer(t)
	inv := &db.Investigation{ID: "inv-bad", Goal: "g", Status: db.StatusFailed, Error: "boom", StartedAt: time.Now().UTC()}
	if err := s.store.Put(context.Background(), inv); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/investigations/inv-bad"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	var frame wsFrame
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if frame.Type != string(progress.EventError) || frame.Event.Message != "boom" {
		t.Errorf("Expected error frame carrying the stored error, got %+v", frame)
	}
}

func TestStreamRejectsDisallowedOrigin(t *testing.T) {
	s, ts := newWSTestServer(t)
	inv := &db.Investigation{ID: "inv-origin", Goal: "g", Status: db.StatusCompleted, StartedAt: time.Now().UTC()}
	if err := s.store.Put(context.Background(), inv); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/investigations/inv-origin"), header)
	if err == nil {
		t.Fatal("Expected dial to fail for disallowed origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %v", resp)
	}
}

func TestOrgSocketRoutesGoalThroughBridge(t *testing.T) {
	_, ts := newWSTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/org-1"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(orgFrame{Type: "subscribe", Channel: "general"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	var ack orgFrame
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if ack.Type != "subscribed" || ack.Channel != "general" {
		t.Fatalf("Expected subscribe ack, got %+v", ack)
	}

	if err := conn.WriteJSON(orgFrame{Type: "message", Content: "Acme Corp"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(15 * time.Second))
	sawStart, sawReport := false, false
	for !sawReport {
		var frame orgFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("ReadJSON failed before report arrived: %v", err)
		}
		if frame.Type != "message" || frame.Channel != "general" {
			t.Fatalf("Unexpected frame %+v", frame)
		}
		if strings.Contains(frame.Text, "Starting investigation") {
			sawStart = true
		}
		if strings.Contains(frame.Text, "Investigation Report") {
			sawReport = true
		}
	}
	if !sawStart {
		t.Error("Expected a start announcement before the report")
	}
}

func TestOrgSocketPingAndUnknownType(t *testing.T) {
	_, ts := newWSTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/org-2"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(orgFrame{Type: "ping"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	var frame orgFrame
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if frame.Type != "pong" {
		t.Errorf("Expected pong, got %q", frame.Type)
	}

	if err := conn.WriteJSON(orgFrame{Type: "dance"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if frame.Type != "error" {
		t.Errorf("Expected error frame for unknown type, got %+v", frame)
	}
}

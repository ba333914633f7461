package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/osinthq/inquest/internal/db"
	"github.com/osinthq/inquest/internal/metrics"
	"github.com/osinthq/inquest/internal/progress"
)

const (
	wsWriteTimeout      = 10 * time.Second
	wsHeartbeatInterval = 30 * time.Second
)

// newUpgrader builds an upgrader whose origin check honors the
// configured allowlist. An empty Origin header is accepted so
// non-browser clients can connect; "*" in the list accepts anything.
func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" {
					return true
				}
				if strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
					return true
				}
			}
			return false
		},
	}
}

// wsFrame is one server-to-client frame on the investigation stream.
type wsFrame struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Event     progress.Event `json:"event,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// wsClientFrame is one client-to-server frame on the investigation
// stream.
type wsClientFrame struct {
	Action      string `json:"action"`
	Goal        string `json:"goal,omitempty"`
	MaxTurns    int    `json:"max_turns,omitempty"`
	LLMProvider string `json:"llm_provider,omitempty"`
}

// handleInvestigationStream streams progress events for one
// investigation. URL pattern: /ws/investigations/{id}.
//
// An unknown id is not an error: the client may open the socket first
// and send {action:"start", goal} to create the run under that id.
// Clients on existing streams may send {action:"ping"}.
//
// Already-terminal investigations get a single synthesized terminal
// event so late subscribers do not hang waiting for a stream that
// finished before they connected.
func (s *Server) handleInvestigationStream(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/ws/investigations/")
	id = strings.TrimSuffix(id, "/")
	if id == "" {
		http.Error(w, "investigation id required", http.StatusBadRequest)
		return
	}

	// Subscribe first, then read the record. The producer writes the
	// terminal store row before publishing the terminal event, so a
	// running record seen here means the terminal event has not been
	// published yet and will arrive on the subscription.
	sub := s.bus.Subscribe(id, progress.DefaultQueueSize)
	defer s.bus.Unsubscribe(sub)

	inv, err := s.store.Get(r.Context(), id)
	known := err == nil
	if err != nil && err != db.ErrNotFound {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	upgrader := newUpgrader(s.cfg.Server.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	metrics.WSConnectionsActive.Inc()
	defer metrics.WSConnectionsActive.Dec()

	if known && inv.Status != db.StatusRunning {
		_ = writeFrame(conn, terminalEventFor(inv))
		return
	}

	frames := make(chan wsClientFrame)
	clientGone := make(chan struct{})
	handlerDone := make(chan struct{})
	defer close(handlerDone)
	go readClientFrames(conn, frames, clientGone, handlerDone)

	heartbeat := time.NewTicker(wsHeartbeatInterval)
	defer heartbeat.Stop()

	// A known running record already has a producer behind it.
	started := known

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-clientGone:
			return
		case <-heartbeat.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case f := <-frames:
			switch f.Action {
			case "ping":
				if err := writeRaw(conn, wsFrame{Type: "pong", Timestamp: time.Now().UTC()}); err != nil {
					return
				}
			case "start":
				if started {
					_ = writeRaw(conn, wsFrame{Type: "error", Timestamp: time.Now().UTC(), Error: "investigation already started"})
					continue
				}
				if strings.TrimSpace(f.Goal) == "" {
					_ = writeRaw(conn, wsFrame{Type: "error", Timestamp: time.Now().UTC(), Error: "goal is required"})
					continue
				}
				req := createRequest{Goal: f.Goal, MaxTurns: f.MaxTurns, LLMProvider: f.LLMProvider}
				newInv := &db.Investigation{
					ID:        id,
					Goal:      f.Goal,
					Status:    db.StatusRunning,
					StartedAt: time.Now().UTC(),
				}
				if err := s.launchInvestigation(newInv, s.applyCreateRequest(req)); err != nil {
					_ = writeRaw(conn, wsFrame{Type: "error", Timestamp: time.Now().UTC(), Error: err.Error()})
					return
				}
				started = true
			default:
				_ = writeRaw(conn, wsFrame{Type: "error", Timestamp: time.Now().UTC(), Error: "unknown action " + f.Action})
			}
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeFrame(conn, ev); err != nil {
				return
			}
			if ev.Terminal() {
				return
			}
		}
	}
}

// readClientFrames forwards parsed client frames and closes clientGone
// when the connection drops. Unparseable frames end the connection.
func readClientFrames(conn *websocket.Conn, frames chan<- wsClientFrame, clientGone chan<- struct{}, handlerDone <-chan struct{}) {
	defer close(clientGone)
	for {
		var f wsClientFrame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		select {
		case frames <- f:
		case <-handlerDone:
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, ev progress.Event) error {
	return writeRaw(conn, wsFrame{
		Type:      string(ev.Type),
		Timestamp: time.Now().UTC(),
		Event:     ev,
	})
}

func writeRaw(conn *websocket.Conn, frame wsFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// terminalEventFor synthesizes the terminal event for a stored record.
func terminalEventFor(inv *db.Investigation) progress.Event {
	if inv.Status == db.StatusFailed {
		return progress.ErrorEvent(inv.Error)
	}
	return progress.Completed("investigation " + inv.ID + " completed")
}

// orgFrame is the wire format of the multiplexed org socket, both
// directions.
type orgFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Content string `json:"content,omitempty"`
	Text    string `json:"text,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleOrgSocket is the multiplexed channel surface at /ws/{org_id}.
// Clients subscribe to a channel, then send messages whose content is
// a goal routed through the bridge. Bridge output comes back as
// message frames tagged with the channel.
func (s *Server) handleOrgSocket(w http.ResponseWriter, r *http.Request) {
	orgID := strings.TrimPrefix(r.URL.Path, "/ws/")
	orgID = strings.TrimSuffix(orgID, "/")
	if orgID == "" || strings.Contains(orgID, "/") {
		http.Error(w, "org id required", http.StatusBadRequest)
		return
	}

	upgrader := newUpgrader(s.cfg.Server.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	metrics.WSConnectionsActive.Inc()
	defer metrics.WSConnectionsActive.Dec()

	var writeMu sync.Mutex
	writeOrg := func(f orgFrame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(f)
	}

	var runs sync.WaitGroup
	defer runs.Wait()

	// The org id doubles as the default channel until the client
	// subscribes to a specific one.
	channel := orgID

	for {
		var f orgFrame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Type {
		case "ping":
			if err := writeOrg(orgFrame{Type: "pong"}); err != nil {
				return
			}
		case "subscribe":
			if f.Channel == "" {
				_ = writeOrg(orgFrame{Type: "error", Error: "channel is required"})
				continue
			}
			channel = f.Channel
			if err := writeOrg(orgFrame{Type: "subscribed", Channel: channel}); err != nil {
				return
			}
		case "message":
			if strings.TrimSpace(f.Content) == "" {
				_ = writeOrg(orgFrame{Type: "error", Error: "content is required"})
				continue
			}
			target := channel
			runs.Add(1)
			go func(goal, ch string) {
				defer runs.Done()
				send := func(text string) error {
					return writeOrg(orgFrame{Type: "message", Channel: ch, Text: text})
				}
				s.bridge.HandleInvestigateCommand(s.ctx, goal, orgID+"/"+ch, send)
			}(f.Content, target)
		default:
			_ = writeOrg(orgFrame{Type: "error", Error: "unknown frame type " + f.Type})
		}
	}
}

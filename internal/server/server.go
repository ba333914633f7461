// Package server exposes the investigation runtime over HTTP and
// WebSocket.
//
// Responsibilities:
//   - Start and stop the API listener and the Prometheus listener
//   - Wire the bridge, store, progress bus and audit logger together
//   - Route investigation lifecycle requests (create, list, get, export)
//   - Stream progress events to WebSocket subscribers
//   - Serve health and readiness probes
//
// The server owns component lifecycle: NewServer builds everything from
// configuration, Start binds the listeners, Stop shuts them down and
// closes the store.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/osinthq/inquest/internal/agent"
	"github.com/osinthq/inquest/internal/audit"
	"github.com/osinthq/inquest/internal/bridge"
	"github.com/osinthq/inquest/internal/config"
	"github.com/osinthq/inquest/internal/db"
	"github.com/osinthq/inquest/internal/llm"
	"github.com/osinthq/inquest/internal/middleware"
	"github.com/osinthq/inquest/internal/progress"
	"github.com/osinthq/inquest/internal/safety"
	"github.com/osinthq/inquest/internal/tools"
)

// Server is the HTTP front end of the investigation runtime.
type Server struct {
	cfg *config.Config

	bridge  *bridge.Bridge
	store   db.Store
	bus     *progress.Bus
	auditor audit.Logger
	limiter *middleware.RateLimiter

	httpServer    *http.Server
	metricsServer *http.Server
	listeners     *errgroup.Group

	ctx    context.Context
	cancel context.CancelFunc

	// wg tracks in-flight background investigations.
	wg sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewServer builds a server and all its components from configuration.
func NewServer(cfg *config.Config) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		cancel: cancel,
		ctx:    ctx,
		bus:    progress.NewBus(),
	}

	if err := s.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("initializing server components: %w", err)
	}
	return s, nil
}

// initializeComponents constructs store, policy, audit and bridge.
func (s *Server) initializeComponents() error {
	store, err := db.Open(s.cfg.Database.Type, s.cfg.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("opening investigation store: %w", err)
	}
	s.store = store

	auditCfg := audit.DefaultConfig()
	if s.cfg.Logging.AuditLogPath != "" {
		auditCfg.AuditLogPath = s.cfg.Logging.AuditLogPath
	}
	auditor, err := audit.NewLogger(auditCfg)
	if err != nil {
		return fmt.Errorf("creating audit logger: %w", err)
	}
	s.auditor = auditor

	registry := tools.NewRegistry()
	tools.RegisterFixtureTools(registry)

	s.bridge = bridge.New(bridge.Config{
		Registry: registry,
		Loop:     s.loopConfig(),
		LLM: llm.Config{
			BaseURL:     s.cfg.LLM.BaseURL,
			Model:       s.cfg.LLM.Model,
			APIKey:      s.cfg.LLM.APIKey,
			Temperature: s.cfg.LLM.Temperature,
			MaxTokens:   s.cfg.LLM.MaxTokens,
		},
		Audit: auditor,
		Gate: safety.GateConfig{
			Capsule:          &safety.Capsule{MaxBudget: s.cfg.Safety.MaxBudget},
			RatePerMinute:    s.cfg.Safety.RatePerMinute,
			BreakerThreshold: s.cfg.Safety.BreakerThreshold,
			BreakerCooldown:  time.Duration(s.cfg.Safety.BreakerCooldownSeconds) * time.Second,
		},
	})

	if s.cfg.Server.RateLimitPerMin > 0 {
		s.limiter = middleware.NewRateLimiter(s.cfg.Server.RateLimitPerMin)
	}
	return nil
}

// loopConfig maps the agent and safety sections onto a loop config.
func (s *Server) loopConfig() agent.LoopConfig {
	cfg := agent.DefaultLoopConfig()
	cfg.MaxTurns = s.cfg.Agent.MaxTurns
	if s.cfg.Agent.ToolTimeoutSeconds > 0 {
		cfg.ToolTimeout = time.Duration(s.cfg.Agent.ToolTimeoutSeconds) * time.Second
	}
	cfg.Deadline = time.Duration(s.cfg.Agent.DeadlineSeconds) * time.Second
	cfg.AutoSanctionsScreen = s.cfg.Agent.AutoSanctions
	cfg.AutoNewsCheck = s.cfg.Agent.AutoNews
	cfg.GenerateGraph = s.cfg.Agent.GenerateGraph
	cfg.DemoMode = s.cfg.Agent.DemoMode
	cfg.PersistPath = s.cfg.Agent.PersistPath
	cfg.EnableSafety = s.cfg.Safety.Enabled
	cfg.EnforceSafety = s.cfg.Safety.Enforce
	cfg.LLMProvider = s.cfg.LLM.Provider
	return cfg
}

// Start binds the API and metrics listeners.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("server already running")
	}

	mux := http.NewServeMux()
	s.registerHandlers(mux)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket streams stay open
		IdleTimeout:  120 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	s.metricsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		Handler: metricsMux,
	}

	s.listeners = &errgroup.Group{}
	s.listeners.Go(func() error {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.cancel()
			return err
		}
		return nil
	})
	s.listeners.Go(func() error {
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.cancel()
			return err
		}
		return nil
	})

	s.running = true
	return nil
}

// Stop shuts down the listeners and closes the store.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	s.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		firstErr = err
	}
	if err := s.metricsServer.Shutdown(shutdownCtx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.listeners.Wait(); err != nil && firstErr == nil {
		firstErr = err
	}

	// Let in-flight background investigations finish recording.
	s.wg.Wait()

	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.auditor != nil {
		s.auditor.Close()
	}
	if err := s.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	s.running = false
	return firstErr
}

// Wait blocks until the server context is cancelled.
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// IsRunning reports whether Start has been called without Stop.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// registerHandlers wires all routes onto the mux.
func (s *Server) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/api/info", s.wrap(s.handleInfo))
	mux.HandleFunc("/api/investigations", s.wrap(s.handleInvestigations))
	mux.HandleFunc("/api/investigations/", s.wrap(s.handleInvestigationByID))
	mux.HandleFunc("/ws/investigations/", s.handleInvestigationStream)
	mux.HandleFunc("/ws/", s.handleOrgSocket)
}

// wrap applies rate limiting and request metrics to API routes.
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	h := middleware.Metrics(next)
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// Ready means the store answers.
	if _, err := s.store.List(r.Context(), 1, ""); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ready"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":       "inquest",
		"safety_mode":   safetyModeLabel(s.cfg.Safety.Enabled, s.cfg.Safety.Enforce),
		"llm_provider":  s.cfg.LLM.Provider,
		"database_type": s.cfg.Database.Type,
		"max_turns":     s.cfg.Agent.MaxTurns,
	})
}

func safetyModeLabel(enabled, enforce bool) string {
	switch {
	case !enabled:
		return "disabled"
	case enforce:
		return "enforce"
	default:
		return "observe"
	}
}

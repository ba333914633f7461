package config

import "context"

// Package config provides configuration management for inquest.
//
// Responsibilities:
//   - Load configuration from YAML files and environment variables
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support configuration reloading for reloadable settings
//   - Establish reasonable defaults
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (INQUEST_* prefix)
//   2. YAML config file (default: inquest.yaml in the working directory)
//   3. Built-in defaults
//
// Main Configuration Sections:
//
//   1. Server
//      - port: Listen port (default 8090)
//      - metrics_port: Prometheus listener (default 9091)
//      - allowed_origins: Origins permitted to open WebSocket connections
//      - rate_limit_per_min: HTTP rate limit per client
//
//   2. Agent
//      - max_turns: Decision/execution turn budget per investigation
//      - tool_timeout_seconds: Per-tool-call deadline
//      - deadline_seconds: Optional wall-clock bound for the whole loop
//      - auto_sanctions_screen / auto_news_check: Built-in follow-up leads
//      - generate_graph: Run the graph post-processor after the loop
//      - demo_mode: Force the heuristic policy and fixture data source
//      - persist_path: Auto-save directory for finished sessions
//
//   3. Safety
//      - enabled: Construct a real harness (false = no-op harness)
//      - enforce: Blocked pre-checks skip the action instead of observing
//      - max_budget: Cost budget the policy gate tracks per investigation
//      - rate_per_minute: Tool-call rate limit inside the gate
//      - breaker_threshold / breaker_cooldown_seconds: Per-tool circuit breaker
//
//   4. LLM
//      - provider: "heuristic" | "openai" | "custom" (any OpenAI-compatible endpoint)
//      - base_url, model, api_key, temperature, max_tokens
//
//   5. Database
//      - type: "memory" | "sqlite"
//      - sqlite_path: Path to SQLite file
//
//   6. Logging / Audit
//      - level, audit_log_path, app_log_path, rotation settings

// Config contains all configuration fields.
type Config struct {
	Server struct {
		Port        int
		MetricsPort int
		// AllowedOrigins lists origins permitted to open WebSocket
		// connections. Use ["*"] to allow any origin (development only).
		AllowedOrigins  []string
		RateLimitPerMin int
	}

	Agent struct {
		MaxTurns           int
		ToolTimeoutSeconds int
		DeadlineSeconds    int
		AutoSanctions      bool
		AutoNews           bool
		GenerateGraph      bool
		DemoMode           bool
		PersistPath        string
	}

	Safety struct {
		Enabled                bool
		Enforce                bool
		MaxBudget              float64
		RatePerMinute          int
		BreakerThreshold       int
		BreakerCooldownSeconds int
	}

	LLM struct {
		Provider    string
		BaseURL     string
		Model       string
		APIKey      string
		Temperature float64
		MaxTokens   int
	}

	Database struct {
		Type       string
		SQLitePath string
	}

	Logging struct {
		Level        string
		AuditLogPath string
		AppLogPath   string
		MaxSizeMB    int
		MaxBackups   int
		MaxAgeDays   int
		Compress     bool
	}
}

// Manager defines the interface for configuration access.
type Manager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads.
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewManager creates a new configuration manager.
func NewManager(configPath string) (Manager, error) {
	mgr := &viperManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewManagerWithDefaults creates a config manager with the default path.
func NewManagerWithDefaults() (Manager, error) {
	return NewManager("inquest.yaml")
}

package config

import "fmt"

// Validate checks the configuration for correctness. It returns all
// problems found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.MetricsPort != 0 && (c.Server.MetricsPort < 1 || c.Server.MetricsPort > 65535) {
		errs = append(errs, fmt.Errorf("server.metrics_port must be between 1 and 65535, got %d", c.Server.MetricsPort))
	}
	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.Port {
		errs = append(errs, fmt.Errorf("server.metrics_port must differ from server.port"))
	}
	if c.Server.RateLimitPerMin < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit_per_min must be non-negative, got %d", c.Server.RateLimitPerMin))
	}

	if c.Agent.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("agent.max_turns must be non-negative, got %d", c.Agent.MaxTurns))
	}
	if c.Agent.ToolTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("agent.tool_timeout_seconds must be positive, got %d", c.Agent.ToolTimeoutSeconds))
	}
	if c.Agent.DeadlineSeconds < 0 {
		errs = append(errs, fmt.Errorf("agent.deadline_seconds must be non-negative, got %d", c.Agent.DeadlineSeconds))
	}

	if c.Safety.MaxBudget < 0 {
		errs = append(errs, fmt.Errorf("safety.max_budget must be non-negative, got %f", c.Safety.MaxBudget))
	}
	if c.Safety.RatePerMinute < 0 {
		errs = append(errs, fmt.Errorf("safety.rate_per_minute must be non-negative, got %d", c.Safety.RatePerMinute))
	}
	if c.Safety.BreakerThreshold < 1 {
		errs = append(errs, fmt.Errorf("safety.breaker_threshold must be at least 1, got %d", c.Safety.BreakerThreshold))
	}

	switch c.LLM.Provider {
	case "heuristic", "openai", "custom":
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be one of heuristic, openai, custom; got %q", c.LLM.Provider))
	}
	if c.LLM.Provider == "custom" && c.LLM.BaseURL == "" {
		errs = append(errs, fmt.Errorf("llm.base_url is required when llm.provider is custom"))
	}

	switch c.Database.Type {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.type must be memory or sqlite, got %q", c.Database.Type))
	}
	if c.Database.Type == "sqlite" && c.Database.SQLitePath == "" {
		errs = append(errs, fmt.Errorf("database.sqlite_path is required when database.type is sqlite"))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level))
	}

	return errs
}

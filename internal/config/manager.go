package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperManager implements Manager using Viper.
type viperManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// Load loads configuration from all sources.
func (m *viperManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("INQUEST")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	// Config file is optional; defaults + env vars cover the rest.
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// no file, use defaults
		} else if os.IsNotExist(err) {
			// no file, use defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// Get returns the current configuration.
func (m *viperManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration changes and reloads.
func (m *viperManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})

	return m.watchChan
}

// Reload reloads configuration from sources.
func (m *viperManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.applyEnvOverrides()

	return nil
}

// setDefaults sets default values in viper.
func (m *viperManager) setDefaults() {
	defaults := DefaultConfig()

	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.metrics_port", defaults.Server.MetricsPort)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)
	m.viper.SetDefault("server.rate_limit_per_min", defaults.Server.RateLimitPerMin)

	m.viper.SetDefault("agent.max_turns", defaults.Agent.MaxTurns)
	m.viper.SetDefault("agent.tool_timeout_seconds", defaults.Agent.ToolTimeoutSeconds)
	m.viper.SetDefault("agent.deadline_seconds", defaults.Agent.DeadlineSeconds)
	m.viper.SetDefault("agent.auto_sanctions_screen", defaults.Agent.AutoSanctions)
	m.viper.SetDefault("agent.auto_news_check", defaults.Agent.AutoNews)
	m.viper.SetDefault("agent.generate_graph", defaults.Agent.GenerateGraph)
	m.viper.SetDefault("agent.demo_mode", defaults.Agent.DemoMode)
	m.viper.SetDefault("agent.persist_path", defaults.Agent.PersistPath)

	m.viper.SetDefault("safety.enabled", defaults.Safety.Enabled)
	m.viper.SetDefault("safety.enforce", defaults.Safety.Enforce)
	m.viper.SetDefault("safety.max_budget", defaults.Safety.MaxBudget)
	m.viper.SetDefault("safety.rate_per_minute", defaults.Safety.RatePerMinute)
	m.viper.SetDefault("safety.breaker_threshold", defaults.Safety.BreakerThreshold)
	m.viper.SetDefault("safety.breaker_cooldown_seconds", defaults.Safety.BreakerCooldownSeconds)

	m.viper.SetDefault("llm.provider", defaults.LLM.Provider)
	m.viper.SetDefault("llm.base_url", defaults.LLM.BaseURL)
	m.viper.SetDefault("llm.model", defaults.LLM.Model)
	m.viper.SetDefault("llm.temperature", defaults.LLM.Temperature)
	m.viper.SetDefault("llm.max_tokens", defaults.LLM.MaxTokens)

	m.viper.SetDefault("database.type", defaults.Database.Type)
	m.viper.SetDefault("database.sqlite_path", defaults.Database.SQLitePath)

	m.viper.SetDefault("logging.level", defaults.Logging.Level)
	m.viper.SetDefault("logging.audit_log_path", defaults.Logging.AuditLogPath)
	m.viper.SetDefault("logging.app_log_path", defaults.Logging.AppLogPath)
	m.viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
	m.viper.SetDefault("logging.compress", defaults.Logging.Compress)
}

// unmarshalConfig unmarshals viper config into the Config struct.
func (m *viperManager) unmarshalConfig() error {
	cfg := &Config{}

	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.MetricsPort = m.viper.GetInt("server.metrics_port")
	cfg.Server.AllowedOrigins = m.viper.GetStringSlice("server.allowed_origins")
	cfg.Server.RateLimitPerMin = m.viper.GetInt("server.rate_limit_per_min")

	cfg.Agent.MaxTurns = m.viper.GetInt("agent.max_turns")
	cfg.Agent.ToolTimeoutSeconds = m.viper.GetInt("agent.tool_timeout_seconds")
	cfg.Agent.DeadlineSeconds = m.viper.GetInt("agent.deadline_seconds")
	cfg.Agent.AutoSanctions = m.viper.GetBool("agent.auto_sanctions_screen")
	cfg.Agent.AutoNews = m.viper.GetBool("agent.auto_news_check")
	cfg.Agent.GenerateGraph = m.viper.GetBool("agent.generate_graph")
	cfg.Agent.DemoMode = m.viper.GetBool("agent.demo_mode")
	cfg.Agent.PersistPath = m.viper.GetString("agent.persist_path")

	cfg.Safety.Enabled = m.viper.GetBool("safety.enabled")
	cfg.Safety.Enforce = m.viper.GetBool("safety.enforce")
	cfg.Safety.MaxBudget = m.viper.GetFloat64("safety.max_budget")
	cfg.Safety.RatePerMinute = m.viper.GetInt("safety.rate_per_minute")
	cfg.Safety.BreakerThreshold = m.viper.GetInt("safety.breaker_threshold")
	cfg.Safety.BreakerCooldownSeconds = m.viper.GetInt("safety.breaker_cooldown_seconds")

	cfg.LLM.Provider = m.viper.GetString("llm.provider")
	cfg.LLM.BaseURL = m.viper.GetString("llm.base_url")
	cfg.LLM.Model = m.viper.GetString("llm.model")
	cfg.LLM.APIKey = m.viper.GetString("llm.api_key")
	cfg.LLM.Temperature = m.viper.GetFloat64("llm.temperature")
	cfg.LLM.MaxTokens = m.viper.GetInt("llm.max_tokens")

	cfg.Database.Type = m.viper.GetString("database.type")
	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.AuditLogPath = m.viper.GetString("logging.audit_log_path")
	cfg.Logging.AppLogPath = m.viper.GetString("logging.app_log_path")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")
	cfg.Logging.Compress = m.viper.GetBool("logging.compress")

	m.config = cfg
	return nil
}

// applyEnvOverrides applies environment variable overrides for sensitive data.
func (m *viperManager) applyEnvOverrides() {
	// LLM API key from the conventional provider variables.
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" && m.config.LLM.APIKey == "" {
		m.config.LLM.APIKey = apiKey
	}
	if apiKey := os.Getenv("INQUEST_LLM_API_KEY"); apiKey != "" {
		m.config.LLM.APIKey = apiKey
	}

	if baseURL := os.Getenv("INQUEST_LLM_BASE_URL"); baseURL != "" {
		m.config.LLM.BaseURL = baseURL
	}

	if portEnv := os.Getenv("INQUEST_PORT"); portEnv != "" {
		m.config.Server.Port = m.viper.GetInt("port")
	}
}

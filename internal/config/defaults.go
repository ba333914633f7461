package config

// DefaultConfig returns the built-in default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Port = 8090
	cfg.Server.MetricsPort = 9091
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	cfg.Server.RateLimitPerMin = 60

	cfg.Agent.MaxTurns = 15
	cfg.Agent.ToolTimeoutSeconds = 30
	cfg.Agent.DeadlineSeconds = 0 // no wall-clock bound
	cfg.Agent.AutoSanctions = true
	cfg.Agent.AutoNews = false
	cfg.Agent.GenerateGraph = true
	cfg.Agent.DemoMode = false
	cfg.Agent.PersistPath = ""

	cfg.Safety.Enabled = true
	cfg.Safety.Enforce = false // observe mode during investigation
	cfg.Safety.MaxBudget = 0   // unlimited
	cfg.Safety.RatePerMinute = 120
	cfg.Safety.BreakerThreshold = 3
	cfg.Safety.BreakerCooldownSeconds = 30

	cfg.LLM.Provider = "heuristic"
	cfg.LLM.BaseURL = ""
	cfg.LLM.Model = ""
	cfg.LLM.Temperature = 0.2
	cfg.LLM.MaxTokens = 1024

	cfg.Database.Type = "memory"
	cfg.Database.SQLitePath = "inquest.db"

	cfg.Logging.Level = "info"
	cfg.Logging.AuditLogPath = "logs/audit.log"
	cfg.Logging.AppLogPath = "logs/app.log"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 10
	cfg.Logging.MaxAgeDays = 30
	cfg.Logging.Compress = true

	return cfg
}

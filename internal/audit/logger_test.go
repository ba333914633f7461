package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func setupTestLogger(t *testing.T) Logger {
	t.Helper()
	dir := t.TempDir()
	cfg := &Config{
		AuditLogPath: filepath.Join(dir, "audit.log"),
		AppLogPath:   filepath.Join(dir, "app.log"),
		MaxSize:      10,
		MaxBackups:   1,
		MaxAge:       1,
		Compress:     false,
		LogLevel:     "info",
	}
	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to create audit logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "shouting"
	if _, err := NewLogger(cfg); err == nil {
		t.Fatal("Expected error for invalid log level")
	}
}

func TestLogAndSync(t *testing.T) {
	logger := setupTestLogger(t)
	ctx := context.Background()

	ev := NewEvent(EventToolExecuted).
		WithSession("sess-1").
		WithTool("entity_search").
		WithResult(ResultSuccess)
	if err := logger.Log(ctx, ev); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
}

func TestLifecycleHelpers(t *testing.T) {
	logger := setupTestLogger(t)
	ctx := context.Background()

	if err := logger.LogInvestigationStarted(ctx, "sess-2", "trace shell companies"); err != nil {
		t.Fatalf("LogInvestigationStarted failed: %v", err)
	}
	if err := logger.LogInvestigationCompleted(ctx, "sess-2", 3*time.Second); err != nil {
		t.Fatalf("LogInvestigationCompleted failed: %v", err)
	}
	if err := logger.LogInvestigationFailed(ctx, "sess-3", errors.New("boom")); err != nil {
		t.Fatalf("LogInvestigationFailed failed: %v", err)
	}
	if err := logger.LogToolExecution(ctx, "sess-2", "news_search", time.Second, nil); err != nil {
		t.Fatalf("LogToolExecution failed: %v", err)
	}
	if err := logger.LogSafetyVerdict(ctx, "sess-2", "entity_search", "pre", "ALLOW"); err != nil {
		t.Fatalf("LogSafetyVerdict failed: %v", err)
	}
}

func TestEventBuilder(t *testing.T) {
	ev := NewEvent(EventPublicationScrub).
		WithCorrelationID("corr-1").
		WithChannel("chan-9").
		WithDescription("scrubbed report").
		WithMetadata("pii_found", 2).
		WithDuration(1500 * time.Millisecond)

	if ev.CorrelationID != "corr-1" {
		t.Errorf("Expected correlation ID corr-1, got %s", ev.CorrelationID)
	}
	if ev.Channel != "chan-9" {
		t.Errorf("Expected channel chan-9, got %s", ev.Channel)
	}
	if ev.DurationMs != 1500 {
		t.Errorf("Expected 1500ms, got %d", ev.DurationMs)
	}
	if ev.Result != ResultPending {
		t.Errorf("Expected pending result, got %s", ev.Result)
	}
	if ev.Timestamp.IsZero() {
		t.Error("Expected timestamp to be set")
	}
}

func TestEventWithErrorSetsFailure(t *testing.T) {
	ev := NewEvent(EventToolFailed).WithError(errors.New("timeout"))
	if ev.Result != ResultFailure {
		t.Errorf("Expected failure result, got %s", ev.Result)
	}
	if ev.Error != "timeout" {
		t.Errorf("Expected error text, got %s", ev.Error)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	logger := setupTestLogger(t)
	if err := logger.Close(); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	a := GenerateCorrelationID()
	b := GenerateCorrelationID()
	if a == "" || b == "" {
		t.Fatal("Expected non-empty correlation IDs")
	}
}

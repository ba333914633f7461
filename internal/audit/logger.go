package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Package audit provides process-level audit logging for the investigation
// runtime.
//
// Responsibilities:
//   - Persist investigation lifecycle, tool execution, safety verdict, and
//     publication-scrub events to an append-only audit file
//   - Buffer events and flush periodically so hot paths never block on disk
//   - Rotate and optionally compress audit and application logs
//   - Generate correlation IDs linking adapter requests to loop activity
//
// The audit file written here is the durable trail for operators. The
// per-session safety audit attached to each investigation (internal/safety)
// is a separate, in-memory structure; the harness writes to both.

// Logger defines the interface for audit logging.
type Logger interface {
	// Log logs an audit event.
	Log(ctx context.Context, event *Event) error

	// LogInvestigationStarted logs the start of an investigation.
	LogInvestigationStarted(ctx context.Context, sessionID, goal string) error

	// LogInvestigationCompleted logs a successful conclusion.
	LogInvestigationCompleted(ctx context.Context, sessionID string, duration time.Duration) error

	// LogInvestigationFailed logs a failed investigation.
	LogInvestigationFailed(ctx context.Context, sessionID string, err error) error

	// LogToolExecution logs a single tool invocation outcome.
	LogToolExecution(ctx context.Context, sessionID, tool string, duration time.Duration, err error) error

	// LogSafetyVerdict logs a pre-check, post-check or publication verdict.
	LogSafetyVerdict(ctx context.Context, sessionID, tool, mode, verdict string) error

	// Sync flushes buffered log entries.
	Sync() error

	// Close flushes and closes the audit logger.
	Close() error
}

// Config represents audit logger configuration.
type Config struct {
	// AuditLogPath is the path to the audit log file.
	AuditLogPath string

	// AppLogPath is the path to the application log file.
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation.
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int

	// Compress determines if rotated files should be compressed.
	Compress bool

	// LogLevel is the minimum application log level (debug, info, warn, error).
	LogLevel string
}

// DefaultConfig returns default audit logger configuration.
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
		LogLevel:     "info",
	}
}

// auditLogger implements the Logger interface.
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewLogger creates a new audit logger.
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(appRotator),
		level,
	)

	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// Audit log is append-only and always records, regardless of app level.
	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(auditRotator),
		zapcore.InfoLevel,
	)

	auditZapLogger := zap.New(auditCore)

	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event.
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer = append(l.buffer, event)

	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock).
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer.
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogInvestigationStarted logs when an investigation starts.
func (l *auditLogger) LogInvestigationStarted(ctx context.Context, sessionID, goal string) error {
	event := NewEvent(EventInvestigationStarted).
		WithSession(sessionID).
		WithCorrelationID(sessionID).
		WithResult(ResultPending).
		WithDescription(fmt.Sprintf("Investigation %s started: %s", sessionID, goal))

	return l.Log(ctx, event)
}

// LogInvestigationCompleted logs when an investigation completes.
func (l *auditLogger) LogInvestigationCompleted(ctx context.Context, sessionID string, duration time.Duration) error {
	event := NewEvent(EventInvestigationCompleted).
		WithSession(sessionID).
		WithCorrelationID(sessionID).
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("Investigation %s completed", sessionID))

	return l.Log(ctx, event)
}

// LogInvestigationFailed logs when an investigation fails.
func (l *auditLogger) LogInvestigationFailed(ctx context.Context, sessionID string, err error) error {
	event := NewEvent(EventInvestigationFailed).
		WithSession(sessionID).
		WithCorrelationID(sessionID).
		WithError(err).
		WithDescription(fmt.Sprintf("Investigation %s failed", sessionID))

	return l.Log(ctx, event)
}

// LogToolExecution logs a tool invocation outcome.
func (l *auditLogger) LogToolExecution(ctx context.Context, sessionID, tool string, duration time.Duration, err error) error {
	eventType := EventToolExecuted
	result := ResultSuccess
	if err != nil {
		eventType = EventToolFailed
		result = ResultFailure
	}

	event := NewEvent(eventType).
		WithSession(sessionID).
		WithCorrelationID(sessionID).
		WithTool(tool).
		WithResult(result).
		WithDuration(duration).
		WithDescription(fmt.Sprintf("Tool %s executed for investigation %s", tool, sessionID))
	if err != nil {
		event = event.WithError(err)
	}

	return l.Log(ctx, event)
}

// LogSafetyVerdict logs a harness verdict.
func (l *auditLogger) LogSafetyVerdict(ctx context.Context, sessionID, tool, mode, verdict string) error {
	eventType := EventSafetyPreCheck
	switch mode {
	case "post":
		eventType = EventSafetyPostCheck
	case "publish":
		eventType = EventPublicationScrub
	}

	result := ResultSuccess
	if verdict == "BLOCK" {
		result = ResultBlocked
	}

	event := NewEvent(eventType).
		WithSession(sessionID).
		WithCorrelationID(sessionID).
		WithTool(tool).
		WithResult(result).
		WithMetadata("verdict", verdict).
		WithDescription(fmt.Sprintf("Safety %s check for %s: %s", mode, tool, verdict))

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries.
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.auditLogger.Sync(); err != nil {
		return err
	}

	return l.appLogger.Sync()
}

// Close closes the audit logger.
func (l *auditLogger) Close() error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.flushTicker.Stop()
	})

	return l.Sync()
}

// GenerateCorrelationID generates a new correlation ID.
func GenerateCorrelationID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/SAP-F-2025/quiro-companion/internal/backend"
	"github.com/SAP-F-2025/quiro-companion/internal/models"
)

// LogLevel represents different log levels for service operations
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// WithRequestID stores the request id so operation logs can carry it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// ServiceLogger provides structured logging for service layer operations
type ServiceLogger struct {
	logger *slog.Logger
	config LogConfig
}

type LogConfig struct {
	Service     string
	Component   string
	EnableDebug bool
}

func NewServiceLogger(logger *slog.Logger, config LogConfig) *ServiceLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceLogger{
		logger: logger.With("service", config.Service, "component", config.Component),
		config: config,
	}
}

// ===== OPERATION LOGGING =====

func (l *ServiceLogger) LogOperation(ctx context.Context, operation string, sessionID string, cardID string, duration time.Duration, err error) {
	logLevel := LogLevelInfo
	status := "success"

	if err != nil {
		logLevel = LogLevelError
		status = "error"

		switch {
		case IsUserInput(err):
			logLevel = LogLevelInfo
			status = "user_input"
		case IsConflict(err):
			logLevel = LogLevelWarn
			status = "conflict"
		case IsNotFound(err), backend.IsRejected(err):
			logLevel = LogLevelInfo
			status = "not_found"
		case errors.Is(err, context.Canceled):
			logLevel = LogLevelDebug
			status = "cancelled"
		case backend.IsTransport(err):
			logLevel = LogLevelWarn
			status = "transport_error"
		}
	}

	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("session_id", sessionID),
		slog.String("status", status),
		slog.Duration("duration", duration),
	}
	if cardID != "" {
		attrs = append(attrs, slog.String("card_id", cardID))
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))

		var rejected *backend.RejectedError
		if errors.As(err, &rejected) {
			attrs = append(attrs, slog.String("backend_status", rejected.Status))
		}
	}

	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		attrs = append(attrs, slog.String("request_id", requestID))
	}

	// Add caller information for errors
	if logLevel == LogLevelError {
		if pc, file, line, ok := runtime.Caller(2); ok {
			if fn := runtime.FuncForPC(pc); fn != nil {
				attrs = append(attrs,
					slog.String("caller_func", fn.Name()),
					slog.String("caller_file", file),
					slog.Int("caller_line", line),
				)
			}
		}
	}

	message := fmt.Sprintf("%s operation %s", operation, status)

	switch logLevel {
	case LogLevelDebug:
		if l.config.EnableDebug {
			l.logger.LogAttrs(ctx, slog.LevelDebug, message, attrs...)
		}
	case LogLevelInfo:
		l.logger.LogAttrs(ctx, slog.LevelInfo, message, attrs...)
	case LogLevelWarn:
		l.logger.LogAttrs(ctx, slog.LevelWarn, message, attrs...)
	case LogLevelError:
		l.logger.LogAttrs(ctx, slog.LevelError, message, attrs...)
	}
}

// LogTransition records a state machine step.
func (l *ServiceLogger) LogTransition(ctx context.Context, sessionID string, from, to models.SessionState, reason string) {
	l.logger.LogAttrs(ctx, slog.LevelDebug, "Session state changed",
		slog.String("session_id", sessionID),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.String("reason", reason),
	)
}

// LogRecovery records a recovered panic with its stack.
func (l *ServiceLogger) LogRecovery(ctx context.Context, operation string, sessionID string, recovered interface{}, stack []byte) {
	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("session_id", sessionID),
		slog.Any("panic_value", recovered),
		slog.String("stack_trace", string(stack)),
	}
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		attrs = append(attrs, slog.String("request_id", requestID))
	}

	l.logger.LogAttrs(ctx, slog.LevelError, "Panic recovered", attrs...)
}

// Logger exposes the underlying slog logger.
func (l *ServiceLogger) Logger() *slog.Logger {
	return l.logger
}

// ===== MIDDLEWARE AND HELPERS =====

// ContextualLogger wraps operations with automatic logging
type ContextualLogger struct {
	logger    *ServiceLogger
	operation string
	sessionID string
	startTime time.Time
	ctx       context.Context
}

func (l *ServiceLogger) WithOperation(ctx context.Context, operation string, sessionID string) *ContextualLogger {
	return &ContextualLogger{
		logger:    l,
		operation: operation,
		sessionID: sessionID,
		startTime: time.Now(),
		ctx:       ctx,
	}
}

func (cl *ContextualLogger) LogResult(cardID string, err error) {
	duration := time.Since(cl.startTime)
	cl.logger.LogOperation(cl.ctx, cl.operation, cl.sessionID, cardID, duration, err)
}

// Package logger wraps log/slog with the attribute names and event helpers
// the lead pipeline logs under.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type contextKey string

const (
	// RequestIDKey holds the X-Request-ID of the HTTP request being served.
	RequestIDKey contextKey = "request_id"
	// LeadIDKey holds the lead a background operation is working on.
	LeadIDKey contextKey = "lead_id"
)

// Logger is a *slog.Logger with domain helpers.
type Logger struct {
	*slog.Logger
}

func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

// NewWithWriter logs text at debug level in development and JSON at info
// everywhere else.
func NewWithWriter(env string, w io.Writer) *Logger {
	if strings.EqualFold(env, "development") {
		return &Logger{Logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	}
	return &Logger{Logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))}
}

// Discard drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// WithLead returns ctx tagged with leadID for WithContext.
func WithLead(ctx context.Context, leadID string) context.Context {
	return context.WithValue(ctx, LeadIDKey, leadID)
}

// WithContext adds request_id and lead_id attributes found on ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	var attrs []any
	for _, key := range []contextKey{RequestIDKey, LeadIDKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	if len(attrs) == 0 {
		return l
	}
	return &Logger{Logger: l.With(attrs...)}
}

// HTTPRequest logs one served request; err is nil for successful handlers.
func (l *Logger) HTTPRequest(method, path string, status int, latency time.Duration, clientIP string, err error) {
	attrs := []any{
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", float64(latency.Microseconds())/1000),
		slog.String("client_ip", clientIP),
	}
	if err != nil {
		l.Error("http_error", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	l.Info("http_request", attrs...)
}

// LeadTransition logs an applied lifecycle transition.
func (l *Logger) LeadTransition(leadID, from, to string, version int64, actor string) {
	l.Info("lead_transition",
		slog.String("lead_id", leadID),
		slog.String("from", from),
		slog.String("to", to),
		slog.Int64("version", version),
		slog.String("actor", actor),
	)
}

// NotificationAttempt logs one provider attempt. Failed attempts log at warn.
func (l *Logger) NotificationAttempt(jobID, builderID, channel string, attempt int, outcome string, err error) {
	attrs := []any{
		slog.String("job_id", jobID),
		slog.String("builder_id", builderID),
		slog.String("channel", channel),
		slog.Int("attempt", attempt),
		slog.String("outcome", outcome),
	}
	if err != nil {
		l.Warn("notification_attempt", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	l.Info("notification_attempt", attrs...)
}

// RateLimitDeferred logs a notification pushed back by a rolling-hour limit.
func (l *Logger) RateLimitDeferred(jobID, builderID, scope string, retryAt time.Time) {
	l.Warn("rate_limit_deferred",
		slog.String("job_id", jobID),
		slog.String("builder_id", builderID),
		slog.String("scope", scope),
		slog.Time("retry_at", retryAt),
	)
}

// RateLimitExceeded logs a public request rejected by the per-IP limiter.
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}

// Package audit provides structured audit logging and Prometheus metrics
// for the shield gateway.
package audit

import (
	"context"
	"log/slog"

	"github.com/describe-it/shield/internal/ctxkeys"
)

// Logger emits structured audit events for every processed request.
// Denial reasons are logged here and never placed in response bodies.
type Logger struct {
	slogger  *slog.Logger
	sampling SamplingConfig
}

// NewLogger creates an audit logger with the given sampling configuration.
func NewLogger(slogger *slog.Logger, sampling SamplingConfig) *Logger {
	return &Logger{slogger: slogger, sampling: sampling}
}

// LogRequest logs an audit entry from the request context.
func (l *Logger) LogRequest(ctx context.Context) {
	entry, ok := ctxkeys.AuditEntryFrom(ctx)
	if !ok {
		return
	}

	if !l.sampling.ShouldLog(entry.Status) {
		return
	}

	attrs := []slog.Attr{
		slog.String("request_id", entry.RequestID),
		slog.Group("attributes",
			slog.String("shield.route", entry.Route),
			slog.String("shield.method", entry.Method),
			slog.String("shield.path", entry.Path),
			slog.String("shield.client_ip", entry.ClientIP),
			slog.String("shield.identifier", entry.Identifier),
			slog.String("shield.profile", entry.Profile),
			slog.String("shield.auth.subject", entry.AuthSubject),
			slog.String("shield.trust.level", entry.TrustLevel),
			slog.String("shield.status", entry.Status),
			slog.String("shield.block_reason", entry.BlockReason),
			slog.Time("shield.start_time", entry.StartTime),
		),
	}

	l.slogger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}

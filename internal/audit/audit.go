// Package audit is the append-only sink every state-changing Action Hub
// operation writes one entry to.
package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id set by WithRequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

type Entry struct {
	Actor      uuid.UUID
	ActorEmail string
	Action     string
	Target     uuid.UUID
	Detail     string
	At         time.Time
}

type Sink interface {
	Record(ctx context.Context, e Entry)
}

// ZapSink writes entries as structured log lines tagged type=audit.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger.Named("audit")}
}

func (s *ZapSink) Record(ctx context.Context, e Entry) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	fields := []zap.Field{
		zap.String("type", "audit"),
		zap.String("action", e.Action),
		zap.Stringer("actor", e.Actor),
		zap.Stringer("target", e.Target),
		zap.String("detail", e.Detail),
		zap.Time("at", e.At),
	}
	if e.ActorEmail != "" {
		fields = append(fields, zap.String("actor_email", e.ActorEmail))
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		fields = append(fields, zap.String("request_id", rid))
	}
	s.logger.Info("audit", fields...)
}

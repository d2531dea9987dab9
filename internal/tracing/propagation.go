package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggerFromContext adds the tracing fields found in ctx to logger.
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)

	if tc.TraceID == "" && tc.SessionID == "" && tc.RequestID == "" {
		return logger
	}

	lc := logger.With()
	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.SessionID != "" {
		lc = lc.Str("session_id", tc.SessionID)
	}
	if tc.RequestID != "" {
		lc = lc.Str("request_id", tc.RequestID)
	}
	return lc.Logger()
}

// Detach copies the tracing values of ctx onto a fresh background context,
// for work that must outlive the request that started it.
func Detach(ctx context.Context) context.Context {
	tc := FromContext(ctx)
	out := context.Background()
	if tc.TraceID != "" {
		out = WithTraceID(out, tc.TraceID)
	}
	if tc.SessionID != "" {
		out = WithSessionID(out, tc.SessionID)
	}
	if tc.RequestID != "" {
		out = WithRequestID(out, tc.RequestID)
	}
	return out
}

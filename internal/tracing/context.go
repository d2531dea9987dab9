package tracing

import (
	"context"

	"github.com/google/uuid"
)

type fieldsKey struct{}

// TraceContext holds the correlation ids carried by a tool call: the trace,
// the realtime session or gateway client it came from, and the inbound
// request id.
type TraceContext struct {
	TraceID   string
	SessionID string
	RequestID string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

func withField(ctx context.Context, set func(*TraceContext)) context.Context {
	tc := *FromContext(ctx)
	set(&tc)
	return context.WithValue(ctx, fieldsKey{}, tc)
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return withField(ctx, func(tc *TraceContext) { tc.TraceID = traceID })
}

// WithSessionID tags the context with the realtime session or gateway client id.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return withField(ctx, func(tc *TraceContext) { tc.SessionID = sessionID })
}

// WithRequestID tags the context with the id of the inbound call or RPC request.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withField(ctx, func(tc *TraceContext) { tc.RequestID = requestID })
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	return FromContext(ctx).TraceID
}

// FromContext returns a copy of the correlation ids stored in ctx. Missing
// ids are empty strings.
func FromContext(ctx context.Context) *TraceContext {
	if tc, ok := ctx.Value(fieldsKey{}).(TraceContext); ok {
		return &tc
	}
	return &TraceContext{}
}

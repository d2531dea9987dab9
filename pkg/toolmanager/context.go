package toolmanager

import "context"

type callContextKey struct{}

type callInfo struct {
	name string
	id   string
}

func contextWithCall(ctx context.Context, call Call) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callContextKey{}, callInfo{name: call.Name, id: call.ID})
}

// CallNameFromContext returns the name the model called, before alias
// resolution. Tools exposing several declarations switch on it.
func CallNameFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if info, ok := ctx.Value(callContextKey{}).(callInfo); ok {
		return info.name
	}
	return ""
}

// CallIDFromContext returns the correlation id of the call being executed.
func CallIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if info, ok := ctx.Value(callContextKey{}).(callInfo); ok {
		return info.id
	}
	return ""
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// RequestHandler serves one RPC method. Returning an *RPCError controls
// the error code; any other error maps to InternalError.
type RequestHandler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// RPCRouter maps method names to handlers and replays responses for
// repeated idempotency keys.
type RPCRouter struct {
	mu               sync.RWMutex
	methods          map[string]RequestHandler
	idempotencyTTL   time.Duration
	idempotencyCache map[string]cachedRPCResponse
}

type cachedRPCResponse struct {
	response  RPCResponse
	expiresAt time.Time
}

func NewRPCRouter() *RPCRouter {
	return &RPCRouter{
		methods:          make(map[string]RequestHandler),
		idempotencyTTL:   5 * time.Minute,
		idempotencyCache: make(map[string]cachedRPCResponse),
	}
}

// RegisterMethod adds or replaces a method.
func (r *RPCRouter) RegisterMethod(name string, handler RequestHandler) error {
	if name == "" {
		return fmt.Errorf("method name cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.methods[name] = handler
	return nil
}

func (r *RPCRouter) HasMethod(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.methods[name]
	return ok
}

// Methods returns the registered method names, sorted.
func (r *RPCRouter) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseRequest decodes and validates a JSON-RPC request.
func (r *RPCRouter) ParseRequest(data []byte) (*RPCRequest, error) {
	var req RPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &RPCError{Code: ParseError, Message: "Parse error", Data: err.Error()}
	}
	if req.ID == "" {
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing id field"}
	}
	if req.Method == "" {
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing method field"}
	}
	if req.JSONRPC == "" {
		req.JSONRPC = "2.0"
	}
	return &req, nil
}

// RouteRequest runs req for caller and always returns a response. Cached
// idempotent responses are only replayed to the caller that produced them.
func (r *RPCRouter) RouteRequest(ctx context.Context, caller string, req *RPCRequest) *RPCResponse {
	if req == nil {
		return errorResponse("", InvalidRequest, "invalid request")
	}

	cacheKey := idempotencyCacheKey(caller, req.Method, req.IdempotencyKey)
	if cacheKey != "" {
		if cached, ok := r.getCachedResponse(cacheKey); ok {
			cached.ID = req.ID
			return &cached
		}
	}

	r.mu.RLock()
	handler, ok := r.methods[req.Method]
	r.mu.RUnlock()

	if !ok {
		return errorResponse(req.ID, MethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}

	result, err := handler(ctx, req.Params)

	var response *RPCResponse
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			response = &RPCResponse{ID: req.ID, JSONRPC: "2.0", Error: rpcErr}
		} else {
			response = errorResponse(req.ID, InternalError, err.Error())
		}
	} else {
		response = &RPCResponse{ID: req.ID, JSONRPC: "2.0", Result: result}
	}

	if cacheKey != "" {
		r.cacheResponse(cacheKey, *response)
	}
	return response
}

func errorResponse(id string, code int, message string) *RPCResponse {
	return &RPCResponse{
		ID:      id,
		JSONRPC: "2.0",
		Error:   &RPCError{Code: code, Message: message},
	}
}

func idempotencyCacheKey(caller, method, idempotencyKey string) string {
	if idempotencyKey == "" {
		return ""
	}
	return caller + "\x00" + method + "\x00" + idempotencyKey
}

func (r *RPCRouter) getCachedResponse(key string) (RPCResponse, bool) {
	r.mu.RLock()
	entry, ok := r.idempotencyCache[key]
	r.mu.RUnlock()
	if !ok {
		return RPCResponse{}, false
	}

	now := time.Now()
	if now.After(entry.expiresAt) {
		r.mu.Lock()
		if current, ok := r.idempotencyCache[key]; ok && now.After(current.expiresAt) {
			delete(r.idempotencyCache, key)
		}
		r.mu.Unlock()
		return RPCResponse{}, false
	}
	return cloneRPCResponse(entry.response), true
}

func (r *RPCRouter) cacheResponse(key string, response RPCResponse) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.idempotencyCache[key] = cachedRPCResponse{
		response:  cloneRPCResponse(response),
		expiresAt: now.Add(r.idempotencyTTL),
	}
	for k, entry := range r.idempotencyCache {
		if now.After(entry.expiresAt) {
			delete(r.idempotencyCache, k)
		}
	}
}

func cloneRPCResponse(src RPCResponse) RPCResponse {
	cloned := src
	if src.Error != nil {
		errCopy := *src.Error
		cloned.Error = &errCopy
	}
	return cloned
}

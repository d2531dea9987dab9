package gateway

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/harun/daisy/pkg/toolmanager"
)

// Dispatcher is the tool backend exposed over RPC. *toolmanager.Manager
// satisfies it.
type Dispatcher interface {
	Declarations() []toolmanager.Declaration
	Dispatch(ctx context.Context, call toolmanager.Call) toolmanager.Response
}

type toolsCallParams struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
	ID   string         `json:"id"`
}

type toolsListResult struct {
	FunctionDeclarations []toolmanager.Declaration `json:"functionDeclarations"`
}

func (s *Server) registerMethods() {
	s.router.RegisterMethod("tools.list", s.handleToolsList)
	s.router.RegisterMethod("tools.call", s.handleToolsCall)
	s.router.RegisterMethod("gateway.clients", s.handleClients)
}

func (s *Server) handleToolsList(_ context.Context, _ json.RawMessage) (interface{}, error) {
	return toolsListResult{FunctionDeclarations: s.tools.Declarations()}, nil
}

// handleToolsCall returns the dispatch envelope as the RPC result. Tool
// failures live inside the envelope; only malformed params are RPC errors.
func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p toolsCallParams
	if len(params) == 0 {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params: name is required"}
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params", Data: err.Error()}
	}
	if p.Name == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "Invalid params: name is required"}
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	return s.tools.Dispatch(ctx, toolmanager.Call{Name: p.Name, Args: p.Args, ID: p.ID}), nil
}

func (s *Server) handleClients(_ context.Context, _ json.RawMessage) (interface{}, error) {
	return s.clients.Snapshot(), nil
}

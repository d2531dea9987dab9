package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/daisy/internal/observability"
	"github.com/harun/daisy/internal/tracing"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const (
	secretHeader    = "X-Daisy-Secret"
	maxRequestBytes = 1 << 20
)

// Server exposes the tool backend over websocket and HTTP JSON-RPC.
type Server struct {
	addr              string
	sharedSecret      string
	requestsPerMinute int
	maxConcurrent     int
	callTimeout       time.Duration
	shutdownTimeout   time.Duration
	tools             Dispatcher
	server            *http.Server
	listener          net.Listener
	upgrader          websocket.Upgrader
	clients           *ClientRegistry
	router            *RPCRouter
	authHandler       *AuthHandler
	logger            zerolog.Logger

	baseCtx        context.Context
	cancelBase     context.CancelFunc
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// Config holds server configuration.
type Config struct {
	Host              string
	Port              int
	SharedSecret      string
	RequestsPerMinute int
	MaxConcurrent     int
	CallTimeout       time.Duration
	ShutdownTimeout   time.Duration
	ChallengeTTL      time.Duration
	Tools             Dispatcher
	Logger            zerolog.Logger
}

// NewServer validates cfg and builds a server. Port 0 picks a free port.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.SharedSecret == "" {
		return nil, fmt.Errorf("shared secret is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tool dispatcher is required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		sharedSecret:      cfg.SharedSecret,
		requestsPerMinute: cfg.RequestsPerMinute,
		maxConcurrent:     cfg.MaxConcurrent,
		callTimeout:       cfg.CallTimeout,
		shutdownTimeout:   cfg.ShutdownTimeout,
		tools:             cfg.Tools,
		clients:           NewClientRegistry(),
		router:            NewRPCRouter(),
		authHandler:       NewAuthHandler(cfg.SharedSecret, cfg.ChallengeTTL),
		logger:            cfg.Logger,
		baseCtx:           baseCtx,
		cancelBase:        cancel,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.registerMethods()
	return s, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.HandleFunc("/v1/tools", s.handleListTools)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop refuses new work, waits for in-flight requests, then closes every
// client and the listener.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(s.shutdownTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, cancelling in-flight requests")
	}
	s.cancelBase()

	for _, client := range s.clients.GetAll() {
		client.Conn.Close()
	}

	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()

	return s.isShuttingDown
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, err := gonanoid.New()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate client id")
		conn.Close()
		return
	}

	now := time.Now()
	client := &Client{
		ID:           clientID,
		Conn:         conn,
		ConnectedAt:  now,
		LastActivity: now,
		IPAddress:    r.RemoteAddr,
		RateLimiter:  NewClientRateLimiter(s.requestsPerMinute, s.maxConcurrent),
		State:        StateConnecting,
	}
	s.clients.Add(client)

	s.logger.Info().Str("clientId", clientID).Str("ip", r.RemoteAddr).Msg("Client connected")

	if err := s.sendAuthChallenge(client); err != nil {
		s.logger.Error().Err(err).Str("clientId", clientID).Msg("Failed to send auth challenge")
		conn.Close()
		s.clients.Remove(clientID)
		return
	}

	go s.handleClient(client)
}

func (s *Server) sendAuthChallenge(client *Client) error {
	frame, err := s.authHandler.IssueChallenge(client)
	if err != nil {
		return err
	}
	return client.Send(frame)
}

func (s *Server) handleClient(client *Client) {
	defer func() {
		client.State = StateDisconnected
		client.Conn.Close()
		s.clients.Remove(client.ID)
		s.logger.Info().Str("clientId", client.ID).Msg("Client disconnected")
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Str("clientId", client.ID).Msg("WebSocket error")
			}
			return
		}

		s.clients.UpdateActivity(client.ID)
		if !s.handleMessage(client, message) {
			return
		}
	}
}

// handleMessage processes one frame and reports whether the connection
// should stay open.
func (s *Server) handleMessage(client *Client, message []byte) bool {
	var authResp AuthResponse
	if err := json.Unmarshal(message, &authResp); err == nil && authResp.Method == "auth.response" {
		return s.handleAuthMessage(client, authResp)
	}

	if !client.Authenticated {
		s.sendError(client, "", AuthenticationRequired, "Authentication required")
		return true
	}

	req, err := s.router.ParseRequest(message)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			s.sendError(client, "", rpcErr.Code, rpcErr.Message)
		} else {
			s.sendError(client, "", ParseError, err.Error())
		}
		return true
	}

	allowed, reason := client.RateLimiter.Acquire()
	if !allowed {
		code := RateLimitExceeded
		if reason == reasonTooConcurrent {
			code = TooManyConcurrent
		}
		observability.RecordGatewayRequest("ws", req.Method, false)
		s.sendError(client, req.ID, code, reason)
		return true
	}

	s.inFlightReqs.Add(1)
	go func() {
		defer s.inFlightReqs.Done()
		defer client.RateLimiter.Release()

		ctx := tracing.WithRequestID(tracing.WithTraceID(s.baseCtx, tracing.NewTraceID()), req.ID)
		ctx = observability.WithActor(ctx, client.ID)

		response := s.router.RouteRequest(ctx, client.ID, req)
		observability.RecordGatewayRequest("ws", req.Method, response.Error == nil)

		if err := client.Send(response); err != nil {
			s.logger.Error().
				Err(err).
				Str("clientId", client.ID).
				Str("requestId", req.ID).
				Msg("Failed to send response")
		}
	}()
	return true
}

func (s *Server) handleAuthMessage(client *Client, authResp AuthResponse) bool {
	result := s.authHandler.HandleAuthResponse(client, authResp.Signature)

	status := "success"
	if !result.Success {
		status = "failure"
	}
	observability.RecordSecurityAudit(s.baseCtx, "ws.auth", client.ID, status, map[string]interface{}{
		"ip": client.IPAddress,
	})

	if err := client.Send(result); err != nil {
		s.logger.Error().Err(err).Str("clientId", client.ID).Msg("Failed to send auth result")
		return false
	}

	if result.Success {
		s.logger.Info().Str("clientId", client.ID).Msg("Client authenticated")
		return true
	}

	s.logger.Warn().Str("clientId", client.ID).Str("reason", result.Message).Msg("Authentication failed")
	return client.AuthAttempts < maxAuthAttempts
}

func (s *Server) authorizeHTTP(w http.ResponseWriter, r *http.Request) bool {
	if s.authHandler.VerifySecret(r.Header.Get(secretHeader)) {
		return true
	}
	observability.RecordSecurityAudit(r.Context(), "http.auth", r.RemoteAddr, "failure", map[string]interface{}{
		"path": r.URL.Path,
	})
	http.Error(w, "unauthorized", http.StatusUnauthorized)
	return false
}

// handleRPC serves single-shot JSON-RPC over HTTP POST.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	if !s.authorizeHTTP(w, r) {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	req, err := s.router.ParseRequest(body)
	if err != nil {
		resp := errorResponse("", ParseError, err.Error())
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			resp = errorResponse("", rpcErr.Code, rpcErr.Message)
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	traceID := r.Header.Get("X-Trace-Id")
	if traceID == "" {
		traceID = tracing.NewTraceID()
	}
	ctx := tracing.WithRequestID(tracing.WithTraceID(r.Context(), traceID), req.ID)
	caller := httpCaller(r)
	ctx = observability.WithActor(ctx, caller)
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Info().Str("method", req.Method).Msg("Gateway received HTTP RPC request")

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()

	resp := s.router.RouteRequest(ctx, caller, req)
	observability.RecordGatewayRequest("http", req.Method, resp.Error == nil)
	writeJSON(w, http.StatusOK, resp)
}

// httpCaller identifies an HTTP RPC caller by remote host, so retries over
// a new connection still match.
func httpCaller(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "http:" + r.RemoteAddr
	}
	return "http:" + host
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.authorizeHTTP(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, toolsListResult{FunctionDeclarations: s.tools.Declarations()})
}

func (s *Server) sendError(client *Client, requestID string, code int, message string) {
	if err := client.Send(errorResponse(requestID, code, message)); err != nil {
		s.logger.Error().Err(err).Str("clientId", client.ID).Msg("Failed to send error response")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RegisterMethod adds an RPC method next to the built-in tool methods.
func (s *Server) RegisterMethod(name string, handler RequestHandler) error {
	return s.router.RegisterMethod(name, handler)
}

// ConnectedClients returns information about all connected clients.
func (s *Server) ConnectedClients() []ClientInfo {
	return s.clients.Snapshot()
}

package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// RPCRequest is a JSON-RPC 2.0 request. IdempotencyKey makes a retried
// request return the first response instead of running again.
type RPCRequest struct {
	ID             string          `json:"id"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
	JSONRPC        string          `json:"jsonrpc"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

// RPCResponse is a JSON-RPC 2.0 response.
type RPCResponse struct {
	ID      string      `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	JSONRPC string      `json:"jsonrpc"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// AuthChallenge is the first frame a websocket client receives.
type AuthChallenge struct {
	Event     string    `json:"event"`
	Challenge string    `json:"challenge"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthResponse carries the client's HMAC of the challenge.
type AuthResponse struct {
	Method    string `json:"method"`
	Signature string `json:"signature"`
}

// AuthResult reports the outcome of an AuthResponse.
type AuthResult struct {
	Event   string `json:"event"`
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
}

// ClientInfo is a read-only view of a connected client.
type ClientInfo struct {
	ID            string    `json:"id"`
	Authenticated bool      `json:"authenticated"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastActivity  time.Time `json:"lastActivity"`
	IPAddress     string    `json:"ipAddress"`
}

// ClientState is the lifecycle of a websocket client.
type ClientState int

const (
	StateConnecting ClientState = iota
	StateAuthenticating
	StateAuthenticated
	StateDisconnected
)

// RPC error codes
const (
	ParseError             = -32700
	InvalidRequest         = -32600
	MethodNotFound         = -32601
	InvalidParams          = -32602
	InternalError          = -32603
	AuthenticationRequired = -32001
	RateLimitExceeded      = -32005
	TooManyConcurrent      = -32006
)

// Client is a connected websocket client. Writes go through Send, which
// serializes them.
type Client struct {
	ID                 string
	Conn               *websocket.Conn
	Authenticated      bool
	Challenge          string
	ChallengeExpiresAt time.Time
	ConnectedAt        time.Time
	LastActivity       time.Time
	IPAddress          string
	AuthAttempts       int
	RateLimiter        *ClientRateLimiter
	State              ClientState

	writeMu sync.Mutex
}

// Send writes v as one JSON frame.
func (c *Client) Send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.Conn.WriteJSON(v)
}

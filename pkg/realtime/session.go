package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harun/daisy/internal/observability"
	"github.com/harun/daisy/internal/tracing"
	"github.com/harun/daisy/pkg/toolmanager"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned when sending on a session that has not been dialed.
var ErrNotConnected = errors.New("realtime session is not connected")

// Config holds the Gemini Live connection settings.
type Config struct {
	BaseURL            string
	Version            string
	APIKey             string
	Model              string
	Voice              string
	SystemInstruction  string
	ResponseModalities []string
	InputSampleRate    int
	CallTimeout        time.Duration
	HandshakeTimeout   time.Duration
	Logger             zerolog.Logger
}

// Dispatcher runs tool calls. *toolmanager.Manager satisfies it.
type Dispatcher interface {
	Declarations() []toolmanager.Declaration
	Dispatch(ctx context.Context, call toolmanager.Call) toolmanager.Response
}

// Handler receives model output. Nil callbacks are skipped.
type Handler struct {
	OnText         func(text string)
	OnAudio        func(mimeType string, data []byte)
	OnTurnComplete func()
	OnInterrupted  func()
}

// Session is one bidirectional Gemini Live conversation.
type Session struct {
	cfg     Config
	tools   Dispatcher
	handler Handler
	dialer  *websocket.Dialer
	logger  zerolog.Logger
	id      string

	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error

	mu        sync.Mutex
	inflight  map[uint64]pendingCall
	nextToken uint64
	wg        sync.WaitGroup
}

// pendingCall is a running tool call. Calls are keyed by a session-local
// token so that repeated or empty ids from the server stay distinct.
type pendingCall struct {
	id     string
	cancel context.CancelFunc
}

// New creates a session. Call Dial before sending.
func New(cfg Config, tools Dispatcher, handler Handler) *Session {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "wss://generativelanguage.googleapis.com/ws"
	}
	if cfg.Version == "" {
		cfg.Version = "v1alpha"
	}
	if cfg.Model == "" {
		cfg.Model = "models/gemini-2.0-flash-exp"
	}
	if len(cfg.ResponseModalities) == 0 {
		cfg.ResponseModalities = []string{"TEXT"}
	}
	if cfg.InputSampleRate <= 0 {
		cfg.InputSampleRate = 16000
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 15 * time.Second
	}

	id := uuid.New().String()
	return &Session{
		cfg:      cfg,
		tools:    tools,
		handler:  handler,
		dialer:   &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger:   cfg.Logger.With().Str("session_id", id).Logger(),
		id:       id,
		inflight: make(map[uint64]pendingCall),
	}
}

// ID returns the session id used in logs and traces.
func (s *Session) ID() string {
	return s.id
}

// Endpoint returns the websocket URL for cfg, without the key.
func Endpoint(cfg Config) string {
	return fmt.Sprintf("%s/google.ai.generativelanguage.%s.GenerativeService.BidiGenerateContent",
		strings.TrimSuffix(cfg.BaseURL, "/"), cfg.Version)
}

// Dial connects, sends the setup frame and waits for setupComplete.
func (s *Session) Dial(ctx context.Context) error {
	if s.cfg.APIKey == "" {
		return errors.New("gemini api key is required")
	}

	u, err := url.Parse(Endpoint(s.cfg))
	if err != nil {
		return fmt.Errorf("invalid realtime url: %w", err)
	}
	q := u.Query()
	q.Set("key", s.cfg.APIKey)
	u.RawQuery = q.Encode()

	conn, _, err := s.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to realtime api: %w", err)
	}
	s.conn = conn

	if err := s.write(s.setupFrame()); err != nil {
		s.conn = nil
		conn.Close()
		return fmt.Errorf("failed to send setup: %w", err)
	}

	deadline := time.Now().Add(s.cfg.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		msg, err := s.read()
		if err != nil {
			s.conn = nil
			conn.Close()
			return fmt.Errorf("setup not acknowledged: %w", err)
		}
		if msg.SetupComplete != nil {
			break
		}
		s.logger.Debug().Str("type", msg.kind()).Msg("Ignoring frame before setupComplete")
	}

	observability.AddRealtimeSessions(1)
	s.logger.Info().Str("model", s.cfg.Model).Msg("Realtime session established")
	return nil
}

func (s *Session) setupFrame() clientMessage {
	setup := &setupMessage{
		Model: s.cfg.Model,
		GenerationConfig: generationConfig{
			ResponseModalities: s.cfg.ResponseModalities,
		},
	}
	if s.cfg.Voice != "" {
		setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoice{VoiceName: s.cfg.Voice}},
		}
	}
	if s.cfg.SystemInstruction != "" {
		setup.SystemInstruction = &content{Parts: []part{{Text: s.cfg.SystemInstruction}}}
	}
	if s.tools != nil {
		if decls := s.tools.Declarations(); len(decls) > 0 {
			setup.Tools = []toolSet{{FunctionDeclarations: decls}}
		}
	}
	return clientMessage{Setup: setup}
}

// SendText sends one complete user turn.
func (s *Session) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(clientMessage{ClientContent: &clientContent{
		Turns:        []content{{Role: "user", Parts: []part{{Text: text}}}},
		TurnComplete: true,
	}})
}

// SendAudio streams a chunk of 16-bit little-endian PCM.
func (s *Session) SendAudio(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(clientMessage{RealtimeInput: &realtimeInput{MediaChunks: []blob{{
		MimeType: fmt.Sprintf("audio/pcm;rate=%d", s.cfg.InputSampleRate),
		Data:     base64.StdEncoding.EncodeToString(pcm),
	}}}})
}

// Run reads frames until ctx is done or the connection closes. In-flight
// tool calls are cancelled and awaited before it returns.
func (s *Session) Run(ctx context.Context) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	ctx = tracing.WithSessionID(ctx, s.id)

	runCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.wg.Wait()
	}()

	stop := context.AfterFunc(ctx, func() {
		s.conn.Close()
	})
	defer stop()

	for {
		msg, err := s.read()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info().Msg("Realtime session closed by server")
				return nil
			}
			return fmt.Errorf("realtime read failed: %w", err)
		}

		switch {
		case msg.ServerContent != nil:
			s.handleContent(msg.ServerContent)
		case msg.ToolCall != nil:
			for _, fc := range msg.ToolCall.FunctionCalls {
				s.startCall(runCtx, fc)
			}
		case msg.ToolCallCancellation != nil:
			s.cancelCalls(msg.ToolCallCancellation.IDs)
		}
	}
}

func (s *Session) handleContent(sc *serverContent) {
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.Text != "" && s.handler.OnText != nil {
				s.handler.OnText(p.Text)
			}
			if p.InlineData != nil && s.handler.OnAudio != nil {
				data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					s.logger.Warn().Err(err).Msg("Dropping undecodable inline data")
					continue
				}
				s.handler.OnAudio(p.InlineData.MimeType, data)
			}
		}
	}
	if sc.Interrupted && s.handler.OnInterrupted != nil {
		s.handler.OnInterrupted()
	}
	if sc.TurnComplete && s.handler.OnTurnComplete != nil {
		s.handler.OnTurnComplete()
	}
}

func (s *Session) startCall(ctx context.Context, fc functionCall) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)

	s.mu.Lock()
	s.nextToken++
	token := s.nextToken
	s.inflight[token] = pendingCall{id: fc.ID, cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		call := toolmanager.Call{Name: fc.Name, Args: fc.Args, ID: fc.ID}
		resp := s.dispatch(callCtx, call)

		if !s.finishCall(token) {
			s.logger.Debug().Str("call_id", fc.ID).Msg("Dropping response for cancelled tool call")
			return
		}
		if err := s.write(clientMessage{ToolResponse: &resp}); err != nil {
			s.logger.Error().Err(err).Str("tool", fc.Name).Str("call_id", fc.ID).Msg("Failed to send tool response")
		}
	}()
}

// dispatch runs call, answering with an error payload if callCtx expires
// before the tool returns.
func (s *Session) dispatch(callCtx context.Context, call toolmanager.Call) toolmanager.Response {
	if s.tools == nil {
		return toolmanager.Single(call.ID, toolmanager.Payload{Error: "Unknown tool: " + call.Name})
	}

	done := make(chan toolmanager.Response, 1)
	go func() {
		done <- s.tools.Dispatch(callCtx, call)
	}()

	select {
	case resp := <-done:
		return resp
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			s.logger.Warn().Str("tool", call.Name).Str("call_id", call.ID).Dur("timeout", s.cfg.CallTimeout).Msg("Tool call timed out")
			return toolmanager.Single(call.ID, toolmanager.Payload{
				Error: fmt.Sprintf("tool call timed out after %s", s.cfg.CallTimeout),
			})
		}
		return toolmanager.Single(call.ID, toolmanager.Payload{Error: "tool call cancelled"})
	}
}

// finishCall removes token from the in-flight set and reports whether it was
// still there, i.e. not cancelled by the server.
func (s *Session) finishCall(token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.inflight[token]; !ok {
		return false
	}
	delete(s.inflight, token)
	return true
}

func (s *Session) cancelCalls(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := make(map[string]bool, len(ids))
	for _, id := range ids {
		cancelled[id] = true
	}
	for token, pc := range s.inflight {
		if cancelled[pc.id] {
			pc.cancel()
			delete(s.inflight, token)
			s.logger.Info().Str("call_id", pc.id).Msg("Tool call cancelled by server")
		}
	}
}

// InFlight returns the number of tool calls still running.
func (s *Session) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.inflight)
}

func (s *Session) read() (serverMessage, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return serverMessage{}, err
	}
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return serverMessage{}, fmt.Errorf("malformed realtime frame: %w", err)
	}
	observability.RecordRealtimeMessage("in", msg.kind())
	return msg, nil
}

func (s *Session) write(msg clientMessage) error {
	if s.conn == nil {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.WriteJSON(msg); err != nil {
		return err
	}
	observability.RecordRealtimeMessage("out", msg.kind())
	return nil
}

// Close sends a close frame and releases the connection.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}

	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()

		observability.AddRealtimeSessions(-1)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

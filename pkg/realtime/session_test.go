package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/daisy/pkg/toolmanager"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLive plays the server side of a Gemini Live connection.
type fakeLive struct {
	srv      *httptest.Server
	setup    chan map[string]any
	frames   chan map[string]any
	conns    chan *websocket.Conn
	requests chan *url.URL
}

func newFakeLive(t *testing.T) *fakeLive {
	t.Helper()
	f := &fakeLive{
		setup:    make(chan map[string]any, 1),
		frames:   make(chan map[string]any, 16),
		conns:    make(chan *websocket.Conn, 1),
		requests: make(chan *url.URL, 1),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests <- r.URL
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var setup map[string]any
		if err := conn.ReadJSON(&setup); err != nil {
			return
		}
		f.setup <- setup
		// Gemini sends JSON in binary frames.
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte(`{"setupComplete":{}}`)); err != nil {
			return
		}
		f.conns <- conn

		for {
			var frame map[string]any
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			f.frames <- frame
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeLive) baseURL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeLive) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-f.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("server never finished setup")
		return nil
	}
}

func (f *fakeLive) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case frame := <-f.frames:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("no frame from client")
		return nil
	}
}

func newManager(t *testing.T, tools map[string]func(context.Context, map[string]any) (any, error)) *toolmanager.Manager {
	t.Helper()
	mgr := toolmanager.New(toolmanager.WithLogger(zerolog.Nop()))
	for name, fn := range tools {
		require.NoError(t, mgr.Register(name, toolmanager.Func{
			Declaration: toolmanager.Declaration{Name: name, Description: "test tool " + name},
			Handler:     fn,
		}))
	}
	return mgr
}

func dialSession(t *testing.T, f *fakeLive, mgr Dispatcher, handler Handler, timeout time.Duration) *Session {
	t.Helper()
	s := New(Config{
		BaseURL:           f.baseURL(),
		APIKey:            "test-key",
		Voice:             "Aoede",
		SystemInstruction: "You are a scribe.",
		CallTimeout:       timeout,
		Logger:            zerolog.Nop(),
	}, mgr, handler)
	require.NoError(t, s.Dial(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func runSession(t *testing.T, s *Session) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestSession_Dial(t *testing.T) {
	f := newFakeLive(t)
	mgr := newManager(t, map[string]func(context.Context, map[string]any) (any, error){
		"echo": func(_ context.Context, args map[string]any) (any, error) { return args, nil },
	})

	dialSession(t, f, mgr, Handler{}, time.Second)

	u := <-f.requests
	assert.Equal(t, "/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent", u.Path)
	assert.Equal(t, "test-key", u.Query().Get("key"))

	setup := (<-f.setup)["setup"].(map[string]any)
	assert.Equal(t, "models/gemini-2.0-flash-exp", setup["model"])

	gen := setup["generationConfig"].(map[string]any)
	assert.Equal(t, []any{"TEXT"}, gen["responseModalities"])
	voice := gen["speechConfig"].(map[string]any)["voiceConfig"].(map[string]any)["prebuiltVoiceConfig"].(map[string]any)
	assert.Equal(t, "Aoede", voice["voiceName"])

	sys := setup["systemInstruction"].(map[string]any)["parts"].([]any)[0].(map[string]any)
	assert.Equal(t, "You are a scribe.", sys["text"])

	decls := setup["tools"].([]any)[0].(map[string]any)["functionDeclarations"].([]any)
	require.Len(t, decls, 1)
	assert.Equal(t, "echo", decls[0].(map[string]any)["name"])
}

func TestSession_DialRequiresKey(t *testing.T) {
	s := New(Config{Logger: zerolog.Nop()}, nil, Handler{})
	assert.EqualError(t, s.Dial(context.Background()), "gemini api key is required")
	assert.ErrorIs(t, s.SendText(context.Background(), "hi"), ErrNotConnected)
	assert.ErrorIs(t, s.Run(context.Background()), ErrNotConnected)
}

func TestSession_SendTextAndAudio(t *testing.T) {
	f := newFakeLive(t)
	s := dialSession(t, f, newManager(t, nil), Handler{}, time.Second)
	f.conn(t)

	require.NoError(t, s.SendText(context.Background(), "hello"))
	frame := f.next(t)
	cc := frame["clientContent"].(map[string]any)
	assert.Equal(t, true, cc["turnComplete"])
	turn := cc["turns"].([]any)[0].(map[string]any)
	assert.Equal(t, "user", turn["role"])
	assert.Equal(t, "hello", turn["parts"].([]any)[0].(map[string]any)["text"])

	require.NoError(t, s.SendAudio(context.Background(), []byte{1, 2, 3}))
	frame = f.next(t)
	chunk := frame["realtimeInput"].(map[string]any)["mediaChunks"].([]any)[0].(map[string]any)
	assert.Equal(t, "audio/pcm;rate=16000", chunk["mimeType"])
	assert.Equal(t, "AQID", chunk["data"])
}

func TestSession_ServerContent(t *testing.T) {
	f := newFakeLive(t)

	var (
		mu    sync.Mutex
		texts []string
		audio []byte
	)
	turnDone := make(chan struct{}, 1)
	handler := Handler{
		OnText: func(text string) {
			mu.Lock()
			texts = append(texts, text)
			mu.Unlock()
		},
		OnAudio: func(_ string, data []byte) {
			mu.Lock()
			audio = append(audio, data...)
			mu.Unlock()
		},
		OnTurnComplete: func() { turnDone <- struct{}{} },
	}

	s := dialSession(t, f, newManager(t, nil), handler, time.Second)
	server := f.conn(t)
	runSession(t, s)

	require.NoError(t, server.WriteJSON(map[string]any{
		"serverContent": map[string]any{
			"modelTurn": map[string]any{"parts": []any{
				map[string]any{"text": "Hello "},
				map[string]any{"inlineData": map[string]any{"mimeType": "audio/pcm;rate=24000", "data": "AQID"}},
				map[string]any{"text": "there"},
			}},
			"turnComplete": true,
		},
	}))

	select {
	case <-turnDone:
	case <-time.After(2 * time.Second):
		t.Fatal("turn never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Hello ", "there"}, texts)
	assert.Equal(t, []byte{1, 2, 3}, audio)
}

func TestSession_ToolCalls(t *testing.T) {
	f := newFakeLive(t)
	mgr := newManager(t, map[string]func(context.Context, map[string]any) (any, error){
		"echo": func(_ context.Context, args map[string]any) (any, error) { return args["text"], nil },
	})

	s := dialSession(t, f, mgr, Handler{}, time.Second)
	server := f.conn(t)
	runSession(t, s)

	require.NoError(t, server.WriteJSON(map[string]any{
		"toolCall": map[string]any{"functionCalls": []any{
			map[string]any{"id": "c1", "name": "echo", "args": map[string]any{"text": "one"}},
			map[string]any{"id": "c2", "name": "missing", "args": map[string]any{}},
		}},
	}))

	got := map[string]map[string]any{}
	for i := 0; i < 2; i++ {
		frame := f.next(t)
		responses := frame["toolResponse"].(map[string]any)["functionResponses"].([]any)
		require.Len(t, responses, 1)
		r := responses[0].(map[string]any)
		got[r["id"].(string)] = r["response"].(map[string]any)
	}

	assert.Equal(t, map[string]any{"output": "one"}, got["c1"])
	assert.Equal(t, map[string]any{"error": "Unknown tool: missing"}, got["c2"])
}

func TestSession_ToolCallTimeout(t *testing.T) {
	f := newFakeLive(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	mgr := newManager(t, map[string]func(context.Context, map[string]any) (any, error){
		"stuck": func(context.Context, map[string]any) (any, error) {
			<-release
			return "late", nil
		},
	})

	s := dialSession(t, f, mgr, Handler{}, 50*time.Millisecond)
	server := f.conn(t)
	runSession(t, s)

	require.NoError(t, server.WriteJSON(map[string]any{
		"toolCall": map[string]any{"functionCalls": []any{
			map[string]any{"id": "slow", "name": "stuck", "args": map[string]any{}},
		}},
	}))

	frame := f.next(t)
	r := frame["toolResponse"].(map[string]any)["functionResponses"].([]any)[0].(map[string]any)
	assert.Equal(t, "slow", r["id"])
	assert.Equal(t, map[string]any{"error": "tool call timed out after 50ms"}, r["response"])
}

func TestSession_ToolCallCancellation(t *testing.T) {
	f := newFakeLive(t)
	started := make(chan struct{})

	mgr := newManager(t, map[string]func(context.Context, map[string]any) (any, error){
		"wait": func(ctx context.Context, _ map[string]any) (any, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
		"quick": func(context.Context, map[string]any) (any, error) { return "ok", nil },
	})

	s := dialSession(t, f, mgr, Handler{}, 5*time.Second)
	server := f.conn(t)
	runSession(t, s)

	require.NoError(t, server.WriteJSON(map[string]any{
		"toolCall": map[string]any{"functionCalls": []any{
			map[string]any{"id": "w1", "name": "wait", "args": map[string]any{}},
		}},
	}))
	<-started
	require.NoError(t, server.WriteJSON(map[string]any{
		"toolCallCancellation": map[string]any{"ids": []any{"w1"}},
	}))

	require.Eventually(t, func() bool { return s.InFlight() == 0 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, server.WriteJSON(map[string]any{
		"toolCall": map[string]any{"functionCalls": []any{
			map[string]any{"id": "q1", "name": "quick", "args": map[string]any{}},
		}},
	}))

	frame := f.next(t)
	r := frame["toolResponse"].(map[string]any)["functionResponses"].([]any)[0].(map[string]any)
	assert.Equal(t, "q1", r["id"])
}

func TestSession_RepeatedCallIDs(t *testing.T) {
	f := newFakeLive(t)

	var both sync.WaitGroup
	both.Add(2)
	mgr := newManager(t, map[string]func(context.Context, map[string]any) (any, error){
		"echo": func(_ context.Context, args map[string]any) (any, error) {
			both.Done()
			both.Wait()
			return args["n"], nil
		},
	})

	s := dialSession(t, f, mgr, Handler{}, 5*time.Second)
	server := f.conn(t)
	runSession(t, s)

	require.NoError(t, server.WriteJSON(map[string]any{
		"toolCall": map[string]any{"functionCalls": []any{
			map[string]any{"id": "", "name": "echo", "args": map[string]any{"n": "first"}},
			map[string]any{"id": "", "name": "echo", "args": map[string]any{"n": "second"}},
		}},
	}))

	var outputs []any
	for i := 0; i < 2; i++ {
		frame := f.next(t)
		r := frame["toolResponse"].(map[string]any)["functionResponses"].([]any)[0].(map[string]any)
		outputs = append(outputs, r["response"].(map[string]any)["output"])
	}
	assert.ElementsMatch(t, []any{"first", "second"}, outputs)
	require.Eventually(t, func() bool { return s.InFlight() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSession_RunStopsOnContextCancel(t *testing.T) {
	f := newFakeLive(t)
	s := dialSession(t, f, newManager(t, nil), Handler{}, time.Second)
	f.conn(t)

	cancel, done := runSession(t, s)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestEndpoint(t *testing.T) {
	got := Endpoint(Config{BaseURL: "wss://example.com/ws/", Version: "v1beta"})
	assert.Equal(t, "wss://example.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent", got)

	var frame clientMessage
	require.NoError(t, json.Unmarshal([]byte(`{"toolResponse":{"functionResponses":[{"response":{"output":1},"id":"x"}]}}`), &frame))
	assert.Equal(t, "tool_response", frame.kind())
}

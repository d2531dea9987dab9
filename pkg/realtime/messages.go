package realtime

import (
	"encoding/json"

	"github.com/harun/daisy/pkg/toolmanager"
)

// Client → server frames. Exactly one field is set per frame.
type clientMessage struct {
	Setup         *setupMessage         `json:"setup,omitempty"`
	ClientContent *clientContent        `json:"clientContent,omitempty"`
	RealtimeInput *realtimeInput        `json:"realtimeInput,omitempty"`
	ToolResponse  *toolmanager.Response `json:"toolResponse,omitempty"`
}

type setupMessage struct {
	Model             string           `json:"model"`
	GenerationConfig  generationConfig `json:"generationConfig"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Tools             []toolSet        `json:"tools,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoice `json:"prebuiltVoiceConfig"`
}

type prebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type toolSet struct {
	FunctionDeclarations []toolmanager.Declaration `json:"functionDeclarations"`
}

type clientContent struct {
	Turns        []content `json:"turns"`
	TurnComplete bool      `json:"turnComplete"`
}

type realtimeInput struct {
	MediaChunks []blob `json:"mediaChunks"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Server → client frames.
type serverMessage struct {
	SetupComplete        *json.RawMessage      `json:"setupComplete,omitempty"`
	ServerContent        *serverContent        `json:"serverContent,omitempty"`
	ToolCall             *toolCall             `json:"toolCall,omitempty"`
	ToolCallCancellation *toolCallCancellation `json:"toolCallCancellation,omitempty"`
}

type serverContent struct {
	ModelTurn    *content `json:"modelTurn,omitempty"`
	TurnComplete bool     `json:"turnComplete,omitempty"`
	Interrupted  bool     `json:"interrupted,omitempty"`
}

type toolCall struct {
	FunctionCalls []functionCall `json:"functionCalls"`
}

type functionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type toolCallCancellation struct {
	IDs []string `json:"ids"`
}

func (m serverMessage) kind() string {
	switch {
	case m.SetupComplete != nil:
		return "setup_complete"
	case m.ServerContent != nil:
		return "server_content"
	case m.ToolCall != nil:
		return "tool_call"
	case m.ToolCallCancellation != nil:
		return "tool_call_cancellation"
	default:
		return "other"
	}
}

func (m clientMessage) kind() string {
	switch {
	case m.Setup != nil:
		return "setup"
	case m.ClientContent != nil:
		return "client_content"
	case m.RealtimeInput != nil:
		return "realtime_input"
	case m.ToolResponse != nil:
		return "tool_response"
	default:
		return "other"
	}
}

package toolmanager

import (
	"encoding/json"
	"fmt"
)

// Call is one function call emitted by the model.
type Call struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
	ID   string         `json:"id"`
}

// Response is the envelope relayed back to the model session.
type Response struct {
	FunctionResponses []FunctionResponse `json:"functionResponses"`
}

// FunctionResponse carries the outcome of one call.
type FunctionResponse struct {
	Response Payload `json:"response"`
	ID       string  `json:"id"`
}

// Payload holds exactly one of Output or Error. A payload with a non-empty
// Error is a failure; otherwise Output is the result, possibly nil.
type Payload struct {
	Output any
	Error  string
}

// Failed reports whether the payload carries an error.
func (p Payload) Failed() bool {
	return p.Error != ""
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{p.Error})
	}
	return json.Marshal(struct {
		Output any `json:"output"`
	}{p.Output})
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	errRaw, hasErr := raw["error"]
	outRaw, hasOut := raw["output"]
	if hasErr == hasOut {
		return fmt.Errorf("payload must hold exactly one of output or error")
	}
	if hasErr {
		p.Output = nil
		return json.Unmarshal(errRaw, &p.Error)
	}
	p.Error = ""
	return json.Unmarshal(outRaw, &p.Output)
}

// Single wraps one function response into an envelope.
func Single(id string, payload Payload) Response {
	return Response{FunctionResponses: []FunctionResponse{{Response: payload, ID: id}}}
}

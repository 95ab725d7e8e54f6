package engine

import (
	"bytes"

	"github.com/goccy/go-json"
)

// Envelope is the reply of the library and wasm engines: either a result or
// the message of the error the engine raised.
type Envelope struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  json.RawMessage `json:"error,omitempty"`
}

// DecodeEnvelope maps an engine reply to an outcome. The error member may be a
// plain message or an ErrorPayload object; both go through ClassifyEngineMessage.
func DecodeEnvelope(raw []byte, m Markers) Outcome {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Failure("engine returned an unparsable reply: "+truncate(string(raw), 200), err)
	}
	if len(env.Error) > 0 && !bytes.Equal(env.Error, []byte("null")) {
		var message string
		if err := json.Unmarshal(env.Error, &message); err == nil {
			return ClassifyEngineMessage(message, m)
		}
		return ClassifyEngineMessage(string(env.Error), m)
	}
	return Success(env.Result)
}

// ErrorEnvelope encodes message as the error member of an Envelope.
func ErrorEnvelope(message string) []byte {
	data, _ := json.Marshal(map[string]string{"error": message})
	return data
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

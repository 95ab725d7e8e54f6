package engine

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/satishbabariya/prisma-engines-go/psl/diagnostics"
)

// Markers holds the engine-version dependent exit codes and substrings used to
// classify raw engine output. They are plain data so callers can adjust them to
// the engine build in use.
type Markers struct {
	// PanicExitCodes are process exit codes meaning the engine crashed.
	PanicExitCodes []int
	// SuccessExitCode and ErrorExitCode are the codes of a clean run and a
	// reported error.
	SuccessExitCode int
	ErrorExitCode   int
	// TextBusyExitCode is the spawn failure code for a busy executable.
	TextBusyExitCode int
	// TextBusy is the spawn error text for a busy executable.
	TextBusy string
	// PleaseWait is printed on stdout while the engine is not ready yet.
	PleaseWait string
	// PanickedAt appears in the stderr of a crashed engine.
	PanickedAt string
	// WasmTrap is the runtime error of a wasm module that aborted.
	WasmTrap string
}

// DefaultMarkers returns the markers of current engine builds.
func DefaultMarkers() Markers {
	return Markers{
		PanicExitCodes:   []int{101, 255},
		SuccessExitCode:  0,
		ErrorExitCode:    1,
		TextBusyExitCode: 26,
		TextBusy:         "ETXTBSY",
		PleaseWait:       "Please wait until the",
		PanickedAt:       "panicked at",
		WasmTrap:         "wasm error: unreachable",
	}
}

// IsPanicExitCode reports whether code means the engine crashed. In session
// mode unknown non-zero codes are panics too; see IsKnownExitCode.
func (m Markers) IsPanicExitCode(code int) bool {
	for _, c := range m.PanicExitCodes {
		if c == code {
			return true
		}
	}
	return false
}

// IsKnownExitCode reports whether code is success, error or panic.
func (m Markers) IsKnownExitCode(code int) bool {
	return code == m.SuccessExitCode || code == m.ErrorExitCode || m.IsPanicExitCode(code)
}

// IsWarming reports whether stdout says the engine is not ready yet.
func (m Markers) IsWarming(stdout string) bool {
	return m.PleaseWait != "" && strings.Contains(stdout, m.PleaseWait)
}

// IsTextBusy reports whether a spawn failure is a busy executable.
func (m Markers) IsTextBusy(exitCode int, message string) bool {
	if m.TextBusyExitCode != 0 && exitCode == m.TextBusyExitCode {
		return true
	}
	return m.TextBusy != "" && strings.Contains(message, m.TextBusy)
}

// IsPanicText reports whether free text carries a crash marker.
func (m Markers) IsPanicText(text string) bool {
	return m.PanickedAt != "" && strings.Contains(text, m.PanickedAt)
}

// IsWasmTrap reports whether a wasm call error is an abort of the module.
func (m Markers) IsWasmTrap(text string) bool {
	return m.WasmTrap != "" && strings.Contains(text, m.WasmTrap)
}

// ErrorPayload is the JSON error shape thrown by the library and wasm engines and
// printed by the binary engine.
type ErrorPayload struct {
	IsPanic   bool            `json:"is_panic"`
	Message   string          `json:"message"`
	Backtrace string          `json:"backtrace,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	Meta      json.RawMessage `json:"meta,omitempty"`
}

// ParseErrorPayload decodes raw as an ErrorPayload. The bool is false when raw
// holds no JSON object with a message or error code.
func ParseErrorPayload(raw string) (ErrorPayload, bool) {
	data, ok := LocateJSON(raw)
	if !ok || data[0] != '{' {
		return ErrorPayload{}, false
	}
	var e ErrorPayload
	if err := json.Unmarshal(data, &e); err != nil {
		return ErrorPayload{}, false
	}
	if e.Message == "" && e.ErrorCode == "" && !e.IsPanic {
		return ErrorPayload{}, false
	}
	return e, true
}

// ClassifyEngineMessage maps an engine error message to an outcome. It is the
// single place free text from the engine is sniffed.
func ClassifyEngineMessage(raw string, m Markers) Outcome {
	if e, ok := ParseErrorPayload(raw); ok {
		switch {
		case e.IsPanic:
			return Panic(e.Message, e.Backtrace, "")
		case e.ErrorCode != "":
			return ValidationFailure(e.Message, e.ErrorCode, diagnosticsFromMeta(e.Meta))
		default:
			return Failure(e.Message, nil)
		}
	}
	if m.IsPanicText(raw) {
		return Panic(panicHeadline(raw, m.PanickedAt), raw, "")
	}
	return Failure(strings.TrimSpace(raw), nil)
}

// diagnosticsFromMeta extracts positioned diagnostics some engines attach to
// error metadata.
func diagnosticsFromMeta(meta json.RawMessage) []diagnostics.Diagnostic {
	if len(meta) == 0 {
		return nil
	}
	var wrapper struct {
		Diagnostics []diagnostics.Diagnostic `json:"diagnostics"`
	}
	if err := json.Unmarshal(meta, &wrapper); err != nil {
		return nil
	}
	return wrapper.Diagnostics
}

// panicHeadline returns the line carrying the crash marker, or the first line.
func panicHeadline(raw, marker string) string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	for _, l := range lines {
		if strings.Contains(l, marker) {
			return strings.TrimSpace(l)
		}
	}
	return strings.TrimSpace(lines[0])
}

// LocateJSON returns the first JSON value in s, skipping leading noise the
// engine may print before it.
func LocateJSON(s string) (json.RawMessage, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var raw json.RawMessage
		// The decoder only balances brackets for a RawMessage, so "[INFO]"
		// would pass without the validity check.
		if err := dec.Decode(&raw); err == nil && json.Valid(raw) {
			return raw, true
		}
	}
	return nil, false
}

// Package engine defines the contract shared by every way of reaching the
// schema/query engine, the normalized outcome of a call, and the translation of
// failed outcomes into typed errors.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/satishbabariya/prisma-engines-go/psl/core"
)

// Command is an engine operation name, as understood by the binary CLI.
type Command string

const (
	CommandGetConfig              Command = "get-config"
	CommandGetDMMF                Command = "get-dmmf"
	CommandValidate               Command = "validate"
	CommandFormat                 Command = "format"
	CommandLint                   Command = "lint"
	CommandMergeSchemas           Command = "merge-schemas"
	CommandDebugPanic             Command = "debug-panic"
	CommandVersion                Command = "version"
	CommandSerializeSchemaToBytes Command = "serialize-schema-to-bytes"
)

// Kind identifies the transport used to reach the engine.
type Kind string

const (
	KindBinary  Kind = "binary"
	KindLibrary Kind = "library"
	KindWasm    Kind = "wasm"
)

// ParseKind parses a transport kind. The legacy names used by
// PRISMA_CLI_QUERY_ENGINE_TYPE are accepted too.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "binary", "query-engine":
		return KindBinary, nil
	case "library", "libquery-engine", "node-api":
		return KindLibrary, nil
	case "wasm":
		return KindWasm, nil
	default:
		return "", fmt.Errorf("unknown engine type %q (expected binary, library or wasm)", s)
	}
}

// Request is one engine invocation. It is built per call and not retained.
type Request struct {
	Command Command
	// Params is the JSON-serializable payload of the command.
	Params any
	// Options is a second payload for commands taking two arguments (format).
	Options any
	// Schemas is the schema the command runs against, when it needs one.
	Schemas core.SchemaFileSet
	// SchemaPath is an on-disk file already holding the schema, if any.
	SchemaPath string
	// Flags are extra engine flags such as --enable-experimental.
	Flags []string
}

// Transport reaches the engine and normalizes every result into an Outcome.
type Transport interface {
	Kind() Kind
	Invoke(ctx context.Context, req Request) Outcome
}

// Closer is implemented by transports holding resources across calls.
type Closer interface {
	Close(ctx context.Context) error
}

// EncodeParams serializes a command payload for the wire.
func EncodeParams(v any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// Echo renders the request for panic reports.
func (r Request) Echo() string {
	data, err := EncodeParams(r.Params)
	if err != nil {
		return string(r.Command)
	}
	return string(r.Command) + " " + string(data)
}

// DebugPanicParams is the payload of CommandDebugPanic.
type DebugPanicParams struct {
	Message string `json:"message,omitempty"`
}

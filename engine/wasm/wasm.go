// Package wasm reaches the engine through a WebAssembly module instantiated
// once per process.
package wasm

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"

	"github.com/satishbabariya/prisma-engines-go/engine"
	"github.com/satishbabariya/prisma-engines-go/internal/debug"
)

// shared is the process-wide engine instance. Instantiating the module twice
// breaks the runtime binding, so every Transport uses this cell by default.
var shared Cell

// Source returns the module binary.
type Source func(ctx context.Context) ([]byte, error)

// FileSource reads the module from path on fsys.
func FileSource(fsys afero.Fs, path string) Source {
	return func(context.Context) ([]byte, error) {
		return afero.ReadFile(fsys, path)
	}
}

// Transport calls the engine's wasm exports.
type Transport struct {
	cell        *Cell
	source      Source
	instantiate func(ctx context.Context, binary []byte) (Module, error)
	markers     engine.Markers
}

// Option configures a Transport.
type Option func(*Transport)

// WithCell replaces the process-wide cell. Intended for tests.
func WithCell(c *Cell) Option {
	return func(t *Transport) {
		t.cell = c
	}
}

// WithInstantiate replaces the wazero instantiation.
func WithInstantiate(fn func(ctx context.Context, binary []byte) (Module, error)) Option {
	return func(t *Transport) {
		t.instantiate = fn
	}
}

// WithMarkers replaces the markers used for classification.
func WithMarkers(m engine.Markers) Option {
	return func(t *Transport) {
		t.markers = m
	}
}

// New creates a wasm transport loading the module from source on first use.
func New(source Source, opts ...Option) *Transport {
	t := &Transport{
		cell:        &shared,
		source:      source,
		instantiate: Instantiate,
		markers:     engine.DefaultMarkers(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Kind implements engine.Transport.
func (t *Transport) Kind() engine.Kind {
	return engine.KindWasm
}

// State reports the lifecycle of the module instance.
func (t *Transport) State() CellState {
	return t.cell.State()
}

func (t *Transport) module(ctx context.Context) (Module, error) {
	return t.cell.Get(ctx, func(ctx context.Context) (Module, error) {
		binary, err := t.source(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading wasm engine: %w", err)
		}
		return t.instantiate(ctx, binary)
	})
}

// Invoke implements engine.Transport.
func (t *Transport) Invoke(ctx context.Context, req engine.Request) engine.Outcome {
	mod, err := t.module(ctx)
	if err != nil {
		return engine.Failure("could not instantiate the wasm engine", err)
	}

	export, args, err := exportCall(req)
	if err != nil {
		return engine.Failure("could not encode engine request", err)
	}

	raw, message, err := call(ctx, mod, export, args)
	if err != nil {
		if message != "" {
			return engine.Panic(message, err.Error(), req.Echo())
		}
		if t.markers.IsWasmTrap(err.Error()) {
			return engine.Panic(err.Error(), "", req.Echo())
		}
		return engine.Failure(fmt.Sprintf("wasm engine call %s failed", export), err)
	}
	debug.Debug("wasm call returned", "component", "wasm", "export", export, "bytes", len(raw))

	if len(raw) == 0 {
		return engine.Success(nil)
	}
	outcome := engine.DecodeEnvelope(raw, t.markers)
	if outcome.Kind == engine.OutcomePanic && outcome.RequestEcho == "" {
		outcome.RequestEcho = req.Echo()
	}
	return outcome
}

// callMu serializes export calls of every Transport. The panic registry is a
// single process-wide slot, so clearing it, calling and reading it back must
// not interleave with another call.
var callMu sync.Mutex

// call invokes export and returns the panic message the module registered
// while the call ran, if any.
func call(ctx context.Context, mod Module, export string, args [][]byte) ([]byte, string, error) {
	callMu.Lock()
	defer callMu.Unlock()

	// A message left over from an earlier call must not be attributed to this one.
	registry.take()
	raw, err := mod.Call(ctx, export, args...)
	if err != nil {
		return nil, registry.take(), err
	}
	return raw, "", nil
}

// exportCall maps a request to the export it calls and the export's arguments.
func exportCall(req engine.Request) (string, [][]byte, error) {
	params := func() ([][]byte, error) {
		data, err := engine.EncodeParams(req.Params)
		if err != nil {
			return nil, err
		}
		return [][]byte{data}, nil
	}

	switch req.Command {
	case engine.CommandGetConfig:
		args, err := params()
		return "get_config", args, err
	case engine.CommandGetDMMF:
		args, err := params()
		return "get_dmmf", args, err
	case engine.CommandValidate:
		args, err := params()
		return "validate", args, err
	case engine.CommandLint:
		args, err := params()
		return "lint", args, err
	case engine.CommandMergeSchemas:
		args, err := params()
		return "merge_schemas", args, err
	case engine.CommandFormat:
		schemas, err := engine.EncodeParams(req.Params)
		if err != nil {
			return "", nil, err
		}
		options, err := json.Marshal(req.Options)
		if err != nil {
			return "", nil, err
		}
		return "format", [][]byte{schemas, options}, nil
	case engine.CommandSerializeSchemaToBytes:
		return "serialize_schema_to_bytes", [][]byte{[]byte(req.Schemas.MergedText())}, nil
	case engine.CommandDebugPanic:
		return "debug_panic", nil, nil
	case engine.CommandVersion:
		return "version", nil, nil
	default:
		return "", nil, fmt.Errorf("command %s is not supported by the wasm engine", req.Command)
	}
}

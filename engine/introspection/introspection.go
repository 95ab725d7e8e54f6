// Package introspection drives a long-lived engine session for the commands
// that talk to a database: version, metadata, description, database listing
// and introspection itself.
package introspection

import (
	"context"
	"os"

	"github.com/satishbabariya/prisma-engines-go/engine"
	"github.com/satishbabariya/prisma-engines-go/engine/binary"
	"github.com/satishbabariya/prisma-engines-go/internal/debug"
	"github.com/satishbabariya/prisma-engines-go/psl/core"
)

// EnvForcePanic makes every command except getDatabaseVersion a debugPanic.
const EnvForcePanic = "FORCE_PANIC_SCHEMA_ENGINE"

// RPC methods.
const (
	MethodGetDatabaseVersion     = "getDatabaseVersion"
	MethodGetDatabaseMetadata    = "getDatabaseMetadata"
	MethodGetDatabaseDescription = "getDatabaseDescription"
	MethodListDatabases          = "listDatabases"
	MethodIntrospect             = "introspect"
	MethodDebugPanic             = "debugPanic"
)

// Session is the RPC channel to the engine. *binary.Session implements it.
type Session interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	State() binary.State
	Call(ctx context.Context, method string, params any) engine.Outcome
}

var _ Session = (*binary.Session)(nil)

// Metadata is the reply of GetDatabaseMetadata.
type Metadata struct {
	SizeInBytes int64 `json:"size_in_bytes"`
	TableCount  int   `json:"table_count"`
}

// IntrospectOptions are the inputs of Introspect.
type IntrospectOptions struct {
	Schema string
	// Force overwrites the models of Schema instead of re-introspecting them.
	Force bool
	// CompositeTypeDepth bounds composite type discovery on document databases;
	// -1 means unlimited.
	CompositeTypeDepth int
	Namespaces         []string
	BaseDirectoryPath  string
}

// View is a database view definition returned by Introspect.
type View struct {
	Path       string  `json:"path"`
	Name       string  `json:"name"`
	Definition *string `json:"definition"`
}

// IntrospectResult is the reply of Introspect.
type IntrospectResult struct {
	Datamodel string `json:"datamodel"`
	// Warnings is the engine's rendered warning text, empty when there are none.
	Warnings string `json:"warnings"`
	Views    []View `json:"views"`
}

type schemaParams struct {
	Schema string `json:"schema"`
}

type introspectParams struct {
	Schema             string   `json:"schema"`
	Force              bool     `json:"force"`
	CompositeTypeDepth int      `json:"compositeTypeDepth"`
	Namespaces         []string `json:"namespaces,omitempty"`
	BaseDirectoryPath  string   `json:"baseDirectoryPath,omitempty"`
}

// Engine runs introspection commands over a Session it owns. Start and Stop
// are explicit; Stop kills the engine process.
type Engine struct {
	session    Session
	translator *engine.Translator
	getenv     func(string) string
}

// Option configures an Engine.
type Option func(*Engine)

// WithGetenv replaces the environment lookup used for the force-panic flag.
func WithGetenv(fn func(string) string) Option {
	return func(e *Engine) {
		e.getenv = fn
	}
}

// New creates an Engine over session.
func New(session Session, translator *engine.Translator, opts ...Option) *Engine {
	e := &Engine{
		session:    session,
		translator: translator,
		getenv:     os.Getenv,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start starts the engine process.
func (e *Engine) Start(ctx context.Context) error {
	return e.session.Start(ctx)
}

// Stop kills the engine process and rejects calls still waiting for a reply.
func (e *Engine) Stop(ctx context.Context) error {
	return e.session.Stop(ctx)
}

// State returns the session state.
func (e *Engine) State() binary.State {
	return e.session.State()
}

// GetDatabaseVersion returns the version string of the database schema points to.
func (e *Engine) GetDatabaseVersion(ctx context.Context, schema string) (string, error) {
	var version string
	err := e.call(ctx, MethodGetDatabaseVersion, schemaParams{Schema: schema}, schema, &version)
	return version, err
}

// GetDatabaseMetadata returns the size and table count of the database.
func (e *Engine) GetDatabaseMetadata(ctx context.Context, schema string) (Metadata, error) {
	var m Metadata
	err := e.call(ctx, MethodGetDatabaseMetadata, schemaParams{Schema: schema}, schema, &m)
	return m, err
}

// GetDatabaseDescription returns a textual dump of the database structure.
func (e *Engine) GetDatabaseDescription(ctx context.Context, schema string) (string, error) {
	var description string
	err := e.call(ctx, MethodGetDatabaseDescription, schemaParams{Schema: schema}, schema, &description)
	return description, err
}

// ListDatabases returns the databases visible through the datasource of schema.
func (e *Engine) ListDatabases(ctx context.Context, schema string) ([]string, error) {
	var names []string
	if err := e.call(ctx, MethodListDatabases, schemaParams{Schema: schema}, schema, &names); err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// Introspect reads the database and returns the schema describing it.
func (e *Engine) Introspect(ctx context.Context, opts IntrospectOptions) (*IntrospectResult, error) {
	params := introspectParams{
		Schema:             opts.Schema,
		Force:              opts.Force,
		CompositeTypeDepth: opts.CompositeTypeDepth,
		Namespaces:         opts.Namespaces,
		BaseDirectoryPath:  opts.BaseDirectoryPath,
	}
	var result IntrospectResult
	if err := e.call(ctx, MethodIntrospect, params, opts.Schema, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DebugPanic makes the engine panic. It always returns an error.
func (e *Engine) DebugPanic(ctx context.Context) error {
	err := e.call(ctx, MethodDebugPanic, nil, "", nil)
	if err == nil {
		return e.translator.Translate(engine.ErrorContext{
			Name:      MethodDebugPanic,
			Command:   engine.Command(MethodDebugPanic),
			Area:      engine.AreaIntrospectionCLI,
			Transport: engine.KindBinary,
		}, engine.Failure("engine did not panic", nil))
	}
	return err
}

func (e *Engine) call(ctx context.Context, method string, params any, schema string, v any) error {
	if method != MethodGetDatabaseVersion && e.getenv(EnvForcePanic) != "" {
		debug.Debug("forcing engine panic", "method", method, "env", EnvForcePanic)
		method, params = MethodDebugPanic, nil
	}

	outcome := e.session.Call(ctx, method, params)

	ec := engine.ErrorContext{
		Name:      method,
		Command:   engine.Command(method),
		Area:      engine.AreaIntrospectionCLI,
		Transport: engine.KindBinary,
		Request:   method,
	}
	if schema != "" {
		ec.Schemas = core.SingleFile(schema)
	}
	if err := e.translator.Translate(ec, outcome); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if err := outcome.Decode(v); err != nil {
		return e.translator.Translate(ec, engine.Failure("could not parse engine reply", err))
	}
	return nil
}

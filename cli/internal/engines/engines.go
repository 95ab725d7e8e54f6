// Package engines builds engine transports from the CLI configuration.
package engines

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/satishbabariya/prisma-engines-go/cli/internal/config"
	"github.com/satishbabariya/prisma-engines-go/engine"
	"github.com/satishbabariya/prisma-engines-go/engine/binary"
	"github.com/satishbabariya/prisma-engines-go/engine/command"
	"github.com/satishbabariya/prisma-engines-go/engine/introspection"
	"github.com/satishbabariya/prisma-engines-go/engine/library"
	"github.com/satishbabariya/prisma-engines-go/engine/wasm"
	"github.com/satishbabariya/prisma-engines-go/internal/debug"
)

// ErrNoEngine is returned when no engine path is configured.
var ErrNoEngine = errors.New("no engine configured")

// Factory creates transports and command runners.
type Factory struct {
	cfg        config.EngineConfig
	fs         afero.Fs
	translator *engine.Translator
}

// New creates a Factory.
func New(cfg config.EngineConfig, fs afero.Fs, translator *engine.Translator) *Factory {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Factory{cfg: cfg, fs: fs, translator: translator}
}

// Translator returns the error translator shared by every runner.
func (f *Factory) Translator() *engine.Translator {
	return f.translator
}

// Kind returns the transport kind to use. An explicit type wins; otherwise the
// first configured engine among wasm, library and binary is picked.
func (f *Factory) Kind() (engine.Kind, error) {
	if f.cfg.Type != "" {
		return engine.ParseKind(f.cfg.Type)
	}
	switch {
	case f.cfg.SchemaWasm != "":
		return engine.KindWasm, nil
	case f.cfg.QueryEngineLibrary != "":
		return engine.KindLibrary, nil
	case f.cfg.QueryEngineBinary != "":
		return engine.KindBinary, nil
	}
	return "", fmt.Errorf("%w: set %s, %s or %s", ErrNoEngine,
		config.EnvQueryEngineLibrary, config.EnvQueryEngineBinary, config.EnvSchemaWasm)
}

// Transport builds the transport for stateless commands.
func (f *Factory) Transport() (engine.Transport, error) {
	kind, err := f.Kind()
	if err != nil {
		return nil, err
	}

	var path, env string
	switch kind {
	case engine.KindBinary:
		path, env = f.cfg.QueryEngineBinary, config.EnvQueryEngineBinary
	case engine.KindLibrary:
		path, env = f.cfg.QueryEngineLibrary, config.EnvQueryEngineLibrary
	case engine.KindWasm:
		path, env = f.cfg.SchemaWasm, config.EnvSchemaWasm
	}
	if path == "" {
		return nil, fmt.Errorf("%w: engine type is %s but %s is not set", ErrNoEngine, kind, env)
	}
	debug.Debug("selected engine", "kind", kind, "path", path)

	switch kind {
	case engine.KindBinary:
		return binary.NewCLI(path), nil
	case engine.KindLibrary:
		return library.New(path, nil), nil
	default:
		return wasm.New(wasm.FileSource(f.fs, path)), nil
	}
}

// Runner builds a command runner over Transport.
func (f *Factory) Runner() (*command.Runner, error) {
	tr, err := f.Transport()
	if err != nil {
		return nil, err
	}
	return command.New(tr, f.translator), nil
}

// Introspection builds an introspection engine over a schema engine session.
// It is not started.
func (f *Factory) Introspection() (*introspection.Engine, error) {
	if f.cfg.SchemaEngineBinary == "" {
		return nil, fmt.Errorf("%w: set %s", ErrNoEngine, config.EnvSchemaEngineBinary)
	}
	debug.Debug("selected schema engine", "path", f.cfg.SchemaEngineBinary)
	return introspection.New(binary.NewSession(f.cfg.SchemaEngineBinary), f.translator), nil
}

package engines

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/prisma-engines-go/cli/internal/config"
	"github.com/satishbabariya/prisma-engines-go/engine"
	"github.com/satishbabariya/prisma-engines-go/engine/binary"
)

func TestFactory_Kind(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.EngineConfig
		want    engine.Kind
		wantErr bool
	}{
		{name: "explicit type", cfg: config.EngineConfig{Type: "binary", SchemaWasm: "/x.wasm"}, want: engine.KindBinary},
		{name: "legacy type name", cfg: config.EngineConfig{Type: "node-api"}, want: engine.KindLibrary},
		{name: "wasm first", cfg: config.EngineConfig{SchemaWasm: "/x.wasm", QueryEngineLibrary: "/lib.so"}, want: engine.KindWasm},
		{name: "library before binary", cfg: config.EngineConfig{QueryEngineLibrary: "/lib.so", QueryEngineBinary: "/qe"}, want: engine.KindLibrary},
		{name: "binary", cfg: config.EngineConfig{QueryEngineBinary: "/qe"}, want: engine.KindBinary},
		{name: "nothing configured", cfg: config.EngineConfig{}, wantErr: true},
		{name: "bad type", cfg: config.EngineConfig{Type: "grpc"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, err := New(tt.cfg, nil, engine.NewTranslator("1.0.0")).Kind()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestFactory_Transport(t *testing.T) {
	f := New(config.EngineConfig{QueryEngineBinary: "/usr/bin/query-engine"}, nil, engine.NewTranslator("1.0.0"))
	tr, err := f.Transport()
	require.NoError(t, err)
	assert.Equal(t, engine.KindBinary, tr.Kind())

	cli, ok := tr.(*binary.CLI)
	require.True(t, ok)
	assert.Equal(t, "/usr/bin/query-engine", cli.Path())

	runner, err := f.Runner()
	require.NoError(t, err)
	assert.Equal(t, engine.KindBinary, runner.Transport().Kind())
}

func TestFactory_MissingPathForType(t *testing.T) {
	_, err := New(config.EngineConfig{Type: "library"}, nil, engine.NewTranslator("1.0.0")).Transport()
	assert.ErrorIs(t, err, ErrNoEngine)
	assert.ErrorContains(t, err, config.EnvQueryEngineLibrary)
}

func TestFactory_Introspection(t *testing.T) {
	_, err := New(config.EngineConfig{}, nil, engine.NewTranslator("1.0.0")).Introspection()
	assert.ErrorIs(t, err, ErrNoEngine)

	e, err := New(config.EngineConfig{SchemaEngineBinary: "/usr/bin/schema-engine"}, nil, engine.NewTranslator("1.0.0")).Introspection()
	require.NoError(t, err)
	assert.Equal(t, binary.StateNotStarted, e.State())
}

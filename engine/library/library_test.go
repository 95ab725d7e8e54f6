package library

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/prisma-engines-go/engine"
	"github.com/satishbabariya/prisma-engines-go/psl/core"
)

type fakeNative struct {
	lastOptions   string
	lastDatamodel string
}

func (f *fakeNative) GetConfig(options string) string {
	f.lastOptions = options
	return `{"result":{"datasources":[{"name":"db","provider":"sqlite","activeProvider":"sqlite"}],"generators":[],"warnings":[]}}`
}

func (f *fakeNative) DMMF(datamodel string) string {
	f.lastDatamodel = datamodel
	if datamodel == "" {
		return `{"error":"{\"is_panic\":false,\"message\":\"Schema is empty\",\"error_code\":\"P1012\"}"}`
	}
	return `{"result":{"datamodel":{"models":[]}}}`
}

func (f *fakeNative) DebugPanic(message string) string {
	return `{"error":"{\"is_panic\":true,\"message\":\"` + message + `\",\"backtrace\":\"0: query_engine::debug_panic\"}"}`
}

func (f *fakeNative) Version() string {
	return `{"result":{"commit":"abc123","version":"5.0.0"}}`
}

func newTransport(t *testing.T, native Native) *Transport {
	t.Helper()
	// A unique path per test keeps the process-wide handle cache isolated.
	path := filepath.Join(t.TempDir(), "libquery_engine.so")
	return New(path, func(string) (Native, error) { return native, nil })
}

func TestTransport_GetConfig(t *testing.T) {
	native := &fakeNative{}
	tr := newTransport(t, native)

	outcome := tr.Invoke(context.Background(), engine.Request{
		Command: engine.CommandGetConfig,
		Params:  map[string]any{"datamodel": "x", "ignoreEnvVarErrors": true},
	})
	require.True(t, outcome.OK())
	assert.JSONEq(t, `{"datamodel":"x","ignoreEnvVarErrors":true}`, native.lastOptions)

	var cfg struct {
		Datasources []struct {
			Provider string `json:"provider"`
		} `json:"datasources"`
	}
	require.NoError(t, outcome.Decode(&cfg))
	require.Len(t, cfg.Datasources, 1)
	assert.Equal(t, "sqlite", cfg.Datasources[0].Provider)
}

func TestTransport_DMMF(t *testing.T) {
	native := &fakeNative{}
	tr := newTransport(t, native)

	outcome := tr.Invoke(context.Background(), engine.Request{
		Command: engine.CommandGetDMMF,
		Schemas: core.MustSchemaFileSet(
			core.NewSchemaFile("a.prisma", "model A { id Int @id }\n"),
			core.NewSchemaFile("b.prisma", "model B { id Int @id }\n"),
		),
	})
	require.True(t, outcome.OK())
	assert.Equal(t, "model A { id Int @id }\nmodel B { id Int @id }\n", native.lastDatamodel)

	outcome = tr.Invoke(context.Background(), engine.Request{
		Command: engine.CommandGetDMMF,
		Params:  DMMFParams{Datamodel: ""},
	})
	assert.Equal(t, engine.OutcomeValidationError, outcome.Kind)
	assert.Equal(t, "P1012", outcome.ErrorCode)
}

func TestTransport_DebugPanicIsPanic(t *testing.T) {
	tr := newTransport(t, &fakeNative{})

	outcome := tr.Invoke(context.Background(), engine.Request{
		Command: engine.CommandDebugPanic,
		Params:  engine.DebugPanicParams{Message: "FORCE_PANIC_QUERY_ENGINE_GET_CONFIG"},
	})
	require.Equal(t, engine.OutcomePanic, outcome.Kind)
	assert.Equal(t, "FORCE_PANIC_QUERY_ENGINE_GET_CONFIG", outcome.Message)
	assert.Equal(t, "0: query_engine::debug_panic", outcome.Stack)
	assert.NotEmpty(t, outcome.RequestEcho)
}

func TestTransport_Version(t *testing.T) {
	tr := newTransport(t, &fakeNative{})

	outcome := tr.Invoke(context.Background(), engine.Request{Command: engine.CommandVersion})
	require.True(t, outcome.OK())

	var v VersionInfo
	require.NoError(t, outcome.Decode(&v))
	assert.Equal(t, VersionInfo{Commit: "abc123", Version: "5.0.0"}, v)
}

func TestTransport_UnsupportedCommand(t *testing.T) {
	tr := newTransport(t, &fakeNative{})
	outcome := tr.Invoke(context.Background(), engine.Request{Command: engine.CommandFormat})
	assert.Equal(t, engine.OutcomeTransportFailure, outcome.Kind)
}

func TestTransport_LoadFailure(t *testing.T) {
	loadErr := errors.New("libssl.so.1.1: cannot open shared object file")
	tr := New(filepath.Join(t.TempDir(), "broken.so"), func(string) (Native, error) { return nil, loadErr })

	outcome := tr.Invoke(context.Background(), engine.Request{Command: engine.CommandVersion})
	assert.Equal(t, engine.OutcomeTransportFailure, outcome.Kind)
	assert.ErrorIs(t, outcome.Err, loadErr)
	assert.NotEmpty(t, engine.Hint(outcome.Err.Error()))
}

func TestOpen_CachesPerPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cached.so")
	loads := 0
	load := func(string) (Native, error) {
		loads++
		return &fakeNative{}, nil
	}

	first, err := Open(path, load)
	require.NoError(t, err)
	second, err := Open(path, load)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, loads)
}

func TestDlopen_MissingLibrary(t *testing.T) {
	_, err := Dlopen(filepath.Join(t.TempDir(), "missing.so"))
	assert.Error(t, err)
}

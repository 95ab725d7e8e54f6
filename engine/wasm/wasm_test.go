package wasm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/prisma-engines-go/engine"
	"github.com/satishbabariya/prisma-engines-go/psl/core"
)

type fakeModule struct {
	calls []string
	args  map[string][][]byte
}

func (f *fakeModule) Call(_ context.Context, export string, args ...[]byte) ([]byte, error) {
	f.calls = append(f.calls, export)
	if f.args == nil {
		f.args = map[string][][]byte{}
	}
	f.args[export] = args
	switch export {
	case "get_dmmf":
		return []byte(`{"result":{"datamodel":{"models":[{"name":"A"}]}}}`), nil
	case "validate":
		return []byte(`{"error":"{\"is_panic\":false,\"message\":\"error: The model \\\"A\\\" cannot be defined because a model with that name already exists.\",\"error_code\":\"P1012\"}"}`), nil
	case "format":
		return []byte(`{"result":[["schema.prisma","model A {\n    id Int @id\n}\n"]]}`), nil
	case "debug_panic":
		registry.set("This is the panic triggered by `prisma_fmt::debug_panic()`")
		return nil, errors.New("wasm error: unreachable\nwasm stack trace:\n\t.debug_panic")
	case "merge_schemas":
		return nil, errors.New("wasm error: unreachable")
	case "lint":
		return nil, errors.New("out of fuel")
	case "version":
		return nil, nil
	}
	return nil, ErrMissingExport
}

func newTestTransport(mod Module) *Transport {
	return New(func(context.Context) ([]byte, error) { return []byte("\x00asm"), nil },
		WithCell(&Cell{}),
		WithInstantiate(func(context.Context, []byte) (Module, error) { return mod, nil }),
	)
}

func TestTransport_Success(t *testing.T) {
	mod := &fakeModule{}
	tr := newTestTransport(mod)
	assert.Equal(t, CellUnset, tr.State())

	outcome := tr.Invoke(context.Background(), engine.Request{
		Command: engine.CommandGetDMMF,
		Params:  map[string]any{"prismaSchema": core.SingleFile("model A { id Int @id }")},
	})
	require.True(t, outcome.OK(), outcome.Message)
	assert.JSONEq(t, `{"datamodel":{"models":[{"name":"A"}]}}`, string(outcome.Result))
	assert.JSONEq(t, `{"prismaSchema":[["schema.prisma","model A { id Int @id }"]]}`, string(mod.args["get_dmmf"][0]))
	assert.Equal(t, CellResolved, tr.State())
}

func TestTransport_FormatPassesTwoArguments(t *testing.T) {
	mod := &fakeModule{}
	tr := newTestTransport(mod)

	outcome := tr.Invoke(context.Background(), engine.Request{
		Command: engine.CommandFormat,
		Params:  core.SingleFile("model A { id Int @id }"),
		Options: map[string]any{"tabSize": 4, "insertSpaces": true},
	})
	require.True(t, outcome.OK())
	require.Len(t, mod.args["format"], 2)
	assert.JSONEq(t, `{"tabSize":4,"insertSpaces":true}`, string(mod.args["format"][1]))
}

func TestTransport_ValidationError(t *testing.T) {
	tr := newTestTransport(&fakeModule{})

	outcome := tr.Invoke(context.Background(), engine.Request{Command: engine.CommandValidate})
	assert.Equal(t, engine.OutcomeValidationError, outcome.Kind)
	assert.Equal(t, "P1012", outcome.ErrorCode)
	assert.Contains(t, outcome.Message, `The model "A" cannot be defined`)
}

func TestTransport_PanicFromRegistry(t *testing.T) {
	tr := newTestTransport(&fakeModule{})

	outcome := tr.Invoke(context.Background(), engine.Request{Command: engine.CommandDebugPanic})
	require.Equal(t, engine.OutcomePanic, outcome.Kind)
	assert.Equal(t, "This is the panic triggered by `prisma_fmt::debug_panic()`", outcome.Message)
	assert.Contains(t, outcome.Stack, "wasm error: unreachable")
	assert.Equal(t, "debug-panic {}", outcome.RequestEcho)

	assert.Empty(t, registry.take(), "registry is cleared after it is read")
}

// trapThenWait registers a panic and traps debug_panic, but only after giving
// a concurrent get_config call the chance to run.
type trapThenWait struct {
	trapping chan struct{}
	resume   chan struct{}
}

func (f *trapThenWait) Call(_ context.Context, export string, _ ...[]byte) ([]byte, error) {
	switch export {
	case "debug_panic":
		registry.set("engine panicked: boom")
		close(f.trapping)
		select {
		case <-f.resume:
		case <-time.After(200 * time.Millisecond):
		}
		return nil, errors.New("call stack exhausted")
	case "get_config":
		select {
		case <-f.resume:
		default:
			close(f.resume)
		}
		return []byte(`{"result":{"datasources":[]}}`), nil
	}
	return nil, ErrMissingExport
}

func TestTransport_ConcurrentCallKeepsPanicMessage(t *testing.T) {
	mod := &trapThenWait{trapping: make(chan struct{}), resume: make(chan struct{})}
	tr := newTestTransport(mod)
	ctx := context.Background()

	var panicked engine.Outcome
	done := make(chan struct{})
	go func() {
		defer close(done)
		panicked = tr.Invoke(ctx, engine.Request{Command: engine.CommandDebugPanic})
	}()

	<-mod.trapping
	other := tr.Invoke(ctx, engine.Request{Command: engine.CommandGetConfig, Params: map[string]any{}})
	<-done

	assert.Equal(t, engine.OutcomeSuccess, other.Kind, other.Message)
	require.Equal(t, engine.OutcomePanic, panicked.Kind, panicked.Message)
	assert.Equal(t, "engine panicked: boom", panicked.Message)
}

func TestTransport_TrapWithoutMessageIsPanic(t *testing.T) {
	tr := newTestTransport(&fakeModule{})
	registry.set("stale message from an earlier call")

	outcome := tr.Invoke(context.Background(), engine.Request{Command: engine.CommandMergeSchemas})
	require.Equal(t, engine.OutcomePanic, outcome.Kind)
	assert.Equal(t, "wasm error: unreachable", outcome.Message)
}

func TestTransport_OtherRuntimeErrorIsFailure(t *testing.T) {
	tr := newTestTransport(&fakeModule{})

	outcome := tr.Invoke(context.Background(), engine.Request{Command: engine.CommandLint})
	assert.Equal(t, engine.OutcomeTransportFailure, outcome.Kind)
	assert.EqualError(t, outcome.Err, "out of fuel")
}

func TestTransport_VoidReturnIsSuccess(t *testing.T) {
	tr := newTestTransport(&fakeModule{})
	outcome := tr.Invoke(context.Background(), engine.Request{Command: engine.CommandVersion})
	assert.True(t, outcome.OK())
}

func TestTransport_UnsupportedCommand(t *testing.T) {
	tr := newTestTransport(&fakeModule{})
	outcome := tr.Invoke(context.Background(), engine.Request{Command: engine.Command("introspect")})
	assert.Equal(t, engine.OutcomeTransportFailure, outcome.Kind)
}

func TestTransport_InvalidModuleIsFailure(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/engine/prisma_schema_build_bg.wasm", []byte("not a wasm module"), 0o644))
	tr := New(FileSource(fsys, "/engine/prisma_schema_build_bg.wasm"), WithCell(&Cell{}))

	outcome := tr.Invoke(context.Background(), engine.Request{Command: engine.CommandVersion})
	assert.Equal(t, engine.OutcomeTransportFailure, outcome.Kind)
	assert.Error(t, outcome.Err)

	// The failed instantiation stays cached.
	assert.Equal(t, CellResolved, tr.State())
}

func TestTransport_MissingModuleFile(t *testing.T) {
	tr := New(FileSource(afero.NewMemMapFs(), "/missing.wasm"), WithCell(&Cell{}))
	outcome := tr.Invoke(context.Background(), engine.Request{Command: engine.CommandVersion})
	assert.Equal(t, engine.OutcomeTransportFailure, outcome.Kind)
}

func TestCell_ConcurrentCallersShareInitialization(t *testing.T) {
	var cell Cell
	var inits atomic.Int32
	release := make(chan struct{})
	mod := &fakeModule{}

	init := func(context.Context) (Module, error) {
		inits.Add(1)
		<-release
		return mod, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	got := make([]Module, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := cell.Get(context.Background(), init)
			assert.NoError(t, err)
			got[i] = m
		}(i)
	}

	require.Eventually(t, func() bool { return cell.State() == CellInitializing }, 5*time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), inits.Load())
	for _, m := range got {
		assert.Same(t, mod, m)
	}
	assert.Equal(t, CellResolved, cell.State())
}

func TestCell_InitPanicReleasesCallers(t *testing.T) {
	var c Cell
	_, err := c.Get(context.Background(), func(context.Context) (Module, error) {
		panic("bad module")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad module")
	assert.Equal(t, CellResolved, c.State())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, again := c.Get(ctx, func(context.Context) (Module, error) {
		t.Fatal("initialization must not run twice")
		return nil, nil
	})
	assert.Equal(t, err, again)
}

func TestCell_WaiterCancellation(t *testing.T) {
	var cell Cell
	release := make(chan struct{})
	defer close(release)

	go func() {
		_, _ = cell.Get(context.Background(), func(context.Context) (Module, error) {
			<-release
			return &fakeModule{}, nil
		})
	}()
	require.Eventually(t, func() bool { return cell.State() == CellInitializing }, 5*time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cell.Get(ctx, func(context.Context) (Module, error) {
		t.Fatal("second initialization must not run")
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInstantiate_RejectsGarbage(t *testing.T) {
	_, err := Instantiate(context.Background(), []byte("garbage"))
	assert.Error(t, err)
}

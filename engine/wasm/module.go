package wasm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/satishbabariya/prisma-engines-go/internal/debug"
)

// ErrMissingExport is returned when the module lacks a called function.
var ErrMissingExport = errors.New("wasm module does not export function")

// ABI of the engine module.
//
// Strings cross the boundary as (ptr, len) pairs in linear memory allocated
// with alloc and released with dealloc. A function returns a packed i64,
// ptr<<32 | len, pointing at its JSON envelope reply; void functions return
// nothing. The module reports panic messages through the imported
// env.prisma_panic_hook before trapping.
const (
	exportAlloc   = "alloc"
	exportDealloc = "dealloc"
	hostModule    = "env"
	hostPanicHook = "prisma_panic_hook"
)

// Module is an instantiated engine module.
type Module interface {
	// Call invokes an exported function with string arguments and returns
	// its raw reply, or the runtime error it trapped with.
	Call(ctx context.Context, export string, args ...[]byte) ([]byte, error)
}

type wazeroModule struct {
	runtime wazero.Runtime
	mod     api.Module
	// Instances are single threaded.
	mu sync.Mutex
}

// Instantiate compiles and instantiates an engine module with wazero.
func Instantiate(ctx context.Context, binary []byte) (Module, error) {
	r := wazero.NewRuntime(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("wasi: %w", err)
	}

	_, err := r.NewHostModuleBuilder(hostModule).
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, m api.Module, ptr, size uint32) {
			if data, ok := m.Memory().Read(ptr, size); ok {
				registry.set(string(data))
			}
		}).
		Export(hostPanicHook).
		Instantiate(ctx)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("panic hook: %w", err)
	}

	compiled, err := r.CompileModule(ctx, binary)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("compile: %w", err)
	}
	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("prisma_schema"))
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("instantiate: %w", err)
	}
	debug.Debug("instantiated wasm engine", "component", "wasm", "bytes", len(binary))
	return &wazeroModule{runtime: r, mod: mod}, nil
}

func (m *wazeroModule) Call(ctx context.Context, export string, args ...[]byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn := m.mod.ExportedFunction(export)
	if fn == nil {
		return nil, fmt.Errorf("%w %s", ErrMissingExport, export)
	}

	params := make([]uint64, 0, 2*len(args))
	for _, arg := range args {
		ptr, err := m.write(ctx, arg)
		if err != nil {
			return nil, err
		}
		defer m.free(ctx, ptr, uint32(len(arg)))
		params = append(params, uint64(ptr), uint64(len(arg)))
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	ptr, size := uint32(results[0]>>32), uint32(results[0])
	data, ok := m.mod.Memory().Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("wasm reply out of memory bounds (ptr=%d, len=%d)", ptr, size)
	}
	out := make([]byte, len(data))
	copy(out, data)
	m.free(ctx, ptr, size)
	return out, nil
}

func (m *wazeroModule) write(ctx context.Context, data []byte) (uint32, error) {
	alloc := m.mod.ExportedFunction(exportAlloc)
	if alloc == nil {
		return 0, fmt.Errorf("%w %s", ErrMissingExport, exportAlloc)
	}
	res, err := alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, err
	}
	ptr := uint32(res[0])
	if !m.mod.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("wasm argument out of memory bounds (ptr=%d, len=%d)", ptr, len(data))
	}
	return ptr, nil
}

func (m *wazeroModule) free(ctx context.Context, ptr, size uint32) {
	dealloc := m.mod.ExportedFunction(exportDealloc)
	if dealloc == nil || size == 0 {
		return
	}
	if _, err := dealloc.Call(ctx, uint64(ptr), uint64(size)); err != nil {
		debug.Debug("wasm dealloc failed", "component", "wasm", "error", err)
	}
}

// panicRegistry is the single slot the module's panic hook writes to. It is
// read right after a trapped call to recover the panic text.
type panicRegistry struct {
	mu      sync.Mutex
	message string
}

var registry panicRegistry

func (r *panicRegistry) set(message string) {
	r.mu.Lock()
	r.message = message
	r.mu.Unlock()
}

// take returns the last panic message and clears the slot.
func (r *panicRegistry) take() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	message := r.message
	r.message = ""
	return message
}

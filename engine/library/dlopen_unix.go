//go:build darwin || linux || freebsd

package library

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/satishbabariya/prisma-engines-go/internal/debug"
)

// C symbols exported by the engine library. Every call returns a
// NUL-terminated JSON envelope owned by the library and released with
// prisma_free_string.
const (
	symGetConfig  = "prisma_get_config"
	symDMMF       = "prisma_dmmf"
	symDebugPanic = "prisma_debug_panic"
	symVersion    = "prisma_version"
	symFree       = "prisma_free_string"
)

type dlLibrary struct {
	handle     uintptr
	getConfig  func(string) uintptr
	dmmf       func(string) uintptr
	debugPanic func(string) uintptr
	version    func() uintptr
	free       func(uintptr)
}

// Dlopen loads an engine library with the platform dynamic loader.
func Dlopen(path string) (Native, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, err
	}
	lib := &dlLibrary{handle: handle}
	for sym, fn := range map[string]any{
		symGetConfig:  &lib.getConfig,
		symDMMF:       &lib.dmmf,
		symDebugPanic: &lib.debugPanic,
		symVersion:    &lib.version,
		symFree:       &lib.free,
	} {
		if _, err := purego.Dlsym(handle, sym); err != nil {
			_ = purego.Dlclose(handle)
			return nil, fmt.Errorf("engine library %s does not export %s: %w", path, sym, err)
		}
		purego.RegisterLibFunc(fn, handle, sym)
	}
	debug.Debug("loaded engine library", "component", "library", "path", path)
	return lib, nil
}

func (l *dlLibrary) take(p uintptr) string {
	if p == 0 {
		return ""
	}
	s := cString(p)
	l.free(p)
	return s
}

func (l *dlLibrary) GetConfig(options string) string {
	return l.take(l.getConfig(options))
}

func (l *dlLibrary) DMMF(datamodel string) string {
	return l.take(l.dmmf(datamodel))
}

func (l *dlLibrary) DebugPanic(message string) string {
	return l.take(l.debugPanic(message))
}

func (l *dlLibrary) Version() string {
	return l.take(l.version())
}

// cString copies a NUL-terminated C string.
func cString(p uintptr) string {
	base := unsafe.Pointer(p) //nolint:govet // p is a C pointer owned by the library
	n := 0
	for *(*byte)(unsafe.Add(base, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(base), n))
}

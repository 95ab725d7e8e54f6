//go:build !(darwin || linux || freebsd)

package library

import (
	"fmt"
	"runtime"
)

// Dlopen is not available on this platform; use the binary or wasm engine.
func Dlopen(path string) (Native, error) {
	return nil, fmt.Errorf("loading engine library %s: unsupported platform %s/%s", path, runtime.GOOS, runtime.GOARCH)
}

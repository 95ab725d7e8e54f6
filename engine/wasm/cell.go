package wasm

import (
	"context"
	"fmt"
	"sync"
)

// CellState is the lifecycle of a Cell.
type CellState int

const (
	CellUnset CellState = iota
	CellInitializing
	CellResolved
)

func (s CellState) String() string {
	switch s {
	case CellUnset:
		return "unset"
	case CellInitializing:
		return "initializing"
	case CellResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// Cell holds a lazily instantiated module. The in-flight initialization itself
// is cached: callers arriving while it runs wait for the same result instead of
// instantiating a second time. A failed initialization stays cached as well.
type Cell struct {
	mu   sync.Mutex
	call *initCall
}

type initCall struct {
	done chan struct{}
	mod  Module
	err  error
}

// Get returns the module, running init on first use.
func (c *Cell) Get(ctx context.Context, init func(context.Context) (Module, error)) (Module, error) {
	c.mu.Lock()
	call := c.call
	if call == nil {
		call = &initCall{done: make(chan struct{})}
		c.call = call
		c.mu.Unlock()

		call.run(context.WithoutCancel(ctx), init)
		return call.mod, call.err
	}
	c.mu.Unlock()

	select {
	case <-call.done:
		return call.mod, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run executes init once. Waiters share this initialization, so the first
// caller's cancellation must not leak into it, and a panicking init still
// releases them with an error.
func (call *initCall) run(ctx context.Context, init func(context.Context) (Module, error)) {
	defer close(call.done)
	defer func() {
		if r := recover(); r != nil {
			call.mod, call.err = nil, fmt.Errorf("wasm engine initialization panicked: %v", r)
		}
	}()
	call.mod, call.err = init(ctx)
}

// State reports whether the module is unset, initializing or resolved.
func (c *Cell) State() CellState {
	c.mu.Lock()
	call := c.call
	c.mu.Unlock()
	if call == nil {
		return CellUnset
	}
	select {
	case <-call.done:
		return CellResolved
	default:
		return CellInitializing
	}
}

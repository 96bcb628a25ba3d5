package secureops

import (
	"math/big"
	"sync"
)

// ExecutorFunc performs the privileged effect behind one execution selector.
// Executors receive no handle to the engine or its aggregate state, so a
// misbehaving target cannot corrupt the engine's own storage.
type ExecutorFunc func(target [20]byte, value *big.Int, gasLimit uint64, params []byte) ([]byte, error)

// CallRunner dispatches the delegated external call once every check has
// passed. Implementations must execute the call in a context that does not
// share the engine's own state.
type CallRunner interface {
	Call(target [20]byte, sel Selector, value *big.Int, gasLimit uint64, params []byte) ([]byte, error)
}

// DispatchRegistry is the explicit static registry of selectors this binary
// responds to. Entry points register here at wiring time; schema registration
// consults the registry to enforce the protected-function invariant, and
// execution selectors resolve to their executor funcs through it.
type DispatchRegistry struct {
	mu          sync.RWMutex
	entryPoints map[Selector]string
	executors   map[Selector]ExecutorFunc
}

// NewDispatchRegistry returns an empty registry.
func NewDispatchRegistry() *DispatchRegistry {
	return &DispatchRegistry{
		entryPoints: make(map[Selector]string),
		executors:   make(map[Selector]ExecutorFunc),
	}
}

// RegisterEntryPoint records a handler entry-point signature and returns its
// selector. Registration is idempotent for an identical signature.
func (d *DispatchRegistry) RegisterEntryPoint(signature string) Selector {
	sel := SelectorFromSignature(signature)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entryPoints[sel] = signature
	return sel
}

// RegisterExecutor binds an execution signature to the func that performs
// its privileged effect and returns the derived selector.
func (d *DispatchRegistry) RegisterExecutor(signature string, fn ExecutorFunc) Selector {
	sel := SelectorFromSignature(signature)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entryPoints[sel] = signature
	d.executors[sel] = fn
	return sel
}

// Contains reports whether the selector is part of this binary's dispatch
// surface.
func (d *DispatchRegistry) Contains(sel Selector) bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.entryPoints[sel]
	return ok
}

// Signatures returns the registered signatures keyed by selector.
func (d *DispatchRegistry) Signatures() map[Selector]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[Selector]string, len(d.entryPoints))
	for sel, sig := range d.entryPoints {
		out[sel] = sig
	}
	return out
}

func (d *DispatchRegistry) executor(sel Selector) (ExecutorFunc, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn, ok := d.executors[sel]
	return fn, ok
}

// Runner returns a CallRunner that dispatches through the registered
// executor funcs.
func (d *DispatchRegistry) Runner() CallRunner {
	return registryRunner{registry: d}
}

type registryRunner struct {
	registry *DispatchRegistry
}

func (r registryRunner) Call(target [20]byte, sel Selector, value *big.Int, gasLimit uint64, params []byte) ([]byte, error) {
	fn, ok := r.registry.executor(sel)
	if !ok {
		return nil, ErrNoCallRunner
	}
	return fn(target, value, gasLimit, params)
}

package prefs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrInvalidFunction   = errors.New("prefs: invalid function")
	ErrDuplicateFunction = errors.New("prefs: function already registered")
)

// Function is a helper callable from preference expressions.
type Function func(args ...any) (any, error)

// FunctionRegistry holds the helpers exposed to Service.Evaluate. Helpers
// share the top-level namespace with preference sections, so names must be
// plain identifiers and cannot take the bindings every expression gets
// (config, scope, now, args, metadata, call). Names are case-insensitive.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{functions: make(map[string]Function)}
}

// Register stores fn under name.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("%w: %q is nil", ErrInvalidFunction, name)
	}
	if !isIdentifier(name) {
		return fmt.Errorf("%w: %q is not an identifier", ErrInvalidFunction, name)
	}
	key := strings.ToLower(name)
	if reservedBinding(key) {
		return fmt.Errorf("%w: %q is a reserved binding", ErrInvalidFunction, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	if _, exists := r.functions[key]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateFunction, name)
	}
	r.functions[key] = fn
	return nil
}

// Clone returns a shallow copy of the registry.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &FunctionRegistry{functions: make(map[string]Function, len(r.functions))}
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Call runs the helper registered for name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("prefs: no functions registered")
	}
	r.mu.RLock()
	fn := r.functions[strings.ToLower(name)]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("prefs: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns the registered names, lowercased and sorted.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithFunctionRegistry exposes a copy of registry to expressions.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *config) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

// WithCustomFunction registers fn under name for expressions. A rejected
// registration is logged by NewService and fails every evaluation.
func WithCustomFunction(name string, fn Function) Option {
	return func(cfg *config) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		if err := cfg.functions.Register(name, fn); err != nil {
			cfg.functionErrs = append(cfg.functionErrs, err)
		}
	}
}

// reservedBinding reports names every expression environment defines.
func reservedBinding(key string) bool {
	switch key {
	case "now", "args", "metadata", "scope", "config", "call":
		return true
	default:
		return false
	}
}

func isIdentifier(key string) bool {
	if key == "" {
		return false
	}
	for i, r := range key {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

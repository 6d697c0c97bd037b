// internal/parser/registry.go
package parser

import (
	"fmt"
	"sort"
	"sync"
)

// Func is a reply parser. The result is either a string, which may be cast
// further, or a structured value which is passed through as is.
type Func func(reply string, args ...interface{}) (interface{}, error)

// Registry maps parser names used in command tables to functions
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Func
}

// NewRegistry returns a registry preloaded with slicer, researcher and stripper
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Func)}
	r.Register("slicer", func(reply string, args ...interface{}) (interface{}, error) {
		return Slicer(reply, args...)
	})
	r.Register("researcher", researcherFunc)
	r.Register("stripper", stripperFunc)
	return r
}

// Register adds or replaces a named parser
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[name] = fn
}

// Get looks up a parser by name
func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.parsers[name]
	return fn, ok
}

// Has reports whether name is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names lists the registered parsers in alphabetical order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.parsers))
	for name := range r.parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry
func Default() *Registry {
	return defaultRegistry
}

// researcherFunc returns the first submatch when the pattern has groups,
// the whole match otherwise
func researcherFunc(reply string, args ...interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: researcher takes a single pattern", ErrInvalidArgs)
	}
	pattern, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: researcher pattern must be a string, got %T", ErrInvalidArgs, args[0])
	}
	match, err := Researcher(reply, pattern)
	if err != nil {
		return nil, err
	}
	switch {
	case match == nil:
		return nil, fmt.Errorf("no match for %q in %q", pattern, reply)
	case len(match) > 1:
		return match[1], nil
	default:
		return match[0], nil
	}
}

func stripperFunc(reply string, args ...interface{}) (interface{}, error) {
	if len(args) > 2 {
		return nil, fmt.Errorf("%w: stripper takes prefix and suffix", ErrInvalidArgs)
	}
	var affixes [2]string
	for i, arg := range args {
		if arg == nil {
			continue
		}
		s, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("%w: stripper arguments must be strings, got %T", ErrInvalidArgs, arg)
		}
		affixes[i] = s
	}
	return Stripper(reply, affixes[0], affixes[1]), nil
}

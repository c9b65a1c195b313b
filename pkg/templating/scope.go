package templating

import (
	"context"
	"fmt"
	"sync"
)

// Lazy is a context value that is only computed when an expression references it,
// e.g. port attributes that need a round-trip to fetch.
type Lazy func(ctx context.Context) (any, error)

// Scope is the set of named values placeholders are evaluated against.
// Lazy values are resolved at most once per scope, so all placeholders rendered
// through the same scope observe the same result.
type Scope struct {
	mu       sync.Mutex
	values   map[string]any
	lazy     map[string]Lazy
	resolved map[string]any
}

// NewScope builds a scope from vars. Values of type Lazy are deferred.
func NewScope(vars map[string]any) *Scope {
	s := &Scope{
		values:   make(map[string]any, len(vars)),
		lazy:     make(map[string]Lazy),
		resolved: make(map[string]any),
	}
	for name, v := range vars {
		if l, ok := v.(Lazy); ok {
			s.lazy[name] = l
			continue
		}
		s.values[name] = v
	}
	return s
}

// EmptyScope returns a scope without any names.
func EmptyScope() *Scope {
	return NewScope(nil)
}

// Has reports whether name is defined, lazily or not.
func (s *Scope) Has(name string) bool {
	if s == nil {
		return false
	}
	if _, ok := s.values[name]; ok {
		return true
	}
	_, ok := s.lazy[name]
	return ok
}

// env returns the evaluation environment for an expression referencing names.
func (s *Scope) env(ctx context.Context, names []string) (map[string]any, error) {
	env := make(map[string]any)
	if s == nil {
		return env, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for name, v := range s.values {
		env[name] = v
	}
	for name, v := range s.resolved {
		env[name] = v
	}

	for _, name := range names {
		if _, done := s.resolved[name]; done {
			continue
		}
		fetch, ok := s.lazy[name]
		if !ok {
			continue
		}
		v, err := fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: resolving %q: %v", ErrTemplate, name, err)
		}
		s.resolved[name] = v
		env[name] = v
	}
	return env, nil
}

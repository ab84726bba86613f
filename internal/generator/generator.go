// Package generator runs user-supplied content generators and normalizes their
// output into expanded entry identifiers with in-memory source text.
package generator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fluxbase-eu/pkgkit/internal/pkgpath"
)

// ErrConfig is wrapped by every configuration error.
var ErrConfig = errors.New("invalid build configuration")

// ErrNotRegistered is returned by a Registry that has no generator for a reference.
var ErrNotRegistered = errors.New("generator not registered")

// ConfigError reports a generator whose output or declaration is malformed.
type ConfigError struct {
	EntryID   string
	Reference string
	Reason    string
}

func (e *ConfigError) Error() string {
	if e.Reference == "" {
		return fmt.Sprintf("entry %q: %s", e.EntryID, e.Reason)
	}
	return fmt.Sprintf("entry %q: generator %s: %s", e.EntryID, e.Reference, e.Reason)
}

// Unwrap lets errors.Is match ErrConfig.
func (e *ConfigError) Unwrap() error {
	return ErrConfig
}

// Func is an in-process generator. It returns either a string or a
// map[string]string keyed by wildcard substitutions.
type Func func(ctx context.Context, entryID string) (any, error)

// Runner produces the content mapping of an entry.
type Runner interface {
	Generate(ctx context.Context, entryID, ref string) (map[string]string, error)
}

// Registry holds generators registered under their file-system reference.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// Default is the registry the CLI consults before running generator scripts.
// Programs embedding the CLI register in-process generators on it.
var Default = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register binds fn to ref, replacing any previous binding.
func (r *Registry) Register(ref string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[ref] = fn
}

// Lookup returns the generator bound to ref.
func (r *Registry) Lookup(ref string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[ref]
	return fn, ok
}

// Generate runs the generator registered under ref.
func (r *Registry) Generate(ctx context.Context, entryID, ref string) (map[string]string, error) {
	fn, ok := r.Lookup(ref)
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, ErrNotRegistered)
	}
	result, err := fn(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("generator %s failed for entry %q: %w", ref, entryID, err)
	}
	return Expand(entryID, ref, result)
}

type chain struct {
	registry *Registry
	fallback Runner
}

// NewRunner returns a Runner that prefers registered generators and falls back
// to fallback for unknown references. Either argument may be nil.
func NewRunner(registry *Registry, fallback Runner) Runner {
	return &chain{registry: registry, fallback: fallback}
}

func (c *chain) Generate(ctx context.Context, entryID, ref string) (map[string]string, error) {
	if c.registry != nil {
		out, err := c.registry.Generate(ctx, entryID, ref)
		if !errors.Is(err, ErrNotRegistered) {
			return out, err
		}
	}
	if c.fallback == nil {
		return nil, &ConfigError{EntryID: entryID, Reference: ref, Reason: "no generator runtime available"}
	}
	return c.fallback.Generate(ctx, entryID, ref)
}

// Expand validates a generator result and turns it into a mapping from expanded
// entry identifier to source text. A string is only legal for entries without a
// wildcard, a mapping only for entries with one.
func Expand(entryID, ref string, result any) (map[string]string, error) {
	wildcard := pkgpath.HasWildcard(entryID)

	switch v := result.(type) {
	case string:
		if wildcard {
			return nil, &ConfigError{EntryID: entryID, Reference: ref,
				Reason: "wildcard entries must generate a mapping, got a string"}
		}
		return map[string]string{entryID: v}, nil

	case map[string]string:
		if !wildcard {
			return nil, &ConfigError{EntryID: entryID, Reference: ref,
				Reason: "only wildcard entries may generate a mapping"}
		}
		out := make(map[string]string, len(v))
		for key, text := range v {
			out[pkgpath.ExpandWildcard(entryID, key)] = text
		}
		return out, nil

	case map[string]any:
		strs := make(map[string]string, len(v))
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			text, ok := v[key].(string)
			if !ok {
				return nil, &ConfigError{EntryID: entryID, Reference: ref,
					Reason: fmt.Sprintf("mapping value for %q must be a string, got %T", key, v[key])}
			}
			strs[key] = text
		}
		return Expand(entryID, ref, strs)

	default:
		return nil, &ConfigError{EntryID: entryID, Reference: ref,
			Reason: fmt.Sprintf("must return a string or a mapping of strings, got %T", result)}
	}
}

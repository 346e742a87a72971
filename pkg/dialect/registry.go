package dialect

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrDialectRequired is returned by Lookup for an empty name.
var ErrDialectRequired = errors.New("dialect is required")

// UnknownDialectError reports a dialect name that nothing registered.
type UnknownDialectError struct {
	Name      string
	Available []string
}

func (e *UnknownDialectError) Error() string {
	return fmt.Sprintf("unknown dialect %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// The registry maps folded names and aliases to dialects. Only canonical
// names are listed.
var registry = struct {
	sync.RWMutex
	byName    map[string]*Dialect
	canonical []string
}{byName: make(map[string]*Dialect)}

func foldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register makes d available under its name and the given aliases, all
// matched case-insensitively. Dialect packages call it from init. It panics
// when d is nil or a name is already taken by another dialect.
func Register(d *Dialect, aliases ...string) {
	if d == nil {
		panic("dialect: Register of nil dialect")
	}
	registry.Lock()
	defer registry.Unlock()

	names := append([]string{d.Name}, aliases...)
	for _, n := range names {
		if prev, ok := registry.byName[foldName(n)]; ok && prev != d {
			panic(fmt.Sprintf("dialect: name %q already registered by %s", n, prev.Name))
		}
	}
	for _, n := range names {
		registry.byName[foldName(n)] = d
	}
	if canonical := foldName(d.Name); !slices.Contains(registry.canonical, canonical) {
		registry.canonical = append(registry.canonical, canonical)
		slices.Sort(registry.canonical)
	}
}

// Get returns the dialect registered under name or one of its aliases.
func Get(name string) (*Dialect, bool) {
	registry.RLock()
	defer registry.RUnlock()
	d, ok := registry.byName[foldName(name)]
	return d, ok
}

// Lookup is Get with an error naming the available dialects.
func Lookup(name string) (*Dialect, error) {
	if foldName(name) == "" {
		return nil, ErrDialectRequired
	}
	if d, ok := Get(name); ok {
		return d, nil
	}
	return nil, &UnknownDialectError{Name: name, Available: List()}
}

// List returns the canonical names of the registered dialects, sorted.
func List() []string {
	registry.RLock()
	defer registry.RUnlock()
	return slices.Clone(registry.canonical)
}

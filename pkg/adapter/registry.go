package adapter

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/leapstack-labs/flowsql/pkg/dialect"
)

// Factory builds an unconnected adapter that logs to logger.
type Factory func(logger *slog.Logger) Adapter

var factories = struct {
	sync.RWMutex
	byType map[string]Factory
}{byType: make(map[string]Factory)}

func normalizeType(typ string) string {
	return strings.ToLower(strings.TrimSpace(typ))
}

// Register makes factory available for inputs of type typ, matched
// case-insensitively. Adapter packages call it from init. Registering a
// type twice panics.
func Register(typ string, factory Factory) {
	key := normalizeType(typ)
	if key == "" || factory == nil {
		panic("adapter: Register needs a type and a factory")
	}
	factories.Lock()
	defer factories.Unlock()
	if _, dup := factories.byType[key]; dup {
		panic(fmt.Sprintf("adapter: type %q registered twice", key))
	}
	factories.byType[key] = factory
}

// Get returns the factory for typ.
func Get(typ string) (Factory, bool) {
	factories.RLock()
	defer factories.RUnlock()
	f, ok := factories.byType[normalizeType(typ)]
	return f, ok
}

// IsRegistered reports whether an adapter handles typ.
func IsRegistered(typ string) bool {
	_, ok := Get(typ)
	return ok
}

// ListAdapters returns the registered types, sorted.
func ListAdapters() []string {
	factories.RLock()
	defer factories.RUnlock()
	return slices.Sorted(maps.Keys(factories.byType))
}

// NewAdapter creates an unconnected adapter for cfg.Type. A nil logger
// discards output.
func NewAdapter(cfg Config, logger *slog.Logger) (Adapter, error) {
	if normalizeType(cfg.Type) == "" {
		return nil, fmt.Errorf("adapter type not specified")
	}
	factory, ok := Get(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{Type: cfg.Type, Available: ListAdapters()}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return factory(logger), nil
}

// DialectFor returns the SQL dialect spoken by adapters of type typ,
// without connecting.
func DialectFor(typ string) (*dialect.Dialect, bool) {
	factory, ok := Get(typ)
	if !ok {
		return nil, false
	}
	a := factory(slog.New(slog.DiscardHandler))
	if a == nil || a.Dialect() == nil {
		return nil, false
	}
	return a.Dialect(), true
}

// UnknownAdapterError is returned when no adapter handles an input type.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown adapter type %q\nAvailable adapters: %v\nHint: Check the input type in flowsql.yaml", e.Type, e.Available)
}

package env

import (
	"fmt"
	"sort"
	"sync"

	"github.com/leapstack-labs/flowsql/pkg/functions"
)

// ScalarDef is a scalar function offered by a provider.
type ScalarDef struct {
	Name string
	Ref  functions.Ref
}

// AggregateDef is an aggregate function offered by a provider.
type AggregateDef struct {
	Name string
	Fn   functions.CombineFn
}

// Definitions is what a provider contributes to a catalog.
type Definitions struct {
	Scalars    []ScalarDef
	Aggregates []AggregateDef
}

// FunctionProvider supplies functions discovered outside the query
// specification, such as Starlark scripts on disk.
type FunctionProvider interface {
	Name() string
	Load() (Definitions, error)
}

// ProviderFactory creates a provider. Factories are invoked on every
// auto-load so providers see fresh state.
type ProviderFactory func() (FunctionProvider, error)

// UnknownProviderError is returned when a provider name is not registered.
type UnknownProviderError struct {
	Name      string
	Available []string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("unknown function provider %q, available: %v", e.Name, e.Available)
}

var (
	providersMu sync.RWMutex
	providers   = make(map[string]ProviderFactory)
)

// RegisterProvider makes a provider factory available to every environment
// that auto-loads functions. Registering a name twice replaces the factory.
func RegisterProvider(name string, factory ProviderFactory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = factory
}

// UnregisterProvider removes a provider factory.
func UnregisterProvider(name string) {
	providersMu.Lock()
	defer providersMu.Unlock()
	delete(providers, name)
}

// ListProviders returns the registered provider names, sorted.
func ListProviders() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type namedFactory struct {
	name    string
	factory ProviderFactory
}

// registeredFactories snapshots the registry, sorted by name.
func registeredFactories() []namedFactory {
	providersMu.RLock()
	defer providersMu.RUnlock()
	out := make([]namedFactory, 0, len(providers))
	for name, factory := range providers {
		out = append(out, namedFactory{name: name, factory: factory})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// NewProvider instantiates a registered provider by name.
func NewProvider(name string) (FunctionProvider, error) {
	providersMu.RLock()
	factory, ok := providers[name]
	providersMu.RUnlock()
	if !ok {
		return nil, &UnknownProviderError{Name: name, Available: ListProviders()}
	}
	return factory()
}

// ProviderFunc adapts a function to FunctionProvider.
type ProviderFunc struct {
	ProviderName string
	LoadFunc     func() (Definitions, error)
}

// Name implements FunctionProvider.
func (p ProviderFunc) Name() string { return p.ProviderName }

// Load implements FunctionProvider.
func (p ProviderFunc) Load() (Definitions, error) { return p.LoadFunc() }

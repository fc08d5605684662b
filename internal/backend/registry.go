package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tjfontaine/polyglot-chat/internal/config"
	"github.com/tjfontaine/polyglot-chat/internal/domain"
)

// Factory defines how to create a backend of a specific type.
type Factory struct {
	// Type is the backend type identifier used in configuration
	// (e.g., "openai", "anthropic", "ollama").
	Type string

	// Description provides a human-readable description of the backend.
	Description string

	// Create instantiates a backend from configuration.
	Create func(cfg config.BackendConfig) (Backend, error)

	// ValidateConfig performs backend-specific configuration validation.
	// Optional: if nil, no additional validation is performed.
	ValidateConfig func(cfg config.BackendConfig) error
}

var (
	factoryMu   sync.RWMutex
	factoryMap  = make(map[string]Factory)
	factoryList []Factory
)

// RegisterFactory registers a backend factory. Panics if the type is empty,
// has no Create function, or is already registered.
func RegisterFactory(f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	if f.Type == "" {
		panic("backend factory type cannot be empty")
	}
	if f.Create == nil {
		panic(fmt.Sprintf("backend factory %q must have a Create function", f.Type))
	}
	if _, exists := factoryMap[f.Type]; exists {
		panic(fmt.Sprintf("backend factory %q already registered", f.Type))
	}

	factoryMap[f.Type] = f
	factoryList = append(factoryList, f)
}

// GetFactory returns the factory for a backend type, if registered.
func GetFactory(backendType string) (Factory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factoryMap[backendType]
	return f, ok
}

// IsRegistered returns true if a backend type is registered.
func IsRegistered(backendType string) bool {
	_, ok := GetFactory(backendType)
	return ok
}

// ListFactories returns all registered factories sorted by type.
func ListFactories() []Factory {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	result := make([]Factory, len(factoryList))
	copy(result, factoryList)
	sort.Slice(result, func(i, j int) bool {
		return result[i].Type < result[j].Type
	})
	return result
}

// ListTypes returns all registered backend type names.
func ListTypes() []string {
	factories := ListFactories()
	types := make([]string, len(factories))
	for i, f := range factories {
		types[i] = f.Type
	}
	return types
}

// Create validates cfg and builds a backend with the registered factory.
// Unknown types and validation failures are configuration errors.
func Create(cfg config.BackendConfig) (Backend, error) {
	f, ok := GetFactory(cfg.Type)
	if !ok {
		return nil, domain.ErrConfiguration(
			fmt.Sprintf("unknown backend type %q (registered types: %v)", cfg.Type, ListTypes()),
		).WithBackend(cfg.DisplayName())
	}

	if f.ValidateConfig != nil {
		if err := f.ValidateConfig(cfg); err != nil {
			return nil, domain.ErrConfiguration(
				fmt.Sprintf("invalid configuration for backend type %s: %v", cfg.Type, err),
			).WithBackend(cfg.DisplayName()).WithCause(err)
		}
	}

	return f.Create(cfg)
}

// ClearFactories removes all registered factories (for testing only).
func ClearFactories() {
	factoryMu.Lock()
	defer factoryMu.Unlock()

	factoryMap = make(map[string]Factory)
	factoryList = nil
}

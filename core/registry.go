package core

import (
	"fmt"
	"sort"
	"sync"
)

// KnownPlatforms are the platforms the connector has a Go implementation
// for. A known platform missing from the registry surfaces as "not
// implemented" rather than "unsupported".
var KnownPlatforms = []string{"instagram", "linkedin", "tiktok", "twitter"}

// IsKnownPlatform reports whether the platform has an implementation branch.
func IsKnownPlatform(platform string) bool {
	platform = NormalizePlatform(platform)
	for _, known := range KnownPlatforms {
		if platform == known {
			return true
		}
	}
	return false
}

type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

func (r *ProviderRegistry) Register(provider Provider) error {
	if provider == nil {
		return fmt.Errorf("core: provider is nil")
	}
	id := NormalizePlatform(provider.ID())
	if id == "" {
		return fmt.Errorf("core: provider id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("core: provider already registered: %s", id)
	}
	r.providers[id] = provider
	return nil
}

func (r *ProviderRegistry) Get(platform string) (Provider, bool) {
	id := NormalizePlatform(platform)
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	provider, ok := r.providers[id]
	r.mu.RUnlock()
	return provider, ok
}

func (r *ProviderRegistry) List() []Provider {
	r.mu.RLock()
	keys := make([]string, 0, len(r.providers))
	for id := range r.providers {
		keys = append(keys, id)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	providers := make([]Provider, 0, len(keys))
	r.mu.RLock()
	for _, id := range keys {
		providers = append(providers, r.providers[id])
	}
	r.mu.RUnlock()
	return providers
}

var _ Registry = (*ProviderRegistry)(nil)

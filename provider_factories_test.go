package socialconnect

import (
	"testing"

	"github.com/goliatone/go-social-connect/core"
)

func TestRegisterConfiguredProviders(t *testing.T) {
	registry := core.NewProviderRegistry()
	cfg := core.Config{
		Providers: map[string]core.ProviderConfig{
			"instagram": {ClientID: "ig-id", ClientSecret: "ig-secret"},
			"TikTok":    {ClientID: "tt-key", ClientSecret: "tt-secret"},
			"twitter":   {ClientID: "tw-id", ClientSecret: "tw-secret"},
			"linkedin":  {ClientID: "li-id", ClientSecret: "li-secret"},
		},
	}

	if err := RegisterConfiguredProviders(registry, cfg); err != nil {
		t.Fatalf("register providers: %v", err)
	}
	for _, platform := range core.KnownPlatforms {
		if _, ok := registry.Get(platform); !ok {
			t.Fatalf("expected %s provider to be registered", platform)
		}
	}
}

func TestRegisterConfiguredProviders_UnknownPlatform(t *testing.T) {
	registry := core.NewProviderRegistry()
	cfg := core.Config{
		Providers: map[string]core.ProviderConfig{
			"myspace": {ClientID: "id"},
		},
	}
	if err := RegisterConfiguredProviders(registry, cfg); err == nil {
		t.Fatalf("expected error for unknown platform key")
	}
}

func TestFacadeBuildsServiceWithMemoryStores(t *testing.T) {
	registry := core.NewProviderRegistry()
	service, err := NewConnectorService(Config{},
		WithRegistry(registry),
		WithAccountStore(core.NewMemoryAccountStore()),
		WithSyncJobStore(core.NewMemorySyncJobStore()),
		WithSnapshotStore(core.NewMemorySnapshotStore()),
	)
	if err != nil {
		t.Fatalf("build service through facade: %v", err)
	}
	if service == nil {
		t.Fatalf("expected service instance")
	}
	deps := service.Dependencies()
	if deps.AccountStore == nil || deps.SyncJobStore == nil || deps.SnapshotStore == nil {
		t.Fatalf("expected stores to be wired: %+v", deps)
	}
}

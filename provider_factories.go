package socialconnect

import (
	"fmt"

	"github.com/goliatone/go-social-connect/core"
	"github.com/goliatone/go-social-connect/providers/instagram"
	"github.com/goliatone/go-social-connect/providers/linkedin"
	"github.com/goliatone/go-social-connect/providers/tiktok"
	"github.com/goliatone/go-social-connect/providers/twitter"
)

func InstagramProvider(cfg instagram.Config) (core.Provider, error) {
	return instagram.New(cfg)
}

func TikTokProvider(cfg tiktok.Config) (core.Provider, error) {
	return tiktok.New(cfg)
}

func TwitterProvider(cfg twitter.Config) (core.Provider, error) {
	return twitter.New(cfg)
}

func LinkedInProvider(cfg linkedin.Config) (core.Provider, error) {
	return linkedin.New(cfg)
}

// RegisterConfiguredProviders builds a provider for every platform with
// credentials in cfg.Providers and registers it on the registry. Platforms
// without credentials are skipped; an unknown platform key is an error.
func RegisterConfiguredProviders(registry core.Registry, cfg core.Config) error {
	if registry == nil {
		return fmt.Errorf("socialconnect: registry is required")
	}
	for platform, creds := range cfg.Providers {
		provider, err := buildProvider(core.NormalizePlatform(platform), creds)
		if err != nil {
			return err
		}
		if err := registry.Register(provider); err != nil {
			return err
		}
	}
	return nil
}

func buildProvider(platform string, creds core.ProviderConfig) (core.Provider, error) {
	switch platform {
	case "instagram":
		return InstagramProvider(instagram.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
		})
	case "tiktok":
		return TikTokProvider(tiktok.Config{
			ClientKey:    creds.ClientID,
			ClientSecret: creds.ClientSecret,
		})
	case "twitter":
		return TwitterProvider(twitter.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
		})
	case "linkedin":
		return LinkedInProvider(linkedin.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
		})
	default:
		return nil, fmt.Errorf("socialconnect: no provider factory for platform %q", platform)
	}
}

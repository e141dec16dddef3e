package core

import (
	"fmt"
	"strings"
	"time"
)

// ProviderConfig carries the app credentials issued by a social platform.
type ProviderConfig struct {
	ClientID     string `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret string `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURI  string `koanf:"redirect_uri" mapstructure:"redirect_uri"`
}

type Config struct {
	ServiceName     string                    `koanf:"service_name" mapstructure:"service_name"`
	StateTTLSeconds int                       `koanf:"state_ttl_seconds" mapstructure:"state_ttl_seconds"`
	Providers       map[string]ProviderConfig `koanf:"providers" mapstructure:"providers"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:     "social-connect",
		StateTTLSeconds: int(DefaultStateTTL / time.Second),
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.StateTTLSeconds <= 0 {
		return fmt.Errorf("core: state_ttl_seconds must be positive")
	}
	for platform, creds := range c.Providers {
		if strings.TrimSpace(platform) == "" {
			return fmt.Errorf("core: provider key is required")
		}
		if strings.TrimSpace(creds.ClientID) == "" {
			return fmt.Errorf("core: provider %q client_id is required", platform)
		}
	}
	return nil
}

// StateTTL returns the configured state-token freshness window.
func (c Config) StateTTL() time.Duration {
	if c.StateTTLSeconds <= 0 {
		return DefaultStateTTL
	}
	return time.Duration(c.StateTTLSeconds) * time.Second
}

// ProviderCredentials looks up credentials for a normalized platform key.
func (c Config) ProviderCredentials(platform string) (ProviderConfig, bool) {
	creds, ok := c.Providers[NormalizePlatform(platform)]
	return creds, ok
}

package linkedin

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-social-connect/core"
	"github.com/goliatone/go-social-connect/providers"
)

const (
	ProviderID = "linkedin"
	AuthURL    = "https://www.linkedin.com/oauth/v2/authorization"
	TokenURL   = "https://www.linkedin.com/oauth/v2/accessToken"
	ProfileURL = "https://api.linkedin.com/v2/userinfo"
)

const (
	ScopeOpenID  = "openid"
	ScopeProfile = "profile"
	ScopeEmail   = "email"
)

type Config struct {
	ClientID       string
	ClientSecret   string
	AuthURL        string
	TokenURL       string
	ProfileURL     string
	Scopes         []string
	RequestTimeout time.Duration
	HTTPClient     providers.HTTPDoer
}

type Provider struct {
	*providers.OAuth2Provider
}

func DefaultConfig() Config {
	return Config{
		AuthURL:    AuthURL,
		TokenURL:   TokenURL,
		ProfileURL: ProfileURL,
		Scopes: []string{
			ScopeOpenID,
			ScopeProfile,
			ScopeEmail,
		},
	}
}

func New(cfg Config) (core.Provider, error) {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.AuthURL) == "" {
		cfg.AuthURL = defaults.AuthURL
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = defaults.TokenURL
	}
	if strings.TrimSpace(cfg.ProfileURL) == "" {
		cfg.ProfileURL = defaults.ProfileURL
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaults.Scopes
	}

	oauthProvider, err := providers.NewOAuth2Provider(providers.OAuth2Config{
		ID:                 ProviderID,
		AuthURL:            cfg.AuthURL,
		TokenURL:           cfg.TokenURL,
		ProfileURL:         cfg.ProfileURL,
		ClientID:           cfg.ClientID,
		ClientSecret:       cfg.ClientSecret,
		ClientSecretInBody: true,
		Scopes:             cfg.Scopes,
		Normalizer:         NormalizeProfile,
		RequestTimeout:     cfg.RequestTimeout,
		HTTPClient:         cfg.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{OAuth2Provider: oauthProvider}, nil
}

type userinfoPayload struct {
	Sub        string `json:"sub"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
	Email      string `json:"email"`
}

// NormalizeProfile maps the OIDC userinfo payload into the canonical shape.
// LinkedIn has no public handle in userinfo; the email local part stands in
// as the username, falling back to the subject id.
func NormalizeProfile(body []byte) (core.Profile, error) {
	var payload userinfoPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return core.Profile{}, err
	}
	sub := strings.TrimSpace(payload.Sub)
	if sub == "" {
		return core.Profile{}, fmt.Errorf("linkedin: userinfo payload missing sub")
	}
	displayName := strings.TrimSpace(payload.Name)
	if displayName == "" {
		displayName = strings.TrimSpace(strings.TrimSpace(payload.GivenName) + " " + strings.TrimSpace(payload.FamilyName))
	}
	username := usernameFromEmail(payload.Email)
	if username == "" {
		username = sub
	}
	return core.Profile{
		PlatformUserID: sub,
		Username:       username,
		DisplayName:    displayName,
		AvatarURL:      strings.TrimSpace(payload.Picture),
	}, nil
}

func usernameFromEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	local, _, found := strings.Cut(email, "@")
	if !found {
		return ""
	}
	return strings.TrimSpace(local)
}

var _ core.Provider = (*Provider)(nil)

package instagram

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-social-connect/core"
	"github.com/goliatone/go-social-connect/providers"
)

const (
	ProviderID = "instagram"
	AuthURL    = "https://api.instagram.com/oauth/authorize"
	TokenURL   = "https://api.instagram.com/oauth/access_token"
	// ProfileURL pins the field list so the flat /me payload always carries
	// the columns the normalizer maps.
	ProfileURL = "https://graph.instagram.com/me?fields=id,username,name,biography,profile_picture_url,followers_count,follows_count,media_count"
)

const (
	ScopeBusinessBasic          = "instagram_business_basic"
	ScopeBusinessContentPublish = "instagram_business_content_publish"
	ScopeBusinessManageInsights = "instagram_business_manage_insights"
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
			ScopeBusinessBasic,
			ScopeBusinessManageInsights,
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

type profilePayload struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	Name              string `json:"name"`
	Biography         string `json:"biography"`
	ProfilePictureURL string `json:"profile_picture_url"`
	FollowersCount    int64  `json:"followers_count"`
	FollowsCount      int64  `json:"follows_count"`
}

// NormalizeProfile maps the flat graph.instagram.com/me payload into the
// canonical shape.
func NormalizeProfile(body []byte) (core.Profile, error) {
	var payload profilePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return core.Profile{}, err
	}
	username := strings.TrimSpace(payload.Username)
	if strings.TrimSpace(payload.ID) == "" || username == "" {
		return core.Profile{}, fmt.Errorf("instagram: profile payload missing id or username")
	}
	displayName := strings.TrimSpace(payload.Name)
	if displayName == "" {
		displayName = username
	}
	return core.Profile{
		PlatformUserID: strings.TrimSpace(payload.ID),
		Username:       username,
		DisplayName:    displayName,
		AvatarURL:      strings.TrimSpace(payload.ProfilePictureURL),
		ProfileURL:     "https://instagram.com/" + username,
		Bio:            strings.TrimSpace(payload.Biography),
		Followers:      payload.FollowersCount,
		Following:      payload.FollowsCount,
	}, nil
}

var _ core.Provider = (*Provider)(nil)

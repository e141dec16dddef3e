package twitter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-social-connect/core"
	"github.com/goliatone/go-social-connect/providers"
)

const (
	ProviderID = "twitter"
	AuthURL    = "https://twitter.com/i/oauth2/authorize"
	TokenURL   = "https://api.twitter.com/2/oauth2/token"
	ProfileURL = "https://api.twitter.com/2/users/me?user.fields=id,name,username,description,profile_image_url,public_metrics"
)

const (
	ScopeTweetRead     = "tweet.read"
	ScopeUsersRead     = "users.read"
	ScopeOfflineAccess = "offline.access"
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
			ScopeTweetRead,
			ScopeUsersRead,
			ScopeOfflineAccess,
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

	// Twitter requires PKCE for every client and authenticates confidential
	// clients with HTTP Basic at the token endpoint.
	oauthProvider, err := providers.NewOAuth2Provider(providers.OAuth2Config{
		ID:             ProviderID,
		AuthURL:        cfg.AuthURL,
		TokenURL:       cfg.TokenURL,
		ProfileURL:     cfg.ProfileURL,
		ClientID:       cfg.ClientID,
		ClientSecret:   cfg.ClientSecret,
		UsePKCE:        true,
		Scopes:         cfg.Scopes,
		Normalizer:     NormalizeProfile,
		RequestTimeout: cfg.RequestTimeout,
		HTTPClient:     cfg.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{OAuth2Provider: oauthProvider}, nil
}

type profileEnvelope struct {
	Data struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		Username        string `json:"username"`
		Description     string `json:"description"`
		ProfileImageURL string `json:"profile_image_url"`
		PublicMetrics   struct {
			FollowersCount int64 `json:"followers_count"`
			FollowingCount int64 `json:"following_count"`
			TweetCount     int64 `json:"tweet_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

// NormalizeProfile maps the v2 users/me envelope into the canonical shape.
func NormalizeProfile(body []byte) (core.Profile, error) {
	var envelope profileEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return core.Profile{}, err
	}
	data := envelope.Data
	username := strings.TrimSpace(data.Username)
	if strings.TrimSpace(data.ID) == "" || username == "" {
		return core.Profile{}, fmt.Errorf("twitter: profile payload missing id or username")
	}
	displayName := strings.TrimSpace(data.Name)
	if displayName == "" {
		displayName = username
	}
	return core.Profile{
		PlatformUserID: strings.TrimSpace(data.ID),
		Username:       username,
		DisplayName:    displayName,
		AvatarURL:      strings.TrimSpace(data.ProfileImageURL),
		ProfileURL:     "https://twitter.com/" + username,
		Bio:            strings.TrimSpace(data.Description),
		Followers:      data.PublicMetrics.FollowersCount,
		Following:      data.PublicMetrics.FollowingCount,
	}, nil
}

var _ core.Provider = (*Provider)(nil)

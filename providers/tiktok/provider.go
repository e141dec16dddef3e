package tiktok

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-social-connect/core"
	"github.com/goliatone/go-social-connect/providers"
)

const (
	ProviderID = "tiktok"
	AuthURL    = "https://www.tiktok.com/v2/auth/authorize/"
	TokenURL   = "https://open.tiktokapis.com/v2/oauth/token/"
	ProfileURL = "https://open.tiktokapis.com/v2/user/info/?fields=open_id,union_id,username,display_name,avatar_url,bio_description,profile_deep_link,follower_count,following_count,likes_count"
)

const (
	ScopeUserInfoBasic   = "user.info.basic"
	ScopeUserInfoProfile = "user.info.profile"
	ScopeUserInfoStats   = "user.info.stats"
)

type Config struct {
	ClientKey      string
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
			ScopeUserInfoBasic,
			ScopeUserInfoProfile,
			ScopeUserInfoStats,
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
		ClientID:           cfg.ClientKey,
		ClientSecret:       cfg.ClientSecret,
		ClientSecretInBody: true,
		// TikTok names its application id client_key on both endpoints.
		ClientIDParam:  "client_key",
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
		User struct {
			OpenID          string `json:"open_id"`
			UnionID         string `json:"union_id"`
			Username        string `json:"username"`
			DisplayName     string `json:"display_name"`
			AvatarURL       string `json:"avatar_url"`
			BioDescription  string `json:"bio_description"`
			ProfileDeepLink string `json:"profile_deep_link"`
			FollowerCount   int64  `json:"follower_count"`
			FollowingCount  int64  `json:"following_count"`
			LikesCount      int64  `json:"likes_count"`
		} `json:"user"`
	} `json:"data"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NormalizeProfile maps TikTok's data.user envelope into the canonical
// shape. TikTok reports errors in-band with a 200 status, so the error
// object is checked before the user payload.
func NormalizeProfile(body []byte) (core.Profile, error) {
	var envelope profileEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return core.Profile{}, err
	}
	if code := strings.TrimSpace(envelope.Error.Code); code != "" && code != "ok" {
		return core.Profile{}, fmt.Errorf("tiktok: user info error %s: %s", code, envelope.Error.Message)
	}
	user := envelope.Data.User
	if strings.TrimSpace(user.OpenID) == "" {
		return core.Profile{}, fmt.Errorf("tiktok: profile payload missing open_id")
	}
	username := strings.TrimSpace(user.Username)
	if username == "" {
		username = strings.TrimSpace(user.DisplayName)
	}
	if username == "" {
		return core.Profile{}, fmt.Errorf("tiktok: profile payload missing username")
	}
	return core.Profile{
		PlatformUserID: strings.TrimSpace(user.OpenID),
		Username:       username,
		DisplayName:    strings.TrimSpace(user.DisplayName),
		AvatarURL:      strings.TrimSpace(user.AvatarURL),
		ProfileURL:     strings.TrimSpace(user.ProfileDeepLink),
		Bio:            strings.TrimSpace(user.BioDescription),
		Followers:      user.FollowerCount,
		Following:      user.FollowingCount,
		EngagementRate: engagementRate(user.LikesCount, user.FollowerCount),
	}, nil
}

// engagementRate approximates lifetime engagement as likes per follower.
func engagementRate(likes, followers int64) float64 {
	if likes <= 0 || followers <= 0 {
		return 0
	}
	return float64(likes) / float64(followers)
}

var _ core.Provider = (*Provider)(nil)

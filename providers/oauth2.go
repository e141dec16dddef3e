package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-social-connect/core"
)

const (
	defaultRequestTimeout    = 30 * time.Second
	maxResponseBodyBytes     = 1 << 20 // 1 MiB
	defaultClientIDParameter = "client_id"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ProfileNormalizer converts one platform's raw profile JSON into the
// canonical shape. Each platform registers exactly one.
type ProfileNormalizer func(body []byte) (core.Profile, error)

type OAuth2Config struct {
	ID           string
	AuthURL      string
	TokenURL     string
	ProfileURL   string
	ClientID     string
	ClientSecret string
	// ClientSecretInBody selects the token-endpoint auth scheme: secret as
	// a form field when true, HTTP Basic when false.
	ClientSecretInBody bool
	// ClientIDParam overrides the form/query parameter name carrying the
	// client id. TikTok calls it client_key.
	ClientIDParam  string
	UsePKCE        bool
	Scopes         []string
	Normalizer     ProfileNormalizer
	RequestTimeout time.Duration
	Now            func() time.Time
	HTTPClient     HTTPDoer
}

// OAuth2Provider is the shared authorization-code implementation behind
// every platform package. Platform differences are carried entirely by
// configuration and the normalizer.
type OAuth2Provider struct {
	cfg        OAuth2Config
	httpClient HTTPDoer
}

type tokenEndpointPayload struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	Scope            string
	ExpiresIn        int64
	ErrorCode        string
	ErrorDescription string
}

func NewOAuth2Provider(cfg OAuth2Config) (*OAuth2Provider, error) {
	cfg.ID = core.NormalizePlatform(cfg.ID)
	if cfg.ID == "" {
		return nil, fmt.Errorf("providers: provider id is required")
	}
	if strings.TrimSpace(cfg.AuthURL) == "" {
		return nil, fmt.Errorf("providers: auth url is required for provider %q", cfg.ID)
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("providers: token url is required for provider %q", cfg.ID)
	}
	if strings.TrimSpace(cfg.ProfileURL) == "" {
		return nil, fmt.Errorf("providers: profile url is required for provider %q", cfg.ID)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("providers: client id is required for provider %q", cfg.ID)
	}
	if cfg.Normalizer == nil {
		return nil, fmt.Errorf("providers: profile normalizer is required for provider %q", cfg.ID)
	}

	cfg.AuthURL = strings.TrimSpace(cfg.AuthURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.ProfileURL = strings.TrimSpace(cfg.ProfileURL)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.ClientIDParam = strings.TrimSpace(cfg.ClientIDParam)
	if cfg.ClientIDParam == "" {
		cfg.ClientIDParam = defaultClientIDParameter
	}
	cfg.Scopes = cloneScopes(cfg.Scopes)
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time {
			return time.Now().UTC()
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &OAuth2Provider{
		cfg:        cfg,
		httpClient: httpClient,
	}, nil
}

func (p *OAuth2Provider) ID() string {
	if p == nil {
		return ""
	}
	return p.cfg.ID
}

func (p *OAuth2Provider) Scopes() []string {
	if p == nil {
		return []string{}
	}
	return cloneScopes(p.cfg.Scopes)
}

func (p *OAuth2Provider) BeginAuth(_ context.Context, req core.BeginAuthRequest) (core.BeginAuthResponse, error) {
	if p == nil {
		return core.BeginAuthResponse{}, fmt.Errorf("providers: oauth2 provider is nil")
	}
	state := strings.TrimSpace(req.State)
	if state == "" {
		return core.BeginAuthResponse{}, fmt.Errorf("providers: state is required")
	}
	scopes := cloneScopes(req.Scopes)
	if len(scopes) == 0 {
		scopes = cloneScopes(p.cfg.Scopes)
	}

	values := url.Values{}
	values.Set("response_type", "code")
	values.Set(p.cfg.ClientIDParam, p.cfg.ClientID)
	if redirectURI := strings.TrimSpace(req.RedirectURI); redirectURI != "" {
		values.Set("redirect_uri", redirectURI)
	}
	values.Set("scope", strings.Join(scopes, " "))
	values.Set("state", state)

	verifier := ""
	if p.cfg.UsePKCE {
		generated, err := core.GenerateCodeVerifier()
		if err != nil {
			return core.BeginAuthResponse{}, err
		}
		challenge, err := core.ChallengeS256(generated)
		if err != nil {
			return core.BeginAuthResponse{}, err
		}
		verifier = generated
		values.Set("code_challenge", challenge)
		values.Set("code_challenge_method", core.PKCEMethodS256)
	}

	authURL := p.cfg.AuthURL
	if strings.Contains(authURL, "?") {
		authURL += "&" + values.Encode()
	} else {
		authURL += "?" + values.Encode()
	}

	return core.BeginAuthResponse{
		URL:          authURL,
		CodeVerifier: verifier,
	}, nil
}

func (p *OAuth2Provider) ExchangeCode(ctx context.Context, req core.ExchangeRequest) (core.TokenGrant, error) {
	if p == nil {
		return core.TokenGrant{}, fmt.Errorf("providers: oauth2 provider is nil")
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return core.TokenGrant{}, fmt.Errorf("providers: auth code is required")
	}
	if p.cfg.UsePKCE && strings.TrimSpace(req.CodeVerifier) == "" {
		return core.TokenGrant{}, fmt.Errorf("providers: code verifier is required for provider %q", p.cfg.ID)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if redirectURI := strings.TrimSpace(req.RedirectURI); redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}
	if verifier := strings.TrimSpace(req.CodeVerifier); verifier != "" {
		form.Set("code_verifier", verifier)
	}

	payload, err := p.fetchToken(ctx, form)
	if err != nil {
		return core.TokenGrant{}, err
	}
	return grantFromPayload(payload), nil
}

func (p *OAuth2Provider) Refresh(ctx context.Context, refreshToken string) (core.TokenGrant, error) {
	if p == nil {
		return core.TokenGrant{}, fmt.Errorf("providers: oauth2 provider is nil")
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return core.TokenGrant{}, fmt.Errorf("providers: refresh token is required")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	payload, err := p.fetchToken(ctx, form)
	if err != nil {
		return core.TokenGrant{}, err
	}
	return grantFromPayload(payload), nil
}

func (p *OAuth2Provider) FetchProfile(ctx context.Context, accessToken string) (core.Profile, error) {
	if p == nil {
		return core.Profile{}, fmt.Errorf("providers: oauth2 provider is nil")
	}
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return core.Profile{}, fmt.Errorf("providers: access token is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	requestCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodGet, p.cfg.ProfileURL, nil)
	if err != nil {
		return core.Profile{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Accept", "application/json")

	response, err := p.httpClient.Do(httpReq)
	if err != nil {
		return core.Profile{}, fmt.Errorf("providers: profile request failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := readBoundedBody(response.Body)
	if readErr != nil {
		return core.Profile{}, fmt.Errorf("providers: read profile response: %w", readErr)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return core.Profile{}, fmt.Errorf(
			"providers: profile endpoint error (%d) for provider %q",
			response.StatusCode,
			p.cfg.ID,
		)
	}

	profile, normalizeErr := p.cfg.Normalizer(body)
	if normalizeErr != nil {
		return core.Profile{}, fmt.Errorf("providers: normalize %s profile: %w", p.cfg.ID, normalizeErr)
	}
	if err := profile.Validate(); err != nil {
		return core.Profile{}, fmt.Errorf("providers: normalize %s profile: %w", p.cfg.ID, err)
	}
	return profile, nil
}

func (p *OAuth2Provider) fetchToken(ctx context.Context, form url.Values) (tokenEndpointPayload, error) {
	if p.httpClient == nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: oauth2 http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	values := url.Values{}
	for key, items := range form {
		if strings.TrimSpace(key) == "" {
			continue
		}
		for _, item := range items {
			values.Add(key, strings.TrimSpace(item))
		}
	}
	values.Set(p.cfg.ClientIDParam, p.cfg.ClientID)
	if p.cfg.ClientSecretInBody && p.cfg.ClientSecret != "" {
		values.Set("client_secret", p.cfg.ClientSecret)
	}

	requestCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		p.cfg.TokenURL,
		strings.NewReader(values.Encode()),
	)
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if !p.cfg.ClientSecretInBody && p.cfg.ClientSecret != "" {
		httpReq.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	}

	response, err := p.httpClient.Do(httpReq)
	if err != nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token request failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := readBoundedBody(response.Body)
	if readErr != nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: read token response: %w", readErr)
	}

	payload, parseErr := parseTokenPayload(body, response.Header.Get("Content-Type"))
	if parseErr != nil {
		return tokenEndpointPayload{}, fmt.Errorf("providers: decode token response: %w", parseErr)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return tokenEndpointPayload{}, fmt.Errorf(
			"providers: token endpoint error (%d): %s",
			response.StatusCode,
			describeTokenError(payload),
		)
	}
	if payload.ErrorCode != "" {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token endpoint error: %s", describeTokenError(payload))
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return tokenEndpointPayload{}, fmt.Errorf("providers: token endpoint response missing access token")
	}
	return payload, nil
}

func grantFromPayload(payload tokenEndpointPayload) core.TokenGrant {
	return core.TokenGrant{
		AccessToken:  strings.TrimSpace(payload.AccessToken),
		RefreshToken: strings.TrimSpace(payload.RefreshToken),
		TokenType:    normalizeTokenType(payload.TokenType),
		Scope:        strings.TrimSpace(payload.Scope),
		ExpiresIn:    payload.ExpiresIn,
	}
}

func readBoundedBody(body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxResponseBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxResponseBodyBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", maxResponseBodyBytes)
	}
	return data, nil
}

func describeTokenError(payload tokenEndpointPayload) string {
	if strings.TrimSpace(payload.ErrorDescription) != "" {
		return strings.TrimSpace(payload.ErrorDescription)
	}
	if strings.TrimSpace(payload.ErrorCode) != "" {
		return strings.TrimSpace(payload.ErrorCode)
	}
	return "unknown error"
}

func parseTokenPayload(body []byte, contentType string) (tokenEndpointPayload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		return parseTokenPayloadJSON(body)
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		return parseTokenPayloadForm(body)
	}
	if payload, err := parseTokenPayloadJSON(body); err == nil {
		return payload, nil
	}
	return parseTokenPayloadForm(body)
}

func parseTokenPayloadJSON(body []byte) (tokenEndpointPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tokenEndpointPayload{}, err
	}
	return tokenEndpointPayload{
		AccessToken:      readAnyString(decoded["access_token"]),
		TokenType:        readAnyString(decoded["token_type"]),
		RefreshToken:     readAnyString(decoded["refresh_token"]),
		Scope:            readAnyString(decoded["scope"]),
		ExpiresIn:        readAnyInt64(decoded["expires_in"]),
		ErrorCode:        readAnyString(decoded["error"]),
		ErrorDescription: readAnyString(decoded["error_description"]),
	}, nil
}

func parseTokenPayloadForm(body []byte) (tokenEndpointPayload, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return tokenEndpointPayload{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return tokenEndpointPayload{}, err
	}
	expiresIn, _ := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64)
	return tokenEndpointPayload{
		AccessToken:      strings.TrimSpace(values.Get("access_token")),
		TokenType:        strings.TrimSpace(values.Get("token_type")),
		RefreshToken:     strings.TrimSpace(values.Get("refresh_token")),
		Scope:            strings.TrimSpace(values.Get("scope")),
		ExpiresIn:        expiresIn,
		ErrorCode:        strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
	}, nil
}

func normalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatParsed, floatErr := typed.Float64()
		if floatErr == nil {
			return int64(floatParsed)
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

func cloneScopes(input []string) []string {
	if len(input) == 0 {
		return []string{}
	}
	values := make([]string, 0, len(input))
	for _, value := range input {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

var _ core.Provider = (*OAuth2Provider)(nil)

package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/eduAuth/internal/netfail"
	"golang.org/x/oauth2"
)

const (
	defaultTimeout  = 10 * time.Second
	maxProfileBytes = 1 << 20
)

// Config describes one upstream provider.
type Config struct {
	Provider     string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string

	// Timeout bounds each outbound call. Zero means 10s.
	Timeout time.Duration
	// HTTPClient overrides the transport. Nil means a client with no
	// timeout of its own; Timeout is applied through the request context.
	HTTPClient *http.Client
}

// Profile is the subset of provider userinfo the platform relies on.
type Profile struct {
	ExternalID    string
	Email         string
	EmailVerified bool
	DisplayName   string
	PictureURL    string
}

// Client is a golang.org/x/oauth2 backed provider client.
type Client struct {
	name        string
	oauth       *oauth2.Config
	userInfoURL string
	timeout     time.Duration
	httpClient  *http.Client
}

// New validates cfg and returns a [Client].
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("identity: client id is required")
	}
	for name, raw := range map[string]string{
		"auth url":     cfg.AuthURL,
		"token url":    cfg.TokenURL,
		"userinfo url": cfg.UserInfoURL,
		"redirect url": cfg.RedirectURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("identity: %s must be an absolute URL", name)
		}
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("identity: timeout must not be negative")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	name := cfg.Provider
	if name == "" {
		name = "oauth2"
	}

	return &Client{
		name: name,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		timeout:     cfg.Timeout,
		httpClient:  cfg.HTTPClient,
	}, nil
}

// Name returns the provider name recorded on linked identities.
func (c *Client) Name() string { return c.name }

// AuthorizationURL builds the consent URL for state and an S256 code
// challenge. Offline access and forced consent are always requested so the
// provider issues a refresh token on first authorization.
func (c *Client) AuthorizationURL(state, codeChallenge string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange trades an authorization code and its PKCE verifier for provider tokens.
func (c *Client) Exchange(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.oauth.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			return nil, &netfail.Error{Op: "identity.exchange", Kind: netfail.KindHTTPStatus, Status: retrieveErr.Response.StatusCode, Err: err}
		}
		return nil, netfail.Classify("identity.exchange", err)
	}
	if tok.AccessToken == "" {
		return nil, netfail.Decode("identity.exchange", errors.New("token response missing access_token"))
	}
	return tok, nil
}

// FetchProfile loads the userinfo document for accessToken.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, netfail.Classify("identity.userinfo", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, netfail.Classify("identity.userinfo", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, netfail.HTTPStatus("identity.userinfo", resp.StatusCode)
	}

	// Numeric subject ids stay exact as json.Number.
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, netfail.Decode("identity.userinfo", err)
	}

	return &Profile{
		ExternalID:    stringValue(coalesce(raw["sub"], raw["id"])),
		Email:         strings.TrimSpace(stringValue(coalesce(raw["email"], raw["mail"]))),
		EmailVerified: boolValue(coalesce(raw["email_verified"], raw["verified_email"])),
		DisplayName:   stringValue(coalesce(raw["name"], raw["displayName"])),
		PictureURL:    stringValue(coalesce(raw["picture"], raw["avatar_url"])),
	}, nil
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// boolValue accepts both JSON booleans and the "true"/"false" strings some
// providers emit.
func boolValue(input any) bool {
	switch v := input.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}

func coalesce(values ...any) any {
	for _, v := range values {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(val) != "" {
				return v
			}
		default:
			return v
		}
	}
	return nil
}

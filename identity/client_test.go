package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/eduAuth/internal/netfail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	server      *httptest.Server
	tokenStatus int
	profile     any
	profileCode int
	delay       time.Duration

	mu       sync.Mutex
	lastForm url.Values
	lastAuth string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{tokenStatus: http.StatusOK, profileCode: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if p.delay > 0 {
			select {
			case <-time.After(p.delay):
			case <-r.Context().Done():
				return
			}
		}
		_ = r.ParseForm()
		p.mu.Lock()
		p.lastForm = r.PostForm
		p.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.tokenStatus)
		if p.tokenStatus != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"up-access","refresh_token":"up-refresh","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.lastAuth = r.Header.Get("Authorization")
		p.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(p.profileCode)
		if raw, ok := p.profile.(string); ok {
			_, _ = w.Write([]byte(raw))
			return
		}
		_ = json.NewEncoder(w).Encode(p.profile)
	})
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) form() url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastForm
}

func (p *fakeProvider) authorization() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAuth
}

func (p *fakeProvider) client(t *testing.T, timeout time.Duration) *Client {
	t.Helper()
	c, err := New(Config{
		Provider:     "google",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "https://edu.example.com/auth/oauth/callback",
		AuthURL:      p.server.URL + "/authorize",
		TokenURL:     p.server.URL + "/token",
		UserInfoURL:  p.server.URL + "/userinfo",
		Scopes:       []string{"openid", "email", "profile"},
		Timeout:      timeout,
	})
	require.NoError(t, err)
	return c
}

func TestAuthorizationURLCarriesPKCEAndConsent(t *testing.T) {
	p := newFakeProvider(t)
	c := p.client(t, time.Second)

	raw := c.AuthorizationURL("state-123", "challenge-abc")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "/authorize", u.Path)
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "challenge-abc", q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "openid email profile", q.Get("scope"))
	assert.Equal(t, "client-id", q.Get("client_id"))
}

func TestExchangeSendsVerifier(t *testing.T) {
	p := newFakeProvider(t)
	c := p.client(t, time.Second)

	tok, err := c.Exchange(context.Background(), "auth-code", "verifier-xyz")
	require.NoError(t, err)
	assert.Equal(t, "up-access", tok.AccessToken)
	assert.Equal(t, "auth-code", p.form().Get("code"))
	assert.Equal(t, "verifier-xyz", p.form().Get("code_verifier"))
}

func TestExchangeHTTPStatus(t *testing.T) {
	p := newFakeProvider(t)
	p.tokenStatus = http.StatusBadRequest
	c := p.client(t, time.Second)

	_, err := c.Exchange(context.Background(), "bad", "v")
	failure, ok := netfail.As(err)
	require.True(t, ok, "expected classified error, got %v", err)
	assert.Equal(t, netfail.KindHTTPStatus, failure.Kind)
	assert.Equal(t, http.StatusBadRequest, failure.Status)
}

func TestExchangeTimeout(t *testing.T) {
	p := newFakeProvider(t)
	p.delay = time.Second
	c := p.client(t, 50*time.Millisecond)

	_, err := c.Exchange(context.Background(), "slow", "v")
	failure, ok := netfail.As(err)
	require.True(t, ok, "expected classified error, got %v", err)
	assert.Equal(t, netfail.KindTimeout, failure.Kind)
}

func TestExchangeConnectionRefused(t *testing.T) {
	p := newFakeProvider(t)
	c := p.client(t, time.Second)
	p.server.Close()

	_, err := c.Exchange(context.Background(), "code", "v")
	failure, ok := netfail.As(err)
	require.True(t, ok, "expected classified error, got %v", err)
	assert.Equal(t, netfail.KindConnectionRefused, failure.Kind)
}

func TestFetchProfile(t *testing.T) {
	p := newFakeProvider(t)
	p.profile = map[string]any{
		"sub":            "g-42",
		"email":          "ada@example.com",
		"email_verified": true,
		"name":           "Ada Lovelace",
		"picture":        "https://example.com/ada.png",
	}
	c := p.client(t, time.Second)

	profile, err := c.FetchProfile(context.Background(), "up-access")
	require.NoError(t, err)
	assert.Equal(t, "Bearer up-access", p.authorization())
	assert.Equal(t, Profile{
		ExternalID:    "g-42",
		Email:         "ada@example.com",
		EmailVerified: true,
		DisplayName:   "Ada Lovelace",
		PictureURL:    "https://example.com/ada.png",
	}, *profile)
}

func TestFetchProfileStringVerifiedFlag(t *testing.T) {
	p := newFakeProvider(t)
	p.profile = map[string]any{"id": "77", "email": "b@example.com", "verified_email": "true"}
	c := p.client(t, time.Second)

	profile, err := c.FetchProfile(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "77", profile.ExternalID)
	assert.True(t, profile.EmailVerified)
}

func TestFetchProfileKeepsLargeNumericIDExact(t *testing.T) {
	p := newFakeProvider(t)
	p.profile = `{"id": 12345678901234567891, "email": "n@example.com"}`
	c := p.client(t, time.Second)

	profile, err := c.FetchProfile(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "12345678901234567891", profile.ExternalID)
}

func TestFetchProfileFailures(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		p := newFakeProvider(t)
		p.profileCode = http.StatusBadGateway
		p.profile = map[string]any{}
		c := p.client(t, time.Second)

		_, err := c.FetchProfile(context.Background(), "tok")
		failure, ok := netfail.As(err)
		require.True(t, ok)
		assert.Equal(t, netfail.KindHTTPStatus, failure.Kind)
		assert.Equal(t, http.StatusBadGateway, failure.Status)
	})

	t.Run("decode", func(t *testing.T) {
		p := newFakeProvider(t)
		p.profile = "not json"
		c := p.client(t, time.Second)

		_, err := c.FetchProfile(context.Background(), "tok")
		failure, ok := netfail.As(err)
		require.True(t, ok)
		assert.Equal(t, netfail.KindDecode, failure.Kind)
	})
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	_, err := New(Config{ClientID: "id", AuthURL: "https://a", TokenURL: "https://t", UserInfoURL: "relative", RedirectURL: "https://r"})
	assert.Error(t, err)
	_, err = New(Config{AuthURL: "https://a", TokenURL: "https://t", UserInfoURL: "https://u", RedirectURL: "https://r"})
	assert.Error(t, err)
}

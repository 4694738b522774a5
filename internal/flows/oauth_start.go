package flows

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/eduAuth/oauthstate"
	"golang.org/x/oauth2"
)

// OAuthStartFailureKind classifies OAuth initiation failures.
type OAuthStartFailureKind int

const (
	OAuthStartFailureNone OAuthStartFailureKind = iota
	OAuthStartFailureRedirect
	OAuthStartFailureState
)

// OAuthStartResult carries the authorization URL or failure metadata.
type OAuthStartResult struct {
	Failure OAuthStartFailureKind
	Err     error
	URL     string
	// StateID identifies the minted state in logs; the token itself is secret.
	StateID string
}

// OAuthStartDeps captures OAuth initiation dependencies.
type OAuthStartDeps struct {
	States           oauthstate.Store
	AuthorizationURL func(state, codeChallenge string) string
	StateTTL         time.Duration
	// AllowedRedirectHosts, when non-empty, restricts redirect targets to
	// these hosts. An entry without a port matches any port.
	AllowedRedirectHosts []string
}

// RunOAuthStart mints a PKCE-bound state and returns the provider consent URL.
func RunOAuthStart(ctx context.Context, redirectTarget string, deps OAuthStartDeps) OAuthStartResult {
	if !ValidRedirect(redirectTarget, deps.AllowedRedirectHosts) {
		return OAuthStartResult{Failure: OAuthStartFailureRedirect}
	}

	verifier := oauth2.GenerateVerifier()
	state, err := deps.States.CreateState(ctx, redirectTarget, verifier, deps.StateTTL)
	if err != nil {
		return OAuthStartResult{Failure: OAuthStartFailureState, Err: err}
	}

	challenge := oauth2.S256ChallengeFromVerifier(verifier)
	return OAuthStartResult{
		URL:     deps.AuthorizationURL(state.Token, challenge),
		StateID: state.ID,
	}
}

// ValidRedirect reports whether raw is an absolute http(s) URL with a host,
// and, when allowed is non-empty, whether that host is listed.
func ValidRedirect(raw string, allowed []string) bool {
	if strings.TrimSpace(raw) != raw || raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" || u.User != nil {
		return false
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return false
	}
	if len(allowed) == 0 {
		return true
	}
	host, hostname := strings.ToLower(u.Host), strings.ToLower(u.Hostname())
	for _, h := range allowed {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == host || h == hostname {
			return true
		}
	}
	return false
}

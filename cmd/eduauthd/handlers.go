package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	eduAuth "github.com/MrEthical07/eduAuth"
	"github.com/MrEthical07/eduAuth/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 16

type api struct {
	engine  *eduAuth.Engine
	logger  *zap.Logger
	metrics http.Handler
}

func (a *api) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.ClientInfo)

	r.Get("/healthz", a.health)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", a.login)
		r.Post("/refresh", a.refresh)
		r.Get("/oauth/start", a.oauthStart)
		r.Get("/oauth/callback", a.oauthCallback)
		r.With(middleware.Guard(a.engine)).Post("/logout-all", a.logoutAll)
	})
	return r
}

type tokenResponse struct {
	UserID           string    `json:"user_id"`
	Role             string    `json:"role"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	RedirectTarget   string    `json:"redirect_target,omitempty"`
	Created          bool      `json:"created,omitempty"`
	Linked           bool      `json:"linked,omitempty"`
}

func newTokenResponse(account *eduAuth.Account, tokens eduAuth.TokenPair) tokenResponse {
	return tokenResponse{
		UserID:           account.ID,
		Role:             account.Role,
		AccessToken:      tokens.AccessToken,
		AccessExpiresAt:  tokens.AccessExpiresAt,
		RefreshToken:     tokens.RefreshToken,
		RefreshExpiresAt: tokens.RefreshExpiresAt,
	}
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := a.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(res.Account, res.Tokens))
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := a.engine.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTokenResponse(res.Account, res.Tokens))
}

func (a *api) oauthStart(w http.ResponseWriter, r *http.Request) {
	authURL, err := a.engine.StartOAuth(r.Context(), r.URL.Query().Get("redirect"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (a *api) oauthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if upstream := q.Get("error"); upstream != "" {
		// The user declined or the provider refused; the state expires on its own.
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "oauth_denied", Detail: upstream})
		return
	}
	res, err := a.engine.CompleteOAuth(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	body := newTokenResponse(res.Account, res.Tokens)
	body.RedirectTarget = res.RedirectTarget
	body.Created = res.Created
	body.Linked = res.Linked
	writeJSON(w, http.StatusOK, body)
}

func (a *api) logoutAll(w http.ResponseWriter, r *http.Request) {
	auth, _ := middleware.AuthResultFromContext(r.Context())
	n, err := a.engine.LogoutAll(r.Context(), auth.UserID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	healthy, breaker, lastChecked := a.engine.StateStoreHealth()
	status := "ok"
	if !healthy {
		// The memory tier is serving; the service still works.
		status = "degraded"
	}
	body := map[string]any{
		"status":        status,
		"state_store":   breaker,
		"audit_dropped": a.engine.AuditDropped(),
	}
	if !lastChecked.IsZero() {
		body["state_last_checked"] = lastChecked.UTC()
	}
	writeJSON(w, http.StatusOK, body)
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// statusFor maps engine errors onto HTTP. Anything unrecognised is a 500.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, eduAuth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, eduAuth.ErrTokenReuseDetected):
		return http.StatusUnauthorized, "token_reuse_detected"
	case errors.Is(err, eduAuth.ErrTokenInvalid):
		return http.StatusUnauthorized, "invalid_token"
	case errors.Is(err, eduAuth.ErrAccountDisabled):
		return http.StatusForbidden, "account_disabled"
	case errors.Is(err, eduAuth.ErrAccountNotVerified):
		return http.StatusForbidden, "account_not_verified"
	case errors.Is(err, eduAuth.ErrAccountNotFound):
		return http.StatusUnauthorized, "account_not_found"
	case errors.Is(err, eduAuth.ErrInvalidOrExpiredState):
		return http.StatusBadRequest, "invalid_state"
	case errors.Is(err, eduAuth.ErrInvalidRedirect):
		return http.StatusBadRequest, "invalid_redirect"
	case errors.Is(err, eduAuth.ErrIdentityConflict):
		return http.StatusConflict, "identity_conflict"
	case errors.Is(err, eduAuth.ErrUpstreamIntegration):
		return http.StatusBadGateway, "upstream_failure"
	case errors.Is(err, eduAuth.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	case errors.Is(err, eduAuth.ErrOAuthNotConfigured):
		return http.StatusNotFound, "oauth_not_configured"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

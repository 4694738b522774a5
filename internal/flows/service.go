package flows

import (
	"context"
)

// Deps holds one dependency set per flow.
type Deps struct {
	Login         LoginDeps
	Refresh       RefreshDeps
	OAuthStart    OAuthStartDeps
	OAuthCallback OAuthCallbackDeps
	Validate      ValidateDeps
	Logout        LogoutDeps
}

// Service dispatches engine calls to the Run* functions.
type Service struct {
	deps Deps
}

// New captures deps; they are not modified afterwards.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized is false for the zero Service.
func (s Service) Initialized() bool {
	return s.deps.Validate.Verify != nil
}

func (s Service) Login(ctx context.Context, email, password string) LoginResult {
	return RunLogin(ctx, email, password, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) OAuthStart(ctx context.Context, redirectTarget string) OAuthStartResult {
	return RunOAuthStart(ctx, redirectTarget, s.deps.OAuthStart)
}

// OAuthEnabled reports whether an identity provider was wired.
func (s Service) OAuthEnabled() bool {
	return s.deps.OAuthCallback.Exchange != nil
}

func (s Service) OAuthCallback(ctx context.Context, code, stateToken string) OAuthCallbackResult {
	return RunOAuthCallback(ctx, code, stateToken, s.deps.OAuthCallback)
}

func (s Service) Validate(tokenStr string) ValidateResult {
	return RunValidate(tokenStr, s.deps.Validate)
}

func (s Service) LogoutAll(ctx context.Context, userID string) (int, error) {
	return RunLogoutAll(ctx, userID, s.deps.Logout)
}

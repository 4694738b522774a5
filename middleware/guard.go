package middleware

import (
	"context"
	"net/http"
	"strings"

	eduAuth "github.com/MrEthical07/eduAuth"
)

// Validator is the subset of *eduAuth.Engine the guards need.
type Validator interface {
	ValidateAccess(ctx context.Context, token string) (*eduAuth.AuthResult, error)
}

type authResultContextKey struct{}

func AuthResultFromContext(ctx context.Context) (*eduAuth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*eduAuth.AuthResult)
	return res, ok && res != nil
}

// Guard validates the bearer access token of each request.
func Guard(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				unauthorized(w)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			res, err := v.ValidateAccess(r.Context(), token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="eduauth"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
